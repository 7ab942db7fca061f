package repository

import (
	"gorm.io/gorm"

	"netsource/internal/model"
	pkgErrors "netsource/pkg/errors"
)

type SecretsGroupRepository interface {
	Create(group *model.SecretsGroup) error
	FindByID(id int64) (*model.SecretsGroup, error)
	FindByName(name string) (*model.SecretsGroup, error)
	List(page, pageSize int, keyword string) ([]*model.SecretsGroup, int64, error)
	Save(group *model.SecretsGroup) error
	Delete(id int64) error
	CountReferences(id int64) (int64, error)
}

type secretsGroupRepository struct {
	db *gorm.DB
}

func NewSecretsGroupRepository(db *gorm.DB) SecretsGroupRepository {
	return &secretsGroupRepository{db: db}
}

func (r *secretsGroupRepository) Create(group *model.SecretsGroup) error {
	if err := r.db.Create(group).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建凭据组失败", err)
	}
	return nil
}

func (r *secretsGroupRepository) FindByID(id int64) (*model.SecretsGroup, error) {
	var group model.SecretsGroup
	err := r.db.First(&group, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询凭据组失败", err)
	}
	return &group, nil
}

func (r *secretsGroupRepository) FindByName(name string) (*model.SecretsGroup, error) {
	var group model.SecretsGroup
	err := r.db.Where("name = ?", name).First(&group).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询凭据组失败", err)
	}
	return &group, nil
}

func (r *secretsGroupRepository) List(page, pageSize int, keyword string) ([]*model.SecretsGroup, int64, error) {
	var groups []*model.SecretsGroup
	var total int64

	query := r.db.Model(&model.SecretsGroup{})
	if keyword != "" {
		query = query.Where("name LIKE ?", "%"+keyword+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "统计凭据组数量失败", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("name ASC").Find(&groups).Error; err != nil {
		return nil, 0, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询凭据组列表失败", err)
	}

	return groups, total, nil
}

func (r *secretsGroupRepository) Save(group *model.SecretsGroup) error {
	if err := r.db.Save(group).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "保存凭据组失败", err)
	}
	return nil
}

func (r *secretsGroupRepository) Delete(id int64) error {
	if err := r.db.Delete(&model.SecretsGroup{}, id).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "删除凭据组失败", err)
	}
	return nil
}

// CountReferences 统计仍引用该凭据组的Git仓库数量
func (r *secretsGroupRepository) CountReferences(id int64) (int64, error) {
	var count int64
	if err := r.db.Model(&model.GitRepository{}).
		Where("secrets_group_id = ?", id).
		Count(&count).Error; err != nil {
		return 0, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "统计凭据组引用失败", err)
	}
	return count, nil
}
