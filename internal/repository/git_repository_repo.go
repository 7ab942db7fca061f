package repository

import (
	"gorm.io/gorm"

	"netsource/internal/model"
	pkgErrors "netsource/pkg/errors"
)

type GitRepositoryRepository interface {
	Create(repo *model.GitRepository) error
	FindByID(id int64) (*model.GitRepository, error)
	FindBySlug(slug string) (*model.GitRepository, error)
	List(page, pageSize int, keyword string) ([]*model.GitRepository, int64, error)
	ListAll() ([]*model.GitRepository, error)
	ListByRemoteURL(remoteURL string, excludeID int64) ([]*model.GitRepository, error)
	Save(repo *model.GitRepository) error
	UpdateHead(id int64, head string) error
	Delete(id int64) error
}

type gitRepositoryRepository struct {
	db *gorm.DB
}

func NewGitRepositoryRepository(db *gorm.DB) GitRepositoryRepository {
	return &gitRepositoryRepository{db: db}
}

func (r *gitRepositoryRepository) Create(repo *model.GitRepository) error {
	if err := r.db.Create(repo).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建Git仓库失败", err)
	}
	return nil
}

func (r *gitRepositoryRepository) FindByID(id int64) (*model.GitRepository, error) {
	var repo model.GitRepository
	err := r.db.Preload("SecretsGroup").First(&repo, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询Git仓库失败", err)
	}
	return &repo, nil
}

func (r *gitRepositoryRepository) FindBySlug(slug string) (*model.GitRepository, error) {
	var repo model.GitRepository
	err := r.db.Where("slug = ?", slug).First(&repo).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询Git仓库失败", err)
	}
	return &repo, nil
}

func (r *gitRepositoryRepository) List(page, pageSize int, keyword string) ([]*model.GitRepository, int64, error) {
	var repos []*model.GitRepository
	var total int64

	query := r.db.Model(&model.GitRepository{}).Preload("SecretsGroup")

	if keyword != "" {
		query = query.Where("name LIKE ? OR slug LIKE ? OR remote_url LIKE ?",
			"%"+keyword+"%", "%"+keyword+"%", "%"+keyword+"%")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "统计Git仓库数量失败", err)
	}

	// 显式按名称排序, 不依赖默认顺序
	offset := (page - 1) * pageSize
	if err := query.Offset(offset).Limit(pageSize).Order("name ASC").Find(&repos).Error; err != nil {
		return nil, 0, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询Git仓库列表失败", err)
	}

	return repos, total, nil
}

func (r *gitRepositoryRepository) ListAll() ([]*model.GitRepository, error) {
	var repos []*model.GitRepository
	if err := r.db.Preload("SecretsGroup").Order("name ASC").Find(&repos).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询Git仓库列表失败", err)
	}
	return repos, nil
}

// ListByRemoteURL 查询同一远程地址下的其他仓库, 用于内容重叠检查
func (r *gitRepositoryRepository) ListByRemoteURL(remoteURL string, excludeID int64) ([]*model.GitRepository, error) {
	var repos []*model.GitRepository
	query := r.db.Where("remote_url = ?", remoteURL)
	if excludeID > 0 {
		query = query.Where("id != ?", excludeID)
	}
	if err := query.Order("id ASC").Find(&repos).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询同远程地址仓库失败", err)
	}
	return repos, nil
}

// Save 全量写入, current_head 的清空与其他字段同一条UPDATE落库
func (r *gitRepositoryRepository) Save(repo *model.GitRepository) error {
	if err := r.db.Save(repo).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "保存Git仓库失败", err)
	}
	return nil
}

func (r *gitRepositoryRepository) UpdateHead(id int64, head string) error {
	if err := r.db.Model(&model.GitRepository{}).Where("id = ?", id).
		UpdateColumn("current_head", head).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新current_head失败", err)
	}
	return nil
}

func (r *gitRepositoryRepository) Delete(id int64) error {
	if err := r.db.Delete(&model.GitRepository{}, id).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "删除Git仓库失败", err)
	}
	return nil
}
