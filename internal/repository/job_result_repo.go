package repository

import (
	"time"

	"gorm.io/gorm"

	"netsource/internal/model"
	"netsource/pkg/constants"
	pkgErrors "netsource/pkg/errors"
)

type JobResultRepository interface {
	Create(job *model.JobResult) error
	FindByID(id int64) (*model.JobResult, error)
	// FindLatest 按 (创建时间, id) 降序取任务族下该仓库最近的一次任务
	FindLatest(repositoryID int64, taskPrefix string) (*model.JobResult, error)
	ListPending(limit int) ([]*model.JobResult, error)
	ListByRepository(repositoryID int64, page, pageSize int) ([]*model.JobResult, int64, error)
	// ClaimRunning 以 pending→running 的条件更新抢占任务, 返回是否抢到
	ClaimRunning(id int64) (bool, error)
	Finish(id int64, status string, summary string) error
	HasRunning(repositoryID int64) (bool, error)
	DeleteByRepository(repositoryID int64) error
}

type jobResultRepository struct {
	db *gorm.DB
}

func NewJobResultRepository(db *gorm.DB) JobResultRepository {
	return &jobResultRepository{db: db}
}

func (r *jobResultRepository) Create(job *model.JobResult) error {
	if err := r.db.Create(job).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建同步任务失败", err)
	}
	return nil
}

func (r *jobResultRepository) FindByID(id int64) (*model.JobResult, error) {
	var job model.JobResult
	err := r.db.First(&job, id).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询同步任务失败", err)
	}
	return &job, nil
}

func (r *jobResultRepository) FindLatest(repositoryID int64, taskPrefix string) (*model.JobResult, error) {
	var job model.JobResult
	err := r.db.Where("repository_id = ? AND task_name LIKE ?", repositoryID, taskPrefix+"%").
		Order("created_at DESC, id DESC").
		First(&job).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgErrors.ErrRecordNotFound
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询最近同步任务失败", err)
	}
	return &job, nil
}

func (r *jobResultRepository) ListPending(limit int) ([]*model.JobResult, error) {
	var jobs []*model.JobResult
	if err := r.db.Where("status = ?", constants.JobStatusPending).
		Order("created_at ASC, id ASC").
		Limit(limit).
		Find(&jobs).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询待执行任务失败", err)
	}
	return jobs, nil
}

func (r *jobResultRepository) ListByRepository(repositoryID int64, page, pageSize int) ([]*model.JobResult, int64, error) {
	var jobs []*model.JobResult
	var total int64

	query := r.db.Model(&model.JobResult{}).Where("repository_id = ?", repositoryID)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "统计同步任务数量失败", err)
	}

	offset := (page - 1) * pageSize
	if err := query.Order("created_at DESC, id DESC").Offset(offset).Limit(pageSize).Find(&jobs).Error; err != nil {
		return nil, 0, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询同步任务列表失败", err)
	}

	return jobs, total, nil
}

func (r *jobResultRepository) ClaimRunning(id int64) (bool, error) {
	now := time.Now()
	result := r.db.Model(&model.JobResult{}).
		Where("id = ? AND status = ?", id, constants.JobStatusPending).
		Updates(map[string]interface{}{
			"status":     constants.JobStatusRunning,
			"started_at": &now,
		})
	if result.Error != nil {
		return false, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "抢占同步任务失败", result.Error)
	}
	return result.RowsAffected > 0, nil
}

func (r *jobResultRepository) Finish(id int64, status string, summary string) error {
	now := time.Now()
	if err := r.db.Model(&model.JobResult{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":       status,
			"summary":      summary,
			"completed_at": &now,
		}).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "更新同步任务状态失败", err)
	}
	return nil
}

func (r *jobResultRepository) HasRunning(repositoryID int64) (bool, error) {
	var count int64
	if err := r.db.Model(&model.JobResult{}).
		Where("repository_id = ? AND status = ?", repositoryID, constants.JobStatusRunning).
		Count(&count).Error; err != nil {
		return false, pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "查询执行中任务失败", err)
	}
	return count > 0, nil
}

func (r *jobResultRepository) DeleteByRepository(repositoryID int64) error {
	if err := r.db.Where("repository_id = ?", repositoryID).
		Delete(&model.JobResult{}).Error; err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "删除仓库同步任务失败", err)
	}
	return nil
}
