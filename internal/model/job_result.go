package model

import (
	"time"

	"gorm.io/datatypes"
)

const JobResultTableName = "job_results"

// JobResult 一次同步任务的记录, 由任务执行器负责推进状态
type JobResult struct {
	BaseModel
	TaskName     string         `gorm:"column:task_name;size:128;not null;index" json:"task_name"`
	RepositoryID int64          `gorm:"column:repository_id;not null;index" json:"repository_id"`
	TaskKwargs   datatypes.JSON `gorm:"column:task_kwargs;type:json" json:"task_kwargs"`
	Status       string         `gorm:"size:16;not null;default:pending;index" json:"status"`
	Requester    string         `gorm:"size:64;not null;default:''" json:"requester"`
	Summary      *string        `gorm:"type:text" json:"summary"`
	StartedAt    *time.Time     `gorm:"column:started_at" json:"started_at"`
	CompletedAt  *time.Time     `gorm:"column:completed_at" json:"completed_at"`
}

func (JobResult) TableName() string {
	return JobResultTableName
}
