package dto

// SyncGitRepositoryRequest 触发同步请求
type SyncGitRepositoryRequest struct {
	ID        int64  `json:"id" binding:"required"` // 必填：仓库ID
	DryRun    bool   `json:"dry_run"`               // 可选：仅比较差异，不更新本地缓存
	Requester string `json:"requester" binding:"omitempty,max=100"`
}

// JobResultResponse 同步任务响应
type JobResultResponse struct {
	ID           int64   `json:"id"`
	TaskName     string  `json:"task_name"`
	RepositoryID int64   `json:"repository_id"`
	Status       string  `json:"status"`
	StatusLabel  string  `json:"status_label"`
	Requester    string  `json:"requester"`
	Summary      *string `json:"summary"`
	StartedAt    *string `json:"started_at"`
	CompletedAt  *string `json:"completed_at"`
	CreatedAt    string  `json:"created_at"`
}
