package dto

// CreateGitRepositoryRequest 创建Git数据源仓库请求
type CreateGitRepositoryRequest struct {
	Name             string   `json:"name" binding:"required,max=100"`
	Slug             string   `json:"slug" binding:"omitempty,max=100"` // 可选：不传时由name派生
	RemoteURL        string   `json:"remote_url" binding:"required,url"`
	Branch           string   `json:"branch" binding:"omitempty,max=100"` // 可选：默认main
	SecretsGroupID   *int64   `json:"secrets_group_id"`
	ProvidedContents []string `json:"provided_contents"`
}

// UpdateGitRepositoryRequest 更新Git数据源仓库请求
// slug创建后不可修改，传入与当前不同的值会被拒绝
type UpdateGitRepositoryRequest struct {
	ID               int64     `json:"id" binding:"required"` // 必填：要更新的仓库ID
	Name             *string   `json:"name" binding:"omitempty,max=100"`
	RemoteURL        *string   `json:"remote_url" binding:"omitempty,url"`
	Branch           *string   `json:"branch" binding:"omitempty,max=100"`
	SecretsGroupID   *int64    `json:"secrets_group_id"`
	ProvidedContents *[]string `json:"provided_contents"`
}

// GitRepositoryResponse Git数据源仓库响应
type GitRepositoryResponse struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Slug             string   `json:"slug"`
	RemoteURL        string   `json:"remote_url"`
	Branch           string   `json:"branch"`
	CurrentHead      string   `json:"current_head"`
	SecretsGroupID   *int64   `json:"secrets_group_id"`
	SecretsGroupName *string  `json:"secrets_group_name,omitempty"`
	ProvidedContents []string `json:"provided_contents"`
	CreatedAt        string   `json:"created_at"`
	UpdatedAt        string   `json:"updated_at"`
}

// GitRepositoryListQuery 仓库列表查询参数
type GitRepositoryListQuery struct {
	PageQuery // 分页参数（page, page_size, keyword）
}

// CloneGitRepositoryRequest 克隆仓库请求
// branch与head均不传时沿用源仓库当前分支与head；
// 只传head不传branch为非法组合
type CloneGitRepositoryRequest struct {
	ID     int64  `json:"id" binding:"required"` // 必填：源仓库ID
	Branch string `json:"branch" binding:"omitempty,max=100"`
	Head   string `json:"head" binding:"omitempty,max=48"`
}
