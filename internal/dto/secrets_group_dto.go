package dto

// CreateSecretsGroupRequest 创建凭据组请求
type CreateSecretsGroupRequest struct {
	Name        string  `json:"name" binding:"required,max=100"`
	Description *string `json:"description"`
	Username    string  `json:"username" binding:"omitempty,max=100"`
	Token       string  `json:"token" binding:"required"`
}

// UpdateSecretsGroupRequest 更新凭据组请求
type UpdateSecretsGroupRequest struct {
	ID          int64   `json:"id" binding:"required"` // 必填：凭据组ID
	Name        *string `json:"name" binding:"omitempty,max=100"`
	Description *string `json:"description"`
	Username    *string `json:"username" binding:"omitempty,max=100"`
	Token       *string `json:"token"` // 传入时整体替换凭据内容
}

// SecretsGroupResponse 凭据组响应，不回传任何凭据内容
type SecretsGroupResponse struct {
	ID          int64   `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	CreatedAt   string  `json:"created_at"`
	UpdatedAt   string  `json:"updated_at"`
}
