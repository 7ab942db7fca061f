package model

const SecretsGroupTableName = "secrets_groups"

// SecretsGroup 凭据组（敏感字段加密存储）
//
// 说明：
// - encrypted_data: AES-GCM(base64) 密文, 明文为 {"username":..., "token":...}
type SecretsGroup struct {
	BaseModel
	Name          string `gorm:"size:128;not null;uniqueIndex" json:"name"`
	Description   *string `gorm:"type:text" json:"description"`
	EncryptedData string `gorm:"column:encrypted_data;type:longtext;not null" json:"-"`
}

func (SecretsGroup) TableName() string {
	return SecretsGroupTableName
}
