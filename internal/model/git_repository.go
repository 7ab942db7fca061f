package model

import (
	"encoding/json"
	"path/filepath"
	"strings"

	"gorm.io/datatypes"
)

const GitRepositoryTableName = "git_repositories"

// GitRepository 作为外部配置数据源的Git仓库
//
// 说明：
// - slug 创建时生成, 之后不可变, 同时作为本地缓存目录名
// - current_head 为最近一次同步到的commit, 远程地址或分支变更时清空
// - provided_contents: JSON数组, 标记该仓库提供哪些内容类型
type GitRepository struct {
	BaseModel
	Name             string         `gorm:"size:150;not null;uniqueIndex" json:"name"`
	Slug             string         `gorm:"size:150;not null;uniqueIndex" json:"slug"`
	RemoteURL        string         `gorm:"column:remote_url;size:500;not null;index" json:"remote_url"`
	Branch           string         `gorm:"size:100;not null;default:main" json:"branch"`
	CurrentHead      string         `gorm:"column:current_head;size:48;not null;default:''" json:"current_head"`
	SecretsGroupID   *int64         `gorm:"column:secrets_group_id;index" json:"secrets_group_id"`
	ProvidedContents datatypes.JSON `gorm:"column:provided_contents;type:json" json:"provided_contents"`

	// Relations
	SecretsGroup *SecretsGroup `gorm:"foreignKey:SecretsGroupID" json:"secrets_group,omitempty"`
}

func (GitRepository) TableName() string {
	return GitRepositoryTableName
}

// ContentKinds 解码provided_contents
func (r *GitRepository) ContentKinds() []string {
	if len(r.ProvidedContents) == 0 {
		return nil
	}
	var kinds []string
	if err := json.Unmarshal(r.ProvidedContents, &kinds); err != nil {
		return nil
	}
	return kinds
}

// SetContentKinds 编码provided_contents
func (r *GitRepository) SetContentKinds(kinds []string) {
	if kinds == nil {
		kinds = []string{}
	}
	data, _ := json.Marshal(kinds)
	r.ProvidedContents = datatypes.JSON(data)
}

// FilesystemPath 本地缓存目录, 以slug为键挂在root之下
func (r *GitRepository) FilesystemPath(root string) string {
	return filepath.Join(root, r.Slug)
}

// GitRepositoryCSVHeader CSV导出列, 显式声明, 与 CSVRow 一一对应
var GitRepositoryCSVHeader = []string{
	"name", "slug", "remote_url", "branch", "current_head", "secrets_group", "provided_contents",
}

// CSVRow 导出为一行CSV字段
func (r *GitRepository) CSVRow() []string {
	secretsGroup := ""
	if r.SecretsGroup != nil {
		secretsGroup = r.SecretsGroup.Name
	}
	return []string{
		r.Name,
		r.Slug,
		r.RemoteURL,
		r.Branch,
		r.CurrentHead,
		secretsGroup,
		strings.Join(r.ContentKinds(), ","),
	}
}
