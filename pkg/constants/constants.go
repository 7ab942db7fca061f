package constants

import "fmt"

// 同步任务族, 同一前缀覆盖全部 GitRepository 任务（拉取/演练等）
const (
	TaskFamilyGitRepository = "datasource.GitRepository"
	TaskGitRepositorySync   = "datasource.GitRepository.sync"
	TaskGitRepositoryDryRun = "datasource.GitRepository.dry_run"
)

// JobStatus 同步任务状态
const (
	JobStatusPending = "pending"
	JobStatusRunning = "running"
	JobStatusSuccess = "success"
	JobStatusFailed  = "failed"
)

// 内容类型, 标记仓库提供哪类配置数据
const (
	ContentKindConfigContexts  = "config_contexts"
	ContentKindExportTemplates = "export_templates"
	ContentKindJobs            = "jobs"
	ContentKindGraphQLQueries  = "graphql_queries"
)

// ContentKinds 全部已知内容类型
var ContentKinds = []string{
	ContentKindConfigContexts,
	ContentKindExportTemplates,
	ContentKindJobs,
	ContentKindGraphQLQueries,
}

// KnownContentKind 判断内容类型是否已注册
func KnownContentKind(kind string) bool {
	for _, k := range ContentKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Git 默认值
const (
	DefaultBranch       = "main"
	DefaultRequester    = "system"
	MaxHeadLength       = 48 // commit hash 列宽
	DefaultGitRoot      = "/var/lib/netsource/git"
	DefaultSyncCron     = "0 0 2 * * *" // 每天凌晨2点
	DefaultShallowDepth = 1
)

// JobStatusLabel 任务状态显示名
func JobStatusLabel(status string) string {
	switch status {
	case JobStatusPending:
		return "Pending"
	case JobStatusRunning:
		return "Running"
	case JobStatusSuccess:
		return "Success"
	case JobStatusFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%s)", status)
	}
}
