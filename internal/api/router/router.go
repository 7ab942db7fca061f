package router

import (
	"netsource/internal/api/handler"
	"netsource/internal/api/middleware"
	"netsource/internal/core/datasource"
	"netsource/internal/pkg/config"
	"netsource/internal/repository"
	"netsource/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Setup 设置路由
func Setup(cfg *config.Config, coord *datasource.Coordinator, logger *zap.Logger) *gin.Engine {
	// 设置Gin模式
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.LoggerMiddleware())
	r.Use(middleware.CORSMiddleware())

	// 健康检查
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// 获取数据库连接
	db := cfg.DB.(*gorm.DB)

	// 初始化Repository
	gitRepoRepo := repository.NewGitRepositoryRepository(db)
	jobRepo := repository.NewJobResultRepository(db)
	secretsRepo := repository.NewSecretsGroupRepository(db)

	// 初始化Service
	gitRepoService := service.NewGitRepositoryService(gitRepoRepo, jobRepo, coord, logger)
	secretsService := service.NewSecretsGroupService(secretsRepo, cfg.Crypto.AESKey)

	// 初始化Handler
	gitRepoHandler := handler.NewGitRepositoryHandler(gitRepoService)
	secretsHandler := handler.NewSecretsGroupHandler(secretsService)

	// API v1
	v1 := r.Group("/api/v1")
	{
		// Git数据源仓库管理
		groupRepo := v1.Group("/git-repository")
		groupRepos := v1.Group("/git-repositories")
		{
			groupRepo.POST("", gitRepoHandler.Create)                          // 创建仓库
			groupRepos.GET("", gitRepoHandler.List)                            // 列表查询
			groupRepos.GET("/export", gitRepoHandler.Export)                   // CSV导出（静态列集合）
			groupRepo.GET("/:id", gitRepoHandler.GetByID)                      // 获取详情
			groupRepo.PUT("", gitRepoHandler.Update)                           // 更新仓库（JSON包含id）
			groupRepo.DELETE("/:id", gitRepoHandler.Delete)                    // 删除仓库（连带同步历史与本地缓存）
			groupRepo.POST("/sync", gitRepoHandler.Sync)                       // 触发同步（支持dry_run）
			groupRepo.GET("/:id/sync", gitRepoHandler.ListSyncResults)         // 同步历史
			groupRepo.GET("/:id/sync/latest", gitRepoHandler.LatestSyncResult) // 最近一次同步
			groupRepo.POST("/clone", gitRepoHandler.Clone)                     // 克隆为新记录
		}

		// 凭据组管理
		groupSecrets := v1.Group("/secrets-group")
		groupSecretsList := v1.Group("/secrets-groups")
		{
			groupSecrets.POST("", secretsHandler.Create)       // 创建凭据组
			groupSecretsList.GET("", secretsHandler.List)      // 列表查询
			groupSecrets.GET("/:id", secretsHandler.GetByID)   // 获取详情
			groupSecrets.PUT("", secretsHandler.Update)        // 更新凭据组
			groupSecrets.DELETE("/:id", secretsHandler.Delete) // 删除凭据组（被引用时拒绝）
		}
	}

	return r
}
