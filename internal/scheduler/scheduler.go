package scheduler

import (
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"netsource/internal/core/datasource"
	"netsource/internal/pkg/config"
	"netsource/internal/repository"
	"netsource/pkg/constants"
)

// Scheduler 调度器, 按cron表达式周期性为全部仓库入队同步任务
type Scheduler struct {
	cron          *cron.Cron
	logger        *zap.Logger
	coord         *datasource.Coordinator
	repoRepo      repository.GitRepositoryRepository
	concurrency   int
	cronSchedules map[string]cron.EntryID // 存储任务ID，便于管理
}

// NewScheduler 创建调度器
func NewScheduler(coord *datasource.Coordinator, repoRepo repository.GitRepositoryRepository, logger *zap.Logger, cfg *config.Config) *Scheduler {
	// 创建 cron 实例（带秒级支持）
	c := cron.New(cron.WithSeconds())

	return &Scheduler{
		cron:          c,
		logger:        logger,
		coord:         coord,
		repoRepo:      repoRepo,
		concurrency:   cfg.Git.GetSyncConcurrency(),
		cronSchedules: make(map[string]cron.EntryID),
	}
}

// Start 启动调度器
func (s *Scheduler) Start(cfg *config.Config) error {
	log := s.logger.Sugar()

	log.Info("启动定时任务调度器...")

	// 获取配置的 cron 表达式，默认每天凌晨2点执行
	// cron 表达式格式: 秒 分 时 日 月 周
	cronExpr := cfg.Git.Cron
	if cronExpr == "" {
		cronExpr = constants.DefaultSyncCron
		log.Warn("未配置git.cron，使用默认值", zap.String("cron", cronExpr))
	}

	entryID, err := s.cron.AddFunc(cronExpr, func() {
		log.Info("执行定时任务: Git数据源全量同步")
		if err := s.SyncAll(); err != nil {
			log.Errorf("Git数据源同步任务执行失败: %v", err)
		}
	})

	if err != nil {
		log.Errorf("注册Git数据源同步任务失败: cron=%v err=%v", cronExpr, err)
		return err
	}

	s.cronSchedules["git_sync"] = entryID
	log.Infof("Git数据源同步任务已注册: %s entry_id=%d", cronExpr, entryID)

	// 启动 cron
	s.cron.Start()
	log.Info("定时任务调度器启动成功")

	return nil
}

// Stop 停止调度器
func (s *Scheduler) Stop() {
	s.logger.Info("正在停止定时任务调度器...")

	// 停止 cron（等待正在执行的任务完成）
	ctx := s.cron.Stop()
	<-ctx.Done()

	s.logger.Info("定时任务调度器已停止")
}

// SyncAll 为全部仓库入队同步任务（也用于手动触发）
func (s *Scheduler) SyncAll() error {
	repos, err := s.repoRepo.ListAll()
	if err != nil {
		return err
	}

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for _, repo := range repos {
		repo := repo
		g.Go(func() error {
			if _, err := s.coord.Sync(repo, constants.DefaultRequester, false); err != nil {
				// 单个仓库入队失败不中断其他仓库
				s.logger.Error("入队同步任务失败",
					zap.Int64("repository_id", repo.ID),
					zap.String("slug", repo.Slug),
					zap.Error(err))
			}
			return nil
		})
	}
	return g.Wait()
}
