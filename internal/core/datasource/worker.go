package datasource

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"netsource/internal/model"
	"netsource/internal/pkg/gitops"
	"netsource/pkg/constants"
)

// Worker 同步任务执行器, 周期扫描pending任务并异步执行
//
// 同一仓库同一时刻至多一个任务在执行: 内存active表挡住本实例内的
// 并发派发, 数据库running状态挡住跨扫描周期的重复认领。
type Worker struct {
	coord    *Coordinator
	interval time.Duration
	logger   *zap.Logger

	mu     sync.Mutex
	active map[int64]struct{} // 执行中任务的仓库ID

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

const dispatchBatchSize = 10

// NewWorker 创建同步执行器
func NewWorker(coord *Coordinator, interval time.Duration, logger *zap.Logger) *Worker {
	return &Worker{
		coord:    coord,
		interval: interval,
		logger:   logger,
		active:   make(map[int64]struct{}),
	}
}

// Start 启动扫描循环
func (w *Worker) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()

		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.logger.Info("同步执行器已启动", zap.Duration("interval", w.interval))
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.dispatch(ctx)
			}
		}
	}()
}

// Stop 停止扫描并等待执行中任务收尾
func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("同步执行器已停止")
}

// dispatch 扫描pending任务, 逐个认领后异步执行
func (w *Worker) dispatch(ctx context.Context) {
	jobs, err := w.coord.jobRepo.ListPending(dispatchBatchSize)
	if err != nil {
		w.logger.Error("扫描待执行任务失败", zap.Error(err))
		return
	}

	for _, job := range jobs {
		if !w.tryAcquire(job.RepositoryID) {
			continue
		}

		running, err := w.coord.jobRepo.HasRunning(job.RepositoryID)
		if err != nil || running {
			w.release(job.RepositoryID)
			continue
		}

		// 乐观认领, 失败说明已被其他实例拿走
		claimed, err := w.coord.jobRepo.ClaimRunning(job.ID)
		if err != nil || !claimed {
			w.release(job.RepositoryID)
			continue
		}

		w.wg.Add(1)
		go func(job *model.JobResult) {
			defer w.wg.Done()
			defer w.release(job.RepositoryID)
			w.execute(ctx, job)
		}(job)
	}
}

func (w *Worker) tryAcquire(repositoryID int64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, busy := w.active[repositoryID]; busy {
		return false
	}
	w.active[repositoryID] = struct{}{}
	return true
}

func (w *Worker) release(repositoryID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.active, repositoryID)
}

// execute 执行单个同步任务并写回终态
func (w *Worker) execute(ctx context.Context, job *model.JobResult) {
	repo, err := w.coord.repoRepo.FindByID(job.RepositoryID)
	if err != nil {
		w.finish(job, constants.JobStatusFailed, fmt.Sprintf("加载仓库失败: %v", err))
		return
	}

	auth, err := w.coord.AuthFor(repo)
	if err != nil {
		w.finish(job, constants.JobStatusFailed, fmt.Sprintf("加载凭据失败: %v", err))
		return
	}

	switch job.TaskName {
	case constants.TaskGitRepositoryDryRun:
		w.executeDryRun(ctx, job, repo, auth)
	case constants.TaskGitRepositorySync:
		w.executeSync(ctx, job, repo, auth)
	default:
		w.finish(job, constants.JobStatusFailed, fmt.Sprintf("未知任务类型: %s", job.TaskName))
	}
}

// executeDryRun 只比较远端tip与本地缓存, 不修改任何持久状态
func (w *Worker) executeDryRun(ctx context.Context, job *model.JobResult, repo *model.GitRepository, auth *gitops.Auth) {
	remoteTip, err := w.coord.git.RemoteTip(ctx, repo.RemoteURL, repo.Branch, auth)
	if err != nil {
		w.finish(job, constants.JobStatusFailed, fmt.Sprintf("查询远端失败: %v", err))
		return
	}

	localHead, err := w.coord.git.LocalHead(repo.FilesystemPath(w.coord.cfg.GitRoot))
	if err != nil {
		localHead = ""
	}

	var summary string
	if localHead == remoteTip {
		summary = fmt.Sprintf("已是最新: %s", remoteTip)
	} else {
		summary = fmt.Sprintf("本地 %s 落后于远端 %s, 需要同步", shortHash(localHead), shortHash(remoteTip))
	}
	w.finish(job, constants.JobStatusSuccess, summary)
}

// executeSync 拉取检出分支tip并更新 current_head
func (w *Worker) executeSync(ctx context.Context, job *model.JobResult, repo *model.GitRepository, auth *gitops.Auth) {
	path := repo.FilesystemPath(w.coord.cfg.GitRoot)
	head, changed, err := w.coord.git.EnsureCheckout(ctx, repo.RemoteURL, path, repo.Branch, "", auth)
	if err != nil {
		w.finish(job, constants.JobStatusFailed, fmt.Sprintf("同步失败: %v", err))
		return
	}

	if err := w.coord.repoRepo.UpdateHead(repo.ID, head); err != nil {
		w.finish(job, constants.JobStatusFailed, fmt.Sprintf("更新head失败: %v", err))
		return
	}

	var summary string
	if changed {
		summary = fmt.Sprintf("已同步到 %s", head)
	} else {
		summary = fmt.Sprintf("已是最新: %s", head)
	}
	w.finish(job, constants.JobStatusSuccess, summary)
}

func (w *Worker) finish(job *model.JobResult, status, summary string) {
	if err := w.coord.jobRepo.Finish(job.ID, status, summary); err != nil {
		w.logger.Error("写回任务结果失败",
			zap.Int64("job_id", job.ID), zap.String("status", status), zap.Error(err))
		return
	}
	w.logger.Info("同步任务完成",
		zap.Int64("job_id", job.ID),
		zap.Int64("repository_id", job.RepositoryID),
		zap.String("task", job.TaskName),
		zap.String("status", status),
		zap.String("summary", summary))
}

func shortHash(h string) string {
	if h == "" {
		return "(无缓存)"
	}
	if len(h) > 12 {
		return h[:12]
	}
	return h
}
