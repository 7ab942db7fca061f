package datasource

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"netsource/internal/model"
	"netsource/pkg/constants"
)

func newWorkerFixture(t *testing.T) (*fixture, *Worker, *model.GitRepository) {
	fx := newFixture()

	repo := newRepo("templates", "https://git.example.com/r.git")
	require.NoError(t, fx.coord.Validate(repo, true))
	require.NoError(t, fx.repos.Create(repo))

	worker := NewWorker(fx.coord, time.Second, zap.NewNop())
	return fx, worker, repo
}

// runDispatch 执行一轮派发并等待任务收尾
func runDispatch(w *Worker) {
	w.dispatch(context.Background())
	w.wg.Wait()
}

func TestWorkerExecutesSync(t *testing.T) {
	fx, worker, repo := newWorkerFixture(t)

	job, err := fx.coord.Sync(repo, "alice", false)
	require.NoError(t, err)

	runDispatch(worker)

	done, err := fx.jobs.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusSuccess, done.Status)
	require.NotNil(t, done.Summary)
	assert.Contains(t, *done.Summary, fx.git.tip)
	assert.NotNil(t, done.StartedAt)
	assert.NotNil(t, done.CompletedAt)

	// current_head 已推进到检出的commit
	persisted, err := fx.repos.FindByID(repo.ID)
	require.NoError(t, err)
	assert.Equal(t, fx.git.tip, persisted.CurrentHead)
}

func TestWorkerDryRunDoesNotTouchHead(t *testing.T) {
	fx, worker, repo := newWorkerFixture(t)
	fx.git.localHead = "old0000000000000000000000000000000000000"

	job, err := fx.coord.Sync(repo, "alice", true)
	require.NoError(t, err)

	runDispatch(worker)

	done, err := fx.jobs.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusSuccess, done.Status)
	require.NotNil(t, done.Summary)
	assert.Contains(t, *done.Summary, "需要同步")

	// 演练不触碰工作区与head
	assert.Empty(t, fx.git.checkedOut)
	persisted, err := fx.repos.FindByID(repo.ID)
	require.NoError(t, err)
	assert.Empty(t, persisted.CurrentHead)
}

func TestWorkerDryRunUpToDate(t *testing.T) {
	fx, worker, repo := newWorkerFixture(t)
	fx.git.localHead = fx.git.tip

	job, err := fx.coord.Sync(repo, "alice", true)
	require.NoError(t, err)

	runDispatch(worker)

	done, err := fx.jobs.FindByID(job.ID)
	require.NoError(t, err)
	require.NotNil(t, done.Summary)
	assert.Contains(t, *done.Summary, "已是最新")
}

func TestWorkerSerializesPerRepository(t *testing.T) {
	fx, worker, repo := newWorkerFixture(t)

	first, err := fx.coord.Sync(repo, "alice", false)
	require.NoError(t, err)
	second, err := fx.coord.Sync(repo, "bob", false)
	require.NoError(t, err)

	// 第一个任务标记为执行中, 模拟跨实例的在途同步
	claimed, err := fx.jobs.ClaimRunning(first.ID)
	require.NoError(t, err)
	require.True(t, claimed)

	runDispatch(worker)

	// 同一仓库已有执行中任务, 第二个任务保持pending
	pending, err := fx.jobs.FindByID(second.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusPending, pending.Status)
	assert.Empty(t, fx.git.checkedOut)

	// 在途任务结束后下一轮派发正常执行
	require.NoError(t, fx.jobs.Finish(first.ID, constants.JobStatusSuccess, "done"))
	runDispatch(worker)

	done, err := fx.jobs.FindByID(second.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusSuccess, done.Status)
}

func TestWorkerMarksFailureWithSummary(t *testing.T) {
	fx, worker, repo := newWorkerFixture(t)
	fx.git.checkoutErr = assert.AnError

	job, err := fx.coord.Sync(repo, "alice", false)
	require.NoError(t, err)

	runDispatch(worker)

	done, err := fx.jobs.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, done.Status)
	require.NotNil(t, done.Summary)
	assert.Contains(t, *done.Summary, "同步失败")

	// 失败不推进head
	persisted, err := fx.repos.FindByID(repo.ID)
	require.NoError(t, err)
	assert.Empty(t, persisted.CurrentHead)
}

func TestWorkerFailsJobForMissingRepository(t *testing.T) {
	fx, worker, repo := newWorkerFixture(t)

	job, err := fx.coord.Sync(repo, "alice", false)
	require.NoError(t, err)
	require.NoError(t, fx.repos.Delete(repo.ID))

	runDispatch(worker)

	done, err := fx.jobs.FindByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.JobStatusFailed, done.Status)
}
