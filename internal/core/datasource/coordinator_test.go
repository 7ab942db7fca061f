package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"netsource/internal/model"
	"netsource/internal/pkg/gitops"
	"netsource/pkg/constants"
	pkgErrors "netsource/pkg/errors"
	"netsource/pkg/utils"
)

const testAESKey = "0123456789abcdef0123456789abcdef"

// fakeRepoStore 内存实现, 替代数据库
type fakeRepoStore struct {
	repos         map[int64]*model.GitRepository
	nextID        int64
	updateHeadErr error
}

func newFakeRepoStore() *fakeRepoStore {
	return &fakeRepoStore{repos: make(map[int64]*model.GitRepository), nextID: 1}
}

func (f *fakeRepoStore) Create(repo *model.GitRepository) error {
	repo.ID = f.nextID
	f.nextID++
	now := time.Now()
	repo.CreatedAt = now
	repo.UpdatedAt = now
	clone := *repo
	f.repos[repo.ID] = &clone
	return nil
}

func (f *fakeRepoStore) FindByID(id int64) (*model.GitRepository, error) {
	repo, ok := f.repos[id]
	if !ok {
		return nil, pkgErrors.ErrRecordNotFound
	}
	clone := *repo
	return &clone, nil
}

func (f *fakeRepoStore) FindBySlug(slug string) (*model.GitRepository, error) {
	for _, repo := range f.repos {
		if repo.Slug == slug {
			clone := *repo
			return &clone, nil
		}
	}
	return nil, pkgErrors.ErrRecordNotFound
}

func (f *fakeRepoStore) List(page, pageSize int, keyword string) ([]*model.GitRepository, int64, error) {
	all, _ := f.ListAll()
	return all, int64(len(all)), nil
}

func (f *fakeRepoStore) ListAll() ([]*model.GitRepository, error) {
	var repos []*model.GitRepository
	for _, repo := range f.repos {
		clone := *repo
		repos = append(repos, &clone)
	}
	sort.Slice(repos, func(i, j int) bool { return repos[i].Name < repos[j].Name })
	return repos, nil
}

func (f *fakeRepoStore) ListByRemoteURL(remoteURL string, excludeID int64) ([]*model.GitRepository, error) {
	var repos []*model.GitRepository
	for _, repo := range f.repos {
		if repo.RemoteURL == remoteURL && repo.ID != excludeID {
			clone := *repo
			repos = append(repos, &clone)
		}
	}
	return repos, nil
}

func (f *fakeRepoStore) Save(repo *model.GitRepository) error {
	if _, ok := f.repos[repo.ID]; !ok {
		return pkgErrors.ErrRecordNotFound
	}
	repo.UpdatedAt = time.Now()
	clone := *repo
	f.repos[repo.ID] = &clone
	return nil
}

func (f *fakeRepoStore) UpdateHead(id int64, head string) error {
	if f.updateHeadErr != nil {
		return f.updateHeadErr
	}
	repo, ok := f.repos[id]
	if !ok {
		return pkgErrors.ErrRecordNotFound
	}
	repo.CurrentHead = head
	return nil
}

func (f *fakeRepoStore) Delete(id int64) error {
	delete(f.repos, id)
	return nil
}

// fakeJobStore 内存实现
type fakeJobStore struct {
	jobs   map[int64]*model.JobResult
	nextID int64
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: make(map[int64]*model.JobResult), nextID: 1}
}

func (f *fakeJobStore) Create(job *model.JobResult) error {
	job.ID = f.nextID
	f.nextID++
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}
	if job.Status == "" {
		job.Status = constants.JobStatusPending
	}
	clone := *job
	f.jobs[job.ID] = &clone
	return nil
}

func (f *fakeJobStore) FindByID(id int64) (*model.JobResult, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, pkgErrors.ErrRecordNotFound
	}
	clone := *job
	return &clone, nil
}

func (f *fakeJobStore) FindLatest(repositoryID int64, taskPrefix string) (*model.JobResult, error) {
	var latest *model.JobResult
	for _, job := range f.jobs {
		if job.RepositoryID != repositoryID || !strings.HasPrefix(job.TaskName, taskPrefix) {
			continue
		}
		if latest == nil ||
			job.CreatedAt.After(latest.CreatedAt) ||
			(job.CreatedAt.Equal(latest.CreatedAt) && job.ID > latest.ID) {
			latest = job
		}
	}
	if latest == nil {
		return nil, pkgErrors.ErrRecordNotFound
	}
	clone := *latest
	return &clone, nil
}

func (f *fakeJobStore) ListPending(limit int) ([]*model.JobResult, error) {
	var jobs []*model.JobResult
	for _, job := range f.jobs {
		if job.Status == constants.JobStatusPending {
			clone := *job
			jobs = append(jobs, &clone)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].CreatedAt.Before(jobs[j].CreatedAt)
		}
		return jobs[i].ID < jobs[j].ID
	})
	if len(jobs) > limit {
		jobs = jobs[:limit]
	}
	return jobs, nil
}

func (f *fakeJobStore) ListByRepository(repositoryID int64, page, pageSize int) ([]*model.JobResult, int64, error) {
	var jobs []*model.JobResult
	for _, job := range f.jobs {
		if job.RepositoryID == repositoryID {
			clone := *job
			jobs = append(jobs, &clone)
		}
	}
	return jobs, int64(len(jobs)), nil
}

func (f *fakeJobStore) ClaimRunning(id int64) (bool, error) {
	job, ok := f.jobs[id]
	if !ok || job.Status != constants.JobStatusPending {
		return false, nil
	}
	now := time.Now()
	job.Status = constants.JobStatusRunning
	job.StartedAt = &now
	return true, nil
}

func (f *fakeJobStore) Finish(id int64, status string, summary string) error {
	job, ok := f.jobs[id]
	if !ok {
		return pkgErrors.ErrRecordNotFound
	}
	now := time.Now()
	job.Status = status
	job.Summary = &summary
	job.CompletedAt = &now
	return nil
}

func (f *fakeJobStore) HasRunning(repositoryID int64) (bool, error) {
	for _, job := range f.jobs {
		if job.RepositoryID == repositoryID && job.Status == constants.JobStatusRunning {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeJobStore) DeleteByRepository(repositoryID int64) error {
	for id, job := range f.jobs {
		if job.RepositoryID == repositoryID {
			delete(f.jobs, id)
		}
	}
	return nil
}

// fakeSecretsStore 内存实现
type fakeSecretsStore struct {
	groups map[int64]*model.SecretsGroup
}

func (f *fakeSecretsStore) Create(group *model.SecretsGroup) error { return nil }
func (f *fakeSecretsStore) FindByID(id int64) (*model.SecretsGroup, error) {
	group, ok := f.groups[id]
	if !ok {
		return nil, pkgErrors.ErrRecordNotFound
	}
	return group, nil
}
func (f *fakeSecretsStore) FindByName(name string) (*model.SecretsGroup, error) {
	return nil, pkgErrors.ErrRecordNotFound
}
func (f *fakeSecretsStore) List(page, pageSize int, keyword string) ([]*model.SecretsGroup, int64, error) {
	return nil, 0, nil
}
func (f *fakeSecretsStore) Save(group *model.SecretsGroup) error { return nil }
func (f *fakeSecretsStore) Delete(id int64) error                { return nil }
func (f *fakeSecretsStore) CountReferences(id int64) (int64, error) {
	return 0, nil
}

// fakeGitClient 记录调用, 可配置失败
type fakeGitClient struct {
	tip          string
	localHead    string
	checkoutErr  error
	checkedOut   []string // 每次EnsureCheckout的path
	removedPaths []string
	lastBranch   string
	lastHead     string
	lastAuth     *gitops.Auth
}

func (f *fakeGitClient) EnsureCheckout(ctx context.Context, remoteURL, path, branch, head string, auth *gitops.Auth) (string, bool, error) {
	f.checkedOut = append(f.checkedOut, path)
	f.lastBranch = branch
	f.lastHead = head
	f.lastAuth = auth
	if f.checkoutErr != nil {
		return "", false, f.checkoutErr
	}
	target := f.tip
	if head != "" {
		target = head
	}
	return target, target != f.localHead, nil
}

func (f *fakeGitClient) RemoteTip(ctx context.Context, remoteURL, branch string, auth *gitops.Auth) (string, error) {
	f.lastAuth = auth
	return f.tip, nil
}

func (f *fakeGitClient) LocalHead(path string) (string, error) {
	if f.localHead == "" {
		return "", gitops.ErrRefNotFound
	}
	return f.localHead, nil
}

func (f *fakeGitClient) RemoveCache(path string) error {
	f.removedPaths = append(f.removedPaths, path)
	return nil
}

type fixture struct {
	coord   *Coordinator
	repos   *fakeRepoStore
	jobs    *fakeJobStore
	secrets *fakeSecretsStore
	git     *fakeGitClient
}

func newFixture() *fixture {
	repos := newFakeRepoStore()
	jobs := newFakeJobStore()
	secrets := &fakeSecretsStore{groups: make(map[int64]*model.SecretsGroup)}
	git := &fakeGitClient{tip: "aaaa000000000000000000000000000000000000"}

	coord := NewCoordinator(repos, jobs, secrets, git, zap.NewNop(), Config{
		GitRoot:       "/tmp/netsource-test",
		AESKey:        testAESKey,
		ReservedSlugs: []string{"admin"},
	})
	return &fixture{coord: coord, repos: repos, jobs: jobs, secrets: secrets, git: git}
}

func newRepo(name, remoteURL string, kinds ...string) *model.GitRepository {
	repo := &model.GitRepository{
		Name:      name,
		RemoteURL: remoteURL,
	}
	repo.SetContentKinds(kinds)
	return repo
}

func TestValidateDerivesSlug(t *testing.T) {
	fx := newFixture()

	repo := newRepo("Golden Config -- prod!", "https://git.example.com/configs.git")
	require.NoError(t, fx.coord.Validate(repo, true))
	assert.Equal(t, "golden_config_prod", repo.Slug)
	assert.Equal(t, constants.DefaultBranch, repo.Branch)

	// 同一名称重复校验派生结果稳定
	again := newRepo("Golden Config -- prod!", "https://git.example.com/other.git")
	require.NoError(t, fx.coord.Validate(again, true))
	assert.Equal(t, repo.Slug, again.Slug)
}

func TestValidateRejectsTakenSlug(t *testing.T) {
	fx := newFixture()

	existing := newRepo("templates", "https://git.example.com/r.git")
	require.NoError(t, fx.coord.Validate(existing, true))
	require.NoError(t, fx.repos.Create(existing))

	// 同名派生出同一slug, 预检直接给出冲突
	dup := newRepo("templates", "https://git.example.com/other.git")
	err := fx.coord.Validate(dup, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgErrors.ErrRecordExists)
}

func TestValidateRejectsOverlongHead(t *testing.T) {
	fx := newFixture()

	repo := newRepo("templates", "https://git.example.com/r.git")
	repo.CurrentHead = strings.Repeat("a", constants.MaxHeadLength+1)
	assert.Error(t, fx.coord.Validate(repo, true))
}

func TestValidateRejectsBadRemoteURL(t *testing.T) {
	fx := newFixture()

	repo := newRepo("repo", "git@git.example.com:org/repo.git")
	err := fx.coord.Validate(repo, true)
	require.Error(t, err)

	repo = newRepo("repo", "ftp://git.example.com/repo.git")
	assert.Error(t, fx.coord.Validate(repo, true))
}

func TestValidateRejectsInvalidAndReservedSlug(t *testing.T) {
	fx := newFixture()

	repo := newRepo("2 fast", "https://git.example.com/r.git")
	err := fx.coord.Validate(repo, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgErrors.ErrInvalidSlug)

	repo = newRepo("Admin", "https://git.example.com/r.git")
	err = fx.coord.Validate(repo, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgErrors.ErrReservedName)

	// 内容类型命名空间恒为保留
	repo = newRepo("Config Contexts", "https://git.example.com/r.git")
	err = fx.coord.Validate(repo, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgErrors.ErrReservedName)
}

func TestValidateSlugImmutable(t *testing.T) {
	fx := newFixture()

	repo := newRepo("templates", "https://git.example.com/r.git")
	require.NoError(t, fx.coord.Validate(repo, true))
	require.NoError(t, fx.repos.Create(repo))

	update, err := fx.repos.FindByID(repo.ID)
	require.NoError(t, err)
	update.Slug = "renamed"
	err = fx.coord.Validate(update, false)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgErrors.ErrImmutableField)
	// 错误消息同时包含当前slug与请求slug
	assert.Contains(t, err.Error(), "templates")
	assert.Contains(t, err.Error(), "renamed")

	// 未传slug视为保持不变
	update, err = fx.repos.FindByID(repo.ID)
	require.NoError(t, err)
	update.Slug = ""
	require.NoError(t, fx.coord.Validate(update, false))
	assert.Equal(t, "templates", update.Slug)
}

func TestValidateHeadInvalidation(t *testing.T) {
	fx := newFixture()

	repo := newRepo("templates", "https://git.example.com/r.git")
	require.NoError(t, fx.coord.Validate(repo, true))
	repo.CurrentHead = "aaaa000000000000000000000000000000000000"
	require.NoError(t, fx.repos.Create(repo))

	// 无关字段变更不动head
	update, _ := fx.repos.FindByID(repo.ID)
	update.Name = "templates v2"
	require.NoError(t, fx.coord.Validate(update, false))
	assert.Equal(t, repo.CurrentHead, update.CurrentHead)

	// 远程地址变更清空head
	update, _ = fx.repos.FindByID(repo.ID)
	update.RemoteURL = "https://git.example.com/moved.git"
	require.NoError(t, fx.coord.Validate(update, false))
	assert.Empty(t, update.CurrentHead)

	// 分支变更清空head
	update, _ = fx.repos.FindByID(repo.ID)
	update.Branch = "develop"
	require.NoError(t, fx.coord.Validate(update, false))
	assert.Empty(t, update.CurrentHead)
}

func TestValidateContentOverlap(t *testing.T) {
	fx := newFixture()

	first := newRepo("first", "https://git.example.com/shared.git",
		constants.ContentKindConfigContexts, constants.ContentKindJobs)
	require.NoError(t, fx.coord.Validate(first, true))
	require.NoError(t, fx.repos.Create(first))

	// 同远程地址重叠内容类型
	second := newRepo("second", "https://git.example.com/shared.git",
		constants.ContentKindJobs)
	err := fx.coord.Validate(second, true)
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgErrors.ErrContentOverlap)

	// 不同远程地址不受限
	elsewhere := newRepo("elsewhere", "https://git.example.com/other.git",
		constants.ContentKindJobs)
	assert.NoError(t, fx.coord.Validate(elsewhere, true))

	// 同远程地址不同内容类型不受限
	disjoint := newRepo("disjoint", "https://git.example.com/shared.git",
		constants.ContentKindExportTemplates)
	assert.NoError(t, fx.coord.Validate(disjoint, true))

	// 自身更新不与自己比较
	self, _ := fx.repos.FindByID(first.ID)
	assert.NoError(t, fx.coord.Validate(self, false))
}

func TestValidateUnknownContentKind(t *testing.T) {
	fx := newFixture()

	repo := newRepo("repo", "https://git.example.com/r.git", "bogus_kind")
	assert.Error(t, fx.coord.Validate(repo, true))
}

func TestSyncEnqueue(t *testing.T) {
	fx := newFixture()

	repo := newRepo("templates", "https://git.example.com/r.git")
	require.NoError(t, fx.coord.Validate(repo, true))
	require.NoError(t, fx.repos.Create(repo))

	job, err := fx.coord.Sync(repo, "alice", false)
	require.NoError(t, err)
	assert.Equal(t, constants.TaskGitRepositorySync, job.TaskName)
	assert.Equal(t, constants.JobStatusPending, job.Status)
	assert.Equal(t, "alice", job.Requester)

	var kwargs map[string]interface{}
	require.NoError(t, json.Unmarshal(job.TaskKwargs, &kwargs))
	assert.EqualValues(t, repo.ID, kwargs["repository"])
	assert.Equal(t, false, kwargs["dry_run"])

	// dry-run使用独立任务名, 请求人缺省为system
	dry, err := fx.coord.Sync(repo, "", true)
	require.NoError(t, err)
	assert.Equal(t, constants.TaskGitRepositoryDryRun, dry.TaskName)
	assert.Equal(t, constants.DefaultRequester, dry.Requester)

	// 两个任务名共享同一任务族前缀
	assert.True(t, strings.HasPrefix(job.TaskName, constants.TaskFamilyGitRepository))
	assert.True(t, strings.HasPrefix(dry.TaskName, constants.TaskFamilyGitRepository))
}

func TestLatestSyncResult(t *testing.T) {
	fx := newFixture()

	repo := newRepo("templates", "https://git.example.com/r.git")
	require.NoError(t, fx.repos.Create(repo))
	other := newRepo("other", "https://git.example.com/o.git")
	require.NoError(t, fx.repos.Create(other))

	base := time.Now().Add(-time.Hour)
	mk := func(repoID int64, task string, at time.Time) *model.JobResult {
		job := &model.JobResult{BaseModel: model.BaseModel{CreatedAt: at}, TaskName: task, RepositoryID: repoID}
		require.NoError(t, fx.jobs.Create(job))
		return job
	}

	mk(repo.ID, constants.TaskGitRepositorySync, base)
	mk(other.ID, constants.TaskGitRepositorySync, base.Add(30*time.Minute)) // 其他仓库, 不参与
	mk(repo.ID, "unrelated.task", base.Add(40*time.Minute))                 // 任务族之外, 不参与
	want := mk(repo.ID, constants.TaskGitRepositoryDryRun, base.Add(20*time.Minute))

	got, err := fx.coord.LatestSyncResult(repo)
	require.NoError(t, err)
	assert.Equal(t, want.ID, got.ID)

	// 无记录时返回记录不存在
	fresh := newRepo("fresh", "https://git.example.com/f.git")
	require.NoError(t, fx.repos.Create(fresh))
	_, err = fx.coord.LatestSyncResult(fresh)
	assert.ErrorIs(t, err, pkgErrors.ErrRecordNotFound)
}

func TestCloneRequiresBranchForHead(t *testing.T) {
	fx := newFixture()

	src := newRepo("templates", "https://git.example.com/r.git")
	require.NoError(t, fx.coord.Validate(src, true))
	require.NoError(t, fx.repos.Create(src))

	_, err := fx.coord.Clone(context.Background(), src, "", "bbbb000000000000000000000000000000000000")
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgErrors.ErrInvalidArgument)

	// 超长commit hash同样拒绝
	_, err = fx.coord.Clone(context.Background(), src, "main", strings.Repeat("b", constants.MaxHeadLength+1))
	require.Error(t, err)
	assert.ErrorIs(t, err, pkgErrors.ErrInvalidArgument)

	// 非法组合时不产生任何持久副作用
	assert.Len(t, fx.repos.repos, 1)
	assert.Empty(t, fx.git.checkedOut)
	assert.Empty(t, fx.git.removedPaths)
}

func TestCloneDefaultsToSource(t *testing.T) {
	fx := newFixture()

	src := newRepo("templates", "https://git.example.com/r.git")
	require.NoError(t, fx.coord.Validate(src, true))
	src.Branch = "develop"
	src.CurrentHead = "cccc000000000000000000000000000000000000"
	require.NoError(t, fx.repos.Create(src))

	clone, err := fx.coord.Clone(context.Background(), src, "", "")
	require.NoError(t, err)

	assert.Equal(t, src.RemoteURL, clone.RemoteURL)
	assert.Equal(t, "develop", clone.Branch)
	// 检出目标为源仓库的head
	assert.Equal(t, src.CurrentHead, fx.git.lastHead)
	assert.Equal(t, src.CurrentHead, clone.CurrentHead)

	// slug携带唯一后缀, 与源仓库不同
	assert.NotEqual(t, src.Slug, clone.Slug)
	assert.True(t, strings.HasPrefix(clone.Slug, src.Slug+"_"))
	assert.True(t, ValidSlug(clone.Slug), clone.Slug)

	persisted, err := fx.repos.FindByID(clone.ID)
	require.NoError(t, err)
	assert.Equal(t, clone.CurrentHead, persisted.CurrentHead)
}

func TestCloneWithBranchOnly(t *testing.T) {
	fx := newFixture()

	src := newRepo("templates", "https://git.example.com/r.git")
	require.NoError(t, fx.coord.Validate(src, true))
	require.NoError(t, fx.repos.Create(src))

	clone, err := fx.coord.Clone(context.Background(), src, "release", "")
	require.NoError(t, err)

	assert.Equal(t, "release", clone.Branch)
	assert.Equal(t, "release", fx.git.lastBranch)
	// 未指定head时检出分支tip
	assert.Empty(t, fx.git.lastHead)
	assert.Equal(t, fx.git.tip, clone.CurrentHead)
}

func TestCloneFailureCleansUp(t *testing.T) {
	fx := newFixture()
	fx.git.checkoutErr = errors.New("network down")

	src := newRepo("templates", "https://git.example.com/r.git")
	require.NoError(t, fx.coord.Validate(src, true))
	require.NoError(t, fx.repos.Create(src))

	_, err := fx.coord.Clone(context.Background(), src, "", "")
	require.Error(t, err)

	// 新记录与缓存目录都被补偿清理, 源仓库保留
	assert.Len(t, fx.repos.repos, 1)
	_, ok := fx.repos.repos[src.ID]
	assert.True(t, ok)
	assert.Len(t, fx.git.removedPaths, 1)
}

func TestCloneHeadWriteFailureCleansUp(t *testing.T) {
	fx := newFixture()
	fx.git.tip = "aaaa1111"

	src := newRepo("templates", "https://git.example.com/r.git")
	require.NoError(t, fx.coord.Validate(src, true))
	require.NoError(t, fx.repos.Create(src))
	fx.repos.updateHeadErr = errors.New("connection reset")

	_, err := fx.coord.Clone(context.Background(), src, "", "")
	require.Error(t, err)

	// 检出成功但落库失败: 同样补偿清理, 不留空head的记录和孤儿目录
	assert.Len(t, fx.repos.repos, 1)
	_, ok := fx.repos.repos[src.ID]
	assert.True(t, ok)
	assert.Len(t, fx.git.removedPaths, 1)
}

func TestAuthFor(t *testing.T) {
	fx := newFixture()

	// 未关联凭据组时匿名访问
	repo := newRepo("templates", "https://git.example.com/r.git")
	auth, err := fx.coord.AuthFor(repo)
	require.NoError(t, err)
	assert.Nil(t, auth)

	plaintext, err := json.Marshal(map[string]string{"username": "bot", "token": "s3cret"})
	require.NoError(t, err)
	encrypted, err := utils.EncryptSecret(testAESKey, string(plaintext))
	require.NoError(t, err)

	groupID := int64(7)
	fx.secrets.groups[groupID] = &model.SecretsGroup{
		BaseModel:     model.BaseModel{ID: groupID},
		Name:          "bot-creds",
		EncryptedData: encrypted,
	}
	repo.SecretsGroupID = &groupID

	auth, err = fx.coord.AuthFor(repo)
	require.NoError(t, err)
	require.NotNil(t, auth)
	assert.Equal(t, "bot", auth.Username)
	assert.Equal(t, "s3cret", auth.Token)
}
