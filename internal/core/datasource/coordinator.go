package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"netsource/internal/model"
	"netsource/internal/pkg/gitops"
	"netsource/internal/repository"
	"netsource/pkg/constants"
	pkgErrors "netsource/pkg/errors"
	"netsource/pkg/utils"
)

// Config 协调器配置, 构造时显式注入, 内部不读全局状态
type Config struct {
	GitRoot       string   // 本地缓存根目录
	AESKey        string   // 凭据解密密钥
	ReservedSlugs []string // 保留命名空间, 禁止被slug占用
}

// Coordinator Git数据源同步协调器
//
// 负责仓库配置的校验（slug派生/不可变、内容重叠、current_head失效）、
// 同步任务的入队与查询, 以及同步克隆。实际的git网络操作由 gitops.Client
// 完成, 异步执行由 Worker 完成。
type Coordinator struct {
	repoRepo    repository.GitRepositoryRepository
	jobRepo     repository.JobResultRepository
	secretsRepo repository.SecretsGroupRepository
	git         gitops.Client
	logger      *zap.Logger
	cfg         Config
	reserved    map[string]struct{}
}

// NewCoordinator 创建同步协调器
func NewCoordinator(
	repoRepo repository.GitRepositoryRepository,
	jobRepo repository.JobResultRepository,
	secretsRepo repository.SecretsGroupRepository,
	git gitops.Client,
	logger *zap.Logger,
	cfg Config,
) *Coordinator {
	reserved := make(map[string]struct{}, len(cfg.ReservedSlugs)+len(constants.ContentKinds))
	for _, s := range cfg.ReservedSlugs {
		reserved[s] = struct{}{}
	}
	// 内容类型名作为可导入命名空间, 始终保留
	for _, k := range constants.ContentKinds {
		reserved[k] = struct{}{}
	}

	return &Coordinator{
		repoRepo:    repoRepo,
		jobRepo:     jobRepo,
		secretsRepo: secretsRepo,
		git:         git,
		logger:      logger,
		cfg:         cfg,
		reserved:    reserved,
	}
}

// Validate 校验仓库配置并就地规整候选对象, 不负责落库
//
// 校验失败时整个写入必须被阻止; current_head 的清空只修改候选对象,
// 与调用方的保存动作处于同一条UPDATE, 保证原子性。
func (c *Coordinator) Validate(repo *model.GitRepository, isNew bool) error {
	remote, err := url.Parse(repo.RemoteURL)
	if err != nil || (remote.Scheme != "http" && remote.Scheme != "https") {
		return pkgErrors.Newf(pkgErrors.CodeValidationError,
			"远程地址仅支持 HTTP/HTTPS: %s", repo.RemoteURL)
	}

	if repo.Branch == "" {
		repo.Branch = constants.DefaultBranch
	}
	if len(repo.CurrentHead) > constants.MaxHeadLength {
		return pkgErrors.Newf(pkgErrors.CodeValidationError,
			"commit hash超过%d字符: %s", constants.MaxHeadLength, repo.CurrentHead)
	}

	if isNew {
		// slug未显式给出时由名称派生
		if repo.Slug == "" {
			repo.Slug = Slugify(repo.Name)
		}
		if !ValidSlug(repo.Slug) {
			return pkgErrors.Wrap(pkgErrors.CodeValidationError,
				fmt.Sprintf("slug %q 不是合法标识符（仅限字母数字下划线, 不能以数字开头）", repo.Slug),
				pkgErrors.ErrInvalidSlug)
		}
		if _, ok := c.reserved[repo.Slug]; ok {
			return pkgErrors.Wrap(pkgErrors.CodeValidationError,
				fmt.Sprintf("slug %q 为保留命名空间, 请更换", repo.Slug),
				pkgErrors.ErrReservedName)
		}
		// 预检给出可读的冲突提示, 并发场景下仍以唯一索引为准
		if _, err := c.repoRepo.FindBySlug(repo.Slug); err == nil {
			return pkgErrors.Wrap(pkgErrors.CodeConflict,
				fmt.Sprintf("slug %q 已被其他仓库占用", repo.Slug),
				pkgErrors.ErrRecordExists)
		} else if !errors.Is(err, pkgErrors.ErrRecordNotFound) {
			return err
		}
	} else {
		past, err := c.repoRepo.FindByID(repo.ID)
		if err != nil {
			return err
		}

		if repo.Slug == "" {
			repo.Slug = past.Slug
		}
		if repo.Slug != past.Slug {
			return pkgErrors.Wrap(pkgErrors.CodeValidationError,
				fmt.Sprintf("slug创建后不可修改: 当前为 %q, 请求为 %q", past.Slug, repo.Slug),
				pkgErrors.ErrImmutableField)
		}

		// 远程地址或分支变更使已缓存的head失效, 强制下次全量同步
		if repo.RemoteURL != past.RemoteURL || repo.Branch != past.Branch {
			repo.CurrentHead = ""
		}
	}

	kinds := repo.ContentKinds()
	for _, kind := range kinds {
		if !constants.KnownContentKind(kind) {
			return pkgErrors.Newf(pkgErrors.CodeValidationError, "未注册的内容类型: %s", kind)
		}
	}

	// 同一远程地址下任意两个仓库的内容类型不允许重叠
	// 预检之外, name/slug 的唯一索引是并发创建时的最终约束
	if len(kinds) > 0 {
		others, err := c.repoRepo.ListByRemoteURL(repo.RemoteURL, repo.ID)
		if err != nil {
			return err
		}
		for _, other := range others {
			if shared := lo.Intersect(kinds, other.ContentKinds()); len(shared) > 0 {
				return pkgErrors.Wrap(pkgErrors.CodeValidationError,
					fmt.Sprintf("远程地址 %s 已有仓库 %q 提供相同的内容类型 %v",
						repo.RemoteURL, other.Name, shared),
					pkgErrors.ErrContentOverlap)
			}
		}
	}

	return nil
}

// Sync 将一次同步入队并立即返回任务句柄, 不等待执行
// dryRun 时仅计算远端与本地缓存的差异, 不更新 current_head
func (c *Coordinator) Sync(repo *model.GitRepository, requester string, dryRun bool) (*model.JobResult, error) {
	taskName := constants.TaskGitRepositorySync
	if dryRun {
		taskName = constants.TaskGitRepositoryDryRun
	}
	if requester == "" {
		requester = constants.DefaultRequester
	}

	kwargs, err := json.Marshal(map[string]interface{}{
		"repository": repo.ID,
		"dry_run":    dryRun,
	})
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "编码任务参数失败", err)
	}

	job := &model.JobResult{
		TaskName:     taskName,
		RepositoryID: repo.ID,
		TaskKwargs:   datatypes.JSON(kwargs),
		Status:       constants.JobStatusPending,
		Requester:    requester,
	}
	if err := c.jobRepo.Create(job); err != nil {
		return nil, err
	}

	c.logger.Info("同步任务已入队",
		zap.Int64("repository_id", repo.ID),
		zap.String("slug", repo.Slug),
		zap.String("task", taskName),
		zap.String("requester", requester))

	return job, nil
}

// LatestSyncResult 返回该仓库任务族内最近的一次同步任务
func (c *Coordinator) LatestSyncResult(repo *model.GitRepository) (*model.JobResult, error) {
	return c.jobRepo.FindLatest(repo.ID, constants.TaskFamilyGitRepository)
}

// Clone 以源仓库为模板创建独立的新记录并同步检出
//
// 参数约定: branch与head均为空时沿用源仓库当前值; 仅给branch时检出
// 该分支tip; 只给head不给branch为非法。检出失败时删除刚创建的记录
// 与缓存目录, 不留孤儿。
func (c *Coordinator) Clone(ctx context.Context, src *model.GitRepository, branch, head string) (*model.GitRepository, error) {
	if head != "" && branch == "" {
		return nil, pkgErrors.Wrap(pkgErrors.CodeBadRequest,
			"必须提供分支才能检出指定commit", pkgErrors.ErrInvalidArgument)
	}
	if len(head) > constants.MaxHeadLength {
		return nil, pkgErrors.Wrap(pkgErrors.CodeBadRequest,
			fmt.Sprintf("commit hash超过%d字符", constants.MaxHeadLength), pkgErrors.ErrInvalidArgument)
	}

	suffix := strings.ReplaceAll(uuid.New().String(), "-", "_")
	clone := &model.GitRepository{
		Name:             fmt.Sprintf("%s (%s)", src.Name, suffix),
		Slug:             fmt.Sprintf("%s_%s", src.Slug, suffix),
		RemoteURL:        src.RemoteURL,
		Branch:           src.Branch,
		SecretsGroupID:   src.SecretsGroupID,
		ProvidedContents: src.ProvidedContents,
	}

	if branch == "" && head == "" {
		// head为空时检出到源分支tip
		head = src.CurrentHead
	} else {
		clone.Branch = branch
		clone.CurrentHead = head
	}

	if err := c.repoRepo.Create(clone); err != nil {
		return nil, err
	}

	auth, err := c.AuthFor(clone)
	if err != nil {
		c.rollbackClone(clone)
		return nil, err
	}

	path := clone.FilesystemPath(c.cfg.GitRoot)
	checkedOut, _, err := c.git.EnsureCheckout(ctx, clone.RemoteURL, path, clone.Branch, head, auth)
	if err != nil {
		c.rollbackClone(clone)
		return nil, pkgErrors.Wrap(pkgErrors.CodeGitError, "克隆检出失败", err)
	}

	clone.CurrentHead = checkedOut
	if err := c.repoRepo.UpdateHead(clone.ID, checkedOut); err != nil {
		c.rollbackClone(clone)
		return nil, err
	}

	c.logger.Info("仓库克隆完成",
		zap.Int64("source_id", src.ID),
		zap.String("slug", clone.Slug),
		zap.String("head", checkedOut))

	return clone, nil
}

// rollbackClone 补偿清理: 删除记录与缓存目录
func (c *Coordinator) rollbackClone(clone *model.GitRepository) {
	if err := c.repoRepo.Delete(clone.ID); err != nil {
		c.logger.Warn("清理克隆记录失败", zap.Int64("id", clone.ID), zap.Error(err))
	}
	if err := c.git.RemoveCache(clone.FilesystemPath(c.cfg.GitRoot)); err != nil {
		c.logger.Warn("清理克隆缓存目录失败", zap.String("slug", clone.Slug), zap.Error(err))
	}
}

// RemoveLocalCache 删除仓库的本地缓存目录, 随记录删除一起调用
func (c *Coordinator) RemoveLocalCache(repo *model.GitRepository) error {
	return c.git.RemoveCache(repo.FilesystemPath(c.cfg.GitRoot))
}

// AuthFor 解析仓库关联凭据组, 未关联时返回nil
func (c *Coordinator) AuthFor(repo *model.GitRepository) (*gitops.Auth, error) {
	if repo.SecretsGroupID == nil {
		return nil, nil
	}

	group, err := c.secretsRepo.FindByID(*repo.SecretsGroupID)
	if err != nil {
		return nil, err
	}

	plaintext, err := utils.DecryptSecret(c.cfg.AESKey, group.EncryptedData)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "解密凭据失败", err)
	}

	var payload struct {
		Username string `json:"username"`
		Token    string `json:"token"`
	}
	if err := json.Unmarshal([]byte(plaintext), &payload); err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeInternalError, "解析凭据失败", err)
	}

	return &gitops.Auth{Username: payload.Username, Token: payload.Token}, nil
}
