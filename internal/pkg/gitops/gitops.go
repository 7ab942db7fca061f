package gitops

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"
)

const defaultRemoteName = "origin"

// git协议中的无限深度, 取回完整历史（等价于--unshallow）
const unshallowDepth = 2147483647

// Auth HTTP基本认证凭据（仅支持 http/https 远端）
type Auth struct {
	Username string
	Token    string
}

// Client 本地缓存与远端之间的Git操作
type Client interface {
	// EnsureCheckout 确保path处存在remoteURL的本地检出:
	// 不存在则浅克隆branch, 存在则拉取并强制检出.
	// head非空时检出指定commit（需随branch一起给出）.
	// 返回检出后的commit hash以及内容相对之前是否发生变化.
	EnsureCheckout(ctx context.Context, remoteURL, path, branch, head string, auth *Auth) (string, bool, error)

	// RemoteTip 查询远端branch的最新commit hash, 不触碰本地缓存
	RemoteTip(ctx context.Context, remoteURL, branch string, auth *Auth) (string, error)

	// LocalHead 返回本地缓存当前检出的commit hash, 缓存不存在时返回空串
	LocalHead(path string) (string, error)

	// RemoveCache 删除本地缓存目录
	RemoveCache(path string) error
}

type client struct {
	depth int // 浅克隆/拉取深度, 0为全量
}

// NewClient 创建Git操作客户端
func NewClient(shallowDepth int) Client {
	return &client{depth: shallowDepth}
}

func (c *client) EnsureCheckout(ctx context.Context, remoteURL, path, branch, head string, auth *Auth) (string, bool, error) {
	if branch == "" {
		return "", false, fmt.Errorf("%w: 未指定分支", ErrRefNotFound)
	}

	prev := ""
	repo, err := git.PlainOpen(path)
	switch {
	case err == nil:
		if ref, headErr := repo.Head(); headErr == nil {
			prev = ref.Hash().String()
		}

		fetchOpts := &git.FetchOptions{
			RemoteName: defaultRemoteName,
			RefSpecs: []gitconfig.RefSpec{
				gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, defaultRemoteName, branch)),
			},
			Depth: c.depth,
			Force: true,
			Tags:  git.NoTags,
			Auth:  basicAuth(auth),
		}
		if fetchErr := repo.FetchContext(ctx, fetchOpts); fetchErr != nil && !errors.Is(fetchErr, git.NoErrAlreadyUpToDate) {
			return "", false, classify(fetchErr)
		}

	case errors.Is(err, git.ErrRepositoryNotExists):
		cloneOpts := &git.CloneOptions{
			URL:           remoteURL,
			ReferenceName: plumbing.NewBranchReferenceName(branch),
			SingleBranch:  true,
			Depth:         c.depth,
			Tags:          git.NoTags,
			Auth:          basicAuth(auth),
		}
		repo, err = git.PlainCloneContext(ctx, path, false, cloneOpts)
		if err != nil {
			// 半成品目录会让下次PlainOpen产生误判
			_ = os.RemoveAll(path)
			return "", false, classify(err)
		}

	default:
		return "", false, fmt.Errorf("打开本地缓存失败: %w", err)
	}

	target, err := resolveTarget(repo, branch, head)
	if err != nil && head != "" {
		// 浅层缓存可能缺少早于深度边界的commit, 补全历史后重试
		if deepenErr := c.deepen(ctx, repo, branch, auth); deepenErr != nil {
			return "", false, deepenErr
		}
		target, err = resolveTarget(repo, branch, head)
	}
	if err != nil {
		return "", false, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return "", false, fmt.Errorf("获取工作区失败: %w", err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *target, Force: true}); err != nil {
		return "", false, fmt.Errorf("检出 %s 失败: %w", target.String(), err)
	}

	return target.String(), prev != target.String(), nil
}

// deepen 取回branch的完整历史, 解除浅克隆的深度边界
func (c *client) deepen(ctx context.Context, repo *git.Repository, branch string, auth *Auth) error {
	err := repo.FetchContext(ctx, &git.FetchOptions{
		RemoteName: defaultRemoteName,
		RefSpecs: []gitconfig.RefSpec{
			gitconfig.RefSpec(fmt.Sprintf("+refs/heads/%s:refs/remotes/%s/%s", branch, defaultRemoteName, branch)),
		},
		Depth: unshallowDepth,
		Force: true,
		Tags:  git.NoTags,
		Auth:  basicAuth(auth),
	})
	if err != nil && !errors.Is(err, git.NoErrAlreadyUpToDate) {
		return classify(err)
	}
	return nil
}

func (c *client) RemoteTip(ctx context.Context, remoteURL, branch string, auth *Auth) (string, error) {
	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: defaultRemoteName,
		URLs: []string{remoteURL},
	})

	refs, err := remote.ListContext(ctx, &git.ListOptions{Auth: basicAuth(auth)})
	if err != nil {
		return "", classify(err)
	}

	want := plumbing.NewBranchReferenceName(branch)
	for _, ref := range refs {
		if ref.Name() == want {
			return ref.Hash().String(), nil
		}
	}

	return "", fmt.Errorf("%w: 远端分支 %s", ErrRefNotFound, branch)
}

func (c *client) LocalHead(path string) (string, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if errors.Is(err, git.ErrRepositoryNotExists) {
			return "", nil
		}
		return "", fmt.Errorf("打开本地缓存失败: %w", err)
	}

	ref, err := repo.Head()
	if err != nil {
		// 克隆中断等导致的空HEAD当作未检出
		return "", nil
	}
	return ref.Hash().String(), nil
}

func (c *client) RemoveCache(path string) error {
	if path == "" {
		return nil
	}
	return os.RemoveAll(path)
}

// resolveTarget 解析检出目标: 指定head时解析commit, 否则取分支的远端跟踪引用
func resolveTarget(repo *git.Repository, branch, head string) (*plumbing.Hash, error) {
	if head != "" {
		h, err := repo.ResolveRevision(plumbing.Revision(head))
		if err != nil {
			return nil, fmt.Errorf("%w: commit %s", ErrRefNotFound, head)
		}
		return h, nil
	}

	// 刚克隆的单分支仓库可能只有本地引用
	for _, rev := range []string{
		"refs/remotes/" + defaultRemoteName + "/" + branch,
		"refs/heads/" + branch,
	} {
		if h, err := repo.ResolveRevision(plumbing.Revision(rev)); err == nil {
			return h, nil
		}
	}

	return nil, fmt.Errorf("%w: 分支 %s", ErrRefNotFound, branch)
}

// classify 将go-git错误归并到本包哨兵, 保留原始错误文本
func classify(err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, transport.ErrAuthenticationRequired),
		errors.Is(err, transport.ErrAuthorizationFailed):
		return fmt.Errorf("%w: %v", ErrAuthFailed, err)
	case errors.Is(err, transport.ErrRepositoryNotFound):
		return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
	case errors.Is(err, plumbing.ErrReferenceNotFound):
		return fmt.Errorf("%w: %v", ErrRefNotFound, err)
	}

	var noMatch git.NoMatchingRefSpecError
	if errors.As(err, &noMatch) {
		return fmt.Errorf("%w: %v", ErrRefNotFound, err)
	}

	return fmt.Errorf("%w: %v", ErrRemoteUnavailable, err)
}

func basicAuth(auth *Auth) transport.AuthMethod {
	if auth == nil || auth.Token == "" {
		return nil
	}

	username := auth.Username
	if username == "" {
		// token认证时用户名任意非空即可
		username = "git"
	}
	return &githttp.BasicAuth{Username: username, Password: auth.Token}
}
