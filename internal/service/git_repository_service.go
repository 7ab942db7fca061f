package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"netsource/internal/core/datasource"
	"netsource/internal/dto"
	"netsource/internal/model"
	"netsource/internal/repository"
	"netsource/pkg/constants"
)

type GitRepositoryService interface {
	Create(req *dto.CreateGitRepositoryRequest) (*dto.GitRepositoryResponse, error)
	GetByID(id int64) (*dto.GitRepositoryResponse, error)
	List(query *dto.GitRepositoryListQuery) ([]*dto.GitRepositoryResponse, int64, error)
	Update(req *dto.UpdateGitRepositoryRequest) (*dto.GitRepositoryResponse, error)
	Delete(id int64) error
	Sync(req *dto.SyncGitRepositoryRequest) (*dto.JobResultResponse, error)
	LatestSyncResult(id int64) (*dto.JobResultResponse, error)
	ListSyncResults(id int64, query *dto.PageQuery) ([]*dto.JobResultResponse, int64, error)
	Clone(ctx context.Context, req *dto.CloneGitRepositoryRequest) (*dto.GitRepositoryResponse, error)
	ExportCSV() ([][]string, error)
}

type gitRepositoryService struct {
	repo    repository.GitRepositoryRepository
	jobRepo repository.JobResultRepository
	coord   *datasource.Coordinator
	logger  *zap.Logger
}

func NewGitRepositoryService(
	repo repository.GitRepositoryRepository,
	jobRepo repository.JobResultRepository,
	coord *datasource.Coordinator,
	logger *zap.Logger,
) GitRepositoryService {
	return &gitRepositoryService{
		repo:    repo,
		jobRepo: jobRepo,
		coord:   coord,
		logger:  logger,
	}
}

func (s *gitRepositoryService) Create(req *dto.CreateGitRepositoryRequest) (*dto.GitRepositoryResponse, error) {
	repo := &model.GitRepository{
		Name:           req.Name,
		Slug:           req.Slug,
		RemoteURL:      req.RemoteURL,
		Branch:         req.Branch,
		SecretsGroupID: req.SecretsGroupID,
	}
	repo.SetContentKinds(req.ProvidedContents)

	// 校验并规整（slug派生、分支默认值、内容重叠检查）
	if err := s.coord.Validate(repo, true); err != nil {
		return nil, err
	}

	if err := s.repo.Create(repo); err != nil {
		return nil, err
	}

	return s.toResponse(repo), nil
}

func (s *gitRepositoryService) GetByID(id int64) (*dto.GitRepositoryResponse, error) {
	repo, err := s.repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	return s.toResponse(repo), nil
}

func (s *gitRepositoryService) List(query *dto.GitRepositoryListQuery) ([]*dto.GitRepositoryResponse, int64, error) {
	repos, total, err := s.repo.List(query.GetPage(), query.GetPageSize(), query.Keyword)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]*dto.GitRepositoryResponse, len(repos))
	for i, repo := range repos {
		responses[i] = s.toResponse(repo)
	}
	return responses, total, nil
}

func (s *gitRepositoryService) Update(req *dto.UpdateGitRepositoryRequest) (*dto.GitRepositoryResponse, error) {
	repo, err := s.repo.FindByID(req.ID)
	if err != nil {
		return nil, err
	}

	// 应用请求字段
	if req.Name != nil {
		repo.Name = *req.Name
	}
	if req.RemoteURL != nil {
		repo.RemoteURL = *req.RemoteURL
	}
	if req.Branch != nil {
		repo.Branch = *req.Branch
	}
	if req.SecretsGroupID != nil {
		repo.SecretsGroupID = req.SecretsGroupID
	}
	if req.ProvidedContents != nil {
		repo.SetContentKinds(*req.ProvidedContents)
	}

	// 校验失败时整个更新不落库; current_head 失效与字段更新同一次Save
	if err := s.coord.Validate(repo, false); err != nil {
		return nil, err
	}

	// 只写仓库本行, 不级联凭据组
	repo.SecretsGroup = nil
	if err := s.repo.Save(repo); err != nil {
		return nil, err
	}

	return s.toResponse(repo), nil
}

func (s *gitRepositoryService) Delete(id int64) error {
	repo, err := s.repo.FindByID(id)
	if err != nil {
		return err
	}

	// 同步历史随仓库记录一起删除
	if err := s.jobRepo.DeleteByRepository(id); err != nil {
		return err
	}
	if err := s.repo.Delete(id); err != nil {
		return err
	}

	// 本地缓存清理失败不阻塞删除, 仅记录
	if err := s.coord.RemoveLocalCache(repo); err != nil {
		s.logger.Warn("清理本地缓存目录失败",
			zap.String("slug", repo.Slug), zap.Error(err))
	}

	return nil
}

func (s *gitRepositoryService) Sync(req *dto.SyncGitRepositoryRequest) (*dto.JobResultResponse, error) {
	repo, err := s.repo.FindByID(req.ID)
	if err != nil {
		return nil, err
	}

	job, err := s.coord.Sync(repo, req.Requester, req.DryRun)
	if err != nil {
		return nil, err
	}

	return s.toJobResponse(job), nil
}

func (s *gitRepositoryService) LatestSyncResult(id int64) (*dto.JobResultResponse, error) {
	repo, err := s.repo.FindByID(id)
	if err != nil {
		return nil, err
	}

	job, err := s.coord.LatestSyncResult(repo)
	if err != nil {
		return nil, err
	}
	return s.toJobResponse(job), nil
}

func (s *gitRepositoryService) ListSyncResults(id int64, query *dto.PageQuery) ([]*dto.JobResultResponse, int64, error) {
	if _, err := s.repo.FindByID(id); err != nil {
		return nil, 0, err
	}

	jobs, total, err := s.jobRepo.ListByRepository(id, query.GetPage(), query.GetPageSize())
	if err != nil {
		return nil, 0, err
	}

	responses := make([]*dto.JobResultResponse, len(jobs))
	for i, job := range jobs {
		responses[i] = s.toJobResponse(job)
	}
	return responses, total, nil
}

func (s *gitRepositoryService) Clone(ctx context.Context, req *dto.CloneGitRepositoryRequest) (*dto.GitRepositoryResponse, error) {
	src, err := s.repo.FindByID(req.ID)
	if err != nil {
		return nil, err
	}

	clone, err := s.coord.Clone(ctx, src, req.Branch, req.Head)
	if err != nil {
		return nil, err
	}
	return s.toResponse(clone), nil
}

// ExportCSV 导出全部仓库, 列集合为静态声明
func (s *gitRepositoryService) ExportCSV() ([][]string, error) {
	repos, err := s.repo.ListAll()
	if err != nil {
		return nil, err
	}

	rows := make([][]string, 0, len(repos)+1)
	rows = append(rows, model.GitRepositoryCSVHeader)
	for _, repo := range repos {
		rows = append(rows, repo.CSVRow())
	}
	return rows, nil
}

// toResponse 转换为响应对象
func (s *gitRepositoryService) toResponse(repo *model.GitRepository) *dto.GitRepositoryResponse {
	resp := &dto.GitRepositoryResponse{
		ID:               repo.ID,
		Name:             repo.Name,
		Slug:             repo.Slug,
		RemoteURL:        repo.RemoteURL,
		Branch:           repo.Branch,
		CurrentHead:      repo.CurrentHead,
		SecretsGroupID:   repo.SecretsGroupID,
		ProvidedContents: repo.ContentKinds(),
		CreatedAt:        repo.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        repo.UpdatedAt.Format(time.RFC3339),
	}
	if resp.ProvidedContents == nil {
		resp.ProvidedContents = []string{}
	}

	// 添加凭据组名称
	if repo.SecretsGroup != nil {
		resp.SecretsGroupName = &repo.SecretsGroup.Name
	}

	return resp
}

// toJobResponse 转换同步任务为响应对象
func (s *gitRepositoryService) toJobResponse(job *model.JobResult) *dto.JobResultResponse {
	resp := &dto.JobResultResponse{
		ID:           job.ID,
		TaskName:     job.TaskName,
		RepositoryID: job.RepositoryID,
		Status:       job.Status,
		StatusLabel:  constants.JobStatusLabel(job.Status),
		Requester:    job.Requester,
		Summary:      job.Summary,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
	}
	if job.StartedAt != nil {
		v := job.StartedAt.Format(time.RFC3339)
		resp.StartedAt = &v
	}
	if job.CompletedAt != nil {
		v := job.CompletedAt.Format(time.RFC3339)
		resp.CompletedAt = &v
	}
	return resp
}
