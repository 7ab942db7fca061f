package handler

import (
	"encoding/csv"

	"github.com/gin-gonic/gin"

	"netsource/internal/dto"
	"netsource/internal/service"
	"netsource/pkg/responses"
	"netsource/pkg/utils"
)

type GitRepositoryHandler struct {
	service service.GitRepositoryService
}

func NewGitRepositoryHandler(service service.GitRepositoryService) *GitRepositoryHandler {
	return &GitRepositoryHandler{
		service: service,
	}
}

// Create 创建Git数据源仓库
// @Summary 创建Git数据源仓库
// @Tags GitRepository
// @Accept json
// @Produce json
// @Param body body dto.CreateGitRepositoryRequest true "创建仓库请求"
// @Success 200 {object} responses.Response{data=dto.GitRepositoryResponse}
// @Router /api/v1/git-repository [post]
func (h *GitRepositoryHandler) Create(c *gin.Context) {
	var req dto.CreateGitRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	resp, err := h.service.Create(&req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// GetByID 获取仓库详情
// @Summary 获取仓库详情
// @Tags GitRepository
// @Accept json
// @Produce json
// @Param id path int true "仓库ID"
// @Success 200 {object} responses.Response{data=dto.GitRepositoryResponse}
// @Router /api/v1/git-repository/{id} [get]
func (h *GitRepositoryHandler) GetByID(c *gin.Context) {
	var param dto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	resp, err := h.service.GetByID(param.ID)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// List 获取仓库列表
// @Summary 获取仓库列表
// @Tags GitRepository
// @Accept json
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param keyword query string false "关键字"
// @Success 200 {object} responses.Response{data=dto.PageResponse}
// @Router /api/v1/git-repositories [get]
func (h *GitRepositoryHandler) List(c *gin.Context) {
	var query dto.GitRepositoryListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	data, total, err := h.service.List(&query)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, dto.NewPageResponse(data, total, query.GetPage(), query.GetPageSize()))
}

// Update 更新仓库
// @Summary 更新仓库
// @Tags GitRepository
// @Accept json
// @Produce json
// @Param body body dto.UpdateGitRepositoryRequest true "更新仓库请求"
// @Success 200 {object} responses.Response{data=dto.GitRepositoryResponse}
// @Router /api/v1/git-repository [put]
func (h *GitRepositoryHandler) Update(c *gin.Context) {
	var req dto.UpdateGitRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	resp, err := h.service.Update(&req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// Delete 删除仓库（连带同步历史与本地缓存）
// @Summary 删除仓库
// @Tags GitRepository
// @Accept json
// @Produce json
// @Param id path int true "仓库ID"
// @Success 200 {object} responses.Response
// @Router /api/v1/git-repository/{id} [delete]
func (h *GitRepositoryHandler) Delete(c *gin.Context) {
	var param dto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	if err := h.service.Delete(param.ID); err != nil {
		responses.Error(c, err)
		return
	}

	responses.SuccessWithMessage(c, "删除成功", nil)
}

// Sync 触发同步任务
// @Summary 触发同步任务
// @Tags GitRepository
// @Accept json
// @Produce json
// @Param body body dto.SyncGitRepositoryRequest true "同步请求"
// @Success 200 {object} responses.Response{data=dto.JobResultResponse}
// @Router /api/v1/git-repository/sync [post]
func (h *GitRepositoryHandler) Sync(c *gin.Context) {
	var req dto.SyncGitRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	resp, err := h.service.Sync(&req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.SuccessWithMessage(c, "同步任务已入队", resp)
}

// LatestSyncResult 获取最近一次同步任务
// @Summary 获取最近一次同步任务
// @Tags GitRepository
// @Accept json
// @Produce json
// @Param id path int true "仓库ID"
// @Success 200 {object} responses.Response{data=dto.JobResultResponse}
// @Router /api/v1/git-repository/{id}/sync/latest [get]
func (h *GitRepositoryHandler) LatestSyncResult(c *gin.Context) {
	var param dto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	resp, err := h.service.LatestSyncResult(param.ID)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}

// ListSyncResults 获取仓库同步历史
// @Summary 获取仓库同步历史
// @Tags GitRepository
// @Accept json
// @Produce json
// @Param id path int true "仓库ID"
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Success 200 {object} responses.Response{data=dto.PageResponse}
// @Router /api/v1/git-repository/{id}/sync [get]
func (h *GitRepositoryHandler) ListSyncResults(c *gin.Context) {
	var param dto.IDParam
	if err := c.ShouldBindUri(&param); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	var query dto.PageQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	data, total, err := h.service.ListSyncResults(param.ID, &query)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, dto.NewPageResponse(data, total, query.GetPage(), query.GetPageSize()))
}

// Export 导出仓库列表为CSV
// @Summary 导出仓库列表为CSV
// @Tags GitRepository
// @Produce text/csv
// @Success 200 {string} string "CSV文件"
// @Router /api/v1/git-repositories/export [get]
func (h *GitRepositoryHandler) Export(c *gin.Context) {
	rows, err := h.service.ExportCSV()
	if err != nil {
		responses.Error(c, err)
		return
	}

	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="git_repositories.csv"`)
	w := csv.NewWriter(c.Writer)
	if err := w.WriteAll(rows); err != nil {
		responses.Error(c, err)
	}
}

// Clone 克隆仓库为新记录并同步检出
// @Summary 克隆仓库
// @Tags GitRepository
// @Accept json
// @Produce json
// @Param body body dto.CloneGitRepositoryRequest true "克隆请求"
// @Success 200 {object} responses.Response{data=dto.GitRepositoryResponse}
// @Router /api/v1/git-repository/clone [post]
func (h *GitRepositoryHandler) Clone(c *gin.Context) {
	var req dto.CloneGitRepositoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		responses.ErrorWithDetail(c, responses.CodeBadRequest, "请求参数错误", utils.FormatValidationError(err))
		return
	}

	resp, err := h.service.Clone(c.Request.Context(), &req)
	if err != nil {
		responses.Error(c, err)
		return
	}

	responses.Success(c, resp)
}
