package handler

import (
	"github.com/gin-gonic/gin"

	"netsource/internal/dto"
	"netsource/internal/service"
	"netsource/pkg/responses"
	"netsource/pkg/utils"
)

type SecretsGroupHandler struct {
	service service.SecretsGroupService
}

func NewSecretsGroupHandler(service service.SecretsGroupService) *SecretsGroupHandler {
	return &SecretsGroupHandler{
		service: service,
	}
}

// Create 创建凭据组
// @Summary 创建凭据组
// @Tags SecretsGroup
// @Accept json
// @Produce json
// @Param body body dto.CreateSecretsGroupRequest true "创建凭据组请求"
// @Success 200 {object} responses.Response{data=dto.SecretsGroupResponse}
// @Router /api/v1/secrets-group [post]
func (h *SecretsGroupHandler) Create(c *gin.Context) {
	var req dto.CreateSecretsGroupRequest
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

// GetByID 获取凭据组详情
// @Summary 获取凭据组详情
// @Tags SecretsGroup
// @Accept json
// @Produce json
// @Param id path int true "凭据组ID"
// @Success 200 {object} responses.Response{data=dto.SecretsGroupResponse}
// @Router /api/v1/secrets-group/{id} [get]
func (h *SecretsGroupHandler) GetByID(c *gin.Context) {
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

// List 获取凭据组列表
// @Summary 获取凭据组列表
// @Tags SecretsGroup
// @Accept json
// @Produce json
// @Param page query int false "页码"
// @Param page_size query int false "每页数量"
// @Param keyword query string false "关键字"
// @Success 200 {object} responses.Response{data=dto.PageResponse}
// @Router /api/v1/secrets-groups [get]
func (h *SecretsGroupHandler) List(c *gin.Context) {
	var query dto.PageQuery
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

// Update 更新凭据组
// @Summary 更新凭据组
// @Tags SecretsGroup
// @Accept json
// @Produce json
// @Param body body dto.UpdateSecretsGroupRequest true "更新凭据组请求"
// @Success 200 {object} responses.Response{data=dto.SecretsGroupResponse}
// @Router /api/v1/secrets-group [put]
func (h *SecretsGroupHandler) Update(c *gin.Context) {
	var req dto.UpdateSecretsGroupRequest
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

// Delete 删除凭据组（仍被仓库引用时拒绝）
// @Summary 删除凭据组
// @Tags SecretsGroup
// @Accept json
// @Produce json
// @Param id path int true "凭据组ID"
// @Success 200 {object} responses.Response
// @Router /api/v1/secrets-group/{id} [delete]
func (h *SecretsGroupHandler) Delete(c *gin.Context) {
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
