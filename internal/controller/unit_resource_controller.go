package controller

import (
	"paes_math_backend/internal/service"
	"paes_math_backend/internal/util"

	"github.com/gin-gonic/gin"
)

// 上传文件大小上限（视频）
const maxResourceSize = 500 << 20

type UnitResourceController struct {
	Service *service.UnitResourceService
}

func NewUnitResourceController(s *service.UnitResourceService) *UnitResourceController {
	return &UnitResourceController{Service: s}
}

// List godoc
// @Summary 单元学习资源
// @Tags 学习资源
// @Produce  json
// @Param   id path int true "单元ID"
// @Success 200 {object} util.Response{data=[]model.UnitResource} "成功"
// @Router /api/curriculum/units/{id}/resources [get]
func (c *UnitResourceController) List(ctx *gin.Context) {
	unitID, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid unit id")
		return
	}
	list, err := c.Service.List(ctx.Request.Context(), unitID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// Upload godoc
// @Summary 上传视频或 PDF
// @Description 视频会自动提取时长并生成缩略图
// @Tags 学习资源
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   unitId formData int true "单元ID"
// @Param   title formData string true "标题"
// @Param   file formData file true "文件"
// @Success 201 {object} util.Response{data=model.UnitResource} "上传成功"
// @Failure 400 {object} util.Response "文件类型不支持"
// @Router /api/teacher/resources/upload [post]
func (c *UnitResourceController) Upload(ctx *gin.Context) {
	var req service.UploadResourceRequest
	if err := ctx.ShouldBind(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}
	if file.Size > maxResourceSize {
		util.BadRequest(ctx, "file is too large")
		return
	}
	claims := util.GetUserFromContext(ctx)
	res, err := c.Service.Upload(ctx.Request.Context(), claims.UserID, req, file)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, res)
}

// AddLink godoc
// @Summary 添加外部链接资源
// @Tags 学习资源
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.LinkResourceRequest true "链接"
// @Success 201 {object} util.Response{data=model.UnitResource} "成功"
// @Router /api/teacher/resources/link [post]
func (c *UnitResourceController) AddLink(ctx *gin.Context) {
	var req service.LinkResourceRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	res, err := c.Service.AddLink(ctx.Request.Context(), claims.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, res)
}

// Delete godoc
// @Summary 删除资源
// @Tags 学习资源
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "资源ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/teacher/resources/{id} [delete]
func (c *UnitResourceController) Delete(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid resource id")
		return
	}
	if err := c.Service.Delete(ctx.Request.Context(), id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
