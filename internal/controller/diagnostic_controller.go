package controller

import (
	"paes_math_backend/internal/service"
	"paes_math_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type DiagnosticController struct {
	Service *service.DiagnosticService
}

func NewDiagnosticController(s *service.DiagnosticService) *DiagnosticController {
	return &DiagnosticController{Service: s}
}

// Start godoc
// @Summary 开始 AI 诊断
// @Description AI 逐题出题评估各单元掌握程度，返回第一道题
// @Tags AI诊断
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.StartDiagnosticRequest true "考试级别"
// @Success 201 {object} util.Response{data=service.DiagnosticView} "成功"
// @Failure 503 {object} util.Response "AI 服务不可用"
// @Router /api/ai/diagnostics [post]
func (c *DiagnosticController) Start(ctx *gin.Context) {
	var req service.StartDiagnosticRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	view, err := c.Service.Start(ctx.Request.Context(), claims.UserID, req.Level)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, view)
}

// List godoc
// @Summary 我的诊断记录
// @Tags AI诊断
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.DiagnosticSession} "成功"
// @Router /api/ai/diagnostics [get]
func (c *DiagnosticController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	list, err := c.Service.List(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// Get godoc
// @Summary 诊断详情
// @Tags AI诊断
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "诊断ID"
// @Success 200 {object} util.Response{data=service.DiagnosticView} "成功"
// @Failure 404 {object} util.Response "不存在"
// @Router /api/ai/diagnostics/{id} [get]
func (c *DiagnosticController) Get(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	view, err := c.Service.Get(ctx.Request.Context(), claims.UserID, ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// Answer godoc
// @Summary 回答诊断题
// @Tags AI诊断
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "诊断ID"
// @Param   body body service.DiagnosticAnswerRequest true "答案"
// @Success 200 {object} util.Response{data=service.DiagnosticView} "判分结果和下一题"
// @Failure 400 {object} util.Response "诊断已结束"
// @Router /api/ai/diagnostics/{id}/answer [post]
func (c *DiagnosticController) Answer(ctx *gin.Context) {
	var req service.DiagnosticAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	view, err := c.Service.Answer(ctx.Request.Context(), claims.UserID, ctx.Param("id"), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// Abandon godoc
// @Summary 放弃诊断
// @Tags AI诊断
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "诊断ID"
// @Success 200 {object} util.Response{data=model.DiagnosticSession} "成功"
// @Router /api/ai/diagnostics/{id}/abandon [post]
func (c *DiagnosticController) Abandon(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	session, err := c.Service.Abandon(ctx.Request.Context(), claims.UserID, ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, session)
}
