package controller

import (
	"paes_math_backend/internal/service"
	"paes_math_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type KnowledgeController struct {
	Service *service.KnowledgeService
}

func NewKnowledgeController(s *service.KnowledgeService) *KnowledgeController {
	return &KnowledgeController{Service: s}
}

// DeclareKnowledgeRequest 批量声明单元掌握情况
type DeclareKnowledgeRequest struct {
	Declarations []service.DeclarationInput `json:"declarations" binding:"required,min=1,dive"`
}

// List godoc
// @Summary 我的知识声明
// @Tags 知识掌握
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.KnowledgeDeclaration} "成功"
// @Router /api/knowledge [get]
func (c *KnowledgeController) List(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	list, err := c.Service.List(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// Summary godoc
// @Summary 掌握情况统计
// @Tags 知识掌握
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response "按状态计数"
// @Router /api/knowledge/summary [get]
func (c *KnowledgeController) Summary(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	summary, err := c.Service.Summary(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, summary)
}

// Declare godoc
// @Summary 声明单元掌握情况
// @Description 同一单元重复声明会覆盖
// @Tags 知识掌握
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body DeclareKnowledgeRequest true "声明列表"
// @Success 200 {object} util.Response{data=[]model.KnowledgeDeclaration} "成功"
// @Router /api/knowledge [put]
func (c *KnowledgeController) Declare(ctx *gin.Context) {
	var req DeclareKnowledgeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	list, err := c.Service.Upsert(ctx.Request.Context(), claims.UserID, req.Declarations)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// Delete godoc
// @Summary 删除单元声明
// @Tags 知识掌握
// @Produce  json
// @Security ApiKeyAuth
// @Param   unitId path int true "单元ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/knowledge/{unitId} [delete]
func (c *KnowledgeController) Delete(ctx *gin.Context) {
	unitID, ok := util.ParamUint(ctx, "unitId")
	if !ok {
		util.BadRequest(ctx, "invalid unit id")
		return
	}
	claims := util.GetUserFromContext(ctx)
	if err := c.Service.Delete(ctx.Request.Context(), claims.UserID, unitID); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
