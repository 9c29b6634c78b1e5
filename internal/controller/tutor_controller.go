package controller

import (
	"paes_math_backend/internal/service"
	"paes_math_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type TutorController struct {
	Service *service.TutorService
}

func NewTutorController(s *service.TutorService) *TutorController {
	return &TutorController{Service: s}
}

// StartConversation godoc
// @Summary 新建辅导对话
// @Description 可选关联单元或题目；带 message 时立即返回 AI 回复
// @Tags AI辅导
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.StartConversationRequest true "对话信息"
// @Success 201 {object} util.Response{data=service.TutorReply} "成功"
// @Router /api/ai/tutor/conversations [post]
func (c *TutorController) StartConversation(ctx *gin.Context) {
	var req service.StartConversationRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	reply, err := c.Service.StartConversation(ctx.Request.Context(), claims.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, reply)
}

// ListConversations godoc
// @Summary 我的辅导对话
// @Tags AI辅导
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.TutorConversation} "成功"
// @Router /api/ai/tutor/conversations [get]
func (c *TutorController) ListConversations(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	list, err := c.Service.ListConversations(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// GetConversation godoc
// @Summary 对话详情（含消息）
// @Tags AI辅导
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "对话ID"
// @Success 200 {object} util.Response{data=model.TutorConversation} "成功"
// @Router /api/ai/tutor/conversations/{id} [get]
func (c *TutorController) GetConversation(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	conv, err := c.Service.GetConversation(ctx.Request.Context(), claims.UserID, ctx.Param("id"))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, conv)
}

// SendMessage godoc
// @Summary 发送消息
// @Tags AI辅导
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "对话ID"
// @Param   body body service.SendMessageRequest true "消息"
// @Success 200 {object} util.Response{data=service.TutorReply} "AI 回复"
// @Failure 503 {object} util.Response "AI 服务不可用"
// @Router /api/ai/tutor/conversations/{id}/messages [post]
func (c *TutorController) SendMessage(ctx *gin.Context) {
	var req service.SendMessageRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	reply, err := c.Service.SendMessage(ctx.Request.Context(), claims.UserID, ctx.Param("id"), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, reply)
}

// DeleteConversation godoc
// @Summary 删除对话
// @Tags AI辅导
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path string true "对话ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/ai/tutor/conversations/{id} [delete]
func (c *TutorController) DeleteConversation(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	if err := c.Service.DeleteConversation(ctx.Request.Context(), claims.UserID, ctx.Param("id")); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
