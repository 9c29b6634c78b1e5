package controller

import (
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/service"
	"paes_math_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type LiveSessionController struct {
	Service *service.LiveSessionService
	Hub     *service.SessionHub
}

func NewLiveSessionController(s *service.LiveSessionService, hub *service.SessionHub) *LiveSessionController {
	return &LiveSessionController{Service: s, Hub: hub}
}

// SubmitSessionRequest 交卷请求，key 为题目ID
type SubmitSessionRequest struct {
	Answers map[uint]string `json:"answers" binding:"required"`
}

func sessionID(ctx *gin.Context) (uint, bool) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid session id")
	}
	return id, ok
}

// ---------------- 教师端 ----------------

// Create godoc
// @Summary 创建模拟考场次
// @Tags 模拟考-教师
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.CreateSessionRequest true "场次信息"
// @Success 201 {object} util.Response{data=model.LiveSession} "创建成功"
// @Failure 400 {object} util.Response "参数错误"
// @Router /api/teacher/live-sessions [post]
func (c *LiveSessionController) Create(ctx *gin.Context) {
	var req service.CreateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	session, err := c.Service.Create(ctx.Request.Context(), claims.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, session)
}

// ListMine godoc
// @Summary 我创建的场次
// @Description 管理员可以看到全部场次
// @Tags 模拟考-教师
// @Produce  json
// @Security ApiKeyAuth
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/teacher/live-sessions [get]
func (c *LiveSessionController) ListMine(ctx *gin.Context) {
	page, limit := util.PageParams(ctx)
	actor := service.ActorFromClaims(util.GetUserFromContext(ctx))
	list, total, err := c.Service.ListMine(ctx.Request.Context(), actor, page, limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Page(ctx, list, total, page, limit)
}

// Update godoc
// @Summary 修改场次
// @Description 仅未开始的场次可以修改；名额不能低于已报名人数
// @Tags 模拟考-教师
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Param   body body service.UpdateSessionRequest true "修改内容"
// @Success 200 {object} util.Response{data=model.LiveSession} "成功"
// @Failure 400 {object} util.Response "状态不允许"
// @Router /api/teacher/live-sessions/{id} [put]
func (c *LiveSessionController) Update(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	var req service.UpdateSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	actor := service.ActorFromClaims(util.GetUserFromContext(ctx))
	session, err := c.Service.Update(ctx.Request.Context(), actor, id, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

type sessionTransition func(*service.LiveSessionService, *gin.Context, service.Actor, uint) (*model.LiveSession, error)

func (c *LiveSessionController) transition(ctx *gin.Context, fn sessionTransition) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	actor := service.ActorFromClaims(util.GetUserFromContext(ctx))
	session, err := fn(c.Service, ctx, actor, id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, session)
}

// Start godoc
// @Summary 手动开考
// @Tags 模拟考-教师
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=model.LiveSession} "成功"
// @Router /api/teacher/live-sessions/{id}/start [post]
func (c *LiveSessionController) Start(ctx *gin.Context) {
	c.transition(ctx, func(s *service.LiveSessionService, ctx *gin.Context, a service.Actor, id uint) (*model.LiveSession, error) {
		return s.Start(ctx.Request.Context(), a, id)
	})
}

// Finish godoc
// @Summary 结束场次
// @Description 结束后为已交卷学生签发证书
// @Tags 模拟考-教师
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=model.LiveSession} "成功"
// @Router /api/teacher/live-sessions/{id}/finish [post]
func (c *LiveSessionController) Finish(ctx *gin.Context) {
	c.transition(ctx, func(s *service.LiveSessionService, ctx *gin.Context, a service.Actor, id uint) (*model.LiveSession, error) {
		return s.Finish(ctx.Request.Context(), a, id)
	})
}

// Cancel godoc
// @Summary 取消场次
// @Tags 模拟考-教师
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=model.LiveSession} "成功"
// @Router /api/teacher/live-sessions/{id}/cancel [post]
func (c *LiveSessionController) Cancel(ctx *gin.Context) {
	c.transition(ctx, func(s *service.LiveSessionService, ctx *gin.Context, a service.Actor, id uint) (*model.LiveSession, error) {
		return s.Cancel(ctx.Request.Context(), a, id)
	})
}

// Delete godoc
// @Summary 删除场次
// @Tags 模拟考-教师
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/teacher/live-sessions/{id} [delete]
func (c *LiveSessionController) Delete(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	actor := service.ActorFromClaims(util.GetUserFromContext(ctx))
	if err := c.Service.Delete(ctx.Request.Context(), actor, id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// Results godoc
// @Summary 场次成绩排行
// @Tags 模拟考-教师
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=[]model.SessionResultRow} "成功"
// @Router /api/teacher/live-sessions/{id}/results [get]
func (c *LiveSessionController) Results(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	actor := service.ActorFromClaims(util.GetUserFromContext(ctx))
	session, rows, err := c.Service.Results(ctx.Request.Context(), actor, id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{
		"session": session,
		"results": rows,
		"online":  len(c.Hub.OnlineUsers(id)),
	})
}

// ---------------- 学生端 ----------------

// ListUpcoming godoc
// @Summary 即将开始的场次
// @Tags 模拟考
// @Produce  json
// @Security ApiKeyAuth
// @Param   level query string false "M1 或 M2"
// @Success 200 {object} util.Response{data=[]service.LiveSessionView} "成功"
// @Router /api/live-sessions [get]
func (c *LiveSessionController) ListUpcoming(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	list, err := c.Service.ListUpcoming(ctx.Request.Context(), claims.UserID, model.TestLevel(ctx.Query("level")))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// Get godoc
// @Summary 场次详情
// @Tags 模拟考
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=service.LiveSessionView} "成功"
// @Failure 404 {object} util.Response "场次不存在"
// @Router /api/live-sessions/{id} [get]
func (c *LiveSessionController) Get(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	view, err := c.Service.Get(ctx.Request.Context(), claims.UserID, id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// Register godoc
// @Summary 报名场次
// @Description 名额在行锁内检查，重复报名直接返回成功
// @Tags 模拟考
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=service.RegisterResult} "成功"
// @Failure 400 {object} util.Response "名额已满或场次已关闭"
// @Router /api/live-sessions/{id}/register [post]
func (c *LiveSessionController) Register(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	result, err := c.Service.Register(ctx.Request.Context(), claims.UserID, id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Unregister godoc
// @Summary 取消报名
// @Tags 模拟考
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/live-sessions/{id}/register [delete]
func (c *LiveSessionController) Unregister(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	if err := c.Service.Unregister(ctx.Request.Context(), claims.UserID, id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// Join godoc
// @Summary 进入考场
// @Tags 模拟考
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=service.JoinResult} "成功"
// @Failure 400 {object} util.Response "场次未开放或已满"
// @Router /api/live-sessions/{id}/join [post]
func (c *LiveSessionController) Join(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	result, err := c.Service.Join(ctx.Request.Context(), claims.UserID, id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Questions godoc
// @Summary 获取考题
// @Description 开考后且已入场才可获取，不含答案
// @Tags 模拟考
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=[]service.SessionQuestionView} "成功"
// @Router /api/live-sessions/{id}/questions [get]
func (c *LiveSessionController) Questions(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	questions, err := c.Service.SessionQuestions(ctx.Request.Context(), claims.UserID, id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, questions)
}

// Submit godoc
// @Summary 交卷
// @Description 每人只能交一次
// @Tags 模拟考
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Param   body body SubmitSessionRequest true "答案"
// @Success 200 {object} util.Response{data=service.SubmissionResult} "成绩"
// @Failure 409 {object} util.Response "已交卷"
// @Router /api/live-sessions/{id}/submit [post]
func (c *LiveSessionController) Submit(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	var req SubmitSessionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	result, err := c.Service.Submit(ctx.Request.Context(), claims.UserID, id, req.Answers)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// MyResult godoc
// @Summary 我的成绩
// @Tags 模拟考
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Success 200 {object} util.Response{data=service.SubmissionResult} "成绩"
// @Router /api/live-sessions/{id}/result [get]
func (c *LiveSessionController) MyResult(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	result, err := c.Service.MyResult(ctx.Request.Context(), claims.UserID, id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Ws godoc
// @Summary 场次实时事件 WebSocket
// @Description 已报名/已入场学生、场次教师或管理员可以订阅；token 可通过 query 传递
// @Tags 模拟考
// @Security ApiKeyAuth
// @Param   id path int true "场次ID"
// @Param   token query string false "JWT"
// @Router /api/live-sessions/{id}/ws [get]
func (c *LiveSessionController) Ws(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	claims := util.GetUserFromContext(ctx)
	view, err := c.Service.Get(ctx.Request.Context(), claims.UserID, id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	actor := service.ActorFromClaims(claims)
	if !view.IsRegistered && !view.HasJoined && view.TeacherID != actor.UserID && !actor.IsAdmin() {
		util.RespondError(ctx, util.ErrPermissionDenied)
		return
	}
	if view.Status.Closed() {
		util.RespondError(ctx, util.ErrSessionClosed)
		return
	}
	service.ServeSessionWs(c.Hub, ctx.Writer, ctx.Request, id, claims.UserID)
}
