package controller

import (
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/service"
	"paes_math_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AuthController struct {
	AuthService *service.AuthService
}

func NewAuthController(authService *service.AuthService) *AuthController {
	return &AuthController{AuthService: authService}
}

// Register godoc
// @Summary 注册学生账号
// @Description 使用姓名、邮箱、密码注册，level 为 M1 或 M2
// @Tags 认证
// @Accept  json
// @Produce  json
// @Param   body body service.RegisterRequest true "注册信息"
// @Success 201 {object} util.Response{data=service.AuthResult} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 409 {object} util.Response "邮箱已被注册"
// @Router /api/auth/register [post]
func (c *AuthController) Register(ctx *gin.Context) {
	var req service.RegisterRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.AuthService.Register(ctx.Request.Context(), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// Login godoc
// @Summary 用户登录
// @Description 验证邮箱和密码，返回 JWT
// @Tags 认证
// @Accept  json
// @Produce  json
// @Param   body body service.LoginRequest true "登录凭据"
// @Success 200 {object} util.Response{data=service.AuthResult} "登录成功"
// @Failure 401 {object} util.Response "凭据错误或账号被禁用"
// @Router /api/auth/login [post]
func (c *AuthController) Login(ctx *gin.Context) {
	var req service.LoginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	result, err := c.AuthService.Login(ctx.Request.Context(), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

type DemoRequest struct {
	Level model.TestLevel `json:"level" example:"M1"`
}

// Demo godoc
// @Summary 创建体验账号
// @Description 生成一个有时效的演示学生账号并直接返回令牌
// @Tags 认证
// @Accept  json
// @Produce  json
// @Param   body body DemoRequest false "体验的试卷级别"
// @Success 201 {object} util.Response{data=service.AuthResult} "创建成功"
// @Failure 403 {object} util.Response "体验账号已关闭"
// @Router /api/auth/demo [post]
func (c *AuthController) Demo(ctx *gin.Context) {
	var req DemoRequest
	// body 可以为空
	_ = ctx.ShouldBindJSON(&req)

	result, err := c.AuthService.CreateDemoAccount(ctx.Request.Context(), req.Level)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, result)
}

// Profile godoc
// @Summary 当前用户信息
// @Tags 用户
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=model.User} "成功"
// @Router /api/user/profile [get]
func (c *AuthController) Profile(ctx *gin.Context) {
	claims := util.GetUserFromContext(ctx)
	user, err := c.AuthService.Profile(ctx.Request.Context(), claims.UserID)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// UpdateProfile godoc
// @Summary 修改个人信息
// @Tags 用户
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.UpdateProfileRequest true "姓名 / 级别"
// @Success 200 {object} util.Response{data=model.User} "成功"
// @Router /api/user/profile [put]
func (c *AuthController) UpdateProfile(ctx *gin.Context) {
	var req service.UpdateProfileRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	user, err := c.AuthService.UpdateProfile(ctx.Request.Context(), claims.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// ChangePassword godoc
// @Summary 修改密码
// @Tags 用户
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.ChangePasswordRequest true "旧密码与新密码"
// @Success 200 {object} util.Response "成功"
// @Failure 400 {object} util.Response "旧密码错误"
// @Router /api/user/password [put]
func (c *AuthController) ChangePassword(ctx *gin.Context) {
	var req service.ChangePasswordRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	if err := c.AuthService.ChangePassword(ctx.Request.Context(), claims.UserID, req); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
