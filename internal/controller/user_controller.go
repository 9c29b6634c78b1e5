package controller

import (
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/repository"
	"paes_math_backend/internal/service"
	"paes_math_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

// UserController 管理员用户管理
type UserController struct {
	UserService *service.UserService
}

func NewUserController(userService *service.UserService) *UserController {
	return &UserController{UserService: userService}
}

// ListUsers godoc
// @Summary 用户列表
// @Tags 管理员
// @Produce  json
// @Security ApiKeyAuth
// @Param   role query string false "角色 student/teacher/admin"
// @Param   search query string false "姓名或邮箱"
// @Param   demo query bool false "只看体验账号"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/admin/users [get]
func (c *UserController) ListUsers(ctx *gin.Context) {
	page, limit := util.PageParams(ctx)
	filter := repository.UserFilter{
		Role:   model.UserRole(ctx.Query("role")),
		Search: ctx.Query("search"),
	}
	if v := ctx.Query("demo"); v != "" {
		demo, err := strconv.ParseBool(v)
		if err != nil {
			util.BadRequest(ctx, "demo must be a boolean")
			return
		}
		filter.IsDemo = &demo
	}

	users, total, err := c.UserService.ListUsers(ctx.Request.Context(), filter, page, limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Page(ctx, users, total, page, limit)
}

// GetUser godoc
// @Summary 用户详情
// @Tags 管理员
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "用户ID"
// @Success 200 {object} util.Response{data=model.User} "成功"
// @Failure 404 {object} util.Response "用户不存在"
// @Router /api/admin/users/{id} [get]
func (c *UserController) GetUser(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid user id")
		return
	}
	user, err := c.UserService.GetUser(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// UpdateUser godoc
// @Summary 修改用户
// @Tags 管理员
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "用户ID"
// @Param   body body service.AdminUpdateUserRequest true "修改内容"
// @Success 200 {object} util.Response{data=model.User} "成功"
// @Router /api/admin/users/{id} [put]
func (c *UserController) UpdateUser(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid user id")
		return
	}
	var req service.AdminUpdateUserRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	user, err := c.UserService.UpdateUser(ctx.Request.Context(), id, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

// DisableUser godoc
// @Summary 禁用 / 启用用户
// @Tags 管理员
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "用户ID"
// @Param   disabled query bool false "默认 true"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/users/{id}/disable [post]
func (c *UserController) DisableUser(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid user id")
		return
	}
	disable, err := strconv.ParseBool(ctx.DefaultQuery("disabled", "true"))
	if err != nil {
		util.BadRequest(ctx, "disabled must be a boolean")
		return
	}
	if err := c.UserService.DisableUser(ctx.Request.Context(), id, disable); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": id, "disabled": disable})
}

// ResetPassword godoc
// @Summary 重置密码
// @Description 生成临时密码，只在响应中返回一次
// @Tags 管理员
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "用户ID"
// @Success 200 {object} util.Response{data=object} "成功"
// @Router /api/admin/users/{id}/reset-password [post]
func (c *UserController) ResetPassword(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid user id")
		return
	}
	temp, err := c.UserService.ResetPassword(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"tempPassword": temp})
}

// DeleteUser godoc
// @Summary 删除用户
// @Tags 管理员
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "用户ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/admin/users/{id} [delete]
func (c *UserController) DeleteUser(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid user id")
		return
	}
	claims := util.GetUserFromContext(ctx)
	if claims != nil && claims.UserID == id {
		util.BadRequest(ctx, "cannot delete your own account")
		return
	}
	if err := c.UserService.DeleteUser(ctx.Request.Context(), id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// ProvisionTeacher godoc
// @Summary 创建教师账号
// @Tags 管理员
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.ProvisionTeacherRequest true "教师信息"
// @Success 201 {object} util.Response{data=service.ProvisionResult} "创建成功"
// @Failure 409 {object} util.Response "邮箱已被注册"
// @Router /api/admin/teachers [post]
func (c *UserController) ProvisionTeacher(ctx *gin.Context) {
	var req service.ProvisionTeacherRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	result, err := c.UserService.ProvisionTeacher(ctx.Request.Context(), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, result)
}
