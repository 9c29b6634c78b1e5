package controller

import (
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/service"
	"paes_math_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

// CurriculumController 主题轴 / 单元 / 知识点
type CurriculumController struct {
	Service *service.CurriculumService
}

func NewCurriculumController(s *service.CurriculumService) *CurriculumController {
	return &CurriculumController{Service: s}
}

// Tree godoc
// @Summary 课程树
// @Description 主题轴 -> 单元 -> 知识点，可按 M1/M2 过滤
// @Tags 课程
// @Produce  json
// @Param   level query string false "M1 或 M2"
// @Success 200 {object} util.Response{data=[]model.ThematicAxis} "成功"
// @Router /api/curriculum/tree [get]
func (c *CurriculumController) Tree(ctx *gin.Context) {
	tree, err := c.Service.Tree(ctx.Request.Context(), model.TestLevel(ctx.Query("level")))
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, tree)
}

// ListUnits godoc
// @Summary 单元列表 / 搜索
// @Tags 课程
// @Produce  json
// @Param   level query string false "M1 或 M2"
// @Param   q query string false "关键字"
// @Success 200 {object} util.Response{data=[]model.Unit} "成功"
// @Router /api/curriculum/units [get]
func (c *CurriculumController) ListUnits(ctx *gin.Context) {
	var (
		units []model.Unit
		err   error
	)
	if q := ctx.Query("q"); q != "" {
		units, err = c.Service.SearchUnits(ctx.Request.Context(), q, 20)
	} else {
		units, err = c.Service.ListUnits(ctx.Request.Context(), model.TestLevel(ctx.Query("level")))
	}
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, units)
}

// GetUnit godoc
// @Summary 单元详情
// @Tags 课程
// @Produce  json
// @Param   id path string true "单元ID或单元代码"
// @Success 200 {object} util.Response{data=model.Unit} "成功"
// @Failure 404 {object} util.Response "单元不存在"
// @Router /api/curriculum/units/{id} [get]
func (c *CurriculumController) GetUnit(ctx *gin.Context) {
	var (
		unit *model.Unit
		err  error
	)
	if id, parseErr := strconv.ParseUint(ctx.Param("id"), 10, 32); parseErr == nil {
		unit, err = c.Service.GetUnit(ctx.Request.Context(), uint(id))
	} else {
		unit, err = c.Service.UnitByCode(ctx.Request.Context(), ctx.Param("id"))
	}
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, unit)
}

// ListAxes godoc
// @Summary 主题轴列表
// @Tags 课程
// @Produce  json
// @Success 200 {object} util.Response{data=[]model.ThematicAxis} "成功"
// @Router /api/curriculum/axes [get]
func (c *CurriculumController) ListAxes(ctx *gin.Context) {
	axes, err := c.Service.ListAxes(ctx.Request.Context())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, axes)
}

// CreateAxis godoc
// @Summary 新建主题轴
// @Tags 课程管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.AxisRequest true "主题轴"
// @Success 201 {object} util.Response{data=model.ThematicAxis} "创建成功"
// @Router /api/teacher/curriculum/axes [post]
func (c *CurriculumController) CreateAxis(ctx *gin.Context) {
	var req service.AxisRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	axis, err := c.Service.CreateAxis(ctx.Request.Context(), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, axis)
}

// UpdateAxis godoc
// @Summary 修改主题轴
// @Tags 课程管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "主题轴ID"
// @Param   body body service.AxisRequest true "主题轴"
// @Success 200 {object} util.Response{data=model.ThematicAxis} "成功"
// @Router /api/teacher/curriculum/axes/{id} [put]
func (c *CurriculumController) UpdateAxis(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid axis id")
		return
	}
	var req service.AxisRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	axis, err := c.Service.UpdateAxis(ctx.Request.Context(), id, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, axis)
}

// DeleteAxis godoc
// @Summary 删除主题轴
// @Tags 课程管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "主题轴ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/teacher/curriculum/axes/{id} [delete]
func (c *CurriculumController) DeleteAxis(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid axis id")
		return
	}
	if err := c.Service.DeleteAxis(ctx.Request.Context(), id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// CreateUnit godoc
// @Summary 新建单元
// @Tags 课程管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.UnitRequest true "单元"
// @Success 201 {object} util.Response{data=model.Unit} "创建成功"
// @Router /api/teacher/curriculum/units [post]
func (c *CurriculumController) CreateUnit(ctx *gin.Context) {
	var req service.UnitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	unit, err := c.Service.CreateUnit(ctx.Request.Context(), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, unit)
}

// UpdateUnit godoc
// @Summary 修改单元
// @Tags 课程管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "单元ID"
// @Param   body body service.UnitRequest true "单元"
// @Success 200 {object} util.Response{data=model.Unit} "成功"
// @Router /api/teacher/curriculum/units/{id} [put]
func (c *CurriculumController) UpdateUnit(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid unit id")
		return
	}
	var req service.UnitRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	unit, err := c.Service.UpdateUnit(ctx.Request.Context(), id, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, unit)
}

// DeleteUnit godoc
// @Summary 删除单元（级联删除知识点）
// @Tags 课程管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "单元ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/teacher/curriculum/units/{id} [delete]
func (c *CurriculumController) DeleteUnit(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid unit id")
		return
	}
	if err := c.Service.DeleteUnit(ctx.Request.Context(), id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// CreateTopic godoc
// @Summary 新建知识点
// @Tags 课程管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.TopicRequest true "知识点"
// @Success 201 {object} util.Response{data=model.Topic} "创建成功"
// @Router /api/teacher/curriculum/topics [post]
func (c *CurriculumController) CreateTopic(ctx *gin.Context) {
	var req service.TopicRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	topic, err := c.Service.CreateTopic(ctx.Request.Context(), req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, topic)
}

// UpdateTopic godoc
// @Summary 修改知识点
// @Tags 课程管理
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "知识点ID"
// @Param   body body service.TopicRequest true "知识点"
// @Success 200 {object} util.Response{data=model.Topic} "成功"
// @Router /api/teacher/curriculum/topics/{id} [put]
func (c *CurriculumController) UpdateTopic(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid topic id")
		return
	}
	var req service.TopicRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	topic, err := c.Service.UpdateTopic(ctx.Request.Context(), id, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, topic)
}

// DeleteTopic godoc
// @Summary 删除知识点
// @Tags 课程管理
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "知识点ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/teacher/curriculum/topics/{id} [delete]
func (c *CurriculumController) DeleteTopic(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid topic id")
		return
	}
	if err := c.Service.DeleteTopic(ctx.Request.Context(), id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
