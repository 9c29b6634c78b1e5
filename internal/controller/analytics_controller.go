package controller

import (
	"bytes"
	"fmt"
	"paes_math_backend/internal/service"
	"paes_math_backend/internal/util"
	"strconv"

	"github.com/gin-gonic/gin"
)

type AnalyticsController struct {
	AnalyticsService *service.AnalyticsService
}

func NewAnalyticsController(analyticsService *service.AnalyticsService) *AnalyticsController {
	return &AnalyticsController{AnalyticsService: analyticsService}
}

// GetOverview godoc
// @Summary 学生学习概览
// @Description 正确率（按主题轴/单元）、每周练习量、模拟考历史和知识声明统计
// @Tags 分析
// @Produce json
// @Security ApiKeyAuth
// @Param weeks query int false "周数" default(8)
// @Success 200 {object} util.Response{data=model.StudentOverview}
// @Router /api/analytics/overview [get]
func (c *AnalyticsController) GetOverview(ctx *gin.Context) {
	user := util.GetUserFromContext(ctx)
	weeks, _ := strconv.Atoi(ctx.DefaultQuery("weeks", "8"))

	overview, err := c.AnalyticsService.Overview(ctx.Request.Context(), user.UserID, weeks)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, overview)
}

// GetSessionStats godoc
// @Summary 场次统计
// @Tags 分析
// @Produce json
// @Security ApiKeyAuth
// @Param id path int true "场次ID"
// @Success 200 {object} util.Response{data=model.SessionStats}
// @Router /api/teacher/live-sessions/{id}/stats [get]
func (c *AnalyticsController) GetSessionStats(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	actor := service.ActorFromClaims(util.GetUserFromContext(ctx))
	stats, err := c.AnalyticsService.SessionStats(ctx.Request.Context(), actor, id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, stats)
}

// ExportSessionResults godoc
// @Summary 导出场次成绩 Excel
// @Tags 分析
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security ApiKeyAuth
// @Param id path int true "场次ID"
// @Success 200 {file} file "xlsx"
// @Router /api/teacher/live-sessions/{id}/export [get]
func (c *AnalyticsController) ExportSessionResults(ctx *gin.Context) {
	id, ok := sessionID(ctx)
	if !ok {
		return
	}
	actor := service.ActorFromClaims(util.GetUserFromContext(ctx))
	var buf bytes.Buffer
	if _, err := c.AnalyticsService.ExportSessionResults(ctx.Request.Context(), actor, id, &buf); err != nil {
		util.RespondError(ctx, err)
		return
	}
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="ensayo-%d-resultados.xlsx"`, id))
	ctx.Data(200, util.MimeXLSX, buf.Bytes())
}

// GetPlatformOverview godoc
// @Summary 平台概览（管理员）
// @Tags 分析
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=model.PlatformOverview}
// @Router /api/admin/analytics [get]
func (c *AnalyticsController) GetPlatformOverview(ctx *gin.Context) {
	overview, err := c.AnalyticsService.PlatformOverview(ctx.Request.Context())
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, overview)
}
