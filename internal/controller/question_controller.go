package controller

import (
	"bytes"
	"fmt"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/repository"
	"paes_math_backend/internal/service"
	"paes_math_backend/internal/util"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const maxImportSize = 5 << 20

type QuestionController struct {
	Service *service.QuestionService
}

func NewQuestionController(s *service.QuestionService) *QuestionController {
	return &QuestionController{Service: s}
}

func questionFilter(ctx *gin.Context) repository.QuestionFilter {
	filter := repository.QuestionFilter{
		Level:  model.TestLevel(ctx.Query("level")),
		UnitID: util.MustParseUint(ctx.Query("unitId")),
		Type:   model.QuestionType(ctx.Query("type")),
		Search: ctx.Query("search"),
	}
	if topicID := util.MustParseUint(ctx.Query("topicId")); topicID > 0 {
		filter.TopicID = topicID
	}
	filter.Difficulty, _ = strconv.Atoi(ctx.Query("difficulty"))
	filter.PublishedOnly = ctx.Query("published") == "true"
	return filter
}

// List godoc
// @Summary 题库列表（教师）
// @Tags 题库
// @Produce  json
// @Security ApiKeyAuth
// @Param   level query string false "M1 或 M2"
// @Param   unitId query int false "单元ID"
// @Param   topicId query int false "知识点ID"
// @Param   difficulty query int false "难度 1-3"
// @Param   type query string false "multiple_choice / numeric"
// @Param   search query string false "题干关键字"
// @Param   published query bool false "只看已发布"
// @Param   page query int false "页码"
// @Param   limit query int false "每页数量"
// @Success 200 {object} util.Response{data=util.PageResponse} "成功"
// @Router /api/teacher/questions [get]
func (c *QuestionController) List(ctx *gin.Context) {
	page, limit := util.PageParams(ctx)
	list, total, err := c.Service.List(ctx.Request.Context(), questionFilter(ctx), page, limit)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Page(ctx, list, total, page, limit)
}

// Get godoc
// @Summary 题目详情（含答案）
// @Tags 题库
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "题目ID"
// @Success 200 {object} util.Response{data=model.Question} "成功"
// @Router /api/teacher/questions/{id} [get]
func (c *QuestionController) Get(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid question id")
		return
	}
	q, err := c.Service.Get(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// Create godoc
// @Summary 新建题目
// @Tags 题库
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.QuestionRequest true "题目"
// @Success 201 {object} util.Response{data=model.Question} "创建成功"
// @Failure 400 {object} util.Response "题目不合法"
// @Router /api/teacher/questions [post]
func (c *QuestionController) Create(ctx *gin.Context) {
	var req service.QuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	q, err := c.Service.Create(ctx.Request.Context(), claims.UserID, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Created(ctx, q)
}

// Update godoc
// @Summary 修改题目
// @Tags 题库
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "题目ID"
// @Param   body body service.QuestionRequest true "题目"
// @Success 200 {object} util.Response{data=model.Question} "成功"
// @Router /api/teacher/questions/{id} [put]
func (c *QuestionController) Update(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid question id")
		return
	}
	var req service.QuestionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	q, err := c.Service.Update(ctx.Request.Context(), id, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// Delete godoc
// @Summary 删除题目
// @Tags 题库
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "题目ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/teacher/questions/{id} [delete]
func (c *QuestionController) Delete(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid question id")
		return
	}
	if err := c.Service.Delete(ctx.Request.Context(), id); err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}

// Import godoc
// @Summary Excel 批量导入题目
// @Description 任一行不合法则整批不导入，返回逐行错误
// @Tags 题库
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   file formData file true "xlsx 文件"
// @Success 200 {object} util.Response{data=service.ImportResult} "导入结果"
// @Failure 400 {object} util.Response "文件不合法"
// @Router /api/teacher/questions/import [post]
func (c *QuestionController) Import(ctx *gin.Context) {
	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "file is required")
		return
	}
	if file.Size > maxImportSize {
		util.BadRequest(ctx, "file is too large")
		return
	}
	if !util.HasExtension(file.Filename, []string{".xlsx"}) {
		util.BadRequest(ctx, "only .xlsx files are accepted")
		return
	}
	src, err := file.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer src.Close()

	claims := util.GetUserFromContext(ctx)
	result, err := c.Service.ImportXLSX(ctx.Request.Context(), claims.UserID, src)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Export godoc
// @Summary 导出题目为 Excel
// @Tags 题库
// @Produce  application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security ApiKeyAuth
// @Param   level query string false "M1 或 M2"
// @Param   unitId query int false "单元ID"
// @Success 200 {file} file "xlsx"
// @Router /api/teacher/questions/export [get]
func (c *QuestionController) Export(ctx *gin.Context) {
	var buf bytes.Buffer
	if _, err := c.Service.ExportXLSX(ctx.Request.Context(), questionFilter(ctx), &buf); err != nil {
		util.RespondError(ctx, err)
		return
	}
	filename := fmt.Sprintf("preguntas-%s.xlsx", time.Now().Format("20060102"))
	ctx.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	ctx.Data(200, util.MimeXLSX, buf.Bytes())
}

// Practice godoc
// @Summary 获取练习题
// @Description 随机抽取已发布题目，不含答案
// @Tags 练习
// @Produce  json
// @Security ApiKeyAuth
// @Param   level query string true "M1 或 M2"
// @Param   unitId query int false "单元ID"
// @Param   difficulty query int false "难度 1-3"
// @Param   count query int false "题数，默认 10，最多 50"
// @Success 200 {object} util.Response{data=[]model.Question} "成功"
// @Router /api/practice/questions [get]
func (c *QuestionController) Practice(ctx *gin.Context) {
	difficulty, _ := strconv.Atoi(ctx.Query("difficulty"))
	count, _ := strconv.Atoi(ctx.Query("count"))
	questions, err := c.Service.PracticeSet(ctx.Request.Context(),
		model.TestLevel(ctx.Query("level")),
		util.MustParseUint(ctx.Query("unitId")),
		difficulty, count)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, questions)
}

// GetPracticeQuestion godoc
// @Summary 练习题详情（不含答案）
// @Tags 练习
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "题目ID"
// @Success 200 {object} util.Response{data=model.Question} "成功"
// @Router /api/practice/questions/{id} [get]
func (c *QuestionController) GetPracticeQuestion(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid question id")
		return
	}
	q, err := c.Service.GetForStudent(ctx.Request.Context(), id)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, q)
}

// Answer godoc
// @Summary 提交练习答案
// @Description 按题库中的正确答案判分并记录作答
// @Tags 练习
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "题目ID"
// @Param   body body service.PracticeAnswerRequest true "答案"
// @Success 200 {object} util.Response{data=service.PracticeResult} "判分结果"
// @Router /api/practice/questions/{id}/answer [post]
func (c *QuestionController) Answer(ctx *gin.Context) {
	id, ok := util.ParamUint(ctx, "id")
	if !ok {
		util.BadRequest(ctx, "invalid question id")
		return
	}
	var req service.PracticeAnswerRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	result, err := c.Service.AnswerPractice(ctx.Request.Context(), claims.UserID, id, req)
	if err != nil {
		util.RespondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}
