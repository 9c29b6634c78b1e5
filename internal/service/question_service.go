package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/repository"
	"paes_math_backend/internal/util"
	"paes_math_backend/pkg/logger"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultPracticeCount = 10
	maxPracticeCount     = 50
	questionSheet        = "Preguntas"
)

// questionColumns 导入导出共用的表头
var questionColumns = []string{
	"level", "unit_code", "topic_code", "type", "stem",
	"option_a", "option_b", "option_c", "option_d", "option_e",
	"correct_answer", "explanation", "difficulty", "published",
}

var optionKeys = []string{"A", "B", "C", "D", "E"}

// QuestionStore 题库持久化接口，由 repository.QuestionRepository 实现
type QuestionStore interface {
	Create(ctx context.Context, q *model.Question) error
	CreateBatch(ctx context.Context, questions []model.Question) error
	FindByID(ctx context.Context, id uint) (*model.Question, error)
	FindByIDs(ctx context.Context, ids []uint) ([]model.Question, error)
	Update(ctx context.Context, q *model.Question) error
	Delete(ctx context.Context, id uint) error
	List(ctx context.Context, filter repository.QuestionFilter, page, limit int) ([]model.Question, int64, error)
	ListAll(ctx context.Context, filter repository.QuestionFilter) ([]model.Question, error)
	RandomPublished(ctx context.Context, filter repository.QuestionFilter, count int, excludeIDs []uint) ([]model.Question, error)
	CreateAttempt(ctx context.Context, attempt *model.QuestionAttempt) error
	CreateAttempts(ctx context.Context, attempts []model.QuestionAttempt) error
	AccuracyByUnit(ctx context.Context, userID uint) ([]model.AccuracyStat, error)
}

// UnitLookup 题目归属单元校验
type UnitLookup interface {
	FindUnit(ctx context.Context, id uint) (*model.Unit, error)
	FindUnitByCode(ctx context.Context, code string) (*model.Unit, error)
}

type QuestionRequest struct {
	Level         model.TestLevel        `json:"level" binding:"required"`
	UnitID        uint                   `json:"unitId" binding:"required"`
	TopicID       *uint                  `json:"topicId"`
	Type          model.QuestionType     `json:"type" binding:"required"`
	Stem          string                 `json:"stem" binding:"required"`
	Options       []model.QuestionOption `json:"options"`
	CorrectAnswer string                 `json:"correctAnswer" binding:"required"`
	Explanation   string                 `json:"explanation"`
	Difficulty    int                    `json:"difficulty"`
	Source        string                 `json:"source"`
	IsPublished   bool                   `json:"isPublished"`
}

type PracticeAnswerRequest struct {
	Answer      string `json:"answer" binding:"required"`
	TimeSeconds int    `json:"timeSeconds" binding:"omitempty,min=0"`
}

// PracticeResult 练习题判分结果，作答后才返回答案和解析
type PracticeResult struct {
	QuestionID    uint   `json:"questionId"`
	IsCorrect     bool   `json:"isCorrect"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation"`
}

type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

// ImportResult 任意一行出错时整批不导入
type ImportResult struct {
	Imported int              `json:"imported"`
	Errors   []ImportRowError `json:"errors,omitempty"`
}

type QuestionService struct {
	Repo  QuestionStore
	Units UnitLookup
}

func NewQuestionService(repo QuestionStore, units UnitLookup) *QuestionService {
	return &QuestionService{Repo: repo, Units: units}
}

// build 校验单元 / 知识点归属并组装题目
func (s *QuestionService) build(ctx context.Context, q *model.Question, req QuestionRequest) error {
	unit, err := s.Units.FindUnit(ctx, req.UnitID)
	if err != nil {
		return notFound(err, util.ErrUnitNotFound)
	}
	if unit.Level != req.Level {
		return fmt.Errorf("%w: unit %s belongs to %s", util.ErrInvalidQuestion, unit.Code, unit.Level)
	}
	if req.TopicID != nil {
		found := false
		for _, t := range unit.Topics {
			if t.ID == *req.TopicID {
				found = true
				break
			}
		}
		if !found {
			return util.ErrTopicNotFound
		}
	}

	q.Level = req.Level
	q.UnitID = req.UnitID
	q.TopicID = req.TopicID
	q.Type = req.Type
	q.Stem = strings.TrimSpace(req.Stem)
	q.CorrectAnswer = strings.TrimSpace(req.CorrectAnswer)
	q.Explanation = req.Explanation
	q.Difficulty = req.Difficulty
	if q.Difficulty == 0 {
		q.Difficulty = 2
	}
	q.Source = req.Source
	q.IsPublished = req.IsPublished
	q.Options = nil
	if req.Type == model.QuestionMultipleChoice {
		for i := range req.Options {
			req.Options[i].Key = normalizeKey(req.Options[i].Key)
		}
		data, err := json.Marshal(req.Options)
		if err != nil {
			return err
		}
		q.Options = data
		q.CorrectAnswer = normalizeKey(q.CorrectAnswer)
	}

	if err := ValidateQuestion(q); err != nil {
		return fmt.Errorf("%w: %v", util.ErrInvalidQuestion, err)
	}
	return nil
}

func (s *QuestionService) Create(ctx context.Context, creatorID uint, req QuestionRequest) (*model.Question, error) {
	q := &model.Question{CreatorID: creatorID}
	if err := s.build(ctx, q, req); err != nil {
		return nil, err
	}
	if err := s.Repo.Create(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QuestionService) Get(ctx context.Context, id uint) (*model.Question, error) {
	q, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, util.ErrQuestionNotFound)
	}
	return q, nil
}

// GetForStudent 学生只能看到已发布题目，且不含答案
func (s *QuestionService) GetForStudent(ctx context.Context, id uint) (*model.Question, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !q.IsPublished {
		return nil, util.ErrQuestionNotFound
	}
	view := q.PublicView()
	return &view, nil
}

func (s *QuestionService) Update(ctx context.Context, id uint, req QuestionRequest) (*model.Question, error) {
	q, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.build(ctx, q, req); err != nil {
		return nil, err
	}
	if err := s.Repo.Update(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *QuestionService) Delete(ctx context.Context, id uint) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	return s.Repo.Delete(ctx, id)
}

func (s *QuestionService) List(ctx context.Context, filter repository.QuestionFilter, page, limit int) ([]model.Question, int64, error) {
	if filter.Level != "" && !filter.Level.Valid() {
		return nil, 0, util.ErrInvalidLevel
	}
	return s.Repo.List(ctx, filter, page, limit)
}

// PracticeSet 随机抽取已发布题目用于练习，隐藏答案
func (s *QuestionService) PracticeSet(ctx context.Context, level model.TestLevel, unitID uint, difficulty, count int) ([]model.Question, error) {
	if !level.Valid() {
		return nil, util.ErrInvalidLevel
	}
	if count <= 0 {
		count = defaultPracticeCount
	}
	if count > maxPracticeCount {
		count = maxPracticeCount
	}
	filter := repository.QuestionFilter{Level: level, UnitID: unitID, Difficulty: difficulty}
	questions, err := s.Repo.RandomPublished(ctx, filter, count, nil)
	if err != nil {
		return nil, err
	}
	views := make([]model.Question, 0, len(questions))
	for _, q := range questions {
		views = append(views, q.PublicView())
	}
	return views, nil
}

// AnswerPractice 按存储的正确答案判分并记录作答
func (s *QuestionService) AnswerPractice(ctx context.Context, userID, questionID uint, req PracticeAnswerRequest) (*PracticeResult, error) {
	q, err := s.Get(ctx, questionID)
	if err != nil {
		return nil, err
	}
	if !q.IsPublished {
		return nil, util.ErrQuestionNotFound
	}

	answer := strings.TrimSpace(req.Answer)
	correct := CheckAnswer(q, answer)
	attempt := &model.QuestionAttempt{
		UserID:      userID,
		QuestionID:  q.ID,
		Answer:      answer,
		IsCorrect:   correct,
		TimeSeconds: req.TimeSeconds,
		Context:     model.ContextPractice,
	}
	if err := s.Repo.CreateAttempt(ctx, attempt); err != nil {
		return nil, err
	}
	return &PracticeResult{
		QuestionID:    q.ID,
		IsCorrect:     correct,
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
	}, nil
}

// ImportXLSX 从第一张工作表读取题目，表头见 questionColumns
func (s *QuestionService) ImportXLSX(ctx context.Context, creatorID uint, r io.Reader) (*ImportResult, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", util.ErrInvalidFile)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", util.ErrInvalidFile, err)
	}
	if len(rows) < 2 {
		return &ImportResult{}, nil
	}

	header := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		header[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"level", "unit_code", "type", "stem", "correct_answer"} {
		if _, ok := header[required]; !ok {
			return nil, fmt.Errorf("%w: missing column %s", util.ErrInvalidFile, required)
		}
	}

	units := map[string]*model.Unit{}
	result := &ImportResult{}
	questions := make([]model.Question, 0, len(rows)-1)
	for i, row := range rows[1:] {
		rowNum := i + 2
		cell := func(name string) string {
			idx, ok := header[name]
			if !ok || idx >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[idx])
		}
		if cell("stem") == "" && cell("unit_code") == "" {
			continue
		}

		q, err := s.rowToQuestion(ctx, units, cell)
		if err != nil {
			result.Errors = append(result.Errors, ImportRowError{Row: rowNum, Message: err.Error()})
			continue
		}
		q.CreatorID = creatorID
		questions = append(questions, *q)
	}

	if len(result.Errors) > 0 {
		return result, nil
	}
	if err := s.Repo.CreateBatch(ctx, questions); err != nil {
		return nil, err
	}
	result.Imported = len(questions)
	logger.Log.Info("Questions imported", zap.Uint("creatorId", creatorID), zap.Int("count", result.Imported))
	return result, nil
}

func (s *QuestionService) rowToQuestion(ctx context.Context, units map[string]*model.Unit, cell func(string) string) (*model.Question, error) {
	code := normalizeCode(cell("unit_code"))
	unit, ok := units[code]
	if !ok {
		u, err := s.Units.FindUnitByCode(ctx, code)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("unknown unit code %q", code)
		}
		if err != nil {
			return nil, err
		}
		units[code] = u
		unit = u
	}

	req := QuestionRequest{
		Level:         model.TestLevel(strings.ToUpper(cell("level"))),
		UnitID:        unit.ID,
		Type:          model.QuestionType(strings.ToLower(cell("type"))),
		Stem:          cell("stem"),
		CorrectAnswer: cell("correct_answer"),
		Explanation:   cell("explanation"),
		Source:        "xlsx",
	}
	if topicCode := normalizeCode(cell("topic_code")); topicCode != "" {
		for _, t := range unit.Topics {
			if t.Code == topicCode {
				id := t.ID
				req.TopicID = &id
			}
		}
		if req.TopicID == nil {
			return nil, fmt.Errorf("unknown topic code %q in unit %s", topicCode, unit.Code)
		}
	}
	if d := cell("difficulty"); d != "" {
		n, err := strconv.Atoi(d)
		if err != nil {
			return nil, fmt.Errorf("difficulty %q is not a number", d)
		}
		req.Difficulty = n
	}
	if p := strings.ToLower(cell("published")); p != "" {
		req.IsPublished = p == "1" || p == "true" || p == "si" || p == "sí" || p == "yes"
	}
	for _, key := range optionKeys {
		if text := cell("option_" + strings.ToLower(key)); text != "" {
			req.Options = append(req.Options, model.QuestionOption{Key: key, Text: text})
		}
	}

	q := &model.Question{}
	if err := s.build(ctx, q, req); err != nil {
		return nil, err
	}
	return q, nil
}

// ExportXLSX 导出为可再次导入的工作簿
func (s *QuestionService) ExportXLSX(ctx context.Context, filter repository.QuestionFilter, w io.Writer) (int, error) {
	questions, err := s.Repo.ListAll(ctx, filter)
	if err != nil {
		return 0, err
	}

	f := excelize.NewFile()
	defer f.Close()
	index, err := f.NewSheet(questionSheet)
	if err != nil {
		return 0, err
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	for i, header := range questionColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(questionSheet, cell, header)
	}

	for i, q := range questions {
		row := i + 2
		values := questionRow(q)
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			f.SetCellValue(questionSheet, cell, v)
		}
	}

	if err := f.Write(w); err != nil {
		return 0, err
	}
	return len(questions), nil
}

func questionRow(q model.Question) []interface{} {
	unitCode := ""
	topicCode := ""
	if q.Unit != nil {
		unitCode = q.Unit.Code
		if q.TopicID != nil {
			for _, t := range q.Unit.Topics {
				if t.ID == *q.TopicID {
					topicCode = t.Code
				}
			}
		}
	}
	options := map[string]string{}
	for _, o := range q.ParsedOptions() {
		options[normalizeKey(o.Key)] = o.Text
	}
	published := "0"
	if q.IsPublished {
		published = "1"
	}
	row := []interface{}{string(q.Level), unitCode, topicCode, string(q.Type), q.Stem}
	for _, key := range optionKeys {
		row = append(row, options[key])
	}
	return append(row, q.CorrectAnswer, q.Explanation, q.Difficulty, published)
}
