package service

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"paes_math_backend/internal/model"
	"paes_math_backend/internal/repository"
	"paes_math_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"
)

type memUnits struct {
	units map[uint]*model.Unit
}

func newMemUnits() *memUnits {
	return &memUnits{units: map[uint]*model.Unit{
		1: {BaseModel: model.BaseModel{ID: 1}, Level: model.LevelM1, Code: "m1-porcentaje", Name: "Porcentaje",
			Topics: []model.Topic{{BaseModel: model.BaseModel{ID: 11}, UnitID: 1, Code: "descuentos"}}},
		2: {BaseModel: model.BaseModel{ID: 2}, Level: model.LevelM2, Code: "m2-logaritmos", Name: "Logaritmos"},
	}}
}

func (m *memUnits) FindUnit(ctx context.Context, id uint) (*model.Unit, error) {
	u, ok := m.units[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (m *memUnits) FindUnitByCode(ctx context.Context, code string) (*model.Unit, error) {
	for _, u := range m.units {
		if u.Code == code {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

type memQuestionStore struct {
	mu        sync.Mutex
	questions map[uint]*model.Question
	attempts  []model.QuestionAttempt
	units     *memUnits
	nextID    uint
}

func newMemQuestionStore(units *memUnits) *memQuestionStore {
	return &memQuestionStore{questions: map[uint]*model.Question{}, units: units}
}

func (m *memQuestionStore) Create(ctx context.Context, q *model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	q.ID = m.nextID
	copied := *q
	m.questions[q.ID] = &copied
	return nil
}

func (m *memQuestionStore) CreateBatch(ctx context.Context, questions []model.Question) error {
	for i := range questions {
		if err := m.Create(ctx, &questions[i]); err != nil {
			return err
		}
	}
	return nil
}

func (m *memQuestionStore) FindByID(ctx context.Context, id uint) (*model.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.questions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *q
	return &copied, nil
}

func (m *memQuestionStore) FindByIDs(ctx context.Context, ids []uint) ([]model.Question, error) {
	var out []model.Question
	for _, id := range ids {
		if q, err := m.FindByID(ctx, id); err == nil {
			out = append(out, *q)
		}
	}
	return out, nil
}

func (m *memQuestionStore) Update(ctx context.Context, q *model.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *q
	m.questions[q.ID] = &copied
	return nil
}

func (m *memQuestionStore) Delete(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.questions, id)
	return nil
}

func (m *memQuestionStore) matching(filter repository.QuestionFilter) []model.Question {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Question
	for id := uint(1); id <= m.nextID; id++ {
		q, ok := m.questions[id]
		if !ok {
			continue
		}
		if filter.Level != "" && q.Level != filter.Level {
			continue
		}
		if filter.UnitID != 0 && q.UnitID != filter.UnitID {
			continue
		}
		if filter.PublishedOnly && !q.IsPublished {
			continue
		}
		copied := *q
		copied.Unit = m.units.units[q.UnitID]
		out = append(out, copied)
	}
	return out
}

func (m *memQuestionStore) List(ctx context.Context, filter repository.QuestionFilter, page, limit int) ([]model.Question, int64, error) {
	out := m.matching(filter)
	return out, int64(len(out)), nil
}

func (m *memQuestionStore) ListAll(ctx context.Context, filter repository.QuestionFilter) ([]model.Question, error) {
	return m.matching(filter), nil
}

func (m *memQuestionStore) RandomPublished(ctx context.Context, filter repository.QuestionFilter, count int, excludeIDs []uint) ([]model.Question, error) {
	filter.PublishedOnly = true
	excluded := map[uint]bool{}
	for _, id := range excludeIDs {
		excluded[id] = true
	}
	var out []model.Question
	for _, q := range m.matching(filter) {
		if !excluded[q.ID] && len(out) < count {
			out = append(out, q)
		}
	}
	return out, nil
}

func (m *memQuestionStore) CreateAttempt(ctx context.Context, attempt *model.QuestionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, *attempt)
	return nil
}

func (m *memQuestionStore) CreateAttempts(ctx context.Context, attempts []model.QuestionAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts = append(m.attempts, attempts...)
	return nil
}

func (m *memQuestionStore) HasAttempt(ctx context.Context, userID, questionID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.attempts {
		if a.UserID == userID && a.QuestionID == questionID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memQuestionStore) AccuracyByUnit(ctx context.Context, userID uint) ([]model.AccuracyStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	byUnit := map[uint]*model.AccuracyStat{}
	var order []uint
	for _, a := range m.attempts {
		if a.UserID != userID {
			continue
		}
		q := m.questions[a.QuestionID]
		stat, ok := byUnit[q.UnitID]
		if !ok {
			u := m.units.units[q.UnitID]
			stat = &model.AccuracyStat{ID: u.ID, Code: u.Code, Name: u.Name}
			byUnit[q.UnitID] = stat
			order = append(order, q.UnitID)
		}
		stat.Attempts++
		if a.IsCorrect {
			stat.Correct++
		}
	}
	var out []model.AccuracyStat
	for _, id := range order {
		s := byUnit[id]
		s.Accuracy = float64(s.Correct) * 100 / float64(s.Attempts)
		out = append(out, *s)
	}
	return out, nil
}

func mcRequest() QuestionRequest {
	return QuestionRequest{
		Level:         model.LevelM1,
		UnitID:        1,
		Type:          model.QuestionMultipleChoice,
		Stem:          "¿Cuánto es el 20% de 50?",
		Options:       []model.QuestionOption{{Key: "a", Text: "5"}, {Key: "b", Text: "10"}, {Key: "c", Text: "20"}},
		CorrectAnswer: "b",
		Explanation:   "0,2 · 50 = 10",
		IsPublished:   true,
	}
}

func TestQuestionCreateValidation(t *testing.T) {
	units := newMemUnits()
	svc := NewQuestionService(newMemQuestionStore(units), units)
	ctx := context.Background()

	q, err := svc.Create(ctx, 9, mcRequest())
	require.NoError(t, err)
	assert.Equal(t, "B", q.CorrectAnswer)
	assert.Equal(t, 2, q.Difficulty)
	assert.Len(t, q.ParsedOptions(), 3)

	bad := mcRequest()
	bad.CorrectAnswer = "E"
	_, err = svc.Create(ctx, 9, bad)
	assert.ErrorIs(t, err, util.ErrInvalidQuestion)

	wrongLevel := mcRequest()
	wrongLevel.UnitID = 2
	_, err = svc.Create(ctx, 9, wrongLevel)
	assert.ErrorIs(t, err, util.ErrInvalidQuestion)

	missingTopic := mcRequest()
	topic := uint(99)
	missingTopic.TopicID = &topic
	_, err = svc.Create(ctx, 9, missingTopic)
	assert.ErrorIs(t, err, util.ErrTopicNotFound)

	numeric := QuestionRequest{Level: model.LevelM1, UnitID: 1, Type: model.QuestionNumeric, Stem: "3/4 en decimal", CorrectAnswer: "abc"}
	_, err = svc.Create(ctx, 9, numeric)
	assert.ErrorIs(t, err, util.ErrInvalidQuestion)
}

func TestQuestionPracticeHidesAnswersAndScores(t *testing.T) {
	units := newMemUnits()
	store := newMemQuestionStore(units)
	svc := NewQuestionService(store, units)
	ctx := context.Background()

	q, err := svc.Create(ctx, 9, mcRequest())
	require.NoError(t, err)
	draft := mcRequest()
	draft.IsPublished = false
	hidden, err := svc.Create(ctx, 9, draft)
	require.NoError(t, err)

	set, err := svc.PracticeSet(ctx, model.LevelM1, 0, 0, 5)
	require.NoError(t, err)
	require.Len(t, set, 1)
	assert.Empty(t, set[0].CorrectAnswer)
	assert.Empty(t, set[0].Explanation)

	res, err := svc.AnswerPractice(ctx, 5, q.ID, PracticeAnswerRequest{Answer: " b ", TimeSeconds: 30})
	require.NoError(t, err)
	assert.True(t, res.IsCorrect)
	assert.Equal(t, "B", res.CorrectAnswer)
	require.Len(t, store.attempts, 1)
	assert.Equal(t, model.ContextPractice, store.attempts[0].Context)

	_, err = svc.AnswerPractice(ctx, 5, hidden.ID, PracticeAnswerRequest{Answer: "B"})
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)

	_, err = svc.GetForStudent(ctx, hidden.ID)
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
}

func TestQuestionExportThenImport(t *testing.T) {
	units := newMemUnits()
	source := newMemQuestionStore(units)
	svc := NewQuestionService(source, units)
	ctx := context.Background()

	req := mcRequest()
	topic := uint(11)
	req.TopicID = &topic
	_, err := svc.Create(ctx, 9, req)
	require.NoError(t, err)
	_, err = svc.Create(ctx, 9, QuestionRequest{Level: model.LevelM1, UnitID: 1, Type: model.QuestionNumeric, Stem: "Escribe 3/4 en decimal", CorrectAnswer: "0,75", Difficulty: 1})
	require.NoError(t, err)

	var buf bytes.Buffer
	n, err := svc.ExportXLSX(ctx, repository.QuestionFilter{}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	target := newMemQuestionStore(units)
	importer := NewQuestionService(target, units)
	res, err := importer.ImportXLSX(ctx, 3, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 2, res.Imported)

	imported, _ := target.FindByID(ctx, 1)
	require.NotNil(t, imported.TopicID)
	assert.Equal(t, uint(11), *imported.TopicID)
	assert.True(t, imported.IsPublished)
	numeric, _ := target.FindByID(ctx, 2)
	assert.Equal(t, model.QuestionNumeric, numeric.Type)
	assert.False(t, numeric.IsPublished)
	assert.Equal(t, uint(3), numeric.CreatorID)
}

func TestQuestionImportRejectsWholeBatchOnBadRow(t *testing.T) {
	units := newMemUnits()
	store := newMemQuestionStore(units)
	svc := NewQuestionService(store, units)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"level", "unit_code", "type", "stem", "option_a", "option_b", "correct_answer"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"M1", "m1-porcentaje", "multiple_choice", "Pregunta 1", "1", "2", "A"}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"M1", "no-existe", "multiple_choice", "Pregunta 2", "1", "2", "A"}))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	res, err := svc.ImportXLSX(context.Background(), 1, &buf)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Imported)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Row)
	assert.Empty(t, store.questions)
}
