package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/repository"
	"paes_math_backend/internal/util"
	"paes_math_backend/pkg/logger"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ToolListUnits        = "list_units"
	ToolPickQuestion     = "pick_question"
	ToolRecordMastery    = "record_mastery"
	ToolFinishDiagnostic = "finish_diagnostic"

	diagnosticLockStripes = 64
)

// AssistantModel 工具循环使用的大模型，AIService 实现
type AssistantModel interface {
	LLMClient
	MaxToolIterations() int
}

// DiagnosticStore 由 repository.DiagnosticRepository 实现
type DiagnosticStore interface {
	Create(ctx context.Context, s *model.DiagnosticSession) error
	FindForUser(ctx context.Context, id string, userID uint) (*model.DiagnosticSession, error)
	Save(ctx context.Context, s *model.DiagnosticSession) error
	ListByUser(ctx context.Context, userID uint) ([]model.DiagnosticSession, error)
}

// DiagnosticQuestionSource 诊断出题和记录作答
type DiagnosticQuestionSource interface {
	FindByID(ctx context.Context, id uint) (*model.Question, error)
	RandomPublished(ctx context.Context, filter repository.QuestionFilter, count int, excludeIDs []uint) ([]model.Question, error)
	CreateAttempt(ctx context.Context, attempt *model.QuestionAttempt) error
}

type DiagnosticUnits interface {
	ListUnits(ctx context.Context, level model.TestLevel) ([]model.Unit, error)
	FindUnitByCode(ctx context.Context, code string) (*model.Unit, error)
}

type MasteryWriter interface {
	ApplyMasteries(ctx context.Context, userID uint, masteries []model.UnitMastery) (int, error)
}

type DiagnosticCertificateIssuer interface {
	IssueForDiagnostic(ctx context.Context, d *model.DiagnosticSession) (*model.Certificate, error)
}

type StartDiagnosticRequest struct {
	Level model.TestLevel `json:"level"`
}

type DiagnosticAnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

// DiagnosticView 返回给学生的诊断状态
type DiagnosticView struct {
	Session         *model.DiagnosticSession `json:"session"`
	Reply           string                   `json:"reply"`
	PendingQuestion *model.Question          `json:"pendingQuestion,omitempty"`
	LastAnswer      *AnswerVerdict           `json:"lastAnswer,omitempty"`
	Result          *model.DiagnosticResult  `json:"result,omitempty"`
}

type AnswerVerdict struct {
	QuestionID    uint   `json:"questionId"`
	IsCorrect     bool   `json:"isCorrect"`
	CorrectAnswer string `json:"correctAnswer"`
	Explanation   string `json:"explanation,omitempty"`
}

type DiagnosticService struct {
	Store        DiagnosticStore
	Model        AssistantModel
	Questions    DiagnosticQuestionSource
	Units        DiagnosticUnits
	Knowledge    MasteryWriter
	Certificates DiagnosticCertificateIssuer
	MaxQuestions int

	locks [diagnosticLockStripes]sync.Mutex
}

func NewDiagnosticService(store DiagnosticStore, llm AssistantModel, questions DiagnosticQuestionSource, units DiagnosticUnits, knowledge MasteryWriter, certs DiagnosticCertificateIssuer, maxQuestions int) *DiagnosticService {
	if maxQuestions <= 0 {
		maxQuestions = 12
	}
	return &DiagnosticService{
		Store:        store,
		Model:        llm,
		Questions:    questions,
		Units:        units,
		Knowledge:    knowledge,
		Certificates: certs,
		MaxQuestions: maxQuestions,
	}
}

// lockFor 按会话 ID 哈希到固定的锁分段，不同会话可能共用一把锁
func (s *DiagnosticService) lockFor(id string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &s.locks[h.Sum32()%diagnosticLockStripes]
}

// lock 同一诊断会话的请求串行处理
func (s *DiagnosticService) lock(id string) func() {
	mu := s.lockFor(id)
	mu.Lock()
	return mu.Unlock
}

func diagnosticTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolListUnits,
			Description: "Lista las unidades del nivel del estudiante con su código, eje temático y descripción.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
		{
			Name:        ToolPickQuestion,
			Description: "Selecciona una pregunta publicada no vista de la unidad indicada y la deja pendiente. Devuelve el enunciado y las alternativas, nunca la respuesta.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"unit_code":  map[string]interface{}{"type": "string"},
					"difficulty": map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 3},
				},
				"required": []string{"unit_code"},
			},
		},
		{
			Name:        ToolRecordMastery,
			Description: "Registra el dominio estimado (0 a 1) del estudiante en una unidad, con la evidencia observada.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"unit_code": map[string]interface{}{"type": "string"},
					"mastery":   map[string]interface{}{"type": "number", "minimum": 0, "maximum": 1},
					"evidence":  map[string]interface{}{"type": "string"},
				},
				"required": []string{"unit_code", "mastery"},
			},
		},
		{
			Name:        ToolFinishDiagnostic,
			Description: "Cierra el diagnóstico con un resumen, fortalezas, debilidades y focos recomendados.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"summary":           map[string]interface{}{"type": "string"},
					"strengths":         map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"weaknesses":        map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
					"recommended_focus": map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				},
				"required": []string{"summary"},
			},
		},
	}
}

func (s *DiagnosticService) systemPrompt(level model.TestLevel) string {
	return fmt.Sprintf(`Eres un profesor de matemáticas que prepara estudiantes chilenos para la PAES de Competencia Matemática (%s).
Realiza un diagnóstico adaptativo breve:
- Usa list_units para conocer las unidades disponibles.
- Usa pick_question para presentar UNA pregunta a la vez y espera la respuesta del estudiante. No reveles la respuesta correcta.
- Tras cada respuesta ajusta la dificultad y usa record_mastery cuando tengas evidencia suficiente sobre una unidad.
- Puedes hacer como máximo %d preguntas. Cuando tengas un panorama claro, o llegues al límite, llama a finish_diagnostic.
Responde siempre en español, de forma breve y motivadora.`, level, s.MaxQuestions)
}

// diagnosticState 工具调用期间会修改的会话状态
type diagnosticState struct {
	session   *model.DiagnosticSession
	asked     []uint
	masteries []model.UnitMastery
	result    *model.DiagnosticResult
}

func loadState(d *model.DiagnosticSession) (*diagnosticState, []LLMMessage, error) {
	st := &diagnosticState{session: d}
	if len(d.AskedQuestionIDs) > 0 {
		if err := json.Unmarshal(d.AskedQuestionIDs, &st.asked); err != nil {
			return nil, nil, err
		}
	}
	if len(d.Masteries) > 0 {
		if err := json.Unmarshal(d.Masteries, &st.masteries); err != nil {
			return nil, nil, err
		}
	}
	var transcript []LLMMessage
	if len(d.Transcript) > 0 {
		if err := json.Unmarshal(d.Transcript, &transcript); err != nil {
			return nil, nil, err
		}
	}
	return st, transcript, nil
}

func (st *diagnosticState) store(transcript []LLMMessage) error {
	var err error
	if st.session.AskedQuestionIDs, err = json.Marshal(st.asked); err != nil {
		return err
	}
	if st.session.Masteries, err = json.Marshal(st.masteries); err != nil {
		return err
	}
	if st.session.Transcript, err = json.Marshal(transcript); err != nil {
		return err
	}
	if st.result != nil {
		st.result.Masteries = st.masteries
		st.result.QuestionsAsked = st.session.QuestionsAsked
		if st.session.Result, err = json.Marshal(st.result); err != nil {
			return err
		}
		st.session.Status = model.DiagnosticCompleted
		st.session.PendingQuestionID = nil
	}
	return nil
}

type pickQuestionInput struct {
	UnitCode   string `json:"unit_code"`
	Difficulty int    `json:"difficulty"`
}

type recordMasteryInput struct {
	UnitCode string  `json:"unit_code"`
	Mastery  float64 `json:"mastery"`
	Evidence string  `json:"evidence"`
}

type finishInput struct {
	Summary          string   `json:"summary"`
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses"`
	RecommendedFocus []string `json:"recommended_focus"`
}

func (s *DiagnosticService) executor(st *diagnosticState) ToolExecutor {
	return ToolExecutorFunc(func(ctx context.Context, name string, input json.RawMessage) (string, error) {
		if st.result != nil {
			return "", errors.New("the diagnostic is already finished")
		}
		switch name {
		case ToolListUnits:
			return s.toolListUnits(ctx, st)
		case ToolPickQuestion:
			var in pickQuestionInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", fmt.Errorf("invalid input: %v", err)
			}
			return s.toolPickQuestion(ctx, st, in)
		case ToolRecordMastery:
			var in recordMasteryInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", fmt.Errorf("invalid input: %v", err)
			}
			return s.toolRecordMastery(ctx, st, in)
		case ToolFinishDiagnostic:
			var in finishInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", fmt.Errorf("invalid input: %v", err)
			}
			if strings.TrimSpace(in.Summary) == "" {
				return "", errors.New("summary is required")
			}
			st.result = &model.DiagnosticResult{
				Summary:          in.Summary,
				Strengths:        in.Strengths,
				Weaknesses:       in.Weaknesses,
				RecommendedFocus: in.RecommendedFocus,
			}
			return toolJSON(map[string]interface{}{"ok": true, "masteries_recorded": len(st.masteries)})
		default:
			return "", fmt.Errorf("unknown tool %q", name)
		}
	})
}

func (s *DiagnosticService) toolListUnits(ctx context.Context, st *diagnosticState) (string, error) {
	units, err := s.Units.ListUnits(ctx, st.session.Level)
	if err != nil {
		return "", err
	}
	type unitInfo struct {
		Code        string `json:"code"`
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	}
	out := make([]unitInfo, 0, len(units))
	for _, u := range units {
		out = append(out, unitInfo{Code: u.Code, Name: u.Name, Description: u.Description})
	}
	return toolJSON(map[string]interface{}{"level": st.session.Level, "units": out})
}

func (s *DiagnosticService) toolPickQuestion(ctx context.Context, st *diagnosticState, in pickQuestionInput) (string, error) {
	d := st.session
	if d.PendingQuestionID != nil {
		return "", errors.New("a question is already pending; wait for the student's answer")
	}
	if d.QuestionsAsked >= s.MaxQuestions {
		return "", fmt.Errorf("question limit of %d reached; call finish_diagnostic", s.MaxQuestions)
	}
	unit, err := s.Units.FindUnitByCode(ctx, normalizeCode(in.UnitCode))
	if err != nil {
		return "", fmt.Errorf("unknown unit code %q", in.UnitCode)
	}
	if unit.Level != d.Level {
		return "", fmt.Errorf("unit %s is not part of level %s", unit.Code, d.Level)
	}

	filter := repository.QuestionFilter{Level: d.Level, UnitID: unit.ID, Difficulty: in.Difficulty}
	picked, err := s.Questions.RandomPublished(ctx, filter, 1, st.asked)
	if err != nil {
		return "", err
	}
	if len(picked) == 0 && in.Difficulty != 0 {
		filter.Difficulty = 0
		if picked, err = s.Questions.RandomPublished(ctx, filter, 1, st.asked); err != nil {
			return "", err
		}
	}
	if len(picked) == 0 {
		return "", fmt.Errorf("no unseen questions left in unit %s; choose another unit", unit.Code)
	}

	q := picked[0]
	id := q.ID
	d.PendingQuestionID = &id
	d.QuestionsAsked++
	st.asked = append(st.asked, q.ID)

	return toolJSON(map[string]interface{}{
		"question_id":         q.ID,
		"unit_code":           unit.Code,
		"difficulty":          q.Difficulty,
		"type":                q.Type,
		"stem":                q.Stem,
		"options":             q.ParsedOptions(),
		"questions_remaining": s.MaxQuestions - d.QuestionsAsked,
		"instructions":        "Show this question to the student and wait for the answer.",
	})
}

func (s *DiagnosticService) toolRecordMastery(ctx context.Context, st *diagnosticState, in recordMasteryInput) (string, error) {
	if in.Mastery < 0 || in.Mastery > 1 {
		return "", errors.New("mastery must be between 0 and 1")
	}
	unit, err := s.Units.FindUnitByCode(ctx, normalizeCode(in.UnitCode))
	if err != nil {
		return "", fmt.Errorf("unknown unit code %q", in.UnitCode)
	}
	m := model.UnitMastery{UnitCode: unit.Code, Mastery: in.Mastery, Evidence: in.Evidence}
	replaced := false
	for i := range st.masteries {
		if st.masteries[i].UnitCode == unit.Code {
			st.masteries[i] = m
			replaced = true
		}
	}
	if !replaced {
		st.masteries = append(st.masteries, m)
	}
	return toolJSON(map[string]interface{}{"ok": true, "unit_code": unit.Code, "status": model.StatusFromMastery(in.Mastery)})
}

func (s *DiagnosticService) Start(ctx context.Context, userID uint, level model.TestLevel) (*DiagnosticView, error) {
	if !level.Valid() {
		return nil, util.ErrInvalidLevel
	}
	d := &model.DiagnosticSession{
		UserID: userID,
		Level:  level,
		Status: model.DiagnosticInProgress,
	}
	d.ID = model.GenerateUUID()

	opening := fmt.Sprintf("Hola, quiero hacer el diagnóstico de la PAES %s.", level)
	view, err := s.turn(ctx, d, nil, opening)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Create(ctx, d); err != nil {
		return nil, err
	}
	logger.Log.Info("Diagnostic started", zap.String("diagnosticId", d.ID), zap.Uint("userId", userID))
	s.afterTurn(ctx, d)
	return view, nil
}

func (s *DiagnosticService) load(ctx context.Context, userID uint, id string) (*model.DiagnosticSession, error) {
	d, err := s.Store.FindForUser(ctx, id, userID)
	if err != nil {
		return nil, notFound(err, util.ErrDiagnosticNotFound)
	}
	return d, nil
}

// Answer 学生作答：有待答题目时由服务端判分并把结果交给模型，否则作为普通消息
func (s *DiagnosticService) Answer(ctx context.Context, userID uint, id string, req DiagnosticAnswerRequest) (*DiagnosticView, error) {
	unlock := s.lock(id)
	defer unlock()

	d, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DiagnosticInProgress {
		return nil, util.ErrDiagnosticClosed
	}

	answer := strings.TrimSpace(req.Answer)
	var verdict *AnswerVerdict
	message := answer
	if d.PendingQuestionID != nil {
		q, err := s.Questions.FindByID(ctx, *d.PendingQuestionID)
		if err != nil {
			return nil, notFound(err, util.ErrQuestionNotFound)
		}
		correct := CheckAnswer(q, answer)
		verdict = &AnswerVerdict{QuestionID: q.ID, IsCorrect: correct, CorrectAnswer: q.CorrectAnswer, Explanation: q.Explanation}
		result := "incorrecta"
		if correct {
			result = "correcta"
		}
		message = fmt.Sprintf("Mi respuesta a la pregunta %d es: %s\n[Sistema: la respuesta es %s. Respuesta correcta: %s]",
			q.ID, answer, result, q.CorrectAnswer)
		d.PendingQuestionID = nil
	}

	view, err := s.turn(ctx, d, verdict, message)
	if err != nil {
		return nil, err
	}
	if err := s.Store.Save(ctx, d); err != nil {
		return nil, err
	}
	if verdict != nil {
		attempt := &model.QuestionAttempt{
			UserID:     userID,
			QuestionID: verdict.QuestionID,
			Answer:     answer,
			IsCorrect:  verdict.IsCorrect,
			Context:    model.ContextDiagnostic,
		}
		if err := s.Questions.CreateAttempt(ctx, attempt); err != nil {
			logger.Log.Warn("Record diagnostic attempt failed", zap.String("diagnosticId", id), zap.Error(err))
		}
	}
	s.afterTurn(ctx, d)
	return view, nil
}

// turn 追加学生消息并运行工具循环，成功后更新 d（不落库）
func (s *DiagnosticService) turn(ctx context.Context, d *model.DiagnosticSession, verdict *AnswerVerdict, message string) (*DiagnosticView, error) {
	st, transcript, err := loadState(d)
	if err != nil {
		return nil, err
	}
	transcript = append(transcript, TextMessage(RoleUser, message))

	req := LLMRequest{
		System:   s.systemPrompt(d.Level),
		Messages: transcript,
		Tools:    diagnosticTools(),
	}
	res, err := RunToolLoop(ctx, s.Model, req, s.executor(st), s.Model.MaxToolIterations())
	if err != nil {
		return nil, err
	}
	if err := st.store(res.Messages); err != nil {
		return nil, err
	}
	d.LastReply = res.Final.Text()
	return s.view(ctx, d, verdict)
}

// afterTurn 诊断完成后写入掌握度声明并发证书，失败只记日志
func (s *DiagnosticService) afterTurn(ctx context.Context, d *model.DiagnosticSession) {
	if d.Status != model.DiagnosticCompleted {
		return
	}
	var masteries []model.UnitMastery
	if len(d.Masteries) > 0 {
		if err := json.Unmarshal(d.Masteries, &masteries); err != nil {
			logger.Log.Error("Decode diagnostic masteries failed", zap.String("diagnosticId", d.ID), zap.Error(err))
		}
	}
	if s.Knowledge != nil && len(masteries) > 0 {
		if _, err := s.Knowledge.ApplyMasteries(ctx, d.UserID, masteries); err != nil {
			logger.Log.Error("Apply diagnostic masteries failed", zap.String("diagnosticId", d.ID), zap.Error(err))
		}
	}
	if s.Certificates != nil {
		if _, err := s.Certificates.IssueForDiagnostic(ctx, d); err != nil {
			logger.Log.Error("Issue diagnostic certificate failed", zap.String("diagnosticId", d.ID), zap.Error(err))
		}
	}
	logger.Log.Info("Diagnostic completed", zap.String("diagnosticId", d.ID), zap.Int("questions", d.QuestionsAsked))
}

func (s *DiagnosticService) view(ctx context.Context, d *model.DiagnosticSession, verdict *AnswerVerdict) (*DiagnosticView, error) {
	v := &DiagnosticView{Session: d, Reply: d.LastReply, LastAnswer: verdict}
	if d.PendingQuestionID != nil {
		q, err := s.Questions.FindByID(ctx, *d.PendingQuestionID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if q != nil {
			public := q.PublicView()
			v.PendingQuestion = &public
		}
	}
	if len(d.Result) > 0 {
		var result model.DiagnosticResult
		if err := json.Unmarshal(d.Result, &result); err == nil {
			v.Result = &result
		}
	}
	return v, nil
}

func (s *DiagnosticService) Get(ctx context.Context, userID uint, id string) (*DiagnosticView, error) {
	d, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, d, nil)
}

func (s *DiagnosticService) List(ctx context.Context, userID uint) ([]model.DiagnosticSession, error) {
	return s.Store.ListByUser(ctx, userID)
}

func (s *DiagnosticService) Abandon(ctx context.Context, userID uint, id string) (*model.DiagnosticSession, error) {
	unlock := s.lock(id)
	defer unlock()

	d, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if d.Status != model.DiagnosticInProgress {
		return nil, util.ErrDiagnosticClosed
	}
	d.Status = model.DiagnosticAbandoned
	d.PendingQuestionID = nil
	if err := s.Store.Save(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}
