package service

import (
	"context"
	"encoding/json"
	"fmt"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/util"
	"paes_math_backend/pkg/logger"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	ToolSearchUnits        = "search_units"
	ToolGetQuestion        = "get_question"
	ToolGetStudentProgress = "get_student_progress"

	maxTutorHistory = 40
)

// TutorStore 由 repository.TutorRepository 实现
type TutorStore interface {
	CreateConversation(ctx context.Context, conv *model.TutorConversation) error
	FindConversation(ctx context.Context, id string, userID uint) (*model.TutorConversation, error)
	ListConversations(ctx context.Context, userID uint) ([]model.TutorConversation, error)
	AppendMessages(ctx context.Context, conversationID string, msgs ...*model.TutorMessage) error
	DeleteConversation(ctx context.Context, id string, userID uint) (bool, error)
}

type UnitSearcher interface {
	SearchUnits(ctx context.Context, query string, limit int) ([]model.Unit, error)
	FindUnit(ctx context.Context, id uint) (*model.Unit, error)
}

type TutorQuestionSource interface {
	FindByID(ctx context.Context, id uint) (*model.Question, error)
	AccuracyByUnit(ctx context.Context, userID uint) ([]model.AccuracyStat, error)
	HasAttempt(ctx context.Context, userID, questionID uint) (bool, error)
}

type StartConversationRequest struct {
	Title      string `json:"title"`
	UnitID     *uint  `json:"unitId"`
	QuestionID *uint  `json:"questionId"`
	Message    string `json:"message"`
}

type SendMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

type TutorReply struct {
	Conversation *model.TutorConversation `json:"conversation,omitempty"`
	UserMessage  *model.TutorMessage      `json:"userMessage"`
	Reply        *model.TutorMessage      `json:"reply"`
	ToolsUsed    []string                 `json:"toolsUsed"`
}

type TutorService struct {
	Store     TutorStore
	Model     AssistantModel
	Units     UnitSearcher
	Questions TutorQuestionSource
}

func NewTutorService(store TutorStore, llm AssistantModel, units UnitSearcher, questions TutorQuestionSource) *TutorService {
	return &TutorService{Store: store, Model: llm, Units: units, Questions: questions}
}

func tutorTools() []ToolDefinition {
	return []ToolDefinition{
		{
			Name:        ToolSearchUnits,
			Description: "Busca unidades del temario PAES por nombre, código o descripción.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"query": map[string]interface{}{"type": "string"}},
				"required":   []string{"query"},
			},
		},
		{
			Name:        ToolGetQuestion,
			Description: "Obtiene una pregunta publicada del banco con sus alternativas. La respuesta correcta y la explicación solo se incluyen si el estudiante ya la respondió.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{"question_id": map[string]interface{}{"type": "integer"}},
				"required":   []string{"question_id"},
			},
		},
		{
			Name:        ToolGetStudentProgress,
			Description: "Devuelve el porcentaje de acierto del estudiante en cada unidad que ha practicado.",
			InputSchema: map[string]interface{}{"type": "object", "properties": map[string]interface{}{}},
		},
	}
}

func (s *TutorService) systemPrompt(ctx context.Context, conv *model.TutorConversation) string {
	var b strings.Builder
	b.WriteString("Eres un tutor de matemáticas para estudiantes chilenos que preparan la PAES (M1 y M2).\n")
	b.WriteString("Guía al estudiante paso a paso con preguntas; no entregues la respuesta final de inmediato.\n")
	b.WriteString("Usa las herramientas para consultar el temario, preguntas del banco y el progreso del estudiante.\n")
	b.WriteString("Nunca reveles la respuesta de una pregunta que el estudiante aún no ha respondido.\n")
	b.WriteString("Responde en español, con notación clara y ejemplos breves.")
	if conv.UnitID != nil {
		if unit, err := s.Units.FindUnit(ctx, *conv.UnitID); err == nil {
			fmt.Fprintf(&b, "\nLa conversación trata sobre la unidad %s (%s).", unit.Name, unit.Code)
		}
	}
	if conv.QuestionID != nil {
		fmt.Fprintf(&b, "\nEl estudiante pregunta por la pregunta %d del banco; usa get_question para verla.", *conv.QuestionID)
	}
	return b.String()
}

type searchUnitsInput struct {
	Query string `json:"query"`
}

type getQuestionInput struct {
	QuestionID uint `json:"question_id"`
}

func (s *TutorService) executor(userID uint) ToolExecutor {
	return ToolExecutorFunc(func(ctx context.Context, name string, input json.RawMessage) (string, error) {
		switch name {
		case ToolSearchUnits:
			var in searchUnitsInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", fmt.Errorf("invalid input: %v", err)
			}
			units, err := s.Units.SearchUnits(ctx, strings.TrimSpace(in.Query), 10)
			if err != nil {
				return "", err
			}
			type unitInfo struct {
				ID          uint            `json:"id"`
				Code        string          `json:"code"`
				Name        string          `json:"name"`
				Level       model.TestLevel `json:"level"`
				Description string          `json:"description,omitempty"`
			}
			out := make([]unitInfo, 0, len(units))
			for _, u := range units {
				out = append(out, unitInfo{ID: u.ID, Code: u.Code, Name: u.Name, Level: u.Level, Description: u.Description})
			}
			return toolJSON(map[string]interface{}{"units": out})
		case ToolGetQuestion:
			var in getQuestionInput
			if err := json.Unmarshal(input, &in); err != nil {
				return "", fmt.Errorf("invalid input: %v", err)
			}
			q, err := s.Questions.FindByID(ctx, in.QuestionID)
			if err != nil || !q.IsPublished {
				return "", fmt.Errorf("question %d not found", in.QuestionID)
			}
			out := map[string]interface{}{
				"id":         q.ID,
				"level":      q.Level,
				"type":       q.Type,
				"stem":       q.Stem,
				"options":    q.ParsedOptions(),
				"difficulty": q.Difficulty,
				"answered":   false,
			}
			// 未作答的题（诊断中待答、模拟考进行中）不给答案
			answered, err := s.Questions.HasAttempt(ctx, userID, q.ID)
			if err != nil {
				return "", err
			}
			if answered {
				out["answered"] = true
				out["correct_answer"] = q.CorrectAnswer
				out["explanation"] = q.Explanation
			}
			return toolJSON(out)
		case ToolGetStudentProgress:
			stats, err := s.Questions.AccuracyByUnit(ctx, userID)
			if err != nil {
				return "", err
			}
			return toolJSON(map[string]interface{}{"units": stats})
		default:
			return "", fmt.Errorf("unknown tool %q", name)
		}
	})
}

func conversationTitle(title, message string) string {
	title = strings.TrimSpace(title)
	if title == "" {
		title = strings.TrimSpace(message)
	}
	if title == "" {
		return "Nueva conversación"
	}
	if utf8.RuneCountInString(title) > 60 {
		title = string([]rune(title)[:60]) + "…"
	}
	return title
}

// StartConversation 新建会话，带首条消息时直接得到回复
func (s *TutorService) StartConversation(ctx context.Context, userID uint, req StartConversationRequest) (*TutorReply, error) {
	if req.UnitID != nil {
		if _, err := s.Units.FindUnit(ctx, *req.UnitID); err != nil {
			return nil, notFound(err, util.ErrUnitNotFound)
		}
	}
	if req.QuestionID != nil {
		q, err := s.Questions.FindByID(ctx, *req.QuestionID)
		if err != nil {
			return nil, notFound(err, util.ErrQuestionNotFound)
		}
		if !q.IsPublished {
			return nil, util.ErrQuestionNotFound
		}
	}

	conv := &model.TutorConversation{
		UserID:     userID,
		Title:      conversationTitle(req.Title, req.Message),
		UnitID:     req.UnitID,
		QuestionID: req.QuestionID,
	}
	if err := s.Store.CreateConversation(ctx, conv); err != nil {
		return nil, err
	}
	logger.Log.Info("Tutor conversation started", zap.String("conversationId", conv.ID), zap.Uint("userId", userID))

	if strings.TrimSpace(req.Message) == "" {
		return &TutorReply{Conversation: conv}, nil
	}
	reply, err := s.reply(ctx, conv, req.Message)
	if err != nil {
		return nil, err
	}
	reply.Conversation = conv
	return reply, nil
}

func (s *TutorService) SendMessage(ctx context.Context, userID uint, conversationID string, req SendMessageRequest) (*TutorReply, error) {
	if strings.TrimSpace(req.Content) == "" {
		return nil, fmt.Errorf("%w: message is empty", util.ErrInvalidInput)
	}
	conv, err := s.Store.FindConversation(ctx, conversationID, userID)
	if err != nil {
		return nil, notFound(err, util.ErrConversationMissing)
	}
	return s.reply(ctx, conv, req.Content)
}

// reply 历史消息 + 新消息交给工具循环，成功后两条消息一起落库
func (s *TutorService) reply(ctx context.Context, conv *model.TutorConversation, content string) (*TutorReply, error) {
	history := conv.Messages
	if len(history) > maxTutorHistory {
		history = history[len(history)-maxTutorHistory:]
	}
	messages := make([]LLMMessage, 0, len(history)+1)
	for _, m := range history {
		messages = append(messages, TextMessage(m.Role, m.Content))
	}
	content = strings.TrimSpace(content)
	messages = append(messages, TextMessage(RoleUser, content))

	req := LLMRequest{
		System:   s.systemPrompt(ctx, conv),
		Messages: messages,
		Tools:    tutorTools(),
	}
	res, err := RunToolLoop(ctx, s.Model, req, s.executor(conv.UserID), s.Model.MaxToolIterations())
	if err != nil {
		logger.Log.Error("Tutor reply failed", zap.String("conversationId", conv.ID), zap.Error(err))
		return nil, err
	}

	text := res.Final.Text()
	if text == "" {
		text = "Lo siento, no pude generar una respuesta. ¿Puedes reformular tu pregunta?"
	}
	userMsg := &model.TutorMessage{Role: RoleUser, Content: content}
	assistantMsg := &model.TutorMessage{Role: RoleAssistant, Content: text, ToolsUsed: strings.Join(dedupe(res.ToolsUsed), ",")}
	if err := s.Store.AppendMessages(ctx, conv.ID, userMsg, assistantMsg); err != nil {
		return nil, err
	}
	return &TutorReply{UserMessage: userMsg, Reply: assistantMsg, ToolsUsed: res.ToolsUsed}, nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

func (s *TutorService) ListConversations(ctx context.Context, userID uint) ([]model.TutorConversation, error) {
	return s.Store.ListConversations(ctx, userID)
}

func (s *TutorService) GetConversation(ctx context.Context, userID uint, id string) (*model.TutorConversation, error) {
	conv, err := s.Store.FindConversation(ctx, id, userID)
	if err != nil {
		return nil, notFound(err, util.ErrConversationMissing)
	}
	return conv, nil
}

func (s *TutorService) DeleteConversation(ctx context.Context, userID uint, id string) error {
	deleted, err := s.Store.DeleteConversation(ctx, id, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return util.ErrConversationMissing
	}
	return nil
}
