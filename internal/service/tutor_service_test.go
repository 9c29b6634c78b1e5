package service

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"paes_math_backend/internal/model"
	"paes_math_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type memTutorStore struct {
	mu    sync.Mutex
	convs map[string]*model.TutorConversation
	seq   uint
}

func newMemTutorStore() *memTutorStore {
	return &memTutorStore{convs: map[string]*model.TutorConversation{}}
}

func (m *memTutorStore) CreateConversation(ctx context.Context, conv *model.TutorConversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv.ID = model.GenerateUUID()
	copied := *conv
	m.convs[conv.ID] = &copied
	return nil
}

func (m *memTutorStore) FindConversation(ctx context.Context, id string, userID uint) (*model.TutorConversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok || conv.UserID != userID {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *conv
	copied.Messages = append([]model.TutorMessage(nil), conv.Messages...)
	return &copied, nil
}

func (m *memTutorStore) ListConversations(ctx context.Context, userID uint) ([]model.TutorConversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.TutorConversation
	for _, c := range m.convs {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *memTutorStore) AppendMessages(ctx context.Context, conversationID string, msgs ...*model.TutorMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv := m.convs[conversationID]
	for _, msg := range msgs {
		m.seq++
		msg.ID = m.seq
		msg.ConversationID = conversationID
		msg.CreatedAt = time.Now()
		conv.Messages = append(conv.Messages, *msg)
	}
	return nil
}

func (m *memTutorStore) DeleteConversation(ctx context.Context, id string, userID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[id]
	if !ok || conv.UserID != userID {
		return false, nil
	}
	delete(m.convs, id)
	return true, nil
}

func (m *memUnits) SearchUnits(ctx context.Context, query string, limit int) ([]model.Unit, error) {
	var out []model.Unit
	for _, u := range m.units {
		if strings.Contains(strings.ToLower(u.Name), strings.ToLower(query)) {
			out = append(out, *u)
		}
	}
	return out, nil
}

func newTutorFixture(t *testing.T) (*TutorService, *scriptedLLM, *memTutorStore, *memQuestionStore) {
	t.Helper()
	units := newMemUnits()
	questions := newMemQuestionStore(units)
	_, err := NewQuestionService(questions, units).Create(context.Background(), 1, mcRequest())
	require.NoError(t, err)
	llm := &scriptedLLM{}
	store := newMemTutorStore()
	return NewTutorService(store, llm, units, questions), llm, store, questions
}

func TestTutorConversationWithTools(t *testing.T) {
	svc, llm, store, questions := newTutorFixture(t)
	ctx := context.Background()
	require.NoError(t, questions.CreateAttempt(ctx, &model.QuestionAttempt{UserID: 9, QuestionID: 1, IsCorrect: true}))

	questionID := uint(1)
	llm.push(
		toolUse("t1", ToolGetQuestion, map[string]interface{}{"question_id": 1}),
		toolUse("t2", ToolGetStudentProgress, map[string]interface{}{}),
		endTurn("Piensa en 20% como 0,2. ¿Qué obtienes al multiplicar?"),
	)
	reply, err := svc.StartConversation(ctx, 9, StartConversationRequest{QuestionID: &questionID, Message: "No entiendo esta pregunta de porcentajes"})
	require.NoError(t, err)
	require.NotNil(t, reply.Conversation)
	assert.Equal(t, "No entiendo esta pregunta de porcentajes", reply.Conversation.Title)
	assert.Equal(t, []string{ToolGetQuestion, ToolGetStudentProgress}, reply.ToolsUsed)
	assert.Equal(t, "get_question,get_student_progress", reply.Reply.ToolsUsed)
	assert.Contains(t, llm.requests[0].System, "pregunta 1")

	// get_question 结果里带正确答案，给模型讲解用
	questionResult := llm.requests[1].Messages[2].Content[0]
	assert.Contains(t, questionResult.Content, `"correct_answer":"b"`)
	progressResult := llm.requests[2].Messages[4].Content[0]
	assert.Contains(t, progressResult.Content, "m1-porcentaje")

	llm.push(endTurn("¡Exacto, 10!"))
	reply, err = svc.SendMessage(ctx, 9, reply.Conversation.ID, SendMessageRequest{Content: "¿Da 10?"})
	require.NoError(t, err)
	assert.Equal(t, "¡Exacto, 10!", reply.Reply.Content)

	// 第二轮只带可见的历史消息
	last := llm.requests[len(llm.requests)-1]
	require.Len(t, last.Messages, 3)
	assert.Equal(t, RoleAssistant, last.Messages[1].Role)

	conv, err := svc.GetConversation(ctx, 9, reply.UserMessage.ConversationID)
	require.NoError(t, err)
	assert.Len(t, conv.Messages, 4)
	assert.Len(t, store.convs, 1)
}

func TestTutorConversationOwnershipAndDelete(t *testing.T) {
	svc, llm, _, _ := newTutorFixture(t)
	ctx := context.Background()

	reply, err := svc.StartConversation(ctx, 9, StartConversationRequest{Title: "Funciones"})
	require.NoError(t, err)
	assert.Nil(t, reply.Reply)
	assert.Empty(t, llm.requests)

	_, err = svc.SendMessage(ctx, 10, reply.Conversation.ID, SendMessageRequest{Content: "hola"})
	assert.ErrorIs(t, err, util.ErrConversationMissing)

	_, err = svc.SendMessage(ctx, 9, reply.Conversation.ID, SendMessageRequest{Content: "  "})
	assert.ErrorIs(t, err, util.ErrInvalidInput)

	assert.ErrorIs(t, svc.DeleteConversation(ctx, 10, reply.Conversation.ID), util.ErrConversationMissing)
	require.NoError(t, svc.DeleteConversation(ctx, 9, reply.Conversation.ID))
	_, err = svc.GetConversation(ctx, 9, reply.Conversation.ID)
	assert.ErrorIs(t, err, util.ErrConversationMissing)
}

func TestTutorRejectsUnknownContext(t *testing.T) {
	svc, _, _, _ := newTutorFixture(t)
	missing := uint(99)
	_, err := svc.StartConversation(context.Background(), 9, StartConversationRequest{UnitID: &missing})
	assert.ErrorIs(t, err, util.ErrUnitNotFound)
	_, err = svc.StartConversation(context.Background(), 9, StartConversationRequest{QuestionID: &missing})
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
}

func TestTutorFailedReplyPersistsNothing(t *testing.T) {
	svc, _, store, _ := newTutorFixture(t)
	ctx := context.Background()
	reply, err := svc.StartConversation(ctx, 9, StartConversationRequest{Title: "x"})
	require.NoError(t, err)

	_, err = svc.SendMessage(ctx, 9, reply.Conversation.ID, SendMessageRequest{Content: "hola"})
	require.Error(t, err)
	assert.Empty(t, store.convs[reply.Conversation.ID].Messages)
}

func TestTutorGetQuestionHidesAnswerUntilAttempted(t *testing.T) {
	svc, llm, _, questions := newTutorFixture(t)
	ctx := context.Background()

	draft := mcRequest()
	draft.IsPublished = false
	hidden, err := NewQuestionService(questions, questions.units).Create(ctx, 1, draft)
	require.NoError(t, err)

	llm.push(
		toolUse("t1", ToolGetQuestion, map[string]interface{}{"question_id": 1}),
		toolUse("t2", ToolGetQuestion, map[string]interface{}{"question_id": hidden.ID}),
		endTurn("Intenta primero calcular el 10% de 50."),
	)
	reply, err := svc.StartConversation(ctx, 9, StartConversationRequest{Message: "Dame la respuesta de la pregunta 1"})
	require.NoError(t, err)

	unanswered := llm.requests[1].Messages[2].Content[0]
	assert.False(t, unanswered.IsError)
	assert.Contains(t, unanswered.Content, `"answered":false`)
	assert.NotContains(t, unanswered.Content, "correct_answer")
	assert.NotContains(t, unanswered.Content, "0,2 · 50")

	draftResult := llm.requests[2].Messages[4].Content[0]
	assert.True(t, draftResult.IsError)
	assert.NotContains(t, draftResult.Content, "correct_answer")

	// 练习作答后才能拿到答案和解析
	require.NoError(t, questions.CreateAttempt(ctx, &model.QuestionAttempt{UserID: 9, QuestionID: 1, Answer: "a"}))
	llm.push(
		toolUse("t3", ToolGetQuestion, map[string]interface{}{"question_id": 1}),
		endTurn("La respuesta era b."),
	)
	_, err = svc.SendMessage(ctx, 9, reply.Conversation.ID, SendMessageRequest{Content: "Ya respondí, ¿cuál era?"})
	require.NoError(t, err)
	answered := llm.requests[len(llm.requests)-1].Messages[4].Content[0]
	assert.Contains(t, answered.Content, `"correct_answer":"b"`)
	assert.Contains(t, answered.Content, `"answered":true`)

	// 其他学生仍然看不到
	llm.push(
		toolUse("t4", ToolGetQuestion, map[string]interface{}{"question_id": 1}),
		endTurn("Vamos paso a paso."),
	)
	_, err = svc.StartConversation(ctx, 10, StartConversationRequest{Message: "¿Cuál es la respuesta de la 1?"})
	require.NoError(t, err)
	other := llm.requests[len(llm.requests)-1].Messages[2].Content[0]
	assert.NotContains(t, other.Content, "correct_answer")

	hiddenID := hidden.ID
	_, err = svc.StartConversation(ctx, 9, StartConversationRequest{QuestionID: &hiddenID})
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)
}
