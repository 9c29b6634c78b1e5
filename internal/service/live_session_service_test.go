package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"paes_math_backend/internal/config"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/repository"
	"paes_math_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memSessionStore 内存版场次存储，每个场次一把锁模拟行锁
type memSessionStore struct {
	mu            sync.Mutex
	locks         map[uint]*sync.Mutex
	sessions      map[uint]*model.LiveSession
	questions     map[uint][]model.SessionQuestion
	registrations map[uint]map[uint]bool
	participants  map[uint]map[uint]*model.SessionParticipant
	answers       map[uint][]model.SessionAnswer
	nextID        uint
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{
		locks:         map[uint]*sync.Mutex{},
		sessions:      map[uint]*model.LiveSession{},
		questions:     map[uint][]model.SessionQuestion{},
		registrations: map[uint]map[uint]bool{},
		participants:  map[uint]map[uint]*model.SessionParticipant{},
		answers:       map[uint][]model.SessionAnswer{},
	}
}

type memSeatTx struct {
	store     *memSessionStore
	sessionID uint
}

func (t *memSeatTx) CountRegistrations() (int64, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return int64(len(t.store.registrations[t.sessionID])), nil
}

func (t *memSeatTx) IsRegistered(userID uint) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.registrations[t.sessionID][userID], nil
}

func (t *memSeatTx) AddRegistration(userID uint) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.registrations[t.sessionID] == nil {
		t.store.registrations[t.sessionID] = map[uint]bool{}
	}
	t.store.registrations[t.sessionID][userID] = true
	return nil
}

func (t *memSeatTx) RemoveRegistration(userID uint) (bool, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	ok := t.store.registrations[t.sessionID][userID]
	delete(t.store.registrations[t.sessionID], userID)
	return ok, nil
}

func (t *memSeatTx) FindParticipant(userID uint) (*model.SessionParticipant, error) {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	return t.store.participants[t.sessionID][userID], nil
}

func (t *memSeatTx) AddParticipant(p *model.SessionParticipant) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	if t.store.participants[t.sessionID] == nil {
		t.store.participants[t.sessionID] = map[uint]*model.SessionParticipant{}
	}
	t.store.nextID++
	p.ID = t.store.nextID
	p.SessionID = t.sessionID
	t.store.participants[t.sessionID][p.UserID] = p
	return nil
}

func (m *memSessionStore) lockFor(id uint) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[id]
	if !ok {
		l = &sync.Mutex{}
		m.locks[id] = l
	}
	return l
}

func (m *memSessionStore) WithLockedSession(ctx context.Context, sessionID uint, fn func(*model.LiveSession, repository.SeatTx) error) error {
	l := m.lockFor(sessionID)
	l.Lock()
	defer l.Unlock()

	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	var snapshot model.LiveSession
	if ok {
		snapshot = *session
	}
	m.mu.Unlock()
	if !ok {
		return gorm.ErrRecordNotFound
	}
	return fn(&snapshot, &memSeatTx{store: m, sessionID: sessionID})
}

func (m *memSessionStore) Create(ctx context.Context, session *model.LiveSession, questionIDs []uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	session.ID = m.nextID
	copied := *session
	m.sessions[session.ID] = &copied
	for i, qid := range questionIDs {
		m.questions[session.ID] = append(m.questions[session.ID], model.SessionQuestion{SessionID: session.ID, QuestionID: qid, Position: i + 1})
	}
	return nil
}

func (m *memSessionStore) Update(ctx context.Context, session *model.LiveSession, questionIDs []uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *session
	m.sessions[session.ID] = &copied
	if questionIDs != nil {
		m.questions[session.ID] = nil
		for i, qid := range questionIDs {
			m.questions[session.ID] = append(m.questions[session.ID], model.SessionQuestion{SessionID: session.ID, QuestionID: qid, Position: i + 1})
		}
	}
	return nil
}

func (m *memSessionStore) FindByID(ctx context.Context, id uint) (*model.LiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *s
	return &copied, nil
}

func (m *memSessionStore) Questions(ctx context.Context, sessionID uint) ([]model.SessionQuestion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.SessionQuestion(nil), m.questions[sessionID]...), nil
}

func (m *memSessionStore) Delete(ctx context.Context, id uint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	return nil
}

func (m *memSessionStore) ListUpcoming(ctx context.Context, level model.TestLevel, limit int) ([]model.LiveSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.LiveSession
	for _, s := range m.sessions {
		if !s.Status.Closed() && (level == "" || s.Level == level) {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (m *memSessionStore) ListByTeacher(ctx context.Context, teacherID uint, page, limit int) ([]model.LiveSession, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.LiveSession
	for _, s := range m.sessions {
		if teacherID == 0 || s.TeacherID == teacherID {
			out = append(out, *s)
		}
	}
	return out, int64(len(out)), nil
}

func (m *memSessionStore) SeatCounts(ctx context.Context, sessionID uint) (int64, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.registrations[sessionID])), int64(len(m.participants[sessionID])), nil
}

func (m *memSessionStore) IsRegistered(ctx context.Context, sessionID, userID uint) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registrations[sessionID][userID], nil
}

func (m *memSessionStore) FindParticipant(ctx context.Context, sessionID, userID uint) (*model.SessionParticipant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.participants[sessionID][userID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *p
	return &copied, nil
}

func (m *memSessionStore) SaveSubmission(ctx context.Context, p *model.SessionParticipant, answers []model.SessionAnswer) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := m.participants[p.SessionID][p.UserID]
	if stored == nil || stored.SubmittedAt != nil {
		return false, nil
	}
	copied := *p
	m.participants[p.SessionID][p.UserID] = &copied
	m.answers[p.ID] = append(m.answers[p.ID], answers...)
	return true, nil
}

func (m *memSessionStore) Answers(ctx context.Context, participantID uint) ([]model.SessionAnswer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answers[participantID], nil
}

func (m *memSessionStore) TransitionStatus(ctx context.Context, id uint, from []model.SessionStatus, to model.SessionStatus, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return false, nil
	}
	for _, f := range from {
		if s.Status == f {
			s.Status = to
			if to == model.SessionInProgress {
				s.StartedAt = &at
			}
			return true, nil
		}
	}
	return false, nil
}

func (m *memSessionStore) filter(keep func(*model.LiveSession) bool) []model.LiveSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.LiveSession
	for _, s := range m.sessions {
		if keep(s) {
			out = append(out, *s)
		}
	}
	return out
}

func (m *memSessionStore) DueForLobby(ctx context.Context, lobbyStart time.Time) ([]model.LiveSession, error) {
	return m.filter(func(s *model.LiveSession) bool {
		return s.Status == model.SessionScheduled && !s.ScheduledAt.After(lobbyStart)
	}), nil
}

func (m *memSessionStore) DueForStart(ctx context.Context, now time.Time) ([]model.LiveSession, error) {
	return m.filter(func(s *model.LiveSession) bool {
		return (s.Status == model.SessionScheduled || s.Status == model.SessionLobby) && !s.ScheduledAt.After(now)
	}), nil
}

func (m *memSessionStore) InProgress(ctx context.Context) ([]model.LiveSession, error) {
	return m.filter(func(s *model.LiveSession) bool { return s.Status == model.SessionInProgress }), nil
}

func (m *memSessionStore) Results(ctx context.Context, sessionID uint) ([]model.SessionResultRow, error) {
	return nil, nil
}

func (m *memSessionStore) status(id uint) model.SessionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[id].Status
}

type memQuestions struct {
	mu        sync.Mutex
	questions map[uint]model.Question
	attempts  []model.QuestionAttempt
}

func (q *memQuestions) FindByIDs(ctx context.Context, ids []uint) ([]model.Question, error) {
	var out []model.Question
	for _, id := range ids {
		if question, ok := q.questions[id]; ok {
			out = append(out, question)
		}
	}
	return out, nil
}

func (q *memQuestions) CreateAttempts(ctx context.Context, attempts []model.QuestionAttempt) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.attempts = append(q.attempts, attempts...)
	return nil
}

type recordedEvent struct {
	SessionID uint
	Type      string
}

type memPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *memPublisher) Publish(sessionID uint, eventType string, data interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{SessionID: sessionID, Type: eventType})
}

func (p *memPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type countingIssuer struct {
	mu       sync.Mutex
	sessions []uint
}

func (c *countingIssuer) IssueForSession(ctx context.Context, sessionID uint) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions = append(c.sessions, sessionID)
	return 1, nil
}

type sessionFixture struct {
	svc       *LiveSessionService
	store     *memSessionStore
	questions *memQuestions
	events    *memPublisher
	issuer    *countingIssuer
	now       time.Time
}

func mcOptions() json.RawMessage {
	return json.RawMessage(`[{"key":"A","text":"1"},{"key":"B","text":"2"},{"key":"C","text":"3"},{"key":"D","text":"4"}]`)
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	now := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	questions := &memQuestions{questions: map[uint]model.Question{
		1: {BaseModel: model.BaseModel{ID: 1}, Level: model.LevelM1, Type: model.QuestionMultipleChoice, Options: mcOptions(), CorrectAnswer: "B", IsPublished: true},
		2: {BaseModel: model.BaseModel{ID: 2}, Level: model.LevelM1, Type: model.QuestionNumeric, CorrectAnswer: "0.75", IsPublished: true},
		3: {BaseModel: model.BaseModel{ID: 3}, Level: model.LevelM1, Type: model.QuestionMultipleChoice, Options: mcOptions(), CorrectAnswer: "D", IsPublished: true},
		4: {BaseModel: model.BaseModel{ID: 4}, Level: model.LevelM2, Type: model.QuestionMultipleChoice, Options: mcOptions(), CorrectAnswer: "A", IsPublished: true},
		5: {BaseModel: model.BaseModel{ID: 5}, Level: model.LevelM1, Type: model.QuestionMultipleChoice, Options: mcOptions(), CorrectAnswer: "A"},
	}}
	f := &sessionFixture{
		store:     newMemSessionStore(),
		questions: questions,
		events:    &memPublisher{},
		issuer:    &countingIssuer{},
		now:       now,
	}
	f.svc = NewLiveSessionService(f.store, questions, f.events, f.issuer, config.LiveSessionConfig{
		LobbyWindow:  15 * time.Minute,
		DefaultSeats: 30,
	})
	f.svc.Now = func() time.Time { return f.now }
	return f
}

// createSession 建一个场次并把题目写进 Question 字段，方便评分
func (f *sessionFixture) createSession(t *testing.T, seats int) *model.LiveSession {
	t.Helper()
	session, err := f.svc.Create(context.Background(), 100, CreateSessionRequest{
		Title:           "Ensayo M1",
		Level:           model.LevelM1,
		ScheduledAt:     f.now.Add(2 * time.Hour),
		DurationMinutes: 90,
		MaxParticipants: seats,
		QuestionIDs:     []uint{1, 2, 3},
	})
	require.NoError(t, err)

	f.store.mu.Lock()
	rows := f.store.questions[session.ID]
	for i := range rows {
		q := f.questions.questions[rows[i].QuestionID]
		rows[i].Question = &q
	}
	f.store.mu.Unlock()
	return session
}

func (f *sessionFixture) setStatus(id uint, status model.SessionStatus) {
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	f.store.sessions[id].Status = status
}

func TestLiveSessionCreateValidation(t *testing.T) {
	f := newSessionFixture(t)
	ctx := context.Background()
	base := CreateSessionRequest{
		Title:           "Ensayo",
		Level:           model.LevelM1,
		ScheduledAt:     f.now.Add(time.Hour),
		DurationMinutes: 60,
		QuestionIDs:     []uint{1, 2},
	}

	past := base
	past.ScheduledAt = f.now.Add(-time.Minute)
	_, err := f.svc.Create(ctx, 1, past)
	assert.ErrorIs(t, err, util.ErrInvalidSchedule)

	wrongLevel := base
	wrongLevel.QuestionIDs = []uint{1, 4}
	_, err = f.svc.Create(ctx, 1, wrongLevel)
	assert.ErrorIs(t, err, util.ErrInvalidQuestion)

	unpublished := base
	unpublished.QuestionIDs = []uint{5}
	_, err = f.svc.Create(ctx, 1, unpublished)
	assert.ErrorIs(t, err, util.ErrInvalidQuestion)

	missing := base
	missing.QuestionIDs = []uint{1, 99}
	_, err = f.svc.Create(ctx, 1, missing)
	assert.ErrorIs(t, err, util.ErrQuestionNotFound)

	session, err := f.svc.Create(ctx, 1, base)
	require.NoError(t, err)
	assert.Equal(t, 30, session.MaxParticipants)
	assert.Equal(t, model.SessionScheduled, session.Status)
}

func TestLiveSessionConcurrentRegistrationRespectsCapacity(t *testing.T) {
	f := newSessionFixture(t)
	session := f.createSession(t, 10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	ok, full := 0, 0
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(userID uint) {
			defer wg.Done()
			_, err := f.svc.Register(context.Background(), userID, session.ID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case err == util.ErrSessionFull:
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(uint(1000 + i))
	}
	wg.Wait()

	assert.Equal(t, 10, ok)
	assert.Equal(t, 30, full)
	registered, _, _ := f.store.SeatCounts(context.Background(), session.ID)
	assert.Equal(t, int64(10), registered)
	assert.Equal(t, 10, f.events.count(EventRegistered))
}

func TestLiveSessionRegisterIsIdempotent(t *testing.T) {
	f := newSessionFixture(t)
	session := f.createSession(t, 1)
	ctx := context.Background()

	first, err := f.svc.Register(ctx, 7, session.ID)
	require.NoError(t, err)
	assert.False(t, first.AlreadyRegistered)

	again, err := f.svc.Register(ctx, 7, session.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyRegistered)
	assert.Equal(t, int64(1), again.Registered)

	_, err = f.svc.Register(ctx, 8, session.ID)
	assert.ErrorIs(t, err, util.ErrSessionFull)
}

func TestLiveSessionRegisterClosedAndMissing(t *testing.T) {
	f := newSessionFixture(t)
	session := f.createSession(t, 5)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, 1, 999)
	assert.ErrorIs(t, err, util.ErrSessionNotFound)

	_, err = f.svc.Cancel(ctx, Actor{UserID: 100, Role: model.Teacher}, session.ID)
	require.NoError(t, err)
	_, err = f.svc.Register(ctx, 1, session.ID)
	assert.ErrorIs(t, err, util.ErrSessionClosed)
}

func TestLiveSessionJoinRules(t *testing.T) {
	f := newSessionFixture(t)
	session := f.createSession(t, 2)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, 1, session.ID)
	require.NoError(t, err)

	_, err = f.svc.Join(ctx, 1, session.ID)
	assert.ErrorIs(t, err, util.ErrSessionNotJoinable)

	f.setStatus(session.ID, model.SessionLobby)
	joined, err := f.svc.Join(ctx, 1, session.ID)
	require.NoError(t, err)
	assert.False(t, joined.AlreadyJoined)

	again, err := f.svc.Join(ctx, 1, session.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyJoined)
	assert.Equal(t, joined.Participant.ID, again.Participant.ID)

	// 未报名的学生入场时补报名
	walkIn, err := f.svc.Join(ctx, 2, session.ID)
	require.NoError(t, err)
	assert.NotNil(t, walkIn.Participant)
	registered, joinedCount, _ := f.store.SeatCounts(ctx, session.ID)
	assert.Equal(t, int64(2), registered)
	assert.Equal(t, int64(2), joinedCount)

	_, err = f.svc.Join(ctx, 3, session.ID)
	assert.ErrorIs(t, err, util.ErrSessionFull)

	assert.ErrorIs(t, f.svc.Unregister(ctx, 1, session.ID), util.ErrAlreadyJoined)
}

func TestLiveSessionUnregisterFreesSeat(t *testing.T) {
	f := newSessionFixture(t)
	session := f.createSession(t, 1)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, 1, session.ID)
	require.NoError(t, err)
	require.NoError(t, f.svc.Unregister(ctx, 1, session.ID))

	_, err = f.svc.Register(ctx, 2, session.ID)
	assert.NoError(t, err)
}

func TestLiveSessionSubmitScoresOnce(t *testing.T) {
	f := newSessionFixture(t)
	session := f.createSession(t, 5)
	ctx := context.Background()
	teacher := Actor{UserID: 100, Role: model.Teacher}

	f.setStatus(session.ID, model.SessionLobby)
	_, err := f.svc.Join(ctx, 1, session.ID)
	require.NoError(t, err)

	_, err = f.svc.SessionQuestions(ctx, 1, session.ID)
	assert.ErrorIs(t, err, util.ErrSessionNotStarted)

	_, err = f.svc.Start(ctx, teacher, session.ID)
	require.NoError(t, err)

	views, err := f.svc.SessionQuestions(ctx, 1, session.ID)
	require.NoError(t, err)
	require.Len(t, views, 3)
	for _, v := range views {
		assert.Empty(t, v.Question.CorrectAnswer)
	}

	_, err = f.svc.SessionQuestions(ctx, 2, session.ID)
	assert.ErrorIs(t, err, util.ErrNotParticipant)

	result, err := f.svc.Submit(ctx, 1, session.ID, map[uint]string{1: "b", 2: "3/4", 3: "A"})
	require.NoError(t, err)
	assert.Equal(t, 2, result.CorrectCount)
	assert.Equal(t, 3, result.TotalCount)
	assert.Equal(t, PAESScore(2, 3), result.Score)
	assert.Len(t, f.questions.attempts, 3)
	for _, a := range f.questions.attempts {
		assert.Equal(t, model.ContextEnsayo, a.Context)
	}

	_, err = f.svc.Submit(ctx, 1, session.ID, map[uint]string{1: "B", 2: "0.75", 3: "D"})
	assert.ErrorIs(t, err, util.ErrAlreadySubmitted)
	assert.Equal(t, 1, f.events.count(EventSubmitted))

	mine, err := f.svc.MyResult(ctx, 1, session.ID)
	require.NoError(t, err)
	assert.Equal(t, result.Score, mine.Score)
	assert.Empty(t, mine.Answers[0].CorrectAnswer)

	_, err = f.svc.Finish(ctx, teacher, session.ID)
	require.NoError(t, err)
	mine, err = f.svc.MyResult(ctx, 1, session.ID)
	require.NoError(t, err)
	assert.Equal(t, "B", mine.Answers[0].CorrectAnswer)
	assert.Equal(t, []uint{session.ID}, f.issuer.sessions)
}

func TestLiveSessionOwnership(t *testing.T) {
	f := newSessionFixture(t)
	session := f.createSession(t, 5)
	ctx := context.Background()

	_, err := f.svc.Start(ctx, Actor{UserID: 200, Role: model.Teacher}, session.ID)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)

	_, err = f.svc.Start(ctx, Actor{UserID: 1, Role: model.Admin}, session.ID)
	assert.NoError(t, err)

	err = f.svc.Delete(ctx, Actor{UserID: 100, Role: model.Teacher}, session.ID)
	assert.ErrorIs(t, err, util.ErrSessionNotEditable)
}

func TestLiveSessionUpdateCapacityFloor(t *testing.T) {
	f := newSessionFixture(t)
	session := f.createSession(t, 5)
	ctx := context.Background()
	teacher := Actor{UserID: 100, Role: model.Teacher}

	for _, uid := range []uint{1, 2, 3} {
		_, err := f.svc.Register(ctx, uid, session.ID)
		require.NoError(t, err)
	}

	two := 2
	_, err := f.svc.Update(ctx, teacher, session.ID, UpdateSessionRequest{MaxParticipants: &two})
	assert.ErrorIs(t, err, util.ErrSessionNotEditable)

	three := 3
	updated, err := f.svc.Update(ctx, teacher, session.ID, UpdateSessionRequest{MaxParticipants: &three})
	require.NoError(t, err)
	assert.Equal(t, 3, updated.MaxParticipants)
}

func TestLiveSessionAdvanceLifecycle(t *testing.T) {
	f := newSessionFixture(t)
	session := f.createSession(t, 5)
	ctx := context.Background()

	changed, err := f.svc.AdvanceLifecycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, changed)

	f.now = session.ScheduledAt.Add(-10 * time.Minute)
	_, err = f.svc.AdvanceLifecycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SessionLobby, f.store.status(session.ID))

	f.now = session.ScheduledAt
	_, err = f.svc.AdvanceLifecycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SessionInProgress, f.store.status(session.ID))

	f.now = session.ScheduledAt.Add(91 * time.Minute)
	_, err = f.svc.AdvanceLifecycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.SessionCompleted, f.store.status(session.ID))
	assert.Equal(t, []uint{session.ID}, f.issuer.sessions)
	assert.Equal(t, 3, f.events.count(EventStatusChanged))
}
