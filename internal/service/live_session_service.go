package service

import (
	"context"
	"errors"
	"fmt"
	"paes_math_backend/internal/config"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/repository"
	"paes_math_backend/internal/util"
	"paes_math_backend/pkg/logger"
	"paes_math_backend/pkg/monitoring"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// LiveSessionStore 场次持久化接口，由 repository.LiveSessionRepository 实现
type LiveSessionStore interface {
	WithLockedSession(ctx context.Context, sessionID uint, fn func(session *model.LiveSession, tx repository.SeatTx) error) error
	Create(ctx context.Context, session *model.LiveSession, questionIDs []uint) error
	Update(ctx context.Context, session *model.LiveSession, questionIDs []uint) error
	FindByID(ctx context.Context, id uint) (*model.LiveSession, error)
	Questions(ctx context.Context, sessionID uint) ([]model.SessionQuestion, error)
	Delete(ctx context.Context, id uint) error
	ListUpcoming(ctx context.Context, level model.TestLevel, limit int) ([]model.LiveSession, error)
	ListByTeacher(ctx context.Context, teacherID uint, page, limit int) ([]model.LiveSession, int64, error)
	SeatCounts(ctx context.Context, sessionID uint) (int64, int64, error)
	IsRegistered(ctx context.Context, sessionID, userID uint) (bool, error)
	FindParticipant(ctx context.Context, sessionID, userID uint) (*model.SessionParticipant, error)
	SaveSubmission(ctx context.Context, p *model.SessionParticipant, answers []model.SessionAnswer) (bool, error)
	Answers(ctx context.Context, participantID uint) ([]model.SessionAnswer, error)
	TransitionStatus(ctx context.Context, id uint, from []model.SessionStatus, to model.SessionStatus, at time.Time) (bool, error)
	DueForLobby(ctx context.Context, lobbyStart time.Time) ([]model.LiveSession, error)
	DueForStart(ctx context.Context, now time.Time) ([]model.LiveSession, error)
	InProgress(ctx context.Context) ([]model.LiveSession, error)
	Results(ctx context.Context, sessionID uint) ([]model.SessionResultRow, error)
}

// QuestionLookup 场次评分需要的题库操作
type QuestionLookup interface {
	FindByIDs(ctx context.Context, ids []uint) ([]model.Question, error)
	CreateAttempts(ctx context.Context, attempts []model.QuestionAttempt) error
}

// SessionCertificateIssuer 场次结束后为交卷学生发证书
type SessionCertificateIssuer interface {
	IssueForSession(ctx context.Context, sessionID uint) (int, error)
}

// Actor 当前操作者
type Actor struct {
	UserID uint
	Role   model.UserRole
}

func ActorFromClaims(c *util.Claims) Actor {
	return Actor{UserID: c.UserID, Role: c.Role}
}

func (a Actor) IsAdmin() bool { return a.Role == model.Admin }

type CreateSessionRequest struct {
	Title           string          `json:"title" binding:"required"`
	Description     string          `json:"description"`
	Level           model.TestLevel `json:"level" binding:"required"`
	ScheduledAt     time.Time       `json:"scheduledAt" binding:"required"`
	DurationMinutes int             `json:"durationMinutes" binding:"required,min=1,max=600"`
	MaxParticipants int             `json:"maxParticipants" binding:"omitempty,min=1"`
	QuestionIDs     []uint          `json:"questionIds" binding:"required,min=1"`
}

type UpdateSessionRequest struct {
	Title           *string          `json:"title"`
	Description     *string          `json:"description"`
	Level           *model.TestLevel `json:"level"`
	ScheduledAt     *time.Time       `json:"scheduledAt"`
	DurationMinutes *int             `json:"durationMinutes"`
	MaxParticipants *int             `json:"maxParticipants"`
	QuestionIDs     []uint           `json:"questionIds"`
}

// LiveSessionView 场次详情，附带座位信息
type LiveSessionView struct {
	model.LiveSession
	Registered    int64 `json:"registered"`
	Joined        int64 `json:"joined"`
	QuestionCount int   `json:"questionCount"`
	IsRegistered  bool  `json:"isRegistered"`
	HasJoined     bool  `json:"hasJoined"`
	HasSubmitted  bool  `json:"hasSubmitted"`
}

type RegisterResult struct {
	AlreadyRegistered bool  `json:"alreadyRegistered"`
	Registered        int64 `json:"registered"`
	MaxParticipants   int   `json:"maxParticipants"`
}

type JoinResult struct {
	AlreadyJoined bool                      `json:"alreadyJoined"`
	Participant   *model.SessionParticipant `json:"participant"`
}

type SessionQuestionView struct {
	Position int            `json:"position"`
	Question model.Question `json:"question"`
}

type AnswerResult struct {
	QuestionID    uint   `json:"questionId"`
	Position      int    `json:"position"`
	Answer        string `json:"answer"`
	IsCorrect     bool   `json:"isCorrect"`
	CorrectAnswer string `json:"correctAnswer,omitempty"`
	Explanation   string `json:"explanation,omitempty"`
}

type SubmissionResult struct {
	SessionID    uint           `json:"sessionId"`
	Score        int            `json:"score"`
	CorrectCount int            `json:"correctCount"`
	TotalCount   int            `json:"totalCount"`
	SubmittedAt  time.Time      `json:"submittedAt"`
	Answers      []AnswerResult `json:"answers"`
}

type LiveSessionService struct {
	Store        LiveSessionStore
	Questions    QuestionLookup
	Events       SessionEventPublisher
	Certificates SessionCertificateIssuer
	Config       config.LiveSessionConfig
	Now          func() time.Time
}

func NewLiveSessionService(store LiveSessionStore, questions QuestionLookup, events SessionEventPublisher, certs SessionCertificateIssuer, cfg config.LiveSessionConfig) *LiveSessionService {
	return &LiveSessionService{
		Store:        store,
		Questions:    questions,
		Events:       events,
		Certificates: certs,
		Config:       cfg,
		Now:          time.Now,
	}
}

func mapSessionErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return util.ErrSessionNotFound
	}
	return err
}

func (s *LiveSessionService) publish(sessionID uint, eventType string, data interface{}) {
	if s.Events != nil {
		s.Events.Publish(sessionID, eventType, data)
	}
}

func (s *LiveSessionService) loadOwned(ctx context.Context, actor Actor, id uint) (*model.LiveSession, error) {
	session, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return nil, mapSessionErr(err)
	}
	if !actor.IsAdmin() && session.TeacherID != actor.UserID {
		return nil, util.ErrPermissionDenied
	}
	return session, nil
}

// validateQuestions 题目必须存在、已发布且与场次级别一致
func (s *LiveSessionService) validateQuestions(ctx context.Context, level model.TestLevel, ids []uint) ([]uint, error) {
	seen := make(map[uint]bool, len(ids))
	unique := make([]uint, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}
	if len(unique) == 0 {
		return nil, fmt.Errorf("%w: at least one question is required", util.ErrInvalidQuestion)
	}

	questions, err := s.Questions.FindByIDs(ctx, unique)
	if err != nil {
		return nil, err
	}
	if len(questions) != len(unique) {
		return nil, util.ErrQuestionNotFound
	}
	for _, q := range questions {
		if !q.IsPublished {
			return nil, fmt.Errorf("%w: question %d is not published", util.ErrInvalidQuestion, q.ID)
		}
		if q.Level != level {
			return nil, fmt.Errorf("%w: question %d belongs to %s", util.ErrInvalidQuestion, q.ID, q.Level)
		}
	}
	return unique, nil
}

func (s *LiveSessionService) Create(ctx context.Context, teacherID uint, req CreateSessionRequest) (*model.LiveSession, error) {
	if !req.Level.Valid() {
		return nil, util.ErrInvalidLevel
	}
	if !req.ScheduledAt.After(s.Now()) {
		return nil, util.ErrInvalidSchedule
	}
	questionIDs, err := s.validateQuestions(ctx, req.Level, req.QuestionIDs)
	if err != nil {
		return nil, err
	}

	maxSeats := req.MaxParticipants
	if maxSeats <= 0 {
		maxSeats = s.Config.DefaultSeats
	}
	session := &model.LiveSession{
		Title:           strings.TrimSpace(req.Title),
		Description:     req.Description,
		Level:           req.Level,
		TeacherID:       teacherID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		MaxParticipants: maxSeats,
		Status:          model.SessionScheduled,
	}
	if err := s.Store.Create(ctx, session, questionIDs); err != nil {
		logger.Log.Error("Create live session failed", zap.Uint("teacherId", teacherID), zap.Error(err))
		return nil, err
	}
	logger.Log.Info("Live session created", zap.Uint("sessionId", session.ID), zap.Uint("teacherId", teacherID))
	return session, nil
}

// Update 仅计划中的场次可修改，容量不能低于已报名人数
func (s *LiveSessionService) Update(ctx context.Context, actor Actor, id uint, req UpdateSessionRequest) (*model.LiveSession, error) {
	session, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if session.Status != model.SessionScheduled {
		return nil, util.ErrSessionNotEditable
	}

	if req.Title != nil {
		session.Title = strings.TrimSpace(*req.Title)
	}
	if req.Description != nil {
		session.Description = *req.Description
	}
	if req.Level != nil {
		if !req.Level.Valid() {
			return nil, util.ErrInvalidLevel
		}
		session.Level = *req.Level
	}
	if req.ScheduledAt != nil {
		if !req.ScheduledAt.After(s.Now()) {
			return nil, util.ErrInvalidSchedule
		}
		session.ScheduledAt = *req.ScheduledAt
	}
	if req.DurationMinutes != nil {
		if *req.DurationMinutes <= 0 {
			return nil, fmt.Errorf("%w: duration must be positive", util.ErrSessionNotEditable)
		}
		session.DurationMinutes = *req.DurationMinutes
	}
	if req.MaxParticipants != nil {
		registered, _, err := s.Store.SeatCounts(ctx, id)
		if err != nil {
			return nil, err
		}
		if *req.MaxParticipants <= 0 || int64(*req.MaxParticipants) < registered {
			return nil, fmt.Errorf("%w: capacity cannot be below %d registrations", util.ErrSessionNotEditable, registered)
		}
		session.MaxParticipants = *req.MaxParticipants
	}

	var questionIDs []uint
	if req.QuestionIDs != nil || req.Level != nil {
		ids := req.QuestionIDs
		if ids == nil {
			existing, err := s.Store.Questions(ctx, id)
			if err != nil {
				return nil, err
			}
			for _, q := range existing {
				ids = append(ids, q.QuestionID)
			}
		}
		if questionIDs, err = s.validateQuestions(ctx, session.Level, ids); err != nil {
			return nil, err
		}
	}

	if err := s.Store.Update(ctx, session, questionIDs); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *LiveSessionService) transition(ctx context.Context, session *model.LiveSession, from []model.SessionStatus, to model.SessionStatus) error {
	now := s.Now()
	ok, err := s.Store.TransitionStatus(ctx, session.ID, from, to, now)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s -> %s", util.ErrInvalidTransition, session.Status, to)
	}
	session.Status = to
	switch to {
	case model.SessionInProgress:
		session.StartedAt = &now
	case model.SessionCompleted, model.SessionCancelled:
		session.EndedAt = &now
	}
	monitoring.SessionTransitions.WithLabelValues(string(to)).Inc()
	logger.Log.Info("Live session status changed", zap.Uint("sessionId", session.ID), zap.String("status", string(to)))
	s.publish(session.ID, EventStatusChanged, map[string]interface{}{
		"status":    to,
		"startedAt": session.StartedAt,
		"endsAt":    session.EndsAt(),
	})
	return nil
}

func (s *LiveSessionService) Cancel(ctx context.Context, actor Actor, id uint) (*model.LiveSession, error) {
	session, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	from := []model.SessionStatus{model.SessionScheduled, model.SessionLobby, model.SessionInProgress}
	if err := s.transition(ctx, session, from, model.SessionCancelled); err != nil {
		return nil, err
	}
	return session, nil
}

// Start 教师手动开考，可提前于计划时间
func (s *LiveSessionService) Start(ctx context.Context, actor Actor, id uint) (*model.LiveSession, error) {
	session, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	from := []model.SessionStatus{model.SessionScheduled, model.SessionLobby}
	if err := s.transition(ctx, session, from, model.SessionInProgress); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *LiveSessionService) Finish(ctx context.Context, actor Actor, id uint) (*model.LiveSession, error) {
	session, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := s.complete(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

func (s *LiveSessionService) complete(ctx context.Context, session *model.LiveSession) error {
	if err := s.transition(ctx, session, []model.SessionStatus{model.SessionInProgress}, model.SessionCompleted); err != nil {
		return err
	}
	if s.Certificates != nil {
		issued, err := s.Certificates.IssueForSession(ctx, session.ID)
		if err != nil {
			// 证书可通过下载接口补发，不影响场次结束
			logger.Log.Error("Issue session certificates failed", zap.Uint("sessionId", session.ID), zap.Error(err))
		} else {
			logger.Log.Info("Session certificates issued", zap.Uint("sessionId", session.ID), zap.Int("count", issued))
		}
	}
	return nil
}

// Delete 仅计划中或已取消的场次可删除
func (s *LiveSessionService) Delete(ctx context.Context, actor Actor, id uint) error {
	session, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return err
	}
	if session.Status != model.SessionScheduled && session.Status != model.SessionCancelled {
		return util.ErrSessionNotEditable
	}
	return s.Store.Delete(ctx, id)
}

func (s *LiveSessionService) Results(ctx context.Context, actor Actor, id uint) (*model.LiveSession, []model.SessionResultRow, error) {
	session, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, nil, err
	}
	rows, err := s.Store.Results(ctx, id)
	return session, rows, err
}

func (s *LiveSessionService) ListMine(ctx context.Context, actor Actor, page, limit int) ([]model.LiveSession, int64, error) {
	teacherID := actor.UserID
	if actor.IsAdmin() {
		teacherID = 0
	}
	return s.Store.ListByTeacher(ctx, teacherID, page, limit)
}

func (s *LiveSessionService) view(ctx context.Context, session model.LiveSession, userID uint) (*LiveSessionView, error) {
	registered, joined, err := s.Store.SeatCounts(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	v := &LiveSessionView{LiveSession: session, Registered: registered, Joined: joined}
	if userID != 0 {
		if v.IsRegistered, err = s.Store.IsRegistered(ctx, session.ID, userID); err != nil {
			return nil, err
		}
		p, err := s.Store.FindParticipant(ctx, session.ID, userID)
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if p != nil {
			v.HasJoined = true
			v.HasSubmitted = p.SubmittedAt != nil
		}
	}
	return v, nil
}

func (s *LiveSessionService) ListUpcoming(ctx context.Context, userID uint, level model.TestLevel) ([]LiveSessionView, error) {
	if level != "" && !level.Valid() {
		return nil, util.ErrInvalidLevel
	}
	sessions, err := s.Store.ListUpcoming(ctx, level, 50)
	if err != nil {
		return nil, err
	}
	views := make([]LiveSessionView, 0, len(sessions))
	for _, session := range sessions {
		v, err := s.view(ctx, session, userID)
		if err != nil {
			return nil, err
		}
		views = append(views, *v)
	}
	return views, nil
}

func (s *LiveSessionService) Get(ctx context.Context, userID, id uint) (*LiveSessionView, error) {
	session, err := s.Store.FindByID(ctx, id)
	if err != nil {
		return nil, mapSessionErr(err)
	}
	v, err := s.view(ctx, *session, userID)
	if err != nil {
		return nil, err
	}
	questions, err := s.Store.Questions(ctx, id)
	if err != nil {
		return nil, err
	}
	v.QuestionCount = len(questions)
	return v, nil
}

// Register 在场次行锁内检查容量；重复报名幂等返回成功
func (s *LiveSessionService) Register(ctx context.Context, userID, sessionID uint) (*RegisterResult, error) {
	result := &RegisterResult{}
	err := s.Store.WithLockedSession(ctx, sessionID, func(session *model.LiveSession, tx repository.SeatTx) error {
		result.MaxParticipants = session.MaxParticipants
		if session.Status.Closed() {
			return util.ErrSessionClosed
		}

		registered, err := tx.IsRegistered(userID)
		if err != nil {
			return err
		}
		count, err := tx.CountRegistrations()
		if err != nil {
			return err
		}
		if registered {
			result.AlreadyRegistered = true
			result.Registered = count
			return nil
		}
		if count >= int64(session.MaxParticipants) {
			return util.ErrSessionFull
		}
		if err := tx.AddRegistration(userID); err != nil {
			return err
		}
		result.Registered = count + 1
		return nil
	})
	if err != nil {
		err = mapSessionErr(err)
		monitoring.SessionSeatOutcomes.WithLabelValues("register", seatOutcome(err)).Inc()
		return nil, err
	}

	if result.AlreadyRegistered {
		monitoring.SessionSeatOutcomes.WithLabelValues("register", "duplicate").Inc()
		return result, nil
	}
	monitoring.SessionSeatOutcomes.WithLabelValues("register", "ok").Inc()
	s.publish(sessionID, EventRegistered, map[string]interface{}{
		"userId":     userID,
		"registered": result.Registered,
		"max":        result.MaxParticipants,
	})
	return result, nil
}

func seatOutcome(err error) string {
	switch {
	case errors.Is(err, util.ErrSessionFull):
		return "full"
	case errors.Is(err, util.ErrSessionClosed), errors.Is(err, util.ErrSessionNotJoinable):
		return "closed"
	case errors.Is(err, util.ErrSessionNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Unregister 入场前可以取消报名
func (s *LiveSessionService) Unregister(ctx context.Context, userID, sessionID uint) error {
	return mapSessionErr(s.Store.WithLockedSession(ctx, sessionID, func(session *model.LiveSession, tx repository.SeatTx) error {
		if session.Status.Closed() {
			return util.ErrSessionClosed
		}
		p, err := tx.FindParticipant(userID)
		if err != nil {
			return err
		}
		if p != nil {
			return util.ErrAlreadyJoined
		}
		_, err = tx.RemoveRegistration(userID)
		return err
	}))
}

// Join 进入候场或进行中的场次；未报名者在容量允许时同一事务内补报名
func (s *LiveSessionService) Join(ctx context.Context, userID, sessionID uint) (*JoinResult, error) {
	result := &JoinResult{}
	err := s.Store.WithLockedSession(ctx, sessionID, func(session *model.LiveSession, tx repository.SeatTx) error {
		if !session.Status.Joinable() {
			if session.Status.Closed() {
				return util.ErrSessionClosed
			}
			return util.ErrSessionNotJoinable
		}

		existing, err := tx.FindParticipant(userID)
		if err != nil {
			return err
		}
		if existing != nil {
			result.AlreadyJoined = true
			result.Participant = existing
			return nil
		}

		registered, err := tx.IsRegistered(userID)
		if err != nil {
			return err
		}
		if !registered {
			count, err := tx.CountRegistrations()
			if err != nil {
				return err
			}
			if count >= int64(session.MaxParticipants) {
				return util.ErrSessionFull
			}
			if err := tx.AddRegistration(userID); err != nil {
				return err
			}
		}

		p := &model.SessionParticipant{UserID: userID, JoinedAt: s.Now()}
		if err := tx.AddParticipant(p); err != nil {
			return err
		}
		result.Participant = p
		return nil
	})
	if err != nil {
		err = mapSessionErr(err)
		monitoring.SessionSeatOutcomes.WithLabelValues("join", seatOutcome(err)).Inc()
		return nil, err
	}

	if result.AlreadyJoined {
		monitoring.SessionSeatOutcomes.WithLabelValues("join", "duplicate").Inc()
		return result, nil
	}
	monitoring.SessionSeatOutcomes.WithLabelValues("join", "ok").Inc()
	s.publish(sessionID, EventParticipantJoined, map[string]interface{}{"userId": userID})
	return result, nil
}

// participantFor 校验场次进行中且用户已入场
func (s *LiveSessionService) participantFor(ctx context.Context, userID, sessionID uint) (*model.LiveSession, *model.SessionParticipant, error) {
	session, err := s.Store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, nil, mapSessionErr(err)
	}
	switch session.Status {
	case model.SessionInProgress:
	case model.SessionScheduled, model.SessionLobby:
		return nil, nil, util.ErrSessionNotStarted
	default:
		return nil, nil, util.ErrSessionClosed
	}

	p, err := s.Store.FindParticipant(ctx, sessionID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && p == nil) {
		return nil, nil, util.ErrNotParticipant
	}
	if err != nil {
		return nil, nil, err
	}
	return session, p, nil
}

// SessionQuestions 开考后且已入场才能看到题目，不含答案
func (s *LiveSessionService) SessionQuestions(ctx context.Context, userID, sessionID uint) ([]SessionQuestionView, error) {
	if _, _, err := s.participantFor(ctx, userID, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.Store.Questions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	views := make([]SessionQuestionView, 0, len(rows))
	for _, row := range rows {
		if row.Question == nil {
			continue
		}
		views = append(views, SessionQuestionView{Position: row.Position, Question: row.Question.PublicView()})
	}
	return views, nil
}

// Submit 交卷，每人仅一次；按存储的正确答案评分并换算 PAES 分数
func (s *LiveSessionService) Submit(ctx context.Context, userID, sessionID uint, answers map[uint]string) (*SubmissionResult, error) {
	_, participant, err := s.participantFor(ctx, userID, sessionID)
	if err != nil {
		return nil, err
	}
	if participant.SubmittedAt != nil {
		return nil, util.ErrAlreadySubmitted
	}

	rows, err := s.Store.Questions(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.Now()
	result := &SubmissionResult{SessionID: sessionID, TotalCount: len(rows), SubmittedAt: now}
	stored := make([]model.SessionAnswer, 0, len(rows))
	attempts := make([]model.QuestionAttempt, 0, len(rows))
	for _, row := range rows {
		if row.Question == nil {
			continue
		}
		answer := strings.TrimSpace(answers[row.QuestionID])
		correct := answer != "" && CheckAnswer(row.Question, answer)
		if correct {
			result.CorrectCount++
		}
		result.Answers = append(result.Answers, AnswerResult{
			QuestionID: row.QuestionID,
			Position:   row.Position,
			Answer:     answer,
			IsCorrect:  correct,
		})
		stored = append(stored, model.SessionAnswer{
			ParticipantID: participant.ID,
			QuestionID:    row.QuestionID,
			Answer:        answer,
			IsCorrect:     correct,
		})
		if answer != "" {
			attempts = append(attempts, model.QuestionAttempt{
				UserID:     userID,
				QuestionID: row.QuestionID,
				Answer:     answer,
				IsCorrect:  correct,
				Context:    model.ContextEnsayo,
			})
		}
	}
	result.Score = PAESScore(result.CorrectCount, result.TotalCount)

	participant.SubmittedAt = &now
	participant.CorrectCount = result.CorrectCount
	participant.TotalCount = result.TotalCount
	participant.Score = result.Score

	saved, err := s.Store.SaveSubmission(ctx, participant, stored)
	if err != nil {
		logger.Log.Error("Save submission failed", zap.Uint("sessionId", sessionID), zap.Uint("userId", userID), zap.Error(err))
		return nil, err
	}
	if !saved {
		return nil, util.ErrAlreadySubmitted
	}

	if err := s.Questions.CreateAttempts(ctx, attempts); err != nil {
		logger.Log.Warn("Record ensayo attempts failed", zap.Uint("sessionId", sessionID), zap.Error(err))
	}

	s.publish(sessionID, EventSubmitted, map[string]interface{}{"userId": userID})
	return result, nil
}

// MyResult 学生自己的成绩，场次结束后附带正确答案和解析
func (s *LiveSessionService) MyResult(ctx context.Context, userID, sessionID uint) (*SubmissionResult, error) {
	session, err := s.Store.FindByID(ctx, sessionID)
	if err != nil {
		return nil, mapSessionErr(err)
	}
	p, err := s.Store.FindParticipant(ctx, sessionID, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && p == nil) {
		return nil, util.ErrNotParticipant
	}
	if err != nil {
		return nil, err
	}
	if p.SubmittedAt == nil {
		return nil, util.ErrNotParticipant
	}

	answers, err := s.Store.Answers(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	rows, err := s.Store.Questions(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	byQuestion := make(map[uint]model.SessionAnswer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	reveal := session.Status == model.SessionCompleted
	result := &SubmissionResult{
		SessionID:    sessionID,
		Score:        p.Score,
		CorrectCount: p.CorrectCount,
		TotalCount:   p.TotalCount,
		SubmittedAt:  *p.SubmittedAt,
	}
	for _, row := range rows {
		a := byQuestion[row.QuestionID]
		item := AnswerResult{QuestionID: row.QuestionID, Position: row.Position, Answer: a.Answer, IsCorrect: a.IsCorrect}
		if reveal && row.Question != nil {
			item.CorrectAnswer = row.Question.CorrectAnswer
			item.Explanation = row.Question.Explanation
		}
		result.Answers = append(result.Answers, item)
	}
	return result, nil
}

// AdvanceLifecycle 定时推进场次状态：计划 -> 候场 -> 进行中 -> 已结束
func (s *LiveSessionService) AdvanceLifecycle(ctx context.Context) (int, error) {
	now := s.Now()
	changed := 0

	lobby, err := s.Store.DueForLobby(ctx, now.Add(s.Config.LobbyWindow))
	if err != nil {
		return changed, err
	}
	for i := range lobby {
		if lobby[i].ScheduledAt.After(now) {
			if err := s.transition(ctx, &lobby[i], []model.SessionStatus{model.SessionScheduled}, model.SessionLobby); err == nil {
				changed++
			}
		}
	}

	due, err := s.Store.DueForStart(ctx, now)
	if err != nil {
		return changed, err
	}
	for i := range due {
		from := []model.SessionStatus{model.SessionScheduled, model.SessionLobby}
		if err := s.transition(ctx, &due[i], from, model.SessionInProgress); err == nil {
			// 自动开考以计划时间为准
			changed++
		}
	}

	running, err := s.Store.InProgress(ctx)
	if err != nil {
		return changed, err
	}
	for i := range running {
		if !now.Before(running[i].EndsAt()) {
			if err := s.complete(ctx, &running[i]); err == nil {
				changed++
			}
		}
	}
	return changed, nil
}
