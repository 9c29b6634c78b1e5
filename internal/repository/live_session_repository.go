package repository

import (
	"context"
	"errors"
	"paes_math_backend/internal/model"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type LiveSessionRepository struct {
	DB *gorm.DB
}

func NewLiveSessionRepository(db *gorm.DB) *LiveSessionRepository {
	return &LiveSessionRepository{DB: db}
}

// SeatTx 在持有场次行锁的事务内操作报名与入场记录
type SeatTx interface {
	CountRegistrations() (int64, error)
	IsRegistered(userID uint) (bool, error)
	AddRegistration(userID uint) error
	RemoveRegistration(userID uint) (bool, error)
	FindParticipant(userID uint) (*model.SessionParticipant, error)
	AddParticipant(p *model.SessionParticipant) error
}

type seatTx struct {
	tx        *gorm.DB
	sessionID uint
}

func (s *seatTx) CountRegistrations() (int64, error) {
	var count int64
	err := s.tx.Model(&model.SessionRegistration{}).
		Where("session_id = ?", s.sessionID).
		Count(&count).Error
	return count, err
}

func (s *seatTx) IsRegistered(userID uint) (bool, error) {
	var count int64
	err := s.tx.Model(&model.SessionRegistration{}).
		Where("session_id = ? AND user_id = ?", s.sessionID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *seatTx) AddRegistration(userID uint) error {
	return s.tx.Omit("Session", "User").Create(&model.SessionRegistration{
		SessionID: s.sessionID,
		UserID:    userID,
	}).Error
}

// RemoveRegistration 返回是否真的删除了记录
func (s *seatTx) RemoveRegistration(userID uint) (bool, error) {
	res := s.tx.Where("session_id = ? AND user_id = ?", s.sessionID, userID).
		Delete(&model.SessionRegistration{})
	return res.RowsAffected > 0, res.Error
}

// FindParticipant 未入场时返回 nil, nil
func (s *seatTx) FindParticipant(userID uint) (*model.SessionParticipant, error) {
	var p model.SessionParticipant
	err := s.tx.Where("session_id = ? AND user_id = ?", s.sessionID, userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *seatTx) AddParticipant(p *model.SessionParticipant) error {
	p.SessionID = s.sessionID
	return s.tx.Omit("Session", "User").Create(p).Error
}

// WithLockedSession 开启事务并以 SELECT ... FOR UPDATE 锁住场次行，fn 返回错误时回滚
// 并发的报名 / 入场请求在行锁上串行化，容量检查不会读到过期数据
func (r *LiveSessionRepository) WithLockedSession(ctx context.Context, sessionID uint, fn func(session *model.LiveSession, tx SeatTx) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var session model.LiveSession
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&session, sessionID).Error
		if err != nil {
			return err
		}
		return fn(&session, &seatTx{tx: tx, sessionID: sessionID})
	})
}

// Create 创建场次并写入题目顺序
func (r *LiveSessionRepository) Create(ctx context.Context, session *model.LiveSession, questionIDs []uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Teacher").Create(session).Error; err != nil {
			return err
		}
		return insertSessionQuestions(tx, session.ID, questionIDs)
	})
}

func insertSessionQuestions(tx *gorm.DB, sessionID uint, questionIDs []uint) error {
	if len(questionIDs) == 0 {
		return nil
	}
	rows := make([]model.SessionQuestion, 0, len(questionIDs))
	for i, qid := range questionIDs {
		rows = append(rows, model.SessionQuestion{SessionID: sessionID, QuestionID: qid, Position: i + 1})
	}
	return tx.Omit("Question", "Session").Create(&rows).Error
}

// Update 保存场次字段，questionIDs 非 nil 时整体替换题目
func (r *LiveSessionRepository) Update(ctx context.Context, session *model.LiveSession, questionIDs []uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Teacher").Save(session).Error; err != nil {
			return err
		}
		if questionIDs == nil {
			return nil
		}
		if err := tx.Where("session_id = ?", session.ID).Delete(&model.SessionQuestion{}).Error; err != nil {
			return err
		}
		return insertSessionQuestions(tx, session.ID, questionIDs)
	})
}

func (r *LiveSessionRepository) FindByID(ctx context.Context, id uint) (*model.LiveSession, error) {
	var session model.LiveSession
	err := r.DB.WithContext(ctx).
		Preload("Teacher", func(db *gorm.DB) *gorm.DB { return db.Select("id", "name", "email", "role") }).
		First(&session, id).Error
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// Questions 按顺序返回场次题目
func (r *LiveSessionRepository) Questions(ctx context.Context, sessionID uint) ([]model.SessionQuestion, error) {
	var rows []model.SessionQuestion
	err := r.DB.WithContext(ctx).
		Preload("Question").
		Where("session_id = ?", sessionID).
		Order("position ASC").
		Find(&rows).Error
	return rows, err
}

func (r *LiveSessionRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Unscoped().Delete(&model.LiveSession{}, id).Error
}

// ListUpcoming 未结束的场次，按开始时间排序
func (r *LiveSessionRepository) ListUpcoming(ctx context.Context, level model.TestLevel, limit int) ([]model.LiveSession, error) {
	var sessions []model.LiveSession
	query := r.DB.WithContext(ctx).
		Where("status IN ?", []model.SessionStatus{model.SessionScheduled, model.SessionLobby, model.SessionInProgress})
	if level != "" {
		query = query.Where("level = ?", level)
	}
	err := query.Order("scheduled_at ASC").Limit(limit).Find(&sessions).Error
	return sessions, err
}

func (r *LiveSessionRepository) ListByTeacher(ctx context.Context, teacherID uint, page, limit int) ([]model.LiveSession, int64, error) {
	query := r.DB.WithContext(ctx).Model(&model.LiveSession{})
	if teacherID != 0 {
		query = query.Where("teacher_id = ?", teacherID)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var sessions []model.LiveSession
	err := query.Order("scheduled_at DESC").Offset((page - 1) * limit).Limit(limit).Find(&sessions).Error
	return sessions, total, err
}

// SeatCounts 返回报名人数和入场人数
func (r *LiveSessionRepository) SeatCounts(ctx context.Context, sessionID uint) (registered, joined int64, err error) {
	db := r.DB.WithContext(ctx)
	if err = db.Model(&model.SessionRegistration{}).Where("session_id = ?", sessionID).Count(&registered).Error; err != nil {
		return
	}
	err = db.Model(&model.SessionParticipant{}).Where("session_id = ?", sessionID).Count(&joined).Error
	return
}

func (r *LiveSessionRepository) IsRegistered(ctx context.Context, sessionID, userID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.SessionRegistration{}).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *LiveSessionRepository) FindParticipant(ctx context.Context, sessionID, userID uint) (*model.SessionParticipant, error) {
	var p model.SessionParticipant
	err := r.DB.WithContext(ctx).
		Where("session_id = ? AND user_id = ?", sessionID, userID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// SaveSubmission 写入答卷和成绩，仅当参与者尚未提交时生效，返回是否写入
func (r *LiveSessionRepository) SaveSubmission(ctx context.Context, p *model.SessionParticipant, answers []model.SessionAnswer) (bool, error) {
	saved := false
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&model.SessionParticipant{}).
			Where("id = ? AND submitted_at IS NULL", p.ID).
			Updates(map[string]interface{}{
				"submitted_at":  p.SubmittedAt,
				"correct_count": p.CorrectCount,
				"total_count":   p.TotalCount,
				"score":         p.Score,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if len(answers) > 0 {
			if err := tx.Omit("Participant").Create(&answers).Error; err != nil {
				return err
			}
		}
		saved = true
		return nil
	})
	return saved, err
}

func (r *LiveSessionRepository) Answers(ctx context.Context, participantID uint) ([]model.SessionAnswer, error) {
	var answers []model.SessionAnswer
	err := r.DB.WithContext(ctx).Where("participant_id = ?", participantID).Find(&answers).Error
	return answers, err
}

// TransitionStatus 条件更新状态（乐观并发），from 不匹配时返回 false
func (r *LiveSessionRepository) TransitionStatus(ctx context.Context, id uint, from []model.SessionStatus, to model.SessionStatus, at time.Time) (bool, error) {
	updates := map[string]interface{}{"status": to}
	switch to {
	case model.SessionInProgress:
		updates["started_at"] = at
	case model.SessionCompleted, model.SessionCancelled:
		updates["ended_at"] = at
	}
	res := r.DB.WithContext(ctx).Model(&model.LiveSession{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	return res.RowsAffected > 0, res.Error
}

// DueForLobby 计划中且已进入候场窗口的场次
func (r *LiveSessionRepository) DueForLobby(ctx context.Context, lobbyStart time.Time) ([]model.LiveSession, error) {
	var sessions []model.LiveSession
	err := r.DB.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ?", model.SessionScheduled, lobbyStart).
		Find(&sessions).Error
	return sessions, err
}

// DueForStart 到达开考时间的计划中 / 候场场次
func (r *LiveSessionRepository) DueForStart(ctx context.Context, now time.Time) ([]model.LiveSession, error) {
	var sessions []model.LiveSession
	err := r.DB.WithContext(ctx).
		Where("status IN ? AND scheduled_at <= ?", []model.SessionStatus{model.SessionScheduled, model.SessionLobby}, now).
		Find(&sessions).Error
	return sessions, err
}

func (r *LiveSessionRepository) InProgress(ctx context.Context) ([]model.LiveSession, error) {
	var sessions []model.LiveSession
	err := r.DB.WithContext(ctx).Where("status = ?", model.SessionInProgress).Find(&sessions).Error
	return sessions, err
}

// SubmittedParticipants 已交卷的参与者，附带用户信息
func (r *LiveSessionRepository) SubmittedParticipants(ctx context.Context, sessionID uint) ([]model.SessionParticipant, error) {
	var participants []model.SessionParticipant
	err := r.DB.WithContext(ctx).
		Preload("User").
		Where("session_id = ? AND submitted_at IS NOT NULL", sessionID).
		Order("score DESC, submitted_at ASC").
		Find(&participants).Error
	return participants, err
}

// Results 场次排行榜（含未交卷的入场者）
func (r *LiveSessionRepository) Results(ctx context.Context, sessionID uint) ([]model.SessionResultRow, error) {
	var rows []model.SessionResultRow
	err := r.DB.WithContext(ctx).Raw(`
		SELECT p.user_id, u.name, u.email, p.score, p.correct_count, p.total_count,
		       p.joined_at, p.submitted_at
		FROM session_participants p
		JOIN users u ON u.id = p.user_id
		WHERE p.session_id = ?
		ORDER BY (p.submitted_at IS NULL) ASC, p.score DESC, p.submitted_at ASC`, sessionID).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Rank = i + 1
	}
	return rows, nil
}

func (r *LiveSessionRepository) CountByStatus(ctx context.Context) (map[model.SessionStatus]int, error) {
	var rows []struct {
		Status model.SessionStatus
		Count  int
	}
	err := r.DB.WithContext(ctx).Model(&model.LiveSession{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	result := make(map[model.SessionStatus]int, len(rows))
	for _, row := range rows {
		result[row.Status] = row.Count
	}
	return result, nil
}
