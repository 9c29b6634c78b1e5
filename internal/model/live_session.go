package model

import "time"

type SessionStatus string

const (
	SessionScheduled  SessionStatus = "scheduled"
	SessionLobby      SessionStatus = "lobby"
	SessionInProgress SessionStatus = "in_progress"
	SessionCompleted  SessionStatus = "completed"
	SessionCancelled  SessionStatus = "cancelled"
)

// Closed 已结束或已取消的场次不再接受报名
func (s SessionStatus) Closed() bool {
	return s == SessionCompleted || s == SessionCancelled
}

// Joinable 仅候场和进行中的场次可以进入
func (s SessionStatus) Joinable() bool {
	return s == SessionLobby || s == SessionInProgress
}

// LiveSession 直播模拟考（ensayo）场次
// swagger:model LiveSession
type LiveSession struct {
	BaseModel
	Title           string        `gorm:"size:200;not null" json:"title"`
	Description     string        `gorm:"type:text" json:"description"`
	Level           TestLevel     `gorm:"size:4;not null;index" json:"level"`
	TeacherID       uint          `gorm:"index;not null" json:"teacherId"`
	ScheduledAt     time.Time     `gorm:"index;not null" json:"scheduledAt"`
	DurationMinutes int           `gorm:"not null;check:duration_minutes > 0" json:"durationMinutes"`
	MaxParticipants int           `gorm:"not null;check:max_participants > 0" json:"maxParticipants"`
	Status          SessionStatus `gorm:"size:20;not null;default:'scheduled';index" json:"status"`
	StartedAt       *time.Time    `json:"startedAt,omitempty"`
	EndedAt         *time.Time    `json:"endedAt,omitempty"`
	Teacher         *User         `gorm:"foreignKey:TeacherID" json:"teacher,omitempty"`
}

func (LiveSession) TableName() string {
	return "live_sessions"
}

// EndsAt 计划结束时间
func (s *LiveSession) EndsAt() time.Time {
	start := s.ScheduledAt
	if s.StartedAt != nil {
		start = *s.StartedAt
	}
	return start.Add(time.Duration(s.DurationMinutes) * time.Minute)
}

type SessionQuestion struct {
	ID         uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID  uint         `gorm:"uniqueIndex:idx_session_question;not null" json:"sessionId"`
	QuestionID uint         `gorm:"uniqueIndex:idx_session_question;not null" json:"questionId"`
	Position   int          `gorm:"not null" json:"position"`
	Question   *Question    `gorm:"foreignKey:QuestionID" json:"question,omitempty"`
	Session    *LiveSession `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (SessionQuestion) TableName() string {
	return "session_questions"
}

// SessionRegistration 报名记录，(session_id, user_id) 唯一
type SessionRegistration struct {
	ID        uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID uint         `gorm:"uniqueIndex:idx_registration_session_user;not null" json:"sessionId"`
	UserID    uint         `gorm:"uniqueIndex:idx_registration_session_user;not null;index" json:"userId"`
	CreatedAt time.Time    `json:"createdAt"`
	Session   *LiveSession `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	User      *User        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (SessionRegistration) TableName() string {
	return "session_registrations"
}

// SessionParticipant 实际入场的考生，提交后记录成绩
type SessionParticipant struct {
	ID           uint         `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID    uint         `gorm:"uniqueIndex:idx_participant_session_user;not null" json:"sessionId"`
	UserID       uint         `gorm:"uniqueIndex:idx_participant_session_user;not null;index" json:"userId"`
	JoinedAt     time.Time    `json:"joinedAt"`
	SubmittedAt  *time.Time   `json:"submittedAt,omitempty"`
	CorrectCount int          `gorm:"default:0" json:"correctCount"`
	TotalCount   int          `gorm:"default:0" json:"totalCount"`
	Score        int          `gorm:"default:0" json:"score"`
	Session      *LiveSession `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"-"`
	User         *User        `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
}

func (SessionParticipant) TableName() string {
	return "session_participants"
}

type SessionAnswer struct {
	ID            uint                `gorm:"primaryKey;autoIncrement" json:"id"`
	ParticipantID uint                `gorm:"uniqueIndex:idx_answer_participant_question;not null" json:"participantId"`
	QuestionID    uint                `gorm:"uniqueIndex:idx_answer_participant_question;not null" json:"questionId"`
	Answer        string              `gorm:"size:255" json:"answer"`
	IsCorrect     bool                `json:"isCorrect"`
	Participant   *SessionParticipant `gorm:"foreignKey:ParticipantID;constraint:OnDelete:CASCADE" json:"-"`
}

func (SessionAnswer) TableName() string {
	return "session_answers"
}
