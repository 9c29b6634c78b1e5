package model

import (
	"encoding/json"
	"time"
)

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionNumeric        QuestionType = "numeric"
)

type AttemptContext string

const (
	ContextPractice   AttemptContext = "practice"
	ContextDiagnostic AttemptContext = "diagnostic"
	ContextEnsayo     AttemptContext = "ensayo"
)

// QuestionOption 选择题选项，Key 一般为 A-E
type QuestionOption struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// swagger:model Question
type Question struct {
	BaseModel
	Level         TestLevel       `gorm:"size:4;not null;index" json:"level"`
	UnitID        uint            `gorm:"index;not null" json:"unitId"`
	TopicID       *uint           `gorm:"index" json:"topicId,omitempty"`
	Type          QuestionType    `gorm:"size:20;not null;default:'multiple_choice'" json:"type"`
	Stem          string          `gorm:"type:text;not null" json:"stem"`
	Options       json.RawMessage `gorm:"type:jsonb" json:"options,omitempty"`
	CorrectAnswer string          `gorm:"size:255;not null" json:"correctAnswer,omitempty"`
	Explanation   string          `gorm:"type:text" json:"explanation,omitempty"`
	Difficulty    int             `gorm:"default:2;check:difficulty BETWEEN 1 AND 3" json:"difficulty"`
	Source        string          `gorm:"size:100" json:"source,omitempty"`
	IsPublished   bool            `gorm:"default:false;index" json:"isPublished"`
	CreatorID     uint            `gorm:"index" json:"creatorId"`
	Unit          *Unit           `gorm:"foreignKey:UnitID;constraint:OnDelete:CASCADE" json:"unit,omitempty"`
}

func (Question) TableName() string {
	return "questions"
}

// ParsedOptions 解析 JSON 选项
func (q *Question) ParsedOptions() []QuestionOption {
	var opts []QuestionOption
	if len(q.Options) == 0 {
		return opts
	}
	_ = json.Unmarshal(q.Options, &opts)
	return opts
}

// PublicView 返回隐藏正确答案和解析的副本，用于学生作答前
func (q Question) PublicView() Question {
	q.CorrectAnswer = ""
	q.Explanation = ""
	return q
}

// QuestionAttempt 学生的单题作答记录
type QuestionAttempt struct {
	ID          uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint           `gorm:"index:idx_attempt_user_created;not null" json:"userId"`
	QuestionID  uint           `gorm:"index;not null" json:"questionId"`
	Answer      string         `gorm:"size:255" json:"answer"`
	IsCorrect   bool           `json:"isCorrect"`
	TimeSeconds int            `gorm:"default:0" json:"timeSeconds"`
	Context     AttemptContext `gorm:"size:20;not null;default:'practice'" json:"context"`
	CreatedAt   time.Time      `gorm:"index:idx_attempt_user_created" json:"createdAt"`
	User        *User          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Question    *Question      `gorm:"foreignKey:QuestionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (QuestionAttempt) TableName() string {
	return "question_attempts"
}
