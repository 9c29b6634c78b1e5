package model

import (
	"encoding/json"
)

type DiagnosticStatus string

const (
	DiagnosticInProgress DiagnosticStatus = "in_progress"
	DiagnosticCompleted  DiagnosticStatus = "completed"
	DiagnosticAbandoned  DiagnosticStatus = "abandoned"
)

// DiagnosticSession AI 诊断会话，Transcript 保存发给模型的完整消息序列
type DiagnosticSession struct {
	UUIDBase
	UserID            uint             `gorm:"index;not null" json:"userId"`
	Level             TestLevel        `gorm:"size:4;not null" json:"level"`
	Status            DiagnosticStatus `gorm:"size:20;not null;default:'in_progress';index" json:"status"`
	PendingQuestionID *uint            `json:"pendingQuestionId,omitempty"`
	QuestionsAsked    int              `gorm:"default:0" json:"questionsAsked"`
	AskedQuestionIDs  json.RawMessage  `gorm:"type:jsonb" json:"-"`
	Masteries         json.RawMessage  `gorm:"type:jsonb" json:"masteries,omitempty"`
	Transcript        json.RawMessage  `gorm:"type:jsonb" json:"-"`
	LastReply         string           `gorm:"type:text" json:"lastReply"`
	Result            json.RawMessage  `gorm:"type:jsonb" json:"result,omitempty"`
	User              *User            `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (DiagnosticSession) TableName() string {
	return "diagnostic_sessions"
}

// UnitMastery 模型在诊断过程中记录的单元掌握度
type UnitMastery struct {
	UnitCode string  `json:"unitCode"`
	Mastery  float64 `json:"mastery"`
	Evidence string  `json:"evidence,omitempty"`
}

// DiagnosticResult 诊断结论
type DiagnosticResult struct {
	Summary          string        `json:"summary"`
	Strengths        []string      `json:"strengths"`
	Weaknesses       []string      `json:"weaknesses"`
	RecommendedFocus []string      `json:"recommendedFocus"`
	Masteries        []UnitMastery `json:"masteries"`
	QuestionsAsked   int           `json:"questionsAsked"`
}
