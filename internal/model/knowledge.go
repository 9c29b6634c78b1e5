package model

import "time"

type KnowledgeStatus string

const (
	KnowledgeUnknown  KnowledgeStatus = "unknown"
	KnowledgeLearning KnowledgeStatus = "learning"
	KnowledgeMastered KnowledgeStatus = "mastered"
)

func (s KnowledgeStatus) Valid() bool {
	return s == KnowledgeUnknown || s == KnowledgeLearning || s == KnowledgeMastered
}

type KnowledgeSource string

const (
	SourceSelf       KnowledgeSource = "self"
	SourceDiagnostic KnowledgeSource = "diagnostic"
)

// KnowledgeDeclaration 学生对单元的掌握声明，(user_id, unit_id) 唯一
type KnowledgeDeclaration struct {
	ID         uint            `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID     uint            `gorm:"uniqueIndex:idx_knowledge_user_unit;not null" json:"userId"`
	UnitID     uint            `gorm:"uniqueIndex:idx_knowledge_user_unit;not null" json:"unitId"`
	Status     KnowledgeStatus `gorm:"size:20;not null" json:"status"`
	Confidence float64         `gorm:"default:0;check:confidence >= 0 AND confidence <= 1" json:"confidence"`
	Source     KnowledgeSource `gorm:"size:20;not null;default:'self'" json:"source"`
	CreatedAt  time.Time       `json:"createdAt"`
	UpdatedAt  time.Time       `json:"updatedAt"`
	User       *User           `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
	Unit       *Unit           `gorm:"foreignKey:UnitID;constraint:OnDelete:CASCADE" json:"unit,omitempty"`
}

func (KnowledgeDeclaration) TableName() string {
	return "knowledge_declarations"
}

// StatusFromMastery 把 0-1 掌握度映射为声明状态
func StatusFromMastery(m float64) KnowledgeStatus {
	switch {
	case m >= 0.75:
		return KnowledgeMastered
	case m >= 0.35:
		return KnowledgeLearning
	default:
		return KnowledgeUnknown
	}
}
