package model

import "time"

type TutorConversation struct {
	UUIDBase
	UserID     uint           `gorm:"index;not null" json:"userId"`
	Title      string         `gorm:"size:200" json:"title"`
	UnitID     *uint          `json:"unitId,omitempty"`
	QuestionID *uint          `json:"questionId,omitempty"`
	Messages   []TutorMessage `gorm:"foreignKey:ConversationID;constraint:OnDelete:CASCADE" json:"messages,omitempty"`
	User       *User          `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

func (TutorConversation) TableName() string {
	return "tutor_conversations"
}

// TutorMessage 只保存对学生可见的 user / assistant 消息
type TutorMessage struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID string    `gorm:"type:varchar(36);index;not null" json:"conversationId"`
	Role           string    `gorm:"size:20;not null" json:"role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	ToolsUsed      string    `gorm:"size:255" json:"toolsUsed,omitempty"`
	CreatedAt      time.Time `gorm:"index" json:"createdAt"`
}

func (TutorMessage) TableName() string {
	return "tutor_messages"
}
