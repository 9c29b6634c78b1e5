package repository

import (
	"context"
	"paes_math_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

type TutorRepository struct {
	DB *gorm.DB
}

func NewTutorRepository(db *gorm.DB) *TutorRepository {
	return &TutorRepository{DB: db}
}

func (r *TutorRepository) CreateConversation(ctx context.Context, conv *model.TutorConversation) error {
	return r.DB.WithContext(ctx).Omit("Messages", "User").Create(conv).Error
}

// FindConversation 含按时间排序的消息
func (r *TutorRepository) FindConversation(ctx context.Context, id string, userID uint) (*model.TutorConversation, error) {
	var conv model.TutorConversation
	err := r.DB.WithContext(ctx).
		Preload("Messages", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Where("id = ? AND user_id = ?", id, userID).
		First(&conv).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *TutorRepository) ListConversations(ctx context.Context, userID uint) ([]model.TutorConversation, error) {
	var convs []model.TutorConversation
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&convs).Error
	return convs, err
}

// AppendMessages 追加消息并刷新会话的更新时间
func (r *TutorRepository) AppendMessages(ctx context.Context, conversationID string, msgs ...*model.TutorMessage) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, m := range msgs {
			m.ConversationID = conversationID
			if err := tx.Create(m).Error; err != nil {
				return err
			}
		}
		return tx.Model(&model.TutorConversation{}).
			Where("id = ?", conversationID).
			UpdateColumn("updated_at", time.Now()).Error
	})
}

// DeleteConversation 返回是否删除了记录
func (r *TutorRepository) DeleteConversation(ctx context.Context, id string, userID uint) (bool, error) {
	var deleted bool
	err := r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("id = ? AND user_id = ?", id, userID).Delete(&model.TutorConversation{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected > 0
		if !deleted {
			return nil
		}
		return tx.Where("conversation_id = ?", id).Delete(&model.TutorMessage{}).Error
	})
	return deleted, err
}

func (r *TutorRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.TutorConversation{}).Count(&count).Error
	return count, err
}
