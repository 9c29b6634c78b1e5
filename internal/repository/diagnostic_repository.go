package repository

import (
	"context"
	"paes_math_backend/internal/model"

	"gorm.io/gorm"
)

type DiagnosticRepository struct {
	DB *gorm.DB
}

func NewDiagnosticRepository(db *gorm.DB) *DiagnosticRepository {
	return &DiagnosticRepository{DB: db}
}

func (r *DiagnosticRepository) Create(ctx context.Context, s *model.DiagnosticSession) error {
	return r.DB.WithContext(ctx).Omit("User").Create(s).Error
}

func (r *DiagnosticRepository) FindForUser(ctx context.Context, id string, userID uint) (*model.DiagnosticSession, error) {
	var s model.DiagnosticSession
	err := r.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&s).Error
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *DiagnosticRepository) Save(ctx context.Context, s *model.DiagnosticSession) error {
	return r.DB.WithContext(ctx).Omit("User").Save(s).Error
}

func (r *DiagnosticRepository) ListByUser(ctx context.Context, userID uint) ([]model.DiagnosticSession, error) {
	var sessions []model.DiagnosticSession
	err := r.DB.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&sessions).Error
	return sessions, err
}

func (r *DiagnosticRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.DiagnosticSession{}).Count(&count).Error
	return count, err
}
