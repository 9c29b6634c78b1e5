package repository

import (
	"context"
	"paes_math_backend/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type KnowledgeRepository struct {
	DB *gorm.DB
}

func NewKnowledgeRepository(db *gorm.DB) *KnowledgeRepository {
	return &KnowledgeRepository{DB: db}
}

func (r *KnowledgeRepository) ListByUser(ctx context.Context, userID uint) ([]model.KnowledgeDeclaration, error) {
	var decls []model.KnowledgeDeclaration
	err := r.DB.WithContext(ctx).
		Preload("Unit").
		Where("user_id = ?", userID).
		Order("unit_id ASC").
		Find(&decls).Error
	return decls, err
}

// Upsert 以 (user_id, unit_id) 为冲突键批量写入
func (r *KnowledgeRepository) Upsert(ctx context.Context, decls []model.KnowledgeDeclaration) error {
	if len(decls) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).
		Omit("User", "Unit").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "unit_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"status", "confidence", "source", "updated_at"}),
		}).
		Create(&decls).Error
}

func (r *KnowledgeRepository) Delete(ctx context.Context, userID, unitID uint) (bool, error) {
	res := r.DB.WithContext(ctx).
		Where("user_id = ? AND unit_id = ?", userID, unitID).
		Delete(&model.KnowledgeDeclaration{})
	return res.RowsAffected > 0, res.Error
}

func (r *KnowledgeRepository) SummaryByUser(ctx context.Context, userID uint) (map[model.KnowledgeStatus]int, error) {
	var rows []struct {
		Status model.KnowledgeStatus
		Count  int
	}
	err := r.DB.WithContext(ctx).Model(&model.KnowledgeDeclaration{}).
		Select("status, COUNT(*) AS count").
		Where("user_id = ?", userID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	summary := map[model.KnowledgeStatus]int{
		model.KnowledgeUnknown:  0,
		model.KnowledgeLearning: 0,
		model.KnowledgeMastered: 0,
	}
	for _, row := range rows {
		summary[row.Status] = row.Count
	}
	return summary, nil
}
