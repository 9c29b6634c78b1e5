package repository

import (
	"context"
	"paes_math_backend/internal/model"

	"gorm.io/gorm"
)

type UnitResourceRepository struct {
	DB *gorm.DB
}

func NewUnitResourceRepository(db *gorm.DB) *UnitResourceRepository {
	return &UnitResourceRepository{DB: db}
}

func (r *UnitResourceRepository) Create(ctx context.Context, res *model.UnitResource) error {
	return r.DB.WithContext(ctx).Omit("Unit").Create(res).Error
}

func (r *UnitResourceRepository) FindByID(ctx context.Context, id uint) (*model.UnitResource, error) {
	var res model.UnitResource
	if err := r.DB.WithContext(ctx).First(&res, id).Error; err != nil {
		return nil, err
	}
	return &res, nil
}

func (r *UnitResourceRepository) ListByUnit(ctx context.Context, unitID uint) ([]model.UnitResource, error) {
	var list []model.UnitResource
	err := r.DB.WithContext(ctx).
		Where("unit_id = ?", unitID).
		Order("created_at ASC").
		Find(&list).Error
	return list, err
}

func (r *UnitResourceRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Delete(&model.UnitResource{}, id).Error
}
