package repository

import (
	"context"
	"paes_math_backend/internal/model"

	"gorm.io/gorm"
)

type CurriculumRepository struct {
	DB *gorm.DB
}

func NewCurriculumRepository(db *gorm.DB) *CurriculumRepository {
	return &CurriculumRepository{DB: db}
}

// Tree 返回主题轴 -> 单元 -> 知识点的嵌套结构，level 为空时返回全部级别
func (r *CurriculumRepository) Tree(ctx context.Context, level model.TestLevel) ([]model.ThematicAxis, error) {
	var axes []model.ThematicAxis
	err := r.DB.WithContext(ctx).
		Preload("Units", func(db *gorm.DB) *gorm.DB {
			if level != "" {
				db = db.Where("level = ?", level)
			}
			return db.Order("sort_order ASC, id ASC")
		}).
		Preload("Units.Topics", func(db *gorm.DB) *gorm.DB {
			return db.Order("sort_order ASC, id ASC")
		}).
		Order("sort_order ASC, id ASC").
		Find(&axes).Error
	return axes, err
}

func (r *CurriculumRepository) ListAxes(ctx context.Context) ([]model.ThematicAxis, error) {
	var axes []model.ThematicAxis
	err := r.DB.WithContext(ctx).Order("sort_order ASC, id ASC").Find(&axes).Error
	return axes, err
}

func (r *CurriculumRepository) FindAxis(ctx context.Context, id uint) (*model.ThematicAxis, error) {
	var axis model.ThematicAxis
	if err := r.DB.WithContext(ctx).First(&axis, id).Error; err != nil {
		return nil, err
	}
	return &axis, nil
}

func (r *CurriculumRepository) CreateAxis(ctx context.Context, axis *model.ThematicAxis) error {
	return r.DB.WithContext(ctx).Create(axis).Error
}

func (r *CurriculumRepository) UpdateAxis(ctx context.Context, axis *model.ThematicAxis) error {
	return r.DB.WithContext(ctx).Save(axis).Error
}

func (r *CurriculumRepository) DeleteAxis(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Unscoped().Delete(&model.ThematicAxis{}, id).Error
}

func (r *CurriculumRepository) ListUnits(ctx context.Context, level model.TestLevel) ([]model.Unit, error) {
	var units []model.Unit
	query := r.DB.WithContext(ctx).Model(&model.Unit{})
	if level != "" {
		query = query.Where("level = ?", level)
	}
	err := query.Order("axis_id ASC, sort_order ASC, id ASC").Find(&units).Error
	return units, err
}

// SearchUnits 按名称或编码模糊查找单元
func (r *CurriculumRepository) SearchUnits(ctx context.Context, query string, limit int) ([]model.Unit, error) {
	var units []model.Unit
	like := "%" + query + "%"
	err := r.DB.WithContext(ctx).
		Where("name ILIKE ? OR code ILIKE ? OR description ILIKE ?", like, like, like).
		Order("level ASC, sort_order ASC").
		Limit(limit).
		Find(&units).Error
	return units, err
}

func (r *CurriculumRepository) FindUnit(ctx context.Context, id uint) (*model.Unit, error) {
	var unit model.Unit
	if err := r.DB.WithContext(ctx).Preload("Topics").First(&unit, id).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *CurriculumRepository) FindUnitByCode(ctx context.Context, code string) (*model.Unit, error) {
	var unit model.Unit
	if err := r.DB.WithContext(ctx).Where("code = ?", code).First(&unit).Error; err != nil {
		return nil, err
	}
	return &unit, nil
}

func (r *CurriculumRepository) CreateUnit(ctx context.Context, unit *model.Unit) error {
	return r.DB.WithContext(ctx).Create(unit).Error
}

func (r *CurriculumRepository) UpdateUnit(ctx context.Context, unit *model.Unit) error {
	return r.DB.WithContext(ctx).Omit("Topics").Save(unit).Error
}

// DeleteUnit 物理删除，知识点通过外键级联删除
func (r *CurriculumRepository) DeleteUnit(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("unit_id = ?", id).Delete(&model.Topic{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&model.Unit{}, id).Error
	})
}

func (r *CurriculumRepository) FindTopic(ctx context.Context, id uint) (*model.Topic, error) {
	var topic model.Topic
	if err := r.DB.WithContext(ctx).First(&topic, id).Error; err != nil {
		return nil, err
	}
	return &topic, nil
}

func (r *CurriculumRepository) CreateTopic(ctx context.Context, topic *model.Topic) error {
	return r.DB.WithContext(ctx).Create(topic).Error
}

func (r *CurriculumRepository) UpdateTopic(ctx context.Context, topic *model.Topic) error {
	return r.DB.WithContext(ctx).Save(topic).Error
}

func (r *CurriculumRepository) DeleteTopic(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Unscoped().Delete(&model.Topic{}, id).Error
}
