package service

import (
	"context"
	"encoding/json"
	"errors"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/util"
	"paes_math_backend/pkg/logger"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const curriculumTreeTTL = 6 * time.Hour

// CurriculumStore 课程体系持久化接口，由 repository.CurriculumRepository 实现
type CurriculumStore interface {
	Tree(ctx context.Context, level model.TestLevel) ([]model.ThematicAxis, error)
	ListAxes(ctx context.Context) ([]model.ThematicAxis, error)
	FindAxis(ctx context.Context, id uint) (*model.ThematicAxis, error)
	CreateAxis(ctx context.Context, axis *model.ThematicAxis) error
	UpdateAxis(ctx context.Context, axis *model.ThematicAxis) error
	DeleteAxis(ctx context.Context, id uint) error
	ListUnits(ctx context.Context, level model.TestLevel) ([]model.Unit, error)
	SearchUnits(ctx context.Context, query string, limit int) ([]model.Unit, error)
	FindUnit(ctx context.Context, id uint) (*model.Unit, error)
	FindUnitByCode(ctx context.Context, code string) (*model.Unit, error)
	CreateUnit(ctx context.Context, unit *model.Unit) error
	UpdateUnit(ctx context.Context, unit *model.Unit) error
	DeleteUnit(ctx context.Context, id uint) error
	FindTopic(ctx context.Context, id uint) (*model.Topic, error)
	CreateTopic(ctx context.Context, topic *model.Topic) error
	UpdateTopic(ctx context.Context, topic *model.Topic) error
	DeleteTopic(ctx context.Context, id uint) error
}

type AxisRequest struct {
	Code  string `json:"code" binding:"required,max=50"`
	Name  string `json:"name" binding:"required,max=150"`
	Order int    `json:"order"`
}

type UnitRequest struct {
	AxisID      uint            `json:"axisId" binding:"required"`
	Level       model.TestLevel `json:"level" binding:"required"`
	Code        string          `json:"code" binding:"required,max=80"`
	Name        string          `json:"name" binding:"required,max=200"`
	Description string          `json:"description"`
	Order       int             `json:"order"`
}

type TopicRequest struct {
	UnitID uint   `json:"unitId" binding:"required"`
	Code   string `json:"code" binding:"required,max=80"`
	Name   string `json:"name" binding:"required,max=200"`
	Order  int    `json:"order"`
}

type CurriculumService struct {
	Repo  CurriculumStore
	Redis *redis.Client
}

func NewCurriculumService(repo CurriculumStore, rdb *redis.Client) *CurriculumService {
	return &CurriculumService{Repo: repo, Redis: rdb}
}

func treeCacheKey(level model.TestLevel) string {
	if level == "" {
		return "curriculum:tree:all"
	}
	return "curriculum:tree:" + string(level)
}

// Tree 返回 主题轴 -> 单元 -> 知识点 三层结构，优先读 Redis 缓存
func (s *CurriculumService) Tree(ctx context.Context, level model.TestLevel) ([]model.ThematicAxis, error) {
	if level != "" && !level.Valid() {
		return nil, util.ErrInvalidLevel
	}
	key := treeCacheKey(level)
	if s.Redis != nil {
		val, err := s.Redis.Get(ctx, key).Result()
		if err == nil {
			var axes []model.ThematicAxis
			if json.Unmarshal([]byte(val), &axes) == nil {
				return axes, nil
			}
		} else if err != redis.Nil {
			logger.Log.Warn("Read curriculum cache failed", zap.Error(err))
		}
	}

	axes, err := s.Repo.Tree(ctx, level)
	if err != nil {
		return nil, err
	}
	if s.Redis != nil {
		if data, err := json.Marshal(axes); err == nil {
			if err := s.Redis.Set(ctx, key, data, curriculumTreeTTL).Err(); err != nil {
				logger.Log.Warn("Write curriculum cache failed", zap.Error(err))
			}
		}
	}
	return axes, nil
}

// invalidate 任何写操作后清空所有级别的树缓存
func (s *CurriculumService) invalidate(ctx context.Context) {
	if s.Redis == nil {
		return
	}
	keys := []string{treeCacheKey(""), treeCacheKey(model.LevelM1), treeCacheKey(model.LevelM2)}
	if err := s.Redis.Del(ctx, keys...).Err(); err != nil {
		logger.Log.Warn("Invalidate curriculum cache failed", zap.Error(err))
	}
}

func notFound(err, target error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return err
}

func (s *CurriculumService) ListAxes(ctx context.Context) ([]model.ThematicAxis, error) {
	return s.Repo.ListAxes(ctx)
}

func (s *CurriculumService) CreateAxis(ctx context.Context, req AxisRequest) (*model.ThematicAxis, error) {
	axis := &model.ThematicAxis{Code: normalizeCode(req.Code), Name: strings.TrimSpace(req.Name), Order: req.Order}
	if err := s.Repo.CreateAxis(ctx, axis); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return axis, nil
}

func (s *CurriculumService) UpdateAxis(ctx context.Context, id uint, req AxisRequest) (*model.ThematicAxis, error) {
	axis, err := s.Repo.FindAxis(ctx, id)
	if err != nil {
		return nil, notFound(err, util.ErrAxisNotFound)
	}
	axis.Code = normalizeCode(req.Code)
	axis.Name = strings.TrimSpace(req.Name)
	axis.Order = req.Order
	if err := s.Repo.UpdateAxis(ctx, axis); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return axis, nil
}

func (s *CurriculumService) DeleteAxis(ctx context.Context, id uint) error {
	if _, err := s.Repo.FindAxis(ctx, id); err != nil {
		return notFound(err, util.ErrAxisNotFound)
	}
	if err := s.Repo.DeleteAxis(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func normalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func (s *CurriculumService) ListUnits(ctx context.Context, level model.TestLevel) ([]model.Unit, error) {
	if level != "" && !level.Valid() {
		return nil, util.ErrInvalidLevel
	}
	return s.Repo.ListUnits(ctx, level)
}

func (s *CurriculumService) GetUnit(ctx context.Context, id uint) (*model.Unit, error) {
	unit, err := s.Repo.FindUnit(ctx, id)
	if err != nil {
		return nil, notFound(err, util.ErrUnitNotFound)
	}
	return unit, nil
}

func (s *CurriculumService) UnitByCode(ctx context.Context, code string) (*model.Unit, error) {
	unit, err := s.Repo.FindUnitByCode(ctx, normalizeCode(code))
	if err != nil {
		return nil, notFound(err, util.ErrUnitNotFound)
	}
	return unit, nil
}

func (s *CurriculumService) SearchUnits(ctx context.Context, query string, limit int) ([]model.Unit, error) {
	return s.Repo.SearchUnits(ctx, strings.TrimSpace(query), limit)
}

func (s *CurriculumService) CreateUnit(ctx context.Context, req UnitRequest) (*model.Unit, error) {
	if !req.Level.Valid() {
		return nil, util.ErrInvalidLevel
	}
	if _, err := s.Repo.FindAxis(ctx, req.AxisID); err != nil {
		return nil, notFound(err, util.ErrAxisNotFound)
	}
	unit := &model.Unit{
		AxisID:      req.AxisID,
		Level:       req.Level,
		Code:        normalizeCode(req.Code),
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Order:       req.Order,
	}
	if err := s.Repo.CreateUnit(ctx, unit); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return unit, nil
}

func (s *CurriculumService) UpdateUnit(ctx context.Context, id uint, req UnitRequest) (*model.Unit, error) {
	if !req.Level.Valid() {
		return nil, util.ErrInvalidLevel
	}
	unit, err := s.Repo.FindUnit(ctx, id)
	if err != nil {
		return nil, notFound(err, util.ErrUnitNotFound)
	}
	if req.AxisID != unit.AxisID {
		if _, err := s.Repo.FindAxis(ctx, req.AxisID); err != nil {
			return nil, notFound(err, util.ErrAxisNotFound)
		}
	}
	unit.AxisID = req.AxisID
	unit.Level = req.Level
	unit.Code = normalizeCode(req.Code)
	unit.Name = strings.TrimSpace(req.Name)
	unit.Description = req.Description
	unit.Order = req.Order
	if err := s.Repo.UpdateUnit(ctx, unit); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return unit, nil
}

// DeleteUnit 删除单元及其知识点
func (s *CurriculumService) DeleteUnit(ctx context.Context, id uint) error {
	if _, err := s.Repo.FindUnit(ctx, id); err != nil {
		return notFound(err, util.ErrUnitNotFound)
	}
	if err := s.Repo.DeleteUnit(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}

func (s *CurriculumService) CreateTopic(ctx context.Context, req TopicRequest) (*model.Topic, error) {
	if _, err := s.Repo.FindUnit(ctx, req.UnitID); err != nil {
		return nil, notFound(err, util.ErrUnitNotFound)
	}
	topic := &model.Topic{UnitID: req.UnitID, Code: normalizeCode(req.Code), Name: strings.TrimSpace(req.Name), Order: req.Order}
	if err := s.Repo.CreateTopic(ctx, topic); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return topic, nil
}

func (s *CurriculumService) UpdateTopic(ctx context.Context, id uint, req TopicRequest) (*model.Topic, error) {
	topic, err := s.Repo.FindTopic(ctx, id)
	if err != nil {
		return nil, notFound(err, util.ErrTopicNotFound)
	}
	if req.UnitID != topic.UnitID {
		if _, err := s.Repo.FindUnit(ctx, req.UnitID); err != nil {
			return nil, notFound(err, util.ErrUnitNotFound)
		}
	}
	topic.UnitID = req.UnitID
	topic.Code = normalizeCode(req.Code)
	topic.Name = strings.TrimSpace(req.Name)
	topic.Order = req.Order
	if err := s.Repo.UpdateTopic(ctx, topic); err != nil {
		return nil, err
	}
	s.invalidate(ctx)
	return topic, nil
}

func (s *CurriculumService) DeleteTopic(ctx context.Context, id uint) error {
	if _, err := s.Repo.FindTopic(ctx, id); err != nil {
		return notFound(err, util.ErrTopicNotFound)
	}
	if err := s.Repo.DeleteTopic(ctx, id); err != nil {
		return err
	}
	s.invalidate(ctx)
	return nil
}
