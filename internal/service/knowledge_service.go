package service

import (
	"context"
	"fmt"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/util"
	"paes_math_backend/pkg/logger"

	"go.uber.org/zap"
)

// KnowledgeStore 由 repository.KnowledgeRepository 实现
type KnowledgeStore interface {
	ListByUser(ctx context.Context, userID uint) ([]model.KnowledgeDeclaration, error)
	Upsert(ctx context.Context, decls []model.KnowledgeDeclaration) error
	Delete(ctx context.Context, userID, unitID uint) (bool, error)
	SummaryByUser(ctx context.Context, userID uint) (map[model.KnowledgeStatus]int, error)
}

type DeclarationInput struct {
	UnitID     uint                  `json:"unitId" binding:"required"`
	Status     model.KnowledgeStatus `json:"status" binding:"required"`
	Confidence *float64              `json:"confidence"`
}

type KnowledgeService struct {
	Repo  KnowledgeStore
	Units UnitLookup
}

func NewKnowledgeService(repo KnowledgeStore, units UnitLookup) *KnowledgeService {
	return &KnowledgeService{Repo: repo, Units: units}
}

func (s *KnowledgeService) List(ctx context.Context, userID uint) ([]model.KnowledgeDeclaration, error) {
	return s.Repo.ListByUser(ctx, userID)
}

func (s *KnowledgeService) Summary(ctx context.Context, userID uint) (map[model.KnowledgeStatus]int, error) {
	return s.Repo.SummaryByUser(ctx, userID)
}

// defaultConfidence 未指定自信度时按状态给默认值
func defaultConfidence(status model.KnowledgeStatus) float64 {
	switch status {
	case model.KnowledgeMastered:
		return 0.9
	case model.KnowledgeLearning:
		return 0.5
	default:
		return 0
	}
}

// Upsert 学生自评，同一单元重复提交时覆盖
func (s *KnowledgeService) Upsert(ctx context.Context, userID uint, inputs []DeclarationInput) ([]model.KnowledgeDeclaration, error) {
	decls := make([]model.KnowledgeDeclaration, 0, len(inputs))
	seen := make(map[uint]int, len(inputs))
	for _, in := range inputs {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", util.ErrInvalidInput, in.Status)
		}
		confidence := defaultConfidence(in.Status)
		if in.Confidence != nil {
			if *in.Confidence < 0 || *in.Confidence > 1 {
				return nil, fmt.Errorf("%w: confidence must be between 0 and 1", util.ErrInvalidInput)
			}
			confidence = *in.Confidence
		}
		if _, err := s.Units.FindUnit(ctx, in.UnitID); err != nil {
			return nil, notFound(err, util.ErrUnitNotFound)
		}
		decl := model.KnowledgeDeclaration{
			UserID:     userID,
			UnitID:     in.UnitID,
			Status:     in.Status,
			Confidence: confidence,
			Source:     model.SourceSelf,
		}
		// 同一批次里后出现的覆盖前面的，避免 ON CONFLICT 同一行更新两次
		if idx, ok := seen[in.UnitID]; ok {
			decls[idx] = decl
			continue
		}
		seen[in.UnitID] = len(decls)
		decls = append(decls, decl)
	}
	if err := s.Repo.Upsert(ctx, decls); err != nil {
		return nil, err
	}
	return decls, nil
}

func (s *KnowledgeService) Delete(ctx context.Context, userID, unitID uint) error {
	deleted, err := s.Repo.Delete(ctx, userID, unitID)
	if err != nil {
		return err
	}
	if !deleted {
		return util.ErrDeclarationMissing
	}
	return nil
}

// ApplyMasteries 诊断结束后把模型记录的掌握度写成声明，未知单元代码跳过
func (s *KnowledgeService) ApplyMasteries(ctx context.Context, userID uint, masteries []model.UnitMastery) (int, error) {
	decls := make([]model.KnowledgeDeclaration, 0, len(masteries))
	seen := make(map[uint]int, len(masteries))
	for _, m := range masteries {
		unit, err := s.Units.FindUnitByCode(ctx, normalizeCode(m.UnitCode))
		if err != nil {
			logger.Log.Warn("Skip mastery for unknown unit", zap.String("unitCode", m.UnitCode), zap.Error(err))
			continue
		}
		decl := model.KnowledgeDeclaration{
			UserID:     userID,
			UnitID:     unit.ID,
			Status:     model.StatusFromMastery(m.Mastery),
			Confidence: m.Mastery,
			Source:     model.SourceDiagnostic,
		}
		if idx, ok := seen[unit.ID]; ok {
			decls[idx] = decl
			continue
		}
		seen[unit.ID] = len(decls)
		decls = append(decls, decl)
	}
	if err := s.Repo.Upsert(ctx, decls); err != nil {
		return 0, err
	}
	return len(decls), nil
}
