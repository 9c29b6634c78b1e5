package repository

import (
	"context"
	"paes_math_backend/internal/model"
	"strings"

	"gorm.io/gorm"
)

type QuestionRepository struct {
	DB *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) *QuestionRepository {
	return &QuestionRepository{DB: db}
}

// QuestionFilter 题库筛选条件
type QuestionFilter struct {
	Level         model.TestLevel
	UnitID        uint
	TopicID       uint
	Difficulty    int
	Type          model.QuestionType
	Search        string
	PublishedOnly bool
}

func (f QuestionFilter) apply(query *gorm.DB) *gorm.DB {
	if f.Level != "" {
		query = query.Where("level = ?", f.Level)
	}
	if f.UnitID != 0 {
		query = query.Where("unit_id = ?", f.UnitID)
	}
	if f.TopicID != 0 {
		query = query.Where("topic_id = ?", f.TopicID)
	}
	if f.Difficulty != 0 {
		query = query.Where("difficulty = ?", f.Difficulty)
	}
	if f.Type != "" {
		query = query.Where("type = ?", f.Type)
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		query = query.Where("stem ILIKE ?", "%"+s+"%")
	}
	if f.PublishedOnly {
		query = query.Where("is_published = ?", true)
	}
	return query
}

func (r *QuestionRepository) Create(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Omit("Unit").Create(q).Error
}

// CreateBatch 批量导入，任意一条失败全部回滚
func (r *QuestionRepository) CreateBatch(ctx context.Context, questions []model.Question) error {
	if len(questions) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Omit("Unit").CreateInBatches(questions, 100).Error
	})
}

func (r *QuestionRepository) FindByID(ctx context.Context, id uint) (*model.Question, error) {
	var q model.Question
	if err := r.DB.WithContext(ctx).First(&q, id).Error; err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *QuestionRepository) FindByIDs(ctx context.Context, ids []uint) ([]model.Question, error) {
	var questions []model.Question
	if len(ids) == 0 {
		return questions, nil
	}
	err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&questions).Error
	return questions, err
}

func (r *QuestionRepository) Update(ctx context.Context, q *model.Question) error {
	return r.DB.WithContext(ctx).Omit("Unit").Save(q).Error
}

func (r *QuestionRepository) Delete(ctx context.Context, id uint) error {
	return r.DB.WithContext(ctx).Delete(&model.Question{}, id).Error
}

func (r *QuestionRepository) List(ctx context.Context, filter QuestionFilter, page, limit int) ([]model.Question, int64, error) {
	query := filter.apply(r.DB.WithContext(ctx).Model(&model.Question{}))

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var questions []model.Question
	err := query.Order("id DESC").Offset((page - 1) * limit).Limit(limit).Find(&questions).Error
	return questions, total, err
}

// ListAll 导出用，不分页
func (r *QuestionRepository) ListAll(ctx context.Context, filter QuestionFilter) ([]model.Question, error) {
	var questions []model.Question
	err := filter.apply(r.DB.WithContext(ctx).Model(&model.Question{})).
		Preload("Unit.Topics").
		Order("unit_id ASC, id ASC").
		Find(&questions).Error
	return questions, err
}

// RandomPublished 随机抽取已发布题目，excludeIDs 中的题目不会被抽中
func (r *QuestionRepository) RandomPublished(ctx context.Context, filter QuestionFilter, count int, excludeIDs []uint) ([]model.Question, error) {
	filter.PublishedOnly = true
	query := filter.apply(r.DB.WithContext(ctx).Model(&model.Question{}))
	if len(excludeIDs) > 0 {
		query = query.Where("id NOT IN ?", excludeIDs)
	}

	var questions []model.Question
	err := query.Order("RANDOM()").Limit(count).Find(&questions).Error
	return questions, err
}

func (r *QuestionRepository) CreateAttempt(ctx context.Context, attempt *model.QuestionAttempt) error {
	return r.DB.WithContext(ctx).Omit("User", "Question").Create(attempt).Error
}

func (r *QuestionRepository) CreateAttempts(ctx context.Context, attempts []model.QuestionAttempt) error {
	if len(attempts) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Omit("User", "Question").Create(&attempts).Error
}

// HasAttempt 学生是否作答过该题（练习、诊断、模拟考任一场景）
func (r *QuestionRepository) HasAttempt(ctx context.Context, userID, questionID uint) (bool, error) {
	var count int64
	err := r.DB.WithContext(ctx).Model(&model.QuestionAttempt{}).
		Where("user_id = ? AND question_id = ?", userID, questionID).
		Count(&count).Error
	return count > 0, err
}

// AccuracyByUnit 学生在各单元的作答正确率（AI 工具使用）
func (r *QuestionRepository) AccuracyByUnit(ctx context.Context, userID uint) ([]model.AccuracyStat, error) {
	var stats []model.AccuracyStat
	err := r.DB.WithContext(ctx).Raw(`
		SELECT u.id, u.code, u.name,
		       COUNT(a.id) AS attempts,
		       COALESCE(SUM(CASE WHEN a.is_correct THEN 1 ELSE 0 END), 0) AS correct
		FROM question_attempts a
		JOIN questions q ON q.id = a.question_id
		JOIN units u ON u.id = q.unit_id
		WHERE a.user_id = ?
		GROUP BY u.id, u.code, u.name
		ORDER BY u.code`, userID).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	for i := range stats {
		stats[i].Accuracy = percentage(stats[i].Correct, stats[i].Attempts)
	}
	return stats, nil
}

func (r *QuestionRepository) Count(ctx context.Context, publishedOnly bool) (int64, error) {
	var count int64
	query := r.DB.WithContext(ctx).Model(&model.Question{})
	if publishedOnly {
		query = query.Where("is_published = ?", true)
	}
	err := query.Count(&count).Error
	return count, err
}

func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(int(float64(part)*10000/float64(total)+0.5)) / 100
}
