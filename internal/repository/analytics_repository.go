package repository

import (
	"context"
	"paes_math_backend/internal/model"
	"time"

	"gorm.io/gorm"
)

// AnalyticsRepository 只读聚合查询
type AnalyticsRepository struct {
	DB *gorm.DB
}

func NewAnalyticsRepository(db *gorm.DB) *AnalyticsRepository {
	return &AnalyticsRepository{DB: db}
}

func (r *AnalyticsRepository) AttemptTotals(ctx context.Context, userID uint) (total, correct int, err error) {
	var row struct {
		Total   int
		Correct int
	}
	err = r.DB.WithContext(ctx).Raw(`
		SELECT COUNT(*) AS total,
		       COALESCE(SUM(CASE WHEN is_correct THEN 1 ELSE 0 END), 0) AS correct
		FROM question_attempts
		WHERE user_id = ?`, userID).Scan(&row).Error
	return row.Total, row.Correct, err
}

func (r *AnalyticsRepository) AccuracyByAxis(ctx context.Context, userID uint) ([]model.AccuracyStat, error) {
	var stats []model.AccuracyStat
	err := r.DB.WithContext(ctx).Raw(`
		SELECT ax.id, ax.code, ax.name,
		       COUNT(a.id) AS attempts,
		       COALESCE(SUM(CASE WHEN a.is_correct THEN 1 ELSE 0 END), 0) AS correct
		FROM question_attempts a
		JOIN questions q ON q.id = a.question_id
		JOIN units u ON u.id = q.unit_id
		JOIN thematic_axes ax ON ax.id = u.axis_id
		WHERE a.user_id = ?
		GROUP BY ax.id, ax.code, ax.name, ax.sort_order
		ORDER BY ax.sort_order`, userID).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	for i := range stats {
		stats[i].Accuracy = percentage(stats[i].Correct, stats[i].Attempts)
	}
	return stats, nil
}

// WeeklyCounts 自 since 起按周（周一开始）聚合作答量
func (r *AnalyticsRepository) WeeklyCounts(ctx context.Context, userID uint, since time.Time) ([]model.WeeklyActivity, error) {
	var rows []model.WeeklyActivity
	err := r.DB.WithContext(ctx).Raw(`
		SELECT to_char(date_trunc('week', created_at), 'YYYY-MM-DD') AS week,
		       COUNT(*) AS attempts,
		       COALESCE(SUM(CASE WHEN is_correct THEN 1 ELSE 0 END), 0) AS correct
		FROM question_attempts
		WHERE user_id = ? AND created_at >= ?
		GROUP BY 1
		ORDER BY 1`, userID, since).Scan(&rows).Error
	return rows, err
}

func (r *AnalyticsRepository) EnsayoHistory(ctx context.Context, userID uint) ([]model.EnsayoHistoryItem, error) {
	var items []model.EnsayoHistoryItem
	err := r.DB.WithContext(ctx).Raw(`
		SELECT s.id AS session_id, s.title, s.level, s.scheduled_at,
		       p.score, p.correct_count, p.total_count, p.submitted_at
		FROM session_participants p
		JOIN live_sessions s ON s.id = p.session_id
		WHERE p.user_id = ? AND p.submitted_at IS NOT NULL AND s.deleted_at IS NULL
		ORDER BY s.scheduled_at DESC`, userID).Scan(&items).Error
	return items, err
}

// SessionQuestionStats 场次内每题的作答数和正确数
func (r *AnalyticsRepository) SessionQuestionStats(ctx context.Context, sessionID uint) ([]model.QuestionStat, error) {
	var stats []model.QuestionStat
	err := r.DB.WithContext(ctx).Raw(`
		SELECT sq.question_id, sq.position,
		       COUNT(sa.id) AS answered,
		       COALESCE(SUM(CASE WHEN sa.is_correct THEN 1 ELSE 0 END), 0) AS correct
		FROM session_questions sq
		LEFT JOIN session_participants p ON p.session_id = sq.session_id
		LEFT JOIN session_answers sa ON sa.participant_id = p.id AND sa.question_id = sq.question_id
		WHERE sq.session_id = ?
		GROUP BY sq.question_id, sq.position
		ORDER BY sq.position`, sessionID).Scan(&stats).Error
	if err != nil {
		return nil, err
	}
	for i := range stats {
		stats[i].CorrectRate = percentage(stats[i].Correct, stats[i].Answered)
	}
	return stats, nil
}

// SessionScoreSummary 交卷人数、平均分和最高分
func (r *AnalyticsRepository) SessionScoreSummary(ctx context.Context, sessionID uint) (submissions int, avg float64, max int, err error) {
	var row struct {
		Submissions int
		Average     float64
		Max         int
	}
	err = r.DB.WithContext(ctx).Raw(`
		SELECT COUNT(*) AS submissions,
		       COALESCE(AVG(score), 0) AS average,
		       COALESCE(MAX(score), 0) AS max
		FROM session_participants
		WHERE session_id = ? AND submitted_at IS NOT NULL`, sessionID).Scan(&row).Error
	return row.Submissions, row.Average, row.Max, err
}
