package service

import (
	"bytes"
	"context"
	"testing"
	"time"

	"paes_math_backend/internal/model"
	"paes_math_backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

type stubAnalytics struct {
	since time.Time
}

func (s *stubAnalytics) AttemptTotals(ctx context.Context, userID uint) (int, int, error) {
	return 8, 6, nil
}

func (s *stubAnalytics) AccuracyByAxis(ctx context.Context, userID uint) ([]model.AccuracyStat, error) {
	return []model.AccuracyStat{{Code: "numeros", Attempts: 8, Correct: 6, Accuracy: 75}}, nil
}

func (s *stubAnalytics) WeeklyCounts(ctx context.Context, userID uint, since time.Time) ([]model.WeeklyActivity, error) {
	s.since = since
	return []model.WeeklyActivity{{Week: "2026-03-02", Attempts: 3, Correct: 2}}, nil
}

func (s *stubAnalytics) EnsayoHistory(ctx context.Context, userID uint) ([]model.EnsayoHistoryItem, error) {
	return []model.EnsayoHistoryItem{{SessionID: 1, Score: 700}, {SessionID: 2, Score: 825}}, nil
}

func (s *stubAnalytics) SessionQuestionStats(ctx context.Context, sessionID uint) ([]model.QuestionStat, error) {
	return []model.QuestionStat{
		{QuestionID: 4, Position: 1, Answered: 2, Correct: 1, CorrectRate: 50},
		{QuestionID: 9, Position: 2, Answered: 2, Correct: 2, CorrectRate: 100},
	}, nil
}

func (s *stubAnalytics) SessionScoreSummary(ctx context.Context, sessionID uint) (int, float64, int, error) {
	return 2, 662.5, 1000, nil
}

type stubUnitAccuracy struct{}

func (stubUnitAccuracy) AccuracyByUnit(ctx context.Context, userID uint) ([]model.AccuracyStat, error) {
	return []model.AccuracyStat{{Code: "m1-porcentaje", Attempts: 8, Correct: 6, Accuracy: 75}}, nil
}

type stubKnowledgeSummary struct{}

func (stubKnowledgeSummary) SummaryByUser(ctx context.Context, userID uint) (map[model.KnowledgeStatus]int, error) {
	return map[model.KnowledgeStatus]int{model.KnowledgeMastered: 2}, nil
}

type stubSessionResults struct {
	owner uint
}

func (s stubSessionResults) Results(ctx context.Context, actor Actor, id uint) (*model.LiveSession, []model.SessionResultRow, error) {
	if actor.UserID != s.owner && !actor.IsAdmin() {
		return nil, nil, util.ErrPermissionDenied
	}
	submitted := time.Date(2026, 3, 10, 16, 0, 0, 0, time.UTC)
	return &model.LiveSession{Title: "Ensayo marzo"}, []model.SessionResultRow{
		{Rank: 1, Name: "Ana", Email: "ana@example.cl", Score: 1000, CorrectCount: 2, TotalCount: 2, SubmittedAt: &submitted},
		{Rank: 2, Name: "Benja", Email: "benja@example.cl", Score: 325, CorrectCount: 1, TotalCount: 2},
	}, nil
}

type stubSeats struct{}

func (stubSeats) SeatCounts(ctx context.Context, sessionID uint) (int64, int64, error) {
	return 5, 3, nil
}

type stubCounts struct{}

func (stubCounts) CountByRole(ctx context.Context) (map[model.UserRole]int, error) {
	return map[model.UserRole]int{model.Student: 10, model.Teacher: 2}, nil
}
func (stubCounts) CountActiveSince(ctx context.Context, since time.Time) (int64, error) {
	return 7, nil
}
func (stubCounts) CountDemo(ctx context.Context) (int64, error) { return 3, nil }
func (stubCounts) CountByStatus(ctx context.Context) (map[model.SessionStatus]int, error) {
	return map[model.SessionStatus]int{model.SessionScheduled: 4}, nil
}

type stubQuestionCount struct{}

func (stubQuestionCount) Count(ctx context.Context, publishedOnly bool) (int64, error) {
	if publishedOnly {
		return 40, nil
	}
	return 55, nil
}

type fixedCount int64

func (c fixedCount) Count(ctx context.Context) (int64, error) { return int64(c), nil }

func newAnalyticsFixture() (*AnalyticsService, *stubAnalytics) {
	repo := &stubAnalytics{}
	svc := NewAnalyticsService(repo, stubUnitAccuracy{}, stubKnowledgeSummary{}, stubSessionResults{owner: 3}, stubSeats{},
		PlatformCounters{
			Users:        stubCounts{},
			Questions:    stubQuestionCount{},
			Sessions:     stubCounts{},
			Diagnostics:  fixedCount(6),
			Tutor:        fixedCount(9),
			Certificates: fixedCount(12),
		})
	// 2026-03-11 是周三
	svc.Now = func() time.Time { return time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC) }
	return svc, repo
}

func TestOverviewZeroFillsWeeks(t *testing.T) {
	svc, repo := newAnalyticsFixture()
	overview, err := svc.Overview(context.Background(), 5, 3)
	require.NoError(t, err)

	assert.Equal(t, time.Date(2026, 2, 23, 0, 0, 0, 0, time.UTC), repo.since)
	require.Len(t, overview.Weekly, 3)
	assert.Equal(t, "2026-02-23", overview.Weekly[0].Week)
	assert.Zero(t, overview.Weekly[0].Attempts)
	assert.Equal(t, 3, overview.Weekly[1].Attempts)
	assert.InDelta(t, 66.7, overview.Weekly[1].Accuracy, 0.001)
	assert.Equal(t, "2026-03-09", overview.Weekly[2].Week)

	assert.Equal(t, 75.0, overview.Accuracy)
	assert.Equal(t, 762.5, overview.AverageEnsayo)
	assert.Len(t, overview.ByUnit, 1)
	assert.Equal(t, 2, overview.KnowledgeSummary[model.KnowledgeMastered])
}

func TestOverviewClampsWeeks(t *testing.T) {
	svc, _ := newAnalyticsFixture()
	overview, err := svc.Overview(context.Background(), 5, 0)
	require.NoError(t, err)
	assert.Len(t, overview.Weekly, defaultOverviewWeeks)

	overview, err = svc.Overview(context.Background(), 5, 500)
	require.NoError(t, err)
	assert.Len(t, overview.Weekly, maxOverviewWeeks)
}

func TestSessionStatsChecksOwnership(t *testing.T) {
	svc, _ := newAnalyticsFixture()

	stats, err := svc.SessionStats(context.Background(), Actor{UserID: 3, Role: model.Teacher}, 7)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Registrations)
	assert.Equal(t, 3, stats.Participants)
	assert.Equal(t, 2, stats.Submissions)
	assert.Equal(t, 662.5, stats.AverageScore)
	assert.Len(t, stats.Questions, 2)

	_, err = svc.SessionStats(context.Background(), Actor{UserID: 4, Role: model.Teacher}, 7)
	assert.ErrorIs(t, err, util.ErrPermissionDenied)
}

func TestExportSessionResultsWorkbook(t *testing.T) {
	svc, _ := newAnalyticsFixture()
	var buf bytes.Buffer
	session, err := svc.ExportSessionResults(context.Background(), Actor{UserID: 1, Role: model.Admin}, 7, &buf)
	require.NoError(t, err)
	assert.Equal(t, "Ensayo marzo", session.Title)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Resultados")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "Posición", rows[0][0])
	assert.Equal(t, "Ana", rows[1][1])
	assert.Equal(t, "1000", rows[1][3])
	assert.Equal(t, "2026-03-10 16:00:00", rows[1][7])

	qrows, err := f.GetRows("Preguntas")
	require.NoError(t, err)
	require.Len(t, qrows, 3)
	assert.Equal(t, "9", qrows[2][1])
}

func TestPlatformOverview(t *testing.T) {
	svc, _ := newAnalyticsFixture()
	out, err := svc.PlatformOverview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, out.UsersByRole[model.Student])
	assert.Equal(t, 7, out.ActiveUsers7d)
	assert.Equal(t, 3, out.DemoAccounts)
	assert.Equal(t, 55, out.Questions)
	assert.Equal(t, 40, out.PublishedQuestions)
	assert.Equal(t, 4, out.SessionsByStatus[model.SessionScheduled])
	assert.Equal(t, 6, out.Diagnostics)
	assert.Equal(t, 9, out.TutorChats)
	assert.Equal(t, 12, out.Certificates)
}
