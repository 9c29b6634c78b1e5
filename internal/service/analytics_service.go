package service

import (
	"context"
	"fmt"
	"io"
	"math"
	"paes_math_backend/internal/model"
	"paes_math_backend/internal/util"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	defaultOverviewWeeks = 8
	maxOverviewWeeks     = 26
)

// AnalyticsStore 由 repository.AnalyticsRepository 实现
type AnalyticsStore interface {
	AttemptTotals(ctx context.Context, userID uint) (total, correct int, err error)
	AccuracyByAxis(ctx context.Context, userID uint) ([]model.AccuracyStat, error)
	WeeklyCounts(ctx context.Context, userID uint, since time.Time) ([]model.WeeklyActivity, error)
	EnsayoHistory(ctx context.Context, userID uint) ([]model.EnsayoHistoryItem, error)
	SessionQuestionStats(ctx context.Context, sessionID uint) ([]model.QuestionStat, error)
	SessionScoreSummary(ctx context.Context, sessionID uint) (submissions int, avg float64, max int, err error)
}

type UnitAccuracySource interface {
	AccuracyByUnit(ctx context.Context, userID uint) ([]model.AccuracyStat, error)
}

type KnowledgeSummarySource interface {
	SummaryByUser(ctx context.Context, userID uint) (map[model.KnowledgeStatus]int, error)
}

// SessionResultsReader LiveSessionService 实现，负责归属校验
type SessionResultsReader interface {
	Results(ctx context.Context, actor Actor, id uint) (*model.LiveSession, []model.SessionResultRow, error)
}

type SeatCounter interface {
	SeatCounts(ctx context.Context, sessionID uint) (registered, joined int64, err error)
}

type UserCounter interface {
	CountByRole(ctx context.Context) (map[model.UserRole]int, error)
	CountActiveSince(ctx context.Context, since time.Time) (int64, error)
	CountDemo(ctx context.Context) (int64, error)
}

type QuestionCounter interface {
	Count(ctx context.Context, publishedOnly bool) (int64, error)
}

type SessionStatusCounter interface {
	CountByStatus(ctx context.Context) (map[model.SessionStatus]int, error)
}

type RowCounter interface {
	Count(ctx context.Context) (int64, error)
}

// PlatformCounters 管理员概览用到的各类计数
type PlatformCounters struct {
	Users        UserCounter
	Questions    QuestionCounter
	Sessions     SessionStatusCounter
	Diagnostics  RowCounter
	Tutor        RowCounter
	Certificates RowCounter
}

type AnalyticsService struct {
	Repo      AnalyticsStore
	Units     UnitAccuracySource
	Knowledge KnowledgeSummarySource
	Sessions  SessionResultsReader
	Seats     SeatCounter
	Platform  PlatformCounters
	Now       func() time.Time
}

func NewAnalyticsService(repo AnalyticsStore, units UnitAccuracySource, knowledge KnowledgeSummarySource, sessions SessionResultsReader, seats SeatCounter, platform PlatformCounters) *AnalyticsService {
	return &AnalyticsService{
		Repo:      repo,
		Units:     units,
		Knowledge: knowledge,
		Sessions:  sessions,
		Seats:     seats,
		Platform:  platform,
		Now:       time.Now,
	}
}

func percentOf(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)*1000/float64(total)) / 10
}

// weekStart 所在周的周一 00:00
func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.AddDate(0, 0, -offset).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// Overview 学生学习概览，最近 weeks 周的练习量缺失的周补 0
func (s *AnalyticsService) Overview(ctx context.Context, userID uint, weeks int) (*model.StudentOverview, error) {
	if weeks <= 0 {
		weeks = defaultOverviewWeeks
	}
	if weeks > maxOverviewWeeks {
		weeks = maxOverviewWeeks
	}

	total, correct, err := s.Repo.AttemptTotals(ctx, userID)
	if err != nil {
		return nil, err
	}
	overview := &model.StudentOverview{
		TotalAttempts:   total,
		CorrectAttempts: correct,
		Accuracy:        percentOf(correct, total),
	}

	if overview.ByAxis, err = s.Repo.AccuracyByAxis(ctx, userID); err != nil {
		return nil, err
	}
	if overview.ByUnit, err = s.Units.AccuracyByUnit(ctx, userID); err != nil {
		return nil, err
	}

	current := weekStart(s.Now())
	since := current.AddDate(0, 0, -7*(weeks-1))
	counts, err := s.Repo.WeeklyCounts(ctx, userID, since)
	if err != nil {
		return nil, err
	}
	byWeek := make(map[string]model.WeeklyActivity, len(counts))
	for _, c := range counts {
		byWeek[c.Week] = c
	}
	for i := 0; i < weeks; i++ {
		key := since.AddDate(0, 0, 7*i).Format(util.DateFormat)
		w, ok := byWeek[key]
		if !ok {
			w = model.WeeklyActivity{Week: key}
		}
		w.Accuracy = percentOf(w.Correct, w.Attempts)
		overview.Weekly = append(overview.Weekly, w)
	}

	if overview.Ensayos, err = s.Repo.EnsayoHistory(ctx, userID); err != nil {
		return nil, err
	}
	if len(overview.Ensayos) > 0 {
		sum := 0
		for _, e := range overview.Ensayos {
			sum += e.Score
		}
		overview.AverageEnsayo = math.Round(float64(sum)*10/float64(len(overview.Ensayos))) / 10
	}

	if overview.KnowledgeSummary, err = s.Knowledge.SummaryByUser(ctx, userID); err != nil {
		return nil, err
	}
	return overview, nil
}

// SessionStats 教师查看的场次统计
func (s *AnalyticsService) SessionStats(ctx context.Context, actor Actor, sessionID uint) (*model.SessionStats, error) {
	if _, _, err := s.Sessions.Results(ctx, actor, sessionID); err != nil {
		return nil, err
	}
	registered, joined, err := s.Seats.SeatCounts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	submissions, avg, maxScore, err := s.Repo.SessionScoreSummary(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	questions, err := s.Repo.SessionQuestionStats(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &model.SessionStats{
		SessionID:     sessionID,
		Registrations: int(registered),
		Participants:  int(joined),
		Submissions:   submissions,
		AverageScore:  math.Round(avg*10) / 10,
		MaxScore:      maxScore,
		Questions:     questions,
	}, nil
}

var resultColumns = []interface{}{"Posición", "Nombre", "Email", "Puntaje PAES", "Correctas", "Total", "Ingreso", "Entrega"}

// ExportSessionResults 排名与单题正确率两个工作表
func (s *AnalyticsService) ExportSessionResults(ctx context.Context, actor Actor, sessionID uint, w io.Writer) (*model.LiveSession, error) {
	session, rows, err := s.Sessions.Results(ctx, actor, sessionID)
	if err != nil {
		return nil, err
	}
	questions, err := s.Repo.SessionQuestionStats(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()

	const resultsSheet, questionsSheet = "Resultados", "Preguntas"
	f.SetSheetName("Sheet1", resultsSheet)
	if err := f.SetSheetRow(resultsSheet, "A1", &resultColumns); err != nil {
		return nil, err
	}
	for i, r := range rows {
		submitted := ""
		if r.SubmittedAt != nil {
			submitted = r.SubmittedAt.Format(util.TimeFormat)
		}
		values := []interface{}{r.Rank, r.Name, r.Email, r.Score, r.CorrectCount, r.TotalCount, r.JoinedAt.Format(util.TimeFormat), submitted}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(resultsSheet, cell, &values); err != nil {
			return nil, err
		}
	}
	f.SetColWidth(resultsSheet, "B", "C", 28)

	if _, err := f.NewSheet(questionsSheet); err != nil {
		return nil, err
	}
	header := []interface{}{"N°", "ID pregunta", "Respondidas", "Correctas", "% correcto"}
	if err := f.SetSheetRow(questionsSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, q := range questions {
		values := []interface{}{q.Position, q.QuestionID, q.Answered, q.Correct, q.CorrectRate}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(questionsSheet, cell, &values); err != nil {
			return nil, err
		}
	}

	if err := f.Write(w); err != nil {
		return nil, fmt.Errorf("write results workbook: %w", err)
	}
	return session, nil
}

// PlatformOverview 管理员平台概览
func (s *AnalyticsService) PlatformOverview(ctx context.Context) (*model.PlatformOverview, error) {
	p := s.Platform
	out := &model.PlatformOverview{}
	var err error

	if out.UsersByRole, err = p.Users.CountByRole(ctx); err != nil {
		return nil, err
	}
	active, err := p.Users.CountActiveSince(ctx, s.Now().AddDate(0, 0, -7))
	if err != nil {
		return nil, err
	}
	demo, err := p.Users.CountDemo(ctx)
	if err != nil {
		return nil, err
	}
	questions, err := p.Questions.Count(ctx, false)
	if err != nil {
		return nil, err
	}
	published, err := p.Questions.Count(ctx, true)
	if err != nil {
		return nil, err
	}
	if out.SessionsByStatus, err = p.Sessions.CountByStatus(ctx); err != nil {
		return nil, err
	}
	diagnostics, err := p.Diagnostics.Count(ctx)
	if err != nil {
		return nil, err
	}
	chats, err := p.Tutor.Count(ctx)
	if err != nil {
		return nil, err
	}
	certs, err := p.Certificates.Count(ctx)
	if err != nil {
		return nil, err
	}

	out.ActiveUsers7d = int(active)
	out.DemoAccounts = int(demo)
	out.Questions = int(questions)
	out.PublishedQuestions = int(published)
	out.Diagnostics = int(diagnostics)
	out.TutorChats = int(chats)
	out.Certificates = int(certs)
	return out, nil
}
