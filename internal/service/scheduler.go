package service

import (
	"context"
	"paes_math_backend/pkg/logger"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const demoPurgeSpec = "@hourly"

type LifecycleAdvancer interface {
	AdvanceLifecycle(ctx context.Context) (int, error)
}

type DemoPurger interface {
	PurgeExpiredDemoAccounts(ctx context.Context) (int64, error)
}

// Scheduler 定时任务：模拟考状态推进、过期体验账号清理
type Scheduler struct {
	cron     *cron.Cron
	sessions LifecycleAdvancer
	users    DemoPurger
	timeout  time.Duration
}

func NewScheduler(lifecycleSpec string, sessions LifecycleAdvancer, users DemoPurger) (*Scheduler, error) {
	s := &Scheduler{
		cron: cron.New(cron.WithChain(
			cron.Recover(cron.DefaultLogger),
			cron.SkipIfStillRunning(cron.DefaultLogger),
		)),
		sessions: sessions,
		users:    users,
		timeout:  time.Minute,
	}
	if lifecycleSpec == "" {
		lifecycleSpec = "@every 1m"
	}
	if _, err := s.cron.AddFunc(lifecycleSpec, s.advanceSessions); err != nil {
		return nil, err
	}
	if users != nil {
		if _, err := s.cron.AddFunc(demoPurgeSpec, s.purgeDemoAccounts); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Scheduler) advanceSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.sessions.AdvanceLifecycle(ctx)
	if err != nil {
		logger.Log.Error("Advance session lifecycle failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Log.Info("Session lifecycle advanced", zap.Int("transitions", n))
	}
}

func (s *Scheduler) purgeDemoAccounts() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	n, err := s.users.PurgeExpiredDemoAccounts(ctx)
	if err != nil {
		logger.Log.Error("Purge demo accounts failed", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Log.Info("Expired demo accounts purged", zap.Int64("count", n))
	}
}

// Entries 已注册的任务数
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

func (s *Scheduler) Start() {
	s.cron.Start()
	logger.Log.Info("Scheduler started", zap.Int("jobs", s.Entries()))
}

// Stop 等待正在执行的任务结束，最多等到 ctx 超时
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		logger.Log.Warn("Scheduler stop timed out")
	}
}
