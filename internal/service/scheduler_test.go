package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingAdvancer struct {
	calls int
	err   error
}

func (c *countingAdvancer) AdvanceLifecycle(ctx context.Context) (int, error) {
	c.calls++
	_, hasDeadline := ctx.Deadline()
	if !hasDeadline {
		return 0, errors.New("missing deadline")
	}
	return 2, c.err
}

type countingPurger struct {
	calls int
}

func (c *countingPurger) PurgeExpiredDemoAccounts(ctx context.Context) (int64, error) {
	c.calls++
	return 1, nil
}

func TestSchedulerRegistersJobs(t *testing.T) {
	advancer := &countingAdvancer{}
	purger := &countingPurger{}

	s, err := NewScheduler("@every 30s", advancer, purger)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Entries())

	s.advanceSessions()
	s.purgeDemoAccounts()
	assert.Equal(t, 1, advancer.calls)
	assert.Equal(t, 1, purger.calls)

	advancer.err = errors.New("db down")
	s.advanceSessions()
	assert.Equal(t, 2, advancer.calls)

	s.Start()
	s.Stop(context.Background())
}

func TestSchedulerRejectsBadSpec(t *testing.T) {
	_, err := NewScheduler("every minute please", &countingAdvancer{}, nil)
	assert.Error(t, err)

	s, err := NewScheduler("", &countingAdvancer{}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Entries())
}
