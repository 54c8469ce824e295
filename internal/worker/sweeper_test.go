package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"prostor/internal/events"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sweepStore struct {
	completed int64
	err       error
	failTimes int
	calls     atomic.Int64
}

func (s *sweepStore) CompleteEndedReservations(ctx context.Context, now time.Time) (int64, error) {
	call := s.calls.Add(1)
	if s.err != nil && int(call) <= s.failTimes {
		return 0, s.err
	}
	return s.completed, nil
}

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestSweep(t *testing.T) {
	logger := zerolog.Nop()
	now := time.Date(2026, 1, 21, 12, 0, 0, 0, time.Local)

	t.Run("PublishesEventWhenRowsCompleted", func(t *testing.T) {
		store := &sweepStore{completed: 2}
		bus := events.NewEventBus()

		var swept atomic.Int64
		bus.Subscribe(events.EventSweepCompleted, func(event *events.Event) error {
			swept.Add(1)
			return nil
		})

		sweeper := NewCompletionSweeper(store, bus, fixedClock{now: now}, time.Minute, &logger)
		sweeper.Sweep(context.Background())

		assert.Equal(t, int64(1), store.calls.Load())
		assert.Equal(t, int64(1), swept.Load())
	})

	t.Run("NoEventWhenNothingCompleted", func(t *testing.T) {
		store := &sweepStore{completed: 0}
		bus := events.NewEventBus()

		var swept atomic.Int64
		bus.Subscribe(events.EventSweepCompleted, func(event *events.Event) error {
			swept.Add(1)
			return nil
		})

		sweeper := NewCompletionSweeper(store, bus, fixedClock{now: now}, time.Minute, &logger)
		sweeper.Sweep(context.Background())

		assert.Equal(t, int64(0), swept.Load())
	})

	t.Run("RetriesTransientErrors", func(t *testing.T) {
		store := &sweepStore{completed: 1, err: errors.New("database is locked"), failTimes: 2}

		sweeper := NewCompletionSweeper(store, nil, fixedClock{now: now}, time.Minute, &logger)
		sweeper.retry.InitialDelay = time.Millisecond
		sweeper.retry.MaxDelay = time.Millisecond
		sweeper.Sweep(context.Background())

		assert.Equal(t, int64(3), store.calls.Load())
	})

	t.Run("GivesUpAfterMaxRetries", func(t *testing.T) {
		store := &sweepStore{err: errors.New("database is locked"), failTimes: 100}

		sweeper := NewCompletionSweeper(store, nil, fixedClock{now: now}, time.Minute, &logger)
		sweeper.retry.InitialDelay = time.Millisecond
		sweeper.retry.MaxDelay = time.Millisecond
		sweeper.Sweep(context.Background())

		assert.Equal(t, int64(sweeper.retry.MaxRetries+1), store.calls.Load())
	})
}

func TestRunStopsOnContextCancel(t *testing.T) {
	logger := zerolog.Nop()
	store := &sweepStore{}
	sweeper := NewCompletionSweeper(store, nil, nil, 10*time.Millisecond, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		sweeper.Run(ctx)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancel")
	}
	require.GreaterOrEqual(t, store.calls.Load(), int64(1))
}

func TestRetryPolicyBackoff(t *testing.T) {
	policy := RetryPolicy{
		MaxRetries:    3,
		InitialDelay:  time.Second,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2,
	}

	assert.Equal(t, time.Second, policy.NextDelay(1))
	assert.Equal(t, 2*time.Second, policy.NextDelay(2))
	assert.Equal(t, 4*time.Second, policy.NextDelay(3))
	assert.Equal(t, 5*time.Second, policy.NextDelay(4))
}
