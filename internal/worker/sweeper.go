package worker

import (
	"context"
	"time"

	"prostor/internal/domain"
	"prostor/internal/events"
	"prostor/internal/metrics"

	"github.com/rs/zerolog"
)

// CompletionStore is the slice of the reservation store the sweep needs.
type CompletionStore interface {
	CompleteEndedReservations(ctx context.Context, now time.Time) (int64, error)
}

// CompletionSweeper is the lifecycle sweep: it periodically marks active
// reservations whose end time has passed as COMPLETED. It runs outside the
// admission path; COMPLETED is terminal, so the sweep cannot race an
// admission decision into an invariant violation.
type CompletionSweeper struct {
	store    CompletionStore
	eventBus domain.EventPublisher
	clock    domain.Clock
	interval time.Duration
	retry    RetryPolicy
	logger   *zerolog.Logger
}

func NewCompletionSweeper(
	store CompletionStore,
	eventBus domain.EventPublisher,
	clock domain.Clock,
	interval time.Duration,
	logger *zerolog.Logger,
) *CompletionSweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if clock == nil {
		clock = domain.SystemClock{}
	}
	return &CompletionSweeper{
		store:    store,
		eventBus: eventBus,
		clock:    clock,
		interval: interval,
		retry: RetryPolicy{
			MaxRetries:    3,
			InitialDelay:  time.Second,
			MaxDelay:      30 * time.Second,
			BackoffFactor: 2,
		},
		logger: logger,
	}
}

// Run sweeps on a ticker until ctx is done.
func (w *CompletionSweeper) Run(ctx context.Context) {
	w.logger.Info().Dur("interval", w.interval).Msg("completion sweeper started")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info().Msg("completion sweeper stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep performs one completion pass, retrying store errors with backoff.
func (w *CompletionSweeper) Sweep(ctx context.Context) {
	now := w.clock.Now()

	for attempt := 1; ; attempt++ {
		completed, err := w.store.CompleteEndedReservations(ctx, now)
		if err == nil {
			if completed > 0 {
				metrics.AddSwept(completed)
				w.logger.Info().Int64("completed", completed).Msg("completion sweep done")
				w.publish(completed, now)
			}
			return
		}

		if attempt > w.retry.MaxRetries {
			w.logger.Error().Err(err).Int("attempts", attempt).Msg("completion sweep failed")
			return
		}

		delay := w.retry.NextDelay(attempt)
		w.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("completion sweep error, retrying")

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (w *CompletionSweeper) publish(completed int64, now time.Time) {
	if w.eventBus == nil {
		return
	}
	payload := events.SweepEventPayload{Completed: completed, SweptAt: now}
	if err := w.eventBus.PublishJSON(events.EventSweepCompleted, payload); err != nil {
		w.logger.Error().Err(err).Msg("publish sweep event error")
	}
}
