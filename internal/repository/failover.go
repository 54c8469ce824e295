package repository

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"prostor/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverGuard prefers the primary (distributed) guard and falls back to
// the local one when the primary's infrastructure fails. ErrGuardBusy is a
// real answer, never a reason to fail over.
type FailoverGuard struct {
	primary   domain.AdmissionGuard
	fallback  domain.AdmissionGuard
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverGuard(primary, fallback domain.AdmissionGuard, logger *zerolog.Logger) *FailoverGuard {
	return &FailoverGuard{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (g *FailoverGuard) Acquire(ctx context.Context, key string) (func(), error) {
	if !g.isDown.Load() || g.shouldRetryPrimary() {
		release, err := g.primary.Acquire(ctx, key)
		if err == nil {
			g.isDown.Store(false)
			return release, nil
		}
		if errors.Is(err, ErrGuardBusy) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}

		g.logger.Error().Err(err).Str("key", key).Msg("primary admission guard failed, falling back to local guard")
		g.isDown.Store(true)
		g.lastCheck.Store(time.Now().UnixNano())
	}

	return g.fallback.Acquire(ctx, key)
}

func (g *FailoverGuard) shouldRetryPrimary() bool {
	last := time.Unix(0, g.lastCheck.Load())
	if time.Since(last) < time.Minute {
		return false
	}
	g.lastCheck.Store(time.Now().UnixNano())
	return true
}
