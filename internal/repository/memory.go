package repository

import (
	"context"
	"sync"
	"time"
)

// MemoryGuard is an in-process admission guard: one lock slot per key, so
// read-decide-write sequences for the same (space, date) or (client, week)
// key serialize while unrelated keys proceed in parallel.
type MemoryGuard struct {
	mu      sync.Mutex
	slots   map[string]chan struct{}
	timeout time.Duration
}

func NewMemoryGuard(timeout time.Duration) *MemoryGuard {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &MemoryGuard{
		slots:   make(map[string]chan struct{}),
		timeout: timeout,
	}
}

func (g *MemoryGuard) slot(key string) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.slots[key]
	if !ok {
		ch = make(chan struct{}, 1)
		g.slots[key] = ch
	}
	return ch
}

// Acquire takes the key's slot, waiting up to the guard timeout. Failure to
// acquire surfaces as ErrGuardBusy.
func (g *MemoryGuard) Acquire(ctx context.Context, key string) (func(), error) {
	ch := g.slot(key)

	timer := time.NewTimer(g.timeout)
	defer timer.Stop()

	select {
	case ch <- struct{}{}:
		var once sync.Once
		return func() { once.Do(func() { <-ch }) }, nil
	case <-timer.C:
		return nil, ErrGuardBusy
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
