package messaging

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// inflight counts sends whose delivery handler has not run yet.
type inflight struct {
	mu    sync.Mutex
	count int
	zero  chan struct{}
}

func newInflight() *inflight {
	zero := make(chan struct{})
	close(zero)
	return &inflight{zero: zero}
}

func (f *inflight) add() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.count == 0 {
		f.zero = make(chan struct{})
	}
	f.count++
}

func (f *inflight) done() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.count == 0 {
		return
	}
	f.count--
	if f.count == 0 {
		close(f.zero)
	}
}

func (f *inflight) pending() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

// wait blocks until the count drops to zero or ctx ends. It wakes up every
// cycle to log what is still pending.
func (f *inflight) wait(ctx context.Context, cycle time.Duration) error {
	f.mu.Lock()
	zero := f.zero
	f.mu.Unlock()

	ticker := time.NewTicker(cycle)
	defer ticker.Stop()

	for {
		select {
		case <-zero:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			slog.DebugContext(ctx, "waiting for in-flight sends", "pending", f.pending())
		}
	}
}
