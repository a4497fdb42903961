package goroutine

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync"

	"github.com/samber/lo"
)

// DefaultMaxGoroutine is used when NewManager receives a non-positive limit.
const DefaultMaxGoroutine int = 100

// Manager runs named tasks with a concurrency limit and stops them as a group.
// Finished tasks are dropped as they end; their errors are kept for Stop.
type Manager struct {
	mu     sync.Mutex
	tasks  []*Task
	errs   []error
	sema   chan struct{}
	closed bool
}

// NewManager creates a new Manager with the provided maximum concurrency.
func NewManager(maxGoroutine int) *Manager {
	if maxGoroutine < 1 {
		maxGoroutine = runtime.NumCPU() * DefaultMaxGoroutine
	}

	return &Manager{
		sema: make(chan struct{}, maxGoroutine),
	}
}

// Go starts f as a task if capacity is available.
//
// It returns nil without running f when the manager is stopped or already at
// its concurrency limit.
func (m *Manager) Go(ctx context.Context, name string, f func(ctx context.Context) error) *Task {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		slog.WarnContext(ctx, "goroutine manager is closed, skipping new goroutine", "task", name)
		return nil
	}

	select {
	case m.sema <- struct{}{}:
	default:
		slog.WarnContext(ctx, "maximum goroutine limit reached, failed to start new goroutine", "task", name)
		return nil
	}

	t := Start(ctx, name, func(ctx context.Context) error {
		defer func() { <-m.sema }()
		return f(ctx)
	})
	m.tasks = append(m.tasks, t)
	go m.reap(t)

	return t
}

// reap drops t once it returns. A task already taken by Stop is left alone so
// its error is reported once.
func (m *Manager) reap(t *Task) {
	<-t.Done()
	err := t.Wait(context.Background())

	m.mu.Lock()
	defer m.mu.Unlock()

	if !lo.Contains(m.tasks, t) {
		return
	}
	m.tasks = lo.Without(m.tasks, t)
	if err != nil {
		m.errs = append(m.errs, err)
	}
}

// Running returns the number of tasks that have not returned yet.
func (m *Manager) Running() int {
	if m == nil {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}

// Stop cancels every task, waits for them to return and joins their errors.
// No new task is accepted afterwards.
func (m *Manager) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.mu.Lock()
	m.closed = true
	tasks := m.tasks
	m.tasks = nil
	errs := m.errs
	m.errs = nil
	m.mu.Unlock()

	for _, t := range tasks {
		t.Stop()
	}

	for _, t := range tasks {
		if err := t.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
