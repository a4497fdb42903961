package goroutine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/shandysiswandi/gostream/internal/pkg/stacktrace"
)

// Task is a handle to a goroutine that owns a cancellation token and can be
// joined deterministically.
type Task struct {
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// Start runs f on a new goroutine. The context passed to f is cancelled by
// Stop or when the parent ctx ends.
func Start(ctx context.Context, name string, f func(ctx context.Context) error) *Task {
	tctx, cancel := context.WithCancel(ctx)
	t := &Task{
		name:   name,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(t.done)
		defer cancel()
		t.err = t.run(tctx, f)
	}()

	return t
}

func (t *Task) run(ctx context.Context, f func(ctx context.Context) error) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			stack := debug.Stack()
			paths := stacktrace.InternalPaths(stack)
			if len(paths) == 0 {
				slog.ErrorContext(ctx, "panic occurred in goroutine", "task", t.name, "because", rvr, "stack", string(stack))
			} else {
				slog.ErrorContext(ctx, "panic occurred in goroutine", "task", t.name, "because", rvr, "stack", paths)
			}
			err = fmt.Errorf("goroutine: task %s panicked: %v", t.name, rvr)
		}
	}()

	return f(ctx)
}

// Name returns the task name.
func (t *Task) Name() string {
	return t.name
}

// Stop signals the task to stop. It does not wait.
func (t *Task) Stop() {
	t.cancel()
}

// Done is closed once the task function has returned.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task returns or ctx ends. A task that ended because
// its context was cancelled reports nil.
func (t *Task) Wait(ctx context.Context) error {
	select {
	case <-t.done:
		if errors.Is(t.err, context.Canceled) {
			return nil
		}
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
