package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/shandysiswandi/gostream/internal/pkg/goroutine"
	"github.com/shandysiswandi/gostream/internal/pkg/instrument"
)

// State is a Receiver lifecycle state.
type State int32

const (
	StateCreated State = iota
	StateSubscribed
	StateReceiving
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateSubscribed:
		return "subscribed"
	case StateReceiving:
		return "receiving"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ReceiverOption customizes NewReceiver.
type ReceiverOption func(*Receiver)

// WithReceiveHandler replaces the default LogReceive strategy used when
// Receive or Start get a nil handler.
func WithReceiveHandler(h ReceiveHandler) ReceiverOption {
	return func(r *Receiver) {
		if h != nil {
			r.handler = h
		}
	}
}

// WithReceiverInstrumentation records a span and a counter per message.
func WithReceiverInstrumentation(inst instrument.Instrumentation) ReceiverOption {
	return func(r *Receiver) { r.inst = inst }
}

// Receiver consumes messages through exactly one backend adapter.
//
// Its lifecycle is Created, Subscribed, Receiving and finally Closed.
type Receiver struct {
	adapter ReceiverAdapter
	norm    Normalizer
	handler ReceiveHandler
	inst    instrument.Instrumentation
	tel     *telemetry

	state *atomic.Int32

	mu   sync.Mutex
	task *goroutine.Task
}

// NewReceiver wraps adapter. The adapter is owned by the Receiver from now on.
func NewReceiver(adapter ReceiverAdapter, opts ...ReceiverOption) *Receiver {
	r := &Receiver{
		adapter: adapter,
		handler: LogReceive(nil),
		state:   atomic.NewInt32(int32(StateCreated)),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.tel = newTelemetry(r.inst, systemOf(adapter))

	return r
}

// State returns the current lifecycle state.
func (r *Receiver) State() State {
	return State(r.state.Load())
}

// System names the backend, "kafka" or "pubsub".
func (r *Receiver) System() string {
	return systemOf(r.adapter)
}

// Subscribe registers interest in topics. It is valid before receiving starts.
func (r *Receiver) Subscribe(ctx context.Context, topics ...string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if st := r.State(); st != StateCreated && st != StateSubscribed {
		return fmt.Errorf("%w: subscribe while %s", ErrInvalidState, st)
	}
	if err := r.adapter.Subscribe(ctx, topics...); err != nil {
		return err
	}

	r.state.CompareAndSwap(int32(StateCreated), int32(StateSubscribed))
	return nil
}

// Receive runs the receive loop on the calling goroutine until ctx ends.
//
// On Kafka timeout bounds each poll and an empty poll just loops again.
// Pub/Sub ignores it and consumes until ctx ends.
func (r *Receiver) Receive(ctx context.Context, timeout time.Duration, handler ReceiveHandler) error {
	if !r.state.CompareAndSwap(int32(StateSubscribed), int32(StateReceiving)) {
		return fmt.Errorf("%w: receive while %s", ErrInvalidState, r.State())
	}
	defer r.state.CompareAndSwap(int32(StateReceiving), int32(StateSubscribed))

	return r.run(ctx, timeout, handler)
}

// Start runs the receive loop on a detached task and returns at once. The
// loop stops when ctx ends or Close is called.
func (r *Receiver) Start(ctx context.Context, timeout time.Duration, handler ReceiveHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.state.CompareAndSwap(int32(StateSubscribed), int32(StateReceiving)) {
		return fmt.Errorf("%w: start while %s", ErrInvalidState, r.State())
	}

	r.task = goroutine.Start(ctx, "messaging.receive."+r.System(), func(ctx context.Context) error {
		defer r.state.CompareAndSwap(int32(StateReceiving), int32(StateSubscribed))

		err := r.run(ctx, timeout, handler)
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.ErrorContext(ctx, "receive loop stopped", "system", r.System(), "error", err)
		}
		return err
	})

	return nil
}

func (r *Receiver) run(ctx context.Context, timeout time.Duration, handler ReceiveHandler) error {
	if handler == nil {
		handler = r.handler
	}
	deliver := r.norm.WrapReceive(r.tel.observeReceive(handler))

	return r.adapter.Receive(ctx, timeout, deliver)
}

// PushHandler returns the HTTP handler for push deliveries, or nil when the
// backend only pulls.
func (r *Receiver) PushHandler() http.Handler {
	if p, ok := r.adapter.(PushReceiver); ok {
		return p.PushHandler()
	}
	return nil
}

// Close stops and joins a detached receive loop, then releases the adapter.
// A blocking Receive must have been stopped through its context first.
// Calling Close again returns nil.
func (r *Receiver) Close() error {
	if State(r.state.Swap(int32(StateClosed))) == StateClosed {
		return nil
	}

	r.mu.Lock()
	task := r.task
	r.task = nil
	r.mu.Unlock()

	var errs []error
	if task != nil {
		task.Stop()
		if err := task.Wait(context.Background()); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.adapter.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
