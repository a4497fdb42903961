package messaging

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/atomic"

	"github.com/shandysiswandi/gostream/internal/pkg/goerror"
	"github.com/shandysiswandi/gostream/internal/pkg/instrument"
)

const (
	defaultFlushCycle   = time.Second
	defaultCloseTimeout = 10 * time.Second
)

// SenderOption customizes NewSender.
type SenderOption func(*Sender)

// WithDeliveryHandler replaces the default LogDelivery strategy used by Send
// calls that pass a nil handler.
func WithDeliveryHandler(h DeliveryHandler) SenderOption {
	return func(s *Sender) {
		if h != nil {
			s.handler = h
		}
	}
}

// WithFlushCycle sets how long one Flush wait cycle lasts before it logs the
// pending count and waits again.
func WithFlushCycle(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.flushCycle = d
		}
	}
}

// WithCloseTimeout bounds the flush performed by Close.
func WithCloseTimeout(d time.Duration) SenderOption {
	return func(s *Sender) {
		if d > 0 {
			s.closeTimeout = d
		}
	}
}

// WithSenderInstrumentation records spans and counters for every send.
func WithSenderInstrumentation(inst instrument.Instrumentation) SenderOption {
	return func(s *Sender) { s.inst = inst }
}

// Sender publishes messages through exactly one backend adapter.
type Sender struct {
	adapter SenderAdapter
	norm    Normalizer
	handler DeliveryHandler
	inst    instrument.Instrumentation
	tel     *telemetry

	flight       *inflight
	flushCycle   time.Duration
	closeTimeout time.Duration
	closed       *atomic.Bool
}

// NewSender wraps adapter. The adapter is owned by the Sender from now on.
func NewSender(adapter SenderAdapter, opts ...SenderOption) *Sender {
	s := &Sender{
		adapter:      adapter,
		handler:      LogDelivery(nil),
		flight:       newInflight(),
		flushCycle:   defaultFlushCycle,
		closeTimeout: defaultCloseTimeout,
		closed:       atomic.NewBool(false),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.tel = newTelemetry(s.inst, systemOf(adapter))

	return s
}

// System names the backend, "kafka" or "pubsub".
func (s *Sender) System() string {
	return systemOf(s.adapter)
}

// Send publishes msg to topic and returns once the backend accepted it.
//
// The topic must appear in the live topic listing, otherwise ErrTopicNotFound
// is returned and nothing is published. Broker failures are not returned here:
// they reach handler, or the Sender's default strategy when handler is nil.
func (s *Sender) Send(ctx context.Context, topic string, msg Message, handler DeliveryHandler) error {
	if s.closed.Load() {
		return ErrClosed
	}

	ctx, span := s.tel.startSend(ctx, topic)
	defer span.End()

	topics, err := s.adapter.ListTopics(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "list topics failed")
		return err
	}
	if !lo.Contains(topics, normalizeTopic(s.adapter, topic)) {
		span.SetStatus(codes.Error, "topic not found")
		return fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
	}

	if handler == nil {
		handler = s.handler
	}
	done := s.norm.WrapDelivery(s.tel.observeDelivery(handler))

	s.flight.add()
	err = s.adapter.Publish(ctx, topic, msg, func(ctx context.Context, d Delivery) {
		defer s.flight.done()
		done(ctx, d)
	})
	if err != nil {
		s.flight.done()
		span.RecordError(err)
		span.SetStatus(codes.Error, "publish failed")
		return err
	}

	return nil
}

// Flush blocks until every send issued before the call has had its handler
// run, or until ctx ends. Callers must not Send while Flush is running.
func (s *Sender) Flush(ctx context.Context) error {
	if err := s.adapter.Flush(ctx); err != nil {
		return err
	}
	return s.flight.wait(ctx, s.flushCycle)
}

// CreateTopic creates each topic and yields one (name, err) pair per attempt.
// A topic that already exists yields ErrTopicExists, which is not fatal.
func (s *Sender) CreateTopic(ctx context.Context, topics ...string) (iter.Seq2[string, error], error) {
	return s.adapter.CreateTopic(ctx, topics...)
}

// ListTopics returns the topic names the backend currently knows.
func (s *Sender) ListTopics(ctx context.Context) ([]string, error) {
	return s.adapter.ListTopics(ctx)
}

// AttachAdmin enables topic creation on backends with a separate admin client.
func (s *Sender) AttachAdmin(cfg KafkaAdminConfig) error {
	a, ok := s.adapter.(AdminAttacher)
	if !ok {
		return fmt.Errorf("%w: %s has no admin config", ErrUnsupported, s.System())
	}
	return a.AttachAdmin(cfg)
}

// Close flushes pending sends within the close timeout and releases the
// adapter. Calling Close again returns nil.
func (s *Sender) Close() error {
	if s.closed.Swap(true) {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.closeTimeout)
	defer cancel()

	var errs []error
	if err := s.Flush(ctx); err != nil {
		errs = append(errs, goerror.NewTransport(err, "pkgmessage: flush on close"))
	}
	if err := s.adapter.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
