package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/shandysiswandi/gostream/internal/pkg/clock"
	"github.com/shandysiswandi/gostream/internal/pkg/messaging"
)

// RoundtripOutput summarizes one roundtrip run.
type RoundtripOutput struct {
	Topic    string
	Sent     int
	Received int
	Elapsed  time.Duration
}

// Missing returns how many sent messages were not seen by the receiver.
func (o RoundtripOutput) Missing() int {
	return max(0, o.Sent-o.Received)
}

// roundtripTracker counts receipts of the keys a roundtrip sent.
type roundtripTracker struct {
	mu       sync.Mutex
	pending  map[string]int
	expected int
	received int
	sealed   bool
	all      chan struct{}
}

func newRoundtripTracker() *roundtripTracker {
	return &roundtripTracker{
		pending: make(map[string]int),
		all:     make(chan struct{}),
	}
}

func (t *roundtripTracker) expect(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pending[key]++
	t.expected++
}

// seal marks the expected set complete, so a drained set closes all.
func (t *roundtripTracker) seal() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sealed = true
	t.closeIfDrained()
}

func (t *roundtripTracker) observe(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pending[key] == 0 {
		return
	}
	t.pending[key]--
	t.received++
	t.closeIfDrained()
}

func (t *roundtripTracker) closeIfDrained() {
	if !t.sealed || t.received < t.expected {
		return
	}
	select {
	case <-t.all:
	default:
		close(t.all)
	}
}

func (t *roundtripTracker) count() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.received
}

func (t *roundtripTracker) wrap(next messaging.ReceiveHandler) messaging.ReceiveHandler {
	return func(ctx context.Context, msg messaging.Message, err error) {
		next(ctx, msg, err)
		if err == nil {
			t.observe(msg.Key())
		}
	}
}

// Roundtrip bootstraps topics, starts a detached receiver on topic_in, sends
// app.roundtrip.count sample messages to it and flushes. It then waits up to
// app.roundtrip.drain_ms for the messages to come back and closes the
// receiver.
func (s *Usecase) Roundtrip(ctx context.Context) (out RoundtripOutput, err error) {
	ctx, span := s.startSpan(ctx, "Roundtrip")
	defer span.End()

	start := s.clock.Now()
	out.Topic = s.topics.In()

	if err := s.Bootstrap(ctx); err != nil {
		return out, err
	}

	slog.InfoContext(ctx, "subscribing", "system", s.receiver.System(), "topic", out.Topic)
	if err := s.receiver.Subscribe(ctx, out.Topic); err != nil {
		return out, err
	}

	track := newRoundtripTracker()
	if err := s.receiver.Start(ctx, s.receiveTimeout(), track.wrap(s.OnReceived)); err != nil {
		return out, err
	}
	defer func() {
		if cerr := s.receiver.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		out.Received = track.count()
		out.Elapsed = clock.Since(s.clock, start)
	}()

	count := s.intOr("app.roundtrip.count", defaultRoundtripCount)
	width := s.intOr("app.roundtrip.width", defaultSampleWidth)

	slog.InfoContext(ctx, "sending", "system", s.sender.System(), "topic", out.Topic, "count", count)
	for range count {
		payload, err := json.Marshal(s.sample(width))
		if err != nil {
			return out, err
		}

		msg := messaging.NewMessage(s.keygen.Generate(), string(payload))
		track.expect(msg.Key())
		if err := s.sender.Send(ctx, out.Topic, msg, s.OnDelivered); err != nil {
			slog.ErrorContext(ctx, "failed to send", "system", s.sender.System(), "topic", out.Topic, "key", msg.Key(), "error", err)
			return out, err
		}
		out.Sent++
	}
	track.seal()

	if err := s.sender.Flush(ctx); err != nil {
		return out, err
	}

	drain := time.NewTimer(s.durationOr("app.roundtrip.drain_ms", defaultDrainTimeout))
	defer drain.Stop()

	select {
	case <-track.all:
	case <-drain.C:
		slog.WarnContext(ctx, "roundtrip drain timed out", "topic", out.Topic, "sent", out.Sent, "received", track.count())
	case <-ctx.Done():
	}

	return out, nil
}
