package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/shandysiswandi/gostream/internal/pkg/messaging"
)

// SendStream bootstraps topics and then sends one reading to topic_in every
// app.stream.interval_ms, flushing after each, until ctx ends. All readings
// share one key.
func (s *Usecase) SendStream(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "SendStream")
	defer span.End()

	if err := s.Bootstrap(ctx); err != nil {
		return err
	}

	topic := s.topics.In()
	key := s.keygen.Generate()

	ticker := time.NewTicker(s.durationOr("app.stream.interval_ms", defaultStreamInterval))
	defer ticker.Stop()

	slog.InfoContext(ctx, "streaming", "system", s.sender.System(), "topic", topic, "key", key)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		value, err := json.Marshal(s.reading())
		if err != nil {
			return err
		}

		if err := s.sender.Send(ctx, topic, messaging.NewMessage(key, string(value)), s.OnDelivered); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.ErrorContext(ctx, "failed to send reading", "system", s.sender.System(), "topic", topic, "error", err)
			continue
		}

		if err := s.sender.Flush(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "failed to flush reading", "system", s.sender.System(), "topic", topic, "error", err)
		}
	}
}

// ReceiveStream subscribes to topic_in and receives on the calling goroutine
// until ctx ends.
func (s *Usecase) ReceiveStream(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "ReceiveStream")
	defer span.End()

	topic := s.topics.In()

	slog.InfoContext(ctx, "subscribing", "system", s.receiver.System(), "topic", topic)
	if err := s.receiver.Subscribe(ctx, topic); err != nil {
		return err
	}

	slog.InfoContext(ctx, "listening", "system", s.receiver.System(), "topic", topic)
	return s.receiver.Receive(ctx, s.receiveTimeout(), s.OnReceived)
}
