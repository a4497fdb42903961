package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/gostream/internal/pkg/messaging"
	"github.com/shandysiswandi/gostream/internal/stream/entity"
)

// OnDelivered logs the outcome of one send.
func (s *Usecase) OnDelivered(ctx context.Context, messageID string, err error) {
	topic := messaging.TopicFromContext(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "delivery failed", "system", s.sender.System(), "topic", topic, "message_id", messageID, "error", err)
		return
	}
	slog.InfoContext(ctx, "delivered", "system", s.sender.System(), "topic", topic, "message_id", messageID)
}

// OnReceived logs one inbound message. Sample payloads are summarized by
// shape instead of being dumped.
func (s *Usecase) OnReceived(ctx context.Context, msg messaging.Message, err error) {
	topic := messaging.TopicFromContext(ctx)
	switch {
	case errors.Is(err, messaging.ErrDecode):
		slog.WarnContext(ctx, "dropping malformed message", "system", s.receiver.System(), "topic", topic, "error", err)
		return
	case err != nil:
		slog.ErrorContext(ctx, "receive failed", "system", s.receiver.System(), "topic", topic, "error", err)
		return
	}

	var sample entity.Sample
	if json.Unmarshal([]byte(msg.Value()), &sample) == nil && len(sample.NDArray) > 0 {
		rows, cols := sample.Shape()
		slog.InfoContext(ctx, "received sample", "system", s.receiver.System(), "topic", topic, "key", msg.Key(), "rows", rows, "cols", cols)
		return
	}

	slog.InfoContext(ctx, "received", "system", s.receiver.System(), "topic", topic, "key", msg.Key(), "value", msg.Value())
}
