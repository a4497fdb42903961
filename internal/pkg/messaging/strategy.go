package messaging

import (
	"context"
	"errors"
	"log/slog"
)

// LogDelivery returns the default delivery strategy. It logs every outcome
// with its topic and key. A nil logger uses slog.Default at call time.
func LogDelivery(logger *slog.Logger) DeliveryHandler {
	return func(ctx context.Context, messageID string, err error) {
		l := loggerOrDefault(logger)
		if err != nil {
			l.ErrorContext(ctx, "message delivery failed", "topic", TopicFromContext(ctx), "message_id", messageID, "error", err)
			return
		}
		l.InfoContext(ctx, "message delivered", "topic", TopicFromContext(ctx), "message_id", messageID)
	}
}

// LogReceive returns the default receive strategy. Decode failures are logged
// as warnings and the loop keeps going.
func LogReceive(logger *slog.Logger) ReceiveHandler {
	return func(ctx context.Context, msg Message, err error) {
		l := loggerOrDefault(logger)
		switch {
		case errors.Is(err, ErrDecode):
			l.WarnContext(ctx, "dropping malformed message", "topic", TopicFromContext(ctx), "error", err)
		case err != nil:
			l.ErrorContext(ctx, "message receive failed", "topic", TopicFromContext(ctx), "error", err)
		default:
			l.InfoContext(ctx, "message received", "topic", TopicFromContext(ctx), "key", msg.Key(), "value", msg.Value())
		}
	}
}

func loggerOrDefault(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
