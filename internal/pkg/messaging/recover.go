package messaging

import (
	"context"
	"log/slog"
	"runtime/debug"

	"github.com/shandysiswandi/gostream/internal/pkg/stacktrace"
)

// guardHandler runs one handler invocation. A panic is logged with the topic
// and key of the message and swallowed, so the receive loop and the delivery
// poller keep running.
func guardHandler(ctx context.Context, role, key string, fn func()) {
	defer func() {
		rvr := recover()
		if rvr == nil {
			return
		}

		slog.ErrorContext(ctx, "panic in "+role+" handler",
			"topic", TopicFromContext(ctx),
			"key", key,
			"panic", rvr,
			stackAttr(debug.Stack()),
		)
	}()

	fn()
}

func stackAttr(stack []byte) slog.Attr {
	if paths := stacktrace.InternalPaths(stack); len(paths) > 0 {
		return slog.Any("stack", paths)
	}
	return slog.String("stack", string(stack))
}
