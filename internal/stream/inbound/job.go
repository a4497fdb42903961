package inbound

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shandysiswandi/gostream/internal/pkg/goerror"
	"github.com/shandysiswandi/gostream/internal/pkg/goroutine"
)

const (
	// ModeServe only serves HTTP: the API and, for Pub/Sub push, the push path.
	ModeServe = "serve"
	// ModeRoundtrip sends a fixed batch to topic_in, receives it back and stops.
	ModeRoundtrip = "roundtrip"
	// ModeSendStream sends to topic_in on an interval until shutdown.
	ModeSendStream = "send-stream"
	// ModeReceiveStream receives from topic_in until shutdown.
	ModeReceiveStream = "receive-stream"
)

var (
	ErrUnknownMode = goerror.New(goerror.KindConfig, "stream: unknown mode")
	ErrJobRejected = goerror.New(goerror.KindState, "stream: job was not started")
)

// RegisterJob starts the job selected by mode on routine. Jobs that finish on
// their own call shutdown so the process can exit.
func RegisterJob(ctx context.Context, mode string, routine *goroutine.Manager, uc ucJob, shutdown context.CancelFunc) error {
	var job func(ctx context.Context) error

	switch mode {
	case "", ModeServe:
		return nil
	case ModeRoundtrip:
		job = func(ctx context.Context) error {
			if shutdown != nil {
				defer shutdown()
			}

			out, err := uc.Roundtrip(ctx)
			if err != nil {
				slog.ErrorContext(ctx, "roundtrip failed", "topic", out.Topic, "sent", out.Sent, "received", out.Received, "error", err)
				return err
			}
			slog.InfoContext(ctx, "roundtrip finished",
				"topic", out.Topic,
				"sent", out.Sent,
				"received", out.Received,
				"missing", out.Missing(),
				"elapsed", out.Elapsed.String(),
			)
			return nil
		}
	case ModeSendStream:
		job = uc.SendStream
	case ModeReceiveStream:
		job = uc.ReceiveStream
	default:
		return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	slog.InfoContext(ctx, "running stream job", "mode", mode)
	if routine.Go(ctx, "stream."+mode, func(ctx context.Context) error {
		err := job(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}) == nil {
		return fmt.Errorf("%w: %s", ErrJobRejected, mode)
	}

	return nil
}
