package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
	"github.com/sethvargo/go-retry"

	"github.com/shandysiswandi/gostream/internal/pkg/goerror"
	"github.com/shandysiswandi/gostream/internal/pkg/messaging"
)

// ErrTopicsNotReady is returned when bootstrapped topics never show up in the
// backend listing.
var ErrTopicsNotReady = goerror.New(goerror.KindTransport, "stream: topics not ready")

// ErrNoTopics is returned when topics.json binds no topic name.
var ErrNoTopics = goerror.New(goerror.KindConfig, "stream: no topics configured")

// Bootstrap creates every configured topic and waits until the backend lists
// all of them. An existing topic is fine.
func (s *Usecase) Bootstrap(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Bootstrap")
	defer span.End()

	names := s.topics.Names()
	if len(names) == 0 {
		return ErrNoTopics
	}

	results, err := s.sender.CreateTopic(ctx, names...)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create topics", "system", s.sender.System(), "topics", names, "error", err)
		return err
	}
	for name, err := range results {
		switch {
		case err == nil:
			slog.InfoContext(ctx, "topic created", "system", s.sender.System(), "topic", name)
		case errors.Is(err, messaging.ErrTopicExists):
			slog.InfoContext(ctx, "topic already exists", "system", s.sender.System(), "topic", name)
		default:
			slog.ErrorContext(ctx, "failed to create topic", "system", s.sender.System(), "topic", name, "error", err)
		}
	}

	b := retry.NewFibonacci(s.durationOr("app.bootstrap.retry_base_ms", defaultBootstrapBase))
	b = retry.WithCappedDuration(s.durationOr("app.bootstrap.retry_cap_ms", defaultBootstrapCap), b)
	b = retry.WithMaxRetries(uint64(s.intOr("app.bootstrap.max_retries", defaultBootstrapRetries)), b)

	err = retry.Do(ctx, b, func(ctx context.Context) error {
		listed, err := s.sender.ListTopics(ctx)
		if err != nil {
			slog.WarnContext(ctx, "failed to list topics, retrying", "system", s.sender.System(), "error", err)
			return retry.RetryableError(err)
		}

		missing, _ := lo.Difference(names, listed)
		if len(missing) > 0 {
			slog.DebugContext(ctx, "topics not listed yet, retrying", "system", s.sender.System(), "missing", missing)
			return retry.RetryableError(fmt.Errorf("%w: %v", ErrTopicsNotReady, missing))
		}
		return nil
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "topics ready", "system", s.sender.System(), "topics", names)
	return nil
}
