package usecase

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shandysiswandi/gostream/internal/pkg/messaging"
)

type (
	PublishInput struct {
		Topic string `validate:"required,topic"`
		Key   string `validate:"required,max=256"`
		Value string `validate:"required"`
	}

	PublishOutput struct {
		Topic     string
		MessageID string
	}
)

type delivery struct {
	id  string
	err error
}

// Publish sends one message and waits for its delivery outcome.
func (s *Usecase) Publish(ctx context.Context, in PublishInput) (*PublishOutput, error) {
	ctx, span := s.startSpan(ctx, "Publish")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		slog.WarnContext(ctx, "invalid publish payload", "error", err)
		return nil, err
	}

	result := make(chan delivery, 1)
	err := s.sender.Send(ctx, in.Topic, messaging.NewMessage(in.Key, in.Value), func(ctx context.Context, id string, err error) {
		s.OnDelivered(ctx, id, err)
		result <- delivery{id: id, err: err}
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to send", "system", s.sender.System(), "topic", in.Topic, "error", err)
		return nil, err
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d := <-result:
		if d.err != nil {
			return nil, d.err
		}
		return &PublishOutput{Topic: in.Topic, MessageID: d.id}, nil
	}
}

// ListTopics returns the topics the backend currently knows.
func (s *Usecase) ListTopics(ctx context.Context) ([]string, error) {
	ctx, span := s.startSpan(ctx, "ListTopics")
	defer span.End()

	topics, err := s.sender.ListTopics(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to list topics", "system", s.sender.System(), "error", err)
		return nil, err
	}
	return topics, nil
}

type (
	CreateTopicsInput struct {
		Topics []string `validate:"required,min=1,dive,required,topic"`
	}

	TopicResult struct {
		Name   string
		Status TopicStatus
		Err    error
	}
)

// TopicStatus is the outcome of creating one topic.
type TopicStatus string

const (
	TopicCreated TopicStatus = "created"
	TopicExists  TopicStatus = "exists"
	TopicFailed  TopicStatus = "failed"
)

// CreateTopics creates each topic and reports one result per name. Per-topic
// failures are results, not errors.
func (s *Usecase) CreateTopics(ctx context.Context, in CreateTopicsInput) ([]TopicResult, error) {
	ctx, span := s.startSpan(ctx, "CreateTopics")
	defer span.End()

	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}

	seq, err := s.sender.CreateTopic(ctx, in.Topics...)
	if err != nil {
		slog.ErrorContext(ctx, "failed to create topics", "system", s.sender.System(), "error", err)
		return nil, err
	}

	var out []TopicResult
	for name, err := range seq {
		res := TopicResult{Name: name, Status: TopicCreated}
		switch {
		case errors.Is(err, messaging.ErrTopicExists):
			res.Status = TopicExists
		case err != nil:
			res.Status = TopicFailed
			res.Err = err
			slog.ErrorContext(ctx, "failed to create topic", "system", s.sender.System(), "topic", name, "error", err)
		}
		out = append(out, res)
	}

	return out, nil
}
