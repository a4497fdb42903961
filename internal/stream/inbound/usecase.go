package inbound

import (
	"context"

	"github.com/shandysiswandi/gostream/internal/stream/usecase"
)

type ucJob interface {
	Roundtrip(ctx context.Context) (usecase.RoundtripOutput, error)
	SendStream(ctx context.Context) error
	ReceiveStream(ctx context.Context) error
}

type uc interface {
	Publish(ctx context.Context, in usecase.PublishInput) (*usecase.PublishOutput, error)
	ListTopics(ctx context.Context) ([]string, error)
	CreateTopics(ctx context.Context, in usecase.CreateTopicsInput) ([]usecase.TopicResult, error)
}
