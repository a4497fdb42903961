package usecase

import (
	"context"
	"iter"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/shandysiswandi/gostream/internal/pkg/clock"
	"github.com/shandysiswandi/gostream/internal/pkg/config"
	"github.com/shandysiswandi/gostream/internal/pkg/instrument"
	"github.com/shandysiswandi/gostream/internal/pkg/messaging"
	"github.com/shandysiswandi/gostream/internal/pkg/uid"
	"github.com/shandysiswandi/gostream/internal/pkg/validator"
	"github.com/shandysiswandi/gostream/internal/stream/entity"
)

const (
	defaultRoundtripCount   = 10
	defaultSampleWidth      = 784
	defaultDrainTimeout     = 5 * time.Second
	defaultReceiveTimeout   = 2 * time.Second
	defaultStreamInterval   = 100 * time.Millisecond
	defaultBootstrapBase    = 200 * time.Millisecond
	defaultBootstrapCap     = 5 * time.Second
	defaultBootstrapRetries = 10
)

type sender interface {
	System() string
	Send(ctx context.Context, topic string, msg messaging.Message, handler messaging.DeliveryHandler) error
	Flush(ctx context.Context) error
	CreateTopic(ctx context.Context, topics ...string) (iter.Seq2[string, error], error)
	ListTopics(ctx context.Context) ([]string, error)
}

type receiver interface {
	System() string
	Subscribe(ctx context.Context, topics ...string) error
	Receive(ctx context.Context, timeout time.Duration, handler messaging.ReceiveHandler) error
	Start(ctx context.Context, timeout time.Duration, handler messaging.ReceiveHandler) error
	Close() error
}

type Usecase struct {
	sender    sender
	receiver  receiver
	topics    entity.Topics
	cfg       config.Config
	clock     clock.Clocker
	keygen    uid.StringID
	validator validator.Validator
	ins       instrument.Instrumentation
	sample    func(width int) entity.Sample
	reading   func() entity.Reading
}

type Dependency struct {
	Sender     sender
	Receiver   receiver
	Topics     entity.Topics
	Config     config.Config
	Clock      clock.Clocker
	KeyGen     uid.StringID
	Validator  validator.Validator
	Instrument instrument.Instrumentation
}

func New(dep Dependency) *Usecase {
	ins := dep.Instrument
	if ins == nil {
		ins = instrument.NewNoop()
	}
	clk := dep.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Usecase{
		sender:    dep.Sender,
		receiver:  dep.Receiver,
		topics:    dep.Topics,
		cfg:       dep.Config,
		clock:     clk,
		keygen:    dep.KeyGen,
		validator: dep.Validator,
		ins:       ins,
		sample:    randomSample,
		reading:   randomReading,
	}
}

func (s *Usecase) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return s.ins.Tracer("stream.usecase").Start(ctx, name)
}

func (s *Usecase) intOr(key string, def int) int {
	if v := s.cfg.GetInt(key); v > 0 {
		return v
	}
	return def
}

func (s *Usecase) durationOr(key string, def time.Duration) time.Duration {
	if v := s.cfg.GetMillisecond(key); v > 0 {
		return v
	}
	return def
}

func (s *Usecase) receiveTimeout() time.Duration {
	return s.durationOr("app.receive.timeout_ms", defaultReceiveTimeout)
}
