package messaging

import (
	"context"
	"fmt"
	"strings"

	"github.com/shandysiswandi/gostream/internal/pkg/clock"
)

const (
	// DriverKafka selects the Kafka backend.
	DriverKafka = "kafka"
	// DriverPubSub selects the Google Pub/Sub backend.
	DriverPubSub = "pubsub"
)

// FactoryOptions groups config for supported messaging backends. Only the
// part matching the driver is read.
type FactoryOptions struct {
	KafkaSender    KafkaSenderConfig
	KafkaReceiver  KafkaReceiverConfig
	PubSubSender   PubSubSenderConfig
	PubSubReceiver PubSubReceiverConfig

	// Clock stamps Kafka records. Nil uses the system clock.
	Clock clock.Clocker
}

// NewSenderFromDriver constructs a Sender bound to one backend for its whole
// lifetime.
func NewSenderFromDriver(ctx context.Context, driver string, opts FactoryOptions, sopts ...SenderOption) (*Sender, error) {
	var (
		adapter SenderAdapter
		err     error
	)

	switch strings.TrimSpace(driver) {
	case DriverKafka:
		adapter, err = NewKafkaSender(opts.KafkaSender, opts.Clock)
	case DriverPubSub:
		adapter, err = NewPubSubSender(ctx, opts.PubSubSender)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, err
	}

	return NewSender(adapter, sopts...), nil
}

// NewReceiverFromDriver constructs a Receiver bound to one backend for its
// whole lifetime.
func NewReceiverFromDriver(ctx context.Context, driver string, opts FactoryOptions, ropts ...ReceiverOption) (*Receiver, error) {
	var (
		adapter ReceiverAdapter
		err     error
	)

	switch strings.TrimSpace(driver) {
	case DriverKafka:
		adapter, err = NewKafkaReceiver(opts.KafkaReceiver)
	case DriverPubSub:
		adapter, err = NewPubSubReceiver(ctx, opts.PubSubReceiver)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, driver)
	}
	if err != nil {
		return nil, err
	}

	return NewReceiver(adapter, ropts...), nil
}
