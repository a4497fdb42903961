package messaging

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/shandysiswandi/gostream/internal/pkg/goerror"
	"github.com/shandysiswandi/gostream/internal/pkg/instrument"
)

// DeliveryHandler receives the normalized outcome of one send. messageID is
// the record key on Kafka and the server assigned id on Pub/Sub.
type DeliveryHandler func(ctx context.Context, messageID string, err error)

// ReceiveHandler receives the normalized outcome of one inbound message. When
// err is non-nil msg is the zero Message.
type ReceiveHandler func(ctx context.Context, msg Message, err error)

// Delivery is a backend-tagged send completion built by an adapter.
type Delivery interface {
	deliveryTopic() string
	deliveryKey() string
}

// KafkaDelivery is built by the Kafka writer completion for each record.
type KafkaDelivery struct {
	Record kafka.Message
	Err    error
}

func (d KafkaDelivery) deliveryTopic() string { return d.Record.Topic }
func (d KafkaDelivery) deliveryKey() string   { return string(d.Record.Key) }

// PublishFuture resolves to the server assigned message id.
// *pubsub.PublishResult satisfies it.
type PublishFuture interface {
	Get(ctx context.Context) (string, error)
}

// PubSubDelivery wraps the future returned by a Pub/Sub publish.
type PubSubDelivery struct {
	Topic  string
	Key    string
	Result PublishFuture
}

func (d PubSubDelivery) deliveryTopic() string { return d.Topic }
func (d PubSubDelivery) deliveryKey() string   { return d.Key }

// Inbound is a backend-tagged received message built by an adapter.
type Inbound interface {
	inboundTopic() string
}

// KafkaInbound is one fetch result. Err is set when the fetch itself failed.
type KafkaInbound struct {
	Record kafka.Message
	Err    error
}

func (in KafkaInbound) inboundTopic() string { return in.Record.Topic }

// PubSubInbound is one message pulled or pushed from a subscription.
type PubSubInbound struct {
	ID    string
	Topic string
	Data  []byte
	Ack   func()
}

func (in PubSubInbound) inboundTopic() string { return in.Topic }

// NormalizeDelivery turns a backend completion into (messageID, err).
func NormalizeDelivery(ctx context.Context, d Delivery) (string, error) {
	switch d := d.(type) {
	case KafkaDelivery:
		id := string(d.Record.Key)
		if d.Err != nil {
			return id, goerror.NewTransport(d.Err, "pkgmessage: kafka delivery")
		}
		return id, nil
	case PubSubDelivery:
		if d.Result == nil {
			return "", fmt.Errorf("%w: pubsub delivery without result", ErrUnsupported)
		}
		id, err := d.Result.Get(ctx)
		if err != nil {
			return "", goerror.NewTransport(err, "pkgmessage: pubsub delivery")
		}
		return id, nil
	default:
		return "", fmt.Errorf("%w: delivery %T", ErrUnsupported, d)
	}
}

// NormalizeReceive turns a backend inbound envelope into (Message, err).
//
// A failed Kafka fetch is returned as is without decoding. A Pub/Sub message
// is acked whether or not it decodes, since the broker offers no local error
// channel and would otherwise redeliver a malformed payload forever.
func NormalizeReceive(_ context.Context, in Inbound) (Message, error) {
	switch in := in.(type) {
	case KafkaInbound:
		if in.Err != nil {
			return Message{}, goerror.NewTransport(in.Err, "pkgmessage: kafka receive")
		}
		return DecodeKafka(in.Record)
	case PubSubInbound:
		msg, err := DecodePubSub(in.Data)
		if in.Ack != nil {
			in.Ack()
		}
		if err != nil {
			return Message{}, fmt.Errorf("%w (message id %s)", err, in.ID)
		}
		return msg, nil
	default:
		return Message{}, fmt.Errorf("%w: inbound %T", ErrUnsupported, in)
	}
}

// Normalizer binds handlers to adapter callbacks. It holds no state and is
// safe for concurrent use.
type Normalizer struct{}

// WrapDelivery returns the callback an adapter invokes once per send.
func (Normalizer) WrapDelivery(h DeliveryHandler) func(context.Context, Delivery) {
	return func(ctx context.Context, d Delivery) {
		ctx = WithTopic(ctx, d.deliveryTopic())
		ctx = instrument.SetCorrelationID(ctx, d.deliveryKey())

		id, err := NormalizeDelivery(ctx, d)
		guardHandler(ctx, "delivery", d.deliveryKey(), func() { h(ctx, id, err) })
	}
}

// WrapReceive returns the callback an adapter invokes once per inbound message.
func (Normalizer) WrapReceive(h ReceiveHandler) func(context.Context, Inbound) {
	return func(ctx context.Context, in Inbound) {
		ctx = WithTopic(ctx, in.inboundTopic())

		msg, err := NormalizeReceive(ctx, in)
		if err == nil {
			ctx = instrument.SetCorrelationID(ctx, msg.Key())
		}
		guardHandler(ctx, "receive", msg.Key(), func() { h(ctx, msg, err) })
	}
}

type topicKey struct{}

// WithTopic returns a copy of ctx carrying the topic a handler runs for.
func WithTopic(ctx context.Context, topic string) context.Context {
	if topic == "" {
		return ctx
	}
	return context.WithValue(ctx, topicKey{}, topic)
}

// TopicFromContext returns the topic set by the normalizer, or "".
func TopicFromContext(ctx context.Context) string {
	topic, _ := ctx.Value(topicKey{}).(string)
	return topic
}
