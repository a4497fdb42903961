package messaging

import (
	"context"
	"iter"
	"net/http"
	"time"
)

// SenderAdapter is the send side capability every backend implements.
type SenderAdapter interface {
	// Publish hands msg to the backend and returns without waiting for the
	// broker. done must be invoked exactly once per successful Publish call.
	Publish(ctx context.Context, topic string, msg Message, done func(context.Context, Delivery)) error
	// Flush pushes buffered records to the broker.
	Flush(ctx context.Context) error
	// CreateTopic yields one (name, err) pair per topic. The returned error is
	// reserved for failures that prevent any attempt.
	CreateTopic(ctx context.Context, topics ...string) (iter.Seq2[string, error], error)
	// ListTopics returns the short names of the topics the backend knows.
	ListTopics(ctx context.Context) ([]string, error)
	Close() error
}

// ReceiverAdapter is the receive side capability every backend implements.
type ReceiverAdapter interface {
	Subscribe(ctx context.Context, topics ...string) error
	// Receive runs the consume loop in place until ctx ends. It returns nil on
	// a clean stop.
	Receive(ctx context.Context, timeout time.Duration, deliver func(context.Context, Inbound)) error
	Close() error
}

// AdminAttacher is implemented by adapters whose topic administration needs a
// separate privileged configuration.
type AdminAttacher interface {
	AttachAdmin(cfg KafkaAdminConfig) error
}

// PushReceiver is implemented by adapters that accept deliveries over HTTP.
type PushReceiver interface {
	PushHandler() http.Handler
}

// TopicNormalizer is implemented by adapters that accept more than one
// spelling of a topic. NormalizeTopic returns the form ListTopics reports.
type TopicNormalizer interface {
	NormalizeTopic(topic string) string
}

func normalizeTopic(adapter any, topic string) string {
	if n, ok := adapter.(TopicNormalizer); ok {
		return n.NormalizeTopic(topic)
	}
	return topic
}

type systemNamer interface {
	System() string
}

func systemOf(v any) string {
	if s, ok := v.(systemNamer); ok {
		return s.System()
	}
	return "unknown"
}

var (
	_ SenderAdapter   = (*KafkaSender)(nil)
	_ AdminAttacher   = (*KafkaSender)(nil)
	_ ReceiverAdapter = (*KafkaReceiver)(nil)
	_ SenderAdapter   = (*PubSubSender)(nil)
	_ TopicNormalizer = (*PubSubSender)(nil)
	_ ReceiverAdapter = (*PubSubReceiver)(nil)
	_ PushReceiver    = (*PubSubReceiver)(nil)
)
