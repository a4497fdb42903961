package messaging

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"github.com/samber/lo"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/shandysiswandi/gostream/internal/pkg/goerror"
	"github.com/shandysiswandi/gostream/internal/pkg/uid"
)

const (
	systemPubSub = "pubsub"

	// PubSubModePull consumes through streaming pull.
	PubSubModePull = "pull"
	// PubSubModePush lets Pub/Sub POST deliveries to the push endpoint.
	PubSubModePush = "push"
)

var (
	// ErrPubSubProjectIDRequired is returned when a ProjectID is required but missing.
	ErrPubSubProjectIDRequired = goerror.New(goerror.KindConfig, "pkgmessage: pubsub project id is required")
	// ErrPubSubSingleTopic is returned when Subscribe gets more or fewer than one topic.
	ErrPubSubSingleTopic = goerror.New(goerror.KindConfig, "pkgmessage: pubsub receiver subscribes to exactly one topic")
	// ErrPubSubPushEndpointRequired is returned in push mode without an endpoint.
	ErrPubSubPushEndpointRequired = goerror.New(goerror.KindConfig, "pkgmessage: pubsub push endpoint is required")
)

// PubSubSenderConfig is decoded from the pubsub sender.json document.
type PubSubSenderConfig struct {
	ProjectID       string `mapstructure:"project_id" validate:"required"`
	CredentialsFile string `mapstructure:"credentials_file"`
	Endpoint        string `mapstructure:"endpoint"`

	// Client provides an existing Pub/Sub client. It is closed with the sender.
	Client *pubsub.Client `mapstructure:"-"`
	// ClientOptions are used when creating a new client.
	ClientOptions []option.ClientOption `mapstructure:"-"`
}

// PubSubReceiverConfig is decoded from the pubsub receiver.json document.
type PubSubReceiverConfig struct {
	ProjectID                 string `mapstructure:"project_id" validate:"required"`
	CredentialsFile           string `mapstructure:"credentials_file"`
	Endpoint                  string `mapstructure:"endpoint"`
	SubscriberIDPrefix        string `mapstructure:"subscriber_id_prefix" validate:"required"`
	Mode                      string `mapstructure:"mode" validate:"omitempty,oneof=pull push"`
	PushEndpoint              string `mapstructure:"push_endpoint" validate:"required_if=Mode push"`
	AckDeadlineSeconds        int    `mapstructure:"ack_deadline_seconds" validate:"omitempty,gte=10,lte=600"`
	DeleteSubscriptionOnClose bool   `mapstructure:"delete_subscription_on_close"`
	MaxOutstandingMessages    int    `mapstructure:"max_outstanding_messages" validate:"gte=0"`
	NumGoroutines             int    `mapstructure:"num_goroutines" validate:"gte=0"`

	Client        *pubsub.Client        `mapstructure:"-"`
	ClientOptions []option.ClientOption `mapstructure:"-"`
	// Suffix generates the random part of subscription names.
	Suffix uid.StringID `mapstructure:"-"`
}

func newPubSubClient(ctx context.Context, client *pubsub.Client, projectID string, opts []option.ClientOption) (*pubsub.Client, error) {
	if client != nil {
		return client, nil
	}
	if strings.TrimSpace(projectID) == "" {
		return nil, ErrPubSubProjectIDRequired
	}

	c, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, goerror.NewTransport(err, "pkgmessage: pubsub new client")
	}
	return c, nil
}

func pubsubTopicName(project, topic string) string {
	if strings.HasPrefix(topic, "projects/") {
		return topic
	}
	return "projects/" + project + "/topics/" + topic
}

// PubSubSender is the Pub/Sub send adapter. Each publish returns a future,
// and a waiter goroutine per future drives the delivery callback.
type PubSubSender struct {
	client *pubsub.Client

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
	closed     bool
}

// NewPubSubSender builds a Pub/Sub send adapter.
func NewPubSubSender(ctx context.Context, cfg PubSubSenderConfig) (*PubSubSender, error) {
	c, err := newPubSubClient(ctx, cfg.Client, cfg.ProjectID, cfg.ClientOptions)
	if err != nil {
		return nil, err
	}

	return &PubSubSender{client: c, publishers: map[string]*pubsub.Publisher{}}, nil
}

// System implements the backend name lookup used for telemetry.
func (p *PubSubSender) System() string { return systemPubSub }

// getPublisher caches one publisher per full topic name, so the short and
// full spelling of a topic share batching.
func (p *PubSubSender) getPublisher(topic string) (*pubsub.Publisher, error) {
	name := pubsubTopicName(p.client.Project(), topic)

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrClosed
	}
	if pub, ok := p.publishers[name]; ok {
		return pub, nil
	}
	pub := p.client.Publisher(name)
	p.publishers[name] = pub
	return pub, nil
}

// Publish encodes msg as JSON and hands it to the topic's publisher.
func (p *PubSubSender) Publish(ctx context.Context, topic string, msg Message, done func(context.Context, Delivery)) error {
	data, err := msg.JSON()
	if err != nil {
		return goerror.NewDecode(err, "pkgmessage: pubsub encode")
	}

	pub, err := p.getPublisher(topic)
	if err != nil {
		return err
	}

	res := pub.Publish(ctx, &pubsub.Message{Data: data})
	go done(context.WithoutCancel(ctx), PubSubDelivery{Topic: topic, Key: msg.Key(), Result: res})

	return nil
}

// Flush sends every buffered message of every publisher.
func (p *PubSubSender) Flush(context.Context) error {
	p.mu.Lock()
	pubs := lo.Values(p.publishers)
	p.mu.Unlock()

	for _, pub := range pubs {
		pub.Flush()
	}
	return nil
}

// NormalizeTopic reduces "projects/<p>/topics/<t>" to "<t>", the form
// ListTopics reports.
func (p *PubSubSender) NormalizeTopic(topic string) string {
	return path.Base(topic)
}

// ListTopics returns the short ids of the project's topics.
func (p *PubSubSender) ListTopics(ctx context.Context) ([]string, error) {
	it := p.client.TopicAdminClient.ListTopics(ctx, &pubsubpb.ListTopicsRequest{
		Project: "projects/" + p.client.Project(),
	})

	var topics []string
	for {
		t, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, goerror.NewTransport(err, "pkgmessage: pubsub list topics")
		}
		topics = append(topics, path.Base(t.GetName()))
	}
	return topics, nil
}

// CreateTopic creates each topic through the publishing client. Nothing is
// created until the sequence is iterated.
func (p *PubSubSender) CreateTopic(ctx context.Context, topics ...string) (iter.Seq2[string, error], error) {
	return func(yield func(string, error) bool) {
		for _, topic := range topics {
			_, err := p.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{
				Name: pubsubTopicName(p.client.Project(), topic),
			})
			if !yield(topic, pubsubCreateError(err)) {
				return
			}
		}
	}, nil
}

func pubsubCreateError(err error) error {
	switch status.Code(err) {
	case codes.OK:
		return nil
	case codes.AlreadyExists:
		return fmt.Errorf("%w: %w", ErrTopicExists, err)
	default:
		return goerror.NewTransport(err, "pkgmessage: pubsub create topic")
	}
}

// Close stops publishers, which sends what is still buffered, and closes
// the client.
func (p *PubSubSender) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	pubs := lo.Values(p.publishers)
	p.publishers = nil
	p.mu.Unlock()

	for _, pub := range pubs {
		pub.Stop()
	}
	return p.client.Close()
}

// PubSubReceiver is the Pub/Sub receive adapter. Subscribe provisions its own
// subscription so concurrent receivers on one topic never share messages.
type PubSubReceiver struct {
	cfg    PubSubReceiverConfig
	client *pubsub.Client
	suffix uid.StringID

	mu           sync.Mutex
	topic        string
	subscription string
	push         func(context.Context, Inbound)
}

// NewPubSubReceiver builds a Pub/Sub receive adapter.
func NewPubSubReceiver(ctx context.Context, cfg PubSubReceiverConfig) (*PubSubReceiver, error) {
	if cfg.Mode == "" {
		cfg.Mode = PubSubModePull
	}
	if cfg.Mode == PubSubModePush && cfg.PushEndpoint == "" {
		return nil, ErrPubSubPushEndpointRequired
	}
	if cfg.SubscriberIDPrefix == "" {
		cfg.SubscriberIDPrefix = "gostream"
	}

	c, err := newPubSubClient(ctx, cfg.Client, cfg.ProjectID, cfg.ClientOptions)
	if err != nil {
		return nil, err
	}

	suffix := cfg.Suffix
	if suffix == nil {
		suffix = uid.NewShortHex(4)
	}

	return &PubSubReceiver{cfg: cfg, client: c, suffix: suffix}, nil
}

// System implements the backend name lookup used for telemetry.
func (p *PubSubReceiver) System() string { return systemPubSub }

// Subscription returns the full name of the provisioned subscription.
func (p *PubSubReceiver) Subscription() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.subscription
}

// Subscribe creates the subscription "<prefix>-<suffix>" on topic, in pull
// or push mode.
func (p *PubSubReceiver) Subscribe(ctx context.Context, topics ...string) error {
	if len(topics) != 1 || topics[0] == "" {
		return ErrPubSubSingleTopic
	}
	topic := topics[0]
	project := p.client.Project()

	sub := &pubsubpb.Subscription{
		Name:  "projects/" + project + "/subscriptions/" + p.cfg.SubscriberIDPrefix + "-" + p.suffix.Generate(),
		Topic: pubsubTopicName(project, topic),
	}
	if p.cfg.AckDeadlineSeconds > 0 {
		sub.AckDeadlineSeconds = int32(p.cfg.AckDeadlineSeconds)
	}
	if p.cfg.Mode == PubSubModePush {
		sub.PushConfig = &pubsubpb.PushConfig{PushEndpoint: p.cfg.PushEndpoint}
	}

	created, err := p.client.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: %s", ErrTopicNotFound, topic)
		}
		return goerror.NewTransport(err, "pkgmessage: pubsub create subscription")
	}

	p.mu.Lock()
	previous := p.subscription
	p.topic = path.Base(topic)
	p.subscription = created.GetName()
	p.mu.Unlock()

	if previous != "" && p.cfg.DeleteSubscriptionOnClose {
		return p.deleteSubscription(ctx, previous)
	}
	return nil
}

// Receive consumes until ctx ends. The streaming pull has no empty poll to
// bound, so timeout is ignored. In push mode deliveries arrive through
// PushHandler while Receive is running.
func (p *PubSubReceiver) Receive(ctx context.Context, _ time.Duration, deliver func(context.Context, Inbound)) error {
	p.mu.Lock()
	topic, subscription := p.topic, p.subscription
	p.mu.Unlock()

	if subscription == "" {
		return fmt.Errorf("%w: pubsub receiver is not subscribed", ErrInvalidState)
	}

	if p.cfg.Mode == PubSubModePush {
		return p.receivePush(ctx, deliver)
	}

	sub := p.client.Subscriber(subscription)
	if p.cfg.NumGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = p.cfg.NumGoroutines
	}
	if p.cfg.MaxOutstandingMessages > 0 {
		sub.ReceiveSettings.MaxOutstandingMessages = p.cfg.MaxOutstandingMessages
	}

	err := sub.Receive(ctx, func(mctx context.Context, m *pubsub.Message) {
		deliver(mctx, PubSubInbound{ID: m.ID, Topic: topic, Data: m.Data, Ack: m.Ack})
	})
	if err != nil && ctx.Err() == nil {
		return goerror.NewTransport(err, "pkgmessage: pubsub receive")
	}
	return nil
}

func (p *PubSubReceiver) receivePush(ctx context.Context, deliver func(context.Context, Inbound)) error {
	p.mu.Lock()
	p.push = deliver
	p.mu.Unlock()

	<-ctx.Done()

	p.mu.Lock()
	p.push = nil
	p.mu.Unlock()
	return nil
}

func (p *PubSubReceiver) deleteSubscription(ctx context.Context, name string) error {
	err := p.client.SubscriptionAdminClient.DeleteSubscription(ctx, &pubsubpb.DeleteSubscriptionRequest{
		Subscription: name,
	})
	if err != nil && status.Code(err) != codes.NotFound {
		return goerror.NewTransport(err, "pkgmessage: pubsub delete subscription")
	}
	return nil
}

// Close removes the provisioned subscription when configured to, then closes
// the client.
func (p *PubSubReceiver) Close() error {
	p.mu.Lock()
	subscription := p.subscription
	p.subscription = ""
	p.push = nil
	p.mu.Unlock()

	var errs []error
	if subscription != "" && p.cfg.DeleteSubscriptionOnClose {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		errs = append(errs, p.deleteSubscription(ctx, subscription))
		cancel()
	}
	errs = append(errs, p.client.Close())

	return errors.Join(errs...)
}
