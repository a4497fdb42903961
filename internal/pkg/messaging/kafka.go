package messaging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/segmentio/kafka-go"
	"github.com/sethvargo/go-retry"

	"github.com/shandysiswandi/gostream/internal/pkg/clock"
	"github.com/shandysiswandi/gostream/internal/pkg/goerror"
)

const systemKafka = "kafka"

var (
	// ErrKafkaBrokersRequired is returned when no Kafka brokers are configured.
	ErrKafkaBrokersRequired = goerror.New(goerror.KindConfig, "pkgmessage: kafka brokers are required")
	// ErrKafkaGroupRequired is returned when the receiver has no consumer group.
	ErrKafkaGroupRequired = goerror.New(goerror.KindConfig, "pkgmessage: kafka consumer group is required")
)

// KafkaSenderConfig is decoded from the kafka sender.json document.
type KafkaSenderConfig struct {
	Brokers                []string `mapstructure:"brokers" validate:"required,min=1,dive,required,broker"`
	ClientID               string   `mapstructure:"client_id"`
	Acks                   string   `mapstructure:"acks" validate:"omitempty,oneof=none one all"`
	BatchTimeoutMs         int      `mapstructure:"batch_timeout_ms" validate:"gte=0"`
	BatchSize              int      `mapstructure:"batch_size" validate:"gte=0"`
	AllowAutoTopicCreation bool     `mapstructure:"allow_auto_topic_creation"`
	MetadataTimeoutMs      int      `mapstructure:"metadata_timeout_ms" validate:"gte=0"`
}

// KafkaAdminConfig is decoded from the kafka admin.json document. Topic
// administration needs it because it goes through a separate client.
type KafkaAdminConfig struct {
	Brokers           []string `mapstructure:"brokers" validate:"required,min=1,dive,required,broker"`
	Partitions        int      `mapstructure:"partitions" validate:"gte=0"`
	ReplicationFactor int      `mapstructure:"replication_factor" validate:"gte=0"`
	TimeoutMs         int      `mapstructure:"timeout_ms" validate:"gte=0"`
}

// KafkaReceiverConfig is decoded from the kafka receiver.json document.
type KafkaReceiverConfig struct {
	Brokers          []string `mapstructure:"brokers" validate:"required,min=1,dive,required,broker"`
	GroupID          string   `mapstructure:"group_id" validate:"required"`
	StartOffset      string   `mapstructure:"start_offset" validate:"omitempty,oneof=earliest latest"`
	MinBytes         int      `mapstructure:"min_bytes" validate:"gte=0"`
	MaxBytes         int      `mapstructure:"max_bytes" validate:"gte=0"`
	MaxWaitMs        int      `mapstructure:"max_wait_ms" validate:"gte=0"`
	CommitIntervalMs int      `mapstructure:"commit_interval_ms" validate:"gte=0"`
}

type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type kafkaCluster interface {
	Metadata(ctx context.Context, req *kafka.MetadataRequest) (*kafka.MetadataResponse, error)
	CreateTopics(ctx context.Context, req *kafka.CreateTopicsRequest) (*kafka.CreateTopicsResponse, error)
}

type kafkaReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// kafkaPending travels with a record through the async writer so its
// completion can reach the right callback.
type kafkaPending struct {
	ctx  context.Context
	done func(context.Context, Delivery)
}

// KafkaSender is the Kafka send adapter. Records go through an async
// kafka.Writer whose Completion hook drives the delivery callbacks.
type KafkaSender struct {
	clock     clock.Clocker
	transport *kafka.Transport
	writer    kafkaWriter
	cluster   kafkaCluster

	newCluster func(brokers []string, timeout time.Duration) kafkaCluster

	mu           sync.Mutex
	admin        *KafkaAdminConfig
	adminCluster kafkaCluster
}

// NewKafkaSender builds a Kafka send adapter. A nil clk uses the system clock.
func NewKafkaSender(cfg KafkaSenderConfig, clk clock.Clocker) (*KafkaSender, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrKafkaBrokersRequired
	}
	if clk == nil {
		clk = clock.New()
	}

	transport := &kafka.Transport{ClientID: cfg.ClientID}
	k := &KafkaSender{clock: clk, transport: transport}
	k.newCluster = func(brokers []string, timeout time.Duration) kafkaCluster {
		return &kafka.Client{Addr: kafka.TCP(brokers...), Timeout: timeout, Transport: transport}
	}

	batchTimeout := 10 * time.Millisecond
	if cfg.BatchTimeoutMs > 0 {
		batchTimeout = time.Duration(cfg.BatchTimeoutMs) * time.Millisecond
	}

	k.writer = &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchTimeout:           batchTimeout,
		BatchSize:              cfg.BatchSize,
		RequiredAcks:           kafkaAcks(cfg.Acks),
		Async:                  true,
		AllowAutoTopicCreation: cfg.AllowAutoTopicCreation,
		Completion:             k.complete,
		Transport:              transport,
	}
	k.cluster = k.newCluster(cfg.Brokers, time.Duration(cfg.MetadataTimeoutMs)*time.Millisecond)

	return k, nil
}

func kafkaAcks(acks string) kafka.RequiredAcks {
	switch strings.ToLower(acks) {
	case "none":
		return kafka.RequireNone
	case "one":
		return kafka.RequireOne
	default:
		return kafka.RequireAll
	}
}

// System implements the backend name lookup used for telemetry.
func (k *KafkaSender) System() string { return systemKafka }

// AttachAdmin enables CreateTopic.
func (k *KafkaSender) AttachAdmin(cfg KafkaAdminConfig) error {
	if len(cfg.Brokers) == 0 {
		return ErrKafkaBrokersRequired
	}
	if cfg.Partitions <= 0 {
		cfg.Partitions = 1
	}
	if cfg.ReplicationFactor <= 0 {
		cfg.ReplicationFactor = 1
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.admin = &cfg
	k.adminCluster = k.newCluster(cfg.Brokers, time.Duration(cfg.TimeoutMs)*time.Millisecond)
	return nil
}

// Publish queues msg on the async writer. Only validation failures are
// returned here. Everything else reaches done through the writer completion.
func (k *KafkaSender) Publish(ctx context.Context, topic string, msg Message, done func(context.Context, Delivery)) error {
	rec := kafka.Message{
		Topic:      topic,
		Key:        []byte(msg.Key()),
		Value:      []byte(msg.Value()),
		Time:       k.clock.Now(),
		WriterData: kafkaPending{ctx: context.WithoutCancel(ctx), done: done},
	}

	if err := k.writer.WriteMessages(ctx, rec); err != nil {
		return goerror.NewTransport(err, "pkgmessage: kafka publish")
	}
	return nil
}

func (k *KafkaSender) complete(msgs []kafka.Message, err error) {
	for _, m := range msgs {
		p, ok := m.WriterData.(kafkaPending)
		if !ok || p.done == nil {
			continue
		}
		p.done(p.ctx, KafkaDelivery{Record: m, Err: err})
	}
}

// Flush is a no-op: the writer ships batches on its own every batch timeout,
// and the Sender waits for their completions.
func (k *KafkaSender) Flush(context.Context) error {
	return nil
}

// ListTopics returns the non internal topics from the cluster metadata.
func (k *KafkaSender) ListTopics(ctx context.Context) ([]string, error) {
	res, err := k.cluster.Metadata(ctx, &kafka.MetadataRequest{})
	if err != nil {
		return nil, goerror.NewTransport(err, "pkgmessage: kafka list topics")
	}

	return lo.FilterMap(res.Topics, func(t kafka.Topic, _ int) (string, bool) {
		return t.Name, !t.Internal && t.Error == nil
	}), nil
}

// CreateTopic sends one CreateTopics request for all topics and yields each
// result. Without an attached admin config it fails with
// ErrAdminConfigRequired before attempting anything.
func (k *KafkaSender) CreateTopic(ctx context.Context, topics ...string) (iter.Seq2[string, error], error) {
	k.mu.Lock()
	admin, cluster := k.admin, k.adminCluster
	k.mu.Unlock()

	if admin == nil {
		return nil, ErrAdminConfigRequired
	}

	topics = lo.Uniq(topics)
	return func(yield func(string, error) bool) {
		if len(topics) == 0 {
			return
		}

		res, err := cluster.CreateTopics(ctx, &kafka.CreateTopicsRequest{
			Topics: lo.Map(topics, func(t string, _ int) kafka.TopicConfig {
				return kafka.TopicConfig{
					Topic:             t,
					NumPartitions:     admin.Partitions,
					ReplicationFactor: admin.ReplicationFactor,
				}
			}),
		})

		for _, topic := range topics {
			terr := goerror.NewTransport(err, "pkgmessage: kafka create topic")
			if err == nil {
				terr = kafkaTopicError(res.Errors[topic])
			}
			if !yield(topic, terr) {
				return
			}
		}
	}, nil
}

func kafkaTopicError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, kafka.TopicAlreadyExists):
		return fmt.Errorf("%w: %w", ErrTopicExists, err)
	default:
		return goerror.NewTransport(err, "pkgmessage: kafka create topic")
	}
}

// Close waits for pending completions and closes broker connections.
func (k *KafkaSender) Close() error {
	err := k.writer.Close()
	if k.transport != nil {
		k.transport.CloseIdleConnections()
	}
	return err
}

// KafkaReceiver is the Kafka receive adapter built on a consumer group reader.
type KafkaReceiver struct {
	cfg       KafkaReceiverConfig
	newReader func(cfg kafka.ReaderConfig) kafkaReader
	newBackoff func() retry.Backoff

	mu     sync.Mutex
	reader kafkaReader
	topics []string
}

// NewKafkaReceiver builds a Kafka receive adapter. No connection is made
// before Subscribe.
func NewKafkaReceiver(cfg KafkaReceiverConfig) (*KafkaReceiver, error) {
	if len(cfg.Brokers) == 0 {
		return nil, ErrKafkaBrokersRequired
	}
	if strings.TrimSpace(cfg.GroupID) == "" {
		return nil, ErrKafkaGroupRequired
	}

	return &KafkaReceiver{
		cfg: cfg,
		newReader: func(rc kafka.ReaderConfig) kafkaReader {
			return kafka.NewReader(rc)
		},
		newBackoff: func() retry.Backoff {
			return retry.WithCappedDuration(5*time.Second, retry.NewFibonacci(200*time.Millisecond))
		},
	}, nil
}

// System implements the backend name lookup used for telemetry.
func (k *KafkaReceiver) System() string { return systemKafka }

func (k *KafkaReceiver) readerConfig(topics []string) kafka.ReaderConfig {
	rc := kafka.ReaderConfig{
		Brokers:        k.cfg.Brokers,
		GroupID:        k.cfg.GroupID,
		MinBytes:       k.cfg.MinBytes,
		MaxBytes:       k.cfg.MaxBytes,
		MaxWait:        time.Duration(k.cfg.MaxWaitMs) * time.Millisecond,
		CommitInterval: time.Duration(k.cfg.CommitIntervalMs) * time.Millisecond,
		StartOffset:    kafka.LastOffset,
	}
	if k.cfg.StartOffset == "earliest" {
		rc.StartOffset = kafka.FirstOffset
	}
	if len(topics) == 1 {
		rc.Topic = topics[0]
	} else {
		rc.GroupTopics = topics
	}
	return rc
}

// Subscribe replaces the current reader with one bound to topics.
func (k *KafkaReceiver) Subscribe(_ context.Context, topics ...string) error {
	topics = lo.Uniq(lo.Compact(topics))
	if len(topics) == 0 {
		return goerror.New(goerror.KindConfig, "pkgmessage: kafka subscribe needs a topic")
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	var err error
	if k.reader != nil {
		err = k.reader.Close()
	}
	k.reader = k.newReader(k.readerConfig(topics))
	k.topics = topics
	return err
}

// Receive polls until ctx ends. A positive timeout bounds each poll, and a
// poll that times out is an empty poll, not a stop. Fetch errors are handed
// to deliver and retried with a capped Fibonacci backoff. Each record is
// committed after deliver returns.
func (k *KafkaReceiver) Receive(ctx context.Context, timeout time.Duration, deliver func(context.Context, Inbound)) error {
	k.mu.Lock()
	reader, topics := k.reader, k.topics
	k.mu.Unlock()

	if reader == nil {
		return fmt.Errorf("%w: kafka receiver is not subscribed", ErrInvalidState)
	}

	var backoff retry.Backoff
	for {
		if ctx.Err() != nil {
			return nil
		}

		rec, err := k.poll(ctx, reader, timeout)
		switch {
		case err == nil:
		case ctx.Err() != nil, errors.Is(err, io.EOF):
			return nil
		case errors.Is(err, context.DeadlineExceeded):
			continue
		default:
			deliver(ctx, KafkaInbound{Record: kafka.Message{Topic: strings.Join(topics, ",")}, Err: err})
			if backoff == nil {
				backoff = k.newBackoff()
			}
			wait, _ := backoff.Next()
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}

		backoff = nil
		deliver(ctx, KafkaInbound{Record: rec})

		if err := reader.CommitMessages(ctx, rec); err != nil && ctx.Err() == nil {
			slog.WarnContext(ctx, "kafka commit failed", "topic", rec.Topic, "partition", rec.Partition, "offset", rec.Offset, "error", err)
		}
	}
}

func (k *KafkaReceiver) poll(ctx context.Context, reader kafkaReader, timeout time.Duration) (kafka.Message, error) {
	if timeout <= 0 {
		return reader.FetchMessage(ctx)
	}

	pollCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return reader.FetchMessage(pollCtx)
}

// Close closes the reader, leaving the consumer group.
func (k *KafkaReceiver) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.reader == nil {
		return nil
	}
	err := k.reader.Close()
	k.reader = nil
	return err
}
