//go:build integration

package messaging

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tckafka "github.com/testcontainers/testcontainers-go/modules/kafka"
	"github.com/testcontainers/testcontainers-go/wait"
	"google.golang.org/api/option"
)

const (
	testPubSubEmulatorImage = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
	testPubSubEmulatorPort  = "8085/tcp"
	testKafkaImage          = "confluentinc/confluent-local:7.5.0"
)

func setupPubSubEmulator(t *testing.T, ctx context.Context) string {
	t.Helper()

	req := testcontainers.ContainerRequest{
		Image:        testPubSubEmulatorImage,
		ExposedPorts: []string{testPubSubEmulatorPort},
		Cmd:          []string{"gcloud", "beta", "emulators", "pubsub", "start", "--project=" + testProject, "--host-port=0.0.0.0:8085"},
		WaitingFor:   wait.ForLog("INFO: Server started, listening on").WithStartupTimeout(60 * time.Second),
	}
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, container.Terminate(context.Background())) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, testPubSubEmulatorPort)
	require.NoError(t, err)

	emulatorHost := fmt.Sprintf("%s:%s", host, port.Port())
	t.Setenv("PUBSUB_EMULATOR_HOST", emulatorHost)
	return emulatorHost
}

// roundTrip bootstraps a topic twice, starts a detached receiver on it, sends
// one message and waits for it.
func roundTrip(t *testing.T, ctx context.Context, s *Sender, r *Receiver, topic string) {
	t.Helper()

	for range 2 {
		seq, err := s.CreateTopic(ctx, topic)
		require.NoError(t, err)
		for name, cerr := range seq {
			assert.Equal(t, topic, name)
			if cerr != nil {
				assert.ErrorIs(t, cerr, ErrTopicExists)
			}
		}
	}
	require.Eventually(t, func() bool {
		topics, err := s.ListTopics(ctx)
		return err == nil && lo.Contains(topics, topic)
	}, 30*time.Second, 200*time.Millisecond)

	received := make(chan Message, 1)
	require.NoError(t, r.Subscribe(ctx, topic))
	require.NoError(t, r.Start(ctx, time.Second, func(_ context.Context, msg Message, err error) {
		if err == nil {
			select {
			case received <- msg:
			default:
			}
		}
	}))

	want := NewMessage("a1b2", `{"ndarray": [[1, 2], [3, 4]]}`)
	delivered := make(chan error, 1)
	require.NoError(t, s.Send(ctx, topic, want, func(_ context.Context, _ string, err error) { delivered <- err }))
	require.NoError(t, s.Flush(ctx))
	require.NoError(t, <-delivered)

	select {
	case got := <-received:
		assert.Equal(t, want, got)
	case <-time.After(60 * time.Second):
		t.Fatal("message not received")
	}

	require.NoError(t, r.Close())
	require.NoError(t, s.Close())
}

func TestIntegration_PubSubEmulator(t *testing.T) {
	ctx := context.Background()
	host := setupPubSubEmulator(t, ctx)
	opts := []option.ClientOption{option.WithEndpoint(host), option.WithoutAuthentication()}

	s, err := NewSenderFromDriver(ctx, DriverPubSub, FactoryOptions{
		PubSubSender: PubSubSenderConfig{ProjectID: testProject, ClientOptions: opts},
	})
	require.NoError(t, err)
	r, err := NewReceiverFromDriver(ctx, DriverPubSub, FactoryOptions{
		PubSubReceiver: PubSubReceiverConfig{
			ProjectID:                 testProject,
			SubscriberIDPrefix:        "it",
			DeleteSubscriptionOnClose: true,
			ClientOptions:             opts,
		},
	})
	require.NoError(t, err)

	roundTrip(t, ctx, s, r, "mnist-in")
}

func TestIntegration_Kafka(t *testing.T) {
	ctx := context.Background()

	container, err := tckafka.Run(ctx, testKafkaImage, tckafka.WithClusterID("gostream"))
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, container.Terminate(context.Background())) })

	brokers, err := container.Brokers(ctx)
	require.NoError(t, err)

	s, err := NewSenderFromDriver(ctx, DriverKafka, FactoryOptions{
		KafkaSender: KafkaSenderConfig{Brokers: brokers, ClientID: "gostream-it"},
	})
	require.NoError(t, err)

	seq, err := s.CreateTopic(ctx, "mnist-in")
	assert.Nil(t, seq)
	require.ErrorIs(t, err, ErrAdminConfigRequired)
	require.NoError(t, s.AttachAdmin(KafkaAdminConfig{Brokers: brokers}))

	r, err := NewReceiverFromDriver(ctx, DriverKafka, FactoryOptions{
		KafkaReceiver: KafkaReceiverConfig{Brokers: brokers, GroupID: "gostream-it", StartOffset: "earliest"},
	})
	require.NoError(t, err)

	roundTrip(t, ctx, s, r, "mnist-in")
}
