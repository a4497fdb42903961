package messaging

import (
	"context"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"cloud.google.com/go/pubsub/v2/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/shandysiswandi/gostream/internal/pkg/goerror"
	"github.com/shandysiswandi/gostream/internal/pkg/uid"
)

const testProject = "gostream-test"

type fixedID string

func (f fixedID) Generate() string { return string(f) }

func newPSTest(t *testing.T) (*pstest.Server, func() *pubsub.Client) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	newClient := func() *pubsub.Client {
		conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
		require.NoError(t, err)
		t.Cleanup(func() { _ = conn.Close() })

		client, err := pubsub.NewClient(context.Background(), testProject, option.WithGRPCConn(conn))
		require.NoError(t, err)
		return client
	}
	return srv, newClient
}

func newTestPubSubSender(t *testing.T, newClient func() *pubsub.Client) *PubSubSender {
	t.Helper()

	p, err := NewPubSubSender(context.Background(), PubSubSenderConfig{Client: newClient()})
	require.NoError(t, err)
	return p
}

func TestNewPubSubSender_RequiresProject(t *testing.T) {
	_, err := NewPubSubSender(context.Background(), PubSubSenderConfig{})

	assert.ErrorIs(t, err, ErrPubSubProjectIDRequired)
}

func TestPubSubSender_CreateAndListTopics(t *testing.T) {
	// Arrange
	_, newClient := newPSTest(t)
	s := NewSender(newTestPubSubSender(t, newClient))
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	// Act
	first, err := s.CreateTopic(ctx, "mnist-in", "mnist-out")
	require.NoError(t, err)
	firstResults := collect(first)

	second, err := s.CreateTopic(ctx, "mnist-in")
	require.NoError(t, err)
	secondResults := collect(second)

	topics, err := s.ListTopics(ctx)

	// Assert
	assert.Equal(t, map[string]error{"mnist-in": nil, "mnist-out": nil}, firstResults)
	assert.ErrorIs(t, secondResults["mnist-in"], ErrTopicExists)
	assert.Equal(t, goerror.KindConflict, goerror.KindOf(secondResults["mnist-in"]))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"mnist-in", "mnist-out"}, topics)
}

func TestPubSubSender_CreateTopicWithoutAdmin(t *testing.T) {
	// Arrange
	_, newClient := newPSTest(t)
	s := NewSender(newTestPubSubSender(t, newClient))
	t.Cleanup(func() { _ = s.Close() })

	// Act
	seq, err := s.CreateTopic(context.Background(), "t")

	// Assert
	require.NoError(t, err)
	for name, cerr := range seq {
		assert.Equal(t, "t", name)
		assert.NotEqual(t, goerror.KindConfig, goerror.KindOf(cerr))
	}
	assert.ErrorIs(t, s.AttachAdmin(KafkaAdminConfig{Brokers: []string{"b:9092"}}), ErrUnsupported)
}

func TestPubSubSender_SendAndFlush(t *testing.T) {
	// Arrange
	srv, newClient := newPSTest(t)
	s := NewSender(newTestPubSubSender(t, newClient), WithFlushCycle(10*time.Millisecond))
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	seq, err := s.CreateTopic(ctx, "mnist-in")
	require.NoError(t, err)
	for _, cerr := range seq {
		require.NoError(t, cerr)
	}

	var (
		mu  sync.Mutex
		ids []string
	)
	handler := func(ctx context.Context, id string, err error) {
		assert.NoError(t, err)
		assert.Equal(t, "mnist-in", TopicFromContext(ctx))
		mu.Lock()
		ids = append(ids, id)
		mu.Unlock()
	}

	// Act
	errGate := s.Send(ctx, "missing", NewMessage("k", "v"), handler)
	require.NoError(t, s.Send(ctx, "mnist-in", NewMessage("a1b2", `{"v":1}`), handler))
	require.NoError(t, s.Flush(ctx))

	// Assert
	assert.ErrorIs(t, errGate, ErrTopicNotFound)
	require.Len(t, ids, 1)
	assert.NotEmpty(t, ids[0])

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	got, err := DecodePubSub(msgs[0].Data)
	require.NoError(t, err)
	assert.Equal(t, NewMessage("a1b2", `{"v":1}`), got)
}

func TestPubSubSender_SendByFullName(t *testing.T) {
	// Arrange
	srv, newClient := newPSTest(t)
	s := NewSender(newTestPubSubSender(t, newClient), WithFlushCycle(10*time.Millisecond))
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()
	full := "projects/" + testProject + "/topics/mnist-full"

	seq, err := s.CreateTopic(ctx, full)
	require.NoError(t, err)
	for _, cerr := range seq {
		require.NoError(t, cerr)
	}

	delivered := make(chan error, 2)
	handler := func(_ context.Context, _ string, err error) { delivered <- err }

	// Act
	errFull := s.Send(ctx, full, NewMessage("k1", "v1"), handler)
	errShort := s.Send(ctx, "mnist-full", NewMessage("k2", "v2"), handler)
	errMissing := s.Send(ctx, "projects/"+testProject+"/topics/absent", NewMessage("k3", "v3"), handler)
	require.NoError(t, s.Flush(ctx))

	// Assert
	require.NoError(t, errFull)
	require.NoError(t, errShort)
	assert.ErrorIs(t, errMissing, ErrTopicNotFound)
	assert.NoError(t, <-delivered)
	assert.NoError(t, <-delivered)
	assert.Len(t, srv.Messages(), 2)
}

func TestPubSubSender_NormalizeTopic(t *testing.T) {
	p := &PubSubSender{}

	assert.Equal(t, "mnist-in", p.NormalizeTopic("projects/demo/topics/mnist-in"))
	assert.Equal(t, "mnist-in", p.NormalizeTopic("mnist-in"))
}

func newTestPubSubReceiver(t *testing.T, newClient func() *pubsub.Client, cfg PubSubReceiverConfig) *PubSubReceiver {
	t.Helper()

	cfg.Client = newClient()
	if cfg.Suffix == nil {
		cfg.Suffix = uid.NewShortHex(4)
	}
	p, err := NewPubSubReceiver(context.Background(), cfg)
	require.NoError(t, err)
	return p
}

func TestPubSubReceiver_Subscribe(t *testing.T) {
	srv, newClient := newPSTest(t)
	srv.Publish("projects/"+testProject+"/topics/mnist-in", []byte(`{}`), nil)

	t.Run("names subscription from prefix and suffix", func(t *testing.T) {
		p := newTestPubSubReceiver(t, newClient, PubSubReceiverConfig{
			SubscriberIDPrefix: "mnist-sub",
			AckDeadlineSeconds: 20,
			Suffix:             fixedID("a1b2"),
		})
		t.Cleanup(func() { _ = p.Close() })

		require.NoError(t, p.Subscribe(context.Background(), "mnist-in"))

		assert.Equal(t, "projects/"+testProject+"/subscriptions/mnist-sub-a1b2", p.Subscription())
		sub, err := srv.GServer.GetSubscription(context.Background(), &pubsubpb.GetSubscriptionRequest{Subscription: p.Subscription()})
		require.NoError(t, err)
		assert.Equal(t, int32(20), sub.GetAckDeadlineSeconds())
		assert.Equal(t, "projects/"+testProject+"/topics/mnist-in", sub.GetTopic())
	})

	t.Run("push mode sets endpoint", func(t *testing.T) {
		p := newTestPubSubReceiver(t, newClient, PubSubReceiverConfig{
			SubscriberIDPrefix: "mnist-push",
			Mode:               PubSubModePush,
			PushEndpoint:       "https://example.com/pubsub/push",
		})
		t.Cleanup(func() { _ = p.Close() })

		require.NoError(t, p.Subscribe(context.Background(), "mnist-in"))

		sub, err := srv.GServer.GetSubscription(context.Background(), &pubsubpb.GetSubscriptionRequest{Subscription: p.Subscription()})
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/pubsub/push", sub.GetPushConfig().GetPushEndpoint())
	})

	t.Run("missing topic", func(t *testing.T) {
		p := newTestPubSubReceiver(t, newClient, PubSubReceiverConfig{SubscriberIDPrefix: "x"})
		t.Cleanup(func() { _ = p.Close() })

		err := p.Subscribe(context.Background(), "nope")

		assert.ErrorIs(t, err, ErrTopicNotFound)
	})

	t.Run("exactly one topic", func(t *testing.T) {
		p := newTestPubSubReceiver(t, newClient, PubSubReceiverConfig{SubscriberIDPrefix: "x"})
		t.Cleanup(func() { _ = p.Close() })

		assert.ErrorIs(t, p.Subscribe(context.Background(), "a", "b"), ErrPubSubSingleTopic)
		assert.ErrorIs(t, p.Subscribe(context.Background()), ErrPubSubSingleTopic)
	})
}

func TestNewPubSubReceiver_PushNeedsEndpoint(t *testing.T) {
	_, err := NewPubSubReceiver(context.Background(), PubSubReceiverConfig{ProjectID: testProject, Mode: PubSubModePush})

	assert.ErrorIs(t, err, ErrPubSubPushEndpointRequired)
}

func TestPubSub_DetachedRoundTrip(t *testing.T) {
	// Arrange
	srv, newClient := newPSTest(t)
	ctx := context.Background()

	s := NewSender(newTestPubSubSender(t, newClient))
	t.Cleanup(func() { _ = s.Close() })
	seq, err := s.CreateTopic(ctx, "mnist-in")
	require.NoError(t, err)
	for _, cerr := range seq {
		require.NoError(t, cerr)
	}

	p := newTestPubSubReceiver(t, newClient, PubSubReceiverConfig{
		SubscriberIDPrefix:        "roundtrip",
		DeleteSubscriptionOnClose: true,
	})
	r := NewReceiver(p)
	require.NoError(t, r.Subscribe(ctx, "mnist-in"))
	subscription := p.Subscription()

	received := make(chan Message, 1)
	require.NoError(t, r.Start(ctx, 0, func(_ context.Context, msg Message, err error) {
		if assert.NoError(t, err) {
			received <- msg
		}
	}))

	// Act
	require.NoError(t, s.Send(ctx, "mnist-in", NewMessage("a1b2", `{"v":1}`), nil))
	require.NoError(t, s.Flush(ctx))

	var got Message
	select {
	case got = <-received:
	case <-time.After(10 * time.Second):
		t.Fatal("message not received")
	}
	errClose := r.Close()

	// Assert
	assert.Equal(t, NewMessage("a1b2", `{"v":1}`), got)
	require.NoError(t, errClose)
	_, err = srv.GServer.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: subscription})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestPubSubReceiver_TimeoutDoesNotEndSession(t *testing.T) {
	// Arrange
	srv, newClient := newPSTest(t)
	_, err := srv.GServer.CreateTopic(context.Background(), &pubsubpb.Topic{Name: "projects/" + testProject + "/topics/late"})
	require.NoError(t, err)

	r := NewReceiver(newTestPubSubReceiver(t, newClient, PubSubReceiverConfig{SubscriberIDPrefix: "late"}))
	t.Cleanup(func() { _ = r.Close() })
	require.NoError(t, r.Subscribe(context.Background(), "late"))

	received := make(chan Message, 1)
	require.NoError(t, r.Start(context.Background(), 100*time.Millisecond, func(_ context.Context, msg Message, err error) {
		if err == nil {
			received <- msg
		}
	}))

	// Act
	time.Sleep(400 * time.Millisecond)
	state := r.State()
	srv.Publish("projects/"+testProject+"/topics/late", []byte(`{"key":"k1","value":"after"}`), nil)

	// Assert
	assert.Equal(t, StateReceiving, state)
	select {
	case got := <-received:
		assert.Equal(t, NewMessage("k1", "after"), got)
	case <-time.After(10 * time.Second):
		t.Fatal("message published after the timeout window was not received")
	}
}

func TestPubSubReceiver_ReceiveStopsOnContext(t *testing.T) {
	// Arrange
	_, newClient := newPSTest(t)
	p := newTestPubSubReceiver(t, newClient, PubSubReceiverConfig{SubscriberIDPrefix: "quiet"})
	t.Cleanup(func() { _ = p.Close() })

	topic := "quiet"
	sender := newTestPubSubSender(t, newClient)
	t.Cleanup(func() { _ = sender.Close() })
	seq, err := sender.CreateTopic(context.Background(), topic)
	require.NoError(t, err)
	for _, cerr := range seq {
		require.NoError(t, cerr)
	}
	require.NoError(t, p.Subscribe(context.Background(), topic))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// Act
	start := time.Now()
	err = p.Receive(ctx, time.Millisecond, func(context.Context, Inbound) {})

	// Assert
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
}
