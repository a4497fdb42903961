package messaging

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shandysiswandi/gostream/internal/pkg/goerror"
	"github.com/shandysiswandi/gostream/internal/pkg/instrument"
)

type fakeFuture struct {
	id    string
	err   error
	calls atomic.Int32
}

func (f *fakeFuture) Get(context.Context) (string, error) {
	f.calls.Add(1)
	return f.id, f.err
}

func TestNormalizeDelivery(t *testing.T) {
	errBroker := errors.New("broker down")

	tests := []struct {
		name     string
		delivery Delivery
		wantID   string
		wantKind goerror.Kind
		wantErr  error
	}{
		{
			name:     "kafka success uses record key",
			delivery: KafkaDelivery{Record: kafka.Message{Topic: "in", Key: []byte("a1b2")}},
			wantID:   "a1b2",
		},
		{
			name:     "kafka failure keeps key and wraps error",
			delivery: KafkaDelivery{Record: kafka.Message{Key: []byte("a1b2")}, Err: errBroker},
			wantID:   "a1b2",
			wantKind: goerror.KindTransport,
			wantErr:  errBroker,
		},
		{
			name:     "pubsub success resolves future",
			delivery: PubSubDelivery{Topic: "in", Key: "a1b2", Result: &fakeFuture{id: "1001"}},
			wantID:   "1001",
		},
		{
			name:     "pubsub future failure",
			delivery: PubSubDelivery{Result: &fakeFuture{err: errBroker}},
			wantKind: goerror.KindTransport,
			wantErr:  errBroker,
		},
		{
			name:     "pubsub without future",
			delivery: PubSubDelivery{},
			wantErr:  ErrUnsupported,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			id, err := NormalizeDelivery(context.Background(), tt.delivery)

			// Assert
			assert.Equal(t, tt.wantID, id)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantKind != goerror.KindUnknown {
				assert.Equal(t, tt.wantKind, goerror.KindOf(err))
			}
		})
	}
}

func TestNormalizeDelivery_KafkaNeverTouchesFuture(t *testing.T) {
	// Arrange
	future := &fakeFuture{id: "x"}
	d := KafkaDelivery{Record: kafka.Message{Key: []byte("k")}}

	// Act
	_, err := NormalizeDelivery(context.Background(), d)
	_, _ = NormalizeDelivery(context.Background(), PubSubDelivery{Result: future})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int32(1), future.calls.Load())
}

func TestNormalizeReceive_Kafka(t *testing.T) {
	t.Run("fetch error short-circuits decode", func(t *testing.T) {
		errFetch := errors.New("fetch failed")
		in := KafkaInbound{Record: kafka.Message{Value: []byte{0xff}}, Err: errFetch}

		msg, err := NormalizeReceive(context.Background(), in)

		assert.ErrorIs(t, err, errFetch)
		assert.NotErrorIs(t, err, ErrDecode)
		assert.Equal(t, Message{}, msg)
	})

	t.Run("decodes record", func(t *testing.T) {
		in := KafkaInbound{Record: kafka.Message{Key: []byte("a1b2"), Value: []byte("1")}}

		msg, err := NormalizeReceive(context.Background(), in)

		require.NoError(t, err)
		assert.Equal(t, NewMessage("a1b2", "1"), msg)
	})
}

func TestNormalizeReceive_PubSubAlwaysAcks(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    Message
		wantErr error
	}{
		{name: "valid", data: []byte(`{"key":"a1b2","value":"{\"v\":1}"}`), want: NewMessage("a1b2", `{"v":1}`)},
		{name: "malformed", data: []byte(`{"key":"a1b2"}`), wantErr: ErrDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			acked := 0
			in := PubSubInbound{ID: "1", Topic: "in", Data: tt.data, Ack: func() { acked++ }}

			// Act
			msg, err := NormalizeReceive(context.Background(), in)

			// Assert
			assert.Equal(t, 1, acked)
			assert.Equal(t, tt.want, msg)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNormalizer_WrapReceive(t *testing.T) {
	// Arrange
	var (
		gotMsg   Message
		gotTopic string
		gotCID   string
	)
	deliver := Normalizer{}.WrapReceive(func(ctx context.Context, msg Message, err error) {
		require.NoError(t, err)
		gotMsg = msg
		gotTopic = TopicFromContext(ctx)
		gotCID = instrument.GetCorrelationID(ctx)
	})

	// Act
	deliver(context.Background(), KafkaInbound{Record: kafka.Message{Topic: "mnist-in", Key: []byte("a1b2"), Value: []byte("1")}})

	// Assert
	assert.Equal(t, NewMessage("a1b2", "1"), gotMsg)
	assert.Equal(t, "mnist-in", gotTopic)
	assert.Equal(t, "a1b2", gotCID)
}

func TestNormalizer_WrapDelivery_RecoversPanic(t *testing.T) {
	// Arrange
	calls := 0
	done := Normalizer{}.WrapDelivery(func(context.Context, string, error) {
		calls++
		panic("handler exploded")
	})

	// Act & Assert
	assert.NotPanics(t, func() {
		done(context.Background(), KafkaDelivery{Record: kafka.Message{Topic: "in", Key: []byte("k")}})
	})
	assert.Equal(t, 1, calls)
}
