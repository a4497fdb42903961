package messaging

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/segmentio/kafka-go"
)

// Message is an immutable key/value envelope. Two messages are equal when
// their keys and values are equal, so Message can be compared with ==.
type Message struct {
	key   string
	value string
}

// NewMessage builds a Message. Neither field is validated.
func NewMessage(key, value string) Message {
	return Message{key: key, value: value}
}

// Key returns the message key.
func (m Message) Key() string { return m.key }

// Value returns the serialized payload.
func (m Message) Value() string { return m.value }

func (m Message) String() string {
	return "Message: " + m.key + "->" + m.value
}

// wireMessage is the JSON form carried in Pub/Sub message data. Pointers tell
// a missing field apart from an empty one.
type wireMessage struct {
	Key   *string `json:"key"`
	Value *string `json:"value"`
}

// JSON encodes m as {"key": ..., "value": ...}.
func (m Message) JSON() ([]byte, error) {
	return json.Marshal(wireMessage{Key: &m.key, Value: &m.value})
}

// MarshalJSON implements json.Marshaler.
func (m Message) MarshalJSON() ([]byte, error) {
	return m.JSON()
}

// DecodePubSub rebuilds a Message from Pub/Sub message data. Both "key" and
// "value" must be present as strings.
func DecodePubSub(data []byte) (Message, error) {
	if !utf8.Valid(data) {
		return Message{}, fmt.Errorf("%w: payload is not valid utf-8", ErrDecode)
	}

	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return Message{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if w.Key == nil || w.Value == nil {
		return Message{}, fmt.Errorf("%w: key and value are required", ErrDecode)
	}

	return Message{key: *w.Key, value: *w.Value}, nil
}

// DecodeKafka rebuilds a Message from the key and value bytes of a record.
func DecodeKafka(rec kafka.Message) (Message, error) {
	if !utf8.Valid(rec.Key) {
		return Message{}, fmt.Errorf("%w: record key is not valid utf-8", ErrDecode)
	}
	if !utf8.Valid(rec.Value) {
		return Message{}, fmt.Errorf("%w: record value is not valid utf-8", ErrDecode)
	}

	return Message{key: string(rec.Key), value: string(rec.Value)}, nil
}
