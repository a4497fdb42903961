package messaging

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const maxPushBody = 10 << 20

// pushEnvelope is the body Pub/Sub POSTs to a push endpoint. Data is base64
// in JSON, which encoding/json decodes into []byte.
type pushEnvelope struct {
	Message struct {
		Data       []byte            `json:"data"`
		MessageID  string            `json:"messageId"`
		Attributes map[string]string `json:"attributes"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PushHandler returns the endpoint Pub/Sub pushes to. It answers 503 while
// Receive is not running so Pub/Sub redelivers later, 400 for an undecodable
// envelope and 204 once the message went through the normalizer. The 204 is
// the acknowledgment.
func (p *PubSubReceiver) PushHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		p.mu.Lock()
		deliver, topic := p.push, p.topic
		p.mu.Unlock()

		if deliver == nil {
			http.Error(w, "receiver is not running", http.StatusServiceUnavailable)
			return
		}

		var env pushEnvelope
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxPushBody)).Decode(&env); err != nil {
			slog.WarnContext(r.Context(), "invalid pubsub push envelope", "error", err)
			http.Error(w, "invalid push envelope", http.StatusBadRequest)
			return
		}
		if env.Message.MessageID == "" {
			http.Error(w, "push envelope without message id", http.StatusBadRequest)
			return
		}

		deliver(r.Context(), PubSubInbound{
			ID:    env.Message.MessageID,
			Topic: topic,
			Data:  env.Message.Data,
			Ack:   func() {},
		})
		w.WriteHeader(http.StatusNoContent)
	})
}
