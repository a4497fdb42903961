// Package messaging provides a broker-agnostic API for sending and receiving
// key/value messages.
//
// A Sender and a Receiver each own one backend adapter (Kafka or Google
// Pub/Sub) for their whole lifetime. Adapters hand backend-tagged envelopes
// (Delivery, Inbound) to the Normalizer, so handlers always see the same
// (messageID, error) and (Message, error) shapes regardless of the backend.
//
// Setup failures are returned to the caller. Failures scoped to one message
// are reported through the handlers and never stop a Sender or a Receiver.
package messaging
