// Package validator checks HTTP inputs and the JSON backend documents.
//
// Besides the built-in v10 tags it registers "topic" for names valid on both
// Kafka and Pub/Sub and "broker" for host:port addresses.
package validator

// Validator validates a struct and reports every failing field.
type Validator interface {
	Validate(data any) error
}
