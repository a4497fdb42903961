package messaging

import "github.com/shandysiswandi/gostream/internal/pkg/goerror"

var (
	// ErrTopicNotFound is returned by Send when the topic is absent from the
	// backend's live topic listing. Nothing is published in that case.
	ErrTopicNotFound = goerror.New(goerror.KindTopicNotFound, "pkgmessage: topic not found")
	// ErrAdminConfigRequired is returned by CreateTopic on Kafka when no admin
	// configuration has been attached.
	ErrAdminConfigRequired = goerror.New(goerror.KindConfig, "pkgmessage: admin config is required")
	// ErrDecode is returned when an inbound payload cannot be turned into a Message.
	ErrDecode = goerror.New(goerror.KindDecode, "pkgmessage: decode message")
	// ErrTopicExists is the non-fatal result of creating a topic that already exists.
	ErrTopicExists = goerror.New(goerror.KindConflict, "pkgmessage: topic already exists")
	// ErrInvalidState is returned when a Receiver operation is called in the wrong state.
	ErrInvalidState = goerror.New(goerror.KindState, "pkgmessage: invalid receiver state")
	// ErrUnknownDriver indicates an unsupported broker tag.
	ErrUnknownDriver = goerror.New(goerror.KindConfig, "pkgmessage: unknown driver")
	// ErrClosed is returned when a Sender is used after Close.
	ErrClosed = goerror.New(goerror.KindState, "pkgmessage: closed")
)

// ErrUnsupported is returned when a feature is not supported by the selected broker.
//
// For example, only Kafka accepts a separate admin configuration.
var ErrUnsupported = goerror.New(goerror.KindConfig, "pkgmessage: unsupported operation")
