package goerror

import (
	"errors"
	"fmt"
)

// Kind classifies errors into the buckets the messaging layer reasons about.
type Kind int

const (
	// KindUnknown is used for errors that carry no classification.
	KindUnknown Kind = iota
	// KindConfig marks missing or invalid configuration.
	KindConfig
	// KindTopicNotFound marks a send to a topic absent from the live listing.
	KindTopicNotFound
	// KindDecode marks a malformed inbound payload.
	KindDecode
	// KindTransport marks a backend or network failure.
	KindTransport
	// KindState marks an operation called in the wrong lifecycle state.
	KindState
	// KindConflict marks a create of something that already exists.
	KindConflict
)

// String returns the string representation of the error kind.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ERROR_KIND_CONFIG"
	case KindTopicNotFound:
		return "ERROR_KIND_TOPIC_NOT_FOUND"
	case KindDecode:
		return "ERROR_KIND_DECODE"
	case KindTransport:
		return "ERROR_KIND_TRANSPORT"
	case KindState:
		return "ERROR_KIND_STATE"
	case KindConflict:
		return "ERROR_KIND_CONFLICT"
	default:
		return "ERROR_KIND_UNKNOWN"
	}
}

// Error is a structured error used across the application.
//
// It can wrap an underlying error while also carrying a message and a kind.
type Error struct {
	err  error
	msg  string
	kind Kind
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.msg != "" && e.err != nil:
		return e.msg + ": " + e.err.Error()
	case e.msg != "":
		return e.msg
	case e.err != nil:
		return e.err.Error()
	default:
		return "unknown error"
	}
}

// String returns a verbose representation of the error for debugging/logging.
func (e *Error) String() string {
	return fmt.Sprintf("Error Kind: %s, Message: %s, Underlying Error: %v", e.kind, e.msg, e.err)
}

// Msg returns the message, if set.
func (e *Error) Msg() string {
	return e.msg
}

// Kind returns the error kind.
func (e *Error) Kind() Kind {
	return e.kind
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.err
}

// New creates a classified error without a cause. Intended for sentinel values.
func New(kind Kind, msg string) error {
	return &Error{msg: msg, kind: kind}
}

// Wrap classifies err. A nil err yields nil.
func Wrap(kind Kind, err error, msg string) error {
	if err == nil {
		return nil
	}
	return &Error{err: err, msg: msg, kind: kind}
}

// NewConfig wraps err as a configuration failure.
func NewConfig(err error, msg string) error {
	return Wrap(KindConfig, err, msg)
}

// NewTransport wraps err as a backend failure.
func NewTransport(err error, msg string) error {
	return Wrap(KindTransport, err, msg)
}

// NewDecode wraps err as a decode failure.
func NewDecode(err error, msg string) error {
	return Wrap(KindDecode, err, msg)
}

// KindOf returns the kind of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var gerr *Error
	if errors.As(err, &gerr) {
		return gerr.kind
	}
	return KindUnknown
}

// Is reports whether err carries the given kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	for err != nil {
		var gerr *Error
		if !errors.As(err, &gerr) {
			return false
		}
		if gerr.kind == kind {
			return true
		}
		err = gerr.err
	}
	return false
}
