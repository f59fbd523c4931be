package mqrpc

import (
	"errors"
	"fmt"

	"github.com/srand/mqrpc/transport"
)

var (
	// ErrNoAddress indicates that no address was provided to connect to.
	ErrNoAddress = transport.ErrNoAddress
	// ErrClosed is returned by clients, servers and transports that have been shut down.
	ErrClosed = transport.ErrClosed

	ErrProtocolViolation = &Error{"protocol violation"}
	ErrInvalidContract   = &Error{"invalid contract"}
	ErrUnknownMethod     = &Error{"unknown method"}
	ErrArgumentCount     = &Error{"argument count mismatch"}
	ErrArgumentType      = &Error{"argument type mismatch"}
	ErrInvalidAsync      = &Error{"invalid asynchronous call"}
	ErrRateLimited       = &Error{"rate limit exceeded"}
	ErrMissingOutParam   = &Error{"missing modified value for param"}
	ErrMethodNotFound    = &Error{"could not find a matching method"}
	ErrExpired           = &Error{"request expired"}
	ErrTimeout           = &Error{"call timed out"}
	ErrCoercion          = &Error{"type coercion failed"}
	ErrInvocation        = &Error{"remote invocation failed"}
)

// Error represents an error in the mqrpc package.
type Error struct {
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// ErrorKind classifies a failure carried inside a Response.
type ErrorKind string

const (
	KindInvocation  ErrorKind = "invocation"
	KindNotFound    ErrorKind = "not_found"
	KindExpired     ErrorKind = "expired"
	KindCoercion    ErrorKind = "coercion"
	KindProtocol    ErrorKind = "protocol"
	KindRateLimited ErrorKind = "rate_limited"
)

// RemoteError is the exception carried by a faulted Response.
// Clients return it unchanged, so errors.Is matches the sentinel of its Kind.
type RemoteError struct {
	Kind    ErrorKind `json:"kind"`
	Type    string    `json:"type,omitempty"`
	Message string    `json:"message"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote %s error: %s", e.Kind, e.Message)
}

func (e *RemoteError) Unwrap() error {
	switch e.Kind {
	case KindNotFound:
		return ErrMethodNotFound
	case KindExpired:
		return ErrExpired
	case KindCoercion:
		return ErrCoercion
	case KindProtocol:
		return ErrProtocolViolation
	case KindRateLimited:
		return ErrRateLimited
	default:
		return ErrInvocation
	}
}

// toRemoteError captures err for transmission, keeping its message and Go type.
func toRemoteError(err error) *RemoteError {
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}

	kind := KindInvocation
	switch {
	case errors.Is(err, ErrCoercion):
		kind = KindCoercion
	case errors.Is(err, ErrProtocolViolation):
		kind = KindProtocol
	case errors.Is(err, ErrMethodNotFound):
		kind = KindNotFound
	case errors.Is(err, ErrExpired):
		kind = KindExpired
	case errors.Is(err, ErrRateLimited):
		kind = KindRateLimited
	}

	return &RemoteError{
		Kind:    kind,
		Type:    fmt.Sprintf("%T", err),
		Message: err.Error(),
	}
}
