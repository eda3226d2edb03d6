package miniredis

import (
	"errors"
	"fmt"
)

// Sentinel errors for the client.
var (
	// ErrTimeout indicates a synchronous command exceeded the configured timeout.
	ErrTimeout = errors.New("command timed out")

	// ErrNotConnected indicates an operation was attempted without a connection.
	ErrNotConnected = errors.New("not connected")

	// ErrNil indicates the server replied with a nil (absent) value.
	ErrNil = errors.New("nil reply")

	// ErrDisconnected is delivered to callbacks of commands that were still
	// queued or in flight when the async connection was torn down.
	ErrDisconnected = errors.New("connection closed before reply")

	// ErrLoopRunning indicates Start was called on an event loop whose
	// previous run has not exited yet.
	ErrLoopRunning = errors.New("event loop already running")

	// ErrEmptyArgument indicates a required channel or payload was empty.
	ErrEmptyArgument = errors.New("empty argument")

	// ErrLineTooLong indicates a command line exceeded MaxLineLength.
	ErrLineTooLong = errors.New("line too long")
)

// ParseError represents an error that occurred while parsing a command line.
type ParseError struct {
	Kind    ParseErrorKind
	Value   string // The invalid input that caused the error
	Message string // Additional context
}

// ParseErrorKind categorizes parsing errors.
type ParseErrorKind int

const (
	// ErrKindEmptyCommand indicates a line with no command verb.
	ErrKindEmptyCommand ParseErrorKind = iota
	// ErrKindUnbalancedQuotes indicates a quoted argument that is never closed.
	ErrKindUnbalancedQuotes
	// ErrKindInvalidEscape indicates a bad escape sequence inside double quotes.
	ErrKindInvalidEscape
)

// Error implements the error interface.
func (e *ParseError) Error() string {
	switch e.Kind {
	case ErrKindEmptyCommand:
		return "empty command"
	case ErrKindUnbalancedQuotes:
		return fmt.Sprintf("unbalanced quotes in '%s'", e.Value)
	case ErrKindInvalidEscape:
		return fmt.Sprintf("invalid escape '%s': %s", e.Value, e.Message)
	default:
		return fmt.Sprintf("parse error: %s", e.Value)
	}
}

// ProtocolError represents a reply that does not satisfy the protocol
// contract expected by the caller.
type ProtocolError struct {
	Kind    ProtocolErrorKind
	Value   string // The offending value, when there is one
	Message string // Additional context
}

// ProtocolErrorKind categorizes protocol errors.
type ProtocolErrorKind int

const (
	// ProtoKindMismatch indicates the reply kind differs from the expected kind.
	ProtoKindMismatch ProtocolErrorKind = iota
	// ProtoMalformedFrame indicates a pub/sub frame with the wrong shape.
	ProtoMalformedFrame
	// ProtoOddMapping indicates a map flatten over an odd number of elements.
	ProtoOddMapping
	// ProtoInvalidReply indicates bytes on the wire that are not valid RESP.
	ProtoInvalidReply
	// ProtoLimitExceeded indicates a length header above the configured limits.
	ProtoLimitExceeded
)

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	switch e.Kind {
	case ProtoKindMismatch:
		return fmt.Sprintf("protocol error: %s", e.Message)
	case ProtoMalformedFrame:
		return fmt.Sprintf("protocol error: malformed pub/sub frame: %s", e.Message)
	case ProtoOddMapping:
		return fmt.Sprintf("protocol error: cannot flatten %s elements into a map", e.Value)
	case ProtoInvalidReply:
		return fmt.Sprintf("protocol error: invalid reply %q: %s", e.Value, e.Message)
	case ProtoLimitExceeded:
		return fmt.Sprintf("protocol error: %s", e.Message)
	default:
		return fmt.Sprintf("protocol error: %s", e.Value)
	}
}

func newKindMismatchError(want, got Kind) error {
	return &ProtocolError{
		Kind:    ProtoKindMismatch,
		Value:   got.String(),
		Message: fmt.Sprintf("expected %s reply, got %s", want, got),
	}
}

func newMalformedFrameError(msg string) error {
	return &ProtocolError{Kind: ProtoMalformedFrame, Message: msg}
}

func newOddMappingError(n int) error {
	return &ProtocolError{Kind: ProtoOddMapping, Value: fmt.Sprint(n)}
}

func newInvalidReplyError(value, msg string) error {
	return &ProtocolError{Kind: ProtoInvalidReply, Value: value, Message: msg}
}

func newLimitExceededError(msg string) error {
	return &ProtocolError{Kind: ProtoLimitExceeded, Message: msg}
}

// ServerError is an error reply sent by the server, such as
// "ERR unknown command" or "WRONGTYPE ...".
type ServerError struct {
	Message string
}

// Error implements the error interface.
func (e *ServerError) Error() string {
	return "server error: " + e.Message
}

// Prefix returns the leading error code, for example "ERR" or "WRONGTYPE".
func (e *ServerError) Prefix() string {
	for i := 0; i < len(e.Message); i++ {
		if e.Message[i] == ' ' {
			return e.Message[:i]
		}
	}
	return e.Message
}

// ConnectionError represents a connection-related error.
type ConnectionError struct {
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection failed: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connection failed: %s", e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *ConnectionError) Unwrap() error {
	return e.Cause
}

// NewConnectionError creates a new connection error.
func NewConnectionError(message string, cause error) error {
	return &ConnectionError{Message: message, Cause: cause}
}
