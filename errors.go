package encounter

import (
	"errors"
	"fmt"

	"github.com/blockberries/encounter/pkg/session"
)

// ErrorCode identifies the type of error for programmatic handling.
type ErrorCode int

const (
	// ErrCodeUnknown indicates an unknown or unclassified error.
	ErrCodeUnknown ErrorCode = iota

	// ErrCodeHandshake indicates malformed key bytes or a handshake call in
	// the wrong state. The message is dropped.
	ErrCodeHandshake

	// ErrCodeCrypto indicates a decrypt or authentication failure. The
	// message is dropped and never surfaced to the user.
	ErrCodeCrypto

	// ErrCodeConnection indicates a rejected or timed out invitation, or a
	// transport send failure.
	ErrCodeConnection

	// ErrCodePolicyRejection indicates a blocklist or cooldown refusal.
	ErrCodePolicyRejection

	// ErrCodeInvalidConfig indicates the configuration is invalid.
	ErrCodeInvalidConfig

	// ErrCodeNodeNotStarted indicates the node has not been started.
	ErrCodeNodeNotStarted

	// ErrCodeNodeAlreadyStarted indicates the node is already running.
	ErrCodeNodeAlreadyStarted

	// ErrCodeNodeStopped indicates the node has been stopped.
	ErrCodeNodeStopped

	// ErrCodeNoSession indicates there is no handshaked session.
	ErrCodeNoSession

	// ErrCodeMessageTooLarge indicates an outbound message exceeds the limit.
	ErrCodeMessageTooLarge

	// ErrCodeInvalidMessage indicates an outbound message the wire format
	// cannot carry as written.
	ErrCodeInvalidMessage

	// ErrCodePersistence indicates a persistence collaborator call failed.
	ErrCodePersistence
)

// String returns a human-readable name for the error code.
func (c ErrorCode) String() string {
	switch c {
	case ErrCodeUnknown:
		return "Unknown"
	case ErrCodeHandshake:
		return "Handshake"
	case ErrCodeCrypto:
		return "Crypto"
	case ErrCodeConnection:
		return "Connection"
	case ErrCodePolicyRejection:
		return "PolicyRejection"
	case ErrCodeInvalidConfig:
		return "InvalidConfig"
	case ErrCodeNodeNotStarted:
		return "NodeNotStarted"
	case ErrCodeNodeAlreadyStarted:
		return "NodeAlreadyStarted"
	case ErrCodeNodeStopped:
		return "NodeStopped"
	case ErrCodeNoSession:
		return "NoSession"
	case ErrCodeMessageTooLarge:
		return "MessageTooLarge"
	case ErrCodeInvalidMessage:
		return "InvalidMessage"
	case ErrCodePersistence:
		return "Persistence"
	default:
		return fmt.Sprintf("ErrorCode(%d)", c)
	}
}

// Error is an encounter error with structured context.
type Error struct {
	// Code identifies the type of error.
	Code ErrorCode

	// Message is a human-readable description of the error.
	Message string

	// Peer is the peer associated with the error, if any.
	Peer string

	// Cause is the underlying error, if any.
	Cause error

	// Retriable indicates whether the operation can be retried.
	Retriable bool
}

// Error returns a human-readable error message.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("encounter: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("encounter: %s", e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error.
// Two encounter errors are considered equal if they have the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// IsRetriable returns true if the error indicates a retriable operation.
func IsRetriable(err error) bool {
	var eErr *Error
	if errors.As(err, &eErr) {
		return eErr.Retriable
	}
	return false
}

// IsPermanent returns true if the error indicates a permanent failure.
func IsPermanent(err error) bool {
	var eErr *Error
	if errors.As(err, &eErr) {
		switch eErr.Code {
		case ErrCodeInvalidConfig, ErrCodeNodeStopped, ErrCodeMessageTooLarge, ErrCodeInvalidMessage:
			return true
		}
	}
	return false
}

// CodeOf returns the code of the first Error in err's chain, or
// ErrCodeUnknown.
func CodeOf(err error) ErrorCode {
	var eErr *Error
	if errors.As(err, &eErr) {
		return eErr.Code
	}
	return ErrCodeUnknown
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error with the given code, message, and cause.
func NewErrorWithCause(code ErrorCode, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// NewPeerError creates a new Error associated with a specific peer.
func NewPeerError(code ErrorCode, message string, peer string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Peer:    peer,
		Cause:   cause,
	}
}

// Sentinel errors for configuration.
var (
	// ErrInvalidConfig indicates the configuration is invalid.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrMissingTransport indicates New was called without a transport.
	ErrMissingTransport = errors.New("transport is required")
)

// Sentinel errors for messaging.
var (
	// ErrNoSession indicates there is no handshaked session to send on.
	ErrNoSession = errors.New("no active session")

	// ErrMessageTooLarge indicates the message exceeds MaxMessageSize.
	ErrMessageTooLarge = errors.New("message too large")

	// ErrEmptyMessage indicates an empty user message.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrReservedPrefix indicates a user message that would be read as a
	// control message or keepalive by the peer.
	ErrReservedPrefix = errors.New("message uses a reserved prefix")

	// ErrInvalidEncoding indicates a message that is not valid UTF-8.
	ErrInvalidEncoding = errors.New("message is not valid UTF-8")

	// ErrNotSystemMessage indicates SendSystem was given a user message.
	ErrNotSystemMessage = errors.New("not a system message")

	// ErrSessionActive indicates BeginSession was called while a session
	// is already being tracked.
	ErrSessionActive = session.ErrSessionActive
)

// Sentinel errors for node operations.
var (
	// ErrNodeNotStarted indicates the node has not been started.
	ErrNodeNotStarted = errors.New("node not started")

	// ErrNodeAlreadyStarted indicates the node is already running.
	ErrNodeAlreadyStarted = errors.New("node already started")

	// ErrNodeStopped indicates the node has been stopped.
	ErrNodeStopped = errors.New("node stopped")
)
