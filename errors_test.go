package encounter

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorsAreSentinels(t *testing.T) {
	allErrors := []error{
		ErrInvalidConfig,
		ErrMissingTransport,
		ErrNoSession,
		ErrMessageTooLarge,
		ErrEmptyMessage,
		ErrReservedPrefix,
		ErrInvalidEncoding,
		ErrNotSystemMessage,
		ErrSessionActive,
		ErrNodeNotStarted,
		ErrNodeAlreadyStarted,
		ErrNodeStopped,
	}

	for i, err1 := range allErrors {
		for j, err2 := range allErrors {
			if i != j && errors.Is(err1, err2) {
				t.Errorf("%v should not match %v", err1, err2)
			}
		}
	}
}

func TestErrorCode_String(t *testing.T) {
	tests := []struct {
		code ErrorCode
		want string
	}{
		{ErrCodeUnknown, "Unknown"},
		{ErrCodeHandshake, "Handshake"},
		{ErrCodeCrypto, "Crypto"},
		{ErrCodeConnection, "Connection"},
		{ErrCodePolicyRejection, "PolicyRejection"},
		{ErrCodeInvalidConfig, "InvalidConfig"},
		{ErrCodeNodeNotStarted, "NodeNotStarted"},
		{ErrCodeNodeAlreadyStarted, "NodeAlreadyStarted"},
		{ErrCodeNodeStopped, "NodeStopped"},
		{ErrCodeNoSession, "NoSession"},
		{ErrCodeMessageTooLarge, "MessageTooLarge"},
		{ErrCodeInvalidMessage, "InvalidMessage"},
		{ErrCodePersistence, "Persistence"},
		{ErrorCode(99), "ErrorCode(99)"},
	}

	for _, tt := range tests {
		if got := tt.code.String(); got != tt.want {
			t.Errorf("ErrorCode(%d).String() = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestError_Message(t *testing.T) {
	err := NewError(ErrCodeNoSession, "send user message")
	if got := err.Error(); got != "encounter: send user message" {
		t.Errorf("Error() = %q", got)
	}

	err = NewErrorWithCause(ErrCodeConnection, "disconnect", errors.New("link down"))
	if got := err.Error(); got != "encounter: disconnect: link down" {
		t.Errorf("Error() = %q", got)
	}
}

func TestError_UnwrapAndIs(t *testing.T) {
	err := &Error{Code: ErrCodeNoSession, Message: "send", Cause: ErrNoSession, Retriable: true}
	wrapped := fmt.Errorf("outer: %w", err)

	if !errors.Is(wrapped, ErrNoSession) {
		t.Error("should unwrap to the cause")
	}
	if !errors.Is(wrapped, &Error{Code: ErrCodeNoSession}) {
		t.Error("errors with the same code should match")
	}
	if errors.Is(wrapped, &Error{Code: ErrCodeCrypto}) {
		t.Error("errors with different codes should not match")
	}

	var eErr *Error
	if !errors.As(wrapped, &eErr) || eErr.Code != ErrCodeNoSession {
		t.Error("errors.As should find the Error")
	}
}

func TestIsRetriableAndPermanent(t *testing.T) {
	retriable := &Error{Code: ErrCodeConnection, Retriable: true}
	permanent := NewError(ErrCodeMessageTooLarge, "too big")

	if !IsRetriable(retriable) || IsRetriable(permanent) {
		t.Error("IsRetriable mismatch")
	}
	if !IsPermanent(permanent) || IsPermanent(retriable) {
		t.Error("IsPermanent mismatch")
	}
	if IsRetriable(errors.New("plain")) || IsPermanent(errors.New("plain")) {
		t.Error("plain errors are neither retriable nor permanent")
	}
}

func TestCodeOf(t *testing.T) {
	if got := CodeOf(fmt.Errorf("x: %w", NewPeerError(ErrCodeCrypto, "seal", "peer-a", nil))); got != ErrCodeCrypto {
		t.Errorf("CodeOf = %v, want Crypto", got)
	}
	if got := CodeOf(errors.New("plain")); got != ErrCodeUnknown {
		t.Errorf("CodeOf(plain) = %v, want Unknown", got)
	}
}

func TestNewPeerError(t *testing.T) {
	cause := errors.New("boom")
	err := NewPeerError(ErrCodeHandshake, "derive keys", "peer-b", cause)

	if err.Peer != "peer-b" || err.Cause != cause || err.Code != ErrCodeHandshake {
		t.Errorf("unexpected error: %+v", err)
	}
}
