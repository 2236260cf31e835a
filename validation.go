package encounter

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/blockberries/encounter/pkg/router"
	"github.com/blockberries/encounter/pkg/session"
)

// maxTokenLength bounds identity tokens carried in discovery info.
const maxTokenLength = 256

// ValidateUserMessage checks that text can be sent as a user message.
// A user message must:
//   - Be non-empty valid UTF-8
//   - Not exceed maxSize bytes (if maxSize > 0)
//   - Not start with the system prefix or equal the keepalive sentinel,
//     since the peer would classify it as control traffic
func ValidateUserMessage(text string, maxSize int) error {
	if text == "" {
		return ErrEmptyMessage
	}
	if err := validateSize(text, maxSize); err != nil {
		return err
	}
	if !utf8.ValidString(text) {
		return ErrInvalidEncoding
	}
	if strings.HasPrefix(text, router.SystemPrefix) || session.IsSentinel(text) {
		return ErrReservedPrefix
	}
	return nil
}

// ValidateSystemMessage checks that wire is a well-formed control message
// built by the router formatters.
func ValidateSystemMessage(wire string, maxSize int) error {
	if !strings.HasPrefix(wire, router.SystemPrefix) || len(wire) == len(router.SystemPrefix) {
		return ErrNotSystemMessage
	}
	if err := validateSize(wire, maxSize); err != nil {
		return err
	}
	if !utf8.ValidString(wire) {
		return ErrInvalidEncoding
	}
	return nil
}

func validateSize(s string, maxSize int) error {
	if maxSize > 0 && len(s) > maxSize {
		return fmt.Errorf("%w: %d bytes exceeds maximum of %d bytes",
			ErrMessageTooLarge, len(s), maxSize)
	}
	return nil
}
