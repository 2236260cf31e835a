package crypto

import (
	"errors"
	"fmt"
	"sync"
	"unicode/utf8"
)

var (
	// ErrNoKey is returned by Seal and Open before Establish.
	ErrNoKey = errors.New("secure channel has no key")

	// ErrMalformedCiphertext is returned by Open for blobs that are too
	// short or that decrypt to invalid UTF-8.
	ErrMalformedCiphertext = errors.New("malformed ciphertext")

	// ErrInvalidPlaintext is returned by Seal for text that is not UTF-8.
	ErrInvalidPlaintext = errors.New("plaintext is not UTF-8")
)

// SecureChannel carries UTF-8 text between two peers using one key per
// direction. The sending key of one side is the receiving key of the other.
//
// Every error returned by Open means the same thing to callers: drop the
// message.
type SecureChannel struct {
	mu        sync.RWMutex
	sending   *Cipher
	receiving *Cipher
}

// NewSecureChannel returns a channel with no keys installed.
func NewSecureChannel() *SecureChannel {
	return &SecureChannel{}
}

// Establish installs the directional keys. The channel keeps its own
// copies; callers may zero theirs afterwards.
func (c *SecureChannel) Establish(sendingKey, receivingKey []byte) error {
	sending, err := NewCipher(sendingKey)
	if err != nil {
		return fmt.Errorf("sending key: %w", err)
	}
	receiving, err := NewCipher(receivingKey)
	if err != nil {
		sending.Close()
		return fmt.Errorf("receiving key: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.closeLocked()
	c.sending = sending
	c.receiving = receiving
	return nil
}

// Ready reports whether keys are installed.
func (c *SecureChannel) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sending != nil
}

// Seal encrypts plaintext with the sending key. plaintext must be valid
// UTF-8, the same contract Open enforces.
func (c *SecureChannel) Seal(plaintext string) ([]byte, error) {
	if !utf8.ValidString(plaintext) {
		return nil, ErrInvalidPlaintext
	}

	c.mu.RLock()
	sending := c.sending
	c.mu.RUnlock()

	if sending == nil {
		return nil, ErrNoKey
	}
	blob, err := sending.Seal([]byte(plaintext))
	if errors.Is(err, ErrCipherClosed) {
		return nil, ErrNoKey
	}
	return blob, err
}

// Open decrypts and authenticates a blob with the receiving key.
func (c *SecureChannel) Open(blob []byte) (string, error) {
	c.mu.RLock()
	receiving := c.receiving
	c.mu.RUnlock()

	if receiving == nil {
		return "", ErrNoKey
	}

	plaintext, err := receiving.Open(blob)
	switch {
	case err == nil:
	case errors.Is(err, ErrCiphertextTooShort):
		return "", fmt.Errorf("%w: %v", ErrMalformedCiphertext, err)
	case errors.Is(err, ErrCipherClosed):
		return "", ErrNoKey
	default:
		return "", err
	}

	if !utf8.Valid(plaintext) {
		return "", fmt.Errorf("%w: plaintext is not UTF-8", ErrMalformedCiphertext)
	}
	return string(plaintext), nil
}

// Close zeroizes both keys. Seal and Open return ErrNoKey afterwards.
func (c *SecureChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *SecureChannel) closeLocked() {
	if c.sending != nil {
		c.sending.Close()
		c.sending = nil
	}
	if c.receiving != nil {
		c.receiving.Close()
		c.receiving = nil
	}
}
