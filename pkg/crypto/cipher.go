package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	// NonceSize is the size of the nonce used with ChaCha20-Poly1305.
	NonceSize = chacha20poly1305.NonceSize // 12 bytes

	// TagSize is the size of the authentication tag.
	TagSize = chacha20poly1305.Overhead // 16 bytes

	// KeySize is the required key size for ChaCha20-Poly1305.
	KeySize = chacha20poly1305.KeySize // 32 bytes

	// Overhead is the number of bytes Seal adds to a plaintext.
	Overhead = NonceSize + TagSize
)

var (
	// ErrCiphertextTooShort is returned when a blob cannot hold a nonce and tag.
	ErrCiphertextTooShort = errors.New("ciphertext too short")

	// ErrAuthenticationFailed is returned when the tag does not verify.
	ErrAuthenticationFailed = errors.New("authentication tag mismatch")

	// ErrCipherClosed is returned by a Cipher after Close.
	ErrCipherClosed = errors.New("cipher closed")
)

// Cipher seals and opens blobs under a single ChaCha20-Poly1305 key.
// It is safe for concurrent use.
//
// The blob format is [12-byte nonce][ciphertext][16-byte tag]; every Seal
// draws a fresh random nonce.
type Cipher struct {
	mu   sync.RWMutex
	aead aead
	key  []byte
}

// aead is the subset of cipher.AEAD we depend on.
type aead interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// NewCipher creates a cipher over a copy of key, which must be KeySize bytes.
func NewCipher(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("invalid key size: expected %d bytes, got %d", KeySize, len(key))
	}

	a, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	keyCopy := make([]byte, len(key))
	copy(keyCopy, key)

	return &Cipher{aead: a, key: keyCopy}, nil
}

// Seal encrypts plaintext under a fresh random nonce.
func (c *Cipher) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return c.sealWithNonce(nonce, plaintext)
}

func (c *Cipher) sealWithNonce(nonce, plaintext []byte) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.aead == nil {
		return nil, ErrCipherClosed
	}

	out := make([]byte, NonceSize, NonceSize+len(plaintext)+TagSize)
	copy(out, nonce)
	return c.aead.Seal(out, nonce, plaintext, nil), nil
}

// Open verifies and decrypts a blob produced by Seal.
func (c *Cipher) Open(blob []byte) ([]byte, error) {
	if len(blob) < Overhead {
		return nil, fmt.Errorf("%w: minimum %d bytes, got %d", ErrCiphertextTooShort, Overhead, len(blob))
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.aead == nil {
		return nil, ErrCipherClosed
	}

	plaintext, err := c.aead.Open(nil, blob[:NonceSize], blob[NonceSize:], nil)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}
	return plaintext, nil
}

// Close zeros our copy of the key. The AEAD keeps its own expanded copy
// that cannot be reached from outside x/crypto; dropping the reference lets
// it be collected.
func (c *Cipher) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.aead == nil {
		return
	}
	SecureZero(c.key)
	c.key = nil
	c.aead = nil
}

// IsClosed reports whether Close has been called.
func (c *Cipher) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.aead == nil
}
