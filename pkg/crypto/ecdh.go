package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"
)

const (
	// X25519KeySize is the size of X25519 private and public keys in bytes.
	X25519KeySize = 32

	// SessionKeySize is the size of each directional session key.
	SessionKeySize = 32

	// derivedKeySize is the total HKDF output: one key per direction.
	derivedKeySize = 2 * SessionKeySize

	hkdfSalt = "encounter-v1-handshake"
	hkdfInfo = "encounter-v1-directional-keys"
)

// ErrInvalidPublicKey is returned when a remote ephemeral public key has the
// wrong length or is a low-order point.
var ErrInvalidPublicKey = errors.New("invalid X25519 public key")

// EphemeralKey is an X25519 key pair generated for a single handshake
// attempt. It is never persisted.
type EphemeralKey struct {
	private []byte
	public  []byte
}

// GenerateEphemeralKey creates a fresh X25519 key pair from crypto/rand.
func GenerateEphemeralKey() (*EphemeralKey, error) {
	return generateEphemeralKey(rand.Reader)
}

func generateEphemeralKey(r io.Reader) (*EphemeralKey, error) {
	private := make([]byte, X25519KeySize)
	if _, err := io.ReadFull(r, private); err != nil {
		return nil, fmt.Errorf("failed to generate ephemeral key: %w", err)
	}
	clampX25519(private)

	public, err := curve25519.X25519(private, curve25519.Basepoint)
	if err != nil {
		SecureZero(private)
		return nil, fmt.Errorf("X25519 public key computation failed: %w", err)
	}

	return &EphemeralKey{private: private, public: public}, nil
}

// PublicKey returns a copy of the public half, suitable for the wire.
func (k *EphemeralKey) PublicKey() []byte {
	out := make([]byte, len(k.public))
	copy(out, k.public)
	return out
}

// DeriveSessionKeys runs ECDH against the remote public key and expands the
// shared secret into the two directional keys. The first key protects
// initiator-to-responder traffic, the second responder-to-initiator.
func (k *EphemeralKey) DeriveSessionKeys(remotePublic []byte) (first, second []byte, err error) {
	if k.private == nil {
		return nil, nil, errors.New("ephemeral key has been zeroed")
	}
	return DeriveSessionKeys(k.private, remotePublic)
}

// Zero wipes the private key. The key pair is unusable afterwards.
func (k *EphemeralKey) Zero() {
	SecureZero(k.private)
	k.private = nil
}

// ComputeX25519SharedSecret performs X25519 ECDH to compute a raw shared secret.
// The result should not be used directly as an encryption key; use
// DeriveSessionKeys instead.
func ComputeX25519SharedSecret(localPrivate, remotePublic []byte) ([]byte, error) {
	if len(localPrivate) != X25519KeySize {
		return nil, fmt.Errorf("invalid X25519 private key size: expected %d, got %d",
			X25519KeySize, len(localPrivate))
	}
	if len(remotePublic) != X25519KeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d",
			ErrInvalidPublicKey, X25519KeySize, len(remotePublic))
	}

	sharedSecret, err := curve25519.X25519(localPrivate, remotePublic)
	if err != nil {
		// x/crypto rejects low-order points with an all-zero output error.
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}

	allZeros := true
	for _, b := range sharedSecret {
		if b != 0 {
			allZeros = false
			break
		}
	}
	if allZeros {
		return nil, fmt.Errorf("%w: low-order point", ErrInvalidPublicKey)
	}

	return sharedSecret, nil
}

// DeriveSessionKeys computes the X25519 shared secret and runs HKDF-SHA256
// with a fixed salt and info string to produce 64 bytes, returned as two
// 32-byte halves. The raw shared secret is zeroed before returning.
func DeriveSessionKeys(localPrivate, remotePublic []byte) (first, second []byte, err error) {
	sharedSecret, err := ComputeX25519SharedSecret(localPrivate, remotePublic)
	if err != nil {
		return nil, nil, err
	}
	defer SecureZero(sharedSecret)

	okm := make([]byte, derivedKeySize)
	reader := hkdf.New(sha256.New, sharedSecret, []byte(hkdfSalt), []byte(hkdfInfo))
	if _, err := io.ReadFull(reader, okm); err != nil {
		return nil, nil, fmt.Errorf("HKDF key derivation failed: %w", err)
	}

	first = make([]byte, SessionKeySize)
	second = make([]byte, SessionKeySize)
	copy(first, okm[:SessionKeySize])
	copy(second, okm[SessionKeySize:])
	SecureZero(okm)

	return first, second, nil
}

// clampX25519 applies the standard X25519 scalar clamping in place.
func clampX25519(k []byte) {
	k[0] &= 248
	k[31] &= 127
	k[31] |= 64
}
