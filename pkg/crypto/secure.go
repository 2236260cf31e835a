// Package crypto provides the primitives behind an encounter session: ephemeral
// X25519 key agreement, HKDF-SHA256 directional key derivation and the
// ChaCha20-Poly1305 secure channel.
package crypto

// SecureZero overwrites b with zeros so ephemeral private keys, shared
// secrets and derived session keys do not linger in memory after use.
//
// The garbage collector makes no guarantee about freed memory, so this is
// the only way to wipe key material before a slice becomes unreachable.
func SecureZero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// SecureZeroMultiple zeros every slice given.
func SecureZeroMultiple(slices ...[]byte) {
	for _, b := range slices {
		SecureZero(b)
	}
}
