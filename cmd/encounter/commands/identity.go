package commands

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

const (
	keyFile   = "identity.key"
	tokenFile = "identity.token"
)

// identity is the device's long-lived key and the application token
// other peers see and may block.
type identity struct {
	Key   ed25519.PrivateKey
	Token string
}

// PeerID returns the libp2p peer ID derived from the key.
func (id identity) PeerID() (peer.ID, error) {
	priv, err := crypto.UnmarshalEd25519PrivateKey(id.Key)
	if err != nil {
		return "", err
	}
	return peer.IDFromPrivateKey(priv)
}

// loadOrCreateIdentity reads the key and token from dir, creating whichever
// is missing.
func loadOrCreateIdentity(dir string) (identity, error) {
	key, err := loadOrCreateKey(filepath.Join(dir, keyFile))
	if err != nil {
		return identity{}, err
	}
	token, err := loadOrCreateToken(filepath.Join(dir, tokenFile))
	if err != nil {
		return identity{}, err
	}
	return identity{Key: key, Token: token}, nil
}

func loadOrCreateKey(path string) (ed25519.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		key, err := hex.DecodeString(strings.TrimSpace(string(raw)))
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
		if len(key) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("%s: bad key length %d", path, len(key))
		}
		return ed25519.PrivateKey(key), nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, []byte(hex.EncodeToString(key)+"\n"), 0o600); err != nil {
		return nil, err
	}
	return key, nil
}

func loadOrCreateToken(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		token := strings.TrimSpace(string(raw))
		if token == "" {
			return "", fmt.Errorf("%s is empty", path)
		}
		return token, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", err
	}

	token := uuid.NewString()
	if err := os.WriteFile(path, []byte(token+"\n"), 0o600); err != nil {
		return "", err
	}
	return token, nil
}
