package lan

import (
	"crypto/ed25519"
	"fmt"

	"github.com/libp2p/go-libp2p"
	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
)

// DefaultListenAddr listens on every interface on an ephemeral port.
const DefaultListenAddr = "/ip4/0.0.0.0/tcp/0"

// newHost builds a libp2p host for local-network use. Relay, hole punching
// and NAT port mapping stay off: peers are expected on the same link.
func newHost(cfg Config, gater *ConnectionGater) (host.Host, error) {
	opts := []libp2p.Option{
		libp2p.ConnectionGater(gater),
	}

	if len(cfg.PrivateKey) > 0 {
		if len(cfg.PrivateKey) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("invalid ed25519 private key length %d", len(cfg.PrivateKey))
		}
		priv, err := crypto.UnmarshalEd25519PrivateKey(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("failed to convert private key: %w", err)
		}
		opts = append(opts, libp2p.Identity(priv))
	}

	if len(cfg.ListenAddrs) > 0 {
		opts = append(opts, libp2p.ListenAddrs(cfg.ListenAddrs...))
	} else {
		opts = append(opts, libp2p.ListenAddrStrings(DefaultListenAddr))
	}

	cm, err := connmgr.NewConnManager(
		cfg.ConnMgrLowWater,
		cfg.ConnMgrHighWater,
		connmgr.WithGracePeriod(0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection manager: %w", err)
	}
	opts = append(opts, libp2p.ConnectionManager(cm))

	h, err := libp2p.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create libp2p host: %w", err)
	}
	return h, nil
}
