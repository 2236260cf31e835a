package lan

import "github.com/libp2p/go-libp2p/core/protocol"

const (
	// SessionProtocolID is the protocol for the per-peer session stream
	// that carries hello, invitation and data frames.
	SessionProtocolID protocol.ID = "/encounter/session/1.0.0"

	// DefaultServiceTag is the mDNS service name peers advertise under.
	DefaultServiceTag = "encounter"
)
