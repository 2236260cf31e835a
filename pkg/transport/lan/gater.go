package lan

import (
	"github.com/libp2p/go-libp2p/core/connmgr"
	"github.com/libp2p/go-libp2p/core/control"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// Blocker reports whether an identity is blocked. The gater asks it about
// libp2p peer IDs in their string form.
type Blocker interface {
	IsBlocked(id string) bool
}

// ConnectionGater refuses libp2p connections to and from blocked peers so
// that a blocked device never gets as far as a session stream.
type ConnectionGater struct {
	blocker Blocker
}

// NewConnectionGater creates a gater backed by blocker. A nil blocker
// allows everyone.
func NewConnectionGater(blocker Blocker) *ConnectionGater {
	return &ConnectionGater{blocker: blocker}
}

func (g *ConnectionGater) blocked(p peer.ID) bool {
	return g.blocker != nil && g.blocker.IsBlocked(p.String())
}

// InterceptPeerDial is called before dialing a peer.
func (g *ConnectionGater) InterceptPeerDial(p peer.ID) bool {
	return !g.blocked(p)
}

// InterceptAddrDial is called before dialing a specific address.
func (g *ConnectionGater) InterceptAddrDial(p peer.ID, _ multiaddr.Multiaddr) bool {
	return !g.blocked(p)
}

// InterceptAccept allows every inbound connection; the peer ID is not yet
// known.
func (g *ConnectionGater) InterceptAccept(network.ConnMultiaddrs) bool {
	return true
}

// InterceptSecured is called once the remote peer ID is authenticated.
func (g *ConnectionGater) InterceptSecured(_ network.Direction, p peer.ID, _ network.ConnMultiaddrs) bool {
	return !g.blocked(p)
}

// InterceptUpgraded is the final check on a fully upgraded connection.
func (g *ConnectionGater) InterceptUpgraded(conn network.Conn) (bool, control.DisconnectReason) {
	if g.blocked(conn.RemotePeer()) {
		return false, 0
	}
	return true, 0
}

var _ connmgr.ConnectionGater = (*ConnectionGater)(nil)
