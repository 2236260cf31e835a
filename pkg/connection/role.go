package connection

import (
	"github.com/blockberries/encounter/internal/handshake"
	"github.com/blockberries/encounter/pkg/transport"
)

// AssignRole decides the handshake role from the two identities alone. The
// lexicographically lower identity is the Initiator, so both sides agree
// without exchanging anything.
func AssignRole(local, remote transport.PeerID) handshake.Role {
	if local < remote {
		return handshake.RoleInitiator
	}
	return handshake.RoleResponder
}

// ShouldInitiate reports whether the local side issues the invitation to
// remote. Only the future Initiator invites, which prevents crossing
// invitations.
func ShouldInitiate(local, remote transport.PeerID) bool {
	return AssignRole(local, remote) == handshake.RoleInitiator
}
