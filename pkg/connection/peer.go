package connection

import (
	"fmt"
	"time"

	"github.com/blockberries/encounter/internal/handshake"
	"github.com/blockberries/encounter/pkg/clock"
	"github.com/blockberries/encounter/pkg/crypto"
	"github.com/blockberries/encounter/pkg/transport"
)

// PeerConnection is the per-peer record the Manager keeps from transport
// connect to transport disconnect: role, handshake, secure channel and
// state. It is NOT safe for concurrent use; the Manager serializes access.
type PeerConnection struct {
	Peer      transport.PeerID
	Role      handshake.Role
	Handshake *handshake.Handshake
	Channel   *crypto.SecureChannel

	handshakeTimer clock.Timer

	state           ConnectionState
	connectedAt     time.Time
	establishedAt   time.Time
	lastStateChange time.Time
}

func newPeerConnection(peer transport.PeerID, role handshake.Role, hs *handshake.Handshake, now time.Time) *PeerConnection {
	return &PeerConnection{
		Peer:            peer,
		Role:            role,
		Handshake:       hs,
		Channel:         crypto.NewSecureChannel(),
		state:           StateHandshaking,
		connectedAt:     now,
		lastStateChange: now,
	}
}

// State returns the current connection state.
func (pc *PeerConnection) State() ConnectionState {
	return pc.state
}

// ConnectedAt returns when the transport connection came up.
func (pc *PeerConnection) ConnectedAt() time.Time {
	return pc.connectedAt
}

// EstablishedAt returns when the handshake completed, or the zero time.
func (pc *PeerConnection) EstablishedAt() time.Time {
	return pc.establishedAt
}

// TransitionTo moves the connection to a new state.
// Returns an error if the transition is invalid.
func (pc *PeerConnection) TransitionTo(newState ConnectionState, now time.Time) error {
	if err := pc.state.ValidateTransition(newState); err != nil {
		return fmt.Errorf("peer %s: %w", pc.Peer, err)
	}
	pc.state = newState
	pc.lastStateChange = now
	if newState == StateEstablished {
		pc.establishedAt = now
	}
	return nil
}

// Close invalidates all key material held for this peer.
func (pc *PeerConnection) Close() {
	pc.stopHandshakeTimer()
	pc.Handshake.Zero()
	pc.Channel.Close()
	pc.state = StateDisconnected
}

func (pc *PeerConnection) stopHandshakeTimer() {
	if pc.handshakeTimer != nil {
		pc.handshakeTimer.Stop()
		pc.handshakeTimer = nil
	}
}
