// Package connection turns transport discovery and connection signals into
// a single live, handshaked session, applying blocklist and cooldown policy
// along the way.
package connection

import "fmt"

// ConnectionState represents the state of a peer connection.
type ConnectionState int

const (
	// StateDisconnected indicates no connection exists.
	StateDisconnected ConnectionState = iota

	// StateConnecting indicates the transport is negotiating a connection.
	StateConnecting

	// StateHandshaking indicates the transport is connected and the key
	// exchange is in progress.
	StateHandshaking

	// StateEstablished indicates keys are derived and the secure channel
	// is usable.
	StateEstablished
)

// String returns a human-readable representation of the connection state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "Disconnected"
	case StateConnecting:
		return "Connecting"
	case StateHandshaking:
		return "Handshaking"
	case StateEstablished:
		return "Established"
	default:
		return fmt.Sprintf("Unknown(%d)", s)
	}
}

// IsActive returns true if the connection is connected or establishing.
func (s ConnectionState) IsActive() bool {
	return s == StateConnecting || s == StateHandshaking || s == StateEstablished
}

// CanTransitionTo checks if a transition from the current state to
// the target state is valid.
func (s ConnectionState) CanTransitionTo(target ConnectionState) bool {
	validTransitions := map[ConnectionState][]ConnectionState{
		StateDisconnected: {StateConnecting, StateHandshaking},
		StateConnecting:   {StateHandshaking, StateDisconnected},
		StateHandshaking:  {StateEstablished, StateDisconnected},
		StateEstablished:  {StateDisconnected},
	}

	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// ValidateTransition returns an error if the transition is invalid.
func (s ConnectionState) ValidateTransition(target ConnectionState) error {
	if !s.CanTransitionTo(target) {
		return fmt.Errorf("invalid state transition: %s -> %s", s, target)
	}
	return nil
}
