package handshake

import (
	"errors"
	"fmt"
)

// State represents the progress of a single handshake attempt.
type State int

const (
	// StateInitial is the state before any handshake message is produced
	// or consumed.
	StateInitial State = iota

	// StateAwaitingReply means the initiator has sent its public key and is
	// waiting for the responder's.
	StateAwaitingReply

	// StateComplete means directional keys have been derived. It is terminal.
	StateComplete
)

// String returns a human-readable name for the handshake state.
func (s State) String() string {
	switch s {
	case StateInitial:
		return "Initial"
	case StateAwaitingReply:
		return "AwaitingReply"
	case StateComplete:
		return "Complete"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Role is the side a peer plays in a handshake. Exactly one side of a
// connection is the Initiator.
type Role int

const (
	// RoleInitiator sends the first handshake message.
	RoleInitiator Role = iota

	// RoleResponder answers the initiator's message.
	RoleResponder
)

// String returns a human-readable name for the role.
func (r Role) String() string {
	switch r {
	case RoleInitiator:
		return "initiator"
	case RoleResponder:
		return "responder"
	default:
		return fmt.Sprintf("Role(%d)", r)
	}
}

// Sentinel errors for the handshake state machine.
var (
	// ErrInvalidStateTransition indicates a call that is not valid in the
	// current state.
	ErrInvalidStateTransition = errors.New("invalid handshake state transition")

	// ErrWrongRole indicates a call reserved for the other role.
	ErrWrongRole = errors.New("handshake call not valid for role")

	// ErrMalformedKey indicates a handshake message that is not a usable
	// X25519 public key. The message should be dropped.
	ErrMalformedKey = errors.New("malformed handshake key")
)

// isValidTransition reports whether a handshake may move between states.
// Valid transitions:
//
//	Initial -> AwaitingReply (initiator sends)
//	Initial -> Complete (responder answers)
//	AwaitingReply -> Complete (initiator receives reply)
//	Complete -> (terminal)
func isValidTransition(role Role, from, to State) bool {
	switch from {
	case StateInitial:
		if role == RoleInitiator {
			return to == StateAwaitingReply
		}
		return to == StateComplete
	case StateAwaitingReply:
		return role == RoleInitiator && to == StateComplete
	default:
		return false
	}
}
