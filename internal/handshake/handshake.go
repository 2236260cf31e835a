// Package handshake implements the two-message ephemeral X25519 exchange that
// turns a fresh transport connection into a pair of directional session keys.
//
// The initiator sends its raw 32-byte ephemeral public key; the responder
// answers with its own and is complete immediately; the initiator completes on
// receipt of the reply. The exchange authenticates no identity: it protects
// against passive observers of the transport only.
package handshake

import (
	"errors"
	"fmt"
	"sync"

	"github.com/blockberries/encounter/pkg/crypto"
)

// Keys are the derived directional session keys for one side.
type Keys struct {
	Sending   []byte
	Receiving []byte
}

// Handshake drives one handshake attempt. A new connection needs a new
// instance. All methods are safe for concurrent use.
type Handshake struct {
	mu        sync.Mutex
	role      Role
	state     State
	ephemeral *crypto.EphemeralKey
	keys      *Keys
	done      chan struct{}
}

// New creates a handshake for the given role with a fresh ephemeral key.
func New(role Role) (*Handshake, error) {
	if role != RoleInitiator && role != RoleResponder {
		return nil, fmt.Errorf("unknown role %v", role)
	}

	ephemeral, err := crypto.GenerateEphemeralKey()
	if err != nil {
		return nil, err
	}

	return &Handshake{
		role:      role,
		state:     StateInitial,
		ephemeral: ephemeral,
		done:      make(chan struct{}),
	}, nil
}

// Role returns the role this handshake was created for.
func (h *Handshake) Role() Role {
	return h.role
}

// State returns the current handshake state.
func (h *Handshake) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// IsComplete returns true once keys have been derived.
func (h *Handshake) IsComplete() bool {
	return h.State() == StateComplete
}

// Done returns a channel that is closed when the handshake completes.
func (h *Handshake) Done() <-chan struct{} {
	return h.done
}

// Keys returns copies of the derived keys. ok is false until the handshake
// is complete.
func (h *Handshake) Keys() (keys Keys, ok bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.keys == nil {
		return Keys{}, false
	}
	keys.Sending = append([]byte(nil), h.keys.Sending...)
	keys.Receiving = append([]byte(nil), h.keys.Receiving...)
	return keys, true
}

// CreateInitialMessage returns the initiator's public key and moves the
// handshake to AwaitingReply.
func (h *Handshake) CreateInitialMessage() ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.role != RoleInitiator {
		return nil, fmt.Errorf("%w: %v cannot create the initial message", ErrWrongRole, h.role)
	}
	if err := h.transitionLocked(StateAwaitingReply); err != nil {
		return nil, err
	}
	return h.ephemeral.PublicKey(), nil
}

// HandleInitialMessage consumes the initiator's public key, derives keys and
// returns the responder's public key as the reply. On malformed input it
// returns ErrMalformedKey and stays in Initial so a retried message can still
// be accepted.
func (h *Handshake) HandleInitialMessage(msg []byte) ([]byte, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.role != RoleResponder {
		return nil, fmt.Errorf("%w: %v cannot handle the initial message", ErrWrongRole, h.role)
	}
	if !isValidTransition(h.role, h.state, StateComplete) {
		return nil, fmt.Errorf("%w: %v -> %v", ErrInvalidStateTransition, h.state, StateComplete)
	}
	if err := h.deriveLocked(msg); err != nil {
		return nil, err
	}
	reply := h.ephemeral.PublicKey()
	h.completeLocked()
	return reply, nil
}

// HandleReply consumes the responder's public key and derives keys. On
// malformed input it returns ErrMalformedKey and stays in AwaitingReply.
func (h *Handshake) HandleReply(msg []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.role != RoleInitiator {
		return fmt.Errorf("%w: %v cannot handle a reply", ErrWrongRole, h.role)
	}
	if !isValidTransition(h.role, h.state, StateComplete) {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidStateTransition, h.state, StateComplete)
	}
	if err := h.deriveLocked(msg); err != nil {
		return err
	}
	h.completeLocked()
	return nil
}

// HandleMessage feeds an inbound handshake message to whichever step the
// role and state call for. reply is non-nil only when the responder must
// answer.
func (h *Handshake) HandleMessage(msg []byte) (reply []byte, err error) {
	if h.role == RoleResponder {
		return h.HandleInitialMessage(msg)
	}
	return nil, h.HandleReply(msg)
}

// Zero wipes the ephemeral private key and any derived keys.
func (h *Handshake) Zero() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.ephemeral.Zero()
	if h.keys != nil {
		crypto.SecureZeroMultiple(h.keys.Sending, h.keys.Receiving)
		h.keys = nil
	}
}

func (h *Handshake) deriveLocked(remotePublic []byte) error {
	first, second, err := h.ephemeral.DeriveSessionKeys(remotePublic)
	if err != nil {
		if errors.Is(err, crypto.ErrInvalidPublicKey) {
			return fmt.Errorf("%w: %v", ErrMalformedKey, err)
		}
		return err
	}

	// The first half protects initiator-to-responder traffic.
	if h.role == RoleInitiator {
		h.keys = &Keys{Sending: first, Receiving: second}
	} else {
		h.keys = &Keys{Sending: second, Receiving: first}
	}
	return nil
}

func (h *Handshake) completeLocked() {
	h.state = StateComplete
	h.ephemeral.Zero()
	close(h.done)
}

func (h *Handshake) transitionLocked(to State) error {
	if !isValidTransition(h.role, h.state, to) {
		return fmt.Errorf("%w: %v -> %v", ErrInvalidStateTransition, h.state, to)
	}
	h.state = to
	return nil
}
