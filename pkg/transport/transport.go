// Package transport defines the boundary between an encounter node and the
// local peer transport that discovers nearby devices and moves bytes between
// them.
//
// Every operation is fire-and-forget: results arrive later on the Events
// channel. Bytes from a given peer are delivered in the order they were sent.
package transport

import "fmt"

// PeerID identifies a remote endpoint for the duration of discovery and
// connection. Ordering is used only as a deterministic tie-break.
type PeerID string

// String implements fmt.Stringer.
func (p PeerID) String() string {
	return string(p)
}

// ConnState is a transport-level connection state.
type ConnState int

const (
	// StateNotConnected means no transport connection exists.
	StateNotConnected ConnState = iota

	// StateConnecting means the transport is negotiating a connection.
	StateConnecting

	// StateConnected means bytes can flow.
	StateConnected
)

// String returns a human-readable name for the state.
func (s ConnState) String() string {
	switch s {
	case StateNotConnected:
		return "NotConnected"
	case StateConnecting:
		return "Connecting"
	case StateConnected:
		return "Connected"
	default:
		return fmt.Sprintf("ConnState(%d)", s)
	}
}

// InviteResult is the terminal outcome of an outbound invitation.
type InviteResult int

const (
	// InviteAccepted means the peer accepted; a Connected state follows.
	InviteAccepted InviteResult = iota

	// InviteRejected means the peer declined.
	InviteRejected

	// InviteTimeout means the peer did not answer in time.
	InviteTimeout
)

// String returns a human-readable name for the result.
func (r InviteResult) String() string {
	switch r {
	case InviteAccepted:
		return "accepted"
	case InviteRejected:
		return "rejected"
	case InviteTimeout:
		return "timeout"
	default:
		return fmt.Sprintf("InviteResult(%d)", r)
	}
}

// DiscoveryInfo is the context a peer advertises or attaches to an
// invitation. Token is the application identity token checked against the
// blocklist before any connection exists.
type DiscoveryInfo struct {
	Token string
}

// EventKind identifies the kind of transport event.
type EventKind int

const (
	EventPeerFound EventKind = iota
	EventPeerLost
	EventConnectionState
	EventDataReceived
	EventInvitationReceived
	EventInviteResult
)

// String returns a human-readable name for the event kind.
func (k EventKind) String() string {
	switch k {
	case EventPeerFound:
		return "PeerFound"
	case EventPeerLost:
		return "PeerLost"
	case EventConnectionState:
		return "ConnectionState"
	case EventDataReceived:
		return "DataReceived"
	case EventInvitationReceived:
		return "InvitationReceived"
	case EventInviteResult:
		return "InviteResult"
	default:
		return fmt.Sprintf("EventKind(%d)", k)
	}
}

// Event is a single notification from the transport. Which fields are set
// depends on Kind.
type Event struct {
	Kind EventKind
	Peer PeerID

	// Info is set for PeerFound and InvitationReceived.
	Info DiscoveryInfo

	// State is set for ConnectionState.
	State ConnState

	// Data is set for DataReceived.
	Data []byte

	// Result is set for InviteResult.
	Result InviteResult

	// Respond answers an InvitationReceived event. It must be called at
	// most once; later calls are ignored.
	Respond func(accept bool)
}

// Transport is the local peer transport consumed by an encounter node.
type Transport interface {
	// LocalPeer returns this endpoint's identity.
	LocalPeer() PeerID

	// StartDiscovery begins advertising and browsing.
	StartDiscovery() error

	// StopDiscovery stops advertising and browsing. Existing connections
	// are unaffected.
	StopDiscovery() error

	// Invite asks a discovered peer to connect. The outcome arrives as an
	// EventInviteResult.
	Invite(peer PeerID, info DiscoveryInfo) error

	// Send queues bytes for delivery to a connected peer.
	Send(peer PeerID, data []byte) error

	// Disconnect closes the connection to a peer. A NotConnected state
	// event follows.
	Disconnect(peer PeerID) error

	// Events returns the channel on which all transport events are
	// delivered. It is closed by Close.
	Events() <-chan Event

	// Close releases all resources.
	Close() error
}
