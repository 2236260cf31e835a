package encounter

import (
	"fmt"
	"time"

	"github.com/blockberries/encounter/pkg/connection"
	"github.com/blockberries/encounter/pkg/router"
	"github.com/blockberries/encounter/pkg/session"
)

// ConnectionState represents the state of the session connection.
// This is re-exported from the connection package for public API.
type ConnectionState = connection.ConnectionState

const (
	// StateDisconnected indicates no connection exists.
	StateDisconnected = connection.StateDisconnected

	// StateConnecting indicates an invitation was accepted and the
	// transport is connecting.
	StateConnecting = connection.StateConnecting

	// StateHandshaking indicates the transport is connected and the key
	// exchange is running.
	StateHandshaking = connection.StateHandshaking

	// StateEstablished indicates the secure channel is ready.
	StateEstablished = connection.StateEstablished
)

// Quality is the keepalive-derived link quality.
type Quality = session.Quality

const (
	QualityUnknown = session.QualityUnknown
	QualityPoor    = session.QualityPoor
	QualityFair    = session.QualityFair
	QualityGood    = session.QualityGood
)

// SessionMetrics is a snapshot of the current session.
type SessionMetrics = session.Metrics

// EventKind identifies an event on the UI stream.
type EventKind int

const (
	// EventConnectionStateChanged reports a connection state transition.
	EventConnectionStateChanged EventKind = iota

	// EventHandshakeComplete reports that the secure channel is ready.
	EventHandshakeComplete

	// EventSessionStarted reports that BeginSession started counting.
	EventSessionStarted

	// EventUserMessage carries an inbound chat message.
	EventUserMessage

	// EventSystemMessage carries an inbound interpreted control message.
	EventSystemMessage

	// EventMeaningfulInteraction reports that the session crossed the
	// meaningful-interaction thresholds. It fires once per session.
	EventMeaningfulInteraction

	// EventConnectionQualityChanged reports a new keepalive quality.
	EventConnectionQualityChanged
)

// String returns the event kind name used in metric labels.
func (k EventKind) String() string {
	switch k {
	case EventConnectionStateChanged:
		return "connection_state_changed"
	case EventHandshakeComplete:
		return "handshake_complete"
	case EventSessionStarted:
		return "session_started"
	case EventUserMessage:
		return "user_message"
	case EventSystemMessage:
		return "system_message"
	case EventMeaningfulInteraction:
		return "meaningful_interaction"
	case EventConnectionQualityChanged:
		return "connection_quality_changed"
	default:
		return fmt.Sprintf("EventKind(%d)", k)
	}
}

// Event is one notification on the UI stream. Only the fields relevant to
// Kind are set.
type Event struct {
	Kind EventKind

	// Peer is the remote peer this event relates to.
	Peer string

	// State and Role are set for EventConnectionStateChanged.
	State ConnectionState
	Role  string

	// Error is set when a connection ended before the handshake completed.
	Error error

	// Text is set for EventUserMessage.
	Text string

	// System is set for EventSystemMessage.
	System *router.SystemMessage

	// Session is set for EventSessionStarted and EventMeaningfulInteraction.
	Session SessionMetrics

	// Quality is set for EventConnectionQualityChanged.
	Quality Quality

	// Timestamp is when this event occurred.
	Timestamp time.Time
}

// IsError returns true if this event represents an error condition.
func (e Event) IsError() bool {
	return e.Error != nil
}
