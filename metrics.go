package encounter

import "github.com/blockberries/encounter/pkg/connection"

// Metrics defines the metrics collection interface for encounter.
// It is designed to be compatible with Prometheus and other metrics systems.
//
// Implementations must be safe for concurrent use.
//
// Metric naming convention:
//   - Counters: <name>_total (e.g., invitations_sent_total)
//   - Histograms: <name>_seconds (e.g., handshake_duration_seconds)
//   - Gauges: current_<name> (e.g., current_connection_quality)
type Metrics interface {
	// Matching metrics

	// InvitationSent increments when an outbound invitation is issued.
	InvitationSent()

	// InvitationResult records the outcome of an outbound invitation.
	// Labels: result (accepted, rejected, timeout)
	InvitationResult(result string)

	// PolicyRejection records a refused match.
	// Labels: direction (inbound, outbound), reason (blocked, cooldown, busy, in_flight)
	PolicyRejection(direction, reason string)

	// Handshake and crypto metrics

	// HandshakeCompleted records the time from connected to established.
	// Labels: role (initiator, responder)
	HandshakeCompleted(role string, seconds float64)

	// HandshakeMessageDropped records a malformed or unexpected handshake message.
	HandshakeMessageDropped()

	// DecryptionError records a payload that failed to open.
	DecryptionError()

	// PendingFrameDropped records a frame dropped from a full pending buffer.
	PendingFrameDropped()

	// Session metrics

	// SessionStarted increments when a session begins.
	SessionStarted()

	// SessionEnded records a finished session.
	// Labels: meaningful (true, false)
	SessionEnded(seconds float64, meaningful bool)

	// MeaningfulInteraction increments when a session becomes meaningful.
	MeaningfulInteraction()

	// Message metrics

	// MessageSent records an outbound plaintext.
	// Labels: kind (user, system)
	MessageSent(kind string, bytes int)

	// MessageReceived records an inbound plaintext.
	// Labels: kind (user, system, unknown)
	MessageReceived(kind string, bytes int)

	// Keepalive metrics

	// KeepaliveSent records a keepalive attempt.
	// Labels: result (success, failure)
	KeepaliveSent(ok bool)

	// ConnectionQuality sets the current link quality.
	// Labels: quality (unknown, poor, fair, good)
	ConnectionQuality(quality string)

	// Event metrics

	// EventEmitted records an event delivered to the event stream.
	// Labels: kind (the event kind)
	EventEmitted(kind string)

	// EventDropped records an event discarded by the overflow policy.
	// Labels: kind (the event kind)
	EventDropped(kind string)

	// PersistenceError records a failed persistence call.
	// Labels: op (blocked_identities, record_session_end, award_meaningful_interaction)
	PersistenceError(op string)
}

// NopMetrics is a no-op metrics implementation that discards all metrics.
// It is the default when no metrics collector is configured.
type NopMetrics struct{}

// Ensure NopMetrics implements Metrics and the connection manager's subset.
var (
	_ Metrics            = NopMetrics{}
	_ connection.Metrics = Metrics(nil)
)

// InvitationSent implements Metrics.InvitationSent (no-op).
func (NopMetrics) InvitationSent() {}

// InvitationResult implements Metrics.InvitationResult (no-op).
func (NopMetrics) InvitationResult(result string) {}

// PolicyRejection implements Metrics.PolicyRejection (no-op).
func (NopMetrics) PolicyRejection(direction, reason string) {}

// HandshakeCompleted implements Metrics.HandshakeCompleted (no-op).
func (NopMetrics) HandshakeCompleted(role string, seconds float64) {}

// HandshakeMessageDropped implements Metrics.HandshakeMessageDropped (no-op).
func (NopMetrics) HandshakeMessageDropped() {}

// DecryptionError implements Metrics.DecryptionError (no-op).
func (NopMetrics) DecryptionError() {}

// PendingFrameDropped implements Metrics.PendingFrameDropped (no-op).
func (NopMetrics) PendingFrameDropped() {}

// SessionStarted implements Metrics.SessionStarted (no-op).
func (NopMetrics) SessionStarted() {}

// SessionEnded implements Metrics.SessionEnded (no-op).
func (NopMetrics) SessionEnded(seconds float64, meaningful bool) {}

// MeaningfulInteraction implements Metrics.MeaningfulInteraction (no-op).
func (NopMetrics) MeaningfulInteraction() {}

// MessageSent implements Metrics.MessageSent (no-op).
func (NopMetrics) MessageSent(kind string, bytes int) {}

// MessageReceived implements Metrics.MessageReceived (no-op).
func (NopMetrics) MessageReceived(kind string, bytes int) {}

// KeepaliveSent implements Metrics.KeepaliveSent (no-op).
func (NopMetrics) KeepaliveSent(ok bool) {}

// ConnectionQuality implements Metrics.ConnectionQuality (no-op).
func (NopMetrics) ConnectionQuality(quality string) {}

// EventEmitted implements Metrics.EventEmitted (no-op).
func (NopMetrics) EventEmitted(kind string) {}

// EventDropped implements Metrics.EventDropped (no-op).
func (NopMetrics) EventDropped(kind string) {}

// PersistenceError implements Metrics.PersistenceError (no-op).
func (NopMetrics) PersistenceError(op string) {}
