// Package prometheus provides a Prometheus implementation of the
// encounter.Metrics interface.
//
// # Metric Names
//
// All metrics use the configured namespace prefix (default: "encounter").
//
// # Counters
//
//	encounter_invitations_sent_total
//	encounter_invitation_results_total{result="accepted|rejected|timeout"}
//	encounter_policy_rejections_total{direction="inbound|outbound",reason="blocked|cooldown|busy|in_flight"}
//	encounter_handshake_messages_dropped_total
//	encounter_decryption_errors_total
//	encounter_pending_frames_dropped_total
//	encounter_sessions_started_total
//	encounter_sessions_ended_total{meaningful="true|false"}
//	encounter_meaningful_interactions_total
//	encounter_messages_sent_total{kind="user|system"}
//	encounter_messages_received_total{kind="user|system|unknown"}
//	encounter_bytes_sent_total{kind="user|system"}
//	encounter_bytes_received_total{kind="user|system|unknown"}
//	encounter_keepalives_total{result="success|failure"}
//	encounter_events_emitted_total{kind="<event kind>"}
//	encounter_events_dropped_total{kind="<event kind>"}
//	encounter_persistence_errors_total{op="<operation>"}
//
// # Histograms
//
//	encounter_handshake_duration_seconds{role="initiator|responder"}
//	encounter_session_duration_seconds
//
// # Gauges
//
//	encounter_connection_quality{quality="unknown|poor|fair|good"}  (1 for the current quality)
//
// # Example Usage
//
//	import (
//	    "github.com/blockberries/encounter"
//	    prommetrics "github.com/blockberries/encounter/prometheus"
//	    "github.com/prometheus/client_golang/prometheus/promhttp"
//	)
//
//	func main() {
//	    metrics := prommetrics.NewMetrics("myapp")
//
//	    cfg := encounter.NewConfig(token, encounter.WithMetrics(metrics))
//	    node, err := encounter.New(transport, cfg)
//	    // ...
//
//	    http.Handle("/metrics", promhttp.Handler())
//	    http.ListenAndServe(":9090", nil)
//	}
package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/blockberries/encounter"
)

// DefaultNamespace is the default namespace for all metrics.
const DefaultNamespace = "encounter"

// qualities lists every label value of the connection quality gauge.
var qualities = []string{"unknown", "poor", "fair", "good"}

// Metrics implements the encounter.Metrics interface using Prometheus metrics.
//
// Metrics is safe for concurrent use.
type Metrics struct {
	// Matching metrics
	invitationsSent   prometheus.Counter
	invitationResults *prometheus.CounterVec
	policyRejections  *prometheus.CounterVec

	// Handshake and crypto metrics
	handshakeDuration    *prometheus.HistogramVec
	handshakeMsgsDropped prometheus.Counter
	decryptionErrors     prometheus.Counter
	pendingFramesDropped prometheus.Counter

	// Session metrics
	sessionsStarted        prometheus.Counter
	sessionsEnded          *prometheus.CounterVec
	sessionDuration        prometheus.Histogram
	meaningfulInteractions prometheus.Counter

	// Message metrics
	messagesSent     *prometheus.CounterVec
	messagesReceived *prometheus.CounterVec
	bytesSent        *prometheus.CounterVec
	bytesReceived    *prometheus.CounterVec

	// Keepalive metrics
	keepalives        *prometheus.CounterVec
	connectionQuality *prometheus.GaugeVec

	// Event metrics
	eventsEmitted *prometheus.CounterVec
	eventsDropped *prometheus.CounterVec

	persistenceErrors *prometheus.CounterVec
}

// Ensure Metrics implements encounter.Metrics.
var _ encounter.Metrics = (*Metrics)(nil)

// NewMetrics creates a new Prometheus metrics collector with the given namespace.
// If namespace is empty, DefaultNamespace ("encounter") is used.
//
// All metrics are registered with the default Prometheus registry.
// If registration fails (e.g., metrics already registered), this function will panic.
// To avoid panics, use NewMetricsWithRegisterer with a custom registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWithRegisterer(namespace, prometheus.DefaultRegisterer)
}

// NewMetricsWithRegisterer creates a new Prometheus metrics collector with the given
// namespace and registerer.
//
// If namespace is empty, DefaultNamespace ("encounter") is used.
// If registerer is nil, metrics will not be registered automatically.
func NewMetricsWithRegisterer(namespace string, registerer prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		})
	}
	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
	}

	m := &Metrics{
		invitationsSent:   counter("invitations_sent_total", "Total number of outbound invitations"),
		invitationResults: counterVec("invitation_results_total", "Outbound invitation outcomes", "result"),
		policyRejections:  counterVec("policy_rejections_total", "Matches refused by blocklist, cooldown or busy policy", "direction", "reason"),
		handshakeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "handshake_duration_seconds",
				Help:      "Time from transport connected to session established",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"role"},
		),
		handshakeMsgsDropped: counter("handshake_messages_dropped_total", "Malformed or unexpected handshake messages"),
		decryptionErrors:     counter("decryption_errors_total", "Payloads that failed authentication"),
		pendingFramesDropped: counter("pending_frames_dropped_total", "Early frames dropped from a full pending buffer"),
		sessionsStarted:      counter("sessions_started_total", "Sessions begun by the application"),
		sessionsEnded:        counterVec("sessions_ended_total", "Sessions ended by outcome", "meaningful"),
		sessionDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "session_duration_seconds",
				Help:      "Histogram of ended session durations",
				Buckets:   []float64{10, 30, 60, 120, 300, 600, 1200, 3600},
			},
		),
		meaningfulInteractions: counter("meaningful_interactions_total", "Sessions that became meaningful"),
		messagesSent:           counterVec("messages_sent_total", "Plaintexts sent by kind", "kind"),
		messagesReceived:       counterVec("messages_received_total", "Plaintexts received by kind", "kind"),
		bytesSent:              counterVec("bytes_sent_total", "Plaintext bytes sent by kind", "kind"),
		bytesReceived:          counterVec("bytes_received_total", "Plaintext bytes received by kind", "kind"),
		keepalives:             counterVec("keepalives_total", "Keepalive sends by result", "result"),
		connectionQuality: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "connection_quality",
				Help:      "Current keepalive-derived link quality (1 for the active value)",
			},
			[]string{"quality"},
		),
		eventsEmitted:     counterVec("events_emitted_total", "Events delivered to the event stream", "kind"),
		eventsDropped:     counterVec("events_dropped_total", "Events discarded by the overflow policy", "kind"),
		persistenceErrors: counterVec("persistence_errors_total", "Failed persistence calls", "op"),
	}

	if registerer != nil {
		registerer.MustRegister(
			m.invitationsSent,
			m.invitationResults,
			m.policyRejections,
			m.handshakeDuration,
			m.handshakeMsgsDropped,
			m.decryptionErrors,
			m.pendingFramesDropped,
			m.sessionsStarted,
			m.sessionsEnded,
			m.sessionDuration,
			m.meaningfulInteractions,
			m.messagesSent,
			m.messagesReceived,
			m.bytesSent,
			m.bytesReceived,
			m.keepalives,
			m.connectionQuality,
			m.eventsEmitted,
			m.eventsDropped,
			m.persistenceErrors,
		)
	}

	return m
}

// InvitationSent implements encounter.Metrics.
func (m *Metrics) InvitationSent() {
	m.invitationsSent.Inc()
}

// InvitationResult implements encounter.Metrics.
func (m *Metrics) InvitationResult(result string) {
	m.invitationResults.WithLabelValues(result).Inc()
}

// PolicyRejection implements encounter.Metrics.
func (m *Metrics) PolicyRejection(direction, reason string) {
	m.policyRejections.WithLabelValues(direction, reason).Inc()
}

// HandshakeCompleted implements encounter.Metrics.
func (m *Metrics) HandshakeCompleted(role string, seconds float64) {
	m.handshakeDuration.WithLabelValues(role).Observe(seconds)
}

// HandshakeMessageDropped implements encounter.Metrics.
func (m *Metrics) HandshakeMessageDropped() {
	m.handshakeMsgsDropped.Inc()
}

// DecryptionError implements encounter.Metrics.
func (m *Metrics) DecryptionError() {
	m.decryptionErrors.Inc()
}

// PendingFrameDropped implements encounter.Metrics.
func (m *Metrics) PendingFrameDropped() {
	m.pendingFramesDropped.Inc()
}

// SessionStarted implements encounter.Metrics.
func (m *Metrics) SessionStarted() {
	m.sessionsStarted.Inc()
}

// SessionEnded implements encounter.Metrics.
func (m *Metrics) SessionEnded(seconds float64, meaningful bool) {
	m.sessionsEnded.WithLabelValues(strconv.FormatBool(meaningful)).Inc()
	m.sessionDuration.Observe(seconds)
}

// MeaningfulInteraction implements encounter.Metrics.
func (m *Metrics) MeaningfulInteraction() {
	m.meaningfulInteractions.Inc()
}

// MessageSent implements encounter.Metrics.
func (m *Metrics) MessageSent(kind string, bytes int) {
	m.messagesSent.WithLabelValues(kind).Inc()
	m.bytesSent.WithLabelValues(kind).Add(float64(bytes))
}

// MessageReceived implements encounter.Metrics.
func (m *Metrics) MessageReceived(kind string, bytes int) {
	m.messagesReceived.WithLabelValues(kind).Inc()
	m.bytesReceived.WithLabelValues(kind).Add(float64(bytes))
}

// KeepaliveSent implements encounter.Metrics.
func (m *Metrics) KeepaliveSent(ok bool) {
	result := "failure"
	if ok {
		result = "success"
	}
	m.keepalives.WithLabelValues(result).Inc()
}

// ConnectionQuality implements encounter.Metrics. The gauge for the given
// quality is set to 1 and every other quality to 0.
func (m *Metrics) ConnectionQuality(quality string) {
	for _, q := range qualities {
		v := 0.0
		if q == quality {
			v = 1
		}
		m.connectionQuality.WithLabelValues(q).Set(v)
	}
}

// EventEmitted implements encounter.Metrics.
func (m *Metrics) EventEmitted(kind string) {
	m.eventsEmitted.WithLabelValues(kind).Inc()
}

// EventDropped implements encounter.Metrics.
func (m *Metrics) EventDropped(kind string) {
	m.eventsDropped.WithLabelValues(kind).Inc()
}

// PersistenceError implements encounter.Metrics.
func (m *Metrics) PersistenceError(op string) {
	m.persistenceErrors.WithLabelValues(op).Inc()
}
