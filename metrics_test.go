package encounter

import (
	"sync"
	"testing"

	"github.com/blockberries/encounter/pkg/connection"
)

func TestNopMetrics_Implements_Metrics(t *testing.T) {
	var _ Metrics = NopMetrics{}
	var _ connection.Metrics = NopMetrics{}
}

func TestNopMetrics_Methods_DoNotPanic(t *testing.T) {
	m := NopMetrics{}

	m.InvitationSent()
	m.InvitationResult("accepted")
	m.PolicyRejection("inbound", "blocked")
	m.HandshakeCompleted("initiator", 0.2)
	m.HandshakeMessageDropped()
	m.DecryptionError()
	m.PendingFrameDropped()
	m.SessionStarted()
	m.SessionEnded(301, true)
	m.MeaningfulInteraction()
	m.MessageSent("user", 12)
	m.MessageReceived("system", 40)
	m.KeepaliveSent(true)
	m.ConnectionQuality("good")
	m.EventEmitted("user_message")
	m.EventDropped("user_message")
	m.PersistenceError("record_session_end")
}

// recordingMetrics counts calls by name for node tests.
type recordingMetrics struct {
	NopMetrics

	mu     sync.Mutex
	counts map[string]int
	labels map[string][]string
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		counts: make(map[string]int),
		labels: make(map[string][]string),
	}
}

func (m *recordingMetrics) inc(name string, label string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.counts[name]++
	if label != "" {
		m.labels[name] = append(m.labels[name], label)
	}
}

func (m *recordingMetrics) count(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[name]
}

func (m *recordingMetrics) labelsFor(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.labels[name]...)
}

func (m *recordingMetrics) SessionStarted() { m.inc("session_started", "") }
func (m *recordingMetrics) MeaningfulInteraction() { m.inc("meaningful", "") }
func (m *recordingMetrics) EventDropped(kind string) {
	m.inc("event_dropped", kind)
}
func (m *recordingMetrics) PersistenceError(op string) { m.inc("persistence_error", op) }
func (m *recordingMetrics) MessageSent(kind string, _ int) {
	m.inc("message_sent", kind)
}
func (m *recordingMetrics) MessageReceived(kind string, _ int) {
	m.inc("message_received", kind)
}
func (m *recordingMetrics) SessionEnded(_ float64, meaningful bool) {
	label := "false"
	if meaningful {
		label = "true"
	}
	m.inc("session_ended", label)
}

func TestRecordingMetrics_Concurrent(t *testing.T) {
	m := newRecordingMetrics()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.MessageSent("user", 1)
		}()
	}
	wg.Wait()

	if m.count("message_sent") != 100 {
		t.Errorf("message_sent = %d, want 100", m.count("message_sent"))
	}
}

func (m *recordingMetrics) PolicyRejection(direction, reason string) {
	m.inc("policy_rejection", direction+"/"+reason)
}
