package encounter

import (
	"sync"
	"time"
)

// KindStats contains message counters for one message kind.
type KindStats struct {
	// Kind is "user" or "system".
	Kind string

	MessagesSent     int64
	MessagesReceived int64
	BytesSent        int64
	BytesReceived    int64

	LastSentAt     time.Time
	LastReceivedAt time.Time
}

// NodeStats contains cumulative statistics since the node was created.
// All fields are snapshot copies and safe to read without synchronization.
type NodeStats struct {
	// ConnectionCount is the number of handshaked connections.
	ConnectionCount int

	// AbandonedHandshakes counts connections dropped before establishment.
	AbandonedHandshakes int

	SessionsStarted    int
	SessionsEnded      int
	MeaningfulSessions int

	// TotalSessionTime is the cumulative duration of ended sessions plus
	// the running one.
	TotalSessionTime time.Duration

	// Kinds holds per-kind message counters.
	Kinds map[string]*KindStats

	KeepalivesSent   int64
	KeepalivesFailed int64

	// EventsDropped counts events discarded by the overflow policy.
	EventsDropped uint64

	// LastMessageAt is when a user or system message was last sent or
	// received.
	LastMessageAt time.Time

	// Session is the current session, if any.
	Session SessionMetrics

	// Quality is the current link quality.
	Quality Quality
}

// statsTracker is the mutable counter set behind Node.Stats.
type statsTracker struct {
	mu sync.RWMutex

	connectionCount     int
	abandonedHandshakes int
	sessionsStarted     int
	sessionsEnded       int
	meaningfulSessions  int
	totalSessionTime    time.Duration

	kinds map[string]*kindStatsInternal

	keepalivesSent   int64
	keepalivesFailed int64

	lastMessageAt time.Time
}

type kindStatsInternal struct {
	messagesSent     int64
	messagesReceived int64
	bytesSent        int64
	bytesReceived    int64
	lastSentAt       time.Time
	lastReceivedAt   time.Time
}

func newStatsTracker() *statsTracker {
	return &statsTracker{kinds: make(map[string]*kindStatsInternal)}
}

func (s *statsTracker) kindLocked(kind string) *kindStatsInternal {
	ks := s.kinds[kind]
	if ks == nil {
		ks = &kindStatsInternal{}
		s.kinds[kind] = ks
	}
	return ks
}

func (s *statsTracker) recordConnection(established bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if established {
		s.connectionCount++
	} else {
		s.abandonedHandshakes++
	}
}

func (s *statsTracker) recordSessionStart() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionsStarted++
}

func (s *statsTracker) recordSessionEnd(d time.Duration, meaningful bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessionsEnded++
	s.totalSessionTime += d
	if meaningful {
		s.meaningfulSessions++
	}
}

func (s *statsTracker) recordSent(kind string, size int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.kindLocked(kind)
	ks.messagesSent++
	ks.bytesSent += int64(size)
	ks.lastSentAt = now
	s.lastMessageAt = now
}

func (s *statsTracker) recordReceived(kind string, size int, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ks := s.kindLocked(kind)
	ks.messagesReceived++
	ks.bytesReceived += int64(size)
	ks.lastReceivedAt = now
	s.lastMessageAt = now
}

func (s *statsTracker) recordKeepalive(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ok {
		s.keepalivesSent++
	} else {
		s.keepalivesFailed++
	}
}

// snapshot returns a copy of the counters. current is added to the
// session time when a session is running.
func (s *statsTracker) snapshot(current SessionMetrics) NodeStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := NodeStats{
		ConnectionCount:     s.connectionCount,
		AbandonedHandshakes: s.abandonedHandshakes,
		SessionsStarted:     s.sessionsStarted,
		SessionsEnded:       s.sessionsEnded,
		MeaningfulSessions:  s.meaningfulSessions,
		TotalSessionTime:    s.totalSessionTime,
		Kinds:               make(map[string]*KindStats, len(s.kinds)),
		KeepalivesSent:      s.keepalivesSent,
		KeepalivesFailed:    s.keepalivesFailed,
		LastMessageAt:       s.lastMessageAt,
		Session:             current,
	}
	if current.Active {
		stats.TotalSessionTime += current.Duration
	}

	for name, ks := range s.kinds {
		stats.Kinds[name] = &KindStats{
			Kind:             name,
			MessagesSent:     ks.messagesSent,
			MessagesReceived: ks.messagesReceived,
			BytesSent:        ks.bytesSent,
			BytesReceived:    ks.bytesReceived,
			LastSentAt:       ks.lastSentAt,
			LastReceivedAt:   ks.lastReceivedAt,
		}
	}
	return stats
}
