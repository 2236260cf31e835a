// Package session tracks an established encounter: how long it has run, how
// many messages went each way, whether it has become a meaningful
// interaction, and how healthy the link is.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/blockberries/encounter/pkg/clock"
)

// DefaultTickInterval is how often elapsed time is re-evaluated.
const DefaultTickInterval = time.Second

// ErrSessionActive is returned by Begin when a session is already running.
var ErrSessionActive = errors.New("session already active")

// Thresholds gate the meaningful-interaction predicate.
type Thresholds struct {
	MinDuration time.Duration
	MinMessages int
}

// Metrics is a snapshot of the current session.
type Metrics struct {
	SessionID     string
	Active        bool
	StartTime     time.Time
	Duration      time.Duration
	SentCount     int
	ReceivedCount int
	IsMeaningful  bool
}

// Tracker holds the metrics of at most one session. It is safe for
// concurrent use; ticks arrive on timer goroutines.
type Tracker struct {
	thresholds   Thresholds
	clock        clock.Clock
	tickInterval time.Duration
	onMeaningful func(Metrics)

	mu         sync.Mutex
	active     bool
	sessionID  string
	startTime  time.Time
	sent       int
	received   int
	meaningful bool
	ticker     clock.Timer
	generation uint64
}

// TrackerOption configures a Tracker.
type TrackerOption func(*Tracker)

// WithTickInterval sets how often elapsed time is re-evaluated.
func WithTickInterval(d time.Duration) TrackerOption {
	return func(t *Tracker) {
		if d > 0 {
			t.tickInterval = d
		}
	}
}

// WithClock sets the clock used for timestamps and ticks.
func WithClock(c clock.Clock) TrackerOption {
	return func(t *Tracker) {
		if c != nil {
			t.clock = c
		}
	}
}

// NewTracker creates a tracker. onMeaningful is called exactly once per
// session, outside the tracker's lock, when the predicate first holds.
func NewTracker(thresholds Thresholds, onMeaningful func(Metrics), opts ...TrackerOption) *Tracker {
	t := &Tracker{
		thresholds:   thresholds,
		clock:        clock.Real(),
		tickInterval: DefaultTickInterval,
		onMeaningful: onMeaningful,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Begin starts a session: it records the start time, assigns a session ID
// and starts the elapsed-time tick. Counting starts here, not at handshake
// completion.
func (t *Tracker) Begin() (Metrics, error) {
	t.mu.Lock()
	if t.active {
		t.mu.Unlock()
		return Metrics{}, ErrSessionActive
	}

	t.resetLocked()
	t.active = true
	t.sessionID = uuid.NewString()
	t.startTime = t.clock.Now()
	t.armLocked()
	m := t.snapshotLocked()
	t.mu.Unlock()

	// A zero-threshold configuration is meaningful immediately.
	t.evaluate()
	return m, nil
}

// RecordSent counts an outbound user message.
func (t *Tracker) RecordSent() {
	t.mu.Lock()
	if t.active {
		t.sent++
	}
	t.mu.Unlock()
	t.evaluate()
}

// RecordReceived counts an inbound user message.
func (t *Tracker) RecordReceived() {
	t.mu.Lock()
	if t.active {
		t.received++
	}
	t.mu.Unlock()
	t.evaluate()
}

// Tick re-evaluates the predicate against the current time.
func (t *Tracker) Tick() {
	t.evaluate()
}

// Reset stops the tick and clears the session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.resetLocked()
}

// Snapshot returns the current metrics.
func (t *Tracker) Snapshot() Metrics {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// IsMeaningful reports whether the current session has crossed the
// thresholds. The flag never resets while the session is active.
func (t *Tracker) IsMeaningful() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.meaningful
}

func (t *Tracker) evaluate() {
	t.mu.Lock()
	if !t.active || t.meaningful {
		t.mu.Unlock()
		return
	}
	duration := t.clock.Now().Sub(t.startTime)
	if duration < t.thresholds.MinDuration ||
		t.sent < t.thresholds.MinMessages ||
		t.received < t.thresholds.MinMessages {
		t.mu.Unlock()
		return
	}
	t.meaningful = true
	m := t.snapshotLocked()
	t.mu.Unlock()

	if t.onMeaningful != nil {
		t.onMeaningful(m)
	}
}

func (t *Tracker) armLocked() {
	gen := t.generation
	t.ticker = t.clock.AfterFunc(t.tickInterval, func() {
		t.mu.Lock()
		if gen != t.generation || !t.active {
			t.mu.Unlock()
			return
		}
		t.armLocked()
		t.mu.Unlock()
		t.evaluate()
	})
}

func (t *Tracker) resetLocked() {
	t.generation++
	if t.ticker != nil {
		t.ticker.Stop()
		t.ticker = nil
	}
	t.active = false
	t.sessionID = ""
	t.startTime = time.Time{}
	t.sent = 0
	t.received = 0
	t.meaningful = false
}

func (t *Tracker) snapshotLocked() Metrics {
	m := Metrics{
		SessionID:     t.sessionID,
		Active:        t.active,
		StartTime:     t.startTime,
		SentCount:     t.sent,
		ReceivedCount: t.received,
		IsMeaningful:  t.meaningful,
	}
	if t.active {
		m.Duration = t.clock.Now().Sub(t.startTime)
	}
	return m
}
