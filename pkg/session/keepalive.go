package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/blockberries/encounter/pkg/clock"
)

// Sentinel is the payload sent periodically to keep the link alive. It is
// filtered out before message routing and never counted.
const Sentinel = "[KEEPALIVE]"

// DefaultKeepaliveInterval is the default time between sentinels.
const DefaultKeepaliveInterval = 10 * time.Second

// IsSentinel reports whether a decrypted payload is the keepalive sentinel.
func IsSentinel(plaintext string) bool {
	return plaintext == Sentinel
}

// Quality is a coarse estimate of link health derived from keepalive send
// outcomes.
type Quality int

const (
	QualityUnknown Quality = iota
	QualityPoor
	QualityFair
	QualityGood
)

// String returns a human-readable name for the quality.
func (q Quality) String() string {
	switch q {
	case QualityUnknown:
		return "unknown"
	case QualityPoor:
		return "poor"
	case QualityFair:
		return "fair"
	case QualityGood:
		return "good"
	default:
		return fmt.Sprintf("Quality(%d)", q)
	}
}

// Classify maps a send success rate to a Quality.
func Classify(successRate float64) Quality {
	switch {
	case successRate > 0.9:
		return QualityGood
	case successRate > 0.7:
		return QualityFair
	default:
		return QualityPoor
	}
}

// KeepaliveMonitor sends the sentinel at a fixed interval while a session
// is established and rates the link from the send outcomes. It is safe
// for concurrent use.
type KeepaliveMonitor struct {
	clock    clock.Clock
	interval time.Duration
	onChange func(Quality)

	mu         sync.Mutex
	successes  int
	failures   int
	quality    Quality
	send       func() error
	timer      clock.Timer
	generation uint64
}

// NewKeepaliveMonitor creates a monitor. onChange is called, outside the
// monitor's lock, whenever the quality classification changes.
func NewKeepaliveMonitor(clk clock.Clock, interval time.Duration, onChange func(Quality)) *KeepaliveMonitor {
	if clk == nil {
		clk = clock.Real()
	}
	if interval <= 0 {
		interval = DefaultKeepaliveInterval
	}
	return &KeepaliveMonitor{clock: clk, interval: interval, onChange: onChange}
}

// Start begins sending. send is called from a timer goroutine once per
// interval; its error marks the attempt as failed. Start replaces any
// previous schedule.
func (k *KeepaliveMonitor) Start(send func() error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	k.stopLocked()
	k.send = send
	k.armLocked()
}

// Stop cancels the schedule synchronously. Outcomes of a send already in
// progress are discarded.
func (k *KeepaliveMonitor) Stop() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.stopLocked()
}

// Reset stops sending and forgets all outcomes.
func (k *KeepaliveMonitor) Reset() {
	k.mu.Lock()
	k.stopLocked()
	k.successes = 0
	k.failures = 0
	changed := k.quality != QualityUnknown
	k.quality = QualityUnknown
	k.mu.Unlock()

	if changed && k.onChange != nil {
		k.onChange(QualityUnknown)
	}
}

// RecordSend records the outcome of one send attempt.
func (k *KeepaliveMonitor) RecordSend(err error) {
	k.mu.Lock()
	k.recordLocked(err)
	q, changed := k.reclassifyLocked()
	k.mu.Unlock()

	if changed && k.onChange != nil {
		k.onChange(q)
	}
}

// Quality returns the current classification.
func (k *KeepaliveMonitor) Quality() Quality {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.quality
}

// SuccessRate returns successes / attempts. ok is false before any attempt.
func (k *KeepaliveMonitor) SuccessRate() (rate float64, ok bool) {
	k.mu.Lock()
	defer k.mu.Unlock()
	total := k.successes + k.failures
	if total == 0 {
		return 0, false
	}
	return float64(k.successes) / float64(total), true
}

// Counts returns the number of successful and failed sends.
func (k *KeepaliveMonitor) Counts() (successes, failures int) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.successes, k.failures
}

func (k *KeepaliveMonitor) armLocked() {
	gen := k.generation
	k.timer = k.clock.AfterFunc(k.interval, func() {
		k.mu.Lock()
		if gen != k.generation {
			k.mu.Unlock()
			return
		}
		send := k.send
		k.mu.Unlock()

		err := send()

		k.mu.Lock()
		if gen != k.generation {
			k.mu.Unlock()
			return
		}
		k.recordLocked(err)
		q, changed := k.reclassifyLocked()
		k.armLocked()
		k.mu.Unlock()

		if changed && k.onChange != nil {
			k.onChange(q)
		}
	})
}

func (k *KeepaliveMonitor) stopLocked() {
	k.generation++
	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
	}
}

func (k *KeepaliveMonitor) recordLocked(err error) {
	if err != nil {
		k.failures++
	} else {
		k.successes++
	}
}

func (k *KeepaliveMonitor) reclassifyLocked() (Quality, bool) {
	total := k.successes + k.failures
	if total == 0 {
		return k.quality, false
	}
	q := Classify(float64(k.successes) / float64(total))
	if q == k.quality {
		return q, false
	}
	k.quality = q
	return q, true
}
