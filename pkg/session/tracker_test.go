package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/encounter/pkg/clock"
)

type meaningfulCounter struct {
	mu    sync.Mutex
	calls []Metrics
}

func (c *meaningfulCounter) fire(m Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, m)
}

func (c *meaningfulCounter) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func newTestTracker(t *testing.T) (*Tracker, *clock.Fake, *meaningfulCounter) {
	t.Helper()
	clk := clock.NewFake(time.Unix(5_000, 0))
	counter := &meaningfulCounter{}
	tr := NewTracker(Thresholds{MinDuration: 30 * time.Second, MinMessages: 3}, counter.fire,
		WithClock(clk), WithTickInterval(time.Second))
	return tr, clk, counter
}

func record(tr *Tracker, sent, received int) {
	for i := 0; i < sent; i++ {
		tr.RecordSent()
	}
	for i := 0; i < received; i++ {
		tr.RecordReceived()
	}
}

func TestTracker_MeaningfulFiresExactlyOnce(t *testing.T) {
	tr, clk, counter := newTestTracker(t)

	_, err := tr.Begin()
	require.NoError(t, err)
	record(tr, 3, 3)
	assert.Equal(t, 0, counter.count(), "duration not reached yet")

	clk.Advance(31 * time.Second)
	assert.Equal(t, 1, counter.count())
	assert.True(t, tr.IsMeaningful())

	// Further ticks and messages never fire again.
	clk.Advance(5 * time.Minute)
	record(tr, 10, 10)
	assert.Equal(t, 1, counter.count())

	m := counter.calls[0]
	assert.True(t, m.IsMeaningful)
	assert.Equal(t, 3, m.SentCount)
	assert.Equal(t, 3, m.ReceivedCount)
	assert.GreaterOrEqual(t, m.Duration, 30*time.Second)
}

func TestTracker_FiresOnMessageAfterDuration(t *testing.T) {
	tr, clk, counter := newTestTracker(t)

	_, err := tr.Begin()
	require.NoError(t, err)
	clk.Advance(31 * time.Second)
	record(tr, 3, 2)
	assert.Equal(t, 0, counter.count())

	tr.RecordReceived()
	assert.Equal(t, 1, counter.count())
}

func TestTracker_NotMeaningfulBelowThreshold(t *testing.T) {
	tr, clk, counter := newTestTracker(t)

	_, err := tr.Begin()
	require.NoError(t, err)
	record(tr, 2, 3)
	clk.Advance(10 * time.Minute)

	assert.False(t, tr.IsMeaningful())
	assert.Equal(t, 0, counter.count())
}

func TestTracker_CountsIgnoredBeforeBegin(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	record(tr, 5, 5)
	m := tr.Snapshot()
	assert.False(t, m.Active)
	assert.Zero(t, m.SentCount)
	assert.Zero(t, m.ReceivedCount)
	assert.True(t, m.StartTime.IsZero())
}

func TestTracker_BeginTwice(t *testing.T) {
	tr, _, _ := newTestTracker(t)

	m, err := tr.Begin()
	require.NoError(t, err)
	assert.NotEmpty(t, m.SessionID)
	assert.True(t, m.Active)

	_, err = tr.Begin()
	assert.ErrorIs(t, err, ErrSessionActive)
}

func TestTracker_ResetClearsAndStopsTicking(t *testing.T) {
	tr, clk, counter := newTestTracker(t)

	first, err := tr.Begin()
	require.NoError(t, err)
	record(tr, 3, 3)
	tr.Reset()

	assert.Equal(t, 0, clk.Pending())
	clk.Advance(time.Hour)
	assert.Equal(t, 0, counter.count())

	m := tr.Snapshot()
	assert.False(t, m.Active)
	assert.Zero(t, m.SentCount)

	second, err := tr.Begin()
	require.NoError(t, err)
	assert.NotEqual(t, first.SessionID, second.SessionID)
}

func TestTracker_NewSessionCanFireAgain(t *testing.T) {
	tr, clk, counter := newTestTracker(t)

	for i := 0; i < 2; i++ {
		_, err := tr.Begin()
		require.NoError(t, err)
		record(tr, 3, 3)
		clk.Advance(31 * time.Second)
		tr.Reset()
	}
	assert.Equal(t, 2, counter.count())
}

func TestTracker_ZeroThresholds(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	counter := &meaningfulCounter{}
	tr := NewTracker(Thresholds{}, counter.fire, WithClock(clk))

	_, err := tr.Begin()
	require.NoError(t, err)
	assert.Equal(t, 1, counter.count())
}

func TestTracker_SnapshotDuration(t *testing.T) {
	tr, clk, _ := newTestTracker(t)
	_, err := tr.Begin()
	require.NoError(t, err)

	clk.Advance(12 * time.Second)
	assert.Equal(t, 12*time.Second, tr.Snapshot().Duration)
}
