package session

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blockberries/encounter/pkg/clock"
)

type qualityLog struct {
	mu      sync.Mutex
	changes []Quality
}

func (l *qualityLog) record(q Quality) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, q)
}

func (l *qualityLog) all() []Quality {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Quality(nil), l.changes...)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		rate float64
		want Quality
	}{
		{1.0, QualityGood},
		{0.91, QualityGood},
		{0.9, QualityFair},
		{0.71, QualityFair},
		{0.7, QualityPoor},
		{0, QualityPoor},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.rate), "rate %v", tt.rate)
	}
}

func TestQuality_String(t *testing.T) {
	assert.Equal(t, "unknown", QualityUnknown.String())
	assert.Equal(t, "good", QualityGood.String())
	assert.Equal(t, "Quality(9)", Quality(9).String())
}

func TestIsSentinel(t *testing.T) {
	assert.True(t, IsSentinel("[KEEPALIVE]"))
	assert.False(t, IsSentinel("[KEEPALIVE] "))
	assert.False(t, IsSentinel("[SYSTEM]KEEPALIVE"))
}

func TestKeepalive_UnknownBeforeAnySend(t *testing.T) {
	k := NewKeepaliveMonitor(clock.NewFake(time.Unix(0, 0)), time.Second, nil)
	assert.Equal(t, QualityUnknown, k.Quality())
	_, ok := k.SuccessRate()
	assert.False(t, ok)
}

func TestKeepalive_SendsOnInterval(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	log := &qualityLog{}
	k := NewKeepaliveMonitor(clk, 10*time.Second, log.record)

	sends := 0
	k.Start(func() error {
		sends++
		return nil
	})

	clk.Advance(35 * time.Second)
	assert.Equal(t, 3, sends)
	assert.Equal(t, QualityGood, k.Quality())
	assert.Equal(t, []Quality{QualityGood}, log.all())
}

func TestKeepalive_QualityDegrades(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	log := &qualityLog{}
	k := NewKeepaliveMonitor(clk, time.Second, log.record)

	for i := 0; i < 8; i++ {
		k.RecordSend(nil)
	}
	k.RecordSend(errors.New("link down"))
	k.RecordSend(errors.New("link down"))
	// 8/10 = 0.8
	assert.Equal(t, QualityFair, k.Quality())

	k.RecordSend(errors.New("link down"))
	k.RecordSend(errors.New("link down"))
	// 8/12 ≈ 0.67
	assert.Equal(t, QualityPoor, k.Quality())

	assert.Equal(t, []Quality{QualityGood, QualityFair, QualityPoor}, log.all())

	ok, failed := k.Counts()
	assert.Equal(t, 8, ok)
	assert.Equal(t, 4, failed)
}

func TestKeepalive_StopCancelsSynchronously(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	k := NewKeepaliveMonitor(clk, time.Second, nil)

	sends := 0
	k.Start(func() error {
		sends++
		return nil
	})
	clk.Advance(2 * time.Second)
	k.Stop()
	clk.Advance(time.Minute)

	assert.Equal(t, 2, sends)
	assert.Equal(t, 0, clk.Pending())
}

func TestKeepalive_ResultAfterStopDiscarded(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	k := NewKeepaliveMonitor(clk, time.Second, nil)

	k.Start(func() error {
		// The session drops while the send is in progress.
		k.Stop()
		return errors.New("not connected")
	})
	clk.Advance(time.Second)

	_, failed := k.Counts()
	assert.Equal(t, 0, failed)
	assert.Equal(t, QualityUnknown, k.Quality())
}

func TestKeepalive_Reset(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	log := &qualityLog{}
	k := NewKeepaliveMonitor(clk, time.Second, log.record)

	k.RecordSend(nil)
	require.Equal(t, QualityGood, k.Quality())

	k.Reset()
	assert.Equal(t, QualityUnknown, k.Quality())
	assert.Equal(t, []Quality{QualityGood, QualityUnknown}, log.all())

	k.Reset()
	assert.Len(t, log.all(), 2)
}
