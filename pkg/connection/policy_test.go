package connection

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/blockberries/encounter/pkg/transport"
)

func TestBlockList(t *testing.T) {
	bl := NewBlockList("tok-1", "", "tok-2")

	assert.True(t, bl.Contains("tok-1"))
	assert.False(t, bl.Contains("tok-3"))
	assert.False(t, bl.Contains(""))
	assert.Equal(t, 2, bl.Len())

	bl.Replace([]string{"tok-3"})
	assert.False(t, bl.Contains("tok-1"))
	assert.True(t, bl.Contains("tok-3"))
}

func TestCooldownRegistry(t *testing.T) {
	now := time.Unix(10_000, 0)
	r := NewCooldownRegistry(time.Minute)

	assert.False(t, r.InCooldown("p", now))

	r.Record("p", now)
	assert.True(t, r.InCooldown("p", now.Add(59*time.Second)))
	assert.Equal(t, 30*time.Second, r.Remaining("p", now.Add(30*time.Second)))
	assert.False(t, r.InCooldown("p", now.Add(time.Minute)))

	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.False(t, r.InCooldown("p", now))
}

func TestCooldownRegistry_SeedKeepsLatest(t *testing.T) {
	now := time.Unix(10_000, 0)
	r := NewCooldownRegistry(time.Hour)
	r.Record("p", now)

	r.Seed(map[transport.PeerID]time.Time{
		"p": now.Add(-time.Minute),
		"q": now.Add(-time.Minute),
	})

	assert.Equal(t, time.Hour, r.Remaining("p", now))
	assert.Equal(t, 59*time.Minute, r.Remaining("q", now))
}

func TestPendingBuffer(t *testing.T) {
	b := NewPendingBuffer(2)
	data := []byte("one")

	assert.True(t, b.Push(data))
	data[0] = 'X'
	assert.True(t, b.Push([]byte("two")))
	assert.False(t, b.Push([]byte("three")))
	assert.Equal(t, 1, b.Dropped())

	frames := b.Drain()
	assert.Equal(t, [][]byte{[]byte("one"), []byte("two")}, frames)
	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Drain())
}
