package connection

import (
	"testing"
	"time"

	"github.com/blockberries/encounter/pkg/clock"
)

func TestReconnectScheduler_CancelAndReplace(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	s := NewReconnectScheduler(clk, 5*time.Second, nil)

	fired := 0
	s.Schedule(func() { fired++ })
	clk.Advance(3 * time.Second)
	s.Schedule(func() { fired++ })

	if clk.Pending() != 1 {
		t.Fatalf("pending timers = %d, want 1", clk.Pending())
	}

	clk.Advance(3 * time.Second)
	if fired != 0 {
		t.Fatal("replaced timer fired")
	}

	clk.Advance(2 * time.Second)
	if fired != 1 {
		t.Fatalf("fired = %d, want 1", fired)
	}
	if s.Pending() {
		t.Error("scheduler still pending after firing")
	}
}

func TestReconnectScheduler_Cancel(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))
	s := NewReconnectScheduler(clk, time.Second, nil)

	fired := false
	s.Schedule(func() { fired = true })
	if !s.Pending() {
		t.Fatal("expected pending reconnection")
	}
	s.Cancel()
	s.Cancel()

	clk.Advance(time.Minute)
	if fired {
		t.Error("cancelled timer fired")
	}
	if clk.Pending() != 0 {
		t.Errorf("pending timers = %d, want 0", clk.Pending())
	}
}

func TestReconnectScheduler_StaleCallbackIgnored(t *testing.T) {
	clk := clock.NewFake(time.Unix(0, 0))

	var queued []func()
	post := func(f func()) { queued = append(queued, f) }
	s := NewReconnectScheduler(clk, time.Second, post)

	fired := 0
	s.Schedule(func() { fired++ })
	clk.Advance(time.Second)

	// The timer fired and its callback is queued, but a cancel wins the race.
	s.Cancel()
	for _, f := range queued {
		f()
	}
	if fired != 0 {
		t.Errorf("stale callback ran %d times", fired)
	}
}
