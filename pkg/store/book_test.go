package store

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/blockberries/encounter"
	"github.com/blockberries/encounter/pkg/clock"
)

var (
	_ encounter.Persistence      = (*Book)(nil)
	_ encounter.SessionEndLister = (*Book)(nil)
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func tempPath(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "encounter.json")
}

func mustOpen(t *testing.T, path string, opts ...Option) *Book {
	t.Helper()
	b, err := Open(path, opts...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestOpen_Empty(t *testing.T) {
	b := mustOpen(t, tempPath(t))

	tokens, err := b.BlockedIdentities(context.Background())
	if err != nil {
		t.Fatalf("BlockedIdentities() failed: %v", err)
	}
	if len(tokens) != 0 {
		t.Errorf("expected empty blocklist, got %v", tokens)
	}
	if b.Points() != 0 || len(b.Sessions()) != 0 {
		t.Error("expected no points and no sessions")
	}
}

func TestOpen_CreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "encounter.json")
	b := mustOpen(t, path)

	if err := b.Block("tok", ""); err != nil {
		t.Fatalf("Block() failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected store file: %v", err)
	}
}

func TestBlock_PersistsImmediately(t *testing.T) {
	path := tempPath(t)
	fake := clock.NewFake(epoch)
	b := mustOpen(t, path, WithClock(fake))

	if err := b.Block("token-b", "spam"); err != nil {
		t.Fatal(err)
	}
	fake.Advance(time.Minute)
	if err := b.Block("token-a", ""); err != nil {
		t.Fatal(err)
	}

	// A second handle sees the change without Flush.
	other := mustOpen(t, path)
	tokens, err := other.BlockedIdentities(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(tokens) != 2 || tokens[0] != "token-a" || tokens[1] != "token-b" {
		t.Errorf("tokens = %v, want sorted [token-a token-b]", tokens)
	}

	entries := other.Blocked()
	if entries[0].Token != "token-b" || entries[0].Reason != "spam" {
		t.Errorf("oldest entry = %+v", entries[0])
	}
	if !entries[0].BlockedAt.Equal(epoch) {
		t.Errorf("BlockedAt = %v, want %v", entries[0].BlockedAt, epoch)
	}
}

func TestBlock_UpdatesReasonKeepsTime(t *testing.T) {
	fake := clock.NewFake(epoch)
	b := mustOpen(t, tempPath(t), WithClock(fake))

	b.Block("tok", "first")
	fake.Advance(time.Hour)
	b.Block("tok", "second")

	entries := b.Blocked()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Reason != "second" || !entries[0].BlockedAt.Equal(epoch) {
		t.Errorf("entry = %+v", entries[0])
	}
}

func TestBlock_EmptyToken(t *testing.T) {
	b := mustOpen(t, tempPath(t))
	if err := b.Block("", "x"); !errors.Is(err, ErrEmptyToken) {
		t.Errorf("expected ErrEmptyToken, got %v", err)
	}
}

func TestUnblock(t *testing.T) {
	b := mustOpen(t, tempPath(t))
	b.Block("tok", "")

	if err := b.Unblock("tok"); err != nil {
		t.Fatalf("Unblock() failed: %v", err)
	}
	if b.IsBlocked("tok") {
		t.Error("token still blocked")
	}
	if err := b.Unblock("tok"); !errors.Is(err, ErrNotBlocked) {
		t.Errorf("expected ErrNotBlocked, got %v", err)
	}
}

func TestAward_MarksFollowingSessionEnd(t *testing.T) {
	fake := clock.NewFake(epoch)
	b := mustOpen(t, tempPath(t), WithClock(fake))
	ctx := context.Background()

	if err := b.AwardMeaningfulInteraction(ctx, "peer-1", "s-1"); err != nil {
		t.Fatal(err)
	}
	if err := b.AwardMeaningfulInteraction(ctx, "peer-1", "s-1"); err != nil {
		t.Fatal(err)
	}
	if b.Points() != 1 {
		t.Errorf("points = %d, want 1 after a repeated award", b.Points())
	}

	fake.Advance(time.Minute)
	b.RecordSessionEnd(ctx, "peer-1")
	b.RecordSessionEnd(ctx, "peer-2")

	sessions := b.Sessions()
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	if !sessions[0].Meaningful || sessions[0].SessionID != "s-1" {
		t.Errorf("first session = %+v, want meaningful s-1", sessions[0])
	}
	if sessions[1].Meaningful {
		t.Errorf("second session = %+v, want not meaningful", sessions[1])
	}
	if !sessions[0].EndedAt.Equal(epoch.Add(time.Minute)) {
		t.Errorf("EndedAt = %v", sessions[0].EndedAt)
	}
}

func TestRecordSessionEnd_IsBatched(t *testing.T) {
	path := tempPath(t)
	b := mustOpen(t, path, WithFlushInterval(time.Hour))
	ctx := context.Background()

	b.RecordSessionEnd(ctx, "peer-1")

	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("session end should not be written before a flush")
	}
	if err := b.Flush(); err != nil {
		t.Fatalf("Flush() failed: %v", err)
	}

	other := mustOpen(t, path)
	if len(other.Sessions()) != 1 {
		t.Errorf("expected flushed session, got %d", len(other.Sessions()))
	}
}

func TestFlushLoop_WritesDirtyChanges(t *testing.T) {
	path := tempPath(t)
	b := mustOpen(t, path, WithFlushInterval(10*time.Millisecond))
	b.RecordSessionEnd(context.Background(), "peer-1")

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("flush loop never wrote the store")
}

func TestFlushLoop_FollowsClock(t *testing.T) {
	path := tempPath(t)
	fake := clock.NewFake(epoch)
	b := mustOpen(t, path, WithClock(fake), WithFlushInterval(time.Minute))
	b.RecordSessionEnd(context.Background(), "peer-1")

	fake.Advance(59 * time.Second)
	time.Sleep(20 * time.Millisecond)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatal("store written before the flush interval elapsed")
	}

	fake.Advance(time.Second)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, err := os.Stat(path); err == nil {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("flush loop did not write after the clock advanced")
}

func TestClose_FlushesAndRejects(t *testing.T) {
	path := tempPath(t)
	b, err := Open(path, WithFlushInterval(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	b.RecordSessionEnd(ctx, "peer-1")

	if err := b.Close(); err != nil {
		t.Fatalf("Close() failed: %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}

	if err := b.RecordSessionEnd(ctx, "peer-2"); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, err := b.BlockedIdentities(ctx); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	reopened := mustOpen(t, path)
	if len(reopened.Sessions()) != 1 {
		t.Errorf("expected 1 session after reopen, got %d", len(reopened.Sessions()))
	}
}

func TestRecentSessionEnds(t *testing.T) {
	fake := clock.NewFake(epoch)
	b := mustOpen(t, tempPath(t), WithClock(fake))
	ctx := context.Background()

	b.RecordSessionEnd(ctx, "old")
	fake.Advance(10 * time.Minute)
	b.RecordSessionEnd(ctx, "peer-1")
	fake.Advance(time.Minute)
	b.RecordSessionEnd(ctx, "peer-1")

	ended, err := b.RecentSessionEnds(ctx, epoch.Add(5*time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := ended["old"]; ok {
		t.Error("sessions before since must be excluded")
	}
	if want := epoch.Add(11 * time.Minute); !ended["peer-1"].Equal(want) {
		t.Errorf("peer-1 ended at %v, want latest %v", ended["peer-1"], want)
	}
}

func TestMaxSessions_TrimsOldest(t *testing.T) {
	b := mustOpen(t, tempPath(t), WithMaxSessions(2))
	ctx := context.Background()

	b.AwardMeaningfulInteraction(ctx, "a", "s-a")
	b.RecordSessionEnd(ctx, "a")
	b.RecordSessionEnd(ctx, "b")
	b.RecordSessionEnd(ctx, "c")

	sessions := b.Sessions()
	if len(sessions) != 2 || sessions[0].Peer != "b" || sessions[1].Peer != "c" {
		t.Errorf("sessions = %+v, want [b c]", sessions)
	}
	if b.Points() != 1 {
		t.Errorf("points must survive trimming, got %d", b.Points())
	}
}

func TestCanceledContext(t *testing.T) {
	b := mustOpen(t, tempPath(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := b.BlockedIdentities(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("BlockedIdentities: %v", err)
	}
	if err := b.RecordSessionEnd(ctx, "p"); !errors.Is(err, context.Canceled) {
		t.Errorf("RecordSessionEnd: %v", err)
	}
	if err := b.AwardMeaningfulInteraction(ctx, "p", "s"); !errors.Is(err, context.Canceled) {
		t.Errorf("AwardMeaningfulInteraction: %v", err)
	}
}

func TestCorruptFileIsBackedUp(t *testing.T) {
	path := tempPath(t)
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}

	b := mustOpen(t, path)
	if len(b.Blocked()) != 0 {
		t.Error("expected empty store after corrupt file")
	}
	if _, err := os.Stat(path + backupFileSuffix); err != nil {
		t.Errorf("expected backup file: %v", err)
	}
}

func TestNewerVersionRejected(t *testing.T) {
	path := tempPath(t)
	raw, _ := json.Marshal(map[string]any{"version": currentVersion + 1})
	if err := os.WriteFile(path, raw, 0600); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(path); err == nil {
		t.Fatal("expected error for a newer store version")
	}
}

func TestReload_DiscardsUnsaved(t *testing.T) {
	b := mustOpen(t, tempPath(t), WithFlushInterval(time.Hour))
	b.Block("tok", "")
	b.RecordSessionEnd(context.Background(), "p")

	if err := b.Reload(); err != nil {
		t.Fatal(err)
	}
	if len(b.Sessions()) != 0 {
		t.Error("unsaved session should be discarded")
	}
	if !b.IsBlocked("tok") {
		t.Error("saved block should survive reload")
	}
}

func TestConcurrentAccess(t *testing.T) {
	b := mustOpen(t, tempPath(t))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				b.RecordSessionEnd(ctx, "peer")
				b.IsBlocked("tok")
				b.BlockedIdentities(ctx)
			}
		}(i)
	}
	wg.Wait()

	if got := len(b.Sessions()); got != 160 {
		t.Errorf("sessions = %d, want 160", got)
	}
}
