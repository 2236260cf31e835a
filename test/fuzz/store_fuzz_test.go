package fuzz

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/blockberries/encounter/pkg/store"
)

// FuzzStoreOpen opens arbitrary file contents as a store. Open may refuse
// the file but must not panic, and an opened store must answer queries.
func FuzzStoreOpen(f *testing.F) {
	f.Add([]byte(`{"version":1,"blocked":{"tok":{"token":"tok","blocked_at":"2026-01-01T00:00:00Z"}},"sessions":[{"peer":"p","ended_at":"2026-01-01T00:00:00Z","meaningful":true}],"points":3}`))
	f.Add([]byte(`{"version":1}`))
	f.Add([]byte(`{"version":99}`))
	f.Add([]byte(`{"blocked":null,"sessions":null}`))
	f.Add([]byte(`{`))
	f.Add([]byte{})

	f.Fuzz(func(t *testing.T, contents []byte) {
		path := filepath.Join(t.TempDir(), "store.json")
		if err := os.WriteFile(path, contents, 0600); err != nil {
			t.Fatal(err)
		}

		b, err := store.Open(path, store.WithFlushInterval(time.Hour))
		if err != nil {
			return
		}
		defer b.Close()

		ctx := context.Background()
		if _, err := b.BlockedIdentities(ctx); err != nil {
			t.Fatalf("BlockedIdentities: %v", err)
		}
		if _, err := b.RecentSessionEnds(ctx, time.Time{}); err != nil {
			t.Fatalf("RecentSessionEnds: %v", err)
		}
		_ = b.Blocked()
		_ = b.Sessions()
	})
}
