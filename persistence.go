package encounter

import (
	"context"
	"time"
)

// Persistence is the storage collaborator. The node invokes it and never
// implements it; calls run off the event loop, bounded by
// PersistenceTimeout.
//
// Implementations must be safe for concurrent use.
type Persistence interface {
	// BlockedIdentities returns the identity tokens that must never be
	// matched.
	BlockedIdentities(ctx context.Context) ([]string, error)

	// RecordSessionEnd notes that the session with peer ended.
	RecordSessionEnd(ctx context.Context, peer string) error

	// AwardMeaningfulInteraction credits a meaningful session.
	AwardMeaningfulInteraction(ctx context.Context, peer, sessionID string) error
}

// SessionEndLister is optionally implemented by a Persistence that can
// report recent session ends. Start uses it to seed cooldowns so that a
// restart does not clear them.
type SessionEndLister interface {
	RecentSessionEnds(ctx context.Context, since time.Time) (map[string]time.Time, error)
}

// NopPersistence stores nothing and blocks no one.
type NopPersistence struct{}

var _ Persistence = NopPersistence{}

// BlockedIdentities implements Persistence (no-op).
func (NopPersistence) BlockedIdentities(context.Context) ([]string, error) {
	return nil, nil
}

// RecordSessionEnd implements Persistence (no-op).
func (NopPersistence) RecordSessionEnd(context.Context, string) error {
	return nil
}

// AwardMeaningfulInteraction implements Persistence (no-op).
func (NopPersistence) AwardMeaningfulInteraction(context.Context, string, string) error {
	return nil
}
