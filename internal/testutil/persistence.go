// Package testutil provides mock persistence and logging for tests of
// the encounter node and its consumers.
package testutil

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrInjected is returned by mocks configured to fail.
var ErrInjected = errors.New("injected failure")

// SessionEnd records one RecordSessionEnd call.
type SessionEnd struct {
	Peer string
	At   time.Time
}

// Award records one AwardMeaningfulInteraction call.
type Award struct {
	Peer      string
	SessionID string
}

// MockPersistence is an in-memory persistence layer. It records every
// call and allows injecting errors per operation.
type MockPersistence struct {
	mu sync.Mutex

	blocked []string
	ended   []SessionEnd
	awards  []Award
	recent  map[string]time.Time

	blockedErr error
	endErr     error
	awardErr   error

	// Now stamps recorded session ends. Defaults to time.Now.
	Now func() time.Time

	// notify is signalled after every write call.
	notify chan struct{}
}

// NewMockPersistence creates a mock with the given blocked tokens.
func NewMockPersistence(blocked ...string) *MockPersistence {
	return &MockPersistence{
		blocked: append([]string(nil), blocked...),
		recent:  make(map[string]time.Time),
		Now:     time.Now,
		notify:  make(chan struct{}, 64),
	}
}

// BlockedIdentities returns the configured blocked tokens.
func (m *MockPersistence) BlockedIdentities(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.blockedErr != nil {
		return nil, m.blockedErr
	}
	return append([]string(nil), m.blocked...), nil
}

// RecordSessionEnd records the call.
func (m *MockPersistence) RecordSessionEnd(ctx context.Context, peer string) error {
	m.mu.Lock()
	err := m.endErr
	if err == nil {
		m.ended = append(m.ended, SessionEnd{Peer: peer, At: m.Now()})
	}
	m.mu.Unlock()

	m.signal()
	return err
}

// AwardMeaningfulInteraction records the call.
func (m *MockPersistence) AwardMeaningfulInteraction(ctx context.Context, peer, sessionID string) error {
	m.mu.Lock()
	err := m.awardErr
	if err == nil {
		m.awards = append(m.awards, Award{Peer: peer, SessionID: sessionID})
	}
	m.mu.Unlock()

	m.signal()
	return err
}

// RecentSessionEnds returns the seeded session ends at or after since.
func (m *MockPersistence) RecentSessionEnds(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]time.Time)
	for peer, at := range m.recent {
		if !at.Before(since) {
			out[peer] = at
		}
	}
	return out, nil
}

// SetBlocked replaces the blocked tokens.
func (m *MockPersistence) SetBlocked(tokens ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocked = append([]string(nil), tokens...)
}

// SeedRecent adds a previous session end returned by RecentSessionEnds.
func (m *MockPersistence) SeedRecent(peer string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent[peer] = at
}

// SetBlockedError makes BlockedIdentities fail.
func (m *MockPersistence) SetBlockedError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blockedErr = err
}

// SetSessionEndError makes RecordSessionEnd fail.
func (m *MockPersistence) SetSessionEndError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endErr = err
}

// SetAwardError makes AwardMeaningfulInteraction fail.
func (m *MockPersistence) SetAwardError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.awardErr = err
}

// SessionEnds returns the recorded session ends.
func (m *MockPersistence) SessionEnds() []SessionEnd {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]SessionEnd(nil), m.ended...)
}

// Awards returns the recorded awards.
func (m *MockPersistence) Awards() []Award {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Award(nil), m.awards...)
}

// WaitFor blocks until cond holds or the timeout passes. cond is checked
// after every write call.
func (m *MockPersistence) WaitFor(timeout time.Duration, cond func(*MockPersistence) bool) bool {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	for {
		if cond(m) {
			return true
		}
		select {
		case <-m.notify:
		case <-deadline.C:
			return cond(m)
		}
	}
}

func (m *MockPersistence) signal() {
	select {
	case m.notify <- struct{}{}:
	default:
	}
}
