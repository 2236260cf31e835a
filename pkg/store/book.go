package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blockberries/encounter/pkg/clock"
)

const (
	// DefaultFlushInterval is how often batched changes are written out.
	DefaultFlushInterval = 5 * time.Second

	// DefaultMaxSessions caps the session history kept on disk.
	DefaultMaxSessions = 1000
)

var (
	// ErrNotBlocked is returned when unblocking a token that is not blocked.
	ErrNotBlocked = errors.New("token is not blocked")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store closed")

	// ErrEmptyToken is returned when blocking an empty token.
	ErrEmptyToken = errors.New("empty token")
)

// Option configures a Book.
type Option func(*Book)

// WithFlushInterval sets how often batched changes are flushed.
func WithFlushInterval(d time.Duration) Option {
	return func(b *Book) {
		if d > 0 {
			b.flushInterval = d
		}
	}
}

// WithClock sets the time source used to stamp records and drive the
// flush loop.
func WithClock(c clock.Clock) Option {
	return func(b *Book) {
		if c != nil {
			b.clock = c
		}
	}
}

// WithMaxSessions caps the session history. Older records are dropped first.
func WithMaxSessions(n int) Option {
	return func(b *Book) {
		if n > 0 {
			b.maxSessions = n
		}
	}
}

// Book is the persisted blocklist, session history and points ledger.
//
// Blocklist edits and awards are saved immediately. Session ends are
// batched and written by the background flush loop, by Flush or by Close.
// Book is safe for concurrent use.
type Book struct {
	storage *storage
	data    *bookData
	mu      sync.RWMutex

	// pending maps a peer to the session ID most recently awarded, so the
	// session end that follows is recorded as meaningful.
	pending map[string]string

	dirty  bool
	closed bool

	clock         clock.Clock
	flushInterval time.Duration
	maxSessions   int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// Open loads the book at path, creating an empty one if the file does not
// exist. The returned Book must be closed to persist batched changes.
func Open(path string, opts ...Option) (*Book, error) {
	s := newStorage(path)

	data, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load store: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Book{
		storage:       s,
		data:          data,
		pending:       make(map[string]string),
		clock:         clock.Real(),
		flushInterval: DefaultFlushInterval,
		maxSessions:   DefaultMaxSessions,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	tick := make(chan struct{}, 1)
	go b.flushLoop(tick, b.armFlush(tick))
	return b, nil
}

// Path returns the backing file path.
func (b *Book) Path() string {
	return b.storage.path
}

// Block adds token to the blocklist, replacing the reason if it is already
// present.
func (b *Book) Block(token, reason string) error {
	if token == "" {
		return ErrEmptyToken
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	if existing, ok := b.data.Blocked[token]; ok {
		existing.Reason = reason
	} else {
		b.data.Blocked[token] = &BlockEntry{
			Token:     token,
			Reason:    reason,
			BlockedAt: b.clock.Now(),
		}
	}
	return b.saveLocked()
}

// Unblock removes token from the blocklist.
func (b *Book) Unblock(token string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	if _, ok := b.data.Blocked[token]; !ok {
		return fmt.Errorf("%w: %s", ErrNotBlocked, token)
	}
	delete(b.data.Blocked, token)
	return b.saveLocked()
}

// IsBlocked reports whether token is on the blocklist.
func (b *Book) IsBlocked(token string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.data.Blocked[token]
	return ok
}

// Blocked returns the blocklist ordered by block time, oldest first.
func (b *Book) Blocked() []BlockEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entries := make([]BlockEntry, 0, len(b.data.Blocked))
	for _, e := range b.data.Blocked {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].BlockedAt.Equal(entries[j].BlockedAt) {
			return entries[i].Token < entries[j].Token
		}
		return entries[i].BlockedAt.Before(entries[j].BlockedAt)
	})
	return entries
}

// BlockedIdentities returns the sorted blocked tokens.
func (b *Book) BlockedIdentities(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	tokens := make([]string, 0, len(b.data.Blocked))
	for token := range b.data.Blocked {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens, nil
}

// RecordSessionEnd appends a session record for peer. The write is batched.
func (b *Book) RecordSessionEnd(ctx context.Context, peer string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	rec := SessionRecord{Peer: peer, EndedAt: b.clock.Now()}
	if sessionID, ok := b.pending[peer]; ok {
		rec.SessionID = sessionID
		rec.Meaningful = true
		delete(b.pending, peer)
	}

	b.data.Sessions = append(b.data.Sessions, rec)
	b.trimLocked()
	b.dirty = true
	return nil
}

// AwardMeaningfulInteraction credits one point for sessionID. Repeated
// awards for the same session are ignored.
func (b *Book) AwardMeaningfulInteraction(ctx context.Context, peer, sessionID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	b.pending[peer] = sessionID
	if b.data.Awarded[sessionID] {
		return nil
	}
	b.data.Awarded[sessionID] = true
	b.data.Points++
	return b.saveLocked()
}

// RecentSessionEnds returns, per peer, the latest session end at or after
// since.
func (b *Book) RecentSessionEnds(ctx context.Context, since time.Time) (map[string]time.Time, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil, ErrClosed
	}

	ended := make(map[string]time.Time)
	for _, rec := range b.data.Sessions {
		if rec.EndedAt.Before(since) {
			continue
		}
		if at, ok := ended[rec.Peer]; !ok || rec.EndedAt.After(at) {
			ended[rec.Peer] = rec.EndedAt
		}
	}
	return ended, nil
}

// Sessions returns the session history, oldest first.
func (b *Book) Sessions() []SessionRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]SessionRecord, len(b.data.Sessions))
	copy(out, b.data.Sessions)
	return out
}

// Points returns the accumulated meaningful-interaction points.
func (b *Book) Points() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.data.Points
}

// trimLocked drops the oldest records beyond maxSessions along with their
// award markers.
func (b *Book) trimLocked() {
	excess := len(b.data.Sessions) - b.maxSessions
	if excess <= 0 {
		return
	}
	for _, rec := range b.data.Sessions[:excess] {
		if rec.SessionID != "" {
			delete(b.data.Awarded, rec.SessionID)
		}
	}
	b.data.Sessions = append([]SessionRecord(nil), b.data.Sessions[excess:]...)
}

// saveLocked writes the document. Must be called with the write lock held.
func (b *Book) saveLocked() error {
	if err := b.storage.save(b.data); err != nil {
		return err
	}
	b.dirty = false
	return nil
}

// Reload rereads the file, discarding unsaved changes.
func (b *Book) Reload() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrClosed
	}

	data, err := b.storage.load()
	if err != nil {
		return fmt.Errorf("failed to reload store: %w", err)
	}
	b.data = data
	b.dirty = false
	return nil
}

// armFlush schedules one flush tick on the book's clock.
func (b *Book) armFlush(tick chan<- struct{}) clock.Timer {
	return b.clock.AfterFunc(b.flushInterval, func() {
		select {
		case tick <- struct{}{}:
		default:
		}
	})
}

func (b *Book) flushLoop(tick chan struct{}, timer clock.Timer) {
	defer close(b.done)

	for {
		select {
		case <-b.ctx.Done():
			timer.Stop()
			return
		case <-tick:
			b.mu.Lock()
			if b.dirty && !b.closed {
				// Retried on the next tick.
				_ = b.saveLocked()
			}
			b.mu.Unlock()
			timer = b.armFlush(tick)
		}
	}
}

// Flush writes batched changes now.
func (b *Book) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.dirty {
		return nil
	}
	return b.saveLocked()
}

// Close stops the flush loop and writes any batched changes.
func (b *Book) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	b.cancel()
	<-b.done

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dirty {
		return b.saveLocked()
	}
	return nil
}
