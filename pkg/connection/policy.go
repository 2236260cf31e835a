package connection

import (
	"sync"
	"time"

	"github.com/blockberries/encounter/pkg/transport"
)

// BlockList is a read-mostly snapshot of blocked identity tokens. It is
// replaced wholesale from the persistence collaborator, so policy decisions
// may briefly use a stale list.
type BlockList struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
}

// NewBlockList creates a blocklist holding the given tokens.
func NewBlockList(tokens ...string) *BlockList {
	bl := &BlockList{}
	bl.Replace(tokens)
	return bl
}

// Replace swaps in a new snapshot.
func (bl *BlockList) Replace(tokens []string) {
	next := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t != "" {
			next[t] = struct{}{}
		}
	}

	bl.mu.Lock()
	bl.tokens = next
	bl.mu.Unlock()
}

// Contains reports whether token is blocked. The empty token never is.
func (bl *BlockList) Contains(token string) bool {
	if token == "" {
		return false
	}
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	_, ok := bl.tokens[token]
	return ok
}

// Len returns the number of blocked tokens.
func (bl *BlockList) Len() int {
	bl.mu.RLock()
	defer bl.mu.RUnlock()
	return len(bl.tokens)
}

// CooldownRegistry remembers when the last session with each peer ended so
// the same pair is not immediately re-matched.
type CooldownRegistry struct {
	mu     sync.RWMutex
	window time.Duration
	ended  map[transport.PeerID]time.Time
}

// NewCooldownRegistry creates a registry with the given window.
func NewCooldownRegistry(window time.Duration) *CooldownRegistry {
	return &CooldownRegistry{
		window: window,
		ended:  make(map[transport.PeerID]time.Time),
	}
}

// Record stores the session end time for peer.
func (r *CooldownRegistry) Record(peer transport.PeerID, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended[peer] = at
}

// Seed merges externally persisted end times, keeping the later of two.
func (r *CooldownRegistry) Seed(ended map[transport.PeerID]time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for peer, at := range ended {
		if prev, ok := r.ended[peer]; !ok || at.After(prev) {
			r.ended[peer] = at
		}
	}
}

// InCooldown reports whether peer's last session ended within the window.
func (r *CooldownRegistry) InCooldown(peer transport.PeerID, now time.Time) bool {
	return r.Remaining(peer, now) > 0
}

// Remaining returns how long peer stays in cooldown, or zero.
func (r *CooldownRegistry) Remaining(peer transport.PeerID, now time.Time) time.Duration {
	r.mu.RLock()
	defer r.mu.RUnlock()

	at, ok := r.ended[peer]
	if !ok {
		return 0
	}
	remaining := at.Add(r.window).Sub(now)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Clear forgets every entry.
func (r *CooldownRegistry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ended = make(map[transport.PeerID]time.Time)
}

// Len returns the number of recorded peers.
func (r *CooldownRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.ended)
}
