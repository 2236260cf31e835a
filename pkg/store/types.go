// Package store is a file-backed implementation of the encounter
// persistence collaborator. It keeps the blocklist, a history of ended
// sessions and the accumulated meaningful-interaction points in a single
// JSON document.
package store

import "time"

// BlockEntry is one blocked identity token.
type BlockEntry struct {
	Token     string    `json:"token"`
	Reason    string    `json:"reason,omitempty"`
	BlockedAt time.Time `json:"blocked_at"`
}

// SessionRecord is one ended session.
type SessionRecord struct {
	Peer       string    `json:"peer"`
	SessionID  string    `json:"session_id,omitempty"`
	EndedAt    time.Time `json:"ended_at"`
	Meaningful bool      `json:"meaningful"`
}

// bookData is the on-disk document.
type bookData struct {
	Version  int                    `json:"version"`
	Blocked  map[string]*BlockEntry `json:"blocked"`
	Sessions []SessionRecord        `json:"sessions"`
	Points   int                    `json:"points"`

	// Awarded holds session IDs already credited, so a repeated award
	// for the same session is not counted twice.
	Awarded map[string]bool `json:"awarded,omitempty"`
}

func emptyData() *bookData {
	return &bookData{
		Version: currentVersion,
		Blocked: make(map[string]*BlockEntry),
		Awarded: make(map[string]bool),
	}
}

// normalize fills maps a decoded document may lack.
func (d *bookData) normalize() {
	if d.Blocked == nil {
		d.Blocked = make(map[string]*BlockEntry)
	}
	if d.Awarded == nil {
		d.Awarded = make(map[string]bool)
	}
}
