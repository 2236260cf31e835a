package encounter

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/blockberries/encounter/pkg/connection"
)

// DebugState represents the complete state of a Node for debugging purposes.
type DebugState struct {
	// Node identity
	LocalPeer string `json:"local_peer"`
	Started   bool   `json:"started"`

	// Discovery and connection
	Connection DebugConnection `json:"connection"`

	// Session tracking
	Session DebugSession `json:"session"`

	// UI event stream
	Events DebugEvents `json:"events"`

	// Configuration
	Config DebugConfig `json:"config"`

	// Timestamp when state was captured
	CapturedAt string `json:"captured_at"`
}

// DebugConnection represents connection manager state for debugging.
type DebugConnection struct {
	Discovering      bool     `json:"discovering"`
	DiscoveryWanted  bool     `json:"discovery_wanted"`
	ActivePeer       string   `json:"active_peer,omitempty"`
	State            string   `json:"state"`
	Role             string   `json:"role,omitempty"`
	InFlight         []string `json:"in_flight,omitempty"`
	PendingPeers     int      `json:"pending_peers"`
	Cooldowns        int      `json:"cooldowns"`
	Blocked          int      `json:"blocked"`
	ReconnectPending bool     `json:"reconnect_pending"`
}

// DebugSession represents session tracker and keepalive state.
type DebugSession struct {
	ID         string `json:"id,omitempty"`
	Active     bool   `json:"active"`
	Duration   string `json:"duration"`
	Sent       int    `json:"sent"`
	Received   int    `json:"received"`
	Meaningful bool   `json:"meaningful"`
	Quality    string `json:"quality"`
}

// DebugEvents represents event stream state.
type DebugEvents struct {
	Buffered int    `json:"buffered"`
	Dropped  uint64 `json:"dropped"`
	Policy   string `json:"policy"`
}

// DebugConfig represents configuration summary for debugging.
type DebugConfig struct {
	ReconnectDelay        string `json:"reconnect_delay"`
	HandshakeTimeout      string `json:"handshake_timeout"`
	CooldownWindow        string `json:"cooldown_window"`
	KeepaliveInterval     string `json:"keepalive_interval"`
	MinMeaningfulDuration string `json:"min_meaningful_duration"`
	MinMeaningfulMessages int    `json:"min_meaningful_messages"`
	MaxMessageSize        int    `json:"max_message_size"`
	EventBufferSize       int    `json:"event_buffer_size"`
}

// DumpState captures the current state of the node for debugging.
func (n *Node) DumpState() *DebugState {
	n.startMu.Lock()
	started := n.started && !n.stopped
	n.startMu.Unlock()

	state := &DebugState{
		LocalPeer:  n.LocalPeer(),
		Started:    started,
		CapturedAt: n.clock.Now().Format("2006-01-02T15:04:05Z07:00"),
	}

	var snap connection.Snapshot
	n.inspect(func() { snap = n.manager.Snapshot() })
	state.Connection = DebugConnection{
		Discovering:      snap.Discovering,
		DiscoveryWanted:  snap.DiscoveryWanted,
		ActivePeer:       string(snap.ActivePeer),
		State:            snap.ActiveState.String(),
		Role:             snap.Role,
		PendingPeers:     snap.PendingPeers,
		Cooldowns:        snap.Cooldowns,
		Blocked:          snap.Blocked,
		ReconnectPending: snap.ReconnectPending,
	}
	for _, p := range snap.InFlight {
		state.Connection.InFlight = append(state.Connection.InFlight, string(p))
	}

	m := n.tracker.Snapshot()
	state.Session = DebugSession{
		ID:         m.SessionID,
		Active:     m.Active,
		Duration:   m.Duration.String(),
		Sent:       m.SentCount,
		Received:   m.ReceivedCount,
		Meaningful: m.IsMeaningful,
		Quality:    n.keepalive.Quality().String(),
	}

	state.Events = DebugEvents{
		Buffered: n.events.Len(),
		Dropped:  n.events.Dropped(),
		Policy:   n.events.Policy().String(),
	}

	state.Config = n.dumpConfig()
	return state
}

// dumpConfig returns configuration debug info.
func (n *Node) dumpConfig() DebugConfig {
	return DebugConfig{
		ReconnectDelay:        n.config.ReconnectDelay.String(),
		HandshakeTimeout:      n.config.HandshakeTimeout.String(),
		CooldownWindow:        n.config.CooldownWindow.String(),
		KeepaliveInterval:     n.config.KeepaliveInterval.String(),
		MinMeaningfulDuration: n.config.MinMeaningfulDuration.String(),
		MinMeaningfulMessages: n.config.MinMeaningfulMessages,
		MaxMessageSize:        n.config.MaxMessageSize,
		EventBufferSize:       n.config.EventBufferSize,
	}
}

// DumpStateJSON returns the node state as formatted JSON.
func (n *Node) DumpStateJSON() (string, error) {
	state := n.DumpState()
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return string(data), nil
}

// DumpStateString returns a human-readable representation of the node state.
func (n *Node) DumpStateString() string {
	state := n.DumpState()
	var sb strings.Builder

	sb.WriteString("=== Encounter Node Debug State ===\n\n")

	sb.WriteString("IDENTITY:\n")
	sb.WriteString(fmt.Sprintf("  Local Peer: %s\n", state.LocalPeer))
	sb.WriteString(fmt.Sprintf("  Started:    %t\n", state.Started))
	sb.WriteString("\n")

	c := state.Connection
	sb.WriteString("CONNECTION:\n")
	sb.WriteString(fmt.Sprintf("  Discovering: %t (wanted %t)\n", c.Discovering, c.DiscoveryWanted))
	if c.ActivePeer == "" {
		sb.WriteString("  Active:      (none)\n")
	} else {
		sb.WriteString(fmt.Sprintf("  Active:      %s [%s, %s]\n", c.ActivePeer, c.State, c.Role))
	}
	if len(c.InFlight) > 0 {
		sb.WriteString(fmt.Sprintf("  In flight:   %s\n", strings.Join(c.InFlight, ", ")))
	}
	sb.WriteString(fmt.Sprintf("  Pending:     %d peers\n", c.PendingPeers))
	sb.WriteString(fmt.Sprintf("  Cooldowns:   %d\n", c.Cooldowns))
	sb.WriteString(fmt.Sprintf("  Blocked:     %d\n", c.Blocked))
	if c.ReconnectPending {
		sb.WriteString("  Reconnect:   scheduled\n")
	}
	sb.WriteString("\n")

	s := state.Session
	sb.WriteString("SESSION:\n")
	if s.Active {
		sb.WriteString(fmt.Sprintf("  ID:         %s\n", s.ID))
		sb.WriteString(fmt.Sprintf("  Duration:   %s\n", s.Duration))
		sb.WriteString(fmt.Sprintf("  Messages:   %d sent, %d received\n", s.Sent, s.Received))
		sb.WriteString(fmt.Sprintf("  Meaningful: %t\n", s.Meaningful))
	} else {
		sb.WriteString("  (inactive)\n")
	}
	sb.WriteString(fmt.Sprintf("  Quality:    %s\n", s.Quality))
	sb.WriteString("\n")

	sb.WriteString("EVENTS:\n")
	sb.WriteString(fmt.Sprintf("  Buffered: %d\n", state.Events.Buffered))
	sb.WriteString(fmt.Sprintf("  Dropped:  %d (%s)\n", state.Events.Dropped, state.Events.Policy))
	sb.WriteString("\n")

	cfg := state.Config
	sb.WriteString("CONFIGURATION:\n")
	sb.WriteString(fmt.Sprintf("  Reconnect Delay:    %s\n", cfg.ReconnectDelay))
	sb.WriteString(fmt.Sprintf("  Handshake Timeout:  %s\n", cfg.HandshakeTimeout))
	sb.WriteString(fmt.Sprintf("  Cooldown Window:    %s\n", cfg.CooldownWindow))
	sb.WriteString(fmt.Sprintf("  Keepalive Interval: %s\n", cfg.KeepaliveInterval))
	sb.WriteString(fmt.Sprintf("  Meaningful After:   %s and %d messages each\n", cfg.MinMeaningfulDuration, cfg.MinMeaningfulMessages))
	sb.WriteString(fmt.Sprintf("  Max Message Size:   %d bytes\n", cfg.MaxMessageSize))
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("Captured at: %s\n", state.CapturedAt))
	sb.WriteString("==================================\n")

	return sb.String()
}
