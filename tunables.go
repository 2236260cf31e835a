package encounter

import (
	"fmt"
	"time"

	"github.com/pelletier/go-toml"

	"github.com/blockberries/encounter/internal/eventdispatch"
)

// LoadTunables reads tunables from a TOML file. The optional "profile" key
// selects the base set ("production" or "development"); every other key
// overrides one field:
//
//	profile = "development"
//	reconnect_delay = "3s"
//	min_meaningful_messages = 4
//	event_overflow = "drop-newest"
func LoadTunables(path string) (Tunables, error) {
	tree, err := toml.LoadFile(path)
	if err != nil {
		return Tunables{}, fmt.Errorf("failed to load tunables: %w", err)
	}
	return tunablesFromTree(tree)
}

// ParseTunables is LoadTunables for in-memory TOML.
func ParseTunables(data string) (Tunables, error) {
	tree, err := toml.Load(data)
	if err != nil {
		return Tunables{}, fmt.Errorf("failed to parse tunables: %w", err)
	}
	return tunablesFromTree(tree)
}

func tunablesFromTree(tree *toml.Tree) (Tunables, error) {
	profile, err := tomlString(tree, "profile")
	if err != nil {
		return Tunables{}, err
	}
	t, err := Profile(profile)
	if err != nil {
		return Tunables{}, err
	}

	durations := map[string]*time.Duration{
		"reconnect_delay":         &t.ReconnectDelay,
		"handshake_timeout":       &t.HandshakeTimeout,
		"cooldown_window":         &t.CooldownWindow,
		"keepalive_interval":      &t.KeepaliveInterval,
		"session_tick_interval":   &t.SessionTickInterval,
		"min_meaningful_duration": &t.MinMeaningfulDuration,
		"event_block_timeout":     &t.EventBlockTimeout,
		"persistence_timeout":     &t.PersistenceTimeout,
	}
	ints := map[string]*int{
		"min_meaningful_messages": &t.MinMeaningfulMessages,
		"invite_burst":            &t.InviteBurst,
		"max_pending_per_peer":    &t.MaxPendingPerPeer,
		"max_message_size":        &t.MaxMessageSize,
		"event_buffer_size":       &t.EventBufferSize,
	}

	for _, key := range tree.Keys() {
		switch {
		case key == "profile":
		case durations[key] != nil:
			s, err := tomlString(tree, key)
			if err != nil {
				return Tunables{}, err
			}
			d, err := time.ParseDuration(s)
			if err != nil {
				return Tunables{}, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err)
			}
			*durations[key] = d
		case ints[key] != nil:
			n, ok := tree.Get(key).(int64)
			if !ok {
				return Tunables{}, fmt.Errorf("%w: %s must be an integer", ErrInvalidConfig, key)
			}
			*ints[key] = int(n)
		case key == "invite_rate":
			switch v := tree.Get(key).(type) {
			case float64:
				t.InviteRate = v
			case int64:
				t.InviteRate = float64(v)
			default:
				return Tunables{}, fmt.Errorf("%w: invite_rate must be a number", ErrInvalidConfig)
			}
		case key == "event_overflow":
			s, err := tomlString(tree, key)
			if err != nil {
				return Tunables{}, err
			}
			p, err := eventdispatch.ParsePolicy(s)
			if err != nil {
				return Tunables{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
			}
			t.EventOverflow = p
		default:
			return Tunables{}, fmt.Errorf("%w: unknown tunable %q", ErrInvalidConfig, key)
		}
	}

	if err := t.Validate(); err != nil {
		return Tunables{}, err
	}
	return t, nil
}

func tomlString(tree *toml.Tree, key string) (string, error) {
	v := tree.Get(key)
	if v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidConfig, key)
	}
	return s, nil
}
