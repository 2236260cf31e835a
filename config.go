package encounter

import (
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/blockberries/encounter/internal/eventdispatch"
	"github.com/blockberries/encounter/pkg/clock"
)

// Default configuration values. They equal the Production profile.
const (
	DefaultReconnectDelay        = 5 * time.Second
	DefaultHandshakeTimeout      = 15 * time.Second
	DefaultCooldownWindow        = 24 * time.Hour
	DefaultKeepaliveInterval     = 10 * time.Second
	DefaultSessionTickInterval   = 1 * time.Second
	DefaultMinMeaningfulDuration = 5 * time.Minute
	DefaultMinMeaningfulMessages = 5
	DefaultInviteRate            = 1.0
	DefaultInviteBurst           = 3
	DefaultMaxPendingPerPeer     = 64
	DefaultMaxMessageSize        = 64 * 1024
	DefaultEventBufferSize       = 100
	DefaultEventBlockTimeout     = 1 * time.Second
	DefaultPersistenceTimeout    = 5 * time.Second
)

// OverflowPolicy selects what the event stream does when the consumer
// falls behind.
type OverflowPolicy = eventdispatch.Policy

const (
	// OverflowDropOldest discards the oldest undelivered event.
	OverflowDropOldest = eventdispatch.DropOldest

	// OverflowDropNewest discards the event being emitted.
	OverflowDropNewest = eventdispatch.DropNewest

	// OverflowBlock stalls the event loop for up to EventBlockTimeout.
	OverflowBlock = eventdispatch.Block
)

// Tunables are the timing and threshold knobs that differ between
// deployments. Zero fields take the Production value.
type Tunables struct {
	// ReconnectDelay is how long after a drop discovery restarts.
	ReconnectDelay time.Duration

	// HandshakeTimeout is how long a connected peer may take to complete
	// the key exchange before the connection is dropped.
	HandshakeTimeout time.Duration

	// CooldownWindow is how long after a session ends the same peer is
	// refused.
	CooldownWindow time.Duration

	// KeepaliveInterval is the time between keepalive sentinels.
	KeepaliveInterval time.Duration

	// SessionTickInterval is how often session duration is re-evaluated.
	SessionTickInterval time.Duration

	// MinMeaningfulDuration and MinMeaningfulMessages gate the
	// meaningful-interaction predicate. The message threshold applies to
	// each direction.
	MinMeaningfulDuration time.Duration
	MinMeaningfulMessages int

	// InviteRate is the sustained outbound invitations per second.
	InviteRate  float64
	InviteBurst int

	// MaxPendingPerPeer caps frames buffered before a peer's record exists.
	MaxPendingPerPeer int

	// MaxMessageSize caps the plaintext size of an outbound message.
	MaxMessageSize int

	EventBufferSize   int
	EventOverflow     OverflowPolicy
	EventBlockTimeout time.Duration

	// PersistenceTimeout bounds each persistence call.
	PersistenceTimeout time.Duration
}

// Production returns the tunables used for real deployments.
func Production() Tunables {
	return Tunables{
		ReconnectDelay:        DefaultReconnectDelay,
		HandshakeTimeout:      DefaultHandshakeTimeout,
		CooldownWindow:        DefaultCooldownWindow,
		KeepaliveInterval:     DefaultKeepaliveInterval,
		SessionTickInterval:   DefaultSessionTickInterval,
		MinMeaningfulDuration: DefaultMinMeaningfulDuration,
		MinMeaningfulMessages: DefaultMinMeaningfulMessages,
		InviteRate:            DefaultInviteRate,
		InviteBurst:           DefaultInviteBurst,
		MaxPendingPerPeer:     DefaultMaxPendingPerPeer,
		MaxMessageSize:        DefaultMaxMessageSize,
		EventBufferSize:       DefaultEventBufferSize,
		EventOverflow:         OverflowDropOldest,
		EventBlockTimeout:     DefaultEventBlockTimeout,
		PersistenceTimeout:    DefaultPersistenceTimeout,
	}
}

// Development returns shorter timers and lower thresholds for local
// testing.
func Development() Tunables {
	t := Production()
	t.ReconnectDelay = 2 * time.Second
	t.CooldownWindow = time.Minute
	t.KeepaliveInterval = 5 * time.Second
	t.MinMeaningfulDuration = 30 * time.Second
	t.MinMeaningfulMessages = 3
	t.InviteRate = 5
	return t
}

// Profile returns the named tunables.
func Profile(name string) (Tunables, error) {
	switch name {
	case "", "production":
		return Production(), nil
	case "development":
		return Development(), nil
	default:
		return Tunables{}, fmt.Errorf("%w: unknown profile %q", ErrInvalidConfig, name)
	}
}

func (t *Tunables) applyDefaults() {
	d := Production()
	if t.ReconnectDelay == 0 {
		t.ReconnectDelay = d.ReconnectDelay
	}
	if t.HandshakeTimeout == 0 {
		t.HandshakeTimeout = d.HandshakeTimeout
	}
	if t.CooldownWindow == 0 {
		t.CooldownWindow = d.CooldownWindow
	}
	if t.KeepaliveInterval == 0 {
		t.KeepaliveInterval = d.KeepaliveInterval
	}
	if t.SessionTickInterval == 0 {
		t.SessionTickInterval = d.SessionTickInterval
	}
	if t.MinMeaningfulDuration == 0 {
		t.MinMeaningfulDuration = d.MinMeaningfulDuration
	}
	if t.MinMeaningfulMessages == 0 {
		t.MinMeaningfulMessages = d.MinMeaningfulMessages
	}
	if t.InviteRate == 0 {
		t.InviteRate = d.InviteRate
	}
	if t.InviteBurst == 0 {
		t.InviteBurst = d.InviteBurst
	}
	if t.MaxPendingPerPeer == 0 {
		t.MaxPendingPerPeer = d.MaxPendingPerPeer
	}
	if t.MaxMessageSize == 0 {
		t.MaxMessageSize = d.MaxMessageSize
	}
	if t.EventBufferSize == 0 {
		t.EventBufferSize = d.EventBufferSize
	}
	if t.EventBlockTimeout == 0 {
		t.EventBlockTimeout = d.EventBlockTimeout
	}
	if t.PersistenceTimeout == 0 {
		t.PersistenceTimeout = d.PersistenceTimeout
	}
}

// Validate checks that no tunable is negative or out of range.
func (t *Tunables) Validate() error {
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"reconnect delay", t.ReconnectDelay},
		{"handshake timeout", t.HandshakeTimeout},
		{"cooldown window", t.CooldownWindow},
		{"keepalive interval", t.KeepaliveInterval},
		{"session tick interval", t.SessionTickInterval},
		{"min meaningful duration", t.MinMeaningfulDuration},
		{"event block timeout", t.EventBlockTimeout},
		{"persistence timeout", t.PersistenceTimeout},
	}
	for _, d := range durations {
		if d.value < 0 {
			return fmt.Errorf("%w: %s cannot be negative", ErrInvalidConfig, d.name)
		}
	}
	if t.MinMeaningfulMessages < 0 {
		return fmt.Errorf("%w: min meaningful messages cannot be negative", ErrInvalidConfig)
	}
	if t.InviteRate < 0 {
		return fmt.Errorf("%w: invite rate cannot be negative", ErrInvalidConfig)
	}
	if t.InviteBurst < 0 {
		return fmt.Errorf("%w: invite burst cannot be negative", ErrInvalidConfig)
	}
	if t.MaxPendingPerPeer < 0 {
		return fmt.Errorf("%w: max pending per peer cannot be negative", ErrInvalidConfig)
	}
	if t.MaxMessageSize < 0 {
		return fmt.Errorf("%w: max message size cannot be negative", ErrInvalidConfig)
	}
	if t.EventBufferSize < 0 {
		return fmt.Errorf("%w: event buffer size cannot be negative", ErrInvalidConfig)
	}
	switch t.EventOverflow {
	case OverflowDropOldest, OverflowDropNewest, OverflowBlock:
	default:
		return fmt.Errorf("%w: unknown event overflow policy %v", ErrInvalidConfig, t.EventOverflow)
	}
	return nil
}

func (t *Tunables) inviteLimit() rate.Limit {
	return rate.Limit(t.InviteRate)
}

// Config holds the configuration for a Node. Every collaborator is
// injected here; the node holds no package-level state.
type Config struct {
	Tunables

	// LocalToken is the application identity token advertised to peers and
	// checked against their blocklists. It is never logged.
	LocalToken string

	// Persistence receives session outcomes and supplies the blocklist. If
	// nil, NopPersistence is used.
	Persistence Persistence

	// Logger is the logger for the node. If nil, a NopLogger is used.
	// The logger must be safe for concurrent use.
	Logger Logger

	// Metrics is the metrics collector for the node. If nil, a NopMetrics
	// is used. The metrics collector must be safe for concurrent use.
	Metrics Metrics

	// Tracer creates handshake and session spans. If nil, a NopTracer is
	// used.
	Tracer Tracer

	// Clock drives every timer. If nil, the wall clock is used.
	Clock clock.Clock
}

// Validate checks that the configuration is valid and returns an error
// describing any problems found.
func (c *Config) Validate() error {
	if err := c.Tunables.Validate(); err != nil {
		return err
	}
	if len(c.LocalToken) > maxTokenLength {
		return fmt.Errorf("%w: local token exceeds %d bytes", ErrInvalidConfig, maxTokenLength)
	}
	return nil
}

// applyDefaults sets default values for any unset optional fields.
func (c *Config) applyDefaults() {
	c.Tunables.applyDefaults()
	if c.Persistence == nil {
		c.Persistence = NopPersistence{}
	}
	if c.Logger == nil {
		c.Logger = NopLogger{}
	}
	if c.Metrics == nil {
		c.Metrics = NopMetrics{}
	}
	if c.Tracer == nil {
		c.Tracer = NopTracer{}
	}
	if c.Clock == nil {
		c.Clock = clock.Real()
	}
}

// ConfigOption is a functional option for configuring a Node.
type ConfigOption func(*Config)

// WithTunables replaces every tunable at once, typically with Development()
// or the result of LoadTunables.
func WithTunables(t Tunables) ConfigOption {
	return func(c *Config) {
		c.Tunables = t
	}
}

// WithReconnectDelay sets the delay before discovery restarts after a drop.
func WithReconnectDelay(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.ReconnectDelay = d
	}
}

// WithCooldownWindow sets how long a peer is refused after a session ends.
func WithCooldownWindow(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.CooldownWindow = d
	}
}

// WithKeepaliveInterval sets the time between keepalive sentinels.
func WithKeepaliveInterval(d time.Duration) ConfigOption {
	return func(c *Config) {
		c.KeepaliveInterval = d
	}
}

// WithMeaningfulThresholds sets the meaningful-interaction thresholds.
func WithMeaningfulThresholds(minDuration time.Duration, minMessages int) ConfigOption {
	return func(c *Config) {
		c.MinMeaningfulDuration = minDuration
		c.MinMeaningfulMessages = minMessages
	}
}

// WithInviteRate sets the outbound invitation token bucket.
func WithInviteRate(perSecond float64, burst int) ConfigOption {
	return func(c *Config) {
		c.InviteRate = perSecond
		c.InviteBurst = burst
	}
}

// WithEventBuffer sets the event stream capacity and overflow policy.
func WithEventBuffer(size int, policy OverflowPolicy) ConfigOption {
	return func(c *Config) {
		c.EventBufferSize = size
		c.EventOverflow = policy
	}
}

// WithPersistence sets the persistence collaborator.
func WithPersistence(p Persistence) ConfigOption {
	return func(c *Config) {
		c.Persistence = p
	}
}

// WithLogger sets the logger for the node.
// The logger must be safe for concurrent use.
func WithLogger(l Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = l
	}
}

// WithMetrics sets the metrics collector for the node.
// The metrics collector must be safe for concurrent use.
func WithMetrics(m Metrics) ConfigOption {
	return func(c *Config) {
		c.Metrics = m
	}
}

// WithTracer sets the tracer for the node.
func WithTracer(t Tracer) ConfigOption {
	return func(c *Config) {
		c.Tracer = t
	}
}

// WithClock sets the clock driving every timer.
func WithClock(clk clock.Clock) ConfigOption {
	return func(c *Config) {
		c.Clock = clk
	}
}

// NewConfig creates a new Config with the given identity token and applies
// any provided options. It applies defaults for unset optional fields
// but does not validate the configuration.
func NewConfig(localToken string, opts ...ConfigOption) *Config {
	c := &Config{
		LocalToken: localToken,
		Tunables:   Production(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.applyDefaults()
	return c
}
