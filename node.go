package encounter

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/blockberries/encounter/internal/eventdispatch"
	"github.com/blockberries/encounter/pkg/clock"
	"github.com/blockberries/encounter/pkg/connection"
	"github.com/blockberries/encounter/pkg/crypto"
	"github.com/blockberries/encounter/pkg/router"
	"github.com/blockberries/encounter/pkg/session"
	"github.com/blockberries/encounter/pkg/transport"
)

// Persistence operation labels used in logs and metrics.
const (
	opBlockedIdentities          = "blocked_identities"
	opRecordSessionEnd           = "record_session_end"
	opAwardMeaningfulInteraction = "award_meaningful_interaction"
)

// Node is the main entry point. It owns one connection manager, session
// tracker, keepalive monitor and message router, and serializes all of
// them on a single event-loop goroutine.
//
// All public methods are thread-safe. Handlers registered with
// HandleSystem run on the event loop and must not call Node methods
// synchronously.
type Node struct {
	config      *Config
	transport   transport.Transport
	logger      Logger
	metrics     Metrics
	tracer      Tracer
	clock       clock.Clock
	persistence Persistence

	// Core components
	manager   *connection.Manager
	tracker   *session.Tracker
	keepalive *session.KeepaliveMonitor
	router    *router.Router
	events    *eventdispatch.Dispatcher[Event]
	stats     *statsTracker

	tasks *taskQueue

	// Owned by the event loop.
	handshakeSpan Span
	sessionSpan   Span
	sessionSpanID string

	// sessionPeer is the peer of the most recently begun session. It is
	// read by tracker callbacks on timer goroutines.
	sessionMu   sync.Mutex
	sessionPeer string

	persistWG sync.WaitGroup

	// Lifecycle
	ctx      context.Context
	cancel   context.CancelFunc
	loopDone chan struct{}
	started  bool
	stopped  bool
	startMu  sync.Mutex
}

// New creates a node on top of t. The node takes ownership of t and
// closes it on Stop. The node is not started until Start is called.
func New(t transport.Transport, cfg *Config) (*Node, error) {
	if t == nil {
		return nil, NewErrorWithCause(ErrCodeInvalidConfig, "invalid configuration", ErrMissingTransport)
	}
	if cfg == nil {
		cfg = NewConfig("")
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, NewErrorWithCause(ErrCodeInvalidConfig, "invalid configuration", err)
	}

	// Apply defaults
	cfg.applyDefaults()

	ctx, cancel := context.WithCancel(context.Background())

	n := &Node{
		config:      cfg,
		transport:   t,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		tracer:      cfg.Tracer,
		clock:       cfg.Clock,
		persistence: cfg.Persistence,
		router:      router.New(),
		stats:       newStatsTracker(),
		tasks:       newTaskQueue(),
		ctx:         ctx,
		cancel:      cancel,
	}

	n.events = eventdispatch.New(cfg.EventBufferSize, cfg.EventOverflow, func(ev Event) {
		n.metrics.EventDropped(ev.Kind.String())
		n.logger.Debug("event dropped", "kind", ev.Kind.String(), "policy", cfg.EventOverflow.String())
	})

	n.manager = connection.NewManager(t, connection.Config{
		LocalToken:        cfg.LocalToken,
		ReconnectDelay:    cfg.ReconnectDelay,
		HandshakeTimeout:  cfg.HandshakeTimeout,
		CooldownWindow:    cfg.CooldownWindow,
		InviteRate:        cfg.inviteLimit(),
		InviteBurst:       cfg.InviteBurst,
		MaxPendingPerPeer: cfg.MaxPendingPerPeer,
		Clock:             cfg.Clock,
		Logger:            cfg.Logger,
		Metrics:           cfg.Metrics,
		Post:              func(f func()) { n.post(f) },
	}, nodeListener{n})

	n.tracker = session.NewTracker(
		session.Thresholds{
			MinDuration: cfg.MinMeaningfulDuration,
			MinMessages: cfg.MinMeaningfulMessages,
		},
		n.meaningfulReached,
		session.WithClock(cfg.Clock),
		session.WithTickInterval(cfg.SessionTickInterval),
	)

	n.keepalive = session.NewKeepaliveMonitor(cfg.Clock, cfg.KeepaliveInterval, func(q session.Quality) {
		n.post(func() { n.onQualityChanged(q) })
	})

	return n, nil
}

// Start loads the blocklist and recent session ends from persistence and
// starts the event loop. ctx bounds only those startup calls; a
// persistence failure is logged and does not prevent starting.
func (n *Node) Start(ctx context.Context) error {
	n.startMu.Lock()
	defer n.startMu.Unlock()

	if n.stopped {
		return ErrNodeStopped
	}
	if n.started {
		return ErrNodeAlreadyStarted
	}

	if err := n.loadBlockList(ctx); err != nil {
		n.logger.Warn("failed to load blocklist", "error", err)
	}
	n.seedCooldowns(ctx)

	n.loopDone = make(chan struct{})
	go n.run()

	n.started = true
	n.logger.Info("node started", "peer", n.transport.LocalPeer())
	return nil
}

// Stop shuts down the node: the event loop exits, an active session is
// torn down as if the peer dropped, pending persistence calls complete,
// the event stream closes and the transport is closed.
func (n *Node) Stop() error {
	n.startMu.Lock()
	defer n.startMu.Unlock()

	if n.stopped {
		return ErrNodeStopped
	}
	if !n.started {
		return ErrNodeNotStarted
	}
	n.stopped = true

	n.tasks.close()
	n.cancel()
	<-n.loopDone

	// The loop has exited, so the components are ours from here on.
	n.keepalive.Stop()
	if pc := n.manager.Active(); pc != nil {
		established := pc.State() == connection.StateEstablished
		n.manager.Shutdown()

		ev := Event{
			Kind:  EventConnectionStateChanged,
			Peer:  string(pc.Peer),
			State: StateDisconnected,
			Role:  pc.Role.String(),
		}
		if !established {
			ev.Error = connection.ErrHandshakeAbandoned
			n.stats.recordConnection(false)
		}
		n.endHandshakeSpan(!established, ev.Error)
		n.emit(ev)
		n.connectionLost(pc.Peer)
	} else {
		n.manager.Shutdown()
	}

	n.persistWG.Wait()
	n.events.Close()

	if err := n.transport.Close(); err != nil {
		return fmt.Errorf("failed to close transport: %w", err)
	}
	n.logger.Info("node stopped")
	return nil
}

// LocalPeer returns the transport identity of this node.
func (n *Node) LocalPeer() string {
	return string(n.transport.LocalPeer())
}

// Events returns the UI event stream. The channel is bounded by
// EventBufferSize and follows EventOverflow when the consumer falls
// behind. It is closed by Stop.
func (n *Node) Events() <-chan Event {
	return n.events.Events()
}

// StartDiscovery begins looking for nearby peers. Calling it while already
// discovering is a no-op.
func (n *Node) StartDiscovery() error {
	var err error
	if serr := n.submit(func() { err = n.manager.StartDiscovery() }); serr != nil {
		return serr
	}
	if err != nil {
		return NewErrorWithCause(ErrCodeConnection, "start discovery", err)
	}
	return nil
}

// StopDiscovery stops looking for peers and cancels a pending reconnect.
// Calling it while not discovering is a no-op.
func (n *Node) StopDiscovery() error {
	var err error
	if serr := n.submit(func() { err = n.manager.StopDiscovery() }); serr != nil {
		return serr
	}
	if err != nil {
		return NewErrorWithCause(ErrCodeConnection, "stop discovery", err)
	}
	return nil
}

// SendMessage seals and sends a user chat message. It counts toward the
// session's sent messages.
func (n *Node) SendMessage(text string) error {
	if err := ValidateUserMessage(text, n.config.MaxMessageSize); err != nil {
		return messageError(err)
	}
	return n.send(text, "user", true)
}

// SendSystem seals and sends a control message built with the router
// formatters. It is not counted as a user message.
func (n *Node) SendSystem(wire string) error {
	if err := ValidateSystemMessage(wire, n.config.MaxMessageSize); err != nil {
		return messageError(err)
	}
	return n.send(wire, "system", false)
}

func (n *Node) send(plaintext, kind string, count bool) error {
	var (
		peer    string
		sendErr error
	)
	err := n.submit(func() {
		if p, ok := n.manager.ActivePeer(); ok {
			peer = string(p)
		}
		sendErr = n.manager.Send(plaintext)
		if sendErr != nil {
			return
		}
		if count {
			n.tracker.RecordSent()
		}
		n.metrics.MessageSent(kind, len(plaintext))
		n.stats.recordSent(kind, len(plaintext), n.clock.Now())
	})
	if err != nil {
		return err
	}

	switch {
	case sendErr == nil:
		return nil
	case errors.Is(sendErr, connection.ErrNoActiveSession):
		return &Error{Code: ErrCodeNoSession, Message: "send " + kind + " message", Cause: ErrNoSession, Retriable: true}
	case errors.Is(sendErr, crypto.ErrNoKey), errors.Is(sendErr, crypto.ErrCipherClosed):
		return NewPeerError(ErrCodeCrypto, "seal "+kind+" message", peer, sendErr)
	default:
		return &Error{Code: ErrCodeConnection, Message: "send " + kind + " message", Peer: peer, Cause: sendErr, Retriable: true}
	}
}

func messageError(err error) error {
	if errors.Is(err, ErrMessageTooLarge) {
		return NewErrorWithCause(ErrCodeMessageTooLarge, "invalid message", err)
	}
	return NewErrorWithCause(ErrCodeInvalidMessage, "invalid message", err)
}

// BeginSession starts counting the established session toward a
// meaningful interaction. Call it once the application has confirmed both
// peers are ready, not merely when the handshake completes.
func (n *Node) BeginSession() (SessionMetrics, error) {
	var (
		m   SessionMetrics
		err error
	)
	if serr := n.submit(func() { m, err = n.beginSession() }); serr != nil {
		return SessionMetrics{}, serr
	}
	return m, err
}

func (n *Node) beginSession() (SessionMetrics, error) {
	pc := n.manager.Active()
	if pc == nil || pc.State() != connection.StateEstablished {
		return SessionMetrics{}, &Error{Code: ErrCodeNoSession, Message: "begin session", Cause: ErrNoSession, Retriable: true}
	}
	peer := string(pc.Peer)

	n.sessionMu.Lock()
	n.sessionPeer = peer
	n.sessionMu.Unlock()

	m, err := n.tracker.Begin()
	if err != nil {
		return SessionMetrics{}, err
	}

	_, n.sessionSpan = n.tracer.StartSession(n.ctx, peer, m.SessionID)
	n.sessionSpanID = m.SessionID
	n.metrics.SessionStarted()
	n.stats.recordSessionStart()
	n.logger.Info("session started", "peer", peer, "session", m.SessionID)
	n.emit(Event{Kind: EventSessionStarted, Peer: peer, Session: m})
	return m, nil
}

// Disconnect drops the active connection. Teardown happens when the
// transport confirms the drop.
func (n *Node) Disconnect() error {
	var err error
	if serr := n.submit(func() { err = n.manager.Disconnect() }); serr != nil {
		return serr
	}
	switch {
	case err == nil:
		return nil
	case errors.Is(err, connection.ErrNoActiveSession):
		return &Error{Code: ErrCodeNoSession, Message: "disconnect", Cause: ErrNoSession}
	default:
		return NewErrorWithCause(ErrCodeConnection, "disconnect", err)
	}
}

// RefreshBlockList reloads the blocklist from persistence. Policy
// decisions already in progress may use the previous snapshot.
func (n *Node) RefreshBlockList(ctx context.Context) error {
	n.startMu.Lock()
	stopped := n.stopped
	n.startMu.Unlock()
	if stopped {
		return ErrNodeStopped
	}

	if err := n.loadBlockList(ctx); err != nil {
		return &Error{Code: ErrCodePersistence, Message: "refresh blocklist", Cause: err, Retriable: true}
	}
	return nil
}

// ClearCooldowns forgets every recorded session end, making all peers
// eligible again.
func (n *Node) ClearCooldowns() {
	n.manager.Cooldowns().Clear()
}

// HandleSystem registers fn for one system message kind. Unknown kinds are
// never dispatched.
func (n *Node) HandleSystem(kind router.Kind, fn func(router.SystemMessage)) {
	n.router.OnSystem(kind, fn)
}

// Session returns the current session metrics.
func (n *Node) Session() SessionMetrics {
	return n.tracker.Snapshot()
}

// Quality returns the current keepalive-derived link quality.
func (n *Node) Quality() Quality {
	return n.keepalive.Quality()
}

// ActivePeer returns the peer of the current connection, if any.
func (n *Node) ActivePeer() (string, bool) {
	var (
		peer transport.PeerID
		ok   bool
	)
	n.inspect(func() { peer, ok = n.manager.ActivePeer() })
	return string(peer), ok
}

// ConnectionState returns the state of the current connection.
func (n *Node) ConnectionState() ConnectionState {
	state := StateDisconnected
	n.inspect(func() {
		if pc := n.manager.Active(); pc != nil {
			state = pc.State()
		}
	})
	return state
}

// Stats returns cumulative statistics.
func (n *Node) Stats() NodeStats {
	stats := n.stats.snapshot(n.tracker.Snapshot())
	stats.Quality = n.keepalive.Quality()
	stats.EventsDropped = n.events.Dropped()
	return stats
}

// run is the event loop. Every manager call happens here.
func (n *Node) run() {
	defer close(n.loopDone)

	events := n.transport.Events()
	for {
		select {
		case <-n.ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				n.logger.Warn("transport event stream closed")
				events = nil
				continue
			}
			n.manager.HandleEvent(ev)

		case <-n.tasks.signal:
			for _, fn := range n.tasks.take() {
				fn()
			}
		}
	}
}

// post queues fn for the event loop without blocking. It reports false
// once the node is stopping.
func (n *Node) post(fn func()) bool {
	return n.tasks.push(fn)
}

// submit runs fn on the event loop and waits for it.
func (n *Node) submit(fn func()) error {
	n.startMu.Lock()
	started, stopped := n.started, n.stopped
	n.startMu.Unlock()

	if stopped {
		return ErrNodeStopped
	}
	if !started {
		return ErrNodeNotStarted
	}

	done := make(chan struct{})
	if !n.post(func() {
		defer close(done)
		fn()
	}) {
		return ErrNodeStopped
	}

	select {
	case <-done:
		return nil
	case <-n.loopDone:
		select {
		case <-done:
			return nil
		default:
			return ErrNodeStopped
		}
	}
}

// inspect runs a read-only fn on the loop, or directly when no loop is
// running.
func (n *Node) inspect(fn func()) {
	if err := n.submit(fn); err == nil {
		return
	}

	n.startMu.Lock()
	defer n.startMu.Unlock()
	if !n.started || n.stopped {
		fn()
	}
}

// emit delivers ev to the UI stream under the configured overflow policy.
func (n *Node) emit(ev Event) {
	ev.Timestamp = n.clock.Now()

	ctx := n.ctx
	if n.config.EventOverflow == OverflowBlock {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.config.EventBlockTimeout)
		defer cancel()
	}
	if n.events.Emit(ctx, ev) {
		n.metrics.EventEmitted(ev.Kind.String())
	}
}

// nodeListener receives connection manager callbacks on the event loop.
type nodeListener struct {
	n *Node
}

func (l nodeListener) ConnectionStateChanged(ev connection.Event) {
	n := l.n
	peer := string(ev.Peer)

	switch ev.State {
	case connection.StateHandshaking:
		_, n.handshakeSpan = n.tracer.StartHandshake(n.ctx, peer, ev.Role.String())
	case connection.StateEstablished:
		n.endHandshakeSpan(false, nil)
		n.stats.recordConnection(true)
	case connection.StateDisconnected:
		abandoned := errors.Is(ev.Error, connection.ErrHandshakeAbandoned)
		if abandoned {
			n.stats.recordConnection(false)
		}
		n.endHandshakeSpan(abandoned, ev.Error)
	}

	n.emit(Event{
		Kind:  EventConnectionStateChanged,
		Peer:  peer,
		State: ev.State,
		Role:  ev.Role.String(),
		Error: ev.Error,
	})

	switch ev.State {
	case connection.StateEstablished:
		n.logger.Info("secure session established", "peer", peer, "role", ev.Role.String())
		n.emit(Event{Kind: EventHandshakeComplete, Peer: peer, Role: ev.Role.String()})
		n.keepalive.Start(n.sendKeepalive)
	case connection.StateDisconnected:
		n.logger.Info("connection lost", "peer", peer)
		n.connectionLost(ev.Peer)
	}
}

func (l nodeListener) PayloadReceived(peer transport.PeerID, plaintext string) {
	n := l.n
	if session.IsSentinel(plaintext) {
		return
	}

	msg := router.Parse(plaintext)
	switch msg.Kind {
	case router.KindUser:
		n.tracker.RecordReceived()
		n.metrics.MessageReceived("user", len(plaintext))
		n.stats.recordReceived("user", len(plaintext), n.clock.Now())
		n.emit(Event{Kind: EventUserMessage, Peer: string(peer), Text: msg.Text})
	case router.KindUnknown:
		n.metrics.MessageReceived("unknown", len(plaintext))
		n.logger.Debug("ignoring unknown system message", "peer", peer, "name", msg.System.Name)
		return
	default:
		n.metrics.MessageReceived("system", len(plaintext))
		n.stats.recordReceived("system", len(plaintext), n.clock.Now())
		n.emit(Event{Kind: EventSystemMessage, Peer: string(peer), System: msg.System})
	}
	n.router.Dispatch(msg)
}

// connectionLost resets every per-session component after a drop.
func (n *Node) connectionLost(peer transport.PeerID) {
	n.keepalive.Reset()

	m := n.tracker.Snapshot()
	n.tracker.Reset()
	if m.Active {
		n.metrics.SessionEnded(m.Duration.Seconds(), m.IsMeaningful)
		n.stats.recordSessionEnd(m.Duration, m.IsMeaningful)
		n.logger.Info("session ended", "peer", peer, "session", m.SessionID,
			"duration", m.Duration, "meaningful", m.IsMeaningful)
	}
	if n.sessionSpan != nil {
		n.sessionSpan.SetAttribute(AttrMeaningful, strconv.FormatBool(m.IsMeaningful))
		n.sessionSpan.End()
		n.sessionSpan = nil
		n.sessionSpanID = ""
	}

	n.persist(opRecordSessionEnd, func(ctx context.Context) error {
		return n.persistence.RecordSessionEnd(ctx, string(peer))
	})
}

// meaningfulReached is the tracker callback. It may run on a timer
// goroutine or inside a loop task.
func (n *Node) meaningfulReached(m SessionMetrics) {
	n.sessionMu.Lock()
	peer := n.sessionPeer
	n.sessionMu.Unlock()

	n.post(func() { n.onMeaningful(peer, m) })
}

func (n *Node) onMeaningful(peer string, m SessionMetrics) {
	// The session may have ended between the tracker callback and this task.
	if cur := n.tracker.Snapshot(); !cur.Active || cur.SessionID != m.SessionID {
		n.logger.Debug("dropping stale meaningful interaction", "session", m.SessionID)
		return
	}
	n.metrics.MeaningfulInteraction()
	if n.sessionSpan != nil && n.sessionSpanID == m.SessionID {
		n.sessionSpan.AddEvent(SpanEventMeaningful)
	}
	n.logger.Info("meaningful interaction", "peer", peer, "session", m.SessionID)
	n.emit(Event{Kind: EventMeaningfulInteraction, Peer: peer, Session: m})

	n.persist(opAwardMeaningfulInteraction, func(ctx context.Context) error {
		return n.persistence.AwardMeaningfulInteraction(ctx, peer, m.SessionID)
	})
}

func (n *Node) onQualityChanged(q Quality) {
	n.metrics.ConnectionQuality(q.String())
	peer, _ := n.manager.ActivePeer()
	n.emit(Event{Kind: EventConnectionQualityChanged, Peer: string(peer), Quality: q})
}

// sendKeepalive runs on the keepalive timer goroutine and hands the send
// to the loop.
func (n *Node) sendKeepalive() error {
	result := make(chan error, 1)
	if !n.post(func() { result <- n.manager.Send(session.Sentinel) }) {
		return ErrNodeStopped
	}

	var err error
	select {
	case err = <-result:
	case <-n.ctx.Done():
		return ErrNodeStopped
	}

	n.metrics.KeepaliveSent(err == nil)
	n.stats.recordKeepalive(err == nil)
	if err != nil {
		n.logger.Debug("keepalive send failed", "error", err)
	}
	return err
}

func (n *Node) endHandshakeSpan(abandoned bool, cause error) {
	if n.handshakeSpan == nil {
		return
	}
	if abandoned {
		n.handshakeSpan.SetAttribute(AttrResult, "abandoned")
		if cause != nil {
			n.handshakeSpan.SetError(cause)
		}
	} else {
		n.handshakeSpan.SetAttribute(AttrResult, "success")
	}
	n.handshakeSpan.End()
	n.handshakeSpan = nil
}

// persist runs op off the loop, bounded by PersistenceTimeout. Failures
// are logged and counted; they never affect the session.
func (n *Node) persist(op string, call func(ctx context.Context) error) {
	n.persistWG.Add(1)
	go func() {
		defer n.persistWG.Done()

		ctx, cancel := context.WithTimeout(context.Background(), n.config.PersistenceTimeout)
		defer cancel()

		if err := call(ctx); err != nil {
			n.metrics.PersistenceError(op)
			n.logger.Warn("persistence call failed", "op", op, "error", err)
		}
	}()
}

func (n *Node) loadBlockList(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, n.config.PersistenceTimeout)
	defer cancel()

	tokens, err := n.persistence.BlockedIdentities(ctx)
	if err != nil {
		n.metrics.PersistenceError(opBlockedIdentities)
		return err
	}
	n.manager.BlockList().Replace(tokens)
	n.logger.Debug("blocklist loaded", "entries", len(tokens))
	return nil
}

func (n *Node) seedCooldowns(ctx context.Context) {
	lister, ok := n.persistence.(SessionEndLister)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, n.config.PersistenceTimeout)
	defer cancel()

	since := n.clock.Now().Add(-n.config.CooldownWindow)
	ended, err := lister.RecentSessionEnds(ctx, since)
	if err != nil {
		n.logger.Warn("failed to load recent sessions", "error", err)
		return
	}

	seed := make(map[transport.PeerID]time.Time, len(ended))
	for peer, at := range ended {
		seed[transport.PeerID(peer)] = at
	}
	n.manager.Cooldowns().Seed(seed)
}

// taskQueue is the loop's unbounded inbox. Push never blocks, so timer
// goroutines and loop tasks can both post.
type taskQueue struct {
	mu      sync.Mutex
	pending []func()
	closed  bool
	signal  chan struct{}
}

func newTaskQueue() *taskQueue {
	return &taskQueue{signal: make(chan struct{}, 1)}
}

func (q *taskQueue) push(fn func()) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.pending = append(q.pending, fn)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

func (q *taskQueue) take() []func() {
	q.mu.Lock()
	defer q.mu.Unlock()
	tasks := q.pending
	q.pending = nil
	return tasks
}

func (q *taskQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.pending = nil
}
