package connection

import (
	"errors"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/blockberries/encounter/internal/handshake"
	"github.com/blockberries/encounter/pkg/clock"
	"github.com/blockberries/encounter/pkg/crypto"
	"github.com/blockberries/encounter/pkg/transport"
)

// ErrNoActiveSession is returned by Send and Disconnect when no handshaked
// session exists.
var ErrNoActiveSession = errors.New("no active session")

// ErrHandshakeAbandoned is attached to a Disconnected event when the peer
// dropped before the handshake completed.
var ErrHandshakeAbandoned = errors.New("handshake abandoned")

// Rejection reasons reported to metrics. They are never sent to the peer.
const (
	ReasonBlocked  = "blocked"
	ReasonCooldown = "cooldown"
	ReasonBusy     = "busy"
	ReasonInFlight = "in_flight"
)

// Transport is the subset of transport.Transport the manager drives.
type Transport interface {
	LocalPeer() transport.PeerID
	StartDiscovery() error
	StopDiscovery() error
	Invite(peer transport.PeerID, info transport.DiscoveryInfo) error
	Send(peer transport.PeerID, data []byte) error
	Disconnect(peer transport.PeerID) error
}

// Event represents a connection state change.
type Event struct {
	Peer      transport.PeerID
	State     ConnectionState
	Role      handshake.Role
	Error     error
	Timestamp time.Time
}

// Listener observes the manager. Callbacks run on the manager's caller and
// must not call back into the manager synchronously.
type Listener interface {
	ConnectionStateChanged(ev Event)
	PayloadReceived(peer transport.PeerID, plaintext string)
}

// Config contains configuration for the Manager.
type Config struct {
	// LocalToken is the identity token attached to outbound invitations.
	LocalToken string

	ReconnectDelay time.Duration

	// HandshakeTimeout drops a connection whose key exchange has not
	// completed in time. Zero disables the timeout.
	HandshakeTimeout time.Duration

	CooldownWindow    time.Duration
	InviteRate        rate.Limit
	InviteBurst       int
	MaxPendingPerPeer int

	Clock   clock.Clock
	Logger  Logger
	Metrics Metrics

	// Post runs timer callbacks on the owner's serialized context.
	Post func(func())
}

// Manager owns the single active session. It is not safe for concurrent
// use: every method, including the Post-ed timer callbacks, must run on
// one serialized context.
type Manager struct {
	transport Transport
	local     transport.PeerID
	config    Config
	listener  Listener
	clock     clock.Clock
	logger    Logger
	metrics   Metrics

	blocklist *BlockList
	cooldowns *CooldownRegistry
	limiter   *rate.Limiter
	reconnect *ReconnectScheduler

	discovering     bool
	discoveryWanted bool

	active   transport.PeerID
	peers    map[transport.PeerID]*PeerConnection
	pending  map[transport.PeerID]*PendingBuffer
	inFlight map[transport.PeerID]time.Time
}

// NewManager creates a connection manager.
func NewManager(t Transport, config Config, listener Listener) *Manager {
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	if config.Logger == nil {
		config.Logger = nopLogger{}
	}
	if config.Metrics == nil {
		config.Metrics = nopMetrics{}
	}
	if config.InviteRate == 0 {
		config.InviteRate = rate.Inf
	}
	if config.InviteBurst <= 0 {
		config.InviteBurst = 1
	}
	if listener == nil {
		listener = nopListener{}
	}
	if config.Post == nil {
		config.Post = func(f func()) { f() }
	}

	return &Manager{
		transport: t,
		local:     t.LocalPeer(),
		config:    config,
		listener:  listener,
		clock:     config.Clock,
		logger:    config.Logger,
		metrics:   config.Metrics,
		blocklist: NewBlockList(),
		cooldowns: NewCooldownRegistry(config.CooldownWindow),
		limiter:   rate.NewLimiter(config.InviteRate, config.InviteBurst),
		reconnect: NewReconnectScheduler(config.Clock, config.ReconnectDelay, config.Post),
		peers:     make(map[transport.PeerID]*PeerConnection),
		pending:   make(map[transport.PeerID]*PendingBuffer),
		inFlight:  make(map[transport.PeerID]time.Time),
	}
}

// BlockList returns the blocklist snapshot consulted by policy.
func (m *Manager) BlockList() *BlockList {
	return m.blocklist
}

// Cooldowns returns the cooldown registry consulted by policy.
func (m *Manager) Cooldowns() *CooldownRegistry {
	return m.cooldowns
}

// StartDiscovery starts discovery. Calling it while already discovering is
// a no-op.
func (m *Manager) StartDiscovery() error {
	m.discoveryWanted = true
	return m.startDiscovery()
}

// StopDiscovery stops discovery and cancels any pending reconnection.
// Calling it while not discovering is a no-op.
func (m *Manager) StopDiscovery() error {
	m.discoveryWanted = false
	m.reconnect.Cancel()
	return m.stopDiscovery()
}

// IsDiscovering reports whether the transport is currently discovering.
func (m *Manager) IsDiscovering() bool {
	return m.discovering
}

func (m *Manager) startDiscovery() error {
	if m.discovering {
		m.logger.Debug("discovery already running")
		return nil
	}
	if err := m.transport.StartDiscovery(); err != nil {
		return err
	}
	m.discovering = true
	m.logger.Info("discovery started")
	return nil
}

func (m *Manager) stopDiscovery() error {
	if !m.discovering {
		m.logger.Debug("discovery already stopped")
		return nil
	}
	if err := m.transport.StopDiscovery(); err != nil {
		return err
	}
	m.discovering = false
	m.logger.Info("discovery stopped")
	return nil
}

// HandleEvent dispatches a transport event.
func (m *Manager) HandleEvent(ev transport.Event) {
	switch ev.Kind {
	case transport.EventPeerFound:
		m.HandlePeerFound(ev.Peer, ev.Info)
	case transport.EventPeerLost:
		m.HandlePeerLost(ev.Peer)
	case transport.EventInvitationReceived:
		m.HandleInvitation(ev.Peer, ev.Info, ev.Respond)
	case transport.EventInviteResult:
		m.HandleInviteResult(ev.Peer, ev.Result)
	case transport.EventConnectionState:
		m.HandleConnectionState(ev.Peer, ev.State)
	case transport.EventDataReceived:
		m.HandleData(ev.Peer, ev.Data)
	}
}

// HandlePeerFound applies the outbound policy to a discovered peer and, if
// it passes and the local side is the lower identity, invites it.
func (m *Manager) HandlePeerFound(peer transport.PeerID, info transport.DiscoveryInfo) {
	if peer == m.local {
		return
	}
	if reason := m.policyCheck(peer, info.Token); reason != "" {
		m.metrics.PolicyRejection("outbound", reason)
		m.logger.Debug("not inviting peer", "peer", peer, "reason", reason)
		return
	}
	if !ShouldInitiate(m.local, peer) {
		m.logger.Debug("awaiting invitation from peer", "peer", peer)
		return
	}
	if !m.limiter.AllowN(m.clock.Now(), 1) {
		m.logger.Debug("invite rate limited", "peer", peer)
		return
	}

	m.inFlight[peer] = m.clock.Now()
	if err := m.transport.Invite(peer, transport.DiscoveryInfo{Token: m.config.LocalToken}); err != nil {
		delete(m.inFlight, peer)
		m.logger.Warn("invite failed", "peer", peer, "error", err)
		return
	}
	m.metrics.InvitationSent()
	m.logger.Debug("invited peer", "peer", peer)
}

// HandlePeerLost forgets an in-flight attempt to a peer that went away.
func (m *Manager) HandlePeerLost(peer transport.PeerID) {
	if _, ok := m.inFlight[peer]; ok && m.peers[peer] == nil {
		delete(m.inFlight, peer)
		m.logger.Debug("peer lost during invitation", "peer", peer)
	}
}

// HandleInvitation answers an inbound invitation. Rejections are silent so
// the inviter cannot learn whether it is blocked.
func (m *Manager) HandleInvitation(peer transport.PeerID, info transport.DiscoveryInfo, respond func(bool)) {
	if respond == nil {
		return
	}
	if reason := m.policyCheck(peer, info.Token); reason != "" {
		m.metrics.PolicyRejection("inbound", reason)
		m.logger.Debug("declining invitation", "peer", peer, "reason", reason)
		respond(false)
		return
	}

	m.inFlight[peer] = m.clock.Now()
	respond(true)
	m.logger.Debug("accepted invitation", "peer", peer)
}

// HandleInviteResult clears the in-flight entry for invitations that did
// not succeed; the peer stays eligible for later discovery.
func (m *Manager) HandleInviteResult(peer transport.PeerID, result transport.InviteResult) {
	m.metrics.InvitationResult(result.String())
	if result == transport.InviteAccepted {
		return
	}
	delete(m.inFlight, peer)
	m.logger.Debug("invitation not accepted", "peer", peer, "result", result)
}

// HandleConnectionState reacts to transport connection state changes.
func (m *Manager) HandleConnectionState(peer transport.PeerID, state transport.ConnState) {
	switch state {
	case transport.StateConnecting:
		if m.active == "" {
			m.emit(Event{Peer: peer, State: StateConnecting, Role: AssignRole(m.local, peer)})
		}
	case transport.StateConnected:
		m.onConnected(peer)
	case transport.StateNotConnected:
		m.onDisconnected(peer)
	}
}

// HandleData routes inbound bytes to the peer's handshake or secure
// channel, buffering them if the peer's record does not exist yet.
func (m *Manager) HandleData(peer transport.PeerID, data []byte) {
	pc := m.peers[peer]
	if pc == nil {
		buf := m.pending[peer]
		if buf == nil {
			buf = NewPendingBuffer(m.config.MaxPendingPerPeer)
			m.pending[peer] = buf
		}
		if !buf.Push(data) {
			m.metrics.PendingFrameDropped()
			m.logger.Debug("pending buffer full, dropping payload", "peer", peer)
		}
		return
	}
	m.route(pc, data)
}

// Send seals text on the active session's channel and hands it to the
// transport.
func (m *Manager) Send(text string) error {
	pc := m.peers[m.active]
	if pc == nil || pc.State() != StateEstablished {
		return ErrNoActiveSession
	}
	blob, err := pc.Channel.Seal(text)
	if err != nil {
		return err
	}
	return m.transport.Send(pc.Peer, blob)
}

// Disconnect asks the transport to drop the active session. Teardown
// happens when the NotConnected event arrives.
func (m *Manager) Disconnect() error {
	if m.active == "" {
		return ErrNoActiveSession
	}
	return m.transport.Disconnect(m.active)
}

// ActivePeer returns the peer of the current session, if any.
func (m *Manager) ActivePeer() (transport.PeerID, bool) {
	return m.active, m.active != ""
}

// Active returns the current session's record, or nil.
func (m *Manager) Active() *PeerConnection {
	return m.peers[m.active]
}

// Shutdown cancels timers and zeroizes every per-peer record.
func (m *Manager) Shutdown() {
	m.reconnect.Cancel()
	for peer, pc := range m.peers {
		pc.Close()
		delete(m.peers, peer)
	}
	m.pending = make(map[transport.PeerID]*PendingBuffer)
	m.inFlight = make(map[transport.PeerID]time.Time)
	m.active = ""
	if err := m.stopDiscovery(); err != nil {
		m.logger.Debug("stop discovery during shutdown failed", "error", err)
	}
}

// Snapshot is a point-in-time view of the manager for diagnostics.
type Snapshot struct {
	Discovering      bool
	DiscoveryWanted  bool
	ActivePeer       transport.PeerID
	ActiveState      ConnectionState
	Role             string
	InFlight         []transport.PeerID
	PendingPeers     int
	Cooldowns        int
	Blocked          int
	ReconnectPending bool
}

// Snapshot returns the manager's current state.
func (m *Manager) Snapshot() Snapshot {
	s := Snapshot{
		Discovering:      m.discovering,
		DiscoveryWanted:  m.discoveryWanted,
		ActivePeer:       m.active,
		PendingPeers:     len(m.pending),
		Cooldowns:        m.cooldowns.Len(),
		Blocked:          m.blocklist.Len(),
		ReconnectPending: m.reconnect.Pending(),
	}
	if pc := m.peers[m.active]; pc != nil {
		s.ActiveState = pc.State()
		s.Role = pc.Role.String()
	}
	for peer := range m.inFlight {
		s.InFlight = append(s.InFlight, peer)
	}
	sort.Slice(s.InFlight, func(i, j int) bool { return s.InFlight[i] < s.InFlight[j] })
	return s
}

// policyCheck returns the reason a peer may not be matched, or "".
func (m *Manager) policyCheck(peer transport.PeerID, token string) string {
	switch {
	case m.blocklist.Contains(token), m.blocklist.Contains(string(peer)):
		return ReasonBlocked
	case m.cooldowns.InCooldown(peer, m.clock.Now()):
		return ReasonCooldown
	case m.active != "", m.peers[peer] != nil:
		return ReasonBusy
	}
	if _, ok := m.inFlight[peer]; ok {
		return ReasonInFlight
	}
	return ""
}

func (m *Manager) onConnected(peer transport.PeerID) {
	delete(m.inFlight, peer)

	if m.active != "" && m.active != peer {
		m.logger.Info("rejecting second connection", "peer", peer, "active", m.active)
		delete(m.pending, peer)
		if err := m.transport.Disconnect(peer); err != nil {
			m.logger.Debug("disconnect of extra peer failed", "peer", peer, "error", err)
		}
		return
	}
	if m.peers[peer] != nil {
		return
	}

	role := AssignRole(m.local, peer)
	hs, err := handshake.New(role)
	if err != nil {
		m.logger.Error("failed to create handshake", "peer", peer, "error", err)
		if derr := m.transport.Disconnect(peer); derr != nil {
			m.logger.Debug("disconnect failed", "peer", peer, "error", derr)
		}
		return
	}

	pc := newPeerConnection(peer, role, hs, m.clock.Now())
	m.peers[peer] = pc
	m.active = peer

	m.reconnect.Cancel()
	if err := m.stopDiscovery(); err != nil {
		m.logger.Warn("failed to stop discovery", "error", err)
	}

	m.emit(Event{Peer: peer, State: StateHandshaking, Role: role})

	if d := m.config.HandshakeTimeout; d > 0 {
		pc.handshakeTimer = m.clock.AfterFunc(d, func() {
			m.config.Post(func() { m.handshakeExpired(pc) })
		})
	}

	if role == handshake.RoleInitiator {
		msg, err := hs.CreateInitialMessage()
		if err != nil {
			m.logger.Error("failed to create handshake message", "peer", peer, "error", err)
		} else if err := m.transport.Send(peer, msg); err != nil {
			m.logger.Warn("failed to send handshake message", "peer", peer, "error", err)
		}
	}

	if buf := m.pending[peer]; buf != nil {
		delete(m.pending, peer)
		for _, data := range buf.Drain() {
			if m.peers[peer] != pc {
				break
			}
			m.route(pc, data)
		}
	}
}

func (m *Manager) onDisconnected(peer transport.PeerID) {
	delete(m.inFlight, peer)
	delete(m.pending, peer)

	pc := m.peers[peer]
	if pc != nil {
		delete(m.peers, peer)
		established := pc.State() == StateEstablished
		pc.Close()
		m.cooldowns.Record(peer, m.clock.Now())
		if m.active == peer {
			m.active = ""
		}

		ev := Event{Peer: peer, State: StateDisconnected, Role: pc.Role}
		if !established {
			ev.Error = ErrHandshakeAbandoned
		}
		m.emit(ev)
	}

	if m.active == "" && m.discoveryWanted && (pc != nil || !m.discovering) {
		m.reconnect.Schedule(m.reconnectFired)
		m.logger.Debug("reconnection scheduled", "delay", m.reconnect.Delay())
	}
}

// handshakeExpired drops pc if its key exchange is still pending. The
// transport's NotConnected then runs the usual drop path.
func (m *Manager) handshakeExpired(pc *PeerConnection) {
	if m.peers[pc.Peer] != pc || pc.State() != StateHandshaking {
		return
	}
	m.logger.Warn("handshake timed out", "peer", pc.Peer, "role", pc.Role, "timeout", m.config.HandshakeTimeout)
	if err := m.transport.Disconnect(pc.Peer); err != nil {
		m.logger.Debug("disconnect after handshake timeout failed", "peer", pc.Peer, "error", err)
		m.onDisconnected(pc.Peer)
	}
}

func (m *Manager) reconnectFired() {
	if !m.discoveryWanted || m.active != "" {
		return
	}
	if err := m.startDiscovery(); err != nil {
		m.logger.Warn("failed to restart discovery", "error", err)
	}
}

func (m *Manager) route(pc *PeerConnection, data []byte) {
	if pc.State() == StateHandshaking {
		reply, err := pc.Handshake.HandleMessage(data)
		if err != nil {
			m.metrics.HandshakeMessageDropped()
			m.logger.Debug("dropping handshake message", "peer", pc.Peer, "error", err)
			return
		}
		if reply != nil {
			if err := m.transport.Send(pc.Peer, reply); err != nil {
				m.logger.Warn("failed to send handshake reply", "peer", pc.Peer, "error", err)
			}
		}
		select {
		case <-pc.Handshake.Done():
			m.establish(pc)
		default:
		}
		return
	}

	plaintext, err := pc.Channel.Open(data)
	if err != nil {
		m.metrics.DecryptionError()
		m.logger.Debug("dropping undecryptable payload", "peer", pc.Peer, "error", err)
		return
	}
	m.listener.PayloadReceived(pc.Peer, plaintext)
}

func (m *Manager) establish(pc *PeerConnection) {
	keys, ok := pc.Handshake.Keys()
	if !ok {
		m.logger.Error("handshake complete without keys", "peer", pc.Peer)
		return
	}
	defer crypto.SecureZeroMultiple(keys.Sending, keys.Receiving)

	if err := pc.Channel.Establish(keys.Sending, keys.Receiving); err != nil {
		m.logger.Error("failed to establish secure channel", "peer", pc.Peer, "error", err)
		return
	}
	pc.Handshake.Zero()
	pc.stopHandshakeTimer()

	now := m.clock.Now()
	if err := pc.TransitionTo(StateEstablished, now); err != nil {
		m.logger.Error("state transition failed", "error", err)
		return
	}
	m.metrics.HandshakeCompleted(pc.Role.String(), now.Sub(pc.ConnectedAt()).Seconds())
	m.emit(Event{Peer: pc.Peer, State: StateEstablished, Role: pc.Role})
}

func (m *Manager) emit(ev Event) {
	ev.Timestamp = m.clock.Now()
	m.listener.ConnectionStateChanged(ev)
}

type nopListener struct{}

func (nopListener) ConnectionStateChanged(Event) {}
func (nopListener) PayloadReceived(transport.PeerID, string) {}
