// Package lan is a transport.Transport for devices on the same local
// network. Peers find each other with libp2p mDNS and talk over one
// session stream per peer; invitations, their answers and application
// data travel on that stream as delimited cramberry frames.
//
// Only the peer with the lower ID dials, so each pair shares exactly one
// stream. A link is "connected" once an invitation on it is accepted and
// stays connected until either side sends a bye or the stream breaks.
package lan

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/multiformats/go-multiaddr"

	"github.com/blockberries/encounter/pkg/transport"
)

const (
	// DefaultInviteTimeout is how long an outbound invitation waits for an
	// answer.
	DefaultInviteTimeout = 30 * time.Second

	// DefaultDialTimeout bounds connecting to a discovered peer.
	DefaultDialTimeout = 10 * time.Second

	// DefaultMaxFrameData caps the payload of a single data frame.
	DefaultMaxFrameData = 1 << 20
)

// ErrInvitePending is returned by Invite when an invitation to the same
// peer is still unanswered.
var ErrInvitePending = errors.New("invitation already pending")

// Logger is the logging subset the transport uses.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}

// Config configures a LAN transport.
type Config struct {
	// PrivateKey is the ed25519 identity key. A random identity is used
	// when empty.
	PrivateKey ed25519.PrivateKey

	// ListenAddrs defaults to DefaultListenAddr.
	ListenAddrs []multiaddr.Multiaddr

	// Token is the identity token sent in hello frames.
	Token string

	// ServiceTag is the mDNS service name. Defaults to DefaultServiceTag.
	ServiceTag string

	// Blocker, when set, makes the connection gater refuse blocked peers.
	Blocker Blocker

	InviteTimeout time.Duration
	DialTimeout   time.Duration
	MaxFrameData  int

	// ConnMgrLowWater and ConnMgrHighWater bound libp2p connections.
	ConnMgrLowWater  int
	ConnMgrHighWater int

	Logger Logger
}

func (c *Config) applyDefaults() {
	if c.ServiceTag == "" {
		c.ServiceTag = DefaultServiceTag
	}
	if c.InviteTimeout <= 0 {
		c.InviteTimeout = DefaultInviteTimeout
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = DefaultDialTimeout
	}
	if c.MaxFrameData <= 0 {
		c.MaxFrameData = DefaultMaxFrameData
	}
	if c.ConnMgrLowWater <= 0 {
		c.ConnMgrLowWater = 16
	}
	if c.ConnMgrHighWater <= c.ConnMgrLowWater {
		c.ConnMgrHighWater = c.ConnMgrLowWater * 4
	}
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
}

// Transport is a libp2p-backed LAN transport.
type Transport struct {
	cfg    Config
	host   host.Host
	queue  *transport.Queue
	logger Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	discovery   mdns.Service
	discovering bool
	links       map[peer.ID]*link
	closed      bool
}

// link is the session stream to one peer. Fields below the writer are
// guarded by Transport.mu.
type link struct {
	id     peer.ID
	stream network.Stream

	writeMu sync.Mutex
	writer  *cramberry.StreamWriter

	token     string
	hello     bool
	announced bool
	connected bool
	invite    *time.Timer
}

// New creates a transport and starts listening. Discovery does not begin
// until StartDiscovery.
func New(cfg Config) (*Transport, error) {
	cfg.applyDefaults()

	h, err := newHost(cfg, NewConnectionGater(cfg.Blocker))
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		cfg:    cfg,
		host:   h,
		queue:  transport.NewQueue(),
		logger: cfg.Logger,
		ctx:    ctx,
		cancel: cancel,
		links:  make(map[peer.ID]*link),
	}
	h.SetStreamHandler(SessionProtocolID, t.handleStream)
	return t, nil
}

// LocalPeer implements transport.Transport.
func (t *Transport) LocalPeer() transport.PeerID {
	return transport.PeerID(t.host.ID().String())
}

// AddrInfo returns this host's ID and listen addresses.
func (t *Transport) AddrInfo() peer.AddrInfo {
	return peer.AddrInfo{ID: t.host.ID(), Addrs: t.host.Addrs()}
}

// Events implements transport.Transport.
func (t *Transport) Events() <-chan transport.Event {
	return t.queue.Events()
}

// StartDiscovery implements transport.Transport.
func (t *Transport) StartDiscovery() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return transport.ErrClosed
	}
	if t.discovering {
		return nil
	}

	svc := mdns.NewMdnsService(t.host, t.cfg.ServiceTag, notifee{t})
	if err := svc.Start(); err != nil {
		return fmt.Errorf("failed to start mdns: %w", err)
	}
	t.discovery = svc
	t.discovering = true

	for _, l := range t.links {
		t.announceLocked(l)
	}
	return nil
}

// StopDiscovery implements transport.Transport.
func (t *Transport) StopDiscovery() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return transport.ErrClosed
	}
	if !t.discovering {
		return nil
	}
	t.discovering = false
	svc := t.discovery
	t.discovery = nil

	if err := svc.Close(); err != nil {
		return fmt.Errorf("failed to stop mdns: %w", err)
	}
	return nil
}

// AddPeer dials a peer directly, for networks where multicast is filtered.
// The peer is reported as found once its hello arrives.
func (t *Transport) AddPeer(ctx context.Context, pi peer.AddrInfo) error {
	if pi.ID == t.host.ID() {
		return nil
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	_, exists := t.links[pi.ID]
	t.mu.Unlock()
	if exists {
		return nil
	}
	return t.dial(ctx, pi)
}

// Invite implements transport.Transport.
func (t *Transport) Invite(p transport.PeerID, info transport.DiscoveryInfo) error {
	l, err := t.lookup(p)
	if err != nil {
		if errors.Is(err, transport.ErrNotConnected) {
			return fmt.Errorf("%w: %s", transport.ErrUnknownPeer, p)
		}
		return err
	}

	t.mu.Lock()
	if l.invite != nil {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvitePending, p)
	}
	l.invite = time.AfterFunc(t.cfg.InviteTimeout, func() { t.expireInvite(l) })
	t.mu.Unlock()

	if err := t.write(l, &Frame{Type: uint32(FrameInvite), Token: info.Token}); err != nil {
		t.mu.Lock()
		t.clearInviteLocked(l)
		t.mu.Unlock()
		return err
	}
	return nil
}

// Send implements transport.Transport.
func (t *Transport) Send(p transport.PeerID, data []byte) error {
	l, err := t.connectedLink(p)
	if err != nil {
		return err
	}
	if len(data) > t.cfg.MaxFrameData {
		return fmt.Errorf("payload of %d bytes exceeds frame limit %d", len(data), t.cfg.MaxFrameData)
	}
	return t.write(l, &Frame{Type: uint32(FrameData), Data: data})
}

// Disconnect implements transport.Transport. The session stream stays
// open so the peer remains discoverable.
func (t *Transport) Disconnect(p transport.PeerID) error {
	l, err := t.connectedLink(p)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.endLinkLocked(l)
	t.mu.Unlock()

	if err := t.write(l, &Frame{Type: uint32(FrameBye)}); err != nil {
		t.logger.Debug("failed to send bye", "peer", l.id, "error", err)
	}
	return nil
}

// Close implements transport.Transport.
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	svc := t.discovery
	t.discovery = nil
	t.discovering = false
	links := make([]*link, 0, len(t.links))
	for _, l := range t.links {
		links = append(links, l)
	}
	t.mu.Unlock()

	if svc != nil {
		_ = svc.Close()
	}
	for _, l := range links {
		_ = l.stream.Reset()
	}
	t.cancel()
	err := t.host.Close()
	t.queue.Close()
	return err
}

func (t *Transport) lookup(p transport.PeerID) (*link, error) {
	id, err := peer.Decode(string(p))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", transport.ErrUnknownPeer, p)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, transport.ErrClosed
	}
	l, ok := t.links[id]
	if !ok || !l.hello {
		return nil, fmt.Errorf("%w: %s", transport.ErrNotConnected, p)
	}
	return l, nil
}

func (t *Transport) connectedLink(p transport.PeerID) (*link, error) {
	l, err := t.lookup(p)
	if err != nil {
		if errors.Is(err, transport.ErrUnknownPeer) {
			return nil, fmt.Errorf("%w: %s", transport.ErrNotConnected, p)
		}
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !l.connected {
		return nil, fmt.Errorf("%w: %s", transport.ErrNotConnected, p)
	}
	return l, nil
}

func (t *Transport) write(l *link, f *Frame) error {
	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	if err := l.writer.WriteDelimited(f); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("flush failed: %w", err)
	}
	return nil
}

// notifee receives mDNS discoveries.
type notifee struct {
	t *Transport
}

// HandlePeerFound implements mdns.Notifee.
func (n notifee) HandlePeerFound(pi peer.AddrInfo) {
	t := n.t
	if pi.ID == t.host.ID() {
		return
	}

	t.mu.Lock()
	if t.closed || !t.discovering {
		t.mu.Unlock()
		return
	}
	if l, ok := t.links[pi.ID]; ok {
		t.announceLocked(l)
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	// The higher ID waits for the lower one to dial.
	if t.host.ID() > pi.ID {
		t.host.Peerstore().AddAddrs(pi.ID, pi.Addrs, time.Minute)
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(t.ctx, t.cfg.DialTimeout)
		defer cancel()
		if err := t.dial(ctx, pi); err != nil {
			t.logger.Debug("failed to dial discovered peer", "peer", pi.ID, "error", err)
		}
	}()
}

func (t *Transport) dial(ctx context.Context, pi peer.AddrInfo) error {
	if err := t.host.Connect(ctx, pi); err != nil {
		return fmt.Errorf("failed to connect to peer %s: %w", pi.ID, err)
	}
	s, err := t.host.NewStream(ctx, pi.ID, SessionProtocolID)
	if err != nil {
		return fmt.Errorf("failed to open session stream to %s: %w", pi.ID, err)
	}
	t.attach(s)
	return nil
}

func (t *Transport) handleStream(s network.Stream) {
	t.attach(s)
}

// attach adopts a session stream, sends hello and starts reading. When
// both sides dialed at once, the stream opened by the lower peer ID wins
// on both ends.
func (t *Transport) attach(s network.Stream) {
	remote := s.Conn().RemotePeer()

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		_ = s.Reset()
		return
	}
	l := &link{
		id:     remote,
		stream: s,
		writer: cramberry.NewStreamWriter(s),
	}
	existing, ok := t.links[remote]
	if ok {
		if !t.preferred(s) || t.preferred(existing.stream) {
			t.mu.Unlock()
			_ = s.Reset()
			return
		}
		t.clearInviteLocked(existing)
		l.announced = existing.announced
	}
	t.links[remote] = l
	t.mu.Unlock()

	if existing != nil {
		_ = existing.stream.Reset()
	}

	if err := t.write(l, &Frame{Type: uint32(FrameHello), Token: t.cfg.Token}); err != nil {
		t.logger.Debug("failed to send hello", "peer", remote, "error", err)
		t.drop(l)
		return
	}
	go t.readLoop(l)
}

// preferred reports whether s was opened by the lower of the two peer IDs.
func (t *Transport) preferred(s network.Stream) bool {
	localLower := t.host.ID() < s.Conn().RemotePeer()
	return (s.Stat().Direction == network.DirOutbound) == localLower
}

func (t *Transport) readLoop(l *link) {
	defer t.drop(l)

	reader := cramberry.NewMessageIterator(l.stream)
	for {
		var f Frame
		if !reader.Next(&f) {
			if err := reader.Err(); err != nil && !errors.Is(err, io.EOF) {
				t.logger.Debug("session stream read failed", "peer", l.id, "error", err)
			}
			return
		}
		if err := f.Validate(t.cfg.MaxFrameData); err != nil {
			t.logger.Warn("dropping session stream after bad frame", "peer", l.id, "error", err)
			return
		}
		t.handleFrame(l, &f)
	}
}

func (t *Transport) handleFrame(l *link, f *Frame) {
	p := transport.PeerID(l.id.String())

	switch f.Kind() {
	case FrameHello:
		t.mu.Lock()
		l.token = f.Token
		l.hello = true
		if t.discovering {
			t.announceLocked(l)
		}
		t.mu.Unlock()

	case FrameInvite:
		t.mu.Lock()
		busy := l.connected
		t.mu.Unlock()
		if busy {
			_ = t.write(l, &Frame{Type: uint32(FrameReject)})
			return
		}
		var once sync.Once
		t.queue.Push(transport.Event{
			Kind: transport.EventInvitationReceived,
			Peer: p,
			Info: transport.DiscoveryInfo{Token: f.Token},
			Respond: func(accept bool) {
				once.Do(func() { t.respond(l, accept) })
			},
		})

	case FrameAccept:
		t.mu.Lock()
		if l.invite == nil {
			t.mu.Unlock()
			// The invitation already timed out here; tell the peer.
			_ = t.write(l, &Frame{Type: uint32(FrameBye)})
			return
		}
		t.clearInviteLocked(l)
		t.queue.Push(transport.Event{Kind: transport.EventInviteResult, Peer: p, Result: transport.InviteAccepted})
		t.beginLinkLocked(l)
		t.mu.Unlock()

	case FrameReject:
		t.mu.Lock()
		if l.invite != nil {
			t.clearInviteLocked(l)
			t.queue.Push(transport.Event{Kind: transport.EventInviteResult, Peer: p, Result: transport.InviteRejected})
		}
		t.mu.Unlock()

	case FrameData:
		t.mu.Lock()
		connected := l.connected
		t.mu.Unlock()
		if connected {
			t.queue.Push(transport.Event{Kind: transport.EventDataReceived, Peer: p, Data: f.Data})
		}

	case FrameBye:
		t.mu.Lock()
		t.endLinkLocked(l)
		t.mu.Unlock()
	}
}

func (t *Transport) respond(l *link, accept bool) {
	t.mu.Lock()
	if t.closed || t.links[l.id] != l {
		t.mu.Unlock()
		return
	}
	if !accept {
		t.mu.Unlock()
		_ = t.write(l, &Frame{Type: uint32(FrameReject)})
		return
	}
	// The link must be connected before the peer can see Accept: the
	// initiator sends its first handshake frame as soon as it does.
	t.beginLinkLocked(l)
	t.mu.Unlock()

	if err := t.write(l, &Frame{Type: uint32(FrameAccept)}); err != nil {
		t.logger.Debug("failed to accept invitation", "peer", l.id, "error", err)
		t.mu.Lock()
		t.endLinkLocked(l)
		t.mu.Unlock()
		return
	}
	testHookAcceptSent(t, l)
}

func (t *Transport) expireInvite(l *link) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if l.invite == nil {
		return
	}
	l.invite = nil
	t.queue.Push(transport.Event{Kind: transport.EventInviteResult, Peer: transport.PeerID(l.id.String()), Result: transport.InviteTimeout})
}

// drop forgets a link whose stream ended.
func (t *Transport) drop(l *link) {
	_ = l.stream.Reset()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.links[l.id] != l {
		return
	}
	delete(t.links, l.id)

	p := transport.PeerID(l.id.String())
	if l.invite != nil {
		t.clearInviteLocked(l)
		t.queue.Push(transport.Event{Kind: transport.EventInviteResult, Peer: p, Result: transport.InviteRejected})
	}
	t.endLinkLocked(l)
	if l.announced {
		l.announced = false
		t.queue.Push(transport.Event{Kind: transport.EventPeerLost, Peer: p})
	}
}

func (t *Transport) announceLocked(l *link) {
	if l.announced || !l.hello {
		return
	}
	l.announced = true
	t.queue.Push(transport.Event{
		Kind: transport.EventPeerFound,
		Peer: transport.PeerID(l.id.String()),
		Info: transport.DiscoveryInfo{Token: l.token},
	})
}

func (t *Transport) beginLinkLocked(l *link) {
	if l.connected {
		return
	}
	l.connected = true
	p := transport.PeerID(l.id.String())
	t.queue.Push(transport.Event{Kind: transport.EventConnectionState, Peer: p, State: transport.StateConnecting})
	t.queue.Push(transport.Event{Kind: transport.EventConnectionState, Peer: p, State: transport.StateConnected})
}

func (t *Transport) endLinkLocked(l *link) {
	if !l.connected {
		return
	}
	l.connected = false
	t.queue.Push(transport.Event{Kind: transport.EventConnectionState, Peer: transport.PeerID(l.id.String()), State: transport.StateNotConnected})
}

func (t *Transport) clearInviteLocked(l *link) {
	if l.invite == nil {
		return
	}
	l.invite.Stop()
	l.invite = nil
}

var _ transport.Transport = (*Transport)(nil)

// testHookAcceptSent runs after an Accept frame is written.
var testHookAcceptSent = func(*Transport, *link) {}
