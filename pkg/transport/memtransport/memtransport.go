// Package memtransport provides an in-process transport.Transport. Endpoints
// attached to the same Hub discover each other while discovering, exchange
// invitations and deliver bytes in order. It backs tests and the local demo.
package memtransport

import (
	"fmt"
	"sync"
	"time"

	"github.com/blockberries/encounter/pkg/transport"
)

// DefaultInviteTimeout is how long an unanswered invitation stays open.
const DefaultInviteTimeout = 10 * time.Second

// InvitePolicy controls how an endpoint's invitations are answered.
type InvitePolicy int

const (
	// InviteManual delivers invitations as events for the consumer to answer.
	InviteManual InvitePolicy = iota

	// InviteAutoReject declines every invitation without an event.
	InviteAutoReject

	// InviteIgnore never answers, so the inviter sees a timeout.
	InviteIgnore
)

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithInviteTimeout sets the invitation timeout.
func WithInviteTimeout(d time.Duration) HubOption {
	return func(h *Hub) {
		h.inviteTimeout = d
	}
}

// Hub connects in-process endpoints.
type Hub struct {
	mu            sync.Mutex
	endpoints     map[transport.PeerID]*Transport
	links         map[link]bool
	inviteTimeout time.Duration
}

type link struct {
	a, b transport.PeerID
}

func newLink(a, b transport.PeerID) link {
	if b < a {
		a, b = b, a
	}
	return link{a: a, b: b}
}

// NewHub creates an empty hub.
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		endpoints:     make(map[transport.PeerID]*Transport),
		links:         make(map[link]bool),
		inviteTimeout: DefaultInviteTimeout,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Transport is one endpoint attached to a Hub.
type Transport struct {
	hub   *Hub
	id    transport.PeerID
	info  transport.DiscoveryInfo
	queue *transport.Queue

	// Guarded by hub.mu.
	discovering bool
	policy      InvitePolicy
	closed      bool
}

// New attaches an endpoint with the given identity and advertised token.
func (h *Hub) New(id transport.PeerID, token string) (*Transport, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.endpoints[id]; exists {
		return nil, fmt.Errorf("endpoint %s already attached", id)
	}

	t := &Transport{
		hub:   h,
		id:    id,
		info:  transport.DiscoveryInfo{Token: token},
		queue: transport.NewQueue(),
	}
	h.endpoints[id] = t
	return t, nil
}

// SetInvitePolicy changes how this endpoint answers invitations.
func (t *Transport) SetInvitePolicy(p InvitePolicy) {
	t.hub.mu.Lock()
	defer t.hub.mu.Unlock()
	t.policy = p
}

// LocalPeer implements transport.Transport.
func (t *Transport) LocalPeer() transport.PeerID {
	return t.id
}

// Events implements transport.Transport.
func (t *Transport) Events() <-chan transport.Event {
	return t.queue.Events()
}

// Inject pushes a raw event to this endpoint's consumer.
func (t *Transport) Inject(ev transport.Event) {
	t.queue.Push(ev)
}

// StartDiscovery implements transport.Transport.
func (t *Transport) StartDiscovery() error {
	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if t.closed {
		return transport.ErrClosed
	}
	if t.discovering {
		return nil
	}
	t.discovering = true

	for id, other := range h.endpoints {
		if id == t.id || !other.discovering {
			continue
		}
		other.queue.Push(transport.Event{Kind: transport.EventPeerFound, Peer: t.id, Info: t.info})
		t.queue.Push(transport.Event{Kind: transport.EventPeerFound, Peer: id, Info: other.info})
	}
	return nil
}

// StopDiscovery implements transport.Transport.
func (t *Transport) StopDiscovery() error {
	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if t.closed {
		return transport.ErrClosed
	}
	if !t.discovering {
		return nil
	}
	t.discovering = false

	for id, other := range h.endpoints {
		if id == t.id || !other.discovering {
			continue
		}
		other.queue.Push(transport.Event{Kind: transport.EventPeerLost, Peer: t.id})
	}
	return nil
}

// Invite implements transport.Transport.
func (t *Transport) Invite(peer transport.PeerID, info transport.DiscoveryInfo) error {
	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if t.closed {
		return transport.ErrClosed
	}
	target, ok := h.endpoints[peer]
	if !ok || target.closed {
		return fmt.Errorf("%w: %s", transport.ErrUnknownPeer, peer)
	}

	inv := &invitation{hub: h, from: t, to: target}

	switch target.policy {
	case InviteAutoReject:
		t.queue.Push(transport.Event{Kind: transport.EventInviteResult, Peer: peer, Result: transport.InviteRejected})
		return nil
	case InviteManual:
		target.queue.Push(transport.Event{
			Kind:    transport.EventInvitationReceived,
			Peer:    t.id,
			Info:    info,
			Respond: inv.respond,
		})
	}

	inv.timer = time.AfterFunc(h.inviteTimeout, inv.expire)
	return nil
}

// Send implements transport.Transport.
func (t *Transport) Send(peer transport.PeerID, data []byte) error {
	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if t.closed {
		return transport.ErrClosed
	}
	if !h.links[newLink(t.id, peer)] {
		return fmt.Errorf("%w: %s", transport.ErrNotConnected, peer)
	}

	payload := make([]byte, len(data))
	copy(payload, data)
	h.endpoints[peer].queue.Push(transport.Event{Kind: transport.EventDataReceived, Peer: t.id, Data: payload})
	return nil
}

// Disconnect implements transport.Transport.
func (t *Transport) Disconnect(peer transport.PeerID) error {
	h := t.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.links[newLink(t.id, peer)] {
		return fmt.Errorf("%w: %s", transport.ErrNotConnected, peer)
	}
	h.unlinkLocked(t.id, peer)
	return nil
}

// Close implements transport.Transport. Open links are torn down and the
// remote side sees NotConnected.
func (t *Transport) Close() error {
	h := t.hub
	h.mu.Lock()
	if t.closed {
		h.mu.Unlock()
		return nil
	}
	for l := range h.links {
		switch t.id {
		case l.a:
			h.unlinkLocked(l.a, l.b)
		case l.b:
			h.unlinkLocked(l.b, l.a)
		}
	}
	t.closed = true
	t.discovering = false
	delete(h.endpoints, t.id)
	h.mu.Unlock()

	t.queue.Close()
	return nil
}

func (h *Hub) unlinkLocked(a, b transport.PeerID) {
	delete(h.links, newLink(a, b))
	if ep, ok := h.endpoints[a]; ok {
		ep.queue.Push(transport.Event{Kind: transport.EventConnectionState, Peer: b, State: transport.StateNotConnected})
	}
	if ep, ok := h.endpoints[b]; ok {
		ep.queue.Push(transport.Event{Kind: transport.EventConnectionState, Peer: a, State: transport.StateNotConnected})
	}
}

// invitation is one outstanding invite; it resolves exactly once.
type invitation struct {
	hub      *Hub
	from, to *Transport
	timer    *time.Timer
	resolved bool
}

func (inv *invitation) respond(accept bool) {
	h := inv.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if inv.resolved {
		return
	}
	inv.resolved = true
	if inv.timer != nil {
		inv.timer.Stop()
	}
	if inv.from.closed || inv.to.closed {
		return
	}

	from, to := inv.from, inv.to
	if !accept {
		from.queue.Push(transport.Event{Kind: transport.EventInviteResult, Peer: to.id, Result: transport.InviteRejected})
		return
	}

	h.links[newLink(from.id, to.id)] = true
	from.queue.Push(transport.Event{Kind: transport.EventInviteResult, Peer: to.id, Result: transport.InviteAccepted})
	for _, pair := range [][2]*Transport{{from, to}, {to, from}} {
		local, remote := pair[0], pair[1]
		local.queue.Push(transport.Event{Kind: transport.EventConnectionState, Peer: remote.id, State: transport.StateConnecting})
		local.queue.Push(transport.Event{Kind: transport.EventConnectionState, Peer: remote.id, State: transport.StateConnected})
	}
}

func (inv *invitation) expire() {
	h := inv.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if inv.resolved {
		return
	}
	inv.resolved = true
	if !inv.from.closed {
		inv.from.queue.Push(transport.Event{Kind: transport.EventInviteResult, Peer: inv.to.id, Result: transport.InviteTimeout})
	}
}

var _ transport.Transport = (*Transport)(nil)
