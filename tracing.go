package encounter

import "context"

// Span names and attribute keys shared by Tracer implementations.
const (
	SpanHandshake = "encounter.handshake"
	SpanSession   = "encounter.session"

	SpanEventMeaningful = "meaningful_interaction"

	AttrPeer       = "peer.id"
	AttrRole       = "handshake.role"
	AttrSessionID  = "session.id"
	AttrResult     = "handshake.result"
	AttrMeaningful = "session.meaningful"
)

// Tracer creates the spans that bracket a handshake and a session.
//
// Implementations must be safe for concurrent use.
type Tracer interface {
	// StartHandshake opens a span when the transport reports connected.
	StartHandshake(ctx context.Context, peer, role string) (context.Context, Span)

	// StartSession opens a span when the application begins a session.
	StartSession(ctx context.Context, peer, sessionID string) (context.Context, Span)
}

// Span is one traced operation.
type Span interface {
	// AddEvent records a point-in-time event on the span.
	AddEvent(name string)

	// SetAttribute annotates the span.
	SetAttribute(key, value string)

	// SetError marks the span failed.
	SetError(err error)

	// End finishes the span. Calls after the first are ignored.
	End()
}

// NopTracer creates spans that record nothing.
type NopTracer struct{}

var _ Tracer = NopTracer{}

// StartHandshake implements Tracer (no-op).
func (NopTracer) StartHandshake(ctx context.Context, peer, role string) (context.Context, Span) {
	return ctx, nopSpan{}
}

// StartSession implements Tracer (no-op).
func (NopTracer) StartSession(ctx context.Context, peer, sessionID string) (context.Context, Span) {
	return ctx, nopSpan{}
}

type nopSpan struct{}

func (nopSpan) AddEvent(string) {}
func (nopSpan) SetAttribute(string, string) {}
func (nopSpan) SetError(error) {}
func (nopSpan) End() {}
