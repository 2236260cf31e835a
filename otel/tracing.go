// Package otel provides OpenTelemetry tracing integration for encounter.
//
// # Span Hierarchy
//
// Two root spans are created per connection:
//
//	encounter.handshake      connected -> established or abandoned
//	encounter.session        BeginSession -> drop
//	└── meaningful_interaction (event)
//
// # Attributes
//
//   - peer.id: The remote peer's identity
//   - handshake.role: "initiator" or "responder"
//   - handshake.result: "success" or "abandoned"
//   - session.id: The session identifier
//   - session.meaningful: Whether the session crossed the thresholds
//
// # Example Usage
//
//	import (
//	    "github.com/blockberries/encounter"
//	    encounterotel "github.com/blockberries/encounter/otel"
//	    "go.opentelemetry.io/otel"
//	)
//
//	func main() {
//	    tracer := encounterotel.NewTracer(otel.GetTracerProvider())
//
//	    cfg := encounter.NewConfig(token, encounter.WithTracer(tracer))
//	    node, err := encounter.New(transport, cfg)
//	    // ...
//	}
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/blockberries/encounter"
)

// TracerName is the name used for the OpenTelemetry tracer.
const TracerName = "github.com/blockberries/encounter"

// Tracer implements encounter.Tracer on top of an OpenTelemetry
// TracerProvider.
//
// Tracer is safe for concurrent use.
type Tracer struct {
	tracer trace.Tracer
}

var _ encounter.Tracer = (*Tracer)(nil)

// NewTracer creates a new Tracer using the given TracerProvider.
// If provider is nil, a no-op tracer is used.
func NewTracer(provider trace.TracerProvider) *Tracer {
	if provider == nil {
		return &Tracer{tracer: noop.NewTracerProvider().Tracer(TracerName)}
	}
	return &Tracer{tracer: provider.Tracer(TracerName)}
}

// StartHandshake implements encounter.Tracer.
func (t *Tracer) StartHandshake(ctx context.Context, peer, role string) (context.Context, encounter.Span) {
	kind := trace.SpanKindServer
	if role == "initiator" {
		kind = trace.SpanKindClient
	}
	ctx, span := t.tracer.Start(ctx, encounter.SpanHandshake,
		trace.WithAttributes(
			attribute.String(encounter.AttrPeer, peer),
			attribute.String(encounter.AttrRole, role),
		),
		trace.WithSpanKind(kind),
	)
	return ctx, &Span{span: span}
}

// StartSession implements encounter.Tracer.
func (t *Tracer) StartSession(ctx context.Context, peer, sessionID string) (context.Context, encounter.Span) {
	ctx, span := t.tracer.Start(ctx, encounter.SpanSession,
		trace.WithAttributes(
			attribute.String(encounter.AttrPeer, peer),
			attribute.String(encounter.AttrSessionID, sessionID),
		),
	)
	return ctx, &Span{span: span}
}

// Span adapts an OpenTelemetry span to encounter.Span.
type Span struct {
	span   trace.Span
	failed bool
}

// AddEvent implements encounter.Span.
func (s *Span) AddEvent(name string) {
	s.span.AddEvent(name)
}

// SetAttribute implements encounter.Span.
func (s *Span) SetAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

// SetError implements encounter.Span.
func (s *Span) SetError(err error) {
	if err == nil {
		return
	}
	s.failed = true
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// End implements encounter.Span. Spans that saw no error end with an Ok
// status.
func (s *Span) End() {
	if !s.failed {
		s.span.SetStatus(codes.Ok, "")
	}
	s.span.End()
}

// Unwrap returns the underlying OpenTelemetry span.
func (s *Span) Unwrap() trace.Span {
	return s.span
}
