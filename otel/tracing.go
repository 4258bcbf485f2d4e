// Package otel provides OpenTelemetry integration for PetalMatch matching
// events.
package otel

import (
	"context"
	"errors"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/petal-labs/petalmatch/matching"
)

// TracingHandler translates matching events into OpenTelemetry spans: one
// span per plan, with a span event per resolved input.
type TracingHandler struct {
	tracer trace.Tracer
	parent context.Context

	mu    sync.RWMutex
	spans map[string]trace.Span // planID -> span
}

// NewTracingHandler creates a TracingHandler that starts plan spans as
// children of the span in parent, if any.
func NewTracingHandler(parent context.Context, tracer trace.Tracer) *TracingHandler {
	return &TracingHandler{
		tracer: tracer,
		parent: parent,
		spans:  make(map[string]trace.Span),
	}
}

// Handle processes a matching event. It has matching.EventHandler
// semantics.
func (h *TracingHandler) Handle(e matching.Event) {
	switch e.Kind {
	case matching.EventMatchStarted:
		h.handleStarted(e)
	case matching.EventInputLinked, matching.EventInputUnlinked:
		h.handleInput(e)
	case matching.EventMismatch:
		h.handleFailed(e, matching.ErrCannotMatch.Error())
	case matching.EventMatchFailed:
		msg, _ := e.Payload["error"].(string)
		h.handleFailed(e, msg)
	case matching.EventMatchFinished:
		h.handleFinished(e)
	}
}

func (h *TracingHandler) handleStarted(e matching.Event) {
	_, span := h.tracer.Start(h.parent, "match:"+e.PlanID,
		trace.WithAttributes(
			attribute.String("petalmatch.plan_id", e.PlanID),
		),
		trace.WithTimestamp(e.Time),
	)
	if n, ok := e.Payload["inputs"].(int); ok {
		span.SetAttributes(attribute.Int("petalmatch.inputs", n))
	}

	h.mu.Lock()
	h.spans[e.PlanID] = span
	h.mu.Unlock()
}

func (h *TracingHandler) handleInput(e matching.Event) {
	h.mu.RLock()
	span, ok := h.spans[e.PlanID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	span.AddEvent(string(e.Kind),
		trace.WithTimestamp(e.Time),
		trace.WithAttributes(
			attribute.String("petalmatch.input", e.Input),
			attribute.String("petalmatch.collection_type", e.CollectionType),
		),
	)
}

// handleFailed ends the plan span with an error status carrying msg.
func (h *TracingHandler) handleFailed(e matching.Event, msg string) {
	span, ok := h.take(e.PlanID)
	if !ok {
		return
	}
	span.SetAttributes(
		attribute.String("petalmatch.input", e.Input),
		attribute.String("petalmatch.duration", e.Elapsed.String()),
	)
	span.SetStatus(codes.Error, msg)
	span.RecordError(errors.New(msg), trace.WithTimestamp(e.Time))
	span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) handleFinished(e matching.Event) {
	span, ok := h.take(e.PlanID)
	if !ok {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("petalmatch.duration", e.Elapsed.String()),
	}
	if n, ok := e.Payload["linked"].(int); ok {
		attrs = append(attrs, attribute.Int("petalmatch.linked", n))
	}
	if n, ok := e.Payload["unlinked"].(int); ok {
		attrs = append(attrs, attribute.Int("petalmatch.unlinked", n))
	}
	span.SetAttributes(attrs...)
	span.SetStatus(codes.Ok, "")
	span.End(trace.WithTimestamp(e.Time))
}

func (h *TracingHandler) take(planID string) (trace.Span, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	span, ok := h.spans[planID]
	if ok {
		delete(h.spans, planID)
	}
	return span, ok
}

// ActivePlanSpanContext returns the SpanContext of the open span for a
// plan. Returns an empty SpanContext if none is open.
func (h *TracingHandler) ActivePlanSpanContext(planID string) trace.SpanContext {
	h.mu.RLock()
	span, ok := h.spans[planID]
	h.mu.RUnlock()

	if !ok {
		return trace.SpanContext{}
	}
	return span.SpanContext()
}
