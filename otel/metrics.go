package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/petal-labs/petalmatch/matching"
)

// MetricsHandler translates matching events into OpenTelemetry metrics.
type MetricsHandler struct {
	matches  metric.Int64Counter
	inputs   metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetricsHandler creates a MetricsHandler that uses the given meter to
// create its instruments.
func NewMetricsHandler(meter metric.Meter) (*MetricsHandler, error) {
	matches, err := meter.Int64Counter("petalmatch.match.count",
		metric.WithDescription("Number of matching passes by outcome"),
	)
	if err != nil {
		return nil, err
	}

	inputs, err := meter.Int64Counter("petalmatch.match.inputs",
		metric.WithDescription("Number of resolved collection inputs by linkage"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram("petalmatch.match.duration",
		metric.WithDescription("Duration of a matching pass in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &MetricsHandler{
		matches:  matches,
		inputs:   inputs,
		duration: duration,
	}, nil
}

// Handle processes a matching event and records the appropriate metrics.
// It has matching.EventHandler semantics.
func (h *MetricsHandler) Handle(e matching.Event) {
	ctx := context.Background()
	switch e.Kind {
	case matching.EventInputLinked:
		h.inputs.Add(ctx, 1, metric.WithAttributes(attribute.Bool("linked", true)))
	case matching.EventInputUnlinked:
		h.inputs.Add(ctx, 1, metric.WithAttributes(attribute.Bool("linked", false)))
	case matching.EventMismatch:
		h.finish(ctx, e, "mismatch")
	case matching.EventMatchFailed:
		h.finish(ctx, e, "failed")
	case matching.EventMatchFinished:
		h.finish(ctx, e, "matched")
	}
}

func (h *MetricsHandler) finish(ctx context.Context, e matching.Event, outcome string) {
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	h.matches.Add(ctx, 1, attrs)
	h.duration.Record(ctx, e.Elapsed.Seconds(), attrs)
}
