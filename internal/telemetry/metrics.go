package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the directory's metric instruments.
type Metrics struct {
	Negotiations       metric.Int64Counter
	NegotiationResults metric.Int64Histogram
	SessionTransitions metric.Int64Counter
	SessionsExpired    metric.Int64Counter
	CASConflicts       metric.Int64Counter
}

// NewMetrics creates all metric instruments from the given meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.Negotiations, err = meter.Int64Counter("agentdir.negotiations",
		metric.WithDescription("Negotiation requests served"),
	)
	if err != nil {
		return nil, err
	}

	m.NegotiationResults, err = meter.Int64Histogram("agentdir.negotiation.candidates",
		metric.WithDescription("Candidates returned per negotiation"),
	)
	if err != nil {
		return nil, err
	}

	m.SessionTransitions, err = meter.Int64Counter("agentdir.session.transitions",
		metric.WithDescription("Session state transitions applied"),
	)
	if err != nil {
		return nil, err
	}

	m.SessionsExpired, err = meter.Int64Counter("agentdir.session.expired",
		metric.WithDescription("Sessions failed by the expiration sweep"),
	)
	if err != nil {
		return nil, err
	}

	m.CASConflicts, err = meter.Int64Counter("agentdir.cas.conflicts",
		metric.WithDescription("Compare-and-swap writes lost to a concurrent writer"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

// NoopMetrics returns instruments that record nothing.
func NoopMetrics() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("agentdir"))
	return m
}

// RecordNegotiation counts one negotiation and its result size.
func (m *Metrics) RecordNegotiation(ctx context.Context, candidates int) {
	if m == nil {
		return
	}
	m.Negotiations.Add(ctx, 1)
	m.NegotiationResults.Record(ctx, int64(candidates))
}

// RecordTransition counts one applied session transition.
func (m *Metrics) RecordTransition(ctx context.Context, from, to string) {
	if m == nil {
		return
	}
	m.SessionTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordExpired counts one session failed by expiry.
func (m *Metrics) RecordExpired(ctx context.Context) {
	if m == nil {
		return
	}
	m.SessionsExpired.Add(ctx, 1)
}

// RecordCASConflict counts one lost compare-and-swap on resource ("agent" or "session").
func (m *Metrics) RecordCASConflict(ctx context.Context, resource string) {
	if m == nil {
		return
	}
	m.CASConflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("resource", resource)))
}
