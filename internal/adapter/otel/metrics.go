package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "labcore"

// Metrics holds the isolation layer's metric instruments. A nil *Metrics
// records nothing.
type Metrics struct {
	ScopedOps        metric.Int64Counter
	IsolationDenials metric.Int64Counter
	MembershipCache  metric.Int64Counter
}

// NewMetrics creates all metric instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	return NewMetricsWith(otel.Meter(meterName))
}

// NewMetricsWith creates all metric instruments on meter.
func NewMetricsWith(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.ScopedOps, err = meter.Int64Counter("labcore.gateway.ops",
		metric.WithDescription("Gateway operations by entity and outcome"))
	if err != nil {
		return nil, err
	}

	m.IsolationDenials, err = meter.Int64Counter("labcore.isolation.denials",
		metric.WithDescription("Operations rejected by tenant isolation"))
	if err != nil {
		return nil, err
	}

	m.MembershipCache, err = meter.Int64Counter("labcore.membership.cache",
		metric.WithDescription("Membership cache lookups by result"))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// RecordOp counts one finished gateway operation.
func (m *Metrics) RecordOp(ctx context.Context, op, entity string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.ScopedOps.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("entity", entity),
		attribute.String("outcome", outcome),
	))
}

// RecordDenial counts one isolation failure.
func (m *Metrics) RecordDenial(ctx context.Context, op, entity, reason string) {
	if m == nil {
		return
	}
	m.IsolationDenials.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.String("entity", entity),
		attribute.String("reason", reason),
	))
}

// RecordCacheLookup counts a membership cache hit or miss.
func (m *Metrics) RecordCacheLookup(ctx context.Context, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.MembershipCache.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
}
