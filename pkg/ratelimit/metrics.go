package ratelimit

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/omar1u7777/Lugn-Trygg-sub001/pkg/ratelimit"

	metricNameChecksTotal   = "admission.checks.total"
	metricNameDeniedTotal   = "admission.denied.total"
	metricNameFailOpenTotal = "admission.failopen.total"
	metricNameCheckDuration = "admission.check.duration"
)

// Metrics records admission telemetry. A nil *Metrics is a no-op, so
// callers never need nil checks at call sites.
type Metrics struct {
	checks   metric.Int64Counter
	denied   metric.Int64Counter
	failOpen metric.Int64Counter
	duration metric.Float64Histogram
}

// NewMetrics builds admission metrics from a meter provider.
// A nil provider disables metrics and returns (nil, nil).
func NewMetrics(provider metric.MeterProvider) (*Metrics, error) {
	if provider == nil {
		return nil, nil
	}
	meter := provider.Meter(meterName)

	checks, err := meter.Int64Counter(metricNameChecksTotal,
		metric.WithDescription("Admission checks by category, tier and outcome"))
	if err != nil {
		return nil, err
	}
	denied, err := meter.Int64Counter(metricNameDeniedTotal,
		metric.WithDescription("Rejected admission checks by category and tier"))
	if err != nil {
		return nil, err
	}
	failOpen, err := meter.Int64Counter(metricNameFailOpenTotal,
		metric.WithDescription("Checks admitted without quota enforcement because the store was unreachable"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(metricNameCheckDuration,
		metric.WithDescription("Admission check latency"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, err
	}

	return &Metrics{
		checks:   checks,
		denied:   denied,
		failOpen: failOpen,
		duration: duration,
	}, nil
}

// RecordCheck records one admission decision. Recording survives request
// cancellation: a canceled caller still counts.
func (m *Metrics) RecordCheck(ctx context.Context, category, tierName string, allowed bool, elapsed time.Duration) {
	if m == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	attrs := metric.WithAttributes(
		attribute.String("category", category),
		attribute.String("tier", tierName),
		attribute.Bool("allowed", allowed),
	)
	m.checks.Add(ctx, 1, attrs)
	m.duration.Record(ctx, float64(elapsed.Microseconds())/1000.0, attrs)
	if !allowed {
		m.denied.Add(ctx, 1, metric.WithAttributes(
			attribute.String("category", category),
			attribute.String("tier", tierName),
		))
	}
}

// RecordFailOpen records a check admitted without enforcement.
func (m *Metrics) RecordFailOpen(ctx context.Context, category string) {
	if m == nil {
		return
	}
	m.failOpen.Add(context.WithoutCancel(ctx), 1, metric.WithAttributes(
		attribute.String("category", category),
	))
}
