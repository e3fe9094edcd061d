package throttle

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	metricNameAdmissionsTotal = "throttle.admissions.total"
	metricNameBlockedTotal    = "throttle.blocked.total"
	metricNameFallbackTotal   = "throttle.fallback.total"
	metricNameCheckDuration   = "throttle.check.duration"
)

// Metrics collects admission counters and a check-duration histogram via
// OpenTelemetry. Every method is nil-receiver-safe: a *Metrics obtained
// from NewMetrics(nil) is nil and every recording call is then a no-op, so
// callers never need a separate "metrics enabled" check.
type Metrics struct {
	meter           metric.Meter
	admissionsTotal metric.Int64Counter
	blockedTotal    metric.Int64Counter
	fallbackTotal   metric.Int64Counter
	checkDuration   metric.Float64Histogram
}

// NewMetrics builds a Metrics instance against meterProvider. Passing nil
// returns (nil, nil): the adapter then records nothing.
func NewMetrics(meterProvider metric.MeterProvider) (*Metrics, error) {
	if meterProvider == nil {
		return nil, nil
	}

	meter := meterProvider.Meter("throttle", metric.WithInstrumentationVersion("1.0.0"))

	admissionsTotal, err := meter.Int64Counter(
		metricNameAdmissionsTotal,
		metric.WithDescription("admission calls evaluated"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	blockedTotal, err := meter.Int64Counter(
		metricNameBlockedTotal,
		metric.WithDescription("admission calls that observed a block"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	fallbackTotal, err := meter.Int64Counter(
		metricNameFallbackTotal,
		metric.WithDescription("admission calls served by the failure strategy"),
		metric.WithUnit("{call}"),
	)
	if err != nil {
		return nil, err
	}

	checkDuration, err := meter.Float64Histogram(
		metricNameCheckDuration,
		metric.WithDescription("admission call latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		meter:           meter,
		admissionsTotal: admissionsTotal,
		blockedTotal:    blockedTotal,
		fallbackTotal:   fallbackTotal,
		checkDuration:   checkDuration,
	}, nil
}

// RecordAdmission records the outcome of one increment call, using
// context.WithoutCancel so the recording isn't dropped when ctx was
// cancelled partway through the call it's describing.
func (m *Metrics) RecordAdmission(ctx context.Context, policyName string, blocked bool, duration time.Duration) {
	if m == nil {
		return
	}
	metricsCtx := context.WithoutCancel(ctx)

	attrs := []attribute.KeyValue{
		attribute.String("policy", policyName),
		attribute.Bool("blocked", blocked),
	}

	m.admissionsTotal.Add(metricsCtx, 1, metric.WithAttributes(attrs...))
	if blocked {
		m.blockedTotal.Add(metricsCtx, 1, metric.WithAttributes(attrs...))
	}
	m.checkDuration.Record(metricsCtx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordFallback records a call served by the configured failure strategy
// instead of a real store round-trip.
func (m *Metrics) RecordFallback(ctx context.Context, strategy FailureStrategy, reason string) {
	if m == nil {
		return
	}
	metricsCtx := context.WithoutCancel(ctx)

	attrs := []attribute.KeyValue{
		attribute.String("strategy", string(strategy)),
		attribute.String("reason", reason),
	}
	m.fallbackTotal.Add(metricsCtx, 1, metric.WithAttributes(attrs...))
}
