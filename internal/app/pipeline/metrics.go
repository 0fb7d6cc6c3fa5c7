package pipeline

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/coachpo/assetproof/internal/infra/telemetry"
)

// Metrics records pipeline instruments. A nil *Metrics records nothing.
type Metrics struct {
	environment  string
	invocations  metric.Int64Counter
	productCalls metric.Int64Counter
	requests     metric.Int64Counter
	duration     metric.Float64Histogram
}

// NewMetrics creates the pipeline instruments on meter.
func NewMetrics(meter metric.Meter, environment string) *Metrics {
	m := &Metrics{
		environment:  environment,
		invocations:  nil,
		productCalls: nil,
		requests:     nil,
		duration:     nil,
	}
	m.invocations, _ = meter.Int64Counter("assetproof_invocations_total",
		metric.WithDescription("Pipeline invocations by record status"),
		metric.WithUnit("{invocation}"))
	m.productCalls, _ = meter.Int64Counter("assetproof_product_calls_total",
		metric.WithDescription("Product attestation calls by outcome"),
		metric.WithUnit("{call}"))
	m.requests, _ = meter.Int64Counter("assetproof_requests_total",
		metric.WithDescription("Attested requests processed per product"),
		metric.WithUnit("{request}"))
	m.duration, _ = meter.Float64Histogram(telemetry.InvocationDurationMetric,
		metric.WithDescription("End-to-end invocation duration"),
		metric.WithUnit("ms"))
	return m
}

func (m *Metrics) recordInvocation(ctx context.Context, status int16, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(telemetry.InvocationAttributes(m.environment, status)...)
	if m.invocations != nil {
		m.invocations.Add(ctx, 1, attrs)
	}
	if m.duration != nil {
		m.duration.Record(ctx, float64(elapsed.Microseconds())/1000, attrs)
	}
}

func (m *Metrics) recordProduct(ctx context.Context, exchange, product, result string, requests int) {
	if m == nil {
		return
	}
	if m.productCalls != nil {
		m.productCalls.Add(ctx, 1, metric.WithAttributes(
			telemetry.ProductAttributes(m.environment, exchange, product, result)...))
	}
	if m.requests != nil && requests > 0 {
		m.requests.Add(ctx, int64(requests), metric.WithAttributes(
			telemetry.ProductAttributes(m.environment, exchange, product, "")...))
	}
}
