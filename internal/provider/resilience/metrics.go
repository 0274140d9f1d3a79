package resilience

import (
	"context"
	"errors"
	"net"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/airglance/airglance/internal/provider/resilience"

// Instrument names exported by ProviderMetrics.
const (
	MetricProviderCalls    = "airglance.provider.calls"
	MetricProviderDuration = "airglance.provider.call.duration"
)

// Outcome labels attached to provider call metrics.
const (
	OutcomeOK          = "ok"
	OutcomeServerError = "server_error"
	OutcomeCircuitOpen = "circuit_open"
	OutcomeTimeout     = "timeout"
	OutcomeCancelled   = "cancelled"
	OutcomeTransport   = "transport_error"
)

// ProviderMetrics counts provider calls per provider and outcome. Paths are
// not recorded since they embed station ids.
type ProviderMetrics struct {
	calls    metric.Int64Counter
	duration metric.Float64Histogram
}

// NewProviderMetrics registers the provider instruments on the global meter
// provider.
func NewProviderMetrics() (*ProviderMetrics, error) {
	meter := otel.Meter(meterName)

	calls, err := meter.Int64Counter(MetricProviderCalls,
		metric.WithDescription("Upstream air quality provider calls by outcome"),
		metric.WithUnit("{call}"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(MetricProviderDuration,
		metric.WithDescription("Upstream provider call latency including retries"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &ProviderMetrics{calls: calls, duration: duration}, nil
}

// RecordRequest records one logical call, retries included.
func (m *ProviderMetrics) RecordRequest(provider string, d time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("airglance.provider", provider),
		attribute.String("airglance.outcome", CallOutcome(err)),
	)

	// Cancelled dashboard requests still count.
	ctx := context.Background()
	m.calls.Add(ctx, 1, attrs)
	m.duration.Record(ctx, d.Seconds(), attrs)
}

// CallOutcome classifies the error returned for a provider call.
func CallOutcome(err error) string {
	var netErr net.Error
	switch {
	case err == nil:
		return OutcomeOK
	case isServerError(err):
		return OutcomeServerError
	case errors.Is(err, ErrCircuitOpen):
		return OutcomeCircuitOpen
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, context.Canceled):
		return OutcomeCancelled
	case errors.As(err, &netErr) && netErr.Timeout():
		return OutcomeTimeout
	default:
		return OutcomeTransport
	}
}
