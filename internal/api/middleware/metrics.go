package middleware

import (
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/airglance/airglance/internal/api/middleware"

// Instrument names exported by Metrics.
const (
	MetricRequests = "airglance.http.requests"
	MetricDuration = "airglance.http.request.duration"
	MetricActive   = "airglance.http.active_requests"
)

// A dashboard request fans out to providers with multi-second timeouts, so
// the buckets reach further than the SDK defaults.
var durationBuckets = []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20}

// Metrics records request counts, latency and concurrency per route.
type Metrics struct {
	requests metric.Int64Counter
	duration metric.Float64Histogram
	active   metric.Int64UpDownCounter
}

// NewMetrics registers the HTTP instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	requests, err1 := meter.Int64Counter(MetricRequests,
		metric.WithDescription("Completed API requests by route and outcome"),
		metric.WithUnit("{request}"))
	duration, err2 := meter.Float64Histogram(MetricDuration,
		metric.WithDescription("API request latency"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...))
	active, err3 := meter.Int64UpDownCounter(MetricActive,
		metric.WithDescription("API requests being served"),
		metric.WithUnit("{request}"))
	if err := errors.Join(err1, err2, err3); err != nil {
		return nil, err
	}

	return &Metrics{requests: requests, duration: duration, active: active}, nil
}

// Middleware records every request against its chi route pattern.
func (m *Metrics) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			start := time.Now()

			m.active.Add(ctx, 1)
			defer m.active.Add(ctx, -1)

			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			attrs := metric.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", routePattern(r)),
				attribute.Int("http.response.status_code", rec.statusCode),
				attribute.String("airglance.outcome", outcome(rec.statusCode)),
			)
			m.requests.Add(ctx, 1, attrs)
			m.duration.Record(ctx, time.Since(start).Seconds(), attrs)
		})
	}
}

// outcome buckets a status code into what it means for the dashboard.
func outcome(status int) string {
	switch {
	case status < http.StatusBadRequest:
		return "ok"
	case status == http.StatusTooManyRequests:
		return "throttled"
	case status < http.StatusInternalServerError:
		return "rejected"
	case status == http.StatusBadGateway, status == http.StatusGatewayTimeout:
		return "upstream_failure"
	case status == http.StatusServiceUnavailable:
		return "unavailable"
	default:
		return "error"
	}
}
