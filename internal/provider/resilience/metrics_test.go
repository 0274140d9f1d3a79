package resilience_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/airglance/airglance/internal/provider/resilience"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestCallOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, resilience.OutcomeOK},
		{"5xx", &resilience.ServerError{StatusCode: http.StatusBadGateway}, resilience.OutcomeServerError},
		{"open circuit", resilience.ErrCircuitOpen, resilience.OutcomeCircuitOpen},
		{"deadline", fmt.Errorf("get feed: %w", context.DeadlineExceeded), resilience.OutcomeTimeout},
		{"dial timeout", timeoutErr{}, resilience.OutcomeTimeout},
		{"cancelled", context.Canceled, resilience.OutcomeCancelled},
		{"refused", errors.New("connection refused"), resilience.OutcomeTransport},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resilience.CallOutcome(tt.err))
		})
	}
}

func TestProviderMetrics_RecordRequest(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(mp)
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	pm, err := resilience.NewProviderMetrics()
	require.NoError(t, err)

	pm.RecordRequest("waqi", 120*time.Millisecond, nil)
	pm.RecordRequest("waqi", 80*time.Millisecond, nil)
	pm.RecordRequest("waqi", time.Millisecond, resilience.ErrCircuitOpen)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != resilience.MetricProviderCalls {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok)
			for _, dp := range sum.DataPoints {
				provider, _ := dp.Attributes.Value("airglance.provider")
				assert.Equal(t, "waqi", provider.AsString())
				outcome, _ := dp.Attributes.Value("airglance.outcome")
				counts[outcome.AsString()] = dp.Value
			}
		}
	}

	assert.Equal(t, map[string]int64{
		resilience.OutcomeOK:          2,
		resilience.OutcomeCircuitOpen: 1,
	}, counts)
}
