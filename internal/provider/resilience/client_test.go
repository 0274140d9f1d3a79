package resilience_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airglance/airglance/internal/provider/resilience"
)

// statusServer answers every request with the next status from statuses,
// repeating the last one.
func statusServer(t *testing.T, statuses ...int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		n := int(calls.Add(1)) - 1
		if n >= len(statuses) {
			n = len(statuses) - 1
		}
		w.WriteHeader(statuses[n])
	}))
	t.Cleanup(server.Close)
	return server, &calls
}

func get(t *testing.T, ctx context.Context, client *resilience.Client, url string) (*http.Response, error) {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	require.NoError(t, err)
	resp, err := client.Do(req)
	if resp != nil {
		t.Cleanup(func() { resp.Body.Close() })
	}
	return resp, err
}

func TestClient_SuccessfulRequest(t *testing.T) {
	server, calls := statusServer(t, http.StatusOK)

	client := resilience.NewClient(resilience.DefaultClientConfig("waqi"))

	resp, err := get(t, context.Background(), client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_WorkerConfigRetriesServerErrors(t *testing.T) {
	server, calls := statusServer(t, http.StatusServiceUnavailable, http.StatusBadGateway, http.StatusOK)

	cfg := resilience.DefaultClientConfig("waqi")
	cfg.InitialInterval = 5 * time.Millisecond
	cfg.MaxInterval = 20 * time.Millisecond
	client := resilience.NewClient(cfg)

	resp, err := get(t, context.Background(), client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load(), "should have retried until success")
}

func TestClient_ExhaustedRetriesReturnLastResponse(t *testing.T) {
	server, calls := statusServer(t, http.StatusInternalServerError)

	cfg := resilience.DefaultClientConfig("openweathermap")
	cfg.MaxRetries = 2
	cfg.InitialInterval = 5 * time.Millisecond
	cfg.CircuitBreaker = &resilience.CircuitBreakerConfig{Trip: resilience.TripPolicy{MinRequests: 100, FailureRatio: 1}}
	client := resilience.NewClient(cfg)

	resp, err := get(t, context.Background(), client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_DashboardConfigMakesSingleAttempt(t *testing.T) {
	server, calls := statusServer(t, http.StatusBadGateway, http.StatusOK)

	client := resilience.NewClient(resilience.DashboardClientConfig("waqi", time.Second))

	resp, err := get(t, context.Background(), client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_ClientErrorsAreNotRetried(t *testing.T) {
	server, calls := statusServer(t, http.StatusNotFound)

	cfg := resilience.DefaultClientConfig("waqi")
	cfg.InitialInterval = 5 * time.Millisecond
	client := resilience.NewClient(cfg)

	resp, err := get(t, context.Background(), client, server.URL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, gobreaker.StateClosed, client.CircuitBreakerState())
}

func TestClient_CircuitOpensAndRejects(t *testing.T) {
	server, calls := statusServer(t, http.StatusInternalServerError)

	client := resilience.NewClient(resilience.ClientConfig{
		Name:           "waqi",
		Timeout:        time.Second,
		CircuitBreaker: &resilience.CircuitBreakerConfig{Trip: resilience.TripPolicy{ConsecutiveFailures: 2}},
	})

	for i := 0; i < 2; i++ {
		resp, err := get(t, context.Background(), client, server.URL)
		require.NoError(t, err)
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	}
	assert.Equal(t, gobreaker.StateOpen, client.CircuitBreakerState())

	resp, err := get(t, context.Background(), client, server.URL)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load(), "an open circuit must not reach the provider")
}

func TestClient_RetryStopsWhenCircuitOpens(t *testing.T) {
	server, calls := statusServer(t, http.StatusServiceUnavailable)

	cfg := resilience.DefaultClientConfig("waqi")
	cfg.MaxRetries = 5
	cfg.InitialInterval = 5 * time.Millisecond
	cfg.CircuitBreaker = &resilience.CircuitBreakerConfig{Trip: resilience.TripPolicy{ConsecutiveFailures: 2}}
	client := resilience.NewClient(cfg)

	resp, err := get(t, context.Background(), client, server.URL)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_TimeoutIsAFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	registry := resilience.NewRegistry()
	cfg := resilience.DashboardClientConfig("openweathermap", 50*time.Millisecond)
	cfg.Registry = registry
	client := resilience.NewClient(cfg)

	resp, err := get(t, context.Background(), client, server.URL)
	assert.Nil(t, resp)
	assert.Error(t, err)

	health, ok := registry.Provider("openweathermap")
	require.True(t, ok)
	assert.NotNil(t, health.LastFailureAt)
	assert.Equal(t, uint32(1), health.Counts.TotalFailures)
}

func TestClient_CancelledDuringBackoff(t *testing.T) {
	server, calls := statusServer(t, http.StatusServiceUnavailable)

	cfg := resilience.DefaultClientConfig("waqi")
	cfg.InitialInterval = time.Second
	cfg.MaxInterval = time.Second
	client := resilience.NewClient(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	resp, err := get(t, ctx, client, server.URL)
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_RecordsOutcomesInRegistry(t *testing.T) {
	server, _ := statusServer(t, http.StatusOK, http.StatusServiceUnavailable)

	metrics, err := resilience.NewProviderMetrics()
	require.NoError(t, err)

	registry := resilience.NewRegistry()
	cfg := resilience.DashboardClientConfig("waqi", time.Second)
	cfg.Registry = registry
	cfg.Metrics = metrics
	client := resilience.NewClient(cfg)

	_, err = get(t, context.Background(), client, server.URL)
	require.NoError(t, err)
	health, ok := registry.Provider("waqi")
	require.True(t, ok)
	assert.NotNil(t, health.LastSuccessAt)
	assert.Nil(t, health.LastFailureAt)

	_, err = get(t, context.Background(), client, server.URL)
	require.NoError(t, err)
	health, _ = registry.Provider("waqi")
	require.NotNil(t, health.LastFailureAt)
	assert.Contains(t, health.LastError, "Service Unavailable")
	assert.Equal(t, uint32(2), health.Counts.Requests)
}

func TestClient_LogsAndForwardsStateChanges(t *testing.T) {
	server, _ := statusServer(t, http.StatusInternalServerError)

	var buf bytes.Buffer
	var transitions []gobreaker.State

	cfg := resilience.DashboardClientConfig("waqi", time.Second)
	cfg.Logger = zerolog.New(&buf)
	cfg.CircuitBreaker = &resilience.CircuitBreakerConfig{
		Trip: resilience.TripPolicy{ConsecutiveFailures: 1},
		OnStateChange: func(_ string, _, to gobreaker.State) {
			transitions = append(transitions, to)
		},
	}
	client := resilience.NewClient(cfg)

	_, err := get(t, context.Background(), client, server.URL)
	require.NoError(t, err)

	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, transitions)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"provider":"waqi"`)
	assert.Contains(t, buf.String(), `"to":"open"`)
}

func TestTripPolicy_ReadyToTrip(t *testing.T) {
	tests := []struct {
		name     string
		policy   resilience.TripPolicy
		counts   gobreaker.Counts
		expected bool
	}{
		{
			name:     "default: not enough requests",
			policy:   resilience.DefaultTripPolicy(),
			counts:   gobreaker.Counts{Requests: 4, TotalFailures: 4, ConsecutiveFailures: 4},
			expected: false,
		},
		{
			name:     "default: low failure rate",
			policy:   resilience.DefaultTripPolicy(),
			counts:   gobreaker.Counts{Requests: 10, TotalFailures: 4},
			expected: false,
		},
		{
			name:     "default: half failed",
			policy:   resilience.DefaultTripPolicy(),
			counts:   gobreaker.Counts{Requests: 10, TotalFailures: 5},
			expected: true,
		},
		{
			name:     "consecutive failures below min requests",
			policy:   resilience.TripPolicy{MinRequests: 5, FailureRatio: 0.5, ConsecutiveFailures: 3},
			counts:   gobreaker.Counts{Requests: 3, TotalFailures: 3, ConsecutiveFailures: 3},
			expected: true,
		},
		{
			name:     "ratio disabled",
			policy:   resilience.TripPolicy{ConsecutiveFailures: 3},
			counts:   gobreaker.Counts{Requests: 10, TotalFailures: 9, ConsecutiveFailures: 2},
			expected: false,
		},
		{
			name:     "no requests",
			policy:   resilience.DefaultTripPolicy(),
			counts:   gobreaker.Counts{},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.policy.ReadyToTrip(tt.counts))
		})
	}
}

func TestDefaultConfigs(t *testing.T) {
	cb := resilience.DefaultCircuitBreakerConfig("waqi")
	assert.Equal(t, uint32(1), cb.MaxRequests)
	assert.Equal(t, 5*time.Minute, cb.Interval)
	assert.Equal(t, 60*time.Second, cb.Timeout)
	assert.Equal(t, resilience.DefaultTripPolicy(), cb.Trip)

	worker := resilience.DefaultClientConfig("waqi")
	assert.Equal(t, uint64(3), worker.MaxRetries)
	assert.Equal(t, 10*time.Second, worker.Timeout)
	require.NotNil(t, worker.CircuitBreaker)

	dashboard := resilience.DashboardClientConfig("waqi", 4*time.Second)
	assert.Zero(t, dashboard.MaxRetries)
	assert.Equal(t, 4*time.Second, dashboard.Timeout)

	assert.Equal(t, 10*time.Second, resilience.DashboardClientConfig("waqi", 0).Timeout)
}

func TestServerError(t *testing.T) {
	err := &resilience.ServerError{StatusCode: http.StatusBadGateway}
	assert.Equal(t, "server error: Bad Gateway", err.Error())
}
