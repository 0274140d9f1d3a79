package resilience

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

// ErrCircuitOpen is returned when a provider's circuit breaker rejects a request.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// ClientConfig holds configuration for the resilient HTTP client.
type ClientConfig struct {
	// Name identifies the provider in the registry, metrics and logs.
	Name string

	// Timeout bounds a single HTTP attempt.
	// Default: 10 seconds
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt.
	// Zero makes exactly one attempt.
	MaxRetries uint64

	// InitialInterval is the first retry backoff interval.
	// Default: 100ms
	InitialInterval time.Duration

	// MaxInterval caps the retry backoff interval.
	// Default: 5 seconds
	MaxInterval time.Duration

	// CircuitBreaker overrides the breaker configuration.
	// If nil, uses DefaultCircuitBreakerConfig.
	CircuitBreaker *CircuitBreakerConfig

	// Registry receives request outcomes and circuit transitions. The client
	// registers itself under Name. Optional.
	Registry *Registry

	// Metrics records request durations. Optional.
	Metrics *ProviderMetrics

	// Logger receives circuit transitions and retries. Optional.
	Logger zerolog.Logger
}

// DefaultClientConfig returns the configuration for unattended callers such as
// the probe worker: three retries with exponential backoff.
func DefaultClientConfig(name string) ClientConfig {
	cb := DefaultCircuitBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		CircuitBreaker:  &cb,
	}
}

// DashboardClientConfig returns the configuration for interactive dashboard
// requests. Requests are never retried automatically; the user retries.
func DashboardClientConfig(name string, timeout time.Duration) ClientConfig {
	cfg := DefaultClientConfig(name)
	cfg.MaxRetries = 0
	if timeout > 0 {
		cfg.Timeout = timeout
	}
	return cfg
}

// Client is an HTTPDoer for one provider. Every attempt goes through the
// provider's circuit breaker; 5xx responses and transport errors count as failures.
type Client struct {
	httpClient     *http.Client
	circuitBreaker *gobreaker.CircuitBreaker[*http.Response]
	config         ClientConfig
}

// NewClient creates a new resilient HTTP client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 100 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 5 * time.Second
	}

	cbCfg := DefaultCircuitBreakerConfig(cfg.Name)
	if cfg.CircuitBreaker != nil {
		cbCfg = *cfg.CircuitBreaker
		cbCfg.Name = cfg.Name
	}
	cbCfg.OnStateChange = stateChangeHook(cfg, cbCfg.OnStateChange)

	c := &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: newCircuitBreaker(cbCfg),
		config:         cfg,
	}

	if cfg.Registry != nil {
		cfg.Registry.register(cfg.Name, c)
	}

	return c
}

func stateChangeHook(cfg ClientConfig, next func(string, gobreaker.State, gobreaker.State)) func(string, gobreaker.State, gobreaker.State) {
	return func(name string, from, to gobreaker.State) {
		event := cfg.Logger.Info()
		if to == gobreaker.StateOpen {
			event = cfg.Logger.Warn()
		}
		event.
			Str("provider", name).
			Str("from", from.String()).
			Str("to", to.String()).
			Msg("provider circuit changed state")

		if cfg.Registry != nil {
			cfg.Registry.recordStateChange(name, to)
		}
		if next != nil {
			next(name, from, to)
		}
	}
}

// Name returns the provider name used for registry and metrics attribution.
func (c *Client) Name() string {
	return c.config.Name
}

// Do executes req with circuit breaker protection and, if configured, retries.
// The request context bounds the whole call including backoff waits.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	return c.DoWithContext(req.Context(), req)
}

// DoWithContext executes an HTTP request with the given context and records the
// outcome in the configured registry and metrics. A 5xx response that survives
// all attempts is returned without error so callers can read the status.
func (c *Client) DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error) {
	start := time.Now()

	var (
		resp *http.Response
		err  error
	)
	if c.config.MaxRetries == 0 {
		resp, err = c.attempt(ctx, req)
	} else {
		resp, err = c.retry(ctx, req)
	}
	if err != nil && resp != nil && isServerError(err) {
		err = nil
	}

	outcome := err
	if outcome == nil && resp.StatusCode >= 500 {
		outcome = &ServerError{StatusCode: resp.StatusCode}
	}

	if c.config.Registry != nil {
		c.config.Registry.recordOutcome(c.config.Name, outcome)
	}
	if c.config.Metrics != nil {
		c.config.Metrics.RecordRequest(c.config.Name, time.Since(start), outcome)
	}

	return resp, err
}

// attempt makes one call through the breaker. It returns the response alongside
// a *ServerError for 5xx so the breaker counts it as a failure.
func (c *Client) attempt(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := c.circuitBreaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // caller closes
		r, err := c.httpClient.Do(req.Clone(ctx))
		if err != nil {
			return nil, err
		}
		if r.StatusCode >= 500 {
			return r, &ServerError{StatusCode: r.StatusCode}
		}
		return r, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, ErrCircuitOpen
	}
	return resp, err
}

func (c *Client) retry(ctx context.Context, req *http.Request) (*http.Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.config.InitialInterval
	bo.MaxInterval = c.config.MaxInterval
	bo.MaxElapsedTime = 0 // bounded by MaxRetries and ctx

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, c.config.MaxRetries), ctx)

	var last *http.Response
	operation := func() error {
		if last != nil {
			// Release the failed 5xx response before trying again.
			last.Body.Close()
			last = nil
		}
		resp, err := c.attempt(ctx, req)
		if errors.Is(err, ErrCircuitOpen) {
			return backoff.Permanent(err)
		}
		last = resp
		return err
	}
	notify := func(err error, wait time.Duration) {
		c.config.Logger.Debug().
			Err(err).
			Str("provider", c.config.Name).
			Dur("wait", wait).
			Msg("retrying provider request")
	}

	err := backoff.RetryNotify(operation, policy, notify)
	if err != nil && last != nil && !isServerError(err) {
		// Cancelled while waiting to retry a 5xx.
		last.Body.Close()
		last = nil
	}
	return last, err
}

// ServerError represents an HTTP 5xx response from a provider.
type ServerError struct {
	StatusCode int
}

func (e *ServerError) Error() string {
	return "server error: " + http.StatusText(e.StatusCode)
}

func isServerError(err error) bool {
	var se *ServerError
	return errors.As(err, &se)
}

// CircuitBreakerState returns the current state of the circuit breaker.
func (c *Client) CircuitBreakerState() gobreaker.State {
	return c.circuitBreaker.State()
}

// CircuitBreakerCounts returns the current counts of the circuit breaker.
func (c *Client) CircuitBreakerCounts() gobreaker.Counts {
	return c.circuitBreaker.Counts()
}
