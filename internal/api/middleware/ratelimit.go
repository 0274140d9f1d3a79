package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"

	"github.com/airglance/airglance/internal/api/models"
)

// RateLimit is a per-client request budget for a group of endpoints.
type RateLimit struct {
	// Name labels the budget in responses.
	Name     string
	Requests int
	Window   time.Duration

	// Detail is the message shown to a client that ran out of budget.
	Detail string
}

// Budgets bound the upstream calls each client can cause, since every station
// search, reading and forecast is forwarded to a provider.
var (
	// SuggestRateLimit covers station search. Clients debounce keystrokes, so
	// more than one lookup per second is abuse.
	SuggestRateLimit = RateLimit{
		Name:     "suggest",
		Requests: 60,
		Window:   time.Minute,
		Detail:   "Too many station searches. Please slow down.",
	}

	// ProviderRateLimit covers readings, forecasts and dashboards. A dashboard
	// costs up to three upstream calls.
	ProviderRateLimit = RateLimit{
		Name:     "provider",
		Requests: 30,
		Window:   time.Minute,
		Detail:   "Too many air quality requests. Please try again shortly.",
	}

	// StandardRateLimit covers endpoints that never reach a provider.
	StandardRateLimit = RateLimit{
		Name:     "standard",
		Requests: 100,
		Window:   time.Minute,
		Detail:   "Rate limit exceeded. Please try again later.",
	}
)

// RateLimitByIP enforces limit per client IP. Run chi's RealIP middleware
// first so proxied clients are told apart.
func RateLimitByIP(limit RateLimit) func(http.Handler) http.Handler {
	// httprate does not expose the reset time, so clients are told to wait a window.
	retryAfter := strconv.Itoa(int(limit.Window.Round(time.Second).Seconds()))

	return httprate.Limit(
		limit.Requests,
		limit.Window,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			w.Header().Set("X-RateLimit-Policy", limit.Name)
			writeProblem(w, r, models.KindRateLimited, limit.Detail)
		}),
	)
}
