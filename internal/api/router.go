// Package api wires the air quality dashboard HTTP API.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/airglance/airglance/internal/api/handler"
	"github.com/airglance/airglance/internal/api/middleware"
	"github.com/airglance/airglance/internal/api/models"
	"github.com/airglance/airglance/internal/api/response"
	"github.com/airglance/airglance/internal/provider/resilience"
)

const defaultServiceName = "airglance-api"

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string

	// Metrics records per-route HTTP metrics. Optional.
	Metrics *middleware.Metrics

	// Service serves the air quality endpoints.
	Service handler.AirQualityService

	// Registry reports provider health on the ops endpoints. Optional.
	Registry *resilience.Registry

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string

	// RequireTLS rejects requests forwarded over plain HTTP.
	RequireTLS bool
}

// NewRouter builds the /v1 API. Every error, including unknown routes, is an
// application/problem+json body.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.ServiceName == "" {
		cfg.ServiceName = defaultServiceName
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(cfg.ServiceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS(cfg.RequireTLS))

	r.NotFound(func(w http.ResponseWriter, req *http.Request) {
		response.NotFound(w, req, "No endpoint at "+req.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, req *http.Request) {
		response.Problem(w, req, models.KindMethod, req.Method+" is not supported on "+req.URL.Path)
	})

	// One standard budget shared by the cheap endpoints.
	standard := middleware.RateLimitByIP(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		mountServiceInfo(r, handler.NewOpsHandler(cfg.Version, cfg.BuildTime, cfg.Registry), standard)
		mountAirQuality(r, handler.NewAirQualityHandler(cfg.Service, cfg.Logger))
	})

	return r
}

func mountServiceInfo(r chi.Router, ops *handler.OpsHandler, standard func(http.Handler) http.Handler) {
	// Probes are unthrottled so the platform never sees a 429.
	r.Get("/ops/health", ops.HealthCheck)
	r.Get("/ops/ready", ops.ReadinessCheck)
	r.With(standard).Get("/ops/status", ops.SystemStatus)
	r.With(standard).Get("/metadata/categories", handler.NewMetadataHandler().ListCategories)
}

func mountAirQuality(r chi.Router, aq *handler.AirQualityHandler) {
	// Search runs on every keystroke and has its own budget.
	r.With(middleware.RateLimitByIP(middleware.SuggestRateLimit)).Get("/stations", aq.SearchStations)

	r.Group(func(r chi.Router) {
		r.Use(middleware.RateLimitByIP(middleware.ProviderRateLimit))
		r.Get("/stations/{stationId}/reading", aq.GetReading)
		r.Get("/forecast", aq.GetForecast)
		r.Get("/dashboard", aq.GetDashboard)
	})
}
