// Package main provides the entrypoint for the airglance API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/airglance/airglance/internal/airquality"
	"github.com/airglance/airglance/internal/airquality/openweathermap"
	"github.com/airglance/airglance/internal/airquality/waqi"
	"github.com/airglance/airglance/internal/api"
	"github.com/airglance/airglance/internal/api/middleware"
	"github.com/airglance/airglance/internal/config"
	"github.com/airglance/airglance/internal/provider/resilience"
	"github.com/airglance/airglance/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "airglance-api"

func main() {
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	if err := run(log); err != nil {
		log.Error().Err(err).Msg("api exited")
		os.Exit(1)
	}
}

func run(log zerolog.Logger) error {
	log.Info().Str("build_time", BuildTime).Msg("starting airglance API")

	cfg, err := config.Load()
	if errors.Is(err, config.ErrConfigMissing) {
		return fmt.Errorf("provider credentials are not configured: %w", err)
	}
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	stopTelemetry, err := telemetry.Start(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		Enabled:        cfg.Telemetry.Enabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}, log)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer stopTelemetry()

	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		return fmt.Errorf("http metrics: %w", err)
	}
	providerMetrics, err := resilience.NewProviderMetrics()
	if err != nil {
		return fmt.Errorf("provider metrics: %w", err)
	}

	// Dashboard traffic is never retried here; the user retries from the UI.
	registry := resilience.NewRegistry()
	providerClient := func(name string) *resilience.Client {
		c := resilience.DashboardClientConfig(name, cfg.Providers.Timeout)
		c.Registry = registry
		c.Metrics = providerMetrics
		c.Logger = log
		return resilience.NewClient(c)
	}

	service := airquality.NewService(airquality.ServiceConfig{
		Stations: waqi.NewClient(waqi.ClientConfig{
			Token:      cfg.Providers.WAQIToken,
			BaseURL:    cfg.Providers.WAQIBaseURL,
			HTTPClient: providerClient(waqi.ProviderName),
		}),
		Forecasts: openweathermap.NewClient(openweathermap.ClientConfig{
			APIKey:     cfg.Providers.OWMAPIKey,
			BaseURL:    cfg.Providers.OWMBaseURL,
			HTTPClient: providerClient(openweathermap.ProviderName),
			Logger:     log,
		}),
		Logger: log,
	})

	server := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: api.NewRouter(api.RouterConfig{
			Version:     Version,
			BuildTime:   BuildTime,
			Logger:      log,
			ServiceName: serviceName,
			Metrics:     httpMetrics,
			Service:     service,
			Registry:    registry,
			CORSOrigins: cfg.CORSAllowedOrigins,
			RequireTLS:  cfg.RequireTLS,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// A dashboard makes a station call then a forecast call.
		WriteTimeout: 2*cfg.Providers.Timeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Str("env", cfg.Env).
			Strs("providers", registry.Names()).
			Dur("provider_timeout", cfg.Providers.Timeout).
			Msg("server listening")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}

	log.Info().Msg("server stopped")
	return nil
}
