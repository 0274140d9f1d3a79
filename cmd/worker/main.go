// Package main provides the entrypoint for the airglance probe worker.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/airglance/airglance/internal/airquality"
	"github.com/airglance/airglance/internal/airquality/openweathermap"
	"github.com/airglance/airglance/internal/airquality/waqi"
	"github.com/airglance/airglance/internal/api/models"
	"github.com/airglance/airglance/internal/api/response"
	"github.com/airglance/airglance/internal/config"
	"github.com/airglance/airglance/internal/provider/resilience"
	"github.com/airglance/airglance/internal/telemetry"
	"github.com/airglance/airglance/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "airglance-worker"

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting airglance worker")

	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, config.ErrConfigMissing) {
			log.Fatal().Err(err).Msg("provider credentials are not configured")
		}
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stopTelemetry, err := telemetry.Start(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Env,
		Enabled:        cfg.Telemetry.Enabled,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRatio:    cfg.Telemetry.SampleRatio,
	}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer stopTelemetry()

	providerMetrics, err := resilience.NewProviderMetrics()
	if err != nil {
		log.Error().Err(err).Msg("failed to initialize provider metrics")
		os.Exit(1) //nolint:gocritic // intentional exit, telemetry cleanup is best-effort
	}

	// Probes run unattended, so transient failures are retried with backoff.
	registry := resilience.NewRegistry()
	newHTTPClient := func(name string) *resilience.Client {
		clientCfg := resilience.DefaultClientConfig(name)
		clientCfg.Timeout = cfg.Providers.Timeout
		clientCfg.Registry = registry
		clientCfg.Metrics = providerMetrics
		clientCfg.Logger = log
		return resilience.NewClient(clientCfg)
	}

	service := airquality.NewService(airquality.ServiceConfig{
		Stations: waqi.NewClient(waqi.ClientConfig{
			Token:      cfg.Providers.WAQIToken,
			BaseURL:    cfg.Providers.WAQIBaseURL,
			HTTPClient: newHTTPClient(waqi.ProviderName),
		}),
		Forecasts: openweathermap.NewClient(openweathermap.ClientConfig{
			APIKey:     cfg.Providers.OWMAPIKey,
			BaseURL:    cfg.Providers.OWMBaseURL,
			HTTPClient: newHTTPClient(openweathermap.ProviderName),
			Logger:     log,
		}),
		Logger: log,
	})

	probeCfg := worker.DefaultProbeConfig()
	probeCfg.Targets = worker.TargetsFromQueries(cfg.Probe.Cities)
	probeJob := worker.NewProbeJob(worker.ProbeJobConfig{
		Config:  probeCfg,
		Logger:  log,
		Service: service,
	})

	scheduler := worker.NewScheduler(worker.SchedulerConfig{
		Job:            probeJob,
		Interval:       cfg.Probe.Interval,
		Logger:         log,
		RunImmediately: true,
	})
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start probe scheduler")
	}
	defer scheduler.Stop()

	if cfg.Probe.PubSubEnabled() {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			ProjectID:        cfg.Probe.PubSubProjectID,
			SubscriptionName: cfg.Probe.PubSubSubscription,
			Dispatcher:       worker.NewDispatcher(probeJob, log),
			Logger:           log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	// Health endpoint for the container platform
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		response.JSON(w, req, http.StatusOK, models.Health{
			Status:  models.HealthStatusOK,
			Time:    models.NewTimestamp(time.Now()),
			Details: probeJob.MetricsSnapshot(),
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down worker")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
