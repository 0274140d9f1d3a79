package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/airglance/airglance/internal/airquality"
)

// ErrInconsistentDashboard is returned when a probe receives data that breaks
// the dashboard's guarantees, e.g. a category that does not match the AQI.
var ErrInconsistentDashboard = errors.New("inconsistent dashboard")

// DashboardService builds dashboards. *airquality.Service implements it.
type DashboardService interface {
	Dashboard(ctx context.Context, sel airquality.Selection) (*airquality.Dashboard, error)
}

// ProbeJob resolves each target, fetches its reading and forecast, and checks
// the result. Nothing is persisted; outcomes are logged and counted.
type ProbeJob struct {
	config  ProbeConfig
	logger  zerolog.Logger
	service DashboardService
	now     func() time.Time

	metrics *probeMetrics
}

// probeMetrics tracks probe job statistics.
type probeMetrics struct {
	mu sync.RWMutex

	TotalRuns        int64
	SuccessfulProbes int64
	FailedProbes     int64

	LastRunAt       time.Time
	LastRunDuration time.Duration
}

// ProbeJobConfig holds configuration for creating a ProbeJob.
type ProbeJobConfig struct {
	Config  ProbeConfig
	Logger  zerolog.Logger
	Service DashboardService

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// NewProbeJob creates a new probe job.
func NewProbeJob(cfg ProbeJobConfig) *ProbeJob {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &ProbeJob{
		config:  cfg.Config.withDefaults(),
		logger:  cfg.Logger,
		service: cfg.Service,
		now:     now,
		metrics: &probeMetrics{},
	}
}

// ProbeResult contains the result of a probe run.
type ProbeResult struct {
	StartTime  time.Time
	EndTime    time.Time
	Duration   time.Duration
	Total      int
	Successful int
	Failed     int
	Errors     []ProbeError
}

// ProbeError records a failed target.
type ProbeError struct {
	Target string
	Error  string
}

// Healthy reports whether at least as many probes succeeded as failed.
func (r *ProbeResult) Healthy() bool {
	return r.Failed <= r.Successful
}

// Run probes every configured target with bounded concurrency.
func (j *ProbeJob) Run(ctx context.Context) *ProbeResult {
	return j.run(ctx, j.config.Targets)
}

// RunTargets probes the given targets instead of the configured ones.
func (j *ProbeJob) RunTargets(ctx context.Context, targets []ProbeTarget) *ProbeResult {
	return j.run(ctx, targets)
}

// RunOne probes a single target, for health checks.
func (j *ProbeJob) RunOne(ctx context.Context) *ProbeResult {
	return j.run(ctx, j.config.Targets[:1])
}

func (j *ProbeJob) run(ctx context.Context, targets []ProbeTarget) *ProbeResult {
	startTime := time.Now()
	result := &ProbeResult{
		StartTime: startTime,
		Total:     len(targets),
	}

	j.logger.Info().
		Int("targets", result.Total).
		Int("concurrency", j.config.Concurrency).
		Msg("starting provider probe job")

	targetsChan := make(chan ProbeTarget, len(targets))
	resultsChan := make(chan targetResult, len(targets))

	var wg sync.WaitGroup
	for i := 0; i < j.config.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			j.probeWorker(ctx, targetsChan, resultsChan)
		}()
	}

	for _, t := range targets {
		targetsChan <- t
	}
	close(targetsChan)

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	for tr := range resultsChan {
		if tr.err == nil {
			result.Successful++
			continue
		}
		result.Failed++
		result.Errors = append(result.Errors, ProbeError{Target: tr.target.Query, Error: tr.err.Error()})
	}

	// Targets skipped after cancellation count as failures.
	if skipped := result.Total - result.Successful - result.Failed; skipped > 0 {
		result.Failed += skipped
		result.Errors = append(result.Errors, ProbeError{Target: "*", Error: fmt.Sprintf("%d targets skipped: %v", skipped, ctx.Err())})
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("successful", result.Successful).
		Int("failed", result.Failed).
		Msg("provider probe job completed")

	return result
}

type targetResult struct {
	target ProbeTarget
	err    error
}

func (j *ProbeJob) probeWorker(ctx context.Context, targets <-chan ProbeTarget, results chan<- targetResult) {
	for target := range targets {
		select {
		case <-ctx.Done():
			return
		default:
			results <- targetResult{target: target, err: j.probe(ctx, target)}
		}
	}
}

func (j *ProbeJob) probe(ctx context.Context, target ProbeTarget) error {
	probeCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	dashboard, err := j.service.Dashboard(probeCtx, airquality.Selection{Query: target.Query})
	if err != nil {
		j.logger.Warn().
			Err(err).
			Str("target", target.Query).
			Msg("probe failed")
		return err
	}

	if err := checkDashboard(dashboard, j.now()); err != nil {
		j.logger.Error().
			Err(err).
			Str("target", target.Query).
			Int("station_id", dashboard.Reading.StationID).
			Msg("probe returned inconsistent data")
		return err
	}

	j.logger.Debug().
		Str("target", target.Query).
		Int("station_id", dashboard.Reading.StationID).
		Int("aqi", dashboard.Reading.AQI).
		Int("forecast_days", len(dashboard.Forecast)).
		Msg("probe succeeded")
	return nil
}

// checkDashboard verifies the category matches the AQI and the forecast holds at
// most MaxForecastDays strictly future days in ascending order.
func checkDashboard(d *airquality.Dashboard, now time.Time) error {
	r := d.Reading
	if want := airquality.Classify(r.AQI); r.Category != want {
		return fmt.Errorf("%w: AQI %d classified as %s, want %s", ErrInconsistentDashboard, r.AQI, r.Category, want)
	}

	if len(d.Forecast) > airquality.MaxForecastDays {
		return fmt.Errorf("%w: %d forecast days", ErrInconsistentDashboard, len(d.Forecast))
	}

	prev := now.UTC().Format("2006-01-02")
	for _, day := range d.Forecast {
		if day.Date <= prev {
			return fmt.Errorf("%w: forecast day %s not after %s", ErrInconsistentDashboard, day.Date, prev)
		}
		prev = day.Date
	}
	return nil
}

func (j *ProbeJob) updateMetrics(result *ProbeResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	j.metrics.SuccessfulProbes += int64(result.Successful)
	j.metrics.FailedProbes += int64(result.Failed)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *ProbeJob) MetricsSnapshot() map[string]interface{} {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return map[string]interface{}{
		"total_runs":        j.metrics.TotalRuns,
		"successful_probes": j.metrics.SuccessfulProbes,
		"failed_probes":     j.metrics.FailedProbes,
		"last_run_at":       j.metrics.LastRunAt,
		"last_run_duration": j.metrics.LastRunDuration.String(),
	}
}
