package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// DefaultProbeInterval is how often probes run when no interval is configured.
const DefaultProbeInterval = 15 * time.Minute

// SchedulerConfig holds configuration for the probe scheduler.
type SchedulerConfig struct {
	Job      *ProbeJob
	Interval time.Duration
	Logger   zerolog.Logger

	// RunImmediately runs the first probe at start instead of after one interval.
	RunImmediately bool
}

// Scheduler runs the probe job periodically. Runs never overlap: a tick that
// arrives while a probe is still running is skipped.
type Scheduler struct {
	scheduler      *gocron.Scheduler
	job            *ProbeJob
	interval       time.Duration
	runImmediately bool
	logger         zerolog.Logger
}

// NewScheduler creates a new Scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}

	return &Scheduler{
		scheduler:      gocron.NewScheduler(time.UTC),
		job:            cfg.Job,
		interval:       interval,
		runImmediately: cfg.RunImmediately,
		logger:         cfg.Logger,
	}
}

// Start schedules the probe job and starts the underlying scheduler. Probes run
// with ctx, so cancelling it aborts a run in progress.
func (s *Scheduler) Start(ctx context.Context) error {
	job := s.scheduler.Every(s.interval).SingletonMode()
	if !s.runImmediately {
		job = job.WaitForSchedule()
	}

	_, err := job.Do(func() {
		if ctx.Err() != nil {
			return
		}
		result := s.job.Run(ctx)
		if !result.Healthy() {
			s.logger.Warn().
				Int("failed", result.Failed).
				Int("total", result.Total).
				Msg("scheduled probe unhealthy")
		}
	})
	if err != nil {
		return fmt.Errorf("scheduling probe job: %w", err)
	}

	s.logger.Info().
		Dur("interval", s.interval).
		Msg("probe scheduler started")

	s.scheduler.StartAsync()
	return nil
}

// Stop stops the scheduler and cancels any future runs.
func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
