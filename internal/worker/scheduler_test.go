package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airglance/airglance/internal/worker"
)

func (f *fakeDashboards) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func TestScheduler_RunsImmediatelyAndRepeats(t *testing.T) {
	svc := &fakeDashboards{}
	job := newProbeJob(svc, worker.ProbeConfig{Targets: worker.TargetsFromQueries([]string{"Delhi"})})

	s := worker.NewScheduler(worker.SchedulerConfig{
		Job:            job,
		Interval:       50 * time.Millisecond,
		Logger:         zerolog.Nop(),
		RunImmediately: true,
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return svc.calls() >= 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestScheduler_WaitsForFirstInterval(t *testing.T) {
	svc := &fakeDashboards{}
	job := newProbeJob(svc, worker.ProbeConfig{Targets: worker.TargetsFromQueries([]string{"Delhi"})})

	s := worker.NewScheduler(worker.SchedulerConfig{
		Job:      job,
		Interval: time.Hour,
		Logger:   zerolog.Nop(),
	})
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, svc.calls())
}

func TestScheduler_StopsOnCancelledContext(t *testing.T) {
	svc := &fakeDashboards{}
	job := newProbeJob(svc, worker.ProbeConfig{Targets: worker.TargetsFromQueries([]string{"Delhi"})})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := worker.NewScheduler(worker.SchedulerConfig{
		Job:            job,
		Interval:       20 * time.Millisecond,
		Logger:         zerolog.Nop(),
		RunImmediately: true,
	})
	require.NoError(t, s.Start(ctx))
	defer s.Stop()

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, svc.calls())
}
