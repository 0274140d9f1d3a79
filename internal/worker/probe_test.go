package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airglance/airglance/internal/airquality"
	"github.com/airglance/airglance/internal/worker"
)

var probeNow = time.Date(2026, 10, 19, 8, 30, 0, 0, time.UTC)

// fakeDashboards returns a consistent dashboard unless the query is listed in fail.
type fakeDashboards struct {
	mu      sync.Mutex
	queries []string
	fail    map[string]error
	build   func(query string) *airquality.Dashboard

	inFlight    atomic.Int32
	maxInFlight atomic.Int32
	delay       time.Duration
}

func (f *fakeDashboards) Dashboard(ctx context.Context, sel airquality.Selection) (*airquality.Dashboard, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		cur := f.maxInFlight.Load()
		if n <= cur || f.maxInFlight.CompareAndSwap(cur, n) {
			break
		}
	}

	f.mu.Lock()
	f.queries = append(f.queries, sel.Query)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if err, ok := f.fail[sel.Query]; ok {
		return nil, err
	}
	if f.build != nil {
		return f.build(sel.Query), nil
	}
	return validDashboard(), nil
}

func validDashboard() *airquality.Dashboard {
	category := airquality.Classify(168)
	return &airquality.Dashboard{
		Reading: &airquality.Reading{
			StationID: 1437,
			City:      "Delhi",
			AQI:       168,
			Category:  category,
			Advisory:  category.Advisory(),
		},
		Forecast: []airquality.ForecastDay{
			{Date: "2026-10-20", AQI: 150},
			{Date: "2026-10-21", AQI: 160},
		},
	}
}

func newProbeJob(svc worker.DashboardService, cfg worker.ProbeConfig) *worker.ProbeJob {
	return worker.NewProbeJob(worker.ProbeJobConfig{
		Config:  cfg,
		Logger:  zerolog.Nop(),
		Service: svc,
		Now:     func() time.Time { return probeNow },
	})
}

func TestProbeJob_Run_AllSucceed(t *testing.T) {
	svc := &fakeDashboards{}
	job := newProbeJob(svc, worker.ProbeConfig{
		Targets: worker.TargetsFromQueries([]string{"Delhi", "Mumbai", "Bangalore"}),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 3, result.Successful)
	assert.Zero(t, result.Failed)
	assert.Empty(t, result.Errors)
	assert.True(t, result.Healthy())
	assert.ElementsMatch(t, []string{"Delhi", "Mumbai", "Bangalore"}, svc.queries)
}

func TestProbeJob_Run_RecordsFailures(t *testing.T) {
	svc := &fakeDashboards{fail: map[string]error{
		"Mumbai": fmt.Errorf("%w: timeout", airquality.ErrProviderUnavailable),
	}}
	job := newProbeJob(svc, worker.ProbeConfig{
		Targets: worker.TargetsFromQueries([]string{"Delhi", "Mumbai"}),
	})

	result := job.Run(context.Background())

	assert.Equal(t, 1, result.Successful)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "Mumbai", result.Errors[0].Target)
	assert.Contains(t, result.Errors[0].Error, "timeout")
	assert.True(t, result.Healthy())
}

func TestProbeJob_Run_DetectsInconsistentData(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(d *airquality.Dashboard)
	}{
		{"wrong category", func(d *airquality.Dashboard) { d.Reading.Category = airquality.CategoryGood }},
		{"too many days", func(d *airquality.Dashboard) {
			d.Forecast = []airquality.ForecastDay{
				{Date: "2026-10-20"}, {Date: "2026-10-21"}, {Date: "2026-10-22"}, {Date: "2026-10-23"},
			}
		}},
		{"includes today", func(d *airquality.Dashboard) {
			d.Forecast = []airquality.ForecastDay{{Date: "2026-10-19"}}
		}},
		{"not ascending", func(d *airquality.Dashboard) {
			d.Forecast = []airquality.ForecastDay{{Date: "2026-10-21"}, {Date: "2026-10-20"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeDashboards{build: func(string) *airquality.Dashboard {
				d := validDashboard()
				tt.mutate(d)
				return d
			}}
			job := newProbeJob(svc, worker.ProbeConfig{Targets: worker.TargetsFromQueries([]string{"Delhi"})})

			result := job.Run(context.Background())

			assert.Equal(t, 1, result.Failed)
			require.Len(t, result.Errors, 1)
			assert.Contains(t, result.Errors[0].Error, worker.ErrInconsistentDashboard.Error())
		})
	}
}

func TestProbeJob_Run_BoundedConcurrency(t *testing.T) {
	svc := &fakeDashboards{delay: 20 * time.Millisecond}
	job := newProbeJob(svc, worker.ProbeConfig{
		Targets:     worker.TargetsFromQueries([]string{"a", "b", "c", "d", "e", "f"}),
		Concurrency: 2,
	})

	result := job.Run(context.Background())

	assert.Equal(t, 6, result.Successful)
	assert.LessOrEqual(t, svc.maxInFlight.Load(), int32(2))
}

func TestProbeJob_Run_CancelledContext(t *testing.T) {
	svc := &fakeDashboards{}
	job := newProbeJob(svc, worker.ProbeConfig{
		Targets: worker.TargetsFromQueries([]string{"Delhi", "Mumbai"}),
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := job.Run(ctx)

	assert.Equal(t, 2, result.Total)
	assert.Equal(t, 2, result.Failed)
	assert.False(t, result.Healthy())
}

func TestProbeJob_Run_TimeoutPerTarget(t *testing.T) {
	svc := &fakeDashboards{delay: time.Second}
	job := newProbeJob(svc, worker.ProbeConfig{
		Targets: worker.TargetsFromQueries([]string{"Delhi"}),
		Timeout: 10 * time.Millisecond,
	})

	result := job.Run(context.Background())

	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error, context.DeadlineExceeded.Error())
}

func TestProbeJob_RunOne(t *testing.T) {
	svc := &fakeDashboards{}
	job := newProbeJob(svc, worker.ProbeConfig{
		Targets: worker.TargetsFromQueries([]string{"Delhi", "Mumbai"}),
	})

	result := job.RunOne(context.Background())

	assert.Equal(t, 1, result.Total)
	assert.Equal(t, []string{"Delhi"}, svc.queries)
}

func TestProbeJob_MetricsSnapshot(t *testing.T) {
	svc := &fakeDashboards{fail: map[string]error{"Mumbai": errors.New("down")}}
	job := newProbeJob(svc, worker.ProbeConfig{
		Targets: worker.TargetsFromQueries([]string{"Delhi", "Mumbai"}),
	})

	job.Run(context.Background())
	job.Run(context.Background())

	snapshot := job.MetricsSnapshot()
	assert.Equal(t, int64(2), snapshot["total_runs"])
	assert.Equal(t, int64(2), snapshot["successful_probes"])
	assert.Equal(t, int64(2), snapshot["failed_probes"])
}
