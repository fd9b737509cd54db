package workers

import (
	"collab-lab/observability"
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestHealthMonitoringWorker_SamplesSelf(t *testing.T) {
	req := require.New(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	worker := NewHealthMonitoringWorker(slog.Default(), metrics, 20*time.Millisecond, 8)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	req.Eventually(func() bool {
		return testutil.ToFloat64(metrics.ProcessRSS) > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	req.NoError(<-done)
}

func TestHealthMonitoringWorker_TracksChildren(t *testing.T) {
	req := require.New(t)
	metrics := observability.NewMetrics(prometheus.NewRegistry())
	worker := NewHealthMonitoringWorker(slog.Default(), metrics, time.Hour, 8)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = worker.Run(ctx) }()

	// Given a live pid is tracked
	worker.Track(os.Getpid())
	req.Eventually(func() bool {
		return testutil.ToFloat64(metrics.ChildProcesses) == 1
	}, time.Second, 10*time.Millisecond)

	// When it is untracked
	worker.Untrack(os.Getpid())

	// Then the gauge goes back to zero
	req.Eventually(func() bool {
		return testutil.ToFloat64(metrics.ChildProcesses) == 0
	}, time.Second, 10*time.Millisecond)
}
