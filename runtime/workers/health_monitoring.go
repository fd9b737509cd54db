package workers

import (
	"collab-lab/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// HealthMonitoringWorker samples the server process and keeps count of the
// compiler and program processes started by executions. Executions report
// their processes through Track and Untrack.
type HealthMonitoringWorker struct {
	log            *slog.Logger
	metrics        *observability.Metrics
	metricInterval time.Duration
	tracked        chan trackedProcess
	children       map[int32]struct{}
	self           *process.Process
}

type trackedProcess struct {
	pid   int32
	alive bool
}

func NewHealthMonitoringWorker(log *slog.Logger, metrics *observability.Metrics,
	metricInterval time.Duration, bufferSize int) *HealthMonitoringWorker {
	return &HealthMonitoringWorker{
		log:            log,
		metrics:        metrics,
		metricInterval: metricInterval,
		tracked:        make(chan trackedProcess, bufferSize),
		children:       make(map[int32]struct{}),
	}
}

// Track must never block an execution, so updates are dropped when the
// worker is behind; the periodic sweep corrects the count.
func (w *HealthMonitoringWorker) Track(pid int) {
	w.notify(trackedProcess{pid: int32(pid), alive: true})
}

func (w *HealthMonitoringWorker) Untrack(pid int) {
	w.notify(trackedProcess{pid: int32(pid), alive: false})
}

func (w *HealthMonitoringWorker) notify(p trackedProcess) {
	select {
	case w.tracked <- p:
	default:
		w.log.Debug("Process tracker channel full", "pid", p.pid)
	}
}

func (w *HealthMonitoringWorker) Run(ctx context.Context) error {
	if w.self == nil {
		self, err := process.NewProcess(int32(os.Getpid()))
		if err != nil {
			return err
		}
		w.self = self
	}

	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping health monitoring")
			return nil
		case p := <-w.tracked:
			if p.alive {
				w.children[p.pid] = struct{}{}
			} else {
				delete(w.children, p.pid)
			}
			w.metrics.ChildProcesses.Set(float64(len(w.children)))
		case <-ticker.C:
			w.sample()
		}
	}
}

func (w *HealthMonitoringWorker) sample() {
	if mem, err := w.self.MemoryInfo(); err != nil {
		w.log.Debug("Error while reading process memory", "err", err)
	} else {
		w.metrics.ProcessRSS.Set(float64(mem.RSS))
	}

	if cpu, err := w.self.CPUPercent(); err != nil {
		w.log.Debug("Error while reading process cpu usage", "err", err)
	} else {
		w.metrics.ProcessCPU.Set(cpu)
	}

	for pid := range w.children {
		exists, err := process.PidExists(pid)
		if err != nil || !exists {
			delete(w.children, pid)
		}
	}
	w.metrics.ChildProcesses.Set(float64(len(w.children)))
}
