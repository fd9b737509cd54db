// Package observability exposes the Prometheus collectors shared by the
// session core, the execution pipeline and the health worker.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "collab"

const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"

	OutcomeSuccess      = "success"
	OutcomeCompileError = "compile_error"
	OutcomeRuntimeError = "runtime_error"
	OutcomeTimeout      = "timeout"
	OutcomeThrottled    = "throttled"
)

type Metrics struct {
	Connections       prometheus.Gauge
	Rooms             prometheus.Gauge
	Arbitration       *prometheus.CounterVec
	Executions        *prometheus.CounterVec
	ExecutionDuration *prometheus.HistogramVec
	ChatMessages      prometheus.Counter
	CensoredMessages  prometheus.Counter
	DroppedEvents     *prometheus.CounterVec
	ProcessRSS        prometheus.Gauge
	ProcessCPU        prometheus.Gauge
	ChildProcesses    prometheus.Gauge
	ChannelLength     *prometheus.GaugeVec
	ChannelCapacity   *prometheus.GaugeVec
}

// NewMetrics registers every collector on reg. Tests pass a fresh
// prometheus.NewRegistry() so collectors never collide.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Connections: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Number of live client connections",
		}),
		Rooms: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rooms",
			Help:      "Number of rooms created since start",
		}),
		Arbitration: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "code_proposals_total",
			Help:      "Code edit proposals by arbitration outcome",
		}, []string{"language", "outcome"}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Code executions by language and outcome",
		}, []string{"language", "outcome"}),
		ExecutionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall time of the write-compile-run pipeline",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"language"}),
		ChatMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_total",
			Help:      "Chat messages relayed to rooms",
		}),
		CensoredMessages: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chat_messages_censored_total",
			Help:      "Chat messages that had at least one word censored",
		}),
		DroppedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_events_total",
			Help:      "Events that could not be delivered to a connection",
		}, []string{"event"}),
		ProcessRSS: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_rss_bytes",
			Help:      "Resident memory of the server process",
		}),
		ProcessCPU: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "process_cpu_percent",
			Help:      "CPU usage of the server process",
		}),
		ChildProcesses: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "execution_processes",
			Help:      "Compiler and program processes currently alive",
		}),
		ChannelLength: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_length",
			Help:      "Items waiting in an internal queue",
		}, []string{"channel"}),
		ChannelCapacity: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "channel_capacity",
			Help:      "Capacity of an internal queue",
		}, []string{"channel"}),
	}
}
