// Package metrics provides Prometheus metrics for the process pool.
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smazurov/procpool/internal/events"
)

// PoolStats is the read side of a pool sampled at scrape time.
type PoolStats interface {
	Limit() int
	Size() int
	Running() int
	Queued() int
	Executed() int
	Failed() int
}

var (
	trackedPool atomic.Pointer[PoolStats]

	poolLimit    = poolGauge("limit", "Maximum number of simultaneously launched processes", PoolStats.Limit)
	poolSize     = poolGauge("size", "Number of processes owned by the pool", PoolStats.Size)
	poolRunning  = poolGauge("running", "Number of currently launched processes", PoolStats.Running)
	poolQueued   = poolGauge("queued", "Number of processes waiting for admission", PoolStats.Queued)
	poolExecuted = poolGauge("executed", "Launched processes that reached a terminal state", PoolStats.Executed)
	poolFailed   = poolGauge("failed", "Processes that could not be spawned", PoolStats.Failed)

	processTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procpool",
		Subsystem: "process",
		Name:      "transitions_total",
		Help:      "Process state transitions by target state",
	}, []string{"state"})

	processExits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procpool",
		Subsystem: "process",
		Name:      "exits_total",
		Help:      "Finished processes by outcome",
	}, []string{"outcome"})

	outputLines = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "procpool",
		Subsystem: "process",
		Name:      "output_lines_total",
		Help:      "Output lines read from processes",
	}, []string{"source"})
)

func poolGauge(name, help string, read func(PoolStats) int) prometheus.GaugeFunc {
	return promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "procpool",
		Subsystem: "pool",
		Name:      name,
		Help:      help,
	}, func() float64 {
		stats := trackedPool.Load()
		if stats == nil {
			return 0
		}
		return float64(read(*stats))
	})
}

// TrackPool makes the pool gauges report stats. Passing nil detaches them.
func TrackPool(stats PoolStats) {
	if stats == nil {
		trackedPool.Store(nil)
		return
	}
	trackedPool.Store(&stats)
}

// Observe counts process activity published on bus. The returned function
// unsubscribes.
func Observe(bus *events.Bus) func() {
	unsubscribers := []func(){
		bus.Subscribe(func(e events.ProcessStateChangedEvent) {
			processTransitions.WithLabelValues(e.NewState).Inc()
		}),
		bus.Subscribe(func(e events.ProcessFinishedEvent) {
			outcome := "success"
			if e.ExitCode != 0 {
				outcome = "failure"
			}
			processExits.WithLabelValues(outcome).Inc()
		}),
		bus.Subscribe(func(e events.ProcessOutputEvent) {
			outputLines.WithLabelValues(e.Source).Inc()
		}),
	}
	return func() {
		for _, unsub := range unsubscribers {
			unsub()
		}
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
