// Package metrics provides Prometheus metrics for the control loop, the
// transport and the cloud clients.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "lednode"

var (
	loopIterations = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "iterations_total",
		Help:      "Control loop iterations",
	})

	loopRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "recoveries_total",
		Help:      "Transitions into the recover state, by the state that faulted",
	}, []string{"from"})

	loopFaults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "faults_total",
		Help:      "Errors raised inside the loop, by transience",
	}, []string{"transient"})

	frameDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "loop",
		Name:      "frame_duration_seconds",
		Help:      "Time spent animating and flushing one frame",
		Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1},
	})

	commandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "api",
		Name:      "commands_total",
		Help:      "Commands dispatched by the loop, by route and status",
	}, []string{"route", "status"})

	activeEffect = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "led",
		Name:      "active_effect",
		Help:      "1 for the effect currently shown",
	}, []string{"effect"})

	// Local snapshot for the health endpoint.
	loopStats   LoopStats
	loopStatsMu sync.RWMutex
)

// LoopStats holds the values reported by the health endpoint.
type LoopStats struct {
	Iterations   uint64
	Recoveries   uint64
	LastRecovery time.Time
	LastFault    string
}

// IncLoopIteration counts one completed loop iteration.
func IncLoopIteration() {
	loopIterations.Inc()
	loopStatsMu.Lock()
	loopStats.Iterations++
	loopStatsMu.Unlock()
}

// IncRecovery counts a transition into the recover state.
func IncRecovery(from string, cause error) {
	loopRecoveries.WithLabelValues(from).Inc()
	loopStatsMu.Lock()
	loopStats.Recoveries++
	loopStats.LastRecovery = time.Now()
	if cause != nil {
		loopStats.LastFault = cause.Error()
	}
	loopStatsMu.Unlock()
}

// IncFault counts an error raised inside the loop.
func IncFault(transient bool) {
	loopFaults.WithLabelValues(strconv.FormatBool(transient)).Inc()
}

// ObserveFrame records how long a render step took.
func ObserveFrame(d time.Duration) {
	frameDuration.Observe(d.Seconds())
}

// IncCommand counts a dispatched command.
func IncCommand(route string, status int) {
	commandsTotal.WithLabelValues(route, strconv.Itoa(status)).Inc()
}

// SetActiveEffect marks effect as the one being shown. An empty name clears
// the gauge, which is the case for manual on/off fills.
func SetActiveEffect(effect string) {
	activeEffect.Reset()
	if effect != "" {
		activeEffect.WithLabelValues(effect).Set(1)
	}
}

// GetLoopStats returns a copy of the loop counters.
func GetLoopStats() LoopStats {
	loopStatsMu.RLock()
	defer loopStatsMu.RUnlock()
	return loopStats
}
