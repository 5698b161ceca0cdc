package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	cycles = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "brewmon",
			Subsystem: "monitor",
			Name:      "cycles_total",
			Help:      "Number of completed poll cycles.",
		},
	)
	cyclesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "brewmon",
			Subsystem: "monitor",
			Name:      "cycles_skipped_total",
			Help:      "Number of poll cycles skipped because a previous cycle was still running.",
		},
	)
	readFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brewmon",
			Subsystem: "monitor",
			Name:      "read_failures_total",
			Help:      "Number of failed group status reads.",
		}, []string{"group"},
	)
	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "brewmon",
			Subsystem: "monitor",
			Name:      "cycle_duration_seconds",
			Help:      "Observed duration of a full poll cycle.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	deliveriesStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brewmon",
			Subsystem: "delivery",
			Name:      "started_total",
			Help:      "Number of delivery records opened.",
		}, []string{"trigger"},
	)
	deliveriesCompleted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brewmon",
			Subsystem: "delivery",
			Name:      "completed_total",
			Help:      "Number of delivery records completed.",
		}, []string{"trigger"},
	)
	deliveriesFailed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "brewmon",
			Subsystem: "delivery",
			Name:      "failed_total",
			Help:      "Number of delivery records marked failed.",
		}, []string{"trigger"},
	)
	openDeliveries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "brewmon",
			Subsystem: "delivery",
			Name:      "open",
			Help:      "Open delivery records per group head (1 = open, 0 = idle).",
		}, []string{"group"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{cycles, cyclesSkipped, readFailures, cycleDuration, deliveriesStarted, deliveriesCompleted, deliveriesFailed, openDeliveries}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler serving Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncCycle() {
	if regOK.Load() {
		cycles.Inc()
	}
}

func IncCycleSkipped() {
	if regOK.Load() {
		cyclesSkipped.Inc()
	}
}

func IncReadFailure(group int) {
	if regOK.Load() {
		readFailures.WithLabelValues(strconv.Itoa(group)).Inc()
	}
}

func ObserveCycleDuration(seconds float64) {
	if regOK.Load() {
		cycleDuration.Observe(seconds)
	}
}

func IncDeliveryStarted(trigger string) {
	if regOK.Load() {
		deliveriesStarted.WithLabelValues(trigger).Inc()
	}
}

func IncDeliveryCompleted(trigger string) {
	if regOK.Load() {
		deliveriesCompleted.WithLabelValues(trigger).Inc()
	}
}

func IncDeliveryFailed(trigger string) {
	if regOK.Load() {
		deliveriesFailed.WithLabelValues(trigger).Inc()
	}
}

func SetOpenDelivery(group int, open bool) {
	if regOK.Load() {
		var v float64
		if open {
			v = 1
		}
		openDeliveries.WithLabelValues(strconv.Itoa(group)).Set(v)
	}
}
