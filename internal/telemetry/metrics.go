package telemetry

import "github.com/prometheus/client_golang/prometheus"

// Metric vars, grounded on wisbric-nightowl/internal/telemetry/metrics.go's
// package-level prometheus.Collector convention registered via All().
var (
	IngressStageOutcomeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raidcore",
			Subsystem: "ingress",
			Name:      "stage_outcome_total",
			Help:      "Total ingress pipeline stage outcomes.",
		},
		[]string{"stage", "outcome"},
	)

	SessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "raidcore",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Current number of active sessions.",
		},
	)

	SessionsExpiredTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raidcore",
			Subsystem: "sessions",
			Name:      "expired_total",
			Help:      "Total number of sessions transitioned to expired by the cleanup sweep.",
		},
	)

	RaidsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "raidcore",
			Subsystem: "raids",
			Name:      "active",
			Help:      "Current number of active raids.",
		},
	)

	RaidActionsVerifiedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "raidcore",
			Subsystem: "raids",
			Name:      "actions_verified_total",
			Help:      "Total verified raid actions by objective type.",
		},
		[]string{"objective_type"},
	)

	BusDeliveryDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "raidcore",
			Subsystem: "bus",
			Name:      "delivery_dropped_total",
			Help:      "Total events dropped because a subscription's delivery queue was full.",
		},
	)

	PoolCheckoutDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "raidcore",
			Subsystem: "storerouter",
			Name:      "checkout_duration_seconds",
			Help:      "Time spent waiting for a pool connection checkout.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		},
		[]string{"pool"},
	)

	PoolDegraded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "raidcore",
			Subsystem: "storerouter",
			Name:      "pool_degraded",
			Help:      "1 if the pool is currently marked degraded, else 0.",
		},
		[]string{"pool"},
	)

	LoopDegraded = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "raidcore",
			Subsystem: "loops",
			Name:      "degraded",
			Help:      "1 if a background loop has failed 3 consecutive times, else 0.",
		},
		[]string{"loop"},
	)
)

// All returns every raidcore-specific collector for registration.
func All() []prometheus.Collector {
	return []prometheus.Collector{
		IngressStageOutcomeTotal,
		SessionsActive,
		SessionsExpiredTotal,
		RaidsActive,
		RaidActionsVerifiedTotal,
		BusDeliveryDroppedTotal,
		PoolCheckoutDuration,
		PoolDegraded,
		LoopDegraded,
	}
}

// NewRegistry builds a Prometheus registry with Go/process collectors plus
// every raidcore collector registered.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector())
	reg.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	for _, c := range All() {
		reg.MustRegister(c)
	}
	return reg
}
