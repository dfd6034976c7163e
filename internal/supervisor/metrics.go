package supervisor

import "github.com/prometheus/client_golang/prometheus"

// Metrics is the set of prometheus collectors the status/diagnostics HTTP
// surface exposes at /metrics: rule-evaluation counts, timer/lockout
// gauges, dedup-cache hit rate, and one heartbeat gauge per post-condition
// check.
type Metrics struct {
	Registry *prometheus.Registry

	RuleEvaluations *prometheus.CounterVec
	RuleFailures    *prometheus.CounterVec
	RuleLatency     *prometheus.HistogramVec

	ActiveTimers   prometheus.Gauge
	ActiveLockouts prometheus.Gauge

	DedupHits   prometheus.Counter
	DedupMisses prometheus.Counter

	HeartbeatChecks *prometheus.GaugeVec
	HeartbeatTicks  prometheus.Counter
}

// NewMetrics registers every collector against a dedicated registry (not
// the global default) so multiple Supervisors in the same test binary
// don't collide.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,
		RuleEvaluations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskguard",
			Name:      "rule_evaluations_total",
			Help:      "Number of times each rule's Evaluate was called.",
		}, []string{"rule"}),
		RuleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "riskguard",
			Name:      "rule_failures_total",
			Help:      "Number of times a rule panicked or returned an error.",
		}, []string{"rule"}),
		RuleLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "riskguard",
			Name:      "rule_evaluation_seconds",
			Help:      "Latency of a single rule's Evaluate call.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"rule"}),
		ActiveTimers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "riskguard",
			Name:      "active_timers",
			Help:      "Number of timers currently scheduled on the Timer Wheel.",
		}),
		ActiveLockouts: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "riskguard",
			Name:      "active_lockouts",
			Help:      "Number of accounts currently locked out.",
		}),
		DedupHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskguard",
			Name:      "dedup_cache_hits_total",
			Help:      "Number of broker events discarded as duplicates by the Event Router.",
		}),
		DedupMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskguard",
			Name:      "dedup_cache_misses_total",
			Help:      "Number of broker events accepted as new by the Event Router.",
		}),
		HeartbeatChecks: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "riskguard",
			Name:      "heartbeat_check_ok",
			Help:      "1 if the named heartbeat check passed on the last tick, 0 otherwise.",
		}, []string{"check"}),
		HeartbeatTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "riskguard",
			Name:      "heartbeat_ticks_total",
			Help:      "Number of heartbeat ticks emitted.",
		}),
	}

	reg.MustRegister(
		m.RuleEvaluations, m.RuleFailures, m.RuleLatency,
		m.ActiveTimers, m.ActiveLockouts,
		m.DedupHits, m.DedupMisses,
		m.HeartbeatChecks, m.HeartbeatTicks,
	)
	return m
}
