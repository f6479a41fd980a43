package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	memoryItems           *prometheus.GaugeVec
	memoryOverflowTotal   *prometheus.CounterVec
	memorySearchDuration  prometheus.Histogram
	memoryPersistDuration prometheus.Histogram
	memoryPersistFailures prometheus.Counter

	capabilityTotal    *prometheus.CounterVec
	capabilityDuration *prometheus.HistogramVec
	capabilityErrors   *prometheus.CounterVec

	agentTurnTotal    *prometheus.CounterVec
	agentTurnDuration *prometheus.HistogramVec
	providerCooldown  *prometheus.GaugeVec
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			memoryItems: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "memory_items",
					Help: "Current memory item count by tier.",
				},
				[]string{"tier"},
			),
			memoryOverflowTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "memory_overflow_total",
					Help: "Short-term overflow evictions by outcome (promoted or discarded).",
				},
				[]string{"outcome"},
			),
			memorySearchDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_search_duration_seconds",
					Help:    "Memory search duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			memoryPersistDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "memory_persist_duration_seconds",
					Help:    "Long-term memory persist duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			memoryPersistFailures: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "memory_persist_failures_total",
					Help: "Total failed long-term memory writes.",
				},
			),
			capabilityTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "capability_execution_total",
					Help: "Total capability executions by kind and status.",
				},
				[]string{"kind", "status"},
			),
			capabilityDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "capability_execution_duration_seconds",
					Help:    "Capability execution duration in seconds by kind.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"kind"},
			),
			capabilityErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "capability_errors_total",
					Help: "Total capability failures by kind.",
				},
				[]string{"kind"},
			),
			agentTurnTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "agent_turn_total",
					Help: "Total agent turns by provider and status.",
				},
				[]string{"provider", "status"},
			),
			agentTurnDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "agent_turn_duration_seconds",
					Help:    "Agent turn duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			providerCooldown: prometheus.NewGaugeVec(
				prometheus.GaugeOpts{
					Name: "provider_cooldown_active",
					Help: "Provider cooldown active state (1 active, 0 inactive).",
				},
				[]string{"provider"},
			),
		}

		prometheus.MustRegister(
			m.memoryItems,
			m.memoryOverflowTotal,
			m.memorySearchDuration,
			m.memoryPersistDuration,
			m.memoryPersistFailures,
			m.capabilityTotal,
			m.capabilityDuration,
			m.capabilityErrors,
			m.agentTurnTotal,
			m.agentTurnDuration,
			m.providerCooldown,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func SetMemoryItems(shortTerm, longTerm int) {
	m := getMetrics()
	m.memoryItems.WithLabelValues("short_term").Set(float64(shortTerm))
	m.memoryItems.WithLabelValues("long_term").Set(float64(longTerm))
}

// RecordMemoryOverflow counts one eviction from short-term memory.
func RecordMemoryOverflow(promoted bool) {
	m := getMetrics()
	outcome := "discarded"
	if promoted {
		outcome = "promoted"
	}
	m.memoryOverflowTotal.WithLabelValues(outcome).Inc()
}

func RecordMemorySearch(duration time.Duration) {
	m := getMetrics()
	m.memorySearchDuration.Observe(duration.Seconds())
}

func RecordMemoryPersist(duration time.Duration, success bool) {
	m := getMetrics()
	m.memoryPersistDuration.Observe(duration.Seconds())
	if !success {
		m.memoryPersistFailures.Inc()
	}
}

func RecordCapabilityExecution(kind string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.capabilityTotal.WithLabelValues(kind, status).Inc()
	m.capabilityDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if !success {
		m.capabilityErrors.WithLabelValues(kind).Inc()
	}
}

func RecordAgentTurn(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.agentTurnTotal.WithLabelValues(provider, status).Inc()
	m.agentTurnDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func SetProviderCooldown(provider string, active bool) {
	m := getMetrics()
	value := 0.0
	if active {
		value = 1.0
	}
	m.providerCooldown.WithLabelValues(provider).Set(value)
}
