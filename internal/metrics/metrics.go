package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trading-signalsv1/internal/model"
)

// Metrics holds all Prometheus metrics for the signal engine.
type Metrics struct {
	// Gateway guard
	GatewayRequests *prometheus.CounterVec // labels: op, outcome
	GatewayRetries  prometheus.Counter
	RateLimited     prometheus.Counter
	BreakerState    prometheus.Gauge // 0=closed, 1=open, 2=half-open
	BreakerTrips    prometheus.Counter

	// Scheduler
	CycleDuration    prometheus.Histogram
	PairsFailed      *prometheus.CounterVec // labels: kind
	SignalsPublished prometheus.Gauge
	SimulationDur    prometheus.Histogram

	// Persistence and fan-out
	CandleStoreCommitDur     prometheus.Histogram
	RedisPublishFailures     prometheus.Counter
	RedisCircuitBreakerState prometheus.Gauge
	StreamClients            prometheus.Gauge
	StreamDrops              prometheus.Counter
}

// NewMetrics creates every metric and registers it on reg.
// Tests pass a fresh prometheus.NewRegistry() to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_gateway_requests_total",
			Help: "Market-data calls by operation and outcome",
		}, []string{"op", "outcome"}),
		GatewayRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_gateway_retries_total",
			Help: "Market-data calls retried after an upstream failure",
		}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_gateway_rate_limited_total",
			Help: "Calls rejected locally by the rate limiter",
		}),
		BreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_gateway_circuit_breaker_state",
			Help: "Gateway circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		BreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_gateway_circuit_breaker_trips_total",
			Help: "Times the gateway circuit breaker tripped open",
		}),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_cycle_duration_seconds",
			Help:    "Wall time of one refresh-and-compute cycle",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		PairsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signalengine_pairs_failed_total",
			Help: "Per-pair cycle failures by error kind",
		}, []string{"kind"}),
		SignalsPublished: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_signals_published",
			Help: "Signals in the current snapshot",
		}),
		SimulationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_simulation_duration_seconds",
			Help:    "Monte Carlo assessment latency",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),

		CandleStoreCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signalengine_sqlite_commit_duration_seconds",
			Help:    "SQLite batch commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisPublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_redis_publish_failures_total",
			Help: "Snapshot publications to Redis that failed or were skipped",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signalengine_stream_clients",
			Help: "Connected WebSocket stream clients",
		}),
		StreamDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signalengine_stream_drops_total",
			Help: "Messages dropped for slow WebSocket clients",
		}),
	}

	reg.MustRegister(
		m.GatewayRequests,
		m.GatewayRetries,
		m.RateLimited,
		m.BreakerState,
		m.BreakerTrips,
		m.CycleDuration,
		m.PairsFailed,
		m.SignalsPublished,
		m.SimulationDur,
		m.CandleStoreCommitDur,
		m.RedisPublishFailures,
		m.RedisCircuitBreakerState,
		m.StreamClients,
		m.StreamDrops,
	)
	return m
}

// ObserveBreaker records a breaker transition on the given gauge, counting
// trips into trips when it opens. trips may be nil.
func ObserveBreaker(state prometheus.Gauge, trips prometheus.Counter) func(from, to model.CircuitState) {
	return func(_, to model.CircuitState) {
		state.Set(float64(to))
		if to == model.CircuitOpen && trips != nil {
			trips.Inc()
		}
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
