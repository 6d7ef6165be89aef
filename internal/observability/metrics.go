// Package observability provides Prometheus metrics for monitoring the live
// pipeline. The replay driver never touches these; its outputs must depend on
// the dataset alone.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ingestion metrics
	SwapEventsNormalized prometheus.Counter
	EventsDropped        *prometheus.CounterVec
	ReorderBufferSlots   prometheus.Gauge
	HighestSlotSeen      prometheus.Gauge
	WSReconnects         prometheus.Counter
	RPCCallLatency       *prometheus.HistogramVec

	// Detection metrics
	SellEventsDetected    prometheus.Counter
	WindowsOpened         prometheus.Counter
	WindowsClosed         *prometheus.CounterVec
	StabilizationOutcomes *prometheus.CounterVec

	// Signal metrics
	SignalsEmitted   prometheus.Counter
	SignalsConfirmed prometheus.Counter
	SignalsExpired   prometheus.Counter

	// Scoring metrics
	TrackedWallets    prometheus.Gauge
	ClassifiedWallets *prometheus.GaugeVec
	DecayPasses       prometheus.Counter

	// Sandbox metrics
	FillAttempts  prometheus.Counter
	FillFailures  *prometheus.CounterVec
	OpenPositions prometheus.Gauge
	EquityBase    prometheus.Gauge

	// Storage metrics
	StoreErrors     *prometheus.CounterVec
	DBQueryDuration *prometheus.HistogramVec

	// Health metrics
	LastEventTimestamp prometheus.Gauge
	UptimeSeconds      prometheus.Counter
}

// NewMetrics creates a Metrics instance with all metrics registered on the
// default registry.
func NewMetrics(namespace string) *Metrics {
	return NewMetricsWith(prometheus.DefaultRegisterer, namespace)
}

// NewMetricsWith registers all metrics on the given registerer. Tests pass a
// fresh prometheus.NewRegistry() so repeated construction never collides.
func NewMetricsWith(reg prometheus.Registerer, namespace string) *Metrics {
	if namespace == "" {
		namespace = "infra_watch"
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Ingestion metrics
		SwapEventsNormalized: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "swap_events_normalized_total",
			Help:      "Total number of swap events normalized from transactions",
		}),
		EventsDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "events_dropped_total",
			Help:      "Total number of events dropped by reason",
		}, []string{"reason"}),
		ReorderBufferSlots: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "reorder_buffer_slots",
			Help:      "Current number of slots held in the reorder buffer",
		}),
		HighestSlotSeen: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "highest_slot_seen",
			Help:      "Highest Solana slot number seen",
		}),
		WSReconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "ws_reconnects_total",
			Help:      "Total number of WebSocket reconnections",
		}),
		RPCCallLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "solana",
			Name:      "rpc_call_latency_seconds",
			Help:      "Solana RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Detection metrics
		SellEventsDetected: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detection",
			Name:      "sell_events_total",
			Help:      "Total number of large-sell events detected",
		}),
		WindowsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "absorption",
			Name:      "windows_opened_total",
			Help:      "Total number of absorption windows opened",
		}),
		WindowsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "absorption",
			Name:      "windows_closed_total",
			Help:      "Total number of absorption windows closed by result",
		}, []string{"result"}),
		StabilizationOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stabilization",
			Name:      "outcomes_total",
			Help:      "Total number of stabilization validations by outcome",
		}, []string{"outcome"}),

		// Signal metrics
		SignalsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "emitted_total",
			Help:      "Total number of signals emitted",
		}),
		SignalsConfirmed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "confirmed_total",
			Help:      "Total number of signals confirmed by stabilization",
		}),
		SignalsExpired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "signals",
			Name:      "expired_total",
			Help:      "Total number of signals expired without stabilization",
		}),

		// Scoring metrics
		TrackedWallets: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "tracked_wallets",
			Help:      "Current number of wallets tracked by the scorer",
		}),
		ClassifiedWallets: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "classified_wallets",
			Help:      "Current number of wallets by classification",
		}, []string{"classification"}),
		DecayPasses: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scoring",
			Name:      "decay_passes_total",
			Help:      "Total number of confidence decay passes",
		}),

		// Sandbox metrics
		FillAttempts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "fill_attempts_total",
			Help:      "Total number of simulated fill attempts",
		}),
		FillFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "fill_failures_total",
			Help:      "Total number of simulated fill failures by reason",
		}, []string{"reason"}),
		OpenPositions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "open_positions",
			Help:      "Current number of open virtual positions",
		}),
		EquityBase: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sandbox",
			Name:      "equity_base",
			Help:      "Current virtual portfolio equity in base token units",
		}),

		// Storage metrics
		StoreErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total number of storage errors by store",
		}, []string{"store"}),
		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),

		// Health metrics
		LastEventTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_event_timestamp_ms",
			Help:      "Unix timestamp in milliseconds of the last event processed",
		}),
		UptimeSeconds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
