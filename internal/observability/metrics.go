package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the curve ledger.
type Metrics struct {
	// --- Ingestion & engine ---
	EventsApplied  *prometheus.CounterVec
	EventsRejected *prometheus.CounterVec
	EventDuration  *prometheus.HistogramVec
	SequenceGaps   prometheus.Counter
	StaleEvents    *prometheus.CounterVec

	// --- Webhook boundary ---
	WebhookRequests *prometheus.CounterVec

	// --- Persistence ---
	CommitDuration prometheus.Histogram
	PersistErrors  *prometheus.CounterVec
	PersistRetry   prometheus.Counter

	// --- Startup rebuild ---
	RebuildTrades   prometheus.Counter
	RebuildDuration prometheus.Gauge

	// --- Broadcast & outbound publish ---
	BroadcastSent    prometheus.Counter
	BroadcastDropped prometheus.Counter
	BroadcastClients prometheus.Gauge
	PublishDrops     prometheus.Counter

	// --- Channel & backpressure ---
	ChannelSize        *prometheus.GaugeVec
	ChannelCapacity    *prometheus.GaugeVec
	ChannelUtilization *prometheus.GaugeVec

	// --- Domain ---
	TokensLaunched  prometheus.Counter
	TokensGraduated prometheus.Counter

	// --- Query API ---
	QueryRequests *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	latencyBuckets := []float64{
		0.000005, 0.00001, 0.000025, 0.00005,
		0.0001, 0.00025, 0.0005, 0.001, 0.002, 0.005, 0.01,
	}

	commitBuckets := []float64{
		0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25,
	}

	return &Metrics{
		EventsApplied: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curve_events_applied_total",
			Help: "Events successfully committed by the engine",
		}, []string{"event_type"}),

		EventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curve_events_rejected_total",
			Help: "Events rejected (stale, duplicate, malformed, invariant)",
		}, []string{"event_type", "reason"}),

		EventDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curve_event_apply_duration_seconds",
			Help:    "Time from gate check to commit complete",
			Buckets: latencyBuckets,
		}, []string{"event_type"}),

		SequenceGaps: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curve_event_sequence_gap_total",
			Help: "Forward version skips observed at the gate",
		}),

		StaleEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curve_event_stale_total",
			Help: "Redeliveries absorbed by the version gate",
		}, []string{"event_type"}),

		WebhookRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curve_webhook_requests_total",
			Help: "Indexer webhook calls by kind and outcome",
		}, []string{"kind", "outcome"}),

		CommitDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "curve_commit_duration_seconds",
			Help:    "Postgres transaction duration for one event",
			Buckets: commitBuckets,
		}),

		PersistErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curve_persist_errors_total",
			Help: "Persistence errors",
		}, []string{"error_type"}),

		PersistRetry: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curve_persist_retry_total",
			Help: "Persistence retries",
		}),

		RebuildTrades: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curve_rebuild_trades_total",
			Help: "Trades replayed during startup rebuild",
		}),

		RebuildDuration: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "curve_rebuild_duration_seconds",
			Help: "Total startup rebuild time",
		}),

		BroadcastSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curve_broadcast_sent_total",
			Help: "Messages enqueued for websocket clients",
		}),

		BroadcastDropped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curve_broadcast_dropped_total",
			Help: "Messages dropped on full client buffers",
		}),

		BroadcastClients: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "curve_broadcast_clients",
			Help: "Connected websocket clients",
		}),

		PublishDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curve_publish_drops_total",
			Help: "Events dropped due to full NATS publish channel",
		}),

		ChannelSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curve_channel_size",
			Help: "Current items in channel",
		}, []string{"name"}),

		ChannelCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curve_channel_capacity",
			Help: "Channel capacity (constant)",
		}, []string{"name"}),

		ChannelUtilization: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "curve_channel_utilization",
			Help: "Channel size / capacity (0.0-1.0)",
		}, []string{"name"}),

		TokensLaunched: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curve_tokens_launched_total",
			Help: "Tokens created on the curve",
		}),

		TokensGraduated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "curve_tokens_graduated_total",
			Help: "Tokens that reached 100% progress",
		}),

		QueryRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "curve_query_requests_total",
			Help: "Query requests",
		}, []string{"endpoint", "status"}),

		QueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "curve_query_duration_seconds",
			Help:    "Query latency",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"endpoint"}),
	}
}

// SetChannelMetrics updates channel utilization metrics.
func (m *Metrics) SetChannelMetrics(name string, size, capacity int) {
	m.ChannelSize.WithLabelValues(name).Set(float64(size))
	m.ChannelCapacity.WithLabelValues(name).Set(float64(capacity))
	if capacity > 0 {
		m.ChannelUtilization.WithLabelValues(name).Set(float64(size) / float64(capacity))
	}
}
