// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the deal monitor.
type Metrics struct {
	// Cycle metrics
	CyclesTotal      *prometheus.CounterVec
	CycleDuration    prometheus.Histogram
	RegionsProcessed *prometheus.CounterVec
	StoresProcessed  prometheus.Counter

	// Detection metrics
	EventsDetected       *prometheus.CounterVec
	ListingsSeen         prometheus.Counter
	ObservationsRecorded prometheus.Counter
	ObservationErrors    prometheus.Counter

	// Marketplace metrics
	UpstreamCallLatency *prometheus.HistogramVec
	UpstreamErrors      *prometheus.CounterVec
	CacheEntries        prometheus.Gauge

	// Notification metrics
	LiveConnections    prometheus.Gauge
	ConnectionsDropped prometheus.Counter
	BroadcastsSent     prometheus.Counter
	EmailsEnqueued     prometheus.Counter
	EmailsDropped      prometheus.Counter

	// Health metrics
	LastSuccessfulCycle prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "deal_monitor"
	}

	return &Metrics{
		// Cycle metrics
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "cycles_total",
			Help:      "Total number of polling cycles by status",
		}, []string{"status"}),
		CycleDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "cycle_duration_seconds",
			Help:      "Polling cycle duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		}),
		RegionsProcessed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "regions_processed_total",
			Help:      "Total number of region units by region and status",
		}, []string{"region", "status"}),
		StoresProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "driver",
			Name:      "stores_processed_total",
			Help:      "Total number of stores processed",
		}),

		// Detection metrics
		EventsDetected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "events_total",
			Help:      "Total number of detected listing changes by kind",
		}, []string{"kind"}),
		ListingsSeen: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "detect",
			Name:      "listings_seen_total",
			Help:      "Total number of fetched listings compared",
		}),
		ObservationsRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "observations_recorded_total",
			Help:      "Total number of price observations appended",
		}),
		ObservationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "history",
			Name:      "observation_errors_total",
			Help:      "Total number of failed observation appends",
		}),

		// Marketplace metrics
		UpstreamCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketplace",
			Name:      "call_latency_seconds",
			Help:      "Marketplace API call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		UpstreamErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketplace",
			Name:      "errors_total",
			Help:      "Total number of marketplace API errors by class",
		}, []string{"operation", "class"}),
		CacheEntries: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "marketplace",
			Name:      "cache_entries",
			Help:      "Current number of entries in the read-through cache",
		}),

		// Notification metrics
		LiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "live_connections",
			Help:      "Current number of registered live connections",
		}),
		ConnectionsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "connections_dropped_total",
			Help:      "Total number of live connections dropped for falling behind",
		}),
		BroadcastsSent: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "broadcasts_total",
			Help:      "Total number of payload broadcasts",
		}),
		EmailsEnqueued: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "emails_enqueued_total",
			Help:      "Total number of email batches accepted by the sink",
		}),
		EmailsDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "notify",
			Name:      "emails_dropped_total",
			Help:      "Total number of email batches dropped after retries",
		}),

		// Health metrics
		LastSuccessfulCycle: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of last fully completed cycle",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
