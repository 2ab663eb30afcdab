// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mint outcomes.
const (
	OutcomeConfirmed   = "confirmed"
	OutcomeRejected    = "rejected"
	OutcomeFailed      = "failed"
	OutcomeUnavailable = "unavailable"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Mint metrics
	MintAttempts       *prometheus.CounterVec
	MintDuration       prometheus.Histogram
	MintEventsReceived prometheus.Counter
	LastMintEvent      prometheus.Gauge

	// Gallery metrics
	GalleryReloadDuration prometheus.Histogram
	GallerySize           prometheus.Gauge

	// Gateway metrics
	GatewayCallLatency  *prometheus.HistogramVec
	GatewayCallErrors   *prometheus.CounterVec
	SenderCacheLookups  *prometheus.CounterVec
	ActiveSubscriptions prometheus.Gauge

	// Session metrics
	RefreshFailures *prometheus.CounterVec
	NoticesEmitted  *prometheus.CounterVec
	UIClients       prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "epics"
	}

	return &Metrics{
		// Mint metrics
		MintAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "attempts_total",
			Help:      "Total number of mint attempts by outcome",
		}, []string{"outcome"}),
		MintDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "duration_seconds",
			Help:      "Time from signature request to confirmation",
			Buckets:   []float64{1, 5, 10, 15, 30, 60, 120, 300},
		}),
		MintEventsReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "events_received_total",
			Help:      "Total number of EpicMinted events received live",
		}),
		LastMintEvent: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mint",
			Name:      "last_event_timestamp",
			Help:      "Unix timestamp of the last live mint event",
		}),

		// Gallery metrics
		GalleryReloadDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gallery",
			Name:      "reload_duration_seconds",
			Help:      "Gallery reload duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		GallerySize: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gallery",
			Name:      "tokens",
			Help:      "Number of tokens owned by the connected account",
		}),

		// Gateway metrics
		GatewayCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_latency_seconds",
			Help:      "Wallet and node call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		GatewayCallErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "call_errors_total",
			Help:      "Total number of gateway call errors by kind",
		}, []string{"method", "kind"}),
		SenderCacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "sender_cache_lookups_total",
			Help:      "Sender cache lookups by result",
		}, []string{"result"}),
		ActiveSubscriptions: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "gateway",
			Name:      "active_subscriptions",
			Help:      "Number of live mint event subscriptions",
		}),

		// Session metrics
		RefreshFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "refresh_failures_total",
			Help:      "Total number of non-fatal refresh failures by operation",
		}, []string{"operation"}),
		NoticesEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "notices_total",
			Help:      "Total number of user notices by kind",
		}, []string{"kind"}),
		UIClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "web",
			Name:      "clients",
			Help:      "Number of connected page websocket clients",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordMintAttempt records a finished mint attempt.
func RecordMintAttempt(outcome string, elapsed time.Duration) {
	DefaultMetrics.MintAttempts.WithLabelValues(outcome).Inc()
	if outcome == OutcomeConfirmed {
		DefaultMetrics.MintDuration.Observe(elapsed.Seconds())
	}
}

// RecordMintEvent records a live EpicMinted event.
func RecordMintEvent() {
	DefaultMetrics.MintEventsReceived.Inc()
	DefaultMetrics.LastMintEvent.Set(float64(time.Now().Unix()))
}

// RecordGalleryReload records a gallery reload and the resulting size.
func RecordGalleryReload(seconds float64, tokens int) {
	DefaultMetrics.GalleryReloadDuration.Observe(seconds)
	DefaultMetrics.GallerySize.Set(float64(tokens))
}

// RecordGatewayCall records gateway call latency and, on failure, the error kind.
func RecordGatewayCall(method string, seconds float64, errKind string) {
	DefaultMetrics.GatewayCallLatency.WithLabelValues(method).Observe(seconds)
	if errKind != "" {
		DefaultMetrics.GatewayCallErrors.WithLabelValues(method, errKind).Inc()
	}
}

// RecordSenderCache records a sender cache hit or miss.
func RecordSenderCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	DefaultMetrics.SenderCacheLookups.WithLabelValues(result).Inc()
}

// UpdateActiveSubscriptions adjusts the live subscription gauge by delta.
func UpdateActiveSubscriptions(delta int) {
	DefaultMetrics.ActiveSubscriptions.Add(float64(delta))
}

// RecordRefreshFailure records a non-fatal refresh failure.
func RecordRefreshFailure(operation string) {
	DefaultMetrics.RefreshFailures.WithLabelValues(operation).Inc()
}

// RecordNotice records a user notice.
func RecordNotice(kind string) {
	DefaultMetrics.NoticesEmitted.WithLabelValues(kind).Inc()
}

// UpdateUIClients adjusts the page client gauge by delta.
func UpdateUIClients(delta int) {
	DefaultMetrics.UIClients.Add(float64(delta))
}
