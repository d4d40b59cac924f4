package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Channel metrics
	ChannelsTracked = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_channels_tracked",
			Help: "Number of channels in the tracked list",
		},
	)

	ChannelsLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_channels_live",
			Help: "Number of tracked channels live as of the last cycle",
		},
	)

	// Poll cycle metrics
	PollCyclesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_poll_cycles_total",
			Help: "Total number of poll cycles by result",
		},
		[]string{"result"},
	)

	PollCycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "warden_poll_cycle_duration_seconds",
			Help:    "Time taken by one poll cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PollTriggersSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_poll_triggers_skipped_total",
			Help: "Poll triggers rejected by the spacing floor or in-flight guard",
		},
		[]string{"trigger"},
	)

	SchedulerRunning = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_scheduler_running",
			Help: "Whether the poll scheduler is running (1 = running, 0 = stopped)",
		},
	)

	// Upstream metrics
	StatusRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_status_requests_total",
			Help: "Physical upstream requests by outcome",
		},
		[]string{"outcome"},
	)

	StatusRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_status_request_duration_seconds",
			Help:    "Upstream request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	StatusCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "warden_status_cache_hits_total",
			Help: "Upstream lookups served from the response cache",
		},
	)

	// Switching metrics
	SwitchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_switches_total",
			Help: "Redirects of the managed surface by mode",
		},
		[]string{"mode"},
	)

	FallbackRerollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_fallback_rerolls_total",
			Help: "Fallback reroll attempts by result",
		},
		[]string{"result"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_notifications_total",
			Help: "Newly-live notifications by result",
		},
		[]string{"result"},
	)

	// API metrics
	APIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "warden_api_requests_total",
			Help: "Total number of control API requests by route and status",
		},
		[]string{"route", "status"},
	)

	APIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "warden_api_request_duration_seconds",
			Help:    "Control API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	// Analytics
	SwitchCount = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "warden_analytics_switch_count",
			Help: "Persisted switch counter from analytics",
		},
	)
)

func init() {
	// Register all metrics
	prometheus.MustRegister(ChannelsTracked)
	prometheus.MustRegister(ChannelsLive)
	prometheus.MustRegister(PollCyclesTotal)
	prometheus.MustRegister(PollCycleDuration)
	prometheus.MustRegister(PollTriggersSkipped)
	prometheus.MustRegister(SchedulerRunning)
	prometheus.MustRegister(StatusRequestsTotal)
	prometheus.MustRegister(StatusRequestDuration)
	prometheus.MustRegister(StatusCacheHits)
	prometheus.MustRegister(SwitchesTotal)
	prometheus.MustRegister(FallbackRerollsTotal)
	prometheus.MustRegister(NotificationsTotal)
	prometheus.MustRegister(APIRequestsTotal)
	prometheus.MustRegister(APIRequestDuration)
	prometheus.MustRegister(SwitchCount)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}
