package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "triggerd"

var (
	// Dispatcher metrics

	FiringsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "firings_total",
		Help:      "Total trigger firings, by action kind and outcome.",
	}, []string{"kind", "outcome"})

	FiringDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "firing_duration_seconds",
		Help:      "Duration of action execution.",
		Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"kind"})

	FireLag = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "fire_lag_seconds",
		Help:      "Delay between a trigger's next_fire_at and the moment it was claimed.",
		Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	FiringsInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "firings_in_flight",
		Help:      "Number of claimed triggers whose action is running.",
	})

	ClaimConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "claim_conflicts_total",
		Help:      "Claims lost to another dispatcher or a concurrent update.",
	})

	RecordConflictsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "record_conflicts_total",
		Help:      "Firings whose result could not be recorded because the claim was lost.",
	})

	PollDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "poll_duration_seconds",
		Help:      "Time taken to fetch and claim one batch of due triggers.",
		Buckets:   prometheus.DefBuckets,
	})

	// Reaper metrics

	StaleClaimsReleasedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stale_claims_released_total",
		Help:      "Claims released because their holder stopped before recording a result.",
	})

	ReaperCycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "reaper_cycle_duration_seconds",
		Help:      "Time taken for one reaper cycle.",
		Buckets:   prometheus.DefBuckets,
	})

	// Lifecycle

	DispatcherStartTime = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "dispatcher_start_time_seconds",
		Help:      "Unix timestamp when the dispatcher started.",
	})

	DispatcherShutdownsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatcher_shutdowns_total",
		Help:      "Number of times the dispatcher has shut down.",
	})

	// HTTP metrics

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Total HTTP requests.",
	}, []string{"method", "path", "status"})
)

func Register() {
	prometheus.MustRegister(
		FiringsTotal,
		FiringDuration,
		FireLag,
		FiringsInFlight,
		ClaimConflictsTotal,
		RecordConflictsTotal,
		PollDuration,
		StaleClaimsReleasedTotal,
		ReaperCycleDuration,
		DispatcherStartTime,
		DispatcherShutdownsTotal,
		HTTPRequestDuration,
		HTTPRequestsTotal,
	)
}

// NewServer serves /metrics plus any extra handlers (health checks for the
// scheduler process, which has no API router).
func NewServer(addr string, extra map[string]http.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	for path, h := range extra {
		mux.Handle(path, h)
	}
	return &http.Server{Addr: addr, Handler: mux}
}
