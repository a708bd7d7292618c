package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	activeSessions  prometheus.Gauge
	sessionsCreated prometheus.Counter
	sessionsExpired prometheus.Counter

	streamTotal       *prometheus.CounterVec
	streamDuration    prometheus.Histogram
	streamFragments   prometheus.Counter
	activeStreams     prometheus.Gauge
	promptTruncations prometheus.Counter
	promptTokens      prometheus.Histogram

	titleTotal    *prometheus.CounterVec
	titleDuration prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current number of sessions held by the store.",
				},
			),
			sessionsCreated: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_created_total",
					Help: "Total sessions created.",
				},
			),
			sessionsExpired: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_expired_total",
					Help: "Total sessions removed by idle expiry.",
				},
			),
			streamTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "stream_total",
					Help: "Total response streams by outcome.",
				},
				[]string{"outcome"},
			),
			streamDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "stream_duration_seconds",
					Help:    "Response stream duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			streamFragments: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "stream_fragments_total",
					Help: "Total fragments received from the generation engine.",
				},
			),
			activeStreams: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_streams",
					Help: "Response streams currently in flight.",
				},
			),
			promptTruncations: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "prompt_truncations_total",
					Help: "Total transcript truncations performed to fit the context budget.",
				},
			),
			promptTokens: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "prompt_tokens",
					Help:    "Rendered prompt size in engine tokens.",
					Buckets: prometheus.ExponentialBuckets(64, 2, 10),
				},
			),
			titleTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "title_generation_total",
					Help: "Total title generations by status.",
				},
				[]string{"status"},
			),
			titleDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "title_generation_duration_seconds",
					Help:    "Title generation duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
		}

		prometheus.MustRegister(
			m.activeSessions,
			m.sessionsCreated,
			m.sessionsExpired,
			m.streamTotal,
			m.streamDuration,
			m.streamFragments,
			m.activeStreams,
			m.promptTruncations,
			m.promptTokens,
			m.titleTotal,
			m.titleDuration,
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

func SetActiveSessions(count int) {
	m := getMetrics()
	m.activeSessions.Set(float64(count))
}

func RecordSessionCreated() {
	getMetrics().sessionsCreated.Inc()
}

func RecordSessionsExpired(count int) {
	getMetrics().sessionsExpired.Add(float64(count))
}

func StreamStarted() {
	getMetrics().activeStreams.Inc()
}

func RecordStream(outcome string, duration time.Duration, fragments int) {
	m := getMetrics()
	m.activeStreams.Dec()
	m.streamTotal.WithLabelValues(outcome).Inc()
	m.streamDuration.Observe(duration.Seconds())
	m.streamFragments.Add(float64(fragments))
}

// RecordPromptBuild records the final prompt size and how many truncations it took.
func RecordPromptBuild(tokens int, truncations int) {
	m := getMetrics()
	m.promptTokens.Observe(float64(tokens))
	m.promptTruncations.Add(float64(truncations))
}

func RecordTitleGeneration(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.titleTotal.WithLabelValues(status).Inc()
	m.titleDuration.Observe(duration.Seconds())
}

// RecordStreamRejected counts a stream turned away before generation started.
func RecordStreamRejected(outcome string) {
	getMetrics().streamTotal.WithLabelValues(outcome).Inc()
}
