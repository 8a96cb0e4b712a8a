// Package metrics exposes Prometheus collectors for the catalog services.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	httpResponseSizeBytes      *prometheus.HistogramVec
	hubFetchTotal              *prometheus.CounterVec
	hubRateLimitDelaySeconds   prometheus.Histogram
	catalogUpsertsTotal        *prometheus.CounterVec
	loaderRunsTotal            *prometheus.CounterVec
	loaderModelsTotal          *prometheus.CounterVec
	audioBytesTotal            *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)

		httpResponseSizeBytes = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_response_size_bytes",
				Help:    "Histogram of HTTP response body sizes, labeled by route.",
				Buckets: prometheus.ExponentialBuckets(256, 8, 8),
			},
			[]string{"route"},
		)

		hubFetchTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_hub_fetch_total",
				Help: "Model-hub requests, labeled by kind (model, readme) and outcome.",
			},
			[]string{"kind", "outcome"},
		)

		hubRateLimitDelaySeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catalog_hub_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the model-hub rate limiter.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5},
			},
		)

		catalogUpsertsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_upserts_total",
				Help: "Catalog upserts performed by the loader, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		loaderRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_loader_runs_total",
				Help: "Loader runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		loaderModelsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_loader_models_total",
				Help: "Models processed by the loader, labeled by status.",
			},
			[]string{"status"},
		)

		audioBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catalog_audio_bytes_total",
				Help: "Audio bytes written to clients, labeled by mode (whole, stream).",
			},
			[]string{"mode"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveHTTPRequest records one finished request. route is the chi route
// pattern, never the raw path, so model IDs do not explode label cardinality.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration, size int64) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
	httpResponseSizeBytes.WithLabelValues(route).Observe(float64(size))
}

// ObserveHubFetch counts a model-hub request.
func ObserveHubFetch(kind, outcome string) {
	hubFetchTotal.WithLabelValues(kind, outcome).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(duration time.Duration) {
	hubRateLimitDelaySeconds.Observe(duration.Seconds())
}

// ObserveUpsert counts a catalog upsert.
func ObserveUpsert(outcome string) {
	catalogUpsertsTotal.WithLabelValues(outcome).Inc()
}

// ObserveLoad records a finished loader run and its per-model totals.
func ObserveLoad(outcome string, succeeded, failed int) {
	loaderRunsTotal.WithLabelValues(outcome).Inc()
	if succeeded > 0 {
		loaderModelsTotal.WithLabelValues("succeeded").Add(float64(succeeded))
	}
	if failed > 0 {
		loaderModelsTotal.WithLabelValues("failed").Add(float64(failed))
	}
}

// ObserveAudioBytes adds n to the audio byte counter for mode.
func ObserveAudioBytes(mode string, n int64) {
	if n > 0 {
		audioBytesTotal.WithLabelValues(mode).Add(float64(n))
	}
}
