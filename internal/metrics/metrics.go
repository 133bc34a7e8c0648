// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "neuroscan"

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method", "path"},
	)

	predictions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "predictions_total",
			Help:      "Successful predictions by label.",
		},
		[]string{"label"},
	)

	predictionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "prediction_failures_total",
			Help:      "Failed predictions by stage.",
		},
		[]string{"stage"},
	)

	predictionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "prediction_duration_seconds",
			Help:      "Time spent decoding, preprocessing and classifying an image.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		},
	)

	modelState = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "inference",
			Name:      "model_state",
			Help:      "Engine state: 0 unloaded, 1 loading, 2 ready, 3 failed.",
		},
	)

	summaries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "narrative",
			Name:      "summaries_total",
			Help:      "Narrative summaries by outcome.",
		},
		[]string{"outcome"},
	)

	logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "logins_total",
			Help:      "Login attempts by principal kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		predictions,
		predictionFailures,
		predictionDuration,
		modelState,
		summaries,
		logins,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// TrackInFlight increments the in-flight gauge and returns its release.
func TrackInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// ObserveHTTP records one completed request. path should be the route
// template, not the raw URL, to bound label cardinality.
func ObserveHTTP(method, path string, status int, duration time.Duration) {
	if path == "" {
		path = "unmatched"
	}
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordPrediction records a successful prediction.
func RecordPrediction(label string, duration time.Duration) {
	predictions.WithLabelValues(label).Inc()
	predictionDuration.Observe(duration.Seconds())
}

// RecordPredictionFailure records a failed prediction.
func RecordPredictionFailure(stage string) {
	predictionFailures.WithLabelValues(stage).Inc()
}

// SetModelState publishes the engine state.
func SetModelState(state int) {
	modelState.Set(float64(state))
}

// RecordSummary counts generated summaries and fallbacks.
func RecordSummary(fallback bool) {
	outcome := "generated"
	if fallback {
		outcome = "fallback"
	}
	summaries.WithLabelValues(outcome).Inc()
}

// RecordLogin counts login attempts. kind is "user" or "admin".
func RecordLogin(kind string, success bool) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	logins.WithLabelValues(kind, outcome).Inc()
}
