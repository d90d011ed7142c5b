package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FetchRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collector", Name: "fetch_requests_total", Help: "Marketplace page fetch attempts."},
		[]string{"source", "status"},
	)
	FetchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "collector", Name: "fetch_request_duration_seconds",
			Help:    "Marketplace page fetch duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)
	FetchRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collector", Name: "fetch_retries_total", Help: "Page fetches retried after a transient failure."},
		[]string{"source"},
	)
	PagesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collector", Name: "pages_fetched_total", Help: "Pages successfully fetched."},
		[]string{"source"},
	)
	ReviewsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collector", Name: "reviews_written_total", Help: "Reviews appended to a sink."},
		[]string{"source", "sink"},
	)
	MalformedEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collector", Name: "malformed_entries_total", Help: "Raw entries skipped as malformed."},
		[]string{"source"},
	)
	DuplicateEntries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collector", Name: "duplicate_entries_total", Help: "Entries skipped by in-run dedup."},
		[]string{"source"},
	)
	SinkFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collector", Name: "sink_flushes_total", Help: "Explicit sink flushes."},
		[]string{"sink"},
	)
	CheckpointEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collector", Name: "checkpoint_events_total", Help: "Checkpoint hits/misses/saves/clears."},
		[]string{"event"}, // event: hit|miss|save|clear
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: "collector", Name: "http_requests_total", Help: "Status server requests."},
		[]string{"route", "method", "status"},
	)
	HTTPLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "collector", Name: "http_request_duration_seconds",
			Help:    "Status server request duration seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

func InitRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		FetchRequests, FetchLatency, FetchRetries, PagesFetched,
		ReviewsWritten, MalformedEntries, DuplicateEntries, SinkFlushes,
		CheckpointEvents, HTTPRequests, HTTPLatency,
	)
	return reg
}

func MetricsHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

func ObserveFetch(source string, status int, dur time.Duration) {
	FetchRequests.WithLabelValues(source, strconv.Itoa(status)).Inc()
	FetchLatency.WithLabelValues(source).Observe(dur.Seconds())
}

func ObserveRetry(source string) { FetchRetries.WithLabelValues(source).Inc() }

func ObservePage(source string) { PagesFetched.WithLabelValues(source).Inc() }

func ObserveWritten(source, sink string) { ReviewsWritten.WithLabelValues(source, sink).Inc() }

func ObserveMalformed(source string) { MalformedEntries.WithLabelValues(source).Inc() }

func ObserveDuplicate(source string) { DuplicateEntries.WithLabelValues(source).Inc() }

func ObserveFlush(sink string) { SinkFlushes.WithLabelValues(sink).Inc() }

func ObserveCheckpoint(event string) { // event: hit|miss|save|clear
	CheckpointEvents.WithLabelValues(event).Inc()
}

func ObserveHTTP(route, method string, status int, dur time.Duration) {
	HTTPRequests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	HTTPLatency.WithLabelValues(route).Observe(dur.Seconds())
}
