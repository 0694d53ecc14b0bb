package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mocapctl",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"server", "method", "route", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "mocapctl",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"server", "method", "route", "status"},
	)
	streamFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mocapctl",
			Subsystem: "stream",
			Name:      "frames_total",
			Help:      "Frames read from the data service by kind (data, metadata).",
		},
		[]string{"kind"},
	)
	streamBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mocapctl",
			Subsystem: "stream",
			Name:      "bytes_total",
			Help:      "Frame payload bytes read from the data service.",
		},
	)
	streamRecords = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mocapctl",
			Subsystem: "stream",
			Name:      "records_total",
			Help:      "Measurement records decoded.",
		},
	)
	streamLengthMismatch = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mocapctl",
			Subsystem: "stream",
			Name:      "length_mismatch_total",
			Help:      "Data frames whose records disagree with the negotiated dimension.",
		},
	)
	streamFrameDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mocapctl",
			Subsystem: "stream",
			Name:      "read_duration_seconds",
			Help:      "Time blocked waiting for one data frame.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)
	streamSessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mocapctl",
			Subsystem: "stream",
			Name:      "sessions_total",
			Help:      "Finished sessions by outcome (ok, timeout, protocol, transport).",
		},
		[]string{"outcome"},
	)
	streamOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "mocapctl",
			Subsystem: "stream",
			Name:      "open_sessions",
			Help:      "Currently open data stream sessions.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			streamFrames, streamBytes, streamRecords, streamLengthMismatch,
			streamFrameDuration, streamSessions, streamOpen,
		)
	})
}

func RecordHTTPRequest(server, method, route string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(server, method, route, statusLabel).Inc()
	httpDuration.WithLabelValues(server, method, route, statusLabel).Observe(duration.Seconds())
}

func RecordMetadataFrame(size int) {
	RegisterMetrics()
	streamFrames.WithLabelValues("metadata").Inc()
	streamBytes.Add(float64(size))
}

func RecordDataFrame(size, records int, wait time.Duration) {
	RegisterMetrics()
	streamFrames.WithLabelValues("data").Inc()
	streamBytes.Add(float64(size))
	streamRecords.Add(float64(records))
	streamFrameDuration.Observe(wait.Seconds())
}

func RecordLengthMismatch() {
	RegisterMetrics()
	streamLengthMismatch.Inc()
}

func RecordSessionOpened() {
	RegisterMetrics()
	streamOpen.Inc()
}

func RecordSessionClosed(outcome string) {
	RegisterMetrics()
	streamOpen.Dec()
	streamSessions.WithLabelValues(outcome).Inc()
}
