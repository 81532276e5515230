package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the VAP telemetry server
type Metrics struct {
	// Pipeline metrics
	PipelineDuration prometheus.Histogram
	FramesLoaded     prometheus.Histogram
	FramesRetained   prometheus.Histogram
	SegmentsProduced prometheus.Counter
	MalformedDropped prometheus.Counter
	PipelineErrors   *prometheus.CounterVec
	TopKClamped      prometheus.Counter

	// Audio metrics
	AudioBytesServed prometheus.Counter

	// Session listing metrics
	SessionsListed prometheus.Gauge

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewMetrics creates all metrics and registers them with reg. A nil reg uses
// a fresh registry that also carries the Go and process collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	var gatherer prometheus.Gatherer = prometheus.DefaultGatherer
	if reg == nil {
		r := prometheus.NewRegistry()
		r.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		reg, gatherer = r, r
	} else if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}
	factory := promauto.With(reg)

	return &Metrics{
		// Pipeline metrics
		PipelineDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vap_pipeline_duration_seconds",
			Help:    "Time spent loading an artifact and preparing its payload",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~2s
		}),
		FramesLoaded: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vap_frames_loaded",
			Help:    "Number of frames read from an artifact",
			Buckets: prometheus.ExponentialBuckets(100, 4, 8), // 100 to ~1.6M
		}),
		FramesRetained: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "vap_frames_retained",
			Help:    "Number of frames in a prepared payload",
			Buckets: prometheus.ExponentialBuckets(100, 4, 8),
		}),
		SegmentsProduced: factory.NewCounter(prometheus.CounterOpts{
			Name: "vap_vad_segments_total",
			Help: "Total number of voice activity segments produced",
		}),
		MalformedDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "vap_malformed_records_dropped_total",
			Help: "Total number of artifact records dropped as malformed",
		}),
		PipelineErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vap_pipeline_errors_total",
			Help: "Total number of failed payload preparations",
		}, []string{"kind"}),
		TopKClamped: factory.NewCounter(prometheus.CounterOpts{
			Name: "vap_topk_clamped_total",
			Help: "Total number of requests whose k exceeded the available categories",
		}),

		// Audio metrics
		AudioBytesServed: factory.NewCounter(prometheus.CounterOpts{
			Name: "vap_audio_bytes_served_total",
			Help: "Total size of recordings served",
		}),

		SessionsListed: factory.NewGauge(prometheus.GaugeOpts{
			Name: "vap_sessions",
			Help: "Number of sessions found by the last listing",
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vap_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vap_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "vap_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),

		gatherer: gatherer,
	}
}

// Handler returns the HTTP handler exposing the registered metrics
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// RecordPipeline records a successful payload preparation
func (m *Metrics) RecordPipeline(durationSeconds float64, loaded, retained, segments, dropped int, clamped bool) {
	m.PipelineDuration.Observe(durationSeconds)
	m.FramesLoaded.Observe(float64(loaded))
	m.FramesRetained.Observe(float64(retained))
	m.SegmentsProduced.Add(float64(segments))
	m.MalformedDropped.Add(float64(dropped))
	if clamped {
		m.TopKClamped.Inc()
	}
}

// RecordPipelineError increments the pipeline error counter for kind
func (m *Metrics) RecordPipelineError(kind string) {
	m.PipelineErrors.WithLabelValues(kind).Inc()
}

// RecordAudioServed records the size of a served recording
func (m *Metrics) RecordAudioServed(sizeBytes int64) {
	m.AudioBytesServed.Add(float64(sizeBytes))
}

// SetSessions sets the number of sessions found by the last listing
func (m *Metrics) SetSessions(count int) {
	m.SessionsListed.Set(float64(count))
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
