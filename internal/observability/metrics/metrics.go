// Package metrics provides Prometheus metrics for the practice sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speakwell"

// Metrics holds all Prometheus metrics for the client.
type Metrics struct {
	// Recording metrics
	RecordingsStarted   prometheus.Counter
	RecordingsCompleted prometheus.Counter
	RecordingsFailed    *prometheus.CounterVec
	UploadLatency       prometheus.Histogram
	UploadBytes         prometheus.Histogram
	PersistenceFailures prometheus.Counter
	SpeechFailures      prometheus.Counter

	// Streaming metrics
	StreamsTotal    prometheus.Counter
	StreamsActive   prometheus.Gauge
	StreamsFailed   *prometheus.CounterVec
	StreamDuration  prometheus.Histogram
	FramesSent      prometheus.Counter
	FramesReceived  prometheus.Counter
	FrameRoundTrip  prometheus.Histogram
	ControlFailures *prometheus.CounterVec

	// Outcome publish metrics
	PublishTotal   *prometheus.CounterVec
	PublishErrors  *prometheus.CounterVec
	PublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates and registers all metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordingsStarted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_started_total",
			Help:      "Total number of recording attempts started",
		}),
		RecordingsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_completed_total",
			Help:      "Total number of recordings that produced a result",
		}),
		RecordingsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_failed_total",
			Help:      "Total number of recording attempts that ended in error",
		}, []string{"code"}),
		UploadLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_latency_seconds",
			Help:      "Latency of audio submissions in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),
		UploadBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upload_bytes",
			Help:      "Size of uploaded recordings in bytes",
			Buckets:   prometheus.ExponentialBuckets(4096, 4, 8),
		}),
		PersistenceFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_failures_total",
			Help:      "Total number of result persistence failures",
		}),
		SpeechFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speech_failures_total",
			Help:      "Total number of feedback speech failures",
		}),

		StreamsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of physio streams opened",
		}),
		StreamsActive: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently open physio streams",
		}),
		StreamsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_failed_total",
			Help:      "Total number of physio streams that ended in error",
		}, []string{"reason"}),
		StreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of physio streams in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),
		FramesSent: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_sent_total",
			Help:      "Total number of camera frames sent",
		}),
		FramesReceived: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_received_total",
			Help:      "Total number of annotated frames received",
		}),
		FrameRoundTrip: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_round_trip_seconds",
			Help:      "Time from sending a frame to receiving its annotated reply",
			Buckets:   []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		ControlFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "control_failures_total",
			Help:      "Total number of failed start/stop control calls",
		}, []string{"call"}),

		PublishTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_total",
			Help:      "Total number of outcome events published",
		}, []string{"topic", "event_type"}),
		PublishErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_errors_total",
			Help:      "Total number of outcome publish errors",
		}, []string{"topic", "event_type"}),
		PublishLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "publish_latency_seconds",
			Help:      "Outcome publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordRecordingStart records a new recording attempt.
func (m *Metrics) RecordRecordingStart() {
	m.RecordingsStarted.Inc()
}

// RecordUpload records one audio submission.
func (m *Metrics) RecordUpload(bytes int, latencySeconds float64) {
	m.UploadBytes.Observe(float64(bytes))
	m.UploadLatency.Observe(latencySeconds)
}

// RecordRecordingResult records the end of a recording attempt.
func (m *Metrics) RecordRecordingResult(code string) {
	if code == "" {
		m.RecordingsCompleted.Inc()
		return
	}
	m.RecordingsFailed.WithLabelValues(code).Inc()
}

// RecordPersistenceFailure records a failed result save.
func (m *Metrics) RecordPersistenceFailure() {
	m.PersistenceFailures.Inc()
}

// RecordSpeechFailure records a failed feedback utterance.
func (m *Metrics) RecordSpeechFailure() {
	m.SpeechFailures.Inc()
}

// RecordStreamStart records a physio stream opening.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a physio stream closing.
func (m *Metrics) RecordStreamEnd(failureReason string, durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
	if failureReason != "" {
		m.StreamsFailed.WithLabelValues(failureReason).Inc()
	}
}

// RecordFrameSent records one outgoing frame.
func (m *Metrics) RecordFrameSent() {
	m.FramesSent.Inc()
}

// RecordFrameReceived records one reply frame and its round trip.
func (m *Metrics) RecordFrameReceived(roundTripSeconds float64) {
	m.FramesReceived.Inc()
	m.FrameRoundTrip.Observe(roundTripSeconds)
}

// RecordControlFailure records a failed session control call.
func (m *Metrics) RecordControlFailure(call string) {
	m.ControlFailures.WithLabelValues(call).Inc()
}

// RecordPublish records an outcome publish attempt.
func (m *Metrics) RecordPublish(topic, eventType string, err error, latencySeconds float64) {
	m.PublishTotal.WithLabelValues(topic, eventType).Inc()
	m.PublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.PublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}
