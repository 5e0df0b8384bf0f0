package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the assistant pipeline
type Metrics struct {
	registry *prometheus.Registry

	// Capture metrics
	CaptureSessions prometheus.Counter
	CaptureDropped  *prometheus.CounterVec
	CaptureDuration prometheus.Histogram
	InputOverflows  prometheus.Counter
	InputErrors     prometheus.Counter

	// Queue metrics
	QueueDepth *prometheus.GaugeVec

	// Transcription metrics
	TranscriptionDuration     prometheus.Histogram
	TranscriptionFirstSegment prometheus.Histogram
	TranscriptionFailures     prometheus.Counter
	TranscriptionsEmpty       prometheus.Counter

	// Response metrics
	ResponseDuration  prometheus.Histogram
	ResponseAttempts  prometheus.Counter
	ResponseFallbacks prometheus.Counter

	// Speech metrics
	SpeechDropped    prometheus.Counter
	SpeechFailures   prometheus.Counter
	SpeechDuration   prometheus.Histogram
	UtteranceLatency prometheus.Histogram

	// Monitor API metrics
	HTTPRequests *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on reg. A nil reg gets a fresh registry
// with the Go runtime collectors.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		CaptureSessions: factory.NewCounter(prometheus.CounterOpts{
			Name: "elena_capture_sessions_total",
			Help: "Total number of push-to-talk sessions finalized into jobs",
		}),
		CaptureDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "elena_capture_dropped_total",
			Help: "Total number of capture sessions dropped before transcription",
		}, []string{"reason"}),
		CaptureDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "elena_capture_duration_seconds",
			Help:    "Duration of captured audio per job",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~30s
		}),
		InputOverflows: factory.NewCounter(prometheus.CounterOpts{
			Name: "elena_audio_input_overflows_total",
			Help: "Total number of audio input overflow flags reported by the device",
		}),
		InputErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "elena_audio_input_errors_total",
			Help: "Total number of failed audio input reads",
		}),

		QueueDepth: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "elena_queue_depth",
			Help: "Current number of items waiting in a stage queue",
		}, []string{"queue"}),

		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "elena_transcription_duration_seconds",
			Help:    "Total transcription time per job",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		TranscriptionFirstSegment: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "elena_transcription_first_segment_seconds",
			Help:    "Time from key release to the first transcribed segment",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		TranscriptionFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "elena_transcription_failures_total",
			Help: "Total number of jobs dropped because transcription failed",
		}),
		TranscriptionsEmpty: factory.NewCounter(prometheus.CounterOpts{
			Name: "elena_transcriptions_empty_total",
			Help: "Total number of transcriptions with no text",
		}),

		ResponseDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "elena_response_duration_seconds",
			Help:    "Time spent obtaining a reply, retries included",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~50s
		}),
		ResponseAttempts: factory.NewCounter(prometheus.CounterOpts{
			Name: "elena_response_attempts_total",
			Help: "Total number of calls made to the conversational backend",
		}),
		ResponseFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "elena_response_fallbacks_total",
			Help: "Total number of replies replaced by the fallback message",
		}),

		SpeechDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "elena_speech_dropped_total",
			Help: "Total number of utterances rejected by a full speech queue",
		}),
		SpeechFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "elena_speech_failures_total",
			Help: "Total number of utterances that failed to synthesize",
		}),
		SpeechDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "elena_speech_duration_seconds",
			Help:    "Time spent synthesizing and playing one utterance",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		UtteranceLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "elena_utterance_latency_seconds",
			Help:    "Time from key release until the reply is ready",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "elena_monitor_requests_total",
			Help: "Total number of monitor API requests",
		}, []string{"method", "path", "status_code"}),
	}
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the registry the metrics are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
