// Package metrics exposes Prometheus metrics for live voice sessions.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the voice client.
type Metrics struct {
	SessionsTotal   prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionDuration prometheus.Histogram

	FramesSent     prometheus.Counter
	FramesReceived prometheus.Counter
	DecodeFailures prometheus.Counter
	BargeIns       prometheus.Counter

	ChannelErrors prometheus.Counter
}

// New creates and registers all metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vox_sessions_total",
			Help: "Total number of voice sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "vox_sessions_active",
			Help: "Current number of active voice sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "vox_session_duration_seconds",
			Help:    "Voice session duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vox_audio_frames_sent_total",
			Help: "Total captured audio frames sent to the agent",
		}),
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vox_audio_frames_received_total",
			Help: "Total agent audio frames received",
		}),
		DecodeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vox_audio_decode_failures_total",
			Help: "Total inbound audio frames dropped as malformed",
		}),
		BargeIns: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vox_barge_ins_total",
			Help: "Total interruption signals that flushed playback",
		}),
		ChannelErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vox_channel_errors_total",
			Help: "Total channel failures that tore down a session",
		}),
	}
}
