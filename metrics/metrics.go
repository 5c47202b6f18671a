// Package metrics exposes Prometheus collectors for streaming sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespaceEngineStream = "enginestream"

// Collector records session activity. A nil *Collector is valid and records
// nothing.
type Collector struct {
	sessions        *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	frames          *prometheus.CounterVec
	frameBytes      *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
}

// NewCollector creates an unregistered Collector.
func NewCollector() *Collector {
	return &Collector{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceEngineStream,
			Name:      "sessions_total",
			Help:      "Streaming sessions by terminal state.",
		},
			[]string{"state"},
		),

		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespaceEngineStream,
			Name:      "active_sessions",
			Help:      "Streaming sessions currently running.",
		}),

		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceEngineStream,
			Name:      "frames_total",
			Help:      "Frames delivered to consumers by stream origin.",
		},
			[]string{"origin"},
		),

		frameBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespaceEngineStream,
			Name:      "frame_bytes_total",
			Help:      "Payload bytes delivered to consumers by stream origin.",
		},
			[]string{"origin"},
		),

		sessionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespaceEngineStream,
			Name:      "session_duration_seconds",
			Help:      "Streaming session lifetimes by terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		},
			[]string{"state"},
		),
	}
}

// Register adds every collector to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{c.sessions, c.activeSessions, c.frames, c.frameBytes, c.sessionDuration} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

// SessionStarted marks a session as running.
func (c *Collector) SessionStarted() {
	if c == nil {
		return
	}
	c.activeSessions.Inc()
}

// SessionFinished records a session's terminal state and lifetime.
func (c *Collector) SessionFinished(state string, d time.Duration) {
	if c == nil {
		return
	}
	c.activeSessions.Dec()
	c.sessions.WithLabelValues(state).Inc()
	c.sessionDuration.WithLabelValues(state).Observe(d.Seconds())
}

// FrameDelivered counts one frame of n payload bytes.
func (c *Collector) FrameDelivered(origin string, n int) {
	if c == nil {
		return
	}
	c.frames.WithLabelValues(origin).Inc()
	c.frameBytes.WithLabelValues(origin).Add(float64(n))
}
