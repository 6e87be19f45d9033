package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the daemon. Every method
// is safe on a nil receiver so collaborators can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	ActiveSessions    prometheus.Gauge
	WakeDetections    *prometheus.CounterVec
	StateTransitions  *prometheus.CounterVec
	SessionsEnded     *prometheus.CounterVec
	Turns             prometheus.Counter
	FramesDropped     *prometheus.CounterVec
	MemoryWrites      *prometheus.CounterVec
	MemoryCorruptions prometheus.Counter
	EngineErrors      prometheus.Counter
	SpeakErrors       prometheus.Counter
	SupervisorRestart *prometheus.CounterVec
	StageLatency      *prometheus.HistogramVec

	stages *turnStageWindow
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		ActiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "1 while a conversation session is running.",
		}),
		WakeDetections: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "wake_detections_total",
			Help:      "Wake phrase matches by method.",
		}, []string{"method"}),
		StateTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_transitions_total",
			Help:      "Session state machine transitions by target state.",
		}, []string{"state"}),
		SessionsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Finished sessions by end reason.",
		}, []string{"reason"}),
		Turns: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Completed conversation turns.",
		}),
		FramesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Audio frames dropped before the queue by reason.",
		}, []string{"reason"}),
		MemoryWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_writes_total",
			Help:      "Memory store writes by operation.",
		}, []string{"op"}),
		MemoryCorruptions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "memory_corruptions_total",
			Help:      "Corrupt memory files quarantined.",
		}),
		EngineErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_errors_total",
			Help:      "Completion engine calls that failed after retries.",
		}),
		SpeakErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "speak_errors_total",
			Help:      "Playback calls that failed on every speaker.",
		}),
		SupervisorRestart: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "supervisor_restarts_total",
			Help:      "Cycles restarted after a failure, by cause.",
		}, []string{"cause"}),
		StageLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_latency_ms",
			Help:      "Per-turn stage latency in milliseconds.",
			Buckets:   []float64{50, 100, 250, 500, 1000, 2000, 4000, 8000},
		}, []string{"stage"}),
		stages: newTurnStageWindow(256),
	}
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(1)
}

func (m *Metrics) SessionEnded(reason string) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(0)
	m.SessionsEnded.WithLabelValues(reason).Inc()
}

func (m *Metrics) WakeDetected(method string) {
	if m == nil {
		return
	}
	m.WakeDetections.WithLabelValues(method).Inc()
}

func (m *Metrics) Transition(state string) {
	if m == nil {
		return
	}
	m.StateTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) TurnCompleted() {
	if m == nil {
		return
	}
	m.Turns.Inc()
}

func (m *Metrics) FrameDropped(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

func (m *Metrics) MemoryWritten(op string) {
	if m == nil {
		return
	}
	m.MemoryWrites.WithLabelValues(op).Inc()
}

func (m *Metrics) MemoryCorrupted(string) {
	if m == nil {
		return
	}
	m.MemoryCorruptions.Inc()
}

func (m *Metrics) EngineFailed() {
	if m == nil {
		return
	}
	m.EngineErrors.Inc()
}

func (m *Metrics) SpeakFailed() {
	if m == nil {
		return
	}
	m.SpeakErrors.Inc()
}

func (m *Metrics) SupervisorRestarted(cause string) {
	if m == nil {
		return
	}
	m.SupervisorRestart.WithLabelValues(cause).Inc()
}

// ObserveStage records one stage latency in both the histogram and the
// rolling window served by the perf endpoint.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	ms := float64(d.Microseconds()) / 1000
	m.StageLatency.WithLabelValues(stage).Observe(ms)
	m.stages.Observe(stage, ms)
}

func (m *Metrics) SnapshotTurnStages() TurnStageSnapshot {
	if m == nil {
		return TurnStageSnapshot{GeneratedAt: time.Now().UTC(), Stages: []TurnStageStats{}}
	}
	return m.stages.Snapshot()
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
