package observability

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetricsCountersAndHandler(t *testing.T) {
	m := NewMetrics("navi")
	m.SessionStarted()
	m.WakeDetected("fuzzy")
	m.TurnCompleted()
	m.TurnCompleted()
	m.FrameDropped("muted")
	m.SessionEnded("max_turns")
	m.ObserveStage(StageEngine, 420*time.Millisecond)

	assert.Equal(t, 0.0, testutil.ToFloat64(m.ActiveSessions))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WakeDetections.WithLabelValues("fuzzy")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Turns))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SessionsEnded.WithLabelValues("max_turns")))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "navi_frames_dropped_total{reason=\"muted\"} 1")
	assert.Contains(t, string(body), "navi_stage_latency_ms_bucket")

	snap := m.SnapshotTurnStages()
	require.Len(t, snap.Stages, 1)
	assert.Equal(t, 420.0, snap.Stages[0].LastMS)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.SessionStarted()
		m.WakeDetected("exact")
		m.Transition("idle")
		m.MemoryWritten("add_fact")
		m.MemoryCorrupted("x")
		m.EngineFailed()
		m.SupervisorRestarted("panic")
		m.ObserveStage(StageSpeak, time.Second)
	})
	assert.Empty(t, m.SnapshotTurnStages().Stages)
}
