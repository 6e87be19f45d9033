package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTurnStageWindowSnapshot(t *testing.T) {
	w := newTurnStageWindow(8)
	w.Observe(StageEngine, 500)
	w.Observe(StageEngine, 700)
	w.Observe(StageEngine, 900)
	w.Observe("", 100)
	w.Observe(StageSpeak, -1)

	snap := w.Snapshot()
	assert.Equal(t, 8, snap.WindowSize)
	require.Len(t, snap.Stages, 1)

	s := snap.Stages[0]
	assert.Equal(t, StageEngine, s.Stage)
	assert.Equal(t, 3, s.Samples)
	assert.Equal(t, 900.0, s.LastMS)
	assert.Equal(t, 700.0, s.AvgMS)
	assert.Equal(t, 700.0, s.P50MS)
	assert.Greater(t, s.P95MS, 700.0)
	assert.LessOrEqual(t, s.P95MS, 900.0)
	assert.Equal(t, 2500.0, s.TargetP95MS)
}

func TestTurnStageWindowWrapsAround(t *testing.T) {
	w := newTurnStageWindow(2)
	w.Observe(StageTurnTotal, 1)
	w.Observe(StageTurnTotal, 2)
	w.Observe(StageTurnTotal, 30)

	snap := w.Snapshot()
	require.Len(t, snap.Stages, 1)
	assert.Equal(t, 2, snap.Stages[0].Samples)
	assert.Equal(t, 16.0, snap.Stages[0].AvgMS)
	assert.Equal(t, 30.0, snap.Stages[0].LastMS)
}
