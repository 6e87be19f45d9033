package audio

import (
	"context"
	"sync/atomic"
	"time"
)

// DefaultSettleDelay absorbs speaker tail echo before capture resumes.
const DefaultSettleDelay = 150 * time.Millisecond

// Gate is the mic-mute flag shared between playback and capture. Playback
// sets it, the capture callback reads it before enqueueing each frame.
type Gate struct {
	muted  atomic.Bool
	settle time.Duration
	sleep  func(time.Duration)
}

// NewGate creates an unmuted gate. A negative settle delay disables settling.
func NewGate(settle time.Duration) *Gate {
	if settle < 0 {
		settle = 0
	}
	return &Gate{settle: settle, sleep: time.Sleep}
}

func (g *Gate) Mute()   { g.muted.Store(true) }
func (g *Gate) Unmute() { g.muted.Store(false) }

// Muted reports whether captured frames should be discarded.
func (g *Gate) Muted() bool {
	if g == nil {
		return false
	}
	return g.muted.Load()
}

// Guard mutes capture for the duration of play. The gate is cleared after
// the settle delay on every exit path, including a panic inside play.
func (g *Gate) Guard(ctx context.Context, play func(context.Context) error) error {
	g.Mute()
	defer func() {
		if g.settle > 0 {
			g.sleep(g.settle)
		}
		g.Unmute()
	}()
	return play(ctx)
}
