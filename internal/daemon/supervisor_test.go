package daemon

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type restartCounter struct {
	mu     sync.Mutex
	causes []string
}

func (r *restartCounter) SupervisorRestarted(cause string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.causes = append(r.causes, cause)
}

func TestSupervisorSurvivesErrorsAndPanics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	cycle := CyclerFunc(func(context.Context) error {
		calls++
		switch calls {
		case 1:
			return errors.New("device vanished")
		case 2:
			panic("nil map write")
		case 3:
			return nil
		default:
			cancel()
			return nil
		}
	})

	var sleeps []time.Duration
	restarts := &restartCounter{}
	s := New(cycle, WithCooldown(400*time.Millisecond), WithBackoff(2*time.Second), WithRestartRecorder(restarts))
	s.sleep = func(_ context.Context, d time.Duration) { sleeps = append(sleeps, d) }

	require.NoError(t, s.Run(ctx))
	assert.Equal(t, 4, calls)
	assert.Equal(t, []time.Duration{2 * time.Second, 2 * time.Second, 400 * time.Millisecond}, sleeps)
	assert.Equal(t, []string{"error", "panic"}, restarts.causes)
}

func TestSupervisorStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	cycle := CyclerFunc(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	s := New(cycle)

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	<-started
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop after cancel")
	}
}

func TestSupervisorReturnsImmediatelyWhenAlreadyCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	s := New(CyclerFunc(func(context.Context) error {
		called = true
		return nil
	}))
	require.NoError(t, s.Run(ctx))
	assert.False(t, called)
}

func TestPanicErrorCarriesStack(t *testing.T) {
	s := New(CyclerFunc(func(context.Context) error { panic("boom") }))
	err := s.runOnce(context.Background())
	var p *panicError
	require.ErrorAs(t, err, &p)
	assert.Equal(t, "boom", p.value)
	assert.NotEmpty(t, p.stack)
}
