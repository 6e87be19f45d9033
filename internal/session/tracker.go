package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionActive is returned when a session is started while another one
// is still running.
var ErrSessionActive = errors.New("session already active")

// tracker owns the single active session and the machine state. Readers on
// other goroutines (the diagnostics API) only ever see clones.
type tracker struct {
	mu      sync.RWMutex
	state   State
	entered bool
	current *Session
	last    *Session
	count   int
	now     func() time.Time
}

func newTracker(now func() time.Time) *tracker {
	return &tracker{state: StateIdle, now: now}
}

func (t *tracker) begin(userID string) (*Session, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current != nil {
		return nil, ErrSessionActive
	}
	s := &Session{
		ID:        uuid.NewString(),
		UserID:    userID,
		Active:    true,
		StartedAt: t.now(),
	}
	t.current = s
	t.count++
	return clone(s), nil
}

// setState reports whether the state changed. The first call always counts
// as a change so the initial Idle is announced once.
func (t *tracker) setState(s State) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	changed := !t.entered || t.state != s
	t.entered = true
	t.state = s
	return changed
}

func (t *tracker) completeTurn() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return 0
	}
	t.current.TurnCount++
	return t.current.TurnCount
}

func (t *tracker) end(reason EndReason) *Session {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateIdle
	t.entered = true
	if t.current == nil {
		return nil
	}
	s := t.current
	s.Active = false
	s.EndReason = reason
	s.EndedAt = t.now()
	t.current = nil
	t.last = s
	return clone(s)
}

func (t *tracker) status() Status {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return Status{
		State:       t.state,
		Current:     clone(t.current),
		LastSession: clone(t.last),
		Sessions:    t.count,
	}
}

func clone(s *Session) *Session {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
