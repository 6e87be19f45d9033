// Package daemon keeps the wake/session cycle running until shutdown.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

const (
	DefaultCooldown = 400 * time.Millisecond
	DefaultBackoff  = 2 * time.Second
)

// Cycler runs one unit of supervised work.
type Cycler interface {
	Cycle(ctx context.Context) error
}

// CyclerFunc adapts a function to Cycler.
type CyclerFunc func(ctx context.Context) error

func (f CyclerFunc) Cycle(ctx context.Context) error { return f(ctx) }

// RestartRecorder is notified each time a failed cycle is retried.
type RestartRecorder interface {
	SupervisorRestarted(cause string)
}

// Supervisor repeats a cycle forever. A short cooldown follows each
// successful cycle so trailing audio cannot retrigger; failures and panics
// are logged and retried after a fixed backoff. Only cancelling the context
// stops it.
type Supervisor struct {
	cycle    Cycler
	cooldown time.Duration
	backoff  time.Duration
	logger   *slog.Logger
	restarts RestartRecorder
	sleep    func(ctx context.Context, d time.Duration)
}

type Option func(*Supervisor)

func WithCooldown(d time.Duration) Option {
	return func(s *Supervisor) {
		if d >= 0 {
			s.cooldown = d
		}
	}
}

func WithBackoff(d time.Duration) Option {
	return func(s *Supervisor) {
		if d >= 0 {
			s.backoff = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Supervisor) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithRestartRecorder(r RestartRecorder) Option {
	return func(s *Supervisor) { s.restarts = r }
}

func New(cycle Cycler, opts ...Option) *Supervisor {
	s := &Supervisor{
		cycle:    cycle,
		cooldown: DefaultCooldown,
		backoff:  DefaultBackoff,
		logger:   slog.Default(),
		sleep:    sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "supervisor")
	return s
}

// Run blocks until ctx is cancelled and then returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor started", "cooldown", s.cooldown, "backoff", s.backoff)
	for {
		if ctx.Err() != nil {
			s.logger.Info("supervisor stopping")
			return nil
		}

		err := s.runOnce(ctx)
		switch {
		case ctx.Err() != nil:
			s.logger.Info("supervisor stopping")
			return nil
		case err == nil:
			s.sleep(ctx, s.cooldown)
		default:
			cause := "error"
			var p *panicError
			if errors.As(err, &p) {
				cause = "panic"
				s.logger.Error("cycle panicked, retrying", "panic", p.value, "stack", string(p.stack), "backoff", s.backoff)
			} else {
				s.logger.Error("cycle failed, retrying", "error", err, "backoff", s.backoff)
			}
			if s.restarts != nil {
				s.restarts.SupervisorRestarted(cause)
			}
			s.sleep(ctx, s.backoff)
		}
	}
}

type panicError struct {
	value any
	stack []byte
}

func (p *panicError) Error() string { return fmt.Sprintf("panic: %v", p.value) }

func (s *Supervisor) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &panicError{value: r, stack: debug.Stack()}
		}
	}()
	return s.cycle.Cycle(ctx)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
