package voice

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultPrimaryRetry is how long Speak skips a failed primary before
// trying it again.
const DefaultPrimaryRetry = 30 * time.Second

// FailoverSpeaker prefers the primary speaker and falls back per call when
// it fails. A failed primary is skipped for the retry window and then tried
// again, so a recovered backend is picked up without a restart.
type FailoverSpeaker struct {
	primary  Speaker
	fallback Speaker
	retry    time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu        sync.Mutex
	downUntil time.Time
}

// NewFailoverSpeaker wraps primary and fallback. retry <= 0 uses
// DefaultPrimaryRetry.
func NewFailoverSpeaker(primary, fallback Speaker, retry time.Duration, logger *slog.Logger) *FailoverSpeaker {
	if retry <= 0 {
		retry = DefaultPrimaryRetry
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FailoverSpeaker{primary: primary, fallback: fallback, retry: retry, logger: logger, now: time.Now}
}

// FallbackActive reports whether Speak currently skips the primary.
func (s *FailoverSpeaker) FallbackActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Before(s.downUntil)
}

func (s *FailoverSpeaker) Speak(ctx context.Context, text string) error {
	if s.FallbackActive() {
		fbErr := s.fallback.Speak(ctx, text)
		if fbErr == nil {
			return nil
		}
		prErr := s.primary.Speak(ctx, text)
		if prErr != nil {
			return fmt.Errorf("tts fallback failed: %v; tts primary failed: %w", fbErr, prErr)
		}
		s.markUp()
		return nil
	}

	prErr := s.primary.Speak(ctx, text)
	if prErr == nil {
		s.markUp()
		return nil
	}
	if ctx.Err() != nil {
		return prErr
	}
	s.markDown(prErr)
	if fbErr := s.fallback.Speak(ctx, text); fbErr != nil {
		return fmt.Errorf("tts primary failed: %v; tts fallback failed: %w", prErr, fbErr)
	}
	return nil
}

// PlayFile only uses the primary. A cue that cannot be played is reported
// to the caller, which speaks a short reply instead; it does not change
// where Speak goes.
func (s *FailoverSpeaker) PlayFile(ctx context.Context, path string) error {
	return s.primary.PlayFile(ctx, path)
}

func (s *FailoverSpeaker) markDown(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.downUntil = s.now().Add(s.retry)
	s.logger.Warn("tts primary failed, using fallback", "error", err, "retry_in", s.retry)
}

func (s *FailoverSpeaker) markUp() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.downUntil.IsZero() {
		s.downUntil = time.Time{}
		s.logger.Info("tts primary recovered")
	}
}
