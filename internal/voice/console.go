package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// ErrCueUnsupported is returned by speakers that cannot play audio files.
var ErrCueUnsupported = errors.New("audio cue playback not supported")

// ConsoleSpeaker prints replies instead of speaking them. It is the last
// resort when no TTS backend works.
type ConsoleSpeaker struct {
	mu     sync.Mutex
	out    io.Writer
	logger *slog.Logger
}

func NewConsoleSpeaker(out io.Writer, logger *slog.Logger) *ConsoleSpeaker {
	if out == nil {
		out = os.Stdout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ConsoleSpeaker{out: out, logger: logger}
}

func (s *ConsoleSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.out, "Navi: %s\n", text)
	return err
}

func (s *ConsoleSpeaker) PlayFile(_ context.Context, path string) error {
	s.logger.Debug("audio cue skipped on console output", "path", path)
	return ErrCueUnsupported
}
