package voice

import (
	"context"
	"strings"
	"sync"

	"github.com/antoniostano/navi/internal/audio"
)

// ScriptedTranscriber returns queued results in order, one per call. Once
// the script runs out every call yields an empty final transcript. It stands
// in for real STT in tests and dry runs.
type ScriptedTranscriber struct {
	mu     sync.Mutex
	script []ScriptedResult
	calls  int
	frames []int
}

// ScriptedResult is one queued Transcribe outcome.
type ScriptedResult struct {
	Text string
	Err  error
}

func NewScriptedTranscriber(texts ...string) *ScriptedTranscriber {
	t := &ScriptedTranscriber{}
	for _, text := range texts {
		t.script = append(t.script, ScriptedResult{Text: text})
	}
	return t
}

// Push appends results to the script.
func (t *ScriptedTranscriber) Push(results ...ScriptedResult) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.script = append(t.script, results...)
}

func (t *ScriptedTranscriber) Transcribe(ctx context.Context, frames []audio.Frame) (Transcript, error) {
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.calls++
	t.frames = append(t.frames, len(frames))
	if len(t.script) == 0 {
		return Transcript{Final: true}, nil
	}
	next := t.script[0]
	t.script = t.script[1:]
	if next.Err != nil {
		return Transcript{}, next.Err
	}
	return Transcript{Text: next.Text, Final: true}, nil
}

// Calls reports how many times Transcribe ran.
func (t *ScriptedTranscriber) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// FrameCounts reports how many frames each call received, in call order.
func (t *ScriptedTranscriber) FrameCounts() []int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]int(nil), t.frames...)
}

// Remaining reports how many scripted results are unused.
func (t *ScriptedTranscriber) Remaining() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.script)
}

// RecordingSpeaker keeps everything it was asked to say or play.
type RecordingSpeaker struct {
	mu     sync.Mutex
	spoken []string
	played []string

	// SpeakErr, when set, is returned from every Speak call after recording.
	SpeakErr error
	// PlayErr, when set, is returned from every PlayFile call after recording.
	PlayErr error
	// OnSpeak runs inside Speak, e.g. to observe gate state during playback.
	OnSpeak func(text string)
}

func NewRecordingSpeaker() *RecordingSpeaker { return &RecordingSpeaker{} }

func (s *RecordingSpeaker) Speak(_ context.Context, text string) error {
	s.mu.Lock()
	s.spoken = append(s.spoken, strings.TrimSpace(text))
	hook, err := s.OnSpeak, s.SpeakErr
	s.mu.Unlock()
	if hook != nil {
		hook(text)
	}
	return err
}

func (s *RecordingSpeaker) PlayFile(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, path)
	return s.PlayErr
}

func (s *RecordingSpeaker) Spoken() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.spoken...)
}

func (s *RecordingSpeaker) Played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.played...)
}
