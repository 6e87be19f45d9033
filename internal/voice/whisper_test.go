package voice

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWhisperTranscriberValidates(t *testing.T) {
	_, err := NewWhisperTranscriber(WhisperConfig{CLI: "definitely-not-a-whisper-binary"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CLI not found")

	_, err = NewWhisperTranscriber(WhisperConfig{CLI: "sh", ModelPath: filepath.Join(t.TempDir(), "missing.bin")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")

	model := filepath.Join(t.TempDir(), "ggml.bin")
	require.NoError(t, os.WriteFile(model, []byte("x"), 0o600))
	_, err = NewWhisperTranscriber(WhisperConfig{CLI: "sh", ModelPath: model, Threads: -1})
	assert.Error(t, err)

	w, err := NewWhisperTranscriber(WhisperConfig{CLI: "sh", ModelPath: model})
	require.NoError(t, err)
	assert.Equal(t, "en", w.language)
	assert.GreaterOrEqual(t, w.threads, 2)
	assert.LessOrEqual(t, w.threads, 8)
}

func TestWhisperArgs(t *testing.T) {
	w := &WhisperTranscriber{modelPath: "/m.bin", language: "de", threads: 3, beamSize: 1, bestOf: 2}
	assert.Equal(t, []string{
		"-m", "/m.bin",
		"-f", "/tmp/a.wav",
		"-l", "de",
		"-otxt",
		"-of", "/tmp/out",
		"-nt",
		"-t", "3",
		"-bs", "1",
		"-bo", "2",
	}, w.args("/tmp/a.wav", "/tmp/out"))
}

func TestWhisperSkipsEmptyAudio(t *testing.T) {
	w := &WhisperTranscriber{cliPath: "/nonexistent"}
	tr, err := w.Transcribe(context.Background(), nil)
	require.NoError(t, err)
	assert.True(t, tr.Final)
	assert.Empty(t, tr.Text)
}
