package voice

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"

	"github.com/antoniostano/navi/internal/audio"
)

// WhisperConfig configures the whisper.cpp CLI transcriber.
type WhisperConfig struct {
	CLI       string
	ModelPath string
	Language  string
	Threads   int
	BeamSize  int
	BestOf    int
}

// WhisperTranscriber runs one whisper.cpp CLI process per utterance.
type WhisperTranscriber struct {
	cliPath   string
	modelPath string
	language  string
	threads   int
	beamSize  int
	bestOf    int
}

func NewWhisperTranscriber(cfg WhisperConfig) (*WhisperTranscriber, error) {
	cli := strings.TrimSpace(cfg.CLI)
	if cli == "" {
		cli = "whisper-cli"
	}
	cliPath, err := exec.LookPath(cli)
	if err != nil {
		return nil, fmt.Errorf("whisper.cpp CLI not found (%s): %w", cli, err)
	}
	modelPath := strings.TrimSpace(cfg.ModelPath)
	if modelPath == "" {
		return nil, errors.New("NAVI_WHISPER_MODEL is required")
	}
	if !filepath.IsAbs(modelPath) {
		if abs, err := filepath.Abs(modelPath); err == nil {
			modelPath = abs
		}
	}
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper.cpp model not found: %s", modelPath)
	}

	w := &WhisperTranscriber{
		cliPath:   cliPath,
		modelPath: modelPath,
		language:  strings.TrimSpace(cfg.Language),
		threads:   cfg.Threads,
		beamSize:  cfg.BeamSize,
		bestOf:    cfg.BestOf,
	}
	if w.language == "" {
		w.language = "en"
	}
	if w.threads < 0 {
		return nil, errors.New("NAVI_WHISPER_THREADS must be >= 0")
	}
	if w.threads == 0 {
		w.threads = min(max(runtime.NumCPU(), 2), 8)
	}
	if w.beamSize <= 0 {
		w.beamSize = 1
	}
	if w.bestOf <= 0 {
		w.bestOf = 1
	}
	return w, nil
}

func (w *WhisperTranscriber) Transcribe(ctx context.Context, frames []audio.Frame) (Transcript, error) {
	if len(audio.JoinPCM(frames)) == 0 {
		return Transcript{Final: true}, nil
	}
	tmpDir, err := os.MkdirTemp("", "navi-whisper-*")
	if err != nil {
		return Transcript{}, err
	}
	defer os.RemoveAll(tmpDir)

	wavPath := filepath.Join(tmpDir, "audio.wav")
	if err := audio.WriteFramesWAVFile(wavPath, frames); err != nil {
		return Transcript{}, err
	}
	outPrefix := filepath.Join(tmpDir, "out")

	cmd := exec.CommandContext(ctx, w.cliPath, w.args(wavPath, outPrefix)...)
	cmd.Stdout = io.Discard
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Transcript{}, ctxErr
		}
		detail := strings.TrimSpace(stderr.String())
		// whisper.cpp is chatty; keep the tail only.
		if len(detail) > 8<<10 {
			detail = strings.TrimSpace(detail[len(detail)-(8<<10):])
		}
		if detail == "" {
			detail = err.Error()
		}
		return Transcript{}, fmt.Errorf("whisper.cpp failed: %s", detail)
	}

	b, err := os.ReadFile(outPrefix + ".txt")
	if err != nil {
		return Transcript{}, err
	}
	return Transcript{Text: cleanWhisperText(string(b)), Final: true}, nil
}

func (w *WhisperTranscriber) args(wavPath, outPrefix string) []string {
	return []string{
		"-m", w.modelPath,
		"-f", wavPath,
		"-l", w.language,
		"-otxt",
		"-of", outPrefix,
		"-nt",
		"-t", strconv.Itoa(w.threads),
		"-bs", strconv.Itoa(w.beamSize),
		"-bo", strconv.Itoa(w.bestOf),
	}
}

var whisperMarkerPattern = regexp.MustCompile(`\[[^\]]*\]|\([^)]*\)`)

// cleanWhisperText drops the bracketed non-speech markers whisper emits for
// silence and noise, e.g. "[BLANK_AUDIO]" or "(door closes)".
func cleanWhisperText(raw string) string {
	return strings.Join(strings.Fields(whisperMarkerPattern.ReplaceAllString(raw, " ")), " ")
}
