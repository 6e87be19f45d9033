package voice

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	DefaultPollyVoice    = "Joanna"
	DefaultPollyEngine   = "neural"
	DefaultPollyLanguage = "en-US"

	blankSpeech       = "I'm sorry, I didn't catch that."
	pollyCacheEntries = 256
)

type synthesizer interface {
	SynthesizeSpeech(ctx context.Context, params *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
}

// PollyConfig selects the voice and the on-disk cache location.
type PollyConfig struct {
	Voice    string
	Engine   string
	Language string
	CacheDir string
}

// PollySpeaker synthesizes MP3 with Amazon Polly, caches every clip on disk
// under a content hash and plays it through a Player.
type PollySpeaker struct {
	client   synthesizer
	player   Player
	voice    string
	engine   string
	language string
	cacheDir string
	known    *lru.Cache[string, string]
	logger   *slog.Logger
}

func NewPollySpeaker(awsCfg aws.Config, player Player, cfg PollyConfig, logger *slog.Logger) (*PollySpeaker, error) {
	return newPollySpeaker(polly.NewFromConfig(awsCfg), player, cfg, logger)
}

func newPollySpeaker(client synthesizer, player Player, cfg PollyConfig, logger *slog.Logger) (*PollySpeaker, error) {
	if player == nil {
		return nil, errors.New("polly speaker requires a player")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cacheDir := strings.TrimSpace(cfg.CacheDir)
	if cacheDir == "" {
		cacheDir = filepath.Join(os.TempDir(), "navi-tts-cache")
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create tts cache dir: %w", err)
	}
	known, err := lru.New[string, string](pollyCacheEntries)
	if err != nil {
		return nil, err
	}
	s := &PollySpeaker{
		client:   client,
		player:   player,
		voice:    firstNonEmpty(cfg.Voice, DefaultPollyVoice),
		engine:   strings.ToLower(firstNonEmpty(cfg.Engine, DefaultPollyEngine)),
		language: firstNonEmpty(cfg.Language, DefaultPollyLanguage),
		cacheDir: cacheDir,
		known:    known,
		logger:   logger.With("component", "polly"),
	}
	return s, nil
}

// CacheKey is the hex sha256 of the voice, engine, language and text that
// produced a clip.
func CacheKey(voice, engine, language, text string) string {
	sum := sha256.Sum256([]byte(voice + "|" + engine + "|" + language + "|" + text))
	return hex.EncodeToString(sum[:])
}

func (s *PollySpeaker) Speak(ctx context.Context, text string) error {
	path, err := s.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	return s.player.Play(ctx, path)
}

func (s *PollySpeaker) PlayFile(ctx context.Context, path string) error {
	return s.player.Play(ctx, path)
}

// Synthesize returns the path of a cached MP3 for text, calling Polly only on
// a cache miss.
func (s *PollySpeaker) Synthesize(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		text = blankSpeech
	}
	key := CacheKey(s.voice, s.engine, s.language, text)
	if path, ok := s.known.Get(key); ok {
		return path, nil
	}
	path := filepath.Join(s.cacheDir, key+".mp3")
	if info, err := os.Stat(path); err == nil && info.Size() > 0 {
		s.known.Add(key, path)
		return path, nil
	}

	audioBytes, err := s.synthesize(ctx, text, s.engine)
	if err != nil && s.engine == "neural" {
		s.logger.Warn("neural synthesis failed, retrying with standard engine", "error", err)
		audioBytes, err = s.synthesize(ctx, text, "standard")
	}
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(path, audioBytes); err != nil {
		return "", err
	}
	s.known.Add(key, path)
	return path, nil
}

func (s *PollySpeaker) synthesize(ctx context.Context, text, engine string) ([]byte, error) {
	in := &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		OutputFormat: types.OutputFormatMp3,
		VoiceId:      types.VoiceId(s.voice),
		Engine:       types.Engine(engine),
		LanguageCode: types.LanguageCode(s.language),
	}
	if isSSML(text) {
		in.TextType = types.TextTypeSsml
	}
	out, err := s.client.SynthesizeSpeech(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("polly synthesize (%s): %w", engine, err)
	}
	defer out.AudioStream.Close()
	b, err := io.ReadAll(out.AudioStream)
	if err != nil {
		return nil, fmt.Errorf("read polly audio: %w", err)
	}
	if len(b) == 0 {
		return nil, fmt.Errorf("polly synthesize (%s): empty audio", engine)
	}
	return b, nil
}

func isSSML(text string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(text)), "<speak")
}

func writeFileAtomic(path string, b []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tts-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
