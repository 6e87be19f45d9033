package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the Navi daemon. Values come from
// built-in defaults, then the optional YAML file named by NAVI_CONFIG_FILE,
// then environment variables.
type Config struct {
	ConfigFile string `yaml:"-"`

	UserID          string `yaml:"user_id"`
	MemoryPath      string `yaml:"memory_path"`
	MemorySeed      string `yaml:"memory_seed"`
	MaxInteractions int    `yaml:"max_interactions"`

	// Fact caps for the memory context handed to the completion engine.
	DigestRecentFacts int `yaml:"digest_recent_facts"`
	DigestGlobalFacts int `yaml:"digest_global_facts"`

	MicDevice   int           `yaml:"mic_device"`
	BlockSize   int           `yaml:"block_size"`
	QueueSize   int           `yaml:"queue_size"`
	SettleDelay time.Duration `yaml:"settle_delay"`

	WakePhrases   []string      `yaml:"wake_phrases"`
	WakeThreshold int           `yaml:"wake_threshold"`
	WakeCuePath   string        `yaml:"wake_cue"`
	MaxTurns      int           `yaml:"max_turns"`
	ListenWindow  time.Duration `yaml:"listen_window"`
	SilenceEnd    time.Duration `yaml:"listen_silence_end"`
	EmptyPrompt   string        `yaml:"empty_prompt"`
	Cooldown      time.Duration `yaml:"cooldown"`
	Backoff       time.Duration `yaml:"backoff"`

	STTMode         string `yaml:"stt_mode"`
	WhisperCLI      string `yaml:"whisper_cli"`
	WhisperModel    string `yaml:"whisper_model"`
	WhisperLanguage string `yaml:"whisper_language"`
	WhisperThreads  int    `yaml:"whisper_threads"`

	TTSMode       string `yaml:"tts_mode"`
	PollyVoice    string `yaml:"polly_voice"`
	PollyEngine   string `yaml:"polly_engine"`
	PollyLanguage string `yaml:"polly_language"`
	TTSCacheDir   string `yaml:"tts_cache_dir"`
	PlayerCommand string `yaml:"player"`
	AWSRegion     string `yaml:"aws_region"`

	EngineMode    string        `yaml:"engine_mode"`
	OpenAIAPIKey  string        `yaml:"-"`
	OpenAIBaseURL string        `yaml:"openai_base_url"`
	OpenAIModel   string        `yaml:"openai_model"`
	SystemPrompt  string        `yaml:"system_prompt"`
	EngineRetries int           `yaml:"engine_retries"`
	EngineTimeout time.Duration `yaml:"engine_timeout"`

	HTTPAddr         string        `yaml:"http_addr"`
	AllowAnyOrigin   bool          `yaml:"allow_any_origin"`
	MetricsNamespace string        `yaml:"metrics_namespace"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`

	DatabaseURL    string        `yaml:"-"`
	BackupS3Bucket string        `yaml:"backup_s3_bucket"`
	BackupS3Prefix string        `yaml:"backup_s3_prefix"`
	BackupInterval time.Duration `yaml:"backup_interval"`

	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		UserID:            "default_user",
		MemoryPath:        "data/navi_memory.json",
		MaxInteractions:   2000,
		DigestRecentFacts: 3,
		DigestGlobalFacts: 2,
		MicDevice:         -1,
		BlockSize:         1600,
		QueueSize:         512,
		SettleDelay:       150 * time.Millisecond,
		WakeThreshold:     75,
		MaxTurns:          5,
		ListenWindow:      5 * time.Second,
		EmptyPrompt:       "I didn't catch that. Please repeat the command.",
		Cooldown:          400 * time.Millisecond,
		Backoff:           2 * time.Second,
		STTMode:           "whisper",
		WhisperCLI:        "whisper-cli",
		WhisperModel:      ".models/whisper/ggml-base.en.bin",
		WhisperLanguage:   "en",
		TTSMode:           "auto",
		PollyVoice:        "Joanna",
		PollyEngine:       "neural",
		PollyLanguage:     "en-US",
		TTSCacheDir:       "data/tts_cache",
		PlayerCommand:     "mpg123",
		EngineMode:        "auto",
		OpenAIModel:       "gpt-4o-mini",
		EngineRetries:     2,
		EngineTimeout:     20 * time.Second,
		HTTPAddr:          "127.0.0.1:8088",
		MetricsNamespace:  "navi",
		ShutdownTimeout:   5 * time.Second,
		BackupS3Prefix:    "navi",
		BackupInterval:    time.Hour,
		LogFormat:         "text",
		LogLevel:          "info",
	}
}

func Load() (Config, error) {
	cfg := Defaults()
	cfg.ConfigFile = strings.TrimSpace(os.Getenv("NAVI_CONFIG_FILE"))
	if cfg.ConfigFile != "" {
		if err := applyFile(&cfg, cfg.ConfigFile); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("NAVI_CONFIG_FILE %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.UserID = envOrDefault("NAVI_USER_ID", cfg.UserID)
	cfg.MemoryPath = envOrDefault("NAVI_MEMORY_PATH", cfg.MemoryPath)
	cfg.MemorySeed = envOrDefault("NAVI_MEMORY_SEED", cfg.MemorySeed)
	cfg.WakePhrases = listFromEnv("NAVI_WAKE_PHRASES", cfg.WakePhrases)
	cfg.WakeCuePath = envOrDefault("NAVI_WAKE_CUE", cfg.WakeCuePath)
	cfg.EmptyPrompt = envOrDefault("NAVI_EMPTY_PROMPT", cfg.EmptyPrompt)
	cfg.STTMode = envOrDefault("NAVI_STT_MODE", cfg.STTMode)
	cfg.WhisperCLI = envOrDefault("NAVI_WHISPER_CLI", cfg.WhisperCLI)
	cfg.WhisperModel = envOrDefault("NAVI_WHISPER_MODEL", cfg.WhisperModel)
	cfg.WhisperLanguage = envOrDefault("NAVI_WHISPER_LANGUAGE", cfg.WhisperLanguage)
	cfg.TTSMode = envOrDefault("NAVI_TTS_MODE", cfg.TTSMode)
	cfg.PollyVoice = envOrDefault("NAVI_POLLY_VOICE", cfg.PollyVoice)
	cfg.PollyEngine = envOrDefault("NAVI_POLLY_ENGINE", cfg.PollyEngine)
	cfg.PollyLanguage = envOrDefault("NAVI_POLLY_LANGUAGE", cfg.PollyLanguage)
	cfg.TTSCacheDir = envOrDefault("NAVI_TTS_CACHE_DIR", cfg.TTSCacheDir)
	cfg.PlayerCommand = envOrDefault("NAVI_PLAYER", cfg.PlayerCommand)
	cfg.AWSRegion = envOrDefault("AWS_REGION", cfg.AWSRegion)
	cfg.EngineMode = envOrDefault("NAVI_ENGINE_MODE", cfg.EngineMode)
	cfg.OpenAIAPIKey = strings.TrimSpace(os.Getenv("OPENAI_API_KEY"))
	cfg.OpenAIBaseURL = envOrDefault("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.OpenAIModel = envOrDefault("OPENAI_MODEL", cfg.OpenAIModel)
	cfg.SystemPrompt = envOrDefault("NAVI_SYSTEM_PROMPT", cfg.SystemPrompt)
	cfg.MetricsNamespace = envOrDefault("NAVI_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.BackupS3Bucket = envOrDefault("NAVI_BACKUP_S3_BUCKET", cfg.BackupS3Bucket)
	cfg.BackupS3Prefix = envOrDefault("NAVI_BACKUP_S3_PREFIX", cfg.BackupS3Prefix)
	cfg.LogFormat = envOrDefault("NAVI_LOG_FORMAT", cfg.LogFormat)
	cfg.LogLevel = envOrDefault("NAVI_LOG_LEVEL", cfg.LogLevel)

	// An explicitly empty NAVI_HTTP_ADDR disables the diagnostics server.
	if v, ok := os.LookupEnv("NAVI_HTTP_ADDR"); ok {
		cfg.HTTPAddr = strings.TrimSpace(v)
	}

	var err error
	ints := []struct {
		key string
		dst *int
	}{
		{"NAVI_MIC_DEVICE", &cfg.MicDevice},
		{"NAVI_BLOCK_SIZE", &cfg.BlockSize},
		{"NAVI_QUEUE_SIZE", &cfg.QueueSize},
		{"NAVI_WAKE_THRESHOLD", &cfg.WakeThreshold},
		{"NAVI_MAX_TURNS", &cfg.MaxTurns},
		{"NAVI_MAX_INTERACTIONS", &cfg.MaxInteractions},
		{"NAVI_DIGEST_RECENT_FACTS", &cfg.DigestRecentFacts},
		{"NAVI_DIGEST_GLOBAL_FACTS", &cfg.DigestGlobalFacts},
		{"NAVI_WHISPER_THREADS", &cfg.WhisperThreads},
		{"NAVI_ENGINE_RETRIES", &cfg.EngineRetries},
	}
	for _, f := range ints {
		if *f.dst, err = intFromEnv(f.key, *f.dst); err != nil {
			return err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"NAVI_SETTLE_DELAY", &cfg.SettleDelay},
		{"NAVI_LISTEN_WINDOW", &cfg.ListenWindow},
		{"NAVI_LISTEN_SILENCE_END", &cfg.SilenceEnd},
		{"NAVI_COOLDOWN", &cfg.Cooldown},
		{"NAVI_BACKOFF", &cfg.Backoff},
		{"NAVI_ENGINE_TIMEOUT", &cfg.EngineTimeout},
		{"NAVI_SHUTDOWN_TIMEOUT", &cfg.ShutdownTimeout},
		{"NAVI_BACKUP_INTERVAL", &cfg.BackupInterval},
	}
	for _, f := range durations {
		if *f.dst, err = durationFromEnv(f.key, *f.dst); err != nil {
			return err
		}
	}

	cfg.AllowAnyOrigin, err = boolFromEnv("NAVI_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	return err
}

// Validate rejects settings the daemon cannot run with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.UserID) == "" {
		return fmt.Errorf("NAVI_USER_ID must not be empty")
	}
	if strings.TrimSpace(c.MemoryPath) == "" {
		return fmt.Errorf("NAVI_MEMORY_PATH must not be empty")
	}
	if c.MaxInteractions <= 0 {
		return fmt.Errorf("NAVI_MAX_INTERACTIONS must be positive")
	}
	if c.DigestRecentFacts < 0 || c.DigestGlobalFacts < 0 {
		return fmt.Errorf("NAVI_DIGEST_RECENT_FACTS and NAVI_DIGEST_GLOBAL_FACTS must be >= 0")
	}
	if c.MicDevice < -1 {
		return fmt.Errorf("NAVI_MIC_DEVICE must be a device index or -1 for the default")
	}
	if c.BlockSize <= 0 {
		return fmt.Errorf("NAVI_BLOCK_SIZE must be positive")
	}
	if c.QueueSize <= 0 {
		return fmt.Errorf("NAVI_QUEUE_SIZE must be positive")
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf("NAVI_SETTLE_DELAY must be >= 0")
	}
	if c.WakeThreshold < 1 || c.WakeThreshold > 100 {
		return fmt.Errorf("NAVI_WAKE_THRESHOLD must be between 1 and 100")
	}
	if c.MaxTurns < 1 {
		return fmt.Errorf("NAVI_MAX_TURNS must be at least 1")
	}
	if c.ListenWindow < 500*time.Millisecond {
		return fmt.Errorf("NAVI_LISTEN_WINDOW must be at least 500ms")
	}
	if strings.TrimSpace(c.EmptyPrompt) == "" {
		return fmt.Errorf("NAVI_EMPTY_PROMPT must not be empty")
	}
	if c.SilenceEnd < 0 || (c.SilenceEnd > 0 && c.SilenceEnd >= c.ListenWindow) {
		return fmt.Errorf("NAVI_LISTEN_SILENCE_END must be 0 (off) or shorter than NAVI_LISTEN_WINDOW")
	}
	if c.Cooldown < 0 || c.Backoff < 0 {
		return fmt.Errorf("NAVI_COOLDOWN and NAVI_BACKOFF must be >= 0")
	}
	if c.WhisperThreads < 0 {
		return fmt.Errorf("NAVI_WHISPER_THREADS must be >= 0")
	}
	if c.EngineRetries < 0 {
		return fmt.Errorf("NAVI_ENGINE_RETRIES must be >= 0")
	}
	if err := oneOf("NAVI_STT_MODE", c.STTMode, "whisper", "mock"); err != nil {
		return err
	}
	if err := oneOf("NAVI_TTS_MODE", c.TTSMode, "auto", "polly", "console"); err != nil {
		return err
	}
	if err := oneOf("NAVI_ENGINE_MODE", c.EngineMode, "auto", "openai", "mock"); err != nil {
		return err
	}
	if err := oneOf("NAVI_LOG_FORMAT", c.LogFormat, "text", "json"); err != nil {
		return err
	}
	if err := oneOf("NAVI_LOG_LEVEL", c.LogLevel, "debug", "info", "warn", "error"); err != nil {
		return err
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	v := strings.ToLower(strings.TrimSpace(value))
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", key, strings.Join(allowed, ", "), value)
}

func envOrDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// listFromEnv splits a comma-separated value, dropping blank entries.
func listFromEnv(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: invalid bool %q", key, v)
	}
}
