package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

	"github.com/antoniostano/navi/internal/audio"
	"github.com/antoniostano/navi/internal/audio/portaudio"
	"github.com/antoniostano/navi/internal/brain"
	"github.com/antoniostano/navi/internal/config"
	"github.com/antoniostano/navi/internal/daemon"
	"github.com/antoniostano/navi/internal/httpapi"
	"github.com/antoniostano/navi/internal/memory"
	"github.com/antoniostano/navi/internal/observability"
	"github.com/antoniostano/navi/internal/session"
	"github.com/antoniostano/navi/internal/voice"
	"github.com/antoniostano/navi/internal/wake"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Listen for the wake phrase and hold conversations until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			return runDaemon(cmd.Context(), cfg, logger)
		},
	}
}

func runDaemon(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	store, err := openStore(ctx, cfg, logger, metrics)
	if err != nil {
		return err
	}

	detector, err := wake.New(cfg.WakePhrases, cfg.WakeThreshold)
	if err != nil {
		return fmt.Errorf("wake detector: %w", err)
	}

	stt, err := newTranscriber(cfg, logger)
	if err != nil {
		return err
	}

	speaker, err := newSpeaker(ctx, cfg, logger)
	if err != nil {
		return err
	}

	engine, err := brain.NewEngine(brain.Config{
		Mode:         cfg.EngineMode,
		APIKey:       cfg.OpenAIAPIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		Model:        cfg.OpenAIModel,
		SystemPrompt: cfg.SystemPrompt,
		Retries:      cfg.EngineRetries,
		Timeout:      cfg.EngineTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("completion engine: %w", err)
	}

	gate := audio.NewGate(cfg.SettleDelay)
	source := audio.NewSource(portaudio.NewDevice(cfg.MicDevice), gate, audio.SourceOptions{
		BlockSize: cfg.BlockSize,
		QueueSize: cfg.QueueSize,
		Logger:    logger,
		OnDrop:    metrics.FrameDropped,
	})
	defer source.Close()

	hub := httpapi.NewHub(0, logger)
	machine, err := session.NewMachine(session.Config{
		UserID:       cfg.UserID,
		MaxTurns:     cfg.MaxTurns,
		ListenWindow: cfg.ListenWindow,
		SilenceEnd:   cfg.SilenceEnd,
		WakeCuePath:  cfg.WakeCuePath,
		EmptyPrompt:  cfg.EmptyPrompt,
	}, session.Deps{
		Source:      source,
		Gate:        gate,
		Detector:    detector,
		Transcriber: stt,
		Speaker:     speaker,
		Engine:      engine,
		Memory:      store,
		Metrics:     metrics,
		Events:      hub,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("session machine: %w", err)
	}

	archivers, err := memory.NewArchivers(ctx, memory.BackupConfig{
		DatabaseURL: cfg.DatabaseURL,
		S3Bucket:    cfg.BackupS3Bucket,
		S3Prefix:    cfg.BackupS3Prefix,
	}, func(ctx context.Context) (aws.Config, error) { return loadAWS(ctx, cfg) })
	if err != nil {
		logger.Warn("memory backup sink unavailable", "error", err, "active", len(archivers))
	}
	defer memory.CloseAll(archivers)

	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if len(archivers) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			memory.RunBackups(ctx, store, cfg.BackupInterval, logger, archivers...)
		}()
	}

	if cfg.HTTPAddr != "" {
		api := httpapi.New(machine, store, metrics, hub, httpapi.Options{
			DefaultUserID:  cfg.UserID,
			AllowAnyOrigin: cfg.AllowAnyOrigin,
			Logger:         logger,
		})
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := api.Serve(ctx, cfg.HTTPAddr, cfg.ShutdownTimeout); err != nil {
				logger.Error("diagnostics server stopped", "error", err)
			}
		}()
	}

	if cfg.ConfigFile != "" {
		watcher := config.NewWatcher(cfg.ConfigFile, logger)
		watcher.OnChange(applyTunables(machine, logger))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watcher.Run(ctx); err != nil {
				logger.Error("config watcher stopped", "error", err)
			}
		}()
	}

	sup := daemon.New(daemon.CyclerFunc(func(ctx context.Context) error {
		// Start is idempotent; a device that failed to open is retried here.
		if err := source.Start(); err != nil {
			return fmt.Errorf("start audio capture: %w", err)
		}
		return machine.Cycle(ctx)
	}),
		daemon.WithCooldown(cfg.Cooldown),
		daemon.WithBackoff(cfg.Backoff),
		daemon.WithLogger(logger),
		daemon.WithRestartRecorder(metrics),
	)

	logger.Info("navi started",
		"user_id", cfg.UserID,
		"max_turns", cfg.MaxTurns,
		"http_addr", cfg.HTTPAddr,
		"backups", len(archivers),
	)
	err = sup.Run(ctx)
	cancel()
	logger.Info("shutdown complete")
	return err
}

// applyTunables swaps in the hot-reloadable settings. Everything else needs
// a restart.
func applyTunables(m *session.Machine, logger *slog.Logger) config.ChangeHandler {
	return func(cfg config.Config) {
		m.SetTunables(session.Tunables{
			MaxTurns:    cfg.MaxTurns,
			EmptyPrompt: cfg.EmptyPrompt,
		})
		d, err := wake.New(cfg.WakePhrases, cfg.WakeThreshold)
		if err != nil {
			logger.Error("reloaded wake phrases rejected", "error", err)
			return
		}
		m.SetDetector(d)
		logger.Info("tunables applied",
			"wake_phrases", d.Phrases(),
			"wake_threshold", d.Threshold(),
			"max_turns", cfg.MaxTurns,
		)
	}
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger, metrics *observability.Metrics) (*memory.Store, error) {
	store, err := memory.Open(cfg.MemoryPath,
		memory.WithLogger(logger),
		memory.WithMaxInteractions(cfg.MaxInteractions),
		memory.WithDigestSizes(cfg.DigestRecentFacts, cfg.DigestGlobalFacts),
		memory.WithCorruptionHook(metrics.MemoryCorrupted),
		memory.WithWriteHook(metrics.MemoryWritten),
	)
	if err != nil {
		return nil, fmt.Errorf("memory store: %w", err)
	}
	if cfg.MemorySeed != "" {
		if err := memory.SeedFile(ctx, store, cfg.MemorySeed); err != nil {
			return nil, fmt.Errorf("seed memory: %w", err)
		}
		logger.Info("memory seeded", "file", cfg.MemorySeed)
	}
	return store, nil
}

func newTranscriber(cfg config.Config, logger *slog.Logger) (voice.Transcriber, error) {
	if strings.EqualFold(cfg.STTMode, "mock") {
		logger.Warn("speech recognition is scripted; the wake phrase will never be heard")
		return voice.NewScriptedTranscriber(), nil
	}
	stt, err := voice.NewWhisperTranscriber(voice.WhisperConfig{
		CLI:       cfg.WhisperCLI,
		ModelPath: cfg.WhisperModel,
		Language:  cfg.WhisperLanguage,
		Threads:   cfg.WhisperThreads,
	})
	if err != nil {
		return nil, fmt.Errorf("speech recognition: %w", err)
	}
	return stt, nil
}

// newSpeaker returns Polly behind a console fallback, or the console alone.
// In auto mode a Polly setup failure degrades to the console.
func newSpeaker(ctx context.Context, cfg config.Config, logger *slog.Logger) (voice.Speaker, error) {
	console := voice.NewConsoleSpeaker(os.Stdout, logger)
	mode := strings.ToLower(cfg.TTSMode)
	if mode == "console" {
		return console, nil
	}

	polly, err := newPolly(ctx, cfg, logger)
	if err != nil {
		if mode == "polly" {
			return nil, fmt.Errorf("speech synthesis: %w", err)
		}
		logger.Warn("polly unavailable, replies will be printed", "error", err)
		return console, nil
	}
	return voice.NewFailoverSpeaker(polly, console, voice.DefaultPrimaryRetry, logger), nil
}

func newPolly(ctx context.Context, cfg config.Config, logger *slog.Logger) (*voice.PollySpeaker, error) {
	var args []string
	if strings.TrimSpace(cfg.PlayerCommand) == "mpg123" {
		args = []string{"-q"}
	}
	player, err := voice.NewExecPlayer(cfg.PlayerCommand, args...)
	if err != nil {
		return nil, err
	}
	awsCfg, err := loadAWS(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return voice.NewPollySpeaker(awsCfg, player, voice.PollyConfig{
		Voice:    cfg.PollyVoice,
		Engine:   cfg.PollyEngine,
		Language: cfg.PollyLanguage,
		CacheDir: cfg.TTSCacheDir,
	}, logger)
}

func loadAWS(ctx context.Context, cfg config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWSRegion))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}
