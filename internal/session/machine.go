// Package session runs the wake-initiated conversation loop: wait for a
// wake phrase, then alternate listening and replying until the user stops,
// goes quiet or the turn cap is reached.
package session

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/antoniostano/navi/internal/audio"
	"github.com/antoniostano/navi/internal/brain"
	"github.com/antoniostano/navi/internal/observability"
	"github.com/antoniostano/navi/internal/protocol"
	"github.com/antoniostano/navi/internal/redact"
	"github.com/antoniostano/navi/internal/voice"
	"github.com/antoniostano/navi/internal/wake"
)

const (
	DefaultUserID       = "default_user"
	DefaultMaxTurns     = 5
	DefaultListenWindow = 5 * time.Second
	DefaultSegmentMax   = 4 * time.Second
	DefaultWakeReply    = "Yes?"
	DefaultEmptyPrompt  = "I didn't catch that. Please repeat the command."
	DefaultStopReply    = "Okay."
	DefaultApology      = "My brain link is acting up. Please try again in a moment."
)

// logTextLimit clips transcripts in log lines.
const logTextLimit = 120

var stopPattern = regexp.MustCompile(`(?i)\b(stop|cancel|nevermind|never mind|that's all|thanks navi|thank you navi|goodbye)\b`)

// IsStopPhrase reports whether text asks to end the conversation.
func IsStopPhrase(text string) bool { return stopPattern.MatchString(text) }

// FrameSource is the consumer side of the audio pipeline.
type FrameSource interface {
	Frames() <-chan audio.Frame
	// Drain discards queued frames and reports how many were dropped.
	Drain() int
}

// Memory is the subset of the memory store the machine needs.
type Memory interface {
	MemoryWriter
	GetContext(ctx context.Context, id string) (string, error)
	SetRecentSummary(ctx context.Context, id, summary string) error
	RecordInteraction(ctx context.Context, id, userText, reply string) error
}

// Publisher fans protocol events out to observers.
type Publisher interface {
	Publish(event any)
}

// Config holds the static machine settings.
type Config struct {
	UserID       string
	MaxTurns     int
	ListenWindow time.Duration
	// SilenceEnd ends a command window early once speech has been followed
	// by this much quiet. Zero keeps the fixed window.
	SilenceEnd  time.Duration
	SegmentMax  time.Duration
	VAD         audio.VADConfig
	WakeCuePath string
	WakeReply   string
	EmptyPrompt string
	StopReply   string
	Apology     string
}

// Tunables are the settings that can change while the daemon runs.
type Tunables struct {
	MaxTurns    int
	EmptyPrompt string
}

// Deps are the collaborators a Machine drives.
type Deps struct {
	Source      FrameSource
	Gate        *audio.Gate
	Detector    *wake.Detector
	Transcriber voice.Transcriber
	Speaker     voice.Speaker
	Engine      brain.Engine
	Memory      Memory
	Metrics     *observability.Metrics
	Events      Publisher
	Logger      *slog.Logger
	Clock       func() time.Time
}

// Machine is the session state machine. It is driven from a single
// goroutine; Status and the setters are safe from any goroutine.
type Machine struct {
	cfg       Config
	source    FrameSource
	gate      *audio.Gate
	detector  atomic.Pointer[wake.Detector]
	tunables  atomic.Pointer[Tunables]
	stt       voice.Transcriber
	speaker   voice.Speaker
	engine    brain.Engine
	mem       Memory
	metrics   *observability.Metrics
	events    Publisher
	logger    *slog.Logger
	now       func() time.Time
	tracker   *tracker
	segmenter *audio.Segmenter
}

func NewMachine(cfg Config, deps Deps) (*Machine, error) {
	switch {
	case deps.Source == nil:
		return nil, errors.New("session machine requires a frame source")
	case deps.Detector == nil:
		return nil, errors.New("session machine requires a wake detector")
	case deps.Transcriber == nil:
		return nil, errors.New("session machine requires a transcriber")
	case deps.Speaker == nil:
		return nil, errors.New("session machine requires a speaker")
	case deps.Engine == nil:
		return nil, errors.New("session machine requires a completion engine")
	case deps.Memory == nil:
		return nil, errors.New("session machine requires a memory store")
	}

	cfg = withDefaults(cfg)
	if deps.Gate == nil {
		deps.Gate = audio.NewGate(audio.DefaultSettleDelay)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Clock == nil {
		deps.Clock = func() time.Time { return time.Now().UTC() }
	}

	m := &Machine{
		cfg:       cfg,
		source:    deps.Source,
		gate:      deps.Gate,
		stt:       deps.Transcriber,
		speaker:   deps.Speaker,
		engine:    deps.Engine,
		mem:       deps.Memory,
		metrics:   deps.Metrics,
		events:    deps.Events,
		logger:    deps.Logger.With("component", "session"),
		now:       deps.Clock,
		tracker:   newTracker(deps.Clock),
		segmenter: audio.NewSegmenter(cfg.VAD, cfg.SegmentMax),
	}
	m.detector.Store(deps.Detector)
	m.tunables.Store(&Tunables{MaxTurns: cfg.MaxTurns, EmptyPrompt: cfg.EmptyPrompt})
	return m, nil
}

func withDefaults(cfg Config) Config {
	if strings.TrimSpace(cfg.UserID) == "" {
		cfg.UserID = DefaultUserID
	}
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.ListenWindow <= 0 {
		cfg.ListenWindow = DefaultListenWindow
	}
	if cfg.SegmentMax <= 0 {
		cfg.SegmentMax = DefaultSegmentMax
	}
	if cfg.WakeReply == "" {
		cfg.WakeReply = DefaultWakeReply
	}
	if strings.TrimSpace(cfg.EmptyPrompt) == "" {
		cfg.EmptyPrompt = DefaultEmptyPrompt
	}
	if cfg.StopReply == "" {
		cfg.StopReply = DefaultStopReply
	}
	if cfg.Apology == "" {
		cfg.Apology = DefaultApology
	}
	return cfg
}

// Gate returns the mic-mute gate shared with the audio source.
func (m *Machine) Gate() *audio.Gate { return m.gate }

// Status reports the current state and session.
func (m *Machine) Status() Status { return m.tracker.status() }

// SetDetector swaps the wake detector. It takes effect on the next
// transcript.
func (m *Machine) SetDetector(d *wake.Detector) {
	if d != nil {
		m.detector.Store(d)
	}
}

// SetTunables replaces the hot-reloadable settings. A running session picks
// them up at its next turn.
func (m *Machine) SetTunables(t Tunables) {
	if t.MaxTurns <= 0 {
		t.MaxTurns = m.cfg.MaxTurns
	}
	if strings.TrimSpace(t.EmptyPrompt) == "" {
		t.EmptyPrompt = m.cfg.EmptyPrompt
	}
	m.tunables.Store(&t)
}

// Cycle waits for one wake phrase and runs the resulting session.
func (m *Machine) Cycle(ctx context.Context) error {
	if _, err := m.WaitForWake(ctx); err != nil {
		return err
	}
	_, err := m.RunSession(ctx, m.cfg.UserID)
	return err
}

// WaitForWake consumes frames in Idle until a transcript matches a wake
// phrase. Transcription errors are logged and listening continues.
func (m *Machine) WaitForWake(ctx context.Context) (wake.Match, error) {
	m.transition(StateIdle, nil, "")
	m.segmenter.Reset()
	frames := m.source.Frames()

	for {
		select {
		case <-ctx.Done():
			return wake.Match{}, ctx.Err()
		case f, ok := <-frames:
			if !ok {
				return wake.Match{}, audio.ErrSourceClosed
			}
			segment, done := m.segmenter.Push(f)
			if !done {
				continue
			}

			start := time.Now()
			tr, err := m.stt.Transcribe(ctx, segment)
			m.metrics.ObserveStage(observability.StageWakeTranscribe, time.Since(start))
			if err != nil {
				if ctx.Err() != nil {
					return wake.Match{}, ctx.Err()
				}
				m.logger.Warn("wake transcription failed", "error", err)
				continue
			}
			text := strings.TrimSpace(tr.Text)
			if !tr.Final || text == "" {
				continue
			}
			m.logger.Debug("heard", "text", redact.Display(text, logTextLimit))

			match, ok := m.detector.Load().Match(text)
			if !ok {
				continue
			}
			m.logger.Info("wake phrase detected",
				"heard", redact.Display(text, logTextLimit), "phrase", match.Phrase, "score", match.Score, "method", match.Method)
			m.metrics.WakeDetected(string(match.Method))
			m.publish(protocol.WakeEvent{
				Type:   protocol.TypeWake,
				Heard:  redact.Display(text, 0),
				Phrase: match.Phrase,
				Score:  match.Score,
				Method: string(match.Method),
				TSMs:   m.now().UnixMilli(),
			})
			return match, nil
		}
	}
}

// RunSession runs one conversation for userID, starting in WakeDetected.
// It returns the ended session. Only one session may run at a time.
func (m *Machine) RunSession(ctx context.Context, userID string) (Session, error) {
	if strings.TrimSpace(userID) == "" {
		userID = m.cfg.UserID
	}
	sess, err := m.tracker.begin(userID)
	if err != nil {
		return Session{}, err
	}
	m.metrics.SessionStarted()
	logger := m.logger.With("session_id", sess.ID, "user_id", userID)
	logger.Info("session started")

	var (
		utterances []string
		reason     EndReason
		runErr     error
		finished   bool
	)
	defer func() {
		if finished {
			return
		}
		// converse panicked; release the session before re-raising.
		aborted := m.tracker.end(EndError)
		m.metrics.SessionEnded(string(EndError))
		m.metrics.Transition(string(StateIdle))
		m.publishState(StateIdle, aborted, EndError)
		logger.Error("session aborted by panic")
	}()
	reason, runErr = m.converse(ctx, sess, logger, &utterances)
	finished = true

	ended := m.tracker.end(reason)
	m.metrics.SessionEnded(string(reason))
	m.metrics.Transition(string(StateIdle))
	m.publishState(StateIdle, ended, reason)

	if ended.TurnCount > 0 {
		if summary := summarize(utterances); summary != "" {
			// The summary is written even when shutdown cancelled the session.
			if err := m.mem.SetRecentSummary(context.WithoutCancel(ctx), userID, summary); err != nil {
				logger.Warn("store session summary failed", "error", err)
			}
		}
	}
	logger.Info("session ended", "reason", reason, "turns", ended.TurnCount)
	return *ended, runErr
}

func (m *Machine) converse(ctx context.Context, sess *Session, logger *slog.Logger, utterances *[]string) (EndReason, error) {
	m.transition(StateWakeDetected, sess, "")
	m.acknowledge(ctx, logger)

	for {
		if ctx.Err() != nil {
			return EndCancelled, ctx.Err()
		}
		tun := m.tunables.Load()
		m.transition(StateAwaitingCommand, sess, "")

		frames, err := m.listen(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return EndCancelled, ctx.Err()
			}
			return EndError, err
		}

		turnStart := time.Now()
		text := m.transcribeCommand(ctx, frames, logger)
		if ctx.Err() != nil {
			return EndCancelled, ctx.Err()
		}

		if text == "" {
			logger.Info("no command heard")
			m.say(ctx, tun.EmptyPrompt, logger)
			return EndEmpty, nil
		}
		if IsStopPhrase(text) {
			logger.Info("stop phrase heard", "text", redact.Display(text, logTextLimit))
			m.say(ctx, m.cfg.StopReply, logger)
			return EndStop, nil
		}

		m.transition(StateResponding, sess, "")
		reply, source, record := m.respond(ctx, sess.UserID, text, logger)
		m.say(ctx, reply, logger)
		if record {
			if err := m.mem.RecordInteraction(ctx, sess.UserID, text, reply); err != nil {
				logger.Warn("record interaction failed", "error", err)
			}
		}
		*utterances = append(*utterances, text)

		sess.TurnCount = m.tracker.completeTurn()
		m.metrics.TurnCompleted()
		m.metrics.ObserveStage(observability.StageTurnTotal, time.Since(turnStart))
		m.publish(protocol.TurnEvent{
			Type:      protocol.TypeTurn,
			SessionID: sess.ID,
			Turn:      sess.TurnCount,
			UserText:  redact.Display(text, 0),
			Reply:     redact.Display(reply, 0),
			Source:    source,
			TSMs:      m.now().UnixMilli(),
		})
		logger.Info("turn completed", "turn", sess.TurnCount, "source", source)

		if sess.TurnCount >= tun.MaxTurns {
			return EndMaxTurns, nil
		}
	}
}

func (m *Machine) acknowledge(ctx context.Context, logger *slog.Logger) {
	if m.cfg.WakeCuePath != "" {
		err := m.gate.Guard(ctx, func(ctx context.Context) error {
			return m.speaker.PlayFile(ctx, m.cfg.WakeCuePath)
		})
		switch {
		case err == nil:
			return
		case errors.Is(err, voice.ErrCueUnsupported):
			logger.Debug("wake cue not playable, speaking reply", "path", m.cfg.WakeCuePath)
		default:
			logger.Warn("wake cue playback failed", "path", m.cfg.WakeCuePath, "error", err)
		}
	}
	m.say(ctx, m.cfg.WakeReply, logger)
}

// listen captures one command window. The window ends on its deadline,
// once a full window of audio has arrived, or on trailing silence when
// silence endpointing is enabled.
func (m *Machine) listen(ctx context.Context) ([]audio.Frame, error) {
	if n := m.source.Drain(); n > 0 {
		m.logger.Debug("drained stale frames", "frames", n)
	}
	window := m.cfg.ListenWindow
	timer := time.NewTimer(window)
	defer timer.Stop()

	var (
		frames   []audio.Frame
		captured time.Duration
		heard    bool
		vad      *audio.VAD
	)
	src := m.source.Frames()
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
			return frames, nil
		case f, ok := <-src:
			if !ok {
				return frames, audio.ErrSourceClosed
			}
			frames = append(frames, f)
			d := f.Duration()
			captured += d
			if captured >= window {
				return frames, nil
			}
			if m.cfg.SilenceEnd <= 0 || d <= 0 {
				continue
			}
			if vad == nil {
				// The VAD's own release hysteresis is the silence timer.
				vc := m.cfg.VAD
				vc.SilenceFrames = max(1, int((m.cfg.SilenceEnd+d-1)/d))
				vad = audio.NewVAD(vc)
			}
			if vad.IsSpeech(f.Samples()) {
				heard = true
			} else if heard {
				return frames, nil
			}
		}
	}
}

func (m *Machine) transcribeCommand(ctx context.Context, frames []audio.Frame, logger *slog.Logger) string {
	start := time.Now()
	tr, err := m.stt.Transcribe(ctx, frames)
	m.metrics.ObserveStage(observability.StageCommandTranscribe, time.Since(start))
	if err != nil {
		if ctx.Err() == nil {
			logger.Warn("command transcription failed", "error", err)
		}
		return ""
	}
	return strings.TrimSpace(tr.Text)
}

// respond produces the reply for one command. record is false when the
// reply is the apology for a failed engine call.
func (m *Machine) respond(ctx context.Context, userID, text string, logger *slog.Logger) (reply, source string, record bool) {
	hookReply, handled, err := HandleMemoryPhrases(ctx, m.mem, userID, text)
	if err != nil {
		logger.Warn("memory phrase hook failed", "error", err)
	}
	if handled {
		return hookReply, "memory", true
	}

	digest, err := m.mem.GetContext(ctx, userID)
	if err != nil {
		logger.Warn("load memory context failed", "error", err)
		digest = ""
	}

	start := time.Now()
	raw, err := m.engine.Complete(ctx, text, digest)
	m.metrics.ObserveStage(observability.StageEngine, time.Since(start))
	if err != nil {
		m.metrics.EngineFailed()
		logger.Error("completion engine failed", "error", err)
		return m.cfg.Apology, "apology", false
	}
	return PostProcessReply(text, raw), "engine", true
}

// say speaks text with capture muted. Playback failures are logged and
// never end the session.
func (m *Machine) say(ctx context.Context, text string, logger *slog.Logger) {
	if strings.TrimSpace(text) == "" {
		return
	}
	start := time.Now()
	err := m.gate.Guard(ctx, func(ctx context.Context) error {
		return m.speaker.Speak(ctx, text)
	})
	m.metrics.ObserveStage(observability.StageSpeak, time.Since(start))
	if err != nil {
		m.metrics.SpeakFailed()
		logger.Error("speak failed", "error", err, "text", redact.Display(text, logTextLimit))
	}
}

func (m *Machine) transition(state State, sess *Session, reason EndReason) {
	if !m.tracker.setState(state) {
		return
	}
	m.metrics.Transition(string(state))
	m.logger.Debug("state transition", "state", state)
	m.publishState(state, sess, reason)
}

func (m *Machine) publishState(state State, sess *Session, reason EndReason) {
	ev := protocol.StateEvent{
		Type:   protocol.TypeState,
		State:  string(state),
		Reason: string(reason),
		TSMs:   m.now().UnixMilli(),
	}
	if sess != nil {
		ev.SessionID = sess.ID
		ev.UserID = sess.UserID
		ev.Turn = sess.TurnCount
	}
	m.publish(ev)
}

func (m *Machine) publish(ev any) {
	if m.events != nil {
		m.events.Publish(ev)
	}
}
