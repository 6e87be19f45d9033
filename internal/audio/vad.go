package audio

import (
	"math"
	"time"
)

// VADConfig tunes the energy detector. Thresholds are normalized RMS levels
// in [0,1]; frame counts are consecutive frames needed to flip state.
type VADConfig struct {
	SpeechThreshold  float64
	SilenceThreshold float64
	SpeechFrames     int
	SilenceFrames    int
}

// DefaultVADConfig suits 100ms frames: 200ms of energy opens an utterance,
// 600ms of quiet closes it.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SpeechThreshold:  0.015,
		SilenceThreshold: 0.008,
		SpeechFrames:     2,
		SilenceFrames:    6,
	}
}

// VAD is an RMS energy voice activity detector with hysteresis.
type VAD struct {
	cfg          VADConfig
	inSpeech     bool
	speechCount  int
	silenceCount int
}

func NewVAD(cfg VADConfig) *VAD {
	def := DefaultVADConfig()
	if cfg.SpeechThreshold <= 0 {
		cfg.SpeechThreshold = def.SpeechThreshold
	}
	if cfg.SilenceThreshold <= 0 || cfg.SilenceThreshold > cfg.SpeechThreshold {
		cfg.SilenceThreshold = math.Min(def.SilenceThreshold, cfg.SpeechThreshold)
	}
	if cfg.SpeechFrames <= 0 {
		cfg.SpeechFrames = def.SpeechFrames
	}
	if cfg.SilenceFrames <= 0 {
		cfg.SilenceFrames = def.SilenceFrames
	}
	return &VAD{cfg: cfg}
}

// IsSpeech feeds one frame worth of samples and reports the smoothed state.
func (v *VAD) IsSpeech(pcm []int16) bool {
	level := rms(pcm)

	if v.inSpeech {
		if level < v.cfg.SilenceThreshold {
			v.silenceCount++
			v.speechCount = 0
			if v.silenceCount >= v.cfg.SilenceFrames {
				v.inSpeech = false
				v.silenceCount = 0
			}
		} else {
			v.silenceCount = 0
		}
	} else {
		if level >= v.cfg.SpeechThreshold {
			v.speechCount++
			v.silenceCount = 0
			if v.speechCount >= v.cfg.SpeechFrames {
				v.inSpeech = true
				v.speechCount = 0
			}
		} else {
			v.speechCount = 0
		}
	}
	return v.inSpeech
}

func (v *VAD) Reset() {
	v.inSpeech = false
	v.speechCount = 0
	v.silenceCount = 0
}

func rms(pcm []int16) float64 {
	if len(pcm) == 0 {
		return 0
	}
	var sum float64
	for _, s := range pcm {
		f := float64(s) / 32768.0
		sum += f * f
	}
	return math.Sqrt(sum / float64(len(pcm)))
}

// Segmenter groups a continuous frame stream into utterances using a VAD.
// Frames that precede the detected onset are kept so the first syllable
// is not clipped.
type Segmenter struct {
	vad     *VAD
	maxLen  time.Duration
	preroll []Frame
	keep    int
	buf     []Frame
	dur     time.Duration
	active  bool
}

// NewSegmenter returns a segmenter that force-closes utterances at maxLen.
func NewSegmenter(cfg VADConfig, maxLen time.Duration) *Segmenter {
	vad := NewVAD(cfg)
	if maxLen <= 0 {
		maxLen = 4 * time.Second
	}
	return &Segmenter{vad: vad, maxLen: maxLen, keep: vad.cfg.SpeechFrames + 1}
}

// Push feeds one frame. When an utterance completes it is returned with ok=true.
func (s *Segmenter) Push(f Frame) ([]Frame, bool) {
	speech := s.vad.IsSpeech(f.Samples())

	if !s.active {
		s.preroll = append(s.preroll, f)
		if len(s.preroll) > s.keep {
			s.preroll = s.preroll[len(s.preroll)-s.keep:]
		}
		if !speech {
			return nil, false
		}
		s.active = true
		s.buf = append(s.buf[:0], s.preroll...)
		s.preroll = s.preroll[:0]
		for _, p := range s.buf {
			s.dur += p.Duration()
		}
		return nil, false
	}

	s.buf = append(s.buf, f)
	s.dur += f.Duration()
	if speech && s.dur < s.maxLen {
		return nil, false
	}
	out := make([]Frame, len(s.buf))
	copy(out, s.buf)
	s.Reset()
	return out, true
}

// Reset drops any partial utterance.
func (s *Segmenter) Reset() {
	s.vad.Reset()
	s.buf = s.buf[:0]
	s.preroll = s.preroll[:0]
	s.dur = 0
	s.active = false
}

// Active reports whether an utterance is in progress.
func (s *Segmenter) Active() bool { return s.active }
