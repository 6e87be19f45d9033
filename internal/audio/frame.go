package audio

import "time"

const (
	// DefaultSampleRate is the capture rate expected by the speech-to-text backends.
	DefaultSampleRate = 16000
	// DefaultChannels is mono capture.
	DefaultChannels = 1
	// DefaultBlockSize is the number of samples per delivered frame (100ms at 16kHz).
	DefaultBlockSize = 1600
	// BytesPerSample is the PCM16LE sample width.
	BytesPerSample = 2
)

// Format describes the PCM layout of captured audio.
type Format struct {
	SampleRate int
	Channels   int
}

// DefaultFormat returns 16kHz mono PCM16.
func DefaultFormat() Format {
	return Format{SampleRate: DefaultSampleRate, Channels: DefaultChannels}
}

// Normalized fills unset fields with the defaults.
func (f Format) Normalized() Format {
	if f.SampleRate <= 0 {
		f.SampleRate = DefaultSampleRate
	}
	if f.Channels <= 0 {
		f.Channels = DefaultChannels
	}
	return f
}

// Frame is one fixed-size block of PCM16LE audio. Once a Frame has been
// received from a Source the consumer owns Data outright.
type Frame struct {
	Data       []byte
	SampleRate int
	Channels   int
	CapturedAt time.Time
}

// Duration reports how much audio the frame holds.
func (f Frame) Duration() time.Duration {
	rate := f.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	ch := f.Channels
	if ch <= 0 {
		ch = DefaultChannels
	}
	samples := len(f.Data) / (BytesPerSample * ch)
	return time.Duration(samples) * time.Second / time.Duration(rate)
}

// Samples decodes the frame's little-endian PCM16 payload.
func (f Frame) Samples() []int16 {
	out := make([]int16, len(f.Data)/BytesPerSample)
	for i := range out {
		out[i] = int16(uint16(f.Data[2*i]) | uint16(f.Data[2*i+1])<<8)
	}
	return out
}

// JoinPCM concatenates the payloads of frames in order.
func JoinPCM(frames []Frame) []byte {
	n := 0
	for _, f := range frames {
		n += len(f.Data)
	}
	out := make([]byte, 0, n)
	for _, f := range frames {
		out = append(out, f.Data...)
	}
	return out
}
