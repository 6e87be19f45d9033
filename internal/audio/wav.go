package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"
	"os"
)

// EncodeWAV wraps raw PCM16LE audio in a WAV container.
func EncodeWAV(pcm []byte, format Format) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteWAV(&buf, pcm, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// WriteFramesWAVFile writes captured frames to path as a single WAV file.
// The format of the first frame wins; an empty slice yields a valid empty file.
func WriteFramesWAVFile(path string, frames []Frame) error {
	format := DefaultFormat()
	if len(frames) > 0 {
		format = Format{SampleRate: frames[0].SampleRate, Channels: frames[0].Channels}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteWAV(f, JoinPCM(frames), format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteWAV writes a RIFF/WAVE stream carrying PCM16LE samples.
func WriteWAV(out io.Writer, pcm []byte, format Format) error {
	const (
		bitsPerSample = 16
		audioFormat   = 1 // PCM
	)
	format = format.Normalized()

	dataSize := uint32(len(pcm))
	byteRate := uint32(format.SampleRate * format.Channels * bitsPerSample / 8)
	blockAlign := uint16(format.Channels * bitsPerSample / 8)

	w := bufio.NewWriter(out)
	le := binary.LittleEndian

	header := []any{
		[4]byte{'R', 'I', 'F', 'F'},
		uint32(36) + dataSize,
		[4]byte{'W', 'A', 'V', 'E'},
		[4]byte{'f', 'm', 't', ' '},
		uint32(16),
		uint16(audioFormat),
		uint16(format.Channels),
		uint32(format.SampleRate),
		byteRate,
		blockAlign,
		uint16(bitsPerSample),
		[4]byte{'d', 'a', 't', 'a'},
		dataSize,
	}
	for _, field := range header {
		if err := binary.Write(w, le, field); err != nil {
			return err
		}
	}
	if _, err := w.Write(pcm); err != nil {
		return err
	}
	return w.Flush()
}
