package audio

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeWAVHeader(t *testing.T) {
	pcm := []byte{1, 0, 2, 0, 3, 0}
	out, err := EncodeWAV(pcm, Format{SampleRate: 16000, Channels: 1})
	require.NoError(t, err)

	require.Len(t, out, 44+len(pcm))
	assert.Equal(t, "RIFF", string(out[0:4]))
	assert.Equal(t, "WAVE", string(out[8:12]))
	assert.Equal(t, uint32(36+len(pcm)), binary.LittleEndian.Uint32(out[4:8]))
	assert.Equal(t, uint32(16000), binary.LittleEndian.Uint32(out[24:28]))
	assert.Equal(t, uint32(32000), binary.LittleEndian.Uint32(out[28:32]))
	assert.Equal(t, "data", string(out[36:40]))
	assert.Equal(t, pcm, out[44:])
}

func TestWriteFramesWAVFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "utterance.wav")
	frames := []Frame{
		{Data: []byte{1, 0}, SampleRate: 8000, Channels: 1},
		{Data: []byte{2, 0}, SampleRate: 8000, Channels: 1},
	}
	require.NoError(t, WriteFramesWAVFile(path, frames))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, uint32(8000), binary.LittleEndian.Uint32(b[24:28]))
	assert.Equal(t, []byte{1, 0, 2, 0}, b[44:])
}
