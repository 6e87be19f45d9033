package voice

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSynth struct {
	calls      []*polly.SynthesizeSpeechInput
	failEngine types.Engine
}

func (f *fakeSynth) SynthesizeSpeech(_ context.Context, in *polly.SynthesizeSpeechInput, _ ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error) {
	f.calls = append(f.calls, in)
	if in.Engine == f.failEngine {
		return nil, errors.New("engine not supported for voice")
	}
	return &polly.SynthesizeSpeechOutput{
		AudioStream: io.NopCloser(strings.NewReader("ID3" + aws.ToString(in.Text))),
	}, nil
}

type fakePlayer struct{ played []string }

func (p *fakePlayer) Play(_ context.Context, path string) error {
	p.played = append(p.played, path)
	return nil
}

func TestCacheKeyIsStable(t *testing.T) {
	a := CacheKey("Joanna", "neural", "en-US", "hello")
	assert.Equal(t, a, CacheKey("Joanna", "neural", "en-US", "hello"))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, CacheKey("Joanna", "standard", "en-US", "hello"))
	assert.NotEqual(t, a, CacheKey("Matthew", "neural", "en-US", "hello"))
}

func TestPollySpeakerCachesClips(t *testing.T) {
	synth := &fakeSynth{}
	player := &fakePlayer{}
	dir := t.TempDir()
	s, err := newPollySpeaker(synth, player, PollyConfig{CacheDir: dir}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Speak(ctx, "hello there"))
	require.NoError(t, s.Speak(ctx, "hello there"))

	assert.Len(t, synth.calls, 1)
	require.Len(t, player.played, 2)
	assert.Equal(t, player.played[0], player.played[1])
	b, err := os.ReadFile(player.played[0])
	require.NoError(t, err)
	assert.Equal(t, "ID3hello there", string(b))

	// A fresh speaker over the same directory reuses the disk cache.
	s2, err := newPollySpeaker(synth, player, PollyConfig{CacheDir: dir}, nil)
	require.NoError(t, err)
	require.NoError(t, s2.Speak(ctx, "hello there"))
	assert.Len(t, synth.calls, 1)
}

func TestPollySpeakerFallsBackToStandardEngine(t *testing.T) {
	synth := &fakeSynth{failEngine: types.EngineNeural}
	s, err := newPollySpeaker(synth, &fakePlayer{}, PollyConfig{CacheDir: t.TempDir()}, nil)
	require.NoError(t, err)

	_, err = s.Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	require.Len(t, synth.calls, 2)
	assert.Equal(t, types.EngineNeural, synth.calls[0].Engine)
	assert.Equal(t, types.EngineStandard, synth.calls[1].Engine)
}

func TestPollySpeakerMarksSSMLAndBlankText(t *testing.T) {
	synth := &fakeSynth{}
	s, err := newPollySpeaker(synth, &fakePlayer{}, PollyConfig{CacheDir: t.TempDir()}, nil)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.Synthesize(ctx, `<speak>Hi<break time="1s"/></speak>`)
	require.NoError(t, err)
	_, err = s.Synthesize(ctx, "   ")
	require.NoError(t, err)

	require.Len(t, synth.calls, 2)
	assert.Equal(t, types.TextTypeSsml, synth.calls[0].TextType)
	assert.Equal(t, types.TextType(""), synth.calls[1].TextType)
	assert.Equal(t, blankSpeech, aws.ToString(synth.calls[1].Text))
}
