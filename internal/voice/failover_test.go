package voice

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubSpeaker struct {
	err     error
	playErr error
	speaks  int
	plays   int
}

func (s *stubSpeaker) Speak(context.Context, string) error {
	s.speaks++
	return s.err
}

func (s *stubSpeaker) PlayFile(context.Context, string) error {
	s.plays++
	return s.playErr
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestFailover(primary, fallback Speaker) (*FailoverSpeaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	s := NewFailoverSpeaker(primary, fallback, time.Minute, nil)
	s.now = clock.now
	return s, clock
}

func TestFailoverSpeakerFallsBackWithinRetryWindow(t *testing.T) {
	ctx := context.Background()
	primary := &stubSpeaker{err: errors.New("polly unavailable")}
	fallback := &stubSpeaker{}
	s, clock := newTestFailover(primary, fallback)

	require.NoError(t, s.Speak(ctx, "one"))
	assert.True(t, s.FallbackActive())
	clock.advance(30 * time.Second)
	require.NoError(t, s.Speak(ctx, "two"))

	assert.Equal(t, 1, primary.speaks)
	assert.Equal(t, 2, fallback.speaks)
}

func TestFailoverSpeakerRetriesRecoveredPrimary(t *testing.T) {
	ctx := context.Background()
	primary := &stubSpeaker{err: errors.New("polly unavailable")}
	fallback := &stubSpeaker{}
	s, clock := newTestFailover(primary, fallback)

	require.NoError(t, s.Speak(ctx, "one"))
	primary.err = nil
	clock.advance(time.Minute + time.Second)
	assert.False(t, s.FallbackActive())

	for range 5 {
		require.NoError(t, s.Speak(ctx, "again"))
	}
	assert.Equal(t, 6, primary.speaks)
	assert.Equal(t, 1, fallback.speaks)
	assert.False(t, s.FallbackActive())
}

func TestFailoverSpeakerPlayFileFailureKeepsSpeakOnPrimary(t *testing.T) {
	ctx := context.Background()
	primary := &stubSpeaker{playErr: errors.New("no mp3 decoder")}
	fallback := &stubSpeaker{}
	s, _ := newTestFailover(primary, fallback)

	require.Error(t, s.PlayFile(ctx, "cue.mp3"))
	for range 100 {
		require.NoError(t, s.Speak(ctx, "hello"))
	}
	assert.Equal(t, 100, primary.speaks)
	assert.Zero(t, fallback.speaks)
	assert.Zero(t, fallback.plays)
	assert.False(t, s.FallbackActive())
}

func TestFailoverSpeakerRetriesPrimaryWhenFallbackFails(t *testing.T) {
	ctx := context.Background()
	primary := &stubSpeaker{err: errors.New("polly unavailable")}
	fallback := &stubSpeaker{}
	s, _ := newTestFailover(primary, fallback)

	require.NoError(t, s.Speak(ctx, "one"))
	primary.err = nil
	fallback.err = errors.New("stdout closed")

	require.NoError(t, s.Speak(ctx, "two"))
	assert.False(t, s.FallbackActive())
	assert.Equal(t, 2, primary.speaks)
}

func TestFailoverSpeakerReportsBothFailures(t *testing.T) {
	s, _ := newTestFailover(&stubSpeaker{err: errors.New("polly unavailable")}, &stubSpeaker{err: errors.New("no console")})

	err := s.Speak(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "polly unavailable")
	assert.Contains(t, err.Error(), "no console")
}
