package voice

import (
	"context"

	"github.com/antoniostano/navi/internal/audio"
)

// Transcript is the result of one speech-to-text call.
type Transcript struct {
	Text  string
	Final bool
}

// Transcriber turns captured frames into text. Empty audio yields a final,
// empty transcript and no error.
type Transcriber interface {
	Transcribe(ctx context.Context, frames []audio.Frame) (Transcript, error)
}

// Speaker renders replies audibly. Both calls block until playback ends.
type Speaker interface {
	Speak(ctx context.Context, text string) error
	PlayFile(ctx context.Context, path string) error
}

// Player plays an audio file to the default output device.
type Player interface {
	Play(ctx context.Context, path string) error
}
