package audio

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// DefaultQueueSize bounds the number of frames buffered between the device
// callback and the consumer (about 50s of audio at the default block size).
const DefaultQueueSize = 512

// Drop reasons reported through SourceOptions.OnDrop.
const (
	DropMuted     = "muted"
	DropQueueFull = "queue_full"
)

var ErrSourceClosed = errors.New("audio source closed")

// DeliverFunc is invoked by a Device from its own callback goroutine. pcm is
// only valid for the duration of the call. status is empty unless the driver
// flagged an overflow/underflow condition for this block.
type DeliverFunc func(pcm []byte, status string)

// Device is a capture backend producing fixed-size PCM16LE blocks.
type Device interface {
	Start(format Format, blockSize int, deliver DeliverFunc) error
	Close() error
}

type SourceOptions struct {
	Format    Format
	BlockSize int
	QueueSize int
	Logger    *slog.Logger
	OnDrop    func(reason string)
}

// Source is the single producer of the capture pipeline: a device callback
// feeding a bounded FIFO drained by exactly one reader.
type Source struct {
	dev       Device
	gate      *Gate
	format    Format
	blockSize int
	frames    chan Frame
	logger    *slog.Logger
	onDrop    func(string)
	statusLog rate.Sometimes

	mu      sync.Mutex
	started bool
	closed  bool
}

func NewSource(dev Device, gate *Gate, opts SourceOptions) *Source {
	if opts.BlockSize <= 0 {
		opts.BlockSize = DefaultBlockSize
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Source{
		dev:       dev,
		gate:      gate,
		format:    opts.Format.Normalized(),
		blockSize: opts.BlockSize,
		frames:    make(chan Frame, opts.QueueSize),
		logger:    opts.Logger.With("component", "audio_source"),
		onDrop:    opts.OnDrop,
		statusLog: rate.Sometimes{First: 1, Interval: 5 * time.Second},
	}
}

// Start opens the device stream. It is safe to call once.
func (s *Source) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSourceClosed
	}
	if s.started {
		return nil
	}
	if err := s.dev.Start(s.format, s.blockSize, s.deliver); err != nil {
		return err
	}
	s.started = true
	s.logger.Info("audio capture started",
		"sample_rate", s.format.SampleRate,
		"channels", s.format.Channels,
		"block_size", s.blockSize,
	)
	return nil
}

// Frames is the consumer side of the queue. It is closed by Close.
func (s *Source) Frames() <-chan Frame { return s.frames }

// Format returns the capture format.
func (s *Source) Format() Format { return s.format }

// Drain discards every frame currently queued and returns how many were dropped.
func (s *Source) Drain() int {
	n := 0
	for {
		select {
		case _, ok := <-s.frames:
			if !ok {
				return n
			}
			n++
		default:
			return n
		}
	}
}

// Close stops the device and then closes the frame channel.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	var err error
	if s.started {
		err = s.dev.Close()
	}
	close(s.frames)
	return err
}

func (s *Source) deliver(pcm []byte, status string) {
	if status != "" {
		// Glitches are reported but never stop the stream.
		s.statusLog.Do(func() {
			s.logger.Warn("audio device status", "status", status)
		})
	}
	if s.gate.Muted() {
		s.drop(DropMuted)
		return
	}
	if len(pcm) == 0 {
		return
	}
	data := make([]byte, len(pcm))
	copy(data, pcm)
	frame := Frame{
		Data:       data,
		SampleRate: s.format.SampleRate,
		Channels:   s.format.Channels,
		CapturedAt: time.Now(),
	}
	select {
	case s.frames <- frame:
	default:
		s.drop(DropQueueFull)
	}
}

func (s *Source) drop(reason string) {
	if s.onDrop != nil {
		s.onDrop(reason)
	}
}
