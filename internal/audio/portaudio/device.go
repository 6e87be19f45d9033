// Package portaudio captures microphone audio through PortAudio. It lives
// apart from package audio because it needs cgo and libportaudio.
package portaudio

import (
	"fmt"
	"strings"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/antoniostano/navi/internal/audio"
)

// Device captures from a PortAudio input device. A negative index selects
// the system default input. It implements audio.Device.
type Device struct {
	index int

	mu     sync.Mutex
	stream *pa.Stream
	buf    []byte
}

var _ audio.Device = (*Device)(nil)

func NewDevice(index int) *Device {
	return &Device{index: index}
}

func (d *Device) Start(format audio.Format, blockSize int, deliver audio.DeliverFunc) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream != nil {
		return nil
	}
	format = format.Normalized()

	if err := pa.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	dev, err := d.inputDevice()
	if err != nil {
		_ = pa.Terminate()
		return err
	}

	params := pa.LowLatencyParameters(dev, nil)
	params.Input.Channels = format.Channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = blockSize

	d.buf = make([]byte, blockSize*format.Channels*audio.BytesPerSample)
	callback := func(in []int16, _ pa.StreamCallbackTimeInfo, flags pa.StreamCallbackFlags) {
		n := len(in) * audio.BytesPerSample
		if n > len(d.buf) {
			d.buf = make([]byte, n)
		}
		out := d.buf[:n]
		for i, v := range in {
			out[2*i] = byte(uint16(v))
			out[2*i+1] = byte(uint16(v) >> 8)
		}
		deliver(out, describeFlags(flags))
	}

	stream, err := pa.OpenStream(params, callback)
	if err != nil {
		_ = pa.Terminate()
		return fmt.Errorf("open input stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return fmt.Errorf("start input stream: %w", err)
	}
	d.stream = stream
	return nil
}

func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stream == nil {
		return nil
	}
	stopErr := d.stream.Stop()
	closeErr := d.stream.Close()
	d.stream = nil
	termErr := pa.Terminate()
	for _, err := range []error{stopErr, closeErr, termErr} {
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *Device) inputDevice() (*pa.DeviceInfo, error) {
	if d.index < 0 {
		dev, err := pa.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("default input device: %w", err)
		}
		return dev, nil
	}
	devices, err := pa.Devices()
	if err != nil {
		return nil, fmt.Errorf("list audio devices: %w", err)
	}
	if d.index >= len(devices) {
		return nil, fmt.Errorf("audio device index %d out of range (have %d)", d.index, len(devices))
	}
	dev := devices[d.index]
	if dev.MaxInputChannels <= 0 {
		return nil, fmt.Errorf("audio device %d (%s) has no input channels", d.index, dev.Name)
	}
	return dev, nil
}

// ListInputDevices returns "index: name" lines for every capture-capable device.
func ListInputDevices() ([]string, error) {
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer pa.Terminate()
	devices, err := pa.Devices()
	if err != nil {
		return nil, err
	}
	var out []string
	for i, dev := range devices {
		if dev.MaxInputChannels <= 0 {
			continue
		}
		out = append(out, fmt.Sprintf("%d: %s (%d ch, %.0f Hz)", i, dev.Name, dev.MaxInputChannels, dev.DefaultSampleRate))
	}
	return out, nil
}

func describeFlags(flags pa.StreamCallbackFlags) string {
	if flags == 0 {
		return ""
	}
	var parts []string
	if flags&pa.InputUnderflow != 0 {
		parts = append(parts, "input underflow")
	}
	if flags&pa.InputOverflow != 0 {
		parts = append(parts, "input overflow")
	}
	if len(parts) == 0 {
		return fmt.Sprintf("flags=%d", flags)
	}
	return strings.Join(parts, ", ")
}
