// ABOUTME: Microphone capture over a miniaudio capture device
// ABOUTME: Slices callback data into fixed 20ms frames delivered on a channel
package capture

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

// ErrDeviceUnavailable is shared with playback so callers check one sentinel
var ErrDeviceUnavailable = output.ErrDeviceUnavailable

// frameQueue is how many frames may wait for the consumer
const frameQueue = 16

var log = logrus.WithField("component", "capture")

// Microphone records the default input device at the session format
type Microphone struct {
	format audio.Format
	framer *framer
	frames chan []byte

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
	device   *malgo.Device
	closed   bool

	dropped atomic.Uint64
}

// NewMicrophone creates an idle microphone
func NewMicrophone(format audio.Format) *Microphone {
	return &Microphone{
		format: format,
		framer: newFramer(format.BytesFor(audio.FrameDuration)),
		frames: make(chan []byte, frameQueue),
	}
}

// Frames returns captured frames. Each frame is exactly 20ms of PCM.
func (m *Microphone) Frames() <-chan []byte {
	return m.frames
}

// Dropped returns how many frames were discarded because the consumer lagged
func (m *Microphone) Dropped() uint64 {
	return m.dropped.Load()
}

// Start opens the capture device. The device stops when ctx is done.
func (m *Microphone) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.device != nil {
		return nil
	}
	if m.closed {
		return fmt.Errorf("microphone closed")
	}
	if m.format.BitDepth != 16 {
		return fmt.Errorf("%w: capture supports 16-bit only, got %d", ErrDeviceUnavailable, m.format.BitDepth)
	}

	malgoCtx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug(message)
	})
	if err != nil {
		return fmt.Errorf("%w: failed to initialize malgo context: %v", ErrDeviceUnavailable, err)
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(m.format.Channels)
	deviceConfig.SampleRate = uint32(m.format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			m.framer.push(pInput, m.offer)
		},
	}

	device, err := malgo.InitDevice(malgoCtx.Context, deviceConfig, callbacks)
	if err != nil {
		malgoCtx.Uninit()
		malgoCtx.Free()
		return fmt.Errorf("%w: failed to initialize capture device: %v", ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		malgoCtx.Uninit()
		malgoCtx.Free()
		return fmt.Errorf("%w: failed to start capture device: %v", ErrDeviceUnavailable, err)
	}

	m.malgoCtx = malgoCtx
	m.device = device

	log.WithField("format", m.format.String()).Info("Microphone started")

	go func() {
		<-ctx.Done()
		m.Close()
	}()

	return nil
}

// offer queues a frame, discarding the oldest queued frame when full
func (m *Microphone) offer(frame []byte) {
	for {
		select {
		case m.frames <- frame:
			return
		default:
		}

		select {
		case <-m.frames:
			m.dropped.Add(1)
		default:
		}
	}
}

// Close stops the device and closes the frame channel
func (m *Microphone) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if m.device != nil {
		if err := m.device.Stop(); err != nil {
			log.WithError(err).Warn("Capture device stop error")
		}
		m.device.Uninit()
		m.device = nil
	}
	if m.malgoCtx != nil {
		m.malgoCtx.Uninit()
		m.malgoCtx.Free()
		m.malgoCtx = nil
	}

	// The callback is stopped, nothing sends on frames anymore
	close(m.frames)
	return nil
}

// framer cuts a byte stream into fixed-size frames
type framer struct {
	size    int
	pending []byte
}

func newFramer(size int) *framer {
	if size < 1 {
		size = 1
	}
	return &framer{size: size, pending: make([]byte, 0, size)}
}

// push appends data and emits every completed frame. Emitted frames are
// freshly allocated and owned by the receiver.
func (f *framer) push(data []byte, emit func([]byte)) {
	for len(data) > 0 {
		n := min(f.size-len(f.pending), len(data))
		f.pending = append(f.pending, data[:n]...)
		data = data[n:]

		if len(f.pending) == f.size {
			frame := make([]byte, f.size)
			copy(frame, f.pending)
			f.pending = f.pending[:0]
			emit(frame)
		}
	}
}
