// ABOUTME: Malgo-based playback backend, one miniaudio device per peer
// ABOUTME: Device callbacks pull from the channel ring buffer and zero-fill on underrun
package output

import (
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/gen2brain/malgo"
	"github.com/sirupsen/logrus"
)

var malgoLog = logrus.WithField("component", "output/malgo")

// Malgo creates miniaudio playback devices sharing one context
type Malgo struct {
	opts Options

	mu       sync.Mutex
	malgoCtx *malgo.AllocatedContext
}

// NewMalgo creates a malgo backend. The miniaudio context is created on the
// first Open so a process without audio hardware can still start.
func NewMalgo(opts Options) *Malgo {
	return &Malgo{opts: opts}
}

// Name returns the backend name
func (b *Malgo) Name() string {
	return BackendMalgo
}

// NewChannel returns an unopened channel
func (b *Malgo) NewChannel() Channel {
	return &malgoChannel{backend: b}
}

// context returns the shared miniaudio context, creating it if needed
func (b *Malgo) context() (*malgo.AllocatedContext, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.malgoCtx != nil {
		return b.malgoCtx, nil
	}

	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		malgoLog.Debug(message)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to initialize malgo context: %v", ErrDeviceUnavailable, err)
	}
	b.malgoCtx = ctx
	return ctx, nil
}

// Close releases the shared context. Channels must be closed first.
func (b *Malgo) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.malgoCtx != nil {
		if err := b.malgoCtx.Uninit(); err != nil {
			malgoLog.WithError(err).Warn("Malgo context uninit error")
		}
		b.malgoCtx.Free()
		b.malgoCtx = nil
	}
	return nil
}

// malgoChannel plays one peer through its own device
type malgoChannel struct {
	stream
	backend *Malgo
	device  *malgo.Device
}

// Open starts a playback device for format
func (c *malgoChannel) Open(format audio.Format) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if open, current := c.isOpenWith(); open {
		if current == format {
			return nil
		}
		return fmt.Errorf("%w: open as %s, requested %s", ErrFormatMismatch, current, format)
	}

	// Map bit depth to malgo format
	var sampleFormat malgo.FormatType
	switch format.BitDepth {
	case 16:
		sampleFormat = malgo.FormatS16
	case 24:
		sampleFormat = malgo.FormatS24
	case 32:
		sampleFormat = malgo.FormatS32
	default:
		return fmt.Errorf("%w: bit depth %d (supported: 16, 24, 32)", ErrUnsupportedFormat, format.BitDepth)
	}

	ctx, err := c.backend.context()
	if err != nil {
		return err
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = sampleFormat
	deviceConfig.Playback.Channels = uint32(format.Channels)
	deviceConfig.SampleRate = uint32(format.SampleRate)
	deviceConfig.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, frameCount uint32) {
			c.fill(pOutput)
		},
		Stop: func() {
			malgoLog.Debug("Playback device stopped")
		},
	}

	// The buffer must exist before the first callback fires
	c.activate(format, bufferBytes(format, c.backend.opts.bufferMs()))

	device, err := malgo.InitDevice(ctx.Context, deviceConfig, callbacks)
	if err != nil {
		c.deactivate()
		return fmt.Errorf("%w: failed to initialize playback device: %v", ErrDeviceUnavailable, err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		c.deactivate()
		return fmt.Errorf("%w: failed to start device: %v", ErrDeviceUnavailable, err)
	}

	c.device = device

	malgoLog.WithField("format", format.String()).Debug("Playback device started")
	return nil
}

// Close stops and uninitializes the device
func (c *malgoChannel) Close() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	// Mark closed before stopping: Stop waits for the running callback,
	// which only needs the read lock.
	c.deactivate()

	if c.device != nil {
		if err := c.device.Stop(); err != nil {
			malgoLog.WithError(err).Warn("Device stop error")
		}
		c.device.Uninit()
		c.device = nil
	}
	return nil
}
