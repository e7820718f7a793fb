// ABOUTME: Oto-based playback backend, one oto.Player per peer
// ABOUTME: Players read continuously from the channel ring buffer through a zero-filling reader
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/ebitengine/oto/v3"
	"github.com/sirupsen/logrus"
)

var otoLog = logrus.WithField("component", "output/oto")

// playerBufferMs bounds the latency oto adds on top of the ring buffer
const playerBufferMs = 60

// Oto shares the process-wide oto context between channels. oto allows only
// one context per process, so every channel must use the same format.
type Oto struct {
	opts Options

	mu     sync.Mutex
	otoCtx *oto.Context
	format audio.Format
}

// NewOto creates an oto backend
func NewOto(opts Options) *Oto {
	return &Oto{opts: opts}
}

// Name returns the backend name
func (b *Oto) Name() string {
	return BackendOto
}

// NewChannel returns an unopened channel
func (b *Oto) NewChannel() Channel {
	return &otoChannel{backend: b}
}

// context returns the shared oto context, creating it for format on first use
func (b *Oto) context(format audio.Format) (*oto.Context, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.otoCtx != nil {
		if b.format.SampleRate != format.SampleRate || b.format.Channels != format.Channels {
			return nil, fmt.Errorf("%w: oto context is %dHz %dch, requested %dHz %dch",
				ErrUnsupportedFormat, b.format.SampleRate, b.format.Channels, format.SampleRate, format.Channels)
		}
		return b.otoCtx, nil
	}

	op := &oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	ctx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create oto context: %v", ErrDeviceUnavailable, err)
	}

	<-readyChan

	b.otoCtx = ctx
	b.format = format

	otoLog.WithFields(logrus.Fields{
		"sample_rate": format.SampleRate,
		"channels":    format.Channels,
	}).Info("Oto context initialized")

	return ctx, nil
}

// Close suspends the shared context. oto cannot release it.
func (b *Oto) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.otoCtx != nil {
		if err := b.otoCtx.Suspend(); err != nil {
			otoLog.WithError(err).Warn("Oto context suspend error")
		}
	}
	return nil
}

// otoChannel plays one peer through its own oto.Player
type otoChannel struct {
	stream
	backend *Oto
	player  *oto.Player
}

// Open creates and starts a player reading from the ring buffer
func (c *otoChannel) Open(format audio.Format) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if open, current := c.isOpenWith(); open {
		if current == format {
			return nil
		}
		return fmt.Errorf("%w: open as %s, requested %s", ErrFormatMismatch, current, format)
	}

	// oto only supports 16-bit integer output
	if format.BitDepth != 16 {
		return fmt.Errorf("%w: oto supports 16-bit output only, got %d", ErrUnsupportedFormat, format.BitDepth)
	}

	ctx, err := c.backend.context(format)
	if err != nil {
		return err
	}

	c.activate(format, bufferBytes(format, c.backend.opts.bufferMs()))

	player := ctx.NewPlayer(fillReader{&c.stream})
	player.SetBufferSize(format.BytesFor(playerBufferMs * time.Millisecond))
	player.Play()

	c.player = player

	otoLog.WithField("format", format.String()).Debug("Player started")
	return nil
}

// Close stops the player
func (c *otoChannel) Close() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.deactivate()

	if c.player != nil {
		if err := c.player.Close(); err != nil {
			otoLog.WithError(err).Warn("Player close error")
		}
		c.player = nil
	}
	return nil
}

// fillReader adapts the pull side of a stream to io.Reader. It never returns
// EOF, so the player keeps running and plays silence when nothing is queued.
type fillReader struct {
	s *stream
}

func (r fillReader) Read(p []byte) (int, error) {
	r.s.fill(p)
	return len(p), nil
}
