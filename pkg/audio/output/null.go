// ABOUTME: Device-less playback backend
// ABOUTME: Drains each channel at the real-time byte rate and discards the audio
package output

import (
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// nullTick is how often a null channel consumes audio
const nullTick = 10 * time.Millisecond

// Null plays to nowhere. Useful for headless relays and tests.
type Null struct {
	opts Options
}

// NewNull creates a null backend
func NewNull(opts Options) *Null {
	return &Null{opts: opts}
}

// Name returns the backend name
func (b *Null) Name() string {
	return BackendNull
}

// NewChannel returns an unopened channel
func (b *Null) NewChannel() Channel {
	return &nullChannel{backend: b}
}

// Close is a no-op
func (b *Null) Close() error {
	return nil
}

type nullChannel struct {
	stream
	backend *Null
	stop    chan struct{}
	done    sync.WaitGroup
}

// Open starts a ticker that plays the role of the device clock
func (c *nullChannel) Open(format audio.Format) error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	if open, current := c.isOpenWith(); open {
		if current == format {
			return nil
		}
		return fmt.Errorf("%w: open as %s, requested %s", ErrFormatMismatch, current, format)
	}
	if err := format.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	c.activate(format, bufferBytes(format, c.backend.opts.bufferMs()))

	c.stop = make(chan struct{})
	c.done.Add(1)
	go c.drain(format.BytesFor(nullTick), c.stop)

	return nil
}

func (c *nullChannel) drain(chunk int, stop <-chan struct{}) {
	defer c.done.Done()

	ticker := time.NewTicker(nullTick)
	defer ticker.Stop()

	scratch := make([]byte, chunk)
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.fill(scratch)
		}
	}
}

// Close stops the drain goroutine
func (c *nullChannel) Close() error {
	c.lifeMu.Lock()
	defer c.lifeMu.Unlock()

	c.deactivate()

	if c.stop != nil {
		close(c.stop)
		c.done.Wait()
		c.stop = nil
	}
	return nil
}
