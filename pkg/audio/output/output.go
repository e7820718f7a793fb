// ABOUTME: Playback channel and backend interfaces
// ABOUTME: One Channel per remote peer, Backend chosen once at startup
package output

import (
	"fmt"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// DefaultBufferMs is the ring buffer capacity used when Options.BufferMs is zero
const DefaultBufferMs = 500

// Channel is a continuously running output stream fed from a bounded buffer
type Channel interface {
	// Open allocates the buffer and starts the output stream. Idempotent when
	// already open with the same format.
	Open(format audio.Format) error

	// Enqueue appends PCM bytes for playback. Never blocks and never fails;
	// the oldest queued bytes are discarded when the buffer is full.
	Enqueue(data []byte)

	// Close stops the stream and releases buffer and device resources
	Close() error

	// Stats returns a snapshot of buffer and stream counters
	Stats() ChannelStats
}

// ChannelStats describes a channel's buffer state
type ChannelStats struct {
	Open          bool
	Buffered      int // bytes waiting to be played
	Capacity      int // ring buffer size in bytes
	BufferedTime  time.Duration
	OverflowBytes uint64 // bytes discarded to make room for newer audio
	Underruns     uint64 // device reads that had to be padded with silence
}

// Backend creates channels bound to one audio API
type Backend interface {
	Name() string
	NewChannel() Channel
	Close() error
}

// Options configures every channel created by a backend
type Options struct {
	// BufferMs is the ring buffer capacity in milliseconds (default 500)
	BufferMs int
}

func (o Options) bufferMs() int {
	if o.BufferMs <= 0 {
		return DefaultBufferMs
	}
	return o.BufferMs
}

// Backend names accepted by NewBackend
const (
	BackendMalgo = "malgo"
	BackendOto   = "oto"
	BackendNull  = "null"
)

// Backends lists the supported backend names
func Backends() []string {
	return []string{BackendMalgo, BackendOto, BackendNull}
}

// NewBackend returns the backend registered under name
func NewBackend(name string, opts Options) (Backend, error) {
	switch name {
	case BackendMalgo:
		return NewMalgo(opts), nil
	case BackendOto:
		return NewOto(opts), nil
	case BackendNull:
		return NewNull(opts), nil
	default:
		return nil, fmt.Errorf("unknown playback backend: %q (supported: %v)", name, Backends())
	}
}
