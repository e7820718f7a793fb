// ABOUTME: Buffer state shared by every channel implementation
// ABOUTME: Guards the open/closed transition against concurrent Enqueue and device reads
package output

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// stream holds the ring buffer and open flag of a channel.
//
// lifeMu serializes Open and Close. mu guards open/ring/format; the data path
// (enqueue, fill) only takes it for reading, so a device callback never
// waits on another reader.
type stream struct {
	lifeMu sync.Mutex

	mu     sync.RWMutex
	open   bool
	ring   *RingBuffer
	format audio.Format

	overflow  atomic.Uint64
	underruns atomic.Uint64
}

// bufferBytes returns the ring capacity for format, in whole sample frames
func bufferBytes(format audio.Format, bufferMs int) int {
	n := format.BytesFor(time.Duration(bufferMs) * time.Millisecond)
	if n < format.BytesPerFrame() {
		n = format.BytesPerFrame()
	}
	return n
}

// isOpenWith reports whether the stream is open, and with which format
func (s *stream) isOpenWith() (bool, audio.Format) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.open, s.format
}

// activate installs a fresh buffer and marks the stream open
func (s *stream) activate(format audio.Format, capacity int) {
	s.mu.Lock()
	s.ring = NewRingBuffer(capacity)
	s.format = format
	s.open = true
	s.mu.Unlock()
}

// deactivate marks the stream closed and drops the buffer. Returns false if
// it was not open.
func (s *stream) deactivate() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return false
	}
	s.open = false
	s.ring = nil
	return true
}

// Enqueue appends PCM bytes; a no-op when the stream is not open
func (s *stream) Enqueue(data []byte) {
	if len(data) == 0 {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.open {
		return
	}
	if discarded := s.ring.Write(data); discarded > 0 {
		s.overflow.Add(uint64(discarded))
	}
}

// fill is called from the device side. It copies queued bytes into out and
// pads the rest with silence.
func (s *stream) fill(out []byte) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.open {
		clear(out)
		return
	}
	if n := s.ring.Read(out); n < len(out) {
		s.underruns.Add(1)
	}
}

// Stats returns a snapshot of the stream counters
func (s *stream) Stats() ChannelStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := ChannelStats{
		Open:          s.open,
		OverflowBytes: s.overflow.Load(),
		Underruns:     s.underruns.Load(),
	}
	if s.open {
		stats.Buffered = s.ring.Len()
		stats.Capacity = s.ring.Cap()
		stats.BufferedTime = s.format.DurationOf(stats.Buffered)
	}
	return stats
}
