// ABOUTME: Byte ring buffer for callback-based playback
// ABOUTME: Overflow discards the oldest bytes, underflow reads as silence
package output

import "sync"

// RingBuffer is a thread-safe circular buffer of PCM bytes.
//
// Writes never block: when the incoming data does not fit, the oldest
// unplayed bytes are dropped. Reads never stall: missing bytes are zeroed.
type RingBuffer struct {
	buffer  []byte
	readPos int
	count   int
	mu      sync.Mutex
}

// NewRingBuffer creates a ring buffer with given capacity (in bytes)
func NewRingBuffer(capacity int) *RingBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		buffer: make([]byte, capacity),
	}
}

// Write appends data and returns how many queued bytes were discarded to fit it
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.buffer)

	// Only the newest size bytes can survive
	if len(data) >= size {
		discarded := rb.count + len(data) - size
		copy(rb.buffer, data[len(data)-size:])
		rb.readPos = 0
		rb.count = size
		return discarded
	}

	discarded := 0
	if overflow := rb.count + len(data) - size; overflow > 0 {
		rb.readPos = (rb.readPos + overflow) % size
		rb.count -= overflow
		discarded = overflow
	}

	writePos := (rb.readPos + rb.count) % size
	n := copy(rb.buffer[writePos:], data)
	copy(rb.buffer, data[n:])
	rb.count += len(data)

	return discarded
}

// Read fills p from the buffer and returns the number of real bytes read.
// Whatever could not be filled is zeroed.
func (rb *RingBuffer) Read(p []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.buffer)
	read := len(p)
	if read > rb.count {
		read = rb.count
	}

	n := copy(p[:read], rb.buffer[rb.readPos:])
	copy(p[n:read], rb.buffer)
	rb.readPos = (rb.readPos + read) % size
	rb.count -= read

	clear(p[read:])

	return read
}

// Len returns the number of bytes waiting to be read
func (rb *RingBuffer) Len() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.count
}

// Cap returns the buffer capacity in bytes
func (rb *RingBuffer) Cap() int {
	return len(rb.buffer)
}

// Reset drops all queued bytes
func (rb *RingBuffer) Reset() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.readPos = 0
	rb.count = 0
}
