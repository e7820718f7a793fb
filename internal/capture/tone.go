// ABOUTME: Test tone capture source
// ABOUTME: Generates a sine wave in real-time 20ms frames for headless members
package capture

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// DefaultToneFrequency is A4
const DefaultToneFrequency = 440.0

// toneLevel keeps the tone at half scale
const toneLevel = 0.5

// Tone stands in for a microphone, emitting a sine wave on the frame clock
type Tone struct {
	format    audio.Format
	frequency float64
	frames    chan []byte

	mu      sync.Mutex
	started bool
	closed  bool
	stop    chan struct{}
	done    sync.WaitGroup

	sampleIndex uint64
	dropped     atomic.Uint64
}

// NewTone creates an idle tone source. frequency <= 0 uses DefaultToneFrequency.
func NewTone(format audio.Format, frequency float64) *Tone {
	if frequency <= 0 {
		frequency = DefaultToneFrequency
	}
	return &Tone{
		format:    format,
		frequency: frequency,
		frames:    make(chan []byte, frameQueue),
		stop:      make(chan struct{}),
	}
}

// Frames returns generated frames
func (t *Tone) Frames() <-chan []byte {
	return t.frames
}

// Dropped returns how many frames were discarded because the consumer lagged
func (t *Tone) Dropped() uint64 {
	return t.dropped.Load()
}

// Start begins emitting one frame every 20ms until ctx is done or Close
func (t *Tone) Start(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return fmt.Errorf("tone closed")
	}
	if t.started {
		return nil
	}
	if t.format.BitDepth != 16 {
		return fmt.Errorf("tone supports 16-bit only, got %d", t.format.BitDepth)
	}
	t.started = true

	t.done.Add(1)
	go t.run(ctx)

	log.WithField("frequency", t.frequency).Info("Test tone started")
	return nil
}

func (t *Tone) run(ctx context.Context) {
	defer t.done.Done()

	ticker := time.NewTicker(audio.FrameDuration)
	defer ticker.Stop()

	samplesPerFrame := t.format.SamplesPerChannel(audio.FrameDuration)
	for {
		select {
		case <-ctx.Done():
			go t.Close()
			return
		case <-t.stop:
			return
		case <-ticker.C:
			t.offer(t.generate(samplesPerFrame))
		}
	}
}

// generate renders n sample frames of the tone, duplicated across channels
func (t *Tone) generate(n int) []byte {
	channels := t.format.Channels
	samples := make([]int32, n*channels)

	for i := 0; i < n; i++ {
		pos := float64(t.sampleIndex+uint64(i)) / float64(t.format.SampleRate)
		v := int16(math.Sin(2*math.Pi*t.frequency*pos) * math.MaxInt16 * toneLevel)

		for ch := 0; ch < channels; ch++ {
			samples[i*channels+ch] = audio.SampleFromInt16(v)
		}
	}
	t.sampleIndex += uint64(n)

	return audio.SamplesToPCM16(samples)
}

func (t *Tone) offer(frame []byte) {
	select {
	case t.frames <- frame:
	default:
		t.dropped.Add(1)
	}
}

// Close stops the generator and closes the frame channel
func (t *Tone) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	close(t.stop)
	t.mu.Unlock()

	t.done.Wait()
	close(t.frames)
	return nil
}
