// ABOUTME: Frame source abstraction shared by the microphone and the test tone
// ABOUTME: A source delivers fixed 20ms PCM frames until it is closed
package capture

import "context"

// Source produces captured PCM frames at the session format
type Source interface {
	Start(ctx context.Context) error
	Frames() <-chan []byte
	Dropped() uint64
	Close() error
}

var (
	_ Source = (*Microphone)(nil)
	_ Source = (*Tone)(nil)
)
