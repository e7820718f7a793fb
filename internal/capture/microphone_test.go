// ABOUTME: Tests for microphone framing and back-pressure
// ABOUTME: Exercises the framer and frame queue without a capture device
package capture

import (
	"testing"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFramerEmitsExactFrames(t *testing.T) {
	f := newFramer(4)
	var frames [][]byte
	emit := func(b []byte) { frames = append(frames, b) }

	f.push([]byte{1, 2, 3}, emit)
	assert.Empty(t, frames)

	f.push([]byte{4, 5, 6, 7, 8, 9, 10}, emit)
	require.Len(t, frames, 2)
	assert.Equal(t, []byte{1, 2, 3, 4}, frames[0])
	assert.Equal(t, []byte{5, 6, 7, 8}, frames[1])
	assert.Equal(t, []byte{9, 10}, f.pending)
}

func TestFramerFramesAreIndependent(t *testing.T) {
	f := newFramer(2)
	var frames [][]byte
	f.push([]byte{1, 2, 3, 4}, func(b []byte) { frames = append(frames, b) })

	frames[0][0] = 99
	assert.Equal(t, []byte{3, 4}, frames[1])
}

func TestMicrophoneFrameSize(t *testing.T) {
	m := NewMicrophone(audio.DefaultFormat)
	assert.Equal(t, 3840, m.framer.size)
}

func TestOfferDropsOldestWhenFull(t *testing.T) {
	m := NewMicrophone(audio.DefaultFormat)

	for i := 0; i < frameQueue+3; i++ {
		m.offer([]byte{byte(i)})
	}

	assert.Equal(t, uint64(3), m.Dropped())
	first := <-m.Frames()
	assert.Equal(t, []byte{3}, first)
}

func TestCloseWithoutStart(t *testing.T) {
	m := NewMicrophone(audio.DefaultFormat)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	_, ok := <-m.Frames()
	assert.False(t, ok)
}

func TestStartRejects24Bit(t *testing.T) {
	f := audio.DefaultFormat
	f.BitDepth = 24
	err := NewMicrophone(f).Start(t.Context())
	assert.ErrorIs(t, err, ErrDeviceUnavailable)
}
