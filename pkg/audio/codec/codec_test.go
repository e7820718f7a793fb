// ABOUTME: Tests for the byte-level voice codec
// ABOUTME: Round-trips frames through PCM and Opus configurations
package codec

import (
	"errors"
	"sync"
	"testing"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func frame(f audio.Format) []byte {
	return make([]byte, f.BytesFor(audio.FrameDuration))
}

func TestPCMPassthrough(t *testing.T) {
	f := audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}
	c, err := New(f, Options{})
	require.NoError(t, err)
	defer c.Close()

	in := frame(f)
	for i := range in {
		in[i] = byte(i)
	}

	wire, err := c.Encode(in)
	require.NoError(t, err)
	assert.Equal(t, in, wire)

	out, err := c.Decode(wire)
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestOpusFrameSize(t *testing.T) {
	f := audio.DefaultFormat
	c, err := New(f, Options{Bitrate: 16000})
	require.NoError(t, err)
	defer c.Close()

	wire, err := c.Encode(frame(f))
	require.NoError(t, err)
	assert.Less(t, len(wire), 3840, "opus compresses the frame")

	out, err := c.Decode(wire)
	require.NoError(t, err)
	assert.Len(t, out, 3840)
}

func TestEmptyFrames(t *testing.T) {
	c, err := New(audio.DefaultFormat, Options{})
	require.NoError(t, err)

	_, err = c.Encode(nil)
	assert.True(t, errors.Is(err, ErrEmptyFrame))

	_, err = c.Decode([]byte{})
	assert.True(t, errors.Is(err, ErrEmptyFrame))
}

func TestCorruptPayloadFails(t *testing.T) {
	f := audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 16}
	c, err := New(f, Options{})
	require.NoError(t, err)

	_, err = c.Decode([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestNewErrors(t *testing.T) {
	tests := []struct {
		name   string
		format audio.Format
		opts   Options
	}{
		{"unknown codec", audio.Format{Codec: "flac", SampleRate: 48000, Channels: 2, BitDepth: 16}, Options{}},
		{"invalid format", audio.Format{Codec: "opus", SampleRate: 48000, Channels: 0, BitDepth: 16}, Options{}},
		{"unknown decoder", audio.DefaultFormat, Options{Decoder: "ffmpeg"}},
		{"32-bit pcm", audio.Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 32}, Options{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.format, tt.opts)
			assert.Error(t, err)
			assert.Nil(t, c)
		})
	}
}

func TestPionDecoderSelected(t *testing.T) {
	c, err := New(audio.DefaultFormat, Options{Decoder: DecoderPion})
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, audio.DefaultFormat, c.Format())
}

func TestConcurrentEncodeDecode(t *testing.T) {
	f := audio.DefaultFormat
	c, err := New(f, Options{})
	require.NoError(t, err)
	defer c.Close()

	wire, err := c.Encode(frame(f))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := c.Encode(frame(f))
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				_, err := c.Decode(wire)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()
}
