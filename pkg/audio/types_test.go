// ABOUTME: Tests for audio types
// ABOUTME: Tests format arithmetic and sample conversion functions
package audio

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFormatSizes(t *testing.T) {
	f := DefaultFormat

	assert.Equal(t, 2, f.BytesPerSample())
	assert.Equal(t, 4, f.BytesPerFrame())
	assert.Equal(t, 192000, f.BytesPerSecond())
	assert.Equal(t, 960, f.SamplesPerChannel(FrameDuration))
	assert.Equal(t, 3840, f.BytesFor(FrameDuration))
	assert.Equal(t, 20*time.Millisecond, f.DurationOf(3840))
}

func TestFormatValidate(t *testing.T) {
	tests := []struct {
		name    string
		format  Format
		wantErr bool
	}{
		{"default", DefaultFormat, false},
		{"mono 24bit", Format{Codec: "pcm", SampleRate: 16000, Channels: 1, BitDepth: 24}, false},
		{"zero rate", Format{Codec: "opus", SampleRate: 0, Channels: 2, BitDepth: 16}, true},
		{"three channels", Format{Codec: "opus", SampleRate: 48000, Channels: 3, BitDepth: 16}, true},
		{"8 bit", Format{Codec: "pcm", SampleRate: 48000, Channels: 2, BitDepth: 8}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.format.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDurationOfZeroFormat(t *testing.T) {
	assert.Zero(t, Format{}.DurationOf(1000))
}

func TestSampleFromInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int16
		expected int32
	}{
		{"zero", 0, 0},
		{"positive", 100, 100 << 8},
		{"negative", -100, -100 << 8},
		{"max", 32767, 32767 << 8},
		{"min", -32768, -32768 << 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SampleFromInt16(tt.input))
		})
	}
}

func TestSampleToInt16(t *testing.T) {
	tests := []struct {
		name     string
		input    int32
		expected int16
	}{
		{"zero", 0, 0},
		{"positive", 100 << 8, 100},
		{"negative", -100 << 8, -100},
		{"24bit positive", 1000000, 3906},
		{"24bit negative", -1000000, -3907},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SampleToInt16(tt.input))
		})
	}
}

func TestSampleFrom24Bit(t *testing.T) {
	tests := []struct {
		name     string
		input    [3]byte
		expected int32
	}{
		{"zero", [3]byte{0, 0, 0}, 0},
		{"positive", [3]byte{0x56, 0x34, 0x12}, 0x123456},
		{"negative", [3]byte{0x00, 0xFF, 0xFF}, -256},
		{"max positive", [3]byte{0xFF, 0xFF, 0x7F}, Max24Bit},
		{"max negative", [3]byte{0x00, 0x00, 0x80}, Min24Bit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SampleFrom24Bit(tt.input))
		})
	}
}

func TestPCM16Conversions(t *testing.T) {
	pcm := []byte{0x01, 0x00, 0xFF, 0xFF, 0x00, 0x80, 0x7F}

	samples := PCM16ToSamples(pcm)
	require.Len(t, samples, 3, "trailing odd byte must be ignored")
	assert.Equal(t, SampleFromInt16(1), samples[0])
	assert.Equal(t, SampleFromInt16(-1), samples[1])
	assert.Equal(t, SampleFromInt16(-32768), samples[2])

	assert.Equal(t, pcm[:6], SamplesToPCM16(samples))
}
