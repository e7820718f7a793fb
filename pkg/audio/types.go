// ABOUTME: Audio type definitions
// ABOUTME: Defines the fixed session format and PCM sample conversions
package audio

import (
	"fmt"
	"time"
)

const (
	// 24-bit audio range constants
	Max24Bit = 8388607  // 2^23 - 1
	Min24Bit = -8388608 // -2^23
)

// Format describes the audio format shared by every peer in a session
type Format struct {
	Codec      string
	SampleRate int
	Channels   int
	BitDepth   int
}

// DefaultFormat is 48kHz stereo 16-bit Opus
var DefaultFormat = Format{
	Codec:      "opus",
	SampleRate: 48000,
	Channels:   2,
	BitDepth:   16,
}

// FrameDuration is the length of one captured/encoded voice frame
const FrameDuration = 20 * time.Millisecond

// BytesPerSample returns the size of one sample of one channel
func (f Format) BytesPerSample() int {
	return f.BitDepth / 8
}

// BytesPerFrame returns the size of one interleaved sample frame (all channels)
func (f Format) BytesPerFrame() int {
	return f.BytesPerSample() * f.Channels
}

// BytesPerSecond returns the PCM byte rate of the format
func (f Format) BytesPerSecond() int {
	return f.SampleRate * f.BytesPerFrame()
}

// SamplesPerChannel returns how many samples per channel cover d
func (f Format) SamplesPerChannel(d time.Duration) int {
	return int(int64(f.SampleRate) * int64(d) / int64(time.Second))
}

// BytesFor returns the PCM size of d, rounded down to whole sample frames
func (f Format) BytesFor(d time.Duration) int {
	return f.SamplesPerChannel(d) * f.BytesPerFrame()
}

// DurationOf returns the playback time of n PCM bytes
func (f Format) DurationOf(n int) time.Duration {
	bps := f.BytesPerSecond()
	if bps == 0 {
		return 0
	}
	return time.Duration(int64(n) * int64(time.Second) / int64(bps))
}

// Validate checks that the format can be played
func (f Format) Validate() error {
	if f.SampleRate <= 0 {
		return fmt.Errorf("invalid sample rate: %d", f.SampleRate)
	}
	if f.Channels < 1 || f.Channels > 2 {
		return fmt.Errorf("unsupported channel count: %d (supported: 1, 2)", f.Channels)
	}
	switch f.BitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth: %d (supported: 16, 24, 32)", f.BitDepth)
	}
	return nil
}

func (f Format) String() string {
	return fmt.Sprintf("%s %dHz %dch %dbit", f.Codec, f.SampleRate, f.Channels, f.BitDepth)
}

// SampleToInt16 converts int32 sample to int16 (for 16-bit playback)
func SampleToInt16(sample int32) int16 {
	// Right-shift to convert 24-bit (or 16-bit) to 16-bit range
	return int16(sample >> 8)
}

// SampleFromInt16 converts int16 sample to int32 (left-justified in 24-bit)
func SampleFromInt16(sample int16) int32 {
	return int32(sample) << 8
}

// SampleTo24Bit converts int32 to 24-bit packed bytes (little-endian)
func SampleTo24Bit(sample int32) [3]byte {
	return [3]byte{
		byte(sample),
		byte(sample >> 8),
		byte(sample >> 16),
	}
}

// SampleFrom24Bit converts 24-bit packed bytes to int32 (little-endian)
func SampleFrom24Bit(b [3]byte) int32 {
	val := int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16
	// Sign extend from 24-bit to 32-bit
	if val&0x800000 != 0 {
		val |= ^0xFFFFFF
	}
	return val
}

// PCM16ToSamples converts 16-bit little-endian PCM bytes to int32 samples.
// A trailing odd byte is ignored.
func PCM16ToSamples(data []byte) []int32 {
	n := len(data) / 2
	samples := make([]int32, n)
	for i := 0; i < n; i++ {
		samples[i] = SampleFromInt16(int16(uint16(data[2*i]) | uint16(data[2*i+1])<<8))
	}
	return samples
}

// SamplesToPCM16 converts int32 samples to 16-bit little-endian PCM bytes
func SamplesToPCM16(samples []int32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		v := SampleToInt16(s)
		out[2*i] = byte(v)
		out[2*i+1] = byte(v >> 8)
	}
	return out
}
