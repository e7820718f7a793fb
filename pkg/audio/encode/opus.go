// ABOUTME: Opus voice encoder
// ABOUTME: Encodes 20ms int32 sample frames to Opus packets with libopus
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxPacketSize is the largest Opus packet libopus will produce
const maxPacketSize = 4000

// OpusEncoder encodes Opus audio
type OpusEncoder struct {
	encoder    *opus.Encoder
	sampleRate int
	channels   int
}

// NewOpus creates a voice-tuned Opus encoder. A bitrate of zero keeps the
// libopus default.
func NewOpus(format audio.Format, bitrate int) (Encoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus encoder: %s", format.Codec)
	}

	encoder, err := opus.NewEncoder(format.SampleRate, format.Channels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}

	if bitrate > 0 {
		if err := encoder.SetBitrate(bitrate); err != nil {
			return nil, fmt.Errorf("failed to set opus bitrate %d: %w", bitrate, err)
		}
	}

	return &OpusEncoder{
		encoder:    encoder,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
	}, nil
}

// Encode converts one frame of int32 samples to an Opus packet
func (e *OpusEncoder) Encode(samples []int32) ([]byte, error) {
	if len(samples) == 0 || len(samples)%e.channels != 0 {
		return nil, fmt.Errorf("opus encode: %d samples is not a whole %d-channel frame", len(samples), e.channels)
	}

	pcm := make([]int16, len(samples))
	for i, sample := range samples {
		pcm[i] = audio.SampleToInt16(sample)
	}

	data := make([]byte, maxPacketSize)
	n, err := e.encoder.Encode(pcm, data)
	if err != nil {
		return nil, fmt.Errorf("opus encode error: %w", err)
	}

	return data[:n], nil
}

// Close releases resources
func (e *OpusEncoder) Close() error {
	return nil
}
