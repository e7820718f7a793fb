// ABOUTME: Opus audio decoder backed by libopus
// ABOUTME: Decodes Opus voice packets to int32 samples
package decode

import (
	"errors"
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"gopkg.in/hraban/opus.v2"
)

// maxFrameSamples is the largest Opus frame (120ms at 48kHz) per channel
const maxFrameSamples = 5760

// ErrEmptyPacket is returned when a decoder is handed no data
var ErrEmptyPacket = errors.New("empty packet")

// OpusDecoder decodes Opus audio
type OpusDecoder struct {
	decoder  *opus.Decoder
	channels int
	pcm      []int16
}

// NewOpus creates a new Opus decoder
func NewOpus(format audio.Format) (Decoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}

	dec, err := opus.NewDecoder(format.SampleRate, format.Channels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}

	return &OpusDecoder{
		decoder:  dec,
		channels: format.Channels,
		pcm:      make([]int16, maxFrameSamples*format.Channels),
	}, nil
}

// Decode converts Opus bytes to int32 samples
func (d *OpusDecoder) Decode(data []byte) ([]int32, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPacket
	}

	n, err := d.decoder.Decode(data, d.pcm)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	// n is samples per channel
	samples := make([]int32, n*d.channels)
	for i := range samples {
		samples[i] = audio.SampleFromInt16(d.pcm[i])
	}
	return samples, nil
}

// Close releases decoder resources
func (d *OpusDecoder) Close() error {
	return nil
}
