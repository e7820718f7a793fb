// ABOUTME: PCM audio encoder
// ABOUTME: Packs int32 samples as 16-bit or 24-bit little-endian bytes
package encode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// PCMEncoder encodes PCM audio
type PCMEncoder struct {
	bitDepth int
}

// NewPCM creates a new PCM encoder
func NewPCM(format audio.Format) (Encoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM encoder: %s", format.Codec)
	}

	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}

	return &PCMEncoder{
		bitDepth: format.BitDepth,
	}, nil
}

// Encode converts int32 samples to PCM bytes
func (e *PCMEncoder) Encode(samples []int32) ([]byte, error) {
	if e.bitDepth == 16 {
		return audio.SamplesToPCM16(samples), nil
	}

	output := make([]byte, 0, len(samples)*3)
	for _, sample := range samples {
		packed := audio.SampleTo24Bit(sample)
		output = append(output, packed[:]...)
	}
	return output, nil
}

// Close releases resources
func (e *PCMEncoder) Close() error {
	return nil
}
