// ABOUTME: PCM audio decoder
// ABOUTME: Unpacks 16-bit and 24-bit little-endian bytes to int32 samples
package decode

import (
	"fmt"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
)

// PCMDecoder decodes PCM audio
type PCMDecoder struct {
	bitDepth   int
	frameBytes int
}

// NewPCM creates a new PCM decoder
func NewPCM(format audio.Format) (Decoder, error) {
	if format.Codec != "pcm" {
		return nil, fmt.Errorf("invalid codec for PCM decoder: %s", format.Codec)
	}

	if format.BitDepth != 16 && format.BitDepth != 24 {
		return nil, fmt.Errorf("unsupported bit depth: %d (supported: 16, 24)", format.BitDepth)
	}

	return &PCMDecoder{
		bitDepth:   format.BitDepth,
		frameBytes: format.BytesPerFrame(),
	}, nil
}

// Decode converts PCM bytes to int32 samples. The input must hold whole
// interleaved sample frames.
func (d *PCMDecoder) Decode(data []byte) ([]int32, error) {
	if d.frameBytes > 0 && len(data)%d.frameBytes != 0 {
		return nil, fmt.Errorf("pcm decode: %d bytes is not a multiple of the %d-byte frame", len(data), d.frameBytes)
	}

	if d.bitDepth == 16 {
		return audio.PCM16ToSamples(data), nil
	}

	samples := make([]int32, len(data)/3)
	for i := range samples {
		samples[i] = audio.SampleFrom24Bit([3]byte{data[i*3], data[i*3+1], data[i*3+2]})
	}
	return samples, nil
}

// Close releases resources
func (d *PCMDecoder) Close() error {
	return nil
}
