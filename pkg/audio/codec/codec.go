// ABOUTME: Byte-level voice codec pairing one encoder with one decoder
// ABOUTME: Converts PCM bytes at the session format to and from wire payloads
package codec

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/decode"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/encode"
)

const (
	// DecoderLibopus decodes with libopus through cgo
	DecoderLibopus = "libopus"
	// DecoderPion decodes SILK packets in pure Go
	DecoderPion = "pion"
)

// DefaultBitrate is the Opus target bitrate for voice
const DefaultBitrate = 16000

// ErrEmptyFrame is returned when there is nothing to encode or decode
var ErrEmptyFrame = errors.New("empty frame")

// Options tune the codec
type Options struct {
	Bitrate int
	Decoder string
}

// Codec encodes captured PCM bytes for the wire and decodes wire payloads
// back to PCM bytes. Encode and Decode may be called from different
// goroutines; each direction is serialized on its own.
type Codec struct {
	format audio.Format

	encMu   sync.Mutex
	encoder encode.Encoder
	unpack  decode.Decoder // PCM bytes -> samples, capture side

	decMu   sync.Mutex
	decoder decode.Decoder
	pack    encode.Encoder // samples -> PCM bytes, playback side
}

// pcmFormat is the session format as seen by the PCM packers
func pcmFormat(format audio.Format) audio.Format {
	f := format
	f.Codec = "pcm"
	return f
}

// New creates a codec for the session format. A format with codec "pcm"
// sends raw PCM on the wire.
func New(format audio.Format, opts Options) (*Codec, error) {
	if err := format.Validate(); err != nil {
		return nil, fmt.Errorf("invalid codec format: %w", err)
	}
	if opts.Bitrate == 0 {
		opts.Bitrate = DefaultBitrate
	}

	raw := pcmFormat(format)
	unpack, err := decode.NewPCM(raw)
	if err != nil {
		return nil, err
	}
	pack, err := encode.NewPCM(raw)
	if err != nil {
		return nil, err
	}

	c := &Codec{format: format, unpack: unpack, pack: pack}

	switch format.Codec {
	case "opus":
		c.encoder, err = encode.NewOpus(format, opts.Bitrate)
		if err != nil {
			return nil, err
		}
		switch opts.Decoder {
		case "", DecoderLibopus:
			c.decoder, err = decode.NewOpus(format)
		case DecoderPion:
			c.decoder, err = decode.NewPionOpus(format)
		default:
			err = fmt.Errorf("unknown opus decoder: %s", opts.Decoder)
		}
		if err != nil {
			c.encoder.Close()
			return nil, err
		}
	case "pcm":
		c.encoder = pack
		c.decoder = unpack
	default:
		return nil, fmt.Errorf("unsupported codec: %s", format.Codec)
	}

	return c, nil
}

// Format returns the session format
func (c *Codec) Format() audio.Format {
	return c.format
}

// Encode compresses one frame of PCM bytes
func (c *Codec) Encode(pcm []byte) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, ErrEmptyFrame
	}

	c.encMu.Lock()
	defer c.encMu.Unlock()

	samples, err := c.unpack.Decode(pcm)
	if err != nil {
		return nil, err
	}
	return c.encoder.Encode(samples)
}

// Decode expands one wire payload to PCM bytes
func (c *Codec) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFrame
	}

	c.decMu.Lock()
	defer c.decMu.Unlock()

	samples, err := c.decoder.Decode(data)
	if err != nil {
		return nil, err
	}
	if len(samples) == 0 {
		return nil, ErrEmptyFrame
	}
	return c.pack.Encode(samples)
}

// Close releases the encoder and decoder
func (c *Codec) Close() error {
	c.encMu.Lock()
	defer c.encMu.Unlock()
	c.decMu.Lock()
	defer c.decMu.Unlock()

	return errors.Join(c.encoder.Close(), c.decoder.Close())
}
