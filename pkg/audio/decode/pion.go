// ABOUTME: Pure-Go Opus decoder backed by pion/opus
// ABOUTME: Handles SILK voice packets without cgo and resamples them to the session rate
package decode

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/resample"
	"github.com/pion/opus"
)

// silkFrameMs maps config%4 of a SILK-only TOC to its frame length
var silkFrameMs = [4]int{10, 20, 40, 60}

// maxSilkSamples is 120ms of wideband audio, the most one packet can carry
const maxSilkSamples = 16000 * 120 / 1000

// PionOpusDecoder decodes Opus SILK packets in pure Go. The decoder emits
// mono audio at the packet's internal bandwidth, which is resampled to the
// session rate and duplicated across channels.
type PionOpusDecoder struct {
	mu         sync.Mutex
	decoder    *opus.Decoder
	sampleRate int
	channels   int
	resampler  *resample.Resampler
	out        []byte
}

// NewPionOpus creates a pure-Go Opus decoder for the session format
func NewPionOpus(format audio.Format) (Decoder, error) {
	if format.Codec != "opus" {
		return nil, fmt.Errorf("invalid codec for Opus decoder: %s", format.Codec)
	}
	if format.Channels < 1 || format.Channels > 2 {
		return nil, fmt.Errorf("unsupported channel count: %d", format.Channels)
	}

	decoder := opus.NewDecoder()
	return &PionOpusDecoder{
		decoder:    &decoder,
		sampleRate: format.SampleRate,
		channels:   format.Channels,
		out:        make([]byte, maxSilkSamples*2),
	}, nil
}

// silkDurationMs returns the audio length carried by a SILK-only packet
func silkDurationMs(packet []byte) (int, error) {
	config := packet[0] >> 3
	if config > 11 {
		return 0, fmt.Errorf("opus config %d is not SILK-only", config)
	}

	frames := 1
	switch packet[0] & 0x03 {
	case 1, 2:
		frames = 2
	case 3:
		if len(packet) < 2 {
			return 0, fmt.Errorf("opus packet truncated")
		}
		frames = int(packet[1] & 0x3F)
	}

	return silkFrameMs[config%4] * frames, nil
}

// Decode converts one Opus packet to interleaved int32 samples at the session rate
func (d *PionOpusDecoder) Decode(data []byte) ([]int32, error) {
	if len(data) == 0 {
		return nil, ErrEmptyPacket
	}

	ms, err := silkDurationMs(data)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	bandwidth, _, err := d.decoder.Decode(data, d.out)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}

	rate := bandwidth.SampleRate()
	n := rate * ms / 1000
	if n > len(d.out)/2 {
		n = len(d.out) / 2
	}

	mono := make([]int32, n)
	for i := range mono {
		mono[i] = audio.SampleFromInt16(int16(binary.LittleEndian.Uint16(d.out[i*2:])))
	}

	if d.resampler == nil || d.resampler.InputRate() != rate {
		d.resampler = resample.New(rate, d.sampleRate, 1)
	}
	mono = d.resampler.Resample(mono)

	if d.channels == 1 {
		return mono, nil
	}

	samples := make([]int32, len(mono)*d.channels)
	for i, s := range mono {
		for ch := 0; ch < d.channels; ch++ {
			samples[i*d.channels+ch] = s
		}
	}
	return samples, nil
}

// Close releases decoder resources
func (d *PionOpusDecoder) Close() error {
	return nil
}
