// ABOUTME: Capture bridge forwarding microphone frames to every session member
// ABOUTME: Encodes once per frame and fans out with per-peer failure isolation
package relay

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// CaptureConfig holds capture bridge configuration
type CaptureConfig struct {
	// EnsurePlayback opens a playback channel for every member a frame is sent to
	EnsurePlayback bool

	// LoopbackSelf also sends each frame to the local id
	LoopbackSelf bool

	Reliability Reliability
}

// CaptureStats counts outbound traffic
type CaptureStats struct {
	Frames         uint64
	Muted          uint64
	EncodeFailures uint64
	Sent           uint64
	SendFailures   uint64
}

// CaptureBridge encodes captured frames and sends them to the session
type CaptureBridge struct {
	cfg       CaptureConfig
	transport Transport
	codec     Codec
	sink      Sink

	muted atomic.Bool

	frames         atomic.Uint64
	mutedFrames    atomic.Uint64
	encodeFailures atomic.Uint64
	sent           atomic.Uint64
	sendFailures   atomic.Uint64
}

// NewCaptureBridge creates a capture bridge. sink may be nil when
// EnsurePlayback is off.
func NewCaptureBridge(cfg CaptureConfig, transport Transport, codec Codec, sink Sink) *CaptureBridge {
	return &CaptureBridge{
		cfg:       cfg,
		transport: transport,
		codec:     codec,
		sink:      sink,
	}
}

// SetMuted stops or resumes sending
func (b *CaptureBridge) SetMuted(muted bool) {
	b.muted.Store(muted)
}

// Muted reports whether frames are being discarded
func (b *CaptureBridge) Muted() bool {
	return b.muted.Load()
}

// OnFrame encodes one PCM frame and sends it to every current member. A
// failed send is logged and the remaining members still receive the frame.
func (b *CaptureBridge) OnFrame(pcm []byte) {
	b.frames.Add(1)
	if b.muted.Load() {
		b.mutedFrames.Add(1)
		return
	}

	encoded, err := b.codec.Encode(pcm)
	if err != nil {
		b.encodeFailures.Add(1)
		log.WithError(err).Warn("Dropping captured frame")
		return
	}

	self := b.transport.LocalID()
	for _, member := range b.transport.Members() {
		if member == self {
			continue
		}
		b.sendTo(member, encoded)
	}

	if b.cfg.LoopbackSelf {
		b.sendTo(self, encoded)
	}
}

func (b *CaptureBridge) sendTo(peer PeerID, encoded []byte) {
	if b.cfg.EnsurePlayback && b.sink != nil {
		if err := b.sink.Ensure(peer); err != nil {
			log.WithFields(logrus.Fields{
				"peer":  peer,
				"error": err,
			}).Debug("Playback not available for member")
		}
	}

	if err := b.transport.Send(peer, encoded, b.cfg.Reliability); err != nil {
		b.sendFailures.Add(1)
		log.WithFields(logrus.Fields{
			"peer":  peer,
			"error": fmt.Errorf("%w: %v", ErrSendFailure, err),
		}).Warn("Send failed")
		return
	}
	b.sent.Add(1)
}

// Run forwards frames until ctx is done or frames is closed
func (b *CaptureBridge) Run(ctx context.Context, frames <-chan []byte) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			b.OnFrame(frame)
		}
	}
}

// Stats returns a snapshot of the bridge counters
func (b *CaptureBridge) Stats() CaptureStats {
	return CaptureStats{
		Frames:         b.frames.Load(),
		Muted:          b.mutedFrames.Load(),
		EncodeFailures: b.encodeFailures.Load(),
		Sent:           b.sent.Load(),
		SendFailures:   b.sendFailures.Load(),
	}
}
