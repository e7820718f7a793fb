// ABOUTME: Relay loop bridging inbound transport packets to per-peer playback
// ABOUTME: Polls the transport, decodes, dispatches and follows membership changes
package relay

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultPollInterval is how often the loop checks the transport for packets
const DefaultPollInterval = 5 * time.Millisecond

var log = logrus.WithField("component", "relay")

// LoopConfig holds relay loop configuration
type LoopConfig struct {
	PollInterval time.Duration

	// DisableLoopback drops packets that carry the local id before decoding
	DisableLoopback bool
}

// LoopStats counts what the loop did with inbound traffic
type LoopStats struct {
	Received         uint64
	Dispatched       uint64
	LoopbackDropped  uint64
	NonMemberDropped uint64
	DecodeFailures   uint64
	DispatchFailures uint64
}

// Loop pulls packets from the transport and feeds the sink. Packets are
// handled on a single goroutine so each peer's audio stays in arrival order.
type Loop struct {
	cfg       LoopConfig
	transport Transport
	codec     Codec
	sink      Sink

	// leaveMu orders dispatch against Remove, so a packet that passed the
	// membership check is dispatched before its sender's channel is removed
	leaveMu sync.Mutex

	received         atomic.Uint64
	dispatched       atomic.Uint64
	loopbackDropped  atomic.Uint64
	nonMemberDropped atomic.Uint64
	decodeFailures   atomic.Uint64
	dispatchFailures atomic.Uint64
}

// NewLoop creates a relay loop
func NewLoop(cfg LoopConfig, transport Transport, codec Codec, sink Sink) *Loop {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Loop{
		cfg:       cfg,
		transport: transport,
		codec:     codec,
		sink:      sink,
	}
}

// Run ensures playback for the members already present, then polls for
// packets and follows membership events until ctx is cancelled or the
// transport closes its event stream.
func (l *Loop) Run(ctx context.Context) error {
	for _, peer := range l.transport.Members() {
		l.OnMemberJoined(peer)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return l.poll(ctx)
	})
	g.Go(func() error {
		return l.watchMembers(ctx)
	})

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (l *Loop) poll(ctx context.Context) error {
	ticker := time.NewTicker(l.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			l.drain()
		}
	}
}

// drain handles every packet currently queued on the transport
func (l *Loop) drain() {
	for l.transport.PacketAvailable() {
		peer, data, ok := l.transport.ReadPacket()
		if !ok {
			return
		}
		l.OnPacketReceived(peer, data)
	}
}

func (l *Loop) watchMembers(ctx context.Context) error {
	events := l.transport.Events()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return ErrTransportClosed
			}
			switch ev.Kind {
			case MemberJoined:
				log.WithFields(logrus.Fields{"peer": ev.Peer, "name": ev.Name}).Info("Member joined")
				l.OnMemberJoined(ev.Peer)
			case MemberLeft:
				log.WithFields(logrus.Fields{"peer": ev.Peer, "name": ev.Name}).Info("Member left")
				l.OnMemberLeft(ev.Peer)
			}
		}
	}
}

// OnPacketReceived decodes one packet and hands the audio to the peer's
// playback channel. Failures are logged and the packet is dropped. Packets
// from peers that are no longer members are dropped undecoded so a late
// frame cannot reopen a departed peer's channel.
func (l *Loop) OnPacketReceived(peer PeerID, raw []byte) {
	l.received.Add(1)

	self := peer == l.transport.LocalID()
	if l.cfg.DisableLoopback && self {
		l.loopbackDropped.Add(1)
		return
	}

	l.leaveMu.Lock()
	defer l.leaveMu.Unlock()

	if !self && !slices.Contains(l.transport.Members(), peer) {
		l.nonMemberDropped.Add(1)
		log.WithField("peer", peer).Debug("Dropping packet from non-member")
		return
	}

	pcm, err := l.codec.Decode(raw)
	if err != nil {
		l.decodeFailures.Add(1)
		log.WithFields(logrus.Fields{
			"peer":  peer,
			"bytes": len(raw),
			"error": fmt.Errorf("%w: %v", ErrDecodeFailure, err),
		}).Warn("Dropping packet")
		return
	}

	if err := l.sink.Dispatch(peer, pcm); err != nil {
		l.dispatchFailures.Add(1)
		log.WithFields(logrus.Fields{
			"peer":  peer,
			"error": err,
		}).Warn("Playback unavailable for peer")
		return
	}
	l.dispatched.Add(1)
}

// OnMemberJoined opens playback for a remote member
func (l *Loop) OnMemberJoined(peer PeerID) {
	if peer == l.transport.LocalID() {
		return
	}
	if err := l.sink.Ensure(peer); err != nil {
		log.WithFields(logrus.Fields{
			"peer":  peer,
			"error": err,
		}).Warn("Failed to open playback, will retry on first packet")
	}
}

// OnMemberLeft tears down the member's playback. The transport must have
// dropped peer from Members before reporting the leave.
func (l *Loop) OnMemberLeft(peer PeerID) {
	l.leaveMu.Lock()
	defer l.leaveMu.Unlock()
	l.sink.Remove(peer)
}

// Stats returns a snapshot of the loop counters
func (l *Loop) Stats() LoopStats {
	return LoopStats{
		Received:         l.received.Load(),
		Dispatched:       l.dispatched.Load(),
		LoopbackDropped:  l.loopbackDropped.Load(),
		NonMemberDropped: l.nonMemberDropped.Load(),
		DecodeFailures:   l.decodeFailures.Load(),
		DispatchFailures: l.dispatchFailures.Load(),
	}
}
