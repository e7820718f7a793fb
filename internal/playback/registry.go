// ABOUTME: Per-peer playback registry
// ABOUTME: Creates, feeds and tears down one playback channel per remote peer
package playback

import (
	"errors"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Resonate-Protocol/resonate-voice/internal/relay"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
	"github.com/sirupsen/logrus"
)

// ErrRegistryClosed is returned once the session has ended
var ErrRegistryClosed = errors.New("playback registry closed")

var log = logrus.WithField("component", "playback")

// entry is one peer's slot. Its lock serializes open and close for that
// peer only. The active channel is published atomically and read without
// locks. A dead entry has been unlinked from the map and must
// not be reused.
type entry struct {
	mu      sync.Mutex
	channel atomic.Pointer[active]
	dead    bool
}

type active struct {
	output.Channel
}

// Registry maps peers to playback channels. The map lock is held only for
// lookup, insert and erase; device work happens under the peer's own lock
// and audio is enqueued with no registry lock held.
type Registry struct {
	backend output.Backend
	format  audio.Format

	mu     sync.Mutex
	peers  map[relay.PeerID]*entry
	closed bool
}

// New creates a registry that opens every channel with format
func New(backend output.Backend, format audio.Format) *Registry {
	return &Registry{
		backend: backend,
		format:  format,
		peers:   make(map[relay.PeerID]*entry),
	}
}

// Format returns the session format
func (r *Registry) Format() audio.Format {
	return r.format
}

// slot returns the peer's entry, inserting an empty one when missing
func (r *Registry) slot(peer relay.PeerID) (*entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, ErrRegistryClosed
	}
	e, ok := r.peers[peer]
	if !ok {
		e = &entry{}
		r.peers[peer] = e
	}
	return e, nil
}

// lookup returns the peer's entry without inserting
func (r *Registry) lookup(peer relay.PeerID) *entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.peers[peer]
}

// unlink erases e from the map if it is still the peer's entry. Called with
// e.mu held.
func (r *Registry) unlink(peer relay.PeerID, e *entry) {
	r.mu.Lock()
	if r.peers[peer] == e {
		delete(r.peers, peer)
	}
	r.mu.Unlock()
	e.dead = true
}

// Ensure opens a playback channel for peer if it has none. Open failures
// leave the peer without a channel so a later call can retry.
func (r *Registry) Ensure(peer relay.PeerID) error {
	for {
		e, err := r.slot(peer)
		if err != nil {
			return err
		}

		e.mu.Lock()
		if e.dead {
			// Lost a race with Remove; start over on a fresh entry
			e.mu.Unlock()
			continue
		}
		if e.channel.Load() != nil {
			e.mu.Unlock()
			return nil
		}

		ch := r.backend.NewChannel()
		if err := ch.Open(r.format); err != nil {
			ch.Close()
			r.unlink(peer, e)
			e.mu.Unlock()

			log.WithFields(logrus.Fields{
				"peer":  peer,
				"error": err,
			}).Warn("Failed to open playback channel")
			return err
		}

		e.channel.Store(&active{ch})
		e.mu.Unlock()

		log.WithFields(logrus.Fields{
			"peer":    peer,
			"backend": r.backend.Name(),
		}).Info("Playback channel opened")
		return nil
	}
}

// channel returns the peer's active channel
func (r *Registry) channel(peer relay.PeerID) (output.Channel, bool) {
	e := r.lookup(peer)
	if e == nil {
		return nil, false
	}

	a := e.channel.Load()
	if a == nil {
		return nil, false
	}
	return a.Channel, true
}

// Dispatch queues decoded audio on the peer's channel, creating the channel
// first when the peer has none
func (r *Registry) Dispatch(peer relay.PeerID, pcm []byte) error {
	for {
		if ch, ok := r.channel(peer); ok {
			ch.Enqueue(pcm)
			return nil
		}
		if err := r.Ensure(peer); err != nil {
			return err
		}
	}
}

// Remove closes and forgets the peer's channel
func (r *Registry) Remove(peer relay.PeerID) {
	r.mu.Lock()
	e, ok := r.peers[peer]
	if ok {
		delete(r.peers, peer)
	}
	r.mu.Unlock()

	if !ok {
		return
	}
	if r.retire(e) {
		log.WithField("peer", peer).Info("Playback channel closed")
	}
}

// retire marks e dead and closes its channel, reporting whether one was open
func (r *Registry) retire(e *entry) bool {
	e.mu.Lock()
	e.dead = true
	a := e.channel.Swap(nil)
	e.mu.Unlock()

	if a == nil {
		return false
	}
	if err := a.Close(); err != nil {
		log.WithError(err).Warn("Playback channel close error")
	}
	return true
}

// Exists reports whether peer has an active channel
func (r *Registry) Exists(peer relay.PeerID) bool {
	_, ok := r.channel(peer)
	return ok
}

// Peers returns the peers with an active channel, sorted
func (r *Registry) Peers() []relay.PeerID {
	r.mu.Lock()
	keys := make([]relay.PeerID, 0, len(r.peers))
	for peer := range r.peers {
		keys = append(keys, peer)
	}
	r.mu.Unlock()

	peers := keys[:0]
	for _, peer := range keys {
		if r.Exists(peer) {
			peers = append(peers, peer)
		}
	}
	slices.Sort(peers)
	return peers
}

// Stats returns channel statistics for every active peer
func (r *Registry) Stats() map[relay.PeerID]output.ChannelStats {
	stats := make(map[relay.PeerID]output.ChannelStats)
	for _, peer := range r.Peers() {
		if ch, ok := r.channel(peer); ok {
			stats[peer] = ch.Stats()
		}
	}
	return stats
}

// Close removes every peer. Later Ensure and Dispatch calls fail with
// ErrRegistryClosed.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	entries := r.peers
	r.peers = make(map[relay.PeerID]*entry)
	r.mu.Unlock()

	closed := 0
	for _, e := range entries {
		if r.retire(e) {
			closed++
		}
	}
	log.WithField("channels", closed).Info("Playback registry closed")
}
