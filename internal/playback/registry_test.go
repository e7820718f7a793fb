// ABOUTME: Tests for the playback registry
// ABOUTME: Covers idempotence, lazy creation, removal, retries and cross-peer independence
package playback

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/relay"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeChannel buffers without draining so tests can inspect what was queued
type fakeChannel struct {
	backend *fakeBackend
	gate    chan struct{}

	mu     sync.Mutex
	open   bool
	closes int
	ring   *output.RingBuffer
}

func (c *fakeChannel) Open(format audio.Format) error {
	b := c.backend
	if c.gate != nil {
		b.opening <- struct{}{}
		<-c.gate
	}
	if b.failures.Load() > 0 {
		b.failures.Add(-1)
		return fmt.Errorf("%w: no device", output.ErrDeviceUnavailable)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = true
	c.ring = output.NewRingBuffer(b.capacity)
	b.opened.Add(1)
	return nil
}

func (c *fakeChannel) Enqueue(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		c.ring.Write(data)
	}
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open {
		c.backend.closed.Add(1)
	}
	c.open = false
	c.closes++
	return nil
}

func (c *fakeChannel) Stats() output.ChannelStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := output.ChannelStats{Open: c.open}
	if c.ring != nil {
		s.Buffered = c.ring.Len()
		s.Capacity = c.ring.Cap()
	}
	return s
}

// contents returns the queued bytes without consuming them from the test's view
func (c *fakeChannel) contents() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]byte, c.ring.Len())
	c.ring.Read(out)
	c.ring.Write(out)
	return out
}

type fakeBackend struct {
	capacity int
	failures atomic.Int32
	opened   atomic.Int32
	closed   atomic.Int32

	// The first channel signals opening and waits on gate inside Open
	opening chan struct{}
	gate    chan struct{}

	mu       sync.Mutex
	channels []*fakeChannel
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{capacity: 4096}
}

func (b *fakeBackend) Name() string { return "fake" }

func (b *fakeBackend) NewChannel() output.Channel {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := &fakeChannel{backend: b}
	if b.gate != nil && len(b.channels) == 0 {
		ch.gate = b.gate
	}
	b.channels = append(b.channels, ch)
	return ch
}

func (b *fakeBackend) Close() error { return nil }

func (b *fakeBackend) last() *fakeChannel {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.channels[len(b.channels)-1]
}

func TestEnsureIsIdempotent(t *testing.T) {
	b := newFakeBackend()
	r := New(b, audio.DefaultFormat)

	for i := 0; i < 10; i++ {
		require.NoError(t, r.Ensure("alice"))
	}
	assert.Equal(t, int32(1), b.opened.Load())
	assert.Equal(t, []relay.PeerID{"alice"}, r.Peers())
}

func TestConcurrentEnsureCreatesOneChannel(t *testing.T) {
	b := newFakeBackend()
	r := New(b, audio.DefaultFormat)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Ensure("alice"))
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), b.opened.Load())
}

func TestDispatchCreatesChannelLazily(t *testing.T) {
	b := newFakeBackend()
	r := New(b, audio.DefaultFormat)

	assert.False(t, r.Exists("alice"))
	require.NoError(t, r.Dispatch("alice", []byte{1, 2, 3, 4}))

	assert.True(t, r.Exists("alice"))
	assert.Equal(t, []byte{1, 2, 3, 4}, b.last().contents())
}

func TestJoinAudioLeaveScenario(t *testing.T) {
	b := newFakeBackend()
	r := New(b, audio.DefaultFormat)

	require.NoError(t, r.Ensure("A"))
	assert.True(t, r.Exists("A"))

	pcm := make([]byte, 320)
	for i := range pcm {
		pcm[i] = byte(i)
	}
	require.NoError(t, r.Dispatch("A", pcm))
	assert.Equal(t, pcm, b.last().contents())
	assert.Equal(t, 320, r.Stats()["A"].Buffered)

	r.Remove("A")
	assert.False(t, r.Exists("A"))
	assert.Equal(t, int32(1), b.closed.Load())
}

func TestRemoveThenDispatchCreatesFreshChannel(t *testing.T) {
	b := newFakeBackend()
	r := New(b, audio.DefaultFormat)

	require.NoError(t, r.Dispatch("alice", []byte("old")))
	first := b.last()

	r.Remove("alice")
	r.Remove("alice")
	assert.False(t, r.Exists("alice"))
	assert.Equal(t, 1, first.closes, "remove always closes, once")

	require.NoError(t, r.Dispatch("alice", []byte("new")))
	second := b.last()

	assert.NotSame(t, first, second)
	assert.Equal(t, []byte("new"), second.contents(), "no stale audio")
	assert.Equal(t, int32(2), b.opened.Load())
}

func TestDispatchKeepsNewestWhenFull(t *testing.T) {
	b := newFakeBackend()
	b.capacity = 8
	r := New(b, audio.DefaultFormat)

	in := []byte("0123456789abcdef")
	require.NoError(t, r.Dispatch("alice", in))
	assert.Equal(t, in[len(in)-8:], b.last().contents())
}

func TestDeviceUnavailableRetries(t *testing.T) {
	b := newFakeBackend()
	b.failures.Store(1)
	r := New(b, audio.DefaultFormat)

	err := r.Ensure("alice")
	require.Error(t, err)
	assert.True(t, errors.Is(err, output.ErrDeviceUnavailable))
	assert.False(t, r.Exists("alice"))
	assert.Empty(t, r.Peers())

	require.NoError(t, r.Ensure("alice"))
	assert.True(t, r.Exists("alice"))
}

func TestDispatchPropagatesDeviceUnavailable(t *testing.T) {
	b := newFakeBackend()
	b.failures.Store(1)
	r := New(b, audio.DefaultFormat)

	err := r.Dispatch("alice", []byte{1, 2})
	assert.True(t, errors.Is(err, output.ErrDeviceUnavailable))

	require.NoError(t, r.Dispatch("alice", []byte{3, 4}))
	assert.Equal(t, []byte{3, 4}, b.last().contents())
}

func TestSlowOpenDoesNotBlockOtherPeers(t *testing.T) {
	b := newFakeBackend()
	b.opening = make(chan struct{}, 1)
	b.gate = make(chan struct{})
	r := New(b, audio.DefaultFormat)

	ensured := make(chan error, 1)
	go func() { ensured <- r.Ensure("slow") }()
	<-b.opening

	done := make(chan error, 1)
	go func() { done <- r.Dispatch("fast", []byte{1, 2, 3}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatch for fast peer blocked behind slow open")
	}
	assert.Equal(t, []byte{1, 2, 3}, b.last().contents())
	assert.True(t, r.Exists("fast"))
	assert.False(t, r.Exists("slow"), "still opening")
	assert.Equal(t, []relay.PeerID{"fast"}, r.Peers())

	close(b.gate)
	require.NoError(t, <-ensured)
	assert.True(t, r.Exists("slow"))
	assert.Equal(t, []relay.PeerID{"fast", "slow"}, r.Peers())
}

func TestRemoveDuringOpenClosesChannel(t *testing.T) {
	b := newFakeBackend()
	b.opening = make(chan struct{}, 1)
	b.gate = make(chan struct{})
	r := New(b, audio.DefaultFormat)

	ensured := make(chan error, 1)
	go func() { ensured <- r.Ensure("alice") }()
	<-b.opening

	removed := make(chan struct{})
	go func() {
		r.Remove("alice")
		close(removed)
	}()

	close(b.gate)
	require.NoError(t, <-ensured)
	<-removed

	assert.False(t, r.Exists("alice"))
	assert.Equal(t, b.opened.Load(), b.closed.Load(), "no channel leaks")
}

func TestConcurrentDispatchAndRemove(t *testing.T) {
	b := newFakeBackend()
	r := New(b, audio.DefaultFormat)

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				assert.NoError(t, r.Dispatch("alice", []byte{1}))
			}
		}()
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				r.Remove("alice")
			}
		}()
	}
	wg.Wait()

	r.Remove("alice")
	assert.False(t, r.Exists("alice"))
	assert.Equal(t, b.opened.Load(), b.closed.Load())
}

func TestCloseReleasesEverything(t *testing.T) {
	b := newFakeBackend()
	r := New(b, audio.DefaultFormat)

	for _, p := range []relay.PeerID{"c", "a", "b"} {
		require.NoError(t, r.Ensure(p))
	}
	assert.Equal(t, []relay.PeerID{"a", "b", "c"}, r.Peers())

	r.Close()
	r.Close()

	assert.Equal(t, int32(3), b.closed.Load())
	assert.Empty(t, r.Peers())
	assert.True(t, errors.Is(r.Ensure("a"), ErrRegistryClosed))
	assert.True(t, errors.Is(r.Dispatch("a", []byte{1}), ErrRegistryClosed))
	r.Remove("a")
}

func TestRegistryOnNullBackend(t *testing.T) {
	backend := output.NewNull(output.Options{BufferMs: 100})
	r := New(backend, audio.DefaultFormat)
	defer r.Close()

	var _ relay.Sink = r

	require.NoError(t, r.Dispatch("alice", make([]byte, 3840)))
	stats := r.Stats()["alice"]
	assert.True(t, stats.Open)
	assert.Equal(t, audio.DefaultFormat.BytesFor(100*time.Millisecond), stats.Capacity)
	assert.Equal(t, audio.DefaultFormat, r.Format())
}
