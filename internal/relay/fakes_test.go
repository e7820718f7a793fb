// ABOUTME: Test doubles for the relay contracts
// ABOUTME: In-memory transport, scripted codec and recording sink
package relay

import (
	"errors"
	"slices"
	"sync"
)

type packet struct {
	peer PeerID
	data []byte
}

type sent struct {
	peer PeerID
	data []byte
	mode Reliability
}

type fakeTransport struct {
	mu      sync.Mutex
	local   PeerID
	members []PeerID
	inbox   []packet
	sends   []sent
	failFor map[PeerID]bool
	events  chan MemberEvent
}

func newFakeTransport(local PeerID, members ...PeerID) *fakeTransport {
	return &fakeTransport{
		local:   local,
		members: members,
		failFor: map[PeerID]bool{},
		events:  make(chan MemberEvent, 16),
	}
}

func (t *fakeTransport) push(peer PeerID, data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inbox = append(t.inbox, packet{peer, data})
}

// leave drops peer from the member list and reports it, in that order
func (t *fakeTransport) leave(peer PeerID) {
	t.mu.Lock()
	t.members = slices.DeleteFunc(t.members, func(p PeerID) bool { return p == peer })
	t.mu.Unlock()
	t.events <- MemberEvent{Kind: MemberLeft, Peer: peer}
}

func (t *fakeTransport) LocalID() PeerID { return t.local }

func (t *fakeTransport) Members() []PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]PeerID(nil), t.members...)
}

func (t *fakeTransport) PacketAvailable() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inbox) > 0
}

func (t *fakeTransport) ReadPacket() (PeerID, []byte, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.inbox) == 0 {
		return "", nil, false
	}
	p := t.inbox[0]
	t.inbox = t.inbox[1:]
	return p.peer, p.data, true
}

func (t *fakeTransport) Send(peer PeerID, data []byte, mode Reliability) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.failFor[peer] {
		return errors.New("peer unreachable")
	}
	t.sends = append(t.sends, sent{peer, data, mode})
	return nil
}

func (t *fakeTransport) Events() <-chan MemberEvent { return t.events }

func (t *fakeTransport) sentTo() []PeerID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []PeerID
	for _, s := range t.sends {
		out = append(out, s.peer)
	}
	return out
}

// fakeCodec prefixes encoded data with 'E' and refuses to decode anything
// that does not start with it
type fakeCodec struct{}

func (fakeCodec) Encode(pcm []byte) ([]byte, error) {
	if len(pcm) == 0 {
		return nil, errors.New("empty")
	}
	return append([]byte{'E'}, pcm...), nil
}

func (fakeCodec) Decode(data []byte) ([]byte, error) {
	if len(data) == 0 || data[0] != 'E' {
		return nil, errors.New("corrupt payload")
	}
	return data[1:], nil
}

type fakeSink struct {
	mu         sync.Mutex
	ensured    map[PeerID]int
	removed    map[PeerID]int
	dispatched map[PeerID][][]byte
	failEnsure error

	// gates block Ensure for a peer until the channel is closed
	gates map[PeerID]chan struct{}
}

func newFakeSink() *fakeSink {
	return &fakeSink{
		ensured:    map[PeerID]int{},
		removed:    map[PeerID]int{},
		dispatched: map[PeerID][][]byte{},
		gates:      map[PeerID]chan struct{}{},
	}
}

func (s *fakeSink) Ensure(peer PeerID) error {
	s.mu.Lock()
	gate := s.gates[peer]
	s.mu.Unlock()
	if gate != nil {
		<-gate
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEnsure != nil {
		return s.failEnsure
	}
	s.ensured[peer]++
	return nil
}

func (s *fakeSink) Dispatch(peer PeerID, pcm []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failEnsure != nil {
		return s.failEnsure
	}
	s.dispatched[peer] = append(s.dispatched[peer], pcm)
	return nil
}

func (s *fakeSink) Remove(peer PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removed[peer]++
}

func (s *fakeSink) ensureCount(peer PeerID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensured[peer]
}

func (s *fakeSink) removeCount(peer PeerID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removed[peer]
}

func (s *fakeSink) frames(peer PeerID) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.dispatched[peer]...)
}
