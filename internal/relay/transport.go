// ABOUTME: Contracts the relay core consumes
// ABOUTME: Codec, Transport and the playback Sink
package relay

// Codec turns PCM frames into wire payloads and back. Both directions are
// synchronous and use the session format agreed at startup.
type Codec interface {
	Encode(pcm []byte) ([]byte, error)
	Decode(data []byte) ([]byte, error)
}

// Reliability selects the delivery guarantee of a send
type Reliability int

const (
	Unreliable Reliability = iota
	Reliable
)

func (r Reliability) String() string {
	if r == Reliable {
		return "reliable"
	}
	return "unreliable"
}

// Transport delivers voice packets between session members. PacketAvailable
// and ReadPacket never block. Events is closed when the session ends. A
// peer is dropped from Members before its MemberLeft event is delivered.
type Transport interface {
	LocalID() PeerID
	Members() []PeerID
	PacketAvailable() bool
	ReadPacket() (PeerID, []byte, bool)
	Send(peer PeerID, data []byte, mode Reliability) error
	Events() <-chan MemberEvent
}

// Sink receives decoded audio per peer. It is implemented by the playback
// registry.
type Sink interface {
	Ensure(peer PeerID) error
	Dispatch(peer PeerID, pcm []byte) error
	Remove(peer PeerID)
}
