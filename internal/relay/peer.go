// ABOUTME: Peer identity and membership event types
// ABOUTME: Shared vocabulary between the session transport and the relay core
package relay

// PeerID identifies one session participant for the lifetime of a session
type PeerID string

func (p PeerID) String() string {
	return string(p)
}

// EventKind distinguishes membership changes
type EventKind int

const (
	MemberJoined EventKind = iota
	MemberLeft
)

func (k EventKind) String() string {
	switch k {
	case MemberJoined:
		return "joined"
	case MemberLeft:
		return "left"
	default:
		return "unknown"
	}
}

// MemberEvent reports a membership change
type MemberEvent struct {
	Kind EventKind
	Peer PeerID
	Name string
}
