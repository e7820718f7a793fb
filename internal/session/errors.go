// ABOUTME: Session error sentinels
// ABOUTME: Returned by the hub handshake and the client transport
package session

import "errors"

var (
	// ErrSessionFull is returned when the hub is at capacity
	ErrSessionFull = errors.New("session full")

	// ErrDuplicatePeer is returned when a peer id is already connected
	ErrDuplicatePeer = errors.New("duplicate peer id")

	// ErrRejected covers any other handshake refusal
	ErrRejected = errors.New("session rejected")

	// ErrNotConnected is returned by Send before Connect or after Close
	ErrNotConnected = errors.New("not connected")

	// ErrUnknownPeer is returned when sending to someone outside the session
	ErrUnknownPeer = errors.New("unknown peer")

	// ErrSendBufferFull is returned when a member's outbound queue is full
	ErrSendBufferFull = errors.New("send buffer full")
)

// Reject reasons carried in session/reject
const (
	reasonFull      = "session full"
	reasonDuplicate = "duplicate peer id"
	reasonBadHello  = "invalid hello"
	reasonStopping  = "session ending"
)

// rejectError maps a reject reason back to its sentinel
func rejectError(reason string) error {
	switch reason {
	case reasonFull:
		return ErrSessionFull
	case reasonDuplicate:
		return ErrDuplicatePeer
	default:
		return ErrRejected
	}
}
