// ABOUTME: Relay error sentinels
// ABOUTME: Peer-scoped failures are logged and never stop the loop
package relay

import "errors"

var (
	// ErrDecodeFailure marks a malformed or corrupt inbound payload
	ErrDecodeFailure = errors.New("decode failure")

	// ErrSendFailure marks an outbound packet the transport rejected for one peer
	ErrSendFailure = errors.New("send failure")

	// ErrTransportClosed is returned by Run when the membership stream ends
	ErrTransportClosed = errors.New("transport closed")
)
