// ABOUTME: Sentinel errors for the application layer
// ABOUTME: Startup failures that stop the process before a session is joined
package app

import "errors"

var (
	// ErrNoServer is returned when joining without an address and mDNS is off
	ErrNoServer = errors.New("no server address and mdns disabled")

	// ErrNotStarted is returned by accessors used before Run joins a session
	ErrNotStarted = errors.New("app not started")
)
