// Package playback keeps one continuously running output channel per
// remote peer.
//
// The Registry is the relay's Sink: membership events call Ensure and
// Remove, the receive loop calls Dispatch, and Dispatch opens a channel on
// demand when audio arrives before the join notification.
package playback
