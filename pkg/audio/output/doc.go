// ABOUTME: Audio output package for per-peer playback
// ABOUTME: Provides the Channel and Backend interfaces with malgo, oto and null implementations
// Package output provides continuously running playback channels.
//
// Each Channel owns one output stream and a bounded ring buffer. The device
// pulls from the buffer on its own clock: when the buffer is empty it plays
// silence, and when a write does not fit the oldest audio is discarded.
// Enqueue never blocks the caller.
//
// A Backend is chosen once at startup:
//
//	backend, err := output.NewBackend("malgo", output.Options{BufferMs: 500})
//	ch := backend.NewChannel()
//	err = ch.Open(audio.DefaultFormat)
//	ch.Enqueue(pcm)
//	defer ch.Close()
package output
