// ABOUTME: Audio fundamentals package providing core types and utilities
// ABOUTME: Defines the session Format and sample conversion functions
// Package audio provides the audio types shared by capture, codec and playback.
//
// A session uses one fixed Format for every peer. Voice frames travel as
// 16-bit little-endian interleaved PCM between the codec and the playback
// channels; encoders and decoders work on int32 samples in 24-bit range.
//
// Example:
//
//	format := audio.DefaultFormat
//	frame := make([]byte, format.BytesFor(audio.FrameDuration)) // 3840 bytes
//	samples := audio.PCM16ToSamples(frame)
package audio
