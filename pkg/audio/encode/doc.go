// ABOUTME: Audio encoder package for encoding PCM to wire formats
// ABOUTME: Provides Encoder interface and implementations for PCM and Opus
// Package encode provides audio encoders for voice frames.
//
// Supports: PCM (16-bit and 24-bit), Opus
//
// All encoders accept int32 samples in 24-bit range and encode
// to wire format.
//
// Example:
//
//	encoder, err := encode.NewOpus(audio.DefaultFormat, 16000)
//	packet, err := encoder.Encode(samples) // one 20ms frame
package encode
