// ABOUTME: Audio decoder package for voice frames
// ABOUTME: Provides Decoder interface and PCM, libopus and pure-Go Opus implementations
// Package decode provides audio decoders for voice frames.
//
// Supports: PCM (16-bit and 24-bit), Opus via libopus (NewOpus) and Opus
// SILK packets via the pure-Go pion decoder (NewPionOpus).
//
// All decoders output int32 samples in 24-bit range, interleaved at the
// session format's sample rate and channel count.
//
// Example:
//
//	decoder, err := decode.NewOpus(audio.DefaultFormat)
//	samples, err := decoder.Decode(packet)
package decode
