// ABOUTME: Audio resampling package using linear interpolation
// ABOUTME: Converts decoded audio between sample rates
// Package resample provides audio sample rate conversion.
//
// Uses linear interpolation and carries the last frame of every chunk into
// the next one, so packet boundaries do not click.
//
// Example:
//
//	r := resample.New(16000, 48000, 1)
//	out := r.Resample(samples)
package resample
