// ABOUTME: Encoder interface definition
// ABOUTME: Common interface for voice encoders
package encode

// Encoder turns one frame of int32 samples into a wire payload
type Encoder interface {
	Encode(samples []int32) ([]byte, error)
	Close() error
}
