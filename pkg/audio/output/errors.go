package output

import "errors"

var (
	// ErrDeviceUnavailable indicates no output device could be claimed
	ErrDeviceUnavailable = errors.New("audio device unavailable")

	// ErrUnsupportedFormat indicates the backend cannot play the requested format
	ErrUnsupportedFormat = errors.New("unsupported audio format")

	// ErrFormatMismatch indicates an open channel was asked to reopen with another format
	ErrFormatMismatch = errors.New("channel already open with a different format")
)
