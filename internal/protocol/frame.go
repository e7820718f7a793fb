// ABOUTME: Binary voice frame codec
// ABOUTME: Frames carry one peer id and one encoded audio payload
package protocol

import (
	"errors"
	"fmt"
)

// Binary message types
const (
	FrameVoice byte = 1
)

// FlagReliable asks the hub not to drop the frame under back-pressure
const FlagReliable byte = 1 << 0

// frameHeaderSize is type, flags and id length
const frameHeaderSize = 3

// MaxPeerIDLen is the longest id a frame can carry
const MaxPeerIDLen = 255

var (
	ErrShortFrame   = errors.New("voice frame too short")
	ErrUnknownFrame = errors.New("unknown binary frame type")
)

// VoiceFrame is one encoded audio packet. From client to hub Peer is the
// target; from hub to client it is the sender.
type VoiceFrame struct {
	Peer     string
	Reliable bool
	Payload  []byte
}

// EncodeVoiceFrame packs a frame as [type][flags][idLen][id][payload]
func EncodeVoiceFrame(f VoiceFrame) ([]byte, error) {
	if len(f.Peer) == 0 || len(f.Peer) > MaxPeerIDLen {
		return nil, fmt.Errorf("peer id length %d out of range", len(f.Peer))
	}

	var flags byte
	if f.Reliable {
		flags |= FlagReliable
	}

	buf := make([]byte, frameHeaderSize+len(f.Peer)+len(f.Payload))
	buf[0] = FrameVoice
	buf[1] = flags
	buf[2] = byte(len(f.Peer))
	n := copy(buf[frameHeaderSize:], f.Peer)
	copy(buf[frameHeaderSize+n:], f.Payload)
	return buf, nil
}

// DecodeVoiceFrame unpacks a binary message. The payload aliases data.
func DecodeVoiceFrame(data []byte) (VoiceFrame, error) {
	if len(data) < frameHeaderSize {
		return VoiceFrame{}, ErrShortFrame
	}
	if data[0] != FrameVoice {
		return VoiceFrame{}, fmt.Errorf("%w: %d", ErrUnknownFrame, data[0])
	}

	idLen := int(data[2])
	if idLen == 0 || len(data) < frameHeaderSize+idLen {
		return VoiceFrame{}, fmt.Errorf("%w: id length %d, have %d bytes", ErrShortFrame, idLen, len(data))
	}

	return VoiceFrame{
		Peer:     string(data[frameHeaderSize : frameHeaderSize+idLen]),
		Reliable: data[1]&FlagReliable != 0,
		Payload:  data[frameHeaderSize+idLen:],
	}, nil
}
