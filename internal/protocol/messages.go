// ABOUTME: Voice session control message definitions
// ABOUTME: JSON envelope and payload structs exchanged between hub and clients
package protocol

import (
	"encoding/json"
	"fmt"
)

// Control message types
const (
	TypeHello   = "session/hello"
	TypeWelcome = "session/welcome"
	TypeReject  = "session/reject"
	TypeGoodbye = "session/goodbye"
	TypeJoined  = "member/joined"
	TypeLeft    = "member/left"
)

// Version is the protocol version carried in session/hello
const Version = 1

// Message is the top-level wrapper for all control messages
type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

// Envelope is a received control message whose payload is not yet decoded
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// ParseEnvelope reads the type of a control message
func ParseEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("invalid control message: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("control message has no type")
	}
	return env, nil
}

// Decode unmarshals the payload into v
func (e Envelope) Decode(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: invalid payload: %w", e.Type, err)
	}
	return nil
}

// DeviceInfo contains device identification
type DeviceInfo struct {
	ProductName     string `json:"product_name"`
	Manufacturer    string `json:"manufacturer"`
	SoftwareVersion string `json:"software_version"`
}

// Hello is sent by a client to join the session
type Hello struct {
	PeerID     string      `json:"peer_id"`
	Name       string      `json:"name"`
	Version    int         `json:"version"`
	DeviceInfo *DeviceInfo `json:"device_info,omitempty"`
}

// AudioFormat describes the session's fixed voice format
type AudioFormat struct {
	Codec      string `json:"codec"`
	Channels   int    `json:"channels"`
	SampleRate int    `json:"sample_rate"`
	BitDepth   int    `json:"bit_depth"`
}

// Member is one session participant
type Member struct {
	PeerID string `json:"peer_id"`
	Name   string `json:"name"`
}

// Welcome accepts a client and lists the current members, the client included
type Welcome struct {
	SessionID string      `json:"session_id"`
	Name      string      `json:"name"`
	Format    AudioFormat `json:"format"`
	Capacity  int         `json:"capacity"`
	Members   []Member    `json:"members"`
}

// Reject refuses a client
type Reject struct {
	Reason string `json:"reason"`
}

// Goodbye announces a clean disconnect
type Goodbye struct {
	Reason string `json:"reason,omitempty"`
}

// MemberLeft announces a departure
type MemberLeft struct {
	PeerID string `json:"peer_id"`
}
