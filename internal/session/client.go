// ABOUTME: Session client implementing the relay transport over a hub websocket
// ABOUTME: Performs the handshake, tracks membership and buffers inbound voice frames
package session

import (
	"context"
	"fmt"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/discovery"
	"github.com/Resonate-Protocol/resonate-voice/internal/protocol"
	"github.com/Resonate-Protocol/resonate-voice/internal/relay"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	defaultInboxSize = 256
	eventQueueSize   = 64
)

var clientLog = logrus.WithField("component", "session")

// ClientConfig holds client configuration
type ClientConfig struct {
	ServerAddr string
	Path       string
	PeerID     relay.PeerID
	Name       string
	InboxSize  int
	DeviceInfo protocol.DeviceInfo
}

type inbound struct {
	peer relay.PeerID
	data []byte
}

// Client joins a hub and carries voice frames for the relay
type Client struct {
	config ClientConfig
	conn   *websocket.Conn

	writeMu sync.Mutex

	mu      sync.RWMutex
	members map[relay.PeerID]string
	welcome protocol.Welcome

	inboxMu sync.Mutex
	inbox   []inbound
	dropped atomic.Uint64

	events     chan relay.MemberEvent
	eventsOnce sync.Once
	done       chan struct{}
	closeOnce  sync.Once
	readerDone chan struct{}
	connected  atomic.Bool
}

var _ relay.Transport = (*Client)(nil)

// NewClient creates a client
func NewClient(config ClientConfig) *Client {
	if config.Path == "" {
		config.Path = discovery.DefaultPath
	}
	if config.InboxSize <= 0 {
		config.InboxSize = defaultInboxSize
	}

	return &Client{
		config:     config,
		members:    make(map[relay.PeerID]string),
		events:     make(chan relay.MemberEvent, eventQueueSize),
		done:       make(chan struct{}),
		readerDone: make(chan struct{}),
	}
}

// Connect dials the hub and completes the handshake
func (c *Client) Connect(ctx context.Context) error {
	u := url.URL{Scheme: "ws", Host: c.config.ServerAddr, Path: c.config.Path}
	clientLog.WithField("url", u.String()).Info("Connecting")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("dial failed: %w", err)
	}
	c.conn = conn

	if err := c.handshake(); err != nil {
		conn.Close()
		c.conn = nil
		c.closeEvents()
		return fmt.Errorf("handshake failed: %w", err)
	}

	c.connected.Store(true)
	go c.readMessages()

	return nil
}

func (c *Client) handshake() error {
	hello := protocol.Message{
		Type: protocol.TypeHello,
		Payload: protocol.Hello{
			PeerID:     string(c.config.PeerID),
			Name:       c.config.Name,
			Version:    protocol.Version,
			DeviceInfo: &c.config.DeviceInfo,
		},
	}
	if err := c.writeJSON(hello); err != nil {
		return fmt.Errorf("failed to send %s: %w", protocol.TypeHello, err)
	}

	c.conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer c.conn.SetReadDeadline(time.Time{})

	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return fmt.Errorf("failed to read handshake response: %w", err)
	}

	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		return err
	}

	switch env.Type {
	case protocol.TypeWelcome:
		var welcome protocol.Welcome
		if err := env.Decode(&welcome); err != nil {
			return err
		}
		c.mu.Lock()
		c.welcome = welcome
		for _, m := range welcome.Members {
			c.members[relay.PeerID(m.PeerID)] = m.Name
		}
		c.mu.Unlock()

		clientLog.WithFields(logrus.Fields{
			"session": welcome.Name,
			"members": len(welcome.Members),
		}).Info("Joined session")
		return nil

	case protocol.TypeReject:
		var reject protocol.Reject
		if err := env.Decode(&reject); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", rejectError(reject.Reason), reject.Reason)

	default:
		return fmt.Errorf("unexpected %s during handshake", env.Type)
	}
}

func (c *Client) writeJSON(msg protocol.Message) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	return c.conn.WriteJSON(msg)
}

// readMessages runs until the connection ends, then closes the event stream
func (c *Client) readMessages() {
	defer close(c.readerDone)
	defer c.closeEvents()
	defer c.connected.Store(false)

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				clientLog.WithError(err).Warn("Disconnected from hub")
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			c.handleFrame(data)
			continue
		}

		if !c.handleControl(data) {
			return
		}
	}
}

func (c *Client) handleFrame(data []byte) {
	frame, err := protocol.DecodeVoiceFrame(data)
	if err != nil {
		clientLog.WithError(err).Debug("Dropping malformed frame")
		return
	}

	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()
	if len(c.inbox) >= c.config.InboxSize {
		c.inbox[0] = inbound{}
		c.inbox = c.inbox[1:]
		c.dropped.Add(1)
	}
	c.inbox = append(c.inbox, inbound{peer: relay.PeerID(frame.Peer), data: frame.Payload})
}

// handleControl applies a membership message; false means the session ended
func (c *Client) handleControl(data []byte) bool {
	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		clientLog.WithError(err).Debug("Ignoring control message")
		return true
	}

	switch env.Type {
	case protocol.TypeJoined:
		var m protocol.Member
		if err := env.Decode(&m); err != nil {
			clientLog.WithError(err).Warn("Bad member/joined")
			return true
		}
		peer := relay.PeerID(m.PeerID)
		c.mu.Lock()
		c.members[peer] = m.Name
		c.mu.Unlock()
		c.emit(relay.MemberEvent{Kind: relay.MemberJoined, Peer: peer, Name: m.Name})

	case protocol.TypeLeft:
		var m protocol.MemberLeft
		if err := env.Decode(&m); err != nil {
			clientLog.WithError(err).Warn("Bad member/left")
			return true
		}
		peer := relay.PeerID(m.PeerID)
		c.mu.Lock()
		name := c.members[peer]
		delete(c.members, peer)
		c.mu.Unlock()
		c.purge(peer)
		c.emit(relay.MemberEvent{Kind: relay.MemberLeft, Peer: peer, Name: name})

	case protocol.TypeGoodbye:
		clientLog.Info("Hub ended the session")
		return false
	}
	return true
}

// purge discards frames from peer that are still waiting in the inbox
func (c *Client) purge(peer relay.PeerID) {
	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()

	kept := c.inbox[:0]
	for _, p := range c.inbox {
		if p.peer != peer {
			kept = append(kept, p)
		}
	}
	clear(c.inbox[len(kept):])
	c.inbox = kept
}

func (c *Client) emit(ev relay.MemberEvent) {
	select {
	case c.events <- ev:
	case <-c.done:
	}
}

func (c *Client) closeEvents() {
	c.eventsOnce.Do(func() {
		close(c.events)
	})
}

// LocalID returns this client's peer id
func (c *Client) LocalID() relay.PeerID {
	return c.config.PeerID
}

// Members returns every member, this client included, sorted
func (c *Client) Members() []relay.PeerID {
	c.mu.RLock()
	defer c.mu.RUnlock()

	peers := make([]relay.PeerID, 0, len(c.members))
	for p := range c.members {
		peers = append(peers, p)
	}
	slices.Sort(peers)
	return peers
}

// MemberName returns the display name of peer
func (c *Client) MemberName(peer relay.PeerID) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.members[peer]
}

// SessionName returns the name announced by the hub
func (c *Client) SessionName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.welcome.Name
}

// Format returns the session audio format announced by the hub
func (c *Client) Format() audio.Format {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f := c.welcome.Format
	return audio.Format{
		Codec:      f.Codec,
		SampleRate: f.SampleRate,
		Channels:   f.Channels,
		BitDepth:   f.BitDepth,
	}
}

// Dropped returns how many inbound frames were discarded because the inbox was full
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// PacketAvailable reports whether ReadPacket would return a frame
func (c *Client) PacketAvailable() bool {
	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()
	return len(c.inbox) > 0
}

// ReadPacket pops the oldest inbound frame
func (c *Client) ReadPacket() (relay.PeerID, []byte, bool) {
	c.inboxMu.Lock()
	defer c.inboxMu.Unlock()
	if len(c.inbox) == 0 {
		return "", nil, false
	}
	p := c.inbox[0]
	c.inbox[0] = inbound{}
	c.inbox = c.inbox[1:]
	return p.peer, p.data, true
}

// Send addresses one encoded frame to peer through the hub
func (c *Client) Send(peer relay.PeerID, data []byte, mode relay.Reliability) error {
	if !c.connected.Load() {
		return ErrNotConnected
	}

	c.mu.RLock()
	_, known := c.members[peer]
	c.mu.RUnlock()
	if !known && peer != c.config.PeerID {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peer)
	}

	frame, err := protocol.EncodeVoiceFrame(protocol.VoiceFrame{
		Peer:     string(peer),
		Reliable: mode == relay.Reliable,
		Payload:  data,
	})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// Events returns membership changes; closed when the connection ends
func (c *Client) Events() <-chan relay.MemberEvent {
	return c.events
}

// Close says goodbye and disconnects
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn == nil {
			c.closeEvents()
			return
		}

		if c.connected.Load() {
			c.writeJSON(protocol.Message{Type: protocol.TypeGoodbye, Payload: protocol.Goodbye{Reason: "leaving"}})
		}
		c.conn.Close()

		select {
		case <-c.readerDone:
		case <-time.After(2 * time.Second):
		}
		c.closeEvents()
	})
	return nil
}
