// ABOUTME: Session hub relaying voice frames between connected members
// ABOUTME: Runs the websocket endpoint, tracks membership and optionally advertises over mDNS
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/discovery"
	"github.com/Resonate-Protocol/resonate-voice/internal/protocol"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultCapacity is the lobby size
	DefaultCapacity = 4

	// DefaultReliableTimeout bounds how long a reliable frame waits for queue space
	DefaultReliableTimeout = 250 * time.Millisecond

	defaultSendQueue = 64
	pingInterval     = 30 * time.Second
	writeDeadline    = 10 * time.Second
	helloTimeout     = 5 * time.Second
)

var hubLog = logrus.WithField("component", "hub")

// HubConfig holds hub configuration
type HubConfig struct {
	Port            int // 0 picks a free port
	Name            string
	Capacity        int
	Format          audio.Format
	ReliableTimeout time.Duration
	SendQueue       int
	EnableMDNS      bool
}

// HubStats counts relayed traffic
type HubStats struct {
	Members int
	Relayed uint64
	Dropped uint64
}

// Hub is the host side of a session
type Hub struct {
	config    HubConfig
	sessionID string
	upgrader  websocket.Upgrader

	listener   net.Listener
	httpServer *http.Server
	mdns       *discovery.Manager

	mu      sync.RWMutex
	members map[string]*member
	stopped bool

	relayed atomic.Uint64
	dropped atomic.Uint64

	stopOnce sync.Once
	wg       sync.WaitGroup
}

// member is one connected client
type member struct {
	id     string
	name   string
	joined time.Time
	conn   *websocket.Conn

	send      chan outbound
	done      chan struct{}
	closeOnce sync.Once
}

type outbound struct {
	messageType int
	data        []byte
}

func (m *member) close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.conn.Close()
	})
}

// NewHub creates a hub
func NewHub(config HubConfig) *Hub {
	if config.Capacity <= 0 {
		config.Capacity = DefaultCapacity
	}
	if config.ReliableTimeout <= 0 {
		config.ReliableTimeout = DefaultReliableTimeout
	}
	if config.SendQueue <= 0 {
		config.SendQueue = defaultSendQueue
	}
	if config.Format == (audio.Format{}) {
		config.Format = audio.DefaultFormat
	}

	return &Hub{
		config:    config,
		sessionID: uuid.New().String(),
		upgrader: websocket.Upgrader{
			// Local network tool; browsers are not expected clients
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		members: make(map[string]*member),
	}
}

// Start listens and serves until ctx is cancelled or Stop is called
func (h *Hub) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", h.config.Port))
	if err != nil {
		return fmt.Errorf("failed to listen on port %d: %w", h.config.Port, err)
	}
	h.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(discovery.DefaultPath, h.handleWebSocket)
	h.httpServer = &http.Server{Handler: mux}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		if err := h.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			hubLog.WithError(err).Error("HTTP server error")
		}
	}()

	if h.config.EnableMDNS {
		h.mdns = discovery.NewManager(discovery.Config{
			ServiceName: h.config.Name,
			SessionName: h.config.Name,
			Port:        h.Port(),
		})
		if err := h.mdns.Advertise(); err != nil {
			hubLog.WithError(err).Warn("mDNS advertisement failed, clients must connect directly")
		}
	}

	go func() {
		<-ctx.Done()
		h.Stop()
	}()

	hubLog.WithFields(logrus.Fields{
		"addr":     listener.Addr().String(),
		"session":  h.config.Name,
		"capacity": h.config.Capacity,
	}).Info("Hub listening")

	return nil
}

// Addr returns the listening address
func (h *Hub) Addr() string {
	if h.listener == nil {
		return ""
	}
	return h.listener.Addr().String()
}

// Port returns the listening port
func (h *Hub) Port() int {
	if h.listener == nil {
		return h.config.Port
	}
	return h.listener.Addr().(*net.TCPAddr).Port
}

// SessionID returns the id announced in session/welcome
func (h *Hub) SessionID() string {
	return h.sessionID
}

// Stop disconnects every member and shuts the listener down
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		h.mu.Lock()
		h.stopped = true
		members := make([]*member, 0, len(h.members))
		for _, m := range h.members {
			members = append(members, m)
		}
		h.mu.Unlock()

		for _, m := range members {
			m.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, reasonStopping),
				time.Now().Add(time.Second))
			m.close()
		}

		if h.mdns != nil {
			h.mdns.Stop()
		}

		if h.httpServer != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			h.httpServer.Shutdown(ctx)
		}

		h.wg.Wait()
		hubLog.Info("Hub stopped")
	})
}

// Members returns the connected members ordered by join time
func (h *Hub) Members() []protocol.Member {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.rosterLocked()
}

func (h *Hub) rosterLocked() []protocol.Member {
	ms := make([]*member, 0, len(h.members))
	for _, m := range h.members {
		ms = append(ms, m)
	}
	slices.SortFunc(ms, func(a, b *member) int {
		return a.joined.Compare(b.joined)
	})

	roster := make([]protocol.Member, len(ms))
	for i, m := range ms {
		roster[i] = protocol.Member{PeerID: m.id, Name: m.name}
	}
	return roster
}

// Stats returns relay counters
func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	n := len(h.members)
	h.mu.RUnlock()

	return HubStats{
		Members: n,
		Relayed: h.relayed.Load(),
		Dropped: h.dropped.Load(),
	}
}

func marshalMessage(msgType string, payload interface{}) (outbound, error) {
	data, err := json.Marshal(protocol.Message{Type: msgType, Payload: payload})
	if err != nil {
		return outbound{}, fmt.Errorf("failed to marshal %s: %w", msgType, err)
	}
	return outbound{messageType: websocket.TextMessage, data: data}, nil
}

// reject refuses a connection before it becomes a member
func (h *Hub) reject(conn *websocket.Conn, reason string) {
	msg, err := marshalMessage(protocol.TypeReject, protocol.Reject{Reason: reason})
	if err == nil {
		conn.SetWriteDeadline(time.Now().Add(writeDeadline))
		conn.WriteMessage(msg.messageType, msg.data)
	}
	conn.Close()
}

// admit validates a hello and registers the member. The welcome is queued
// before the member becomes visible to broadcasts.
func (h *Hub) admit(conn *websocket.Conn, hello protocol.Hello) (*member, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.stopped:
		return nil, errors.New(reasonStopping)
	case len(h.members) >= h.config.Capacity:
		return nil, ErrSessionFull
	case h.members[hello.PeerID] != nil:
		return nil, ErrDuplicatePeer
	}

	m := &member{
		id:     hello.PeerID,
		name:   hello.Name,
		joined: time.Now(),
		conn:   conn,
		send:   make(chan outbound, h.config.SendQueue),
		done:   make(chan struct{}),
	}
	h.members[m.id] = m

	f := h.config.Format
	welcome, err := marshalMessage(protocol.TypeWelcome, protocol.Welcome{
		SessionID: h.sessionID,
		Name:      h.config.Name,
		Format: protocol.AudioFormat{
			Codec:      f.Codec,
			Channels:   f.Channels,
			SampleRate: f.SampleRate,
			BitDepth:   f.BitDepth,
		},
		Capacity: h.config.Capacity,
		Members:  h.rosterLocked(),
	})
	if err != nil {
		delete(h.members, m.id)
		return nil, err
	}
	m.send <- welcome

	joined, err := marshalMessage(protocol.TypeJoined, protocol.Member{PeerID: m.id, Name: m.name})
	if err == nil {
		h.broadcastLocked(joined, m.id)
	}

	// Counted under the lock so Stop never waits on a half-registered writer
	h.wg.Add(1)
	return m, nil
}

// broadcastLocked queues a control message for every member except skip.
// A member whose queue is full is too slow to stay and is disconnected.
func (h *Hub) broadcastLocked(msg outbound, skip string) {
	for id, m := range h.members {
		if id == skip {
			continue
		}
		select {
		case m.send <- msg:
		case <-m.done:
		default:
			hubLog.WithField("peer", id).Warn("Control queue full, disconnecting member")
			m.close()
		}
	}
}

// leave unregisters m and tells the others
func (h *Hub) leave(m *member) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.members[m.id] != m {
		return
	}
	delete(h.members, m.id)

	left, err := marshalMessage(protocol.TypeLeft, protocol.MemberLeft{PeerID: m.id})
	if err == nil {
		h.broadcastLocked(left, m.id)
	}
}

// handleWebSocket runs one member connection
func (h *Hub) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hubLog.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	hello, err := readHello(conn)
	if err != nil {
		hubLog.WithError(err).Warn("Bad hello")
		h.reject(conn, reasonBadHello)
		return
	}

	m, err := h.admit(conn, hello)
	if err != nil {
		hubLog.WithFields(logrus.Fields{
			"peer":  hello.PeerID,
			"error": err,
		}).Warn("Rejecting member")
		h.reject(conn, err.Error())
		return
	}

	hubLog.WithFields(logrus.Fields{
		"peer": m.id,
		"name": m.name,
	}).Info("Member joined")

	go func() {
		defer h.wg.Done()
		h.writer(m)
	}()

	h.reader(m)

	h.leave(m)
	m.close()

	hubLog.WithFields(logrus.Fields{
		"peer": m.id,
		"name": m.name,
	}).Info("Member left")
}

// readHello waits for the client's session/hello
func readHello(conn *websocket.Conn) (protocol.Hello, error) {
	conn.SetReadDeadline(time.Now().Add(helloTimeout))
	defer conn.SetReadDeadline(time.Time{})

	messageType, data, err := conn.ReadMessage()
	if err != nil {
		return protocol.Hello{}, fmt.Errorf("failed to read hello: %w", err)
	}
	if messageType != websocket.TextMessage {
		return protocol.Hello{}, errors.New("expected text hello")
	}

	env, err := protocol.ParseEnvelope(data)
	if err != nil {
		return protocol.Hello{}, err
	}
	if env.Type != protocol.TypeHello {
		return protocol.Hello{}, fmt.Errorf("expected %s, got %s", protocol.TypeHello, env.Type)
	}

	var hello protocol.Hello
	if err := env.Decode(&hello); err != nil {
		return protocol.Hello{}, err
	}
	if hello.PeerID == "" || len(hello.PeerID) > protocol.MaxPeerIDLen {
		return protocol.Hello{}, fmt.Errorf("invalid peer id %q", hello.PeerID)
	}
	return hello, nil
}

// reader relays the member's voice frames until the connection ends
func (h *Hub) reader(m *member) {
	for {
		messageType, data, err := m.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				hubLog.WithField("peer", m.id).WithError(err).Warn("WebSocket error")
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			h.relay(m, data)
			continue
		}

		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			hubLog.WithField("peer", m.id).WithError(err).Debug("Ignoring control message")
			continue
		}
		if env.Type == protocol.TypeGoodbye {
			return
		}
	}
}

// relay forwards one frame from sender to its target, restamped with the
// sender's id
func (h *Hub) relay(sender *member, data []byte) {
	frame, err := protocol.DecodeVoiceFrame(data)
	if err != nil {
		hubLog.WithField("peer", sender.id).WithError(err).Debug("Dropping malformed frame")
		return
	}

	h.mu.RLock()
	target := h.members[frame.Peer]
	h.mu.RUnlock()

	if target == nil {
		h.dropped.Add(1)
		hubLog.WithFields(logrus.Fields{
			"peer":   sender.id,
			"target": frame.Peer,
		}).Debug(ErrUnknownPeer.Error())
		return
	}

	out, err := protocol.EncodeVoiceFrame(protocol.VoiceFrame{
		Peer:     sender.id,
		Reliable: frame.Reliable,
		Payload:  frame.Payload,
	})
	if err != nil {
		return
	}

	if err := h.deliver(target, outbound{messageType: websocket.BinaryMessage, data: out}, frame.Reliable); err != nil {
		h.dropped.Add(1)
		hubLog.WithFields(logrus.Fields{
			"peer":   sender.id,
			"target": target.id,
			"error":  err,
		}).Debug("Frame dropped")
		return
	}
	h.relayed.Add(1)
}

// deliver queues a frame; unreliable frames never wait
func (h *Hub) deliver(target *member, msg outbound, reliable bool) error {
	if !reliable {
		select {
		case target.send <- msg:
			return nil
		case <-target.done:
			return ErrNotConnected
		default:
			return ErrSendBufferFull
		}
	}

	timer := time.NewTimer(h.config.ReliableTimeout)
	defer timer.Stop()

	select {
	case target.send <- msg:
		return nil
	case <-target.done:
		return ErrNotConnected
	case <-timer.C:
		return ErrSendBufferFull
	}
}

// writer sends queued messages and keeps the connection alive
func (h *Hub) writer(m *member) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-m.send:
			m.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := m.conn.WriteMessage(msg.messageType, msg.data); err != nil {
				hubLog.WithField("peer", m.id).WithError(err).Debug("Write failed")
				m.close()
				return
			}

		case <-ticker.C:
			if err := m.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeDeadline)); err != nil {
				m.close()
				return
			}

		case <-m.done:
			return
		}
	}
}
