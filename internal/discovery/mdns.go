// ABOUTME: mDNS service discovery for voice sessions
// ABOUTME: Hosts advertise their hub; joiners browse for the first session they hear
package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/mdns"
	"github.com/sirupsen/logrus"
)

const (
	// ServiceType is the mDNS service hubs advertise
	ServiceType = "_resonate-voice._tcp"

	// DefaultPath is the websocket path advertised in TXT records
	DefaultPath = "/voice"

	// DefaultTimeout bounds how long Find waits for a session
	DefaultTimeout = 10 * time.Second

	queryWindow = 3 * time.Second
)

// ErrNoSession is returned when browsing finds nothing in time
var ErrNoSession = errors.New("no voice session found")

var log = logrus.WithField("component", "discovery")

// Config holds discovery configuration
type Config struct {
	ServiceName string
	SessionName string
	Port        int
	Path        string
}

// Manager handles mDNS operations
type Manager struct {
	config   Config
	ctx      context.Context
	cancel   context.CancelFunc
	sessions chan *SessionInfo
	server   *mdns.Server
}

// SessionInfo describes a discovered hub
type SessionInfo struct {
	Instance string
	Session  string
	Host     string
	Port     int
	Path     string
}

// Addr returns host:port for dialing
func (s SessionInfo) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// NewManager creates a discovery manager
func NewManager(config Config) *Manager {
	if config.Path == "" {
		config.Path = DefaultPath
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(chan *SessionInfo, 10),
	}
}

// txtRecords builds the TXT fields for an advertisement
func (c Config) txtRecords() []string {
	txt := []string{"path=" + c.Path}
	if c.SessionName != "" {
		txt = append(txt, "session="+c.SessionName)
	}
	return txt
}

// Advertise announces this hub until Stop is called
func (m *Manager) Advertise() error {
	ips, err := getLocalIPs()
	if err != nil {
		return fmt.Errorf("failed to get local IPs: %w", err)
	}

	service, err := mdns.NewMDNSService(
		m.config.ServiceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		m.config.txtRecords(),
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("failed to create mdns server: %w", err)
	}
	m.server = server

	log.WithFields(logrus.Fields{
		"service": m.config.ServiceName,
		"port":    m.config.Port,
		"type":    ServiceType,
	}).Info("Advertising voice session")

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse searches for hubs until Stop is called
func (m *Manager) Browse() {
	go m.browseLoop()
}

func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)
		forwarded := make(chan struct{})

		go func() {
			defer close(forwarded)
			for entry := range entries {
				info := sessionFromEntry(entry)
				if info == nil {
					continue
				}

				log.WithFields(logrus.Fields{
					"session": info.Session,
					"addr":    info.Addr(),
				}).Info("Discovered voice session")

				select {
				case m.sessions <- info:
				case <-m.ctx.Done():
				}
			}
		}()

		params := &mdns.QueryParam{
			Service:     ServiceType,
			Domain:      "local",
			Timeout:     queryWindow,
			Entries:     entries,
			DisableIPv6: true,
		}

		if err := mdns.Query(params); err != nil {
			log.WithError(err).Debug("mDNS query failed")
		}
		close(entries)
		<-forwarded

		select {
		case <-m.ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// sessionFromEntry converts an mDNS answer, ignoring entries without an address
func sessionFromEntry(entry *mdns.ServiceEntry) *SessionInfo {
	host := ""
	switch {
	case entry.AddrV4 != nil:
		host = entry.AddrV4.String()
	case entry.AddrV6 != nil:
		host = entry.AddrV6.String()
	default:
		return nil
	}

	txt := parseTXT(entry.InfoFields)
	info := &SessionInfo{
		Instance: entry.Name,
		Session:  txt["session"],
		Host:     host,
		Port:     entry.Port,
		Path:     txt["path"],
	}
	if info.Path == "" {
		info.Path = DefaultPath
	}
	return info
}

// parseTXT splits key=value TXT fields
func parseTXT(fields []string) map[string]string {
	out := make(map[string]string, len(fields))
	for _, f := range fields {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			continue
		}
		out[key] = value
	}
	return out
}

// Sessions returns the channel of discovered sessions
func (m *Manager) Sessions() <-chan *SessionInfo {
	return m.sessions
}

// Stop stops advertising and browsing
func (m *Manager) Stop() {
	m.cancel()
}

// Find browses until the first session appears or timeout passes
func Find(ctx context.Context, timeout time.Duration) (*SessionInfo, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	m := NewManager(Config{})
	defer m.Stop()
	m.Browse()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case info := <-m.Sessions():
		return info, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w after %s", ErrNoSession, timeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// getLocalIPs returns local IP addresses
func getLocalIPs() ([]net.IP, error) {
	var ips []net.IP

	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
				if ipnet.IP.To4() != nil {
					ips = append(ips, ipnet.IP)
				}
			}
		}
	}

	return ips, nil
}
