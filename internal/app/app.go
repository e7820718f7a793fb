// ABOUTME: Voice session application orchestration
// ABOUTME: Coordinates session transport, codec, relay, playback registry, microphone and TUI
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/capture"
	"github.com/Resonate-Protocol/resonate-voice/internal/config"
	"github.com/Resonate-Protocol/resonate-voice/internal/discovery"
	"github.com/Resonate-Protocol/resonate-voice/internal/playback"
	"github.com/Resonate-Protocol/resonate-voice/internal/protocol"
	"github.com/Resonate-Protocol/resonate-voice/internal/relay"
	"github.com/Resonate-Protocol/resonate-voice/internal/session"
	"github.com/Resonate-Protocol/resonate-voice/internal/ui"
	"github.com/Resonate-Protocol/resonate-voice/internal/version"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/codec"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	statusInterval    = 500 * time.Millisecond
	statusLogInterval = 30 * time.Second
)

var log = logrus.WithField("component", "app")

// App is one participant in a voice session, optionally hosting it
type App struct {
	cfg    *config.Config
	peerID relay.PeerID

	backend  output.Backend
	hub      *session.Hub
	client   *session.Client
	codec    *codec.Codec
	registry *playback.Registry
	loop     *relay.Loop
	bridge   *relay.CaptureBridge
	source   capture.Source

	tui      *ui.TUI
	controls *ui.Controls

	address string
	ready   chan struct{}
	stop    sync.Once
}

// New creates an app for cfg. The configuration is expected to be validated.
func New(cfg *config.Config) *App {
	return &App{
		cfg:    cfg,
		peerID: relay.PeerID(uuid.New().String()),
		ready:  make(chan struct{}),
	}
}

// PeerID returns the local member id
func (a *App) PeerID() relay.PeerID {
	return a.peerID
}

// Ready is closed once the session is joined and playback is wired
func (a *App) Ready() <-chan struct{} {
	return a.ready
}

// HubAddr returns the local hub address when hosting
func (a *App) HubAddr() (string, error) {
	select {
	case <-a.ready:
	default:
		return "", ErrNotStarted
	}
	if a.hub == nil {
		return "", fmt.Errorf("%w: not hosting", ErrNotStarted)
	}
	return fmt.Sprintf("127.0.0.1:%d", a.hub.Port()), nil
}

// Run joins or hosts a session and relays voice until ctx is cancelled,
// the user quits, or the hub ends the session.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer a.shutdown()

	if err := a.start(ctx); err != nil {
		return err
	}
	close(a.ready)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.loop.Run(gctx)
	})

	if a.source != nil {
		g.Go(func() error {
			return a.bridge.Run(gctx, a.source.Frames())
		})
	}

	if a.tui != nil {
		g.Go(func() error {
			return a.runTUI(gctx, cancel)
		})
	} else {
		g.Go(func() error {
			a.logStatus(gctx)
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, relay.ErrTransportClosed) {
		log.Info("Session ended by hub")
		return nil
	}
	return err
}

// start brings the components up in dependency order
func (a *App) start(ctx context.Context) error {
	cfg := a.cfg

	backend, err := output.NewBackend(cfg.Backend, output.Options{BufferMs: cfg.BufferMs})
	if err != nil {
		return fmt.Errorf("failed to create playback backend: %w", err)
	}
	a.backend = backend

	addr, err := a.resolveSession(ctx)
	if err != nil {
		return err
	}
	a.address = addr

	a.client = session.NewClient(session.ClientConfig{
		ServerAddr: addr,
		PeerID:     a.peerID,
		Name:       cfg.Name,
		DeviceInfo: protocol.DeviceInfo{
			ProductName:     version.Product,
			Manufacturer:    version.Manufacturer,
			SoftwareVersion: version.Version,
		},
	})
	if err := a.client.Connect(ctx); err != nil {
		return fmt.Errorf("connection failed: %w", err)
	}

	format := a.client.Format()
	a.codec, err = codec.New(format, codec.Options{Bitrate: cfg.Bitrate, Decoder: cfg.Decoder})
	if err != nil {
		return fmt.Errorf("failed to create codec: %w", err)
	}

	pcm := format
	pcm.Codec = "pcm"
	a.registry = playback.New(backend, pcm)

	a.loop = relay.NewLoop(relay.LoopConfig{
		DisableLoopback: cfg.DisableLoopback,
	}, a.client, a.codec, a.registry)

	a.bridge = relay.NewCaptureBridge(relay.CaptureConfig{
		EnsurePlayback: true,
		LoopbackSelf:   !cfg.DisableLoopback,
		Reliability:    relay.Reliable,
	}, a.client, a.codec, a.registry)

	a.openSource(ctx, pcm)

	if !cfg.NoTUI {
		a.controls = ui.NewControls()
		a.tui = ui.New(a.controls)
	}

	log.WithFields(logrus.Fields{
		"peer":    a.peerID,
		"session": a.client.SessionName(),
		"format":  format.String(),
		"members": len(a.client.Members()),
	}).Info("Joined session")

	return nil
}

// openSource starts the microphone or test tone. Failure leaves the app listen-only.
func (a *App) openSource(ctx context.Context, format audio.Format) {
	if a.cfg.ListenOnly {
		log.Info("Listen-only mode, microphone not opened")
		return
	}

	var source capture.Source
	if a.cfg.TestTone {
		source = capture.NewTone(format, capture.DefaultToneFrequency)
	} else {
		source = capture.NewMicrophone(format)
	}

	if err := source.Start(ctx); err != nil {
		log.WithError(err).Warn("Microphone unavailable, running listen-only")
		source.Close()
		return
	}
	a.source = source
}

// resolveSession starts the hub when hosting and returns the address to join
func (a *App) resolveSession(ctx context.Context) (string, error) {
	cfg := a.cfg

	if cfg.Host {
		a.hub = session.NewHub(session.HubConfig{
			Port:       cfg.Port,
			Name:       cfg.Name,
			Capacity:   cfg.Capacity,
			Format:     cfg.Format(),
			EnableMDNS: cfg.MDNS,
		})
		if err := a.hub.Start(ctx); err != nil {
			return "", fmt.Errorf("failed to start hub: %w", err)
		}
		return fmt.Sprintf("127.0.0.1:%d", a.hub.Port()), nil
	}

	if cfg.Server != "" {
		return cfg.Server, nil
	}
	if !cfg.MDNS {
		return "", ErrNoServer
	}

	log.Info("Searching for sessions...")
	info, err := discovery.Find(ctx, discovery.DefaultTimeout)
	if err != nil {
		return "", fmt.Errorf("discovery failed: %w", err)
	}
	log.WithFields(logrus.Fields{
		"session": info.Session,
		"addr":    info.Addr(),
	}).Info("Discovered session")
	return info.Addr(), nil
}

// runTUI drives the TUI until ctx ends or the user quits
func (a *App) runTUI(ctx context.Context, cancel context.CancelFunc) error {
	errc := make(chan error, 1)
	go func() {
		errc <- a.tui.Run()
	}()

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	a.tui.Update(a.Status())

	for {
		select {
		case <-ctx.Done():
			a.tui.Stop()
			<-errc
			return nil

		case err := <-errc:
			cancel()
			if err != nil {
				return fmt.Errorf("tui: %w", err)
			}
			return nil

		case <-a.controls.Quit:
			log.Info("Received quit signal from TUI")
			cancel()

		case muted := <-a.controls.Mute:
			log.WithField("muted", muted).Info("Microphone mute changed")
			a.bridge.SetMuted(muted)

		case <-ticker.C:
			a.tui.Update(a.Status())
		}
	}
}

// logStatus replaces the TUI with periodic log lines
func (a *App) logStatus(ctx context.Context) {
	ticker := time.NewTicker(statusLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := a.Status()
			log.WithFields(logrus.Fields{
				"members":    len(st.Members),
				"received":   st.Relay.Received,
				"dispatched": st.Relay.Dispatched,
				"sent":       st.Capture.Sent,
				"dropped":    st.InboxDropped,
			}).Info("Session status")
		}
	}
}

// Status builds a snapshot for the TUI
func (a *App) Status() ui.StatusMsg {
	role := "member"
	if a.hub != nil {
		role = "host"
	}

	channels := a.registry.Stats()
	members := make([]ui.MemberStatus, 0, len(channels))
	for _, peer := range a.client.Members() {
		row := ui.MemberStatus{
			ID:   peer,
			Name: a.client.MemberName(peer),
			Self: peer == a.peerID,
		}
		if stats, ok := channels[peer]; ok {
			row.Playback = &stats
		}
		members = append(members, row)
	}

	return ui.StatusMsg{
		Session:      a.client.SessionName(),
		Role:         role,
		Address:      a.address,
		Members:      members,
		Relay:        a.loop.Stats(),
		Capture:      a.bridge.Stats(),
		MicAvailable: a.source != nil,
		InboxDropped: a.client.Dropped(),
	}
}

// shutdown releases components in reverse dependency order
func (a *App) shutdown() {
	a.stop.Do(func() {
		if a.source != nil {
			a.source.Close()
		}
		if a.client != nil {
			a.client.Close()
		}
		if a.hub != nil {
			a.hub.Stop()
		}
		if a.registry != nil {
			a.registry.Close()
		}
		if a.codec != nil {
			if err := a.codec.Close(); err != nil {
				log.WithError(err).Warn("Codec close error")
			}
		}
		if a.backend != nil {
			if err := a.backend.Close(); err != nil {
				log.WithError(err).Warn("Backend close error")
			}
		}
		log.Info("Stopped")
	})
}
