// ABOUTME: Bubbletea model for the voice session TUI
// ABOUTME: Shows members with their playback buffers plus relay and capture counters
package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/Resonate-Protocol/resonate-voice/internal/relay"
	"github.com/Resonate-Protocol/resonate-voice/pkg/audio/output"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			MarginBottom(1)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	sectionStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("220"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	helpStyle = lipgloss.NewStyle().Faint(true)
)

// MemberStatus is one row of the member table
type MemberStatus struct {
	ID       relay.PeerID
	Name     string
	Self     bool
	Playback *output.ChannelStats // nil when the member has no channel
}

// StatusMsg replaces the displayed session state
type StatusMsg struct {
	Session      string
	Role         string
	Address      string
	Members      []MemberStatus
	Relay        relay.LoopStats
	Capture      relay.CaptureStats
	MicAvailable bool
	InboxDropped uint64
}

// Model represents the TUI state
type Model struct {
	status   StatusMsg
	controls *Controls

	muted     bool
	showDebug bool
	quitting  bool
	started   time.Time

	width  int
	height int
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	case StatusMsg:
		m.status = msg
	}

	return m, nil
}

// handleKey handles keyboard input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		m.quitting = true
		m.controls.signalQuit()
		return m, tea.Quit
	case "m":
		m.muted = !m.muted
		m.controls.signalMute(m.muted)
	case "d":
		m.showDebug = !m.showDebug
	}

	return m, nil
}

// View renders the TUI
func (m Model) View() string {
	if m.quitting {
		return "Leaving session...\n"
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Resonate Voice"))
	b.WriteString("\n")

	m.field(&b, "Session: ", m.status.Session)
	m.field(&b, "Role: ", m.status.Role)
	if m.status.Address != "" {
		m.field(&b, "Address: ", m.status.Address)
	}
	m.field(&b, "Uptime: ", time.Since(m.started).Round(time.Second).String())

	mic := "live"
	switch {
	case !m.status.MicAvailable:
		mic = warnStyle.Render("unavailable (listen only)")
	case m.muted:
		mic = warnStyle.Render("muted")
	}
	b.WriteString(headerStyle.Render("Mic: "))
	b.WriteString(mic)
	b.WriteString("\n\n")

	b.WriteString(m.renderMembers())
	b.WriteString("\n")
	b.WriteString(m.renderStats())

	if m.showDebug {
		b.WriteString(m.renderDebug())
	}

	b.WriteString("\n")
	b.WriteString(helpStyle.Render("m:Mute mic  d:Debug  q:Quit"))
	b.WriteString("\n")

	return b.String()
}

func (m Model) field(b *strings.Builder, label, value string) {
	b.WriteString(headerStyle.Render(label))
	b.WriteString(valueStyle.Render(value))
	b.WriteString("\n")
}

// renderMembers renders one line per member with its playback buffer
func (m Model) renderMembers() string {
	var b strings.Builder
	b.WriteString(sectionStyle.Render(fmt.Sprintf("Members (%d)", len(m.status.Members))))
	b.WriteString("\n")

	if len(m.status.Members) == 0 {
		b.WriteString(valueStyle.Render("  Nobody here yet"))
		b.WriteString("\n")
		return b.String()
	}

	for _, member := range m.status.Members {
		name := member.Name
		if name == "" {
			name = truncate(string(member.ID), 12)
		}
		if member.Self {
			name += " (you)"
		}

		b.WriteString(fmt.Sprintf("  • %-24s", truncate(name, 24)))
		b.WriteString(valueStyle.Render(playbackSummary(member.Playback)))
		b.WriteString("\n")
	}
	return b.String()
}

// playbackSummary describes a member's channel
func playbackSummary(s *output.ChannelStats) string {
	if s == nil || !s.Open {
		return "no playback"
	}
	return fmt.Sprintf("[%s] %3dms  overflow %s  underruns %d",
		renderBar(s.Buffered, s.Capacity, 10),
		s.BufferedTime.Milliseconds(),
		formatBytes(s.OverflowBytes),
		s.Underruns)
}

// renderStats renders relay and capture counters
func (m Model) renderStats() string {
	r := m.status.Relay
	c := m.status.Capture
	return fmt.Sprintf("%s RX %d  played %d  decode errors %d  playback errors %d\n%s TX %d  send errors %d  encode errors %d\n",
		headerStyle.Render("In: "), r.Received, r.Dispatched, r.DecodeFailures, r.DispatchFailures,
		headerStyle.Render("Out:"), c.Sent, c.SendFailures, c.EncodeFailures)
}

// renderDebug renders debug information
func (m Model) renderDebug() string {
	return fmt.Sprintf("\n%s\n  loopback dropped: %d\n  non-member dropped: %d\n  inbox dropped: %d\n  frames captured: %d (muted %d)\n",
		sectionStyle.Render("Debug"),
		m.status.Relay.LoopbackDropped,
		m.status.Relay.NonMemberDropped,
		m.status.InboxDropped,
		m.status.Capture.Frames,
		m.status.Capture.Muted)
}

// Utility functions
func renderBar(value, max, width int) string {
	filled := 0
	if max > 0 {
		filled = min((value*width)/max, width)
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func truncate(s string, length int) string {
	if len(s) <= length {
		return s
	}
	return s[:length-3] + "..."
}

func formatBytes(n uint64) string {
	switch {
	case n >= 1<<20:
		return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
	case n >= 1<<10:
		return fmt.Sprintf("%.1fKB", float64(n)/(1<<10))
	default:
		return fmt.Sprintf("%dB", n)
	}
}
