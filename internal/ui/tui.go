// ABOUTME: TUI initialization and control
// ABOUTME: Wraps the bubbletea program and carries key presses back to the app
package ui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Controls carries user actions out of the TUI
type Controls struct {
	Mute chan bool
	Quit chan struct{}
}

// NewControls creates a controls handler
func NewControls() *Controls {
	return &Controls{
		Mute: make(chan bool, 10),
		Quit: make(chan struct{}, 1),
	}
}

func (c *Controls) signalMute(muted bool) {
	if c == nil {
		return
	}
	select {
	case c.Mute <- muted:
	default:
	}
}

func (c *Controls) signalQuit() {
	if c == nil {
		return
	}
	select {
	case c.Quit <- struct{}{}:
	default:
	}
}

// NewModel creates a new TUI model
func NewModel(controls *Controls) Model {
	return Model{
		controls: controls,
		started:  time.Now(),
	}
}

// TUI runs the bubbletea program
type TUI struct {
	program *tea.Program
}

// New creates the TUI program
func New(controls *Controls) *TUI {
	return &TUI{
		program: tea.NewProgram(NewModel(controls), tea.WithAltScreen()),
	}
}

// Run blocks until the user quits or Stop is called
func (t *TUI) Run() error {
	_, err := t.program.Run()
	return err
}

// Update sends a status snapshot to the TUI
func (t *TUI) Update(status StatusMsg) {
	t.program.Send(status)
}

// Stop ends the program
func (t *TUI) Stop() {
	t.program.Quit()
}
