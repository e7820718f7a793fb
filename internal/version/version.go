// ABOUTME: Build identification constants
// ABOUTME: Sent to the hub in session/hello and shown in the TUI
package version

const (
	Product      = "Resonate Voice"
	Manufacturer = "Resonate"
	Version      = "0.1.0"
)
