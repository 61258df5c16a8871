package ui

import (
	"context"

	"github.com/fd1az/genip/business/wallet/domain"
)

// Controller performs wallet actions on behalf of the dashboard.
type Controller interface {
	Connect(ctx context.Context)
	Disconnect(ctx context.Context)
	SwitchNetwork(ctx context.Context)
	EnsureReady(ctx context.Context) bool
}

// Message types for TUI updates

// ReadyMsg is sent once the wallet module has started.
type ReadyMsg struct {
	Controller Controller
}

// StateMsg carries a new connection snapshot.
type StateMsg struct {
	State domain.ConnectionState
}

// ConnectionStatusMsg reports an external dependency going up or down.
type ConnectionStatusMsg struct {
	Name      string
	Connected bool
}

// ActionDoneMsg is returned when a key-triggered action finishes.
type ActionDoneMsg struct {
	Action string
	Ready  bool
}

// ErrorMsg is sent when an error occurs.
type ErrorMsg struct {
	Error error
}

// TickMsg is sent periodically for UI updates.
type TickMsg struct{}

// StartModulesMsg signals that modules should start loading.
type StartModulesMsg struct{}

// LogMsg is sent to display a log message in the UI.
type LogMsg struct {
	Level   string // "info", "warn", "error"
	Message string
}

// StartupMsg is sent during application startup to show progress.
type StartupMsg struct {
	Step   string
	Status string // "connecting", "connected", "failed", "done"
}
