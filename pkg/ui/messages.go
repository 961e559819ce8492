// Package ui provides the Bubble Tea dashboard for the cycle search.
package ui

import (
	"time"

	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
)

// Message types for TUI updates

// ReportMsg is sent when a search finishes.
type ReportMsg struct {
	Report *domain.Report
}

// ConnectionStatusMsg is sent when connection status changes.
type ConnectionStatusMsg struct {
	Name      string
	Connected bool
	Latency   time.Duration
}

// BlockMsg is sent when a new block is received.
type BlockMsg struct {
	Number    uint64
	Timestamp time.Time
}

// LiquidityMsg is sent after a pool snapshot load.
type LiquidityMsg struct {
	Source   string
	Pools    int
	Rejected int
	Tokens   int
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
	Step    string // Current step name
	Status  string // "connecting", "connected", "failed"
	Message string // Optional message
}
