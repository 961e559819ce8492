package infra

import (
	"context"
	"time"

	"github.com/fd1az/cfmm-arb/business/arbitrage/app"
	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arb/pkg/ui"
)

var _ app.Reporter = (*TUIReporter)(nil)

// TUIReporter forwards reports to the running Bubble Tea program.
type TUIReporter struct{}

// NewTUIReporter creates a new TUIReporter.
func NewTUIReporter() *TUIReporter {
	return &TUIReporter{}
}

// Start marks the detector as running in the startup screen.
func (r *TUIReporter) Start(ctx context.Context) error {
	ui.Send(ui.StartupMsg{Step: "search", Status: "connecting"})
	return nil
}

// Report sends a finished search to the TUI.
func (r *TUIReporter) Report(rep *domain.Report) {
	if rep.Block > 0 {
		ui.Send(ui.BlockMsg{Number: rep.Block, Timestamp: rep.StartedAt})
	}
	ui.Send(ui.ReportMsg{Report: rep})
}

// UpdateStatus sends connection status to the TUI.
func (r *TUIReporter) UpdateStatus(name string, connected bool, latency time.Duration) {
	ui.Send(ui.ConnectionStatusMsg{Name: name, Connected: connected, Latency: latency})
}

// Stop is a no-op; the program is owned by main.
func (r *TUIReporter) Stop() error {
	return nil
}
