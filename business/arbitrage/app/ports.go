// Package app contains application services and port definitions for the arbitrage context.
package app

import (
	"context"
	"time"

	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
	blockchainDomain "github.com/fd1az/cfmm-arb/business/blockchain/domain"
	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
)

// Solver finds an optimal point of a constraint system.
type Solver interface {
	// Solve minimises sys.C. Failures are *domain.SolveError values carrying a Status.
	Solve(ctx context.Context, sys *domain.System, params domain.SolveParams) (*domain.Solution, error)
}

// Reporter defines the interface for reporting search results.
type Reporter interface {
	// Start initializes the reporter.
	Start(ctx context.Context) error

	// Report sends a finished search to be displayed/logged.
	Report(rep *domain.Report)

	// UpdateStatus updates a connection status display.
	UpdateStatus(name string, connected bool, latency time.Duration)

	// Stop gracefully shuts down the reporter.
	Stop() error
}

// HistoryStore persists report summaries.
type HistoryStore interface {
	Save(ctx context.Context, rep *domain.Report) error
	Recent(ctx context.Context, n int) ([]domain.Summary, error)
}

// Liquidity provides the pool registry to search.
type Liquidity interface {
	// Refresh reloads the pools and returns the new registry.
	Refresh(ctx context.Context) (*liquidity.Registry, error)
	// Current returns the latest registry without reloading.
	Current() *liquidity.Registry
}

// BlockSource delivers new chain heads.
type BlockSource interface {
	SubscribeBlocks(ctx context.Context) (<-chan *blockchainDomain.Block, error)
}
