// Package app contains application services and port definitions for the blockchain context.
package app

import (
	"context"
	"time"

	"github.com/fd1az/cfmm-arb/business/blockchain/domain"
)

// HeadSource delivers new chain heads.
type HeadSource interface {
	// Subscribe starts watching and returns a channel of strictly increasing heads. The
	// channel is closed when the source stops.
	Subscribe(ctx context.Context) (<-chan *domain.Block, error)

	// LatestBlock fetches the current head.
	LatestBlock(ctx context.Context) (*domain.Block, error)

	// Status returns the current connection status.
	Status() domain.Status

	// OnStatus registers a callback for connection changes and head latency.
	OnStatus(fn func(connected bool, latency time.Duration))

	Close() error
}
