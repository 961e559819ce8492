// Package app contains application services and port definitions for the liquidity context.
package app

import (
	"context"
	"math/big"

	"github.com/fd1az/cfmm-arb/business/liquidity/domain"
)

// PoolSource loads a full pool snapshot.
type PoolSource interface {
	// Name identifies the source in logs and health checks.
	Name() string

	// Load returns every pool the source knows about. Pools are not yet validated.
	Load(ctx context.Context) ([]*domain.Pool, error)
}

// ReserveUpdate carries new reserves for one pool.
type ReserveUpdate struct {
	Pool     domain.PoolID
	Reserves []*big.Int
	Block    uint64
}

// ReserveFeed streams reserve updates between full snapshots.
type ReserveFeed interface {
	// Subscribe starts the feed. The channel closes when ctx ends or the feed stops.
	Subscribe(ctx context.Context) (<-chan ReserveUpdate, error)

	// Close releases the underlying connection.
	Close() error
}
