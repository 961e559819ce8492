package app

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
	"github.com/fd1az/cfmm-arb/internal/logger"
)

// LoadStats summarises one snapshot load.
type LoadStats struct {
	Loaded   int
	Rejected int
	Source   string
	At       time.Time
}

// LiquidityService owns the current pool registry. Every refresh or feed update swaps in a
// new registry so searches holding the old one are unaffected.
type LiquidityService struct {
	source PoolSource
	feed   ReserveFeed
	logger logger.LoggerInterface

	mu        sync.RWMutex
	current   *domain.Registry
	lastStats LoadStats
	updatedAt time.Time
}

// NewLiquidityService creates a LiquidityService. feed may be nil.
func NewLiquidityService(source PoolSource, feed ReserveFeed, log logger.LoggerInterface) *LiquidityService {
	return &LiquidityService{
		source:  source,
		feed:    feed,
		logger:  log,
		current: domain.NewRegistry(),
	}
}

// Refresh reloads the snapshot. Invalid pools are logged and skipped; an empty result is
// an EmptyPoolSet error and keeps the previous registry.
func (s *LiquidityService) Refresh(ctx context.Context) (*domain.Registry, error) {
	pools, err := s.source.Load(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, apperror.CodeSnapshotLoadFailed, s.source.Name())
	}

	reg := domain.NewRegistry()
	rejected := 0
	for _, p := range pools {
		if err := reg.Add(p); err != nil {
			rejected++
			s.logger.Warn(ctx, "pool rejected", append([]any{"pool", p.ID}, errorFields(err)...)...)
		}
	}
	if reg.Len() == 0 {
		return nil, apperror.New(apperror.CodeEmptyPoolSet,
			apperror.WithContext(fmt.Sprintf("source %s returned %d pools, %d rejected", s.source.Name(), len(pools), rejected)))
	}

	now := time.Now()
	s.mu.Lock()
	s.current = reg
	s.updatedAt = now
	s.lastStats = LoadStats{Loaded: reg.Len(), Rejected: rejected, Source: s.source.Name(), At: now}
	s.mu.Unlock()

	s.logger.Info(ctx, "liquidity snapshot loaded",
		"source", s.source.Name(), "pools", reg.Len(), "rejected", rejected, "tokens", len(reg.Tokens()))
	return reg, nil
}

// Current returns the latest registry.
func (s *LiquidityService) Current() *domain.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// LastStats returns the stats of the latest successful load.
func (s *LiquidityService) LastStats() LoadStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastStats
}

// UpdatedAt returns when the registry last changed.
func (s *LiquidityService) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// Apply installs reserve updates as a new registry. Updates for unknown pools are ignored.
func (s *LiquidityService) Apply(ctx context.Context, updates ...ReserveUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	byPool := make(map[domain.PoolID][]*big.Int, len(updates))
	for _, u := range updates {
		byPool[u.Pool] = u.Reserves
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next, err := s.current.WithReserves(byPool)
	if err != nil {
		return err
	}
	s.current = next
	s.updatedAt = time.Now()
	s.logger.Debug(ctx, "reserves updated", "pools", len(byPool))
	return nil
}

// Watch applies feed updates until ctx ends. onUpdate, when set, runs after each applied update.
func (s *LiquidityService) Watch(ctx context.Context, onUpdate func()) error {
	if s.feed == nil {
		return nil
	}
	updates, err := s.feed.Subscribe(ctx)
	if err != nil {
		return apperror.Wrap(err, apperror.CodeWebSocketConnectionError, "reserve feed")
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case u, ok := <-updates:
				if !ok {
					s.logger.Warn(ctx, "reserve feed closed")
					return
				}
				if err := s.Apply(ctx, u); err != nil {
					s.logger.Warn(ctx, "reserve update rejected", append([]any{"pool", u.Pool}, errorFields(err)...)...)
					continue
				}
				if onUpdate != nil {
					onUpdate()
				}
			}
		}
	}()
	return nil
}

// SourceName returns the configured source name.
func (s *LiquidityService) SourceName() string {
	return s.source.Name()
}

// Close stops the feed.
func (s *LiquidityService) Close() error {
	if s.feed == nil {
		return nil
	}
	return s.feed.Close()
}

func errorFields(err error) []any {
	if appErr, ok := err.(*apperror.AppError); ok {
		return appErr.ToLog()
	}
	return []any{"error", err}
}
