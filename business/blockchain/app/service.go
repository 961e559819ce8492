package app

import (
	"context"
	"time"

	"github.com/fd1az/cfmm-arb/business/blockchain/domain"
)

// BlockchainService exposes chain heads to other modules.
type BlockchainService struct {
	heads HeadSource
}

// NewBlockchainService creates a new BlockchainService.
func NewBlockchainService(heads HeadSource) *BlockchainService {
	return &BlockchainService{heads: heads}
}

// SubscribeBlocks starts the head subscription and returns the channel.
func (s *BlockchainService) SubscribeBlocks(ctx context.Context) (<-chan *domain.Block, error) {
	return s.heads.Subscribe(ctx)
}

// LatestBlock returns the current chain head.
func (s *BlockchainService) LatestBlock(ctx context.Context) (*domain.Block, error) {
	return s.heads.LatestBlock(ctx)
}

// Status returns the head watcher status.
func (s *BlockchainService) Status() domain.Status {
	return s.heads.Status()
}

// OnStatus forwards connection updates to fn.
func (s *BlockchainService) OnStatus(fn func(connected bool, latency time.Duration)) {
	s.heads.OnStatus(fn)
}

// Close stops the head watcher.
func (s *BlockchainService) Close() error {
	return s.heads.Close()
}
