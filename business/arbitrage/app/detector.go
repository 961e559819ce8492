package app

import (
	"context"
	"sync"
	"time"

	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
	blockchainDomain "github.com/fd1az/cfmm-arb/business/blockchain/domain"
	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
	"github.com/fd1az/cfmm-arb/internal/logger"
)

// DetectorConfig holds configuration for the arbitrage detector.
type DetectorConfig struct {
	StartTokens []liquidity.Token
	// Interval drives searches when no block source is configured.
	Interval time.Duration
	// Refresh reloads the pool snapshot before every run.
	Refresh bool
}

// Detector runs a search per start token on every new block (or tick).
type Detector struct {
	liquidity Liquidity
	blocks    BlockSource
	searcher  *Searcher
	reporter  Reporter
	history   HistoryStore
	config    DetectorConfig
	logger    logger.LoggerInterface

	busy sync.Mutex
}

// NewDetector creates a new arbitrage Detector. blocks and history may be nil.
func NewDetector(
	liq Liquidity,
	blocks BlockSource,
	searcher *Searcher,
	reporter Reporter,
	history HistoryStore,
	config DetectorConfig,
	log logger.LoggerInterface,
) *Detector {
	if log == nil {
		log = logger.Nop()
	}
	return &Detector{
		liquidity: liq,
		blocks:    blocks,
		searcher:  searcher,
		reporter:  reporter,
		history:   history,
		config:    config,
		logger:    log,
	}
}

// Start begins the detection loop.
func (d *Detector) Start(ctx context.Context) error {
	d.logger.Info(ctx, "starting arbitrage detector", "start_tokens", len(d.config.StartTokens))

	if err := d.reporter.Start(ctx); err != nil {
		return err
	}

	if d.blocks == nil {
		go d.tick(ctx)
		return nil
	}

	blocks, err := d.blocks.SubscribeBlocks(ctx)
	if err != nil {
		d.logger.Warn(ctx, "block subscription failed, falling back to interval", "error", err)
		d.reporter.UpdateStatus("blocks", false, 0)
		go d.tick(ctx)
		return nil
	}
	go d.run(ctx, blocks)
	return nil
}

func (d *Detector) run(ctx context.Context, blocks <-chan *blockchainDomain.Block) {
	for {
		select {
		case <-ctx.Done():
			d.logger.Info(ctx, "detector stopping", "reason", ctx.Err())
			return
		case block, ok := <-blocks:
			if !ok {
				d.logger.Warn(ctx, "block stream closed, falling back to interval")
				d.reporter.UpdateStatus("blocks", false, 0)
				d.tick(ctx)
				return
			}
			if block == nil {
				continue
			}
			d.reporter.UpdateStatus("blocks", true, time.Since(block.Timestamp))
			d.trigger(ctx, block.Number)
		}
	}
}

func (d *Detector) tick(ctx context.Context) {
	interval := d.config.Interval
	if interval <= 0 {
		interval = 12 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	d.trigger(ctx, 0)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info(ctx, "detector stopping", "reason", ctx.Err())
			return
		case <-ticker.C:
			d.trigger(ctx, 0)
		}
	}
}

// trigger runs a search unless one is still in flight.
func (d *Detector) trigger(ctx context.Context, block uint64) {
	if !d.busy.TryLock() {
		d.logger.Debug(ctx, "search in progress, skipping", "block", block)
		return
	}
	defer d.busy.Unlock()

	_, err := d.runOnce(ctx, block)
	switch {
	case err == nil || ctx.Err() != nil:
	case apperror.IsFatal(err):
		d.logger.Error(ctx, "search run failed", "block", block, "error", err)
	default:
		d.logger.Warn(ctx, "search run skipped", "block", block, "error", err)
	}
}

// RunOnce refreshes liquidity and searches every start token once.
func (d *Detector) RunOnce(ctx context.Context, block uint64) ([]*domain.Report, error) {
	d.busy.Lock()
	defer d.busy.Unlock()
	return d.runOnce(ctx, block)
}

func (d *Detector) runOnce(ctx context.Context, block uint64) ([]*domain.Report, error) {
	reg := d.liquidity.Current()
	if d.config.Refresh {
		fresh, err := d.liquidity.Refresh(ctx)
		switch {
		case err == nil:
			reg = fresh
		case reg != nil && reg.Len() > 0:
			d.logger.Warn(ctx, "liquidity refresh failed, using previous snapshot", "error", err)
		default:
			return nil, err
		}
	}

	reports := make([]*domain.Report, 0, len(d.config.StartTokens))
	for _, start := range d.config.StartTokens {
		rep, err := d.searcher.Search(ctx, reg, start)
		if err != nil {
			return reports, err
		}
		rep.Block = block
		reports = append(reports, rep)

		d.reporter.Report(rep)
		if d.history != nil {
			if err := d.history.Save(ctx, rep); err != nil {
				d.logger.Warn(ctx, "failed to persist report", "id", rep.ID, "error", err)
			}
		}
	}
	return reports, nil
}

// Stop gracefully shuts down the detector.
func (d *Detector) Stop() error {
	d.logger.Info(context.Background(), "stopping arbitrage detector")
	return d.reporter.Stop()
}
