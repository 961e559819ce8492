// Package blockchain implements the blockchain bounded context: the chain head watcher that
// triggers re-searches.
package blockchain

import (
	"context"

	"github.com/fd1az/cfmm-arb/business/blockchain/app"
	blockchainDI "github.com/fd1az/cfmm-arb/business/blockchain/di"
	"github.com/fd1az/cfmm-arb/business/blockchain/infra/ethereum"
	"github.com/fd1az/cfmm-arb/internal/config"
	"github.com/fd1az/cfmm-arb/internal/di"
	"github.com/fd1az/cfmm-arb/internal/logger"
	"github.com/fd1az/cfmm-arb/internal/monolith"
)

// Module implements the blockchain bounded context.
type Module struct{}

// RegisterServices registers all blockchain services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register HeadSource (private - internal dependency)
	di.RegisterToken(c, blockchainDI.HeadSource, func(sr di.ServiceRegistry) app.HeadSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		wcfg := ethereum.DefaultWatcherConfig(cfg.Ethereum.WebSocketURL, cfg.Ethereum.HTTPURL, cfg.Ethereum.PollInterval)
		w, err := ethereum.NewWatcher(wcfg, log.With("module", "blockchain"))
		if err != nil {
			panic("failed to create head watcher: " + err.Error())
		}
		return w
	})

	// Register BlockchainService (public - exposed to other modules)
	di.RegisterToken(c, blockchainDI.BlockchainService, func(sr di.ServiceRegistry) *app.BlockchainService {
		return app.NewBlockchainService(blockchainDI.GetHeadSource(sr))
	})

	return nil
}

// Startup checks the node is reachable. The subscription itself is opened by the detector.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()

	if !mono.Config().Ethereum.Enabled() {
		log.Info(ctx, "blockchain module idle, no ethereum endpoint configured")
		return nil
	}

	svc := blockchainDI.GetBlockchainService(mono.Services())
	if mono.EthClient() != nil {
		if id, err := mono.EthClient().ChainID(ctx); err != nil {
			// Not fatal: the watcher keeps retrying.
			log.Warn(ctx, "chain id lookup failed", "error", err)
		} else if want := mono.Config().Ethereum.ChainID; want != 0 && id.Uint64() != want {
			log.Warn(ctx, "connected to unexpected chain", "chain_id", id.Uint64(), "expected", want)
		}
	}

	log.Info(ctx, "blockchain module started", "state", string(svc.Status().State))
	return nil
}

// Shutdown stops the head watcher.
func (m *Module) Shutdown(mono monolith.Monolith) error {
	if !mono.Config().Ethereum.Enabled() {
		return nil
	}
	return blockchainDI.GetBlockchainService(mono.Services()).Close()
}
