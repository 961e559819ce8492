// Package arbitrage implements the arbitrage bounded context: cycle search, convex
// solving and path selection.
package arbitrage

import (
	"context"
	"fmt"
	"time"

	"github.com/fd1az/cfmm-arb/business/arbitrage/app"
	arbitrageDI "github.com/fd1az/cfmm-arb/business/arbitrage/di"
	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arb/business/arbitrage/infra"
	"github.com/fd1az/cfmm-arb/business/arbitrage/infra/history"
	"github.com/fd1az/cfmm-arb/business/arbitrage/infra/simplex"
	blockchainDI "github.com/fd1az/cfmm-arb/business/blockchain/di"
	liquidityDI "github.com/fd1az/cfmm-arb/business/liquidity/di"
	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/asset"
	"github.com/fd1az/cfmm-arb/internal/config"
	"github.com/fd1az/cfmm-arb/internal/di"
	"github.com/fd1az/cfmm-arb/internal/logger"
	"github.com/fd1az/cfmm-arb/internal/monolith"
)

// Module implements the arbitrage bounded context.
type Module struct {
	// Manual leaves the detector loop stopped; the caller drives it with RunOnce.
	Manual bool
}

// SearchSettings translates the search and solver sections into a SearchConfig and the
// assembler it runs with.
func SearchSettings(cfg *config.Config) (app.SearchConfig, *domain.Assembler, error) {
	form, err := domain.ParseFormulation(cfg.Search.Formulation)
	if err != nil {
		return app.SearchConfig{}, nil, err
	}
	link, err := domain.ParseLinking(cfg.Search.Linking)
	if err != nil {
		return app.SearchConfig{}, nil, err
	}

	b := domain.NewBuilder()
	b.Formulation = form
	b.TradeCap = cfg.Search.TradeCapDecimal().InexactFloat64()

	asm := domain.NewAssembler(b)
	asm.Linking = link
	asm.MarketValues = domain.MarketValues(cfg.Search.MarketValueMap())

	sc := app.DefaultSearchConfig()
	sc.Enumerate = liquidity.EnumerateOptions{
		MaxLength: cfg.Search.MaxCycleLength,
		MaxCycles: cfg.Search.MaxCycles,
	}
	sc.Workers = cfg.Search.Workers
	sc.Prefilter = cfg.Search.Prefilter
	sc.Params = domain.SolveParams{
		Tolerance:     cfg.Solver.Tolerance,
		ConeTolerance: cfg.Solver.ConeTolerance,
		MaxIterations: cfg.Solver.MaxIterations,
	}
	sc.Timeout = cfg.Solver.Timeout
	sc.RetryRelaxed = cfg.Solver.RetryRelaxed
	sc.RelaxFactor = cfg.Solver.RelaxFactor
	sc.MaxSelected = cfg.Search.MaxSelected
	sc.Budget = cfg.Search.BudgetDecimal().InexactFloat64()
	sc.MinProfit = cfg.Search.MinProfitDecimal().InexactFloat64()
	// Each cycle is solved inside [0, budget].
	asm.InputCap = sc.Budget

	if err := sc.Validate(); err != nil {
		return app.SearchConfig{}, nil, fmt.Errorf("search settings: %w", err)
	}
	return sc, asm, nil
}

// RegisterServices registers all arbitrage services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register Solver (private - internal dependency)
	di.RegisterToken(c, arbitrageDI.Solver, func(sr di.ServiceRegistry) app.Solver {
		log := sr.Get("logger").(logger.LoggerInterface)
		s, err := simplex.New(log.With("component", "simplex"))
		if err != nil {
			panic("failed to create solver: " + err.Error())
		}
		return s
	})

	// Register Reporter (private - internal dependency)
	di.RegisterToken(c, arbitrageDI.Reporter, func(sr di.ServiceRegistry) app.Reporter {
		cfg := sr.Get("config").(*config.Config)
		assets := sr.Get("assetRegistry").(*asset.Registry)
		if cfg.App.TUIMode {
			return infra.NewTUIReporter()
		}
		return infra.NewConsoleReporter(nil, assets.Symbol)
	})

	// Register HistoryStore (private - nil when storage is disabled)
	di.RegisterToken(c, arbitrageDI.HistoryStore, func(sr di.ServiceRegistry) *history.Store {
		cfg := sr.Get("config").(*config.Config)
		if !cfg.Storage.Enabled {
			return nil
		}
		st, err := history.Open(cfg.Storage.Path)
		if err != nil {
			panic("failed to open history store: " + err.Error())
		}
		return st
	})

	// Register Searcher (public - exposed to other modules)
	di.RegisterToken(c, arbitrageDI.Searcher, func(sr di.ServiceRegistry) *app.Searcher {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		sc, asm, err := SearchSettings(cfg)
		if err != nil {
			panic(err.Error())
		}
		s, err := app.NewSearcher(arbitrageDI.GetSolver(sr), asm, sc, log.With("module", "arbitrage"))
		if err != nil {
			panic("failed to create searcher: " + err.Error())
		}
		return s
	})

	// Register Detector (public - exposed to other modules)
	di.RegisterToken(c, arbitrageDI.Detector, func(sr di.ServiceRegistry) *app.Detector {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		var blocks app.BlockSource
		if cfg.Ethereum.Enabled() {
			blocks = blockchainDI.GetBlockchainService(sr)
		}
		var hist app.HistoryStore
		if st := arbitrageDI.GetHistoryStore(sr); st != nil {
			hist = st
		}

		return app.NewDetector(
			liquidityDI.GetLiquidityService(sr),
			blocks,
			arbitrageDI.GetSearcher(sr),
			arbitrageDI.GetReporter(sr),
			hist,
			app.DetectorConfig{
				StartTokens: cfg.Search.StartTokenAddresses(),
				Interval:    cfg.Search.Interval,
				Refresh:     cfg.Liquidity.FeedURL == "",
			},
			log.With("module", "arbitrage"),
		)
	})

	return nil
}

// Startup wires chain status into the reporter and starts the detector loop.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	cfg := mono.Config()
	sr := mono.Services()

	detector := arbitrageDI.GetDetector(sr)
	reporter := arbitrageDI.GetReporter(sr)

	if cfg.Ethereum.Enabled() {
		blockchainDI.GetBlockchainService(sr).OnStatus(func(connected bool, latency time.Duration) {
			reporter.UpdateStatus("ethereum", connected, latency)
		})
	}

	if m.Manual {
		log.Info(ctx, "arbitrage module ready", "mode", "manual")
		return nil
	}
	if err := detector.Start(ctx); err != nil {
		return fmt.Errorf("start detector: %w", err)
	}

	log.Info(ctx, "arbitrage module started",
		"start_tokens", len(cfg.Search.StartTokens),
		"formulation", cfg.Search.Formulation,
		"linking", cfg.Search.Linking)
	return nil
}

// Shutdown stops the detector and closes the history store.
func (m *Module) Shutdown(mono monolith.Monolith) error {
	sr := mono.Services()
	err := arbitrageDI.GetDetector(sr).Stop()
	if st := arbitrageDI.GetHistoryStore(sr); st != nil {
		if cerr := st.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
