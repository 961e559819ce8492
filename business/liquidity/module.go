// Package liquidity implements the liquidity bounded context: pool snapshots, the pool
// registry and the token graph.
package liquidity

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"go.opentelemetry.io/otel"

	"github.com/fd1az/cfmm-arb/business/liquidity/app"
	liquidityDI "github.com/fd1az/cfmm-arb/business/liquidity/di"
	"github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/business/liquidity/infra/feed"
	"github.com/fd1az/cfmm-arb/business/liquidity/infra/snapshot"
	"github.com/fd1az/cfmm-arb/business/liquidity/infra/uniswapv2"
	"github.com/fd1az/cfmm-arb/internal/asset"
	"github.com/fd1az/cfmm-arb/internal/config"
	"github.com/fd1az/cfmm-arb/internal/di"
	"github.com/fd1az/cfmm-arb/internal/httpclient"
	"github.com/fd1az/cfmm-arb/internal/logger"
	"github.com/fd1az/cfmm-arb/internal/monolith"
)

// snapshotMaxBytes caps a remote snapshot document.
const snapshotMaxBytes = 16 << 20

// Module implements the liquidity bounded context.
type Module struct{}

// RegisterServices registers all liquidity services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	// Register PoolSource (private - selected by liquidity.source)
	di.RegisterToken(c, liquidityDI.PoolSource, func(sr di.ServiceRegistry) app.PoolSource {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)
		assets := sr.Get("assetRegistry").(*asset.Registry)

		switch cfg.Liquidity.Source {
		case config.SourceUniswapV2:
			client, ok := sr.Get("ethClient").(*ethclient.Client)
			if !ok || client == nil {
				panic("uniswapv2 source requires ethereum.http_url")
			}
			reader, err := uniswapv2.NewReader(client, uniswapv2.Config{
				Pairs:             cfg.Liquidity.PairAddresses(),
				Fee:               cfg.Liquidity.FeeDecimal(),
				RequestsPerSecond: cfg.Liquidity.RequestsPerSecond,
				CacheTTL:          cfg.Liquidity.CacheTTL,
			}, assets, log)
			if err != nil {
				panic("failed to create uniswapv2 reader: " + err.Error())
			}
			return reader
		default:
			client, err := httpclient.New(
				httpclient.WithProviderName("snapshot"),
				httpclient.WithRequestTimeout(30*time.Second),
				httpclient.WithMaxBodyBytes(snapshotMaxBytes),
				httpclient.WithMeterProvider(otel.GetMeterProvider()),
				httpclient.WithTracer(otel.Tracer("github.com/fd1az/cfmm-arb/business/liquidity/infra/snapshot")),
			)
			if err != nil {
				panic("failed to create http client: " + err.Error())
			}
			src, err := snapshot.NewSource(cfg.Liquidity.SnapshotPath, client, assets, cfg.Liquidity.FeeDecimal(), log)
			if err != nil {
				panic("failed to create snapshot source: " + err.Error())
			}
			return src
		}
	})

	// Register ReserveFeed (private - optional, nil when no feed_url)
	di.RegisterToken(c, liquidityDI.ReserveFeed, func(sr di.ServiceRegistry) app.ReserveFeed {
		cfg := sr.Get("config").(*config.Config)
		log := sr.Get("logger").(logger.LoggerInterface)

		if cfg.Liquidity.FeedURL == "" {
			return nil
		}
		var pools []domain.PoolID
		for _, p := range cfg.Liquidity.Pairs {
			pools = append(pools, domain.PoolID(p))
		}
		f, err := feed.New(cfg.Liquidity.FeedURL, pools, log)
		if err != nil {
			panic("failed to create reserve feed: " + err.Error())
		}
		return f
	})

	// Register LiquidityService (public - exposed to other modules)
	di.RegisterToken(c, liquidityDI.LiquidityService, func(sr di.ServiceRegistry) *app.LiquidityService {
		log := sr.Get("logger").(logger.LoggerInterface)
		return app.NewLiquidityService(
			liquidityDI.GetPoolSource(sr),
			reserveFeed(sr),
			log.With("module", "liquidity"),
		)
	})

	return nil
}

// reserveFeed unwraps the optional feed so a missing feed is a nil interface.
func reserveFeed(sr di.ServiceRegistry) app.ReserveFeed {
	if f, ok := sr.Get(liquidityDI.ReserveFeed.Name()).(*feed.Feed); ok && f != nil {
		return f
	}
	return nil
}

// Startup loads the first snapshot and starts the reserve feed.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	svc := liquidityDI.GetLiquidityService(mono.Services())

	if _, err := svc.Refresh(ctx); err != nil {
		// The detector retries on every tick.
		log.Error(ctx, "initial liquidity load failed", "error", err)
	}
	if err := svc.Watch(ctx, nil); err != nil {
		log.Error(ctx, "reserve feed unavailable", "error", err)
	}

	log.Info(ctx, "liquidity module started", "source", svc.SourceName())
	return nil
}

// Shutdown stops the reserve feed.
func (m *Module) Shutdown(mono monolith.Monolith) error {
	return liquidityDI.GetLiquidityService(mono.Services()).Close()
}
