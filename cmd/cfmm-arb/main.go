// Package main is the entry point for the CFMM cycle search.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/fd1az/cfmm-arb/business/arbitrage"
	arbitrageDI "github.com/fd1az/cfmm-arb/business/arbitrage/di"
	"github.com/fd1az/cfmm-arb/business/blockchain"
	blockchainDI "github.com/fd1az/cfmm-arb/business/blockchain/di"
	blockchainDomain "github.com/fd1az/cfmm-arb/business/blockchain/domain"
	"github.com/fd1az/cfmm-arb/business/liquidity"
	liquidityDI "github.com/fd1az/cfmm-arb/business/liquidity/di"
	liquidityDomain "github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apm"
	"github.com/fd1az/cfmm-arb/internal/asset"
	"github.com/fd1az/cfmm-arb/internal/config"
	"github.com/fd1az/cfmm-arb/internal/health"
	"github.com/fd1az/cfmm-arb/internal/logger"
	"github.com/fd1az/cfmm-arb/internal/metrics"
	"github.com/fd1az/cfmm-arb/internal/monolith"
	"github.com/fd1az/cfmm-arb/pkg/ui"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

type options struct {
	configPath string
	cli        bool
	once       bool
	start      string
	dot        string
}

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.BoolVar(&opts.cli, "cli", false, "Run in CLI mode with logs (no TUI)")
	flag.BoolVar(&opts.once, "once", false, "Run a single search per start token and exit")
	flag.StringVar(&opts.start, "start", "", "Comma-separated start token addresses or known symbols (overrides search.start_tokens)")
	flag.StringVar(&opts.dot, "dot", "", "Write the token graph as Graphviz DOT to this file and exit")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("cfmm-arb %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	// One-shot commands print to the terminal, so they never use the TUI.
	tuiMode := !opts.cli && !opts.once && opts.dot == ""

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		if !tuiMode {
			fmt.Fprintf(os.Stderr, "received shutdown signal: %v\n", sig)
		}
		cancel()
	}()

	if err := run(ctx, opts, tuiMode); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options, tuiMode bool) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if opts.start != "" {
		cfg.Search.StartTokens, err = resolveStart(opts.start, asset.DefaultRegistry())
		if err != nil {
			return fmt.Errorf("invalid -start: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid -start: %w", err)
		}
	}
	cfg.App.TUIMode = tuiMode

	log, closeLog, err := newLogger(cfg, tuiMode)
	if err != nil {
		return err
	}
	defer closeLog()
	log.Info(ctx, "starting cfmm-arb",
		"version", version,
		"environment", cfg.App.Environment,
		"source", cfg.Liquidity.Source,
		"formulation", cfg.Search.Formulation)

	traceProvider, err := apm.NewTraceProvider(ctx, cfg.Telemetry, log)
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer traceProvider.Stop()

	if cfg.Telemetry.Enabled {
		mp, err := metrics.NewMetricProvider(ctx, cfg.Telemetry)
		if err != nil {
			return fmt.Errorf("failed to init metrics: %w", err)
		}
		defer mp.Shutdown(context.Background())

		promServer := metrics.NewServer(cfg.Telemetry.PrometheusPort, log)
		promServer.Start()
		defer promServer.Stop(context.Background())
	}

	mono, err := monolith.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create monolith: %w", err)
	}
	defer mono.Close()

	arb := &arbitrage.Module{Manual: opts.once || opts.dot != ""}
	modules := []monolith.Module{
		&liquidity.Module{},  // Must be first - provides the pool registry
		&blockchain.Module{}, // New heads trigger searches
		arb,                  // Depends on liquidity and blockchain
	}
	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}

	if opts.dot != "" {
		return writeDOT(ctx, mono, opts.dot)
	}
	if opts.once {
		return runOnce(ctx, mono, modules)
	}

	healthServer := health.NewServer(cfg.Health.Port, version, log)
	registerChecks(healthServer, mono)
	if err := healthServer.Start(); err != nil {
		log.Warn(ctx, "failed to start health server", "error", err)
	} else {
		log.Info(ctx, "health server started", "port", cfg.Health.Port)
	}
	defer healthServer.Stop(context.Background())

	startFunc := func() error {
		if err := mono.StartModules(ctx, modules...); err != nil {
			return fmt.Errorf("failed to start modules: %w", err)
		}
		sendLiquidity(mono)
		return nil
	}
	stopFunc := func() {
		if err := mono.StopModules(modules...); err != nil {
			log.Error(context.Background(), "error stopping modules", "error", err)
		}
	}

	if tuiMode {
		return runTUI(ctx, mono, startFunc, stopFunc)
	}

	if err := startFunc(); err != nil {
		return err
	}
	log.Info(ctx, "all modules started, searching for cycles")
	<-ctx.Done()
	log.Info(context.Background(), "shutting down")
	stopFunc()
	return nil
}

// newLogger writes JSON logs to stderr in CLI mode. In TUI mode logs go only to
// logging.file, or nowhere when it is unset.
func newLogger(cfg *config.Config, tuiMode bool) (*logger.Logger, func(), error) {
	level := logger.ParseLevel(cfg.Logging.Level)

	var sinks []io.Writer
	closeFn := func() {}
	if !tuiMode {
		sinks = append(sinks, os.Stderr)
	}
	if cfg.Logging.File != "" {
		fw, err := logger.NewRotatingWriter(logger.FileConfig{
			Path:       cfg.Logging.File,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		sinks = append(sinks, fw)
		closeFn = func() { fw.Close() }
	}

	var w io.Writer = io.Discard
	switch len(sinks) {
	case 0:
	case 1:
		w = sinks[0]
	default:
		w = io.MultiWriter(sinks...)
	}
	return logger.New(w, level, cfg.App.Name, nil), closeFn, nil
}

func registerChecks(s *health.Server, mono monolith.Monolith) {
	cfg := mono.Config()
	svc := liquidityDI.GetLiquidityService(mono.Services())

	maxAge := 10 * cfg.Search.Interval
	if maxAge <= 0 {
		maxAge = 2 * time.Minute
	}
	s.RegisterCheck("liquidity", health.Freshness(svc.UpdatedAt, maxAge))

	if cfg.Ethereum.Enabled() {
		chain := blockchainDI.GetBlockchainService(mono.Services())
		s.RegisterCheck("ethereum", func(context.Context) (bool, string) {
			st := chain.Status()
			if st.State != blockchainDomain.StateConnected {
				return false, string(st.State)
			}
			return true, fmt.Sprintf("block %d", st.LastBlock)
		})
	}
}

func sendLiquidity(mono monolith.Monolith) {
	svc := liquidityDI.GetLiquidityService(mono.Services())
	st := svc.LastStats()
	tokens := 0
	if reg := svc.Current(); reg != nil {
		tokens = len(reg.Tokens())
	}
	ui.Send(ui.LiquidityMsg{Source: st.Source, Pools: st.Loaded, Rejected: st.Rejected, Tokens: tokens})
}

type starter interface {
	monolith.Monolith
	StartModules(ctx context.Context, modules ...monolith.Module) error
	StopModules(modules ...monolith.Module) error
}

// runOnce loads liquidity, runs one search per start token and prints the reports.
func runOnce(ctx context.Context, mono starter, modules []monolith.Module) error {
	if err := mono.StartModules(ctx, modules...); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}
	defer mono.StopModules(modules...)

	detector := arbitrageDI.GetDetector(mono.Services())
	if err := arbitrageDI.GetReporter(mono.Services()).Start(ctx); err != nil {
		return err
	}

	var block uint64
	if client := mono.EthClient(); client != nil {
		if n, err := client.BlockNumber(ctx); err == nil {
			block = n
		}
	}
	_, err := detector.RunOnce(ctx, block)
	return err
}

func writeDOT(ctx context.Context, mono monolith.Monolith, path string) error {
	svc := liquidityDI.GetLiquidityService(mono.Services())
	reg, err := svc.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("failed to load liquidity: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	assets := mono.AssetRegistry()
	if err := liquidityDomain.WriteDOT(f, liquidityDomain.BuildGraph(reg), assets.Symbol); err != nil {
		return fmt.Errorf("failed to write graph: %w", err)
	}
	fmt.Printf("wrote %d pools over %d tokens to %s\n", reg.Len(), len(reg.Tokens()), path)
	return nil
}

func runTUI(ctx context.Context, mono monolith.Monolith, startFunc func() error, stopFunc func()) error {
	// Channel to receive StartModulesMsg signal
	startSignal := make(chan struct{}, 1)
	ui.OnStartModules = func() {
		select {
		case startSignal <- struct{}{}:
		default:
		}
	}

	var started atomic.Bool
	stop := sync.OnceFunc(func() {
		if started.Load() {
			stopFunc()
		}
	})

	assets := mono.AssetRegistry()
	p := tea.NewProgram(ui.New(assets.Symbol), tea.WithAltScreen())
	ui.Program = p

	errCh := make(chan error, 1)
	go func() {
		select {
		case <-startSignal:
		case <-ctx.Done():
			errCh <- nil
			return
		}

		started.Store(true)
		if err := startFunc(); err != nil {
			ui.Send(ui.StartupMsg{Step: "liquidity", Status: "failed", Message: err.Error()})
			ui.Send(ui.ErrorMsg{Error: err})
			errCh <- err
			return
		}

		<-ctx.Done()
		stop()
		p.Quit()
		errCh <- nil
	}()

	_, runErr := p.Run()
	// Quitting from the keyboard leaves ctx alive.
	stop()
	if runErr != nil {
		return fmt.Errorf("TUI error: %w", runErr)
	}

	select {
	case err := <-errCh:
		return err
	default:
		return nil
	}
}

// resolveStart turns a comma-separated list of addresses or registered symbols into hex
// addresses.
func resolveStart(list string, assets *asset.Registry) ([]string, error) {
	var out []string
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		switch {
		case item == "":
			continue
		case common.IsHexAddress(item):
			out = append(out, common.HexToAddress(item).Hex())
		default:
			a, ok := assets.BySymbol(item)
			if !ok {
				return nil, fmt.Errorf("unknown token %q", item)
			}
			out = append(out, a.Address().Hex())
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no start tokens in %q", list)
	}
	return out, nil
}
