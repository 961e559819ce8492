package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
	"github.com/fd1az/cfmm-arb/internal/logger"
)

const (
	tracerName = "github.com/fd1az/cfmm-arb/business/arbitrage/app"
	meterName  = "github.com/fd1az/cfmm-arb/business/arbitrage/app"
)

// SearchConfig holds everything one search needs besides the registry.
type SearchConfig struct {
	Enumerate liquidity.EnumerateOptions
	Workers   int
	// Prefilter skips cycles whose marginal rate is not above 1.
	Prefilter bool

	Params       domain.SolveParams
	Timeout      time.Duration
	RetryRelaxed bool
	RelaxFactor  float64

	MaxSelected     int
	Budget          float64
	MinProfit       float64
	RequireDisjoint bool
}

// DefaultSearchConfig mirrors the configuration defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		Enumerate:       liquidity.EnumerateOptions{MaxLength: 4, MaxCycles: 10000},
		Workers:         8,
		Prefilter:       true,
		Params:          domain.DefaultSolveParams(),
		Timeout:         2 * time.Second,
		RetryRelaxed:    true,
		RelaxFactor:     100,
		MaxSelected:     1,
		RequireDisjoint: true,
	}
}

// Validate rejects settings no search can run with.
func (c SearchConfig) Validate() error {
	switch {
	case c.Workers < 1:
		return fmt.Errorf("workers must be >= 1, got %d", c.Workers)
	case c.Timeout <= 0:
		return fmt.Errorf("solve timeout must be positive")
	case c.Params.MaxIterations < 1:
		return fmt.Errorf("max iterations must be >= 1")
	case c.RetryRelaxed && c.RelaxFactor <= 1:
		return fmt.Errorf("relax factor must be > 1, got %v", c.RelaxFactor)
	case c.MaxSelected < 1:
		return fmt.Errorf("max selected must be >= 1")
	case c.Budget < 0:
		return fmt.Errorf("budget cannot be negative")
	}
	return nil
}

type searchMetrics struct {
	cycles   metric.Int64Counter
	failures metric.Int64Counter
	latency  metric.Float64Histogram
	profit   metric.Float64Histogram
}

// Searcher enumerates, solves and selects cycles for one start token at a time.
type Searcher struct {
	solver    Solver
	assembler *domain.Assembler
	cfg       SearchConfig
	logger    logger.LoggerInterface
	tracer    trace.Tracer
	metrics   *searchMetrics
}

// NewSearcher creates a Searcher.
func NewSearcher(solver Solver, assembler *domain.Assembler, cfg SearchConfig, log logger.LoggerInterface) (*Searcher, error) {
	if log == nil {
		log = logger.Nop()
	}
	if assembler == nil {
		assembler = domain.NewAssembler(nil)
	}
	if cfg.Budget > 0 && (assembler.InputCap <= 0 || assembler.InputCap > cfg.Budget) {
		capped := *assembler
		capped.InputCap = cfg.Budget
		assembler = &capped
	}
	s := &Searcher{
		solver:    solver,
		assembler: assembler,
		cfg:       cfg,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return s, nil
}

func (s *Searcher) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	s.metrics = &searchMetrics{}

	s.metrics.cycles, err = meter.Int64Counter("arb_cycles_enumerated_total",
		metric.WithDescription("Total cycles enumerated"))
	if err != nil {
		return err
	}
	s.metrics.failures, err = meter.Int64Counter("arb_cycle_failures_total",
		metric.WithDescription("Total cycles that failed by error kind"))
	if err != nil {
		return err
	}
	s.metrics.latency, err = meter.Float64Histogram("arb_search_latency_ms",
		metric.WithDescription("Search latency in milliseconds"),
		metric.WithUnit("ms"))
	if err != nil {
		return err
	}
	s.metrics.profit, err = meter.Float64Histogram("arb_best_profit",
		metric.WithDescription("Best cycle profit per search in start-token units"))
	return err
}

// Config returns the search configuration.
func (s *Searcher) Config() SearchConfig {
	return s.cfg
}

// candidate is an enumerated cycle that survived the prefilter.
type candidate struct {
	cycle liquidity.Cycle
	rate  float64
}

// outcome is one worker's result slot.
type outcome struct {
	res     domain.CycleResult
	err     error
	retried bool
}

// Search runs one full search from start. Only an empty registry, an invalid configuration
// or a cancelled context fail the search; per-cycle failures end up in the report.
func (s *Searcher) Search(ctx context.Context, reg *liquidity.Registry, start liquidity.Token) (*domain.Report, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, apperror.New(apperror.CodeEmptyPoolSet)
	}
	if err := s.cfg.Validate(); err != nil {
		return nil, apperror.Wrap(err, apperror.CodeConfigurationError, "search config")
	}

	ctx, span := s.tracer.Start(ctx, "Searcher.Search",
		trace.WithAttributes(
			attribute.String("start", start.Hex()),
			attribute.Int("pools", reg.Len()),
		))
	defer span.End()

	rep := domain.NewReport(start, s.assembler.Builder.Formulation)
	rep.ID = uuid.NewString()

	graph := liquidity.BuildGraph(reg)
	cycles, est := graph.EnumerateCycles(start, s.cfg.Enumerate)
	rep.Stats.Enumerated = len(cycles)
	rep.Stats.Truncated = est.Truncated
	s.metrics.cycles.Add(ctx, int64(len(cycles)))
	if est.StartMissing {
		rep.AddFailure(start.Hex(), apperror.New(apperror.CodeGraphLookupMiss,
			apperror.WithContext("start token has no pools")), false)
	}

	var work []candidate
	for _, c := range cycles {
		rate, err := domain.MarginalRate(c, reg)
		if err != nil {
			rep.AddFailure(c.Key(), err, false)
			continue
		}
		if s.cfg.Prefilter && rate <= 1 {
			rep.Stats.Prefiltered++
			continue
		}
		work = append(work, candidate{cycle: c, rate: rate})
	}

	results := make([]outcome, len(work))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for i := range work {
		g.Go(func() error {
			results[i] = s.solveCycle(gctx, reg, work[i].cycle)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		span.SetStatus(codes.Error, "search cancelled")
		return nil, err
	}

	rates := make(map[string]float64, len(work))
	for i, o := range results {
		key := work[i].cycle.Key()
		rates[key] = work[i].rate
		if o.retried {
			rep.Stats.Retried++
		}
		if o.err != nil {
			rep.AddFailure(key, o.err, o.retried)
			continue
		}
		rep.AddResult(o.res)
	}
	for code, n := range rep.Stats.Failures {
		s.metrics.failures.Add(ctx, int64(n), metric.WithAttributes(attribute.String("code", string(code))))
	}
	rep.Sort()

	s.selectCycles(rep, rates)
	rep.Duration = time.Since(rep.StartedAt)

	best := 0.0
	if b, ok := rep.Best(); ok {
		best = b.Profit
	}
	s.metrics.latency.Record(ctx, float64(rep.Duration.Microseconds())/1000)
	s.metrics.profit.Record(ctx, best)
	span.SetAttributes(
		attribute.Int("cycles", rep.Stats.Enumerated),
		attribute.Int("solved", rep.Stats.Solved),
		attribute.Int("failed", rep.Stats.Failed()),
		attribute.Float64("best_profit", best),
	)

	s.logger.Info(ctx, "search finished",
		"start", start.Hex(),
		"cycles", rep.Stats.Enumerated,
		"prefiltered", rep.Stats.Prefiltered,
		"solved", rep.Stats.Solved,
		"profitable", rep.Stats.Profitable,
		"failed", rep.Stats.Failed(),
		"best_profit", best,
		"duration", rep.Duration,
	)
	return rep, nil
}

// solveCycle assembles and solves one cycle. A retryable solver failure is retried once
// with relaxed tolerances when enabled.
func (s *Searcher) solveCycle(ctx context.Context, reg *liquidity.Registry, c liquidity.Cycle) outcome {
	prob, err := s.assembler.Assemble(c, reg)
	if err != nil {
		return outcome{err: err}
	}

	sol, err := s.solve(ctx, prob.System, s.cfg.Params)
	if err == nil {
		return s.price(prob, reg, sol, false)
	}
	st, ok := domain.StatusOf(err)
	if !s.cfg.RetryRelaxed || !ok || !st.Retryable() || ctx.Err() != nil {
		return outcome{err: err}
	}

	s.logger.Debug(ctx, "retrying with relaxed tolerance", "cycle", c.Key(), "status", st.String())
	sol, retryErr := s.solve(ctx, prob.System, s.cfg.Params.Relaxed(s.cfg.RelaxFactor))
	if retryErr != nil {
		return outcome{err: errors.Join(err, retryErr), retried: true}
	}
	return s.price(prob, reg, sol, true)
}

// price reads sol back and replaces the solver's amounts with the exact swap path.
func (s *Searcher) price(prob *domain.Problem, reg *liquidity.Registry, sol *domain.Solution, retried bool) outcome {
	res := prob.Interpret(sol)
	if err := prob.Reprice(&res, reg); err != nil {
		return outcome{err: err, retried: retried}
	}
	return outcome{res: res, retried: retried}
}

func (s *Searcher) solve(ctx context.Context, sys *domain.System, params domain.SolveParams) (*domain.Solution, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()
	return s.solver.Solve(ctx, sys, params)
}

// selectCycles runs the selector over profitable results and the zero-size estimate over
// their marginal rates.
func (s *Searcher) selectCycles(rep *domain.Report, rates map[string]float64) {
	var (
		cands  []domain.Candidate
		coefs  []float64
		limits []float64
	)
	for _, r := range rep.Profitable() {
		rate := rates[r.Key]
		cands = append(cands, domain.CandidateFrom(r, rate))
		coefs = append(coefs, rate)
		limits = append(limits, r.Input)
	}

	sel := domain.Selector{
		MaxSelected:     s.cfg.MaxSelected,
		Budget:          s.cfg.Budget,
		RequireDisjoint: s.cfg.RequireDisjoint,
		MinProfit:       s.cfg.MinProfit,
	}
	rep.Selection = sel.Select(cands)
	rep.Linear = domain.SelectLinear(coefs, limits, s.cfg.Budget, s.cfg.MaxSelected)
}
