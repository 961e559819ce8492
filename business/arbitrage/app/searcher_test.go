package app_test

import (
	"context"
	"math"
	"math/big"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/cfmm-arb/business/arbitrage/app"
	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arb/business/arbitrage/infra/simplex"
	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
)

var (
	tokA = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	tokB = common.HexToAddress("0x00000000000000000000000000000000000000b0")
	tokC = common.HexToAddress("0x00000000000000000000000000000000000000c0")
)

var fee = decimal.RequireFromString("0.997")

func pool(id string, ra, rb int64) *liquidity.Pool {
	return liquidity.NewConstantProduct(liquidity.PoolID(id), tokA, tokB, big.NewInt(ra), big.NewInt(rb), 0, 0, fee)
}

func registry(t *testing.T, pools ...*liquidity.Pool) *liquidity.Registry {
	t.Helper()
	reg, err := liquidity.NewRegistryFrom(pools)
	if err != nil {
		t.Fatal(err)
	}
	return reg
}

type solverFunc func(ctx context.Context, sys *domain.System, params domain.SolveParams) (*domain.Solution, error)

func (f solverFunc) Solve(ctx context.Context, sys *domain.System, params domain.SolveParams) (*domain.Solution, error) {
	return f(ctx, sys, params)
}

func zeroSolution(sys *domain.System) *domain.Solution {
	return &domain.Solution{Status: domain.Optimal, X: make([]float64, sys.NumVars()), Iterations: 1}
}

func newSearcher(t *testing.T, solver app.Solver, mutate func(*app.SearchConfig)) *app.Searcher {
	t.Helper()
	cfg := app.DefaultSearchConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	s, err := app.NewSearcher(solver, nil, cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSearcher_PerturbedLoop(t *testing.T) {
	solver, err := simplex.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	reg := registry(t, pool("p1", 100, 10), pool("p2", 90, 20))
	rep, err := newSearcher(t, solver, nil).Search(context.Background(), reg, tokA)
	if err != nil {
		t.Fatal(err)
	}

	// p1/p1 and p2/p2 reuse a pool and, like p1 then p2, trade below a unit rate.
	if rep.Stats.Enumerated != 4 || rep.Stats.Prefiltered != 3 || rep.Stats.Solved != 1 {
		t.Fatalf("stats = %+v", rep.Stats)
	}
	best, ok := rep.Best()
	if !ok {
		t.Fatal("expected a profitable cycle")
	}
	want := liquidity.Cycle{Tokens: []liquidity.Token{tokA, tokB, tokA}, Pools: []liquidity.PoolID{"p2", "p1"}}
	if best.Key != want.Key() {
		t.Errorf("best = %s, want %s", best.Key, want.Key())
	}
	// The tangent rows promise more than the pools pay; the exact round trip is reported.
	if math.Abs(best.Estimate-5.456459378134404) > 1e-6 {
		t.Errorf("estimate = %v", best.Estimate)
	}
	if math.Abs(best.Profit-4.158286811377860) > 1e-6 {
		t.Errorf("profit = %v", best.Profit)
	}
	if len(rep.Selection.Picked) != 1 || rep.Selection.Picked[0].Key != best.Key {
		t.Errorf("selection = %+v", rep.Selection)
	}
	if len(rep.Linear) != 1 || rep.Linear[0].Amount != best.Input {
		t.Errorf("linear estimate = %+v", rep.Linear)
	}
	if rep.ID == "" || rep.Duration <= 0 {
		t.Errorf("report id %q duration %v", rep.ID, rep.Duration)
	}
}

func TestSearcher_BudgetBelowOptimum(t *testing.T) {
	solver, err := simplex.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	reg := registry(t, pool("p1", 100, 10), pool("p2", 90, 20))
	rep, err := newSearcher(t, solver, func(c *app.SearchConfig) { c.Budget = 2 }).Search(context.Background(), reg, tokA)
	if err != nil {
		t.Fatal(err)
	}

	// Unconstrained, the loop trades about 4.51; the budget shrinks the trade instead of
	// dropping it.
	if len(rep.Selection.Picked) != 1 {
		t.Fatalf("selection = %+v, results = %+v", rep.Selection, rep.Results)
	}
	pick := rep.Selection.Picked[0]
	if pick.Input > 2+1e-9 || math.Abs(pick.Input-2) > 1e-6 {
		t.Errorf("input = %v, want 2", pick.Input)
	}
	if math.Abs(pick.Profit-2.142997299698835) > 1e-6 {
		t.Errorf("profit = %v", pick.Profit)
	}
	if rep.Selection.TotalInput > 2+1e-9 {
		t.Errorf("total input %v exceeds budget", rep.Selection.TotalInput)
	}
}

func TestSearcher_TangentOverestimate(t *testing.T) {
	solver, err := simplex.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	thin := func(id string, ra, rb int64) *liquidity.Pool {
		return liquidity.NewConstantProduct(liquidity.PoolID(id), tokA, tokB, big.NewInt(ra), big.NewInt(rb), 2, 2, fee)
	}
	reg := registry(t, thin("p1", 10000, 1000), thin("p2", 9000, 920))
	rep, err := newSearcher(t, solver, nil).Search(context.Background(), reg, tokA)
	if err != nil {
		t.Fatal(err)
	}

	for _, r := range rep.Results {
		out, err := domain.RoundTrip(r.Cycle, reg, r.Input)
		if err != nil {
			t.Fatal(err)
		}
		if math.Abs(r.Profit-(out-r.Input)) > 1e-12 {
			t.Errorf("%s: profit %v, pools pay %v", r.Key, r.Profit, out-r.Input)
		}
	}

	best, ok := rep.Best()
	if !ok {
		t.Fatal("expected the small profitable trade")
	}
	// At the 10% cap the tangent model reports about 0.14 where the pools lose 1.32.
	if best.Estimate <= best.Profit {
		t.Errorf("estimate %v should exceed exact profit %v", best.Estimate, best.Profit)
	}
	if math.Abs(best.Input-0.37747) > 1e-3 || math.Abs(best.Profit-0.0030261104890740853) > 1e-6 {
		t.Errorf("input %v profit %v", best.Input, best.Profit)
	}
	for _, c := range rep.Selection.Picked {
		if c.Profit != best.Profit || c.Input != best.Input {
			t.Errorf("selected %+v, want the repriced trade", c)
		}
	}
}

func TestSearcher_NoArbitrage(t *testing.T) {
	solver, err := simplex.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	reg := registry(t, pool("p1", 100, 10), pool("p2", 90, 9))
	rep, err := newSearcher(t, solver, func(c *app.SearchConfig) { c.Prefilter = false }).Search(context.Background(), reg, tokA)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := rep.Best(); ok {
		t.Errorf("no-arbitrage pools reported profit: %+v", rep.Results[0])
	}
	// The two pool-reusing cycles are rejected by the assembler.
	if rep.Stats.Failures[apperror.CodeDegenerateCycle] != 2 || rep.Stats.Solved != 2 {
		t.Errorf("stats = %+v", rep.Stats)
	}
	if len(rep.Selection.Picked) != 0 {
		t.Errorf("selected %+v", rep.Selection.Picked)
	}
}

func TestSearcher_FatalErrors(t *testing.T) {
	never := solverFunc(func(context.Context, *domain.System, domain.SolveParams) (*domain.Solution, error) {
		t.Fatal("solver should not be called")
		return nil, nil
	})

	_, err := newSearcher(t, never, nil).Search(context.Background(), liquidity.NewRegistry(), tokA)
	if !apperror.HasCode(err, apperror.CodeEmptyPoolSet) {
		t.Errorf("empty registry: %v", err)
	}

	reg := registry(t, pool("p1", 100, 10))
	_, err = newSearcher(t, never, func(c *app.SearchConfig) { c.Workers = 0 }).Search(context.Background(), reg, tokA)
	if !apperror.HasCode(err, apperror.CodeConfigurationError) {
		t.Errorf("bad config: %v", err)
	}
}

func TestSearcher_StartMissing(t *testing.T) {
	reg := registry(t, pool("p1", 100, 10), pool("p2", 90, 20))
	rep, err := newSearcher(t, solverFunc(nil), nil).Search(context.Background(), reg, tokC)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Stats.Enumerated != 0 || rep.Stats.Failures[apperror.CodeGraphLookupMiss] != 1 {
		t.Errorf("stats = %+v", rep.Stats)
	}
}

func TestSearcher_SolverFailures(t *testing.T) {
	reg := registry(t, pool("p1", 100, 10), pool("p2", 90, 20))

	tests := []struct {
		name        string
		retry       bool
		fail        []domain.Status
		wantCalls   int32
		wantRetried int
		wantCode    apperror.Code
	}{
		{"infeasible is not retried", true, []domain.Status{domain.Infeasible}, 1, 0, apperror.CodeInfeasibleConstraints},
		{"numerical failure retried", true, []domain.Status{domain.NumericalFailure}, 2, 1, ""},
		{"retry fails too", true, []domain.Status{domain.IterationLimitExceeded, domain.NumericalFailure}, 2, 1, apperror.CodeNumericalNonConvergence},
		{"retry disabled", false, []domain.Status{domain.NumericalFailure}, 1, 0, apperror.CodeNumericalNonConvergence},
		{"unbounded is never profit", true, []domain.Status{domain.Unbounded}, 1, 0, apperror.CodeNumericalNonConvergence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				calls   atomic.Int32
				relaxed atomic.Bool
			)
			solver := solverFunc(func(_ context.Context, sys *domain.System, p domain.SolveParams) (*domain.Solution, error) {
				n := int(calls.Add(1))
				if n > 1 && p.Tolerance > domain.DefaultSolveParams().Tolerance {
					relaxed.Store(true)
				}
				if n <= len(tt.fail) {
					return nil, domain.NewSolveError(tt.fail[n-1], 3, nil)
				}
				return zeroSolution(sys), nil
			})
			rep, err := newSearcher(t, solver, func(c *app.SearchConfig) { c.RetryRelaxed = tt.retry }).Search(context.Background(), reg, tokA)
			if err != nil {
				t.Fatal(err)
			}
			if calls.Load() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls.Load(), tt.wantCalls)
			}
			if rep.Stats.Retried != tt.wantRetried {
				t.Errorf("retried = %d, want %d", rep.Stats.Retried, tt.wantRetried)
			}
			if tt.wantRetried > 0 && !relaxed.Load() {
				t.Error("retry did not relax the tolerance")
			}
			if tt.wantCode == "" {
				if rep.Stats.Solved != 1 || rep.Stats.Failed() != 0 {
					t.Errorf("stats = %+v", rep.Stats)
				}
				return
			}
			if rep.Stats.Failures[tt.wantCode] != 1 || len(rep.Failures) != 1 {
				t.Errorf("failures = %+v", rep.Failures)
			}
			if rep.Failures[0].Retried != (tt.wantRetried > 0) {
				t.Errorf("failure retried flag = %v", rep.Failures[0].Retried)
			}
		})
	}
}

func TestSearcher_Timeout(t *testing.T) {
	reg := registry(t, pool("p1", 100, 10), pool("p2", 90, 20))
	solver := solverFunc(func(ctx context.Context, _ *domain.System, _ domain.SolveParams) (*domain.Solution, error) {
		<-ctx.Done()
		return nil, domain.NewSolveError(domain.IterationLimitExceeded, 0, ctx.Err())
	})
	rep, err := newSearcher(t, solver, func(c *app.SearchConfig) {
		c.Timeout = 10 * time.Millisecond
	}).Search(context.Background(), reg, tokA)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Stats.Failures[apperror.CodeNumericalNonConvergence] != 1 || rep.Stats.Retried != 1 {
		t.Errorf("stats = %+v", rep.Stats)
	}
}

func TestSearcher_WorkerLimit(t *testing.T) {
	reg := registry(t, pool("p1", 100, 10), pool("p2", 90, 20), pool("p3", 80, 12))

	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	solver := solverFunc(func(_ context.Context, sys *domain.System, _ domain.SolveParams) (*domain.Solution, error) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()

		time.Sleep(5 * time.Millisecond)

		mu.Lock()
		inFlight--
		mu.Unlock()
		return zeroSolution(sys), nil
	})
	rep, err := newSearcher(t, solver, func(c *app.SearchConfig) {
		c.Workers = 2
		c.Prefilter = false
	}).Search(context.Background(), reg, tokA)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Stats.Enumerated != 9 || rep.Stats.Solved != 6 || rep.Stats.Failures[apperror.CodeDegenerateCycle] != 3 {
		t.Errorf("stats = %+v", rep.Stats)
	}
	if peak > 2 {
		t.Errorf("peak concurrency %d exceeds 2 workers", peak)
	}
}

func TestSearcher_Cancelled(t *testing.T) {
	reg := registry(t, pool("p1", 100, 10), pool("p2", 90, 20))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	solver := solverFunc(func(_ context.Context, sys *domain.System, _ domain.SolveParams) (*domain.Solution, error) {
		return zeroSolution(sys), nil
	})
	if _, err := newSearcher(t, solver, nil).Search(ctx, reg, tokA); err == nil {
		t.Error("cancelled search should fail")
	}
}
