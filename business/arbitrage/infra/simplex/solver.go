// Package simplex solves constraint systems with gonum's simplex method. Second-order cone
// blocks are handled by outer linearisation: supporting planes are added until the cone
// violation falls under tolerance.
package simplex

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"

	"github.com/fd1az/cfmm-arb/business/arbitrage/app"
	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
	"github.com/fd1az/cfmm-arb/internal/logger"
)

const (
	tracerName = "github.com/fd1az/cfmm-arb/business/arbitrage/infra/simplex"
	meterName  = "github.com/fd1az/cfmm-arb/business/arbitrage/infra/simplex"

	defaultTolerance = 1e-10
)

var _ app.Solver = (*Solver)(nil)

type solverMetrics struct {
	solves  metric.Int64Counter
	cuts    metric.Int64Counter
	latency metric.Float64Histogram
}

// Solver implements app.Solver.
type Solver struct {
	logger  logger.LoggerInterface
	tracer  trace.Tracer
	metrics *solverMetrics
}

// New creates a Solver.
func New(log logger.LoggerInterface) (*Solver, error) {
	if log == nil {
		log = logger.Nop()
	}
	s := &Solver{logger: log, tracer: otel.Tracer(tracerName)}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	return s, nil
}

func (s *Solver) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	s.metrics = &solverMetrics{}

	s.metrics.solves, err = meter.Int64Counter("simplex_solves_total",
		metric.WithDescription("Total solves by status"))
	if err != nil {
		return err
	}
	s.metrics.cuts, err = meter.Int64Counter("simplex_cone_cuts_total",
		metric.WithDescription("Total supporting planes added for cone blocks"))
	if err != nil {
		return err
	}
	s.metrics.latency, err = meter.Float64Histogram("simplex_solve_latency_ms",
		metric.WithDescription("Solve latency in milliseconds"),
		metric.WithUnit("ms"))
	return err
}

// Solve minimises sys.C over the system's feasible set. Each iteration is one simplex run;
// systems without cones finish after the first.
func (s *Solver) Solve(ctx context.Context, sys *domain.System, params domain.SolveParams) (*domain.Solution, error) {
	ctx, span := s.tracer.Start(ctx, "simplex.Solve",
		trace.WithAttributes(
			attribute.Int("vars", sys.NumVars()),
			attribute.Int("rows", len(sys.Linear)+len(sys.Equalities)),
			attribute.Int("cones", len(sys.Cones)),
		))
	defer span.End()
	start := time.Now()

	sol, err := s.solve(ctx, sys, params)

	status := domain.Optimal
	if err != nil {
		status, _ = domain.StatusOf(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, status.String())
	} else {
		span.SetAttributes(attribute.Int("iterations", sol.Iterations), attribute.Float64("objective", sol.Objective))
	}
	s.metrics.solves.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status.String())))
	s.metrics.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000)
	return sol, err
}

func (s *Solver) solve(ctx context.Context, sys *domain.System, params domain.SolveParams) (*domain.Solution, error) {
	tol := params.Tolerance
	if tol <= 0 {
		tol = defaultTolerance
	}
	coneTol := params.ConeTolerance
	if coneTol <= 0 {
		coneTol = tol
	}
	maxIter := params.MaxIterations
	if maxIter < 1 {
		maxIter = 1
	}

	f := newForm(sys)
	cuts := initialCuts(sys.Cones)

	for iter := 1; ; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, domain.NewSolveError(domain.IterationLimitExceeded, iter-1, err)
		}
		if iter > maxIter {
			return nil, domain.NewSolveError(domain.IterationLimitExceeded, iter-1,
				fmt.Errorf("cone violation above %g after %d cuts", coneTol, len(cuts)))
		}

		x, err := f.solve(cuts, tol)
		if err != nil {
			if se, ok := err.(*domain.SolveError); ok {
				se.Iterations = iter
			}
			return nil, err
		}

		added := 0
		for _, c := range sys.Cones {
			if cut, ok := separate(c, x, coneTol); ok {
				cuts = append(cuts, cut)
				added++
			}
		}
		if added == 0 {
			return &domain.Solution{
				Status:     domain.Optimal,
				X:          x,
				Objective:  sys.Objective(x),
				Iterations: iter,
			}, nil
		}
		s.metrics.cuts.Add(ctx, int64(added))
	}
}

// initialCuts keeps every cone's s0 non-negative and adds its supporting plane at x = 0.
// For a constant-product block that plane is the tangent at the current reserves.
func initialCuts(cones []domain.Cone) []domain.Row {
	var cuts []domain.Row
	for _, c := range cones {
		cuts = append(cuts, domain.Row{Label: c.Label + " s0", Idx: c.Rows[0].Idx, Val: c.Rows[0].Val, RHS: c.Rows[0].RHS})

		h := make([]float64, len(c.Rows)-1)
		for i, r := range c.Rows[1:] {
			h[i] = r.RHS
		}
		if n := floats.Norm(h, 2); n > 0 {
			floats.Scale(1/n, h)
			cuts = append(cuts, plane(c, h))
		}
	}
	return cuts
}

// separate returns the supporting plane through the cone ray closest to x when x violates c
// by more than tol relative to s0.
func separate(c domain.Cone, x []float64, tol float64) (domain.Row, bool) {
	slack := c.Slack(x)
	u := slack[1:]
	n := floats.Norm(u, 2)
	if n == 0 || n-slack[0] <= tol*(1+math.Abs(slack[0])) {
		return domain.Row{}, false
	}
	a := make([]float64, len(u))
	copy(a, u)
	floats.Scale(1/n, a)
	return plane(c, a), true
}

// plane is aᵀ(h_u − G_u x) ≤ h0 − G0 x for unit a, which every point of the cone satisfies:
// (G0 − Σ a_i G_i) x ≤ h0 − Σ a_i h_i.
func plane(c domain.Cone, a []float64) domain.Row {
	coef := make(map[int]float64)
	var order []int
	add := func(idx []int, val []float64, w float64) {
		for i, j := range idx {
			if _, ok := coef[j]; !ok {
				order = append(order, j)
			}
			coef[j] += w * val[i]
		}
	}

	head := c.Rows[0]
	add(head.Idx, head.Val, 1)
	rhs := head.RHS
	for i, r := range c.Rows[1:] {
		add(r.Idx, r.Val, -a[i])
		rhs -= a[i] * r.RHS
	}

	row := domain.Row{Label: c.Label + " cut", RHS: rhs}
	for _, j := range order {
		row.Idx = append(row.Idx, j)
		row.Val = append(row.Val, coef[j])
	}
	return row
}
