package simplex

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/fd1az/cfmm-arb/business/arbitrage/domain"
)

// zeroRowTolerance decides when an emptied row's right-hand side counts as negative.
const zeroRowTolerance = 1e-12

// column is one standard-form column: a system variable taken with a sign. Free variables
// get a positive and a negative column.
type column struct {
	v    int
	sign float64
}

// form is a System rewritten as min cᵀx, [G I][x;s] = h, x,s ≥ 0. Variables pinned to zero
// are removed, variables forced equal share one column, non-negativity rows become bounds
// and the remaining equalities become pairs of inequalities.
type form struct {
	n      int
	root   []int
	cost   []float64
	pinned []bool
	pos    []int
	neg    []int
	cols   []column
	rows   []domain.Row
}

func newForm(sys *domain.System) *form {
	n := sys.NumVars()
	f := &form{
		n:      n,
		root:   make([]int, n),
		cost:   make([]float64, n),
		pinned: make([]bool, n),
		pos:    make([]int, n),
		neg:    make([]int, n),
	}
	for v := range n {
		f.root[v] = v
	}

	var pins []int
	for _, r := range sys.Equalities {
		switch {
		case len(r.Idx) == 1 && r.Val[0] != 0 && r.RHS == 0:
			pins = append(pins, r.Idx[0])
		case isAlias(r):
			a, b := f.find(r.Idx[0]), f.find(r.Idx[1])
			if a > b {
				a, b = b, a
			}
			f.root[b] = a
		default:
			f.rows = append(f.rows, r, negate(r))
		}
	}
	for _, v := range pins {
		f.pinned[f.find(v)] = true
	}

	nonneg := make([]bool, n)
	for _, r := range sys.Linear {
		if isBound(r) {
			nonneg[f.find(r.Idx[0])] = true
			continue
		}
		f.rows = append(f.rows, r)
	}
	for v, c := range sys.C {
		f.cost[f.find(v)] += c
	}

	for v := range n {
		f.pos[v], f.neg[v] = -1, -1
		if f.find(v) != v || f.pinned[v] {
			continue
		}
		f.pos[v] = len(f.cols)
		f.cols = append(f.cols, column{v: v, sign: 1})
		if !nonneg[v] {
			f.neg[v] = len(f.cols)
			f.cols = append(f.cols, column{v: v, sign: -1})
		}
	}
	return f
}

func (f *form) find(v int) int {
	for f.root[v] != v {
		f.root[v] = f.root[f.root[v]]
		v = f.root[v]
	}
	return v
}

// isBound matches −a·x_v ≤ 0 with a > 0.
func isBound(r domain.Row) bool {
	return len(r.Idx) == 1 && r.Val[0] < 0 && r.RHS == 0
}

// isAlias matches a·x_u − a·x_v = 0.
func isAlias(r domain.Row) bool {
	return len(r.Idx) == 2 && r.RHS == 0 && r.Val[0] != 0 && r.Val[0] == -r.Val[1] && r.Idx[0] != r.Idx[1]
}

func negate(r domain.Row) domain.Row {
	val := make([]float64, len(r.Val))
	for i, v := range r.Val {
		val[i] = -v
	}
	return domain.Row{Label: r.Label + " (reverse)", Idx: r.Idx, Val: val, RHS: -r.RHS}
}

// dense expands r over the standard-form columns.
func (f *form) dense(r domain.Row) []float64 {
	out := make([]float64, len(f.cols))
	for i, v := range r.Idx {
		v = f.find(v)
		if f.pinned[v] {
			continue
		}
		out[f.pos[v]] += r.Val[i]
		if f.neg[v] >= 0 {
			out[f.neg[v]] -= r.Val[i]
		}
	}
	return out
}

// solve runs the simplex over the base rows plus extra and returns a point in system
// variables.
func (f *form) solve(extra []domain.Row, tol float64) (x []float64, err error) {
	var (
		coefs [][]float64
		rhs   []float64
	)
	for _, r := range append(f.rows[:len(f.rows):len(f.rows)], extra...) {
		row := f.dense(r)
		scale := floats.Norm(row, math.Inf(1))
		if scale == 0 {
			if r.RHS < -zeroRowTolerance {
				return nil, domain.NewSolveError(domain.Infeasible, 0,
					fmt.Errorf("row %q has no free variable and rhs %g", r.Label, r.RHS))
			}
			continue
		}
		floats.Scale(1/scale, row)
		coefs = append(coefs, row)
		rhs = append(rhs, r.RHS/scale)
	}

	// Columns no row touches sit at 0 unless they improve the objective forever.
	used := make([]bool, len(f.cols))
	for _, row := range coefs {
		for j, a := range row {
			if a != 0 {
				used[j] = true
			}
		}
	}
	var keep []int
	for j, c := range f.cols {
		if used[j] {
			keep = append(keep, j)
			continue
		}
		if f.cost[c.v]*c.sign < 0 {
			return nil, domain.NewSolveError(domain.Unbounded, 0,
				fmt.Errorf("variable %d is unconstrained with negative cost", c.v))
		}
	}

	m, k := len(coefs), len(keep)
	x = make([]float64, f.n)
	if m == 0 || k == 0 {
		return x, nil
	}

	cols := k + m
	data := make([]float64, m*cols)
	b := make([]float64, m)
	feasibleAtZero := true
	for i, row := range coefs {
		sign := 1.0
		if rhs[i] < 0 {
			sign = -1
			feasibleAtZero = false
		}
		for jj, j := range keep {
			data[i*cols+jj] = sign * row[j]
		}
		data[i*cols+k+i] = sign
		b[i] = sign * rhs[i]
	}
	c := make([]float64, cols)
	for jj, j := range keep {
		col := f.cols[j]
		c[jj] = f.cost[col.v] * col.sign
	}

	var basic []int
	if feasibleAtZero {
		basic = make([]int, m)
		for i := range basic {
			basic[i] = k + i
		}
	}

	defer func() {
		if r := recover(); r != nil {
			x = nil
			err = domain.NewSolveError(domain.NumericalFailure, 0, fmt.Errorf("simplex panic: %v", r))
		}
	}()
	_, opt, lpErr := lp.Simplex(c, mat.NewDense(m, cols, data), b, tol, basic)
	if lpErr != nil {
		return nil, domain.NewSolveError(statusOf(lpErr), 0, lpErr)
	}

	values := make([]float64, f.n)
	for jj, j := range keep {
		col := f.cols[j]
		values[col.v] += col.sign * opt[jj]
	}
	for v := range x {
		x[v] = values[f.find(v)]
	}
	return x, nil
}

func statusOf(err error) domain.Status {
	switch {
	case errors.Is(err, lp.ErrInfeasible):
		return domain.Infeasible
	case errors.Is(err, lp.ErrUnbounded):
		return domain.Unbounded
	default:
		return domain.NumericalFailure
	}
}
