// Package domain contains the constraint model, problem assembly and path selection for the
// arbitrage context.
package domain

import (
	"fmt"
	"math"

	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
)

// VarKind tells a withdrawal variable from a deposit variable.
type VarKind uint8

const (
	// Lambda is the amount withdrawn from a pool.
	Lambda VarKind = iota
	// Delta is the amount deposited into a pool, before fee.
	Delta
)

func (k VarKind) String() string {
	if k == Lambda {
		return "lambda"
	}
	return "delta"
}

// Var describes one trade variable.
type Var struct {
	Pool  liquidity.PoolID
	Token liquidity.Token
	Kind  VarKind
}

// Row is a sparse linear form Σ Val[i]·x[Idx[i]] with a right-hand side.
type Row struct {
	Label string
	Idx   []int
	Val   []float64
	RHS   float64
}

// Dot evaluates the linear form at x.
func (r Row) Dot(x []float64) float64 {
	var s float64
	for i, j := range r.Idx {
		s += r.Val[i] * x[j]
	}
	return s
}

func (r Row) finite() bool {
	if math.IsNaN(r.RHS) || math.IsInf(r.RHS, 0) {
		return false
	}
	for _, v := range r.Val {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Cone is a second-order block s = h − G x with s[0] ≥ ‖s[1:]‖. Rows[i] carries G_i and h_i.
type Cone struct {
	Label string
	Rows  []Row
}

// Slack returns s = h − G x.
func (c Cone) Slack(x []float64) []float64 {
	s := make([]float64, len(c.Rows))
	for i, r := range c.Rows {
		s[i] = r.RHS - r.Dot(x)
	}
	return s
}

// Violation returns ‖s[1:]‖ − s[0]; positive means x lies outside the cone.
func (c Cone) Violation(x []float64) float64 {
	s := c.Slack(x)
	return math.Hypot(s[1], norm(s[2:])) - s[0]
}

// ConeType names the cone a system lives in.
type ConeType uint8

const (
	NonNegativeOrthant ConeType = iota
	SecondOrder
)

func (c ConeType) String() string {
	if c == SecondOrder {
		return "second_order"
	}
	return "nonnegative_orthant"
}

// System is minimise Cᵀx subject to Linear (G x ≤ h), Equalities (A x = b) and Cones.
type System struct {
	Vars       []Var
	C          []float64
	Linear     []Row
	Equalities []Row
	Cones      []Cone

	// Approximate is set when any row is a linearisation of a nonlinear invariant.
	Approximate bool
	Notes       []string
}

// NumVars returns the number of variables.
func (s *System) NumVars() int { return len(s.Vars) }

// AddVar appends a variable with zero cost and returns its index.
func (s *System) AddVar(v Var) int {
	s.Vars = append(s.Vars, v)
	s.C = append(s.C, 0)
	return len(s.Vars) - 1
}

// AddLe appends Σ val·x[idx] ≤ rhs.
func (s *System) AddLe(label string, idx []int, val []float64, rhs float64) {
	s.Linear = append(s.Linear, Row{Label: label, Idx: idx, Val: val, RHS: rhs})
}

// AddEq appends Σ val·x[idx] = rhs.
func (s *System) AddEq(label string, idx []int, val []float64, rhs float64) {
	s.Equalities = append(s.Equalities, Row{Label: label, Idx: idx, Val: val, RHS: rhs})
}

// AddCone appends a second-order block.
func (s *System) AddCone(c Cone) {
	s.Cones = append(s.Cones, c)
}

// MarkApproximate flags the system and records why.
func (s *System) MarkApproximate(note string) {
	s.Approximate = true
	s.Notes = append(s.Notes, note)
}

// ConeType is SecondOrder as soon as one cone block is present.
func (s *System) ConeType() ConeType {
	if len(s.Cones) > 0 {
		return SecondOrder
	}
	return NonNegativeOrthant
}

// Objective evaluates Cᵀx.
func (s *System) Objective(x []float64) float64 {
	var v float64
	for i, c := range s.C {
		v += c * x[i]
	}
	return v
}

// finiteFrom reports whether every row added after the given counts is finite.
func (s *System) finiteFrom(linear, eq, cones int) bool {
	for _, r := range s.Linear[linear:] {
		if !r.finite() {
			return false
		}
	}
	for _, r := range s.Equalities[eq:] {
		if !r.finite() {
			return false
		}
	}
	for _, c := range s.Cones[cones:] {
		for _, r := range c.Rows {
			if !r.finite() {
				return false
			}
		}
	}
	for _, c := range s.C {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}

// ConeDims describes how the rows of Dense.G split into cones: the first Linear rows belong
// to the orthant, then one block per entry of SOC.
type ConeDims struct {
	Linear int
	SOC    []int
}

// Dense is the system in the (c, G, h, A, b, dims) layout common to conic solvers.
type Dense struct {
	C    []float64
	G    [][]float64
	H    []float64
	A    [][]float64
	B    []float64
	Dims ConeDims
}

// Dense expands the sparse rows.
func (s *System) Dense() Dense {
	n := s.NumVars()
	expand := func(r Row) []float64 {
		out := make([]float64, n)
		for i, j := range r.Idx {
			out[j] += r.Val[i]
		}
		return out
	}

	d := Dense{C: append([]float64(nil), s.C...)}
	for _, r := range s.Linear {
		d.G = append(d.G, expand(r))
		d.H = append(d.H, r.RHS)
	}
	d.Dims.Linear = len(s.Linear)
	for _, c := range s.Cones {
		for _, r := range c.Rows {
			d.G = append(d.G, expand(r))
			d.H = append(d.H, r.RHS)
		}
		d.Dims.SOC = append(d.Dims.SOC, len(c.Rows))
	}
	for _, r := range s.Equalities {
		d.A = append(d.A, expand(r))
		d.B = append(d.B, r.RHS)
	}
	return d
}

// Violation describes one constraint x fails.
type Violation struct {
	Label  string
	Amount float64
}

func (v Violation) String() string {
	return fmt.Sprintf("%s by %g", v.Label, v.Amount)
}

// Check returns every constraint violated by more than tol·(1+|rhs|).
func (s *System) Check(x []float64, tol float64) []Violation {
	var out []Violation
	for _, r := range s.Linear {
		if d := r.Dot(x) - r.RHS; d > tol*(1+math.Abs(r.RHS)) {
			out = append(out, Violation{Label: r.Label, Amount: d})
		}
	}
	for _, r := range s.Equalities {
		if d := math.Abs(r.Dot(x) - r.RHS); d > tol*(1+math.Abs(r.RHS)) {
			out = append(out, Violation{Label: r.Label, Amount: d})
		}
	}
	for _, c := range s.Cones {
		if d := c.Violation(x); d > tol*(1+math.Abs(c.Rows[0].RHS)) {
			out = append(out, Violation{Label: c.Label, Amount: d})
		}
	}
	return out
}

func norm(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return math.Sqrt(s)
}
