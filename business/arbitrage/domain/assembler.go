package domain

import (
	"fmt"
	"sort"

	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
)

// Linking controls how the output of one leg feeds the next.
type Linking uint8

const (
	// Strict requires every unit withdrawn at leg k to be deposited at leg k+1.
	Strict Linking = iota
	// Relaxed lets leg k+1 deposit at most what leg k withdrew; the remainder is dropped.
	Relaxed
)

func (l Linking) String() string {
	if l == Relaxed {
		return "relaxed"
	}
	return "strict"
}

// ParseLinking accepts "strict" (or empty) and "relaxed".
func ParseLinking(s string) (Linking, error) {
	switch s {
	case "", "strict":
		return Strict, nil
	case "relaxed":
		return Relaxed, nil
	}
	return Strict, fmt.Errorf("unknown linking %q", s)
}

// Leg is one swap of an assembled cycle with the indices of its traded amounts.
type Leg struct {
	Pool     liquidity.PoolID
	TokenIn  liquidity.Token
	TokenOut liquidity.Token
	// In is the delta deposited into Pool, Out the lambda withdrawn from it.
	In  int
	Out int
}

// Problem is the constraint system of one cycle plus the bookkeeping to read a solution back.
type Problem struct {
	Cycle  liquidity.Cycle
	System *System
	Legs   []Leg
	Values map[liquidity.Token]float64
}

// Assembler builds one Problem per cycle.
type Assembler struct {
	Builder      *Builder
	Linking      Linking
	MarketValues MarketValues
	// InputCap bounds the first deposit; 0 leaves it free.
	InputCap float64
}

// NewAssembler returns an assembler with strict linking and no input cap.
func NewAssembler(b *Builder) *Assembler {
	if b == nil {
		b = NewBuilder()
	}
	return &Assembler{Builder: b}
}

// Assemble validates cycle against the registry and returns its constraint system. Pool
// reuse is rejected before any row is built.
func (a *Assembler) Assemble(cycle liquidity.Cycle, reg *liquidity.Registry) (*Problem, error) {
	if !cycle.IsClosed() {
		return nil, apperror.New(apperror.CodeDegenerateCycle,
			apperror.WithContext(fmt.Sprintf("cycle is not closed or has fewer than 2 legs (%d tokens, %d pools)",
				len(cycle.Tokens), len(cycle.Pools))))
	}
	if !cycle.HasDistinctInterior() {
		return nil, apperror.New(apperror.CodeDegenerateCycle,
			apperror.WithContext("token repeated inside "+cycle.Key()))
	}
	if cycle.ReusesPool() {
		return nil, apperror.New(apperror.CodeDegenerateCycle,
			apperror.WithContext("pool reused in "+cycle.Key()))
	}

	pools := make([]*liquidity.Pool, cycle.Len())
	for k, id := range cycle.Pools {
		p, ok := reg.Get(id)
		if !ok {
			return nil, apperror.New(apperror.CodeGraphLookupMiss,
				apperror.WithContext(fmt.Sprintf("pool %s not in registry", id)))
		}
		if !p.Contains(cycle.Tokens[k]) || !p.Contains(cycle.Tokens[k+1]) {
			return nil, apperror.New(apperror.CodeGraphLookupMiss,
				apperror.WithContext(fmt.Sprintf("pool %s does not trade %s/%s",
					id, cycle.Tokens[k].Hex(), cycle.Tokens[k+1].Hex())))
		}
		pools[k] = p
	}

	start := cycle.Start()
	values := make(map[liquidity.Token]float64)
	valueOf := func(t liquidity.Token) float64 {
		v := a.MarketValues.Of(t, start)
		values[t] = v
		return v
	}

	sys := &System{}
	legs := make([]Leg, cycle.Len())
	for k, p := range pools {
		in, out := cycle.Tokens[k], cycle.Tokens[k+1]
		slots := allocate(sys, p, in, out)

		leg := Leg{Pool: p.ID, TokenIn: in, TokenOut: out}
		for _, s := range slots {
			switch s.Token {
			case in:
				leg.In = s.Delta
				sys.AddEq(fmt.Sprintf("leg %d no withdraw %s", k, in.Hex()), []int{s.Lambda}, []float64{1}, 0)
			case out:
				leg.Out = s.Lambda
				sys.AddEq(fmt.Sprintf("leg %d no deposit %s", k, out.Hex()), []int{s.Delta}, []float64{1}, 0)
			}
		}
		legs[k] = leg

		if err := a.Builder.Append(sys, p, slots, valueOf); err != nil {
			return nil, err
		}
	}

	for k := 0; k+1 < len(legs); k++ {
		label := fmt.Sprintf("link %d->%d", k, k+1)
		prev, next := legs[k].Out, legs[k+1].In
		if a.Linking == Relaxed {
			sys.AddLe(label, []int{next, prev}, []float64{1, -1}, 0)
		} else {
			sys.AddEq(label, []int{prev, next}, []float64{1, -1}, 0)
		}
	}
	if a.InputCap > 0 {
		sys.AddLe("input cap", []int{legs[0].In}, []float64{1}, a.InputCap)
	}

	return &Problem{Cycle: cycle, System: sys, Legs: legs, Values: values}, nil
}

// allocate adds one (lambda, delta) pair per leg token, ordered by position in the pool.
func allocate(sys *System, p *liquidity.Pool, in, out liquidity.Token) []Slot {
	slots := []Slot{
		{Token: in, TokenIndex: p.IndexOf(in)},
		{Token: out, TokenIndex: p.IndexOf(out)},
	}
	sort.Slice(slots, func(i, j int) bool { return slots[i].TokenIndex < slots[j].TokenIndex })
	for i := range slots {
		slots[i].Lambda = sys.AddVar(Var{Pool: p.ID, Token: slots[i].Token, Kind: Lambda})
		slots[i].Delta = sys.AddVar(Var{Pool: p.ID, Token: slots[i].Token, Kind: Delta})
	}
	return slots
}

// LegAmount is the traded amount of one leg in whole-token units.
type LegAmount struct {
	Pool     liquidity.PoolID
	TokenIn  liquidity.Token
	TokenOut liquidity.Token
	In       float64
	Out      float64
}

// CycleResult is a solved cycle in trade terms.
type CycleResult struct {
	Key    string
	Cycle  liquidity.Cycle
	Legs   []LegAmount
	Input  float64
	Output float64
	// Profit is Output − Input in start-token units, from the exact swap path once repriced.
	Profit float64
	// Estimate is the solver's own Output − Input before repricing.
	Estimate float64
	// Objective is the realised value in the numéraire, −Cᵀx.
	Objective   float64
	Approximate bool
	Iterations  int
}

// Interpret reads sol back into per-leg amounts.
func (p *Problem) Interpret(sol *Solution) CycleResult {
	res := CycleResult{
		Key:         p.Cycle.Key(),
		Cycle:       p.Cycle,
		Legs:        make([]LegAmount, len(p.Legs)),
		Approximate: p.System.Approximate,
		Iterations:  sol.Iterations,
	}
	for k, l := range p.Legs {
		res.Legs[k] = LegAmount{
			Pool:     l.Pool,
			TokenIn:  l.TokenIn,
			TokenOut: l.TokenOut,
			In:       clampZero(sol.X[l.In]),
			Out:      clampZero(sol.X[l.Out]),
		}
	}
	res.Input = res.Legs[0].In
	res.Output = res.Legs[len(res.Legs)-1].Out
	res.Profit = res.Output - res.Input
	res.Estimate = res.Profit
	res.Objective = -p.System.Objective(sol.X)
	return res
}

// Reprice replaces the solved amounts with the exact swap path of the cycle. An approximate
// system overstates what the pools pay, so its input is also re-optimised over
// [0, solved input]; the solved input is kept when nothing smaller does better.
func (p *Problem) Reprice(res *CycleResult, reg *liquidity.Registry) error {
	input := res.Input
	legs, err := Path(p.Cycle, reg, input)
	if err != nil {
		return err
	}
	if p.System.Approximate && input > 0 {
		x, err := BestInput(p.Cycle, reg, input)
		if err != nil {
			return err
		}
		alt, err := Path(p.Cycle, reg, x)
		if err != nil {
			return err
		}
		if gain(alt) > gain(legs) {
			legs = alt
		}
	}

	res.Legs = legs
	res.Input = legs[0].In
	res.Output = legs[len(legs)-1].Out
	res.Profit = gain(legs)
	return nil
}

func gain(legs []LegAmount) float64 {
	return legs[len(legs)-1].Out - legs[0].In
}

// clampZero removes solver noise around zero.
func clampZero(v float64) float64 {
	if v < 1e-12 {
		return 0
	}
	return v
}
