package domain

import (
	"math"
	"sort"

	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
)

// maxSearchNodes bounds the branch and bound; past it the best selection so far is returned
// with Exact unset.
const maxSearchNodes = 1 << 20

// Candidate is a solved cycle offered to the selector.
type Candidate struct {
	Key         string
	Pools       []liquidity.PoolID
	Input       float64
	Profit      float64
	Coefficient float64
}

// CandidateFrom builds a candidate from a cycle result and its marginal rate.
func CandidateFrom(r CycleResult, coefficient float64) Candidate {
	return Candidate{
		Key:         r.Key,
		Pools:       r.Cycle.Pools,
		Input:       r.Input,
		Profit:      r.Profit,
		Coefficient: coefficient,
	}
}

// Selector picks the best combination of independently solved cycles.
type Selector struct {
	MaxSelected int
	// Budget caps the summed inputs; ≤ 0 means unlimited.
	Budget float64
	// RequireDisjoint forbids two selected cycles from sharing a pool.
	RequireDisjoint bool
	MinProfit       float64
}

// NewSelector returns a single-pick, pool-disjoint selector without budget.
func NewSelector() *Selector {
	return &Selector{MaxSelected: 1, RequireDisjoint: true}
}

// Selection is the selector's answer.
type Selection struct {
	Picked      []Candidate
	TotalInput  float64
	TotalProfit float64
	// Exact is false when the search hit its node limit.
	Exact bool
}

// Select maximises total profit over at most MaxSelected candidates.
func (s *Selector) Select(candidates []Candidate) Selection {
	k := s.MaxSelected
	if k < 1 {
		k = 1
	}
	budget := s.Budget
	if budget <= 0 {
		budget = math.Inf(1)
	}

	pool := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if c.Profit > s.MinProfit && c.Profit > 0 && c.Input <= budget {
			pool = append(pool, c)
		}
	}
	sort.SliceStable(pool, func(i, j int) bool {
		if pool[i].Profit != pool[j].Profit {
			return pool[i].Profit > pool[j].Profit
		}
		return pool[i].Key < pool[j].Key
	})

	bb := &branchBound{
		cands:    pool,
		k:        k,
		budget:   budget,
		disjoint: s.RequireDisjoint,
		used:     make(map[liquidity.PoolID]int),
	}
	bb.search(0, 0, 0)

	sel := Selection{Exact: bb.nodes <= maxSearchNodes}
	for _, i := range bb.best {
		c := pool[i]
		sel.Picked = append(sel.Picked, c)
		sel.TotalInput += c.Input
		sel.TotalProfit += c.Profit
	}
	return sel
}

type branchBound struct {
	cands    []Candidate
	k        int
	budget   float64
	disjoint bool

	used      map[liquidity.PoolID]int
	chosen    []int
	best      []int
	bestValue float64
	nodes     int
}

func (b *branchBound) search(from int, input, value float64) {
	b.nodes++
	if value > b.bestValue {
		b.bestValue = value
		b.best = append(b.best[:0], b.chosen...)
	}
	if len(b.chosen) == b.k || b.nodes > maxSearchNodes {
		return
	}

	for i := from; i < len(b.cands); i++ {
		// Candidates are sorted, so the next picks bound everything below this branch.
		if value+b.bound(i) <= b.bestValue {
			return
		}
		c := b.cands[i]
		if input+c.Input > b.budget || !b.fits(c) {
			continue
		}
		b.take(c, i)
		b.search(i+1, input+c.Input, value+c.Profit)
		b.drop(c)
	}
}

// bound is the best value the remaining slots could add starting at i.
func (b *branchBound) bound(i int) float64 {
	var sum float64
	for n := 0; n < b.k-len(b.chosen) && i+n < len(b.cands); n++ {
		sum += b.cands[i+n].Profit
	}
	return sum
}

func (b *branchBound) fits(c Candidate) bool {
	if !b.disjoint {
		return true
	}
	for _, p := range c.Pools {
		if b.used[p] > 0 {
			return false
		}
	}
	return true
}

func (b *branchBound) take(c Candidate, i int) {
	b.chosen = append(b.chosen, i)
	for _, p := range c.Pools {
		b.used[p]++
	}
}

func (b *branchBound) drop(c Candidate) {
	b.chosen = b.chosen[:len(b.chosen)-1]
	for _, p := range c.Pools {
		b.used[p]--
	}
}

// LinearProfit is the profit of trading x through a cycle with marginal rate coef, ignoring
// price impact.
func LinearProfit(coef, x float64) float64 {
	return (coef - 1) * x
}

// Allocation is one entry of a linear selection.
type Allocation struct {
	Index  int
	Amount float64
	Profit float64
}

// SelectLinear splits budget over at most k cycles under the linear model. limits optionally
// bounds each cycle's amount (nil or ≤ 0 entries mean no bound). Without a budget every
// selected cycle gets its own limit. The optimum fills the best coefficients first.
func SelectLinear(coefs, limits []float64, budget float64, k int) []Allocation {
	if k < 1 {
		k = 1
	}
	order := make([]int, 0, len(coefs))
	for i, c := range coefs {
		if c > 1 {
			order = append(order, i)
		}
	}
	sort.SliceStable(order, func(a, b int) bool { return coefs[order[a]] > coefs[order[b]] })

	limit := func(i int) float64 {
		if i < len(limits) && limits[i] > 0 {
			return limits[i]
		}
		return math.Inf(1)
	}

	remaining := budget
	if remaining <= 0 {
		remaining = math.Inf(1)
	}
	var out []Allocation
	for _, i := range order {
		if len(out) == k || remaining <= 0 {
			break
		}
		amount := math.Min(limit(i), remaining)
		if math.IsInf(amount, 1) {
			continue
		}
		remaining -= amount
		out = append(out, Allocation{Index: i, Amount: amount, Profit: LinearProfit(coefs[i], amount)})
	}
	return out
}
