package domain

import (
	"fmt"
	"math"

	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
)

// Formulation selects how constant-product invariants become constraints.
type Formulation uint8

const (
	// Tangent is the supporting hyperplane at the current reserves. It is an outer
	// approximation: exact at zero trade, optimistic for large trades.
	Tangent Formulation = iota
	// SecondOrderCone encodes the hyperbolic invariant exactly as a rotated cone.
	SecondOrderCone
)

func (f Formulation) String() string {
	if f == SecondOrderCone {
		return "soc"
	}
	return "tangent"
}

// ParseFormulation accepts "tangent" (or empty) and "soc".
func ParseFormulation(s string) (Formulation, error) {
	switch s {
	case "", "tangent":
		return Tangent, nil
	case "soc", "second_order_cone":
		return SecondOrderCone, nil
	}
	return Tangent, fmt.Errorf("unknown formulation %q", s)
}

// DefaultTradeCap limits each deposit and withdrawal to this fraction of the pool reserve.
const DefaultTradeCap = 0.1

// Slot is the (lambda, delta) pair for one token of one pool.
type Slot struct {
	Token      liquidity.Token
	TokenIndex int
	Lambda     int
	Delta      int
}

// MarketValues prices tokens in a common numéraire. Missing tokens are worth 0, except the
// cycle's start token which defaults to 1.
type MarketValues map[liquidity.Token]float64

// Of returns the value of t for a cycle starting at start.
func (m MarketValues) Of(t, start liquidity.Token) float64 {
	if v, ok := m[t]; ok {
		return v
	}
	if t == start {
		return 1
	}
	return 0
}

// Builder turns pool invariants into rows of a System.
type Builder struct {
	Formulation Formulation
	// TradeCap is the per-token trade limit as a fraction of reserves; 0 disables it.
	TradeCap float64
}

// NewBuilder returns a tangent builder with the default trade cap.
func NewBuilder() *Builder {
	return &Builder{Formulation: Tangent, TradeCap: DefaultTradeCap}
}

// Append adds the rows for pool at the variable offsets in slots and the pool's share of the
// objective. values must already resolve to concrete numbers per token.
func (b *Builder) Append(sys *System, pool *liquidity.Pool, slots []Slot, values func(liquidity.Token) float64) error {
	if len(slots) == 0 {
		return nil
	}
	if pool.Kind == liquidity.ConstantProduct && len(slots) != 2 {
		return b.invalid(pool, fmt.Sprintf("constant product needs both tokens, got %d slots", len(slots)))
	}
	linear, eq, cones := len(sys.Linear), len(sys.Equalities), len(sys.Cones)

	gamma := pool.Gamma()
	reserves := make([]float64, len(slots))
	for j, s := range slots {
		if s.TokenIndex < 0 || s.TokenIndex >= len(pool.Tokens) || pool.Tokens[s.TokenIndex] != s.Token {
			return b.invalid(pool, fmt.Sprintf("slot token %s does not match pool", s.Token.Hex()))
		}
		reserves[j] = pool.ReserveFloat(s.TokenIndex)
		if reserves[j] <= 0 {
			return b.invalid(pool, fmt.Sprintf("reserve of %s is %g", s.Token.Hex(), reserves[j]))
		}

		v := values(s.Token)
		sys.C[s.Lambda] -= v
		sys.C[s.Delta] += v

		b.tokenRows(sys, pool, s, reserves[j], gamma)
	}

	switch pool.Kind {
	case liquidity.ConstantProduct:
		b.constantProduct(sys, pool, slots, reserves, gamma)
	case liquidity.WeightedGeometricMean:
		b.weighted(sys, pool, slots, reserves, gamma)
	case liquidity.ConstantSum:
		b.constantSum(sys, pool, slots, gamma)
	default:
		return b.invalid(pool, "unknown kind")
	}

	if !sys.finiteFrom(linear, eq, cones) {
		return b.invalid(pool, "non-finite coefficient")
	}
	return nil
}

func (b *Builder) tokenRows(sys *System, pool *liquidity.Pool, s Slot, reserve, gamma float64) {
	tag := fmt.Sprintf("%s/%s", pool.ID, s.Token.Hex())
	sys.AddLe("nonneg lambda "+tag, []int{s.Lambda}, []float64{-1}, 0)
	sys.AddLe("nonneg delta "+tag, []int{s.Delta}, []float64{-1}, 0)
	// reserve + γδ − λ ≥ 0
	sys.AddLe("reserve "+tag, []int{s.Lambda, s.Delta}, []float64{1, -gamma}, reserve)
	if b.TradeCap > 0 {
		limit := b.TradeCap * reserve
		sys.AddLe("cap lambda "+tag, []int{s.Lambda}, []float64{1}, limit)
		sys.AddLe("cap delta "+tag, []int{s.Delta}, []float64{1}, limit)
	}
}

// constantProduct adds (R_a+Δ_a)(R_b+Δ_b) ≥ R_a·R_b, with Δ_j = γδ_j − λ_j.
func (b *Builder) constantProduct(sys *System, pool *liquidity.Pool, slots []Slot, r []float64, gamma float64) {
	a, c := slots[0], slots[1]
	label := "invariant " + string(pool.ID)

	if b.Formulation == SecondOrderCone {
		sys.AddCone(Cone{
			Label: label,
			Rows: []Row{
				{Idx: []int{a.Delta, a.Lambda, c.Delta, c.Lambda}, Val: []float64{-gamma, 1, -gamma, 1}, RHS: r[0] + r[1]},
				{RHS: 2 * math.Sqrt(r[0]*r[1])},
				{Idx: []int{a.Delta, a.Lambda, c.Delta, c.Lambda}, Val: []float64{-gamma, 1, gamma, -1}, RHS: r[0] - r[1]},
			},
		})
		return
	}

	// Tangent plane at the reserve point: R_b·Δ_a + R_a·Δ_b ≥ 0.
	sys.AddLe(label,
		[]int{a.Delta, a.Lambda, c.Delta, c.Lambda},
		[]float64{-r[1] * gamma, r[1], -r[0] * gamma, r[0]},
		0)
	sys.MarkApproximate(fmt.Sprintf("pool %s: constant product linearised at current reserves", pool.ID))
}

// weighted adds Σ w_j·Δ_j/R_j ≥ 0 over the touched tokens, the first-order expansion of
// Π (R_j+Δ_j)^w_j ≥ Π R_j^w_j.
func (b *Builder) weighted(sys *System, pool *liquidity.Pool, slots []Slot, r []float64, gamma float64) {
	idx := make([]int, 0, 2*len(slots))
	val := make([]float64, 0, 2*len(slots))
	for j, s := range slots {
		w := pool.Weight(s.TokenIndex)
		idx = append(idx, s.Delta, s.Lambda)
		val = append(val, -w*gamma/r[j], w/r[j])
	}
	sys.AddLe("invariant "+string(pool.ID), idx, val, 0)
	sys.MarkApproximate(fmt.Sprintf("pool %s: weighted invariant linearised", pool.ID))
}

// constantSum adds Σ Δ_j ≥ 0.
func (b *Builder) constantSum(sys *System, pool *liquidity.Pool, slots []Slot, gamma float64) {
	idx := make([]int, 0, 2*len(slots))
	val := make([]float64, 0, 2*len(slots))
	for _, s := range slots {
		idx = append(idx, s.Delta, s.Lambda)
		val = append(val, -gamma, 1)
	}
	sys.AddLe("invariant "+string(pool.ID), idx, val, 0)
}

func (b *Builder) invalid(pool *liquidity.Pool, msg string) error {
	return apperror.New(apperror.CodeInvalidPoolInvariant,
		apperror.WithContext(fmt.Sprintf("pool %s: %s", pool.ID, msg)))
}
