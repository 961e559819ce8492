// Package domain contains the liquidity model: pools, the pool registry, the token graph
// and cycle enumeration.
package domain

import (
	"bytes"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/cfmm-arb/internal/apperror"
	"github.com/fd1az/cfmm-arb/internal/asset"
)

// Token identifies an ERC20 token by contract address.
type Token = common.Address

// PoolID identifies a pool. For on-chain pools this is the lowercase pair address.
type PoolID string

// Kind is the pool invariant family.
type Kind uint8

const (
	KindUnknown Kind = iota
	// ConstantProduct is the x·y = k invariant over exactly two tokens.
	ConstantProduct
	// WeightedGeometricMean is Π R_j^w_j = k with Σ w_j = 1 over two or more tokens.
	WeightedGeometricMean
	// ConstantSum is Σ R_j = k.
	ConstantSum
)

var kindNames = map[Kind]string{
	ConstantProduct:       "constant_product",
	WeightedGeometricMean: "weighted",
	ConstantSum:           "constant_sum",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// ParseKind accepts the snapshot spellings of a pool kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "constant_product", "cpmm", "uniswapv2", "xyk":
		return ConstantProduct, nil
	case "weighted", "weighted_geometric_mean", "balancer":
		return WeightedGeometricMean, nil
	case "constant_sum", "csmm", "stable":
		return ConstantSum, nil
	default:
		return KindUnknown, fmt.Errorf("unknown pool kind %q", s)
	}
}

// weightSumTolerance bounds |Σ w − 1| for weighted pools.
const weightSumTolerance = 1e-9

// Pool is one AMM pool snapshot. Reserves are raw token units.
type Pool struct {
	ID       PoolID
	Kind     Kind
	Tokens   []Token
	Reserves []*big.Int
	Decimals []uint8
	// Fee is the multiplicative input factor, e.g. 0.997 for a 0.3% fee.
	Fee decimal.Decimal
	// Tax is a single transfer-tax fraction applied on input, 0 for ordinary tokens.
	Tax     decimal.Decimal
	Weights []decimal.Decimal
}

// NewConstantProduct builds a two-token constant-product pool with zero tax.
func NewConstantProduct(id PoolID, a, b Token, ra, rb *big.Int, decA, decB uint8, fee decimal.Decimal) *Pool {
	return &Pool{
		ID:       id,
		Kind:     ConstantProduct,
		Tokens:   []Token{a, b},
		Reserves: []*big.Int{ra, rb},
		Decimals: []uint8{decA, decB},
		Fee:      fee,
	}
}

// TokenA returns the first token.
func (p *Pool) TokenA() Token { return p.Tokens[0] }

// TokenB returns the second token.
func (p *Pool) TokenB() Token { return p.Tokens[1] }

// IndexOf returns the position of t in the pool, or -1.
func (p *Pool) IndexOf(t Token) int {
	for i, pt := range p.Tokens {
		if pt == t {
			return i
		}
	}
	return -1
}

// Contains reports whether t is one of the pool's tokens.
func (p *Pool) Contains(t Token) bool {
	return p.IndexOf(t) >= 0
}

// ReserveFloat returns reserve i in whole-token units. Conversion to float64 loses
// precision beyond 53 bits, which the constraint builder accepts.
func (p *Pool) ReserveFloat(i int) float64 {
	return asset.RawToFloat(p.Reserves[i], p.Decimals[i])
}

// Gamma is the effective input multiplier fee·(1−tax).
func (p *Pool) Gamma() float64 {
	g, _ := p.Fee.Mul(decimal.NewFromInt(1).Sub(p.Tax)).Float64()
	return g
}

// Weight returns the normalized weight of token i. Non-weighted pools report 1/n.
func (p *Pool) Weight(i int) float64 {
	if p.Kind != WeightedGeometricMean || len(p.Weights) != len(p.Tokens) {
		return 1 / float64(len(p.Tokens))
	}
	w, _ := p.Weights[i].Float64()
	return w
}

// Validate checks the invariant preconditions. Pools failing it never reach constraint building.
func (p *Pool) Validate() error {
	fail := func(format string, args ...any) error {
		return apperror.New(apperror.CodeInvalidPoolInvariant,
			apperror.WithContext(fmt.Sprintf("pool %s: %s", p.ID, fmt.Sprintf(format, args...))))
	}

	if p.ID == "" {
		return fail("empty id")
	}
	if p.Kind == KindUnknown {
		return fail("unknown kind")
	}
	n := len(p.Tokens)
	if n < 2 {
		return fail("needs at least 2 tokens, has %d", n)
	}
	if len(p.Reserves) != n || len(p.Decimals) != n {
		return fail("tokens/reserves/decimals length mismatch (%d/%d/%d)", n, len(p.Reserves), len(p.Decimals))
	}
	seen := make(map[Token]struct{}, n)
	for i, t := range p.Tokens {
		if _, dup := seen[t]; dup {
			return fail("duplicate token %s", t.Hex())
		}
		seen[t] = struct{}{}

		r := p.Reserves[i]
		if r == nil || r.Sign() <= 0 {
			return fail("reserve of %s must be positive", t.Hex())
		}
		if f := p.ReserveFloat(i); f <= 0 || math.IsInf(f, 0) {
			return fail("reserve of %s is not representable", t.Hex())
		}
	}

	one := decimal.NewFromInt(1)
	if !p.Fee.IsPositive() || p.Fee.GreaterThan(one) {
		return fail("fee %s outside (0,1]", p.Fee)
	}
	if p.Tax.IsNegative() || p.Tax.GreaterThanOrEqual(one) {
		return fail("tax %s outside [0,1)", p.Tax)
	}

	switch p.Kind {
	case ConstantProduct:
		if n != 2 {
			return fail("constant product needs exactly 2 tokens, has %d", n)
		}
	case WeightedGeometricMean:
		if len(p.Weights) != n {
			return fail("weights length %d, tokens %d", len(p.Weights), n)
		}
		sum := 0.0
		for i, w := range p.Weights {
			if !w.IsPositive() {
				return fail("weight %d must be positive", i)
			}
			f, _ := w.Float64()
			sum += f
		}
		if math.Abs(sum-1) > weightSumTolerance {
			return fail("weights sum to %g", sum)
		}
	}
	return nil
}

// WithReserves returns a copy of the pool with new reserves.
func (p *Pool) WithReserves(reserves []*big.Int) *Pool {
	cp := *p
	cp.Reserves = make([]*big.Int, len(reserves))
	for i, r := range reserves {
		if r != nil {
			cp.Reserves[i] = new(big.Int).Set(r)
		}
	}
	return &cp
}

// AmountOut is the exact output for swapping amountIn of tokenIn into tokenOut, in whole-token
// units. It returns 0 for tokens outside the pool.
func (p *Pool) AmountOut(tokenIn, tokenOut Token, amountIn float64) float64 {
	i, j := p.IndexOf(tokenIn), p.IndexOf(tokenOut)
	if i < 0 || j < 0 || i == j || amountIn <= 0 {
		return 0
	}
	rIn, rOut := p.ReserveFloat(i), p.ReserveFloat(j)
	in := amountIn * p.Gamma()

	switch p.Kind {
	case ConstantSum:
		return math.Min(in, rOut)
	case WeightedGeometricMean:
		wi, wo := p.Weight(i), p.Weight(j)
		return rOut * (1 - math.Pow(rIn/(rIn+in), wi/wo))
	default:
		return rOut * in / (rIn + in)
	}
}

// SpotRate is the marginal output per unit input at zero size, fee included.
func (p *Pool) SpotRate(tokenIn, tokenOut Token) float64 {
	i, j := p.IndexOf(tokenIn), p.IndexOf(tokenOut)
	if i < 0 || j < 0 || i == j {
		return 0
	}
	g := p.Gamma()
	switch p.Kind {
	case ConstantSum:
		return g
	case WeightedGeometricMean:
		return g * (p.ReserveFloat(j) / p.Weight(j)) / (p.ReserveFloat(i) / p.Weight(i))
	default:
		return g * p.ReserveFloat(j) / p.ReserveFloat(i)
	}
}

// PairKey is the unordered token pair used for O(1) pool lookup.
type PairKey struct {
	Lo, Hi Token
}

// NewPairKey orders a and b so that Lo < Hi bytewise.
func NewPairKey(a, b Token) PairKey {
	if bytes.Compare(a.Bytes(), b.Bytes()) > 0 {
		a, b = b, a
	}
	return PairKey{Lo: a, Hi: b}
}

// TokenLess orders tokens by address bytes.
func TokenLess(a, b Token) bool {
	return bytes.Compare(a[:], b[:]) < 0
}
