package domain

import (
	"fmt"
	"math"

	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
)

// MarginalRate is the product of per-leg spot rates, fees included: the output per unit of
// input for an infinitesimal trade. A cycle can only be profitable when it exceeds 1.
func MarginalRate(cycle liquidity.Cycle, reg *liquidity.Registry) (float64, error) {
	rate := 1.0
	err := eachLeg(cycle, reg, func(p *liquidity.Pool, in, out liquidity.Token) {
		rate *= p.SpotRate(in, out)
	})
	return rate, err
}

// RoundTrip pushes input through every leg with the exact swap formulas and returns the
// amount of the start token that comes back.
func RoundTrip(cycle liquidity.Cycle, reg *liquidity.Registry, input float64) (float64, error) {
	legs, err := Path(cycle, reg, input)
	if err != nil {
		return 0, err
	}
	return legs[len(legs)-1].Out, nil
}

// Path is RoundTrip with the amount in and out of every leg.
func Path(cycle liquidity.Cycle, reg *liquidity.Registry, input float64) ([]LegAmount, error) {
	legs := make([]LegAmount, 0, cycle.Len())
	amount := input
	err := eachLeg(cycle, reg, func(p *liquidity.Pool, in, out liquidity.Token) {
		next := p.AmountOut(in, out, amount)
		legs = append(legs, LegAmount{Pool: p.ID, TokenIn: in, TokenOut: out, In: amount, Out: next})
		amount = next
	})
	if err != nil {
		return nil, err
	}
	if len(legs) == 0 {
		return nil, apperror.New(apperror.CodeDegenerateCycle, apperror.WithContext("cycle has no legs"))
	}
	return legs, nil
}

// BestInput maximises the exact round-trip profit over [0, hi] by golden section. The
// profit of a chain of these invariants is concave in the input, so the search converges to
// the constrained optimum.
func BestInput(cycle liquidity.Cycle, reg *liquidity.Registry, hi float64) (float64, error) {
	profit := func(x float64) (float64, error) {
		out, err := RoundTrip(cycle, reg, x)
		return out - x, err
	}
	if hi <= 0 {
		return 0, nil
	}

	const invPhi = 0.6180339887498949
	lo := 0.0
	a := hi - invPhi*(hi-lo)
	b := lo + invPhi*(hi-lo)
	fa, err := profit(a)
	if err != nil {
		return 0, err
	}
	fb, err := profit(b)
	if err != nil {
		return 0, err
	}
	for i := 0; i < 200 && hi-lo > 1e-12*math.Max(1, hi); i++ {
		if fa < fb {
			lo, a, fa = a, b, fb
			b = lo + invPhi*(hi-lo)
			if fb, err = profit(b); err != nil {
				return 0, err
			}
		} else {
			hi, b, fb = b, a, fa
			a = hi - invPhi*(hi-lo)
			if fa, err = profit(a); err != nil {
				return 0, err
			}
		}
	}
	return (lo + hi) / 2, nil
}

func eachLeg(cycle liquidity.Cycle, reg *liquidity.Registry, fn func(*liquidity.Pool, liquidity.Token, liquidity.Token)) error {
	if len(cycle.Tokens) != len(cycle.Pools)+1 {
		return apperror.New(apperror.CodeDegenerateCycle,
			apperror.WithContext(fmt.Sprintf("%d tokens for %d pools", len(cycle.Tokens), len(cycle.Pools))))
	}
	for k, id := range cycle.Pools {
		p, ok := reg.Get(id)
		if !ok {
			return apperror.New(apperror.CodeGraphLookupMiss,
				apperror.WithContext(fmt.Sprintf("pool %s not in registry", id)))
		}
		fn(p, cycle.Tokens[k], cycle.Tokens[k+1])
	}
	return nil
}
