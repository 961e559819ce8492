package domain

import (
	"math"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
)

var (
	tok0 = common.HexToAddress("0x0000000000000000000000000000000000000010")
	tok1 = common.HexToAddress("0x0000000000000000000000000000000000000011")
	tok2 = common.HexToAddress("0x0000000000000000000000000000000000000012")
)

var fee997 = decimal.RequireFromString("0.997")

func cpPool(id string, a, b liquidity.Token, ra, rb int64, fee decimal.Decimal) *liquidity.Pool {
	return liquidity.NewConstantProduct(liquidity.PoolID(id), a, b, big.NewInt(ra), big.NewInt(rb), 0, 0, fee)
}

func registryOf(t *testing.T, pools ...*liquidity.Pool) *liquidity.Registry {
	t.Helper()
	r, err := liquidity.NewRegistryFrom(pools)
	if err != nil {
		t.Fatalf("NewRegistryFrom: %v", err)
	}
	return r
}

// loop is the two-pool cycle tok0 -> p2 -> tok1 -> p1 -> tok0.
func loop() liquidity.Cycle {
	return liquidity.Cycle{
		Tokens: []liquidity.Token{tok0, tok1, tok0},
		Pools:  []liquidity.PoolID{"p2", "p1"},
	}
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}
