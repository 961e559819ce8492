package domain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

var (
	tokA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	tokB = common.HexToAddress("0x000000000000000000000000000000000000000b")
	tokC = common.HexToAddress("0x000000000000000000000000000000000000000c")
	tokD = common.HexToAddress("0x000000000000000000000000000000000000000d")
)

var fee997 = decimal.RequireFromString("0.997")

func cp(id string, a, b Token, ra, rb int64) *Pool {
	return NewConstantProduct(PoolID(id), a, b, big.NewInt(ra), big.NewInt(rb), 0, 0, fee997)
}

func mustRegistry(t *testing.T, pools ...*Pool) *Registry {
	t.Helper()
	r, err := NewRegistryFrom(pools)
	if err != nil {
		t.Fatalf("NewRegistryFrom: %v", err)
	}
	return r
}

func triangle(t *testing.T) *Registry {
	t.Helper()
	return mustRegistry(t,
		cp("ab", tokA, tokB, 1000, 2000),
		cp("bc", tokB, tokC, 2000, 3000),
		cp("ca", tokC, tokA, 3000, 1000),
	)
}
