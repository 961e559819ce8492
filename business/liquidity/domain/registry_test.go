package domain

import (
	"math/big"
	"testing"

	"github.com/fd1az/cfmm-arb/internal/apperror"
)

func TestRegistry_AddRejectsInvalid(t *testing.T) {
	r := NewRegistry()
	err := r.Add(cp("zero", tokA, tokB, 0, 10))
	if !apperror.HasCode(err, apperror.CodeInvalidPoolInvariant) {
		t.Fatalf("expected INVALID_POOL_INVARIANT, got %v", err)
	}
	if r.Len() != 0 {
		t.Errorf("invalid pool was registered")
	}
}

func TestRegistry_AddRejectsDuplicate(t *testing.T) {
	r := mustRegistry(t, cp("p1", tokA, tokB, 100, 10))
	err := r.Add(cp("p1", tokA, tokC, 100, 10))
	if !apperror.HasCode(err, apperror.CodeDuplicatePool) {
		t.Fatalf("expected DUPLICATE_POOL, got %v", err)
	}
}

func TestRegistry_BetweenKeepsParallelPools(t *testing.T) {
	r := mustRegistry(t,
		cp("p1", tokA, tokB, 100, 10),
		cp("p2", tokB, tokA, 9, 90),
		cp("p3", tokA, tokC, 5, 5),
	)

	got := r.Between(tokB, tokA)
	if len(got) != 2 {
		t.Fatalf("Between = %d pools, want 2", len(got))
	}
	if got[0].ID != "p1" || got[1].ID != "p2" {
		t.Errorf("Between order = %s,%s, want insertion order", got[0].ID, got[1].ID)
	}
	if len(r.Between(tokB, tokC)) != 0 {
		t.Error("expected no pool between B and C")
	}
}

func TestRegistry_Tokens(t *testing.T) {
	r := triangle(t)
	toks := r.Tokens()
	if len(toks) != 3 || toks[0] != tokA || toks[2] != tokC {
		t.Errorf("Tokens = %v", toks)
	}
	if !r.HasToken(tokB) || r.HasToken(tokD) {
		t.Error("HasToken mismatch")
	}
}

func TestRegistry_WithReserves(t *testing.T) {
	r := triangle(t)

	next, err := r.WithReserves(map[PoolID][]*big.Int{"ab": {big.NewInt(5), big.NewInt(6)}})
	if err != nil {
		t.Fatalf("WithReserves: %v", err)
	}
	p, _ := next.Get("ab")
	if p.Reserves[0].Int64() != 5 {
		t.Errorf("reserve not updated")
	}
	orig, _ := r.Get("ab")
	if orig.Reserves[0].Int64() != 1000 {
		t.Errorf("original registry mutated")
	}

	if _, err := r.WithReserves(map[PoolID][]*big.Int{"ab": {big.NewInt(0), big.NewInt(6)}}); err == nil {
		t.Error("expected zero reserve update to fail")
	}

	if r.Clone().Len() != r.Len() {
		t.Error("Clone lost pools")
	}
}
