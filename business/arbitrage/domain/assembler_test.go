package domain

import (
	"math/big"
	"testing"

	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
	"github.com/fd1az/cfmm-arb/internal/apperror"
)

func TestAssembler_Layout(t *testing.T) {
	reg := registryOf(t,
		cpPool("p1", tok0, tok1, 100, 10, fee997),
		cpPool("p2", tok0, tok1, 90, 20, fee997),
	)
	prob, err := NewAssembler(nil).Assemble(loop(), reg)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	sys := prob.System

	if sys.NumVars() != 8 {
		t.Fatalf("vars = %d, want 4 per leg", sys.NumVars())
	}
	// Pool-major, token-minor, (lambda, delta) pairs.
	for i, v := range sys.Vars {
		wantKind := Lambda
		if i%2 == 1 {
			wantKind = Delta
		}
		wantPool := liquidity.PoolID("p2")
		if i >= 4 {
			wantPool = "p1"
		}
		if v.Kind != wantKind || v.Pool != wantPool {
			t.Errorf("var %d = %+v", i, v)
		}
	}

	want := []Leg{
		{Pool: "p2", TokenIn: tok0, TokenOut: tok1, In: 1, Out: 2},
		{Pool: "p1", TokenIn: tok1, TokenOut: tok0, In: 7, Out: 4},
	}
	for k, l := range prob.Legs {
		if l != want[k] {
			t.Errorf("leg %d = %+v, want %+v", k, l, want[k])
		}
	}

	// Two pins per leg plus one strict link.
	if len(sys.Equalities) != 5 {
		t.Errorf("equalities = %d, want 5", len(sys.Equalities))
	}
	if sys.ConeType() != NonNegativeOrthant || !sys.Approximate {
		t.Errorf("tangent problem: cone %s approximate %v", sys.ConeType(), sys.Approximate)
	}

	// Intermediate token is worth 0, so only the start token shows in the cost.
	for i, c := range sys.C {
		switch i {
		case 0:
			if c != -1 {
				t.Errorf("C[0] = %v, want -1 (lambda of start token)", c)
			}
		case 1, 5:
			if c != 1 {
				t.Errorf("C[%d] = %v, want 1 (delta of start token)", i, c)
			}
		case 4:
			if c != -1 {
				t.Errorf("C[4] = %v, want -1", c)
			}
		default:
			if c != 0 {
				t.Errorf("C[%d] = %v, want 0", i, c)
			}
		}
	}
}

func TestAssembler_FeasiblePoint(t *testing.T) {
	reg := registryOf(t,
		cpPool("p1", tok0, tok1, 100, 10, fee997),
		cpPool("p2", tok0, tok1, 90, 20, fee997),
	)
	prob, err := NewAssembler(nil).Assemble(loop(), reg)
	if err != nil {
		t.Fatal(err)
	}

	x := make([]float64, prob.System.NumVars())
	x[prob.Legs[0].In] = 4
	x[prob.Legs[0].Out] = 0.8
	x[prob.Legs[1].In] = 0.8
	x[prob.Legs[1].Out] = 7
	if v := prob.System.Check(x, 1e-12); len(v) != 0 {
		t.Fatalf("feasible trade rejected: %v", v)
	}

	res := prob.Interpret(&Solution{X: x, Iterations: 3})
	if res.Input != 4 || res.Output != 7 || !near(res.Profit, 3, 1e-12) || !near(res.Objective, 3, 1e-12) {
		t.Errorf("result = %+v", res)
	}
	if res.Key != loop().Key() || len(res.Legs) != 2 || res.Legs[0].Out != 0.8 || res.Iterations != 3 {
		t.Errorf("legs = %+v", res.Legs)
	}

	// Strict linking rejects leftovers; relaxed linking drops them.
	x[prob.Legs[1].In] = 0.5
	x[prob.Legs[1].Out] = 4
	if v := prob.System.Check(x, 1e-12); len(v) == 0 {
		t.Error("strict linking admitted a leftover")
	}
	relaxed := NewAssembler(nil)
	relaxed.Linking = Relaxed
	rp, err := relaxed.Assemble(loop(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if v := rp.System.Check(x, 1e-12); len(v) != 0 {
		t.Errorf("relaxed linking rejected a leftover: %v", v)
	}
	x[prob.Legs[1].In] = 0.9
	if v := rp.System.Check(x, 1e-12); len(v) == 0 {
		t.Error("relaxed linking created tokens")
	}
}

func TestAssembler_InputCapAndValues(t *testing.T) {
	reg := registryOf(t,
		cpPool("p1", tok0, tok1, 100, 10, fee997),
		cpPool("p2", tok0, tok1, 90, 20, fee997),
	)
	a := NewAssembler(&Builder{Formulation: SecondOrderCone, TradeCap: 0})
	a.InputCap = 2
	a.MarketValues = MarketValues{tok1: 4}

	prob, err := a.Assemble(loop(), reg)
	if err != nil {
		t.Fatal(err)
	}
	if prob.System.ConeType() != SecondOrder || len(prob.System.Cones) != 2 {
		t.Fatalf("expected two cone blocks, got %d", len(prob.System.Cones))
	}
	if prob.Values[tok0] != 1 || prob.Values[tok1] != 4 {
		t.Errorf("values = %v", prob.Values)
	}

	x := make([]float64, prob.System.NumVars())
	x[prob.Legs[0].In] = 2.5
	found := false
	for _, v := range prob.System.Check(x, 1e-12) {
		if v.Label == "input cap" {
			found = true
		}
	}
	if !found {
		t.Error("input cap not enforced")
	}
}

func TestAssembler_Rejects(t *testing.T) {
	reg := registryOf(t,
		cpPool("p1", tok0, tok1, 100, 10, fee997),
		cpPool("p2", tok0, tok1, 90, 20, fee997),
		cpPool("p3", tok1, tok2, 50, 50, fee997),
	)

	tests := []struct {
		name  string
		cycle liquidity.Cycle
		code  apperror.Code
	}{
		{
			name:  "pool reused",
			cycle: liquidity.Cycle{Tokens: []liquidity.Token{tok0, tok1, tok0}, Pools: []liquidity.PoolID{"p1", "p1"}},
			code:  apperror.CodeDegenerateCycle,
		},
		{
			name:  "not closed",
			cycle: liquidity.Cycle{Tokens: []liquidity.Token{tok0, tok1, tok2}, Pools: []liquidity.PoolID{"p1", "p3"}},
			code:  apperror.CodeDegenerateCycle,
		},
		{
			name:  "single leg",
			cycle: liquidity.Cycle{Tokens: []liquidity.Token{tok0, tok0}, Pools: []liquidity.PoolID{"p1"}},
			code:  apperror.CodeDegenerateCycle,
		},
		{
			name: "interior repeat",
			cycle: liquidity.Cycle{
				Tokens: []liquidity.Token{tok0, tok1, tok0, tok1, tok0},
				Pools:  []liquidity.PoolID{"p1", "p2", "p1", "p2"},
			},
			code: apperror.CodeDegenerateCycle,
		},
		{
			name:  "unknown pool",
			cycle: liquidity.Cycle{Tokens: []liquidity.Token{tok0, tok1, tok0}, Pools: []liquidity.PoolID{"p1", "p9"}},
			code:  apperror.CodeGraphLookupMiss,
		},
		{
			name:  "pool without leg tokens",
			cycle: liquidity.Cycle{Tokens: []liquidity.Token{tok0, tok1, tok0}, Pools: []liquidity.PoolID{"p1", "p3"}},
			code:  apperror.CodeGraphLookupMiss,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prob, err := NewAssembler(nil).Assemble(tt.cycle, reg)
			if !apperror.HasCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
			if prob != nil {
				t.Error("problem built for a rejected cycle")
			}
			if Classify(err) != tt.code {
				t.Errorf("Classify = %s", Classify(err))
			}
		})
	}
}

func TestParseLinking(t *testing.T) {
	if l, err := ParseLinking("relaxed"); err != nil || l != Relaxed {
		t.Errorf("relaxed: %v %v", l, err)
	}
	if l, err := ParseLinking(""); err != nil || l != Strict {
		t.Errorf("default: %v %v", l, err)
	}
	if _, err := ParseLinking("loose"); err == nil {
		t.Error("expected error")
	}
}

func TestProblem_Reprice(t *testing.T) {
	decPool := func(id string, ra, rb int64) *liquidity.Pool {
		return liquidity.NewConstantProduct(liquidity.PoolID(id), tok0, tok1, big.NewInt(ra), big.NewInt(rb), 2, 2, fee997)
	}
	thin := registryOf(t, decPool("p1", 10000, 1000), decPool("p2", 9000, 920))
	wide := registryOf(t,
		cpPool("p1", tok0, tok1, 100, 10, fee997),
		cpPool("p2", tok0, tok1, 90, 20, fee997),
	)

	tests := []struct {
		name        string
		reg         *liquidity.Registry
		formulation Formulation
		input       float64
		wantInput   float64
		inputTol    float64
		wantProfit  float64
	}{
		// The tangent rows promise 0.1449 at the 10% cap; the pools pay a loss there.
		{"tangent overstates a thin loop", thin, Tangent, 9, 0.37747, 1e-3, 0.0030261104890740853},
		{"tangent at a binding cap", wide, Tangent, 4.513540621865596, 4.513540621865596, 1e-9, 4.158286811377860},
		{"exact system keeps its input", wide, SecondOrderCone, 2, 2, 0, 2.142997299698835},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prob, err := NewAssembler(&Builder{Formulation: tt.formulation, TradeCap: 0.1}).Assemble(loop(), tt.reg)
			if err != nil {
				t.Fatal(err)
			}
			res := CycleResult{Key: loop().Key(), Cycle: loop(), Input: tt.input, Profit: 0.1449, Estimate: 0.1449}
			if err := prob.Reprice(&res, tt.reg); err != nil {
				t.Fatal(err)
			}

			if !near(res.Input, tt.wantInput, tt.inputTol) {
				t.Errorf("input = %v, want %v", res.Input, tt.wantInput)
			}
			if !near(res.Profit, tt.wantProfit, 1e-6) {
				t.Errorf("profit = %v, want %v", res.Profit, tt.wantProfit)
			}
			out, err := RoundTrip(loop(), tt.reg, res.Input)
			if err != nil {
				t.Fatal(err)
			}
			if !near(res.Output, out, 1e-12) || !near(res.Profit, out-res.Input, 1e-12) {
				t.Errorf("output %v profit %v disagree with round trip %v", res.Output, res.Profit, out)
			}
			if res.Legs[1].In != res.Legs[0].Out {
				t.Errorf("legs not chained: %+v", res.Legs)
			}
			if res.Estimate != 0.1449 {
				t.Errorf("estimate overwritten: %v", res.Estimate)
			}
		})
	}
}
