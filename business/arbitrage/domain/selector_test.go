package domain

import (
	"testing"

	liquidity "github.com/fd1az/cfmm-arb/business/liquidity/domain"
)

func cand(key string, input, profit float64, pools ...liquidity.PoolID) Candidate {
	return Candidate{Key: key, Input: input, Profit: profit, Pools: pools}
}

func keys(sel Selection) []string {
	out := make([]string, len(sel.Picked))
	for i, c := range sel.Picked {
		out[i] = c.Key
	}
	return out
}

func TestSelector_Select(t *testing.T) {
	cands := []Candidate{
		cand("a", 5, 1.0, "p1", "p2"),
		cand("b", 3, 2.0, "p2", "p3"),
		cand("c", 4, 1.5, "p4", "p5"),
		cand("d", 1, 0.5, "p1", "p6"),
		cand("loss", 1, -0.2, "p7", "p8"),
	}

	tests := []struct {
		name string
		sel  Selector
		want []string
	}{
		{"single best", Selector{MaxSelected: 1, RequireDisjoint: true}, []string{"b"}},
		{"two disjoint", Selector{MaxSelected: 2, RequireDisjoint: true}, []string{"b", "c"}},
		{"three disjoint", Selector{MaxSelected: 3, RequireDisjoint: true}, []string{"b", "c", "d"}},
		{"overlap allowed", Selector{MaxSelected: 3}, []string{"b", "c", "a"}},
		// b+c needs 7; a+b needs 8 but overlaps; b+d fits in 4.
		{"budget binds", Selector{MaxSelected: 2, Budget: 4, RequireDisjoint: true}, []string{"b", "d"}},
		{"budget excludes the best", Selector{MaxSelected: 2, Budget: 2, RequireDisjoint: true}, []string{"d"}},
		{"min profit", Selector{MaxSelected: 3, RequireDisjoint: true, MinProfit: 1.2}, []string{"b", "c"}},
		{"nothing fits", Selector{MaxSelected: 1, Budget: 0.5}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sel := tt.sel.Select(cands)
			got := keys(sel)
			if len(got) != len(tt.want) {
				t.Fatalf("picked %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("picked %v, want %v", got, tt.want)
				}
			}
			if !sel.Exact {
				t.Error("small search should be exact")
			}
			var profit float64
			for _, c := range sel.Picked {
				profit += c.Profit
			}
			if !near(profit, sel.TotalProfit, 1e-12) {
				t.Errorf("total profit %v, sum %v", sel.TotalProfit, profit)
			}
		})
	}
}

func TestSelector_HigherProfitWins(t *testing.T) {
	res := []CycleResult{
		{Key: "low", Cycle: loop(), Input: 1, Profit: 0.3},
		{Key: "high", Cycle: loop(), Input: 2, Profit: 0.9},
	}
	var cands []Candidate
	for _, r := range res {
		cands = append(cands, CandidateFrom(r, 1.1))
	}
	sel := NewSelector().Select(cands)
	if len(sel.Picked) != 1 || sel.Picked[0].Key != "high" {
		t.Fatalf("picked %v", keys(sel))
	}
}

func TestSelector_TieBreakByKey(t *testing.T) {
	cands := []Candidate{cand("z", 1, 1, "p1"), cand("m", 1, 1, "p2")}
	for range 3 {
		if got := keys(NewSelector().Select(cands)); got[0] != "m" {
			t.Fatalf("picked %v, want m", got)
		}
	}
}

func TestLinearProfit(t *testing.T) {
	if got := LinearProfit(1.05, 100); !near(got, 5, 1e-12) {
		t.Errorf("got %v", got)
	}
	if got := LinearProfit(0.9, 10); got >= 0 {
		t.Errorf("losing coefficient gave %v", got)
	}
}

func TestSelectLinear(t *testing.T) {
	coefs := []float64{1.02, 0.98, 1.10, 1.05}

	tests := []struct {
		name   string
		limits []float64
		budget float64
		k      int
		want   []Allocation
	}{
		{
			name:   "budget into best coefficient",
			budget: 100, k: 1,
			want: []Allocation{{Index: 2, Amount: 100, Profit: 10}},
		},
		{
			name:   "limits spill over",
			limits: []float64{50, 50, 30, 50},
			budget: 100, k: 3,
			want: []Allocation{{Index: 2, Amount: 30, Profit: 3}, {Index: 3, Amount: 50, Profit: 2.5}, {Index: 0, Amount: 20, Profit: 0.4}},
		},
		{
			name:   "no budget uses limits",
			limits: []float64{10, 10, 10, 10},
			k:      2,
			want:   []Allocation{{Index: 2, Amount: 10, Profit: 1}, {Index: 3, Amount: 10, Profit: 0.5}},
		},
		{
			name: "no budget no limits",
			k:    2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectLinear(coefs, tt.limits, tt.budget, tt.k)
			if len(got) != len(tt.want) {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			for i := range got {
				g, w := got[i], tt.want[i]
				if g.Index != w.Index || !near(g.Amount, w.Amount, 1e-9) || !near(g.Profit, w.Profit, 1e-9) {
					t.Errorf("alloc %d = %+v, want %+v", i, g, w)
				}
			}
		})
	}
}
