package domain

import (
	"bytes"
	"reflect"
	"slices"
	"strings"
	"testing"
)

func TestBuildGraph(t *testing.T) {
	g := BuildGraph(triangle(t))
	if g.NumNodes() != 3 || g.NumEdges() != 6 {
		t.Fatalf("graph = %d nodes, %d edges", g.NumNodes(), g.NumEdges())
	}
	out := g.Outgoing(tokA)
	if len(out) != 2 || out[0].To != tokB || out[1].To != tokC {
		t.Errorf("adjacency of A not sorted: %+v", out)
	}
	if g.Degree(tokB) != 2 {
		t.Errorf("Degree(B) = %d", g.Degree(tokB))
	}
}

func TestEnumerateCycles_Properties(t *testing.T) {
	r := mustRegistry(t,
		cp("ab", tokA, tokB, 1000, 2000),
		cp("ab2", tokA, tokB, 500, 1000),
		cp("bc", tokB, tokC, 2000, 3000),
		cp("ca", tokC, tokA, 3000, 1000),
		cp("cd", tokC, tokD, 10, 10),
		cp("da", tokD, tokA, 10, 10),
	)
	g := BuildGraph(r)

	cycles, stats := g.EnumerateCycles(tokA, EnumerateOptions{MaxLength: 4})
	if len(cycles) == 0 {
		t.Fatal("expected cycles")
	}
	if stats.Cycles != len(cycles) || stats.Truncated || stats.StartMissing {
		t.Errorf("stats = %+v", stats)
	}

	for _, c := range cycles {
		if c.Start() != tokA || c.Tokens[len(c.Tokens)-1] != tokA {
			t.Errorf("cycle %s does not start and end at A", c.Key())
		}
		if !c.IsClosed() {
			t.Errorf("cycle %s malformed", c.Key())
		}
		if !c.HasDistinctInterior() {
			t.Errorf("cycle %s repeats an interior token", c.Key())
		}
		if c.Len() > 4 {
			t.Errorf("cycle %s exceeds max length", c.Key())
		}
		for i, id := range c.Pools {
			p, ok := r.Get(id)
			if !ok || !p.Contains(c.Tokens[i]) || !p.Contains(c.Tokens[i+1]) {
				t.Errorf("cycle %s leg %d does not match pool %s", c.Key(), i, id)
			}
		}
	}

	keys := make(map[string]bool)
	for _, c := range cycles {
		keys[c.Key()] = true
	}
	for _, want := range []string{
		tokA.Hex() + ">ab>ab2",
		tokA.Hex() + ">ab>bc>ca",
		tokA.Hex() + ">ab2>bc>ca",
		tokA.Hex() + ">ab>bc>cd>da",
	} {
		if !keys[want] {
			t.Errorf("missing cycle %s", want)
		}
	}
}

func TestEnumerateCycles_Deterministic(t *testing.T) {
	g1 := BuildGraph(triangle(t))
	g2 := BuildGraph(triangle(t))

	a, _ := g1.EnumerateCycles(tokA, EnumerateOptions{MaxLength: 4})
	b, _ := g2.EnumerateCycles(tokA, EnumerateOptions{MaxLength: 4})
	if !reflect.DeepEqual(a, b) {
		t.Fatal("enumeration differs between runs")
	}

	want := []string{
		tokA.Hex() + ">ab>ab",
		tokA.Hex() + ">ab>bc>ca",
		tokA.Hex() + ">ca>ca",
		tokA.Hex() + ">ca>bc>ab",
	}
	var got []string
	for _, c := range a {
		got = append(got, c.Key())
	}
	if !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}

func TestEnumerateCycles_Bounds(t *testing.T) {
	g := BuildGraph(triangle(t))

	tests := []struct {
		name          string
		opts          EnumerateOptions
		wantCycles    int
		wantTruncated bool
	}{
		{"two legs", EnumerateOptions{MaxLength: 2}, 2, false},
		{"three legs", EnumerateOptions{MaxLength: 3}, 4, false},
		{"unlimited", EnumerateOptions{}, 4, false},
		{"max cycles", EnumerateOptions{MaxCycles: 3}, 3, true},
		{"max cycles exact", EnumerateOptions{MaxCycles: 4}, 4, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cycles, stats := g.EnumerateCycles(tokA, tt.opts)
			if len(cycles) != tt.wantCycles {
				t.Errorf("cycles = %d, want %d", len(cycles), tt.wantCycles)
			}
			if stats.Truncated != tt.wantTruncated {
				t.Errorf("Truncated = %v, want %v", stats.Truncated, tt.wantTruncated)
			}
		})
	}
}

func TestEnumerateCycles_MissingStart(t *testing.T) {
	g := BuildGraph(triangle(t))
	cycles, stats := g.EnumerateCycles(tokD, EnumerateOptions{})
	if len(cycles) != 0 || !stats.StartMissing {
		t.Errorf("got %d cycles, stats %+v", len(cycles), stats)
	}
}

func TestEnumerateCycles_ReportsPoolReuse(t *testing.T) {
	g := BuildGraph(triangle(t))
	cycles, _ := g.EnumerateCycles(tokA, EnumerateOptions{MaxLength: 2})
	for _, c := range cycles {
		if !c.ReusesPool() {
			t.Errorf("expected two-leg cycle %s to reuse its pool", c.Key())
		}
	}
}

func TestCycles_LazyMatchesEager(t *testing.T) {
	g := BuildGraph(triangle(t))
	eager, _ := g.EnumerateCycles(tokA, EnumerateOptions{MaxLength: 3})

	var lazy []Cycle
	for c := range g.Cycles(tokA, EnumerateOptions{MaxLength: 3}) {
		lazy = append(lazy, c)
	}
	if !reflect.DeepEqual(eager, lazy) {
		t.Error("lazy enumeration differs from eager")
	}

	n := 0
	for range g.Cycles(tokA, EnumerateOptions{}) {
		n++
		if n == 1 {
			break
		}
	}
	if n != 1 {
		t.Errorf("early break yielded %d", n)
	}
}

func TestGraph_PathExists(t *testing.T) {
	r := mustRegistry(t,
		cp("ab", tokA, tokB, 10, 10),
		cp("cd", tokC, tokD, 10, 10),
	)
	g := BuildGraph(r)
	if !g.PathExists(tokA, tokB) {
		t.Error("expected A->B")
	}
	if g.PathExists(tokA, tokC) {
		t.Error("did not expect A->C")
	}
}

func TestWriteDOT(t *testing.T) {
	g := BuildGraph(triangle(t))
	var buf bytes.Buffer
	labels := map[Token]string{tokA: "AAA", tokB: "BBB", tokC: "CCC"}
	if err := WriteDOT(&buf, g, func(tk Token) string { return labels[tk] }); err != nil {
		t.Fatalf("WriteDOT: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "digraph liquidity {") {
		t.Errorf("missing header: %s", out)
	}
	if strings.Count(out, "->") != 6 {
		t.Errorf("expected 6 edges in %s", out)
	}
	if !strings.Contains(out, `label="BBB"`) || !strings.Contains(out, `label="ca"`) {
		t.Errorf("labels missing: %s", out)
	}
}
