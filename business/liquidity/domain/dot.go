package domain

import (
	"bufio"
	"fmt"
	"io"
)

// WriteDOT renders the graph in Graphviz DOT. label maps a token to its node label;
// nil falls back to the hex address.
func WriteDOT(w io.Writer, g *Graph, label func(Token) string) error {
	if label == nil {
		label = func(t Token) string { return t.Hex() }
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintln(bw, "digraph liquidity {")
	fmt.Fprintln(bw, "  rankdir=LR;")
	fmt.Fprintln(bw, "  node [shape=ellipse];")

	for t := range g.Nodes() {
		fmt.Fprintf(bw, "  %q [label=%q];\n", t.Hex(), label(t))
	}
	for e := range g.Edges() {
		fmt.Fprintf(bw, "  %q -> %q [label=%q];\n", e.From.Hex(), e.To.Hex(), string(e.Pool))
	}

	fmt.Fprintln(bw, "}")
	return bw.Flush()
}
