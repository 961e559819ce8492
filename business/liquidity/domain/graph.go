package domain

import (
	"iter"
	"sort"
)

// Edge is a directed swap direction through one pool.
type Edge struct {
	From Token
	To   Token
	Pool PoolID
}

// Graph is the directed token graph: one edge per pool per ordered token pair.
type Graph struct {
	nodes []Token
	adj   map[Token][]Edge
	edges int
}

// BuildGraph derives the token graph from a registry. Adjacency lists are sorted by
// (to-token bytes, pool id) so traversal order does not depend on map iteration.
func BuildGraph(r *Registry) *Graph {
	g := &Graph{
		nodes: r.Tokens(),
		adj:   make(map[Token][]Edge),
	}
	for _, p := range r.Pools() {
		for _, from := range p.Tokens {
			for _, to := range p.Tokens {
				if from == to {
					continue
				}
				g.adj[from] = append(g.adj[from], Edge{From: from, To: to, Pool: p.ID})
				g.edges++
			}
		}
	}
	for _, list := range g.adj {
		sort.Slice(list, func(i, j int) bool {
			if list[i].To != list[j].To {
				return TokenLess(list[i].To, list[j].To)
			}
			return list[i].Pool < list[j].Pool
		})
	}
	return g
}

// Nodes yields every token in address order.
func (g *Graph) Nodes() iter.Seq[Token] {
	return func(yield func(Token) bool) {
		for _, t := range g.nodes {
			if !yield(t) {
				return
			}
		}
	}
}

// Edges yields every directed edge, grouped by source token in address order.
func (g *Graph) Edges() iter.Seq[Edge] {
	return func(yield func(Edge) bool) {
		for _, t := range g.nodes {
			for _, e := range g.adj[t] {
				if !yield(e) {
					return
				}
			}
		}
	}
}

// Outgoing returns the sorted edges leaving t. The slice must not be modified.
func (g *Graph) Outgoing(t Token) []Edge {
	return g.adj[t]
}

// HasToken reports whether t is a node.
func (g *Graph) HasToken(t Token) bool {
	_, ok := g.adj[t]
	return ok
}

// Degree returns the out-degree of t.
func (g *Graph) Degree(t Token) int {
	return len(g.adj[t])
}

// NumNodes returns the number of tokens.
func (g *Graph) NumNodes() int { return len(g.nodes) }

// NumEdges returns the number of directed edges.
func (g *Graph) NumEdges() int { return g.edges }

// PathExists reports whether to is reachable from from.
func (g *Graph) PathExists(from, to Token) bool {
	if !g.HasToken(from) || !g.HasToken(to) {
		return false
	}
	if from == to {
		return true
	}
	seen := map[Token]struct{}{from: {}}
	queue := []Token{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, e := range g.adj[cur] {
			if e.To == to {
				return true
			}
			if _, ok := seen[e.To]; ok {
				continue
			}
			seen[e.To] = struct{}{}
			queue = append(queue, e.To)
		}
	}
	return false
}
