package domain

import (
	"iter"
	"strings"
)

// DefaultMaxCycleLength bounds edges per cycle when no option is given.
const DefaultMaxCycleLength = 4

// Cycle is a closed trade route. Tokens starts and ends at the same token and
// len(Pools) == len(Tokens)-1; Pools[i] trades Tokens[i] into Tokens[i+1].
type Cycle struct {
	Tokens []Token
	Pools  []PoolID
}

// Start returns the token the cycle begins and ends at.
func (c Cycle) Start() Token { return c.Tokens[0] }

// Len returns the number of legs.
func (c Cycle) Len() int { return len(c.Pools) }

// Key is a stable identifier: start token then the pool sequence.
func (c Cycle) Key() string {
	var sb strings.Builder
	sb.WriteString(c.Tokens[0].Hex())
	for _, p := range c.Pools {
		sb.WriteByte('>')
		sb.WriteString(string(p))
	}
	return sb.String()
}

// IsClosed reports start == end with consistent lengths and at least two legs.
func (c Cycle) IsClosed() bool {
	return len(c.Pools) >= 2 &&
		len(c.Tokens) == len(c.Pools)+1 &&
		c.Tokens[0] == c.Tokens[len(c.Tokens)-1]
}

// HasDistinctInterior reports that no token repeats except the closing start.
func (c Cycle) HasDistinctInterior() bool {
	seen := make(map[Token]struct{}, len(c.Tokens))
	for _, t := range c.Tokens[:len(c.Tokens)-1] {
		if _, dup := seen[t]; dup {
			return false
		}
		seen[t] = struct{}{}
	}
	return true
}

// ReusesPool reports that some pool appears on more than one leg.
func (c Cycle) ReusesPool() bool {
	seen := make(map[PoolID]struct{}, len(c.Pools))
	for _, p := range c.Pools {
		if _, dup := seen[p]; dup {
			return true
		}
		seen[p] = struct{}{}
	}
	return false
}

// EnumerateOptions bounds the search.
type EnumerateOptions struct {
	// MaxLength caps edges per cycle. 0 means unlimited.
	MaxLength int
	// MaxCycles caps the number of cycles returned. 0 means unlimited.
	MaxCycles int
}

// EnumerateStats describes one enumeration run.
type EnumerateStats struct {
	Cycles       int
	EdgesVisited int
	// Truncated is set when MaxCycles stopped the search before it was exhausted.
	Truncated bool
	// StartMissing is set when the start token is not in the graph.
	StartMissing bool
}

// EnumerateCycles lists every simple cycle through start, in deterministic order.
// Pool reuse is not filtered here.
func (g *Graph) EnumerateCycles(start Token, opts EnumerateOptions) ([]Cycle, EnumerateStats) {
	var out []Cycle
	stats := g.walk(start, opts, func(c Cycle) bool {
		out = append(out, c)
		return true
	})
	return out, stats
}

// Cycles yields the same sequence as EnumerateCycles lazily.
func (g *Graph) Cycles(start Token, opts EnumerateOptions) iter.Seq[Cycle] {
	return func(yield func(Cycle) bool) {
		g.walk(start, opts, yield)
	}
}

type frame struct {
	node Token
	next int
}

// walk is an explicit-stack depth-first search. Each frame owns its next-edge cursor;
// the path and on-path set are restored on backtrack so sibling branches can reuse nodes.
func (g *Graph) walk(start Token, opts EnumerateOptions, yield func(Cycle) bool) EnumerateStats {
	var stats EnumerateStats
	if !g.HasToken(start) {
		stats.StartMissing = true
		return stats
	}

	stack := []frame{{node: start}}
	tokens := []Token{start}
	var pools []PoolID
	onPath := map[Token]struct{}{start: {}}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		edges := g.adj[top.node]

		if top.next >= len(edges) {
			stack = stack[:len(stack)-1]
			if len(stack) > 0 {
				delete(onPath, top.node)
				tokens = tokens[:len(tokens)-1]
				pools = pools[:len(pools)-1]
			}
			continue
		}

		e := edges[top.next]
		top.next++
		stats.EdgesVisited++
		depth := len(pools)

		if e.To == start {
			if depth < 1 {
				continue
			}
			if opts.MaxCycles > 0 && stats.Cycles >= opts.MaxCycles {
				stats.Truncated = true
				return stats
			}
			c := Cycle{
				Tokens: append(append(make([]Token, 0, len(tokens)+1), tokens...), start),
				Pools:  append(append(make([]PoolID, 0, len(pools)+1), pools...), e.Pool),
			}
			stats.Cycles++
			if !yield(c) {
				return stats
			}
			continue
		}

		if _, visited := onPath[e.To]; visited {
			continue
		}
		// Pushing e.To costs one edge and closing back needs at least one more.
		if opts.MaxLength > 0 && depth+2 > opts.MaxLength {
			continue
		}

		onPath[e.To] = struct{}{}
		tokens = append(tokens, e.To)
		pools = append(pools, e.Pool)
		stack = append(stack, frame{node: e.To})
	}
	return stats
}
