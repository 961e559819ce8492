package domain

import (
	"math/big"
	"sort"
	"sync"

	"github.com/fd1az/cfmm-arb/internal/apperror"
)

// Registry holds validated pools indexed by id and by unordered token pair.
// A registry is read-only while a search runs; refreshes produce a new registry.
type Registry struct {
	mu     sync.RWMutex
	order  []PoolID
	byID   map[PoolID]*Pool
	byPair map[PairKey][]PoolID
	tokens map[Token]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byID:   make(map[PoolID]*Pool),
		byPair: make(map[PairKey][]PoolID),
		tokens: make(map[Token]struct{}),
	}
}

// NewRegistryFrom validates and adds every pool, failing on the first bad one.
func NewRegistryFrom(pools []*Pool) (*Registry, error) {
	r := NewRegistry()
	for _, p := range pools {
		if err := r.Add(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Add validates p and indexes it. Invalid pools fail with InvalidPoolInvariant and
// repeated ids with DuplicatePool. Parallel pools over the same pair are kept distinct.
func (r *Registry) Add(p *Pool) error {
	if p == nil {
		return apperror.New(apperror.CodeInvalidPoolInvariant, apperror.WithContext("nil pool"))
	}
	if err := p.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byID[p.ID]; dup {
		return apperror.New(apperror.CodeDuplicatePool, apperror.WithContext(string(p.ID)))
	}
	r.byID[p.ID] = p
	r.order = append(r.order, p.ID)
	for i := range p.Tokens {
		r.tokens[p.Tokens[i]] = struct{}{}
		for j := i + 1; j < len(p.Tokens); j++ {
			k := NewPairKey(p.Tokens[i], p.Tokens[j])
			r.byPair[k] = append(r.byPair[k], p.ID)
		}
	}
	return nil
}

// Get returns the pool with the given id.
func (r *Registry) Get(id PoolID) (*Pool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byID[id]
	return p, ok
}

// Between returns every pool that trades a against b, in insertion order.
func (r *Registry) Between(a, b Token) []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := r.byPair[NewPairKey(a, b)]
	out := make([]*Pool, 0, len(ids))
	for _, id := range ids {
		out = append(out, r.byID[id])
	}
	return out
}

// Pools returns all pools in insertion order.
func (r *Registry) Pools() []*Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Pool, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id])
	}
	return out
}

// Tokens returns every token that appears in some pool, sorted by address.
func (r *Registry) Tokens() []Token {
	r.mu.RLock()
	out := make([]Token, 0, len(r.tokens))
	for t := range r.tokens {
		out = append(out, t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return TokenLess(out[i], out[j]) })
	return out
}

// HasToken reports whether t appears in some pool.
func (r *Registry) HasToken(t Token) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tokens[t]
	return ok
}

// Len returns the number of pools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// WithReserves returns a new registry where the listed pools carry updated reserves.
// Unknown ids are ignored; updates that fail validation are returned as an error and
// leave the receiver untouched.
func (r *Registry) WithReserves(updates map[PoolID][]*big.Int) (*Registry, error) {
	next := NewRegistry()
	for _, p := range r.Pools() {
		if res, ok := updates[p.ID]; ok {
			p = p.WithReserves(res)
		}
		if err := next.Add(p); err != nil {
			return nil, err
		}
	}
	return next, nil
}

// Clone returns a shallow copy sharing the immutable pool values.
func (r *Registry) Clone() *Registry {
	next, _ := r.WithReserves(nil)
	return next
}
