package asset

import (
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Registry is a thread-safe token metadata table.
type Registry struct {
	byAddress map[common.Address]*Asset
	bySymbol  map[string]*Asset
	mu        sync.RWMutex
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byAddress: make(map[common.Address]*Asset),
		bySymbol:  make(map[string]*Asset),
	}
}

// Register adds or replaces metadata for a token.
func (r *Registry) Register(a *Asset) {
	if a == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.byAddress[a.Address()] = a
	r.bySymbol[strings.ToUpper(a.Symbol())] = a
}

// Get returns metadata by address.
func (r *Registry) Get(addr common.Address) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.byAddress[addr]
	return a, ok
}

// Resolve returns registered metadata or an Unknown placeholder.
func (r *Registry) Resolve(addr common.Address) *Asset {
	if a, ok := r.Get(addr); ok {
		return a
	}
	return Unknown(addr)
}

// BySymbol returns metadata by case-insensitive symbol.
func (r *Registry) BySymbol(symbol string) (*Asset, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.bySymbol[strings.ToUpper(symbol)]
	return a, ok
}

// Symbol returns the display symbol for addr.
func (r *Registry) Symbol(addr common.Address) string {
	return r.Resolve(addr).Symbol()
}

// All returns every registered asset sorted by symbol.
func (r *Registry) All() []*Asset {
	r.mu.RLock()
	out := make([]*Asset, 0, len(r.byAddress))
	for _, a := range r.byAddress {
		out = append(out, a)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Symbol() < out[j].Symbol() })
	return out
}

// Count returns the number of registered assets.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byAddress)
}
