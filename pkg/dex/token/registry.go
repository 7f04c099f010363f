// Package token maps trading symbols to their external asset handles
// and distinguishes the quote currency from tradable assets.
package token

import (
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/dexcore/pkg/dex/settlement"
)

// MaxSymbolLen mirrors the fixed-width ticker the upstream contracts
// use (bytes32).
const MaxSymbolLen = 32

// Listing is one registered token, as exposed to read-only callers.
type Listing struct {
	Symbol string
	Handle settlement.Token
	Quote  bool
}

// Registry manages the set of listed tokens in a thread-safe manner.
// Exactly one symbol is designated as the quote currency at
// construction; it may be listed (so it can be deposited and withdrawn)
// but is never tradable as an asset.
type Registry struct {
	mu     sync.RWMutex
	quote  string
	tokens map[string]settlement.Token
}

// NewRegistry creates an empty registry with the given quote symbol.
func NewRegistry(quoteSymbol string) *Registry {
	return &Registry{
		quote:  quoteSymbol,
		tokens: make(map[string]settlement.Token),
	}
}

// Quote returns the designated quote currency symbol.
func (r *Registry) Quote() string { return r.quote }

// Add lists a token under symbol. Duplicate symbols are rejected.
func (r *Registry) Add(symbol string, handle settlement.Token) error {
	if symbol == "" {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > MaxSymbolLen {
		return fmt.Errorf("symbol %q exceeds %d bytes", symbol, MaxSymbolLen)
	}
	if handle == nil {
		return fmt.Errorf("cannot list nil token handle")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[symbol]; exists {
		return fmt.Errorf("token %s already listed", symbol)
	}
	r.tokens[symbol] = handle
	return nil
}

// Resolve returns the external handle for symbol.
func (r *Registry) Resolve(symbol string) (settlement.Token, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tokens[symbol]
	return t, ok
}

// IsListed reports whether symbol is registered at all.
func (r *Registry) IsListed(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.tokens[symbol]
	return ok
}

// IsQuote reports whether symbol is the quote currency.
func (r *Registry) IsQuote(symbol string) bool {
	return symbol == r.quote
}

// IsTradable reports whether symbol is listed and may have an order
// book. The quote currency is never tradable.
func (r *Registry) IsTradable(symbol string) bool {
	return !r.IsQuote(symbol) && r.IsListed(symbol)
}

// List returns all listings sorted by symbol.
func (r *Registry) List() []Listing {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Listing, 0, len(r.tokens))
	for sym, h := range r.tokens {
		out = append(out, Listing{Symbol: sym, Handle: h, Quote: sym == r.quote})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Count returns the number of listed tokens.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tokens)
}
