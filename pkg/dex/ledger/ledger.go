// Package ledger tracks per-trader, per-symbol available balances and
// persists exchange state (balances, resting orders, trades) to Pebble.
package ledger

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// Ledger holds available balances in memory. Balances never go
// negative; the only writers are the engine's deposit, withdraw and
// trade settlement paths.
type Ledger struct {
	mu       sync.RWMutex
	balances map[common.Address]map[string]*big.Int
}

func NewLedger() *Ledger {
	return &Ledger{balances: make(map[common.Address]map[string]*big.Int)}
}

// Balance returns a copy of the trader's balance for symbol, zero if
// the trader has never touched it.
func (l *Ledger) Balance(trader common.Address, symbol string) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if syms, ok := l.balances[trader]; ok {
		if b, ok := syms[symbol]; ok {
			return new(big.Int).Set(b)
		}
	}
	return new(big.Int)
}

// Credit adds exactly amount to the trader's balance.
func (l *Ledger) Credit(trader common.Address, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("credit amount must be non-negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.add(trader, symbol, amount)
	return nil
}

// Debit subtracts exactly amount, refusing to go negative.
func (l *Ledger) Debit(trader common.Address, symbol string, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("debit amount must be non-negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.current(trader, symbol)
	if cur.Cmp(amount) < 0 {
		return fmt.Errorf("debit would make %s balance of %s negative", symbol, trader.Hex())
	}
	cur.Sub(cur, amount)
	return nil
}

// Delta is one signed balance adjustment inside a settlement batch.
type Delta struct {
	Trader common.Address
	Symbol string
	Amount *big.Int // positive credits, negative debits
}

// Apply settles a batch of deltas atomically: the net effect per
// (trader, symbol) is validated against the non-negativity invariant
// first, and either every delta lands or none do.
func (l *Ledger) Apply(deltas []Delta) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	type key struct {
		trader common.Address
		symbol string
	}
	net := make(map[key]*big.Int)
	for _, d := range deltas {
		if d.Amount == nil {
			return fmt.Errorf("nil delta for %s/%s", d.Trader.Hex(), d.Symbol)
		}
		k := key{d.Trader, d.Symbol}
		if cur, ok := net[k]; ok {
			cur.Add(cur, d.Amount)
		} else {
			net[k] = new(big.Int).Set(d.Amount)
		}
	}

	for k, n := range net {
		after := new(big.Int).Add(l.current(k.trader, k.symbol), n)
		if after.Sign() < 0 {
			return fmt.Errorf("settlement would make %s balance of %s negative", k.symbol, k.trader.Hex())
		}
	}
	for k, n := range net {
		l.add(k.trader, k.symbol, n)
	}
	return nil
}

// Set overwrites a balance outright. Used only when rebuilding state
// from the store on startup.
func (l *Ledger) Set(trader common.Address, symbol string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	syms, ok := l.balances[trader]
	if !ok {
		syms = make(map[string]*big.Int)
		l.balances[trader] = syms
	}
	syms[symbol] = new(big.Int).Set(amount)
}

// Each visits every (trader, symbol, balance) entry with copies.
func (l *Ledger) Each(fn func(trader common.Address, symbol string, amount *big.Int)) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	for trader, syms := range l.balances {
		for sym, b := range syms {
			fn(trader, sym, new(big.Int).Set(b))
		}
	}
}

// current returns the live balance entry, creating a zero one if
// needed. Lock must be held.
func (l *Ledger) current(trader common.Address, symbol string) *big.Int {
	syms, ok := l.balances[trader]
	if !ok {
		syms = make(map[string]*big.Int)
		l.balances[trader] = syms
	}
	b, ok := syms[symbol]
	if !ok {
		b = new(big.Int)
		syms[symbol] = b
	}
	return b
}

func (l *Ledger) add(trader common.Address, symbol string, amount *big.Int) {
	cur := l.current(trader, symbol)
	cur.Add(cur, amount)
}
