package book

import "sort"

// OrderBook keeps both sides of one asset's book as sorted slices:
// bids by price descending, asks by price ascending, ties broken by
// ascending ID (earlier orders first). Fully filled orders stay in the
// sequence with Filled == Amount unless the owner purges them.
//
// Not safe for concurrent use; the engine serializes access.
type OrderBook struct {
	symbol string
	bids   []*Order
	asks   []*Order
}

func NewOrderBook(symbol string) *OrderBook {
	return &OrderBook{symbol: symbol}
}

func (ob *OrderBook) Symbol() string { return ob.symbol }

// Insert places o at its price-time position on its own side.
func (ob *OrderBook) Insert(o *Order) {
	if o.Side == Buy {
		ob.bids = insertSorted(ob.bids, o, bidBefore)
	} else {
		ob.asks = insertSorted(ob.asks, o, askBefore)
	}
}

// bidBefore reports whether a ranks ahead of b on the buy side:
// higher price first, then earlier ID.
func bidBefore(a, b *Order) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	return a.ID < b.ID
}

// askBefore reports whether a ranks ahead of b on the sell side:
// lower price first, then earlier ID.
func askBefore(a, b *Order) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	return a.ID < b.ID
}

func insertSorted(side []*Order, o *Order, before func(a, b *Order) bool) []*Order {
	i := sort.Search(len(side), func(i int) bool {
		return before(o, side[i])
	})
	side = append(side, nil)
	copy(side[i+1:], side[i:])
	side[i] = o
	return side
}

// Walk visits the side's live orders in priority order. The callback
// may mutate the orders it sees; returning false stops the walk.
func (ob *OrderBook) Walk(side Side, fn func(*Order) bool) {
	for _, o := range ob.side(side) {
		if !fn(o) {
			return
		}
	}
}

// Orders returns a deep-copied snapshot of one side in priority order.
func (ob *OrderBook) Orders(side Side) []*Order {
	src := ob.side(side)
	out := make([]*Order, len(src))
	for i, o := range src {
		out[i] = o.Clone()
	}
	return out
}

// Len returns the number of resting orders on a side, including any
// retained fully filled ones.
func (ob *OrderBook) Len(side Side) int {
	return len(ob.side(side))
}

// PurgeFilled drops fully filled orders from a side and returns how
// many were removed. Relative order of the rest is preserved.
func (ob *OrderBook) PurgeFilled(side Side) int {
	src := ob.side(side)
	kept := src[:0]
	for _, o := range src {
		if !o.IsFilled() {
			kept = append(kept, o)
		}
	}
	removed := len(src) - len(kept)
	for i := len(kept); i < len(src); i++ {
		src[i] = nil
	}
	if side == Buy {
		ob.bids = kept
	} else {
		ob.asks = kept
	}
	return removed
}

func (ob *OrderBook) side(s Side) []*Order {
	if s == Buy {
		return ob.bids
	}
	return ob.asks
}
