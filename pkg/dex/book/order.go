// Package book holds the per-asset order books: a buy side and a sell
// side, each a price-time ordered sequence of resting orders.
package book

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Side of an order.
type Side int8

const (
	Buy Side = iota
	Sell
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Opposite returns the side an incoming order matches against.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Order is a resting limit order. ID comes from a single system-wide
// counter and is strictly increasing, so it doubles as the time
// component of price-time priority. Amounts are 18-decimal fixed point;
// Price is an integer tick in the quote currency.
//
// Invariant: 0 <= Filled <= Amount. Only the matching engine moves
// Filled, and only upward.
type Order struct {
	ID        uint64         `json:"id"`
	Trader    common.Address `json:"trader"`
	Symbol    string         `json:"symbol"`
	Side      Side           `json:"side"`
	Price     uint64         `json:"price"`
	Amount    *big.Int       `json:"amount"`
	Filled    *big.Int       `json:"filled"`
	CreatedAt int64          `json:"createdAt"` // Unix milliseconds
}

// Remaining returns the unfilled quantity as a fresh value.
func (o *Order) Remaining() *big.Int {
	return new(big.Int).Sub(o.Amount, o.Filled)
}

// IsFilled reports whether the order is fully consumed.
func (o *Order) IsFilled() bool {
	return o.Filled.Cmp(o.Amount) >= 0
}

// Clone returns a deep copy, safe to hand outside the engine lock.
func (o *Order) Clone() *Order {
	cp := *o
	cp.Amount = new(big.Int).Set(o.Amount)
	cp.Filled = new(big.Int).Set(o.Filled)
	return &cp
}

// Trade is one executed fill between an incoming (taker) order and a
// resting (maker) order. The price is always the maker's price.
type Trade struct {
	ID         uint64         `json:"id"`
	Symbol     string         `json:"symbol"`
	Price      uint64         `json:"price"`
	Qty        *big.Int       `json:"qty"`
	TakerOrder uint64         `json:"takerOrder"`
	MakerOrder uint64         `json:"makerOrder"`
	Taker      common.Address `json:"taker"`
	Maker      common.Address `json:"maker"`
	TakerSide  Side           `json:"takerSide"`
	Timestamp  int64          `json:"timestamp"` // Unix milliseconds
}
