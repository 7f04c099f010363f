package engine

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexcore/pkg/dex/book"
	"github.com/uhyunpark/dexcore/pkg/dex/ledger"
)

// fill is one planned execution against a resting maker order.
type fill struct {
	maker *book.Order
	qty   *big.Int
}

// CreateLimitOrder validates the order, matches it against the
// opposite side of the book, and rests it at its price-time position.
// The created order (including one fully consumed by matching) is
// returned alongside the trades it produced.
func (e *Engine) CreateLimitOrder(trader common.Address, symbol string, amount *big.Int, price uint64, side book.Side) (*book.Order, []*book.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkTradable(symbol); err != nil {
		return nil, nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, nil, fmt.Errorf("order amount must be positive")
	}

	if side == book.Sell {
		if e.ledger.Balance(trader, symbol).Cmp(amount) < 0 {
			return nil, nil, reject(ErrInsufficientAssetBalance, msgAssetBalance)
		}
	} else {
		// Worst case cost is amount at the limit price; matching only
		// ever executes at maker prices equal or better.
		cost := new(big.Int).Mul(amount, new(big.Int).SetUint64(price))
		if e.ledger.Balance(trader, e.registry.Quote()).Cmp(cost) < 0 {
			return nil, nil, reject(ErrInsufficientQuoteBalance, e.quoteBalanceMsg())
		}
	}

	o := e.newOrder(trader, symbol, amount, price, side)
	fills, err := e.planFills(o, true)
	if err != nil {
		return nil, nil, err
	}
	trades, err := e.commitFills(o, fills)
	if err != nil {
		return nil, nil, err
	}

	ob := e.book(symbol)
	ob.Insert(o)
	if e.purgeFilled {
		ob.PurgeFilled(side)
		ob.PurgeFilled(side.Opposite())
	}

	e.log.Infow("limit_order",
		"id", o.ID, "trader", trader.Hex(), "symbol", symbol,
		"side", side.String(), "price", price, "amount", amount.String(),
		"fills", len(trades))

	if err := e.persistMatch(o, fills, trades, true); err != nil {
		return nil, nil, err
	}
	return o.Clone(), trades, nil
}

// CreateMarketOrder matches immediately against the best resting
// orders and never rests: any remainder once the opposite side is
// exhausted is discarded (immediate-or-cancel).
//
// A SELL is validated against the trader's asset balance up front. A
// BUY has no price to validate against, so its quote balance is
// checked incrementally per counter-order during planning; a mid-plan
// shortfall rejects the whole order with zero effects.
func (e *Engine) CreateMarketOrder(trader common.Address, symbol string, amount *big.Int, side book.Side) ([]*book.Trade, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.checkTradable(symbol); err != nil {
		return nil, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("order amount must be positive")
	}
	if side == book.Sell {
		if e.ledger.Balance(trader, symbol).Cmp(amount) < 0 {
			return nil, reject(ErrInsufficientAssetBalance, msgAssetBalance)
		}
	}

	o := e.newOrder(trader, symbol, amount, 0, side)
	fills, err := e.planFills(o, false)
	if err != nil {
		return nil, err
	}
	trades, err := e.commitFills(o, fills)
	if err != nil {
		return nil, err
	}
	if e.purgeFilled {
		e.book(symbol).PurgeFilled(side.Opposite())
	}

	e.log.Infow("market_order",
		"id", o.ID, "trader", trader.Hex(), "symbol", symbol,
		"side", side.String(), "amount", amount.String(),
		"filled", o.Filled.String(), "fills", len(trades))

	if err := e.persistMatch(o, fills, trades, false); err != nil {
		return nil, err
	}
	return trades, nil
}

// planFills walks the opposite side in priority order and produces the
// fill plan without mutating anything. For market buys it also runs
// the incremental quote-balance check, simulating the quote flow of
// each planned fill.
func (e *Engine) planFills(taker *book.Order, isLimit bool) ([]fill, error) {
	remaining := taker.Remaining()

	var quoteAvail *big.Int
	marketBuy := !isLimit && taker.Side == book.Buy
	if marketBuy {
		quoteAvail = e.ledger.Balance(taker.Trader, e.registry.Quote())
	}

	var fills []fill
	var planErr error
	e.book(taker.Symbol).Walk(taker.Side.Opposite(), func(maker *book.Order) bool {
		if remaining.Sign() == 0 {
			return false
		}
		if maker.IsFilled() {
			// Retained fully filled orders keep their slot but never
			// match again.
			return true
		}
		if isLimit {
			// Sides are price-sorted, so the first incompatible maker
			// ends the pass.
			if taker.Side == book.Buy && maker.Price > taker.Price {
				return false
			}
			if taker.Side == book.Sell && maker.Price < taker.Price {
				return false
			}
		}

		qty := minBig(remaining, maker.Remaining())
		if marketBuy {
			cost := costOf(qty, maker.Price)
			if quoteAvail.Cmp(cost) < 0 {
				planErr = reject(ErrInsufficientQuoteBalance, e.quoteBalanceMsg())
				return false
			}
			quoteAvail.Sub(quoteAvail, cost)
			if maker.Trader == taker.Trader {
				// Self-trade: the quote leg flows straight back.
				quoteAvail.Add(quoteAvail, cost)
			}
		}

		fills = append(fills, fill{maker: maker, qty: qty})
		remaining.Sub(remaining, qty)
		return true
	})
	if planErr != nil {
		return nil, planErr
	}
	return fills, nil
}

// commitFills settles the planned fills: one atomic ledger application
// covering every leg, then the filled counters, trade records and the
// trade callback. Trades execute at the maker's price.
func (e *Engine) commitFills(taker *book.Order, fills []fill) ([]*book.Trade, error) {
	if len(fills) == 0 {
		return nil, nil
	}

	quote := e.registry.Quote()
	deltas := make([]ledger.Delta, 0, len(fills)*4)
	for _, f := range fills {
		cost := costOf(f.qty, f.maker.Price)
		buyer, seller := taker.Trader, f.maker.Trader
		if taker.Side == book.Sell {
			buyer, seller = f.maker.Trader, taker.Trader
		}
		deltas = append(deltas,
			ledger.Delta{Trader: seller, Symbol: taker.Symbol, Amount: new(big.Int).Neg(f.qty)},
			ledger.Delta{Trader: buyer, Symbol: taker.Symbol, Amount: new(big.Int).Set(f.qty)},
			ledger.Delta{Trader: buyer, Symbol: quote, Amount: new(big.Int).Neg(cost)},
			ledger.Delta{Trader: seller, Symbol: quote, Amount: new(big.Int).Set(cost)},
		)
	}
	if err := e.ledger.Apply(deltas); err != nil {
		// The plan guarantees every leg is funded; reaching this means
		// a broken invariant, and nothing has been mutated yet.
		return nil, fmt.Errorf("settlement failed: %w", err)
	}

	now := time.Now().UnixMilli()
	trades := make([]*book.Trade, 0, len(fills))
	for _, f := range fills {
		taker.Filled.Add(taker.Filled, f.qty)
		f.maker.Filled.Add(f.maker.Filled, f.qty)

		tr := &book.Trade{
			ID:         e.nextID,
			Symbol:     taker.Symbol,
			Price:      f.maker.Price,
			Qty:        new(big.Int).Set(f.qty),
			TakerOrder: taker.ID,
			MakerOrder: f.maker.ID,
			Taker:      taker.Trader,
			Maker:      f.maker.Trader,
			TakerSide:  taker.Side,
			Timestamp:  now,
		}
		e.nextID++
		trades = append(trades, tr)

		e.recent = append(e.recent, tr)
		if len(e.recent) > e.recentCap {
			e.recent = e.recent[len(e.recent)-e.recentCap:]
		}
		if e.onTrade != nil {
			e.onTrade(tr)
		}
	}
	return trades, nil
}

// persistMatch stages every mutation of one order operation into a
// single store batch: touched balances, updated or purged makers, the
// taker (if it rested), the trades and the order counter.
func (e *Engine) persistMatch(taker *book.Order, fills []fill, trades []*book.Trade, rested bool) error {
	return e.persist(func(b *ledger.Batch) error {
		quote := e.registry.Quote()
		type balKey struct {
			trader common.Address
			symbol string
		}
		touched := make(map[balKey]struct{})
		mark := func(trader common.Address) {
			touched[balKey{trader, taker.Symbol}] = struct{}{}
			touched[balKey{trader, quote}] = struct{}{}
		}
		mark(taker.Trader)
		for _, f := range fills {
			mark(f.maker.Trader)
		}
		for k := range touched {
			if err := b.SaveBalance(k.trader, k.symbol, e.ledger.Balance(k.trader, k.symbol)); err != nil {
				return err
			}
		}

		for _, f := range fills {
			if e.purgeFilled && f.maker.IsFilled() {
				if err := b.DeleteOrder(f.maker.ID); err != nil {
					return err
				}
			} else if err := b.SaveOrder(f.maker); err != nil {
				return err
			}
		}
		if rested && !(e.purgeFilled && taker.IsFilled()) {
			if err := b.SaveOrder(taker); err != nil {
				return err
			}
		}
		for _, tr := range trades {
			if err := b.SaveTrade(tr); err != nil {
				return err
			}
		}
		return b.SetNextOrderID(e.nextID)
	})
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func costOf(qty *big.Int, price uint64) *big.Int {
	return new(big.Int).Mul(qty, new(big.Int).SetUint64(price))
}
