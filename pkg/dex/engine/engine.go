// Package engine is the accounting and matching core: it validates and
// executes deposits, withdrawals and orders against the token registry,
// the balance ledger and the per-asset order books.
//
// Every mutating operation runs inside one exclusive critical section
// and is all-or-nothing: validation, matching and settlement either all
// take effect or none do.
package engine

import (
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexcore/pkg/dex/book"
	"github.com/uhyunpark/dexcore/pkg/dex/ledger"
	"github.com/uhyunpark/dexcore/pkg/dex/settlement"
	"github.com/uhyunpark/dexcore/pkg/dex/token"
)

// Options tune engine behavior.
type Options struct {
	// PurgeFilled removes fully filled resting orders from their book
	// instead of retaining them with filled == amount.
	PurgeFilled bool

	// RecentTradeCap bounds the in-memory trade window served to the
	// API. Defaults to 512.
	RecentTradeCap int
}

// Engine owns all exchange state. The store may be nil for an
// ephemeral instance (tests, devnet without persistence).
type Engine struct {
	mu  sync.Mutex
	log *zap.SugaredLogger

	registry *token.Registry
	ledger   *ledger.Ledger
	store    *ledger.Store

	books  map[string]*book.OrderBook
	nextID uint64

	purgeFilled bool
	recent      []*book.Trade
	recentCap   int
	onTrade     func(*book.Trade)
}

// New builds an engine around the registry, recovering balances,
// resting orders and the order counter from the store if one is given.
func New(reg *token.Registry, store *ledger.Store, logger *zap.SugaredLogger, opts Options) (*Engine, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if opts.RecentTradeCap <= 0 {
		opts.RecentTradeCap = 512
	}

	e := &Engine{
		log:         logger,
		registry:    reg,
		ledger:      ledger.NewLedger(),
		store:       store,
		books:       make(map[string]*book.OrderBook),
		nextID:      1,
		purgeFilled: opts.PurgeFilled,
		recentCap:   opts.RecentTradeCap,
	}

	if store != nil {
		if err := store.LoadBalances(e.ledger); err != nil {
			return nil, fmt.Errorf("failed to recover balances: %w", err)
		}
		orders, err := store.LoadOrders()
		if err != nil {
			return nil, fmt.Errorf("failed to recover orders: %w", err)
		}
		// Ascending ID order, so time priority survives recovery.
		for _, o := range orders {
			e.book(o.Symbol).Insert(o)
		}
		next, err := store.NextOrderID()
		if err != nil {
			return nil, fmt.Errorf("failed to recover order counter: %w", err)
		}
		e.nextID = next
		logger.Infow("engine_recovered", "orders", len(orders), "next_order_id", next)
	}
	return e, nil
}

// Quote returns the quote currency symbol.
func (e *Engine) Quote() string { return e.registry.Quote() }

// SetTradeHandler installs a callback invoked once per executed fill,
// after the operation committed. The handler runs inside the engine's
// critical section and must not call back into the engine.
func (e *Engine) SetTradeHandler(fn func(*book.Trade)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTrade = fn
}

// AddToken lists a token. Admin only; duplicates are rejected.
func (e *Engine) AddToken(symbol string, handle settlement.Token) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.registry.Add(symbol, handle); err != nil {
		return err
	}
	e.log.Infow("token_listed", "symbol", symbol, "address", handle.Address().Hex())
	return nil
}

// Deposit pulls amount from the trader's wallet into exchange custody
// and credits the ledger. Gateway failures propagate verbatim and
// leave the ledger untouched.
func (e *Engine) Deposit(trader common.Address, symbol string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("deposit amount must be positive")
	}
	tok, ok := e.registry.Resolve(symbol)
	if !ok {
		return reject(ErrUnknownToken, msgUnknownToken)
	}

	if err := tok.TransferIn(trader, amount); err != nil {
		return err
	}
	if err := e.ledger.Credit(trader, symbol, amount); err != nil {
		return err
	}

	e.log.Infow("deposit", "trader", trader.Hex(), "symbol", symbol, "amount", amount.String())
	return e.persist(func(b *ledger.Batch) error {
		return b.SaveBalance(trader, symbol, e.ledger.Balance(trader, symbol))
	})
}

// Withdraw debits the ledger and releases amount from custody to the
// trader's wallet. The debit is rolled back if the transfer-out fails,
// so no partial effect survives.
func (e *Engine) Withdraw(trader common.Address, symbol string, amount *big.Int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("withdraw amount must be positive")
	}
	tok, ok := e.registry.Resolve(symbol)
	if !ok {
		return reject(ErrUnknownToken, msgUnknownToken)
	}
	if e.ledger.Balance(trader, symbol).Cmp(amount) < 0 {
		return reject(ErrInsufficientLedgerBalance, msgLedgerBalance)
	}

	// Decrement before the external transfer so a double-withdraw can
	// never observe the old balance.
	if err := e.ledger.Debit(trader, symbol, amount); err != nil {
		return err
	}
	if err := tok.TransferOut(trader, amount); err != nil {
		if rbErr := e.ledger.Credit(trader, symbol, amount); rbErr != nil {
			e.log.Errorw("withdraw_rollback_failed", "trader", trader.Hex(), "symbol", symbol, "err", rbErr)
		}
		return err
	}

	e.log.Infow("withdraw", "trader", trader.Hex(), "symbol", symbol, "amount", amount.String())
	return e.persist(func(b *ledger.Batch) error {
		return b.SaveBalance(trader, symbol, e.ledger.Balance(trader, symbol))
	})
}

// BalanceOf returns the trader's available ledger balance for symbol.
func (e *Engine) BalanceOf(trader common.Address, symbol string) *big.Int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Balance(trader, symbol)
}

// Orders returns a snapshot of one side of a symbol's book in priority
// order. Unknown symbols yield an empty slice, like the upstream
// contract's bare storage read.
func (e *Engine) Orders(symbol string, side book.Side) []*book.Order {
	e.mu.Lock()
	defer e.mu.Unlock()

	ob, ok := e.books[symbol]
	if !ok {
		return []*book.Order{}
	}
	return ob.Orders(side)
}

// RecentTrades returns up to limit trades for symbol, newest first.
// The in-memory window serves the common case; when it holds nothing
// for the symbol (fresh start after a restart), the persisted history
// is consulted instead.
func (e *Engine) RecentTrades(symbol string, limit int) []*book.Trade {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]*book.Trade, 0, limit)
	for i := len(e.recent) - 1; i >= 0 && len(out) < limit; i-- {
		if e.recent[i].Symbol == symbol {
			out = append(out, e.recent[i])
		}
	}
	if len(out) == 0 && e.store != nil {
		trades, err := e.store.LoadRecentTrades(symbol, limit)
		if err != nil {
			e.log.Errorw("trade_history_load_failed", "symbol", symbol, "err", err)
			return out
		}
		return trades
	}
	return out
}

// checkTradable rejects unlisted symbols and the quote currency.
func (e *Engine) checkTradable(symbol string) error {
	if !e.registry.IsListed(symbol) {
		return reject(ErrUnknownToken, msgUnknownToken)
	}
	if e.registry.IsQuote(symbol) {
		return reject(ErrNotTradable, fmt.Sprintf("cannot trade %s", symbol))
	}
	return nil
}

// quoteBalanceMsg renders "dai balance too low" for quote symbol DAI.
func (e *Engine) quoteBalanceMsg() string {
	return strings.ToLower(e.registry.Quote()) + " balance too low"
}

// book returns the order book for symbol, creating it on first use.
// Books exist only for tradable assets, never the quote currency.
func (e *Engine) book(symbol string) *book.OrderBook {
	ob, ok := e.books[symbol]
	if !ok {
		ob = book.NewOrderBook(symbol)
		e.books[symbol] = ob
	}
	return ob
}

// newOrder allocates the next ID from the system-wide counter.
func (e *Engine) newOrder(trader common.Address, symbol string, amount *big.Int, price uint64, side book.Side) *book.Order {
	o := &book.Order{
		ID:        e.nextID,
		Trader:    trader,
		Symbol:    symbol,
		Side:      side,
		Price:     price,
		Amount:    new(big.Int).Set(amount),
		Filled:    new(big.Int),
		CreatedAt: time.Now().UnixMilli(),
	}
	e.nextID++
	return o
}

// persist runs fn against a fresh store batch and commits it. The
// in-memory state is already committed by the time persist runs; a
// store failure is surfaced to the caller and logged, but does not
// unwind the operation. An error from here therefore means "applied
// but not durably recorded", never "rejected" — callers must not
// resubmit the operation on a persistence error.
func (e *Engine) persist(fn func(b *ledger.Batch) error) error {
	if e.store == nil {
		return nil
	}
	b := e.store.NewBatch()
	if err := fn(b); err != nil {
		b.Close()
		return fmt.Errorf("failed to stage writes: %w", err)
	}
	if err := b.Commit(); err != nil {
		e.log.Errorw("persist_failed", "err", err)
		return fmt.Errorf("failed to persist operation: %w", err)
	}
	return nil
}
