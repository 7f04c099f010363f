package ledger

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexcore/pkg/dex/book"
)

// Store is the Pebble persistence layer behind the engine: balances,
// resting orders, trade history and the order ID counter. All writes
// for one engine operation go through a single Batch so the on-disk
// state moves atomically with the in-memory state.
type Store struct {
	db *pebble.DB
}

// NewStore opens (or creates) a Pebble database at path.
func NewStore(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20),
		MemTableSize:          32 << 20,
		L0CompactionThreshold: 2,
		MaxOpenFiles:          1000,
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveBalance persists one (trader, symbol) balance.
func (s *Store) SaveBalance(trader common.Address, symbol string, amount *big.Int) error {
	data, err := json.Marshal(amount)
	if err != nil {
		return fmt.Errorf("failed to marshal balance: %w", err)
	}
	if err := s.db.Set(balanceKey(trader, symbol), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save balance: %w", err)
	}
	return nil
}

// LoadBalances scans every persisted balance into the given ledger.
func (s *Store) LoadBalances(l *Ledger) error {
	prefix := []byte(prefixBalance)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("failed to open balance iterator: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		trader, symbol, err := balanceKeyParse(iter.Key())
		if err != nil {
			return err
		}
		amount := new(big.Int)
		if err := json.Unmarshal(iter.Value(), amount); err != nil {
			return fmt.Errorf("failed to unmarshal balance %q: %w", iter.Key(), err)
		}
		l.Set(trader, symbol, amount)
	}
	return nil
}

// SaveOrder persists a resting order.
func (s *Store) SaveOrder(o *book.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}
	if err := s.db.Set(orderKey(o.ID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save order: %w", err)
	}
	return nil
}

// DeleteOrder removes a purged order.
func (s *Store) DeleteOrder(id uint64) error {
	if err := s.db.Delete(orderKey(id), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete order %d: %w", id, err)
	}
	return nil
}

// LoadOrders returns all persisted orders in ascending ID order, which
// is also insertion order, so re-inserting them rebuilds every book
// with time priority intact.
func (s *Store) LoadOrders() ([]*book.Order, error) {
	prefix := []byte(prefixOrder)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open order iterator: %w", err)
	}
	defer iter.Close()

	var orders []*book.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o book.Order
		if err := json.Unmarshal(iter.Value(), &o); err != nil {
			return nil, fmt.Errorf("failed to unmarshal order %q: %w", iter.Key(), err)
		}
		orders = append(orders, &o)
	}
	return orders, nil
}

// NextOrderID returns the persisted counter, or 1 on a fresh store.
func (s *Store) NextOrderID() (uint64, error) {
	data, closer, err := s.db.Get([]byte(keyNextID))
	if err == pebble.ErrNotFound {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get order counter: %w", err)
	}
	defer closer.Close()

	id, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("corrupt order counter %q: %w", data, err)
	}
	return id, nil
}

// LoadRecentTrades returns up to limit trades for a symbol, newest
// first.
func (s *Store) LoadRecentTrades(symbol string, limit int) ([]*book.Trade, error) {
	prefix := tradePrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open trade iterator: %w", err)
	}
	defer iter.Close()

	var trades []*book.Trade
	for iter.Last(); iter.Valid() && len(trades) < limit; iter.Prev() {
		var tr book.Trade
		if err := json.Unmarshal(iter.Value(), &tr); err != nil {
			return nil, fmt.Errorf("failed to unmarshal trade %q: %w", iter.Key(), err)
		}
		trades = append(trades, &tr)
	}
	return trades, nil
}

// Batch groups the writes of one engine operation into an atomic
// Pebble batch.
type Batch struct {
	batch *pebble.Batch
}

func (s *Store) NewBatch() *Batch {
	return &Batch{batch: s.db.NewBatch()}
}

func (b *Batch) SaveBalance(trader common.Address, symbol string, amount *big.Int) error {
	data, err := json.Marshal(amount)
	if err != nil {
		return err
	}
	return b.batch.Set(balanceKey(trader, symbol), data, nil)
}

func (b *Batch) SaveOrder(o *book.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	return b.batch.Set(orderKey(o.ID), data, nil)
}

func (b *Batch) DeleteOrder(id uint64) error {
	return b.batch.Delete(orderKey(id), nil)
}

func (b *Batch) SaveTrade(tr *book.Trade) error {
	data, err := json.Marshal(tr)
	if err != nil {
		return err
	}
	return b.batch.Set(tradeKey(tr.Symbol, tr.Timestamp, tr.ID), data, nil)
}

func (b *Batch) SetNextOrderID(id uint64) error {
	return b.batch.Set([]byte(keyNextID), []byte(strconv.FormatUint(id, 10)), nil)
}

// Commit writes the batch durably.
func (b *Batch) Commit() error {
	return b.batch.Commit(pebble.Sync)
}

// Close discards the batch without committing.
func (b *Batch) Close() error {
	return b.batch.Close()
}
