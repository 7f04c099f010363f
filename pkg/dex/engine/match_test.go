package engine_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/uhyunpark/dexcore/pkg/dex/book"
	"github.com/uhyunpark/dexcore/pkg/dex/engine"
)

func TestLimitOrdersRestInPriceTimeOrder(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "DAI", wei(1000))
	env.fund(t, bob, "REP", wei(1000))

	// Bids submitted 10, 11, 9 must read back 11, 10, 9.
	for _, price := range []uint64{10, 11, 9} {
		if _, _, err := env.eng.CreateLimitOrder(alice, "REP", wei(5), price, book.Buy); err != nil {
			t.Fatalf("bid @%d: %v", price, err)
		}
	}
	bids := env.eng.Orders("REP", book.Buy)
	for i, want := range []uint64{11, 10, 9} {
		if bids[i].Price != want {
			t.Fatalf("bid %d price = %d, want %d", i, bids[i].Price, want)
		}
	}

	// Asks submitted 100, 110, 90 must read back 90, 100, 110. Prices
	// sit above the bids so nothing crosses.
	for _, price := range []uint64{100, 110, 90} {
		if _, _, err := env.eng.CreateLimitOrder(bob, "REP", wei(5), price, book.Sell); err != nil {
			t.Fatalf("ask @%d: %v", price, err)
		}
	}
	asks := env.eng.Orders("REP", book.Sell)
	for i, want := range []uint64{90, 100, 110} {
		if asks[i].Price != want {
			t.Fatalf("ask %d price = %d, want %d", i, asks[i].Price, want)
		}
	}
}

func TestLimitSellRequiresAssetBalance(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "REP", wei(99))

	_, _, err := env.eng.CreateLimitOrder(alice, "REP", wei(100), 10, book.Sell)
	if !errors.Is(err, engine.ErrInsufficientAssetBalance) {
		t.Fatalf("err = %v, want ErrInsufficientAssetBalance", err)
	}
	if err.Error() != "token balance too low" {
		t.Fatalf("message = %q", err.Error())
	}
	if len(env.eng.Orders("REP", book.Sell)) != 0 {
		t.Fatal("rejected order reached the book")
	}
}

func TestLimitBuyRequiresQuoteBalance(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "DAI", wei(99))

	// 10 REP at price 10 costs 100 DAI.
	_, _, err := env.eng.CreateLimitOrder(alice, "REP", wei(10), 10, book.Buy)
	if !errors.Is(err, engine.ErrInsufficientQuoteBalance) {
		t.Fatalf("err = %v, want ErrInsufficientQuoteBalance", err)
	}
	if err.Error() != "dai balance too low" {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestQuoteCurrencyNotTradable(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "DAI", wei(100))

	_, _, err := env.eng.CreateLimitOrder(alice, "DAI", wei(1), 1, book.Buy)
	if !errors.Is(err, engine.ErrNotTradable) {
		t.Fatalf("limit err = %v, want ErrNotTradable", err)
	}
	if err.Error() != "cannot trade DAI" {
		t.Fatalf("message = %q", err.Error())
	}
	_, err = env.eng.CreateMarketOrder(alice, "DAI", wei(1), book.Sell)
	if !errors.Is(err, engine.ErrNotTradable) {
		t.Fatalf("market err = %v, want ErrNotTradable", err)
	}
}

func TestOrdersRejectUnknownToken(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	_, _, err := env.eng.CreateLimitOrder(alice, "XXX", wei(1), 1, book.Buy)
	if !errors.Is(err, engine.ErrUnknownToken) {
		t.Fatalf("limit err = %v, want ErrUnknownToken", err)
	}
	_, err = env.eng.CreateMarketOrder(alice, "XXX", wei(1), book.Sell)
	if !errors.Is(err, engine.ErrUnknownToken) {
		t.Fatalf("market err = %v, want ErrUnknownToken", err)
	}
}

func TestMarketSellPartiallyFillsRestingBid(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "DAI", wei(100))
	env.fund(t, bob, "REP", wei(100))

	if _, _, err := env.eng.CreateLimitOrder(alice, "REP", wei(10), 10, book.Buy); err != nil {
		t.Fatalf("limit: %v", err)
	}
	trades, err := env.eng.CreateMarketOrder(bob, "REP", wei(5), book.Sell)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	if trades[0].Price != 10 || trades[0].Qty.Cmp(wei(5)) != 0 {
		t.Fatalf("trade = %d x %s, want 10 x %s", trades[0].Price, trades[0].Qty, wei(5))
	}

	assertBalance(t, env.eng, alice, "DAI", wei(50))
	assertBalance(t, env.eng, alice, "REP", wei(5))
	assertBalance(t, env.eng, bob, "DAI", wei(50))
	assertBalance(t, env.eng, bob, "REP", wei(95))

	bids := env.eng.Orders("REP", book.Buy)
	if len(bids) != 1 {
		t.Fatalf("bids = %d, want 1", len(bids))
	}
	if bids[0].Filled.Cmp(wei(5)) != 0 || bids[0].Amount.Cmp(wei(10)) != 0 {
		t.Fatalf("resting order filled %s of %s, want %s of %s",
			bids[0].Filled, bids[0].Amount, wei(5), wei(10))
	}
}

func TestMarketOrderDiscardsRemainder(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "DAI", wei(1000))
	env.fund(t, bob, "REP", wei(100))

	if _, _, err := env.eng.CreateLimitOrder(alice, "REP", wei(5), 10, book.Buy); err != nil {
		t.Fatalf("limit: %v", err)
	}
	trades, err := env.eng.CreateMarketOrder(bob, "REP", wei(20), book.Sell)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if len(trades) != 1 || trades[0].Qty.Cmp(wei(5)) != 0 {
		t.Fatalf("expected one fill of %s", wei(5))
	}
	// The unfilled 15 must not rest anywhere.
	if got := env.eng.Orders("REP", book.Sell); len(got) != 0 {
		t.Fatalf("sell side has %d orders, want 0", len(got))
	}
	assertBalance(t, env.eng, bob, "REP", wei(95))
}

func TestMarketBuyStopsOnQuoteShortfallWithoutMutation(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "DAI", wei(100))
	env.fund(t, bob, "REP", wei(100))

	// Asks: 5 @ 10 (cost 50), then 5 @ 20 (cost 100). Alice can afford
	// the first leg but not the second.
	if _, _, err := env.eng.CreateLimitOrder(bob, "REP", wei(5), 10, book.Sell); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, _, err := env.eng.CreateLimitOrder(bob, "REP", wei(5), 20, book.Sell); err != nil {
		t.Fatalf("ask: %v", err)
	}

	_, err := env.eng.CreateMarketOrder(alice, "REP", wei(10), book.Buy)
	if !errors.Is(err, engine.ErrInsufficientQuoteBalance) {
		t.Fatalf("err = %v, want ErrInsufficientQuoteBalance", err)
	}
	if err.Error() != "dai balance too low" {
		t.Fatalf("message = %q", err.Error())
	}

	// All or nothing: the affordable first leg must not have executed.
	assertBalance(t, env.eng, alice, "DAI", wei(100))
	assertBalance(t, env.eng, alice, "REP", new(big.Int))
	for _, o := range env.eng.Orders("REP", book.Sell) {
		if o.Filled.Sign() != 0 {
			t.Fatalf("maker %d partially filled by rejected order", o.ID)
		}
	}
}

func TestTradesExecuteAtMakerPrice(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "DAI", wei(100))
	env.fund(t, bob, "REP", wei(100))

	if _, _, err := env.eng.CreateLimitOrder(bob, "REP", wei(5), 10, book.Sell); err != nil {
		t.Fatalf("ask: %v", err)
	}
	// Taker bids 12 but pays the resting price of 10.
	o, trades, err := env.eng.CreateLimitOrder(alice, "REP", wei(5), 12, book.Buy)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if len(trades) != 1 || trades[0].Price != 10 {
		t.Fatalf("trades = %v, want one at price 10", trades)
	}
	if !o.IsFilled() {
		t.Fatal("taker should be fully filled")
	}
	assertBalance(t, env.eng, alice, "DAI", wei(50))
	assertBalance(t, env.eng, alice, "REP", wei(5))
	assertBalance(t, env.eng, bob, "DAI", wei(50))
	assertBalance(t, env.eng, bob, "REP", wei(95))
}

func TestFilledLimitOrderStillRestsByDefault(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "DAI", wei(100))
	env.fund(t, bob, "REP", wei(100))

	if _, _, err := env.eng.CreateLimitOrder(bob, "REP", wei(5), 10, book.Sell); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, _, err := env.eng.CreateLimitOrder(alice, "REP", wei(5), 10, book.Buy); err != nil {
		t.Fatalf("bid: %v", err)
	}

	bids := env.eng.Orders("REP", book.Buy)
	asks := env.eng.Orders("REP", book.Sell)
	if len(bids) != 1 || !bids[0].IsFilled() {
		t.Fatalf("bid side = %v, want one filled order", bids)
	}
	if len(asks) != 1 || !asks[0].IsFilled() {
		t.Fatalf("ask side = %v, want one filled order", asks)
	}

	// A retained filled ask must never match again.
	env.fund(t, alice, "DAI", wei(100))
	_, trades, err := env.eng.CreateLimitOrder(alice, "REP", wei(5), 10, book.Buy)
	if err != nil {
		t.Fatalf("second bid: %v", err)
	}
	if len(trades) != 0 {
		t.Fatal("filled ask matched again")
	}
}

func TestPurgeFilledRemovesConsumedOrders(t *testing.T) {
	env := newTestEnv(t, engine.Options{PurgeFilled: true})
	env.fund(t, alice, "DAI", wei(100))
	env.fund(t, bob, "REP", wei(100))

	if _, _, err := env.eng.CreateLimitOrder(bob, "REP", wei(5), 10, book.Sell); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, _, err := env.eng.CreateLimitOrder(alice, "REP", wei(5), 10, book.Buy); err != nil {
		t.Fatalf("bid: %v", err)
	}

	if n := len(env.eng.Orders("REP", book.Buy)); n != 0 {
		t.Fatalf("bid side has %d orders, want 0", n)
	}
	if n := len(env.eng.Orders("REP", book.Sell)); n != 0 {
		t.Fatalf("ask side has %d orders, want 0", n)
	}
}

func TestEqualPriceMatchesEarlierOrderFirst(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "DAI", wei(1000))
	env.fund(t, bob, "REP", wei(100))

	first, _, err := env.eng.CreateLimitOrder(bob, "REP", wei(5), 10, book.Sell)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	second, _, err := env.eng.CreateLimitOrder(bob, "REP", wei(5), 10, book.Sell)
	if err != nil {
		t.Fatalf("ask: %v", err)
	}

	trades, err := env.eng.CreateMarketOrder(alice, "REP", wei(7), book.Buy)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}
	if trades[0].MakerOrder != first.ID || trades[0].Qty.Cmp(wei(5)) != 0 {
		t.Fatalf("first fill against order %d qty %s, want %d qty %s",
			trades[0].MakerOrder, trades[0].Qty, first.ID, wei(5))
	}
	if trades[1].MakerOrder != second.ID || trades[1].Qty.Cmp(wei(2)) != 0 {
		t.Fatalf("second fill against order %d qty %s, want %d qty %s",
			trades[1].MakerOrder, trades[1].Qty, second.ID, wei(2))
	}
}

func TestSelfTradeNetsToNoBalanceChange(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "DAI", wei(50))
	env.fund(t, alice, "REP", wei(5))

	if _, _, err := env.eng.CreateLimitOrder(alice, "REP", wei(5), 10, book.Sell); err != nil {
		t.Fatalf("ask: %v", err)
	}
	// Costs exactly the full quote balance; the self-trade credit-back
	// must keep the incremental check satisfied.
	trades, err := env.eng.CreateMarketOrder(alice, "REP", wei(5), book.Buy)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("trades = %d, want 1", len(trades))
	}
	assertBalance(t, env.eng, alice, "DAI", wei(50))
	assertBalance(t, env.eng, alice, "REP", wei(5))
}

func TestLimitBuyWalksAsksBestPriceFirst(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "DAI", wei(1000))
	env.fund(t, bob, "REP", wei(100))

	for _, price := range []uint64{12, 10, 11} {
		if _, _, err := env.eng.CreateLimitOrder(bob, "REP", wei(5), price, book.Sell); err != nil {
			t.Fatalf("ask @%d: %v", price, err)
		}
	}

	// Bid at 11 crosses the 10 and 11 asks but not the 12.
	o, trades, err := env.eng.CreateLimitOrder(alice, "REP", wei(12), 11, book.Buy)
	if err != nil {
		t.Fatalf("bid: %v", err)
	}
	if len(trades) != 2 {
		t.Fatalf("trades = %d, want 2", len(trades))
	}
	if trades[0].Price != 10 || trades[1].Price != 11 {
		t.Fatalf("fill prices = [%d %d], want [10 11]", trades[0].Price, trades[1].Price)
	}
	if o.Filled.Cmp(wei(10)) != 0 {
		t.Fatalf("taker filled %s, want %s", o.Filled, wei(10))
	}
	// Remainder rests on the bid side.
	bids := env.eng.Orders("REP", book.Buy)
	if len(bids) != 1 || bids[0].Remaining().Cmp(wei(2)) != 0 {
		t.Fatalf("bids = %v, want one with remaining %s", bids, wei(2))
	}
	// Paid 5*10 + 5*11 = 105.
	assertBalance(t, env.eng, alice, "DAI", wei(1000-105))
}

func TestMarketOrderOnEmptyBookDoesNothing(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, bob, "REP", wei(10))

	trades, err := env.eng.CreateMarketOrder(bob, "REP", wei(5), book.Sell)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	if len(trades) != 0 {
		t.Fatalf("trades = %d, want 0", len(trades))
	}
	assertBalance(t, env.eng, bob, "REP", wei(10))
}

func TestRecentTradesNewestFirstPerSymbol(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "DAI", wei(1000))
	env.fund(t, bob, "REP", wei(100))
	env.fund(t, bob, "BAT", wei(100))

	if _, _, err := env.eng.CreateLimitOrder(bob, "REP", wei(5), 10, book.Sell); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, _, err := env.eng.CreateLimitOrder(bob, "BAT", wei(5), 3, book.Sell); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, err := env.eng.CreateMarketOrder(alice, "REP", wei(2), book.Buy); err != nil {
		t.Fatalf("market: %v", err)
	}
	if _, err := env.eng.CreateMarketOrder(alice, "REP", wei(3), book.Buy); err != nil {
		t.Fatalf("market: %v", err)
	}
	if _, err := env.eng.CreateMarketOrder(alice, "BAT", wei(1), book.Buy); err != nil {
		t.Fatalf("market: %v", err)
	}

	rep := env.eng.RecentTrades("REP", 10)
	if len(rep) != 2 {
		t.Fatalf("REP trades = %d, want 2", len(rep))
	}
	if rep[0].Qty.Cmp(wei(3)) != 0 || rep[1].Qty.Cmp(wei(2)) != 0 {
		t.Fatalf("REP trade qtys = [%s %s], want newest first", rep[0].Qty, rep[1].Qty)
	}
	bat := env.eng.RecentTrades("BAT", 10)
	if len(bat) != 1 {
		t.Fatalf("BAT trades = %d, want 1", len(bat))
	}
}

func TestTradeHandlerFiresPerFill(t *testing.T) {
	env := newTestEnv(t, engine.Options{})
	env.fund(t, alice, "DAI", wei(1000))
	env.fund(t, bob, "REP", wei(100))

	var seen []*book.Trade
	env.eng.SetTradeHandler(func(tr *book.Trade) { seen = append(seen, tr) })

	if _, _, err := env.eng.CreateLimitOrder(bob, "REP", wei(5), 10, book.Sell); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, _, err := env.eng.CreateLimitOrder(bob, "REP", wei(5), 11, book.Sell); err != nil {
		t.Fatalf("ask: %v", err)
	}
	if _, err := env.eng.CreateMarketOrder(alice, "REP", wei(8), book.Buy); err != nil {
		t.Fatalf("market: %v", err)
	}
	if len(seen) != 2 {
		t.Fatalf("handler fired %d times, want 2", len(seen))
	}
}
