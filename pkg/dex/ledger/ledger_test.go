package ledger

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

var (
	alice = common.HexToAddress("0xa11ce")
	bob   = common.HexToAddress("0xb0b")
)

func TestCreditDebit(t *testing.T) {
	l := NewLedger()

	if err := l.Credit(alice, "DAI", big.NewInt(100)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := l.Credit(alice, "DAI", big.NewInt(50)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if got := l.Balance(alice, "DAI"); got.Cmp(big.NewInt(150)) != 0 {
		t.Fatalf("balance = %s, want 150", got)
	}

	if err := l.Debit(alice, "DAI", big.NewInt(150)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if got := l.Balance(alice, "DAI"); got.Sign() != 0 {
		t.Fatalf("balance = %s, want 0", got)
	}
}

func TestDebitRefusesNegative(t *testing.T) {
	l := NewLedger()
	l.Set(alice, "DAI", big.NewInt(10))

	if err := l.Debit(alice, "DAI", big.NewInt(11)); err == nil {
		t.Fatal("expected error debiting past zero")
	}
	if got := l.Balance(alice, "DAI"); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("balance changed on failed debit: %s", got)
	}
}

func TestBalanceReturnsCopy(t *testing.T) {
	l := NewLedger()
	l.Set(alice, "DAI", big.NewInt(10))

	l.Balance(alice, "DAI").SetInt64(999)
	if got := l.Balance(alice, "DAI"); got.Cmp(big.NewInt(10)) != 0 {
		t.Fatalf("balance mutated through returned value: %s", got)
	}
}

func TestApplyAtomic(t *testing.T) {
	l := NewLedger()
	l.Set(alice, "DAI", big.NewInt(100))
	l.Set(bob, "REP", big.NewInt(10))

	// Trade: bob sells 5 REP to alice at 10.
	err := l.Apply([]Delta{
		{Trader: bob, Symbol: "REP", Amount: big.NewInt(-5)},
		{Trader: alice, Symbol: "REP", Amount: big.NewInt(5)},
		{Trader: alice, Symbol: "DAI", Amount: big.NewInt(-50)},
		{Trader: bob, Symbol: "DAI", Amount: big.NewInt(50)},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := l.Balance(alice, "DAI"); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("alice DAI = %s, want 50", got)
	}
	if got := l.Balance(alice, "REP"); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("alice REP = %s, want 5", got)
	}
	if got := l.Balance(bob, "DAI"); got.Cmp(big.NewInt(50)) != 0 {
		t.Fatalf("bob DAI = %s, want 50", got)
	}
	if got := l.Balance(bob, "REP"); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("bob REP = %s, want 5", got)
	}
}

func TestApplyRejectsUnderfundedBatchWithoutMutation(t *testing.T) {
	l := NewLedger()
	l.Set(alice, "DAI", big.NewInt(40))

	err := l.Apply([]Delta{
		{Trader: alice, Symbol: "DAI", Amount: big.NewInt(-50)},
		{Trader: bob, Symbol: "DAI", Amount: big.NewInt(50)},
	})
	if err == nil {
		t.Fatal("expected underfunded batch to fail")
	}
	if got := l.Balance(alice, "DAI"); got.Cmp(big.NewInt(40)) != 0 {
		t.Fatalf("alice DAI = %s, want untouched 40", got)
	}
	if got := l.Balance(bob, "DAI"); got.Sign() != 0 {
		t.Fatalf("bob DAI = %s, want untouched 0", got)
	}
}

func TestApplyNetsPerKey(t *testing.T) {
	l := NewLedger()
	l.Set(alice, "DAI", big.NewInt(10))

	// Gross -50 then +45 nets to -5, which is funded.
	err := l.Apply([]Delta{
		{Trader: alice, Symbol: "DAI", Amount: big.NewInt(-50)},
		{Trader: alice, Symbol: "DAI", Amount: big.NewInt(45)},
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if got := l.Balance(alice, "DAI"); got.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("alice DAI = %s, want 5", got)
	}
}

func TestEachVisitsAllEntries(t *testing.T) {
	l := NewLedger()
	l.Set(alice, "DAI", big.NewInt(1))
	l.Set(alice, "REP", big.NewInt(2))
	l.Set(bob, "DAI", big.NewInt(3))

	seen := 0
	l.Each(func(trader common.Address, symbol string, amount *big.Int) {
		seen++
	})
	if seen != 3 {
		t.Fatalf("visited %d entries, want 3", seen)
	}
}
