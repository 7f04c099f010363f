package settlement

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ERC20Token is an in-process asset with ERC20 transfer/approve
// semantics. It stands in for the on-chain token contract: wallet
// balances, per-trader allowances granted to the exchange, and a
// custody pool holding everything deposited.
//
// Amounts are 18-decimal fixed point (wei), like the real thing.
type ERC20Token struct {
	mu sync.Mutex

	name string
	addr common.Address

	balances   map[common.Address]*big.Int // trader wallet balances
	allowances map[common.Address]*big.Int // trader -> amount the exchange may pull
	custody    *big.Int                    // total held for the exchange
}

// NewERC20Token creates an asset with a deterministic pseudo-address
// derived from its name, so logs and API responses stay stable across
// restarts.
func NewERC20Token(name string) *ERC20Token {
	hash := crypto.Keccak256([]byte("dexcore/erc20/" + name))
	return &ERC20Token{
		name:       name,
		addr:       common.BytesToAddress(hash[12:]),
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]*big.Int),
		custody:    new(big.Int),
	}
}

func (t *ERC20Token) Name() string { return t.name }

func (t *ERC20Token) Address() common.Address { return t.addr }

// Faucet mints amount into the trader's wallet.
func (t *ERC20Token) Faucet(trader common.Address, amount *big.Int) {
	if amount == nil || amount.Sign() <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.balances[trader] = new(big.Int).Add(t.balance(trader), amount)
}

// Approve grants the exchange the right to pull up to amount from the
// trader's wallet. Overwrites any previous allowance.
func (t *ERC20Token) Approve(trader common.Address, amount *big.Int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[trader] = new(big.Int).Set(amount)
}

// Allowance returns the remaining amount the exchange may pull.
func (t *ERC20Token) Allowance(trader common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.allowances[trader]; ok {
		return new(big.Int).Set(a)
	}
	return new(big.Int)
}

// TransferIn pulls amount from the trader's wallet into custody.
// Requires both wallet balance and allowance to cover the amount.
func (t *ERC20Token) TransferIn(trader common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	bal := t.balance(trader)
	if bal.Cmp(amount) < 0 {
		return fmt.Errorf("%s: transfer amount exceeds balance", t.name)
	}
	allowance, ok := t.allowances[trader]
	if !ok || allowance.Cmp(amount) < 0 {
		return fmt.Errorf("%s: transfer amount exceeds allowance", t.name)
	}

	t.balances[trader] = new(big.Int).Sub(bal, amount)
	allowance.Sub(allowance, amount)
	t.custody.Add(t.custody, amount)
	return nil
}

// TransferOut releases amount from custody back to the trader's wallet.
func (t *ERC20Token) TransferOut(trader common.Address, amount *big.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.custody.Cmp(amount) < 0 {
		return fmt.Errorf("%s: transfer amount exceeds custody", t.name)
	}
	t.custody.Sub(t.custody, amount)
	t.balances[trader] = new(big.Int).Add(t.balance(trader), amount)
	return nil
}

func (t *ERC20Token) BalanceOf(trader common.Address) *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.balance(trader))
}

// Custody returns the total amount held for the exchange.
func (t *ERC20Token) Custody() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.custody)
}

// balance assumes the lock is held and never returns nil.
func (t *ERC20Token) balance(trader common.Address) *big.Int {
	if b, ok := t.balances[trader]; ok {
		return b
	}
	return new(big.Int)
}
