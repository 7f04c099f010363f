// Package settlement defines the custody interface between the exchange
// core and the external asset contracts it settles against.
//
// The engine never touches asset internals: it resolves a symbol to a
// Token through the registry and calls the capability set below. A call
// either fully succeeds or returns an error, in which case the engine
// aborts the enclosing operation.
package settlement

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Token is the external handle for one asset kind.
//
// TransferIn moves funds from the trader's wallet into exchange custody
// (the deposit leg). TransferOut moves funds from custody back to the
// trader's wallet (the withdraw leg). Both are synchronous and fallible;
// errors are propagated to the caller verbatim.
type Token interface {
	// Address returns the asset contract address.
	Address() common.Address

	TransferIn(trader common.Address, amount *big.Int) error
	TransferOut(trader common.Address, amount *big.Int) error

	// BalanceOf reports the trader's wallet balance held by the asset
	// itself, not the exchange ledger balance.
	BalanceOf(trader common.Address) *big.Int
}
