package engine

import "errors"

// Rejection kinds. Every precondition failure surfaces as a *Rejection
// wrapping one of these sentinels, so callers can branch with
// errors.Is while users see the exact diagnostic string.
var (
	ErrUnknownToken              = errors.New("unknown token")
	ErrNotTradable               = errors.New("quote currency is not tradable")
	ErrInsufficientAssetBalance  = errors.New("insufficient asset balance")
	ErrInsufficientQuoteBalance  = errors.New("insufficient quote balance")
	ErrInsufficientLedgerBalance = errors.New("insufficient ledger balance")
)

// User-facing diagnostics, kept verbatim from the upstream contract.
const (
	msgUnknownToken  = "this token does not exist"
	msgAssetBalance  = "token balance too low"
	msgLedgerBalance = "balance too low"
)

// Rejection is a precondition failure: the operation was refused before
// any state changed.
type Rejection struct {
	kind error
	msg  string
}

func (r *Rejection) Error() string { return r.msg }

func (r *Rejection) Unwrap() error { return r.kind }

func reject(kind error, msg string) error {
	return &Rejection{kind: kind, msg: msg}
}
