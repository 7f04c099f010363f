package ledger

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Pebble key schema. Prefix-based so recovery can range-scan each
// record kind; order keys embed the zero-padded order ID so iteration
// yields insertion (time-priority) order.
const (
	prefixBalance = "bal:"   // bal:{address}:{symbol} -> big.Int JSON
	prefixOrder   = "ord:"   // ord:{id:020d} -> book.Order JSON
	prefixTrade   = "trade:" // trade:{symbol}:{ts:020d}:{id:020d} -> book.Trade JSON
	keyNextID     = "meta:next_order_id"
)

func balanceKey(trader common.Address, symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:%s", prefixBalance, trader.Hex(), symbol))
}

// balanceKeyParse is the inverse of balanceKey, used on recovery scans.
func balanceKeyParse(key []byte) (common.Address, string, error) {
	rest := strings.TrimPrefix(string(key), prefixBalance)
	i := strings.IndexByte(rest, ':')
	if i < 0 || !common.IsHexAddress(rest[:i]) {
		return common.Address{}, "", fmt.Errorf("malformed balance key %q", key)
	}
	return common.HexToAddress(rest[:i]), rest[i+1:], nil
}

func orderKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", prefixOrder, id))
}

func tradeKey(symbol string, timestamp int64, id uint64) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%020d", prefixTrade, symbol, timestamp, id))
}

func tradePrefix(symbol string) []byte {
	return []byte(fmt.Sprintf("%s%s:", prefixTrade, symbol))
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}
