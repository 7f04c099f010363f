package api

// API request/response types. Amounts travel as decimal strings since
// they are 18-decimal fixed-point integers that overflow JSON numbers.

// ==============================
// REST Response Types
// ==============================

// TokenInfo describes one listed token.
type TokenInfo struct {
	Symbol  string `json:"symbol"`
	Address string `json:"address"` // external asset handle
	Quote   bool   `json:"quote"`   // true for the quote currency
}

// OrderInfo is one resting order in a book snapshot.
type OrderInfo struct {
	ID        uint64 `json:"id"`
	Trader    string `json:"trader"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"` // "buy" or "sell"
	Price     uint64 `json:"price"`
	Amount    string `json:"amount"`
	Filled    string `json:"filled"`
	Remaining string `json:"remaining"`
	CreatedAt int64  `json:"createdAt"` // Unix milliseconds
}

// BookSnapshot is one side of a symbol's order book in priority order.
type BookSnapshot struct {
	Symbol    string      `json:"symbol"`
	Side      string      `json:"side"`
	Orders    []OrderInfo `json:"orders"`
	Timestamp int64       `json:"timestamp"` // Unix milliseconds
}

// BalanceInfo is one trader's available ledger balance for a symbol.
type BalanceInfo struct {
	Trader  string `json:"trader"`
	Symbol  string `json:"symbol"`
	Balance string `json:"balance"`
}

// TradeInfo is one executed fill.
type TradeInfo struct {
	ID        uint64 `json:"id"`
	Symbol    string `json:"symbol"`
	Price     uint64 `json:"price"`
	Qty       string `json:"qty"`
	TakerSide string `json:"takerSide"`
	Taker     string `json:"taker"`
	Maker     string `json:"maker"`
	Timestamp int64  `json:"timestamp"`
}

// OrderResponse is returned from order submission.
type OrderResponse struct {
	Order  *OrderInfo  `json:"order,omitempty"` // nil for market orders
	Trades []TradeInfo `json:"trades"`
}

// ErrorResponse is returned for all errors. Error is a stable machine
// code, Message the user-facing diagnostic.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ==============================
// REST Request Types
// ==============================

// TransferRequest is the payload for POST /deposit and /withdraw.
type TransferRequest struct {
	Trader string `json:"trader"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"` // decimal string
}

// LimitOrderRequest is the payload for POST /orders/limit.
type LimitOrderRequest struct {
	Trader string `json:"trader"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
	Price  uint64 `json:"price"`
	Side   string `json:"side"` // "buy" or "sell"
}

// MarketOrderRequest is the payload for POST /orders/market.
type MarketOrderRequest struct {
	Trader string `json:"trader"`
	Symbol string `json:"symbol"`
	Amount string `json:"amount"`
	Side   string `json:"side"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by a client to manage its channels,
// e.g. {"op":"subscribe","channels":["trades:REP"]}.
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// TradeUpdate is broadcast on the "trades:{symbol}" channel when a
// fill executes.
type TradeUpdate struct {
	Type      string `json:"type"` // "trade"
	Symbol    string `json:"symbol"`
	Price     uint64 `json:"price"`
	Qty       string `json:"qty"`
	TakerSide string `json:"takerSide"`
	Timestamp int64  `json:"timestamp"`
}
