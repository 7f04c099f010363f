// Package api exposes the exchange engine over REST and WebSocket.
// It is a thin translation layer: every rule lives in the engine.
package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/uhyunpark/dexcore/pkg/dex/book"
	"github.com/uhyunpark/dexcore/pkg/dex/engine"
	"github.com/uhyunpark/dexcore/pkg/dex/token"
)

// Server handles REST and WebSocket connections.
type Server struct {
	engine   *engine.Engine
	registry *token.Registry
	router   *mux.Router
	hub      *Hub
	log      *zap.SugaredLogger
}

// NewServer wires the routes and subscribes the hub to executed
// trades.
func NewServer(eng *engine.Engine, reg *token.Registry, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		engine:   eng,
		registry: reg,
		router:   mux.NewRouter(),
		hub:      NewHub(logger),
		log:      logger,
	}
	s.setupRoutes()

	eng.SetTradeHandler(func(tr *book.Trade) {
		s.hub.BroadcastToChannel("trades:"+tr.Symbol, TradeUpdate{
			Type:      "trade",
			Symbol:    tr.Symbol,
			Price:     tr.Price,
			Qty:       tr.Qty.String(),
			TakerSide: tr.TakerSide.String(),
			Timestamp: tr.Timestamp,
		})
	})
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Read endpoints
	api.HandleFunc("/tokens", s.handleGetTokens).Methods("GET")
	api.HandleFunc("/books/{symbol}/{side}", s.handleGetBook).Methods("GET")
	api.HandleFunc("/balances/{address}/{symbol}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/trades/{symbol}", s.handleGetTrades).Methods("GET")

	// Mutating endpoints
	api.HandleFunc("/deposit", s.handleDeposit).Methods("POST")
	api.HandleFunc("/withdraw", s.handleWithdraw).Methods("POST")
	api.HandleFunc("/orders/limit", s.handleLimitOrder).Methods("POST")
	api.HandleFunc("/orders/market", s.handleMarketOrder).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Start runs the hub and serves HTTP on addr. Blocks.
func (s *Server) Start(addr string) error {
	go s.hub.Run()

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000", "http://localhost:3001"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})

	s.log.Infow("api_listening", "addr", addr)
	return http.ListenAndServe(addr, c.Handler(s.router))
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	listings := s.registry.List()
	response := make([]TokenInfo, len(listings))
	for i, l := range listings {
		response[i] = TokenInfo{
			Symbol:  l.Symbol,
			Address: l.Handle.Address().Hex(),
			Quote:   l.Quote,
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]
	side, ok := parseSide(vars["side"])
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "side must be buy or sell")
		return
	}

	orders := s.engine.Orders(symbol, side)
	infos := make([]OrderInfo, len(orders))
	for i, o := range orders {
		infos[i] = orderInfo(o)
	}
	respondJSON(w, BookSnapshot{
		Symbol:    symbol,
		Side:      side.String(),
		Orders:    infos,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	trader, ok := parseAddress(vars["address"])
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid address")
		return
	}
	symbol := vars["symbol"]

	respondJSON(w, BalanceInfo{
		Trader:  trader.Hex(),
		Symbol:  symbol,
		Balance: s.engine.BalanceOf(trader, symbol).String(),
	})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	trades := s.engine.RecentTrades(symbol, 100)
	response := make([]TradeInfo, len(trades))
	for i, tr := range trades {
		response[i] = TradeInfo{
			ID:        tr.ID,
			Symbol:    tr.Symbol,
			Price:     tr.Price,
			Qty:       tr.Qty.String(),
			TakerSide: tr.TakerSide.String(),
			Taker:     tr.Taker.Hex(),
			Maker:     tr.Maker.Hex(),
			Timestamp: tr.Timestamp,
		}
	}
	respondJSON(w, response)
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	trader, symbol, amount, ok := s.decodeTransfer(w, r)
	if !ok {
		return
	}
	if err := s.engine.Deposit(trader, symbol, amount); err != nil {
		respondRejection(w, err)
		return
	}
	respondJSON(w, BalanceInfo{
		Trader:  trader.Hex(),
		Symbol:  symbol,
		Balance: s.engine.BalanceOf(trader, symbol).String(),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	trader, symbol, amount, ok := s.decodeTransfer(w, r)
	if !ok {
		return
	}
	if err := s.engine.Withdraw(trader, symbol, amount); err != nil {
		respondRejection(w, err)
		return
	}
	respondJSON(w, BalanceInfo{
		Trader:  trader.Hex(),
		Symbol:  symbol,
		Balance: s.engine.BalanceOf(trader, symbol).String(),
	})
}

func (s *Server) handleLimitOrder(w http.ResponseWriter, r *http.Request) {
	var req LimitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	trader, ok := parseAddress(req.Trader)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid trader address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid amount")
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "side must be buy or sell")
		return
	}

	order, trades, err := s.engine.CreateLimitOrder(trader, req.Symbol, amount, req.Price, side)
	if err != nil {
		respondRejection(w, err)
		return
	}
	info := orderInfo(order)
	respondJSON(w, OrderResponse{Order: &info, Trades: tradeInfos(trades)})
}

func (s *Server) handleMarketOrder(w http.ResponseWriter, r *http.Request) {
	var req MarketOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	trader, ok := parseAddress(req.Trader)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid trader address")
		return
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid amount")
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "side must be buy or sell")
		return
	}

	trades, err := s.engine.CreateMarketOrder(trader, req.Symbol, amount, side)
	if err != nil {
		respondRejection(w, err)
		return
	}
	respondJSON(w, OrderResponse{Trades: tradeInfos(trades)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok", "quote": s.engine.Quote()})
}

// ==============================
// Helpers
// ==============================

func (s *Server) decodeTransfer(w http.ResponseWriter, r *http.Request) (common.Address, string, *big.Int, bool) {
	var req TransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "bad_request", err.Error())
		return common.Address{}, "", nil, false
	}
	trader, ok := parseAddress(req.Trader)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid trader address")
		return common.Address{}, "", nil, false
	}
	amount, ok := parseAmount(req.Amount)
	if !ok {
		respondError(w, http.StatusBadRequest, "bad_request", "invalid amount")
		return common.Address{}, "", nil, false
	}
	return trader, req.Symbol, amount, true
}

func parseAddress(s string) (common.Address, bool) {
	if !common.IsHexAddress(s) {
		return common.Address{}, false
	}
	return common.HexToAddress(s), true
}

func parseAmount(s string) (*big.Int, bool) {
	amount, ok := new(big.Int).SetString(s, 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}

func parseSide(s string) (book.Side, bool) {
	switch s {
	case "buy":
		return book.Buy, true
	case "sell":
		return book.Sell, true
	default:
		return 0, false
	}
}

func orderInfo(o *book.Order) OrderInfo {
	return OrderInfo{
		ID:        o.ID,
		Trader:    o.Trader.Hex(),
		Symbol:    o.Symbol,
		Side:      o.Side.String(),
		Price:     o.Price,
		Amount:    o.Amount.String(),
		Filled:    o.Filled.String(),
		Remaining: o.Remaining().String(),
		CreatedAt: o.CreatedAt,
	}
}

func tradeInfos(trades []*book.Trade) []TradeInfo {
	out := make([]TradeInfo, len(trades))
	for i, tr := range trades {
		out[i] = TradeInfo{
			ID:        tr.ID,
			Symbol:    tr.Symbol,
			Price:     tr.Price,
			Qty:       tr.Qty.String(),
			TakerSide: tr.TakerSide.String(),
			Taker:     tr.Taker.Hex(),
			Maker:     tr.Maker.Hex(),
			Timestamp: tr.Timestamp,
		}
	}
	return out
}

// respondRejection maps engine rejections to HTTP codes while keeping
// the exact diagnostic message.
func respondRejection(w http.ResponseWriter, err error) {
	code := "internal"
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, engine.ErrUnknownToken):
		code, status = "unknown_token", http.StatusNotFound
	case errors.Is(err, engine.ErrNotTradable):
		code, status = "not_tradable", http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInsufficientAssetBalance):
		code, status = "insufficient_asset_balance", http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInsufficientQuoteBalance):
		code, status = "insufficient_quote_balance", http.StatusUnprocessableEntity
	case errors.Is(err, engine.ErrInsufficientLedgerBalance):
		code, status = "insufficient_balance", http.StatusUnprocessableEntity
	}
	respondError(w, status, code, err.Error())
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: code, Message: message})
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}
