package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/dexcore/params"
	"github.com/uhyunpark/dexcore/pkg/api"
	"github.com/uhyunpark/dexcore/pkg/dex/engine"
	"github.com/uhyunpark/dexcore/pkg/dex/ledger"
	"github.com/uhyunpark/dexcore/pkg/dex/settlement"
	"github.com/uhyunpark/dexcore/pkg/dex/token"
	"github.com/uhyunpark/dexcore/pkg/util"
)

// devAccounts are the devnet trader addresses seeded by the faucet.
var devAccounts = []common.Address{
	common.HexToAddress("0x1000000000000000000000000000000000000001"),
	common.HexToAddress("0x1000000000000000000000000000000000000002"),
	common.HexToAddress("0x1000000000000000000000000000000000000003"),
	common.HexToAddress("0x1000000000000000000000000000000000000004"),
}

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	logger, err := util.NewLoggerWithFile(cfg.Node.LogFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", cfg.Node.LogFile)

	// ---- Tokens ----
	// The quote currency plus every configured asset gets an in-process
	// ERC20; a real deployment would wrap on-chain contracts instead.
	registry := token.NewRegistry(cfg.Exchange.QuoteSymbol)
	quoteToken := settlement.NewERC20Token(cfg.Exchange.QuoteSymbol)
	tokens := map[string]*settlement.ERC20Token{
		cfg.Exchange.QuoteSymbol: quoteToken,
	}
	for _, sym := range cfg.Exchange.Assets {
		tokens[sym] = settlement.NewERC20Token(sym)
	}

	// ---- Storage ----
	var store *ledger.Store
	if cfg.Node.DBPath != "" {
		store, err = ledger.NewStore(cfg.Node.DBPath)
		if err != nil {
			sugar.Fatalw("store_open_failed", "path", cfg.Node.DBPath, "err", err)
		}
		defer store.Close()
		sugar.Infow("store_opened", "path", cfg.Node.DBPath)
	} else {
		sugar.Info("persistence disabled - running ephemeral")
	}

	// ---- Exchange engine ----
	eng, err := engine.New(registry, store, sugar, engine.Options{
		PurgeFilled: cfg.Exchange.PurgeFilled,
	})
	if err != nil {
		sugar.Fatalw("engine_init_failed", "err", err)
	}
	if err := eng.AddToken(cfg.Exchange.QuoteSymbol, quoteToken); err != nil {
		sugar.Fatalw("quote_listing_failed", "symbol", cfg.Exchange.QuoteSymbol, "err", err)
	}
	for _, sym := range cfg.Exchange.Assets {
		if err := eng.AddToken(sym, tokens[sym]); err != nil {
			sugar.Fatalw("token_listing_failed", "symbol", sym, "err", err)
		}
	}

	// ---- Dev faucet ----
	// Mints wallet balances and pre-approves the exchange so devnet
	// traders can deposit straight away.
	if cfg.Node.DevFaucet {
		amount := new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e18))
		for _, acct := range devAccounts {
			for sym, tok := range tokens {
				tok.Faucet(acct, amount)
				tok.Approve(acct, amount)
				sugar.Debugw("faucet_seeded", "trader", acct.Hex(), "symbol", sym)
			}
		}
		sugar.Infow("dev_faucet_enabled", "accounts", len(devAccounts), "amount_wei", amount.String())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(eng, registry, sugar)
	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.Node.ListenAddr)
		if err := apiServer.Start(cfg.Node.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("node_started",
		"quote", cfg.Exchange.QuoteSymbol,
		"assets", cfg.Exchange.Assets,
		"purge_filled", cfg.Exchange.PurgeFilled)

	<-ctx.Done()
	sugar.Info("shutting down")
}
