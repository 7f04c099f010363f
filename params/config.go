package params

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Exchange struct {
	// QuoteSymbol is the currency all prices are denominated in. It is
	// listed so it can be deposited, but never tradable itself.
	QuoteSymbol string

	// Assets are the tradable token symbols listed at startup.
	Assets []string

	// PurgeFilled removes fully filled resting orders from the books
	// instead of retaining them with filled == amount.
	PurgeFilled bool
}

type Node struct {
	ListenAddr string
	// DBPath is the Pebble database directory. Empty disables
	// persistence (ephemeral devnet).
	DBPath  string
	LogFile string
	// DevFaucet seeds the built-in dev accounts with starter balances
	// and pre-approves the exchange. Devnet only.
	DevFaucet bool
}

type Config struct {
	Exchange Exchange
	Node     Node
}

func Default() Config {
	return Config{
		Exchange: Exchange{
			QuoteSymbol: "DAI",
			Assets:      []string{"BAT", "REP", "ZRX"},
			PurgeFilled: false,
		},
		Node: Node{
			ListenAddr: ":8080",
			DBPath:     "data/dex.db",
			LogFile:    "data/node.log",
			DevFaucet:  false,
		},
	}
}

// LoadFromEnv loads configuration from a .env file (if present) and
// environment variables. Priority: ENV > .env file > defaults.
func LoadFromEnv(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("QUOTE_SYMBOL"); v != "" {
		cfg.Exchange.QuoteSymbol = v
	}
	if v := os.Getenv("EXCHANGE_ASSETS"); v != "" {
		// Example: "BAT,REP,ZRX"
		cfg.Exchange.Assets = nil
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				cfg.Exchange.Assets = append(cfg.Exchange.Assets, a)
			}
		}
	}
	if v := os.Getenv("BOOK_PURGE_FILLED"); v != "" {
		cfg.Exchange.PurgeFilled = v == "true"
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Node.ListenAddr = v
	}
	if v, ok := os.LookupEnv("DB_PATH"); ok {
		cfg.Node.DBPath = v
	}
	if v := os.Getenv("LOG_FILE"); v != "" {
		cfg.Node.LogFile = v
	}
	if v := os.Getenv("DEVNET_FAUCET"); v != "" {
		cfg.Node.DevFaucet = v == "true"
	}

	return cfg
}
