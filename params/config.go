package params

import (
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
)

// Escrow holds the monetary configuration of the escrow engine.
//
// All amounts are fixed-point integers: the stablecoin uses 6 decimals
// (USDC convention), the wrapped native asset 18. PegThreshold is an
// absolute deviation from the 1.0 peg expressed with 18 decimals, so
// 0.02 = 2e16.
type Escrow struct {
	Owner         common.Address
	Custody       common.Address // ledger holder identity of the engine itself
	Stablecoin    common.Address
	WrappedNative common.Address // also the bridge hop on every swap route
	StableFeed    common.Address
	PegThreshold  *big.Int

	StableDecimals uint8
	NativeDecimals uint8
}

type API struct {
	ListenAddr     string
	AllowedOrigins []string
}

type Ledger struct {
	// DBPath is the pebble database directory for balances.
	// Empty means memory-only (devnet and tests).
	DBPath string
}

type Config struct {
	Escrow Escrow
	API    API
	Ledger Ledger
}

func Default() Config {
	return Config{
		Escrow: Escrow{
			Owner:          common.HexToAddress("0x00000000000000000000000000000000000000A0"),
			Custody:        common.HexToAddress("0x00000000000000000000000000000000000000E5"),
			Stablecoin:     common.HexToAddress("0xB97EF9Ef8734C71904D8002F8b6Bc66Dd9c48a6E"),
			WrappedNative:  common.HexToAddress("0xB31f66AA3C1e785363F0875A1B74E27b85FD66c7"),
			StableFeed:     common.HexToAddress("0xF096872672F44d6EBA71458D74fe67F9a77a23B9"),
			PegThreshold:   big.NewInt(2e16), // 0.02
			StableDecimals: 6,
			NativeDecimals: 18,
		},
		API: API{
			ListenAddr:     ":8547",
			AllowedOrigins: []string{"http://localhost:3000"},
		},
		Ledger: Ledger{
			DBPath: "", // memory-only by default
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

	if v := os.Getenv("ESCROW_OWNER"); v != "" {
		cfg.Escrow.Owner = common.HexToAddress(v)
	}
	if v := os.Getenv("ESCROW_CUSTODY"); v != "" {
		cfg.Escrow.Custody = common.HexToAddress(v)
	}
	if v := os.Getenv("ESCROW_STABLECOIN"); v != "" {
		cfg.Escrow.Stablecoin = common.HexToAddress(v)
	}
	if v := os.Getenv("ESCROW_WRAPPED_NATIVE"); v != "" {
		cfg.Escrow.WrappedNative = common.HexToAddress(v)
	}
	if v := os.Getenv("ESCROW_STABLE_FEED"); v != "" {
		cfg.Escrow.StableFeed = common.HexToAddress(v)
	}
	if v := os.Getenv("ESCROW_PEG_THRESHOLD"); v != "" {
		if t, ok := new(big.Int).SetString(v, 10); ok {
			cfg.Escrow.PegThreshold = t
		}
	}
	if v := os.Getenv("API_LISTEN_ADDR"); v != "" {
		cfg.API.ListenAddr = v
	}
	if v := os.Getenv("LEDGER_DB_PATH"); v != "" {
		cfg.Ledger.DBPath = v
	}

	return cfg
}
