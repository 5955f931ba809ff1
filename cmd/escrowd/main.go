package main

import (
	"context"
	"log"
	"math/big"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/TeamOberon07/contract/params"
	"github.com/TeamOberon07/contract/pkg/api"
	"github.com/TeamOberon07/contract/pkg/escrow"
	"github.com/TeamOberon07/contract/pkg/ledger"
	"github.com/TeamOberon07/contract/pkg/oracle"
	"github.com/TeamOberon07/contract/pkg/swap"
	"github.com/TeamOberon07/contract/pkg/util"
)

// Devnet liquidity identities. The vault backs the fixed-rate router;
// the demo accounts let the REST surface be exercised immediately.
var (
	vaultAddr = common.HexToAddress("0x00000000000000000000000000000000000000F0")
	joeAddr   = common.HexToAddress("0x6e84a6216eA6dACC71eE8E6b0a5B7322EEbC0fDd")

	demoBuyer  = common.HexToAddress("0xB000000000000000000000000000000000000001")
	demoSeller = common.HexToAddress("0x5E11000000000000000000000000000000000001")
)

func main() {
	// Load config from .env file and environment variables
	cfg := params.LoadFromEnv("")

	// Setup logging (write to both console and file)
	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = "data/escrowd.log"
	}

	logger, err := util.NewLoggerWithFile(logFile)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	// ---- Ledger ----
	var l *ledger.TokenLedger
	if cfg.Ledger.DBPath != "" {
		l, err = ledger.NewTokenLedgerWithPath(cfg.Ledger.DBPath)
		if err != nil {
			sugar.Fatalw("ledger_init_failed", "path", cfg.Ledger.DBPath, "err", err)
		}
		sugar.Infow("ledger_opened", "path", cfg.Ledger.DBPath)
	} else {
		l = ledger.NewTokenLedger()
		sugar.Info("ledger running memory-only")
	}

	// ---- Swap router ----
	// Fixed devnet rates: 1 WAVAX = 20 USDC, 1 JOE = 0.5 WAVAX.
	router := swap.NewFixedRateRouter(l, vaultAddr)
	if err := router.SetRate(cfg.Escrow.WrappedNative, cfg.Escrow.Stablecoin, big.NewInt(1e12), big.NewInt(20)); err != nil {
		sugar.Fatalw("router_rate_failed", "err", err)
	}
	if err := router.SetRate(joeAddr, cfg.Escrow.WrappedNative, big.NewInt(2), big.NewInt(1)); err != nil {
		sugar.Fatalw("router_rate_failed", "err", err)
	}

	// ---- Oracle ----
	feeds := oracle.NewRegistry()
	stableFeed := oracle.NewStaticFeed(big.NewInt(1e8), 8)
	if err := feeds.Register(cfg.Escrow.StableFeed, stableFeed); err != nil {
		sugar.Fatalw("feed_register_failed", "err", err)
	}

	// ---- Engine ----
	engine := escrow.NewEngine(escrow.Config{
		Owner:         cfg.Escrow.Owner,
		Custody:       cfg.Escrow.Custody,
		Stablecoin:    cfg.Escrow.Stablecoin,
		WrappedNative: cfg.Escrow.WrappedNative,
		StableFeed:    cfg.Escrow.StableFeed,
		PegThreshold:  cfg.Escrow.PegThreshold,
	}, l, router, feeds, util.RealClock{})

	// ---- Devnet seeding (optional) ----
	// Enable with: SEED_DEVNET=true
	if os.Getenv("SEED_DEVNET") == "true" {
		seedDevnet(l, engine, cfg, sugar)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- API Server ----
	apiServer := api.NewServer(engine, cfg.API.AllowedOrigins, sugar)

	go func() {
		if err := apiServer.Start(cfg.API.ListenAddr); err != nil {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	sugar.Infow("escrowd_started",
		"listen", cfg.API.ListenAddr,
		"stablecoin", cfg.Escrow.Stablecoin.Hex(),
		"peg_threshold", cfg.Escrow.PegThreshold.String())

	<-ctx.Done()
	sugar.Info("escrowd_stopping")
}

// seedDevnet gives the router vault its reserves, funds two demo
// accounts and registers the demo seller.
func seedDevnet(l *ledger.TokenLedger, engine *escrow.Engine, cfg params.Config, sugar *zap.SugaredLogger) {
	million := big.NewInt(1_000_000)
	wei := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

	l.Mint(cfg.Escrow.Stablecoin, vaultAddr, new(big.Int).Mul(million, big.NewInt(1_000_000)))
	l.Mint(cfg.Escrow.WrappedNative, vaultAddr, new(big.Int).Mul(big.NewInt(100_000), wei))

	l.Mint(cfg.Escrow.Stablecoin, demoBuyer, new(big.Int).Mul(big.NewInt(10_000), million))
	l.Mint(cfg.Escrow.WrappedNative, demoBuyer, new(big.Int).Mul(big.NewInt(1_000), wei))
	l.Mint(joeAddr, demoBuyer, new(big.Int).Mul(big.NewInt(10_000), wei))

	if err := engine.RegisterAsSeller(demoSeller); err == nil {
		sugar.Infow("devnet_seeded", "buyer", demoBuyer.Hex(), "seller", demoSeller.Hex())
	}
}
