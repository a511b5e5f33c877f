// Package main provides the entry point for the Atlas trading and
// airdrop-farming backend: a single process that runs the perpetuals
// trading agent, the on-chain farming agent, and the shared HTTP/WS
// status surface, or drives the farming agent through a one-shot CLI
// operation for cron-style invocation.
package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/atlas-desktop/trading-backend/internal/adapter"
	"github.com/atlas-desktop/trading-backend/internal/api"
	"github.com/atlas-desktop/trading-backend/internal/chain"
	"github.com/atlas-desktop/trading-backend/internal/config"
	"github.com/atlas-desktop/trading-backend/internal/credentials"
	"github.com/atlas-desktop/trading-backend/internal/data"
	"github.com/atlas-desktop/trading-backend/internal/execution"
	"github.com/atlas-desktop/trading-backend/internal/farming"
	"github.com/atlas-desktop/trading-backend/internal/hyperliquid"
	"github.com/atlas-desktop/trading-backend/internal/notify"
	"github.com/atlas-desktop/trading-backend/internal/onchain"
	"github.com/atlas-desktop/trading-backend/internal/optimizer"
	"github.com/atlas-desktop/trading-backend/internal/oracle"
	"github.com/atlas-desktop/trading-backend/internal/planner"
	"github.com/atlas-desktop/trading-backend/internal/sentiment"
	"github.com/atlas-desktop/trading-backend/internal/testnet"
	"github.com/atlas-desktop/trading-backend/internal/tracker"
	"github.com/atlas-desktop/trading-backend/internal/trading"
	"github.com/atlas-desktop/trading-backend/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"
)

const serverShutdownGrace = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file overriding the built-in defaults")
	credentialsPath := flag.String("credentials", "", "Path to a fallback dotenv-style credentials file")
	logLevel := flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	dryRun := flag.Bool("dry-run", false, "Force dry-run: no orders or transactions are submitted")
	once := flag.Bool("once", false, "Run a single farming cycle and exit")
	status := flag.Bool("status", false, "Print farming agent status as JSON and exit")
	loop := flag.Bool("loop", true, "Run both agents and the status server until stopped")
	flag.Parse()

	logger := setupLogger(*logLevel)
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	if *dryRun {
		cfg.DryRun = true
	}
	if *credentialsPath != "" {
		cfg.CredentialsPath = *credentialsPath
	}

	creds := credentials.New(cfg.CredentialsPath)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch {
	case *status:
		runStatus(ctx, logger, cfg, creds)
	case *once:
		runFarmingOnce(ctx, logger, cfg, creds)
	case *loop:
		runLoop(ctx, logger, cfg, creds)
	default:
		logger.Fatal("no run mode selected: pass --loop, --once, or --status")
	}
}

// runLoop wires every collaborator and runs both agents plus the
// status server until ctx is cancelled.
func runLoop(ctx context.Context, logger *zap.Logger, cfg config.Config, creds *credentials.Source) {
	logger.Info("starting atlas backend",
		zap.String("stateDir", cfg.StateDir),
		zap.Bool("dryRun", cfg.DryRun),
	)

	tradingAgent, farmingAgent, tr, err := build(ctx, logger, cfg, creds)
	if err != nil {
		logger.Fatal("failed to initialize agents", zap.Error(err))
	}

	server := api.NewServer(logger, cfg.Server, tradingAgent, farmingAgent, tr)
	if cfg.Server.EnableMetrics {
		logger.Info("metrics exposed", zap.String("path", "/metrics"))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tradingAgent.Run(gctx) })
	g.Go(func() error { return farmingAgent.Run(gctx) })
	g.Go(func() error {
		if err := server.Start(); err != nil {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		tradingAgent.Stop()
		farmingAgent.Stop()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), serverShutdownGrace)
		defer shutdownCancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Warn("api server shutdown error", zap.Error(err))
		}
	}()

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("a component exited with an error", zap.Error(err))
	}
	logger.Info("atlas backend stopped")
}

// runFarmingOnce runs a single farming cycle (pending actions, testnet
// cycle, airdrop scan, daily report if due) and exits. Intended for
// cron-style invocation rather than the long-running loop.
func runFarmingOnce(ctx context.Context, logger *zap.Logger, cfg config.Config, creds *credentials.Source) {
	_, farmingAgent, _, err := build(ctx, logger, cfg, creds)
	if err != nil {
		logger.Fatal("failed to initialize farming agent", zap.Error(err))
	}
	if err := farmingAgent.RunOnce(ctx); err != nil {
		logger.Fatal("farming cycle failed", zap.Error(err))
	}
	logger.Info("farming cycle complete", zap.String("status", farmingAgent.Status()))
}

// runStatus prints the farming agent's current status snapshot as
// JSON to stdout and exits, without running any cycle.
func runStatus(ctx context.Context, logger *zap.Logger, cfg config.Config, creds *credentials.Source) {
	_, farmingAgent, _, err := build(ctx, logger, cfg, creds)
	if err != nil {
		logger.Fatal("failed to initialize farming agent", zap.Error(err))
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(farmingAgent.StatusSnapshot()); err != nil {
		logger.Fatal("failed to encode status", zap.Error(err))
	}
}

// build constructs every collaborator shared by the trading and
// farming agents: credentials resolution, the venue/market client, the
// chain manager and on-chain executor, and the two orchestrators
// themselves.
func build(ctx context.Context, logger *zap.Logger, cfg config.Config, creds *credentials.Source) (*trading.Agent, *farming.Agent, *tracker.Tracker, error) {
	hlKey, hlAddress, err := loadHyperliquidIdentity(creds)
	if err != nil {
		return nil, nil, nil, err
	}
	hlBaseURL, err := creds.Get("HYPERLIQUID_API_URL", false)
	if err != nil {
		return nil, nil, nil, err
	}
	if hlBaseURL == "" {
		hlBaseURL = "https://api.hyperliquid.xyz"
	}
	venueClient := hyperliquid.NewClient(logger, hlBaseURL, hlKey, hlAddress)

	perplexityKey, err := creds.Get("PERPLEXITY_API_KEY", false)
	if err != nil {
		return nil, nil, nil, err
	}
	oracleClient := oracle.NewPerplexity(logger, perplexityKey)

	notifier, err := buildNotifier(logger, creds)
	if err != nil {
		return nil, nil, nil, err
	}

	if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
		return nil, nil, nil, fmt.Errorf("creating state directory: %w", err)
	}

	tr, err := tracker.New(logger, filepath.Join(cfg.StateDir, "trades.json"))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing tracker: %w", err)
	}

	adp, err := adapter.New(logger, filepath.Join(cfg.StateDir, "adapter.json"), adapter.ParamsFromConfig(cfg.Trading))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing adapter: %w", err)
	}

	opt, err := optimizer.New(logger, filepath.Join(cfg.StateDir, "optimizer.json"), oracleClient, optimizer.ParamsFromConfig(cfg.Trading))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing optimizer: %w", err)
	}

	sent := sentiment.NewAnalyzer(logger, oracleClient, cfg.Trading.SentimentCheckPeriod)

	posMgr, err := execution.NewManager(logger, filepath.Join(cfg.StateDir, "positions.json"), venueClient, tr, execution.ParamsFromConfig(cfg.Trading))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("initializing position manager: %w", err)
	}

	tradingAgent := trading.New(logger, trading.Config{
		Trading:  cfg.Trading,
		Venue:    venueClient,
		Market:   venueClient,
		Tracker:  tr,
		Adapter:  adp,
		Optimize: opt,
		PosMgr:   posMgr,
		Sent:     sent,
		Notifier: notifier,
	})

	farmingAgent, err := buildFarmingAgent(ctx, logger, cfg, creds, notifier)
	if err != nil {
		return nil, nil, nil, err
	}

	return tradingAgent, farmingAgent, tr, nil
}

// buildFarmingAgent wires the chain manager, on-chain executor,
// testnet farmer, and activity planner into a farming.Agent. The
// airdrop scanner collaborator is left nil: discovering new airdrop
// campaigns is an external, pluggable concern this backend does not
// implement directly.
func buildFarmingAgent(ctx context.Context, logger *zap.Logger, cfg config.Config, creds *credentials.Source, notifier notify.Notifier) (*farming.Agent, error) {
	wallet, err := loadFarmingWallet(creds)
	if err != nil {
		return nil, err
	}

	budgetPath := filepath.Join(cfg.StateDir, "budget.json")
	budgetStore, err := data.New(logger, budgetPath, 0o644)
	if err != nil {
		return nil, fmt.Errorf("initializing budget store: %w", err)
	}
	budget := &types.BudgetTracker{BudgetUsd: cfg.Farming.BudgetUsd, ReservePct: cfg.Farming.ReservePct}
	if _, err := budgetStore.Load(budget); err != nil {
		return nil, fmt.Errorf("loading budget state: %w", err)
	}

	chains := chain.NewManager(logger, dialEVM, cfg.Farming.Chains, budget)
	chains.OnSpend = func(snapshot types.BudgetTracker) {
		if err := budgetStore.Save(&snapshot); err != nil {
			logger.Warn("failed to persist budget state", zap.Error(err))
		}
	}
	if err := chains.Warm(ctx); err != nil {
		logger.Warn("chain warm-up incomplete", zap.Error(err))
	}

	tokenReader := onchain.NewERC20Reader(chains)
	executor := onchain.NewExecutor(logger, chains, tokenReader, cfg.DryRun)

	pl, err := planner.New(logger, filepath.Join(cfg.StateDir, "plan.json"), cfg.Farming)
	if err != nil {
		return nil, fmt.Errorf("initializing planner: %w", err)
	}

	farmer := testnet.New(logger, chains, testnetChains(cfg.Farming.Chains), wallet.Key)

	farmingAgent, err := farming.New(logger, filepath.Join(cfg.StateDir, "farming.json"), farming.Config{
		Planner:  pl,
		Chains:   chains,
		Executor: executor,
		Testnet:  farmer,
		Scanner:  nil,
		Notifier: notifier,
		Wallet:   wallet,
		DryRun:   cfg.DryRun,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing farming agent: %w", err)
	}

	return farmingAgent, nil
}

// testnetChains returns the subset of configured chains marked as
// testnets: the only ones the testnet farmer is allowed to cycle.
func testnetChains(chains []types.ChainConfig) []types.ChainConfig {
	var out []types.ChainConfig
	for _, c := range chains {
		if c.Type == types.ChainTypeTestnet {
			out = append(out, c)
		}
	}
	return out
}

// dialEVM is the production chain.Dialer: a thin adapter from
// ethclient.DialContext to the narrow chain.Client interface.
func dialEVM(ctx context.Context, url string) (chain.Client, error) {
	return ethclient.DialContext(ctx, url)
}

func loadHyperliquidIdentity(creds *credentials.Source) (*ecdsa.PrivateKey, common.Address, error) {
	rawKey, err := creds.Get("HYPERLIQUID_PRIVATE_KEY", true)
	if err != nil {
		return nil, common.Address{}, err
	}
	key, err := crypto.HexToECDSA(trimHexPrefix(rawKey))
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("parsing HYPERLIQUID_PRIVATE_KEY: %w", err)
	}
	rawAddr, err := creds.Get("HYPERLIQUID_ACCOUNT_ADDRESS", false)
	if err != nil {
		return nil, common.Address{}, err
	}
	address := crypto.PubkeyToAddress(key.PublicKey)
	if rawAddr != "" {
		address = common.HexToAddress(rawAddr)
	}
	return key, address, nil
}

func loadFarmingWallet(creds *credentials.Source) (onchain.Wallet, error) {
	rawKey, err := creds.Get("FARMING_WALLET_PRIVATE_KEY", true)
	if err != nil {
		return onchain.Wallet{}, err
	}
	key, err := crypto.HexToECDSA(trimHexPrefix(rawKey))
	if err != nil {
		return onchain.Wallet{}, fmt.Errorf("parsing FARMING_WALLET_PRIVATE_KEY: %w", err)
	}
	return onchain.Wallet{Address: crypto.PubkeyToAddress(key.PublicKey), Key: key}, nil
}

func buildNotifier(logger *zap.Logger, creds *credentials.Source) (notify.Notifier, error) {
	url, err := creds.Get("NOTIFY_WEBHOOK_URL", false)
	if err != nil {
		return nil, err
	}
	if url == "" {
		return notify.NoOp{}, nil
	}
	return notify.NewWebhook(logger, url), nil
}

func trimHexPrefix(s string) string {
	if len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

func setupLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:       zap.NewAtomicLevelAt(zapLevel),
		Development: false,
		Encoding:    "console",
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "time",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "msg",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.CapitalColorLevelEncoder,
			EncodeTime:     zapcore.ISO8601TimeEncoder,
			EncodeDuration: zapcore.SecondsDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return logger
}
