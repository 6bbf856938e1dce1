package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"escrowchain/config"
	"escrowchain/core"
	"escrowchain/core/state"
	"escrowchain/crypto"
	"escrowchain/native/common"
	"escrowchain/native/payment"
	"escrowchain/observability/logging"
	telemetry "escrowchain/observability/otel"
	"escrowchain/rpc"
	"escrowchain/storage"
	"escrowchain/storage/eventlog"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	mintToken := flag.String("mint-token", "", "Print a bearer token for the given bech32 account and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "Lifetime of tokens minted with -mint-token")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	if *mintToken != "" {
		if err := printToken(cfg, *mintToken, *tokenTTL); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to mint token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger := logging.Setup(logging.Options{
		Service:    cfg.Log.Service,
		Env:        cfg.Log.Env,
		Level:      cfg.Log.Level,
		File:       cfg.ResolvePath(cfg.Log.File),
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("payd exited", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	shutdownTelemetry, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName: cfg.Log.Service,
		Environment: cfg.Log.Env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
		Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
		Metrics:     cfg.Telemetry.Metrics,
		Traces:      cfg.Telemetry.Traces,
		SampleRatio: cfg.Telemetry.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", slog.Any("error", err))
		}
	}()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	journal, err := eventlog.Open(cfg.ResolvePath(cfg.EventLogPath))
	if err != nil {
		return fmt.Errorf("open event log: %w", err)
	}
	defer journal.Close()

	params, err := cfg.PaymentParams()
	if err != nil {
		return err
	}
	pauses := common.NewPauses(map[string]bool{payment.ModuleName: cfg.Pauses.Payment})
	rt, err := core.NewRuntime(db, params,
		core.WithLogger(logger),
		core.WithEventSink(journal),
		core.WithPauses(pauses))
	if err != nil {
		return fmt.Errorf("init runtime: %w", err)
	}
	if err := applyGenesis(ctx, rt, cfg); err != nil {
		return err
	}

	period, err := cfg.BlockPeriod()
	if err != nil {
		return err
	}
	clock := core.NewBlockClock(rt, period, logger)
	clock.Start(ctx)
	defer clock.Stop()

	server := rpc.NewServer(rt, journal, rpc.Config{
		Auth: rpc.AuthConfig{
			Enabled:    cfg.Auth.Enabled,
			HMACSecret: cfg.Auth.HMACSecret,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		},
		RateLimit: rpc.RateLimit{
			RequestsPerMinute: cfg.RateLimit.RequestsPerMinute,
			Burst:             cfg.RateLimit.Burst,
		},
	}, logger)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddress,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("payd listening",
			slog.String("address", cfg.ListenAddress),
			slog.Uint64("height", rt.Height()),
			slog.Duration("blockInterval", period),
			slog.Bool("authEnabled", cfg.Auth.Enabled),
			logging.MaskField("hmacSecret", cfg.Auth.HMACSecret))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("rpc server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("rpc shutdown failed", slog.Any("error", err))
	}
	logger.Info("payd stopped", slog.Uint64("height", rt.Height()))
	return nil
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.Database {
	case config.DatabaseMemory:
		return storage.NewMemDB(), nil
	default:
		db, err := storage.NewLevelDB(cfg.ResolvePath("state"))
		if err != nil {
			return nil, fmt.Errorf("open state database: %w", err)
		}
		return db, nil
	}
}

func applyGenesis(ctx context.Context, rt *core.Runtime, cfg *config.Config) error {
	assets := make([]state.AssetMetadata, 0, len(cfg.Assets))
	for _, asset := range cfg.Assets {
		symbol, err := payment.NormalizeAsset(asset.Symbol)
		if err != nil {
			return err
		}
		assets = append(assets, state.AssetMetadata{Symbol: symbol, Name: asset.Name, Decimals: asset.Decimals})
	}
	parsed, err := cfg.GenesisBalances()
	if err != nil {
		return err
	}
	balances := make([]core.GenesisBalance, 0, len(parsed))
	for _, bal := range parsed {
		balances = append(balances, core.GenesisBalance{Account: bal.Account, Asset: bal.Asset, Amount: bal.Amount})
	}
	if err := rt.Genesis(ctx, assets, balances); err != nil {
		return fmt.Errorf("apply genesis: %w", err)
	}
	return nil
}

func printToken(cfg *config.Config, account string, ttl time.Duration) error {
	caller, err := crypto.ParseAccount(account)
	if err != nil {
		return err
	}
	token, err := rpc.IssueToken(rpc.AuthConfig{
		HMACSecret: cfg.Auth.HMACSecret,
		Issuer:     cfg.Auth.Issuer,
		Audience:   cfg.Auth.Audience,
	}, caller, ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
