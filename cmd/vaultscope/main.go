package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"vaultscope/config"
	"vaultscope/gateway"
	"vaultscope/ledger"
	"vaultscope/logsource"
	"vaultscope/observability/logging"
	"vaultscope/positions"
	"vaultscope/prices"
	"vaultscope/report"
	"vaultscope/tokens"
)

const oneShotTimeout = 2 * time.Minute

func main() {
	var (
		configPath = flag.String("config", "vaultscope.toml", "path to the TOML configuration file")
		owner      = flag.String("owner", "", "owner address to report on")
		position   = flag.String("position", "", "single position id to report on")
		serve      = flag.Bool("serve", false, "serve reports over HTTP instead of a one-shot run")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	// Logs go to stderr so a one-shot report on stdout stays machine-readable.
	logger := logging.Setup(os.Stderr, "vaultscope", cfg.LogLevel)

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		logger.Error("dial rpc endpoint", "url", cfg.RPCURL, "error", err)
		os.Exit(1)
	}
	defer client.Close()

	source, err := positions.NewResolver(client, cfg.Resolver())
	if err != nil {
		logger.Error("construct position resolver", "error", err)
		os.Exit(1)
	}

	seed, err := tokens.LoadSeed(cfg.TokenSeedFile)
	if err != nil {
		logger.Error("load token seed", "path", cfg.TokenSeedFile, "error", err)
		os.Exit(1)
	}
	fetcher, err := tokens.NewERC20Fetcher(client)
	if err != nil {
		logger.Error("construct erc20 fetcher", "error", err)
		os.Exit(1)
	}
	tokenResolver := tokens.NewResolver(tokens.NewRegistry(seed...), fetcher, logger)

	logs := logsource.NewClient(logsource.Config{
		Endpoint:     cfg.LogAPIURL,
		APIKey:       cfg.LogAPIKey,
		ChainID:      cfg.ChainID,
		PageSize:     cfg.PageSize,
		PageInterval: cfg.PageInterval(),
		Retry: logsource.RetryPolicy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBase(),
			MaxDelay:    cfg.RetryMax(),
		},
		Log: logger,
	})

	svc := report.NewService(
		source,
		tokenResolver,
		prices.NewResolver(nil, cfg.PriceAPIURL, logger),
		ledger.NewAssembler(logs, logger),
		logger,
	)

	if *serve {
		runServer(cfg, svc, logger)
		return
	}
	runOnce(svc, logger, *owner, *position)
}

func runOnce(svc *report.Service, logger *slog.Logger, owner, position string) {
	ctx, cancel := context.WithTimeout(context.Background(), oneShotTimeout)
	defer cancel()

	var (
		rep *report.Report
		err error
	)
	switch {
	case position != "":
		id, ok := new(big.Int).SetString(position, 10)
		if !ok || id.Sign() < 0 {
			logger.Error("invalid position id", "id", position)
			os.Exit(2)
		}
		rep, err = svc.GenerateByPosition(ctx, id)
	case owner != "":
		if !common.IsHexAddress(owner) {
			logger.Error("invalid owner address", "owner", owner)
			os.Exit(2)
		}
		rep, err = svc.GenerateByOwner(ctx, common.HexToAddress(owner))
	default:
		fmt.Fprintln(os.Stderr, "usage: vaultscope -owner 0x... | -position <id> | -serve")
		os.Exit(2)
	}
	if err != nil {
		switch {
		case errors.Is(err, report.ErrNoPositions):
			logger.Error("owner holds no positions", "error", err)
		case errors.Is(err, report.ErrNotFound):
			logger.Error("position does not exist", "error", err)
		case errors.Is(err, report.ErrConnectivity):
			logger.Error("position source unreachable", "error", err)
		default:
			logger.Error("report generation failed", "error", err)
		}
		os.Exit(1)
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(rep); err != nil {
		logger.Error("encode report", "error", err)
		os.Exit(1)
	}
}

func runServer(cfg *config.Config, svc *report.Service, logger *slog.Logger) {
	server := &http.Server{
		Addr:              cfg.Listen,
		Handler:           gateway.New(svc, logger, cfg.RateLimitPerMin),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving reports", "listen", cfg.Listen)
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", "error", err)
		}
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("serve", "error", err)
			os.Exit(1)
		}
	}
}
