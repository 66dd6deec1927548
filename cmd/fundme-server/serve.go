package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pendergraft/fundme/internal/config"
	"github.com/pendergraft/fundme/internal/deploy"
	"github.com/pendergraft/fundme/internal/ledger/domain"
	"github.com/pendergraft/fundme/internal/networks"
	"github.com/pendergraft/fundme/internal/observability/metrics"
	"github.com/pendergraft/fundme/internal/payout"
	"github.com/pendergraft/fundme/internal/server"
	"github.com/pendergraft/fundme/internal/storage"
)

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := setupLogger(cfg)
	slog.SetDefault(logger)
	logger.Info("starting fundme-server", "version", version)

	metrics.Init(cfg.Metrics.Enabled, "fundme")

	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	ctx := context.Background()
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	table, err := loadNetworks(cfg)
	if err != nil {
		return err
	}

	mockAnswer, ok := new(big.Int).SetString(cfg.Ledger.MockAnswer, 10)
	if !ok {
		return fmt.Errorf("MOCK_PRICE_ANSWER is not an integer: %q", cfg.Ledger.MockAnswer)
	}

	transferer := payout.NewStoreTransferer(store)
	dep, err := deploy.NewDeployer(table, store, transferer, logger, nil).Deploy(ctx, deploy.Params{
		Network:      cfg.Ledger.Network,
		ChainID:      cfg.Ledger.ChainID,
		Owner:        cfg.Owner(),
		MinimumUSD:   cfg.Ledger.MinimumUSD,
		RPCURL:       cfg.Ledger.RPCURL,
		PriceMaxAge:  time.Duration(cfg.Ledger.PriceMaxAgeSec) * time.Second,
		MockDecimals: uint8(cfg.Ledger.MockDecimals),
		MockAnswer:   mockAnswer,
	})
	if err != nil {
		return fmt.Errorf("deploying ledger: %w", err)
	}
	defer dep.Close()

	opts := []domain.ServiceOption{
		domain.WithNetwork(dep.Network.Name, dep.Network.ChainID, dep.Network.Development),
		domain.WithLogger(logger),
	}
	if dep.Mock != nil {
		opts = append(opts, domain.WithMockFeed(dep.Mock))
	}
	svc := domain.LoggingMiddleware(logger)(domain.NewService(dep.Ledger, store, transferer, opts...))

	srv := server.New(cfg, store, svc, logger, version, server.WithNetworks(table))
	defer srv.Close()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      srv.Handler(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeout) * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

func loadNetworks(cfg *config.Config) (*networks.Table, error) {
	table := networks.Default()
	if cfg.Ledger.NetworksFile != "" {
		if err := table.LoadFile(cfg.Ledger.NetworksFile); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func setupLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
