package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/bantec-cbs/interbank-orchestrator/internal/accounts"
	"github.com/bantec-cbs/interbank-orchestrator/internal/api"
	"github.com/bantec-cbs/interbank-orchestrator/internal/config"
	"github.com/bantec-cbs/interbank-orchestrator/internal/idempotency"
	"github.com/bantec-cbs/interbank-orchestrator/internal/ledger"
	"github.com/bantec-cbs/interbank-orchestrator/internal/observability"
	"github.com/bantec-cbs/interbank-orchestrator/internal/orchestrator"
	"github.com/bantec-cbs/interbank-orchestrator/internal/store"
	"github.com/bantec-cbs/interbank-orchestrator/internal/switchclient"
	"github.com/bantec-cbs/interbank-orchestrator/internal/worker"
)

// Run bootstraps the HTTP server and settlement sweeper, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	local, err := store.Open(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open local store: %w", err)
	}
	defer local.Close()

	var gateway switchclient.Gateway
	var directory switchclient.Directory
	if cfg.SwitchURL == "" {
		logger.Warn("no switch url configured, using in-process simulator")
		mock := switchclient.NewMockSwitch()
		gateway, directory = mock, mock
	} else {
		client := switchclient.NewClient(cfg.SwitchURL, cfg.BankCode, cfg.SwitchTimeout)
		gateway, directory = client, client
	}

	var source accounts.Source
	if cfg.AccountsURL != "" {
		source = accounts.NewClient(cfg.AccountsURL, cfg.SwitchTimeout)
	} else {
		logger.Warn("no accounts url configured, balances serve from cache only")
		source = accounts.NewStaticSource(nil)
	}

	ledgerSync := ledger.NewSync(local, source, logger)
	if cfg.AccountsURL != "" {
		if err := ledgerSync.Refresh(ctx); err != nil {
			logger.Warn("initial account refresh failed", zap.Error(err))
		}
	}

	keys := idempotency.NewManager(local)
	submitter := orchestrator.NewSubmitter(gateway, logger)
	poller := orchestrator.NewPoller(gateway, cfg.PollDelay, cfg.PollBudget, logger)
	registry := orchestrator.NewRegistry(func(scope string) *orchestrator.Machine {
		return orchestrator.NewMachine(scope, keys, submitter, poller, ledgerSync, local, local, logger)
	})

	sweeper := worker.NewSettlementSweeper(local, gateway, ledgerSync).
		WithInterval(cfg.SweepInterval)
	stopSweeper := sweeper.Run(ctx)
	logger.Info("settlement sweeper started", zap.Duration("interval", cfg.SweepInterval))

	janitor := worker.NewRegistryJanitor(registry)
	stopJanitor := janitor.Run(ctx)

	router := api.NewRouter(cfg, logger, registry, local, ledgerSync, directory)

	// WriteTimeout must cover a full confirmation: the submission call plus
	// the whole polling budget.
	writeTimeout := cfg.SwitchTimeout + time.Duration(cfg.PollBudget)*(cfg.PollDelay+cfg.SwitchTimeout)
	if writeTimeout < 30*time.Second {
		writeTimeout = 30 * time.Second
	}
	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: writeTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping background workers")
	stopSweeper()
	stopJanitor()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	// Background ledger refreshes must not outlive the store.
	ledgerSync.Wait()

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}
