// Copyright 2025 Certen Protocol
//
// Command ledgersubsystem runs the aggregation engine as a standalone
// process: load configuration, open the store and checkpoint, start the
// engine loop, serve Prometheus metrics, and shut down cleanly on
// SIGINT/SIGTERM. Grounded on the donor's root main.go (flag parsing,
// http.Server + graceful Shutdown, signal.Notify), narrowed from the
// donor's full validator wiring to this subsystem's single engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/certen/ledgersubsystem/internal/logging"
	"github.com/certen/ledgersubsystem/pkg/anchor"
	"github.com/certen/ledgersubsystem/pkg/checkpoint"
	"github.com/certen/ledgersubsystem/pkg/config"
	"github.com/certen/ledgersubsystem/pkg/engine"
	"github.com/certen/ledgersubsystem/pkg/ethereum"
	"github.com/certen/ledgersubsystem/pkg/ledgerstore"
	"github.com/certen/ledgersubsystem/pkg/mailbox"
	"github.com/certen/ledgersubsystem/pkg/timer"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to the ledger subsystem's YAML config file")
		listenAddr = flag.String("listen", ":9090", "Address the metrics/health HTTP server listens on")
		logLevel   = flag.String("log-level", "info", "Log level: debug, info, warn, error")
	)
	flag.Parse()

	level, err := logging.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := logging.New(&logging.Config{Level: level, Format: "json", Output: "stdout"})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := run(*configPath, *listenAddr, logger); err != nil {
		logger.WithError(err).Error("ledgersubsystem exited with error")
		os.Exit(1)
	}
}

func run(configPath, listenAddr string, logger *logging.Logger) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbPath := filepath.Join(cfg.WorkingDir, cfg.Ledger.AuxiliaryDB)
	store, err := ledgerstore.Open(ctx, dbPath, ledgerstore.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("opening ledger store at %s: %w", dbPath, err)
	}
	defer store.Close()

	ckpt := checkpoint.Open(filepath.Join(cfg.WorkingDir, "ledger_subsystem.json"))
	mbox := mailbox.New(256)
	tm := timer.New(cfg.MaxBatchAge(), mbox)

	registry := prometheus.NewRegistry()
	metrics := engine.NewMetrics(registry)

	makeClient := func() (anchor.Client, error) {
		return anchor.NewEthereumClient(cfg.Ethereum, logger)
	}

	eng := engine.New(cfg, mbox, store, ckpt, tm, makeClient, logger, metrics)

	engDone := make(chan error, 1)
	go func() { engDone <- eng.Run(ctx) }()

	if err := eng.Enable(ctx); err != nil {
		return fmt.Errorf("enabling engine: %w", err)
	}
	logger.Info("aggregation engine enabled", "subsystem", cfg.LedgerSubsystem.Subsystem, "capacity", cfg.LedgerSubsystem.MaxTransactions)

	// A separate dial from the engine's own anchoring client: the engine's
	// client is only ever touched on its own goroutine, and /health must be
	// safe to call concurrently with it.
	var healthClient *ethereum.Client
	if cfg.LedgerSubsystem.Subsystem == "ethereum" && cfg.Ethereum.URL != "" {
		healthClient, err = ethereum.NewClient(cfg.Ethereum.URL, cfg.Ethereum.ChainID)
		if err != nil {
			logger.WithError(err).Warn("dialing ethereum health check client")
		}
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(r.Context()); err != nil {
			http.Error(w, fmt.Sprintf("ledger store: %v", err), http.StatusServiceUnavailable)
			return
		}
		if healthClient != nil {
			if err := healthClient.Health(r.Context()); err != nil {
				http.Error(w, fmt.Sprintf("anchoring chain: %v", err), http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	httpServer := &http.Server{Addr: listenAddr, Handler: mux}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("metrics server listening", "addr", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	engineExited := false
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			logger.WithError(err).Error("metrics server failed")
		}
	case err := <-engDone:
		engineExited = true
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.WithError(err).Error("engine loop exited unexpectedly")
		}
	}

	disableCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if !engineExited {
		if err := eng.Disable(disableCtx); err != nil {
			logger.WithError(err).Warn("disabling engine during shutdown")
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("metrics server shutdown")
	}

	stop()
	if !engineExited {
		<-engDone
	}
	logger.Info("ledgersubsystem stopped")
	return nil
}
