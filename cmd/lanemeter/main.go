// Lanemeter - Carrier rules engine for RoRo freight quotation.
// Copyright (c) 2025 opensource.freight
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-freight/lanemeter/internal/api"
	"github.com/opensource-freight/lanemeter/internal/bus"
	"github.com/opensource-freight/lanemeter/internal/cache"
	"github.com/opensource-freight/lanemeter/internal/domain"
	"github.com/opensource-freight/lanemeter/internal/grouping"
	"github.com/opensource-freight/lanemeter/internal/repository"
	"github.com/opensource-freight/lanemeter/internal/rules"
	"github.com/opensource-freight/lanemeter/internal/worker"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("LANEMETER_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	slog.Info("starting lanemeter",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for cluster profile via environment
	if os.Getenv("LANEMETER_PROFILE") == "cluster" {
		cfg = domain.ClusterConfig()
		slog.Info("running in cluster profile")
	}

	slog.Info("configuration loaded",
		"profile", cfg.Profile,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize rule store
	store, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize event bus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Rule source with snapshot cache in front of the store
	source := cache.NewSourceCache(store, cacheImpl, cfg.Cache.RuleTTL)

	// Category-group resolution
	groupingSvc := grouping.NewService(source, cacheImpl, cfg.Cache.RuleTTL)
	slog.Info("grouping service initialized")

	// Initialize rating engine
	engine, err := rules.NewEngine(source, groupingSvc.Getter())
	if err != nil {
		slog.Error("failed to initialize rating engine", "error", err)
		os.Exit(1)
	}
	slog.Info("rating engine initialized")

	// Initialize async worker
	var asyncWorker *worker.Worker
	if cfg.Profile == domain.ProfileCluster || os.Getenv("LANEMETER_ASYNC_WORKER") == "true" {
		asyncWorker = worker.NewWorker(busImpl, engine)

		var carrierIDs []string
		if envCarriers := os.Getenv("LANEMETER_CARRIERS"); envCarriers != "" {
			carrierIDs = strings.Split(envCarriers, ",")
		}

		workerCfg := worker.Config{
			CarrierIDs: carrierIDs,
		}

		if err := asyncWorker.Start(workerCfg); err != nil {
			slog.Error("failed to start async worker", "error", err)
		} else {
			slog.Info("async worker started", "carrier_count", len(carrierIDs))
		}
	}

	// Initialize server
	srv := api.NewServer(cfg.Server, store, cacheImpl, busImpl, engine, Version)

	// Start server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("lanemeter is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async worker first
	if asyncWorker != nil {
		if err := asyncWorker.Stop(); err != nil {
			slog.Error("failed to stop async worker", "error", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("lanemeter shutdown complete")
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║              🚢 LANEMETER                 ║")
	fmt.Println("  ║       Carrier Rules Engine for RoRo       ║")
	fmt.Println("  ║       Every lane meter accounted for.     ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Profile:  %s\n", cfg.Profile)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /rate              - Rate a cargo unit")
	fmt.Println("    GET  /rules/{type}      - List rules of a type")
	fmt.Println("    POST /rules/{type}      - Create a rule")
	fmt.Println("    POST /groups            - Create a category group")
	fmt.Println("    POST /cache/invalidate  - Drop cached rule snapshots")
	fmt.Println("    GET  /health            - Health check")
	fmt.Println()
}
