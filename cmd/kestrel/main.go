// Kestrel - Risk analytics for production-credit registries.
// Copyright (c) 2025 opencredit
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opencredit/kestrel/internal/api"
	"github.com/opencredit/kestrel/internal/bus"
	"github.com/opencredit/kestrel/internal/cache"
	"github.com/opencredit/kestrel/internal/config"
	"github.com/opencredit/kestrel/internal/domain"
	"github.com/opencredit/kestrel/internal/refresh"
	"github.com/opencredit/kestrel/internal/repository"
	"github.com/opencredit/kestrel/internal/rules"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogger(cfg.Logging)

	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)
	slog.Info("configuration loaded",
		"tier", cfg.Tier,
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

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize Screening Engine
	engine, err := rules.NewEngine(100)
	if err != nil {
		slog.Error("failed to initialize screening engine", "error", err)
		os.Exit(1)
	}
	if err := loadScreeningRules(ctx, repo, engine); err != nil {
		slog.Error("failed to load screening rules", "error", err)
		os.Exit(1)
	}
	slog.Info("screening engine initialized", "rules_count", engine.RulesCount())

	// Initialize Refresh Orchestrator
	orch := refresh.NewOrchestrator(repo, cacheImpl, busImpl, engine, cfg.Refresh)

	// Start the periodic refresh scheduler (Pro default, opt-in elsewhere)
	var scheduler *refresh.Scheduler
	if cfg.Refresh.AutoRefresh {
		scheduler = refresh.NewScheduler(orch, cfg.Refresh.CronSpec)
		if err := scheduler.Start(ctx); err != nil {
			slog.Error("failed to start refresh scheduler", "error", err)
			os.Exit(1)
		}
		slog.Info("refresh scheduler started", "spec", cfg.Refresh.CronSpec)
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, engine, orch, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	if scheduler != nil {
		scheduler.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

func setupLogger(cfg domain.LoggingConfig) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// loadScreeningRules loads the persisted rules into the engine. An empty
// database is seeded with the builtin starter rules so a fresh install
// screens something out of the box.
func loadScreeningRules(ctx context.Context, repo domain.Repository, engine *rules.Engine) error {
	dbRules, err := repo.ListScreeningRules(ctx)
	if err != nil {
		return err
	}

	if len(dbRules) == 0 {
		slog.Info("no screening rules in database - seeding builtins")
		for _, rule := range rules.BuiltinRules() {
			if err := repo.SaveScreeningRule(ctx, rule); err != nil {
				return err
			}
		}
		dbRules, err = repo.ListScreeningRules(ctx)
		if err != nil {
			return err
		}
	}

	return engine.LoadRules(dbRules)
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  kestrel - risk analytics for production-credit registries")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /refresh               - Run the analysis pipeline")
	fmt.Println("    GET  /results               - Latest result bundle")
	fmt.Println("    GET  /alerts                - Latest alerts")
	fmt.Println("    POST /alerts/{id}/resolve   - Resolve an alert")
	fmt.Println("    GET  /analytics             - Temporal and status analytics")
	fmt.Println("    GET  /scores                - Health, risk, compliance scores")
	fmt.Println("    POST /credits               - Ingest a credit")
	fmt.Println("    POST /transactions          - Ingest a transaction")
	fmt.Println("    POST /listings              - Ingest a listing")
	fmt.Println("    GET  /rules                 - List screening rules")
	fmt.Println("    POST /rules                 - Create a screening rule")
	fmt.Println("    POST /rules/reload          - Hot-reload rules from database")
	fmt.Println("    GET  /metrics               - Prometheus metrics")
	fmt.Println("    GET  /health                - Health check")
	fmt.Println()
}
