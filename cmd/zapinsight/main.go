// Package main contains the entrypoint for the zapinsight analytics
// service.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunosaraiva/zapinsight/internal/analytics"
	"github.com/brunosaraiva/zapinsight/internal/config"
	"github.com/brunosaraiva/zapinsight/internal/database"
	"github.com/brunosaraiva/zapinsight/internal/gateway"
	"github.com/brunosaraiva/zapinsight/internal/llm"
	"github.com/brunosaraiva/zapinsight/internal/logger"
	"github.com/brunosaraiva/zapinsight/internal/scheduler"
	"github.com/brunosaraiva/zapinsight/internal/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components, serves until the context is
// cancelled, and returns an exit code.
func run(ctx context.Context) int {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "format", cfg.Log.Format)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to open database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	llmClient, err := llm.NewClient(ctx, cfg.LLM, log)
	if err != nil {
		log.Error("Failed to initialize LLM client", "error", err)
		return 1
	}

	gw := gateway.NewClient(cfg.Gateway, log)

	events := analytics.NewEvents(log)
	processor := analytics.NewProcessor(store, events, cfg.Analytics.MinContentLength, log)
	sentiment := analytics.NewSentimentAnalyzer(store, llmClient,
		cfg.Analytics.MinContentLength, cfg.Analytics.BatchConcurrency, log)
	relationships := analytics.NewRelationshipBuilder(store, cfg.Analytics, log)
	patterns := analytics.NewPatternDetector(store, cfg.Analytics.PatternLookback, log)
	alerts := analytics.NewAlertEngine(store, gw, cfg.Gateway.AdminJID, log)
	insights := analytics.NewInsightGenerator(store, llmClient, log)

	orch := analytics.NewOrchestrator(store, events, sentiment, relationships,
		patterns, alerts, insights, cfg.Analytics, log)

	sched, err := scheduler.New(log, cfg.Scheduler, map[string]scheduler.TaskFunc{
		"alert_sweep":    orch.RunAlertSweep,
		"db_maintenance": store.RunMaintenance,
	})
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	webhook := server.NewWebhookController(processor, log)
	dashboard := server.NewDashboardController(store, relationships, patterns, insights, log)
	srv := server.New(cfg.Server, store, webhook, dashboard, log)

	orch.Start(ctx)
	defer orch.Stop()

	if err := sched.Start(); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		return 1
	}
	defer func() {
		if err := sched.Stop(); err != nil {
			log.Warn("Scheduler shutdown error", "error", err)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Info("zapinsight started")
	runErr := g.Wait()
	log.Info("Shutting down...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Service stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Service stopped gracefully.")
	return 0
}
