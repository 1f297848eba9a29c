package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BittieTasks/trust/internal/api"
	"github.com/BittieTasks/trust/internal/approval"
	"github.com/BittieTasks/trust/internal/audit"
	"github.com/BittieTasks/trust/internal/config"
	"github.com/BittieTasks/trust/internal/content"
	"github.com/BittieTasks/trust/internal/events"
	"github.com/BittieTasks/trust/internal/fraud"
	"github.com/BittieTasks/trust/internal/history"
	"github.com/BittieTasks/trust/internal/metrics"
	"github.com/BittieTasks/trust/internal/store"
	"github.com/BittieTasks/trust/internal/velocity"
	"github.com/BittieTasks/trust/internal/verification"
	"github.com/BittieTasks/trust/internal/workerclass"
)

// decisionLog is what the engines record to and the API reads from.
type decisionLog interface {
	audit.Log
	history.Lookup
}

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := slog.New(cfg.LogHandler(os.Stdout))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Audit store
	var decisions decisionLog
	switch {
	case cfg.Database.URL != "":
		db, err := store.NewPostgresStore(ctx, cfg.Database.URL)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			logger.Error("failed to prepare database", "error", err)
			os.Exit(1)
		}
		decisions = db
		logger.Info("connected to database")
	case cfg.Database.SQLitePath != "":
		db, err := store.OpenSQLite(ctx, cfg.Database.SQLitePath)
		if err != nil {
			logger.Error("failed to open sqlite", "path", cfg.Database.SQLitePath, "error", err)
			os.Exit(1)
		}
		defer db.Close()
		decisions = db
		logger.Info("opened sqlite store", "path", cfg.Database.SQLitePath)
	default:
		decisions = audit.NewMemoryLog()
		logger.Warn("no database configured, decisions are kept in memory")
	}

	// Events (optional)
	var recorder audit.Recorder = decisions
	if cfg.Events.NATSURL != "" {
		nc, err := events.NewNATSClient(ctx, cfg.Events.NATSURL, logger)
		if err != nil {
			logger.Warn("failed to connect to nats, running without events", "error", err)
		} else {
			defer nc.Close()
			recorder = audit.NewTee(decisions, logger, events.NewDecisionPublisher(nc))
			logger.Info("connected to nats")
		}
	}

	// Velocity counters
	var counter velocity.Counter = velocity.NewMemoryCounter()
	if cfg.Redis.Addr != "" {
		rc := velocity.NewRedisCounter(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err := rc.Ping(ctx); err != nil {
			logger.Warn("redis unavailable, using in-process velocity counters", "error", err)
			_ = rc.Close()
		} else {
			defer rc.Close()
			counter = rc
			logger.Info("connected to redis")
		}
	}

	// Document capability (optional)
	var documents content.DocumentAnalyzer
	if cfg.Documents.URL != "" {
		documents = content.NewHTTPDocumentAnalyzer(cfg.Documents.URL, cfg.Documents.Token)
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	tasks, err := approval.New(cfg.TaskApproval, approval.Deps{
		Recorder: recorder, History: decisions, Metrics: m, Logger: logger,
	})
	if err != nil {
		logger.Error("invalid task approval config", "error", err)
		os.Exit(1)
	}
	requests, err := fraud.New(cfg.FraudCheck, fraud.Deps{
		Recorder: recorder, History: decisions, Counter: counter, Metrics: m, Logger: logger,
	})
	if err != nil {
		logger.Error("invalid fraud check config", "error", err)
		os.Exit(1)
	}
	profiles, err := verification.New(cfg.HumanVerification, verification.Deps{
		Recorder: recorder, Documents: documents, Metrics: m, Logger: logger,
	})
	if err != nil {
		logger.Error("invalid human verification config", "error", err)
		os.Exit(1)
	}
	workers, err := workerclass.New(cfg.WorkerClassification, workerclass.Deps{
		Recorder: recorder, Metrics: m, Logger: logger,
	})
	if err != nil {
		logger.Error("invalid worker classification config", "error", err)
		os.Exit(1)
	}

	routerCfg := api.RouterConfig{
		Engines: api.Engines{
			Tasks:    tasks,
			Requests: requests,
			Profiles: profiles,
			Workers:  workers,
		},
		Audit:          decisions,
		AdminToken:     cfg.Server.AdminToken,
		RateLimitRPS:   cfg.Server.RateLimitRPS,
		RateLimitBurst: cfg.Server.RateLimitBurst,
	}
	if cfg.FraudGuard.Enabled {
		routerCfg.FraudGuard = requests
	}

	// API server
	apiServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: api.NewRouter(routerCfg, logger),
	}

	// Metrics server
	metricsServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.MetricsPort),
		Handler: api.NewMetricsRouter(),
	}

	go func() {
		logger.Info("API server starting", "port", cfg.Server.Port)
		if err := apiServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("API server error", "error", err)
		}
	}()

	go func() {
		logger.Info("metrics server starting", "port", cfg.Server.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("metrics server error", "error", err)
		}
	}()

	// Graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutting down...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer shutdownCancel()

	_ = apiServer.Shutdown(shutdownCtx)
	_ = metricsServer.Shutdown(shutdownCtx)

	logger.Info("shutdown complete")
}
