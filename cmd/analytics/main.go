// Command analytics runs search analytics on its own.
//
// It consumes SearchEvents from Kafka, aggregates them in memory (method
// mix, fallback rate, cache hit rate, latency percentiles, top and
// zero-result queries) and serves GET /api/v1/analytics. When
// analytics.snapshotInterval is set, snapshots are written to PostgreSQL.
//
// Usage:
//
//	go run ./cmd/analytics [-config configs/development.yaml]
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

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/analytics/aggregator"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/postgres"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting analytics service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agg := analytics.NewAggregator()
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
	defer consumer.Close()
	go func() {
		if err := consumer.Start(ctx); err != nil {
			slog.Error("aggregator error", "error", err)
		}
	}()
	slog.Info("analytics aggregator started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	checker := health.NewChecker()
	if cfg.Analytics.SnapshotInterval > 0 {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		store := aggregator.NewStore(db)
		if err := store.Migrate(ctx); err != nil {
			slog.Error("failed to migrate analytics schema", "error", err)
			os.Exit(1)
		}
		if last, err := store.LatestSnapshot(ctx); err != nil {
			slog.Warn("could not read last snapshot", "error", err)
		} else if last != nil {
			slog.Info("previous snapshot found", "total_searches", last.TotalSearches, "since", last.Since)
		}
		store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
		checker.Register("postgres", health.PingCheck(db.DB.PingContext))
	}

	mux := http.NewServeMux()
	analytics.NewHandler(agg).RegisterRoutes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, middleware.RequestID),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("analytics service stopped")
}
