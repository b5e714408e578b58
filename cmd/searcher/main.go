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

	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/auth"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/auth/apikey"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/lsa"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/engine"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/postgres"
	pkgredis "github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/phytosearch/pkg/tracing"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
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
	tracing.SetEnabled(cfg.Tracing.Enabled)
	slog.Info("starting search service", "port", cfg.Server.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	eng, err := engine.New(ctx, cfg)
	if err != nil {
		slog.Error("failed to build search engine", "error", err)
		os.Exit(1)
	}
	m := metrics.New(prometheus.DefaultRegisterer)

	if cfg.LSA.Enabled {
		if path, gen, err := eng.LoadLatestModel(); err != nil {
			m.LSARebuildsTotal.WithLabelValues("failed").Inc()
			slog.Warn("lsa artifacts unavailable, /api/v1/search/lsa will answer 503", "error", err)
		} else {
			m.LSARebuildsTotal.WithLabelValues("loaded").Inc()
			m.LSAGeneration.Set(float64(gen))
			slog.Info("lsa artifacts loaded", "path", path)
		}
	}

	var queryCache *cache.QueryCache
	redisClient, err := pkgredis.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("redis unavailable, search caching disabled", "error", err)
	} else {
		defer redisClient.Close()
		breaker := resilience.NewCircuitBreaker("redis-cache", resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			ResetTimeout:     30 * time.Second,
			OnStateChange: func(name string, from, to resilience.State) {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			},
		})
		queryCache = cache.New(redisClient, cfg.Redis.CacheTTL, breaker)
		slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
	}

	aggregator := analytics.NewAggregator()
	var collector *analytics.Collector
	if cfg.Analytics.Enabled {
		var publisher kafka.Publisher = aggregator
		if cfg.Kafka.Enabled {
			producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
			defer producer.Close()
			publisher = producer

			consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(aggregator))
			defer consumer.Close()
			go func() {
				if err := consumer.Start(ctx); err != nil {
					slog.Error("analytics consumer error", "error", err)
				}
			}()
		}
		collector = analytics.NewCollector(publisher, cfg.Analytics)
		collector.Start(ctx)
		defer collector.Close()
	}

	if cfg.LSA.Enabled && cfg.Kafka.Enabled {
		onSwap := func(_ *lsa.Model, gen uint64) {
			m.LSARebuildsTotal.WithLabelValues("loaded").Inc()
			m.LSAGeneration.Set(float64(gen))
			if queryCache == nil {
				return
			}
			if _, err := queryCache.Invalidate(context.Background(), handler.ModeLSA); err != nil {
				slog.Warn("failed to invalidate lsa cache after swap", "error", err)
			}
		}
		hostname, _ := os.Hostname()
		reloads := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ArtifactsPublished,
			lsa.ReloadHandler(eng.Holder, onSwap),
			kafka.WithGroupID(cfg.Kafka.ConsumerGroup+"-lsa-"+hostname),
		)
		defer reloads.Close()
		go func() {
			if err := reloads.Start(ctx); err != nil {
				slog.Error("lsa reload consumer error", "error", err)
			}
		}()
		slog.Info("listening for lsa bundle notices", "topic", cfg.Kafka.Topics.ArtifactsPublished)
	}

	checker := health.NewChecker()
	checker.Register("resources", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%d terms, %d documents", len(eng.Resources.Index), eng.Resources.NumDocuments()),
		}
	})
	if cfg.LSA.Enabled {
		checker.Register("lsa", lsa.HealthCheck(eng.Holder, eng.Fingerprint))
	}
	checker.Register("redis", func(ctx context.Context) health.ComponentHealth {
		if redisClient == nil {
			return health.ComponentHealth{Status: health.StatusDegraded, Message: "not configured"}
		}
		return health.PingCheck(redisClient.Ping)(ctx)
	})

	var adminGuard func(http.Handler) http.Handler
	if cfg.Auth.Enabled {
		db, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			slog.Error("failed to connect to postgres for admin keys", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		keys := apikey.NewStore(db)
		if err := keys.Migrate(ctx); err != nil {
			slog.Error("failed to migrate admin key schema", "error", err)
			os.Exit(1)
		}
		adminGuard = auth.RequireKey(keys)
		checker.Register("postgres", health.PingCheck(db.DB.PingContext))
		slog.Info("admin endpoints require an api key")
	}

	opts := []handler.Option{
		handler.WithMetrics(m),
		handler.WithGeneration(eng.Holder.Generation),
		handler.WithLimits(cfg.Search.DefaultLimit, cfg.Search.MaxResults),
		handler.WithTimeout(cfg.Search.Timeout),
	}
	if queryCache != nil {
		opts = append(opts, handler.WithCache(queryCache))
	}
	if collector != nil {
		opts = append(opts, handler.WithCollector(collector))
	}
	if adminGuard != nil {
		opts = append(opts, handler.WithAdminGuard(adminGuard))
	}
	h := handler.New(eng.Executor, opts...)

	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	analytics.NewHandler(aggregator).RegisterRoutes(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.CORS(middleware.DefaultCORSConfig()),
		middleware.Metrics(m),
	}
	if cfg.RateLimit.Enabled {
		limiter := middleware.NewClientLimiter(cfg.RateLimit)
		go sweepLimiter(ctx, limiter)
		mws = append(mws, middleware.RateLimit(limiter, m.RateLimitedTotal.Inc))
	}
	mws = append(mws, middleware.Timeout(cfg.Server.WriteTimeout))

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      middleware.Chain(mux, mws...),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	var shutdownMetrics func(context.Context) error
	if cfg.Metrics.Enabled {
		shutdownMetrics = metrics.StartServer(cfg.Metrics.Port, prometheus.DefaultGatherer)
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if shutdownMetrics != nil {
			if err := shutdownMetrics(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
	}()

	slog.Info("search service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("search service stopped")
}

func sweepLimiter(ctx context.Context, l *middleware.ClientLimiter) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				slog.Debug("rate limiter swept idle clients", "removed", n)
			}
		case <-ctx.Done():
			return
		}
	}
}
