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

	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/indexer/handler"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/Post-Index-Comparison/pkg/sysinfo"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	slog.Info("starting post indexer", "engine", cfg.Engine.Kind, "port", cfg.Server.Port)

	m := metrics.New()
	engine, err := indexer.NewEngine(cfg.Engine, m)
	if err != nil {
		slog.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			shutdownMetrics(shutdownCtx)
		}()
	}

	if path := startupDataset(cfg.Engine); path != "" {
		res, err := engine.LoadFile(ctx, path, cfg.Ingest.MaxLineBytes, ingestion.Options{
			Timeout:        cfg.Ingest.Timeout,
			ProgressEvery:  cfg.Ingest.ProgressEvery,
			EstimateTarget: cfg.Ingest.EstimateTarget,
		})
		if err != nil {
			slog.Error("preload failed", "path", path, "loaded", res.Loaded, "error", err)
			os.Exit(1)
		}
		slog.Info("preload complete",
			"path", path,
			"posts", res.Loaded,
			"skipped", res.Skipped,
			"timed_out", res.TimedOut,
			"capacity_reached", res.CapacityReached,
			"rss_mb", int64(sysinfo.MaxRSSMB()),
		)
	}
	engine.StartStatsLoop(ctx, cfg.Stats.Interval)

	checker := health.NewChecker()
	checker.Register("engine", func(ctx context.Context) health.ComponentHealth {
		return health.ComponentHealth{
			Status:  health.StatusUp,
			Message: fmt.Sprintf("%s holding %d posts", engine.Kind(), engine.Len()),
		}
	})

	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable", "error", err)
		} else {
			defer redisClient.Close()
			checker.RegisterOptional("redis", health.PingCheck(redisClient))
		}
	}
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable", "error", err)
		} else {
			defer db.Close()
			checker.RegisterOptional("postgres", health.PingCheck(db))
		}
	}

	if cfg.Kafka.Enabled {
		kafkaConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.PostEvents, consumer.HandleEvents(engine, m))
		postConsumer := consumer.New(kafkaConsumer)
		checker.RegisterOptional("kafka", func(ctx context.Context) health.ComponentHealth {
			return health.ComponentHealth{Status: health.StatusUp, Message: fmt.Sprintf("lag %d", kafkaConsumer.Lag())}
		})
		go func() {
			if err := postConsumer.Start(ctx); err != nil {
				slog.Error("post consumer error", "error", err)
			}
		}()
		slog.Info("consuming post events",
			"topic", cfg.Kafka.Topics.PostEvents,
			"group", cfg.Kafka.ConsumerGroup,
		)
	}

	mux := http.NewServeMux()
	handler.New(engine).Register(mux, checker)

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	if cfg.Server.WriteLimit > 0 {
		limiter := ratelimit.New(cfg.Server.WriteLimit, cfg.Server.WriteWindow)
		go limiter.RunCleanup(ctx, 5*time.Minute)
		chain = middleware.RateLimit(limiter, int(cfg.Server.WriteWindow.Seconds()))(chain)
	}
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
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

	slog.Info("post indexer listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	if cfg.Engine.Snapshot != "" {
		if _, err := engine.Export(cfg.Engine.Snapshot); err != nil {
			slog.Error("snapshot failed", "path", cfg.Engine.Snapshot, "error", err)
		}
	}
	slog.Info("post indexer stopped", "posts", engine.Len())
}

// startupDataset picks the file to load at startup: an existing snapshot
// wins over the configured preload.
func startupDataset(cfg config.EngineConfig) string {
	if cfg.Snapshot != "" {
		if _, err := os.Stat(cfg.Snapshot); err == nil {
			return cfg.Snapshot
		}
	}
	return cfg.Preload
}
