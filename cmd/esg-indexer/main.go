// Command esg-indexer consumes queued report ingestion requests from Kafka
// and writes their chunks into the shared Redis chunk store, where esg-api
// ranks them.
//
// Usage:
//
//	go run ./cmd/esg-indexer [-config configs/development.yaml] [-addr :8081]
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

	"github.com/esgpulse/esg-analytics/internal/analytics"
	"github.com/esgpulse/esg-analytics/internal/document"
	"github.com/esgpulse/esg-analytics/internal/ingest"
	"github.com/esgpulse/esg-analytics/pkg/config"
	"github.com/esgpulse/esg-analytics/pkg/health"
	"github.com/esgpulse/esg-analytics/pkg/kafka"
	"github.com/esgpulse/esg-analytics/pkg/logger"
	"github.com/esgpulse/esg-analytics/pkg/metrics"
	"github.com/esgpulse/esg-analytics/pkg/redis"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	addr := flag.String("addr", ":8081", "health listen address")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, "service", "esg-indexer")
	slog.Info("starting indexer service", "topic", cfg.Kafka.Topics.ReportIngest, "group", cfg.Kafka.ConsumerGroup)

	rdb, err := redis.NewClient(cfg.Redis)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}
	defer rdb.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.Metrics.Enabled {
		metricsServer, err := metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			slog.Error("failed to start metrics server", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	events := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
	defer events.Close()
	collector := analytics.NewCollector(events,
		cfg.Analytics.BufferSize, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	collector.Start(ctx)
	defer collector.Close()

	store := document.NewRedisStore(rdb, cfg.Redis.ChunkTTL)
	indexer := document.NewIndexer(store, document.WithChunkSize(cfg.Documents.ChunkSize))
	handler := ingest.NewHandler(indexer, ingest.WithMetrics(m), ingest.WithTracker(collector.Track))
	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.ReportIngest, handler.Handle)

	checker := health.NewChecker(2 * time.Second)
	checker.Critical("redis", rdb.Ping)
	checker.Optional("kafka", func(ctx context.Context) error {
		return kafka.Ping(ctx, cfg.Kafka.Brokers)
	})

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	server := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("indexer health server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("health server error", "error", err)
		}
	}()

	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("health server shutdown error", "error", err)
	}

	slog.Info("indexer service stopped")
}
