// Command esg-analytics starts the standalone analytics aggregation service.
//
// It consumes usage events from Kafka, aggregates them in memory (forecasts
// by trend, indexed chunks, search and chat outcomes, latency percentiles,
// top queries), snapshots the aggregate to Postgres or a local SQLite file,
// and exposes it at GET /api/v1/analytics for dashboards.
//
// Usage:
//
//	go run ./cmd/esg-analytics [-config configs/development.yaml]
package main

import (
	"context"
	"database/sql"
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
	"github.com/esgpulse/esg-analytics/internal/analytics/aggregator"
	"github.com/esgpulse/esg-analytics/pkg/config"
	"github.com/esgpulse/esg-analytics/pkg/health"
	"github.com/esgpulse/esg-analytics/pkg/kafka"
	"github.com/esgpulse/esg-analytics/pkg/logger"
	"github.com/esgpulse/esg-analytics/pkg/metrics"
	"github.com/esgpulse/esg-analytics/pkg/middleware"
	"github.com/esgpulse/esg-analytics/pkg/postgres"
	"github.com/esgpulse/esg-analytics/pkg/sqlite"
	"github.com/joho/godotenv"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, "service", "esg-analytics")
	slog.Info("starting analytics service", "port", cfg.Server.Port)

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

	checker := health.NewChecker(2 * time.Second)
	agg := analytics.NewAggregator()

	// Snapshots survive restarts when a database is configured.
	db, dialect, err := openSnapshotDB(cfg)
	if err != nil {
		slog.Error("failed to open snapshot database", "error", err)
		os.Exit(1)
	}
	var (
		store     *aggregator.Store
		saverDone <-chan struct{}
	)
	if db != nil {
		defer db.Close()
		store = aggregator.NewStore(db, dialect)
		if err := store.Migrate(ctx); err != nil {
			slog.Error("failed to migrate snapshot schema", "error", err)
			os.Exit(1)
		}
		latest, err := store.LatestSnapshot(ctx)
		if err != nil {
			slog.Warn("could not restore snapshot, starting empty", "error", err)
		} else if latest != nil {
			agg.Restore(*latest)
			slog.Info("aggregate restored from snapshot", "captured_at", latest.CapturedAt)
		}
		saverDone = store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval, cfg.Analytics.Retention)
		checker.Critical(string(dialect), db.PingContext)
	}

	consumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, analytics.HandleEvent(agg))
	consumerDone := make(chan struct{})
	go func() {
		defer close(consumerDone)
		if err := consumer.Start(ctx); err != nil {
			slog.Error("consumer error", "error", err)
		}
	}()
	checker.Optional("kafka", func(ctx context.Context) error {
		return kafka.Ping(ctx, cfg.Kafka.Brokers)
	})
	slog.Info("analytics consumer started", "topic", cfg.Kafka.Topics.AnalyticsEvents)

	var lister analytics.SnapshotLister
	if store != nil {
		lister = store
	}
	handler := analytics.NewHandler(agg, lister)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/analytics", handler.Stats)
	mux.HandleFunc("GET /api/v1/analytics/snapshots", handler.Snapshots)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Metrics(m)(chain)
	chain = middleware.Recover(chain)
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

	slog.Info("analytics service listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server error", "error", err)
		stop()
	}

	<-consumerDone
	if saverDone != nil {
		<-saverDone
	}
	slog.Info("analytics service stopped")
}

// openSnapshotDB prefers Postgres, then a SQLite file. It returns a nil DB
// when neither is configured.
func openSnapshotDB(cfg *config.Config) (*sql.DB, postgres.Dialect, error) {
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			return nil, "", err
		}
		return pg.DB, postgres.DialectPostgres, nil
	}
	if cfg.Analytics.SQLitePath != "" {
		db, err := sqlite.Open(cfg.Analytics.SQLitePath)
		if err != nil {
			return nil, "", err
		}
		return db, postgres.DialectSQLite, nil
	}
	slog.Warn("no snapshot database configured, aggregates are lost on restart")
	return nil, "", nil
}
