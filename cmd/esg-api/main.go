// Command esg-api starts the public ESG analytics API.
//
// It serves company score forecasts, document indexing and keyword search,
// report chat and summarisation over HTTP, the same forecast and document
// operations over the internal RPC listener, and Prometheus metrics on a
// separate port. Redis, Postgres and Kafka are optional: without them chunks
// and sessions stay in memory, histories are generated, and analytics events
// are aggregated in-process.
//
// Usage:
//
//	go run ./cmd/esg-api [-config configs/development.yaml]
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
	"github.com/esgpulse/esg-analytics/internal/api"
	"github.com/esgpulse/esg-analytics/internal/chat"
	"github.com/esgpulse/esg-analytics/internal/document"
	"github.com/esgpulse/esg-analytics/internal/history"
	"github.com/esgpulse/esg-analytics/internal/inference"
	"github.com/esgpulse/esg-analytics/internal/ingest"
	"github.com/esgpulse/esg-analytics/internal/prediction"
	"github.com/esgpulse/esg-analytics/internal/report"
	"github.com/esgpulse/esg-analytics/internal/rpcapi"
	"github.com/esgpulse/esg-analytics/pkg/config"
	"github.com/esgpulse/esg-analytics/pkg/health"
	"github.com/esgpulse/esg-analytics/pkg/kafka"
	"github.com/esgpulse/esg-analytics/pkg/logger"
	"github.com/esgpulse/esg-analytics/pkg/metrics"
	"github.com/esgpulse/esg-analytics/pkg/middleware"
	"github.com/esgpulse/esg-analytics/pkg/postgres"
	"github.com/esgpulse/esg-analytics/pkg/redis"
	"github.com/esgpulse/esg-analytics/pkg/rpc"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
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

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format, "service", "esg-api")
	slog.Info("starting esg api",
		"port", cfg.Server.Port,
		"rpc_enabled", cfg.RPC.Enabled,
		"redis_enabled", cfg.Redis.Enabled,
		"postgres_enabled", cfg.Postgres.Enabled,
		"kafka_enabled", cfg.Kafka.Enabled,
		"inference_enabled", cfg.Inference.Enabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("esg api failed", "error", err)
		os.Exit(1)
	}
	slog.Info("esg api stopped")
}

func run(ctx context.Context, cfg *config.Config) error {
	m := metrics.New()
	checker := health.NewChecker(2 * time.Second)

	// Redis backs the chunk store and the prediction cache.
	var rdb *redis.Client
	if cfg.Redis.Enabled {
		var err error
		rdb, err = redis.NewClient(cfg.Redis)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer rdb.Close()
		checker.Critical("redis", rdb.Ping)
		slog.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	var chunks document.Store
	switch cfg.Documents.Store {
	case "redis":
		if rdb == nil {
			return errors.New("documents.store is redis but redis is disabled")
		}
		chunks = document.NewRedisStore(rdb, cfg.Redis.ChunkTTL)
	case "memory", "":
		chunks = document.NewMemoryStore()
	default:
		return fmt.Errorf("unknown documents.store %q", cfg.Documents.Store)
	}

	scorer, err := document.ScorerByName(cfg.Documents.Scorer)
	if err != nil {
		return err
	}
	indexer := document.NewIndexer(chunks, document.WithChunkSize(cfg.Documents.ChunkSize))
	ranker := document.NewRanker(chunks, scorer)

	// Postgres holds company score histories; otherwise they are generated.
	var source history.Source = history.NewMockSource()
	if cfg.Postgres.Enabled {
		pg, err := postgres.New(cfg.Postgres)
		if err != nil {
			return err
		}
		defer pg.Close()
		sqlSource := history.NewSQLSource(pg.DB, postgres.DialectPostgres)
		if err := sqlSource.Migrate(ctx); err != nil {
			return fmt.Errorf("migrating history schema: %w", err)
		}
		source = sqlSource
		checker.Critical("postgres", pg.Ping)
		slog.Info("connected to postgres", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
	}

	predictionOpts := []prediction.Option{
		prediction.WithMetrics(m),
		prediction.WithMaxYears(cfg.Forecast.MaxYears),
	}
	if rdb != nil {
		predictionOpts = append(predictionOpts, prediction.WithCache(prediction.NewCache(rdb, cfg.Redis.CacheTTL)))
	}
	predictions := prediction.NewService(source, predictionOpts...)

	// The language model answers chat questions and writes summaries.
	var (
		summarizer report.Summarizer
		chatOpts   = []chat.Option{chat.WithMetrics(m)}
	)
	if cfg.Inference.Enabled {
		model := inference.New(cfg.Inference, inference.WithMetrics(m))
		summarizer = model
		chatOpts = append(chatOpts, chat.WithResponder(model))
		slog.Info("inference enabled", "model", cfg.Inference.Model, "base_url", cfg.Inference.BaseURL)
	}
	chatService := chat.NewService(chat.NewMemoryStore(), ranker, chatOpts...)

	extractor := report.NewDoclingExtractor(cfg.Extractor.URL, cfg.Extractor.Timeout,
		report.WithExtractorMetrics(m))
	checker.Optional("extractor", extractor.Ping)
	reports := report.NewService(extractor, summarizer)

	// Analytics go to Kafka for the aggregator service, or to a local
	// aggregator served on /api/v1/analytics.
	var (
		sink             analytics.Sink
		analyticsHandler *analytics.Handler
		publisher        api.ReportPublisher
	)
	if cfg.Kafka.Enabled {
		events := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer events.Close()
		sink = events
		checker.Optional("kafka", func(ctx context.Context) error {
			return kafka.Ping(ctx, cfg.Kafka.Brokers)
		})
		// Queued documents are indexed by esg-indexer, so both sides must
		// share the redis chunk store.
		if cfg.Documents.Store == "redis" {
			reportProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.ReportIngest)
			defer reportProducer.Close()
			publisher = ingest.NewPublisher(reportProducer)
			slog.Info("document ingestion is asynchronous", "topic", cfg.Kafka.Topics.ReportIngest)
		}
	} else {
		agg := analytics.NewAggregator()
		sink = agg
		analyticsHandler = analytics.NewHandler(agg, nil)
	}
	collector := analytics.NewCollector(sink,
		cfg.Analytics.BufferSize, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
	collector.Start(ctx)
	defer collector.Close()

	limiter := middleware.NewLimiter(cfg.Server.RateLimit.RequestsPerMinute, cfg.Server.RateLimit.Burst)
	limiter.StartCleanup(ctx, time.Minute)

	handler := api.New(api.Services{
		Predictions: predictions,
		Indexer:     indexer,
		Ranker:      ranker,
		Chat:        chatService,
		Reports:     reports,
		Publisher:   publisher,
	}, api.Limits{
		DefaultYears:   cfg.Forecast.DefaultYears,
		DefaultLimit:   cfg.Documents.DefaultLimit,
		MaxLimit:       cfg.Documents.MaxLimit,
		MaxUploadBytes: cfg.Extractor.MaxUploadBytes,
	}, api.WithTracker(collector), api.WithMetrics(m))

	router := api.NewRouter(handler, api.RouterConfig{
		Health:         checker,
		Analytics:      analyticsHandler,
		Limiter:        limiter,
		Metrics:        m,
		AllowOrigins:   cfg.Server.AllowOrigins,
		RequestTimeout: cfg.Server.RequestTimeout,
	})

	var metricsServer *metrics.Server
	if cfg.Metrics.Enabled {
		metricsServer, err = metrics.StartServer(cfg.Metrics.Port)
		if err != nil {
			return err
		}
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("esg api listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})

	var rpcServer *rpc.Server
	if cfg.RPC.Enabled {
		rpcServer = rpc.NewServer()
		rpcapi.Register(rpcServer, rpcapi.Services{
			Forecaster:   predictions,
			Indexer:      indexer,
			Ranker:       ranker,
			Tracker:      collector,
			DefaultYears: cfg.Forecast.DefaultYears,
		})
		addr := fmt.Sprintf(":%d", cfg.RPC.Port)
		g.Go(func() error {
			slog.Info("rpc server listening", "addr", addr, "methods", rpcServer.Methods())
			if err := rpcServer.ListenAndServe(addr); err != nil && !errors.Is(err, rpc.ErrServerClosed) {
				return fmt.Errorf("serving rpc: %w", err)
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown error", "error", err)
			}
		}
		if rpcServer != nil {
			if err := rpcServer.Stop(shutdownCtx); err != nil {
				slog.Error("rpc shutdown error", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}
