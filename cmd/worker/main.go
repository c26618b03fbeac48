// Command worker consumes generation jobs from the queue, drives the model
// backend, and persists artifacts.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/craftlab/cardsmith/internal/adapter/blob/minio"
	"github.com/craftlab/cardsmith/internal/adapter/genai"
	"github.com/craftlab/cardsmith/internal/adapter/observability"
	"github.com/craftlab/cardsmith/internal/adapter/queue/redpanda"
	"github.com/craftlab/cardsmith/internal/adapter/quota/redisledger"
	"github.com/craftlab/cardsmith/internal/adapter/repo/postgres"
	"github.com/craftlab/cardsmith/internal/app"
	"github.com/craftlab/cardsmith/internal/config"
	"github.com/craftlab/cardsmith/internal/domain"
)

const consumerGroup = "cardsmith-workers"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	// Dedicated metrics endpoint so Prometheus can scrape pipeline gauges.
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(":9090", mux); err != nil {
			slog.Error("worker metrics server error", slog.Any("error", err))
		}
	}()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	slog.Info("starting worker", slog.String("env", cfg.AppEnv))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.EnsureSchema(ctx, pool); err != nil {
		slog.Error("schema migration failed", slog.Any("error", err))
		os.Exit(1)
	}
	jobRepo := postgres.NewJobRepo(pool)

	ledger := redisledger.New(redisledger.NewClient(cfg.RedisAddr, cfg.RedisDB))

	blobs, err := minio.New(ctx, minio.Config{
		Endpoint:  cfg.BlobEndpoint,
		AccessKey: cfg.BlobAccessKey,
		SecretKey: cfg.BlobSecretKey,
		Bucket:    cfg.BlobBucket,
		UseSSL:    cfg.BlobUseSSL,
	})
	if err != nil {
		slog.Error("blob store connect failed", slog.Any("error", err))
		os.Exit(1)
	}

	var gen domain.GenerationClient
	if cfg.GenAPIKey == "" && cfg.IsDev() {
		slog.Warn("no backend API key configured, using deterministic stub")
		gen = genai.NewStubClient()
	} else {
		gen = genai.NewClient(genai.Options{
			BaseURL:      cfg.GenBaseURL,
			APIKey:       cfg.GenAPIKey,
			ImageTimeout: cfg.GenImageTimeout,
			PollDeadline: cfg.GenVideoPollDeadline,
		})
	}

	producer, err := redpanda.NewProducer(cfg.KafkaBrokers)
	if err != nil {
		slog.Error("queue producer connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := producer.Close(); err != nil {
			slog.Error("failed to close queue producer", slog.Any("error", err))
		}
	}()

	retry := redpanda.NewRetryManager(producer, jobRepo, cfg.VisibilityTimeout(), cfg.QueueMaxRedeliveries)
	processor := redpanda.NewJobProcessor(jobRepo, blobs, ledger, gen, retry, cfg.BackendMaxConcurrency)

	// Consumer workers outnumber the backend ceiling so claims and terminal
	// bookkeeping overlap with in-flight generations.
	consumer, err := redpanda.NewConsumer(cfg.KafkaBrokers, consumerGroup, processor, 2*cfg.BackendMaxConcurrency)
	if err != nil {
		slog.Error("queue consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer consumer.Close()

	dlq, err := redpanda.NewDLQConsumer(cfg.KafkaBrokers, consumerGroup+"-dlq")
	if err != nil {
		slog.Error("dlq consumer init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer dlq.Stop()
	go func() {
		if err := dlq.Start(ctx); err != nil && ctx.Err() == nil {
			slog.Error("dlq consumer stopped", slog.Any("error", err))
		}
	}()

	if sweeper := app.NewStuckJobSweeper(jobRepo, cfg.SweeperMaxProcessingAge, cfg.SweeperInterval); sweeper != nil {
		go sweeper.Run(ctx)
	}

	slog.Info("worker started, waiting for jobs",
		slog.Int("backend_max_concurrency", cfg.BackendMaxConcurrency),
		slog.Int("max_redeliveries", cfg.QueueMaxRedeliveries))

	if err := consumer.Start(ctx); err != nil {
		slog.Error("consumer stopped with error", slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
