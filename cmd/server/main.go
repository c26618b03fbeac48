// Command server starts the cardsmith HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/craftlab/cardsmith/internal/adapter/blob/minio"
	"github.com/craftlab/cardsmith/internal/adapter/genai"
	"github.com/craftlab/cardsmith/internal/adapter/httpserver"
	"github.com/craftlab/cardsmith/internal/adapter/observability"
	"github.com/craftlab/cardsmith/internal/adapter/queue/redpanda"
	"github.com/craftlab/cardsmith/internal/adapter/quota/redisledger"
	"github.com/craftlab/cardsmith/internal/adapter/repo/postgres"
	"github.com/craftlab/cardsmith/internal/app"
	"github.com/craftlab/cardsmith/internal/config"
	"github.com/craftlab/cardsmith/internal/domain"
	"github.com/craftlab/cardsmith/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := observability.SetupLogger(cfg)
	slog.SetDefault(logger)
	observability.InitMetrics()

	shutdownTracer, err := observability.SetupTracing(cfg)
	if err != nil {
		slog.Error("failed to setup tracing", slog.Any("error", err))
	}
	defer func() {
		if shutdownTracer != nil {
			_ = shutdownTracer(context.Background())
		}
	}()

	ctx := context.Background()

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

	// Token counting is best effort; the length bounds still apply without it.
	var tokens domain.TokenCounter
	if tc, err := genai.NewTokenCounter(); err != nil {
		slog.Warn("token counter unavailable, length bounds only", slog.Any("error", err))
	} else {
		tokens = tc
	}

	presets, err := config.LoadPresetCatalog(cfg.PresetCatalogPath)
	if err != nil {
		slog.Error("preset catalog load failed", slog.Any("error", err))
		os.Exit(1)
	}

	policy := cfg.QuotaPolicy()
	srv := &httpserver.Server{
		Cfg:      cfg,
		Intake:   usecase.NewIntakeService(jobRepo, producer, ledger, tokens, policy, cfg.PromptBounds, cfg.PromptMaxTokens),
		Status:   usecase.NewStatusService(jobRepo, blobs, cfg.SignedURLTTLShort),
		Gallery:  usecase.NewGalleryService(jobRepo, blobs, cfg.SignedURLTTLGallery, cfg.GalleryMaxItems),
		Sessions: usecase.NewSessionService(ledger, policy),
		Tokens:   httpserver.NewTokenManager(cfg.AuthTokenSecret, cfg.AuthTokenTTL),
		Presets:  presets,
	}
	srv.DBCheck, srv.RedisCheck, srv.BlobCheck = app.BuildReadinessChecks(pool, ledger, blobs)

	handler := app.BuildRouter(cfg, srv)
	srvHTTP := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       cfg.HTTPIdleTimeout,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http server starting", slog.Int("port", cfg.Port))
		errCh <- srvHTTP.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slog.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ServerShutdownTimeout)
	defer cancel()
	_ = srvHTTP.Shutdown(shutdownCtx)
}
