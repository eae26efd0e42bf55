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

	"github.com/storyforge-labs/storyforge-go/internal/assets"
	"github.com/storyforge-labs/storyforge-go/internal/config"
	"github.com/storyforge-labs/storyforge-go/internal/engine"
	"github.com/storyforge-labs/storyforge-go/internal/inference"
	"github.com/storyforge-labs/storyforge-go/internal/platform/env"
	"github.com/storyforge-labs/storyforge-go/internal/platform/httpserver"
	"github.com/storyforge-labs/storyforge-go/internal/platform/objectstore"
	"github.com/storyforge-labs/storyforge-go/internal/platform/postgres"
	repopg "github.com/storyforge-labs/storyforge-go/internal/repo/postgres"
	storage "github.com/storyforge-labs/storyforge-go/internal/storage/objectstore"
	"github.com/storyforge-labs/storyforge-go/internal/steps"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx := context.Background()
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	addr := env.String("PIPELINE_HTTP_ADDR", ":8090")
	shutdownTimeout, err := env.Duration("PIPELINE_SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		logger.Error("invalid env", "error", err)
		os.Exit(2)
	}

	pipelineCfg, err := config.Load("")
	if err != nil {
		logger.Error("invalid pipeline config", "error", err)
		os.Exit(2)
	}

	dbCfg, err := postgres.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid database config", "error", err)
		os.Exit(2)
	}
	db, err := postgres.Open(ctx, dbCfg)
	if err != nil {
		logger.Error("database unavailable", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	storeCfg, err := objectstore.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid object store config", "error", err)
		os.Exit(2)
	}
	storeClient, err := objectstore.NewMinIOClient(storeCfg)
	if err != nil {
		logger.Error("object store client init failed", "error", err)
		os.Exit(2)
	}
	startupCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	if err := objectstore.EnsureBuckets(startupCtx, storeClient, storeCfg); err != nil {
		cancel()
		logger.Error("object store unavailable", "error", err)
		os.Exit(1)
	}
	cancel()

	blobStore, err := storage.NewMinioStoreWithClient(storeClient)
	if err != nil {
		logger.Error("blob store init failed", "error", err)
		os.Exit(2)
	}
	manager, err := assets.NewManager(repopg.NewAssetStore(db), blobStore, storeCfg.BucketMedia)
	if err != nil {
		logger.Error("asset manager init failed", "error", err)
		os.Exit(2)
	}

	inferenceCfg, err := inference.ConfigFromEnv()
	if err != nil {
		logger.Error("invalid inference config", "error", err)
		os.Exit(2)
	}
	inferenceClient, err := inference.NewClient(inferenceCfg)
	if err != nil {
		logger.Error("inference client init failed", "error", err)
		os.Exit(2)
	}

	reg, err := steps.DefaultRegistry(inferenceClient, manager)
	if err != nil {
		logger.Error("registry init failed", "error", err)
		os.Exit(2)
	}
	executor, err := engine.New(reg, manager, logger)
	if err != nil {
		logger.Error("executor init failed", "error", err)
		os.Exit(2)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", httpserver.Healthz("pipeline"))
	mux.HandleFunc(
		"/readyz",
		httpserver.ReadyzWithChecks(
			"pipeline",
			httpserver.ReadinessCheck{
				Name: "postgres",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return db.PingContext(checkCtx)
				},
			},
			httpserver.ReadinessCheck{
				Name: "minio",
				Check: func(ctx context.Context) error {
					checkCtx, cancel := context.WithTimeout(ctx, 750*time.Millisecond)
					defer cancel()
					return objectstore.CheckBuckets(checkCtx, storeClient, storeCfg)
				},
			},
		),
	)

	api := newPipelineAPI(logger, executor, reg, manager, repopg.NewStepEventStore(db), pipelineCfg.Domain())
	api.register(mux)

	cfg := httpserver.Config{
		Service:         "pipeline",
		Addr:            addr,
		ShutdownTimeout: shutdownTimeout,
	}

	if err := httpserver.Run(ctx, logger, cfg, httpserver.Wrap(logger, "pipeline", mux)); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}
