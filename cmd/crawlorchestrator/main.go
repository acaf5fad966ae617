// Package main wires together the crawl orchestrator service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/api"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/auth"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/builder"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/clock/system"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/config"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/crawl"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/dispatcher"
	collyfetcher "github.com/JakeFAU/catalog-crawl-orchestrator/internal/fetcher/colly"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/hash/sha256"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/id/uuid"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/logging"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/orchestrator"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/policy/ratelimit"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/progress"
	"github.com/JakeFAU/catalog-crawl-orchestrator/internal/progress/sinks"
	memorypublisher "github.com/JakeFAU/catalog-crawl-orchestrator/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/catalog-crawl-orchestrator/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/catalog-crawl-orchestrator/internal/storage/gcs"
	localstorage "github.com/JakeFAU/catalog-crawl-orchestrator/internal/storage/local"
	memorystorage "github.com/JakeFAU/catalog-crawl-orchestrator/internal/storage/memory"
	pgtargets "github.com/JakeFAU/catalog-crawl-orchestrator/internal/targets/postgres"
	statictargets "github.com/JakeFAU/catalog-crawl-orchestrator/internal/targets/static"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)
	if _, err := maxprocs.Set(maxprocs.Logger(logger.Sugar().Infof)); err != nil {
		logger.Warn("set GOMAXPROCS from cgroup quota", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("orchestrator exited with error", zap.Error(err))
		os.Exit(1)
	}
}

// cleanup releases a resource acquired during wiring.
type cleanup func()

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var cleanups []cleanup
	defer func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}()

	lister, ready, closeLister, err := newTargetLister(ctx, cfg)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, closeLister)

	blobStore, closeStore, err := newBlobStore(ctx, cfg)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, closeStore)

	publisher, closePublisher, err := newPublisher(ctx, cfg, logger)
	if err != nil {
		return err
	}
	cleanups = append(cleanups, closePublisher)

	promSink, err := sinks.NewPrometheusSink(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("register progress metrics: %w", err)
	}
	hub := progress.NewHub(progress.Config{
		BufferSize:     cfg.Progress.BufferSize,
		MaxBatchEvents: cfg.Progress.MaxBatchEvents,
		MaxBatchWait:   cfg.ProgressBatchWait(),
		SinkTimeout:    cfg.ProgressSinkTimeout(),
		Logger:         logger.Named("progress"),
	}, sinks.NewLogSink(logger.Named("progress")), promSink)

	clock := system.New()
	catalogBuilder := builder.New(
		collyfetcher.New(collyfetcher.Config{
			UserAgent: cfg.Builder.UserAgent,
			Timeout:   cfg.BuilderTimeout(),
		}),
		ratelimit.New(ratelimit.Config{
			RatePerSecond: cfg.Builder.RatePerSecond,
			Burst:         cfg.Builder.Burst,
		}),
		sha256.New(),
		blobStore,
		publisher,
		clock,
		builder.Config{
			UserAgent:   cfg.Builder.UserAgent,
			ContentType: cfg.Builder.ContentType,
			BlobPrefix:  cfg.Builder.Prefix,
			Topic:       cfg.PubSub.TopicName,
		},
		logger.Named("builder"),
	)

	dispatch := dispatcher.New(
		dispatcher.Config{Timeout: cfg.ContinuationTimeout()},
		&http.Client{},
		hub,
		logger.Named("dispatcher"),
	)

	ctrl, err := orchestrator.New(orchestrator.Config{
		DefaultChunkSize: cfg.Crawl.DefaultChunkSize,
		ExecutionBudget:  cfg.ExecutionBudget(),
		AutoContinue:     cfg.Continuation.Enabled,
	}, orchestrator.Dependencies{
		Guard:     auth.NewGuard(cfg.Auth.CronSecret),
		Lister:    lister,
		Executor:  crawl.NewExecutor(catalogBuilder),
		Continuer: dispatch,
		Clock:     clock,
		IDs:       uuid.New(),
		Emitter:   hub,
	}, logger.Named("orchestrator"))
	if err != nil {
		return fmt.Errorf("build controller: %w", err)
	}

	apiServer := api.NewServer(ctrl, api.Options{
		Continuation: dispatcher.Options{
			BaseURL:           cfg.Continuation.BaseURL,
			TrustedHostHeader: cfg.Continuation.TrustedHostHeader,
		},
		Ready: ready,
	}, logger)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server started",
			zap.Int("port", cfg.Server.Port),
			zap.String("targets", cfg.Targets.Source),
			zap.String("storage", cfg.Storage.Backend),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", zap.Error(err))
		}
		// Let in-flight hand-offs finish so the chain is not cut at a deploy.
		dispatch.Wait()
		if err := hub.Close(shutdownCtx); err != nil {
			logger.Warn("progress hub close", zap.Error(err))
		}
		logger.Info("shutdown complete", zap.Int64("progress_events_dropped", hub.Dropped()))
		return nil
	})
	return g.Wait()
}

func newTargetLister(ctx context.Context, cfg config.Config) (crawl.TargetLister, api.ReadyFunc, cleanup, error) {
	switch cfg.Targets.Source {
	case config.SourcePostgres:
		lister, err := pgtargets.New(ctx, pgtargets.Config{
			DSN:      cfg.Targets.Postgres.DSN,
			Table:    cfg.Targets.Postgres.Table,
			MaxConns: int32(cfg.Targets.Postgres.MaxConns), //nolint:gosec // bounded by Validate
		})
		if err != nil {
			return nil, nil, nil, fmt.Errorf("init postgres targets: %w", err)
		}
		return lister, lister.Ping, lister.Close, nil
	default:
		return statictargets.New(cfg.Targets.Static), nil, func() {}, nil
	}
}

func newBlobStore(ctx context.Context, cfg config.Config) (crawl.BlobStore, cleanup, error) {
	switch cfg.Storage.Backend {
	case config.BackendLocal:
		store, err := localstorage.New(localstorage.Config{BaseDir: cfg.Storage.LocalDir})
		if err != nil {
			return nil, nil, fmt.Errorf("init local storage: %w", err)
		}
		return store, func() {}, nil
	case config.BackendGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcsstorage.New(client, gcsstorage.Config{Bucket: cfg.Storage.GCSBucket})
		if err != nil {
			_ = client.Close()
			return nil, nil, fmt.Errorf("init gcs storage: %w", err)
		}
		return store, func() { _ = client.Close() }, nil
	default:
		return memorystorage.NewBlobStore(), func() {}, nil
	}
}

func newPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (crawl.Publisher, cleanup, error) {
	if cfg.PubSub.ProjectID == "" {
		logger.Info("pubsub project not set; catalog notifications stay in memory")
		return memorypublisher.New(), func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	topic := client.Publisher(cfg.PubSub.TopicName)
	return pubsubpublisher.New(topic), func() {
		topic.Stop()
		if err := client.Close(); err != nil {
			logger.Warn("pubsub client close", zap.Error(err))
		}
	}, nil
}
