package main

import (
	"context"
	"fmt"

	gcppubsub "cloud.google.com/go/pubsub"
	gcpstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/page-analyzer/internal/analyzer"
	"github.com/JakeFAU/page-analyzer/internal/api"
	"github.com/JakeFAU/page-analyzer/internal/clock/system"
	"github.com/JakeFAU/page-analyzer/internal/config"
	"github.com/JakeFAU/page-analyzer/internal/crawler"
	collyfetcher "github.com/JakeFAU/page-analyzer/internal/fetcher/colly"
	"github.com/JakeFAU/page-analyzer/internal/fetcher/headless"
	"github.com/JakeFAU/page-analyzer/internal/hash/sha256"
	"github.com/JakeFAU/page-analyzer/internal/id/uuid"
	"github.com/JakeFAU/page-analyzer/internal/jobs"
	"github.com/JakeFAU/page-analyzer/internal/linkcheck"
	"github.com/JakeFAU/page-analyzer/internal/publisher/pubsub"
	"github.com/JakeFAU/page-analyzer/internal/scheduler"
	"github.com/JakeFAU/page-analyzer/internal/storage/gcs"
	"github.com/JakeFAU/page-analyzer/internal/storage/local"
	"github.com/JakeFAU/page-analyzer/internal/storage/memory"
	"github.com/JakeFAU/page-analyzer/internal/storage/postgres"
	"github.com/JakeFAU/page-analyzer/internal/worker"
)

// service holds the wired components and the cleanups they need.
type service struct {
	api       *api.Server
	scheduler *scheduler.Scheduler
	closers   []func()
}

func (s *service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*service, error) {
	svc := &service{}
	fail := func(err error) (*service, error) {
		svc.close()
		return nil, err
	}

	store, closeStore, err := buildJobStore(ctx, cfg.DB)
	if err != nil {
		return fail(err)
	}
	svc.closers = append(svc.closers, closeStore)

	archive, closeArchive, err := buildArchive(ctx, cfg.Archive)
	if err != nil {
		return fail(err)
	}
	svc.closers = append(svc.closers, closeArchive)

	publisher, closePublisher, err := buildPublisher(ctx, cfg.Events)
	if err != nil {
		return fail(err)
	}
	svc.closers = append(svc.closers, closePublisher)

	clock := system.New()
	fetcher, closeFetcher, err := buildFetcher(cfg)
	if err != nil {
		return fail(err)
	}
	svc.closers = append(svc.closers, closeFetcher)
	checker := linkcheck.New(linkcheck.Config{
		Timeout:     cfg.ProbeTimeout(),
		Concurrency: cfg.LinkCheck.Concurrency,
		UserAgent:   cfg.HTTP.UserAgent,
	}, logger.Named("linkcheck"))
	pageAnalyzer := analyzer.New(fetcher, checker, clock, archive, logger.Named("analyzer"))

	registry := worker.NewRegistry()
	executor := worker.New(
		store,
		pageAnalyzer,
		publisher,
		clock,
		registry,
		worker.Config{Topic: eventsTopic(cfg.Events)},
		logger.Named("worker"),
	)
	svc.scheduler = scheduler.New(store, executor, scheduler.Config{Interval: cfg.PollInterval()}, logger.Named("scheduler"))

	jobService := jobs.NewService(store, uuid.New(), clock, registry, logger.Named("jobs"))
	svc.api = api.NewServer(jobService, api.Config{APIKey: cfg.Auth.APIKey}, logger.Named("api"))

	logger.Info("service wired",
		zap.String("db_driver", cfg.DB.Driver),
		zap.String("fetcher_mode", cfg.Fetcher.Mode),
		zap.Bool("archive", archive != nil),
		zap.Bool("events", publisher != nil),
		zap.Int("linkcheck_concurrency", cfg.LinkCheck.Concurrency),
	)
	return svc, nil
}

func buildFetcher(cfg config.Config) (crawler.Fetcher, func(), error) {
	if cfg.Fetcher.Mode == config.FetchHeadless {
		f, err := headless.New(headless.Config{
			MaxParallel:       cfg.Fetcher.HeadlessParallel,
			UserAgent:         cfg.HTTP.UserAgent,
			NavigationTimeout: cfg.PageTimeout(),
			ExecPath:          cfg.Fetcher.ChromePath,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("headless fetcher: %w", err)
		}
		return f, f.Close, nil
	}
	return collyfetcher.New(collyfetcher.Config{
		UserAgent:   cfg.HTTP.UserAgent,
		Timeout:     cfg.PageTimeout(),
		MaxBodySize: cfg.HTTP.MaxBodyBytes,
	}), func() {}, nil
}

func buildJobStore(ctx context.Context, cfg config.DBConfig) (crawler.JobStore, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		store, err := postgres.NewJobStore(ctx, postgres.Config{
			DSN:      cfg.DSN,
			MaxConns: int32(cfg.MaxConns), //nolint:gosec // bounded by Validate
		})
		if err != nil {
			return nil, nil, fmt.Errorf("postgres job store: %w", err)
		}
		return store, store.Close, nil
	default:
		return memory.NewJobStore(), func() {}, nil
	}
}

func buildArchive(ctx context.Context, cfg config.ArchiveConfig) (*analyzer.Archive, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}
	archive := &analyzer.Archive{
		Hasher:      sha256.New(),
		Prefix:      cfg.Prefix,
		ContentType: cfg.ContentType,
	}
	switch cfg.Backend {
	case config.ArchiveMemory:
		archive.Store = memory.NewBlobStore()
	case config.ArchiveLocal:
		store, err := local.New(local.Config{Dir: cfg.Dir})
		if err != nil {
			return nil, nil, fmt.Errorf("local archive: %w", err)
		}
		archive.Store = store
	case config.ArchiveGCS:
		client, err := gcpstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("gcs client: %w", err)
		}
		closeClient := func() { _ = client.Close() }
		store, err := gcs.New(client, gcs.Config{Bucket: cfg.GCSBucket})
		if err != nil {
			closeClient()
			return nil, nil, fmt.Errorf("gcs archive: %w", err)
		}
		if err := store.CheckBucket(ctx); err != nil {
			closeClient()
			return nil, nil, fmt.Errorf("gcs archive: %w", err)
		}
		archive.Store = store
		return archive, closeClient, nil
	default:
		return nil, nil, fmt.Errorf("archive backend %q is not supported", cfg.Backend)
	}
	return archive, func() {}, nil
}

func buildPublisher(ctx context.Context, cfg config.EventsConfig) (crawler.Publisher, func(), error) {
	if !cfg.Enabled {
		return nil, func() {}, nil
	}
	client, err := gcppubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	pubsub.InstallPropagator()
	pub := pubsub.New(client)
	return pub, func() {
		pub.Stop()
		_ = client.Close()
	}, nil
}

func eventsTopic(cfg config.EventsConfig) string {
	if !cfg.Enabled {
		return ""
	}
	return cfg.Topic
}
