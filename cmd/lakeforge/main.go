// Copyright 2025 James Ross
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lakeforge/lakeforge/internal/breaker"
	"github.com/lakeforge/lakeforge/internal/bulkloader"
	"github.com/lakeforge/lakeforge/internal/bus"
	"github.com/lakeforge/lakeforge/internal/catalog"
	"github.com/lakeforge/lakeforge/internal/config"
	"github.com/lakeforge/lakeforge/internal/coordinator"
	"github.com/lakeforge/lakeforge/internal/dispatcher"
	"github.com/lakeforge/lakeforge/internal/executor/ingest"
	"github.com/lakeforge/lakeforge/internal/executor/query"
	"github.com/lakeforge/lakeforge/internal/executor/schema"
	"github.com/lakeforge/lakeforge/internal/job"
	"github.com/lakeforge/lakeforge/internal/jobstore"
	"github.com/lakeforge/lakeforge/internal/obs"
	"github.com/lakeforge/lakeforge/internal/objectstore"
	"github.com/lakeforge/lakeforge/internal/reaper"
	"github.com/lakeforge/lakeforge/internal/redisclient"
)

var version = "dev"

func main() {
	var role, configPath string
	var scanDir, includeGlobs, excludeGlobs, bulkProject, bulkTable string
	var showVersion bool

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	fs.StringVar(&role, "role", "all", "Role to run: coordinator|worker|all|bulkload")
	fs.StringVar(&configPath, "config", "config/config.yaml", "Path to YAML config")
	fs.StringVar(&scanDir, "scan-dir", ".", "bulkload: directory to walk")
	fs.StringVar(&includeGlobs, "include", "**/*.csv,**/*.json", "bulkload: comma-separated include globs")
	fs.StringVar(&excludeGlobs, "exclude", "", "bulkload: comma-separated exclude globs")
	fs.StringVar(&bulkProject, "project", "", "bulkload: destination project")
	fs.StringVar(&bulkTable, "table", "", "bulkload: destination table (default: file name stem)")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	_ = fs.Parse(os.Args[1:])

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := obs.NewLogger(cfg.Observability.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	tp, err := obs.MaybeInitTracing(cfg)
	if err != nil {
		logger.Warn("tracing init failed", obs.Err(err))
	}
	if tp != nil {
		defer func() { _ = tp.Shutdown(context.Background()) }()
	}

	busRDB := redisclient.New(redisclient.Options{
		Addr:     redisclient.Addr(cfg.Queue.Host, cfg.Queue.Port),
		Username: cfg.Queue.User,
		Password: cfg.Queue.Pass,
		DB:       cfg.Queue.DB,
	})
	defer busRDB.Close()

	jobstoreRDB := redisclient.New(redisclient.Options{
		Addr: redisclient.Addr(cfg.JobStore.Host, cfg.JobStore.Port),
	})
	defer jobstoreRDB.Close()

	objects, err := objectstore.New(objectstore.Config{
		Endpoint:       cfg.Store.Endpoint,
		AccessKey:      cfg.Store.AccessKey,
		SecretKey:      cfg.Store.SecretKey,
		Region:         cfg.Store.Region,
		ForcePathStyle: cfg.Store.ForcePathStyle,
	}, logger)
	if err != nil {
		logger.Fatal("object store init failed", obs.Err(err))
	}

	store := jobstore.New(jobstoreRDB, logger, time.Duration(cfg.JobTTLSeconds)*time.Second)
	msgBus := bus.New(busRDB, logger, cfg.Worker.BRPopLPushTimeout, cfg.Worker.HeartbeatTTL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("signal received, shutting down", obs.String("signal", sig.String()))
		cancel()
		select {
		case sig2 := <-sigCh:
			logger.Warn("second signal received, exiting immediately", obs.String("signal", sig2.String()))
			os.Exit(1)
		case <-time.After(cfg.Coordinator.ShutdownTimeout):
		}
	}()

	if role == "bulkload" {
		runBulkload(ctx, cfg, busRDB, objects, store, msgBus, logger, scanDir, includeGlobs, excludeGlobs, bulkProject, bulkTable)
		return
	}

	cat, err := catalog.Connect(catalog.Config{
		Addr:     cfg.Catalog.JDBCURL,
		User:     cfg.Catalog.User,
		Pass:     cfg.Catalog.Pass,
		Database: "default",
	}, logger)
	if err != nil {
		logger.Fatal("catalog connect failed", obs.Err(err))
	}
	defer cat.Close()

	readyCheck := func(c context.Context) error {
		_, err := busRDB.Ping(c).Result()
		return err
	}
	httpSrv := obs.StartHTTPServer(cfg.Observability.MetricsPort+1, readyCheck)
	defer func() { _ = httpSrv.Shutdown(context.Background()) }()

	metricsSrv := obs.StartMetricsServer(cfg.Observability.MetricsPort)
	defer func() { _ = metricsSrv.Shutdown(context.Background()) }()

	obs.StartQueueLengthUpdater(ctx, busRDB, logger, 5*time.Second, "lakeforge:jobs", "lakeforge:jobs:dead")

	switch role {
	case "coordinator":
		runCoordinator(ctx, cfg, store, msgBus, objects, cat, logger)
	case "worker":
		go runReaper(ctx, busRDB, msgBus, logger)
		runWorker(ctx, cfg, store, msgBus, objects, cat, logger)
	case "all":
		go runReaper(ctx, busRDB, msgBus, logger)
		go runWorker(ctx, cfg, store, msgBus, objects, cat, logger)
		runCoordinator(ctx, cfg, store, msgBus, objects, cat, logger)
	default:
		logger.Fatal("unknown role", obs.String("role", role))
	}
}

func runCoordinator(ctx context.Context, cfg *config.Config, store *jobstore.Store, msgBus *bus.Bus, objects *objectstore.Store, cat *catalog.Catalog, logger *zap.Logger) {
	if err := objects.EnsureBucket(ctx, cfg.Store.UploadsBucket); err != nil {
		logger.Fatal("ensure uploads bucket failed", obs.Err(err))
	}
	if err := objects.EnsureBucket(ctx, cfg.Store.WarehouseBucket); err != nil {
		logger.Fatal("ensure warehouse bucket failed", obs.Err(err))
	}

	srv, err := coordinator.New(coordinator.Config{
		APIPort:         cfg.Coordinator.APIPort,
		FileMaxSize:     cfg.Coordinator.FileMaxSize,
		UploadsBucket:   cfg.Store.UploadsBucket,
		WarehouseBucket: cfg.Store.WarehouseBucket,
		RateLimitPerSec: cfg.Coordinator.RateLimitPerSec,
		RateLimitBurst:  cfg.Coordinator.RateLimitBurst,
		AuditLogPath:    cfg.Coordinator.AuditLogPath,
		AuditMaxSizeMB:  cfg.Coordinator.AuditLogMaxSizeMB,
		AuditBackups:    cfg.Coordinator.AuditLogBackups,
		ShutdownTimeout: cfg.Coordinator.ShutdownTimeout,
	}, store, msgBus, objects, cat, logger)
	if err != nil {
		logger.Fatal("coordinator init failed", obs.Err(err))
	}

	if err := srv.Run(ctx); err != nil {
		logger.Error("coordinator stopped", obs.Err(err))
	}
}

func runWorker(ctx context.Context, cfg *config.Config, store *jobstore.Store, msgBus *bus.Bus, objects *objectstore.Store, cat *catalog.Catalog, logger *zap.Logger) {
	cb := breaker.New(cfg.CircuitBreaker.Window, cfg.CircuitBreaker.CooldownPeriod, cfg.CircuitBreaker.FailureThreshold, cfg.CircuitBreaker.MinSamples)

	d := dispatcher.New(msgBus, store, cb, logger, cfg.Worker.Count, cfg.Worker.BreakerPause)
	d.Register(job.KindUpload, ingest.New(objects, cat, cfg.Store.UploadsBucket))
	d.Register(job.KindQuery, query.New(cat, objects, cfg.Store.WarehouseBucket, cfg.PreviewMaxRows))
	d.Register(job.KindSchema, schema.New(cat))

	d.Run(ctx)
}

func runReaper(ctx context.Context, busRDB *redis.Client, msgBus *bus.Bus, logger *zap.Logger) {
	rep := reaper.New(busRDB, msgBus, logger)
	rep.Run(ctx)
}

func runBulkload(ctx context.Context, cfg *config.Config, busRDB *redis.Client, objects *objectstore.Store, store *jobstore.Store, msgBus *bus.Bus, logger *zap.Logger, scanDir, includeGlobs, excludeGlobs, project, table string) {
	if err := objects.EnsureBucket(ctx, cfg.Store.UploadsBucket); err != nil {
		logger.Fatal("ensure uploads bucket failed", obs.Err(err))
	}

	loader := bulkloader.New(bulkloader.Config{
		ScanDir:         scanDir,
		IncludeGlobs:    splitGlobs(includeGlobs),
		ExcludeGlobs:    splitGlobs(excludeGlobs),
		Project:         project,
		Table:           table,
		UploadsBucket:   cfg.Store.UploadsBucket,
		RateLimitPerSec: int(cfg.Coordinator.RateLimitPerSec),
		RateLimitKey:    "lakeforge:bulkload:ratelimit",
	}, busRDB, objects, store, msgBus, logger)

	n, err := loader.Run(ctx)
	if err != nil {
		logger.Fatal("bulkload failed", obs.Err(err), obs.Int("submitted", n))
	}
	logger.Info("bulkload complete", obs.Int("submitted", n))
}

func splitGlobs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
