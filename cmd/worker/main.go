package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/pingboard/pingboard/internal/app"
	"github.com/pingboard/pingboard/internal/platform/cache"
	"github.com/pingboard/pingboard/internal/platform/db"
	"github.com/pingboard/pingboard/internal/requests"
	"github.com/pingboard/pingboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	requestsRepo := requests.NewRepository(pool)
	seriesCache := requests.NewCache(redisClient, cfg.SeriesCacheTTL)
	requestsService := requests.NewService(requestsRepo, seriesCache, requests.Config{
		SeriesLimit:  cfg.SeriesLimit,
		ProbeTimeout: cfg.ProbeTimeout,
		Logger:       logger,
	})

	probeJob := jobs.NewProbeJob(requestsService, logger, nil)
	warmupJob := jobs.NewSeriesWarmupJob(requestsService, pool, logger, nil)

	probeTask, err := jobs.NewProbeTask(0)
	if err != nil {
		logger.Error("build probe task", slog.Any("error", err))
		os.Exit(1)
	}
	warmupTask, err := jobs.NewSeriesWarmupTask()
	if err != nil {
		logger.Error("build warmup task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskRequestsProbe, Handler: probeJob.Handle},
			{Type: jobs.TaskSeriesWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ProbeCron, Task: probeTask, Options: []asynq.Option{asynq.MaxRetry(0), asynq.Unique(cfg.ProbeTimeout * 2)}},
			{Spec: "*/15 * * * *", Task: warmupTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
