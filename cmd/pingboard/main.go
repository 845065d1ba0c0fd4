package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/pingboard/pingboard/internal/app"
	"github.com/pingboard/pingboard/internal/chart/demo"
	"github.com/pingboard/pingboard/internal/chart/echarts"
	"github.com/pingboard/pingboard/internal/dashboard"
	"github.com/pingboard/pingboard/internal/observability"
	"github.com/pingboard/pingboard/internal/platform/cache"
	"github.com/pingboard/pingboard/internal/platform/db"
	"github.com/pingboard/pingboard/internal/refresher"
	"github.com/pingboard/pingboard/internal/requests"
	requesthttp "github.com/pingboard/pingboard/internal/requests/http"
	"github.com/pingboard/pingboard/internal/view"
	"github.com/pingboard/pingboard/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer dbpool.Close()

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

	templates, err := view.NewEngine()
	if err != nil {
		logger.Error("parse templates", slog.Any("error", err))
		os.Exit(1)
	}

	metrics := observability.NewMetrics()

	requestsRepo := requests.NewRepository(dbpool)
	seriesCache := requests.NewCache(redisClient, cfg.SeriesCacheTTL)
	requestsService := requests.NewService(requestsRepo, seriesCache, requests.Config{
		SeriesLimit:  cfg.SeriesLimit,
		ProbeTimeout: cfg.ProbeTimeout,
		Logger:       logger,
	})

	jobClient, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	requestsHandler := requesthttp.NewHandler(logger, requestsService, jobClient)

	baseURL, err := cfg.BaseURL()
	if err != nil {
		logger.Error("chart base url", slog.Any("error", err))
		os.Exit(1)
	}
	charts := refresher.New(echarts.NewLibrary(),
		refresher.WithBaseURL(baseURL),
		refresher.WithHTTPClient(&http.Client{Timeout: cfg.ChartFetchTimeout}),
		refresher.WithChartOptions(cfg.ChartOptions()),
		refresher.WithCanvases(cfg.Canvases()...),
		refresher.WithLogger(logger.With(slog.String("component", "refresher"))),
		refresher.WithRecorder(metrics.Charts()),
	)
	defer charts.Close()

	dashboardHandler := dashboard.NewHandler(logger, templates, charts, demo.NewRandomizer(nil), dashboard.Config{
		DefaultEndpoint: cfg.ChartDefaultEndpoint,
	})
	if err := dashboardHandler.AutoRefresh(ctx, seriesCache); err != nil {
		logger.Warn("auto refresh disabled", slog.Any("error", err))
	}

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobHandler := jobs.NewHandler(inspector, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		DashboardHandler: dashboardHandler,
		RequestsHandler:  requestsHandler,
		JobHandler:       jobHandler,
		Metrics:          metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
		// Request contexts end with the process so open streams let Shutdown finish.
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	listener, err := net.Listen("tcp", cfg.AppAddr)
	if err != nil {
		logger.Error("listen", slog.String("addr", cfg.AppAddr), slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", listener.Addr().String()))
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	// The default canvas is bound on startup so bumps refresh it before any
	// browser asks for it.
	go func() {
		initCtx, cancel := context.WithTimeout(ctx, cfg.ChartFetchTimeout)
		defer cancel()
		if _, err := charts.FetchAndRenderTo(initCtx, refresher.DefaultCanvas, cfg.ChartDefaultEndpoint); err != nil {
			logger.Warn("initial chart render", slog.Any("error", err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}
