package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/hszk-dev/streamcast/internal/api/handler"
	"github.com/hszk-dev/streamcast/internal/api/middleware"
	"github.com/hszk-dev/streamcast/internal/cache"
	"github.com/hszk-dev/streamcast/internal/config"
	"github.com/hszk-dev/streamcast/internal/filestore"
	"github.com/hszk-dev/streamcast/internal/pipeline"
	"github.com/hszk-dev/streamcast/internal/statusstore"
	"github.com/hszk-dev/streamcast/internal/workerclient"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	status := statusstore.New(cfg.Server.VideoStatusFile, logger)
	if err := status.Load(); err != nil {
		return fmt.Errorf("failed to load status store: %w", err)
	}
	logger.Info("loaded status store", slog.String("path", cfg.Server.VideoStatusFile))

	source := filestore.NewSourceStore(cfg.Server.UploadDir)
	hls := filestore.NewHLSStore(cfg.Server.HLSDir)

	var redisClient *redis.Client
	if cfg.Redis.Enabled() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.Info("connected to redis status cache", slog.String("addr", cfg.Redis.Addr))
	}
	cachedStatus := cache.New(status, redisClient, cfg.Redis.TTL, logger)

	client := workerclient.New()
	onTerminal := func(videoID string) {
		cachedStatus.Invalidate(context.Background(), videoID)
	}
	engine := pipeline.New(cfg.Pipeline, status, source, hls, client, logger, onTerminal)

	ingestHandler := handler.NewIngestHandler(source, status, engine, cfg.Server.MaxContentLength)
	statusHandler := handler.NewStatusHandler(cachedStatus)
	sourceHandler := handler.NewSourceHandler(source)
	hlsHandler := handler.NewHLSHandler(hls)
	pagesHandler := handler.NewPagesHandler()

	r := setupRouter(logger, ingestHandler, statusHandler, sourceHandler, hlsHandler, pagesHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}

	logger.Info("server stopped")
	return nil
}

func setupRouter(
	logger *slog.Logger,
	ingestHandler *handler.IngestHandler,
	statusHandler *handler.StatusHandler,
	sourceHandler *handler.SourceHandler,
	hlsHandler *handler.HLSHandler,
	pagesHandler *handler.PagesHandler,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/health", handler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", pagesHandler.Index)
	r.Get("/upload", pagesHandler.Upload)
	r.Post("/upload", ingestHandler.Upload)
	r.Get("/watch/{videoID}", pagesHandler.Watch)
	r.Get("/status/{videoID}", statusHandler.Get)
	r.Get("/download_source/{videoID}", sourceHandler.Get)
	r.Get("/hls/{videoID}/*", hlsHandler.Get)

	return r
}
