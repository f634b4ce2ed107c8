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

	"github.com/hszk-dev/streamcast/internal/config"
	"github.com/hszk-dev/streamcast/internal/transcoder"
	"github.com/hszk-dev/streamcast/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.Worker.TempDir, 0o755); err != nil {
		return fmt.Errorf("failed to create worker temp dir: %w", err)
	}

	ffmpegCfg := transcoder.FFmpegConfig{
		FFmpegPath:         cfg.Worker.FFmpegPath,
		VideoCodec:         cfg.Worker.VideoCodec,
		VideoPreset:        cfg.Worker.VideoPreset,
		AudioCodec:         cfg.Worker.AudioCodec,
		HLSSegmentDuration: cfg.Worker.HLSSegmentDuration,
		HLSPlaylistType:    cfg.Worker.HLSPlaylistType,
	}
	handler := worker.NewHandler(cfg.Worker.TempDir, ffmpegCfg, worker.NewHTTPDownloader(cfg.Worker.DownloadTimeout), logger)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	handler.Routes(r)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Worker.Port),
		Handler: r,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting worker", slog.Int("port", cfg.Worker.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("worker server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("worker shutdown error: %w", err)
	}

	logger.Info("worker stopped")
	return nil
}
