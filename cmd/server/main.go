// cmd/server/main.go
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

	"github.com/tendant/island-photos/internal/app"
	"github.com/tendant/island-photos/internal/bus"
	"github.com/tendant/island-photos/internal/config"
	"github.com/tendant/island-photos/internal/httpapi"
	"github.com/tendant/island-photos/internal/islands"
	"github.com/tendant/island-photos/internal/logging"
	"github.com/tendant/island-photos/internal/photos"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal(slog.Default(), "load config", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid config", err)
	}
	if cfg.AdminToken == "" {
		logger.Warn("ADMIN_TOKEN is empty, admin routes are locked")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := app.Open(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "open backends", err)
	}
	defer backends.Close()

	reg, metrics := app.Registry()
	uploads := backends.Uploads(cfg)
	store := backends.RecordStore(cfg, logger)

	var (
		scheduler photos.Scheduler
		queue     *photos.Queue
	)
	switch cfg.Dispatch {
	case config.DispatchNATS:
		nc, err := bus.Connect(cfg.NATSURL)
		if err != nil {
			fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
		}
		defer nc.Close()
		scheduler = photos.NewNATSScheduler(nc, cfg.JobSubject)
		logger.Info("thumbnail jobs dispatched over NATS", "nats_url", cfg.NATSURL, "subject", cfg.JobSubject)
	default:
		pipeline := app.Pipeline(cfg, uploads, store, logger, metrics, nil)
		queue = photos.NewQueue(pipeline,
			photos.WithWorkers(cfg.Workers),
			photos.WithQueueSize(cfg.QueueSize),
			photos.WithJobTimeout(cfg.JobTimeout),
			photos.WithQueueLogger(logger),
			photos.WithQueueMetrics(metrics),
		)
		scheduler = queue
		logger.Info("thumbnail jobs run in process", "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	}
	store.Use(islands.WithAfterSave(photos.NewTrigger(scheduler, logger).AfterSave))

	router := httpapi.NewRouter(httpapi.Deps{
		Islands:    islands.NewService(store),
		Uploads:    uploads,
		AdminToken: cfg.AdminToken,
		Logger:     logging.NewHTTPLogger("island-photos", os.Stdout, cfg.LogLevel, cfg.LogFormat),
		Gatherer:   reg,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server stopped", "err", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	if queue != nil {
		if err := queue.Shutdown(shutdownCtx); err != nil {
			logger.Error("queue shutdown", "err", err)
		}
	}
	logger.Info("server stopped")
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
