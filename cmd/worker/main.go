// cmd/worker/main.go
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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/island-photos/internal/app"
	"github.com/tendant/island-photos/internal/bus"
	"github.com/tendant/island-photos/internal/config"
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
	if !cfg.SharedBackends() {
		logger.Warn("worker is using process-local backends, it cannot see records or photos written by the server",
			"record_store", cfg.RecordStore, "storage_backend", cfg.StorageBackend)
	}
	logger.Info("worker starting", "nats_url", cfg.NATSURL, "job_subject", cfg.JobSubject, "queue", cfg.WorkerQueue, "events_subject", cfg.EventsSubject, "thumb_width", cfg.ThumbWidth, "thumb_height", cfg.ThumbHeight)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backends, err := app.Open(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "open backends", err)
	}
	defer backends.Close()

	nc, err := bus.Connect(cfg.NATSURL)
	if err != nil {
		fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
	}
	logger.Info("connected to NATS", "nats_url", cfg.NATSURL)
	defer nc.Close()
	nc.SetHandlerTimeout(cfg.JobTimeout)

	reg, metrics := app.Registry()
	handler := newJobHandler(cfg, backends, nc, logger, metrics)

	if _, err := nc.QueueSubscribeJSON(cfg.JobSubject, cfg.WorkerQueue, handler); err != nil {
		fatal(logger, "subscribe worker", err, "job_subject", cfg.JobSubject, "queue", cfg.WorkerQueue)
	}
	logger.Info("listening for jobs", "subject", cfg.JobSubject, "queue", cfg.WorkerQueue)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: metricsRouter(reg), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "addr", cfg.HTTPAddr, "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("worker stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

// newJobHandler decodes PhotoChanged payloads and runs them through the
// pipeline. Lifecycle events go to cfg.EventsSubject when it is set.
func newJobHandler(cfg config.Config, backends *app.Backends, pub photos.Publisher, logger *slog.Logger, metrics *photos.Metrics) func(ctx context.Context, data []byte) {
	var notifier photos.Notifier
	if cfg.EventsSubject != "" && pub != nil {
		notifier = photos.NewBusNotifier(pub, cfg.EventsSubject, logger)
	}
	pipeline := app.Pipeline(cfg, backends.Uploads(cfg), backends.RecordStore(cfg, logger), logger, metrics, notifier)
	return photos.MessageHandler(pipeline, logger)
}

func metricsRouter(g prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	return r
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
