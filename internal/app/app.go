// Package app opens the backends selected by config and assembles the photo
// pipeline shared by the binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tendant/island-photos/internal/config"
	"github.com/tendant/island-photos/internal/islands"
	"github.com/tendant/island-photos/internal/photos"
	"github.com/tendant/island-photos/internal/storage"
	"github.com/tendant/island-photos/internal/upload"
)

// Backends holds the record repository and the asset store.
type Backends struct {
	Records islands.Repository
	Assets  storage.Store
	closers []func() error
}

var (
	openPostgres   = islands.OpenPostgres
	runMigrations  = islands.RunMigrations
	newS3AssetsFor = func(ctx context.Context, c storage.S3Config) (storage.Store, error) {
		return storage.NewS3Store(ctx, c)
	}
)

// Open connects to the configured record and asset backends. Postgres
// migrations are applied before the repository is returned.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}

	switch cfg.RecordStore {
	case config.RecordStorePostgres:
		db, err := openPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		if err := runMigrations(ctx, db); err != nil {
			_ = b.Close()
			return nil, err
		}
		b.Records = islands.NewPostgresRepository(db)
		logger.Info("record store ready", "backend", cfg.RecordStore)
	case config.RecordStoreMemory:
		b.Records = islands.NewMemoryRepository()
		logger.Warn("using in-memory record store, data is lost on exit")
	default:
		return nil, fmt.Errorf("unknown record store %q", cfg.RecordStore)
	}

	switch cfg.StorageBackend {
	case config.StorageS3:
		s, err := newS3AssetsFor(ctx, S3Config(cfg))
		if err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("s3 store: %w", err)
		}
		b.Assets = s
		logger.Info("asset store ready", "backend", cfg.StorageBackend, "bucket", cfg.S3.Bucket)
	case config.StorageMemory:
		b.Assets = storage.NewMemoryStore()
		logger.Warn("using in-memory asset store, data is lost on exit")
	default:
		_ = b.Close()
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}
	return b, nil
}

func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	b.closers = nil
	return errors.Join(errs...)
}

func S3Config(cfg config.Config) storage.S3Config {
	return storage.S3Config{
		Bucket:          cfg.S3.Bucket,
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Endpoint:        cfg.S3.Endpoint,
		UsePathStyle:    cfg.S3.UsePathStyle,
		PublicBaseURL:   cfg.S3.PublicBaseURL,
	}
}

// Uploads returns the asset client with the configured size limit.
func (b *Backends) Uploads(cfg config.Config) *upload.Client {
	return upload.NewClient(b.Assets, upload.NewGatekeeper(cfg.MaxImageBytes))
}

// RecordStore wraps the repository in the write path with the photo size
// gate installed.
func (b *Backends) RecordStore(cfg config.Config, logger *slog.Logger) *islands.Store {
	return islands.NewStore(b.Records,
		islands.WithBeforeSave(photos.SizeGate(cfg.MaxImageBytes)),
		islands.WithStoreLogger(logger),
	)
}

// Pipeline builds the thumbnail pipeline over the given record store.
func Pipeline(cfg config.Config, assets photos.Assets, records photos.Records, logger *slog.Logger, m *photos.Metrics, n photos.Notifier) *photos.Pipeline {
	opts := []photos.Option{
		photos.WithThumbnailSize(cfg.ThumbWidth, cfg.ThumbHeight),
		photos.WithFetchTimeout(cfg.FetchTimeout),
		photos.WithLogger(logger),
		photos.WithMetrics(m),
	}
	if n != nil {
		opts = append(opts, photos.WithNotifier(n))
	}
	return photos.NewPipeline(assets, records, opts...)
}

// Registry returns a Prometheus registry with the runtime collectors and
// the pipeline metrics registered.
func Registry() (*prometheus.Registry, *photos.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, photos.NewMetrics(reg)
}
