// cmd/backfill/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/island-photos/internal/app"
	"github.com/tendant/island-photos/internal/bus"
	"github.com/tendant/island-photos/internal/config"
	"github.com/tendant/island-photos/internal/img"
	"github.com/tendant/island-photos/internal/islands"
	"github.com/tendant/island-photos/internal/logging"
	"github.com/tendant/island-photos/internal/photos"
)

type options struct {
	Limit  int
	DryRun bool
	Delay  time.Duration
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatal(slog.Default(), "load config", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	opts := parseFlags(os.Args[1:])
	if err := cfg.Validate(); err != nil {
		fatal(logger, "invalid config", err)
	}
	logger.Info("backfill starting",
		"record_store", cfg.RecordStore,
		"dispatch", cfg.Dispatch,
		"job_subject", cfg.JobSubject,
		"limit", opts.Limit,
		"dry_run", opts.DryRun,
	)

	ctx := context.Background()
	backends, err := app.Open(ctx, cfg, logger)
	if err != nil {
		fatal(logger, "open backends", err)
	}
	defer backends.Close()

	var scheduler photos.Scheduler
	if !opts.DryRun {
		switch cfg.Dispatch {
		case config.DispatchNATS:
			nc, err := bus.Connect(cfg.NATSURL)
			if err != nil {
				fatal(logger, "connect to NATS", err, "nats_url", cfg.NATSURL)
			}
			defer nc.Close()
			logger.Info("connected to NATS", "nats_url", cfg.NATSURL)
			scheduler = photos.NewNATSScheduler(nc, cfg.JobSubject)
		default:
			pipeline := app.Pipeline(cfg, backends.Uploads(cfg), backends.RecordStore(cfg, logger), logger, nil, nil)
			scheduler = inlineScheduler{runner: pipeline, timeout: cfg.JobTimeout}
			logger.Info("running thumbnail jobs inline")
		}
	}

	bf := newBackfill(backends.Records, scheduler, opts, logger)
	res, err := bf.Run(ctx)
	if err != nil {
		fatal(logger, "scan failed", err)
	}

	logger.Info("backfill complete",
		"total_found", res.Found,
		"jobs_scheduled", res.Scheduled,
		"skipped_non_image", res.SkippedNonImage,
		"failed", len(res.FailedIDs),
		"dry_run", opts.DryRun,
	)
	if len(res.FailedIDs) > 0 {
		logger.Error("some jobs failed", "failed_ids", res.FailedIDs)
	}
}

func parseFlags(args []string) options {
	opts := options{DryRun: true}
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	fs.IntVar(&opts.Limit, "limit", 0, "Maximum number of islands to process (0 = unlimited)")
	fs.DurationVar(&opts.Delay, "delay", 10*time.Millisecond, "Pause between scheduled jobs")
	var execute bool
	fs.BoolVar(&execute, "execute", false, "Actually schedule jobs (disables dry-run)")
	_ = fs.Parse(args)

	if execute {
		opts.DryRun = false
	}
	return opts
}

type lister interface {
	ListMissingThumbnails(ctx context.Context, limit int) ([]*islands.Island, error)
}

type result struct {
	Found           int
	Scheduled       int
	SkippedNonImage int
	FailedIDs       []string
}

type backfill struct {
	records   lister
	scheduler photos.Scheduler
	opts      options
	logger    *slog.Logger
	newID     func() string
}

func newBackfill(records lister, scheduler photos.Scheduler, opts options, logger *slog.Logger) *backfill {
	return &backfill{records: records, scheduler: scheduler, opts: opts, logger: logger, newID: uuid.NewString}
}

// Run schedules a thumbnail job for every island that has a photo and no
// thumbnail. In dry-run mode it only reports what it would schedule.
func (b *backfill) Run(ctx context.Context) (result, error) {
	items, err := b.records.ListMissingThumbnails(ctx, b.opts.Limit)
	if err != nil {
		return result{}, fmt.Errorf("list islands: %w", err)
	}

	res := result{Found: len(items)}
	for _, it := range items {
		if !isImage(it) {
			res.SkippedNonImage++
			b.logger.Info("skipping non-image", "island_id", it.ID.String(), "name", it.Name, "content_type", it.Photo.ContentType)
			continue
		}
		if b.opts.DryRun || b.scheduler == nil {
			b.logger.Info("would schedule thumbnail job", "island_id", it.ID.String(), "name", it.Name, "photo_url", it.Photo.URL)
			continue
		}

		job := photos.Job{ID: b.newID(), IslandID: it.ID, Photo: *it.Photo.Clone()}
		if err := b.scheduler.Schedule(ctx, job); err != nil {
			res.FailedIDs = append(res.FailedIDs, it.ID.String())
			b.logger.Error("schedule thumbnail job failed", "island_id", it.ID.String(), "job_id", job.ID, "err", err)
			continue
		}
		res.Scheduled++
		b.logger.Info("scheduled thumbnail job", "island_id", it.ID.String(), "name", it.Name, "job_id", job.ID, "jobs_scheduled", res.Scheduled)

		if b.opts.Delay > 0 {
			time.Sleep(b.opts.Delay)
		}
	}
	return res, nil
}

// isImage accepts photos with an image content type, or no content type
// at all since older records did not store one.
func isImage(it *islands.Island) bool {
	if it.Photo == nil || it.Photo.Key == "" {
		return false
	}
	if it.Photo.ContentType == "" {
		return true
	}
	return img.FormatFromMime(it.Photo.ContentType) != img.FormatUnknown
}

// inlineScheduler runs each job to completion before returning.
type inlineScheduler struct {
	runner  photos.Runner
	timeout time.Duration
}

func (s inlineScheduler) Schedule(ctx context.Context, job photos.Job) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	s.runner.Run(ctx, job)
	return nil
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
