package photos

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/island-photos/internal/img"
	"github.com/tendant/island-photos/internal/islands"
	"github.com/tendant/island-photos/internal/process"
	"github.com/tendant/island-photos/internal/storage"
	"github.com/tendant/island-photos/internal/upload"
	"github.com/tendant/island-photos/pkg/schema"
)

const (
	DefaultThumbWidth   = 250
	DefaultThumbHeight  = 250
	DefaultFetchTimeout = 10 * time.Second

	jobKind          = "thumbnail"
	defaultPhotoName = "photo.jpg"
)

var (
	ErrFetch        = errors.New("fetch original")
	ErrDecode       = errors.New("derive thumbnail")
	ErrAssetPersist = errors.New("persist thumbnail")
	ErrReattach     = errors.New("attach thumbnail")
)

// Job is one thumbnail derivation. It carries its own copies of the record
// id and the photo reference.
type Job struct {
	ID       string
	IslandID uuid.UUID
	Photo    storage.AssetRef
}

// StageError reports the stage a job failed in.
type StageError struct {
	Stage schema.ProcessingStage
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.Stage, e.Err) }

func (e *StageError) Unwrap() error { return e.Err }

// Result describes a finished job.
type Result struct {
	Thumbnail *storage.AssetRef
	Params    schema.DerivationParams
	// Superseded is set when the record's photo changed while the job ran
	// and the thumbnail was not attached.
	Superseded bool
}

// Assets reads originals and stores thumbnails.
type Assets interface {
	FetchSource(ctx context.Context, ref *storage.AssetRef) (*upload.Source, error)
	UploadThumbnail(ctx context.Context, name string, data []byte) (*storage.AssetRef, error)
}

// Records attaches derived thumbnails to island records.
type Records interface {
	// AttachThumbnail returns islands.ErrPhotoChanged when the island no
	// longer has photo.
	AttachThumbnail(ctx context.Context, id uuid.UUID, photo, thumb *storage.AssetRef) error
}

// Notifier receives lifecycle events. Implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, evt schema.ThumbnailLifecycleEvent)
}

type Pipeline struct {
	assets       Assets
	records      Records
	width        int
	height       int
	fetchTimeout time.Duration
	logger       *slog.Logger
	metrics      *Metrics
	notifier     Notifier
}

type Option func(*Pipeline)

func WithThumbnailSize(w, h int) Option {
	return func(p *Pipeline) {
		if w > 0 && h > 0 {
			p.width, p.height = w, h
		}
	}
}

func WithFetchTimeout(d time.Duration) Option {
	return func(p *Pipeline) {
		if d > 0 {
			p.fetchTimeout = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithNotifier(n Notifier) Option {
	return func(p *Pipeline) { p.notifier = n }
}

func NewPipeline(assets Assets, records Records, opts ...Option) *Pipeline {
	p := &Pipeline{
		assets:       assets,
		records:      records,
		width:        DefaultThumbWidth,
		height:       DefaultThumbHeight,
		fetchTimeout: DefaultFetchTimeout,
		logger:       slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process runs the job through every stage. Errors are *StageError values
// wrapping one of ErrFetch, ErrDecode, ErrAssetPersist or ErrReattach.
func (p *Pipeline) Process(ctx context.Context, job Job) (*Result, error) {
	pj := process.NewJob(jobKind, job.ID, job)
	logger := p.logger.With("job_id", job.ID, "island_id", job.IslandID.String())

	fail := func(sentinel, cause error) (*Result, error) {
		process.MarkFailed(pj, cause)
		return nil, &StageError{Stage: process.FailedIn(pj), Err: fmt.Errorf("%w: %w", sentinel, cause)}
	}

	process.Advance(pj, schema.StageFetching)
	p.notify(ctx, job, schema.StageFetching, nil)
	fctx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	src, err := p.assets.FetchSource(fctx, &job.Photo)
	cancel()
	if err != nil {
		return fail(ErrFetch, err)
	}
	logger.Info("fetched original", "bytes", len(src.Data), "mime_type", src.MimeType)

	process.Advance(pj, schema.StageDeriving)
	gen, err := img.GetGenerator(src.MimeType)
	if err != nil {
		logger.Warn("unsupported file type, falling back to image generator", "mime_type", src.MimeType, "err", err)
		gen = &img.ImageGenerator{}
	}
	started := time.Now()
	out, err := gen.Generate(ctx, src.Data, img.ThumbnailSpec{Name: "thumb", Width: p.width, Height: p.height})
	if err != nil {
		return fail(ErrDecode, err)
	}
	params := schema.DerivationParams{
		SourceWidth:    out.SourceWidth,
		SourceHeight:   out.SourceHeight,
		TargetWidth:    out.Width,
		TargetHeight:   out.Height,
		Algorithm:      "lanczos-fill",
		Quality:        img.JPEGQuality,
		ProcessingTime: time.Since(started).Milliseconds(),
		GeneratedAt:    time.Now().Unix(),
	}
	logger.Info("derived thumbnail", "generator", gen.Name(), "width", out.Width, "height", out.Height)

	process.Advance(pj, schema.StagePersisting)
	name := job.Photo.Name
	if name == "" {
		name = src.Filename
	}
	if name == "" {
		name = defaultPhotoName
	}
	thumb, err := p.assets.UploadThumbnail(ctx, img.ThumbName(name), out.Data)
	if err != nil {
		return fail(ErrAssetPersist, err)
	}

	process.Advance(pj, schema.StageAttaching)
	err = p.records.AttachThumbnail(ctx, job.IslandID, &job.Photo, thumb)
	if errors.Is(err, islands.ErrPhotoChanged) {
		process.MarkDone(pj)
		logger.Info("photo changed while deriving, thumbnail not attached", "thumbnail_url", thumb.URL)
		return &Result{Thumbnail: thumb, Params: params, Superseded: true}, nil
	}
	if err != nil {
		return fail(ErrReattach, err)
	}

	process.MarkDone(pj)
	logger.Info("attached thumbnail", "thumbnail_url", thumb.URL, "elapsed", process.Elapsed(pj))
	return &Result{Thumbnail: thumb, Params: params}, nil
}

// Run is the background driver around Process. Failures are logged, counted
// and published, and never returned or re-panicked.
func (p *Pipeline) Run(ctx context.Context, job Job) {
	started := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("thumbnail generation panicked",
				"island_id", job.IslandID.String(),
				"source_url", job.Photo.URL,
				"job_id", job.ID,
				"panic", r)
			p.metrics.observe(outcomeFailed, schema.StageFailed, time.Since(started))
		}
	}()

	res, err := p.Process(ctx, job)
	if err != nil {
		stage := schema.StageFailed
		var se *StageError
		if errors.As(err, &se) {
			stage = se.Stage
		}
		p.logger.Error("thumbnail generation failed",
			"island_id", job.IslandID.String(),
			"source_url", job.Photo.URL,
			"job_id", job.ID,
			"stage", string(stage),
			"err", err)
		p.metrics.observe(outcomeFailed, stage, time.Since(started))
		p.notify(ctx, job, schema.StageFailed, err)
		return
	}

	if res.Superseded {
		p.metrics.observe(outcomeSuperseded, schema.StageDone, time.Since(started))
		return
	}
	p.metrics.observe(outcomeDone, schema.StageDone, time.Since(started))
	p.notifyDone(ctx, job, res)
}

func (p *Pipeline) notify(ctx context.Context, job Job, stage schema.ProcessingStage, err error) {
	if p.notifier == nil {
		return
	}
	evt := schema.ThumbnailLifecycleEvent{
		JobID:      job.ID,
		IslandID:   job.IslandID.String(),
		SourceURL:  job.Photo.URL,
		Stage:      stage,
		HappenedAt: time.Now().Unix(),
	}
	if err != nil {
		evt.Error = err.Error()
		evt.FailureType = classifyFailure(err)
	}
	p.notifier.Notify(ctx, evt)
}

func (p *Pipeline) notifyDone(ctx context.Context, job Job, res *Result) {
	if p.notifier == nil {
		return
	}
	params := res.Params
	p.notifier.Notify(ctx, schema.ThumbnailLifecycleEvent{
		JobID:            job.ID,
		IslandID:         job.IslandID.String(),
		SourceURL:        job.Photo.URL,
		Stage:            schema.StageDone,
		ThumbnailURL:     res.Thumbnail.URL,
		DerivationParams: &params,
		HappenedAt:       time.Now().Unix(),
	})
}

func classifyFailure(err error) schema.FailureType {
	switch {
	case errors.Is(err, ErrFetch):
		return schema.FailureTypeFetch
	case errors.Is(err, ErrDecode):
		return schema.FailureTypeDecode
	case errors.Is(err, ErrAssetPersist):
		return schema.FailureTypePersist
	case errors.Is(err, ErrReattach):
		return schema.FailureTypeReattach
	default:
		return schema.FailureTypeUnknown
	}
}
