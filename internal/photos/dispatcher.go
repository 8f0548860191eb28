package photos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/island-photos/internal/storage"
	"github.com/tendant/island-photos/pkg/schema"
)

var (
	ErrQueueFull   = errors.New("thumbnail queue full")
	ErrQueueClosed = errors.New("thumbnail queue closed")
)

// Scheduler hands a job to background execution. Schedule must not wait for
// the job to run.
type Scheduler interface {
	Schedule(ctx context.Context, job Job) error
}

// Runner executes a job. *Pipeline is the production Runner.
type Runner interface {
	Run(ctx context.Context, job Job)
}

// Queue is an in-process worker pool. Enqueueing never blocks: when the
// buffer is full the job is dropped and ErrQueueFull returned.
type Queue struct {
	runner  Runner
	logger  *slog.Logger
	metrics *Metrics
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type QueueOption func(*Queue)

func WithWorkers(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) QueueOption {
	return func(q *Queue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}

func WithJobTimeout(d time.Duration) QueueOption {
	return func(q *Queue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

func WithQueueMetrics(m *Metrics) QueueOption {
	return func(q *Queue) { q.metrics = m }
}

func NewQueue(r Runner, opts ...QueueOption) *Queue {
	q := &Queue{
		runner:  r,
		logger:  slog.Default(),
		workers: 2,
		timeout: time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *Queue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Debug("worker started", "worker_id", workerID)

				for job := range q.ch {
					ctx, cancel := context.WithTimeout(context.Background(), q.timeout)
					q.runner.Run(ctx, job)
					cancel()
				}

				q.logger.Debug("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *Queue) Schedule(_ context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.metrics.dropped()
		q.logger.Warn("cannot enqueue: queue is shutting down", "job_id", job.ID, "island_id", job.IslandID.String())
		return ErrQueueClosed
	}
	select {
	case q.ch <- job:
		q.logger.Debug("queued thumbnail job", "job_id", job.ID, "island_id", job.IslandID.String())
		return nil
	default:
		q.metrics.dropped()
		q.logger.Warn("queue full, dropping thumbnail job", "job_id", job.ID, "island_id", job.IslandID.String())
		return ErrQueueFull
	}
}

// Shutdown stops accepting jobs and waits for queued ones to finish or for
// ctx to end.
func (q *Queue) Shutdown(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
		return ctx.Err()
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
		return nil
	}
}

// Publisher is the subset of the NATS bus client used for dispatch.
type Publisher interface {
	PublishJSON(subject string, v any) error
}

// NATSScheduler publishes jobs for cmd/worker processes to pick up.
type NATSScheduler struct {
	pub     Publisher
	subject string
}

func NewNATSScheduler(pub Publisher, subject string) *NATSScheduler {
	return &NATSScheduler{pub: pub, subject: subject}
}

func (s *NATSScheduler) Schedule(_ context.Context, job Job) error {
	if err := s.pub.PublishJSON(s.subject, EventFromJob(job)); err != nil {
		return fmt.Errorf("publish %s: %w", s.subject, err)
	}
	return nil
}

func EventFromJob(job Job) schema.PhotoChanged {
	return schema.PhotoChanged{
		JobID:      job.ID,
		IslandID:   job.IslandID.String(),
		PhotoName:  job.Photo.Name,
		PhotoKey:   job.Photo.Key,
		PhotoURL:   job.Photo.URL,
		PhotoSize:  job.Photo.Size,
		HappenedAt: time.Now().Unix(),
	}
}

// DecodeJob parses a schema.PhotoChanged payload.
func DecodeJob(data []byte) (Job, error) {
	var evt schema.PhotoChanged
	if err := json.Unmarshal(data, &evt); err != nil {
		return Job{}, fmt.Errorf("decode job: %w", err)
	}
	id, err := uuid.Parse(evt.IslandID)
	if err != nil {
		return Job{}, fmt.Errorf("parse island id: %w", err)
	}
	if evt.PhotoKey == "" {
		return Job{}, errors.New("decode job: missing photo_key")
	}
	jobID := evt.JobID
	if jobID == "" {
		jobID = uuid.NewString()
	}
	return Job{
		ID:       jobID,
		IslandID: id,
		Photo: storage.AssetRef{
			Name: evt.PhotoName,
			Key:  evt.PhotoKey,
			URL:  evt.PhotoURL,
			Size: evt.PhotoSize,
		},
	}, nil
}

// MessageHandler adapts r to bus subscriptions. Malformed payloads are
// logged and dropped.
func MessageHandler(r Runner, logger *slog.Logger) func(ctx context.Context, data []byte) {
	return func(ctx context.Context, data []byte) {
		job, err := DecodeJob(data)
		if err != nil {
			logger.Warn("dropping malformed job", "err", err)
			return
		}
		r.Run(ctx, job)
	}
}
