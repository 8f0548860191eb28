// Package photos derives island thumbnails in the background whenever a
// record's photo changes.
package photos

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/tendant/island-photos/internal/islands"
	"github.com/tendant/island-photos/internal/storage"
)

// SizeError rejects a record write whose new photo exceeds the size limit.
type SizeError struct {
	MaxBytes int64
}

func (e *SizeError) Error() string {
	mb := strconv.FormatFloat(float64(e.MaxBytes)/(1<<20), 'f', -1, 64)
	return fmt.Sprintf("Photo must be smaller than %sMB", mb)
}

func (e *SizeError) Unwrap() error { return islands.ErrPhotoTooLarge }

// SizeGate vetoes writes that set a photo larger than maxBytes. Writes that
// leave the photo untouched pass even if the stored photo is oversized.
func SizeGate(maxBytes int64) islands.BeforeSaveHook {
	return func(_ context.Context, _ *islands.Island, change islands.PhotoChange) error {
		if !change.Dirty() || change.Current == nil {
			return nil
		}
		if change.Current.Size > maxBytes {
			return &SizeError{MaxBytes: maxBytes}
		}
		return nil
	}
}

// ShouldSchedule reports whether a write warrants a new thumbnail: the
// record existed before, it now has a photo, and that photo is a different
// stored object than the previous one.
func ShouldSchedule(change islands.PhotoChange) bool {
	return change.HasPrevious &&
		change.Current != nil &&
		!storage.SameAsset(change.Previous, change.Current)
}

// Trigger schedules a pipeline job after qualifying record writes.
type Trigger struct {
	scheduler Scheduler
	logger    *slog.Logger
	newID     func() string
}

func NewTrigger(s Scheduler, logger *slog.Logger) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{scheduler: s, logger: logger, newID: uuid.NewString}
}

// AfterSave is an islands.AfterSaveHook. Scheduling failures are logged and
// never reach the writer.
func (t *Trigger) AfterSave(ctx context.Context, _ *islands.Island, change islands.PhotoChange) {
	if !ShouldSchedule(change) {
		return
	}
	job := Job{
		ID:       t.newID(),
		IslandID: change.IslandID,
		Photo:    *change.Current.Clone(),
	}
	if err := t.scheduler.Schedule(context.WithoutCancel(ctx), job); err != nil {
		t.logger.Error("schedule thumbnail failed",
			"island_id", job.IslandID.String(),
			"source_url", job.Photo.URL,
			"job_id", job.ID,
			"err", err)
		return
	}
	t.logger.Info("scheduled thumbnail", "island_id", job.IslandID.String(), "job_id", job.ID)
}
