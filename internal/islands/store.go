package islands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/island-photos/internal/storage"
)

// BeforeSaveHook runs inside the write path before persistence. A non-nil
// error vetoes the write and is returned to the caller unchanged.
type BeforeSaveHook func(ctx context.Context, next *Island, change PhotoChange) error

// AfterSaveHook runs once the write has been persisted. It cannot fail the
// write and must not block on slow work.
type AfterSaveHook func(ctx context.Context, saved *Island, change PhotoChange)

type SaveOptions struct {
	// Privileged saves may change PhotoThumb. Only the photo upload path
	// uses it, to clear the thumbnail of a replaced photo.
	Privileged bool
}

// Store is the record write path. Every write goes through Save so the
// photo hooks see every photo change.
type Store struct {
	repo   Repository
	before []BeforeSaveHook
	after  []AfterSaveHook
	logger *slog.Logger
	now    func() time.Time
}

type StoreOption func(*Store)

func WithBeforeSave(h BeforeSaveHook) StoreOption {
	return func(s *Store) { s.before = append(s.before, h) }
}

func WithAfterSave(h AfterSaveHook) StoreOption {
	return func(s *Store) { s.after = append(s.after, h) }
}

func WithStoreLogger(l *slog.Logger) StoreOption {
	return func(s *Store) { s.logger = l }
}

func NewStore(repo Repository, opts ...StoreOption) *Store {
	s := &Store{repo: repo, logger: slog.Default(), now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Use registers hooks after construction, e.g. when the hook needs the store.
func (s *Store) Use(opts ...StoreOption) {
	for _, o := range opts {
		o(s)
	}
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Island, error) {
	return s.repo.Get(ctx, id)
}

func (s *Store) List(ctx context.Context) ([]*Island, error) {
	return s.repo.List(ctx)
}

func (s *Store) Search(ctx context.Context, q string) ([]*Island, error) {
	return s.repo.Search(ctx, q)
}

func (s *Store) ListMissingThumbnails(ctx context.Context, limit int) ([]*Island, error) {
	return s.repo.ListMissingThumbnails(ctx, limit)
}

// maxSaveAttempts bounds how often an update is retried after a concurrent
// write to the same island.
const maxSaveAttempts = 3

// Save creates island when its ID is zero and updates it otherwise. On
// success island carries the persisted ID and timestamps. Unprivileged
// updates keep the stored thumbnail whatever island carries.
func (s *Store) Save(ctx context.Context, island *Island, opts SaveOptions) error {
	if err := island.Validate(); err != nil {
		return err
	}

	var (
		saved *Island
		err   error
	)
	if island.ID == uuid.Nil {
		if !opts.Privileged && island.PhotoThumb != nil {
			return ErrThumbnailManaged
		}
		next := island.Clone()
		next.ID = uuid.New()
		saved, err = s.persist(ctx, nil, next, opts)
	} else {
		saved, err = s.Modify(ctx, island.ID, func(cur *Island) error {
			*cur = *island.Clone()
			return nil
		}, opts)
	}
	if err != nil {
		return err
	}
	*island = *saved
	return nil
}

// Modify applies fn to a fresh copy of the stored island and saves the
// result. When another write lands first the read and fn are repeated.
func (s *Store) Modify(ctx context.Context, id uuid.UUID, fn func(*Island) error, opts SaveOptions) (*Island, error) {
	for attempt := 1; ; attempt++ {
		prev, err := s.repo.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		next := prev.Clone()
		if err := fn(next); err != nil {
			return nil, err
		}
		next.ID = prev.ID
		if err := next.Validate(); err != nil {
			return nil, err
		}

		saved, err := s.persist(ctx, prev, next, opts)
		if errors.Is(err, ErrConflict) && attempt < maxSaveAttempts {
			s.logger.Debug("island changed during save, retrying", "island_id", id.String(), "attempt", attempt)
			continue
		}
		return saved, err
	}
}

// AttachThumbnail records thumb while the island's photo is still photo.
// Only the thumbnail changes, so no hooks run.
func (s *Store) AttachThumbnail(ctx context.Context, id uuid.UUID, photo, thumb *storage.AssetRef) error {
	if photo == nil {
		return ErrPhotoChanged
	}
	return s.repo.AttachThumbnail(ctx, id, photo.URL, thumb.Clone(), s.stamp())
}

func (s *Store) persist(ctx context.Context, prev, next *Island, opts SaveOptions) (*Island, error) {
	if prev != nil && !opts.Privileged {
		next.PhotoThumb = prev.PhotoThumb.Clone()
	}
	change := Diff(prev, next)

	for _, h := range s.before {
		if err := h(ctx, next, change); err != nil {
			return nil, err
		}
	}

	next.UpdatedAt = s.stamp()
	if prev == nil {
		next.CreatedAt = next.UpdatedAt
		if err := s.repo.Create(ctx, next); err != nil {
			return nil, fmt.Errorf("create island: %w", err)
		}
	} else {
		if !next.UpdatedAt.After(prev.UpdatedAt) {
			next.UpdatedAt = prev.UpdatedAt.Add(time.Microsecond)
		}
		next.CreatedAt = prev.CreatedAt
		if err := s.repo.Update(ctx, next, prev.UpdatedAt); err != nil {
			return nil, fmt.Errorf("update island %s: %w", next.ID, err)
		}
	}

	for _, h := range s.after {
		s.runAfter(ctx, h, next.Clone(), change)
	}
	return next, nil
}

// stamp is truncated to the precision Postgres stores so a value read back
// compares equal to the one written.
func (s *Store) stamp() time.Time {
	return s.now().UTC().Truncate(time.Microsecond)
}

func (s *Store) runAfter(ctx context.Context, h AfterSaveHook, saved *Island, change PhotoChange) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("after save hook panicked", "island_id", saved.ID.String(), "panic", r)
		}
	}()
	h(ctx, saved, change)
}
