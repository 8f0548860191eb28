package islands

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/island-photos/internal/storage"
)

func TestStoreSaveCreatesAndUpdates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	store := NewStore(repo)

	it := &Island{Name: "Bali", Order: 2}
	require.NoError(t, store.Save(ctx, it, SaveOptions{}))
	require.NotEqual(t, uuid.Nil, it.ID)
	assert.False(t, it.CreatedAt.IsZero())
	created := it.CreatedAt

	it.ShortDescription = "Island of the gods"
	require.NoError(t, store.Save(ctx, it, SaveOptions{}))
	assert.Equal(t, created, it.CreatedAt)

	got, err := store.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, "Island of the gods", got.ShortDescription)
}

func TestStoreSaveUnknownID(t *testing.T) {
	store := NewStore(NewMemoryRepository())
	err := store.Save(context.Background(), &Island{ID: uuid.New(), Name: "Ghost"}, SaveOptions{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreSaveRejectsInvalid(t *testing.T) {
	store := NewStore(NewMemoryRepository())
	assert.ErrorIs(t, store.Save(context.Background(), &Island{}, SaveOptions{}), ErrInvalid)
}

func TestStoreHooksOrderAndVeto(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	var calls []string
	veto := errors.New("veto")

	store := NewStore(repo,
		WithBeforeSave(func(_ context.Context, next *Island, c PhotoChange) error {
			calls = append(calls, "before")
			if next.Name == "blocked" {
				return veto
			}
			return nil
		}),
		WithAfterSave(func(_ context.Context, saved *Island, c PhotoChange) {
			calls = append(calls, "after")
			_, err := repo.Get(ctx, saved.ID)
			assert.NoError(t, err, "after hook must see the persisted record")
		}),
	)

	require.NoError(t, store.Save(ctx, &Island{Name: "Bali"}, SaveOptions{}))
	assert.Equal(t, []string{"before", "after"}, calls)

	calls = nil
	err := store.Save(ctx, &Island{Name: "blocked"}, SaveOptions{})
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, []string{"before"}, calls)

	all, _ := repo.List(ctx)
	assert.Len(t, all, 1)
}

func TestStoreAfterHookPanicDoesNotFailWrite(t *testing.T) {
	store := NewStore(NewMemoryRepository(), WithAfterSave(func(context.Context, *Island, PhotoChange) {
		panic("boom")
	}))
	assert.NoError(t, store.Save(context.Background(), &Island{Name: "Bali"}, SaveOptions{}))
}

func TestStoreHooksSeePhotoChange(t *testing.T) {
	ctx := context.Background()
	var changes []PhotoChange
	store := NewStore(NewMemoryRepository(), WithAfterSave(func(_ context.Context, _ *Island, c PhotoChange) {
		changes = append(changes, c)
	}))

	it := &Island{Name: "Bali"}
	require.NoError(t, store.Save(ctx, it, SaveOptions{}))
	it.Photo = &storage.AssetRef{URL: "memory://a"}
	require.NoError(t, store.Save(ctx, it, SaveOptions{Privileged: true}))

	require.Len(t, changes, 2)
	assert.False(t, changes[0].HasPrevious)
	assert.True(t, changes[1].HasPrevious)
	assert.Nil(t, changes[1].Previous)
	assert.Equal(t, "memory://a", changes[1].Current.URL)
	assert.Equal(t, it.ID, changes[1].IslandID)
}

func TestStoreThumbnailIsManaged(t *testing.T) {
	ctx := context.Background()
	store := NewStore(NewMemoryRepository())
	thumb := &storage.AssetRef{URL: "memory://t"}

	assert.ErrorIs(t, store.Save(ctx, &Island{Name: "Bali", PhotoThumb: thumb}, SaveOptions{}), ErrThumbnailManaged)

	it := &Island{Name: "Bali"}
	require.NoError(t, store.Save(ctx, it, SaveOptions{}))

	it.PhotoThumb = thumb
	require.NoError(t, store.Save(ctx, it, SaveOptions{}))
	assert.Nil(t, it.PhotoThumb, "unprivileged saves keep the stored thumbnail")

	it.PhotoThumb = thumb
	require.NoError(t, store.Save(ctx, it, SaveOptions{Privileged: true}))

	stale := &Island{ID: it.ID, Name: "Bali Island"}
	require.NoError(t, store.Save(ctx, stale, SaveOptions{}))
	assert.Equal(t, "Bali Island", stale.Name)
	require.NotNil(t, stale.PhotoThumb)
	assert.Equal(t, thumb.URL, stale.PhotoThumb.URL)
}

// racingRepo calls onGet after every successful Get, so a test can land a
// write between the read and the write of a save.
type racingRepo struct {
	Repository
	gets  int
	onGet func(n int)
}

func (r *racingRepo) Get(ctx context.Context, id uuid.UUID) (*Island, error) {
	it, err := r.Repository.Get(ctx, id)
	if err == nil {
		r.gets++
		if r.onGet != nil {
			r.onGet(r.gets)
		}
	}
	return it, err
}

func tickingClock() func() time.Time {
	t := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func TestServiceUpdateKeepsConcurrentThumbnail(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryRepository()
	repo := &racingRepo{Repository: mem}
	store := NewStore(repo)
	store.now = tickingClock()
	svc := NewService(store)

	it := seed(t, svc, "Bali")[0]
	photo := &storage.AssetRef{Name: "bali.jpg", URL: "memory://bali"}
	_, err := svc.SetPhoto(ctx, it.ID, photo)
	require.NoError(t, err)

	thumb := &storage.AssetRef{Name: "bali_thumb.jpg", URL: "memory://bali_thumb"}
	repo.gets = 0
	repo.onGet = func(n int) {
		if n == 1 {
			require.NoError(t, store.AttachThumbnail(ctx, it.ID, photo, thumb))
		}
	}

	name := "Renamed by admin"
	got, err := svc.Update(ctx, it.ID, Patch{Name: &name})
	require.NoError(t, err)
	assert.Equal(t, name, got.Name)
	assert.Equal(t, 2, repo.gets, "the conflicting write forces one re-read")

	stored, err := mem.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, name, stored.Name)
	require.NotNil(t, stored.PhotoThumb)
	assert.Equal(t, thumb.URL, stored.PhotoThumb.URL)
}

func TestSetPhotoDuringUpdateIsNotReverted(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryRepository()
	repo := &racingRepo{Repository: mem}
	store := NewStore(repo)
	store.now = tickingClock()
	svc := NewService(store)

	it := seed(t, svc, "Lombok")[0]
	photo := &storage.AssetRef{Name: "new.jpg", URL: "memory://new"}
	repo.onGet = func(n int) {
		if n == 1 {
			repo.onGet = nil
			_, err := svc.SetPhoto(ctx, it.ID, photo)
			require.NoError(t, err)
		}
	}

	site := "https://lombok.example"
	_, err := svc.Update(ctx, it.ID, Patch{Site: &site})
	require.NoError(t, err)

	stored, err := mem.Get(ctx, it.ID)
	require.NoError(t, err)
	assert.Equal(t, site, stored.Site)
	require.NotNil(t, stored.Photo)
	assert.Equal(t, photo.URL, stored.Photo.URL)
}

func TestStoreGivesUpAfterRepeatedConflicts(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryRepository()
	repo := &racingRepo{Repository: mem}
	store := NewStore(repo)
	store.now = tickingClock()
	svc := NewService(store)

	it := seed(t, svc, "Flores")[0]
	photo := &storage.AssetRef{URL: "memory://flores"}
	_, err := svc.SetPhoto(ctx, it.ID, photo)
	require.NoError(t, err)

	repo.gets = 0
	repo.onGet = func(int) {
		require.NoError(t, store.AttachThumbnail(ctx, it.ID, photo, &storage.AssetRef{URL: "memory://t"}))
	}
	name := "Flores Island"
	_, err = svc.Update(ctx, it.ID, Patch{Name: &name})
	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, maxSaveAttempts, repo.gets)
}
