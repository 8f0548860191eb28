package islands

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/island-photos/internal/storage"
)

// MemoryRepository is a process-local Repository used by tests and the dev
// server.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[uuid.UUID]*Island
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[uuid.UUID]*Island)}
}

func (r *MemoryRepository) Get(_ context.Context, id uuid.UUID) (*Island, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	it, ok := r.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	return it.Clone(), nil
}

func (r *MemoryRepository) List(_ context.Context) ([]*Island, error) {
	return r.filter(func(*Island) bool { return true }, 0), nil
}

func (r *MemoryRepository) Search(_ context.Context, q string) ([]*Island, error) {
	needle := strings.ToLower(q)
	return r.filter(func(i *Island) bool {
		return strings.Contains(strings.ToLower(i.Name), needle) ||
			strings.Contains(strings.ToLower(i.ShortDescription), needle) ||
			strings.Contains(strings.ToLower(i.Description), needle)
	}, 0), nil
}

func (r *MemoryRepository) ListMissingThumbnails(_ context.Context, limit int) ([]*Island, error) {
	return r.filter(func(i *Island) bool {
		return i.Photo != nil && i.PhotoThumb == nil
	}, limit), nil
}

func (r *MemoryRepository) Create(_ context.Context, island *Island) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[island.ID]; ok {
		return fmt.Errorf("create island %s: already exists", island.ID)
	}
	r.items[island.ID] = island.Clone()
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, island *Island, prevUpdatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[island.ID]
	if !ok {
		return ErrNotFound
	}
	if !cur.UpdatedAt.Equal(prevUpdatedAt) {
		return ErrConflict
	}
	r.items[island.ID] = island.Clone()
	return nil
}

func (r *MemoryRepository) AttachThumbnail(_ context.Context, id uuid.UUID, photoURL string, thumb *storage.AssetRef, updatedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.items[id]
	if !ok {
		return ErrNotFound
	}
	if cur.Photo == nil || cur.Photo.URL != photoURL {
		return ErrPhotoChanged
	}
	cur.PhotoThumb = thumb.Clone()
	cur.UpdatedAt = updatedAt
	return nil
}

func (r *MemoryRepository) filter(keep func(*Island) bool, limit int) []*Island {
	r.mu.RLock()
	out := make([]*Island, 0, len(r.items))
	for _, it := range r.items {
		if keep(it) {
			out = append(out, it.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(a, b int) bool {
		if out[a].Order != out[b].Order {
			return out[a].Order < out[b].Order
		}
		return out[a].Name < out[b].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
