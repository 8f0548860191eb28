package islands

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/island-photos/internal/storage"
)

// Repository persists islands. Implementations return ErrNotFound for
// unknown ids.
type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (*Island, error)
	// List returns all islands ordered by Order ascending.
	List(ctx context.Context) ([]*Island, error)
	// Search matches q case-insensitively against name and both descriptions.
	Search(ctx context.Context, q string) ([]*Island, error)
	Create(ctx context.Context, island *Island) error
	// Update replaces the stored row only while its UpdatedAt still equals
	// prevUpdatedAt and returns ErrConflict otherwise.
	Update(ctx context.Context, island *Island, prevUpdatedAt time.Time) error
	// AttachThumbnail sets only the thumbnail, and only while the stored
	// photo URL equals photoURL. It returns ErrPhotoChanged otherwise.
	AttachThumbnail(ctx context.Context, id uuid.UUID, photoURL string, thumb *storage.AssetRef, updatedAt time.Time) error
	// ListMissingThumbnails returns up to limit islands that have a photo
	// but no thumbnail.
	ListMissingThumbnails(ctx context.Context, limit int) ([]*Island, error)
}
