package islands

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/tendant/island-photos/internal/storage"
)

// Service implements the island use cases on top of the record store.
type Service struct {
	store *Store
}

func NewService(store *Store) *Service {
	return &Service{store: store}
}

func (s *Service) List(ctx context.Context) ([]*Island, error) {
	return s.store.List(ctx)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Island, error) {
	return s.store.Get(ctx, id)
}

// Search trims q and matches it case-insensitively. Regex metacharacters
// have no special meaning.
func (s *Service) Search(ctx context.Context, q string) ([]*Island, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, ErrEmptyQuery
	}
	return s.store.Search(ctx, q)
}

// NewIsland is the input for Create. Photos are attached with SetPhoto.
type NewIsland struct {
	Name             string    `json:"name"`
	ShortDescription string    `json:"short_description"`
	Description      string    `json:"description"`
	Order            int       `json:"order"`
	Site             string    `json:"site"`
	Location         *GeoPoint `json:"location"`
}

func (s *Service) Create(ctx context.Context, in NewIsland) (*Island, error) {
	it := &Island{
		Name:             strings.TrimSpace(in.Name),
		ShortDescription: in.ShortDescription,
		Description:      in.Description,
		Order:            in.Order,
		Site:             in.Site,
		Location:         in.Location,
	}
	if err := s.store.Save(ctx, it, SaveOptions{}); err != nil {
		return nil, err
	}
	return it, nil
}

func (s *Service) Update(ctx context.Context, id uuid.UUID, patch Patch) (*Island, error) {
	if patch.Empty() {
		return nil, ErrNoFields
	}
	return s.store.Modify(ctx, id, func(it *Island) error {
		patch.Apply(it)
		return nil
	}, SaveOptions{})
}

// SetPhoto attaches a stored photo and clears the thumbnail of the previous
// one. The pipeline derives the new thumbnail after the save.
func (s *Service) SetPhoto(ctx context.Context, id uuid.UUID, photo *storage.AssetRef) (*Island, error) {
	return s.store.Modify(ctx, id, func(it *Island) error {
		it.Photo = photo.Clone()
		it.PhotoThumb = nil
		return nil
	}, SaveOptions{Privileged: true})
}
