// Package islands holds the island record, its repositories and the write
// path that runs photo hooks around persistence.
package islands

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/island-photos/internal/storage"
)

var (
	ErrNotFound         = errors.New("island not found")
	ErrInvalid          = errors.New("invalid island")
	ErrNoFields         = errors.New("no valid fields provided for update")
	ErrEmptyQuery       = errors.New("search query is required")
	ErrPhotoTooLarge    = errors.New("photo too large")
	ErrThumbnailManaged = errors.New("photo thumbnail is managed by the photo pipeline")
	ErrPhotoChanged     = errors.New("island photo changed")
	ErrConflict         = errors.New("island was modified concurrently")
)

type GeoPoint struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type Island struct {
	ID               uuid.UUID         `json:"id"`
	Name             string            `json:"name"`
	ShortDescription string            `json:"short_description"`
	Description      string            `json:"description,omitempty"`
	Order            int               `json:"order"`
	Site             string            `json:"site,omitempty"`
	Photo            *storage.AssetRef `json:"photo,omitempty"`
	PhotoThumb       *storage.AssetRef `json:"photo_thumb,omitempty"`
	Location         *GeoPoint         `json:"location,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Clone returns a deep copy of i.
func (i *Island) Clone() *Island {
	if i == nil {
		return nil
	}
	c := *i
	c.Photo = i.Photo.Clone()
	c.PhotoThumb = i.PhotoThumb.Clone()
	if i.Location != nil {
		loc := *i.Location
		c.Location = &loc
	}
	return &c
}

func (i *Island) Validate() error {
	if strings.TrimSpace(i.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if i.Order < 0 {
		return fmt.Errorf("%w: order must not be negative", ErrInvalid)
	}
	if l := i.Location; l != nil {
		if l.Latitude < -90 || l.Latitude > 90 || l.Longitude < -180 || l.Longitude > 180 {
			return fmt.Errorf("%w: location out of range", ErrInvalid)
		}
	}
	return nil
}

// Patch lists the admin-editable fields. Nil fields are left untouched.
type Patch struct {
	Name             *string   `json:"name"`
	ShortDescription *string   `json:"short_description"`
	Description      *string   `json:"description"`
	Site             *string   `json:"site"`
	Order            *int      `json:"order"`
	Location         *GeoPoint `json:"location"`
}

func (p Patch) Empty() bool {
	return p.Name == nil && p.ShortDescription == nil && p.Description == nil &&
		p.Site == nil && p.Order == nil && p.Location == nil
}

func (p Patch) Apply(i *Island) {
	if p.Name != nil {
		i.Name = *p.Name
	}
	if p.ShortDescription != nil {
		i.ShortDescription = *p.ShortDescription
	}
	if p.Description != nil {
		i.Description = *p.Description
	}
	if p.Site != nil {
		i.Site = *p.Site
	}
	if p.Order != nil {
		i.Order = *p.Order
	}
	if p.Location != nil {
		loc := *p.Location
		i.Location = &loc
	}
}

// PhotoChange describes what a single write did to the photo attribute.
// Refs are copies owned by the change.
type PhotoChange struct {
	IslandID    uuid.UUID
	HasPrevious bool
	Previous    *storage.AssetRef
	Current     *storage.AssetRef
}

// Dirty reports whether the write touched the photo.
func (c PhotoChange) Dirty() bool {
	return !storage.SameAsset(c.Previous, c.Current)
}

// Diff computes the photo change between the stored version prev (nil on
// create) and next.
func Diff(prev, next *Island) PhotoChange {
	c := PhotoChange{IslandID: next.ID, Current: next.Photo.Clone()}
	if prev != nil {
		c.HasPrevious = true
		c.Previous = prev.Photo.Clone()
	}
	return c
}
