// internal/storage/store.go
package storage

import (
	"context"
	"errors"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("asset not found")

// AssetRef points at a stored binary asset. URL is the stored-location
// reference used to tell one upload from another.
type AssetRef struct {
	Name        string `json:"name"`
	Key         string `json:"key"`
	URL         string `json:"url"`
	ContentType string `json:"contentType,omitempty"`
	Size        int64  `json:"size"`
}

// Clone returns a copy that shares no memory with r.
func (r *AssetRef) Clone() *AssetRef {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// SameAsset reports whether a and b reference the same stored object.
// Two nil refs are the same; a nil and a non-nil ref are not.
func SameAsset(a, b *AssetRef) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.URL == b.URL
}

// Store persists binary assets by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (*AssetRef, error)
	Get(ctx context.Context, key string) ([]byte, error)
	// Delete removes key. Deleting an unknown key is not an error.
	Delete(ctx context.Context, key string) error
}

var (
	newUUID = uuid.NewString
	now     = time.Now
)

// NewKey builds a collision-free object key such as
// "islands/2024/05/17/6f1c...-beach.jpg".
func NewKey(prefix, name string) string {
	base := path.Base(strings.ReplaceAll(name, "\\", "/"))
	if base == "." || base == "/" {
		base = ""
	}
	file := newUUID()
	if base != "" {
		file += "-" + base
	}
	return path.Join(strings.Trim(prefix, "/"), now().UTC().Format("2006/01/02"), file)
}
