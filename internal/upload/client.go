// internal/upload/client.go
package upload

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/tendant/island-photos/internal/storage"
)

const (
	PhotoPrefix     = "islands/photos"
	ThumbnailPrefix = "islands/thumbnails"

	defaultPhotoName = "photo.jpg"
)

var ErrEmptyUpload = errors.New("empty upload")

// Client coordinates photo and thumbnail interactions with the asset store.
type Client struct {
	store storage.Store
	gate  *Gatekeeper
}

// NewClient wraps an asset store. Photos stored through the client are
// admitted by gate first.
func NewClient(store storage.Store, gate *Gatekeeper) *Client {
	if gate == nil {
		gate = NewGatekeeper(MaxImageSizeBytes)
	}
	return &Client{store: store, gate: gate}
}

// MaxBytes is the largest photo StorePhoto admits.
func (c *Client) MaxBytes() int64 { return c.gate.MaxBytes() }

// TooLarge reports an upload that exceeded MaxBytes in transport.
func (c *Client) TooLarge() error { return c.gate.TooLarge() }

// Source is an original photo loaded into memory.
type Source struct {
	Data     []byte
	Filename string
	MimeType string
}

// StorePhoto admits c and persists it as a new photo asset.
func (c *Client) StorePhoto(ctx context.Context, cand Candidate) (*storage.AssetRef, error) {
	if cand.SizeBytes == 0 {
		cand.SizeBytes = int64(len(cand.Content))
	}
	if err := c.gate.Admit(cand).Err(); err != nil {
		return nil, err
	}
	if len(cand.Content) == 0 {
		return nil, ErrEmptyUpload
	}

	ref, err := c.store.Put(ctx, storage.NewKey(PhotoPrefix, cand.DeclaredName), cand.Content, cand.DeclaredMimeType)
	if err != nil {
		return nil, fmt.Errorf("store photo: %w", err)
	}
	ref.Name = cand.DeclaredName
	return ref, nil
}

// DiscardPhoto removes a photo stored by StorePhoto that was never
// attached to a record.
func (c *Client) DiscardPhoto(ctx context.Context, ref *storage.AssetRef) error {
	if ref == nil || ref.Key == "" {
		return nil
	}
	if err := c.store.Delete(ctx, ref.Key); err != nil {
		return fmt.Errorf("discard photo: %w", err)
	}
	return nil
}

// FetchSource downloads the referenced original.
func (c *Client) FetchSource(ctx context.Context, ref *storage.AssetRef) (*Source, error) {
	if ref == nil || ref.Key == "" {
		return nil, fmt.Errorf("download content: %w", storage.ErrNotFound)
	}
	data, err := c.store.Get(ctx, ref.Key)
	if err != nil {
		return nil, fmt.Errorf("download content: %w", err)
	}

	filename := ref.Name
	if filename == "" {
		filename = defaultPhotoName
	}
	mimeType := ref.ContentType
	if mimeType == "" {
		mimeType = detectMime(data)
	}
	return &Source{Data: data, Filename: filename, MimeType: mimeType}, nil
}

// UploadThumbnail persists derived thumbnail bytes under name.
func (c *Client) UploadThumbnail(ctx context.Context, name string, data []byte) (*storage.AssetRef, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	ref, err := c.store.Put(ctx, storage.NewKey(ThumbnailPrefix, name), data, detectMime(data))
	if err != nil {
		return nil, fmt.Errorf("upload thumbnail: %w", err)
	}
	ref.Name = name
	return ref, nil
}

func detectMime(data []byte) string {
	if len(data) > 512 {
		data = data[:512]
	}
	return http.DetectContentType(data)
}
