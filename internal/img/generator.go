package img

import (
	"context"
	"fmt"
	"strings"
)

// Generator produces a thumbnail from an in-memory original.
type Generator interface {
	// Generate derives one thumbnail according to spec.
	Generate(ctx context.Context, src []byte, spec ThumbnailSpec) (*ThumbnailOutput, error)

	// Supports returns true if this generator can handle the given MIME type
	Supports(mimeType string) bool

	// Name returns the generator name for logging
	Name() string
}

// GetGenerator returns the thumbnail generator for the given MIME type.
// Only the photo formats accepted at upload are routed.
func GetGenerator(mimeType string) (Generator, error) {
	g := &ImageGenerator{}
	if g.Supports(mimeType) {
		return g, nil
	}
	return nil, fmt.Errorf("unsupported MIME type: %s (supported: %s)", mimeType, strings.Join(SupportedMimeTypes(), ", "))
}

// SupportedMimeTypes returns a list of all MIME types that can be processed
func SupportedMimeTypes() []string {
	return []string{
		"image/jpeg",
		"image/jpg",
		"image/png",
		"image/gif",
		"image/webp",
	}
}

// ImageGenerator implements Generator with the imaging library.
type ImageGenerator struct{}

func (g *ImageGenerator) Generate(ctx context.Context, src []byte, spec ThumbnailSpec) (*ThumbnailOutput, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Derive(src, spec)
}

func (g *ImageGenerator) Supports(mimeType string) bool {
	return FormatFromMime(mimeType) != FormatUnknown
}

func (g *ImageGenerator) Name() string {
	return "image"
}
