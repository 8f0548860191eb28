// internal/img/thumb.go
package img

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// JPEGQuality is the encoder quality used for every thumbnail.
const JPEGQuality = 80

var (
	ErrDecode        = errors.New("decode image")
	ErrInvalidTarget = errors.New("thumbnail dimensions must be positive")
)

type ThumbnailSpec struct {
	Name   string
	Width  int
	Height int
}

type ThumbnailOutput struct {
	Name         string
	Data         []byte
	MimeType     string
	Width        int
	Height       int
	SourceWidth  int
	SourceHeight int
}

// DeriveThumbnail decodes original, scales it to cover a width x height box,
// crops the centred overflow and returns the result as JPEG.
func DeriveThumbnail(original []byte, width, height int) ([]byte, error) {
	out, err := Derive(original, ThumbnailSpec{Width: width, Height: height})
	if err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Derive is DeriveThumbnail with the dimensions of source and result reported.
func Derive(original []byte, spec ThumbnailSpec) (*ThumbnailOutput, error) {
	if spec.Width <= 0 || spec.Height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidTarget, spec.Width, spec.Height)
	}

	src, err := imaging.Decode(bytes.NewReader(original), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	srcBounds := src.Bounds()

	thumb := imaging.Fill(src, spec.Width, spec.Height, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(JPEGQuality)); err != nil {
		return nil, fmt.Errorf("encode: %w", err)
	}

	b := thumb.Bounds()
	return &ThumbnailOutput{
		Name:         spec.Name,
		Data:         buf.Bytes(),
		MimeType:     "image/jpeg",
		Width:        b.Dx(),
		Height:       b.Dy(),
		SourceWidth:  srcBounds.Dx(),
		SourceHeight: srcBounds.Dy(),
	}, nil
}
