package img

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"image/png"
	"testing"
)

func TestDeriveThumbnailCoversBox(t *testing.T) {
	tests := []struct {
		name string
		w, h int
		box  [2]int
	}{
		{"landscape", 400, 200, [2]int{100, 100}},
		{"portrait", 120, 480, [2]int{250, 250}},
		{"upscale", 40, 30, [2]int{250, 250}},
		{"wide box", 300, 300, [2]int{200, 50}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			src := encodePNG(t, tc.w, tc.h)
			out, err := DeriveThumbnail(src, tc.box[0], tc.box[1])
			if err != nil {
				t.Fatalf("DeriveThumbnail returned error: %v", err)
			}

			cfg, format, err := image.DecodeConfig(bytes.NewReader(out))
			if err != nil {
				t.Fatalf("decode output: %v", err)
			}
			if format != "jpeg" {
				t.Fatalf("expected jpeg output, got %s", format)
			}
			if cfg.Width != tc.box[0] || cfg.Height != tc.box[1] {
				t.Fatalf("unexpected thumbnail size: got %dx%d, want %dx%d", cfg.Width, cfg.Height, tc.box[0], tc.box[1])
			}
		})
	}
}

func TestDeriveReportsDimensions(t *testing.T) {
	out, err := Derive(encodeJPEG(t, 640, 480), ThumbnailSpec{Name: "thumb", Width: 250, Height: 250})
	if err != nil {
		t.Fatalf("Derive returned error: %v", err)
	}
	if out.SourceWidth != 640 || out.SourceHeight != 480 {
		t.Fatalf("unexpected source size: %dx%d", out.SourceWidth, out.SourceHeight)
	}
	if out.Width != 250 || out.Height != 250 {
		t.Fatalf("unexpected output size: %dx%d", out.Width, out.Height)
	}
	if out.MimeType != "image/jpeg" || out.Name != "thumb" {
		t.Fatalf("unexpected output metadata: %+v", out)
	}
}

func TestDeriveThumbnailFromGIF(t *testing.T) {
	var buf bytes.Buffer
	pal := image.NewPaletted(image.Rect(0, 0, 64, 32), color.Palette{color.Black, color.White})
	if err := gif.Encode(&buf, pal, nil); err != nil {
		t.Fatalf("encode gif: %v", err)
	}
	if _, err := DeriveThumbnail(buf.Bytes(), 16, 16); err != nil {
		t.Fatalf("DeriveThumbnail returned error for gif: %v", err)
	}
}

func TestDeriveThumbnailRejectsGarbage(t *testing.T) {
	_, err := DeriveThumbnail([]byte("definitely not an image"), 10, 10)
	if err == nil {
		t.Fatalf("expected error for undecodable input")
	}
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode, got %v", err)
	}
}

func TestDeriveThumbnailRejectsTruncatedJPEG(t *testing.T) {
	src := encodeJPEG(t, 100, 100)
	if _, err := DeriveThumbnail(src[:len(src)/3], 10, 10); !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for truncated jpeg, got %v", err)
	}
}

func TestDeriveThumbnailInvalidTarget(t *testing.T) {
	if _, err := DeriveThumbnail(encodePNG(t, 10, 10), 0, 10); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("expected ErrInvalidTarget, got %v", err)
	}
}

func testImage(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, testImage(w, h)); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, testImage(w, h), nil); err != nil {
		t.Fatalf("encode jpeg: %v", err)
	}
	return buf.Bytes()
}
