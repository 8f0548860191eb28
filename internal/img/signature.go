// internal/img/signature.go
package img

import (
	"bytes"
	"strings"
)

// Format is an image container format recognised by its magic bytes.
type Format int

const (
	FormatUnknown Format = iota
	FormatJPEG
	FormatPNG
	FormatGIF
	FormatWEBP
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatGIF:
		return "gif"
	case FormatWEBP:
		return "webp"
	default:
		return "unknown"
	}
}

// minSignatureLen is the shortest buffer worth inspecting.
const minSignatureLen = 8

type magic struct {
	offset int
	bytes  []byte
}

// signature lists alternatives; every magic in one alternative must match.
type signature [][]magic

var signatures = map[Format]signature{
	FormatJPEG: {
		{{0, []byte{0xFF, 0xD8, 0xFF}}},
	},
	FormatPNG: {
		{{0, []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}}},
	},
	FormatGIF: {
		{{0, []byte("GIF87a")}},
		{{0, []byte("GIF89a")}},
	},
	FormatWEBP: {
		{{0, []byte("RIFF")}, {8, []byte("WEBP")}},
	},
}

var mimeFormats = map[string]Format{
	"image/jpeg": FormatJPEG,
	"image/jpg":  FormatJPEG,
	"image/png":  FormatPNG,
	"image/gif":  FormatGIF,
	"image/webp": FormatWEBP,
}

// FormatFromMime maps a declared MIME type to the format whose signature it
// must carry. Unknown types yield FormatUnknown.
func FormatFromMime(mimeType string) Format {
	return mimeFormats[strings.ToLower(strings.TrimSpace(mimeType))]
}

// ValidateSignature reports whether content starts with the magic bytes of
// format. It never reads past the buffer.
func ValidateSignature(content []byte, format Format) bool {
	if len(content) < minSignatureLen {
		return false
	}
	alts, ok := signatures[format]
	if !ok {
		return false
	}
	for _, alt := range alts {
		if matchAll(content, alt) {
			return true
		}
	}
	return false
}

func matchAll(content []byte, parts []magic) bool {
	for _, m := range parts {
		end := m.offset + len(m.bytes)
		if end > len(content) || !bytes.Equal(content[m.offset:end], m.bytes) {
			return false
		}
	}
	return true
}
