// internal/upload/gatekeeper.go
package upload

import (
	"fmt"
	"strings"

	"github.com/tendant/island-photos/internal/img"
)

// MaxImageSizeBytes is the default photo size limit shared by the HTTP body
// limit, the gatekeeper and the record size gate.
const MaxImageSizeBytes int64 = 5 << 20

type ErrorKind string

const (
	InvalidMimeType   ErrorKind = "invalid_mime_type"
	InvalidExtension  ErrorKind = "invalid_extension"
	SignatureMismatch ErrorKind = "signature_mismatch"
	FileTooLarge      ErrorKind = "file_too_large"
)

// Candidate is an incoming photo before it is admitted to storage.
// Content may be empty when the transport validates before buffering.
type Candidate struct {
	DeclaredName     string
	DeclaredMimeType string
	SizeBytes        int64
	Content          []byte
}

// Outcome is the verdict on a Candidate.
type Outcome struct {
	Accepted bool
	Reason   ErrorKind
	Detail   string
}

// Err returns the rejection as an error, or nil for an accepted candidate.
func (o Outcome) Err() error {
	if o.Accepted {
		return nil
	}
	return &RejectionError{Kind: o.Reason, Detail: o.Detail}
}

type RejectionError struct {
	Kind   ErrorKind
	Detail string
}

func (e *RejectionError) Error() string { return e.Detail }

var (
	allowedMimeTypes  = []string{"image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp"}
	allowedExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
)

// Gatekeeper decides whether an upload may be stored. Checks run in a fixed
// order and stop at the first failure.
type Gatekeeper struct {
	maxBytes    int64
	mimeAllowed func(string) bool
	extAllowed  func(string) bool
	signatureOK func([]byte, string) bool
	mimeList    string
	extList     string
}

// NewGatekeeper returns a gatekeeper with the package allow-lists. A
// non-positive maxBytes falls back to MaxImageSizeBytes.
func NewGatekeeper(maxBytes int64) *Gatekeeper {
	if maxBytes <= 0 {
		maxBytes = MaxImageSizeBytes
	}
	return &Gatekeeper{
		maxBytes:    maxBytes,
		mimeAllowed: inList(allowedMimeTypes),
		extAllowed:  inList(allowedExtensions),
		signatureOK: func(b []byte, mime string) bool {
			return img.ValidateSignature(b, img.FormatFromMime(mime))
		},
		mimeList: strings.Join(allowedMimeTypes, ", "),
		extList:  strings.Join(allowedExtensions, ", "),
	}
}

func inList(list []string) func(string) bool {
	set := make(map[string]struct{}, len(list))
	for _, v := range list {
		set[v] = struct{}{}
	}
	return func(v string) bool {
		_, ok := set[v]
		return ok
	}
}

// MaxBytes returns the configured size limit.
func (g *Gatekeeper) MaxBytes() int64 { return g.maxBytes }

func (g *Gatekeeper) Admit(c Candidate) Outcome {
	mime := strings.ToLower(strings.TrimSpace(c.DeclaredMimeType))
	if !g.mimeAllowed(mime) {
		return reject(InvalidMimeType, "Invalid file type. Allowed types: "+g.mimeList)
	}

	if !g.extAllowed(extension(c.DeclaredName)) {
		return reject(InvalidExtension, "Invalid file extension. Allowed extensions: "+g.extList)
	}

	if len(c.Content) > 0 && !g.signatureOK(c.Content, mime) {
		return reject(SignatureMismatch, "File signature validation failed. File may be corrupted or not a valid image.")
	}

	if c.SizeBytes > g.maxBytes {
		return reject(FileTooLarge, g.tooLargeDetail())
	}

	return Outcome{Accepted: true}
}

// TooLarge is the rejection for a body that overran the limit before it
// could be inspected.
func (g *Gatekeeper) TooLarge() *RejectionError {
	return &RejectionError{Kind: FileTooLarge, Detail: g.tooLargeDetail()}
}

func (g *Gatekeeper) tooLargeDetail() string {
	return fmt.Sprintf("File too large. Maximum size is %s", formatMB(g.maxBytes))
}

func reject(kind ErrorKind, detail string) Outcome {
	return Outcome{Reason: kind, Detail: detail}
}

// extension returns the lower-cased suffix from the last dot, or "".
func extension(name string) string {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return ""
	}
	return strings.ToLower(name[i:])
}

func formatMB(n int64) string {
	if n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	return fmt.Sprintf("%.1fMB", float64(n)/(1<<20))
}
