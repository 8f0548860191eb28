package httpapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/google/uuid"

	"github.com/tendant/island-photos/internal/islands"
	"github.com/tendant/island-photos/internal/upload"
)

const photoField = "photo"

func (h *handler) list(w http.ResponseWriter, r *http.Request) {
	items, err := h.islands.List(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, nonNil(items))
}

func (h *handler) search(w http.ResponseWriter, r *http.Request) {
	items, err := h.islands.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, nonNil(items))
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	id, ok := islandID(w, r)
	if !ok {
		return
	}
	it, err := h.islands.Get(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, it)
}

func (h *handler) create(w http.ResponseWriter, r *http.Request) {
	var in islands.NewIsland
	if err := render.DecodeJSON(r.Body, &in); err != nil {
		respondError(w, r, badRequest("Invalid request body: %v", err))
		return
	}
	it, err := h.islands.Create(r.Context(), in)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, it)
}

func (h *handler) update(w http.ResponseWriter, r *http.Request) {
	id, ok := islandID(w, r)
	if !ok {
		return
	}
	var patch islands.Patch
	if err := render.DecodeJSON(r.Body, &patch); err != nil {
		respondError(w, r, badRequest("Invalid request body: %v", err))
		return
	}
	it, err := h.islands.Update(r.Context(), id, patch)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, it)
}

// uploadPhoto stores the multipart "photo" file and attaches it to the
// island. Thumbnail derivation starts after the record is saved.
func (h *handler) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	id, ok := islandID(w, r)
	if !ok {
		return
	}
	if _, err := h.islands.Get(r.Context(), id); err != nil {
		respondError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.uploads.MaxBytes()+multipartOverhead)
	file, hdr, err := r.FormFile(photoField)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			respondError(w, r, h.uploads.TooLarge())
			return
		}
		respondError(w, r, badRequest("No file uploaded"))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	photo, err := h.uploads.StorePhoto(r.Context(), upload.Candidate{
		DeclaredName:     hdr.Filename,
		DeclaredMimeType: hdr.Header.Get("Content-Type"),
		SizeBytes:        hdr.Size,
		Content:          data,
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	httplog.LogEntrySetField(r.Context(), "photo_key", slog.StringValue(photo.Key))

	it, err := h.islands.SetPhoto(r.Context(), id, photo)
	if err != nil {
		if derr := h.uploads.DiscardPhoto(context.WithoutCancel(r.Context()), photo); derr != nil {
			logger(r).Warn("discard unattached photo failed", "island_id", id.String(), "photo_key", photo.Key, "err", derr)
		}
		respondError(w, r, err)
		return
	}
	logger(r).Info("island photo updated", "island_id", id.String(), "photo_url", photo.URL, "bytes", photo.Size)
	respond(w, r, http.StatusOK, it)
}

func islandID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid island id")
		return uuid.Nil, false
	}
	return id, true
}

func nonNil(items []*islands.Island) []*islands.Island {
	if items == nil {
		return []*islands.Island{}
	}
	return items
}
