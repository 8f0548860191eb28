// Package httpapi exposes the island records over HTTP.
package httpapi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/island-photos/internal/islands"
	"github.com/tendant/island-photos/internal/upload"
)

// multipartOverhead is added to the photo limit for the request body cap.
const multipartOverhead = 1 << 20

type Deps struct {
	Islands    *islands.Service
	Uploads    *upload.Client
	AdminToken string
	Logger     *httplog.Logger
	Gatherer   prometheus.Gatherer
}

type handler struct {
	islands *islands.Service
	uploads *upload.Client
}

func NewRouter(d Deps) chi.Router {
	h := &handler{islands: d.Islands, uploads: d.Uploads}

	r := chi.NewRouter()
	if d.Logger != nil {
		r.Use(httplog.RequestLogger(d.Logger))
	}
	r.Use(render.SetContentType(render.ContentTypeJSON))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	if d.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/islands", func(r chi.Router) {
		r.Get("/", h.list)
		r.Get("/search", h.search)
		r.Get("/{id}", h.get)

		r.Group(func(r chi.Router) {
			r.Use(requireAdmin(d.AdminToken))
			r.Post("/", h.create)
			r.Patch("/{id}", h.update)
			r.Post("/{id}/photo", h.uploadPhoto)
		})
	})
	return r
}

// requireAdmin admits requests carrying the static admin bearer token. An
// empty token locks the admin routes.
func requireAdmin(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" || subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				writeError(w, r, http.StatusUnauthorized, "Admin access required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
