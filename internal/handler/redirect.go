package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/linklift/linklift/internal/geoip"
)

// LinkResolver maps a short-link code to its target URL. Link persistence
// lives outside this service; the redirect endpoint only needs this one
// operation.
type LinkResolver interface {
	Resolve(ctx context.Context, code string) (string, error)
}

// RedirectHandler serves the public short-link redirect endpoint.
type RedirectHandler struct {
	resolver LinkResolver
	geo      *geoip.Service
	logger   *slog.Logger
}

// NewRedirectHandler creates a RedirectHandler. resolver may be nil, in
// which case every code resolves to 404.
func NewRedirectHandler(resolver LinkResolver, geo *geoip.Service, logger *slog.Logger) *RedirectHandler {
	return &RedirectHandler{resolver: resolver, geo: geo, logger: logger}
}

// Redirect resolves a short code and redirects to its target. The request
// is anonymous by design; the path is on the public allow list.
// GET /s/{code}
func (h *RedirectHandler) Redirect(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if h.resolver == nil {
		http.NotFound(w, r)
		return
	}

	target, err := h.resolver.Resolve(r.Context(), code)
	if err != nil {
		http.NotFound(w, r)
		return
	}

	// Click geography is log-only here; analytics aggregation happens
	// downstream of these records.
	loc := h.geo.Locate(r.RemoteAddr)
	h.logger.Info("redirect",
		"code", code,
		"country", loc.Country,
		"city", loc.City,
	)

	http.Redirect(w, r, target, http.StatusFound)
}
