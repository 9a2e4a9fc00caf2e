package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers the alert query routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/alerts", func(r chi.Router) {
		r.Get("/active", h.HandleActive)
	})
}

// RegisterStreamRoutes registers the live alert stream. Mounted apart
// from the query routes so request timeouts never apply to it.
func (h *Handler) RegisterStreamRoutes(r chi.Router) {
	r.Get("/alerts/stream", h.HandleStream)
}
