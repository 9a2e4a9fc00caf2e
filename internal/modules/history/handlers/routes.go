package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all price history routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/history", func(r chi.Router) {
		r.Get("/", h.HandleCoverage)
		r.Get("/{symbol}", h.HandleGetBars)
		r.Get("/{symbol}/range", h.HandleGetRange)
		r.Post("/{symbol}", h.HandleIngest)
	})
}
