package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all signal routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/signals", func(r chi.Router) {
		r.Get("/latest", h.HandleLatest)
		r.Get("/{symbol}", h.HandleBySymbol)
	})
}
