package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all portfolio routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/portfolio", func(r chi.Router) {
		r.Get("/", h.HandleGet)
		r.Get("/snapshots", h.HandleSnapshotDates)
		r.Get("/snapshots/{date}", h.HandleSnapshot)
	})
}
