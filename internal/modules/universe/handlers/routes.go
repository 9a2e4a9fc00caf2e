package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all universe routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/universe", func(r chi.Router) {
		r.Get("/", h.HandleList)
		r.Post("/", h.HandleAdd)
		r.Get("/sectors", h.HandleSectors)
		r.Get("/{symbol}", h.HandleGet)
		r.Delete("/{symbol}", h.HandleDeactivate)
		r.Put("/{symbol}/facts", h.HandleUpdateFacts)
	})
}
