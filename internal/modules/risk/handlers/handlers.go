// Package handlers provides HTTP handlers for risk queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/modules/portfolio"
	"github.com/quangtd/vnsentry/internal/modules/risk"
)

// Handler handles risk HTTP requests
type Handler struct {
	portfolio *portfolio.Service
	manager   *risk.Manager
	log       zerolog.Logger
}

// NewHandler creates a new risk handler
func NewHandler(portfolioService *portfolio.Service, manager *risk.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		portfolio: portfolioService,
		manager:   manager,
		log:       log.With().Str("handler", "risk").Logger(),
	}
}

// HandleSummary handles GET /api/risk/summary
func (h *Handler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	current := h.portfolio.Current()
	model := h.portfolio.RiskModel()

	summary := h.manager.Summarize(current, model)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": summary,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
