// Package handlers provides HTTP handlers for universe management.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/quangtd/vnsentry/internal/modules/universe"
	"github.com/rs/zerolog"
)

// Handler handles universe HTTP requests
type Handler struct {
	service *universe.Service
	log     zerolog.Logger
}

// NewHandler creates a new universe handler
func NewHandler(service *universe.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "universe").Logger(),
	}
}

// HandleList handles GET /api/universe
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	securities, err := h.service.List()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list universe")
		http.Error(w, "Failed to list universe", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"securities": securities,
			"count":      len(securities),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGet handles GET /api/universe/{symbol}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	sec, err := h.service.Get(symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get security")
		http.Error(w, "Failed to get security", http.StatusInternalServerError)
		return
	}
	if sec == nil {
		http.Error(w, "Security not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": sec,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleAdd handles POST /api/universe
func (h *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	var sec universe.Security
	if err := json.NewDecoder(r.Body).Decode(&sec); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	stored, err := h.service.AddSecurity(sec)
	if err != nil {
		h.log.Warn().Err(err).Str("symbol", sec.Symbol).Msg("Failed to add security")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data": stored,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleUpdateFacts handles PUT /api/universe/{symbol}/facts
func (h *Handler) HandleUpdateFacts(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var facts universe.SecurityFacts
	if err := json.NewDecoder(r.Body).Decode(&facts); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	facts.Symbol = symbol

	if err := h.service.UpdateFacts(facts); err != nil {
		h.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to update facts")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":  universe.NormalizeSymbol(symbol),
			"updated": true,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleDeactivate handles DELETE /api/universe/{symbol}
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	if err := h.service.Deactivate(symbol); err != nil {
		h.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to deactivate security")
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":      universe.NormalizeSymbol(symbol),
			"deactivated": true,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleSectors handles GET /api/universe/sectors
func (h *Handler) HandleSectors(w http.ResponseWriter, r *http.Request) {
	sectors, err := h.service.Sectors()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list sectors")
		http.Error(w, "Failed to list sectors", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"sectors": sectors,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
