// Package handlers provides HTTP handlers for price history access and ingest.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/modules/history"
	"github.com/rs/zerolog"
)

// Handler handles price history HTTP requests
type Handler struct {
	service *history.Service
	bars    *history.BarRepository
	log     zerolog.Logger
}

// NewHandler creates a new history handler
func NewHandler(service *history.Service, bars *history.BarRepository, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		bars:    bars,
		log:     log.With().Str("handler", "history").Logger(),
	}
}

// barPayload is the wire form of a daily bar.
type barPayload struct {
	Date   string  `json:"date"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// ingestRequest is the body of POST /api/history/{symbol}.
type ingestRequest struct {
	Bars []barPayload `json:"bars"`
}

// HandleCoverage handles GET /api/history
func (h *Handler) HandleCoverage(w http.ResponseWriter, r *http.Request) {
	coverage, err := h.bars.GetCoverage()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get coverage")
		http.Error(w, "Failed to get coverage", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"coverage": coverage,
			"symbols":  len(coverage),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleGetBars handles GET /api/history/{symbol}?limit=250
func (h *Handler) HandleGetBars(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	limit := 250
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "Invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	hist, err := h.bars.GetHistory(symbol, limit)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get bars")
		http.Error(w, "Failed to get bars", http.StatusInternalServerError)
		return
	}

	h.respondBars(w, hist)
}

// HandleGetRange handles GET /api/history/{symbol}/range?from=2024-01-01&to=2024-12-31
func (h *Handler) HandleGetRange(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	from, err := time.Parse(domain.DateFormat, r.URL.Query().Get("from"))
	if err != nil {
		http.Error(w, "Invalid from date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	to, err := time.Parse(domain.DateFormat, r.URL.Query().Get("to"))
	if err != nil {
		http.Error(w, "Invalid to date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}
	if to.Before(from) {
		http.Error(w, "to must not precede from", http.StatusBadRequest)
		return
	}

	hist, err := h.bars.GetRange(symbol, from, to)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to get range")
		http.Error(w, "Failed to get range", http.StatusInternalServerError)
		return
	}

	h.respondBars(w, hist)
}

// HandleIngest handles POST /api/history/{symbol}
func (h *Handler) HandleIngest(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	bars := make([]domain.PriceBar, 0, len(req.Bars))
	for _, p := range req.Bars {
		date, err := time.Parse(domain.DateFormat, p.Date)
		if err != nil {
			http.Error(w, "Invalid bar date "+p.Date+", expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		bars = append(bars, domain.PriceBar{
			Date:   date,
			Open:   p.Open,
			High:   p.High,
			Low:    p.Low,
			Close:  p.Close,
			Volume: p.Volume,
		})
	}

	count, err := h.service.Ingest(symbol, bars)
	if err != nil {
		h.log.Warn().Err(err).Str("symbol", symbol).Msg("Failed to ingest bars")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":   symbol,
			"ingested": count,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

func (h *Handler) respondBars(w http.ResponseWriter, hist *domain.PriceHistory) {
	bars := make([]barPayload, 0, len(hist.Bars))
	for _, b := range hist.Bars {
		bars = append(bars, barPayload{
			Date:   b.Date.Format(domain.DateFormat),
			Open:   b.Open,
			High:   b.High,
			Low:    b.Low,
			Close:  b.Close,
			Volume: b.Volume,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol": hist.Symbol,
			"bars":   bars,
			"count":  len(bars),
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
