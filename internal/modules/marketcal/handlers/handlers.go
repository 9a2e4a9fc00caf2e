// Package handlers provides HTTP handlers for trading calendar queries.
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/quangtd/vnsentry/internal/modules/marketcal"
	"github.com/rs/zerolog"
)

// Handler handles trading calendar HTTP requests
type Handler struct {
	service *marketcal.Service
	log     zerolog.Logger
}

// NewHandler creates a new calendar handler
func NewHandler(service *marketcal.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "marketcal").Logger(),
	}
}

// HandleGetStatus handles GET /api/calendar/status
func (h *Handler) HandleGetStatus(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": h.service.Status(now),
		"metadata": map[string]interface{}{
			"timestamp": now.Format(time.RFC3339),
		},
	})
}

// HandleGetHolidays handles GET /api/calendar/holidays?year=2025
// Defaults to the current year in exchange time.
func (h *Handler) HandleGetHolidays(w http.ResponseWriter, r *http.Request) {
	year := time.Now().In(h.service.Location()).Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "Invalid year", http.StatusBadRequest)
			return
		}
		year = parsed
	}

	holidays := h.service.HolidaysForYear(year)
	dates := make([]string, 0, len(holidays))
	for _, d := range holidays {
		dates = append(dates, d.Format("2006-01-02"))
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"year":     year,
			"holidays": dates,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleNextTradingDay handles GET /api/calendar/next-trading-day?date=2025-01-24
// Defaults to today when no date is given.
func (h *Handler) HandleNextTradingDay(w http.ResponseWriter, r *http.Request) {
	ref := time.Now().In(h.service.Location())
	if raw := r.URL.Query().Get("date"); raw != "" {
		parsed, err := time.ParseInLocation("2006-01-02", raw, h.service.Location())
		if err != nil {
			http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		ref = parsed
	}

	next := h.service.NextTradingDay(ref)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"reference":        ref.Format("2006-01-02"),
			"next_trading_day": next.Format("2006-01-02"),
			"is_trading_day":   h.service.IsTradingDay(ref),
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
