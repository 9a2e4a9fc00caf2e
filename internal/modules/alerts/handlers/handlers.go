// Package handlers provides HTTP handlers for alerts, including the
// websocket stream of live alerts.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/quangtd/vnsentry/internal/modules/alerts"
)

const writeWait = 10 * time.Second

// Handler handles alert HTTP requests
type Handler struct {
	service  *alerts.Service
	streamer *alerts.Streamer
	log      zerolog.Logger
}

// NewHandler creates a new alerts handler
func NewHandler(service *alerts.Service, streamer *alerts.Streamer, log zerolog.Logger) *Handler {
	return &Handler{
		service:  service,
		streamer: streamer,
		log:      log.With().Str("handler", "alerts").Logger(),
	}
}

// HandleActive handles GET /api/alerts/active
func (h *Handler) HandleActive(w http.ResponseWriter, r *http.Request) {
	active, err := h.service.Active()
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to get active alerts")
		http.Error(w, "Failed to get active alerts", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"alerts": active,
			"count":  len(active),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleStream handles GET /api/alerts/stream. The connection is
// upgraded to a websocket and receives every alert raised after the
// subscription, one JSON object per message.
func (h *Handler) HandleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to accept stream connection")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream aborted")

	feed, cancel := h.streamer.Subscribe()
	defer cancel()

	h.log.Debug().Str("remote", r.RemoteAddr).Msg("Alert stream subscriber connected")

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "")
			return
		case alert := <-feed:
			if err := writeAlert(ctx, conn, alert); err != nil {
				h.log.Debug().Err(err).Msg("Alert stream write failed, dropping subscriber")
				return
			}
		}
	}
}

func writeAlert(ctx context.Context, conn *websocket.Conn, alert alerts.Alert) error {
	data, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}

	writeCtx, cancel := context.WithTimeout(ctx, writeWait)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode response")
	}
}
