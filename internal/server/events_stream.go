package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/events"
)

const eventStreamBuffer = 100

// streamedEventTypes is every event class exposed on the stream.
var streamedEventTypes = []events.EventType{
	events.SignalGenerated,
	events.CycleCompleted,
	events.AlertRaised,
	events.PortfolioChanged,
	events.TargetsComputed,
	events.BacktestCompleted,
	events.SecurityAdded,
	events.BarsIngested,
	events.SettingsChanged,
	events.BackupCompleted,
	events.ErrorOccurred,
}

// EventsStreamHandler streams bus events to clients over Server-Sent
// Events. It subscribes to the bus once and fans out to connections,
// so a disconnecting client leaves nothing behind on the bus.
type EventsStreamHandler struct {
	log  zerolog.Logger
	mu   sync.Mutex
	subs map[chan *events.Event]struct{}
}

// NewEventsStreamHandler creates the stream handler and attaches it to
// the bus.
func NewEventsStreamHandler(bus *events.Bus, log zerolog.Logger) *EventsStreamHandler {
	h := &EventsStreamHandler{
		log:  log.With().Str("component", "events_stream").Logger(),
		subs: make(map[chan *events.Event]struct{}),
	}
	for _, eventType := range streamedEventTypes {
		bus.Subscribe(eventType, h.relay)
	}
	return h
}

func (h *EventsStreamHandler) relay(event *events.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			// Bus handlers cannot block on a slow consumer.
			h.log.Debug().Str("event_type", string(event.Type)).Msg("Event dropped for slow stream client")
		}
	}
}

func (h *EventsStreamHandler) subscribe() (chan *events.Event, func()) {
	ch := make(chan *events.Event, eventStreamBuffer)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, ch)
		h.mu.Unlock()
	}
	return ch, cancel
}

// ServeHTTP handles GET /api/events/stream. The optional types query
// parameter narrows the stream to a comma-separated set of event types.
func (h *EventsStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	var allowed map[events.EventType]bool
	if typesFilter := r.URL.Query().Get("types"); typesFilter != "" {
		allowed = make(map[events.EventType]bool)
		for _, t := range strings.Split(typesFilter, ",") {
			allowed[events.EventType(strings.TrimSpace(t))] = true
		}
	}

	feed, cancel := h.subscribe()
	defer cancel()

	h.log.Debug().Str("remote", r.RemoteAddr).Msg("Event stream client connected")

	fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
		"type": "connected",
	}))
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	done := r.Context().Done()
	for {
		select {
		case <-done:
			h.log.Debug().Msg("Event stream client disconnected")
			return

		case event := <-feed:
			if allowed != nil && !allowed[event.Type] {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
				"type":      string(event.Type),
				"module":    event.Module,
				"timestamp": event.Timestamp.Format(time.RFC3339),
				"data":      event.Data,
			}))
			flusher.Flush()

		case <-heartbeat.C:
			fmt.Fprintf(w, "data: %s\n\n", h.encode(map[string]interface{}{
				"type":      "heartbeat",
				"timestamp": time.Now().Format(time.RFC3339),
			}))
			flusher.Flush()
		}
	}
}

func (h *EventsStreamHandler) encode(payload map[string]interface{}) string {
	data, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal event")
		return `{"error":"failed to encode event"}`
	}
	return string(data)
}
