// Package events provides the in-process publish/subscribe bus connecting the
// analysis pipeline to alerting and streaming consumers.
package events

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// EventType identifies a class of system event.
type EventType string

const (
	SignalGenerated   EventType = "SIGNAL_GENERATED"
	CycleCompleted    EventType = "CYCLE_COMPLETED"
	AlertRaised       EventType = "ALERT_RAISED"
	PortfolioChanged  EventType = "PORTFOLIO_CHANGED"
	TargetsComputed   EventType = "TARGETS_COMPUTED"
	BacktestCompleted EventType = "BACKTEST_COMPLETED"
	SecurityAdded     EventType = "SECURITY_ADDED"
	BarsIngested      EventType = "BARS_INGESTED"
	SettingsChanged   EventType = "SETTINGS_CHANGED"
	BackupCompleted   EventType = "BACKUP_COMPLETED"
	ErrorOccurred     EventType = "ERROR_OCCURRED"
)

// Event is a single bus message.
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
	Module    string                 `json:"module"`
}

// Handler receives events for a subscribed type.
type Handler func(*Event)

// Bus is a synchronous in-process event bus. Handlers run on the emitting
// goroutine and must not block; slow consumers buffer on their own side.
type Bus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
	log      zerolog.Logger
}

// NewBus creates an event bus.
func NewBus(log zerolog.Logger) *Bus {
	return &Bus{
		handlers: make(map[EventType][]Handler),
		log:      log.With().Str("service", "events").Logger(),
	}
}

// Subscribe registers a handler for an event type.
func (b *Bus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// Emit publishes an event to every handler subscribed to its type.
func (b *Bus) Emit(eventType EventType, module string, data map[string]interface{}) {
	event := &Event{
		Type:      eventType,
		Timestamp: time.Now(),
		Data:      data,
		Module:    module,
	}

	b.mu.RLock()
	handlers := make([]Handler, len(b.handlers[eventType]))
	copy(handlers, b.handlers[eventType])
	b.mu.RUnlock()

	b.log.Debug().
		Str("event_type", string(eventType)).
		Str("module", module).
		Int("handlers", len(handlers)).
		Msg("Event emitted")

	for _, handler := range handlers {
		handler(event)
	}
}

// EmitError publishes an ErrorOccurred event.
func (b *Bus) EmitError(module string, err error, context map[string]interface{}) {
	b.Emit(ErrorOccurred, module, map[string]interface{}{
		"error":   err.Error(),
		"context": context,
	})
}
