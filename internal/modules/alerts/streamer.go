package alerts

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/events"
)

const streamBuffer = 16

// Streamer fans raised alerts out to stream subscribers. It listens on
// the event bus once and lives for the process lifetime.
type Streamer struct {
	mu   sync.Mutex
	subs map[chan Alert]struct{}
	log  zerolog.Logger
}

// NewStreamer creates a streamer subscribed to alert events on the bus.
func NewStreamer(bus *events.Bus, log zerolog.Logger) *Streamer {
	s := &Streamer{
		subs: make(map[chan Alert]struct{}),
		log:  log.With().Str("service", "alert-stream").Logger(),
	}
	bus.Subscribe(events.AlertRaised, s.relay)
	return s
}

// Subscribe returns a feed of future alerts and a cancel function the
// caller must invoke when done.
func (s *Streamer) Subscribe() (<-chan Alert, func()) {
	ch := make(chan Alert, streamBuffer)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, ch)
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Streamer) relay(event *events.Event) {
	alert, ok := event.Data["alert"].(Alert)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		select {
		case ch <- alert:
		default:
			// Bus handlers cannot block, so a full subscriber loses the alert.
			s.log.Debug().Str("symbol", alert.Symbol).Msg("Dropped alert for slow stream subscriber")
		}
	}
}
