package history

import (
	"fmt"

	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/events"
	"github.com/rs/zerolog"
)

// Service validates and stores incoming bars.
type Service struct {
	bars *BarRepository
	bus  *events.Bus
	log  zerolog.Logger
}

// NewService creates a history service.
func NewService(bars *BarRepository, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		bars: bars,
		bus:  bus,
		log:  log.With().Str("service", "history").Logger(),
	}
}

// Ingest validates and stores bars for a symbol, returning the accepted
// count. The whole batch is rejected on the first invalid bar so partial
// series never land.
func (s *Service) Ingest(symbol string, bars []domain.PriceBar) (int, error) {
	symbol = normalizeSymbol(symbol)
	if symbol == "" {
		return 0, fmt.Errorf("symbol is required")
	}
	if len(bars) == 0 {
		return 0, fmt.Errorf("no bars to ingest for %s", symbol)
	}

	for _, bar := range bars {
		if err := validateBar(bar); err != nil {
			return 0, fmt.Errorf("invalid bar for %s on %s: %w",
				symbol, bar.Date.Format(domain.DateFormat), err)
		}
	}

	// NewPriceHistory sorts; Validate then catches duplicate dates.
	hist := domain.NewPriceHistory(symbol, bars)
	if err := hist.Validate(); err != nil {
		return 0, fmt.Errorf("invalid series for %s: %w", symbol, err)
	}

	if err := s.bars.UpsertBars(symbol, hist.Bars); err != nil {
		return 0, err
	}

	first := hist.Bars[0].Date.Format(domain.DateFormat)
	last := hist.Bars[len(hist.Bars)-1].Date.Format(domain.DateFormat)

	s.log.Info().Str("symbol", symbol).Int("count", len(hist.Bars)).
		Str("first", first).Str("last", last).Msg("Ingested price bars")

	s.bus.Emit(events.BarsIngested, "history", map[string]interface{}{
		"symbol": symbol,
		"count":  len(hist.Bars),
		"first":  first,
		"last":   last,
	})

	return len(hist.Bars), nil
}

func validateBar(b domain.PriceBar) error {
	if b.Date.IsZero() {
		return fmt.Errorf("date is required")
	}
	if b.Open <= 0 || b.High <= 0 || b.Low <= 0 || b.Close <= 0 {
		return fmt.Errorf("prices must be positive")
	}
	if b.High < b.Low {
		return fmt.Errorf("high %.2f below low %.2f", b.High, b.Low)
	}
	if b.High < b.Open || b.High < b.Close {
		return fmt.Errorf("high %.2f below open/close", b.High)
	}
	if b.Low > b.Open || b.Low > b.Close {
		return fmt.Errorf("low %.2f above open/close", b.Low)
	}
	if b.Volume < 0 {
		return fmt.Errorf("volume must not be negative")
	}
	return nil
}
