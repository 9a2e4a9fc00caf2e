package universe

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/quangtd/vnsentry/internal/events"
	"github.com/rs/zerolog"
)

// HOSE tickers are short upper-case codes (VCB, FPT, FUEVFVND).
var symbolPattern = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

// Service wraps the universe repositories with validation and events.
type Service struct {
	securities *SecurityRepository
	facts      *FactsRepository
	bus        *events.Bus
	log        zerolog.Logger
}

// NewService creates a universe service.
func NewService(securities *SecurityRepository, facts *FactsRepository, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		securities: securities,
		facts:      facts,
		bus:        bus,
		log:        log.With().Str("service", "universe").Logger(),
	}
}

// AddSecurity validates and stores a security. Defaults: HOSE exchange,
// lot size 100, active. Emits SecurityAdded for new symbols.
func (s *Service) AddSecurity(sec Security) (*Security, error) {
	sec.Symbol = NormalizeSymbol(sec.Symbol)
	if !symbolPattern.MatchString(sec.Symbol) {
		return nil, fmt.Errorf("invalid symbol %q", sec.Symbol)
	}
	if strings.TrimSpace(sec.Name) == "" {
		return nil, fmt.Errorf("security name is required")
	}
	sec.Sector = strings.ToLower(strings.TrimSpace(sec.Sector))
	if sec.Sector == "" {
		return nil, fmt.Errorf("security sector is required")
	}
	if sec.Exchange == "" {
		sec.Exchange = "HOSE"
	}
	if sec.LotSize == 0 {
		sec.LotSize = 100
	}
	if sec.LotSize < 0 {
		return nil, fmt.Errorf("lot size must be positive, got %d", sec.LotSize)
	}
	sec.Active = true

	created, err := s.securities.Upsert(sec)
	if err != nil {
		return nil, err
	}

	if created {
		s.log.Info().Str("symbol", sec.Symbol).Str("sector", sec.Sector).Msg("Security added to universe")
		s.bus.Emit(events.SecurityAdded, "universe", map[string]interface{}{
			"symbol": sec.Symbol,
			"sector": sec.Sector,
			"name":   sec.Name,
		})
	}

	stored, err := s.securities.GetBySymbol(sec.Symbol)
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// UpdateFacts stores the context facts for a known symbol.
func (s *Service) UpdateFacts(facts SecurityFacts) error {
	facts.Symbol = NormalizeSymbol(facts.Symbol)

	sec, err := s.securities.GetBySymbol(facts.Symbol)
	if err != nil {
		return err
	}
	if sec == nil {
		return fmt.Errorf("security %s not found", facts.Symbol)
	}

	return s.facts.Upsert(facts)
}

// Get returns a security with its facts, nil when unknown.
func (s *Service) Get(symbol string) (*SecurityWithFacts, error) {
	sec, err := s.securities.GetBySymbol(symbol)
	if err != nil {
		return nil, err
	}
	if sec == nil {
		return nil, nil
	}

	facts, err := s.facts.Get(sec.Symbol)
	if err != nil {
		return nil, err
	}
	return &SecurityWithFacts{Security: *sec, Facts: facts}, nil
}

// List returns all active securities with their facts.
func (s *Service) List() ([]SecurityWithFacts, error) {
	securities, err := s.securities.GetAllActive()
	if err != nil {
		return nil, err
	}

	allFacts, err := s.facts.GetAll()
	if err != nil {
		return nil, err
	}

	result := make([]SecurityWithFacts, 0, len(securities))
	for _, sec := range securities {
		item := SecurityWithFacts{Security: sec}
		if facts, ok := allFacts[sec.Symbol]; ok {
			f := facts
			item.Facts = &f
		}
		result = append(result, item)
	}
	return result, nil
}

// Deactivate removes a security from analysis without deleting data.
func (s *Service) Deactivate(symbol string) error {
	return s.securities.Deactivate(symbol)
}

// Sectors returns the distinct active sectors.
func (s *Service) Sectors() ([]string, error) {
	return s.securities.Sectors()
}
