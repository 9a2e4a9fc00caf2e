package marketctx

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/modules/universe"
)

// SecuritySource provides sector lookups from the security universe.
type SecuritySource interface {
	GetBySymbol(symbol string) (*universe.Security, error)
}

// FactsSource provides the per-symbol context fact rows.
type FactsSource interface {
	Get(symbol string) (*universe.SecurityFacts, error)
}

// MarketState is the market-wide context snapshot shared by all symbols.
type MarketState struct {
	EarningsSeason    bool `json:"earnings_season"`
	PolicyUncertainty bool `json:"policy_uncertainty"`
}

// MarketStateSource reports the market-wide flags kept in runtime settings.
type MarketStateSource interface {
	MarketState() MarketState
}

// Adjustment is the multiplier for one symbol with its breakdown.
type Adjustment struct {
	Symbol     string          `json:"symbol"`
	Multiplier float64         `json:"multiplier"`
	Applied    []AppliedFactor `json:"applied"`
}

// Service assembles context facts from the universe and runtime settings
// and runs them through the adjuster.
type Service struct {
	adjuster   *Adjuster
	securities SecuritySource
	facts      FactsSource
	market     MarketStateSource
	log        zerolog.Logger
}

// NewService creates a context service.
func NewService(
	adjuster *Adjuster,
	securities SecuritySource,
	facts FactsSource,
	market MarketStateSource,
	log zerolog.Logger,
) *Service {
	return &Service{
		adjuster:   adjuster,
		securities: securities,
		facts:      facts,
		market:     market,
		log:        log.With().Str("service", "marketctx").Logger(),
	}
}

// FactsFor assembles the context facts for one symbol as of a date.
// Symbols without stored facts read as neutral.
func (s *Service) FactsFor(symbol string, asOf time.Time) (domain.ContextFacts, error) {
	facts := domain.ContextFacts{Symbol: symbol}

	sec, err := s.securities.GetBySymbol(symbol)
	if err != nil {
		return facts, fmt.Errorf("failed to load security %s: %w", symbol, err)
	}
	if sec != nil {
		facts.Sector = sec.Sector
	}

	row, err := s.facts.Get(symbol)
	if err != nil {
		return facts, fmt.Errorf("failed to load context facts for %s: %w", symbol, err)
	}
	if row != nil {
		facts.IsBankingLeader = row.IsBankingLeader
		facts.IsStateOwned = row.IsStateOwned
		facts.HasForeignInterest = row.HasForeignInterest
		facts.NearForeignLimit = row.NearForeignLimit
		facts.DaysToExDividend = daysToExDividend(asOf, row.ExDividendDate)
	}

	state := s.market.MarketState()
	facts.IsEarningsSeason = state.EarningsSeason
	facts.PolicyUncertainty = state.PolicyUncertainty

	return facts, nil
}

// Adjustment computes the multiplier and its per-fact breakdown for one
// symbol as of a date.
func (s *Service) Adjustment(symbol string, asOf time.Time) (*Adjustment, error) {
	facts, err := s.FactsFor(symbol, asOf)
	if err != nil {
		return nil, err
	}

	multiplier, applied := s.adjuster.Multiplier(facts)
	s.log.Debug().
		Str("symbol", symbol).
		Float64("multiplier", multiplier).
		Int("factors", len(applied)).
		Msg("Context adjustment computed")

	return &Adjustment{Symbol: symbol, Multiplier: multiplier, Applied: applied}, nil
}

// MultiplierFor returns just the multiplier, the entry point the scoring
// pipeline uses.
func (s *Service) MultiplierFor(symbol string, asOf time.Time) (float64, error) {
	adj, err := s.Adjustment(symbol, asOf)
	if err != nil {
		return 0, err
	}
	return adj.Multiplier, nil
}

// daysToExDividend counts whole days from asOf to the ex-dividend date.
// Returns 0 when no date is set or the date has passed.
func daysToExDividend(asOf time.Time, ex *time.Time) int {
	if ex == nil {
		return 0
	}
	from := midnight(asOf)
	to := midnight(*ex)
	days := int(to.Sub(from).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
