// Package scoring computes the smart-money composite score: four factor
// scores over a shared price-history view, combined through the
// configured weight table and adjusted by the market-context multiplier.
package scoring

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
)

// ContextSource supplies the context multiplier for a symbol.
type ContextSource interface {
	MultiplierFor(symbol string, asOf time.Time) (float64, error)
}

// Score is the composite result for one (symbol, date).
type Score struct {
	Symbol     string                  `json:"symbol"`
	Date       time.Time               `json:"date"`
	Raw        float64                 `json:"raw"`
	Adjusted   float64                 `json:"adjusted"`
	Components domain.SignalComponents `json:"components"`
}

// Scorer computes composite scores from price history and context.
// Scoring is pure per symbol; callers may fan it out across symbols.
type Scorer struct {
	cfg     *config.StrategyConfig
	context ContextSource
	log     zerolog.Logger
}

// NewScorer creates a scorer.
func NewScorer(cfg *config.StrategyConfig, context ContextSource, log zerolog.Logger) *Scorer {
	return &Scorer{
		cfg:     cfg,
		context: context,
		log:     log.With().Str("service", "scoring").Logger(),
	}
}

// Score computes the composite for the most recent bar of the history.
// Histories shorter than the configured lookback fail with
// InsufficientHistoryError; the symbol is skipped, the batch continues.
func (s *Scorer) Score(h *domain.PriceHistory, asOf time.Time) (*Score, error) {
	lookback := s.cfg.Scoring.Lookback
	if h.Len() < lookback {
		return nil, &domain.InsufficientHistoryError{
			Symbol: h.Symbol,
			Date:   asOf,
			Have:   h.Len(),
			Need:   lookback,
		}
	}

	cfg := &s.cfg.Scoring
	components := domain.SignalComponents{
		VolumeScore:       VolumeScore(h, cfg),
		PriceActionScore:  PriceActionScore(h, cfg),
		MomentumScore:     MomentumScore(h, cfg),
		AccumulationScore: AccumulationScore(h, cfg),
		ContextMultiplier: 1.0,
	}

	multiplier, err := s.context.MultiplierFor(h.Symbol, asOf)
	if err != nil {
		s.log.Warn().Err(err).Str("symbol", h.Symbol).
			Msg("Context lookup failed, scoring with neutral multiplier")
		multiplier = 1.0
	}
	components.ContextMultiplier = multiplier

	raw := rawComposite(components, cfg.Weights)
	adjusted := math.Max(0, math.Min(100, raw*multiplier))

	s.log.Debug().
		Str("symbol", h.Symbol).
		Float64("raw", raw).
		Float64("adjusted", adjusted).
		Msg("Composite score computed")

	return &Score{
		Symbol:     h.Symbol,
		Date:       asOf,
		Raw:        raw,
		Adjusted:   adjusted,
		Components: components,
	}, nil
}

// rawComposite combines the factor scores with the configured weights.
func rawComposite(c domain.SignalComponents, w config.ScoringWeights) float64 {
	total := w.Total()
	if total <= 0 {
		return 0
	}
	weighted := c.VolumeScore*w.Volume +
		c.PriceActionScore*w.PriceAction +
		c.MomentumScore*w.Momentum +
		c.AccumulationScore*w.Accumulation
	return weighted / total
}
