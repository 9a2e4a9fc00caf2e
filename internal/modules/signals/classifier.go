// Package signals turns composite scores into classified trading
// signals and stores the per-day signal stream.
package signals

import (
	"strings"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/modules/scoring"
	"github.com/quangtd/vnsentry/pkg/formulas"
)

// Classifier maps adjusted composite scores to discrete actions with
// entry, stop and target levels. Thresholds are inclusive lower bounds
// evaluated top down; per-sector scaling multiplies every threshold.
type Classifier struct {
	cfg *config.StrategyConfig
}

// NewClassifier creates a classifier.
func NewClassifier(cfg *config.StrategyConfig) *Classifier {
	return &Classifier{cfg: cfg}
}

// Classify builds the signal for a scored symbol. The history must be
// the view the scorer consumed; it supplies the close and the ATR. When
// the history cannot support an ATR the signal still carries its
// classification but is flagged partial, with stop and target omitted.
func (c *Classifier) Classify(score *scoring.Score, sector string, h *domain.PriceHistory) *domain.Signal {
	signal := &domain.Signal{
		Symbol:         score.Symbol,
		Sector:         sector,
		Date:           score.Date,
		CompositeScore: score.Adjusted,
		Classification: c.classification(score.Adjusted, sector),
		Confidence:     score.Adjusted / 100,
		Components:     score.Components,
	}

	if h.Len() == 0 {
		signal.Partial = true
		return signal
	}
	entry := h.Last().Close
	signal.EntryPrice = entry

	cls := c.cfg.Classification
	atr := formulas.CalculateATR(h.Highs(), h.Lows(), h.Closes(), cls.ATRPeriod)
	if atr == nil {
		signal.Partial = true
		return signal
	}

	stop := entry - cls.ATRStopMultiple*(*atr)
	if stop < 0 {
		stop = 0
	}
	signal.StopPrice = stop
	signal.TargetPrice = entry + cls.RiskRewardRatio*(entry-stop)

	return signal
}

// classification resolves the threshold bucket for an adjusted score.
func (c *Classifier) classification(adjusted float64, sector string) domain.Classification {
	scale := 1.0
	if s, ok := c.cfg.Classification.SectorScale[strings.ToLower(strings.TrimSpace(sector))]; ok {
		scale = s
	}

	t := c.cfg.Classification.Thresholds
	switch {
	case adjusted >= t.StrongBuy*scale:
		return domain.StrongBuy
	case adjusted >= t.Buy*scale:
		return domain.Buy
	case adjusted >= t.WeakBuy*scale:
		return domain.WeakBuy
	case adjusted >= t.Hold*scale:
		return domain.Hold
	case adjusted >= t.Sell*scale:
		return domain.Sell
	default:
		return domain.StrongSell
	}
}
