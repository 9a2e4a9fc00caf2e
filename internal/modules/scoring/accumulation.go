package scoring

import (
	"math"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/pkg/formulas"
)

// AccumulationScore rates the slope of the Chaikin accumulation/
// distribution line over the lookback window. The slope is scaled by
// the line's own spread so the reading is price- and volume-scale free,
// and accelerating accumulation earns a bonus.
func AccumulationScore(h *domain.PriceHistory, cfg *config.ScoringConfig) float64 {
	ad := formulas.CalculateADLine(h.Highs(), h.Lows(), h.Closes(), h.Volumes())
	if len(ad) < cfg.Lookback {
		return 50
	}

	window := ad[len(ad)-cfg.Lookback:]
	scale := formulas.StdDev(window)
	if scale == 0 || math.IsNaN(scale) {
		return 50
	}

	slope := formulas.Slope(window) / scale
	score := 50 + slope*400

	recent := formulas.Slope(window[len(window)/2:]) / scale
	if slope > 0 && recent > slope {
		score += 10
	}

	return math.Max(0, math.Min(100, score))
}
