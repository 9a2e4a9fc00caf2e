package scoring

import (
	"math"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/pkg/formulas"
)

const (
	rsiTrendWindow      = 5
	divergenceWindow    = 20
	divergenceRSIMargin = 2.0
	divergencePenalty   = 20.0
)

// MomentumScore rates the RSI level and its short trend, penalizing
// bearish divergence between price highs and RSI highs.
//
// Components:
// - Level (70%): RSI mapped with a fade above 70.
// - Trend (30%): slope of the recent RSI readings.
func MomentumScore(h *domain.PriceHistory, cfg *config.ScoringConfig) float64 {
	closes := h.Closes()
	rsiSeries := formulas.CalculateRSISeries(closes, cfg.RSIPeriod)
	if len(rsiSeries) == 0 {
		return 50
	}
	rsi := rsiSeries[len(rsiSeries)-1]
	if math.IsNaN(rsi) {
		return 50
	}

	score := rsiLevelScore(rsi)*0.7 + rsiTrendScore(rsiSeries)*0.3
	if bearishDivergence(closes, rsiSeries) {
		score -= divergencePenalty
	}
	return math.Max(0, math.Min(100, score))
}

// rsiLevelScore maps an RSI reading to 0-100, peaking at the start of
// the overbought zone and fading as the reading stretches beyond it.
func rsiLevelScore(rsi float64) float64 {
	switch {
	case rsi >= 70:
		return 85 - (rsi-70)/30*35
	case rsi >= 50:
		return 55 + (rsi-50)/20*30
	case rsi >= 30:
		return 15 + (rsi-30)/20*40
	default:
		return rsi / 30 * 15
	}
}

// rsiTrendScore maps the slope of the recent RSI readings to 0-100,
// one point of RSI per bar moving the score ten points off neutral.
func rsiTrendScore(rsiSeries []float64) float64 {
	if len(rsiSeries) < rsiTrendWindow {
		return 50
	}
	slope := formulas.Slope(rsiSeries[len(rsiSeries)-rsiTrendWindow:])
	return math.Max(0, math.Min(100, 50+slope*10))
}

// bearishDivergence reports whether price set a higher high over the
// recent half-window while RSI set a lower high. The RSI comparison
// carries a two-point margin.
func bearishDivergence(closes, rsiSeries []float64) bool {
	if len(closes) < divergenceWindow || len(rsiSeries) < divergenceWindow {
		return false
	}

	half := divergenceWindow / 2
	priorCloses := closes[len(closes)-divergenceWindow : len(closes)-half]
	recentCloses := closes[len(closes)-half:]
	priorRSI := rsiSeries[len(rsiSeries)-divergenceWindow : len(rsiSeries)-half]
	recentRSI := rsiSeries[len(rsiSeries)-half:]

	priceHigherHigh := maxOf(recentCloses) > maxOf(priorCloses)
	rsiLowerHigh := maxOf(recentRSI) < maxOf(priorRSI)-divergenceRSIMargin

	return priceHigherHigh && rsiLowerHigh
}

func maxOf(values []float64) float64 {
	out := values[0]
	for _, v := range values[1:] {
		if v > out {
			out = v
		}
	}
	return out
}
