package scoring

import (
	"math"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/pkg/formulas"
)

// Breakout describes the latest close against its rolling resistance.
type Breakout struct {
	Resistance      float64 `json:"resistance"`
	Above           bool    `json:"above"`
	VolumeConfirmed bool    `json:"volume_confirmed"`
}

// DetectBreakout compares the latest close against the highest high of
// the preceding resistance window. Volume confirmation requires the
// latest volume to run at least half again above the trailing baseline
// average. The alert system consumes this directly.
func DetectBreakout(h *domain.PriceHistory, cfg *config.ScoringConfig) Breakout {
	bars := h.Bars

	need := cfg.ResistanceWindow
	if cfg.BaselineWindow > need {
		need = cfg.BaselineWindow
	}
	if len(bars) < need+1 {
		return Breakout{}
	}

	last := bars[len(bars)-1]
	var resistance float64
	for _, b := range bars[len(bars)-1-cfg.ResistanceWindow : len(bars)-1] {
		if b.High > resistance {
			resistance = b.High
		}
	}

	breakout := Breakout{Resistance: resistance, Above: last.Close > resistance}
	if breakout.Above {
		volumes := h.Volumes()
		baseline := formulas.Mean(volumes[len(volumes)-1-cfg.BaselineWindow : len(volumes)-1])
		breakout.VolumeConfirmed = baseline > 0 && last.Volume >= baseline*1.5
	}
	return breakout
}

// PriceActionScore rewards closes breaking rolling resistance with
// volume behind them and bullish moving-average stacking.
//
// Components:
// - Breakout (50%): position of the close against the prior resistance.
// - Alignment (50%): short over medium over long SMA ordering.
func PriceActionScore(h *domain.PriceHistory, cfg *config.ScoringConfig) float64 {
	score := breakoutScore(h, cfg)*0.5 + alignmentScore(h.Closes(), cfg)*0.5
	return math.Max(0, math.Min(100, score))
}

func breakoutScore(h *domain.PriceHistory, cfg *config.ScoringConfig) float64 {
	bk := DetectBreakout(h, cfg)
	if bk.Resistance <= 0 {
		return 50
	}

	if bk.Above {
		if bk.VolumeConfirmed {
			return 100
		}
		return 70
	}

	ratio := h.Last().Close / bk.Resistance
	if ratio >= 0.98 {
		// Testing resistance from just below.
		return 40 + (ratio-0.98)/0.02*20
	}
	return math.Max(0, ratio/0.98*40)
}

func alignmentScore(closes []float64, cfg *config.ScoringConfig) float64 {
	short := formulas.CalculateSMA(closes, cfg.ShortMA)
	medium := formulas.CalculateSMA(closes, cfg.MediumMA)
	long := formulas.CalculateSMA(closes, cfg.LongMA)
	if short == nil || medium == nil || long == nil {
		return 50
	}

	switch {
	case *short > *medium && *medium > *long:
		return 100
	case *short > *medium:
		return 65
	case *medium > *long:
		return 45
	default:
		return 10
	}
}
