package scoring

import (
	"math"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/pkg/formulas"
)

// VolumeScore rates stealth accumulation: volume concentrating on
// up-days and expanding against the trailing baseline.
//
// Components:
// - Concentration (60%): average up-day volume vs down-day volume over
//   the recent half of the baseline window.
// - Expansion (40%): recent average volume vs the baseline average.
func VolumeScore(h *domain.PriceHistory, cfg *config.ScoringConfig) float64 {
	bars := h.Bars
	if len(bars) < cfg.BaselineWindow+1 {
		return 50
	}

	volumes := h.Volumes()
	baseline := formulas.Mean(volumes[len(volumes)-cfg.BaselineWindow:])
	if baseline <= 0 {
		return 50
	}

	recentWindow := cfg.BaselineWindow / 2
	start := len(bars) - recentWindow

	var upVolume, downVolume, recentVolume float64
	var upDays, downDays int
	for i := start; i < len(bars); i++ {
		recentVolume += bars[i].Volume
		switch {
		case bars[i].Close > bars[i-1].Close:
			upVolume += bars[i].Volume
			upDays++
		case bars[i].Close < bars[i-1].Close:
			downVolume += bars[i].Volume
			downDays++
		}
	}

	concentration := upDownScore(upVolume, downVolume, upDays, downDays)
	expansion := expansionScore(recentVolume / float64(recentWindow) / baseline)

	score := concentration*0.6 + expansion*0.4
	return math.Max(0, math.Min(100, score))
}

// upDownScore maps the up-day vs down-day average volume ratio to 0-100.
// Parity reads 50; volume running twice as heavy on up-days maxes out.
func upDownScore(upVolume, downVolume float64, upDays, downDays int) float64 {
	if upDays == 0 && downDays == 0 {
		return 50
	}
	if downDays == 0 || downVolume == 0 {
		if upVolume > 0 {
			return 100
		}
		return 50
	}
	if upDays == 0 {
		return 0
	}

	avgUp := upVolume / float64(upDays)
	avgDown := downVolume / float64(downDays)
	ratio := avgUp / avgDown

	switch {
	case ratio >= 2.0:
		return 100
	case ratio >= 1.0:
		return 50 + (ratio-1.0)*50
	case ratio >= 0.5:
		return (ratio - 0.5) * 100
	default:
		return 0
	}
}

// expansionScore maps recent volume relative to the baseline to 0-100.
func expansionScore(expansion float64) float64 {
	switch {
	case expansion >= 1.5:
		return 100
	case expansion >= 1.0:
		return 50 + (expansion-1.0)*100
	case expansion >= 0.5:
		return (expansion - 0.5) * 100
	default:
		return 0
	}
}
