package scoring

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
)

func scoringConfig() *config.ScoringConfig {
	cfg := config.DefaultStrategy().Scoring
	return &cfg
}

// buildHistory creates daily bars from parallel close/volume series
// with a half-point range around each session.
func buildHistory(symbol string, closes, volumes []float64) *domain.PriceHistory {
	bars := make([]domain.PriceBar, len(closes))
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	for i := range closes {
		open := closes[i]
		if i > 0 {
			open = closes[i-1]
		}
		high := closes[i]
		if open > high {
			high = open
		}
		low := closes[i]
		if open < low {
			low = open
		}
		bars[i] = domain.PriceBar{
			Symbol: symbol,
			Date:   start.AddDate(0, 0, i),
			Open:   open,
			High:   high + 0.5,
			Low:    low - 0.5,
			Close:  closes[i],
			Volume: volumes[i],
		}
	}
	return domain.NewPriceHistory(symbol, bars)
}

func uniformVolumes(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// accumulationSeries nets two up moves against one pullback, with the
// heavy volume on the up days.
func accumulationSeries(n int) (closes, volumes []float64) {
	closes = make([]float64, n)
	volumes = make([]float64, n)
	closes[0] = 100
	volumes[0] = 2_000_000
	for i := 1; i < n; i++ {
		if i%3 == 0 {
			closes[i] = closes[i-1] - 0.5
			volumes[i] = 800_000
		} else {
			closes[i] = closes[i-1] + 1
			volumes[i] = 2_000_000
		}
	}
	return closes, volumes
}

// distributionSeries mirrors accumulationSeries: heavy volume rides the
// down moves.
func distributionSeries(n int) (closes, volumes []float64) {
	closes = make([]float64, n)
	volumes = make([]float64, n)
	closes[0] = 200
	volumes[0] = 800_000
	for i := 1; i < n; i++ {
		if i%3 == 0 {
			closes[i] = closes[i-1] + 0.5
			volumes[i] = 800_000
		} else {
			closes[i] = closes[i-1] - 1
			volumes[i] = 2_000_000
		}
	}
	return closes, volumes
}

func TestVolumeScoreRewardsUpDayConcentration(t *testing.T) {
	closes, volumes := accumulationSeries(40)
	h := buildHistory("VCB", closes, volumes)

	score := VolumeScore(h, scoringConfig())

	assert.Greater(t, score, 70.0)
	assert.LessOrEqual(t, score, 100.0)
}

func TestVolumeScoreFlagsDistribution(t *testing.T) {
	closes, volumes := distributionSeries(40)
	h := buildHistory("HAG", closes, volumes)

	score := VolumeScore(h, scoringConfig())

	assert.Less(t, score, 30.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestVolumeScoreNeutralOnFlatSeries(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 50
	}
	h := buildHistory("FLT", closes, uniformVolumes(40, 1_000_000))

	assert.Equal(t, 50.0, VolumeScore(h, scoringConfig()))
}

func TestPriceActionScoreBreakoutWithVolume(t *testing.T) {
	closes := make([]float64, 40)
	volumes := uniformVolumes(40, 1_000_000)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}
	volumes[39] = 3_000_000

	h := buildHistory("FPT", closes, volumes)
	score := PriceActionScore(h, scoringConfig())

	// Confirmed breakout plus full SMA stacking maxes both components.
	assert.InDelta(t, 100.0, score, 1e-9)
}

func TestPriceActionScoreDowntrend(t *testing.T) {
	closes := make([]float64, 40)
	for i := range closes {
		closes[i] = 140 - float64(i)
	}
	h := buildHistory("HPG", closes, uniformVolumes(40, 1_000_000))

	score := PriceActionScore(h, scoringConfig())

	assert.Less(t, score, 30.0)
}

func TestDetectBreakout(t *testing.T) {
	cfg := scoringConfig()

	tests := []struct {
		name      string
		lastClose float64
		lastVol   float64
		above     bool
		confirmed bool
	}{
		{name: "break with volume", lastClose: 105, lastVol: 2_000_000, above: true, confirmed: true},
		{name: "break without volume", lastClose: 105, lastVol: 1_100_000, above: true, confirmed: false},
		{name: "below resistance", lastClose: 99, lastVol: 2_000_000, above: false, confirmed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			closes := make([]float64, 40)
			for i := range closes {
				closes[i] = 100
			}
			closes[39] = tt.lastClose
			volumes := uniformVolumes(40, 1_000_000)
			volumes[39] = tt.lastVol

			h := buildHistory("SSI", closes, volumes)
			bk := DetectBreakout(h, cfg)

			assert.InDelta(t, 100.5, bk.Resistance, 1e-9)
			assert.Equal(t, tt.above, bk.Above)
			assert.Equal(t, tt.confirmed, bk.VolumeConfirmed)
		})
	}
}

func TestMomentumScoreTrendingUp(t *testing.T) {
	closes, volumes := accumulationSeries(40)
	h := buildHistory("MWG", closes, volumes)

	score := MomentumScore(h, scoringConfig())

	assert.Greater(t, score, 55.0)
	assert.Less(t, score, 85.0)
}

func TestMomentumScoreTrendingDown(t *testing.T) {
	closes, volumes := distributionSeries(40)
	h := buildHistory("NVL", closes, volumes)

	score := MomentumScore(h, scoringConfig())

	assert.Less(t, score, 35.0)
}

func TestBearishDivergence(t *testing.T) {
	flat := func(n int, v float64) []float64 {
		out := make([]float64, n)
		for i := range out {
			out[i] = v
		}
		return out
	}

	tests := []struct {
		name   string
		closes []float64
		rsi    []float64
		want   bool
	}{
		{
			name:   "price higher high with fading rsi",
			closes: append(append(flat(10, 100), 110), append(flat(9, 100), 112)...),
			rsi:    append(append(flat(10, 50), 80), append(flat(9, 50), 70)...),
			want:   true,
		},
		{
			name:   "rsi drop inside the margin",
			closes: append(append(flat(10, 100), 110), append(flat(9, 100), 112)...),
			rsi:    append(append(flat(10, 50), 80), append(flat(9, 50), 79)...),
			want:   false,
		},
		{
			name:   "price lower high",
			closes: append(append(flat(10, 100), 112), append(flat(9, 100), 110)...),
			rsi:    append(append(flat(10, 50), 80), append(flat(9, 50), 70)...),
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, bearishDivergence(tt.closes, tt.rsi))
		})
	}
}

func TestAccumulationScoreSteadyAccumulation(t *testing.T) {
	// Closes pinned to the session high push the A/D line up by the full
	// volume every day.
	bars := make([]domain.PriceBar, 30)
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := 100 + float64(i)
		bars[i] = domain.PriceBar{
			Symbol: "GAS",
			Date:   start.AddDate(0, 0, i),
			Open:   c - 0.5,
			High:   c,
			Low:    c - 1,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	h := domain.NewPriceHistory("GAS", bars)

	score := AccumulationScore(h, scoringConfig())

	assert.GreaterOrEqual(t, score, 90.0)
	assert.LessOrEqual(t, score, 100.0)
}

func TestAccumulationScoreSteadyDistribution(t *testing.T) {
	bars := make([]domain.PriceBar, 30)
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		c := 130 - float64(i)
		bars[i] = domain.PriceBar{
			Symbol: "HNG",
			Date:   start.AddDate(0, 0, i),
			Open:   c + 0.5,
			High:   c + 1,
			Low:    c,
			Close:  c,
			Volume: 1_000_000,
		}
	}
	h := domain.NewPriceHistory("HNG", bars)

	score := AccumulationScore(h, scoringConfig())

	assert.LessOrEqual(t, score, 10.0)
	assert.GreaterOrEqual(t, score, 0.0)
}

func TestAccumulationScoreNeutralWithoutRange(t *testing.T) {
	// High == low on every bar leaves the A/D line flat at zero.
	bars := make([]domain.PriceBar, 30)
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = domain.PriceBar{
			Symbol: "FRZ",
			Date:   start.AddDate(0, 0, i),
			Open:   75,
			High:   75,
			Low:    75,
			Close:  75,
			Volume: 500_000,
		}
	}
	h := domain.NewPriceHistory("FRZ", bars)

	assert.Equal(t, 50.0, AccumulationScore(h, scoringConfig()))
}
