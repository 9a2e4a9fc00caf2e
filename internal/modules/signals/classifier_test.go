package signals

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/modules/scoring"
)

// flatRangeHistory builds bars with a constant two-point true range, so
// ATR(14) resolves to exactly 2.
func flatRangeHistory(symbol string, n int) *domain.PriceHistory {
	bars := make([]domain.PriceBar, n)
	start := time.Date(2025, 1, 6, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		bars[i] = domain.PriceBar{
			Symbol: symbol,
			Date:   start.AddDate(0, 0, i),
			Open:   100,
			High:   101,
			Low:    99,
			Close:  100,
			Volume: 1_000_000,
		}
	}
	return domain.NewPriceHistory(symbol, bars)
}

func scored(symbol string, adjusted float64) *scoring.Score {
	return &scoring.Score{
		Symbol:   symbol,
		Date:     time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Raw:      adjusted,
		Adjusted: adjusted,
		Components: domain.SignalComponents{
			ContextMultiplier: 1.0,
		},
	}
}

func TestClassificationBucketsAreTotal(t *testing.T) {
	classifier := NewClassifier(config.DefaultStrategy())
	h := flatRangeHistory("AAA", 40)

	tests := []struct {
		score float64
		want  domain.Classification
	}{
		{score: 0, want: domain.StrongSell},
		{score: 34.99, want: domain.StrongSell},
		{score: 35, want: domain.Sell},
		{score: 44.99, want: domain.Sell},
		{score: 45, want: domain.Hold},
		{score: 54.99, want: domain.Hold},
		{score: 55, want: domain.WeakBuy},
		{score: 59.99, want: domain.WeakBuy},
		{score: 60, want: domain.Buy},
		{score: 69.99, want: domain.Buy},
		{score: 70, want: domain.StrongBuy},
		{score: 100, want: domain.StrongBuy},
	}

	for _, tt := range tests {
		signal := classifier.Classify(scored("AAA", tt.score), "utilities", h)
		assert.Equalf(t, tt.want, signal.Classification, "score %.2f", tt.score)
	}
}

func TestClassificationSectorScaling(t *testing.T) {
	classifier := NewClassifier(config.DefaultStrategy())
	h := flatRangeHistory("VCB", 40)

	tests := []struct {
		name   string
		sector string
		score  float64
		want   domain.Classification
	}{
		// Banking scales every threshold by 1.10, so the strong-buy bar
		// sits at 77 and the buy bar at 66.
		{name: "banking holds strong buy back", sector: "banking", score: 74.18, want: domain.Buy},
		{name: "banking strong buy above 77", sector: "banking", score: 77, want: domain.StrongBuy},
		{name: "banking weak buy band", sector: "banking", score: 65, want: domain.WeakBuy},
		// Technology scales by 0.85, lowering the strong-buy bar to 59.5.
		{name: "technology strong buy early", sector: "technology", score: 59.5, want: domain.StrongBuy},
		{name: "technology buy band", sector: "technology", score: 55, want: domain.Buy},
		{name: "unknown sector uses base thresholds", sector: "energy", score: 70, want: domain.StrongBuy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			signal := classifier.Classify(scored("VCB", tt.score), tt.sector, h)
			assert.Equal(t, tt.want, signal.Classification)
		})
	}
}

func TestClassifyLevelsFromATR(t *testing.T) {
	classifier := NewClassifier(config.DefaultStrategy())
	h := flatRangeHistory("VCB", 40)

	signal := classifier.Classify(scored("VCB", 74.175), "banking", h)

	require.False(t, signal.Partial)
	assert.Equal(t, domain.Buy, signal.Classification)
	assert.InDelta(t, 0.74175, signal.Confidence, 1e-9)
	assert.InDelta(t, 100.0, signal.EntryPrice, 1e-9)
	// Stop sits two ATRs under the close, target twice the risk above it.
	assert.InDelta(t, 96.0, signal.StopPrice, 1e-9)
	assert.InDelta(t, 108.0, signal.TargetPrice, 1e-9)
}

func TestClassifyPartialWithoutATR(t *testing.T) {
	classifier := NewClassifier(config.DefaultStrategy())
	h := flatRangeHistory("NEW", 10)

	signal := classifier.Classify(scored("NEW", 62), "utilities", h)

	assert.True(t, signal.Partial)
	assert.Equal(t, domain.Buy, signal.Classification)
	assert.InDelta(t, 100.0, signal.EntryPrice, 1e-9)
	assert.Zero(t, signal.StopPrice)
	assert.Zero(t, signal.TargetPrice)
}

func TestClassifyEmptyHistory(t *testing.T) {
	classifier := NewClassifier(config.DefaultStrategy())
	h := domain.NewPriceHistory("NIL", nil)

	signal := classifier.Classify(scored("NIL", 48), "utilities", h)

	assert.True(t, signal.Partial)
	assert.Equal(t, domain.Hold, signal.Classification)
	assert.Zero(t, signal.EntryPrice)
}
