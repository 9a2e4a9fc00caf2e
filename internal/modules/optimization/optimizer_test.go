package optimization

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/modules/risk"
)

func optDate() time.Time {
	return time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
}

// noisyHistory builds a reproducible pseudo-random price series. The
// same seed always yields the same returns.
func noisyHistory(symbol string, seed int64, bars int, amp float64) *domain.PriceHistory {
	rng := rand.New(rand.NewSource(seed))
	price := 50_000.0
	out := make([]domain.PriceBar, bars)
	start := time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC)
	for i := range out {
		price *= 1 + (rng.Float64()-0.5)*2*amp
		out[i] = domain.PriceBar{
			Symbol: symbol,
			Date:   start.AddDate(0, 0, i),
			Open:   price,
			High:   price * 1.01,
			Low:    price * 0.99,
			Close:  price,
			Volume: 1_000_000,
		}
	}
	return domain.NewPriceHistory(symbol, out)
}

func candidate(symbol, sector string, score float64) domain.Signal {
	return domain.Signal{
		Symbol:         symbol,
		Sector:         sector,
		Date:           optDate(),
		CompositeScore: score,
		Classification: domain.Buy,
		EntryPrice:     50_000,
		StopPrice:      46_000,
		TargetPrice:    58_000,
		Confidence:     score / 100,
	}
}

// wideCaps gives three survivors room to absorb the 95% deployment,
// which the default 15% position cap cannot.
func wideCaps() *config.StrategyConfig {
	cfg := config.DefaultStrategy()
	cfg.Risk.PositionCap = 0.40
	cfg.Risk.SectorCap = 0.40
	return cfg
}

func modelFor(t *testing.T, seeds map[string]int64) *risk.Model {
	t.Helper()
	histories := make([]*domain.PriceHistory, 0, len(seeds))
	for symbol, seed := range seeds {
		histories = append(histories, noisyHistory(symbol, seed, 41, 0.02))
	}
	return risk.NewModel(histories, 60, optDate())
}

func TestRunFiltersBelowMinScore(t *testing.T) {
	optimizer := NewOptimizer(wideCaps(), zerolog.Nop())
	model := modelFor(t, map[string]int64{
		"VCB": 1, "FPT": 2, "HPG": 3, "SSI": 4, "MWG": 5, "GAS": 6,
	})

	// Six candidates, three under the minimum score of 60.
	req := Request{
		AsOf: optDate(),
		Candidates: []domain.Signal{
			candidate("VCB", "banking", 75),
			candidate("FPT", "technology", 82),
			candidate("HPG", "materials", 68),
			candidate("SSI", "brokerage", 55),
			candidate("MWG", "retail", 48),
			candidate("GAS", "energy", 59.9),
		},
	}

	result, err := optimizer.Run(req, model)
	require.NoError(t, err)

	assert.Equal(t, []string{"GAS", "MWG", "SSI"}, result.Filtered)
	assert.Len(t, result.Weights, 3)
	for _, symbol := range []string{"VCB", "FPT", "HPG"} {
		assert.Contains(t, result.Weights, symbol)
	}

	var sum float64
	for symbol, weight := range result.Weights {
		assert.GreaterOrEqual(t, weight, 0.0)
		assert.LessOrEqual(t, weight, 0.40+5e-3, "weight for %s over the position cap", symbol)
		sum += weight
	}
	assert.InDelta(t, 0.95, sum, 1e-6)
	assert.InDelta(t, 0.05, result.CashWeight, 1e-9)
	assert.Greater(t, result.Volatility, 0.0)
	assert.Equal(t, optDate(), result.AsOf)
}

func TestRunInfeasibleSingleSector(t *testing.T) {
	// Default caps: one sector holds at most 40%, the reserve demands 95%.
	optimizer := NewOptimizer(config.DefaultStrategy(), zerolog.Nop())
	model := modelFor(t, map[string]int64{"VCB": 1, "BID": 2, "CTG": 3})

	req := Request{
		AsOf: optDate(),
		Candidates: []domain.Signal{
			candidate("VCB", "banking", 75),
			candidate("BID", "banking", 70),
			candidate("CTG", "banking", 66),
		},
	}

	result, err := optimizer.Run(req, model)
	assert.Nil(t, result)

	var infeasible *domain.OptimizationInfeasibleError
	require.ErrorAs(t, err, &infeasible)
	assert.Equal(t, optDate(), infeasible.Date)
}

func TestRunInfeasibleWhenAllFiltered(t *testing.T) {
	optimizer := NewOptimizer(wideCaps(), zerolog.Nop())
	model := modelFor(t, map[string]int64{"VCB": 1, "FPT": 2})

	req := Request{
		AsOf: optDate(),
		Candidates: []domain.Signal{
			candidate("VCB", "banking", 40),
			candidate("FPT", "technology", 55),
		},
	}

	_, err := optimizer.Run(req, model)

	var infeasible *domain.OptimizationInfeasibleError
	require.True(t, errors.As(err, &infeasible))
	assert.Contains(t, infeasible.Reason, "no candidates")
}

func TestRunScoreTiltShapesAllocation(t *testing.T) {
	cfg := config.DefaultStrategy()
	cfg.Risk.PositionCap = 0.50
	cfg.Risk.SectorCap = 0.50
	optimizer := NewOptimizer(cfg, zerolog.Nop())

	// Identical price histories: the only difference between the two
	// candidates is the composite score entering the tilt.
	model := risk.NewModel([]*domain.PriceHistory{
		noisyHistory("AAA", 7, 41, 0.02),
		noisyHistory("BBB", 7, 41, 0.02),
	}, 60, optDate())

	req := Request{
		AsOf: optDate(),
		Candidates: []domain.Signal{
			candidate("AAA", "banking", 60),
			candidate("BBB", "technology", 95),
		},
	}

	result, err := optimizer.Run(req, model)
	require.NoError(t, err)

	// Market score derives to 77.5; with sector scores falling back to
	// the stock score the blended gap is 24.5 points, worth a tilt
	// spread of 0.04 × 24.5/50.
	spread := result.ExpectedReturns["BBB"] - result.ExpectedReturns["AAA"]
	assert.InDelta(t, 0.0196, spread, 1e-9)
	assert.Greater(t, result.Weights["BBB"], result.Weights["AAA"])
}

func TestRunSkipsThinHistory(t *testing.T) {
	optimizer := NewOptimizer(wideCaps(), zerolog.Nop())

	histories := []*domain.PriceHistory{
		noisyHistory("VCB", 1, 41, 0.02),
		noisyHistory("FPT", 2, 41, 0.02),
		noisyHistory("HPG", 3, 41, 0.02),
		noisyHistory("NEW", 4, 10, 0.02), // too short for the covariance matrix
	}
	model := risk.NewModel(histories, 60, optDate())

	req := Request{
		AsOf: optDate(),
		Candidates: []domain.Signal{
			candidate("VCB", "banking", 75),
			candidate("FPT", "technology", 82),
			candidate("HPG", "materials", 68),
			candidate("NEW", "energy", 90),
		},
	}

	result, err := optimizer.Run(req, model)
	require.NoError(t, err)

	assert.Equal(t, []string{"NEW"}, result.Skipped)
	assert.NotContains(t, result.Weights, "NEW")
	assert.Len(t, result.Weights, 3)
}

func TestRunDeterministic(t *testing.T) {
	req := Request{
		AsOf: optDate(),
		Candidates: []domain.Signal{
			candidate("VCB", "banking", 75),
			candidate("FPT", "technology", 82),
			candidate("HPG", "materials", 68),
			candidate("GAS", "energy", 71),
		},
	}
	seeds := map[string]int64{"VCB": 1, "FPT": 2, "HPG": 3, "GAS": 4}

	first, err := NewOptimizer(wideCaps(), zerolog.Nop()).Run(req, modelFor(t, seeds))
	require.NoError(t, err)
	second, err := NewOptimizer(wideCaps(), zerolog.Nop()).Run(req, modelFor(t, seeds))
	require.NoError(t, err)

	require.Equal(t, first, second)
}
