package risk

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
)

func buySignal(symbol, sector string, score, entry, stop float64) *domain.Signal {
	return &domain.Signal{
		Symbol:         symbol,
		Sector:         sector,
		Date:           testDate(),
		CompositeScore: score,
		Classification: domain.Buy,
		EntryPrice:     entry,
		StopPrice:      stop,
		TargetPrice:    entry + 2*(entry-stop),
		Confidence:     score / 100,
	}
}

func cashPortfolio(cash float64) *domain.Portfolio {
	p := domain.NewPortfolio(cash)
	p.AsOf = testDate()
	return p
}

func holding(symbol, sector string, quantity int64, price, entryScore float64) *domain.Position {
	return &domain.Position{
		Symbol:       symbol,
		Sector:       sector,
		Quantity:     quantity,
		EntryPrice:   price,
		StopPrice:    price * 0.9,
		EntryDate:    testDate().AddDate(0, 0, -10),
		EntryScore:   entryScore,
		CurrentPrice: price,
		LastUpdated:  testDate(),
	}
}

func rejectedWith(t *testing.T, err error, reason domain.RejectReason) *domain.PositionRejectedError {
	t.Helper()
	var rejected *domain.PositionRejectedError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, reason, rejected.Reason)
	return rejected
}

// The documented sizing case: entry 66,000, stop 62,000, equity 1B at
// 1% risk gives a 10M budget and exactly 2,500 shares.
func TestEvaluateSizesFromRiskBudget(t *testing.T) {
	cfg := config.DefaultStrategy()
	cfg.Risk.PositionCap = 0.20 // the case is about sizing, not the cap
	manager := NewManager(cfg, zerolog.Nop())

	proposal, err := manager.Evaluate(
		buySignal("VCB", "banking", 74.18, 66_000, 62_000),
		cashPortfolio(1_000_000_000),
		nil,
	)
	require.NoError(t, err)
	require.NotNil(t, proposal)

	pos := proposal.Position
	assert.Equal(t, int64(2500), pos.Quantity)
	assert.InDelta(t, 10_000_000, pos.RiskAmount, 1e-9)
	assert.InDelta(t, 66_000, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 62_000, pos.StopPrice, 1e-9)
	assert.Equal(t, "banking", pos.Sector)
	assert.InDelta(t, 74.18, pos.EntryScore, 1e-9)
	assert.Empty(t, proposal.Replaces)
}

func TestEvaluateFloorsToBoardLot(t *testing.T) {
	manager := NewManager(config.DefaultStrategy(), zerolog.Nop())

	// Budget 10M over a 5,100 stop distance sizes to 1,960 raw shares.
	proposal, err := manager.Evaluate(
		buySignal("HPG", "materials", 70, 30_000, 24_900),
		cashPortfolio(1_000_000_000),
		nil,
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1900), proposal.Position.Quantity)
}

func TestEvaluateRejectsPositionCap(t *testing.T) {
	manager := NewManager(config.DefaultStrategy(), zerolog.Nop())

	// 2,500 shares at 66,000 is 16.5% of equity, over the 15% cap.
	_, err := manager.Evaluate(
		buySignal("VCB", "banking", 74.18, 66_000, 62_000),
		cashPortfolio(1_000_000_000),
		nil,
	)
	rejectedWith(t, err, domain.RejectPositionCap)
}

func TestEvaluateRejectsSectorCap(t *testing.T) {
	manager := NewManager(config.DefaultStrategy(), zerolog.Nop())

	p := cashPortfolio(620_000_000)
	p.Positions["BID"] = holding("BID", "banking", 10_000, 38_000, 65)

	// Candidate weight 7.9% is fine alone, but banking already holds 38%.
	_, err := manager.Evaluate(
		buySignal("VCB", "banking", 74.18, 66_000, 58_000),
		p,
		nil,
	)
	rejected := rejectedWith(t, err, domain.RejectSectorCap)
	assert.Contains(t, rejected.Detail, "banking")
}

func TestEvaluateRejectsNotBuySide(t *testing.T) {
	manager := NewManager(config.DefaultStrategy(), zerolog.Nop())

	sig := buySignal("VCB", "banking", 40, 66_000, 62_000)
	sig.Classification = domain.Sell

	_, err := manager.Evaluate(sig, cashPortfolio(1_000_000_000), nil)
	rejectedWith(t, err, domain.RejectNotBuySide)
}

func TestEvaluateRejectsPartialSignal(t *testing.T) {
	manager := NewManager(config.DefaultStrategy(), zerolog.Nop())

	sig := buySignal("VCB", "banking", 74.18, 66_000, 0)
	sig.Partial = true

	_, err := manager.Evaluate(sig, cashPortfolio(1_000_000_000), nil)
	rejectedWith(t, err, domain.RejectPartialSignal)
}

func TestEvaluateRejectsAlreadyHeld(t *testing.T) {
	manager := NewManager(config.DefaultStrategy(), zerolog.Nop())

	p := cashPortfolio(900_000_000)
	p.Positions["VCB"] = holding("VCB", "banking", 1000, 66_000, 70)

	_, err := manager.Evaluate(
		buySignal("VCB", "banking", 74.18, 66_000, 62_000),
		p,
		nil,
	)
	rejected := rejectedWith(t, err, domain.RejectCorrelation)
	assert.Contains(t, rejected.Detail, "already held")
}

func TestEvaluateRejectsZeroQuantity(t *testing.T) {
	manager := NewManager(config.DefaultStrategy(), zerolog.Nop())

	// 1% of 5M risks 50,000: under one board lot at a 4,000 distance.
	_, err := manager.Evaluate(
		buySignal("VCB", "banking", 74.18, 66_000, 62_000),
		cashPortfolio(5_000_000),
		nil,
	)
	rejectedWith(t, err, domain.RejectZeroQuantity)
}

func TestEvaluateCorrelationStrongerSignalWins(t *testing.T) {
	manager := NewManager(config.DefaultStrategy(), zerolog.Nop())

	model := NewModel([]*domain.PriceHistory{
		returnsHistory("VCB", 66_000, alternating(40, 0.01, false)),
		returnsHistory("BID", 38_000, alternating(40, 0.01, false)),
	}, 60, testDate())

	p := cashPortfolio(900_000_000)
	p.Positions["BID"] = holding("BID", "materials", 2000, 50_000, 60)

	// The candidate outscores the correlated holding: accepted, and the
	// holding is named for replacement.
	proposal, err := manager.Evaluate(
		buySignal("VCB", "banking", 74.18, 66_000, 58_000),
		p,
		model,
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"BID"}, proposal.Replaces)

	// The reverse loses to the stronger holding.
	p.Positions["BID"].EntryScore = 90
	_, err = manager.Evaluate(
		buySignal("VCB", "banking", 74.18, 66_000, 58_000),
		p,
		model,
	)
	rejected := rejectedWith(t, err, domain.RejectCorrelation)
	assert.Contains(t, rejected.Detail, "BID")
}

func TestEvaluateRejectsVolatilityTarget(t *testing.T) {
	cfg := config.DefaultStrategy()
	cfg.Risk.RiskPerTrade = 0.02
	cfg.Risk.PositionCap = 0.50
	cfg.Risk.SectorCap = 0.60
	manager := NewManager(cfg, zerolog.Nop())

	// ±5% daily is roughly 79% annualized; at a 50% weight the book
	// projects near 40%, far over the 20% target.
	model := NewModel([]*domain.PriceHistory{
		returnsHistory("SSI", 50_000, alternating(40, 0.05, false)),
	}, 60, testDate())

	_, err := manager.Evaluate(
		buySignal("SSI", "brokerage", 74, 50_000, 48_000),
		cashPortfolio(1_000_000_000),
		model,
	)
	rejectedWith(t, err, domain.RejectVolatility)
}

// The caps hold over randomized candidate sets: whatever the inputs,
// an accepted proposal never breaches the position or sector limits.
func TestEvaluateCapsHoldUnderRandomizedCandidates(t *testing.T) {
	cfg := config.DefaultStrategy()
	manager := NewManager(cfg, zerolog.Nop())
	rng := rand.New(rand.NewSource(42))

	sectors := []string{"banking", "technology", "materials", "energy"}

	for i := 0; i < 500; i++ {
		p := cashPortfolio(float64(200_000_000 + rng.Intn(1_800_000_000)))
		for j := 0; j < rng.Intn(4); j++ {
			symbol := string(rune('A'+j)) + "AA"
			price := float64(10_000 + rng.Intn(90_000))
			p.Positions[symbol] = holding(symbol, sectors[rng.Intn(len(sectors))],
				int64(100*(1+rng.Intn(50))), price, 50+rng.Float64()*40)
		}

		entry := float64(10_000 + rng.Intn(90_000))
		stop := entry * (0.85 + rng.Float64()*0.14)
		sector := sectors[rng.Intn(len(sectors))]

		proposal, err := manager.Evaluate(
			buySignal("NEW", sector, 60+rng.Float64()*40, entry, stop),
			p,
			nil,
		)
		if err != nil {
			var rejected *domain.PositionRejectedError
			require.True(t, errors.As(err, &rejected), "unexpected error type: %v", err)
			continue
		}

		equity := p.Equity()
		weight := float64(proposal.Position.Quantity) * proposal.Position.EntryPrice / equity
		assert.LessOrEqual(t, weight, cfg.Risk.PositionCap+1e-9)
		assert.LessOrEqual(t, p.SectorWeight(sector)+weight, cfg.Risk.SectorCap+1e-9)
		assert.Zero(t, proposal.Position.Quantity%int64(cfg.Risk.LotSize))
	}
}

func TestPlanRebalanceOrders(t *testing.T) {
	manager := NewManager(config.DefaultStrategy(), zerolog.Nop())

	p := cashPortfolio(500_000_000)
	p.Positions["AAA"] = holding("AAA", "banking", 2000, 50_000, 70)
	p.Positions["BBB"] = holding("BBB", "technology", 1000, 100_000, 65)
	// Equity: 500M cash + 100M AAA + 100M BBB = 700M.

	targets := map[string]float64{
		"BBB": 0.20, // 140M: buy 40M more
		"CCC": 0.10, // 70M: new entry
	}
	prices := map[string]float64{
		"AAA": 50_000,
		"BBB": 100_000,
		"CCC": 35_000,
	}

	orders := manager.PlanRebalance(p, targets, prices)
	require.Len(t, orders, 3)

	assert.Equal(t, Order{Symbol: "AAA", Side: SideSell, Quantity: 2000, Price: 50_000, Value: 100_000_000}, orders[0])
	assert.Equal(t, Order{Symbol: "BBB", Side: SideBuy, Quantity: 400, Price: 100_000, Value: 40_000_000}, orders[1])
	assert.Equal(t, Order{Symbol: "CCC", Side: SideBuy, Quantity: 2000, Price: 35_000, Value: 70_000_000}, orders[2])
}

func TestPlanRebalanceTrimsToLot(t *testing.T) {
	manager := NewManager(config.DefaultStrategy(), zerolog.Nop())

	p := cashPortfolio(500_000_000)
	p.Positions["AAA"] = holding("AAA", "banking", 2000, 50_000, 70)
	// Equity 600M; target 10% = 60M vs current 100M: trim 40M = 800 shares.

	orders := manager.PlanRebalance(p,
		map[string]float64{"AAA": 0.10},
		map[string]float64{"AAA": 50_000},
	)
	require.Len(t, orders, 1)
	assert.Equal(t, SideSell, orders[0].Side)
	assert.Equal(t, int64(800), orders[0].Quantity)
}

func TestSummarizeReportsBreaches(t *testing.T) {
	manager := NewManager(config.DefaultStrategy(), zerolog.Nop())

	model := NewModel([]*domain.PriceHistory{
		returnsHistory("AAA", 50_000, alternating(40, 0.01, false)),
		returnsHistory("BBB", 80_000, alternating(40, 0.01, false)),
	}, 60, testDate())

	p := cashPortfolio(100_000_000)
	p.Positions["AAA"] = holding("AAA", "banking", 4000, 50_000, 70) // 200M
	p.Positions["BBB"] = holding("BBB", "banking", 2000, 80_000, 65) // 160M
	// Equity 460M: AAA 43.5%, BBB 34.8%, banking 78.3%.

	summary := manager.Summarize(p, model)

	assert.InDelta(t, 460_000_000, summary.Equity, 1e-9)
	assert.InDelta(t, 0.4348, summary.PositionWeights["AAA"], 1e-3)

	kinds := make(map[string]int)
	for _, breach := range summary.Breaches {
		kinds[breach.Kind]++
	}
	assert.Equal(t, 2, kinds[string(domain.RejectPositionCap)], "both positions over the cap")
	assert.Equal(t, 1, kinds[string(domain.RejectSectorCap)])
	assert.Equal(t, 1, kinds[string(domain.RejectCorrelation)], "perfectly correlated pair")
	assert.Greater(t, summary.PortfolioVolatility, 0.0)
}

func TestSummarizeCleanPortfolio(t *testing.T) {
	manager := NewManager(config.DefaultStrategy(), zerolog.Nop())

	p := cashPortfolio(900_000_000)
	p.Positions["AAA"] = holding("AAA", "banking", 1000, 50_000, 70) // 5.3%

	summary := manager.Summarize(p, nil)
	assert.Empty(t, summary.Breaches)
	assert.Zero(t, summary.PortfolioVolatility)
	assert.InDelta(t, 0.0526, summary.SectorWeights["banking"], 1e-3)
}
