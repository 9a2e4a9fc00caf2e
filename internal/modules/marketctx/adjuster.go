// Package marketctx converts per-symbol and market-wide context facts
// into the multiplicative adjustment applied to raw composite scores.
package marketctx

import (
	"math"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
)

// AppliedFactor records one fact that contributed to a multiplier.
type AppliedFactor struct {
	Name   string  `json:"name"`
	Factor float64 `json:"factor"`
}

// Adjuster derives a score multiplier from context facts. It is a pure
// calculation over the calibration table; missing facts read as neutral.
type Adjuster struct {
	factors config.ContextFactors
	min     float64
	max     float64
}

// NewAdjuster builds an adjuster from the context calibration.
func NewAdjuster(cfg config.ContextConfig) *Adjuster {
	return &Adjuster{
		factors: cfg.Factors,
		min:     cfg.MinMultiplier,
		max:     cfg.MaxMultiplier,
	}
}

// Multiplier compounds the per-fact factors for the active facts and
// clamps the product to the configured bounds. The returned breakdown
// lists each applied factor in evaluation order.
func (a *Adjuster) Multiplier(facts domain.ContextFacts) (float64, []AppliedFactor) {
	multiplier := 1.0
	var applied []AppliedFactor

	apply := func(name string, factor float64) {
		multiplier *= factor
		applied = append(applied, AppliedFactor{Name: name, Factor: factor})
	}

	if facts.IsBankingLeader {
		apply("banking_leader", a.factors.BankingLeader)
	}
	if facts.HasForeignInterest {
		apply("foreign_interest", a.factors.ForeignInterest)
	}
	if facts.NearForeignLimit {
		apply("near_foreign_limit", a.factors.NearForeignLimit)
	}
	if facts.IsStateOwned {
		apply("state_owned", a.factors.StateOwned)
	}
	if facts.PolicyUncertainty {
		apply("policy_uncertainty", a.factors.PolicyUncertainty)
	}
	if facts.IsEarningsSeason {
		apply("earnings_season", a.factors.EarningsSeason)
	}
	if facts.DaysToExDividend > 0 && facts.DaysToExDividend <= a.factors.PreDividendDays {
		apply("pre_dividend", a.factors.PreDividend)
	}

	clamped := math.Max(a.min, math.Min(a.max, multiplier))
	return clamped, applied
}
