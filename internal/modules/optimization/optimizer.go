// Package optimization builds the constrained max-Sharpe target
// allocation over a cycle's candidate signals. It outputs weights only;
// turning them into orders is the risk manager's job.
package optimization

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/modules/risk"
	"github.com/quangtd/vnsentry/pkg/formulas"
)

// penaltyWeight scales the quadratic penalties that stand in for the
// equality and sector constraints.
const penaltyWeight = 1000.0

// Request is one optimizer invocation over a candidate batch, one
// signal per symbol.
type Request struct {
	AsOf         time.Time
	Candidates   []domain.Signal
	MarketScore  float64            // 0-100; 0 derives the candidate average
	SectorScores map[string]float64 // 0-100; missing sectors fall back to the stock score
}

// Result is the target allocation. Weights are fractions of equity and
// sum to 1 minus the cash reserve.
type Result struct {
	AsOf            time.Time          `json:"as_of"`
	Weights         map[string]float64 `json:"weights"`
	CashWeight      float64            `json:"cash_weight"`
	ExpectedReturns map[string]float64 `json:"expected_returns"` // annualized, tilt included
	ExpectedReturn  float64            `json:"expected_return"`  // portfolio, annualized
	Volatility      float64            `json:"volatility"`       // annualized
	SharpeRatio     float64            `json:"sharpe_ratio"`
	Filtered        []string           `json:"filtered,omitempty"` // below the minimum score
	Skipped         []string           `json:"skipped,omitempty"`  // not in the covariance matrix
}

// Optimizer solves the allocation problem for one candidate batch.
type Optimizer struct {
	cfg *config.StrategyConfig
	log zerolog.Logger
}

// NewOptimizer creates a new optimizer.
func NewOptimizer(cfg *config.StrategyConfig, log zerolog.Logger) *Optimizer {
	return &Optimizer{
		cfg: cfg,
		log: log.With().Str("service", "optimizer").Logger(),
	}
}

// Run maximizes the Sharpe ratio over the candidates passing the
// minimum-score filter, subject to the position and sector caps, with
// the configured cash reserve kept aside. Expected returns are the
// trailing annualized means tilted by the blended EIC score; covariance
// comes from the cycle's risk model so the optimizer and the risk
// manager see identical numbers.
//
// A constraint set that cannot deploy 1 − cash_reserve fails with
// *domain.OptimizationInfeasibleError and no partial allocation.
func (o *Optimizer) Run(req Request, model *risk.Model) (*Result, error) {
	if model == nil {
		return nil, fmt.Errorf("no risk model available")
	}
	asOf := req.AsOf
	if asOf.IsZero() {
		asOf = model.AsOf()
	}

	infeasible := func(reason string) (*Result, error) {
		o.log.Warn().Time("as_of", asOf).Str("reason", reason).Msg("Optimization infeasible")
		return nil, &domain.OptimizationInfeasibleError{Date: asOf, Reason: reason}
	}

	result := &Result{
		AsOf:            asOf,
		Weights:         make(map[string]float64),
		ExpectedReturns: make(map[string]float64),
	}

	var candidates []domain.Signal
	for _, sig := range req.Candidates {
		if sig.CompositeScore < o.cfg.Optimization.MinScore {
			result.Filtered = append(result.Filtered, sig.Symbol)
			continue
		}
		if !model.Member(sig.Symbol) {
			result.Skipped = append(result.Skipped, sig.Symbol)
			continue
		}
		candidates = append(candidates, sig)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].Symbol < candidates[j].Symbol })
	sort.Strings(result.Filtered)
	sort.Strings(result.Skipped)

	target := 1 - o.cfg.Optimization.CashReserve
	result.CashWeight = o.cfg.Optimization.CashReserve

	n := len(candidates)
	if n == 0 {
		return infeasible("no candidates above the minimum score")
	}
	if investable := o.maxInvestable(candidates); investable < target-1e-9 {
		return infeasible(fmt.Sprintf("caps allow %.1f%% invested, reserve requires %.1f%%",
			investable*100, target*100))
	}

	symbols := make([]string, n)
	sectorOf := make([]string, n)
	mu := make([]float64, n)
	marketScore := req.MarketScore
	if marketScore <= 0 {
		marketScore = averageScore(req.Candidates)
	}
	eic := o.cfg.Optimization.EICWeights
	for i, sig := range candidates {
		symbols[i] = sig.Symbol
		sectorOf[i] = sig.Sector

		sectorScore, ok := req.SectorScores[sig.Sector]
		if !ok {
			sectorScore = sig.CompositeScore
		}
		blended := eic.Economy*marketScore + eic.Industry*sectorScore + eic.Company*sig.CompositeScore
		tilt := o.cfg.Optimization.ScoreTiltMax * (blended - 50) / 50

		mu[i] = model.MeanDailyReturn(sig.Symbol)*formulas.TradingDaysPerYear + tilt
		result.ExpectedReturns[sig.Symbol] = mu[i]
	}

	daily, err := model.CovarianceFor(symbols)
	if err != nil {
		return nil, fmt.Errorf("failed to build candidate covariance: %w", err)
	}
	sigma := mat.NewSymDense(n, nil)
	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			sigma.SetSym(i, j, daily.At(i, j)*formulas.TradingDaysPerYear)
		}
	}

	weights, err := o.solve(mu, sigma, sectorOf, target)
	if err != nil {
		return nil, err
	}

	var portfolioReturn float64
	for i, symbol := range symbols {
		result.Weights[symbol] = weights[i]
		portfolioReturn += mu[i] * weights[i]
	}
	result.ExpectedReturn = portfolioReturn
	result.Volatility = model.PortfolioVolatility(result.Weights)
	if result.Volatility > 0 {
		result.SharpeRatio = (portfolioReturn - o.cfg.Optimization.RiskFreeRate*target) / result.Volatility
	}

	o.log.Info().
		Time("as_of", asOf).
		Int("candidates", n).
		Int("filtered", len(result.Filtered)).
		Float64("expected_return", result.ExpectedReturn).
		Float64("volatility", result.Volatility).
		Msg("Allocation optimized")
	return result, nil
}

// maxInvestable is the largest total weight the caps allow over the
// candidate set. Candidates without a sector are bounded only by the
// position cap.
func (o *Optimizer) maxInvestable(candidates []domain.Signal) float64 {
	posCap := o.cfg.Risk.PositionCap
	sectorCap := o.cfg.Risk.SectorCap

	counts := make(map[string]int)
	for _, sig := range candidates {
		counts[sig.Sector]++
	}

	var investable float64
	for sector, count := range counts {
		room := float64(count) * posCap
		if sector != "" && room > sectorCap {
			room = sectorCap
		}
		investable += room
	}
	return investable
}

// solve runs the penalty-method minimization of the negative Sharpe
// ratio. Bounds are enforced by projection, the budget and sector
// constraints by quadratic penalties.
func (o *Optimizer) solve(mu []float64, sigma *mat.SymDense, sectorOf []string, target float64) ([]float64, error) {
	n := len(mu)
	posCap := o.cfg.Risk.PositionCap
	sectorCap := o.cfg.Risk.SectorCap
	rf := o.cfg.Optimization.RiskFreeRate

	project := func(x []float64) []float64 {
		proj := make([]float64, n)
		for i := range x {
			proj[i] = math.Max(0, math.Min(posCap, x[i]))
		}
		return proj
	}

	// Fixed sector order keeps every evaluation bit-identical across
	// runs; map iteration would not.
	var sectors []string
	seen := make(map[string]bool)
	for _, sector := range sectorOf {
		if sector != "" && !seen[sector] {
			seen[sector] = true
			sectors = append(sectors, sector)
		}
	}
	sort.Strings(sectors)

	sectorSums := func(x []float64) map[string]float64 {
		sums := make(map[string]float64)
		for i, sector := range sectorOf {
			if sector != "" {
				sums[sector] += x[i]
			}
		}
		return sums
	}

	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			w := project(x)

			var ret, variance float64
			for i := 0; i < n; i++ {
				ret += mu[i] * w[i]
				for j := 0; j < n; j++ {
					variance += w[i] * w[j] * sigma.At(i, j)
				}
			}
			stdDev := math.Sqrt(math.Max(variance, 1e-10))

			var sum float64
			for i := 0; i < n; i++ {
				sum += w[i]
			}

			obj := -(ret - rf*target) / stdDev
			obj += penaltyWeight * (sum - target) * (sum - target)
			sums := sectorSums(w)
			for _, sector := range sectors {
				if over := sums[sector] - sectorCap; over > 0 {
					obj += penaltyWeight * over * over
				}
			}
			return obj
		},
		Grad: func(grad, x []float64) {
			w := project(x)

			var ret, variance float64
			for i := 0; i < n; i++ {
				ret += mu[i] * w[i]
				for j := 0; j < n; j++ {
					variance += w[i] * w[j] * sigma.At(i, j)
				}
			}
			stdDev := math.Sqrt(math.Max(variance, 1e-10))
			excess := ret - rf*target

			for i := 0; i < n; i++ {
				var dVariance float64
				for j := 0; j < n; j++ {
					dVariance += 2 * sigma.At(i, j) * w[j]
				}
				grad[i] = -mu[i]/stdDev + excess*dVariance/(2*stdDev*stdDev*stdDev)
			}

			var sum float64
			for i := 0; i < n; i++ {
				sum += w[i]
			}
			for i := 0; i < n; i++ {
				grad[i] += 2 * penaltyWeight * (sum - target)
			}

			sums := sectorSums(w)
			for i, sector := range sectorOf {
				if sector == "" {
					continue
				}
				if over := sums[sector] - sectorCap; over > 0 {
					grad[i] += 2 * penaltyWeight * over
				}
			}
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = math.Min(target/float64(n), posCap)
	}

	converged := func(r *optimize.Result) bool {
		if r == nil {
			return false
		}
		switch r.Status {
		case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
			return true
		}
		return false
	}

	res, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !converged(res) {
		res, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("optimization failed: %w", err)
		}
		if !converged(res) {
			return nil, fmt.Errorf("optimization did not converge: status=%v", res.Status)
		}
	}

	// Project the solution back into bounds and rescale to the target
	// deployment.
	weights := project(res.X)
	var sum float64
	for _, w := range weights {
		sum += w
	}
	if sum <= 0 {
		return nil, fmt.Errorf("optimization collapsed to an empty allocation")
	}
	scale := target / sum
	for i := range weights {
		weights[i] *= scale
	}
	return weights, nil
}

func averageScore(candidates []domain.Signal) float64 {
	if len(candidates) == 0 {
		return 50
	}
	var total float64
	for _, sig := range candidates {
		total += sig.CompositeScore
	}
	return total / float64(len(candidates))
}
