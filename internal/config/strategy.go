package config

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// StrategyConfig collects every calibration constant of the engine in
// one structure, passed by reference into each component. Defaults are
// built in; a YAML file overrides them; the settings table overrides
// individual keys at runtime.
type StrategyConfig struct {
	Scoring        ScoringConfig        `yaml:"scoring"`
	Context        ContextConfig        `yaml:"context"`
	Classification ClassificationConfig `yaml:"classification"`
	Risk           RiskConfig           `yaml:"risk"`
	Optimization   OptimizationConfig   `yaml:"optimization"`
	Backtest       BacktestConfig       `yaml:"backtest"`
	Alerts         AlertsConfig         `yaml:"alerts"`
}

// ScoringConfig drives the smart-money composite scorer.
type ScoringConfig struct {
	Lookback         int            `yaml:"lookback"`          // minimum bars per symbol
	BaselineWindow   int            `yaml:"baseline_window"`   // trailing volume baseline
	ResistanceWindow int            `yaml:"resistance_window"` // rolling resistance lookback
	RSIPeriod        int            `yaml:"rsi_period"`
	ShortMA          int            `yaml:"short_ma"`
	MediumMA         int            `yaml:"medium_ma"`
	LongMA           int            `yaml:"long_ma"`
	Weights          ScoringWeights `yaml:"weights"`
}

// ScoringWeights are the factor weights of the composite, summing to 100.
type ScoringWeights struct {
	Volume       float64 `yaml:"volume"`
	PriceAction  float64 `yaml:"price_action"`
	Momentum     float64 `yaml:"momentum"`
	Accumulation float64 `yaml:"accumulation"`
}

// Total returns the sum of all factor weights.
func (w ScoringWeights) Total() float64 {
	return w.Volume + w.PriceAction + w.Momentum + w.Accumulation
}

// ContextConfig drives the market context adjuster.
type ContextConfig struct {
	Factors       ContextFactors `yaml:"factors"`
	MinMultiplier float64        `yaml:"min_multiplier"`
	MaxMultiplier float64        `yaml:"max_multiplier"`
}

// ContextFactors are the per-fact multiplicative adjustments.
type ContextFactors struct {
	BankingLeader     float64 `yaml:"banking_leader"`
	ForeignInterest   float64 `yaml:"foreign_interest"`
	NearForeignLimit  float64 `yaml:"near_foreign_limit"`
	StateOwned        float64 `yaml:"state_owned"`
	PolicyUncertainty float64 `yaml:"policy_uncertainty"`
	EarningsSeason    float64 `yaml:"earnings_season"`
	PreDividend       float64 `yaml:"pre_dividend"`
	PreDividendDays   int     `yaml:"pre_dividend_days"` // ex-dividend proximity window
}

// ClassificationConfig drives the signal classifier.
type ClassificationConfig struct {
	Thresholds      Thresholds         `yaml:"thresholds"`
	SectorScale     map[string]float64 `yaml:"sector_scale"` // multiplies all thresholds
	ATRPeriod       int                `yaml:"atr_period"`
	ATRStopMultiple float64            `yaml:"atr_stop_multiple"`
	RiskRewardRatio float64            `yaml:"risk_reward_ratio"`
}

// Thresholds are the inclusive lower bounds of each bucket. Scores
// below Sell classify StrongSell.
type Thresholds struct {
	StrongBuy float64 `yaml:"strong_buy"`
	Buy       float64 `yaml:"buy"`
	WeakBuy   float64 `yaml:"weak_buy"`
	Hold      float64 `yaml:"hold"`
	Sell      float64 `yaml:"sell"`
}

// RiskConfig drives the risk manager.
type RiskConfig struct {
	RiskPerTrade         float64 `yaml:"risk_per_trade"`
	PositionCap          float64 `yaml:"position_cap"`
	SectorCap            float64 `yaml:"sector_cap"`
	CorrelationThreshold float64 `yaml:"correlation_threshold"`
	CorrelationWindow    int     `yaml:"correlation_window"` // trading days of returns
	VolatilityTarget     float64 `yaml:"volatility_target"`  // annualized
	LotSize              int     `yaml:"lot_size"`           // HOSE board lot
}

// OptimizationConfig drives the portfolio optimizer.
type OptimizationConfig struct {
	MinScore     float64    `yaml:"min_score"`
	RiskFreeRate float64    `yaml:"risk_free_rate"` // annualized
	CashReserve  float64    `yaml:"cash_reserve"`
	ScoreTiltMax float64    `yaml:"score_tilt_max"` // annualized return tilt at extreme scores
	EICWeights   EICWeights `yaml:"eic_weights"`
}

// EICWeights blend market, sector and stock scores into the
// expected-return tilt input (economy / industry / company).
type EICWeights struct {
	Economy  float64 `yaml:"economy"`
	Industry float64 `yaml:"industry"`
	Company  float64 `yaml:"company"`
}

// BacktestConfig drives the backtester defaults.
type BacktestConfig struct {
	InitialCapital float64 `yaml:"initial_capital"`
	CommissionRate float64 `yaml:"commission_rate"` // per side, of notional
	SlippageRate   float64 `yaml:"slippage_rate"`   // per side, of notional
}

// AlertsConfig drives the alert system.
type AlertsConfig struct {
	CooldownMinutes      int     `yaml:"cooldown_minutes"`
	StrongConfidence     float64 `yaml:"strong_confidence"`
	SectorRotationMargin float64 `yaml:"sector_rotation_margin"` // score points
}

// DefaultStrategy returns the built-in calibration.
func DefaultStrategy() *StrategyConfig {
	return &StrategyConfig{
		Scoring: ScoringConfig{
			Lookback:         30,
			BaselineWindow:   20,
			ResistanceWindow: 20,
			RSIPeriod:        14,
			ShortMA:          5,
			MediumMA:         10,
			LongMA:           20,
			Weights: ScoringWeights{
				Volume:       25,
				PriceAction:  25,
				Momentum:     25,
				Accumulation: 25,
			},
		},
		Context: ContextConfig{
			Factors: ContextFactors{
				BankingLeader:     1.15,
				ForeignInterest:   1.20,
				NearForeignLimit:  1.15,
				StateOwned:        1.08,
				PolicyUncertainty: 0.90,
				EarningsSeason:    1.10,
				PreDividend:       1.05,
				PreDividendDays:   5,
			},
			MinMultiplier: 0.5,
			MaxMultiplier: 1.6,
		},
		Classification: ClassificationConfig{
			Thresholds: Thresholds{
				StrongBuy: 70,
				Buy:       60,
				WeakBuy:   55,
				Hold:      45,
				Sell:      35,
			},
			SectorScale: map[string]float64{
				"technology": 0.85,
				"banking":    1.10,
			},
			ATRPeriod:       14,
			ATRStopMultiple: 2.0,
			RiskRewardRatio: 2.0,
		},
		Risk: RiskConfig{
			RiskPerTrade:         0.01,
			PositionCap:          0.15,
			SectorCap:            0.40,
			CorrelationThreshold: 0.70,
			CorrelationWindow:    60,
			VolatilityTarget:     0.20,
			LotSize:              100,
		},
		Optimization: OptimizationConfig{
			MinScore:     60,
			RiskFreeRate: 0.06,
			CashReserve:  0.05,
			ScoreTiltMax: 0.04,
			EICWeights: EICWeights{
				Economy:  0.30,
				Industry: 0.40,
				Company:  0.30,
			},
		},
		Backtest: BacktestConfig{
			InitialCapital: 1_000_000_000,
			CommissionRate: 0.0015,
			SlippageRate:   0.0010,
		},
		Alerts: AlertsConfig{
			CooldownMinutes:      240,
			StrongConfidence:     0.75,
			SectorRotationMargin: 10,
		},
	}
}

// LoadStrategy reads the strategy YAML at path over the defaults.
// A missing path (or empty path) yields the defaults unchanged.
func LoadStrategy(path string) (*StrategyConfig, error) {
	cfg := DefaultStrategy()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read strategy config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse strategy config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid strategy config: %w", err)
	}

	return cfg, nil
}

// Validate enforces the calibration invariants.
func (c *StrategyConfig) Validate() error {
	if c.Scoring.Lookback < 2 {
		return fmt.Errorf("scoring lookback must be at least 2, got %d", c.Scoring.Lookback)
	}
	if math.Abs(c.Scoring.Weights.Total()-100) > 1e-6 {
		return fmt.Errorf("scoring weights must sum to 100, got %.4f", c.Scoring.Weights.Total())
	}
	if c.Context.MinMultiplier <= 0 || c.Context.MaxMultiplier < c.Context.MinMultiplier {
		return fmt.Errorf("context multiplier bounds invalid: [%.2f, %.2f]",
			c.Context.MinMultiplier, c.Context.MaxMultiplier)
	}

	t := c.Classification.Thresholds
	if !(t.StrongBuy > t.Buy && t.Buy > t.WeakBuy && t.WeakBuy > t.Hold && t.Hold > t.Sell) {
		return fmt.Errorf("classification thresholds must strictly descend")
	}
	for sector, scale := range c.Classification.SectorScale {
		if scale <= 0 {
			return fmt.Errorf("sector scale for %s must be positive, got %.2f", sector, scale)
		}
	}

	if c.Risk.RiskPerTrade <= 0 || c.Risk.RiskPerTrade > 0.05 {
		return fmt.Errorf("risk_per_trade must be in (0, 0.05], got %.4f", c.Risk.RiskPerTrade)
	}
	if c.Risk.PositionCap <= 0 || c.Risk.PositionCap > 1 {
		return fmt.Errorf("position_cap must be in (0, 1], got %.4f", c.Risk.PositionCap)
	}
	if c.Risk.SectorCap < c.Risk.PositionCap || c.Risk.SectorCap > 1 {
		return fmt.Errorf("sector_cap must be in [position_cap, 1], got %.4f", c.Risk.SectorCap)
	}
	if c.Risk.LotSize < 1 {
		return fmt.Errorf("lot_size must be at least 1, got %d", c.Risk.LotSize)
	}

	if c.Optimization.CashReserve < 0 || c.Optimization.CashReserve >= 1 {
		return fmt.Errorf("cash_reserve must be in [0, 1), got %.4f", c.Optimization.CashReserve)
	}
	eic := c.Optimization.EICWeights
	if math.Abs(eic.Economy+eic.Industry+eic.Company-1.0) > 1e-6 {
		return fmt.Errorf("eic weights must sum to 1, got %.4f", eic.Economy+eic.Industry+eic.Company)
	}

	if c.Backtest.InitialCapital <= 0 {
		return fmt.Errorf("initial_capital must be positive")
	}
	if c.Alerts.CooldownMinutes <= 0 {
		return fmt.Errorf("alert cooldown must be positive, got %d", c.Alerts.CooldownMinutes)
	}

	return nil
}
