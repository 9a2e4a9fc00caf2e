// Package domain provides the core entities shared across the engine:
// price history, signal snapshots, positions and portfolio state.
package domain

import (
	"fmt"
	"sort"
	"time"
)

// DateFormat is the canonical day key used in storage and APIs.
const DateFormat = "2006-01-02"

// Classification is the discrete action derived from a composite score.
type Classification string

const (
	StrongBuy  Classification = "STRONG_BUY"
	Buy        Classification = "BUY"
	WeakBuy    Classification = "WEAK_BUY"
	Hold       Classification = "HOLD"
	Sell       Classification = "SELL"
	StrongSell Classification = "STRONG_SELL"
)

// IsBuySide reports whether the classification recommends entering.
func (c Classification) IsBuySide() bool {
	return c == StrongBuy || c == Buy || c == WeakBuy
}

// PriceBar is one daily OHLCV observation. Bars are immutable once
// ingested and ordered by date within a symbol.
type PriceBar struct {
	Symbol string    `json:"symbol"`
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// PriceHistory is an ordered, read-only view over one symbol's bars.
// All factor functions consume this view rather than raw slices.
type PriceHistory struct {
	Symbol string
	Bars   []PriceBar // ascending by date
}

// NewPriceHistory wraps bars in a history view, sorting by date.
func NewPriceHistory(symbol string, bars []PriceBar) *PriceHistory {
	sorted := make([]PriceBar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })
	return &PriceHistory{Symbol: symbol, Bars: sorted}
}

// Len returns the number of bars in the view.
func (h *PriceHistory) Len() int {
	return len(h.Bars)
}

// Last returns the most recent bar. Callers must check Len first.
func (h *PriceHistory) Last() PriceBar {
	return h.Bars[len(h.Bars)-1]
}

// Closes returns closing prices in date order.
func (h *PriceHistory) Closes() []float64 {
	out := make([]float64, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = b.Close
	}
	return out
}

// Highs returns high prices in date order.
func (h *PriceHistory) Highs() []float64 {
	out := make([]float64, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = b.High
	}
	return out
}

// Lows returns low prices in date order.
func (h *PriceHistory) Lows() []float64 {
	out := make([]float64, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = b.Low
	}
	return out
}

// Volumes returns traded volumes in date order.
func (h *PriceHistory) Volumes() []float64 {
	out := make([]float64, len(h.Bars))
	for i, b := range h.Bars {
		out[i] = b.Volume
	}
	return out
}

// Window returns a view over the last n bars (all bars when n exceeds Len).
func (h *PriceHistory) Window(n int) *PriceHistory {
	if n >= len(h.Bars) {
		return h
	}
	return &PriceHistory{Symbol: h.Symbol, Bars: h.Bars[len(h.Bars)-n:]}
}

// UpTo returns a view over the bars dated at or before t.
func (h *PriceHistory) UpTo(t time.Time) *PriceHistory {
	n := sort.Search(len(h.Bars), func(i int) bool { return h.Bars[i].Date.After(t) })
	return &PriceHistory{Symbol: h.Symbol, Bars: h.Bars[:n]}
}

// Validate checks the bar invariants: dates strictly increasing,
// volume non-negative.
func (h *PriceHistory) Validate() error {
	for i, b := range h.Bars {
		if b.Volume < 0 {
			return fmt.Errorf("negative volume for %s on %s", h.Symbol, b.Date.Format(DateFormat))
		}
		if i > 0 && !h.Bars[i-1].Date.Before(b.Date) {
			return fmt.Errorf("bar dates not strictly increasing for %s around %s", h.Symbol, b.Date.Format(DateFormat))
		}
	}
	return nil
}

// ContextFacts are the per-symbol market-context inputs consumed by the
// context adjuster. Missing facts stay at their zero value and read as
// neutral.
type ContextFacts struct {
	Symbol             string `json:"symbol"`
	Sector             string `json:"sector"`
	IsBankingLeader    bool   `json:"is_banking_leader"`
	HasForeignInterest bool   `json:"has_foreign_interest"`
	IsStateOwned       bool   `json:"is_state_owned"`
	NearForeignLimit   bool   `json:"near_foreign_limit"`
	IsEarningsSeason   bool   `json:"is_earnings_season"`
	PolicyUncertainty  bool   `json:"policy_uncertainty"`
	DaysToExDividend   int    `json:"days_to_ex_dividend"` // 0 = none scheduled
}

// SignalComponents is the per-(symbol,date) factor breakdown behind a
// composite score. Scores are 0-100; the context multiplier is a ratio.
type SignalComponents struct {
	VolumeScore       float64 `json:"volume_score"`
	PriceActionScore  float64 `json:"price_action_score"`
	MomentumScore     float64 `json:"momentum_score"`
	AccumulationScore float64 `json:"accumulation_score"`
	ContextMultiplier float64 `json:"context_multiplier"`
}

// Signal is the classified daily output for one symbol. Read-only for
// every consumer downstream of the classifier.
type Signal struct {
	Symbol         string           `json:"symbol"`
	Sector         string           `json:"sector"`
	Date           time.Time        `json:"date"`
	CompositeScore float64          `json:"composite_score"`
	Classification Classification   `json:"classification"`
	EntryPrice     float64          `json:"entry_price"`
	StopPrice      float64          `json:"stop_price"`
	TargetPrice    float64          `json:"target_price"`
	Confidence     float64          `json:"confidence"`
	Partial        bool             `json:"partial"` // stop/target unavailable (no ATR)
	Components     SignalComponents `json:"components"`
}

// Position is an open holding created by the risk manager.
type Position struct {
	Symbol       string    `json:"symbol"`
	Sector       string    `json:"sector"`
	Quantity     int64     `json:"quantity"`
	EntryPrice   float64   `json:"entry_price"`
	StopPrice    float64   `json:"stop_price"`
	RiskAmount   float64   `json:"risk_amount"`
	EntryDate    time.Time `json:"entry_date"`
	EntryScore   float64   `json:"entry_score"`
	CurrentPrice float64   `json:"current_price"`
	LastUpdated  time.Time `json:"last_updated"`
}

// MarketValue returns the position value at the current price.
func (p *Position) MarketValue() float64 {
	return float64(p.Quantity) * p.CurrentPrice
}

// Portfolio is the one piece of cross-symbol mutable state. All writes
// go through the portfolio service; the instance itself carries no lock.
type Portfolio struct {
	Positions map[string]*Position `json:"positions"`
	Cash      float64              `json:"cash"`
	AsOf      time.Time            `json:"as_of"`
}

// NewPortfolio creates an empty portfolio with a starting cash balance.
func NewPortfolio(cash float64) *Portfolio {
	return &Portfolio{
		Positions: make(map[string]*Position),
		Cash:      cash,
	}
}

// Equity returns cash plus the market value of all positions.
func (p *Portfolio) Equity() float64 {
	total := p.Cash
	for _, pos := range p.Positions {
		total += pos.MarketValue()
	}
	return total
}

// Weight returns one symbol's share of equity, 0 when not held.
func (p *Portfolio) Weight(symbol string) float64 {
	equity := p.Equity()
	if equity <= 0 {
		return 0
	}
	pos, ok := p.Positions[symbol]
	if !ok {
		return 0
	}
	return pos.MarketValue() / equity
}

// SectorWeight returns one sector's share of equity.
func (p *Portfolio) SectorWeight(sector string) float64 {
	equity := p.Equity()
	if equity <= 0 {
		return 0
	}
	var value float64
	for _, pos := range p.Positions {
		if pos.Sector == sector {
			value += pos.MarketValue()
		}
	}
	return value / equity
}

// SectorWeights returns the sector → weight mapping over current equity.
func (p *Portfolio) SectorWeights() map[string]float64 {
	weights := make(map[string]float64)
	equity := p.Equity()
	if equity <= 0 {
		return weights
	}
	for _, pos := range p.Positions {
		weights[pos.Sector] += pos.MarketValue() / equity
	}
	return weights
}

// Symbols returns held symbols in deterministic (sorted) order.
func (p *Portfolio) Symbols() []string {
	out := make([]string, 0, len(p.Positions))
	for s := range p.Positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
