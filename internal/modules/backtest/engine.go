// Package backtest replays a historical signal stream against a
// simulated portfolio, day by day, producing a trade log, an equity
// curve and summary statistics. Position sizing and discipline come
// from the same risk manager the live cycle uses.
package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/modules/marketcal"
	"github.com/quangtd/vnsentry/internal/modules/risk"
)

// ExitReason records why a simulated position was closed.
type ExitReason string

const (
	ExitStop     ExitReason = "stop"
	ExitTarget   ExitReason = "target"
	ExitReplaced ExitReason = "replaced"
	ExitEnd      ExitReason = "end"
)

// Trade is one completed round trip in a run.
type Trade struct {
	ID          string     `json:"id"`
	RunID       string     `json:"run_id"`
	Symbol      string     `json:"symbol"`
	Sector      string     `json:"sector"`
	Quantity    int64      `json:"quantity"`
	EntryDate   time.Time  `json:"entry_date"`
	EntryPrice  float64    `json:"entry_price"`
	ExitDate    time.Time  `json:"exit_date"`
	ExitPrice   float64    `json:"exit_price"`
	ExitReason  ExitReason `json:"exit_reason"`
	Cost        float64    `json:"cost"`
	PnL         float64    `json:"pnl"`
	Return      float64    `json:"return"`
	HoldingDays int        `json:"holding_days"`
}

// Run is the aggregate record of one backtest. Return figures are
// fractions, not percentages.
type Run struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Start          time.Time `json:"start"`
	End            time.Time `json:"end"`
	InitialCapital float64   `json:"initial_capital"`
	FinalEquity    float64   `json:"final_equity"`
	TotalReturn    float64   `json:"total_return"`
	Trades         int       `json:"trades"`
	Wins           int       `json:"wins"`
	WinRate        float64   `json:"win_rate"`
	AvgReturn      float64   `json:"avg_return"`
	MaxDrawdown    float64   `json:"max_drawdown"`
	SharpeRatio    *float64  `json:"sharpe_ratio,omitempty"`
	AvgHoldingDays float64   `json:"avg_holding_days"`
	DataGaps       int       `json:"data_gaps"`
	Rejections     int       `json:"rejections"`
}

// EquityPoint is one day of the simulated equity curve, taken after
// that day's exits and entries.
type EquityPoint struct {
	Date   time.Time `json:"date"`
	Equity float64   `json:"equity"`
	Cash   float64   `json:"cash"`
}

// Input is one prepared engine invocation: the price panel and the
// signal stream to replay over it.
type Input struct {
	RunID          string
	Start          time.Time
	End            time.Time
	InitialCapital float64
	Histories      map[string]*domain.PriceHistory
	Signals        []domain.Signal
}

// Output couples the run record with its trade log, equity curve and
// the data gaps encountered along the way.
type Output struct {
	Run    Run                   `json:"run"`
	Trades []Trade               `json:"trades"`
	Curve  []EquityPoint         `json:"curve"`
	Gaps   []domain.DataGapError `json:"gaps,omitempty"`
}

// Engine walks the trading days of a range, applying exits before
// entries on each day.
type Engine struct {
	cfg      *config.StrategyConfig
	manager  *risk.Manager
	calendar *marketcal.Service
	log      zerolog.Logger
}

// NewEngine creates a backtest engine.
func NewEngine(cfg *config.StrategyConfig, calendar *marketcal.Service, log zerolog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		manager:  risk.NewManager(cfg, log),
		calendar: calendar,
		log:      log.With().Str("service", "backtest").Logger(),
	}
}

// openMeta is engine-side state for a held position: the signal's
// target level and the entry-side transaction cost.
type openMeta struct {
	target    float64
	entryCost float64
}

// Run replays the signal stream. Identical inputs produce identical
// outputs: days, symbols and signals are processed in sorted order and
// trade IDs are sequence numbers within the run.
func (e *Engine) Run(input Input) (*Output, error) {
	if input.RunID == "" {
		return nil, fmt.Errorf("backtest run needs an ID")
	}
	if input.End.Before(input.Start) {
		return nil, fmt.Errorf("backtest range ends before it starts")
	}
	capital := input.InitialCapital
	if capital <= 0 {
		capital = e.cfg.Backtest.InitialCapital
	}

	bars, days := indexBars(input.Histories, input.Start, input.End)
	if len(days) == 0 {
		return nil, fmt.Errorf("no price data between %s and %s",
			input.Start.Format(domain.DateFormat), input.End.Format(domain.DateFormat))
	}
	stream := groupSignals(input.Signals, input.Start, input.End)
	costRate := e.cfg.Backtest.CommissionRate + e.cfg.Backtest.SlippageRate

	p := domain.NewPortfolio(capital)
	out := &Output{Trades: []Trade{}, Curve: []EquityPoint{}}
	meta := make(map[string]*openMeta)
	seq := 0
	rejections := 0

	closeOut := func(pos *domain.Position, exitDate time.Time, exitPrice float64, reason ExitReason) {
		seq++
		proceeds := float64(pos.Quantity) * exitPrice
		exitCost := proceeds * costRate
		notional := float64(pos.Quantity) * pos.EntryPrice
		cost := meta[pos.Symbol].entryCost + exitCost
		pnl := proceeds - notional - cost

		p.Cash += proceeds - exitCost
		delete(p.Positions, pos.Symbol)
		delete(meta, pos.Symbol)

		out.Trades = append(out.Trades, Trade{
			ID:          fmt.Sprintf("%s-%04d", input.RunID, seq),
			RunID:       input.RunID,
			Symbol:      pos.Symbol,
			Sector:      pos.Sector,
			Quantity:    pos.Quantity,
			EntryDate:   pos.EntryDate,
			EntryPrice:  pos.EntryPrice,
			ExitDate:    exitDate,
			ExitPrice:   exitPrice,
			ExitReason:  reason,
			Cost:        cost,
			PnL:         pnl,
			Return:      pnl / notional,
			HoldingDays: e.calendar.TradingDaysBetween(pos.EntryDate, exitDate),
		})
	}

	for _, day := range days {
		key := day.Format(domain.DateFormat)

		// Exits first. A stop and a target touched on the same day
		// resolve to the stop.
		for _, symbol := range p.Symbols() {
			pos := p.Positions[symbol]
			bar, ok := bars[symbol][key]
			if !ok {
				out.Gaps = append(out.Gaps, domain.DataGapError{Symbol: symbol, Date: day})
				continue
			}
			switch {
			case bar.Low <= pos.StopPrice:
				closeOut(pos, day, pos.StopPrice, ExitStop)
			case meta[symbol].target > 0 && bar.High >= meta[symbol].target:
				closeOut(pos, day, meta[symbol].target, ExitTarget)
			default:
				pos.CurrentPrice = bar.Close
				pos.LastUpdated = day
			}
		}

		// Entries, strongest signal first.
		if daySignals := stream[key]; len(daySignals) > 0 {
			model := e.modelFor(input.Histories, day)
			for i := range daySignals {
				sig := daySignals[i]
				if !sig.Classification.IsBuySide() {
					continue
				}
				proposal, err := e.manager.Evaluate(&sig, p, model)
				if err != nil {
					rejections++
					continue
				}
				notional := float64(proposal.Position.Quantity) * proposal.Position.EntryPrice
				entryCost := notional * costRate
				// Evaluate sizes against raw cash; the entry cost comes
				// on top of the notional.
				if p.Cash < notional+entryCost {
					rejections++
					continue
				}
				for _, replaced := range proposal.Replaces {
					closeOut(p.Positions[replaced], day, p.Positions[replaced].CurrentPrice, ExitReplaced)
				}
				p.Cash -= notional + entryCost
				p.Positions[proposal.Position.Symbol] = proposal.Position
				meta[proposal.Position.Symbol] = &openMeta{target: sig.TargetPrice, entryCost: entryCost}
			}
		}

		p.AsOf = day
		out.Curve = append(out.Curve, EquityPoint{Date: day, Equity: p.Equity(), Cash: p.Cash})
	}

	// Close whatever is still open at its last known price.
	last := days[len(days)-1]
	for _, symbol := range p.Symbols() {
		closeOut(p.Positions[symbol], last, p.Positions[symbol].CurrentPrice, ExitEnd)
	}

	out.Run = e.computeStats(input, capital, p.Cash, out, rejections)
	e.log.Info().
		Str("run_id", input.RunID).
		Int("trades", out.Run.Trades).
		Float64("total_return", out.Run.TotalReturn).
		Int("data_gaps", out.Run.DataGaps).
		Msg("Backtest finished")
	return out, nil
}

// modelFor rebuilds the risk model from bars visible on the decision
// day, mirroring what a live cycle would have seen.
func (e *Engine) modelFor(histories map[string]*domain.PriceHistory, day time.Time) *risk.Model {
	symbols := make([]string, 0, len(histories))
	for symbol := range histories {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	views := make([]*domain.PriceHistory, 0, len(symbols))
	for _, symbol := range symbols {
		views = append(views, histories[symbol].UpTo(day))
	}
	return risk.NewModel(views, e.cfg.Risk.CorrelationWindow, day)
}

// indexBars maps symbol and day key to the bar, and returns the sorted
// union of trading days in the range. Days are normalized to midnight
// UTC so trade timestamps do not depend on how the bars were loaded.
func indexBars(histories map[string]*domain.PriceHistory, start, end time.Time) (map[string]map[string]domain.PriceBar, []time.Time) {
	bars := make(map[string]map[string]domain.PriceBar, len(histories))
	seen := make(map[string]time.Time)

	for symbol, h := range histories {
		if h == nil {
			continue
		}
		byDay := make(map[string]domain.PriceBar)
		for _, bar := range h.Bars {
			if bar.Date.Before(start) || bar.Date.After(end) {
				continue
			}
			day := time.Date(bar.Date.Year(), bar.Date.Month(), bar.Date.Day(), 0, 0, 0, 0, time.UTC)
			key := day.Format(domain.DateFormat)
			byDay[key] = bar
			seen[key] = day
		}
		bars[symbol] = byDay
	}

	days := make([]time.Time, 0, len(seen))
	for _, day := range seen {
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
	return bars, days
}

// groupSignals buckets the stream by day key, ordered by score within
// the day so stronger candidates claim capital first.
func groupSignals(signals []domain.Signal, start, end time.Time) map[string][]domain.Signal {
	stream := make(map[string][]domain.Signal)
	for _, sig := range signals {
		if sig.Date.Before(start) || sig.Date.After(end) {
			continue
		}
		key := sig.Date.Format(domain.DateFormat)
		stream[key] = append(stream[key], sig)
	}
	for key := range stream {
		day := stream[key]
		sort.Slice(day, func(i, j int) bool {
			if day[i].CompositeScore != day[j].CompositeScore {
				return day[i].CompositeScore > day[j].CompositeScore
			}
			return day[i].Symbol < day[j].Symbol
		})
	}
	return stream
}
