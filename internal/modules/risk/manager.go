package risk

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
)

// Proposal is an accepted candidate: the sized position plus any held
// symbols it displaces through the correlation rule.
type Proposal struct {
	Position *domain.Position `json:"position"`
	Replaces []string         `json:"replaces,omitempty"`
}

// Side marks the direction of a rebalance order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Order is one step of a rebalance plan. Execution is external; the
// engine only plans.
type Order struct {
	Symbol   string  `json:"symbol"`
	Side     Side    `json:"side"`
	Quantity int64   `json:"quantity"`
	Price    float64 `json:"price"`
	Value    float64 `json:"value"`
}

// Manager sizes accepted signals and enforces the portfolio limits.
// It is stateless; all cross-symbol state arrives as the portfolio and
// the cycle's risk model.
type Manager struct {
	cfg *config.StrategyConfig
	log zerolog.Logger
}

// NewManager creates a new risk manager.
func NewManager(cfg *config.StrategyConfig, log zerolog.Logger) *Manager {
	return &Manager{
		cfg: cfg,
		log: log.With().Str("service", "risk").Logger(),
	}
}

// Evaluate sizes a buy-side signal against the current portfolio.
// The returned error is a *domain.PositionRejectedError for every
// expected refusal; rejection is control flow, not failure.
//
// Sizing: risk_amount = equity × risk_per_trade, quantity =
// risk_amount / (entry − stop), floored to the board lot and capped by
// available cash. A candidate more correlated with a held symbol than
// the threshold wins only when its score beats the holding's entry
// score; the displaced holdings are listed in Proposal.Replaces.
func (m *Manager) Evaluate(sig *domain.Signal, p *domain.Portfolio, model *Model) (*Proposal, error) {
	reject := func(reason domain.RejectReason, detail string) (*Proposal, error) {
		err := &domain.PositionRejectedError{
			Symbol: sig.Symbol,
			Date:   sig.Date,
			Reason: reason,
			Detail: detail,
		}
		m.log.Debug().Str("symbol", sig.Symbol).Str("reason", string(reason)).Str("detail", detail).Msg("Candidate rejected")
		return nil, err
	}

	if !sig.Classification.IsBuySide() {
		return reject(domain.RejectNotBuySide, string(sig.Classification))
	}
	if _, held := p.Positions[sig.Symbol]; held {
		return reject(domain.RejectCorrelation, "already held")
	}
	if sig.Partial || sig.StopPrice <= 0 {
		return reject(domain.RejectPartialSignal, "no stop level")
	}

	distance := sig.EntryPrice - sig.StopPrice
	if sig.EntryPrice <= 0 || distance <= 0 {
		return reject(domain.RejectPartialSignal, "no stop distance")
	}

	equity := p.Equity()
	if equity <= 0 {
		return reject(domain.RejectZeroQuantity, "portfolio has no equity")
	}

	riskBudget := equity * m.cfg.Risk.RiskPerTrade
	lot := int64(m.cfg.Risk.LotSize)

	quantity := floorToLot(int64(riskBudget/distance), lot)
	affordable := floorToLot(int64(p.Cash/sig.EntryPrice), lot)
	if affordable < quantity {
		quantity = affordable
	}
	if quantity <= 0 {
		return reject(domain.RejectZeroQuantity,
			fmt.Sprintf("budget %.0f sizes below one lot of %d", riskBudget, lot))
	}

	weight := float64(quantity) * sig.EntryPrice / equity
	if weight > m.cfg.Risk.PositionCap {
		return reject(domain.RejectPositionCap,
			fmt.Sprintf("weight %.1f%% over cap %.1f%%", weight*100, m.cfg.Risk.PositionCap*100))
	}

	if sig.Sector != "" {
		sectorWeight := p.SectorWeight(sig.Sector) + weight
		if sectorWeight > m.cfg.Risk.SectorCap {
			return reject(domain.RejectSectorCap,
				fmt.Sprintf("sector %s at %.1f%% over cap %.1f%%",
					sig.Sector, sectorWeight*100, m.cfg.Risk.SectorCap*100))
		}
	}

	var replaces []string
	if model != nil {
		held := heldSymbols(p)
		for _, symbol := range held {
			corr := model.Correlation(sig.Symbol, symbol)
			if corr <= m.cfg.Risk.CorrelationThreshold {
				continue
			}
			holding := p.Positions[symbol]
			if sig.CompositeScore > holding.EntryScore {
				replaces = append(replaces, symbol)
				continue
			}
			return reject(domain.RejectCorrelation,
				fmt.Sprintf("%.2f with %s whose signal is stronger", corr, symbol))
		}

		projected := m.projectedVolatility(p, model, sig.Symbol, weight, replaces)
		if projected > m.cfg.Risk.VolatilityTarget {
			return reject(domain.RejectVolatility,
				fmt.Sprintf("projected %.1f%% over target %.1f%%",
					projected*100, m.cfg.Risk.VolatilityTarget*100))
		}
	}

	position := &domain.Position{
		Symbol:       sig.Symbol,
		Sector:       sig.Sector,
		Quantity:     quantity,
		EntryPrice:   sig.EntryPrice,
		StopPrice:    sig.StopPrice,
		RiskAmount:   float64(quantity) * distance,
		EntryDate:    sig.Date,
		EntryScore:   sig.CompositeScore,
		CurrentPrice: sig.EntryPrice,
		LastUpdated:  sig.Date,
	}

	m.log.Debug().
		Str("symbol", sig.Symbol).
		Int64("quantity", quantity).
		Float64("weight", weight).
		Strs("replaces", replaces).
		Msg("Candidate sized")
	return &Proposal{Position: position, Replaces: replaces}, nil
}

// projectedVolatility estimates the annualized portfolio volatility
// after adding the candidate and dropping any displaced holdings.
func (m *Manager) projectedVolatility(p *domain.Portfolio, model *Model, symbol string, weight float64, replaces []string) float64 {
	equity := p.Equity()
	weights := make(map[string]float64, len(p.Positions)+1)
	for held, pos := range p.Positions {
		if contains(replaces, held) {
			continue
		}
		weights[held] = pos.MarketValue() / equity
	}
	weights[symbol] = weight
	return model.PortfolioVolatility(weights)
}

// PlanRebalance turns optimizer target weights into lot-sized orders
// against the current book. Held symbols missing from targets are
// closed in full; partial trims and buys are floored to the board lot.
// Sells come first so the buys they fund can execute.
func (m *Manager) PlanRebalance(p *domain.Portfolio, targets map[string]float64, prices map[string]float64) []Order {
	equity := p.Equity()
	if equity <= 0 {
		return nil
	}
	lot := int64(m.cfg.Risk.LotSize)

	priceFor := func(symbol string) float64 {
		if price, ok := prices[symbol]; ok && price > 0 {
			return price
		}
		if pos, held := p.Positions[symbol]; held && pos.CurrentPrice > 0 {
			return pos.CurrentPrice
		}
		return 0
	}

	var sells, buys []Order

	for _, symbol := range heldSymbols(p) {
		pos := p.Positions[symbol]
		price := priceFor(symbol)
		if price <= 0 {
			m.log.Warn().Str("symbol", symbol).Msg("No price for held symbol, skipping in plan")
			continue
		}

		target := targets[symbol] * equity
		current := float64(pos.Quantity) * price
		if target >= current {
			continue
		}

		var quantity int64
		if targets[symbol] == 0 {
			quantity = pos.Quantity // full exit includes any odd lot
		} else {
			// target×equity carries float crumbs; round to whole
			// shares before the lot floor.
			quantity = floorToLot(int64(math.Round((current-target)/price)), lot)
		}
		if quantity <= 0 {
			continue
		}
		sells = append(sells, Order{
			Symbol:   symbol,
			Side:     SideSell,
			Quantity: quantity,
			Price:    price,
			Value:    float64(quantity) * price,
		})
	}

	targetSymbols := make([]string, 0, len(targets))
	for symbol := range targets {
		targetSymbols = append(targetSymbols, symbol)
	}
	sort.Strings(targetSymbols)

	for _, symbol := range targetSymbols {
		price := priceFor(symbol)
		if price <= 0 {
			m.log.Warn().Str("symbol", symbol).Msg("No price for target symbol, skipping in plan")
			continue
		}

		target := targets[symbol] * equity
		var current float64
		if pos, held := p.Positions[symbol]; held {
			current = float64(pos.Quantity) * price
		}
		if target <= current {
			continue
		}

		quantity := floorToLot(int64(math.Round((target-current)/price)), lot)
		if quantity <= 0 {
			continue
		}
		buys = append(buys, Order{
			Symbol:   symbol,
			Side:     SideBuy,
			Quantity: quantity,
			Price:    price,
			Value:    float64(quantity) * price,
		})
	}

	return append(sells, buys...)
}

// Breach is one exceeded limit in a risk summary.
type Breach struct {
	Kind  string  `json:"kind"`
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Limit float64 `json:"limit"`
}

// Summary is the portfolio risk state served over the API and consumed
// by the alert system.
type Summary struct {
	AsOf                time.Time          `json:"as_of"`
	Equity              float64            `json:"equity"`
	Cash                float64            `json:"cash"`
	PortfolioVolatility float64            `json:"portfolio_volatility"`
	VolatilityTarget    float64            `json:"volatility_target"`
	PositionCap         float64            `json:"position_cap"`
	SectorCap           float64            `json:"sector_cap"`
	PositionWeights     map[string]float64 `json:"position_weights"`
	SectorWeights       map[string]float64 `json:"sector_weights"`
	Breaches            []Breach           `json:"breaches"`
}

// Summarize reports current weights, projected volatility and every
// limit breach. A nil model yields zero volatility and no correlation
// checks.
func (m *Manager) Summarize(p *domain.Portfolio, model *Model) Summary {
	summary := Summary{
		AsOf:             p.AsOf,
		Equity:           p.Equity(),
		Cash:             p.Cash,
		VolatilityTarget: m.cfg.Risk.VolatilityTarget,
		PositionCap:      m.cfg.Risk.PositionCap,
		SectorCap:        m.cfg.Risk.SectorCap,
		PositionWeights:  make(map[string]float64, len(p.Positions)),
		SectorWeights:    p.SectorWeights(),
		Breaches:         []Breach{},
	}

	held := heldSymbols(p)
	for _, symbol := range held {
		weight := p.Weight(symbol)
		summary.PositionWeights[symbol] = weight
		if weight > m.cfg.Risk.PositionCap {
			summary.Breaches = append(summary.Breaches, Breach{
				Kind: string(domain.RejectPositionCap), Name: symbol, Value: weight, Limit: m.cfg.Risk.PositionCap,
			})
		}
	}

	sectors := make([]string, 0, len(summary.SectorWeights))
	for sector := range summary.SectorWeights {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)
	for _, sector := range sectors {
		if weight := summary.SectorWeights[sector]; weight > m.cfg.Risk.SectorCap {
			summary.Breaches = append(summary.Breaches, Breach{
				Kind: string(domain.RejectSectorCap), Name: sector, Value: weight, Limit: m.cfg.Risk.SectorCap,
			})
		}
	}

	if model != nil {
		weights := make(map[string]float64, len(held))
		for _, symbol := range held {
			weights[symbol] = summary.PositionWeights[symbol]
		}
		summary.PortfolioVolatility = model.PortfolioVolatility(weights)
		if summary.PortfolioVolatility > m.cfg.Risk.VolatilityTarget {
			summary.Breaches = append(summary.Breaches, Breach{
				Kind:  string(domain.RejectVolatility),
				Name:  "portfolio",
				Value: summary.PortfolioVolatility,
				Limit: m.cfg.Risk.VolatilityTarget,
			})
		}

		for i, a := range held {
			for _, b := range held[i+1:] {
				corr := model.Correlation(a, b)
				if corr > m.cfg.Risk.CorrelationThreshold {
					summary.Breaches = append(summary.Breaches, Breach{
						Kind:  string(domain.RejectCorrelation),
						Name:  a + "/" + b,
						Value: corr,
						Limit: m.cfg.Risk.CorrelationThreshold,
					})
				}
			}
		}
	}

	return summary
}

func heldSymbols(p *domain.Portfolio) []string {
	symbols := make([]string, 0, len(p.Positions))
	for symbol := range p.Positions {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)
	return symbols
}

func floorToLot(quantity, lot int64) int64 {
	if lot <= 1 {
		return quantity
	}
	return (quantity / lot) * lot
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}
