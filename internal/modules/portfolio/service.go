// Package portfolio owns the live position book: the one piece of
// cross-symbol mutable state in the engine. All mutation goes through
// the Service under a single lock; readers get deep copies.
package portfolio

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/modules/risk"
)

// Service serializes all portfolio mutation and owns the per-cycle risk
// model so the risk manager and optimizer read identical estimates.
type Service struct {
	cfg         *config.StrategyConfig
	positions   *PositionRepository
	snapshots   *SnapshotStore
	initialCash float64
	log         zerolog.Logger

	mu      sync.Mutex
	current *domain.Portfolio
	model   *risk.Model
}

// NewService creates the portfolio service. initialCash seeds a fresh
// portfolio when neither a snapshot nor stored state exists.
func NewService(
	cfg *config.StrategyConfig,
	positions *PositionRepository,
	snapshots *SnapshotStore,
	initialCash float64,
	log zerolog.Logger,
) *Service {
	return &Service{
		cfg:         cfg,
		positions:   positions,
		snapshots:   snapshots,
		initialCash: initialCash,
		log:         log.With().Str("service", "portfolio").Logger(),
		current:     domain.NewPortfolio(initialCash),
	}
}

// Load restores state at startup: the newest snapshot wins, then the
// position and cash tables, then a fresh portfolio with initialCash.
func (s *Service) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.snapshots.Latest()
	if err != nil {
		return fmt.Errorf("failed to load latest snapshot: %w", err)
	}
	if snap != nil {
		s.current = snap
		s.log.Info().
			Str("as_of", snap.AsOf.Format(domain.DateFormat)).
			Int("positions", len(snap.Positions)).
			Float64("cash", snap.Cash).
			Msg("Portfolio restored from snapshot")
		return s.persistLocked()
	}

	positions, err := s.positions.GetAll()
	if err != nil {
		return fmt.Errorf("failed to load positions: %w", err)
	}
	cash, hasCash, err := s.positions.Cash()
	if err != nil {
		return fmt.Errorf("failed to load cash balance: %w", err)
	}

	if !hasCash && len(positions) == 0 {
		s.current = domain.NewPortfolio(s.initialCash)
		s.log.Info().Float64("cash", s.initialCash).Msg("Fresh portfolio initialized")
		return s.persistLocked()
	}

	s.current = &domain.Portfolio{Positions: positions, Cash: cash}
	s.log.Info().
		Int("positions", len(positions)).
		Float64("cash", cash).
		Msg("Portfolio restored from tables")
	return nil
}

// BeginCycle rewinds the book to the newest snapshot before asOf and
// stamps the new cycle date. Re-running a cycle for the same date is
// therefore idempotent. With no prior snapshot the in-memory state
// carries forward.
func (s *Service) BeginCycle(asOf time.Time) (*domain.Portfolio, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prior, err := s.snapshots.LatestBefore(asOf)
	if err != nil {
		return nil, fmt.Errorf("failed to load prior snapshot: %w", err)
	}
	if prior != nil {
		s.current = prior
	}
	s.current.AsOf = asOf

	if err := s.persistLocked(); err != nil {
		return nil, err
	}

	s.log.Debug().
		Str("as_of", asOf.Format(domain.DateFormat)).
		Int("positions", len(s.current.Positions)).
		Msg("Cycle portfolio loaded")
	return s.copyLocked(), nil
}

// Current returns a deep copy of the live portfolio, safe to read
// concurrently with cycle writes.
func (s *Service) Current() *domain.Portfolio {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.copyLocked()
}

// ApplyBuy opens a position and deducts its cost from cash. The stored
// position is a copy of the argument.
func (s *Service) ApplyBuy(pos *domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.current.Positions[pos.Symbol]; held {
		return fmt.Errorf("position %s already held", pos.Symbol)
	}

	cost := float64(pos.Quantity) * pos.EntryPrice
	if cost > s.current.Cash {
		return fmt.Errorf("insufficient cash for %s: need %.0f, have %.0f",
			pos.Symbol, cost, s.current.Cash)
	}

	clone := *pos
	if clone.CurrentPrice == 0 {
		clone.CurrentPrice = clone.EntryPrice
	}
	s.current.Positions[clone.Symbol] = &clone
	s.current.Cash -= cost

	if err := s.positions.Upsert(&clone); err != nil {
		return err
	}
	if err := s.positions.SetCash(s.current.Cash); err != nil {
		return err
	}

	s.log.Info().
		Str("symbol", clone.Symbol).
		Int64("quantity", clone.Quantity).
		Float64("entry", clone.EntryPrice).
		Float64("cash", s.current.Cash).
		Msg("Position opened")
	return nil
}

// ApplySell closes a position at the given price, credits the proceeds
// to cash and returns the closed position.
func (s *Service) ApplySell(symbol string, price float64, asOf time.Time) (*domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pos, held := s.current.Positions[symbol]
	if !held {
		return nil, fmt.Errorf("position %s not held", symbol)
	}

	closed := *pos
	closed.CurrentPrice = price
	closed.LastUpdated = asOf

	s.current.Cash += float64(closed.Quantity) * price
	delete(s.current.Positions, symbol)

	if err := s.positions.Delete(symbol); err != nil {
		return nil, err
	}
	if err := s.positions.SetCash(s.current.Cash); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("symbol", symbol).
		Int64("quantity", closed.Quantity).
		Float64("exit", price).
		Float64("cash", s.current.Cash).
		Msg("Position closed")
	return &closed, nil
}

// MarkPrices updates held positions to the latest closes. Symbols
// absent from prices keep their last known value.
func (s *Service) MarkPrices(prices map[string]float64, asOf time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for symbol, pos := range s.current.Positions {
		price, ok := prices[symbol]
		if !ok || price <= 0 {
			continue
		}
		pos.CurrentPrice = price
		pos.LastUpdated = asOf
		if err := s.positions.UpdatePrice(symbol, price, asOf); err != nil {
			return err
		}
	}
	if !asOf.IsZero() {
		s.current.AsOf = asOf
	}
	return nil
}

// Snapshot persists the current state under its cycle date.
func (s *Service) Snapshot() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshots.Save(s.current)
}

// BuildRiskModel estimates the cycle's return/covariance model over the
// configured correlation window and retains it for the cycle.
func (s *Service) BuildRiskModel(histories []*domain.PriceHistory, asOf time.Time) *risk.Model {
	model := risk.NewModel(histories, s.cfg.Risk.CorrelationWindow, asOf)

	s.mu.Lock()
	s.model = model
	s.mu.Unlock()

	s.log.Debug().
		Str("as_of", asOf.Format(domain.DateFormat)).
		Int("matrix_symbols", len(model.Symbols())).
		Msg("Risk model rebuilt")
	return model
}

// RiskModel returns the model from the latest BuildRiskModel, nil
// before the first cycle.
func (s *Service) RiskModel() *risk.Model {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.model
}

// PositionView is a position enriched with derived numbers for the API.
type PositionView struct {
	domain.Position
	MarketValue      float64 `json:"market_value"`
	Weight           float64 `json:"weight"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	UnrealizedPnLPct float64 `json:"unrealized_pnl_pct"`
}

// Summary is the read-only portfolio state served over the API.
type Summary struct {
	AsOf          time.Time          `json:"as_of"`
	Cash          float64            `json:"cash"`
	Invested      float64            `json:"invested"`
	Equity        float64            `json:"equity"`
	SectorWeights map[string]float64 `json:"sector_weights"`
	Positions     []PositionView     `json:"positions"`
}

// Summary computes the API view of the current portfolio.
func (s *Service) Summary() Summary {
	p := s.Current()

	equity := p.Equity()
	summary := Summary{
		AsOf:          p.AsOf,
		Cash:          p.Cash,
		Equity:        equity,
		SectorWeights: p.SectorWeights(),
		Positions:     make([]PositionView, 0, len(p.Positions)),
	}

	for _, symbol := range p.Symbols() {
		pos := p.Positions[symbol]
		view := PositionView{
			Position:    *pos,
			MarketValue: pos.MarketValue(),
			Weight:      p.Weight(symbol),
		}
		view.UnrealizedPnL = (pos.CurrentPrice - pos.EntryPrice) * float64(pos.Quantity)
		if pos.EntryPrice > 0 {
			view.UnrealizedPnLPct = (pos.CurrentPrice/pos.EntryPrice - 1) * 100
		}
		summary.Invested += view.MarketValue
		summary.Positions = append(summary.Positions, view)
	}

	return summary
}

// copyLocked deep-copies the current portfolio. Callers hold s.mu.
func (s *Service) copyLocked() *domain.Portfolio {
	clone := &domain.Portfolio{
		Positions: make(map[string]*domain.Position, len(s.current.Positions)),
		Cash:      s.current.Cash,
		AsOf:      s.current.AsOf,
	}
	for symbol, pos := range s.current.Positions {
		p := *pos
		clone.Positions[symbol] = &p
	}
	return clone
}

// persistLocked rewrites the tables from the in-memory state. Callers
// hold s.mu.
func (s *Service) persistLocked() error {
	if err := s.positions.ReplaceAll(s.current.Positions); err != nil {
		return err
	}
	return s.positions.SetCash(s.current.Cash)
}
