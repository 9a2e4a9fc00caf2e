package optimization

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/modules/portfolio"
	"github.com/quangtd/vnsentry/internal/modules/risk"
	"github.com/quangtd/vnsentry/internal/modules/signals"
)

// Service assembles optimizer inputs from the latest signal batch and
// turns the resulting allocation into a rebalance plan against the
// current portfolio.
type Service struct {
	optimizer *Optimizer
	signals   *signals.Repository
	portfolio *portfolio.Service
	manager   *risk.Manager
	log       zerolog.Logger
}

// NewService creates a new optimization service.
func NewService(cfg *config.StrategyConfig, signalRepo *signals.Repository, portfolioService *portfolio.Service, manager *risk.Manager, log zerolog.Logger) *Service {
	return &Service{
		optimizer: NewOptimizer(cfg, log),
		signals:   signalRepo,
		portfolio: portfolioService,
		manager:   manager,
		log:       log.With().Str("service", "optimization").Logger(),
	}
}

// Plan couples an allocation with the orders realizing it.
type Plan struct {
	Result *Result      `json:"result"`
	Orders []risk.Order `json:"orders"`
}

// RunLatest optimizes over the latest signal per symbol and plans the
// rebalance. It requires a risk model from the current cycle.
func (s *Service) RunLatest() (*Plan, error) {
	model := s.portfolio.RiskModel()
	if model == nil {
		return nil, fmt.Errorf("no risk model built for the current cycle")
	}

	latest, err := s.signals.Latest()
	if err != nil {
		return nil, fmt.Errorf("failed to load latest signals: %w", err)
	}

	req := Request{AsOf: model.AsOf(), Candidates: latest}
	if date, err := s.signals.LatestDate(); err == nil && date != nil {
		if averages, err := s.signals.SectorAverages(*date); err == nil {
			req.SectorScores = averages
		}
	}

	result, err := s.optimizer.Run(req, model)
	if err != nil {
		return nil, err
	}

	prices := make(map[string]float64, len(latest))
	for _, sig := range latest {
		if sig.EntryPrice > 0 {
			prices[sig.Symbol] = sig.EntryPrice
		}
	}

	current := s.portfolio.Current()
	orders := s.manager.PlanRebalance(current, result.Weights, prices)

	s.log.Info().
		Int("candidates", len(latest)).
		Int("allocated", len(result.Weights)).
		Int("orders", len(orders)).
		Msg("Rebalance planned")
	return &Plan{Result: result, Orders: orders}, nil
}
