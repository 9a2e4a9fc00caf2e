package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/events"
	"github.com/quangtd/vnsentry/internal/modules/marketcal"
	"github.com/quangtd/vnsentry/internal/modules/scoring"
	"github.com/quangtd/vnsentry/internal/modules/signals"
	"github.com/quangtd/vnsentry/internal/modules/universe"
)

// SecuritySource lists the securities eligible for a run.
type SecuritySource interface {
	GetAllActive() ([]universe.Security, error)
}

// BarSource supplies the price panel for a run.
type BarSource interface {
	GetRange(symbol string, from, to time.Time) (*domain.PriceHistory, error)
}

// neutralContext scores without the market-context layer. Historical
// context facts are not archived, so replays assume a multiplier of 1.
type neutralContext struct{}

func (neutralContext) MultiplierFor(string, time.Time) (float64, error) {
	return 1.0, nil
}

// historyPreroll is the calendar-day cushion fetched before the start
// date so the correlation window and scoring lookback are warm on the
// first simulated day.
const historyPreroll = 400

// Params configure one backtest request. An empty symbol list means
// the whole active universe.
type Params struct {
	Start          time.Time
	End            time.Time
	Symbols        []string
	InitialCapital float64
}

// Service prepares the inputs for a run, drives the engine and
// persists the result.
type Service struct {
	cfg        *config.StrategyConfig
	engine     *Engine
	scorer     *scoring.Scorer
	classifier *signals.Classifier
	securities SecuritySource
	bars       BarSource
	repo       *Repository
	bus        *events.Bus
	log        zerolog.Logger
}

// NewService creates a backtest service.
func NewService(cfg *config.StrategyConfig, securities SecuritySource, bars BarSource,
	repo *Repository, calendar *marketcal.Service, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		cfg:        cfg,
		engine:     NewEngine(cfg, calendar, log),
		scorer:     scoring.NewScorer(cfg, neutralContext{}, log),
		classifier: signals.NewClassifier(cfg),
		securities: securities,
		bars:       bars,
		repo:       repo,
		bus:        bus,
		log:        log.With().Str("service", "backtest").Logger(),
	}
}

// Run loads the price panel, regenerates the signal stream for each
// day of the range and replays it through the engine. The run and its
// trade log are persisted before returning.
func (s *Service) Run(params Params) (*Output, error) {
	if params.End.Before(params.Start) {
		return nil, fmt.Errorf("backtest range ends before it starts")
	}

	active, err := s.securities.GetAllActive()
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}
	sectors := make(map[string]string, len(active))
	for _, sec := range active {
		sectors[sec.Symbol] = sec.Sector
	}

	symbols := params.Symbols
	if len(symbols) == 0 {
		for _, sec := range active {
			symbols = append(symbols, sec.Symbol)
		}
	}
	normalized := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		normalized = append(normalized, universe.NormalizeSymbol(symbol))
	}
	sort.Strings(normalized)

	from := params.Start.AddDate(0, 0, -historyPreroll)
	histories := make(map[string]*domain.PriceHistory, len(normalized))
	for _, symbol := range normalized {
		h, err := s.bars.GetRange(symbol, from, params.End)
		if err != nil {
			return nil, fmt.Errorf("failed to load history for %s: %w", symbol, err)
		}
		if h == nil || h.Len() == 0 {
			s.log.Warn().Str("symbol", symbol).Msg("No price history, symbol skipped")
			continue
		}
		histories[symbol] = h
	}
	if len(histories) == 0 {
		return nil, fmt.Errorf("no price history for any requested symbol")
	}

	stream := s.generateSignals(histories, sectors, params.Start, params.End)

	out, err := s.engine.Run(Input{
		RunID:          uuid.NewString(),
		Start:          params.Start,
		End:            params.End,
		InitialCapital: params.InitialCapital,
		Histories:      histories,
		Signals:        stream,
	})
	if err != nil {
		return nil, err
	}

	out.Run.CreatedAt = time.Now().UTC()
	if err := s.repo.SaveRun(&out.Run); err != nil {
		return nil, err
	}
	if err := s.repo.SaveTrades(out.Trades); err != nil {
		return nil, err
	}

	s.bus.Emit(events.BacktestCompleted, "backtest", map[string]interface{}{
		"run_id":       out.Run.ID,
		"trades":       out.Run.Trades,
		"total_return": out.Run.TotalReturn,
	})
	s.log.Info().
		Str("run_id", out.Run.ID).
		Int("symbols", len(histories)).
		Int("signals", len(stream)).
		Msg("Backtest persisted")
	return out, nil
}

// GetRun returns a stored run with its trade log.
func (s *Service) GetRun(id string) (*Run, []Trade, error) {
	run, err := s.repo.GetRun(id)
	if err != nil || run == nil {
		return nil, nil, err
	}
	trades, err := s.repo.TradesByRun(id)
	if err != nil {
		return nil, nil, err
	}
	return run, trades, nil
}

// ListRuns returns stored runs, newest first.
func (s *Service) ListRuns(limit int) ([]Run, error) {
	return s.repo.ListRuns(limit)
}

// generateSignals replays the scoring pipeline over each trading day of
// the range, seeing only the bars visible on that day. Symbols without
// a bar on a given day are not scored for it.
func (s *Service) generateSignals(histories map[string]*domain.PriceHistory, sectors map[string]string, start, end time.Time) []domain.Signal {
	_, days := indexBars(histories, start, end)

	symbols := make([]string, 0, len(histories))
	for symbol := range histories {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	var stream []domain.Signal
	for _, day := range days {
		key := day.Format(domain.DateFormat)
		for _, symbol := range symbols {
			view := histories[symbol].UpTo(day)
			if view.Len() == 0 || view.Last().Date.Format(domain.DateFormat) != key {
				continue
			}
			score, err := s.scorer.Score(view, day)
			if err != nil {
				continue
			}
			sig := s.classifier.Classify(score, sectors[symbol], view)
			stream = append(stream, *sig)
		}
	}
	return stream
}
