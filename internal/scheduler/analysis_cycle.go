package scheduler

import (
	"errors"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/events"
	"github.com/quangtd/vnsentry/internal/modules/alerts"
	"github.com/quangtd/vnsentry/internal/modules/history"
	"github.com/quangtd/vnsentry/internal/modules/marketcal"
	"github.com/quangtd/vnsentry/internal/modules/portfolio"
	"github.com/quangtd/vnsentry/internal/modules/risk"
	"github.com/quangtd/vnsentry/internal/modules/scoring"
	"github.com/quangtd/vnsentry/internal/modules/signals"
	"github.com/quangtd/vnsentry/internal/modules/universe"
)

// historyDepth is how many sessions of bars each symbol contributes to a
// cycle. A year of sessions covers every indicator window with margin.
const historyDepth = 250

// AnalysisCycleJob runs the post-close pipeline: score the active
// universe in parallel, classify, persist the day's signals, apply stop
// exits and new entries to the book, then raise alerts and snapshot.
//
// All bars are fetched up front; from there the cycle is pure
// computation. A symbol that cannot be scored is skipped with a logged
// reason and never aborts the batch.
type AnalysisCycleJob struct {
	log        zerolog.Logger
	cfg        *config.StrategyConfig
	calendar   *marketcal.Service
	securities *universe.SecurityRepository
	bars       *history.BarRepository
	scorer     *scoring.Scorer
	classifier *signals.Classifier
	signals    *signals.Repository
	book       *portfolio.Service
	risk       *risk.Manager
	alerts     *alerts.Service
	bus        *events.Bus
	workers    int
	running    atomic.Bool
}

// AnalysisCycleConfig holds the collaborators of the cycle job.
type AnalysisCycleConfig struct {
	Log        zerolog.Logger
	Strategy   *config.StrategyConfig
	Calendar   *marketcal.Service
	Securities *universe.SecurityRepository
	Bars       *history.BarRepository
	Scorer     *scoring.Scorer
	Classifier *signals.Classifier
	Signals    *signals.Repository
	Portfolio  *portfolio.Service
	Risk       *risk.Manager
	Alerts     *alerts.Service
	Bus        *events.Bus
	Workers    int // scoring fan-out width, 0 = NumCPU
}

// NewAnalysisCycleJob creates the analysis cycle job.
func NewAnalysisCycleJob(cfg AnalysisCycleConfig) *AnalysisCycleJob {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &AnalysisCycleJob{
		log:        cfg.Log.With().Str("job", "analysis_cycle").Logger(),
		cfg:        cfg.Strategy,
		calendar:   cfg.Calendar,
		securities: cfg.Securities,
		bars:       cfg.Bars,
		scorer:     cfg.Scorer,
		classifier: cfg.Classifier,
		signals:    cfg.Signals,
		book:       cfg.Portfolio,
		risk:       cfg.Risk,
		alerts:     cfg.Alerts,
		bus:        cfg.Bus,
		workers:    workers,
	}
}

// Name returns the job name.
func (j *AnalysisCycleJob) Name() string {
	return "analysis_cycle"
}

// Run executes the cycle for the current session.
func (j *AnalysisCycleJob) Run() error {
	return j.RunFor(time.Now())
}

// RunFor executes the cycle for the session containing now. Re-running
// a date is idempotent: the book rewinds to the prior day's snapshot
// before any trade is applied.
func (j *AnalysisCycleJob) RunFor(now time.Time) error {
	if !j.running.CompareAndSwap(false, true) {
		j.log.Warn().Msg("Analysis cycle already running, skipping")
		return nil
	}
	defer j.running.Store(false)

	if !j.calendar.IsTradingDay(now) {
		j.log.Debug().Msg("Not a trading day, skipping analysis cycle")
		return nil
	}

	asOf := j.sessionDate(now)
	start := time.Now()
	j.log.Info().Str("as_of", asOf.Format(domain.DateFormat)).Msg("Starting analysis cycle")

	coverage, err := j.securities.GetAllActive()
	if err != nil {
		return fmt.Errorf("failed to load universe: %w", err)
	}
	if len(coverage) == 0 {
		j.log.Warn().Msg("Universe is empty, nothing to score")
		return nil
	}

	book, err := j.book.BeginCycle(asOf)
	if err != nil {
		return fmt.Errorf("failed to begin cycle: %w", err)
	}

	histories, unreadable := j.loadHistories(coverage, book, asOf)

	if err := j.book.MarkPrices(lastCloses(histories), asOf); err != nil {
		return fmt.Errorf("failed to mark prices: %w", err)
	}

	model := j.buildRiskModel(histories, asOf)

	batch, unscored := j.scoreUniverse(coverage, histories, asOf)

	if err := j.signals.SaveBatch(batch); err != nil {
		return fmt.Errorf("failed to persist signals: %w", err)
	}

	exits := j.applyStopExits(asOf, histories)
	entries := j.applyEntries(batch, model, asOf)

	summary := j.risk.Summarize(j.book.Current(), model)
	j.raiseAlerts(batch, histories, summary)

	if err := j.book.Snapshot(); err != nil {
		return fmt.Errorf("failed to snapshot portfolio: %w", err)
	}

	skipped := unscored + len(unreadable)
	duration := time.Since(start)

	j.bus.Emit(events.CycleCompleted, "scheduler", map[string]interface{}{
		"as_of":    asOf.Format(domain.DateFormat),
		"universe": len(coverage),
		"signals":  len(batch),
		"skipped":  skipped,
		"entries":  entries,
		"exits":    exits,
		"duration": duration.String(),
	})

	j.log.Info().
		Str("as_of", asOf.Format(domain.DateFormat)).
		Int("universe", len(coverage)).
		Int("signals", len(batch)).
		Int("skipped", skipped).
		Int("entries", entries).
		Int("exits", exits).
		Dur("duration", duration).
		Msg("Analysis cycle completed")

	return nil
}

// sessionDate canonicalizes a wall-clock instant to its session date,
// midnight UTC, matching how bars and signals are keyed.
func (j *AnalysisCycleJob) sessionDate(now time.Time) time.Time {
	local := now.In(j.calendar.Location())
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// loadHistories pre-fetches bars for every active symbol, plus any held
// symbol that has dropped out of the universe; the book still needs its
// marks and stop checks. Per-symbol failures are recorded, not fatal.
func (j *AnalysisCycleJob) loadHistories(coverage []universe.Security, book *domain.Portfolio, asOf time.Time) (map[string]*domain.PriceHistory, map[string]error) {
	symbols := make([]string, 0, len(coverage)+len(book.Positions))
	active := make(map[string]bool, len(coverage))
	for _, sec := range coverage {
		symbols = append(symbols, sec.Symbol)
		active[sec.Symbol] = true
	}
	for _, symbol := range book.Symbols() {
		if !active[symbol] {
			symbols = append(symbols, symbol)
		}
	}

	histories := make(map[string]*domain.PriceHistory, len(symbols))
	unreadable := make(map[string]error)
	for _, symbol := range symbols {
		h, err := j.bars.GetHistoryAsOf(symbol, asOf, historyDepth)
		if err != nil {
			j.log.Error().Err(err).Str("symbol", symbol).Msg("History load failed, symbol skipped")
			unreadable[symbol] = err
			continue
		}
		if h.Len() == 0 {
			continue
		}
		histories[symbol] = h
	}
	return histories, unreadable
}

// lastCloses maps each loaded symbol to its most recent close.
func lastCloses(histories map[string]*domain.PriceHistory) map[string]float64 {
	prices := make(map[string]float64, len(histories))
	for symbol, h := range histories {
		prices[symbol] = h.Last().Close
	}
	return prices
}

func (j *AnalysisCycleJob) buildRiskModel(histories map[string]*domain.PriceHistory, asOf time.Time) *risk.Model {
	symbols := make([]string, 0, len(histories))
	for symbol := range histories {
		symbols = append(symbols, symbol)
	}
	sort.Strings(symbols)

	ordered := make([]*domain.PriceHistory, 0, len(symbols))
	for _, symbol := range symbols {
		ordered = append(ordered, histories[symbol])
	}
	return j.book.BuildRiskModel(ordered, asOf)
}

type scoreJob struct {
	index int
	sec   universe.Security
}

type scoreResult struct {
	index  int
	signal *domain.Signal
	err    error
}

// scoreUniverse fans symbol scoring out across the worker pool. Symbols
// share no state at this stage, so the only synchronization is the
// channel pair. Results keep universe order.
func (j *AnalysisCycleJob) scoreUniverse(coverage []universe.Security, histories map[string]*domain.PriceHistory, asOf time.Time) ([]*domain.Signal, int) {
	jobs := make(chan scoreJob, len(coverage))
	results := make(chan scoreResult, len(coverage))

	workers := j.workers
	if len(coverage) < workers {
		workers = len(coverage)
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				sig, err := j.scoreOne(job.sec, histories[job.sec.Symbol], asOf)
				results <- scoreResult{index: job.index, signal: sig, err: err}
			}
		}()
	}

	for idx, sec := range coverage {
		jobs <- scoreJob{index: idx, sec: sec}
	}
	close(jobs)

	wg.Wait()
	close(results)

	ordered := make([]*domain.Signal, len(coverage))
	skipped := 0
	for res := range results {
		if res.err != nil {
			skipped++
			symbol := coverage[res.index].Symbol
			var short *domain.InsufficientHistoryError
			if errors.As(res.err, &short) {
				j.log.Debug().Str("symbol", symbol).Int("have", short.Have).Int("need", short.Need).
					Msg("Symbol skipped, not enough history")
			} else {
				j.log.Warn().Err(res.err).Str("symbol", symbol).Msg("Symbol skipped, scoring failed")
			}
			continue
		}
		ordered[res.index] = res.signal
	}

	batch := make([]*domain.Signal, 0, len(coverage))
	for _, sig := range ordered {
		if sig != nil {
			batch = append(batch, sig)
		}
	}
	return batch, skipped
}

// scoreOne produces the signal for a single symbol, or the error that
// skips it this cycle.
func (j *AnalysisCycleJob) scoreOne(sec universe.Security, h *domain.PriceHistory, asOf time.Time) (*domain.Signal, error) {
	if h == nil {
		return nil, &domain.InsufficientHistoryError{
			Symbol: sec.Symbol,
			Date:   asOf,
			Have:   0,
			Need:   j.cfg.Scoring.Lookback,
		}
	}
	score, err := j.scorer.Score(h, asOf)
	if err != nil {
		return nil, err
	}
	return j.classifier.Classify(score, sec.Sector, h), nil
}

// applyStopExits closes every held position whose stop traded during the
// session. A held symbol with no bar today is a data gap: the position
// is held through it, never force-closed.
func (j *AnalysisCycleJob) applyStopExits(asOf time.Time, histories map[string]*domain.PriceHistory) int {
	book := j.book.Current()
	exits := 0
	for _, symbol := range book.Symbols() {
		pos := book.Positions[symbol]

		bar, ok := sessionBar(histories[symbol], asOf)
		if !ok {
			j.log.Warn().Str("symbol", symbol).Str("date", asOf.Format(domain.DateFormat)).
				Msg("No bar for held position, holding through gap")
			continue
		}
		if bar.Low > pos.StopPrice {
			continue
		}

		j.log.Info().
			Str("symbol", symbol).
			Float64("stop", pos.StopPrice).
			Float64("session_low", bar.Low).
			Msg("Stop triggered")
		if _, err := j.book.ApplySell(symbol, pos.StopPrice, asOf); err != nil {
			j.log.Error().Err(err).Str("symbol", symbol).Msg("Stop exit failed")
			continue
		}
		exits++
	}
	return exits
}

// sessionBar returns the history's bar for the session date, if any.
func sessionBar(h *domain.PriceHistory, asOf time.Time) (domain.PriceBar, bool) {
	if h == nil || h.Len() == 0 {
		return domain.PriceBar{}, false
	}
	last := h.Last()
	if !last.Date.Equal(asOf) {
		return domain.PriceBar{}, false
	}
	return last, true
}

// applyEntries walks buy-side signals best first, letting the risk
// manager size each against the live book. A correlation replacement
// sells the displaced holding at its mark before the buy. Rejections
// are control flow; any other failure skips the candidate.
func (j *AnalysisCycleJob) applyEntries(batch []*domain.Signal, model *risk.Model, asOf time.Time) int {
	candidates := make([]*domain.Signal, 0, len(batch))
	for _, sig := range batch {
		if sig.Classification.IsBuySide() {
			candidates = append(candidates, sig)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].CompositeScore > candidates[b].CompositeScore
	})

	entries := 0
	for _, sig := range candidates {
		book := j.book.Current()

		proposal, err := j.risk.Evaluate(sig, book, model)
		if err != nil {
			var rejected *domain.PositionRejectedError
			if !errors.As(err, &rejected) {
				j.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("Entry evaluation failed")
			}
			continue
		}

		for _, displaced := range proposal.Replaces {
			held := book.Positions[displaced]
			if held == nil {
				continue
			}
			if _, err := j.book.ApplySell(displaced, held.CurrentPrice, asOf); err != nil {
				j.log.Error().Err(err).Str("symbol", displaced).Msg("Replacement sale failed")
			}
		}

		if err := j.book.ApplyBuy(proposal.Position); err != nil {
			j.log.Error().Err(err).Str("symbol", sig.Symbol).Msg("Entry failed")
			continue
		}
		entries++
	}
	return entries
}

// raiseAlerts runs the three alert evaluations. Alerting never fails a
// cycle; errors are logged and the cycle completes.
func (j *AnalysisCycleJob) raiseAlerts(batch []*domain.Signal, histories map[string]*domain.PriceHistory, summary risk.Summary) {
	values := make([]domain.Signal, 0, len(batch))
	for _, sig := range batch {
		values = append(values, *sig)
	}

	if _, err := j.alerts.EvaluateSignals(values, histories); err != nil {
		j.log.Error().Err(err).Msg("Signal alert evaluation failed")
	}
	if _, err := j.alerts.EvaluateRisk(summary); err != nil {
		j.log.Error().Err(err).Msg("Risk alert evaluation failed")
	}
	if _, err := j.alerts.EvaluateRotation(sectorAverages(batch), j.book.Current()); err != nil {
		j.log.Error().Err(err).Msg("Rotation alert evaluation failed")
	}
}

// sectorAverages computes the day's mean composite per sector from the
// in-memory batch; the cycle never reads back what it just wrote.
func sectorAverages(batch []*domain.Signal) map[string]float64 {
	sums := make(map[string]float64)
	counts := make(map[string]int)
	for _, sig := range batch {
		if sig.Sector == "" {
			continue
		}
		sums[sig.Sector] += sig.CompositeScore
		counts[sig.Sector]++
	}

	averages := make(map[string]float64, len(sums))
	for sector, sum := range sums {
		averages[sector] = sum / float64(counts[sector])
	}
	return averages
}
