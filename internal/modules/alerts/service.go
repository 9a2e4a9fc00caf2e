package alerts

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/events"
	"github.com/quangtd/vnsentry/internal/modules/risk"
	"github.com/quangtd/vnsentry/internal/modules/scoring"
)

// Service evaluates alert conditions and raises deduplicated alerts.
type Service struct {
	cfg  *config.StrategyConfig
	repo *Repository
	bus  *events.Bus
	log  zerolog.Logger
}

// NewService creates the alert service.
func NewService(cfg *config.StrategyConfig, repo *Repository, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		cfg:  cfg,
		repo: repo,
		bus:  bus,
		log:  log.With().Str("service", "alerts").Logger(),
	}
}

// EvaluateSignals raises strong-signal and breakout alerts from one
// classified batch. Histories are keyed by symbol and only consulted
// for breakout detection.
func (s *Service) EvaluateSignals(batch []domain.Signal, histories map[string]*domain.PriceHistory) ([]Alert, error) {
	var raised []Alert

	for _, sig := range batch {
		if sig.Classification == domain.StrongBuy || sig.Classification == domain.StrongSell {
			if sig.Confidence >= s.cfg.Alerts.StrongConfidence {
				severity := SeverityInfo
				if sig.Classification == domain.StrongSell {
					severity = SeverityWarning
				}
				msg := fmt.Sprintf("%s classified %s at confidence %.2f, score %.1f",
					sig.Symbol, sig.Classification, sig.Confidence, sig.CompositeScore)
				alert, err := s.raise(sig.Symbol, TypeStrongSignal, severity, msg)
				if err != nil {
					return raised, err
				}
				if alert != nil {
					raised = append(raised, *alert)
				}
			}
		}

		h := histories[sig.Symbol]
		if h == nil {
			continue
		}
		breakout := scoring.DetectBreakout(h, &s.cfg.Scoring)
		if breakout.Above && breakout.VolumeConfirmed {
			msg := fmt.Sprintf("%s closed above %d-day resistance %.0f on elevated volume",
				sig.Symbol, s.cfg.Scoring.ResistanceWindow, breakout.Resistance)
			alert, err := s.raise(sig.Symbol, TypeBreakout, SeverityInfo, msg)
			if err != nil {
				return raised, err
			}
			if alert != nil {
				raised = append(raised, *alert)
			}
		}
	}

	return raised, nil
}

// EvaluateRisk raises one warning per limit breach in the risk summary.
func (s *Service) EvaluateRisk(summary risk.Summary) ([]Alert, error) {
	var raised []Alert

	for _, breach := range summary.Breaches {
		var msg string
		switch domain.RejectReason(breach.Kind) {
		case domain.RejectPositionCap:
			msg = fmt.Sprintf("%s at %.1f%% of equity, position cap %.1f%%",
				breach.Name, breach.Value*100, breach.Limit*100)
		case domain.RejectSectorCap:
			msg = fmt.Sprintf("%s at %.1f%% of equity, sector cap %.1f%%",
				breach.Name, breach.Value*100, breach.Limit*100)
		case domain.RejectVolatility:
			msg = fmt.Sprintf("portfolio volatility %.1f%% over target %.1f%%",
				breach.Value*100, breach.Limit*100)
		case domain.RejectCorrelation:
			msg = fmt.Sprintf("%s correlation %.2f over limit %.2f",
				breach.Name, breach.Value, breach.Limit)
		default:
			msg = fmt.Sprintf("%s at %.4f, limit %.4f", breach.Name, breach.Value, breach.Limit)
		}

		alert, err := s.raise(breach.Name, TypeRiskWarning, SeverityWarning, msg)
		if err != nil {
			return raised, err
		}
		if alert != nil {
			raised = append(raised, *alert)
		}
	}

	return raised, nil
}

// EvaluateRotation compares each sector's average composite score
// against the portfolio's dominant sector and raises a rotation alert
// when another sector leads by the configured margin.
func (s *Service) EvaluateRotation(sectorScores map[string]float64, p *domain.Portfolio) ([]Alert, error) {
	dominant := dominantSector(p)
	if dominant == "" {
		return nil, nil
	}
	dominantScore, ok := sectorScores[dominant]
	if !ok {
		return nil, nil
	}

	sectors := make([]string, 0, len(sectorScores))
	for sector := range sectorScores {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)

	var raised []Alert
	for _, sector := range sectors {
		if sector == dominant {
			continue
		}
		lead := sectorScores[sector] - dominantScore
		if lead < s.cfg.Alerts.SectorRotationMargin {
			continue
		}
		msg := fmt.Sprintf("%s scoring %.1f points over %s, consider rotating",
			sector, lead, dominant)
		alert, err := s.raise(sector, TypeSectorRotation, SeverityInfo, msg)
		if err != nil {
			return raised, err
		}
		if alert != nil {
			raised = append(raised, *alert)
		}
	}

	return raised, nil
}

// Active returns all unexpired alerts, newest first.
func (s *Service) Active() ([]Alert, error) {
	return s.repo.Active(time.Now())
}

// Sweep deletes expired alerts.
func (s *Service) Sweep() (int64, error) {
	return s.repo.PurgeExpired(time.Now())
}

// raise persists and publishes one alert unless an unexpired alert for
// the same (symbol, type) pair already exists. A suppressed alert
// returns (nil, nil).
func (s *Service) raise(symbol string, alertType Type, severity Severity, message string) (*Alert, error) {
	now := time.Now().UTC()

	exists, err := s.repo.HasUnexpired(symbol, alertType, now)
	if err != nil {
		return nil, err
	}
	if exists {
		s.log.Debug().
			Str("symbol", symbol).
			Str("type", string(alertType)).
			Msg("Alert suppressed, still in cooldown")
		return nil, nil
	}

	alert := &Alert{
		ID:        uuid.NewString(),
		Symbol:    symbol,
		Type:      alertType,
		Severity:  severity,
		Message:   message,
		CreatedAt: now,
		ExpiresAt: now.Add(time.Duration(s.cfg.Alerts.CooldownMinutes) * time.Minute),
	}
	if err := s.repo.Save(alert); err != nil {
		return nil, err
	}

	s.bus.Emit(events.AlertRaised, "alerts", map[string]interface{}{
		"alert": *alert,
	})
	s.log.Info().
		Str("symbol", symbol).
		Str("type", string(alertType)).
		Str("severity", string(severity)).
		Msg(message)

	return alert, nil
}

// dominantSector returns the heaviest sector by portfolio weight,
// alphabetically first on a tie, or "" for an empty portfolio.
func dominantSector(p *domain.Portfolio) string {
	weights := p.SectorWeights()
	sectors := make([]string, 0, len(weights))
	for sector := range weights {
		sectors = append(sectors, sector)
	}
	sort.Strings(sectors)

	best := ""
	bestWeight := 0.0
	for _, sector := range sectors {
		if weights[sector] > bestWeight {
			best = sector
			bestWeight = weights[sector]
		}
	}
	return best
}
