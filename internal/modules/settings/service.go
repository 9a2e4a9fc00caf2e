package settings

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/events"
)

// Keys recognized by the override layer. Anything else is rejected on
// write so typos do not silently do nothing.
const (
	KeyRiskPerTrade         = "risk.risk_per_trade"
	KeyPositionCap          = "risk.position_cap"
	KeySectorCap            = "risk.sector_cap"
	KeyCorrelationThreshold = "risk.correlation_threshold"
	KeyVolatilityTarget     = "risk.volatility_target"
	KeyScoringLookback      = "scoring.lookback"
	KeyCooldownMinutes      = "alerts.cooldown_minutes"
	KeyStrongConfidence     = "alerts.strong_confidence"
	KeyRiskFreeRate         = "optimization.risk_free_rate"
	KeyInitialCapital       = "backtest.initial_capital"
	KeyEarningsSeason       = "market.earnings_season"
	KeyPolicyUncertainty    = "market.policy_uncertainty"
)

type valueKind int

const (
	kindFloat valueKind = iota
	kindInt
	kindBool
)

var knownKeys = map[string]valueKind{
	KeyRiskPerTrade:         kindFloat,
	KeyPositionCap:          kindFloat,
	KeySectorCap:            kindFloat,
	KeyCorrelationThreshold: kindFloat,
	KeyVolatilityTarget:     kindFloat,
	KeyScoringLookback:      kindInt,
	KeyCooldownMinutes:      kindInt,
	KeyStrongConfidence:     kindFloat,
	KeyRiskFreeRate:         kindFloat,
	KeyInitialCapital:       kindFloat,
	KeyEarningsSeason:       kindBool,
	KeyPolicyUncertainty:    kindBool,
}

// Service validates setting writes, reports the market-wide flags and
// layers stored overrides onto the strategy calibration.
type Service struct {
	repo *Repository
	bus  *events.Bus
	log  zerolog.Logger
}

// NewService creates the settings service.
func NewService(repo *Repository, bus *events.Bus, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		bus:  bus,
		log:  log.With().Str("service", "settings").Logger(),
	}
}

// All returns every stored setting.
func (s *Service) All() (map[string]string, error) {
	return s.repo.GetAll()
}

// Set validates and stores one setting, then publishes the change.
func (s *Service) Set(key, value string) error {
	if err := validate(key, value); err != nil {
		return err
	}
	if err := s.repo.Set(key, value, nil); err != nil {
		return err
	}

	s.bus.Emit(events.SettingsChanged, "settings", map[string]interface{}{
		"key":   key,
		"value": value,
	})
	s.log.Info().Str("key", key).Str("value", value).Msg("Setting updated")
	return nil
}

// Delete removes one override, restoring the calibration default.
func (s *Service) Delete(key string) error {
	if _, ok := knownKeys[key]; !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	if err := s.repo.Delete(key); err != nil {
		return err
	}

	s.bus.Emit(events.SettingsChanged, "settings", map[string]interface{}{
		"key":     key,
		"deleted": true,
	})
	s.log.Info().Str("key", key).Msg("Setting deleted")
	return nil
}

// EarningsSeason reports the market-wide earnings season flag.
func (s *Service) EarningsSeason() bool {
	return s.flag(KeyEarningsSeason)
}

// PolicyUncertainty reports the market-wide policy uncertainty flag.
func (s *Service) PolicyUncertainty() bool {
	return s.flag(KeyPolicyUncertainty)
}

func (s *Service) flag(key string) bool {
	value, err := s.repo.GetBool(key, false)
	if err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Failed to read market flag")
		return false
	}
	return value
}

// ApplyOverrides layers every stored override onto cfg and re-validates
// the result. Absent keys leave the calibration value untouched.
func (s *Service) ApplyOverrides(cfg *config.StrategyConfig) error {
	floats := map[string]*float64{
		KeyRiskPerTrade:         &cfg.Risk.RiskPerTrade,
		KeyPositionCap:          &cfg.Risk.PositionCap,
		KeySectorCap:            &cfg.Risk.SectorCap,
		KeyCorrelationThreshold: &cfg.Risk.CorrelationThreshold,
		KeyVolatilityTarget:     &cfg.Risk.VolatilityTarget,
		KeyStrongConfidence:     &cfg.Alerts.StrongConfidence,
		KeyRiskFreeRate:         &cfg.Optimization.RiskFreeRate,
		KeyInitialCapital:       &cfg.Backtest.InitialCapital,
	}
	ints := map[string]*int{
		KeyScoringLookback: &cfg.Scoring.Lookback,
		KeyCooldownMinutes: &cfg.Alerts.CooldownMinutes,
	}

	for _, key := range sortedKeys(floats) {
		target := floats[key]
		value, err := s.repo.GetFloat(key, *target)
		if err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", key, err)
		}
		if value != *target {
			s.log.Info().Str("key", key).Float64("value", value).Msg("Strategy override applied")
		}
		*target = value
	}

	intKeys := make([]string, 0, len(ints))
	for key := range ints {
		intKeys = append(intKeys, key)
	}
	sort.Strings(intKeys)
	for _, key := range intKeys {
		target := ints[key]
		value, err := s.repo.GetInt(key, *target)
		if err != nil {
			return fmt.Errorf("failed to apply setting %s: %w", key, err)
		}
		if value != *target {
			s.log.Info().Str("key", key).Int("value", value).Msg("Strategy override applied")
		}
		*target = value
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("setting overrides produced an invalid calibration: %w", err)
	}
	return nil
}

func validate(key, value string) error {
	kind, ok := knownKeys[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}

	switch kind {
	case kindFloat, kindInt:
		if _, err := strconv.ParseFloat(value, 64); err != nil {
			return fmt.Errorf("setting %s wants a number, got %q", key, value)
		}
	case kindBool:
		switch value {
		case "true", "1", "yes", "on", "false", "0", "no", "off":
		default:
			return fmt.Errorf("setting %s wants a boolean, got %q", key, value)
		}
	}
	return nil
}

func sortedKeys(m map[string]*float64) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
