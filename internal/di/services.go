package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/events"
	"github.com/quangtd/vnsentry/internal/modules/alerts"
	"github.com/quangtd/vnsentry/internal/modules/backtest"
	"github.com/quangtd/vnsentry/internal/modules/history"
	"github.com/quangtd/vnsentry/internal/modules/marketcal"
	"github.com/quangtd/vnsentry/internal/modules/marketctx"
	"github.com/quangtd/vnsentry/internal/modules/optimization"
	"github.com/quangtd/vnsentry/internal/modules/portfolio"
	"github.com/quangtd/vnsentry/internal/modules/risk"
	"github.com/quangtd/vnsentry/internal/modules/scoring"
	"github.com/quangtd/vnsentry/internal/modules/settings"
	"github.com/quangtd/vnsentry/internal/modules/signals"
	"github.com/quangtd/vnsentry/internal/modules/universe"
	"github.com/quangtd/vnsentry/internal/reliability"
)

// InitializeServices creates the business logic layer. The strategy
// configuration is resolved here: built-in defaults, then the YAML
// file, then runtime setting overrides from config.db.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	container.Bus = events.NewBus(log)
	container.Calendar = marketcal.NewService()
	container.SettingsService = settings.NewService(container.Settings, container.Bus, log)

	strategy, err := config.LoadStrategy(cfg.StrategyPath)
	if err != nil {
		return fmt.Errorf("failed to load strategy config: %w", err)
	}
	if err := container.SettingsService.ApplyOverrides(strategy); err != nil {
		return fmt.Errorf("failed to apply setting overrides: %w", err)
	}
	container.Strategy = strategy

	container.UniverseService = universe.NewService(container.Securities, container.Facts, container.Bus, log)
	container.HistoryService = history.NewService(container.Bars, container.Bus, log)

	container.MarketContext = marketctx.NewService(
		marketctx.NewAdjuster(strategy.Context),
		container.Securities,
		container.Facts,
		settingsMarketState{container.SettingsService},
		log,
	)

	container.Scorer = scoring.NewScorer(strategy, container.MarketContext, log)
	container.Classifier = signals.NewClassifier(strategy)
	container.RiskManager = risk.NewManager(strategy, log)

	container.Portfolio = portfolio.NewService(
		strategy,
		container.Positions,
		container.Snapshots,
		strategy.Backtest.InitialCapital,
		log,
	)
	if err := container.Portfolio.Load(); err != nil {
		return fmt.Errorf("failed to load portfolio state: %w", err)
	}

	container.Optimization = optimization.NewService(strategy, container.Signals, container.Portfolio, container.RiskManager, log)
	container.Backtest = backtest.NewService(strategy, container.Securities, container.Bars, container.Backtests, container.Calendar, container.Bus, log)

	container.AlertService = alerts.NewService(strategy, container.Alerts, container.Bus, log)
	container.AlertStreamer = alerts.NewStreamer(container.Bus, log)

	container.Backups = reliability.NewBackupService(
		container.Databases(),
		filepath.Join(cfg.DataDir, "backups"),
		cfg.Backup.RetentionDays,
		log,
	)
	container.Restore = reliability.NewRestoreService(cfg.DataDir, log)

	if cfg.Backup.Enabled {
		client, err := reliability.NewS3Client(cfg.Backup, log)
		if err != nil {
			return fmt.Errorf("failed to create backup storage client: %w", err)
		}
		container.CloudBackups = reliability.NewCloudBackupService(client, container.Backups, cfg.DataDir, log)
	}

	log.Info().Msg("Services initialized")
	return nil
}
