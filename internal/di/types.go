// Package di wires the application together: databases, repositories,
// services and background jobs, in that order. The Container is the
// single source of truth for service instances and is handed to the
// HTTP layer.
package di

import (
	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/database"
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

// Container holds all application dependencies.
type Container struct {
	// Databases. Each one is SQLite with profile-specific PRAGMAs.
	UniverseDB  *database.DB // securities and per-symbol context facts
	HistoryDB   *database.DB // daily price bars
	SignalsDB   *database.DB // classified signal history
	PortfolioDB *database.DB // paper book state and snapshots
	BacktestDB  *database.DB // append-only backtest runs and trades
	AlertsDB    *database.DB // raised alerts
	ConfigDB    *database.DB // runtime settings

	// Strategy is the merged strategy configuration: built-in defaults,
	// then the YAML file, then runtime setting overrides.
	Strategy *config.StrategyConfig

	// Event bus connecting the pipeline to alerting and streams.
	Bus *events.Bus

	// Repositories.
	Securities *universe.SecurityRepository
	Facts      *universe.FactsRepository
	Bars       *history.BarRepository
	Signals    *signals.Repository
	Positions  *portfolio.PositionRepository
	Snapshots  *portfolio.SnapshotStore
	Backtests  *backtest.Repository
	Alerts     *alerts.Repository
	Settings   *settings.Repository

	// Services.
	Calendar        *marketcal.Service
	SettingsService *settings.Service
	UniverseService *universe.Service
	HistoryService  *history.Service
	MarketContext   *marketctx.Service
	Scorer          *scoring.Scorer
	Classifier      *signals.Classifier
	RiskManager     *risk.Manager
	Portfolio       *portfolio.Service
	Optimization    *optimization.Service
	Backtest        *backtest.Service
	AlertService    *alerts.Service
	AlertStreamer   *alerts.Streamer

	// Reliability.
	Backups      *reliability.BackupService
	CloudBackups *reliability.CloudBackupService // nil unless a bucket is configured
	Restore      *reliability.RestoreService
}

// Close closes every database. Call on shutdown after the scheduler and
// HTTP server have stopped.
func (c *Container) Close() {
	for _, db := range c.Databases() {
		if db != nil {
			db.Close()
		}
	}
}

// Databases returns every open database, in a stable order.
func (c *Container) Databases() []*database.DB {
	return []*database.DB{
		c.UniverseDB,
		c.HistoryDB,
		c.SignalsDB,
		c.PortfolioDB,
		c.BacktestDB,
		c.AlertsDB,
		c.ConfigDB,
	}
}
