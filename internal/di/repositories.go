package di

import (
	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/modules/alerts"
	"github.com/quangtd/vnsentry/internal/modules/backtest"
	"github.com/quangtd/vnsentry/internal/modules/history"
	"github.com/quangtd/vnsentry/internal/modules/portfolio"
	"github.com/quangtd/vnsentry/internal/modules/settings"
	"github.com/quangtd/vnsentry/internal/modules/signals"
	"github.com/quangtd/vnsentry/internal/modules/universe"
)

// InitializeRepositories creates the data access layer on top of the
// open databases.
func InitializeRepositories(container *Container, log zerolog.Logger) {
	container.Securities = universe.NewSecurityRepository(container.UniverseDB.Conn(), log)
	container.Facts = universe.NewFactsRepository(container.UniverseDB.Conn(), log)
	container.Bars = history.NewBarRepository(container.HistoryDB.Conn(), log)
	container.Signals = signals.NewRepository(container.SignalsDB.Conn(), log)
	container.Positions = portfolio.NewPositionRepository(container.PortfolioDB.Conn(), log)
	container.Snapshots = portfolio.NewSnapshotStore(container.PortfolioDB.Conn(), log)
	container.Backtests = backtest.NewRepository(container.BacktestDB.Conn(), log)
	container.Alerts = alerts.NewRepository(container.AlertsDB.Conn(), log)
	container.Settings = settings.NewRepository(container.ConfigDB.Conn(), log)

	log.Debug().Msg("Repositories initialized")
}
