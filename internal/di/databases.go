package di

import (
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/database"
	"github.com/quangtd/vnsentry/internal/modules/alerts"
	"github.com/quangtd/vnsentry/internal/modules/backtest"
	"github.com/quangtd/vnsentry/internal/modules/history"
	"github.com/quangtd/vnsentry/internal/modules/portfolio"
	"github.com/quangtd/vnsentry/internal/modules/settings"
	"github.com/quangtd/vnsentry/internal/modules/signals"
	"github.com/quangtd/vnsentry/internal/modules/universe"
)

// InitializeDatabases opens the seven databases and applies each
// module's schema. On error every database opened so far is closed.
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	specs := []struct {
		name    string
		profile database.DatabaseProfile
		target  **database.DB
	}{
		{"universe", database.ProfileStandard, &container.UniverseDB},
		{"history", database.ProfileStandard, &container.HistoryDB},
		{"signals", database.ProfileStandard, &container.SignalsDB},
		{"portfolio", database.ProfileStandard, &container.PortfolioDB},
		{"backtest", database.ProfileLedger, &container.BacktestDB},
		{"alerts", database.ProfileStandard, &container.AlertsDB},
		{"config", database.ProfileStandard, &container.ConfigDB},
	}

	for _, spec := range specs {
		db, err := database.New(database.Config{
			Path:    filepath.Join(cfg.DataDir, spec.name+".db"),
			Profile: spec.profile,
			Name:    spec.name,
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize %s database: %w", spec.name, err)
		}
		*spec.target = db
	}

	schemas := []struct {
		name  string
		db    *database.DB
		apply func(*sql.DB) error
	}{
		{"universe", container.UniverseDB, universe.InitSchema},
		{"history", container.HistoryDB, history.InitSchema},
		{"signals", container.SignalsDB, signals.InitSchema},
		{"portfolio", container.PortfolioDB, portfolio.InitSchema},
		{"backtest", container.BacktestDB, backtest.InitSchema},
		{"alerts", container.AlertsDB, alerts.InitSchema},
		{"config", container.ConfigDB, settings.InitSchema},
	}

	for _, schema := range schemas {
		if err := schema.apply(schema.db.Conn()); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply %s schema: %w", schema.name, err)
		}
	}

	log.Info().Int("databases", len(specs)).Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}
