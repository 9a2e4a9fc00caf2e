package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/database"
	"github.com/quangtd/vnsentry/internal/domain"
	"github.com/quangtd/vnsentry/internal/modules/history"
	"github.com/quangtd/vnsentry/internal/modules/signals"
)

const (
	maintenanceTimeout = 5 * time.Minute

	// vacuumFreePages is the freelist size above which a full VACUUM is
	// worth its cost. Below it the nightly checkpoint is enough.
	vacuumFreePages = 1000
)

// MaintenanceJob keeps the databases healthy: nightly integrity checks,
// WAL truncation, vacuuming when fragmentation warrants it, and retiring
// rows beyond the retention horizon.
type MaintenanceJob struct {
	log       zerolog.Logger
	databases []*database.DB
	bars      *history.BarRepository
	signals   *signals.Repository
	retention int // years; 0 keeps everything
}

// MaintenanceConfig holds the maintenance job collaborators.
type MaintenanceConfig struct {
	Log            zerolog.Logger
	Databases      []*database.DB
	Bars           *history.BarRepository
	Signals        *signals.Repository
	RetentionYears int
}

// NewMaintenanceJob creates the maintenance job.
func NewMaintenanceJob(cfg MaintenanceConfig) *MaintenanceJob {
	return &MaintenanceJob{
		log:       cfg.Log.With().Str("job", "maintenance").Logger(),
		databases: cfg.Databases,
		bars:      cfg.Bars,
		signals:   cfg.Signals,
		retention: cfg.RetentionYears,
	}
}

// Name returns the job name.
func (j *MaintenanceJob) Name() string {
	return "maintenance"
}

// Run checks and compacts every registered database. A failing database
// is reported but never stops the others from being serviced.
func (j *MaintenanceJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), maintenanceTimeout)
	defer cancel()

	failures := 0
	for _, db := range j.databases {
		if err := j.service(ctx, db); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("Database maintenance failed")
			failures++
		}
	}

	j.prune()

	if failures > 0 {
		return fmt.Errorf("maintenance finished with %d failing databases", failures)
	}

	j.log.Info().Int("databases", len(j.databases)).Msg("Maintenance completed")
	return nil
}

func (j *MaintenanceJob) service(ctx context.Context, db *database.DB) error {
	if err := db.HealthCheck(ctx); err != nil {
		return err
	}
	if err := db.WALCheckpoint("TRUNCATE"); err != nil {
		return err
	}

	stats, err := db.GetStats()
	if err != nil {
		return err
	}
	if stats.FreelistCount > vacuumFreePages {
		if err := db.Vacuum(); err != nil {
			return err
		}
		j.log.Info().
			Str("database", db.Name()).
			Int64("free_pages", stats.FreelistCount).
			Msg("Database vacuumed")
	}

	return nil
}

// prune retires bars and signals older than the retention horizon.
func (j *MaintenanceJob) prune() {
	if j.retention <= 0 {
		return
	}
	cutoff := time.Now().AddDate(-j.retention, 0, 0)

	if j.bars != nil {
		if rows, err := j.bars.DeleteBefore(cutoff); err != nil {
			j.log.Error().Err(err).Msg("Bar retention prune failed")
		} else if rows > 0 {
			j.log.Info().Int64("rows", rows).Str("cutoff", cutoff.Format(domain.DateFormat)).Msg("Old bars pruned")
		}
	}
	if j.signals != nil {
		if rows, err := j.signals.DeleteBefore(cutoff); err != nil {
			j.log.Error().Err(err).Msg("Signal retention prune failed")
		} else if rows > 0 {
			j.log.Info().Int64("rows", rows).Str("cutoff", cutoff.Format(domain.DateFormat)).Msg("Old signals pruned")
		}
	}
}
