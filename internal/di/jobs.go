package di

import (
	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/config"
	"github.com/quangtd/vnsentry/internal/scheduler"
)

// JobInstances holds the scheduled jobs so the HTTP layer can trigger
// them manually.
type JobInstances struct {
	AnalysisCycle *scheduler.AnalysisCycleJob
	AlertSweep    *scheduler.AlertSweepJob
	Maintenance   *scheduler.MaintenanceJob
	Backup        *scheduler.BackupJob
}

// All returns the jobs in registration order.
func (j *JobInstances) All() []scheduler.Job {
	return []scheduler.Job{j.AnalysisCycle, j.AlertSweep, j.Maintenance, j.Backup}
}

// RegisterJobs builds the background job instances from the container.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) *JobInstances {
	jobs := &JobInstances{
		AnalysisCycle: scheduler.NewAnalysisCycleJob(scheduler.AnalysisCycleConfig{
			Log:        log,
			Strategy:   container.Strategy,
			Calendar:   container.Calendar,
			Securities: container.Securities,
			Bars:       container.Bars,
			Scorer:     container.Scorer,
			Classifier: container.Classifier,
			Signals:    container.Signals,
			Portfolio:  container.Portfolio,
			Risk:       container.RiskManager,
			Alerts:     container.AlertService,
			Bus:        container.Bus,
			Workers:    cfg.ScoringWorkers,
		}),
		AlertSweep: scheduler.NewAlertSweepJob(container.AlertService, log),
		Maintenance: scheduler.NewMaintenanceJob(scheduler.MaintenanceConfig{
			Log:            log,
			Databases:      container.Databases(),
			Bars:           container.Bars,
			Signals:        container.Signals,
			RetentionYears: cfg.RetentionYears,
		}),
		Backup: scheduler.NewBackupJob(scheduler.BackupJobConfig{
			Log:           log,
			Backups:       container.Backups,
			Cloud:         container.CloudBackups,
			RetentionDays: cfg.Backup.RetentionDays,
			Bus:           container.Bus,
		}),
	}

	log.Debug().Msg("Jobs registered")
	return jobs
}
