package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/events"
	"github.com/quangtd/vnsentry/internal/reliability"
)

const backupTimeout = 10 * time.Minute

// BackupJob writes the nightly local backup set and, when an object
// store is configured, uploads a full archive and rotates old ones.
type BackupJob struct {
	log       zerolog.Logger
	backups   *reliability.BackupService
	cloud     *reliability.CloudBackupService // nil without a bucket
	retention int
	bus       *events.Bus
}

// BackupJobConfig holds the backup job collaborators.
type BackupJobConfig struct {
	Log           zerolog.Logger
	Backups       *reliability.BackupService
	Cloud         *reliability.CloudBackupService
	RetentionDays int
	Bus           *events.Bus
}

// NewBackupJob creates the backup job.
func NewBackupJob(cfg BackupJobConfig) *BackupJob {
	return &BackupJob{
		log:       cfg.Log.With().Str("job", "backup").Logger(),
		backups:   cfg.Backups,
		cloud:     cfg.Cloud,
		retention: cfg.RetentionDays,
		bus:       cfg.Bus,
	}
}

// Name returns the job name.
func (j *BackupJob) Name() string {
	return "backup"
}

// Run performs the local backup, then the cloud archive when enabled.
func (j *BackupJob) Run() error {
	dir, err := j.backups.Backup()
	if err != nil {
		return fmt.Errorf("local backup failed: %w", err)
	}

	uploaded := ""
	if j.cloud != nil {
		ctx, cancel := context.WithTimeout(context.Background(), backupTimeout)
		defer cancel()

		info, err := j.cloud.CreateAndUpload(ctx)
		if err != nil {
			return fmt.Errorf("cloud backup failed: %w", err)
		}
		uploaded = info.Filename

		if err := j.cloud.RotateOldBackups(ctx, j.retention); err != nil {
			j.log.Error().Err(err).Msg("Archive rotation failed")
		}
	}

	j.bus.Emit(events.BackupCompleted, "scheduler", map[string]interface{}{
		"backup_dir": dir,
		"archive":    uploaded,
	})
	return nil
}
