package scheduler

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/quangtd/vnsentry/internal/modules/alerts"
)

// AlertSweepJob deletes expired alerts so the active set and its cooldown
// checks stay small.
type AlertSweepJob struct {
	log    zerolog.Logger
	alerts *alerts.Service
}

// NewAlertSweepJob creates the alert sweep job.
func NewAlertSweepJob(alerts *alerts.Service, log zerolog.Logger) *AlertSweepJob {
	return &AlertSweepJob{
		log:    log.With().Str("job", "alert_sweep").Logger(),
		alerts: alerts,
	}
}

// Name returns the job name.
func (j *AlertSweepJob) Name() string {
	return "alert_sweep"
}

// Run purges alerts whose cooldown window has passed.
func (j *AlertSweepJob) Run() error {
	purged, err := j.alerts.Sweep()
	if err != nil {
		return fmt.Errorf("failed to sweep alerts: %w", err)
	}
	if purged > 0 {
		j.log.Debug().Int64("purged", purged).Msg("Alert sweep completed")
	}
	return nil
}
