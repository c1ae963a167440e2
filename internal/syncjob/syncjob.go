// Package syncjob keeps the periodic repository sync job registered with
// constraints matching the user's auto sync preference.
package syncjob

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/blackwell-systems/reposync/internal/jobs"
	"github.com/blackwell-systems/reposync/internal/prefs"
)

// Period is the interval of the periodic sync job.
const Period = 12 * time.Hour

// ConditionsFor maps an auto sync mode to job constraints. AutoSyncNever
// yields zero constraints; the job is cancelled in that case.
func ConditionsFor(mode prefs.AutoSyncMode) jobs.Constraints {
	switch mode {
	case prefs.AutoSyncAlways:
		return jobs.Constraints{
			Network:               jobs.NetworkAny,
			RequiresBatteryNotLow: true,
			RequiresStorageNotLow: true,
		}
	case prefs.AutoSyncWifiOnly:
		return jobs.Constraints{
			Network:               jobs.NetworkUnmetered,
			RequiresBatteryNotLow: true,
			RequiresStorageNotLow: true,
		}
	case prefs.AutoSyncWifiPluggedIn:
		return jobs.Constraints{
			Network:               jobs.NetworkUnmetered,
			RequiresCharging:      true,
			RequiresBatteryNotLow: true,
			RequiresStorageNotLow: true,
		}
	default:
		return jobs.Constraints{Network: jobs.NetworkNone}
	}
}

// Controller registers and cancels the sync job.
type Controller struct {
	scheduler jobs.Scheduler
	logger    *slog.Logger
}

// NewController creates a Controller over scheduler.
func NewController(scheduler jobs.Scheduler, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{scheduler: scheduler, logger: logger}
}

// Reconcile brings the sync job in line with mode. Unless force is set, an
// already pending job is left alone.
func (c *Controller) Reconcile(force bool, mode prefs.AutoSyncMode) error {
	constraints := ConditionsFor(mode)

	pending, err := c.scheduler.IsPending(jobs.SyncJobID)
	if err != nil {
		return fmt.Errorf("failed to check sync job: %w", err)
	}
	if !force && pending {
		return nil
	}

	if mode == prefs.AutoSyncNever {
		if err := c.scheduler.Cancel(jobs.SyncJobID); err != nil {
			return fmt.Errorf("failed to cancel sync job: %w", err)
		}
		c.logger.Info("sync job cancelled", "mode", mode.String())
		return nil
	}

	job := jobs.Job{
		ID:          jobs.SyncJobID,
		Constraints: constraints,
		Period:      Period,
		Flex:        jobs.MinFlex,
	}
	if err := c.scheduler.Schedule(job); err != nil {
		return fmt.Errorf("failed to schedule sync job: %w", err)
	}
	c.logger.Info("sync job scheduled",
		"mode", mode.String(),
		"network", constraints.Network.String(),
		"charging", constraints.RequiresCharging,
		"forced", force)
	return nil
}
