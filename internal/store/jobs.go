package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/blackwell-systems/reposync/internal/jobs"
)

const jobColumns = `job_id, network, requires_charging, requires_battery_not_low, requires_storage_not_low,
	period_ms, flex_ms, scheduled_at, last_run_at`

func scanJob(row rowScanner) (jobs.Job, error) {
	var (
		job                    jobs.Job
		periodMs, flexMs       int64
		scheduledAt, lastRunAt string
	)
	if err := row.Scan(
		&job.ID,
		&job.Constraints.Network,
		&job.Constraints.RequiresCharging,
		&job.Constraints.RequiresBatteryNotLow,
		&job.Constraints.RequiresStorageNotLow,
		&periodMs,
		&flexMs,
		&scheduledAt,
		&lastRunAt,
	); err != nil {
		return jobs.Job{}, err
	}

	job.Period = time.Duration(periodMs) * time.Millisecond
	job.Flex = time.Duration(flexMs) * time.Millisecond

	var err error
	if job.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return jobs.Job{}, fmt.Errorf("failed to parse scheduled_at for job %d: %w", job.ID, err)
	}
	if job.LastRunAt, err = parseTime(lastRunAt); err != nil {
		return jobs.Job{}, fmt.Errorf("failed to parse last_run_at for job %d: %w", job.ID, err)
	}
	return job, nil
}

// SaveJob registers job, replacing any job with the same id.
func (s *Store) SaveJob(job jobs.Job) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		job.ID,
		job.Constraints.Network,
		job.Constraints.RequiresCharging,
		job.Constraints.RequiresBatteryNotLow,
		job.Constraints.RequiresStorageNotLow,
		job.Period.Milliseconds(),
		job.Flex.Milliseconds(),
		formatTime(job.ScheduledAt),
		formatTime(job.LastRunAt),
	)
	return wrapErr(err, "failed to save job %d", job.ID)
}

// LoadJob returns the job registered under id and whether one exists.
func (s *Store) LoadJob(id jobs.ID) (jobs.Job, bool, error) {
	row := s.db.QueryRow(`SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return jobs.Job{}, false, nil
	}
	if err != nil {
		return jobs.Job{}, false, wrapErr(err, "failed to load job %d", id)
	}
	return job, true, nil
}

// ListJobs returns all registered jobs ordered by id.
func (s *Store) ListJobs() ([]jobs.Job, error) {
	rows, err := s.db.Query(`SELECT ` + jobColumns + ` FROM jobs ORDER BY job_id`)
	if err != nil {
		return nil, wrapErr(err, "failed to list jobs")
	}
	defer rows.Close()

	var out []jobs.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		out = append(out, job)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating jobs: %w", err)
	}
	return out, nil
}

// DeleteJob removes the job registered under id. Deleting an absent job is not an error.
func (s *Store) DeleteJob(id jobs.ID) error {
	_, err := s.db.Exec(`DELETE FROM jobs WHERE job_id = ?`, id)
	return wrapErr(err, "failed to delete job %d", id)
}

// MarkJobRun records the time a job last ran.
func (s *Store) MarkJobRun(id jobs.ID, at time.Time) error {
	_, err := s.db.Exec(`UPDATE jobs SET last_run_at = ? WHERE job_id = ?`, formatTime(at), id)
	return wrapErr(err, "failed to mark job %d as run", id)
}
