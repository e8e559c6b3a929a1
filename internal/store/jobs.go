package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pricing-service/internal/models"

	"github.com/lib/pq"
)

// CreateSyncJob inserts a new catalog sync job in PENDING state. The
// sync_jobs table carries a partial unique index on scope over
// PENDING/PROCESSING rows, so the database rejects a second active job
// for a scope even when the triggers land on different instances.
func (s *Store) CreateSyncJob(ctx context.Context, job *models.CatalogSyncJob) error {
	row := struct {
		CreatedAt time.Time `db:"created_at"`
	}{}
	err := s.db.GetContext(ctx, &row, `
		INSERT INTO sync_jobs (id, type, scope, status)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		job.ID, job.Type, job.Scope, job.Status)
	if isUniqueViolation(err) {
		conflict := &models.ConflictError{Reason: "a sync job is already running for this scope"}
		if holder, lookupErr := s.GetActiveSyncJobByScope(ctx, job.Scope); lookupErr == nil && holder != nil {
			conflict.Conflicting = &models.ConflictingJobInfo{
				JobID:     holder.ID,
				Scope:     holder.Scope,
				Status:    holder.Status,
				StartedAt: holder.StartedAt,
			}
		}
		return conflict
	}
	if err != nil {
		return err
	}
	job.CreatedAt = row.CreatedAt
	return nil
}

// GetActiveSyncJobByScope retrieves the PENDING or PROCESSING job
// holding a scope, or nil when the scope is free
func (s *Store) GetActiveSyncJobByScope(ctx context.Context, scope string) (*models.CatalogSyncJob, error) {
	var job models.CatalogSyncJob
	err := s.db.GetContext(ctx, &job, `
		SELECT id, type, scope, status, processed, added, updated,
			COALESCE(error, '') AS error, started_at, completed_at, created_at
		FROM sync_jobs WHERE scope = $1 AND status IN ($2, $3)`,
		scope, models.JobStatusPending, models.JobStatusProcessing)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// GetSyncJobByID retrieves a sync job
func (s *Store) GetSyncJobByID(ctx context.Context, id string) (*models.CatalogSyncJob, error) {
	var job models.CatalogSyncJob
	err := s.db.GetContext(ctx, &job, `
		SELECT id, type, scope, status, processed, added, updated,
			COALESCE(error, '') AS error, started_at, completed_at, created_at
		FROM sync_jobs WHERE id = $1`, id)
	if err == sql.ErrNoRows {
		return nil, models.NewNotFoundError("sync job", id)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// MarkSyncJobStarted transitions a job to PROCESSING
func (s *Store) MarkSyncJobStarted(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = $1, started_at = NOW() WHERE id = $2`,
		models.JobStatusProcessing, id)
	return err
}

// UpdateSyncJobProgress updates the running counters
func (s *Store) UpdateSyncJobProgress(ctx context.Context, id string, processed, added, updated int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET processed = $1, added = $2, updated = $3 WHERE id = $4`,
		processed, added, updated, id)
	return err
}

// MarkSyncJobFinished transitions a job to a terminal status
func (s *Store) MarkSyncJobFinished(ctx context.Context, id, status, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = $1, error = NULLIF($2, ''), completed_at = NOW()
		WHERE id = $3`,
		status, errMsg, id)
	return err
}

// GetSyncJobStatus reads just the status, used for cancellation checks
func (s *Store) GetSyncJobStatus(ctx context.Context, id string) (string, error) {
	var status string
	err := s.db.GetContext(ctx, &status, "SELECT status FROM sync_jobs WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return "", models.NewNotFoundError("sync job", id)
	}
	return status, err
}

// CancelSyncJob requests cancellation of a non-terminal job
func (s *Store) CancelSyncJob(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE sync_jobs SET status = $1, completed_at = NOW()
		WHERE id = $2 AND status IN ($3, $4)`,
		models.JobStatusCancelled, id, models.JobStatusPending, models.JobStatusProcessing)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &models.ConflictError{Reason: "job is not cancellable"}
	}
	return nil
}

// ListSyncJobs retrieves recent jobs for history and audit
func (s *Store) ListSyncJobs(ctx context.Context, limit int) ([]models.CatalogSyncJob, error) {
	var jobs []models.CatalogSyncJob
	err := s.db.SelectContext(ctx, &jobs, `
		SELECT id, type, scope, status, processed, added, updated,
			COALESCE(error, '') AS error, started_at, completed_at, created_at
		FROM sync_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	return jobs, err
}
