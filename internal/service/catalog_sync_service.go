package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricing-service/config"
	"pricing-service/internal/models"
	"pricing-service/internal/progress"
	"pricing-service/internal/syncjob"
	"pricing-service/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// SyncStore is the persistence surface of the sync job lifecycle
type SyncStore interface {
	CreateSyncJob(ctx context.Context, job *models.CatalogSyncJob) error
	GetSyncJobByID(ctx context.Context, id string) (*models.CatalogSyncJob, error)
	GetActiveSyncJobByScope(ctx context.Context, scope string) (*models.CatalogSyncJob, error)
	MarkSyncJobStarted(ctx context.Context, id string) error
	UpdateSyncJobProgress(ctx context.Context, id string, processed, added, updated int) error
	MarkSyncJobFinished(ctx context.Context, id, status, errMsg string) error
	GetSyncJobStatus(ctx context.Context, id string) (string, error)
	CancelSyncJob(ctx context.Context, id string) error
	ListSyncJobs(ctx context.Context, limit int) ([]models.CatalogSyncJob, error)
	ListStagedBundlesPage(ctx context.Context, syncType, scope string, limit, offset int) ([]models.Bundle, error)
	UpsertBundle(ctx context.Context, b *models.Bundle) (bool, error)
}

// SyncEventPublisher announces sync lifecycle events on the broker
type SyncEventPublisher interface {
	PublishSyncRequested(ctx context.Context, event *models.SyncRequestedEvent) error
	PublishSyncCompleted(ctx context.Context, event *models.SyncCompletedEvent) error
}

// BundleInvalidator clears cached breakdowns priced from a bundle
type BundleInvalidator interface {
	InvalidateByBundle(ctx context.Context, bundleID string) (int, error)
}

// CatalogSyncService triggers and runs batch catalog evaluations with
// per-scope conflict detection. The database row is the authority on
// which scope is held; the in-process tracker is the fast path.
type CatalogSyncService struct {
	store          SyncStore
	cache          BundleInvalidator
	tracker        *syncjob.Tracker
	publisher      *progress.Publisher
	eventPublisher SyncEventPublisher
	cfg            config.PricingConfig
	logger         *zap.Logger
}

// NewCatalogSyncService creates a new catalog sync service
func NewCatalogSyncService(
	store SyncStore,
	cache BundleInvalidator,
	tracker *syncjob.Tracker,
	publisher *progress.Publisher,
	eventPublisher SyncEventPublisher,
	cfg config.PricingConfig,
) *CatalogSyncService {
	return &CatalogSyncService{
		store:          store,
		cache:          cache,
		tracker:        tracker,
		publisher:      publisher,
		eventPublisher: eventPublisher,
		cfg:            cfg,
		logger:         util.GetLogger(),
	}
}

// TriggerSyncRequest are the parameters of a sync trigger
type TriggerSyncRequest struct {
	Type  string `json:"type" binding:"required"`
	Scope string `json:"scope,omitempty"`
}

// TriggerSync registers and announces a new sync job. A scope already
// held by a running job is rejected with the holder's info, not queued.
func (s *CatalogSyncService) TriggerSync(ctx context.Context, req TriggerSyncRequest) (*models.CatalogSyncJob, error) {
	ctx, span := util.StartSpan(ctx, "CatalogSyncService.TriggerSync")
	defer span.End()

	switch req.Type {
	case models.SyncTypeFull, models.SyncTypeCountry, models.SyncTypeGroup:
	default:
		return nil, models.NewValidationError("type", fmt.Sprintf("unknown sync type %q", req.Type))
	}
	if req.Type != models.SyncTypeFull && req.Scope == "" {
		return nil, models.NewValidationError("scope", "required for scoped sync")
	}

	job := &models.CatalogSyncJob{
		ID:     uuid.New().String(),
		Type:   req.Type,
		Scope:  scopeKey(req.Type, req.Scope),
		Status: models.JobStatusPending,
	}

	if err := s.tracker.Acquire(job.Scope, job); err != nil {
		// The tracker only knows about jobs triggered on this instance.
		// When its holder finished on a peer, the scope row is gone from
		// the database; drop the stale entry and retake the scope.
		if active, lookupErr := s.store.GetActiveSyncJobByScope(ctx, job.Scope); lookupErr == nil && active == nil {
			s.tracker.Release(job.Scope)
			err = s.tracker.Acquire(job.Scope, job)
		}
		if err != nil {
			util.SyncConflictsTotal.Inc()
			return nil, err
		}
	}

	if err := s.store.CreateSyncJob(ctx, job); err != nil {
		s.tracker.Release(job.Scope)
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			// Another instance holds the scope; the database index is the
			// authority and already named the holder.
			util.SyncConflictsTotal.Inc()
			return nil, conflict
		}
		return nil, fmt.Errorf("failed to create sync job: %w", err)
	}

	event := &models.SyncRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSyncRequested,
			Timestamp: time.Now(),
		},
		JobID:    job.ID,
		SyncType: req.Type,
		Scope:    req.Scope,
	}
	if err := s.eventPublisher.PublishSyncRequested(ctx, event); err != nil {
		s.tracker.Release(job.Scope)
		_ = s.store.MarkSyncJobFinished(ctx, job.ID, models.JobStatusFailed, "failed to enqueue")
		return nil, fmt.Errorf("failed to publish sync request: %w", err)
	}

	s.logger.Info("Sync job triggered",
		zap.String("job_id", job.ID),
		zap.String("scope", job.Scope))
	return job, nil
}

// GetJob retrieves a job for status polling
func (s *CatalogSyncService) GetJob(ctx context.Context, id string) (*models.CatalogSyncJob, error) {
	return s.store.GetSyncJobByID(ctx, id)
}

// ListJobs retrieves recent job history
func (s *CatalogSyncService) ListJobs(ctx context.Context, limit int) ([]models.CatalogSyncJob, error) {
	return s.store.ListSyncJobs(ctx, limit)
}

// RunningJobs snapshots the jobs currently holding a scope on this
// instance
func (s *CatalogSyncService) RunningJobs() []models.CatalogSyncJob {
	return s.tracker.Running()
}

// CancelJob requests cancellation; the runner honors it between pages
func (s *CatalogSyncService) CancelJob(ctx context.Context, id string) error {
	return s.store.CancelSyncJob(ctx, id)
}

// RunJob executes a previously triggered job. Invoked by the sync
// worker when the SyncRequested event arrives.
func (s *CatalogSyncService) RunJob(ctx context.Context, event *models.SyncRequestedEvent) error {
	job, err := s.store.GetSyncJobByID(ctx, event.JobID)
	if err != nil {
		return err
	}
	if job.Status != models.JobStatusPending {
		s.logger.Info("Sync job already handled",
			zap.String("job_id", job.ID),
			zap.String("status", job.Status))
		return nil
	}
	defer s.tracker.Release(job.Scope)

	if err := s.store.MarkSyncJobStarted(ctx, job.ID); err != nil {
		return err
	}
	job.Status = models.JobStatusProcessing
	s.publishProgress(job, "sync started")

	processed, added, updated := 0, 0, 0
	offset := 0

	for {
		// Cancellation is honored between pages.
		status, err := s.store.GetSyncJobStatus(ctx, job.ID)
		if err != nil {
			return s.finish(ctx, job, models.JobStatusFailed, err.Error(), processed, added, updated)
		}
		if status == models.JobStatusCancelled {
			s.logger.Info("Sync job cancelled", zap.String("job_id", job.ID))
			job.Status = models.JobStatusCancelled
			util.SyncJobsTotal.WithLabelValues(models.JobStatusCancelled).Inc()
			s.publishProgress(job, "sync cancelled")
			return nil
		}

		page, err := s.store.ListStagedBundlesPage(ctx, event.SyncType, event.Scope, s.cfg.SyncPageSize, offset)
		if err != nil {
			return s.finish(ctx, job, models.JobStatusFailed, err.Error(), processed, added, updated)
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			inserted, err := s.store.UpsertBundle(ctx, &page[i])
			if err != nil {
				s.logger.Error("Failed to upsert bundle",
					zap.String("bundle_id", page[i].ID),
					zap.Error(err))
				continue
			}
			if inserted {
				added++
			} else {
				updated++
			}
			processed++

			// A changed bundle makes its cached breakdowns stale.
			if _, err := s.cache.InvalidateByBundle(ctx, page[i].ID); err != nil {
				s.logger.Warn("Bundle cache invalidation failed",
					zap.String("bundle_id", page[i].ID),
					zap.Error(err))
			}
		}

		if err := s.store.UpdateSyncJobProgress(ctx, job.ID, processed, added, updated); err != nil {
			s.logger.Error("Failed to update sync progress", zap.Error(err))
		}
		job.Processed, job.Added, job.Updated = processed, added, updated
		s.publishProgress(job, fmt.Sprintf("processed %d bundles", processed))

		offset += s.cfg.SyncPageSize
	}

	return s.finish(ctx, job, models.JobStatusCompleted, "", processed, added, updated)
}

func (s *CatalogSyncService) finish(ctx context.Context, job *models.CatalogSyncJob, status, errMsg string, processed, added, updated int) error {
	if err := s.store.UpdateSyncJobProgress(ctx, job.ID, processed, added, updated); err != nil {
		s.logger.Error("Failed to update sync progress", zap.Error(err))
	}
	if err := s.store.MarkSyncJobFinished(ctx, job.ID, status, errMsg); err != nil {
		s.logger.Error("Failed to mark sync job finished", zap.Error(err))
	}

	job.Status = status
	job.Processed, job.Added, job.Updated = processed, added, updated
	util.SyncJobsTotal.WithLabelValues(status).Inc()

	message := "sync completed"
	if status == models.JobStatusFailed {
		message = "sync failed: " + errMsg
	}
	s.publishProgress(job, message)

	event := &models.SyncCompletedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeSyncCompleted,
			Timestamp: time.Now(),
		},
		JobID:     job.ID,
		Status:    status,
		Processed: processed,
		Added:     added,
		Updated:   updated,
	}
	if err := s.eventPublisher.PublishSyncCompleted(ctx, event); err != nil {
		s.logger.Error("Failed to publish SyncCompleted event", zap.Error(err))
	}

	s.logger.Info("Sync job finished",
		zap.String("job_id", job.ID),
		zap.String("status", status),
		zap.Int("processed", processed))

	if status == models.JobStatusFailed && errMsg != "" {
		return fmt.Errorf("sync job %s failed: %s", job.ID, errMsg)
	}
	return nil
}

func (s *CatalogSyncService) publishProgress(job *models.CatalogSyncJob, message string) {
	s.publisher.PublishSync(job.ID, models.SyncProgressEvent{
		JobID:     job.ID,
		Status:    job.Status,
		Processed: job.Processed,
		Added:     job.Added,
		Updated:   job.Updated,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func scopeKey(syncType, scope string) string {
	if syncType == models.SyncTypeFull {
		return models.SyncTypeFull
	}
	return fmt.Sprintf("%s:%s", syncType, scope)
}
