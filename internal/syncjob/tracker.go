package syncjob

import (
	"sync"

	"pricing-service/internal/models"
)

// Tracker holds the registry of running catalog sync jobs keyed by
// scope. Conflict checks are check-then-register under one lock so two
// concurrent triggers can never both win a scope.
type Tracker struct {
	mu     sync.Mutex
	active map[string]*models.CatalogSyncJob
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{active: make(map[string]*models.CatalogSyncJob)}
}

// Acquire registers a job for a scope. If the scope is already held by
// a running job the trigger is rejected with a ConflictError carrying
// the holder, never queued.
func (t *Tracker) Acquire(scope string, job *models.CatalogSyncJob) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if holder, ok := t.active[scope]; ok {
		return &models.ConflictError{
			Reason: "a sync job is already running for this scope",
			Conflicting: &models.ConflictingJobInfo{
				JobID:     holder.ID,
				Scope:     scope,
				Status:    holder.Status,
				StartedAt: holder.StartedAt,
			},
		}
	}

	t.active[scope] = job
	return nil
}

// Release frees a scope after its job reaches a terminal status
func (t *Tracker) Release(scope string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.active, scope)
}

// Holder returns the job currently holding a scope, if any
func (t *Tracker) Holder(scope string) (*models.CatalogSyncJob, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	job, ok := t.active[scope]
	return job, ok
}

// Running returns a snapshot of every active job
func (t *Tracker) Running() []models.CatalogSyncJob {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]models.CatalogSyncJob, 0, len(t.active))
	for _, job := range t.active {
		out = append(out, *job)
	}
	return out
}
