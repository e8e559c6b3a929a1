package service

import (
	"context"
	"sync"
	"testing"

	"pricing-service/config"
	"pricing-service/internal/models"
	"pricing-service/internal/progress"
	"pricing-service/internal/syncjob"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeKey(t *testing.T) {
	assert.Equal(t, "FULL", scopeKey(models.SyncTypeFull, ""))
	// A full sync covers everything; an explicit scope is meaningless.
	assert.Equal(t, "FULL", scopeKey(models.SyncTypeFull, "FR"))
	assert.Equal(t, "COUNTRY:FR", scopeKey(models.SyncTypeCountry, "FR"))
	assert.Equal(t, "GROUP:premium", scopeKey(models.SyncTypeGroup, "premium"))
}

// fakeSyncStore keeps jobs in memory and lets tests script the active
// scope row and the create outcome.
type fakeSyncStore struct {
	mu               sync.Mutex
	jobs             map[string]*models.CatalogSyncJob
	activeByScope    *models.CatalogSyncJob
	createErr        error
	pages            [][]models.Bundle
	cancelOnProgress bool
}

func newFakeSyncStore() *fakeSyncStore {
	return &fakeSyncStore{jobs: make(map[string]*models.CatalogSyncJob)}
}

func (f *fakeSyncStore) CreateSyncJob(_ context.Context, job *models.CatalogSyncJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeSyncStore) GetSyncJobByID(_ context.Context, id string) (*models.CatalogSyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, models.NewNotFoundError("sync job", id)
	}
	copied := *job
	return &copied, nil
}

func (f *fakeSyncStore) GetActiveSyncJobByScope(_ context.Context, _ string) (*models.CatalogSyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.activeByScope, nil
}

func (f *fakeSyncStore) MarkSyncJobStarted(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = models.JobStatusProcessing
	return nil
}

func (f *fakeSyncStore) UpdateSyncJobProgress(_ context.Context, id string, processed, added, updated int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[id]
	job.Processed, job.Added, job.Updated = processed, added, updated
	if f.cancelOnProgress {
		job.Status = models.JobStatusCancelled
	}
	return nil
}

func (f *fakeSyncStore) MarkSyncJobFinished(_ context.Context, id, status, errMsg string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job := f.jobs[id]
	job.Status = status
	job.Error = errMsg
	return nil
}

func (f *fakeSyncStore) GetSyncJobStatus(_ context.Context, id string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return "", models.NewNotFoundError("sync job", id)
	}
	return job.Status, nil
}

func (f *fakeSyncStore) CancelSyncJob(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = models.JobStatusCancelled
	return nil
}

func (f *fakeSyncStore) ListSyncJobs(_ context.Context, _ int) ([]models.CatalogSyncJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]models.CatalogSyncJob, 0, len(f.jobs))
	for _, job := range f.jobs {
		out = append(out, *job)
	}
	return out, nil
}

func (f *fakeSyncStore) ListStagedBundlesPage(_ context.Context, _, _ string, _, offset int) ([]models.Bundle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := 0
	if len(f.pages) > 0 {
		idx = offset / len(f.pages[0])
	}
	if idx >= len(f.pages) {
		return nil, nil
	}
	return f.pages[idx], nil
}

func (f *fakeSyncStore) UpsertBundle(_ context.Context, _ *models.Bundle) (bool, error) {
	return true, nil
}

// fakeSyncEvents records published lifecycle events
type fakeSyncEvents struct {
	mu        sync.Mutex
	requested []*models.SyncRequestedEvent
	completed []*models.SyncCompletedEvent
}

func (f *fakeSyncEvents) PublishSyncRequested(_ context.Context, ev *models.SyncRequestedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requested = append(f.requested, ev)
	return nil
}

func (f *fakeSyncEvents) PublishSyncCompleted(_ context.Context, ev *models.SyncCompletedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completed = append(f.completed, ev)
	return nil
}

func (f *fakeSyncEvents) requestedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requested)
}

// fakeInvalidator counts per-bundle invalidations
type fakeInvalidator struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeInvalidator) InvalidateByBundle(_ context.Context, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return 1, nil
}

func newSyncServiceForTest(store *fakeSyncStore, events *fakeSyncEvents, tracker *syncjob.Tracker) *CatalogSyncService {
	return NewCatalogSyncService(store, &fakeInvalidator{}, tracker, progress.NewPublisher(), events,
		config.PricingConfig{SyncPageSize: 2})
}

func TestTriggerSyncConflictFromAnotherInstance(t *testing.T) {
	store := newFakeSyncStore()
	events := &fakeSyncEvents{}
	tracker := syncjob.NewTracker()

	// The local tracker is free; only the database knows a peer holds
	// the scope.
	holder := &models.CatalogSyncJob{ID: "peer-job", Scope: "COUNTRY:FR", Status: models.JobStatusProcessing}
	store.activeByScope = holder
	store.createErr = &models.ConflictError{
		Reason: "a sync job is already running for this scope",
		Conflicting: &models.ConflictingJobInfo{
			JobID: holder.ID, Scope: holder.Scope, Status: holder.Status,
		},
	}

	svc := newSyncServiceForTest(store, events, tracker)
	_, err := svc.TriggerSync(context.Background(), TriggerSyncRequest{Type: models.SyncTypeCountry, Scope: "FR"})

	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.NotNil(t, conflict.Conflicting)
	assert.Equal(t, "peer-job", conflict.Conflicting.JobID)

	// The rejected trigger must not leave a local scope entry behind or
	// announce the job.
	_, held := tracker.Holder("COUNTRY:FR")
	assert.False(t, held)
	assert.Equal(t, 0, events.requestedCount())
}

func TestTriggerSyncHealsStaleTrackerEntry(t *testing.T) {
	store := newFakeSyncStore()
	events := &fakeSyncEvents{}
	tracker := syncjob.NewTracker()

	// A peer consumed and finished the previous job for this scope, so
	// the local entry never got released. The database shows the scope
	// free; the stale entry must not block new triggers forever.
	stale := &models.CatalogSyncJob{ID: "stale-job", Scope: "COUNTRY:FR", Status: models.JobStatusProcessing}
	require.NoError(t, tracker.Acquire("COUNTRY:FR", stale))
	store.activeByScope = nil

	svc := newSyncServiceForTest(store, events, tracker)
	job, err := svc.TriggerSync(context.Background(), TriggerSyncRequest{Type: models.SyncTypeCountry, Scope: "FR"})

	require.NoError(t, err)
	holder, held := tracker.Holder("COUNTRY:FR")
	require.True(t, held)
	assert.Equal(t, job.ID, holder.ID)
	assert.Equal(t, 1, events.requestedCount())
}

func TestTriggerSyncKeepsLocalHolderWhenJobStillActive(t *testing.T) {
	store := newFakeSyncStore()
	events := &fakeSyncEvents{}
	tracker := syncjob.NewTracker()

	running := &models.CatalogSyncJob{ID: "running-job", Scope: "COUNTRY:FR", Status: models.JobStatusProcessing}
	require.NoError(t, tracker.Acquire("COUNTRY:FR", running))
	store.activeByScope = running

	svc := newSyncServiceForTest(store, events, tracker)
	_, err := svc.TriggerSync(context.Background(), TriggerSyncRequest{Type: models.SyncTypeCountry, Scope: "FR"})

	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "running-job", conflict.Conflicting.JobID)

	holder, held := tracker.Holder("COUNTRY:FR")
	require.True(t, held)
	assert.Equal(t, "running-job", holder.ID)
}

func TestRunJobCancellation(t *testing.T) {
	store := newFakeSyncStore()
	events := &fakeSyncEvents{}
	tracker := syncjob.NewTracker()

	store.pages = [][]models.Bundle{
		{{ID: "b-1", IsActive: true}, {ID: "b-2", IsActive: true}},
		{{ID: "b-3", IsActive: true}, {ID: "b-4", IsActive: true}},
	}
	// Cancellation lands after the first page's progress write.
	store.cancelOnProgress = true

	job := &models.CatalogSyncJob{ID: "job-1", Type: models.SyncTypeCountry, Scope: "COUNTRY:FR", Status: models.JobStatusPending}
	require.NoError(t, store.CreateSyncJob(context.Background(), job))

	svc := newSyncServiceForTest(store, events, tracker)
	err := svc.RunJob(context.Background(), &models.SyncRequestedEvent{
		JobID:    "job-1",
		SyncType: models.SyncTypeCountry,
		Scope:    "FR",
	})

	require.NoError(t, err)
	final, err := store.GetSyncJobByID(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusCancelled, final.Status)
	// Only the first page was processed.
	assert.Equal(t, 2, final.Processed)
	// A cancelled run never announces completion.
	assert.Empty(t, events.completed)
}
