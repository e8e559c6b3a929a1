package syncjob

import (
	"sync"
	"testing"

	"pricing-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerAcquireRelease(t *testing.T) {
	tr := NewTracker()

	job := &models.CatalogSyncJob{ID: "job-1", Scope: "FULL", Status: models.JobStatusPending}
	require.NoError(t, tr.Acquire("FULL", job))

	holder, ok := tr.Holder("FULL")
	require.True(t, ok)
	assert.Equal(t, "job-1", holder.ID)

	tr.Release("FULL")
	_, ok = tr.Holder("FULL")
	assert.False(t, ok)

	// The scope is free again.
	assert.NoError(t, tr.Acquire("FULL", &models.CatalogSyncJob{ID: "job-2"}))
}

func TestTrackerConflictCarriesHolder(t *testing.T) {
	tr := NewTracker()

	first := &models.CatalogSyncJob{ID: "job-1", Status: models.JobStatusProcessing}
	require.NoError(t, tr.Acquire("COUNTRY:FR", first))

	err := tr.Acquire("COUNTRY:FR", &models.CatalogSyncJob{ID: "job-2"})

	var conflict *models.ConflictError
	require.ErrorAs(t, err, &conflict)
	require.NotNil(t, conflict.Conflicting)
	assert.Equal(t, "job-1", conflict.Conflicting.JobID)
	assert.Equal(t, models.JobStatusProcessing, conflict.Conflicting.Status)
}

func TestTrackerScopesAreIndependent(t *testing.T) {
	tr := NewTracker()

	require.NoError(t, tr.Acquire("COUNTRY:FR", &models.CatalogSyncJob{ID: "job-1"}))
	assert.NoError(t, tr.Acquire("COUNTRY:DE", &models.CatalogSyncJob{ID: "job-2"}))
	assert.Len(t, tr.Running(), 2)
}

func TestTrackerConcurrentAcquire(t *testing.T) {
	tr := NewTracker()

	const attempts = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	won := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			if tr.Acquire("FULL", &models.CatalogSyncJob{ID: "job"}) == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	// Exactly one concurrent trigger may win a scope.
	assert.Equal(t, 1, won)
}
