package pricing

import (
	"testing"

	"pricing-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func catalogFixture() []models.Bundle {
	return []models.Bundle{
		{ID: "fr-7", Countries: []string{"FR"}, ValidityDays: 7, BaseCost: 10, IsActive: true},
		{ID: "fr-14", Countries: []string{"FR"}, ValidityDays: 14, BaseCost: 18, IsActive: true},
		{ID: "fr-30", Countries: []string{"FR"}, ValidityDays: 30, BaseCost: 30, IsActive: true},
		{ID: "eu-10", Region: "EU", ValidityDays: 10, BaseCost: 14, IsActive: true},
		{ID: "global-15", ValidityDays: 15, BaseCost: 25, IsActive: true},
	}
}

func TestSelectBundleExactDuration(t *testing.T) {
	sel, err := SelectBundle(catalogFixture(), models.PricingContext{Destination: "FR", Days: 7})
	require.NoError(t, err)

	assert.Equal(t, "fr-7", sel.Bundle.ID)
	assert.Equal(t, "exact duration match", sel.Reason)
}

func TestSelectBundleClosestAbove(t *testing.T) {
	sel, err := SelectBundle(catalogFixture(), models.PricingContext{Destination: "FR", Days: 10})
	require.NoError(t, err)

	// A 7-day bundle never covers a 10-day stay; 14 is the smallest fit.
	assert.Equal(t, "fr-14", sel.Bundle.ID)
	assert.Equal(t, "closest match >= requested duration", sel.Reason)
}

func TestSelectBundleRegionalFallback(t *testing.T) {
	sel, err := SelectBundle(catalogFixture(), models.PricingContext{Destination: "EU", Days: 5})
	require.NoError(t, err)

	assert.Equal(t, "eu-10", sel.Bundle.ID)
	assert.Equal(t, "regional coverage match", sel.Reason)
}

func TestSelectBundleGlobalFallback(t *testing.T) {
	sel, err := SelectBundle(catalogFixture(), models.PricingContext{Destination: "JP", Days: 5})
	require.NoError(t, err)

	assert.Equal(t, "global-15", sel.Bundle.ID)
	assert.Equal(t, "unlimited fallback", sel.Reason)
}

func TestSelectBundleGroupFilter(t *testing.T) {
	bundles := []models.Bundle{
		{ID: "fr-std", Countries: []string{"FR"}, ValidityDays: 7, BaseCost: 10, Groups: []string{"standard"}, IsActive: true},
		{ID: "fr-prem", Countries: []string{"FR"}, ValidityDays: 7, BaseCost: 20, Groups: []string{"premium"}, IsActive: true},
	}

	sel, err := SelectBundle(bundles, models.PricingContext{Destination: "FR", Days: 7, Group: "premium"})
	require.NoError(t, err)
	assert.Equal(t, "fr-prem", sel.Bundle.ID)
}

func TestSelectBundleTieBreaksByCost(t *testing.T) {
	bundles := []models.Bundle{
		{ID: "expensive", Countries: []string{"FR"}, ValidityDays: 7, BaseCost: 15, IsActive: true},
		{ID: "cheap", Countries: []string{"FR"}, ValidityDays: 7, BaseCost: 9, IsActive: true},
	}

	sel, err := SelectBundle(bundles, models.PricingContext{Destination: "FR", Days: 7})
	require.NoError(t, err)
	assert.Equal(t, "cheap", sel.Bundle.ID)
}

func TestSelectBundleSkipsInactive(t *testing.T) {
	bundles := []models.Bundle{
		{ID: "off", Countries: []string{"FR"}, ValidityDays: 7, BaseCost: 5, IsActive: false},
		{ID: "on", Countries: []string{"FR"}, ValidityDays: 7, BaseCost: 10, IsActive: true},
	}

	sel, err := SelectBundle(bundles, models.PricingContext{Destination: "FR", Days: 7})
	require.NoError(t, err)
	assert.Equal(t, "on", sel.Bundle.ID)
}

func TestSelectBundleNoCandidate(t *testing.T) {
	// All candidates are shorter than the request.
	bundles := []models.Bundle{
		{ID: "fr-7", Countries: []string{"FR"}, ValidityDays: 7, BaseCost: 10, IsActive: true},
	}

	_, err := SelectBundle(bundles, models.PricingContext{Destination: "FR", Days: 30})

	var nf *models.NotFoundError
	assert.ErrorAs(t, err, &nf)
}

func TestCarryOverDays(t *testing.T) {
	sel, err := SelectBundle(catalogFixture(), models.PricingContext{
		Destination: "FR",
		Days:        7,
		PriorBundle: &models.PriorBundleRef{BundleID: "old", ValidityDays: 30, DaysConsumed: 20},
	})
	require.NoError(t, err)
	assert.Equal(t, 10, sel.UnusedDays)

	// Overconsumption clamps at zero, never negative credit.
	sel, err = SelectBundle(catalogFixture(), models.PricingContext{
		Destination: "FR",
		Days:        7,
		PriorBundle: &models.PriorBundleRef{BundleID: "old", ValidityDays: 7, DaysConsumed: 12},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, sel.UnusedDays)
}
