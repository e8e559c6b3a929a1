package cache

import (
	"testing"

	"pricing-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestFingerprintDeterministic(t *testing.T) {
	pctx := models.PricingContext{
		Destination:   "FR",
		Days:          7,
		Group:         "standard",
		PaymentMethod: "card",
	}

	a := Fingerprint(pctx, "strat-1", 3)
	b := Fingerprint(pctx, "strat-1", 3)
	assert.Equal(t, a, b)
	assert.Len(t, a, 32)
}

func TestFingerprintIgnoresCorrelationID(t *testing.T) {
	pctx := models.PricingContext{Destination: "FR", Days: 7}
	withNoise := pctx
	withNoise.CorrelationID = "corr-1"

	// The correlation id never changes what the pipeline prices.
	assert.Equal(t, Fingerprint(pctx, "s", 1), Fingerprint(withNoise, "s", 1))
}

func TestFingerprintSeparatesDebugEntries(t *testing.T) {
	pctx := models.PricingContext{Destination: "FR", Days: 7}
	debug := pctx
	debug.Debug = true

	// A debug caller must never be served an entry cached without the
	// debug block.
	assert.NotEqual(t, Fingerprint(pctx, "s", 1), Fingerprint(debug, "s", 1))
}

func TestFingerprintVariesWithInputs(t *testing.T) {
	base := models.PricingContext{Destination: "FR", Days: 7}
	fp := Fingerprint(base, "s", 1)

	days := base
	days.Days = 14
	assert.NotEqual(t, fp, Fingerprint(days, "s", 1))

	dest := base
	dest.Destination = "DE"
	assert.NotEqual(t, fp, Fingerprint(dest, "s", 1))

	promo := base
	promo.PromoCode = "SUMMER"
	assert.NotEqual(t, fp, Fingerprint(promo, "s", 1))

	prior := base
	prior.PriorBundle = &models.PriorBundleRef{BundleID: "old", ValidityDays: 30, DaysConsumed: 5}
	assert.NotEqual(t, fp, Fingerprint(prior, "s", 1))

	tenant := base
	tenant.TenantID = "acme"
	assert.NotEqual(t, fp, Fingerprint(tenant, "s", 1))

	// A strategy version bump is an implicit global invalidation.
	assert.NotEqual(t, fp, Fingerprint(base, "s", 2))
	assert.NotEqual(t, fp, Fingerprint(base, "other", 1))
}
