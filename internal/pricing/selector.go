package pricing

import (
	"sort"

	"pricing-service/internal/models"
)

// Selection is the outcome of bundle selection: the candidate the
// strategy will price, the carry-over credit and a human-readable reason.
type Selection struct {
	Bundle     models.Bundle
	UnusedDays int
	Reason     string
}

// SelectBundle filters the catalog candidates by destination coverage
// (exact country, else region, else group-wide fallback) and group tag,
// then picks the bundle whose validity is the smallest value >= the
// requested duration. A shorter bundle than requested is never returned.
func SelectBundle(bundles []models.Bundle, pctx models.PricingContext) (Selection, error) {
	exact := make([]models.Bundle, 0, len(bundles))
	regional := make([]models.Bundle, 0)
	global := make([]models.Bundle, 0)

	for _, b := range bundles {
		if !b.IsActive {
			continue
		}
		if pctx.Group != "" && !b.InGroup(pctx.Group) {
			continue
		}
		switch {
		case b.CoversCountry(pctx.Destination):
			exact = append(exact, b)
		case b.Region != "" && b.Region == pctx.Destination:
			regional = append(regional, b)
		case len(b.Countries) == 0 && b.Region == "":
			global = append(global, b)
		}
	}

	tier := exact
	reason := "closest match >= requested duration"
	if len(tier) == 0 {
		tier = regional
		reason = "regional coverage match"
	}
	if len(tier) == 0 {
		tier = global
		reason = "unlimited fallback"
	}
	if len(tier) == 0 {
		return Selection{}, models.NewNotFoundError("bundle", pctx.Destination)
	}

	// Closest-above policy: smallest validity >= requested days.
	// Ties break by lower base cost, then catalog order (stable).
	sort.SliceStable(tier, func(i, j int) bool {
		if tier[i].ValidityDays != tier[j].ValidityDays {
			return tier[i].ValidityDays < tier[j].ValidityDays
		}
		return tier[i].BaseCost < tier[j].BaseCost
	})

	var picked *models.Bundle
	for i := range tier {
		if tier[i].ValidityDays >= pctx.Days {
			picked = &tier[i]
			break
		}
	}
	if picked == nil {
		return Selection{}, models.NewNotFoundError("bundle", pctx.Destination)
	}
	if picked.ValidityDays == pctx.Days && reason == "closest match >= requested duration" {
		reason = "exact duration match"
	}

	sel := Selection{Bundle: *picked, Reason: reason}
	if pctx.PriorBundle != nil {
		sel.UnusedDays = carryOverDays(pctx.PriorBundle)
	}
	return sel, nil
}

// carryOverDays computes leftover validity from a prior bundle in whole
// days, clamped at zero when consumption exceeds validity
func carryOverDays(prior *models.PriorBundleRef) int {
	unused := prior.ValidityDays - prior.DaysConsumed
	if unused < 0 {
		return 0
	}
	return unused
}
