package pricing

import (
	"fmt"

	"pricing-service/internal/models"
)

// Totals is the running state the action executor folds over
type Totals struct {
	Price          float64
	Cost           float64
	Markup         float64
	DiscountValue  float64
	ProcessingRate float64
	UnusedDays     int
}

// ErrUnknownAction is returned for action kinds outside the closed set.
// The pipeline contains it by skipping the owning rule.
var ErrUnknownAction = fmt.Errorf("unknown action type")

// ApplyAction applies one action to the running totals and records
// exactly one step, even when the impact is zero.
func ApplyAction(action models.Action, t Totals) (Totals, models.PricingStep, error) {
	before := t.Price

	switch models.ParseActionType(string(action.Type)) {
	case models.ActionAddMarkup:
		t.Price += action.Value
		t.Markup += action.Value

	case models.ActionDiscountPercentage:
		discount := t.Price * action.Value / 100
		t = applyDiscount(t, discount)

	case models.ActionFixedDiscount:
		t = applyDiscount(t, action.Value)

	case models.ActionDiscountPerUnusedDay:
		t = applyDiscount(t, action.Value*float64(t.UnusedDays))

	case models.ActionMinimumPrice:
		if t.Price < action.Value {
			t.Price = action.Value
		}

	case models.ActionMinimumProfit:
		if floor := t.Cost + action.Value; t.Price < floor {
			t.Price = floor
		}

	case models.ActionProcessingRate:
		// Processing cost is recomputed at finalization from price x rate
		// and subtracted from revenue, not from the displayed price.
		t.ProcessingRate = action.Value

	default:
		return t, models.PricingStep{}, fmt.Errorf("%w: %s", ErrUnknownAction, action.Type)
	}

	step := models.PricingStep{
		PriceBefore: before,
		PriceAfter:  t.Price,
		Impact:      t.Price - before,
		Metadata: map[string]interface{}{
			"action": string(action.Type),
			"value":  action.Value,
		},
	}
	for k, v := range action.Metadata {
		step.Metadata[k] = v
	}
	return t, step, nil
}

// applyDiscount subtracts a discount, clamping the price at zero and
// accounting only the reduction that actually landed
func applyDiscount(t Totals, discount float64) Totals {
	if discount <= 0 {
		return t
	}
	if discount > t.Price {
		discount = t.Price
	}
	t.Price -= discount
	t.DiscountValue += discount
	return t
}
