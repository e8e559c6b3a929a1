package pricing

import (
	"testing"

	"pricing-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyActionAddMarkup(t *testing.T) {
	totals := Totals{Price: 10, Cost: 10}

	next, step, err := ApplyAction(models.Action{Type: models.ActionAddMarkup, Value: 2}, totals)
	require.NoError(t, err)

	assert.Equal(t, 12.0, next.Price)
	assert.Equal(t, 2.0, next.Markup)
	assert.Equal(t, 10.0, step.PriceBefore)
	assert.Equal(t, 12.0, step.PriceAfter)
	assert.Equal(t, 2.0, step.Impact)
}

func TestApplyActionPercentageDiscount(t *testing.T) {
	totals := Totals{Price: 12, Cost: 10}

	next, step, err := ApplyAction(models.Action{Type: models.ActionDiscountPercentage, Value: 10}, totals)
	require.NoError(t, err)

	assert.InDelta(t, 10.8, next.Price, 1e-9)
	assert.InDelta(t, 1.2, next.DiscountValue, 1e-9)
	assert.InDelta(t, -1.2, step.Impact, 1e-9)
}

func TestApplyActionFixedDiscountClampsAtZero(t *testing.T) {
	totals := Totals{Price: 3, Cost: 3}

	next, _, err := ApplyAction(models.Action{Type: models.ActionFixedDiscount, Value: 5}, totals)
	require.NoError(t, err)

	assert.Equal(t, 0.0, next.Price)
	// Only the reduction that landed is accounted.
	assert.Equal(t, 3.0, next.DiscountValue)
}

func TestApplyActionDiscountPerUnusedDay(t *testing.T) {
	totals := Totals{Price: 10, Cost: 10, UnusedDays: 3}

	next, _, err := ApplyAction(models.Action{Type: models.ActionDiscountPerUnusedDay, Value: 0.5}, totals)
	require.NoError(t, err)

	assert.InDelta(t, 8.5, next.Price, 1e-9)

	// Zero carry-over means zero discount but still one recorded step.
	totals.UnusedDays = 0
	next, step, err := ApplyAction(models.Action{Type: models.ActionDiscountPerUnusedDay, Value: 0.5}, totals)
	require.NoError(t, err)
	assert.Equal(t, 10.0, next.Price)
	assert.Equal(t, 0.0, step.Impact)
}

func TestApplyActionMinimumPrice(t *testing.T) {
	next, _, err := ApplyAction(models.Action{Type: models.ActionMinimumPrice, Value: 8}, Totals{Price: 5, Cost: 5})
	require.NoError(t, err)
	assert.Equal(t, 8.0, next.Price)

	next, step, err := ApplyAction(models.Action{Type: models.ActionMinimumPrice, Value: 8}, Totals{Price: 9, Cost: 5})
	require.NoError(t, err)
	assert.Equal(t, 9.0, next.Price)
	assert.Equal(t, 0.0, step.Impact)
}

func TestApplyActionMinimumProfit(t *testing.T) {
	// Floor is cost plus the configured margin.
	next, _, err := ApplyAction(models.Action{Type: models.ActionMinimumProfit, Value: 2}, Totals{Price: 10.5, Cost: 10})
	require.NoError(t, err)
	assert.Equal(t, 12.0, next.Price)

	next, _, err = ApplyAction(models.Action{Type: models.ActionMinimumProfit, Value: 2}, Totals{Price: 13, Cost: 10})
	require.NoError(t, err)
	assert.Equal(t, 13.0, next.Price)
}

func TestApplyActionProcessingRate(t *testing.T) {
	next, step, err := ApplyAction(models.Action{Type: models.ActionProcessingRate, Value: 0.03}, Totals{Price: 10, Cost: 10})
	require.NoError(t, err)

	assert.Equal(t, 0.03, next.ProcessingRate)
	// The rate does not move the displayed price.
	assert.Equal(t, 10.0, next.Price)
	assert.Equal(t, 0.0, step.Impact)
}

func TestApplyActionUnknownType(t *testing.T) {
	totals := Totals{Price: 10, Cost: 10}

	next, _, err := ApplyAction(models.Action{Type: "DO_SOMETHING_ELSE", Value: 1}, totals)
	assert.ErrorIs(t, err, ErrUnknownAction)
	assert.Equal(t, totals, next)
}

func TestApplyActionStepMetadata(t *testing.T) {
	action := models.Action{
		Type:     models.ActionAddMarkup,
		Value:    2,
		Metadata: map[string]interface{}{"campaign": "summer"},
	}

	_, step, err := ApplyAction(action, Totals{Price: 10})
	require.NoError(t, err)

	assert.Equal(t, "ADD_MARKUP", step.Metadata["action"])
	assert.Equal(t, 2.0, step.Metadata["value"])
	assert.Equal(t, "summer", step.Metadata["campaign"])
}
