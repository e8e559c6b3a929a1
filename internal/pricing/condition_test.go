package pricing

import (
	"testing"

	"pricing-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func testDoc() EvalDoc {
	sel := Selection{
		Bundle: models.Bundle{
			ID:           "b-1",
			Provider:     "acme",
			BaseCost:     10,
			Currency:     "USD",
			ValidityDays: 7,
			Groups:       []string{"standard"},
		},
		UnusedDays: 3,
	}
	pctx := models.PricingContext{
		Destination:   "FR",
		Days:          7,
		PaymentMethod: "card",
	}
	return NewEvalDoc(pctx, sel)
}

func TestLookupDottedPath(t *testing.T) {
	doc := testDoc()

	v, ok := doc.Lookup("bundle.provider")
	assert.True(t, ok)
	assert.Equal(t, "acme", v)

	v, ok = doc.Lookup("destination")
	assert.True(t, ok)
	assert.Equal(t, "FR", v)

	_, ok = doc.Lookup("bundle.nonexistent")
	assert.False(t, ok)

	_, ok = doc.Lookup("bundle.provider.deeper")
	assert.False(t, ok)
}

func TestEvaluateConditionOperators(t *testing.T) {
	doc := testDoc()

	assert.True(t, EvaluateCondition(models.Condition{Field: "destination", Operator: models.OpEquals, Value: "FR"}, doc))
	assert.False(t, EvaluateCondition(models.Condition{Field: "destination", Operator: models.OpEquals, Value: "DE"}, doc))
	assert.True(t, EvaluateCondition(models.Condition{Field: "destination", Operator: models.OpNotEquals, Value: "DE"}, doc))

	assert.True(t, EvaluateCondition(models.Condition{Field: "days", Operator: models.OpGreaterThan, Value: 5}, doc))
	assert.False(t, EvaluateCondition(models.Condition{Field: "days", Operator: models.OpGreaterThan, Value: 7}, doc))
	assert.True(t, EvaluateCondition(models.Condition{Field: "days", Operator: models.OpLessThan, Value: 10}, doc))

	assert.True(t, EvaluateCondition(models.Condition{Field: "days", Operator: models.OpBetween, Value: []interface{}{5, 10}}, doc))
	assert.False(t, EvaluateCondition(models.Condition{Field: "days", Operator: models.OpBetween, Value: []interface{}{8, 10}}, doc))

	assert.True(t, EvaluateCondition(models.Condition{Field: "destination", Operator: models.OpIn, Value: []string{"FR", "DE"}}, doc))
	assert.False(t, EvaluateCondition(models.Condition{Field: "destination", Operator: models.OpNotIn, Value: []string{"FR", "DE"}}, doc))

	assert.True(t, EvaluateCondition(models.Condition{Field: "paymentMethod", Operator: models.OpExists}, doc))
	assert.True(t, EvaluateCondition(models.Condition{Field: "promoCode", Operator: models.OpNotExists}, doc))
	assert.False(t, EvaluateCondition(models.Condition{Field: "promoCode", Operator: models.OpExists}, doc))
}

func TestEvaluateConditionNumericCoercion(t *testing.T) {
	doc := testDoc()

	// JSON decodes rule values as float64; the document holds ints.
	assert.True(t, EvaluateCondition(models.Condition{Field: "days", Operator: models.OpEquals, Value: float64(7)}, doc))
	assert.True(t, EvaluateCondition(models.Condition{Field: "bundle.baseCost", Operator: models.OpEquals, Value: "10"}, doc))
}

func TestEvaluateConditionFailsClosed(t *testing.T) {
	doc := testDoc()

	// Missing field.
	assert.False(t, EvaluateCondition(models.Condition{Field: "missing", Operator: models.OpEquals, Value: "x"}, doc))
	// Unknown operator.
	assert.False(t, EvaluateCondition(models.Condition{Field: "days", Operator: "LIKE", Value: 7}, doc))
	// Non-numeric operand for a numeric operator.
	assert.False(t, EvaluateCondition(models.Condition{Field: "destination", Operator: models.OpGreaterThan, Value: 5}, doc))
	// Malformed BETWEEN bounds.
	assert.False(t, EvaluateCondition(models.Condition{Field: "days", Operator: models.OpBetween, Value: []interface{}{5}}, doc))
}

func TestAllConditionsMatch(t *testing.T) {
	doc := testDoc()

	assert.True(t, AllConditionsMatch(nil, doc), "empty condition list always fires")

	conds := []models.Condition{
		{Field: "destination", Operator: models.OpEquals, Value: "FR"},
		{Field: "days", Operator: models.OpGreaterThan, Value: 5},
	}
	assert.True(t, AllConditionsMatch(conds, doc))

	conds = append(conds, models.Condition{Field: "days", Operator: models.OpLessThan, Value: 6})
	assert.False(t, AllConditionsMatch(conds, doc))
}
