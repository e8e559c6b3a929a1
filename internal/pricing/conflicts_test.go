package pricing

import (
	"testing"
	"time"

	"pricing-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func conflictFixture(rules map[string]models.PricingRule) models.PricingStrategy {
	strategy := models.PricingStrategy{ID: "s"}
	pos := 0
	for id := range rules {
		strategy.Blocks = append(strategy.Blocks, models.StrategyBlock{
			ID: "bind-" + id, BlockID: id, Position: pos, IsEnabled: true,
		})
		pos++
	}
	return strategy
}

func TestFindConflictingRules(t *testing.T) {
	rules := map[string]models.PricingRule{
		"a": {ID: "a", Name: "Summer promo", Category: models.CategoryDiscount, Priority: 50, IsActive: true,
			Actions: []models.Action{{Type: models.ActionFixedDiscount, Value: 1}}},
		"b": {ID: "b", Name: "Loyalty promo", Category: models.CategoryDiscount, Priority: 50, IsActive: true,
			Actions: []models.Action{{Type: models.ActionFixedDiscount, Value: 2}}},
	}

	conflicts := FindConflictingRules(conflictFixture(rules), rules, time.Now())
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.CategoryDiscount, conflicts[0].Category)
	assert.Equal(t, 50, conflicts[0].Priority)
}

func TestNoConflictAcrossCategoriesOrPriorities(t *testing.T) {
	rules := map[string]models.PricingRule{
		"a": {ID: "a", Category: models.CategoryDiscount, Priority: 50, IsActive: true,
			Actions: []models.Action{{Type: models.ActionFixedDiscount, Value: 1}}},
		"b": {ID: "b", Category: models.CategoryFee, Priority: 50, IsActive: true,
			Actions: []models.Action{{Type: models.ActionAddMarkup, Value: 1}}},
		"c": {ID: "c", Category: models.CategoryDiscount, Priority: 40, IsActive: true,
			Actions: []models.Action{{Type: models.ActionFixedDiscount, Value: 2}}},
	}

	conflicts := FindConflictingRules(conflictFixture(rules), rules, time.Now())
	assert.Empty(t, conflicts)
}

func TestNoConflictWhenConditionsDisjoint(t *testing.T) {
	rules := map[string]models.PricingRule{
		"a": {ID: "a", Category: models.CategoryDiscount, Priority: 50, IsActive: true,
			Conditions: []models.Condition{{Field: "destination", Operator: models.OpEquals, Value: "FR"}},
			Actions:    []models.Action{{Type: models.ActionFixedDiscount, Value: 1}}},
		"b": {ID: "b", Category: models.CategoryDiscount, Priority: 50, IsActive: true,
			Conditions: []models.Condition{{Field: "destination", Operator: models.OpEquals, Value: "DE"}},
			Actions:    []models.Action{{Type: models.ActionFixedDiscount, Value: 2}}},
	}

	conflicts := FindConflictingRules(conflictFixture(rules), rules, time.Now())
	assert.Empty(t, conflicts)
}

func TestConflictWhenOverlapNotProvable(t *testing.T) {
	// A range condition against an EQUALS pin is not provably disjoint.
	rules := map[string]models.PricingRule{
		"a": {ID: "a", Category: models.CategoryDiscount, Priority: 50, IsActive: true,
			Conditions: []models.Condition{{Field: "destination", Operator: models.OpEquals, Value: "FR"}},
			Actions:    []models.Action{{Type: models.ActionFixedDiscount, Value: 1}}},
		"b": {ID: "b", Category: models.CategoryDiscount, Priority: 50, IsActive: true,
			Conditions: []models.Condition{{Field: "days", Operator: models.OpGreaterThan, Value: 5}},
			Actions:    []models.Action{{Type: models.ActionFixedDiscount, Value: 2}}},
	}

	conflicts := FindConflictingRules(conflictFixture(rules), rules, time.Now())
	assert.Len(t, conflicts, 1)
}
