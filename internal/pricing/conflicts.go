package pricing

import (
	"time"

	"pricing-service/internal/models"
)

// RuleConflict reports two blocks of one strategy that can fire on the
// same context with equal effective priority, making their relative
// order accidental.
type RuleConflict struct {
	StrategyID string `json:"strategy_id"`
	FirstID    string `json:"first_rule_id"`
	FirstName  string `json:"first_rule_name"`
	SecondID   string `json:"second_rule_id"`
	SecondName string `json:"second_rule_name"`
	Category   string `json:"category"`
	Priority   int    `json:"priority"`
	Reason     string `json:"reason"`
}

// FindConflictingRules scans the resolved block list for same-category
// pairs with equal effective priority whose condition sets are not
// provably disjoint.
func FindConflictingRules(strategy models.PricingStrategy, rules map[string]models.PricingRule, now time.Time) []RuleConflict {
	blocks := ResolveBlocks(strategy, rules, now)

	conflicts := make([]RuleConflict, 0)
	for i := 0; i < len(blocks); i++ {
		for j := i + 1; j < len(blocks); j++ {
			a, b := blocks[i], blocks[j]
			if a.Rule.Category != b.Rule.Category {
				continue
			}
			if a.EffectivePriority != b.EffectivePriority {
				continue
			}
			if conditionsDisjoint(a.Rule.Conditions, b.Rule.Conditions) {
				continue
			}
			conflicts = append(conflicts, RuleConflict{
				StrategyID: strategy.ID,
				FirstID:    a.Rule.ID,
				FirstName:  a.Rule.Name,
				SecondID:   b.Rule.ID,
				SecondName: b.Rule.Name,
				Category:   a.Rule.Category,
				Priority:   a.EffectivePriority,
				Reason:     "equal priority in same category with overlapping conditions",
			})
		}
	}
	return conflicts
}

// conditionsDisjoint proves two condition sets can never both hold:
// both pin the same field with EQUALS to different values. Anything
// weaker is treated as overlapping.
func conditionsDisjoint(a, b []models.Condition) bool {
	for _, ca := range a {
		if ca.Operator != models.OpEquals {
			continue
		}
		for _, cb := range b {
			if cb.Operator != models.OpEquals || cb.Field != ca.Field {
				continue
			}
			if !looseEqual(ca.Value, cb.Value) {
				return true
			}
		}
	}
	return false
}
