package pricing

import (
	"sort"
	"time"

	"pricing-service/internal/models"
)

// ResolvedBlock is one pricing rule bound into a run, with its
// per-strategy overrides already merged
type ResolvedBlock struct {
	Rule              models.PricingRule
	EffectivePriority int
	Position          int
	Pinned            bool
}

// ResolveBlocks filters a strategy's block bindings down to the ordered
// list the pipeline consumes. A binding survives when it is enabled, its
// rule is active and the rule's validity window covers now. Per-binding
// config overrides are merged onto the rule's action values. Ordering is
// pinned-first, then effective priority descending, ties by block
// creation order (stable).
func ResolveBlocks(strategy models.PricingStrategy, rules map[string]models.PricingRule, now time.Time) []ResolvedBlock {
	resolved := make([]ResolvedBlock, 0, len(strategy.Blocks))

	for _, binding := range strategy.Blocks {
		if !binding.IsEnabled {
			continue
		}
		rule, ok := rules[binding.BlockID]
		if !ok || !rule.IsActive || !rule.ValidNow(now) {
			continue
		}

		merged := mergeOverrides(rule, binding.ConfigOverride)

		priority := merged.Priority
		if binding.PriorityOverride != nil {
			priority = *binding.PriorityOverride
		}

		resolved = append(resolved, ResolvedBlock{
			Rule:              merged,
			EffectivePriority: priority,
			Position:          binding.Position,
			// Routing/selection blocks always run first regardless of
			// numeric priority.
			Pinned: merged.Category == models.CategoryProviderSelection,
		})
	}

	sort.SliceStable(resolved, func(i, j int) bool {
		if resolved[i].Pinned != resolved[j].Pinned {
			return resolved[i].Pinned
		}
		if resolved[i].EffectivePriority != resolved[j].EffectivePriority {
			return resolved[i].EffectivePriority > resolved[j].EffectivePriority
		}
		return resolved[i].Position < resolved[j].Position
	})

	return resolved
}

// mergeOverrides returns a copy of the rule with action values remapped
// by the binding's config override, keyed by action type
func mergeOverrides(rule models.PricingRule, override map[string]float64) models.PricingRule {
	if len(override) == 0 {
		return rule
	}
	actions := make([]models.Action, len(rule.Actions))
	copy(actions, rule.Actions)
	for i := range actions {
		if v, ok := override[string(actions[i].Type)]; ok {
			actions[i].Value = v
		}
	}
	rule.Actions = actions
	return rule
}
