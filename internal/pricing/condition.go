package pricing

import (
	"strconv"
	"strings"

	"pricing-service/internal/models"
)

// EvalDoc is the dotted-path lookup document a rule's conditions are
// resolved against. Built once per run from the context and the
// selected bundle.
type EvalDoc map[string]interface{}

// NewEvalDoc builds the lookup document for a context and selection
func NewEvalDoc(pctx models.PricingContext, sel Selection) EvalDoc {
	doc := EvalDoc{
		"destination": pctx.Destination,
		"days":        pctx.Days,
		"unusedDays":  sel.UnusedDays,
	}
	if pctx.Group != "" {
		doc["group"] = pctx.Group
	}
	if pctx.PaymentMethod != "" {
		doc["paymentMethod"] = pctx.PaymentMethod
	}
	if pctx.PromoCode != "" {
		doc["promoCode"] = pctx.PromoCode
	}
	doc["bundle"] = map[string]interface{}{
		"id":           sel.Bundle.ID,
		"provider":     sel.Bundle.Provider,
		"baseCost":     sel.Bundle.BaseCost,
		"currency":     sel.Bundle.Currency,
		"validityDays": sel.Bundle.ValidityDays,
		"dataAmountMb": sel.Bundle.DataAmountMB,
		"isUnlimited":  sel.Bundle.IsUnlimited,
		"region":       sel.Bundle.Region,
		"groups":       sel.Bundle.Groups,
	}
	return doc
}

// Lookup resolves a dotted path against the document
func (d EvalDoc) Lookup(path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var cur interface{} = map[string]interface{}(d)
	for _, p := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// EvaluateCondition resolves the condition's field against the document
// and applies its operator. Fails closed: a missing field, an unknown
// operator or a non-numeric operand for a numeric operator yields false
// rather than an error, so one malformed rule cannot abort the pipeline.
func EvaluateCondition(cond models.Condition, doc EvalDoc) bool {
	val, found := doc.Lookup(cond.Field)

	switch cond.Operator {
	case models.OpExists:
		return found
	case models.OpNotExists:
		return !found
	}

	if !found {
		return false
	}

	switch cond.Operator {
	case models.OpEquals:
		return looseEqual(val, cond.Value)
	case models.OpNotEquals:
		return !looseEqual(val, cond.Value)
	case models.OpGreaterThan:
		a, aok := toFloat(val)
		b, bok := toFloat(cond.Value)
		return aok && bok && a > b
	case models.OpLessThan:
		a, aok := toFloat(val)
		b, bok := toFloat(cond.Value)
		return aok && bok && a < b
	case models.OpBetween:
		bounds, ok := toSlice(cond.Value)
		if !ok || len(bounds) != 2 {
			return false
		}
		a, aok := toFloat(val)
		lo, lok := toFloat(bounds[0])
		hi, hok := toFloat(bounds[1])
		return aok && lok && hok && a >= lo && a <= hi
	case models.OpIn:
		set, ok := toSlice(cond.Value)
		return ok && containsLoose(set, val)
	case models.OpNotIn:
		set, ok := toSlice(cond.Value)
		return ok && !containsLoose(set, val)
	}

	return false
}

// AllConditionsMatch applies the rule's conditions as a logical AND.
// An empty condition list always fires.
func AllConditionsMatch(conds []models.Condition, doc EvalDoc) bool {
	for _, c := range conds {
		if !EvaluateCondition(c, doc) {
			return false
		}
	}
	return true
}

// looseEqual compares numerically when both sides coerce to number,
// otherwise by string form
func looseEqual(a, b interface{}) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	as, aok := toString(a)
	bs, bok := toString(b)
	return aok && bok && as == bs
}

func containsLoose(set []interface{}, val interface{}) bool {
	for _, item := range set {
		if looseEqual(item, val) {
			return true
		}
	}
	return false
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}

func toString(v interface{}) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case bool:
		return strconv.FormatBool(s), true
	}
	return "", false
}

func toSlice(v interface{}) ([]interface{}, bool) {
	switch s := v.(type) {
	case []interface{}:
		return s, true
	case []string:
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	case []float64:
		out := make([]interface{}, len(s))
		for i, item := range s {
			out[i] = item
		}
		return out, true
	}
	return nil, false
}
