// Package eligibility evaluates targeting rule trees against user attributes.
//
// The evaluator is total: it never panics and never returns an error. Malformed
// rules and missing or mistyped attributes fail closed, i.e., they evaluate to
// "not matching", and the problem is logged so rule authors can find it.
package eligibility

import (
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/cohortproject/cohort/internal/cohort/domain"
)

// Evaluate returns whether attrs satisfy rule. A nil rule matches everyone.
func Evaluate(rule *domain.Rule, attrs map[string]interface{}) bool {
	if rule == nil {
		return true
	}
	return evaluate(rule, attrs)
}

func evaluate(rule *domain.Rule, attrs map[string]interface{}) bool {
	switch rule.Op {
	case domain.RuleAnd:
		if len(rule.Rules) == 0 {
			return failClosed(rule, "composite rule has no children")
		}
		for i := range rule.Rules {
			if !evaluate(&rule.Rules[i], attrs) {
				return false
			}
		}
		return true
	case domain.RuleOr:
		if len(rule.Rules) == 0 {
			return failClosed(rule, "composite rule has no children")
		}
		for i := range rule.Rules {
			if evaluate(&rule.Rules[i], attrs) {
				return true
			}
		}
		return false
	case domain.RuleNot:
		if len(rule.Rules) != 1 {
			return failClosed(rule, "not rule must have exactly one child")
		}
		return !evaluate(&rule.Rules[0], attrs)
	case domain.RuleEq, domain.RuleNotEq, domain.RuleIn, domain.RuleNotIn,
		domain.RuleGt, domain.RuleGte, domain.RuleLt, domain.RuleLte,
		domain.RuleContains:
		return evaluateLeaf(rule, attrs)
	default:
		return failClosed(rule, "unknown operator")
	}
}

func evaluateLeaf(rule *domain.Rule, attrs map[string]interface{}) bool {
	if rule.Attribute == "" {
		return failClosed(rule, "leaf rule has no attribute")
	}
	if len(rule.Values) == 0 {
		return failClosed(rule, "leaf rule has no values")
	}
	actual, ok := attrs[rule.Attribute]
	if !ok || actual == nil {
		return false
	}

	switch rule.Op {
	case domain.RuleEq, domain.RuleIn:
		return containsValue(rule.Values, actual)
	case domain.RuleNotEq, domain.RuleNotIn:
		return !containsValue(rule.Values, actual)
	case domain.RuleGt, domain.RuleGte, domain.RuleLt, domain.RuleLte:
		return compareNumeric(rule.Op, actual, rule.Values[0])
	case domain.RuleContains:
		s, ok := actual.(string)
		if !ok {
			return false
		}
		for _, v := range rule.Values {
			needle, ok := v.(string)
			if ok && needle != "" && strings.Contains(s, needle) {
				return true
			}
		}
		return false
	}
	return false
}

// containsValue reports whether actual equals any of values, an OR over the
// value set.
func containsValue(values []interface{}, actual interface{}) bool {
	for _, v := range values {
		if valuesEqual(v, actual) {
			return true
		}
	}
	return false
}

// valuesEqual compares attribute values loosely enough to survive JSON
// decoding, where all numbers arrive as float64 regardless of how the rule
// author wrote them.
func valuesEqual(a, b interface{}) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	}
	return false
}

func compareNumeric(op domain.RuleOperator, actual, threshold interface{}) bool {
	av, aok := asFloat(actual)
	tv, tok := asFloat(threshold)
	if !aok || !tok {
		return false
	}
	switch op {
	case domain.RuleGt:
		return av > tv
	case domain.RuleGte:
		return av >= tv
	case domain.RuleLt:
		return av < tv
	case domain.RuleLte:
		return av <= tv
	}
	return false
}

func asFloat(v interface{}) (float64, bool) {
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
	}
	return 0, false
}

func failClosed(rule *domain.Rule, reason string) bool {
	log.WithField("operator", rule.Op).Warnf("ignoring malformed targeting rule: %s", reason)
	return false
}
