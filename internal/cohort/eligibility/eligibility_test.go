package eligibility

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cohortproject/cohort/internal/cohort/domain"
)

func leaf(op domain.RuleOperator, attribute string, values ...interface{}) domain.Rule {
	return domain.Rule{Op: op, Attribute: attribute, Values: values}
}

func TestEvaluate(t *testing.T) {
	attrs := map[string]interface{}{
		"country": "SE",
		"age":     float64(30), // JSON numbers decode as float64
		"beta":    true,
		"email":   "user@example.com",
	}

	tests := map[string]struct {
		rule     domain.Rule
		expected bool
	}{
		"eq match": {
			rule:     leaf(domain.RuleEq, "country", "SE"),
			expected: true,
		},
		"eq mismatch": {
			rule:     leaf(domain.RuleEq, "country", "NO"),
			expected: false,
		},
		"eq bool": {
			rule:     leaf(domain.RuleEq, "beta", true),
			expected: true,
		},
		"eq numeric tolerates int rule values": {
			rule:     leaf(domain.RuleEq, "age", 30),
			expected: true,
		},
		"in is an or over values": {
			rule:     leaf(domain.RuleIn, "country", "NO", "DK", "SE"),
			expected: true,
		},
		"in no match": {
			rule:     leaf(domain.RuleIn, "country", "NO", "DK"),
			expected: false,
		},
		"neq": {
			rule:     leaf(domain.RuleNotEq, "country", "NO"),
			expected: true,
		},
		"notIn": {
			rule:     leaf(domain.RuleNotIn, "country", "NO", "DK"),
			expected: true,
		},
		"gt": {
			rule:     leaf(domain.RuleGt, "age", 18),
			expected: true,
		},
		"gte boundary": {
			rule:     leaf(domain.RuleGte, "age", 30),
			expected: true,
		},
		"lt fails": {
			rule:     leaf(domain.RuleLt, "age", 18),
			expected: false,
		},
		"lte boundary": {
			rule:     leaf(domain.RuleLte, "age", 30),
			expected: true,
		},
		"contains": {
			rule:     leaf(domain.RuleContains, "email", "@example."),
			expected: true,
		},
		"contains non-string attribute fails closed": {
			rule:     leaf(domain.RuleContains, "age", "3"),
			expected: false,
		},
		"missing attribute fails closed": {
			rule:     leaf(domain.RuleEq, "plan", "premium"),
			expected: false,
		},
		"numeric comparison against string fails closed": {
			rule:     leaf(domain.RuleGt, "country", 10),
			expected: false,
		},
		"and all match": {
			rule: domain.Rule{Op: domain.RuleAnd, Rules: []domain.Rule{
				leaf(domain.RuleEq, "country", "SE"),
				leaf(domain.RuleGte, "age", 18),
			}},
			expected: true,
		},
		"and one fails": {
			rule: domain.Rule{Op: domain.RuleAnd, Rules: []domain.Rule{
				leaf(domain.RuleEq, "country", "SE"),
				leaf(domain.RuleGte, "age", 65),
			}},
			expected: false,
		},
		"or one matches": {
			rule: domain.Rule{Op: domain.RuleOr, Rules: []domain.Rule{
				leaf(domain.RuleEq, "country", "NO"),
				leaf(domain.RuleEq, "beta", true),
			}},
			expected: true,
		},
		"not": {
			rule: domain.Rule{Op: domain.RuleNot, Rules: []domain.Rule{
				leaf(domain.RuleEq, "country", "NO"),
			}},
			expected: true,
		},
		"nested tree": {
			rule: domain.Rule{Op: domain.RuleAnd, Rules: []domain.Rule{
				{Op: domain.RuleOr, Rules: []domain.Rule{
					leaf(domain.RuleEq, "country", "SE"),
					leaf(domain.RuleEq, "country", "NO"),
				}},
				{Op: domain.RuleNot, Rules: []domain.Rule{
					leaf(domain.RuleLt, "age", 18),
				}},
			}},
			expected: true,
		},
		"unknown operator fails closed": {
			rule:     leaf("matchesRegex", "country", "S."),
			expected: false,
		},
		"empty composite fails closed": {
			rule:     domain.Rule{Op: domain.RuleAnd},
			expected: false,
		},
		"not with two children fails closed": {
			rule: domain.Rule{Op: domain.RuleNot, Rules: []domain.Rule{
				leaf(domain.RuleEq, "country", "SE"),
				leaf(domain.RuleEq, "country", "NO"),
			}},
			expected: false,
		},
		"leaf without attribute fails closed": {
			rule:     domain.Rule{Op: domain.RuleEq, Values: []interface{}{"SE"}},
			expected: false,
		},
		"leaf without values fails closed": {
			rule:     domain.Rule{Op: domain.RuleEq, Attribute: "country"},
			expected: false,
		},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Evaluate(&tc.rule, attrs))
		})
	}
}

func TestEvaluateNilRuleMatchesEveryone(t *testing.T) {
	assert.True(t, Evaluate(nil, nil))
	assert.True(t, Evaluate(nil, map[string]interface{}{"country": "SE"}))
}

func TestEvaluateNilAttributesFailClosed(t *testing.T) {
	rule := leaf(domain.RuleEq, "country", "SE")
	assert.False(t, Evaluate(&rule, nil))
}

func TestEvaluateNeverPanicsOnNilValues(t *testing.T) {
	rule := leaf(domain.RuleEq, "country", nil)
	attrs := map[string]interface{}{"country": nil}
	assert.NotPanics(t, func() {
		Evaluate(&rule, attrs)
	})
}
