package domain

// RuleOperator identifies a node type in a targeting rule tree.
type RuleOperator string

const (
	// Composite operators; Rules holds the children.
	RuleAnd RuleOperator = "and"
	RuleOr  RuleOperator = "or"
	RuleNot RuleOperator = "not"

	// Leaf operators; Attribute and Values hold the comparison.
	RuleEq       RuleOperator = "eq"
	RuleNotEq    RuleOperator = "neq"
	RuleIn       RuleOperator = "in"
	RuleNotIn    RuleOperator = "notIn"
	RuleGt       RuleOperator = "gt"
	RuleGte      RuleOperator = "gte"
	RuleLt       RuleOperator = "lt"
	RuleLte      RuleOperator = "lte"
	RuleContains RuleOperator = "contains"
)

// Rule is a node in a targeting predicate tree. Composite nodes combine their
// children; leaf nodes compare a user attribute against a value set (an "in"
// with multiple values is an OR over those values).
//
// Rules are authored externally and stored as JSON with the experiment; the
// evaluator treats anything malformed as not matching rather than erroring.
type Rule struct {
	Op    RuleOperator `json:"op"`
	Rules []Rule       `json:"rules,omitempty"`

	Attribute string        `json:"attribute,omitempty"`
	Values    []interface{} `json:"values,omitempty"`
}

// IsComposite reports whether the rule combines child rules rather than
// comparing an attribute.
func (r *Rule) IsComposite() bool {
	switch r.Op {
	case RuleAnd, RuleOr, RuleNot:
		return true
	}
	return false
}
