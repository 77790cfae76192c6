package domain

// OutcomeKind classifies the per-experiment result of a bulk assignment call.
type OutcomeKind string

const (
	OutcomeAssigned    OutcomeKind = "assigned"
	OutcomeNotEligible OutcomeKind = "notEligible"
	OutcomeNotFound    OutcomeKind = "notFound"
	OutcomeNotRunning  OutcomeKind = "notRunning"
)

// BulkOutcome is the result for a single experiment within a bulk assignment.
// VariantId is set only when Kind is OutcomeAssigned.
type BulkOutcome struct {
	Kind      OutcomeKind `json:"outcome"`
	VariantId string      `json:"variantId,omitempty"`
}
