package domain

import (
	"time"
)

// ExperimentStatus is the lifecycle state of an experiment.
// Transitions: Draft -> Running <-> Paused -> Completed -> Archived.
// Assignments may only be created while the experiment is Running;
// existing assignments remain readable in every state.
type ExperimentStatus string

const (
	ExperimentDraft     ExperimentStatus = "DRAFT"
	ExperimentRunning   ExperimentStatus = "RUNNING"
	ExperimentPaused    ExperimentStatus = "PAUSED"
	ExperimentCompleted ExperimentStatus = "COMPLETED"
	ExperimentArchived  ExperimentStatus = "ARCHIVED"
)

// Variant is one arm of an experiment.
// Weights are relative; they are normalized at bucketing time, so they
// do not need to sum to 1. A zero-weight variant is never selected.
type Variant struct {
	Id      string                 `json:"id"`
	Weight  float64                `json:"weight"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Experiment is the read-only definition this engine assigns users against.
// It is authored and validated externally; this engine only consumes it.
type Experiment struct {
	Id  string `json:"id"`
	Key string `json:"key"`

	Status   ExperimentStatus `json:"status"`
	Variants []Variant        `json:"variants"`

	// Fraction of eligible users admitted into the experiment at all, in [0,100].
	TrafficAllocationPercent float64 `json:"trafficAllocationPercent"`

	// Targeting predicate; nil means all users match.
	TargetingRule *Rule `json:"targetingRule,omitempty"`

	// Experiments sharing a non-empty group never hold simultaneous
	// assignments for the same user. Empty means no exclusion.
	ExclusionGroup string `json:"exclusionGroup,omitempty"`

	// Salt is fixed at creation and never changes; together with Key and the
	// user id it fully determines the bucket value.
	Salt string `json:"salt"`

	StartAt *time.Time `json:"startAt,omitempty"`
	EndAt   *time.Time `json:"endAt,omitempty"`
}

// AcceptsAssignments reports whether new assignments may be created.
func (e *Experiment) AcceptsAssignments() bool {
	return e.Status == ExperimentRunning
}

// InWindow reports whether t falls within the experiment's time window.
// Unset bounds are open.
func (e *Experiment) InWindow(t time.Time) bool {
	if e.StartAt != nil && t.Before(*e.StartAt) {
		return false
	}
	if e.EndAt != nil && !t.Before(*e.EndAt) {
		return false
	}
	return true
}

// Assignment records the sticky decision for one (experiment, user) pair.
// Exactly one row exists per pair; once written it is never mutated.
type Assignment struct {
	ExperimentId string    `json:"experimentId"`
	UserId       string    `json:"userId"`
	VariantId    string    `json:"variantId"`
	AssignedAt   time.Time `json:"assignedAt"`

	// Snapshot of the user attributes the decision was made against, for audit.
	Context map[string]interface{} `json:"context,omitempty"`
}
