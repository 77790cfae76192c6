// Package exclusion enforces mutual exclusion groups: a user never holds
// simultaneous assignments in two experiments sharing a group.
package exclusion

import (
	"context"

	"github.com/pkg/errors"

	"github.com/cohortproject/cohort/internal/cohort/domain"
	"github.com/cohortproject/cohort/internal/cohort/repository"
	"github.com/cohortproject/cohort/internal/common/cohorterrors"
)

type Coordinator struct {
	assignments repository.AssignmentStore
	experiments repository.ExperimentRepository
}

func NewCoordinator(assignments repository.AssignmentStore, experiments repository.ExperimentRepository) *Coordinator {
	return &Coordinator{
		assignments: assignments,
		experiments: experiments,
	}
}

// CanJoin reports whether userId may join candidate without violating its
// exclusion group. A conflict only blocks the candidate; the user's existing
// assignments are never touched.
//
// This runs before bucketing so that excluded users never consume a bucket
// slot, keeping observed traffic splits accurate.
func (c *Coordinator) CanJoin(ctx context.Context, userId string, candidate *domain.Experiment) (bool, error) {
	if candidate.ExclusionGroup == "" {
		return true, nil
	}

	assignments, err := c.assignments.GetAllForUser(ctx, userId)
	if err != nil {
		return false, err
	}
	for _, assignment := range assignments {
		if assignment.ExperimentId == candidate.Id {
			continue
		}
		experiment, err := c.experiments.GetExperiment(ctx, assignment.ExperimentId)
		if err != nil {
			// An assignment can outlive its experiment definition; such rows
			// can't conflict with anything.
			var notFound *cohorterrors.ErrExperimentNotFound
			if errors.As(err, &notFound) {
				continue
			}
			return false, err
		}
		if experiment.ExclusionGroup == candidate.ExclusionGroup {
			return false, nil
		}
	}
	return true, nil
}
