// Package service contains the assignment orchestration: the state machine
// that takes a user and an experiment through eligibility, bucketing and
// durable, race-safe persistence.
package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/cohortproject/cohort/internal/cohort/bucketing"
	"github.com/cohortproject/cohort/internal/cohort/domain"
	"github.com/cohortproject/cohort/internal/cohort/eligibility"
	"github.com/cohortproject/cohort/internal/cohort/exclusion"
	"github.com/cohortproject/cohort/internal/cohort/metrics"
	"github.com/cohortproject/cohort/internal/cohort/repository"
	"github.com/cohortproject/cohort/internal/common/cohorterrors"
	"github.com/cohortproject/cohort/internal/common/util"
)

type AssignmentService struct {
	experiments repository.ExperimentRepository
	assignments repository.AssignmentStore
	exclusion   *exclusion.Coordinator

	// Bound on each store interaction; zero disables the timeout.
	storeTimeout time.Duration

	clock util.Clock
}

func NewAssignmentService(
	experiments repository.ExperimentRepository,
	assignments repository.AssignmentStore,
	exclusionCoordinator *exclusion.Coordinator,
	storeTimeout time.Duration,
) *AssignmentService {
	return &AssignmentService{
		experiments:  experiments,
		assignments:  assignments,
		exclusion:    exclusionCoordinator,
		storeTimeout: storeTimeout,
		clock:        &util.DefaultClock{},
	}
}

// WithClock overrides the time source; used by tests.
func (s *AssignmentService) WithClock(clock util.Clock) *AssignmentService {
	s.clock = clock
	return s
}

// AssignUser decides which variant of experimentId the user participates in,
// persisting the decision exactly once. Returning (nil, nil) means the user is
// not eligible or fell outside the traffic allocation; that is a successful
// outcome, not an error.
//
// The call is idempotent: repeated or concurrent invocations for the same
// (experiment, user) pair all converge on the identical stored assignment.
func (s *AssignmentService) AssignUser(
	ctx context.Context,
	experimentId string,
	userId string,
	attrs map[string]interface{},
) (*domain.Assignment, error) {
	if userId == "" {
		return nil, errors.WithStack(&cohorterrors.ErrInvalidArgument{
			Name:    "userId",
			Value:   userId,
			Message: "userId must be non-empty",
		})
	}

	experiment, err := s.experiments.GetExperiment(ctx, experimentId)
	if err != nil {
		recordErrorDecision(err)
		return nil, err
	}

	// Sticky fast path: an existing assignment is returned as-is, with no
	// re-evaluation of eligibility. Decisions survive later status, targeting
	// or allocation changes.
	existing, err := s.getFromStore(ctx, experimentId, userId)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		metrics.RecordDecision(string(domain.OutcomeAssigned))
		return existing, nil
	}

	if !experiment.AcceptsAssignments() {
		metrics.RecordDecision(string(domain.OutcomeNotRunning))
		return nil, errors.WithStack(&cohorterrors.ErrExperimentNotRunning{
			ExperimentId: experimentId,
			Status:       experiment.Status,
		})
	}
	if !experiment.InWindow(s.clock.Now()) {
		metrics.RecordDecision(string(domain.OutcomeNotEligible))
		return nil, nil
	}
	if !eligibility.Evaluate(experiment.TargetingRule, attrs) {
		metrics.RecordDecision(string(domain.OutcomeNotEligible))
		return nil, nil
	}

	// Mutual exclusion runs before bucketing so that excluded users never
	// consume a bucket slot.
	canJoin, err := s.canJoin(ctx, userId, experiment)
	if err != nil {
		recordErrorDecision(err)
		return nil, err
	}
	if !canJoin {
		metrics.RecordDecision(string(domain.OutcomeNotEligible))
		return nil, nil
	}

	variantId, participating := bucketing.VariantFor(experiment, userId)
	if !participating {
		metrics.RecordDecision(string(domain.OutcomeNotEligible))
		return nil, nil
	}

	assignment := &domain.Assignment{
		ExperimentId: experimentId,
		UserId:       userId,
		VariantId:    variantId,
		AssignedAt:   s.clock.Now().UTC(),
		Context:      attrs,
	}
	created, err := s.createInStore(ctx, assignment)
	if err != nil {
		recordErrorDecision(err)
		return nil, err
	}
	if created.VariantId != assignment.VariantId {
		// Can only happen if the experiment definition changed under us;
		// the stored row wins, bucketing for this user is already history.
		log.WithField("experimentId", experimentId).
			WithField("userId", userId).
			Warnf("assignment race resolved to variant %s, bucketing computed %s", created.VariantId, assignment.VariantId)
	}
	metrics.RecordDecision(string(domain.OutcomeAssigned))
	return created, nil
}

// GetAssignment is a pure read: it never evaluates eligibility and never
// buckets. Returns (nil, nil) if no assignment exists.
func (s *AssignmentService) GetAssignment(ctx context.Context, experimentId string, userId string) (*domain.Assignment, error) {
	return s.getFromStore(ctx, experimentId, userId)
}

// BulkAssign runs the single-assignment state machine for each experiment id
// in order. Processing is intentionally sequential within a call so that an
// exclusion-group claim made by an earlier id is visible to later ones.
//
// Business failures (not found, not running) are captured as per-item
// outcomes; only infrastructure errors fail the whole call.
func (s *AssignmentService) BulkAssign(
	ctx context.Context,
	userId string,
	experimentIds []string,
	attrs map[string]interface{},
) (map[string]domain.BulkOutcome, error) {
	results := make(map[string]domain.BulkOutcome, len(experimentIds))
	for _, experimentId := range experimentIds {
		assignment, err := s.AssignUser(ctx, experimentId, userId, attrs)
		if err != nil {
			var notFound *cohorterrors.ErrExperimentNotFound
			var notRunning *cohorterrors.ErrExperimentNotRunning
			if errors.As(err, &notFound) {
				results[experimentId] = domain.BulkOutcome{Kind: domain.OutcomeNotFound}
				continue
			}
			if errors.As(err, &notRunning) {
				results[experimentId] = domain.BulkOutcome{Kind: domain.OutcomeNotRunning}
				continue
			}
			return nil, err
		}
		if assignment == nil {
			results[experimentId] = domain.BulkOutcome{Kind: domain.OutcomeNotEligible}
			continue
		}
		results[experimentId] = domain.BulkOutcome{
			Kind:      domain.OutcomeAssigned,
			VariantId: assignment.VariantId,
		}
	}
	return results, nil
}

// GetUserExperiments returns the user's assignments whose owning experiment is
// currently running. Assignments tied to paused, completed or archived
// experiments (or whose definition has since disappeared) are retained in
// storage but hidden from this view.
func (s *AssignmentService) GetUserExperiments(ctx context.Context, userId string) ([]*domain.Assignment, error) {
	storeCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()

	start := s.clock.Now()
	assignments, err := s.assignments.GetAllForUser(storeCtx, userId)
	metrics.RecordStoreRequestDuration("getAllForUser", s.clock.Now().Sub(start))
	if err != nil {
		return nil, err
	}

	active := make([]*domain.Assignment, 0, len(assignments))
	for _, assignment := range assignments {
		experiment, err := s.experiments.GetExperiment(ctx, assignment.ExperimentId)
		if err != nil {
			var notFound *cohorterrors.ErrExperimentNotFound
			if errors.As(err, &notFound) {
				continue
			}
			return nil, err
		}
		if experiment.Status == domain.ExperimentRunning {
			active = append(active, assignment)
		}
	}
	return active, nil
}

func (s *AssignmentService) getFromStore(ctx context.Context, experimentId string, userId string) (*domain.Assignment, error) {
	storeCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()
	start := s.clock.Now()
	assignment, err := s.assignments.Get(storeCtx, experimentId, userId)
	metrics.RecordStoreRequestDuration("get", s.clock.Now().Sub(start))
	return assignment, err
}

func (s *AssignmentService) createInStore(ctx context.Context, assignment *domain.Assignment) (*domain.Assignment, error) {
	storeCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()
	start := s.clock.Now()
	created, err := s.assignments.CreateIfAbsent(storeCtx, assignment)
	metrics.RecordStoreRequestDuration("createIfAbsent", s.clock.Now().Sub(start))
	return created, err
}

func (s *AssignmentService) canJoin(ctx context.Context, userId string, experiment *domain.Experiment) (bool, error) {
	storeCtx, cancel := s.withStoreTimeout(ctx)
	defer cancel()
	return s.exclusion.CanJoin(storeCtx, userId, experiment)
}

func (s *AssignmentService) withStoreTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.storeTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.storeTimeout)
}

// recordErrorDecision keeps the decision counter honest for calls that end in
// a typed business error rather than an assignment outcome.
func recordErrorDecision(err error) {
	var notFound *cohorterrors.ErrExperimentNotFound
	if errors.As(err, &notFound) {
		metrics.RecordDecision(string(domain.OutcomeNotFound))
	}
}
