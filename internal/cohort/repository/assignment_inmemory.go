package repository

import (
	"context"
	"sync"

	"github.com/cohortproject/cohort/internal/cohort/domain"
)

// InMemoryAssignmentStore keeps assignments in a process-local map. Intended
// for tests and single-node deployments; the mutex provides the same
// exactly-one-winner guarantee the networked stores get from their backends.
type InMemoryAssignmentStore struct {
	mu sync.Mutex
	// userId -> experimentId -> assignment
	assignments map[string]map[string]*domain.Assignment
}

func NewInMemoryAssignmentStore() *InMemoryAssignmentStore {
	return &InMemoryAssignmentStore{
		assignments: map[string]map[string]*domain.Assignment{},
	}
}

func (s *InMemoryAssignmentStore) Get(ctx context.Context, experimentId string, userId string) (*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.assignments[userId][experimentId]
	if !ok {
		return nil, nil
	}
	return copyAssignment(existing), nil
}

func (s *InMemoryAssignmentStore) CreateIfAbsent(ctx context.Context, assignment *domain.Assignment) (*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byExperiment, ok := s.assignments[assignment.UserId]
	if !ok {
		byExperiment = map[string]*domain.Assignment{}
		s.assignments[assignment.UserId] = byExperiment
	}
	if existing, ok := byExperiment[assignment.ExperimentId]; ok {
		return copyAssignment(existing), nil
	}
	byExperiment[assignment.ExperimentId] = copyAssignment(assignment)
	return copyAssignment(assignment), nil
}

func (s *InMemoryAssignmentStore) GetAllForUser(ctx context.Context, userId string) ([]*domain.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	assignments := make([]*domain.Assignment, 0, len(s.assignments[userId]))
	for _, assignment := range s.assignments[userId] {
		assignments = append(assignments, copyAssignment(assignment))
	}
	return assignments, nil
}

// copyAssignment shields stored rows from mutation by callers.
func copyAssignment(assignment *domain.Assignment) *domain.Assignment {
	result := *assignment
	if assignment.Context != nil {
		result.Context = make(map[string]interface{}, len(assignment.Context))
		for k, v := range assignment.Context {
			result.Context[k] = v
		}
	}
	return &result
}
