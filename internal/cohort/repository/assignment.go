package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/cohortproject/cohort/internal/cohort/domain"
	"github.com/cohortproject/cohort/internal/common/cohorterrors"
)

// Redis hash keys are of the form "Assignment:<userId>"; fields are experiment
// ids, values are JSON-encoded assignments. Keeping one hash per user makes
// GetAllForUser a single HGETALL and keeps unrelated users contention-free.
const assignmentKeyPrefix = "Assignment:"

// AssignmentStore is the single serialization point of the engine. All
// concurrency control is pushed into CreateIfAbsent; no in-process locks are
// needed on top of it, and the backing store may be a remote service.
type AssignmentStore interface {
	// Get returns the assignment for (experimentId, userId), or nil if none exists.
	Get(ctx context.Context, experimentId string, userId string) (*domain.Assignment, error)

	// CreateIfAbsent atomically inserts assignment unless a row already exists
	// for its (experimentId, userId) key. Under concurrent calls for the same
	// key exactly one write wins, and every caller receives the identical
	// resulting row, winner or not.
	CreateIfAbsent(ctx context.Context, assignment *domain.Assignment) (*domain.Assignment, error)

	// GetAllForUser returns every assignment held by userId, across all
	// experiments and regardless of experiment status.
	GetAllForUser(ctx context.Context, userId string) ([]*domain.Assignment, error)
}

// RedisAssignmentStore stores assignments in redis hashes, relying on HSetNX
// for insert-if-absent semantics.
type RedisAssignmentStore struct {
	db redis.UniversalClient
}

func NewRedisAssignmentStore(db redis.UniversalClient) *RedisAssignmentStore {
	return &RedisAssignmentStore{db: db}
}

func (r *RedisAssignmentStore) Get(ctx context.Context, experimentId string, userId string) (*domain.Assignment, error) {
	result, err := r.db.HGet(ctx, assignmentKey(userId), experimentId).Result()
	if err == redis.Nil {
		return nil, nil
	} else if err != nil {
		return nil, &cohorterrors.ErrStoreUnavailable{Message: "reading assignment", Cause: err}
	}
	return unmarshalAssignment([]byte(result))
}

func (r *RedisAssignmentStore) CreateIfAbsent(ctx context.Context, assignment *domain.Assignment) (*domain.Assignment, error) {
	data, err := json.Marshal(assignment)
	if err != nil {
		return nil, fmt.Errorf("error marshalling assignment: %w", err)
	}

	// HSetNX writes the field only if it doesn't already exist; result is
	// false when another writer got there first.
	created, err := r.db.HSetNX(ctx, assignmentKey(assignment.UserId), assignment.ExperimentId, data).Result()
	if err != nil {
		return nil, &cohorterrors.ErrStoreUnavailable{Message: "writing assignment", Cause: err}
	}
	if created {
		return assignment, nil
	}

	// Lost the race; the winning row is authoritative. Assignments are never
	// deleted by this engine, so the read-back always finds it.
	existing, err := r.Get(ctx, assignment.ExperimentId, assignment.UserId)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, &cohorterrors.ErrStoreUnavailable{Message: "assignment disappeared after write conflict"}
	}
	return existing, nil
}

func (r *RedisAssignmentStore) GetAllForUser(ctx context.Context, userId string) ([]*domain.Assignment, error) {
	result, err := r.db.HGetAll(ctx, assignmentKey(userId)).Result()
	if err != nil {
		return nil, &cohorterrors.ErrStoreUnavailable{Message: "listing assignments", Cause: err}
	}

	assignments := make([]*domain.Assignment, 0, len(result))
	for _, v := range result {
		assignment, err := unmarshalAssignment([]byte(v))
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
	}
	return assignments, nil
}

func assignmentKey(userId string) string {
	return assignmentKeyPrefix + userId
}

func unmarshalAssignment(data []byte) (*domain.Assignment, error) {
	assignment := &domain.Assignment{}
	if err := json.Unmarshal(data, assignment); err != nil {
		return nil, fmt.Errorf("error unmarshalling assignment: %w", err)
	}
	return assignment, nil
}
