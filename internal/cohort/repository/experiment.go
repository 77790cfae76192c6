package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/cohortproject/cohort/internal/cohort/domain"
	"github.com/cohortproject/cohort/internal/common/cohorterrors"
)

const experimentHashKey = "Experiment"

// ExperimentRepository is this engine's read-only view of the experiment
// registry. Experiments are authored, validated and written by an external
// workflow; the assignment engine only ever loads them.
type ExperimentRepository interface {
	// GetExperiment returns the experiment with the given id, or
	// *cohorterrors.ErrExperimentNotFound if no such experiment exists.
	GetExperiment(ctx context.Context, experimentId string) (*domain.Experiment, error)
}

// RedisExperimentRepository reads experiment definitions from the hash the
// authoring workflow publishes them to, one JSON value per experiment id.
type RedisExperimentRepository struct {
	db redis.UniversalClient
}

func NewRedisExperimentRepository(db redis.UniversalClient) *RedisExperimentRepository {
	return &RedisExperimentRepository{db: db}
}

func (r *RedisExperimentRepository) GetExperiment(ctx context.Context, experimentId string) (*domain.Experiment, error) {
	result, err := r.db.HGet(ctx, experimentHashKey, experimentId).Result()
	if err == redis.Nil {
		return nil, &cohorterrors.ErrExperimentNotFound{ExperimentId: experimentId}
	} else if err != nil {
		return nil, &cohorterrors.ErrStoreUnavailable{Message: "reading experiment", Cause: err}
	}

	experiment := &domain.Experiment{}
	if err := json.Unmarshal([]byte(result), experiment); err != nil {
		return nil, fmt.Errorf("error unmarshalling experiment %q: %w", experimentId, err)
	}
	return experiment, nil
}

// InMemoryExperimentRepository serves a fixed set of experiments. Used in
// tests and for deployments that load definitions from static configuration.
type InMemoryExperimentRepository struct {
	mu          sync.RWMutex
	experiments map[string]*domain.Experiment
}

func NewInMemoryExperimentRepository(experiments []*domain.Experiment) *InMemoryExperimentRepository {
	byId := make(map[string]*domain.Experiment, len(experiments))
	for _, experiment := range experiments {
		byId[experiment.Id] = experiment
	}
	return &InMemoryExperimentRepository{experiments: byId}
}

func (r *InMemoryExperimentRepository) GetExperiment(ctx context.Context, experimentId string) (*domain.Experiment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	experiment, ok := r.experiments[experimentId]
	if !ok {
		return nil, &cohorterrors.ErrExperimentNotFound{ExperimentId: experimentId}
	}
	return experiment, nil
}

// Upsert replaces an experiment definition. Test helper; the production
// registry is written by the external authoring workflow.
func (r *InMemoryExperimentRepository) Upsert(experiment *domain.Experiment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.experiments[experiment.Id] = experiment
}
