package repository

import (
	"context"
	"time"

	cache "github.com/patrickmn/go-cache"
	"github.com/pkg/errors"

	"github.com/cohortproject/cohort/internal/cohort/domain"
	"github.com/cohortproject/cohort/internal/common/cohorterrors"
)

// CachedExperimentRepository wraps another repository with a TTL cache.
// Experiment definitions change rarely and are read on every assignment
// request, so a short TTL removes nearly all registry reads without delaying
// lifecycle changes for long. Negative results are cached too, under the same
// TTL, so a flood of requests for a missing experiment doesn't hammer the
// registry.
type CachedExperimentRepository struct {
	delegate ExperimentRepository
	cache    *cache.Cache
}

// notFoundMarker is stored in the cache for ids the delegate reported missing.
type notFoundMarker struct{}

func NewCachedExperimentRepository(delegate ExperimentRepository, ttl time.Duration) *CachedExperimentRepository {
	return &CachedExperimentRepository{
		delegate: delegate,
		cache:    cache.New(ttl, 2*ttl),
	}
}

func (r *CachedExperimentRepository) GetExperiment(ctx context.Context, experimentId string) (*domain.Experiment, error) {
	if cached, ok := r.cache.Get(experimentId); ok {
		if _, missing := cached.(notFoundMarker); missing {
			return nil, &cohorterrors.ErrExperimentNotFound{ExperimentId: experimentId}
		}
		return cached.(*domain.Experiment), nil
	}

	experiment, err := r.delegate.GetExperiment(ctx, experimentId)
	if err != nil {
		var notFound *cohorterrors.ErrExperimentNotFound
		if errors.As(err, &notFound) {
			r.cache.SetDefault(experimentId, notFoundMarker{})
		}
		return nil, err
	}
	r.cache.SetDefault(experimentId, experiment)
	return experiment, nil
}
