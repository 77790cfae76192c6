package cohort

import (
	"context"
	"fmt"
	"time"

	retry "github.com/avast/retry-go"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"github.com/cohortproject/cohort/internal/cohort/configuration"
	"github.com/cohortproject/cohort/internal/cohort/exclusion"
	"github.com/cohortproject/cohort/internal/cohort/repository"
	"github.com/cohortproject/cohort/internal/cohort/server"
	"github.com/cohortproject/cohort/internal/cohort/service"
	"github.com/cohortproject/cohort/internal/common"
	"github.com/cohortproject/cohort/internal/common/database"
	"github.com/cohortproject/cohort/internal/common/health"
)

// Serve wires the assignment engine together from config and starts the API
// server. The returned function shuts everything down.
func Serve(config *configuration.CohortConfig) (func(), error) {
	checkers := health.NewMultiChecker()

	registryDb := redis.NewUniversalClient(config.Registry.Redis.AsUniversalOptions())
	if err := waitForConnection("experiment registry", func() error {
		return registryDb.Ping(context.Background()).Err()
	}); err != nil {
		return nil, err
	}
	checkers.Add("experiment registry", health.CheckerFunc(func() error {
		return registryDb.Ping(context.Background()).Err()
	}))

	var experiments repository.ExperimentRepository = repository.NewRedisExperimentRepository(registryDb)
	if config.Registry.CacheTTL > 0 {
		experiments = repository.NewCachedExperimentRepository(experiments, config.Registry.CacheTTL)
	}

	assignments, err := createAssignmentStore(config, checkers)
	if err != nil {
		return nil, err
	}

	coordinator := exclusion.NewCoordinator(assignments, experiments)
	assignmentService := service.NewAssignmentService(experiments, assignments, coordinator, config.Store.Timeout)
	api := server.NewAssignmentServer(assignmentService)

	shutdownMetrics := common.ServeMetrics(config.MetricsPort)
	shutdownHttp := common.ServeHttp(config.HttpPort, api.Handler(checkers))

	return func() {
		shutdownHttp()
		shutdownMetrics()
		if err := registryDb.Close(); err != nil {
			log.Errorf("error closing registry connection: %v", err)
		}
	}, nil
}

func createAssignmentStore(config *configuration.CohortConfig, checkers *health.MultiChecker) (repository.AssignmentStore, error) {
	switch config.Store.Type {
	case configuration.StoreTypeRedis:
		db := redis.NewUniversalClient(config.Store.Redis.AsUniversalOptions())
		if err := waitForConnection("assignment store", func() error {
			return db.Ping(context.Background()).Err()
		}); err != nil {
			return nil, err
		}
		checkers.Add("assignment store", health.CheckerFunc(func() error {
			return db.Ping(context.Background()).Err()
		}))
		return repository.NewRedisAssignmentStore(db), nil
	case configuration.StoreTypePostgres:
		pool, err := database.OpenPgxPool(context.Background(), config.Store.Postgres)
		if err != nil {
			return nil, err
		}
		checkers.Add("assignment store", health.CheckerFunc(func() error {
			return pool.Ping(context.Background())
		}))
		return repository.NewPostgresAssignmentStore(pool, config.Store.Postgres.TableName)
	case configuration.StoreTypeMemory:
		log.Warn("using in-memory assignment store; assignments will not survive a restart")
		return repository.NewInMemoryAssignmentStore(), nil
	default:
		return nil, fmt.Errorf("unknown store type %q", config.Store.Type)
	}
}

// waitForConnection retries the initial connectivity check so the service can
// start while its backends are still coming up.
func waitForConnection(name string, ping func() error) error {
	return retry.Do(
		ping,
		retry.Attempts(10),
		retry.Delay(time.Second),
		retry.OnRetry(func(n uint, err error) {
			log.Warnf("could not reach %s (attempt %d): %v", name, n+1, err)
		}),
	)
}
