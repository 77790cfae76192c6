package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"

	"github.com/cohortproject/cohort/internal/cohort/domain"
	"github.com/cohortproject/cohort/internal/common/cohorterrors"
)

// PostgresAssignmentStore is an AssignmentStore backed by a postgres table with
// primary key (experiment_id, user_id). Insert-if-absent is implemented with
// "insert ... on conflict do nothing" followed by a read-back, so concurrent
// writers converge on the row that won the unique-constraint race.
// The backing table is created automatically if it doesn't already exist.
type PostgresAssignmentStore struct {
	db        *pgxpool.Pool
	tableName string
}

func NewPostgresAssignmentStore(db *pgxpool.Pool, tableName string) (*PostgresAssignmentStore, error) {
	if db == nil {
		return nil, errors.WithStack(&cohorterrors.ErrInvalidArgument{
			Name:    "db",
			Value:   db,
			Message: "db must be non-nil",
		})
	}
	if tableName == "" {
		return nil, errors.WithStack(&cohorterrors.ErrInvalidArgument{
			Name:    "tableName",
			Value:   tableName,
			Message: "tableName must be non-empty",
		})
	}
	return &PostgresAssignmentStore{db: db, tableName: tableName}, nil
}

func (s *PostgresAssignmentStore) Get(ctx context.Context, experimentId string, userId string) (*domain.Assignment, error) {
	assignment, err := s.get(ctx, experimentId, userId)

	// If the table doesn't exist yet there are no assignments in it.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return nil, nil
	}
	return assignment, err
}

func (s *PostgresAssignmentStore) get(ctx context.Context, experimentId string, userId string) (*domain.Assignment, error) {
	sql := fmt.Sprintf(
		"select variant_id, assigned_at, context from %s where experiment_id = $1 and user_id = $2",
		s.tableName,
	)
	assignment := &domain.Assignment{ExperimentId: experimentId, UserId: userId}
	var contextData []byte
	err := s.db.QueryRow(ctx, sql, experimentId, userId).Scan(&assignment.VariantId, &assignment.AssignedAt, &contextData)
	if err == pgx.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, storeError("reading assignment", err)
	}
	if len(contextData) > 0 {
		if err := json.Unmarshal(contextData, &assignment.Context); err != nil {
			return nil, errors.Wrap(err, "error unmarshalling assignment context")
		}
	}
	assignment.AssignedAt = assignment.AssignedAt.UTC()
	return assignment, nil
}

func (s *PostgresAssignmentStore) CreateIfAbsent(ctx context.Context, assignment *domain.Assignment) (*domain.Assignment, error) {
	err := s.insert(ctx, assignment)

	// If the table doesn't exist, create it and try again.
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		if err := s.createTable(ctx); err != nil {
			return nil, storeError("creating assignment table", err)
		}
		err = s.insert(ctx, assignment)
	}
	if err != nil {
		return nil, err
	}

	// Whether our insert won or collided, the stored row is authoritative.
	existing, err := s.get(ctx, assignment.ExperimentId, assignment.UserId)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, &cohorterrors.ErrStoreUnavailable{Message: "assignment disappeared after write conflict"}
	}
	return existing, nil
}

func (s *PostgresAssignmentStore) insert(ctx context.Context, assignment *domain.Assignment) error {
	contextData, err := json.Marshal(assignment.Context)
	if err != nil {
		return errors.Wrap(err, "error marshalling assignment context")
	}
	sql := fmt.Sprintf(
		"insert into %s (experiment_id, user_id, variant_id, assigned_at, context) values ($1, $2, $3, $4, $5) on conflict (experiment_id, user_id) do nothing",
		s.tableName,
	)
	_, err = s.db.Exec(ctx, sql, assignment.ExperimentId, assignment.UserId, assignment.VariantId, assignment.AssignedAt, contextData)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return err
	} else if err != nil {
		return storeError("writing assignment", err)
	}
	return nil
}

func (s *PostgresAssignmentStore) GetAllForUser(ctx context.Context, userId string) ([]*domain.Assignment, error) {
	sql := fmt.Sprintf(
		"select experiment_id, variant_id, assigned_at, context from %s where user_id = $1",
		s.tableName,
	)
	rows, err := s.db.Query(ctx, sql, userId)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable {
		return nil, nil
	} else if err != nil {
		return nil, storeError("listing assignments", err)
	}
	defer rows.Close()

	assignments := make([]*domain.Assignment, 0)
	for rows.Next() {
		assignment := &domain.Assignment{UserId: userId}
		var contextData []byte
		if err := rows.Scan(&assignment.ExperimentId, &assignment.VariantId, &assignment.AssignedAt, &contextData); err != nil {
			return nil, storeError("listing assignments", err)
		}
		if len(contextData) > 0 {
			if err := json.Unmarshal(contextData, &assignment.Context); err != nil {
				return nil, errors.Wrap(err, "error unmarshalling assignment context")
			}
		}
		assignment.AssignedAt = assignment.AssignedAt.UTC()
		assignments = append(assignments, assignment)
	}
	if err := rows.Err(); err != nil {
		return nil, storeError("listing assignments", err)
	}
	return assignments, nil
}

func (s *PostgresAssignmentStore) createTable(ctx context.Context) error {
	sql := fmt.Sprintf(
		"create table %s (experiment_id text, user_id text, variant_id text not null, assigned_at timestamptz not null, context jsonb, primary key (experiment_id, user_id));",
		s.tableName,
	)
	_, err := s.db.Exec(ctx, sql)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.DuplicateTable { // Someone else just created it, which is fine.
		return nil
	}
	return err
}

// storeError classifies database failures as transient so callers know the
// operation is safe to retry.
func storeError(message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		message = message + " (timed out)"
	}
	return &cohorterrors.ErrStoreUnavailable{Message: message, Cause: err}
}
