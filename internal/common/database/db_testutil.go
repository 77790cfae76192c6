package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/renstrom/shortuuid"
)

// WithTestPool creates a dedicated database on the local postgres instance,
// runs the action against a pool connected to it, and drops the database
// afterwards. It expects postgres on localhost:5432 (user postgres, password
// psw), matching the developer compose setup.
func WithTestPool(action func(pool *pgxpool.Pool) error) error {
	ctx := context.Background()

	dbName := "test_" + strings.ToLower(shortuuid.New())
	connectionString := "host=localhost port=5432 user=postgres password=psw sslmode=disable"
	db, err := pgx.Connect(ctx, connectionString)
	if err != nil {
		return errors.WithStack(err)
	}
	defer db.Close(ctx)

	_, err = db.Exec(ctx, "CREATE DATABASE "+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	pool, err := pgxpool.New(ctx, connectionString+" dbname="+dbName)
	if err != nil {
		return errors.WithStack(err)
	}

	defer func() {
		pool.Close()

		// Disconnect any lingering sessions before dropping the database.
		_, err := db.Exec(ctx,
			`SELECT pg_terminate_backend(pg_stat_activity.pid)
			 FROM pg_stat_activity WHERE pg_stat_activity.datname = '`+dbName+`';`)
		if err != nil {
			fmt.Println("Failed to disconnect users")
		}

		_, err = db.Exec(ctx, "DROP DATABASE "+dbName)
		if err != nil {
			fmt.Println("Failed to drop database")
		}
	}()

	return action(pool)
}
