// Package repository provides database helper functions for transaction management
// and query execution.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier is implemented by *sql.DB, *sql.Tx, and *sql.Conn.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Executor is implemented by *sql.DB, *sql.Tx, and *sql.Conn.
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Conn is the union of Querier and Executor, satisfied by *sql.DB and *sql.Tx.
type Conn interface {
	Querier
	Executor
}

// Scanner abstracts row scanning for use with query helpers.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanFunc converts a Scanner into a typed value.
// Domain packages define their own scan functions for entity types.
type ScanFunc[T any] func(Scanner) (T, error)

// WithTx executes fn within a database transaction.
// It handles Begin, Commit, and Rollback automatically.
func WithTx[T any](ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) (T, error)) (T, error) {
	var zero T

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return zero, err
	}
	defer tx.Rollback()

	result, err := fn(tx)
	if err != nil {
		return zero, err
	}

	if err := tx.Commit(); err != nil {
		return zero, err
	}

	return result, nil
}

// QueryOne executes a query expected to return a single row.
func QueryOne[T any](ctx context.Context, q Querier, query string, args []any, scan ScanFunc[T]) (T, error) {
	var zero T
	row := q.QueryRowContext(ctx, query, args...)
	result, err := scan(row)
	if err != nil {
		return zero, err
	}
	return result, nil
}

// QueryMany executes a query expected to return multiple rows.
// Returns an empty slice if no rows are found.
func QueryMany[T any](ctx context.Context, q Querier, query string, args []any, scan ScanFunc[T]) ([]T, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return results, nil
}

// Upserted is the result of InsertOrLookup.
type Upserted struct {
	Key      int64
	Inserted bool
	// Found is true when the key came from the fallback lookup rather than
	// the insert statement.
	Found bool
}

// InsertOrLookup resolves a surrogate key with the get-or-create protocol.
//
// upsert must be an INSERT ... ON CONFLICT statement that returns two columns:
// the key and (xmax = 0). When it returns no row (ON CONFLICT DO NOTHING or a
// conditional DO UPDATE), lookup is run with lookupArgs and must return the key.
// If neither yields a row, sql.ErrNoRows is returned.
func InsertOrLookup(ctx context.Context, q Querier, upsert string, upsertArgs []any, lookup string, lookupArgs []any) (Upserted, error) {
	var res Upserted

	err := q.QueryRowContext(ctx, upsert, upsertArgs...).Scan(&res.Key, &res.Inserted)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return res, err
	}

	if err := q.QueryRowContext(ctx, lookup, lookupArgs...).Scan(&res.Key); err != nil {
		return Upserted{}, err
	}
	res.Found = true
	return res, nil
}

// Savepoint runs fn inside a named SAVEPOINT on tx. When fn fails the
// savepoint is rolled back so the surrounding transaction stays usable,
// and fn's error is returned. Errors from the savepoint statements
// themselves are wrapped with ErrSavepoint.
func Savepoint(ctx context.Context, tx Executor, name string, fn func() error) error {
	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("%w: %w", ErrSavepoint, err)
	}

	if err := fn(); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return fmt.Errorf("%w: rollback %s: %w", ErrSavepoint, name, errors.Join(err, rbErr))
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("%w: %w", ErrSavepoint, err)
	}
	return nil
}
