package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgDuplicateKeyCode = "23505"
	pgForeignKeyCode   = "23503"
)

// ErrSavepoint indicates a SAVEPOINT statement itself failed, which leaves
// the transaction unusable.
var ErrSavepoint = errors.New("savepoint failed")

// MapError translates database errors to domain errors.
// It maps sql.ErrNoRows to notFoundErr and PostgreSQL unique violation (23505)
// to duplicateErr. Other errors are returned unchanged.
func MapError(err error, notFoundErr, duplicateErr error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) {
		return notFoundErr
	}

	if pgCode(err) == pgDuplicateKeyCode {
		return duplicateErr
	}

	return err
}

// IsForeignKeyViolation reports whether err is a PostgreSQL foreign key violation (23503).
func IsForeignKeyViolation(err error) bool {
	return pgCode(err) == pgForeignKeyCode
}

// IsConstraintViolation reports whether err is any PostgreSQL integrity
// constraint violation (SQLSTATE class 23).
func IsConstraintViolation(err error) bool {
	code := pgCode(err)
	return len(code) == 5 && code[:2] == "23"
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
