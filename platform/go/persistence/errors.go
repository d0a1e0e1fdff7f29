package persistence

import (
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
)

// translatePgError maps PostgreSQL failures onto the crud taxonomy. Both SQL drivers share it so that
// the same constraint produces the same category regardless of the engine.
func translatePgError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return crud.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return crud.Conflictf("%s violates unique constraint %s", pgErr.TableName, pgErr.ConstraintName)
		case "23503":
			return crud.Conflictf("%s violates foreign key %s", pgErr.TableName, pgErr.ConstraintName)
		case "23502":
			return &crud.ValidationError{Entity: pgErr.TableName, Fields: crud.FieldErrors{pgErr.ColumnName: {"is required"}}}
		case "22P02", "22001", "22003", "22007", "22008", "23514":
			field := pgErr.ColumnName
			if field == "" {
				field = "value"
			}
			return &crud.ValidationError{Entity: pgErr.TableName, Fields: crud.FieldErrors{field: {pgErr.Message}}}
		case "40001", "40P01", "53300", "57P01", "57P02", "57P03":
			return crud.Unavailable(fmt.Errorf("postgres %s: %s", pgErr.Code, pgErr.Message))
		}
		return crud.StorageFailure("postgres", fmt.Errorf("%s: %s", pgErr.Code, pgErr.Message))
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) || pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.Is(err, driver.ErrBadConn) {
		return crud.Unavailable(err)
	}

	return crud.StorageFailure("postgres", err)
}
