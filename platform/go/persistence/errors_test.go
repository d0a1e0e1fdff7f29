package persistence

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/zenGate-Global/palmyra-tenancy-core/platform/go/crud"
)

func TestTranslatePgError(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		target    error
		wantMsg   string
		wantField string
	}{
		{name: "no rows", err: fmt.Errorf("scan: %w", pgx.ErrNoRows), target: crud.ErrNotFound},
		{
			name:    "unique violation",
			err:     &pgconn.PgError{Code: "23505", TableName: "tenants", ConstraintName: "tenants_slug_key"},
			target:  crud.ErrConflict,
			wantMsg: "tenants violates unique constraint tenants_slug_key",
		},
		{
			name:    "foreign key violation",
			err:     &pgconn.PgError{Code: "23503", TableName: "organizations", ConstraintName: "organizations_tenant_id_fkey"},
			target:  crud.ErrConflict,
			wantMsg: "foreign key organizations_tenant_id_fkey",
		},
		{
			name:      "not null",
			err:       &pgconn.PgError{Code: "23502", TableName: "tenants", ColumnName: "name"},
			target:    crud.ErrValidation,
			wantField: "name",
		},
		{
			name:      "value too long",
			err:       &pgconn.PgError{Code: "22001", Message: "value too long for type character varying(100)"},
			target:    crud.ErrValidation,
			wantField: "value",
		},
		{
			name:    "serialization failure",
			err:     &pgconn.PgError{Code: "40001", Message: "could not serialize access"},
			target:  crud.ErrUnavailable,
			wantMsg: "postgres 40001",
		},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, target: crud.ErrUnavailable},
		{name: "bad connection", err: driver.ErrBadConn, target: crud.ErrUnavailable},
		{name: "unknown postgres error", err: &pgconn.PgError{Code: "42P01", Message: `relation "x" does not exist`}, wantMsg: "postgres: 42P01"},
		{name: "unknown error", err: errors.New("boom"), wantMsg: "postgres: boom"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := translatePgError(tt.err)
			require.Error(t, got)
			if tt.target != nil {
				require.ErrorIs(t, got, tt.target)
			} else {
				for _, known := range []error{crud.ErrNotFound, crud.ErrConflict, crud.ErrValidation, crud.ErrUnavailable} {
					require.NotErrorIs(t, got, known)
				}
			}
			if tt.wantMsg != "" {
				require.ErrorContains(t, got, tt.wantMsg)
			}
			if tt.wantField != "" {
				var ve *crud.ValidationError
				require.True(t, errors.As(got, &ve))
				require.Contains(t, ve.Fields, tt.wantField)
			}

			var pgErr *pgconn.PgError
			require.False(t, errors.As(got, &pgErr), "driver error types must not leak")
		})
	}

	require.NoError(t, translatePgError(nil))
	require.NotErrorIs(t, translatePgError(context.Canceled), crud.ErrUnavailable)
}

func TestTranslatePgErrorIsIdempotent(t *testing.T) {
	once := translatePgError(errors.New("boom"))
	twice := translatePgError(once)
	require.EqualError(t, twice, "postgres: boom")

	var se *crud.StorageError
	require.ErrorAs(t, twice, &se)

	unknown := translatePgError(&pgconn.PgError{Code: "42P01", Message: "missing"})
	require.EqualError(t, translatePgError(unknown), "postgres: 42P01: missing")
}
