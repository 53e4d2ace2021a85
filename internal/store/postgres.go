package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"servidores/api/internal/assignment"
	"servidores/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// scopeArgs renders a scope as the (stage_base, day, week, module) arguments every scoped
// query takes. Week 0 and a nil module disable those filters.
func scopeArgs(scope assignment.Scope) (string, string, int, *int) {
	var module *int
	if scope.HasModule && scope.Base != assignment.BaseRestauracion {
		m := scope.Module
		module = &m
	}
	return string(scope.Base), util.Fold(scope.Day), scope.Week, module
}

// mapProcedureError translates the SQLSTATEs raised by the portal procedures.
func mapProcedureError(op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "P0002":
			return fmt.Errorf("%s: %w: %s", op, ErrNotFound, pgErr.Message)
		case "42501":
			return fmt.Errorf("%s: %w: %s", op, ErrOutOfScope, pgErr.Message)
		case "22P02":
			return fmt.Errorf("%s: %w: malformed id", op, ErrNotFound)
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func nullString(v sql.NullString) string {
	if v.Valid {
		return v.String
	}
	return ""
}
