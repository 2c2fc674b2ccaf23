// Package storage provides the persistence layer for rubrics and grading results.
//
// Rubrics and results are stored as the JSON of their ToMap form, next to a
// few indexed columns used for listing. The same SQL runs on SQLite and
// PostgreSQL; only placeholders and schema version tracking differ.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/gradeflow/internal/service"
)

var (
	_ service.Storage = (*SQLiteStorage)(nil)
	_ service.Storage = (*PostgresStorage)(nil)
)

// dialect captures the differences between the supported databases.
type dialect struct {
	getVersion func(ctx context.Context, db *sql.DB) (int, error)
	setVersion func(tx *sql.Tx, version int) error
	name       string
	numbered   bool
}

// rebind rewrites ? placeholders to $1, $2, ... for dialects that need it.
func (d dialect) rebind(query string) string {
	if !d.numbered {
		return query
	}

	var sb strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			sb.WriteString("$" + strconv.Itoa(n))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// sqlStore implements service.Storage on top of database/sql.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

func (s *sqlStore) exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return s.db.ExecContext(ctx, s.dialect.rebind(query), args...)
}

func (s *sqlStore) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return s.db.QueryRowContext(ctx, s.dialect.rebind(query), args...)
}

func (s *sqlStore) query(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return s.db.QueryContext(ctx, s.dialect.rebind(query), args...)
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping %s database: %w", s.dialect.name, err)
	}
	return nil
}
