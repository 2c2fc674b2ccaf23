package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// ExpectedSchemaVersion is the latest schema version that the application expects.
// If the database cannot be migrated to this version, it's a fatal error.
const ExpectedSchemaVersion = 2

// Migration represents a database schema migration.
type Migration struct {
	Up          func(*sql.Tx) error
	Description string
	Version     int
}

func execAll(tx *sql.Tx, queries ...string) error {
	for _, query := range queries {
		if _, err := tx.Exec(query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
	}
	return nil
}

var migrations = []Migration{
	{
		Version:     1,
		Description: "Initial schema",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE TABLE IF NOT EXISTS rubrics (
					id TEXT PRIMARY KEY,
					name TEXT NOT NULL DEFAULT '',
					total_points DOUBLE PRECISION NOT NULL DEFAULT 0,
					total_criteria INTEGER NOT NULL DEFAULT 0,
					data TEXT NOT NULL,
					created_at TIMESTAMP NOT NULL
				)`,

				`CREATE TABLE IF NOT EXISTS batches (
					id TEXT PRIMARY KEY,
					rubric_id TEXT NOT NULL REFERENCES rubrics(id),
					created_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_batches_rubric ON batches(rubric_id)`,

				`CREATE TABLE IF NOT EXISTS results (
					id TEXT PRIMARY KEY,
					batch_id TEXT NOT NULL REFERENCES batches(id),
					seq INTEGER NOT NULL,
					student_name TEXT NOT NULL DEFAULT '',
					filename TEXT NOT NULL DEFAULT '',
					percentage DOUBLE PRECISION NOT NULL DEFAULT 0,
					failed INTEGER NOT NULL DEFAULT 0,
					data TEXT NOT NULL,
					graded_at TIMESTAMP NOT NULL
				)`,
				`CREATE INDEX IF NOT EXISTS idx_results_batch ON results(batch_id, seq)`,
			)
		},
	},
	{
		Version:     2,
		Description: "Index results by student",
		Up: func(tx *sql.Tx) error {
			return execAll(tx,
				`CREATE INDEX IF NOT EXISTS idx_results_student ON results(student_name)`,
			)
		},
	},
}

// Migrate applies all pending database migrations.
func (s *sqlStore) Migrate(ctx context.Context) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	currentVersion, err := s.dialect.getVersion(ctx, s.db)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	for _, migration := range migrations {
		if migration.Version <= currentVersion {
			continue
		}

		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return fmt.Errorf("failed to begin transaction: %w", txErr)
		}

		if upErr := migration.Up(tx); upErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", migration.Version, upErr)
		}

		if verErr := s.dialect.setVersion(tx, migration.Version); verErr != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to update schema version: %w", verErr)
		}

		if commitErr := tx.Commit(); commitErr != nil {
			return fmt.Errorf("failed to commit migration %d: %w", migration.Version, commitErr)
		}

		slog.Info("Applied migration",
			"database", s.dialect.name,
			"version", migration.Version,
			"description", migration.Description)
	}

	finalVersion, err := s.dialect.getVersion(ctx, s.db)
	if err != nil {
		return fmt.Errorf("failed to verify final schema version: %w", err)
	}

	if finalVersion != ExpectedSchemaVersion {
		return fmt.Errorf("database schema version mismatch: expected %d, got %d", ExpectedSchemaVersion, finalVersion)
	}

	return nil
}

// SchemaVersion reports the schema version the database is currently at.
func (s *sqlStore) SchemaVersion(ctx context.Context) (int, error) {
	if err := validateContext(ctx); err != nil {
		return 0, err
	}
	return s.dialect.getVersion(ctx, s.db)
}
