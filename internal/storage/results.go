package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/gradeflow/internal/common"
	"github.com/Veraticus/gradeflow/internal/model"
	"github.com/Veraticus/gradeflow/internal/service"
)

// CreateBatch starts a new result batch for a stored rubric.
func (s *sqlStore) CreateBatch(ctx context.Context, rubricID string) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}
	if err := validateString(rubricID, "rubricID"); err != nil {
		return "", err
	}

	var exists int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM rubrics WHERE id = ?`, rubricID).Scan(&exists)
	if err != nil {
		return "", fmt.Errorf("failed to check rubric: %w", err)
	}
	if exists == 0 {
		return "", fmt.Errorf("rubric %s: %w", rubricID, common.ErrNotFound)
	}

	id := uuid.NewString()
	if _, err := s.exec(ctx, `INSERT INTO batches (id, rubric_id, created_at) VALUES (?, ?, ?)`,
		id, rubricID, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("failed to create batch: %w", err)
	}

	return id, nil
}

// SaveResult appends a result to a batch. Saving a result with an id that
// is already stored replaces it in place.
func (s *sqlStore) SaveResult(ctx context.Context, batchID string, result model.GradingResult) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(batchID, "batchID"); err != nil {
		return err
	}
	if err := validateResult(result); err != nil {
		return err
	}

	if result.ID == "" {
		result.ID = uuid.NewString()
	}
	if result.GradedAt.IsZero() {
		result.GradedAt = time.Now().UTC()
	}

	data, err := json.Marshal(result.ToMap())
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}

	failed := 0
	if result.Failed() {
		failed = 1
	}

	_, err = s.exec(ctx, `
		INSERT INTO results (id, batch_id, seq, student_name, filename, percentage, failed, data, graded_at)
		VALUES (?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM results WHERE batch_id = ?), ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			student_name = excluded.student_name,
			filename = excluded.filename,
			percentage = excluded.percentage,
			failed = excluded.failed,
			data = excluded.data,
			graded_at = excluded.graded_at`,
		result.ID, batchID, batchID, result.StudentName, result.Filename,
		result.Percentage, failed, string(data), result.GradedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save result: %w", err)
	}

	return nil
}

// GetResults returns the results of a batch in the order they were saved.
func (s *sqlStore) GetResults(ctx context.Context, batchID string) ([]model.GradingResult, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(batchID, "batchID"); err != nil {
		return nil, err
	}

	var exists int
	if err := s.queryRow(ctx, `SELECT COUNT(*) FROM batches WHERE id = ?`, batchID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check batch: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("batch %s: %w", batchID, common.ErrNotFound)
	}

	rows, err := s.query(ctx, `SELECT data FROM results WHERE batch_id = ? ORDER BY seq`, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to query results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	results := []model.GradingResult{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan result: %w", err)
		}

		var result model.GradingResult
		if err := json.Unmarshal([]byte(data), &result); err != nil {
			return nil, fmt.Errorf("failed to decode result: %w", err)
		}
		results = append(results, result)
	}

	return results, rows.Err()
}

// ListBatches lists stored batches, newest first.
func (s *sqlStore) ListBatches(ctx context.Context) ([]service.BatchInfo, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, `
		SELECT b.id, b.rubric_id, b.created_at, COUNT(r.id), COALESCE(SUM(r.failed), 0)
		FROM batches b
		LEFT JOIN results r ON r.batch_id = b.id
		GROUP BY b.id, b.rubric_id, b.created_at
		ORDER BY b.created_at DESC, b.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query batches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var batches []service.BatchInfo
	for rows.Next() {
		var b service.BatchInfo
		var createdAt sql.NullTime
		if err := rows.Scan(&b.ID, &b.RubricID, &createdAt, &b.ResultCount, &b.FailedCount); err != nil {
			return nil, fmt.Errorf("failed to scan batch: %w", err)
		}
		b.CreatedAt = createdAt.Time
		batches = append(batches, b)
	}

	return batches, rows.Err()
}

// GetBatchRubric returns the rubric a batch was graded against.
func (s *sqlStore) GetBatchRubric(ctx context.Context, batchID string) (*model.NormalizedRubric, error) {
	var rubricID string
	err := s.queryRow(ctx, `SELECT rubric_id FROM batches WHERE id = ?`, batchID).Scan(&rubricID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", batchID, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return s.GetRubric(ctx, rubricID)
}
