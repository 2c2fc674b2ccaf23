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
)

// SaveRubric stores a normalized rubric and returns its new id.
func (s *sqlStore) SaveRubric(ctx context.Context, rubric model.NormalizedRubric) (string, error) {
	if err := validateContext(ctx); err != nil {
		return "", err
	}

	data, err := json.Marshal(rubric.ToMap())
	if err != nil {
		return "", fmt.Errorf("failed to encode rubric: %w", err)
	}

	id := uuid.NewString()
	_, err = s.exec(ctx, `
		INSERT INTO rubrics (id, name, total_points, total_criteria, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, rubric.Name, rubric.TotalPoints(), rubric.TotalCriteria(), string(data), time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("failed to save rubric: %w", err)
	}

	return id, nil
}

// GetRubric loads a stored rubric.
func (s *sqlStore) GetRubric(ctx context.Context, id string) (*model.NormalizedRubric, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}
	if err := validateString(id, "id"); err != nil {
		return nil, err
	}

	var data string
	err := s.queryRow(ctx, `SELECT data FROM rubrics WHERE id = ?`, id).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("rubric %s: %w", id, common.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rubric: %w", err)
	}

	var rubric model.NormalizedRubric
	if err := json.Unmarshal([]byte(data), &rubric); err != nil {
		return nil, fmt.Errorf("failed to decode rubric %s: %w", id, err)
	}

	return &rubric, nil
}
