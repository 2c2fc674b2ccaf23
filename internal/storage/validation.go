package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Veraticus/gradeflow/internal/model"
)

// Validation errors.
var (
	ErrNilContext   = errors.New("context cannot be nil")
	ErrEmptyString  = errors.New("string parameter cannot be empty")
	ErrInvalidGrade = errors.New("invalid grade")
)

// validateContext ensures the context is not nil.
func validateContext(ctx context.Context) error {
	if ctx == nil {
		return ErrNilContext
	}
	return nil
}

// validateString ensures a string parameter is not empty.
func validateString(s string, paramName string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s", ErrEmptyString, paramName)
	}
	return nil
}

// validateResult checks the fields a stored result must carry.
func validateResult(result model.GradingResult) error {
	for i, g := range result.Grades {
		if !g.Mark.IsValid() {
			return fmt.Errorf("%w at index %d: mark %q", ErrInvalidGrade, i, g.Mark)
		}
		if !g.Confidence.IsValid() {
			return fmt.Errorf("%w at index %d: confidence %q", ErrInvalidGrade, i, g.Confidence)
		}
		if g.PointsEarned < 0 || g.PointsEarned > g.PointsPossible {
			return fmt.Errorf("%w at index %d: %v of %v points", ErrInvalidGrade, i, g.PointsEarned, g.PointsPossible)
		}
	}
	return nil
}
