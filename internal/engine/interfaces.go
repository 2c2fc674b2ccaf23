package engine

import (
	"context"

	"github.com/Veraticus/gradeflow/internal/model"
)

// Grader defines the contract for grading a single student test.
// Implementations return a usable result even when they return an error.
type Grader interface {
	Grade(ctx context.Context, rubric model.NormalizedRubric, test model.StudentTest) (model.GradingResult, error)
}

// ResultSink receives each result as soon as it is graded.
type ResultSink interface {
	SaveResult(ctx context.Context, batchID string, result model.GradingResult) error
}
