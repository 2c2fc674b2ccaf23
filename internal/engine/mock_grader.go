package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/Veraticus/gradeflow/internal/model"
)

// MockGrader is a test implementation of the Grader interface.
// Every test gets full marks unless its student is listed in Failures.
type MockGrader struct {
	Failures map[string]error
	// Percentages overrides the score for a student (0-100 of 10 points).
	Percentages map[string]float64
	calls       []string
	mu          sync.Mutex
}

// NewMockGrader creates a mock grader.
func NewMockGrader() *MockGrader {
	return &MockGrader{
		Failures:    make(map[string]error),
		Percentages: make(map[string]float64),
	}
}

// Grade implements Grader.
func (m *MockGrader) Grade(ctx context.Context, _ model.NormalizedRubric, test model.StudentTest) (model.GradingResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, test.StudentName)
	failure := m.Failures[test.StudentName]
	pct, hasPct := m.Percentages[test.StudentName]
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		failure = err
	}
	if failure != nil {
		return model.GradingResult{
			StudentName:        test.StudentName,
			Filename:           test.Filename,
			Grades:             []model.Grade{},
			Error:              failure.Error(),
			LowConfidenceNotes: []string{fmt.Sprintf("Grading failed: %v", failure)},
		}, failure
	}

	if !hasPct {
		pct = 100
	}
	earned := pct / 10
	result := model.GradingResult{
		StudentName: test.StudentName,
		Filename:    test.Filename,
		Grades: []model.Grade{{
			QuestionNumber: 1,
			Criterion:      "works",
			Mark:           model.MarkForPoints(earned, 10),
			PointsEarned:   earned,
			PointsPossible: 10,
			Explanation:    "mock",
			Confidence:     model.ConfidenceHigh,
		}},
		LowConfidenceNotes: []string{},
	}
	result.Recompute()
	return result, nil
}

// Calls returns the students graded so far, in call order.
func (m *MockGrader) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}
