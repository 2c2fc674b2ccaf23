// Package service defines the interfaces for all application services.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/Veraticus/gradeflow/internal/model"
)

// Storage defines the contract for our persistence layer.
// Implementations store rubrics and results in their plain map form.
type Storage interface {
	// Rubric operations
	SaveRubric(ctx context.Context, rubric model.NormalizedRubric) (string, error)
	GetRubric(ctx context.Context, id string) (*model.NormalizedRubric, error)

	// Result operations
	CreateBatch(ctx context.Context, rubricID string) (string, error)
	SaveResult(ctx context.Context, batchID string, result model.GradingResult) error
	GetResults(ctx context.Context, batchID string) ([]model.GradingResult, error)
	GetBatchRubric(ctx context.Context, batchID string) (*model.NormalizedRubric, error)
	ListBatches(ctx context.Context) ([]BatchInfo, error)

	// Database management
	Migrate(ctx context.Context) error
	SchemaVersion(ctx context.Context) (int, error)
	Close() error
}

// BatchInfo summarizes a stored grading batch.
type BatchInfo struct {
	CreatedAt   time.Time
	ID          string
	RubricID    string
	ResultCount int
	FailedCount int
}

// RetryOptions configures retry behavior for model calls.
type RetryOptions struct {
	// Sleep waits between attempts; nil means a real, context-aware sleep.
	Sleep        func(ctx context.Context, d time.Duration) error
	// Logger receives the per-retry warnings; nil means slog.Default().
	Logger       *slog.Logger
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}
