package grading

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/Veraticus/gradeflow/internal/common"
	"github.com/Veraticus/gradeflow/internal/llm"
	"github.com/Veraticus/gradeflow/internal/model"
)

// Config controls the grading call.
type Config struct {
	// Now stamps results; nil uses time.Now.
	Now         func() time.Time
	CallTimeout time.Duration
}

// Engine grades student tests with a language model.
type Engine struct {
	client llm.Client
	logger *slog.Logger
	now    func() time.Time
	config Config
}

// NewEngine creates a grading engine.
func NewEngine(client llm.Client, cfg Config, logger *slog.Logger) *Engine {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 120 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Engine{
		client: client,
		config: cfg,
		logger: logger,
		now:    now,
	}
}

// Grade grades one test against the rubric with a single model call.
//
// The returned result is always usable. When the call fails or the response
// cannot be parsed, the result is a terminal zero-score result carrying the
// error, and the error is also returned wrapped in common.ErrGradingCall or
// common.ErrMalformedResponse.
func (e *Engine) Grade(ctx context.Context, rubric model.NormalizedRubric, test model.StudentTest) (model.GradingResult, error) {
	lookup := newCriterionLookup(rubric)

	e.logger.Info("grading test",
		"student", test.StudentName,
		"filename", test.Filename,
		"criteria", len(lookup.keys))

	response, err := e.call(ctx, rubric, test)
	if err != nil {
		err = fmt.Errorf("%w: %w", common.ErrGradingCall, err)
		e.logger.Error("grading call failed", "student", test.StudentName, "error", err)
		return e.failedResult(test, err), err
	}

	parsed, err := parseResponse(response)
	if err != nil {
		e.logger.Error("grading response could not be parsed",
			"student", test.StudentName,
			"error", err,
			"response_bytes", len(response))
		return e.failedResult(test, err), err
	}

	r := &reconciler{
		logger:  e.logger,
		lookup:  lookup,
		student: test.StudentName,
	}
	grades := r.reconcile(parsed.Grades)

	result := model.GradingResult{
		ID:          uuid.NewString(),
		StudentName: test.StudentName,
		Filename:    test.Filename,
		Grades:      grades,
		GradedAt:    e.now().UTC(),
	}
	result.Recompute()
	result.SortGrades()

	var gradeNotes []string
	for _, g := range result.Grades {
		if g.Confidence.NeedsReview() {
			gradeNotes = append(gradeNotes, gradeNote(g))
		}
	}
	result.LowConfidenceNotes = mergeNotes(parsed.Notes, r.notes, gradeNotes)

	e.logger.Info("graded test",
		"student", test.StudentName,
		"score", result.TotalScore,
		"possible", result.TotalPossible,
		"percentage", result.Percentage,
		"repairs", r.repairs,
		"low_confidence", len(result.LowConfidenceNotes))

	return result, nil
}

func (e *Engine) call(ctx context.Context, rubric model.NormalizedRubric, test model.StudentTest) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.config.CallTimeout)
	defer cancel()

	return e.client.Complete(callCtx, llm.Request{
		System: systemPrompt,
		Prompt: buildPrompt(rubric, test),
		JSON:   true,
	})
}

// failedResult is the terminal result for a test that could not be graded.
func (e *Engine) failedResult(test model.StudentTest, err error) model.GradingResult {
	return model.GradingResult{
		ID:                 uuid.NewString(),
		StudentName:        test.StudentName,
		Filename:           test.Filename,
		Grades:             []model.Grade{},
		LowConfidenceNotes: []string{fmt.Sprintf("Grading failed: %v", err)},
		Error:              err.Error(),
		GradedAt:           e.now().UTC(),
	}
}
