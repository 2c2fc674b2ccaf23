// Package engine drives the grading of a whole batch of student tests.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/gradeflow/internal/model"
)

// Options configures a batch run.
type Options struct {
	// Sink, when set together with BatchID, stores every result as it completes.
	Sink ResultSink
	// Progress is called once per graded test, never concurrently.
	Progress func(done, total int, result model.GradingResult)
	BatchID  string
	// Workers > 1 grades that many tests at a time; results keep input order.
	Workers int
}

// Stats summarizes the percentages of a batch. Mean, Min and Max cover only
// results with a positive TotalPossible.
type Stats struct {
	Graded int
	Failed int
	Scored int
	Mean   float64
	Min    float64
	Max    float64
}

// TestError records why one test of the batch failed.
type TestError struct {
	Err         error
	StudentName string
	Filename    string
	Index       int
}

func (e TestError) Error() string {
	return fmt.Sprintf("test %d (%s): %v", e.Index, e.StudentName, e.Err)
}

func (e TestError) Unwrap() error {
	return e.Err
}

// BatchResult is the outcome of grading a batch. Results has exactly one
// entry per input test, in input order.
type BatchResult struct {
	Results            []model.GradingResult
	LowConfidenceNotes []string
	Errors             []TestError
	Stats              Stats
	Duration           time.Duration
}

// Orchestrator sequences a Grader over a batch of tests.
type Orchestrator struct {
	grader Grader
	logger *slog.Logger
	opts   Options
}

// New creates an orchestrator.
func New(grader Grader, opts Options, logger *slog.Logger) *Orchestrator {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		grader: grader,
		opts:   opts,
		logger: logger,
	}
}

// batchRun is the accumulator for one GradeBatch call.
type batchRun struct {
	started time.Time
	rubric  model.NormalizedRubric
	tests   []model.StudentTest
	results []model.GradingResult
	errs    []error
	next    int
	mu      sync.Mutex
	done    int
}

func (r *batchRun) remaining() int {
	return len(r.tests) - r.next
}

// GradeBatch grades every test and compiles the batch result. A failing
// test never stops the batch. The returned error is non-nil only when ctx
// was canceled; the result still holds one entry per test.
func (o *Orchestrator) GradeBatch(ctx context.Context, rubric model.NormalizedRubric, tests []model.StudentTest) (BatchResult, error) {
	var run *batchRun
	var out BatchResult

	state := StateInitialize
	for state != StateDone {
		switch state {
		case StateInitialize:
			run = &batchRun{
				started: time.Now(),
				rubric:  rubric,
				tests:   tests,
				results: make([]model.GradingResult, len(tests)),
				errs:    make([]error, len(tests)),
			}
			o.logger.Info("starting batch",
				"batch_id", o.opts.BatchID,
				"tests", len(tests),
				"criteria", rubric.TotalCriteria(),
				"workers", o.opts.Workers)
		case StateGradeNextTest:
			o.gradeNext(ctx, run)
		case StateCompileResults:
			out = o.compile(run)
		}

		nextState := next(state, run.remaining())
		o.logger.Debug("batch state transition", "from", state, "to", nextState)
		state = nextState
	}

	if err := ctx.Err(); err != nil {
		return out, fmt.Errorf("batch interrupted: %w", err)
	}
	return out, nil
}

// gradeNext grades the next test, or the next Workers tests concurrently.
func (o *Orchestrator) gradeNext(ctx context.Context, run *batchRun) {
	start := run.next
	end := min(start+o.opts.Workers, len(run.tests))
	run.next = end

	if end-start == 1 {
		o.gradeOne(ctx, run, start)
		return
	}

	var g errgroup.Group
	for i := start; i < end; i++ {
		g.Go(func() error {
			o.gradeOne(ctx, run, i)
			return nil
		})
	}
	_ = g.Wait()
}

func (o *Orchestrator) gradeOne(ctx context.Context, run *batchRun, i int) {
	test := run.tests[i]

	result, err := o.grader.Grade(ctx, run.rubric, test)
	if err != nil {
		o.logger.Warn("test failed, continuing batch",
			"index", i,
			"student", test.StudentName,
			"error", err)
	}
	if result.StudentName == "" {
		result.StudentName = test.StudentName
	}
	if result.Filename == "" {
		result.Filename = test.Filename
	}
	if err != nil && result.Error == "" {
		result.Error = err.Error()
	}

	if o.opts.Sink != nil && o.opts.BatchID != "" {
		if saveErr := o.opts.Sink.SaveResult(context.WithoutCancel(ctx), o.opts.BatchID, result); saveErr != nil {
			o.logger.Error("failed to store result",
				"batch_id", o.opts.BatchID,
				"student", test.StudentName,
				"error", saveErr)
			if err == nil {
				err = fmt.Errorf("failed to store result: %w", saveErr)
			}
		}
	}

	run.mu.Lock()
	defer run.mu.Unlock()

	run.results[i] = result
	run.errs[i] = err
	run.done++
	if o.opts.Progress != nil {
		o.opts.Progress(run.done, len(run.tests), result)
	}
}

func (o *Orchestrator) compile(run *batchRun) BatchResult {
	out := Summarize(run.results)
	out.Duration = time.Since(run.started)

	for i, result := range run.results {
		if err := run.errs[i]; err != nil {
			out.Errors = append(out.Errors, TestError{
				Index:       i,
				StudentName: result.StudentName,
				Filename:    result.Filename,
				Err:         err,
			})
		}
	}

	o.logger.Info("batch complete",
		"batch_id", o.opts.BatchID,
		"graded", out.Stats.Graded,
		"failed", out.Stats.Failed,
		"mean", out.Stats.Mean,
		"duration", out.Duration)

	return out
}

// Summarize builds a BatchResult from finished results: the review notes,
// prefixed with the student they belong to, and the statistics.
func Summarize(results []model.GradingResult) BatchResult {
	out := BatchResult{
		Results:            results,
		LowConfidenceNotes: []string{},
	}

	for _, result := range results {
		who := result.StudentName
		if who == "" {
			who = result.Filename
		}
		for _, note := range result.LowConfidenceNotes {
			out.LowConfidenceNotes = append(out.LowConfidenceNotes, fmt.Sprintf("%s: %s", who, note))
		}
	}

	out.Stats = ComputeStats(results)
	return out
}

// ComputeStats summarizes a list of results.
func ComputeStats(results []model.GradingResult) Stats {
	var stats Stats
	var sum float64

	for _, r := range results {
		if r.Failed() {
			stats.Failed++
		} else {
			stats.Graded++
		}
		if r.TotalPossible <= 0 {
			continue
		}

		if stats.Scored == 0 {
			stats.Min, stats.Max = r.Percentage, r.Percentage
		}
		stats.Min = math.Min(stats.Min, r.Percentage)
		stats.Max = math.Max(stats.Max, r.Percentage)
		sum += r.Percentage
		stats.Scored++
	}

	if stats.Scored > 0 {
		stats.Mean = math.Round(sum/float64(stats.Scored)*100) / 100
	}
	return stats
}
