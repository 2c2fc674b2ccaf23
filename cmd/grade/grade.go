package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/Veraticus/gradeflow/internal/cli"
	"github.com/Veraticus/gradeflow/internal/engine"
	"github.com/Veraticus/gradeflow/internal/grading"
	"github.com/Veraticus/gradeflow/internal/llm"
	"github.com/Veraticus/gradeflow/internal/model"
	"github.com/Veraticus/gradeflow/internal/report"
)

func gradeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "grade <test.json|dir>...",
		Short: "Grade transcribed tests against a rubric",
		Long: `Grade every transcribed student test against one rubric. Each test takes
a single model call. A failing test is reported and the batch continues.

The rubric is either a rubric file or the id printed by "normalize --save".
Results are stored as a batch; view them again with "grade results".`,
		Args: cobra.MinimumNArgs(1),
		RunE: runGrade,
	}

	cmd.Flags().StringP("rubric", "r", "", "Rubric file or stored rubric id (required)")
	cmd.Flags().Int("workers", 0, "Tests graded at a time (default from grading.workers)")
	cmd.Flags().Bool("json", false, "Print the batch as JSON")
	cmd.Flags().Bool("no-progress", false, "Hide the progress bar")
	_ = cmd.MarkFlagRequired("rubric")

	return cmd
}

func runGrade(cmd *cobra.Command, args []string) error {
	rubricRef, _ := cmd.Flags().GetString("rubric")
	workers, _ := cmd.Flags().GetInt("workers")
	asJSON, _ := cmd.Flags().GetBool("json")
	noProgress, _ := cmd.Flags().GetBool("no-progress")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	if workers <= 0 {
		workers = cfg.Workers
	}

	tests, err := loadTests(args)
	if err != nil {
		return err
	}
	if len(tests) == 0 {
		return fmt.Errorf("no student tests found")
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context(), "Finished results are already stored.")

	store, err := initStorage(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	normalized, rubricID, err := loadRubric(ctx, store, rubricRef)
	if err != nil {
		return err
	}
	if normalized.TotalCriteria() == 0 {
		return fmt.Errorf("rubric %s has no gradable criteria", rubricRef)
	}
	if rubricID == "" {
		if rubricID, err = store.SaveRubric(ctx, normalized); err != nil {
			return fmt.Errorf("failed to save rubric: %w", err)
		}
	}

	batchID, err := store.CreateBatch(ctx, rubricID)
	if err != nil {
		return fmt.Errorf("failed to create batch: %w", err)
	}

	client, err := llm.NewClient(ctx, cfg.LLM)
	if err != nil {
		return err
	}
	defer func() { _ = llm.Close(client) }()

	grader := grading.NewEngine(client, cfg.Grading, slog.Default())

	opts := engine.Options{
		Sink:    store,
		BatchID: batchID,
		Workers: workers,
	}
	if !noProgress && !asJSON {
		opts.Progress = progressReporter(cmd.ErrOrStderr(), len(tests))
	}

	slog.Info("Grading batch",
		"batch", batchID,
		"rubric", rubricID,
		"tests", len(tests),
		"workers", workers)

	orchestrator := engine.New(grader, opts, slog.Default())
	batch, gradeErr := orchestrator.GradeBatch(ctx, normalized, tests)

	out := cmd.OutOrStdout()
	if asJSON {
		if err := report.WriteBatchJSON(out, batch); err != nil {
			return err
		}
	} else {
		if err := report.WriteBatch(out, batch); err != nil {
			return err
		}
		fmt.Fprintln(out, cli.FormatInfo("Batch id: "+batchID))
	}

	for _, e := range batch.Errors {
		slog.Warn("Test failed", "index", e.Index, "student", e.StudentName, "error", e.Err)
	}

	return gradeErr
}

// progressReporter returns an orchestrator progress callback that drives a
// progress bar on w.
func progressReporter(w io.Writer, total int) func(done, total int, result model.GradingResult) {
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("[cyan][bold]Grading tests...[reset]"),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionOnCompletion(func() {
			_, _ = fmt.Fprintln(w)
		}),
	)

	return func(done, _ int, result model.GradingResult) {
		if result.Failed() {
			bar.Describe(fmt.Sprintf("[red]%s failed[reset]", result.StudentName))
		} else {
			bar.Describe(fmt.Sprintf("[cyan]%s[reset] %.2f%%", result.StudentName, result.Percentage))
		}
		_ = bar.Set(done)
	}
}
