package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Veraticus/gradeflow/internal/cli"
	"github.com/Veraticus/gradeflow/internal/engine"
	"github.com/Veraticus/gradeflow/internal/report"
	"github.com/Veraticus/gradeflow/internal/service"
)

func resultsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "results [batch-id]",
		Short: "List stored batches or show one batch",
		Long: `Without arguments, list every stored grading batch, newest first.
With a batch id, print that batch's results and statistics again.`,
		Args: cobra.MaximumNArgs(1),
		RunE: runResults,
	}

	cmd.Flags().Bool("json", false, "Print the batch as JSON")

	return cmd
}

func runResults(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	store, err := initStorage(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	out := cmd.OutOrStdout()

	if len(args) == 0 {
		batches, err := store.ListBatches(ctx)
		if err != nil {
			return err
		}
		if asJSON {
			return report.WriteJSON(out, batches)
		}
		return writeBatchList(out, batches)
	}

	results, err := store.GetResults(ctx, args[0])
	if err != nil {
		return err
	}

	batch := engine.Summarize(results)
	if asJSON {
		return report.WriteBatchJSON(out, batch)
	}

	if r, err := store.GetBatchRubric(ctx, args[0]); err == nil {
		title := r.Name
		if title == "" {
			title = "Rubric"
		}
		fmt.Fprintln(out, cli.FormatTitle(fmt.Sprintf("%s (%d criteria, %s points)",
			title, r.TotalCriteria(), strconv.FormatFloat(r.TotalPoints(), 'f', -1, 64))))
	}
	return report.WriteBatch(out, batch)
}

func writeBatchList(w io.Writer, batches []service.BatchInfo) error {
	if len(batches) == 0 {
		_, err := fmt.Fprintln(w, cli.FormatInfo("No batches stored yet"))
		return err
	}

	fmt.Fprintln(w, cli.FormatTitle(cli.ChartIcon+" Grading batches"))
	for _, b := range batches {
		line := fmt.Sprintf("%s  %s  %d graded", b.ID, b.CreatedAt.Local().Format("2006-01-02 15:04"), b.ResultCount)
		if b.FailedCount > 0 {
			line += cli.ErrorStyle.Render(fmt.Sprintf("  %d failed", b.FailedCount))
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}
