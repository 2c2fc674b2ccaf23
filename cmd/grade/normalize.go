package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Veraticus/gradeflow/internal/cli"
	"github.com/Veraticus/gradeflow/internal/config"
	"github.com/Veraticus/gradeflow/internal/report"
	"github.com/Veraticus/gradeflow/internal/rubric"
)

func normalizeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "normalize <rubric.json>",
		Short: "Convert a rubric to the canonical format",
		Long: `Read a rubric in the legacy, enhanced or mixed format and print its
canonical form. Malformed pieces are skipped with a warning, never fatal.

With --legacy the flattened description/points payload is printed instead.
With --save the rubric is stored and its id printed, for use with grade.`,
		Args: cobra.ExactArgs(1),
		RunE: runNormalize,
	}

	cmd.Flags().Bool("legacy", false, "Print the legacy flattened payload")
	cmd.Flags().Bool("save", false, "Store the rubric in the database")

	return cmd
}

func runNormalize(cmd *cobra.Command, args []string) error {
	legacy, _ := cmd.Flags().GetBool("legacy")
	save, _ := cmd.Flags().GetBool("save")

	data, err := os.ReadFile(config.ExpandPath(args[0]))
	if err != nil {
		return fmt.Errorf("failed to read rubric: %w", err)
	}

	normalized := rubric.NormalizeJSON(data)
	slog.Info("Rubric normalized",
		"questions", len(normalized.Questions),
		"criteria", normalized.TotalCriteria(),
		"total_points", normalized.TotalPoints())

	out := cmd.OutOrStdout()

	if save {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := initStorage(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer func() { _ = store.Close() }()

		id, err := store.SaveRubric(cmd.Context(), normalized)
		if err != nil {
			return fmt.Errorf("failed to save rubric: %w", err)
		}
		fmt.Fprintln(out, cli.FormatSuccess("Rubric saved: "+id))
		return nil
	}

	if legacy {
		_, err := fmt.Fprintln(out, string(rubric.DenormalizeJSON(normalized)))
		return err
	}

	return report.WriteJSON(out, normalized.ToMap())
}
