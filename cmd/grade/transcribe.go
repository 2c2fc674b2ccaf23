package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Veraticus/gradeflow/internal/cli"
	"github.com/Veraticus/gradeflow/internal/config"
	"github.com/Veraticus/gradeflow/internal/llm"
	"github.com/Veraticus/gradeflow/internal/report"
	"github.com/Veraticus/gradeflow/internal/transcribe"
)

// assignmentEntry is one line of the page assignment file.
type assignmentEntry struct {
	SubQuestionID  string `json:"sub_question_id,omitempty"`
	Pages          []int  `json:"pages"`
	QuestionNumber int    `json:"question_number"`
}

func transcribeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <pages-dir>",
		Short: "Transcribe a student's exam pages",
		Long: `Send each page image in the directory to the vision model and assemble
the answers named in the assignment file. Pages are numbered from 1 in
natural file name order.

The assignment file is a JSON list such as:
  [{"question_number": 1, "pages": [1, 2]},
   {"question_number": 2, "sub_question_id": "a", "pages": [3]}]

Pages that still fail after all retries are marked in the output instead
of failing the whole test.`,
		Args: cobra.ExactArgs(1),
		RunE: runTranscribe,
	}

	cmd.Flags().String("assignments", "", "Page assignment JSON file (required)")
	cmd.Flags().String("student", "", "Student name")
	cmd.Flags().String("filename", "", "Source file name recorded on the test")
	cmd.Flags().String("language", "", "Programming language of the answers")
	cmd.Flags().StringP("output", "o", "", "Write the transcribed test to this file")
	_ = cmd.MarkFlagRequired("assignments")

	return cmd
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	assignmentsPath, _ := cmd.Flags().GetString("assignments")
	student, _ := cmd.Flags().GetString("student")
	filename, _ := cmd.Flags().GetString("filename")
	language, _ := cmd.Flags().GetString("language")
	output, _ := cmd.Flags().GetString("output")

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}

	assignments, err := readAssignments(config.ExpandPath(assignmentsPath))
	if err != nil {
		return err
	}

	dir := config.ExpandPath(args[0])
	if filename == "" {
		filename = filepath.Base(dir)
	}

	interrupts := cli.NewInterruptHandler(cmd.ErrOrStderr())
	ctx := interrupts.HandleInterrupts(cmd.Context(), "No output was written.")

	pages, err := transcribe.DirSource{Dir: dir}.Pages(ctx)
	if err != nil {
		return err
	}
	if len(pages) == 0 {
		return fmt.Errorf("no page images found in %s", dir)
	}

	raw, err := llm.NewClient(ctx, cfg.TranscriptionLLM())
	if err != nil {
		return err
	}
	client := llm.Cached(raw, cfg.LLM.CacheTTL)
	defer func() { _ = client.Close() }()

	pipeline := transcribe.NewPipeline(client, cfg.Transcription, slog.Default())

	slog.Info("Transcribing pages", "dir", dir, "pages", len(pages), "answers", len(assignments))

	test, err := pipeline.Transcribe(ctx, transcribe.TranscribeRequest{
		StudentName:         student,
		Filename:            filename,
		ProgrammingLanguage: language,
		Pages:               pages,
		Assignments:         assignments,
	})
	if err != nil {
		return err
	}

	for _, a := range test.Answers {
		if a.Degraded() {
			fmt.Fprintln(cmd.ErrOrStderr(), cli.FormatWarning(fmt.Sprintf(
				"Question %d%s: pages %v could not be transcribed", a.QuestionNumber, subLabel(a.SubQuestionID), pageNumbers(a.DegradedPages))))
		}
	}

	var w io.Writer = cmd.OutOrStdout()
	if output != "" {
		f, err := os.Create(config.ExpandPath(output))
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}

	return report.WriteJSON(w, test)
}

func readAssignments(path string) ([]transcribe.PageAssignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read assignments: %w", err)
	}

	var entries []assignmentEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse assignments: %w", err)
	}

	out := make([]transcribe.PageAssignment, 0, len(entries))
	for i, e := range entries {
		if e.QuestionNumber <= 0 {
			return nil, fmt.Errorf("assignment %d: question_number must be positive", i)
		}
		for _, p := range e.Pages {
			if p <= 0 {
				return nil, fmt.Errorf("assignment %d: page numbers start at 1, got %d", i, p)
			}
		}

		// The file counts pages from 1; the pipeline indexes them from 0.
		indices := make([]int, 0, len(e.Pages))
		for _, p := range e.Pages {
			indices = append(indices, p-1)
		}
		out = append(out, transcribe.PageAssignment{
			QuestionNumber: e.QuestionNumber,
			SubQuestionID:  e.SubQuestionID,
			Pages:          indices,
		})
	}
	return out, nil
}

func subLabel(id string) string {
	if id == "" {
		return ""
	}
	return " (" + id + ")"
}

func pageNumbers(indices []int) []int {
	out := make([]int, len(indices))
	for i, index := range indices {
		out[i] = index + 1
	}
	return out
}
