// Package report renders grading results for people and for other programs.
// Marks become glyphs here and nowhere else.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Veraticus/gradeflow/internal/cli"
	"github.com/Veraticus/gradeflow/internal/engine"
	"github.com/Veraticus/gradeflow/internal/model"
)

// Glyph returns the display glyph for a mark.
func Glyph(m model.Mark) string {
	switch m {
	case model.MarkFull:
		return "✓"
	case model.MarkNone:
		return "✗"
	case model.MarkPartial:
		return "◐"
	default:
		return "?"
	}
}

func styledGlyph(m model.Mark) string {
	switch m {
	case model.MarkFull:
		return cli.SuccessStyle.Render(Glyph(m))
	case model.MarkNone:
		return cli.ErrorStyle.Render(Glyph(m))
	default:
		return cli.WarningStyle.Render(Glyph(m))
	}
}

func points(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// WriteResult renders one result as console text.
func WriteResult(w io.Writer, r model.GradingResult) error {
	var sb strings.Builder

	title := r.StudentName
	if title == "" {
		title = r.Filename
	}

	if r.Failed() {
		sb.WriteString(cli.FormatError(fmt.Sprintf("%s: grading failed: %s", title, r.Error)))
		sb.WriteString("\n")
		_, err := io.WriteString(w, sb.String())
		return err
	}

	for _, q := range r.Questions() {
		sb.WriteString(cli.BoldStyle.Render(fmt.Sprintf("Question %d", q.QuestionNumber)))
		sb.WriteString(cli.SubtleStyle.Render(fmt.Sprintf("  %s/%s", points(q.Earned), points(q.Possible))))
		sb.WriteString("\n")

		for _, g := range q.Grades {
			label := g.Criterion
			if g.SubQuestionID != "" {
				label = fmt.Sprintf("(%s) %s", g.SubQuestionID, label)
			}
			fmt.Fprintf(&sb, "  %s %s  %s/%s\n", styledGlyph(g.Mark), label, points(g.PointsEarned), points(g.PointsPossible))
			sb.WriteString(cli.SubtleStyle.Render("      " + g.Explanation))
			sb.WriteString("\n")
			if g.Confidence.NeedsReview() {
				sb.WriteString(cli.WarningStyle.Render(fmt.Sprintf("      %s %s confidence", cli.ReviewIcon, g.Confidence)))
				sb.WriteString("\n")
			}
		}
	}

	sb.WriteString(cli.FormatScore(r.Percentage, "Total: %s/%s (%.2f%%)",
		points(r.TotalScore), points(r.TotalPossible), r.Percentage))

	box := cli.RenderCard(title, sb.String())
	_, err := fmt.Fprintln(w, box)
	return err
}

// WriteBatch renders a batch: every result, then notes and statistics.
func WriteBatch(w io.Writer, batch engine.BatchResult) error {
	for _, r := range batch.Results {
		if err := WriteResult(w, r); err != nil {
			return err
		}
	}

	var sb strings.Builder
	if len(batch.LowConfidenceNotes) > 0 {
		sb.WriteString("\n")
		sb.WriteString(cli.FormatTitle(cli.ReviewIcon + " Needs review"))
		sb.WriteString("\n")
		for _, n := range batch.LowConfidenceNotes {
			sb.WriteString(cli.WarningStyle.Render("  • " + n))
			sb.WriteString("\n")
		}
	}

	s := batch.Stats
	sb.WriteString("\n")
	sb.WriteString(cli.FormatTitle(cli.ChartIcon + " Summary"))
	sb.WriteString("\n")
	fmt.Fprintf(&sb, "  Graded: %d  Failed: %d\n", s.Graded, s.Failed)
	if s.Scored > 0 {
		fmt.Fprintf(&sb, "  Mean: %.2f%%  Min: %.2f%%  Max: %.2f%%\n", s.Mean, s.Min, s.Max)
	}
	if s.Failed > 0 {
		sb.WriteString(cli.FormatWarning(fmt.Sprintf("%d test(s) could not be graded", s.Failed)))
		sb.WriteString("\n")
	}

	_, err := io.WriteString(w, sb.String())
	return err
}

// batchDocument is the JSON shape of a batch.
type batchDocument struct {
	Results            []map[string]any `json:"results"`
	LowConfidenceNotes []string         `json:"low_confidence_notes"`
	Stats              statsDocument    `json:"stats"`
}

type statsDocument struct {
	Graded int     `json:"graded"`
	Failed int     `json:"failed"`
	Scored int     `json:"scored"`
	Mean   float64 `json:"mean"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// WriteBatchJSON renders a batch as indented JSON built from ToMap.
func WriteBatchJSON(w io.Writer, batch engine.BatchResult) error {
	doc := batchDocument{
		Results:            make([]map[string]any, 0, len(batch.Results)),
		LowConfidenceNotes: batch.LowConfidenceNotes,
		Stats: statsDocument{
			Graded: batch.Stats.Graded,
			Failed: batch.Stats.Failed,
			Scored: batch.Stats.Scored,
			Mean:   batch.Stats.Mean,
			Min:    batch.Stats.Min,
			Max:    batch.Stats.Max,
		},
	}
	if doc.LowConfidenceNotes == nil {
		doc.LowConfidenceNotes = []string{}
	}
	for _, r := range batch.Results {
		doc.Results = append(doc.Results, r.ToMap())
	}

	return WriteJSON(w, doc)
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}
