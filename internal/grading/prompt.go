package grading

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Veraticus/gradeflow/internal/model"
)

const systemPrompt = `You are an experienced teaching assistant grading exam answers against a rubric.
Grade every criterion listed in the rubric exactly once, using its question number and criterion index.
For each criterion decide a mark: "full", "partial" or "none", and the points earned.
Apply the deduction rules of a criterion to compute partial credit.
Explain each decision in one or two sentences.
Report your confidence for each grade as "high", "medium" or "low"; when it is not high, say why in low_confidence_reason.
Respond with JSON only, in the form:
{"grades": [{"question_number": 1, "criterion_index": 0, "criterion": "...", "mark": "full", "points_earned": 5, "points_possible": 5, "explanation": "...", "confidence": "high", "low_confidence_reason": ""}],
 "low_confidence_notes": ["..."]}`

// buildPrompt enumerates every criterion with its key, followed by the
// student's answers.
func buildPrompt(rubric model.NormalizedRubric, test model.StudentTest) string {
	var sb strings.Builder

	if rubric.Name != "" {
		fmt.Fprintf(&sb, "Exam: %s\n", rubric.Name)
	}
	if rubric.ProgrammingLanguage != "" {
		fmt.Fprintf(&sb, "Programming language: %s\n", rubric.ProgrammingLanguage)
	}
	fmt.Fprintf(&sb, "Total criteria to grade: %d\n\n", rubric.TotalCriteria())

	sb.WriteString("RUBRIC\n")
	for _, q := range rubric.Questions {
		fmt.Fprintf(&sb, "\nQuestion %d", q.QuestionNumber)
		if q.QuestionText != "" {
			fmt.Fprintf(&sb, ": %s", q.QuestionText)
		}
		sb.WriteString("\n")

		for _, ref := range q.AllCriteria() {
			c := ref.Criterion
			fmt.Fprintf(&sb, "- [question_number=%d, criterion_index=%d]", q.QuestionNumber, c.Index)
			if ref.SubQuestionID != "" {
				fmt.Fprintf(&sb, " (sub-question %s)", ref.SubQuestionID)
			}
			fmt.Fprintf(&sb, " %s (%s points)\n", c.Description, formatPoints(c.TotalPoints))
			for _, r := range c.Rules {
				if !r.IsExplicit {
					continue
				}
				fmt.Fprintf(&sb, "    deduct %s: %s\n", formatPoints(r.DeductionPoints), r.Description)
			}
		}
	}

	sb.WriteString("\nSTUDENT ANSWERS\n")
	if len(test.Answers) == 0 {
		sb.WriteString("(no answers were transcribed)\n")
	}
	for _, a := range test.Answers {
		fmt.Fprintf(&sb, "\nQuestion %d", a.QuestionNumber)
		if a.SubQuestionID != "" {
			fmt.Fprintf(&sb, " (sub-question %s)", a.SubQuestionID)
		}
		sb.WriteString(":\n")
		if strings.TrimSpace(a.AnswerText) == "" {
			sb.WriteString("(no answer submitted)\n")
			continue
		}
		if a.Degraded() {
			sb.WriteString("(part of this answer could not be read; treat unreadable parts as not submitted)\n")
		}
		sb.WriteString(a.AnswerText)
		sb.WriteString("\n")
	}

	return sb.String()
}

func formatPoints(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
