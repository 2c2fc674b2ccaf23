package rubric

import (
	"fmt"
	"log/slog"

	"github.com/tidwall/sjson"

	"github.com/Veraticus/gradeflow/internal/model"
)

// LegacyCriterion is the flat description+points form older consumers expect.
type LegacyCriterion struct {
	Description string  `json:"description"`
	Points      float64 `json:"points"`
}

// LegacyQuestion is a question with its sub-questions flattened away.
type LegacyQuestion struct {
	QuestionText   string            `json:"question_text,omitempty"`
	Criteria       []LegacyCriterion `json:"criteria"`
	QuestionNumber int               `json:"question_number"`
}

// Denormalize reduces a canonical rubric to the legacy payload shape.
// Rule structure is dropped; each criterion keeps only its total points.
// Criteria that came from a sub-question are prefixed with its label.
func Denormalize(r model.NormalizedRubric) []LegacyQuestion {
	out := make([]LegacyQuestion, 0, len(r.Questions))
	for _, q := range r.Questions {
		lq := LegacyQuestion{
			QuestionNumber: q.QuestionNumber,
			QuestionText:   q.QuestionText,
			Criteria:       []LegacyCriterion{},
		}
		for _, ref := range q.AllCriteria() {
			description := ref.Criterion.Description
			if ref.SubQuestionID != "" {
				description = fmt.Sprintf("(%s) %s", ref.SubQuestionID, description)
			}
			lq.Criteria = append(lq.Criteria, LegacyCriterion{
				Description: description,
				Points:      ref.Criterion.TotalPoints,
			})
		}
		out = append(out, lq)
	}
	return out
}

// DenormalizeJSON renders the legacy payload as a JSON document with the
// rubric metadata alongside the flattened questions.
func DenormalizeJSON(r model.NormalizedRubric) []byte {
	doc := []byte(`{"questions":[]}`)

	set := func(path string, value any) {
		updated, err := sjson.SetBytes(doc, path, value)
		if err != nil {
			slog.Warn("failed to set legacy rubric field", "path", path, "error", err)
			return
		}
		doc = updated
	}

	if r.Name != "" {
		set("name", r.Name)
	}
	if r.Description != "" {
		set("description", r.Description)
	}
	if r.ProgrammingLanguage != "" {
		set("programming_language", r.ProgrammingLanguage)
	}
	for _, q := range Denormalize(r) {
		set("questions.-1", q)
	}

	return doc
}
