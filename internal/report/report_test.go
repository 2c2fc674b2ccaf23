package report

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/gradeflow/internal/engine"
	"github.com/Veraticus/gradeflow/internal/model"
)

func sampleBatch() engine.BatchResult {
	graded := model.GradingResult{
		StudentName: "Tal",
		Grades: []model.Grade{
			{QuestionNumber: 1, CriterionIndex: 0, Criterion: "base case", Mark: model.MarkFull,
				PointsEarned: 5, PointsPossible: 5, Explanation: "correct", Confidence: model.ConfidenceHigh},
			{QuestionNumber: 2, CriterionIndex: 0, SubQuestionID: "א", Criterion: "loop", Mark: model.MarkPartial,
				PointsEarned: 2, PointsPossible: 4, Explanation: "partial credit (2/4)", Confidence: model.ConfidenceLow},
		},
		LowConfidenceNotes: []string{"loop unclear"},
	}
	graded.Recompute()

	failed := model.GradingResult{StudentName: "Ron", Error: "grading call failed: timeout"}

	results := []model.GradingResult{graded, failed}
	return engine.BatchResult{
		Results:            results,
		LowConfidenceNotes: []string{"Tal: loop unclear"},
		Stats:              engine.ComputeStats(results),
	}
}

func TestGlyph(t *testing.T) {
	assert.Equal(t, "✓", Glyph(model.MarkFull))
	assert.Equal(t, "✗", Glyph(model.MarkNone))
	assert.Equal(t, "◐", Glyph(model.MarkPartial))
	assert.Equal(t, "?", Glyph("bogus"))
}

func TestWriteBatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBatch(&buf, sampleBatch()))

	out := buf.String()
	assert.Contains(t, out, "Tal")
	assert.Contains(t, out, "Question 1")
	assert.Contains(t, out, "✓ base case")
	assert.Contains(t, out, "◐ (א) loop")
	assert.Contains(t, out, "Total: 7/9 (77.78%)")
	assert.Contains(t, out, "Ron: grading failed: grading call failed: timeout")
	assert.Contains(t, out, "Tal: loop unclear")
	assert.Contains(t, out, "Graded: 1  Failed: 1")
	assert.Contains(t, out, "Mean: 77.78%")
}

func TestWriteBatchJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBatchJSON(&buf, sampleBatch()))

	var doc map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	results := doc["results"].([]any)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "Tal", first["student_name"])
	assert.InDelta(t, 77.78, first["percentage"], 0.001)
	grades := first["grades"].([]any)
	assert.Equal(t, "partial", grades[1].(map[string]any)["mark"], "JSON carries enum marks, not glyphs")

	second := results[1].(map[string]any)
	assert.Equal(t, "grading call failed: timeout", second["error"])

	stats := doc["stats"].(map[string]any)
	assert.InDelta(t, 1.0, stats["graded"], 0.001)
	assert.Equal(t, []any{"Tal: loop unclear"}, doc["low_confidence_notes"])
}
