package grading

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/gradeflow/internal/common"
	"github.com/Veraticus/gradeflow/internal/llm"
	"github.com/Veraticus/gradeflow/internal/model"
	"github.com/Veraticus/gradeflow/internal/rubric"
)

// fakeClient returns a canned response and records requests.
type fakeClient struct {
	err      error
	response string
	requests []llm.Request
	mu       sync.Mutex
}

func (f *fakeClient) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	return f.response, f.err
}

var fixedNow = time.Date(2026, 6, 1, 9, 30, 0, 0, time.UTC)

func newTestEngine(client llm.Client) *Engine {
	return NewEngine(client, Config{Now: func() time.Time { return fixedNow }}, common.DiscardLogger())
}

func twoCriteriaRubric() model.NormalizedRubric {
	return rubric.NormalizeJSON([]byte(`{"questions": [{"question_number": 1, "criteria": [
		{"description": "handles base case", "points": 5},
		{"description": "recursive step", "points": 10}
	]}]}`))
}

var testStudent = model.StudentTest{
	StudentName: "Avi",
	Filename:    "avi.pdf",
	Answers:     []model.TranscribedAnswer{{QuestionNumber: 1, AnswerText: "def f(n): return 1 if n == 0 else n * f(n-1)"}},
}

func TestGrade_SynthesizesMissingCriterion(t *testing.T) {
	client := &fakeClient{response: `{"grades": [{"question_number": 1, "criterion_index": 0,
		"criterion": "handles base case", "mark": "full", "points_earned": 5, "points_possible": 5,
		"explanation": "base case returns 1", "confidence": "high"}]}`}

	result, err := newTestEngine(client).Grade(context.Background(), twoCriteriaRubric(), testStudent)
	require.NoError(t, err)

	require.Len(t, result.Grades, 2)
	assert.Equal(t, model.MarkFull, result.Grades[0].Mark)
	assert.InDelta(t, 5.0, result.Grades[0].PointsEarned, 0.0001)

	missing := result.Grades[1]
	assert.Equal(t, 1, missing.CriterionIndex)
	assert.Equal(t, "recursive step", missing.Criterion)
	assert.Equal(t, model.MarkNone, missing.Mark)
	assert.Zero(t, missing.PointsEarned)
	assert.InDelta(t, 10.0, missing.PointsPossible, 0.0001)
	assert.Equal(t, model.ConfidenceLow, missing.Confidence)
	assert.Equal(t, "not evaluated by the system", missing.Explanation)
	assert.Equal(t, "criterion not evaluated — manual review required", missing.LowConfidenceReason)

	assert.InDelta(t, 5.0, result.TotalScore, 0.0001)
	assert.InDelta(t, 15.0, result.TotalPossible, 0.0001)
	assert.InDelta(t, 33.33, result.Percentage, 0.01)
	require.Len(t, result.LowConfidenceNotes, 1)
	assert.Contains(t, result.LowConfidenceNotes[0], "recursive step")

	assert.Equal(t, "Avi", result.StudentName)
	assert.Equal(t, "avi.pdf", result.Filename)
	assert.Equal(t, fixedNow, result.GradedAt)
	assert.NotEmpty(t, result.ID)
	assert.False(t, result.Failed())
}

func TestGrade_OneCallPerTestListingEveryCriterion(t *testing.T) {
	client := &fakeClient{response: `{"grades": []}`}

	_, err := newTestEngine(client).Grade(context.Background(), twoCriteriaRubric(), testStudent)
	require.NoError(t, err)

	require.Len(t, client.requests, 1)
	prompt := client.requests[0].Prompt
	assert.Contains(t, prompt, "[question_number=1, criterion_index=0]")
	assert.Contains(t, prompt, "[question_number=1, criterion_index=1]")
	assert.Contains(t, prompt, "def f(n)")
	assert.True(t, client.requests[0].JSON)
	assert.Empty(t, client.requests[0].Images)
}

func TestGrade_RepairsBlankFields(t *testing.T) {
	client := &fakeClient{response: `{"grades": [
		{"question_number": 1, "criterion_index": 0, "points_earned": 5, "confidence": "high"},
		{"question_number": 1, "criterion_index": 1, "criterion": "", "mark": "", "explanation": "",
		 "points_earned": 3, "confidence": "HIGH"}
	]}`}

	result, err := newTestEngine(client).Grade(context.Background(), twoCriteriaRubric(), testStudent)
	require.NoError(t, err)
	require.Len(t, result.Grades, 2)

	full := result.Grades[0]
	assert.Equal(t, "handles base case", full.Criterion)
	assert.Equal(t, model.MarkFull, full.Mark)
	assert.Equal(t, "correct", full.Explanation)

	partial := result.Grades[1]
	assert.Equal(t, "recursive step", partial.Criterion)
	assert.Equal(t, model.MarkPartial, partial.Mark)
	assert.Equal(t, "partial credit (3/10)", partial.Explanation)
	assert.Equal(t, model.ConfidenceHigh, partial.Confidence)

	assert.Empty(t, result.LowConfidenceNotes)
}

func TestGrade_PartialMarkWithoutPoints(t *testing.T) {
	client := &fakeClient{response: `{"grades": [
		{"question_number": 1, "criterion_index": 0, "mark": "full", "points_earned": 5, "explanation": "ok", "confidence": "high"},
		{"question_number": 1, "criterion_index": 1, "mark": "partial", "confidence": "high"}
	]}`}

	result, err := newTestEngine(client).Grade(context.Background(), twoCriteriaRubric(), testStudent)
	require.NoError(t, err)
	require.Len(t, result.Grades, 2)

	g := result.Grades[1]
	assert.Equal(t, model.MarkPartial, g.Mark)
	assert.Zero(t, g.PointsEarned)
	assert.Equal(t, "partial credit (points not reported)", g.Explanation)
	assert.NotEqual(t, "incorrect/missing", g.Explanation)
}

func TestGrade_FenceInsideExplanation(t *testing.T) {
	client := &fakeClient{response: "{\"grades\": [" +
		"{\"question_number\": 1, \"criterion_index\": 0, \"mark\": \"full\", \"points_earned\": 5," +
		" \"explanation\": \"returns 1 for ```python\\nif n == 0: return 1\\n```\", \"confidence\": \"high\"}," +
		"{\"question_number\": 1, \"criterion_index\": 1, \"mark\": \"full\", \"points_earned\": 10," +
		" \"explanation\": \"recurses on n-1\", \"confidence\": \"high\"}]}"}

	result, err := newTestEngine(client).Grade(context.Background(), twoCriteriaRubric(), testStudent)
	require.NoError(t, err)
	require.False(t, result.Failed())

	assert.InDelta(t, 15.0, result.TotalScore, 0.0001)
	assert.Contains(t, result.Grades[0].Explanation, "```python\nif n == 0: return 1\n```")
}

func TestExplainPoints(t *testing.T) {
	tests := []struct {
		earned, possible float64
		want             string
	}{
		{5, 5, "correct"},
		{0, 5, "incorrect/missing"},
		{2.5, 5, "partial credit (2.5/5)"},
		{0, 0, "incorrect/missing"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, explainPoints(tt.earned, tt.possible))
	}
}

func TestGrade_TotalsIgnoreModelSelfReport(t *testing.T) {
	client := &fakeClient{response: `{"total_score": 15, "percentage": 100, "grades": [
		{"question_number": 1, "criterion_index": 0, "mark": "full", "points_earned": 50, "points_possible": 50, "explanation": "ok", "confidence": "high"},
		{"question_number": 1, "criterion_index": 1, "mark": "none", "points_earned": -3, "explanation": "wrong", "confidence": "high"}
	]}`}

	result, err := newTestEngine(client).Grade(context.Background(), twoCriteriaRubric(), testStudent)
	require.NoError(t, err)

	assert.InDelta(t, 5.0, result.Grades[0].PointsEarned, 0.0001, "earned is clamped to the rubric's points")
	assert.InDelta(t, 5.0, result.Grades[0].PointsPossible, 0.0001, "possible comes from the rubric")
	assert.Zero(t, result.Grades[1].PointsEarned)
	assert.InDelta(t, 5.0, result.TotalScore, 0.0001)
	assert.InDelta(t, 15.0, result.TotalPossible, 0.0001)
	assert.InDelta(t, 33.33, result.Percentage, 0.01)
}

func TestGrade_DuplicateAndUnknownGrades(t *testing.T) {
	client := &fakeClient{response: `{"grades": [
		{"question_number": 1, "criterion_index": 1, "mark": "partial", "points_earned": 4, "explanation": "first", "confidence": "high"},
		{"question_number": 1, "criterion_index": 1, "mark": "full", "points_earned": 10, "explanation": "second", "confidence": "high"},
		{"question_number": 9, "criterion_index": 0, "mark": "full", "points_earned": 3, "explanation": "stray", "confidence": "high"},
		{"question_number": 1, "criterion_index": 0, "mark": "full", "points_earned": 5, "explanation": "ok", "confidence": "high"}
	]}`}

	result, err := newTestEngine(client).Grade(context.Background(), twoCriteriaRubric(), testStudent)
	require.NoError(t, err)

	require.Len(t, result.Grades, 2)
	assert.Equal(t, 0, result.Grades[0].CriterionIndex, "grades are sorted by criterion")
	assert.Equal(t, "first", result.Grades[1].Explanation, "the first grade for a key wins")
	assert.InDelta(t, 9.0, result.TotalScore, 0.0001)

	require.Len(t, result.LowConfidenceNotes, 1)
	assert.Contains(t, result.LowConfidenceNotes[0], "question 9 criterion 0")
}

func TestGrade_CompletenessWithSubQuestions(t *testing.T) {
	r := rubric.NormalizeJSON([]byte(`{"questions": [
		{"question_number": 2, "criteria": [{"description": "a", "points": 1}]},
		{"question_number": 1, "sub_questions": [
			{"sub_question_id": "א", "criteria": [{"description": "b", "points": 2}, {"description": "c", "points": 3}]},
			{"sub_question_id": "ב", "criteria": [{"criterion_description": "d", "total_points": 4}]}
		]}
	]}`))

	responses := []string{
		`{"grades": []}`,
		`[{"question_number": 1, "criterion_index": 2, "mark": "✓", "points_earned": 4, "explanation": "ok", "confidence": "high"}]`,
		"```json\n" + `{"grades": [{"question_number": 2, "criterion_index": 0, "mark": "◐", "points_earned": 0.5, "explanation": "half", "confidence": "medium"}]}` + "\n```",
	}

	for _, response := range responses {
		result, err := newTestEngine(&fakeClient{response: response}).Grade(context.Background(), r, testStudent)
		require.NoError(t, err)

		var keys []model.CriterionKey
		for _, g := range result.Grades {
			keys = append(keys, g.Key())
		}
		assert.ElementsMatch(t, r.CriterionKeys(), keys)
		assert.InDelta(t, r.TotalPoints(), result.TotalPossible, 0.0001)

		for _, g := range result.Grades {
			if g.QuestionNumber == 1 {
				assert.NotEmpty(t, g.SubQuestionID)
			}
		}
	}
}

func TestGrade_LowConfidenceNotesAreDeduplicated(t *testing.T) {
	client := &fakeClient{response: `{"low_confidence_notes": ["handwriting unclear", "handwriting unclear", "  "],
	"grades": [
		{"question_number": 1, "criterion_index": 0, "mark": "full", "points_earned": 5, "explanation": "ok", "confidence": "medium", "low_confidence_reason": "ambiguous"},
		{"question_number": 1, "criterion_index": 1, "mark": "none", "points_earned": 0, "explanation": "missing"}
	]}`}

	result, err := newTestEngine(client).Grade(context.Background(), twoCriteriaRubric(), testStudent)
	require.NoError(t, err)

	require.Len(t, result.LowConfidenceNotes, 3)
	assert.Equal(t, "handwriting unclear", result.LowConfidenceNotes[0])
	assert.Contains(t, result.LowConfidenceNotes[1], "ambiguous")
	assert.Contains(t, result.LowConfidenceNotes[2], "confidence not reported")
	assert.Equal(t, model.ConfidenceMedium, result.Grades[1].Confidence)
}

func TestGrade_TransportErrorIsTerminal(t *testing.T) {
	client := &fakeClient{err: errors.New("connection reset")}

	result, err := newTestEngine(client).Grade(context.Background(), twoCriteriaRubric(), testStudent)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrGradingCall)

	assert.True(t, result.Failed())
	assert.Empty(t, result.Grades)
	assert.Zero(t, result.TotalScore)
	assert.Zero(t, result.Percentage)
	require.Len(t, result.LowConfidenceNotes, 1)
	assert.Contains(t, result.LowConfidenceNotes[0], "connection reset")
	assert.Equal(t, "Avi", result.StudentName)
}

func TestGrade_MalformedResponseIsTerminal(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{name: "prose", response: "I think the student did well."},
		{name: "empty", response: "   "},
		{name: "truncated json", response: `{"grades": [{"question_number": 1`},
		{name: "object without grades", response: `{"score": 10}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := newTestEngine(&fakeClient{response: tt.response}).Grade(context.Background(), twoCriteriaRubric(), testStudent)
			require.Error(t, err)
			assert.ErrorIs(t, err, common.ErrMalformedResponse)
			assert.True(t, result.Failed())
			assert.Empty(t, result.Grades, "a parse failure never produces fabricated grades")
		})
	}
}

func TestGrade_CanceledContext(t *testing.T) {
	client := &fakeClient{response: `{"grades": []}`}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := newTestEngine(client).Grade(ctx, twoCriteriaRubric(), testStudent)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, common.ErrGradingCall)
	assert.True(t, result.Failed())
	assert.Empty(t, client.requests)
}

func TestParseMark(t *testing.T) {
	tests := []struct {
		input string
		want  model.Mark
	}{
		{"full", model.MarkFull},
		{" FULL ", model.MarkFull},
		{"✓", model.MarkFull},
		{"none", model.MarkNone},
		{"✗", model.MarkNone},
		{"partial", model.MarkPartial},
		{"~", model.MarkPartial},
		{"◐", model.MarkPartial},
		{"", ""},
		{"maybe", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseMark(tt.input), "input %q", tt.input)
	}
}
