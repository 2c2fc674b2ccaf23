package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRubric() NormalizedRubric {
	return NormalizedRubric{
		Name: "Midterm",
		Questions: []GradingQuestion{
			{
				QuestionNumber: 1,
				Criteria: []GradingCriterion{
					{Index: 0, Description: "Defines the loop", TotalPoints: 5, SourceFormat: FormatLegacy,
						Rules: []GradingRule{{Index: 0, Description: "Defines the loop", DeductionPoints: 5}}},
					{Index: 1, Description: "Handles empty input", TotalPoints: 10, SourceFormat: FormatEnhanced,
						Rules: []GradingRule{
							{Index: 0, Description: "No check", DeductionPoints: 10, IsExplicit: true},
							{Index: 1, Description: "Wrong return", DeductionPoints: 3, IsExplicit: true},
						}},
				},
			},
			{
				QuestionNumber: 3,
				SubQuestions: []GradingSubQuestion{
					{SubQuestionID: "א", Criteria: []GradingCriterion{{Index: 0, TotalPoints: 4}}},
					{SubQuestionID: "ב", Criteria: []GradingCriterion{{Index: 1, TotalPoints: 6}, {Index: 2, TotalPoints: 2}}},
				},
			},
		},
	}
}

func TestNormalizedRubric_Totals(t *testing.T) {
	r := sampleRubric()

	assert.InDelta(t, 27.0, r.TotalPoints(), 0.0001)
	assert.Equal(t, 5, r.TotalCriteria())
	assert.Equal(t, 3, r.TotalRules())
	assert.InDelta(t, 8.0, r.Questions[1].SubQuestions[1].TotalPoints(), 0.0001)
}

func TestNormalizedRubric_CriterionKeys(t *testing.T) {
	keys := sampleRubric().CriterionKeys()

	assert.Equal(t, []CriterionKey{
		{QuestionNumber: 1, CriterionIndex: 0},
		{QuestionNumber: 1, CriterionIndex: 1},
		{QuestionNumber: 3, CriterionIndex: 0},
		{QuestionNumber: 3, CriterionIndex: 1},
		{QuestionNumber: 3, CriterionIndex: 2},
	}, keys)
}

func TestGradingQuestion_Shape(t *testing.T) {
	flat := GradingQuestion{QuestionNumber: 1}
	assert.False(t, flat.HasSubQuestions())

	empty := GradingQuestion{QuestionNumber: 2, SubQuestions: []GradingSubQuestion{}}
	assert.True(t, empty.HasSubQuestions())
	assert.Empty(t, empty.AllCriteria())

	refs := sampleRubric().Questions[1].AllCriteria()
	require.Len(t, refs, 3)
	assert.Equal(t, "א", refs[0].SubQuestionID)
	assert.Equal(t, "ב", refs[2].SubQuestionID)
}

func TestNormalizedRubric_ToMapIsSerializable(t *testing.T) {
	m := sampleRubric().ToMap()

	data, err := json.Marshal(m)
	require.NoError(t, err)

	var back map[string]any
	require.NoError(t, json.Unmarshal(data, &back))
	assert.InDelta(t, 27.0, back["total_points"], 0.0001)
	assert.Len(t, back["questions"], 2)
}
