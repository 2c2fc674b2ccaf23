package rubric

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Veraticus/gradeflow/internal/model"
)

// DetectFormat decides which schema a raw criterion object uses.
// A criterion is enhanced if it has a non-empty reduction_rules list or either
// of criterion_description / total_points; everything else is legacy.
func DetectFormat(criterion gjson.Result) model.SourceFormat {
	if rules := criterion.Get("reduction_rules"); rules.IsArray() && len(rules.Array()) > 0 {
		return model.FormatEnhanced
	}
	if criterion.Get("criterion_description").Exists() || criterion.Get("total_points").Exists() {
		return model.FormatEnhanced
	}
	return model.FormatLegacy
}

// Normalize converts an arbitrary decoded rubric value into the canonical model.
// raw may be JSON bytes, a JSON string, or any value encoding/json can marshal.
func Normalize(raw any) model.NormalizedRubric {
	switch v := raw.(type) {
	case nil:
		return emptyRubric()
	case []byte:
		return NormalizeJSON(v)
	case json.RawMessage:
		return NormalizeJSON(v)
	case string:
		return NormalizeJSON([]byte(v))
	}

	data, err := json.Marshal(raw)
	if err != nil {
		slog.Warn("rubric is not JSON-encodable, using empty rubric", "error", err)
		return emptyRubric()
	}
	return NormalizeJSON(data)
}

// NormalizeJSON converts raw rubric JSON into the canonical model.
// The document may be an object with a questions list or a bare list of questions.
func NormalizeJSON(data []byte) model.NormalizedRubric {
	if !gjson.ValidBytes(data) {
		slog.Warn("rubric is not valid JSON, using empty rubric", "bytes", len(data))
		return emptyRubric()
	}

	root := gjson.ParseBytes(data)
	rubric := emptyRubric()

	questions := root
	if !root.IsArray() {
		rubric.Name = stringField(root, "name", "rubric_name")
		rubric.Description = stringField(root, "description")
		rubric.ProgrammingLanguage = stringField(root, "programming_language", "language")
		questions = firstExisting(root, "questions", "rubric")
	}

	if !questions.IsArray() {
		if questions.Exists() {
			slog.Warn("rubric questions field is not a list, ignoring", "type", questions.Type.String())
		}
		return rubric
	}

	seen := make(map[int]bool)
	maxNumber := 0
	for pos, q := range questions.Array() {
		if !q.IsObject() {
			slog.Warn("skipping non-object rubric question", "position", pos)
			continue
		}

		question := normalizeQuestion(q, pos)
		if seen[question.QuestionNumber] {
			renumbered := maxNumber + 1
			slog.Warn("duplicate question number, renumbering",
				"question_number", question.QuestionNumber,
				"renumbered_to", renumbered)
			question.QuestionNumber = renumbered
		}
		seen[question.QuestionNumber] = true
		if question.QuestionNumber > maxNumber {
			maxNumber = question.QuestionNumber
		}

		rubric.Questions = append(rubric.Questions, question)
	}

	slog.Debug("rubric normalized",
		"questions", len(rubric.Questions),
		"criteria", rubric.TotalCriteria(),
		"total_points", rubric.TotalPoints())

	return rubric
}

func emptyRubric() model.NormalizedRubric {
	return model.NormalizedRubric{Questions: []model.GradingQuestion{}}
}

func normalizeQuestion(q gjson.Result, pos int) model.GradingQuestion {
	question := model.GradingQuestion{
		QuestionNumber: pos + 1,
		QuestionText:   stringField(q, "question_text", "text"),
	}
	if n := firstExisting(q, "question_number", "number"); n.Exists() {
		if v := int(toPoints(n)); v > 0 {
			question.QuestionNumber = v
		}
	}

	// The criterion index counter runs across sub-questions so that
	// (question number, criterion index) stays unique.
	next := 0

	if subs := q.Get("sub_questions"); subs.Exists() {
		question.SubQuestions = []model.GradingSubQuestion{}
		for i, sq := range subs.Array() {
			if !sq.IsObject() {
				continue
			}
			id := stringField(sq, "sub_question_id", "id", "label")
			if id == "" {
				id = fmt.Sprintf("sub_%d", i)
			}
			criteria := normalizeCriteria(firstExisting(sq, "criteria", "grading_criteria"), &next)
			question.SubQuestions = append(question.SubQuestions, model.GradingSubQuestion{
				SubQuestionID: id,
				Criteria:      criteria,
			})
		}
		if q.Get("criteria").Exists() {
			slog.Debug("question has sub_questions, ignoring direct criteria",
				"question_number", question.QuestionNumber)
		}
		return question
	}

	question.Criteria = normalizeCriteria(firstExisting(q, "criteria", "grading_criteria"), &next)
	return question
}

func normalizeCriteria(list gjson.Result, next *int) []model.GradingCriterion {
	criteria := []model.GradingCriterion{}
	for _, c := range list.Array() {
		if !c.IsObject() {
			continue
		}
		criteria = append(criteria, normalizeCriterion(c, *next))
		*next++
	}
	return criteria
}

func normalizeCriterion(c gjson.Result, index int) model.GradingCriterion {
	switch DetectFormat(c) {
	case model.FormatEnhanced:
		return enhancedCriterion(c, index)
	default:
		return legacyCriterion(c, index)
	}
}

func enhancedCriterion(c gjson.Result, index int) model.GradingCriterion {
	criterion := model.GradingCriterion{
		Index:        index,
		Description:  stringField(c, "criterion_description", "description"),
		TotalPoints:  toPoints(firstExisting(c, "total_points", "points")),
		SourceFormat: model.FormatEnhanced,
		Rules:        []model.GradingRule{},
	}
	if criterion.Description == "" {
		criterion.Description = fmt.Sprintf("Criterion %d", index+1)
	}

	for i, r := range c.Get("reduction_rules").Array() {
		rule := model.GradingRule{
			Index:      i,
			IsExplicit: true,
		}
		if r.IsObject() {
			rule.Description = stringField(r, "description", "rule_description")
			rule.DeductionPoints = toPoints(firstExisting(r, "reduction_value", "deduction_points", "deduction", "points"))
		} else if r.Type == gjson.String {
			rule.Description = strings.TrimSpace(r.String())
		}
		if rule.Description == "" {
			rule.Description = fmt.Sprintf("Rule %d", i+1)
		}
		criterion.Rules = append(criterion.Rules, rule)
	}

	return criterion
}

func legacyCriterion(c gjson.Result, index int) model.GradingCriterion {
	description := stringField(c, "description")
	if description == "" {
		description = fmt.Sprintf("Criterion %d", index+1)
	}
	points := toPoints(c.Get("points"))

	return model.GradingCriterion{
		Index:        index,
		Description:  description,
		TotalPoints:  points,
		SourceFormat: model.FormatLegacy,
		Rules: []model.GradingRule{{
			Index:           0,
			Description:     description,
			DeductionPoints: points,
			IsExplicit:      false,
		}},
	}
}

// toPoints coerces a JSON value to a non-negative, finite point value.
func toPoints(v gjson.Result) float64 {
	var f float64
	switch v.Type {
	case gjson.Number:
		f = v.Num
	case gjson.String:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}

func stringField(v gjson.Result, names ...string) string {
	r := firstExisting(v, names...)
	if r.Type == gjson.Null || !r.Exists() {
		return ""
	}
	return strings.TrimSpace(r.String())
}

func firstExisting(v gjson.Result, names ...string) gjson.Result {
	for _, name := range names {
		if r := v.Get(name); r.Exists() {
			return r
		}
	}
	return gjson.Result{}
}
