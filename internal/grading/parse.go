package grading

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Veraticus/gradeflow/internal/common"
	"github.com/Veraticus/gradeflow/internal/llm"
	"github.com/Veraticus/gradeflow/internal/model"
)

// rawGrade is one grade as the model reported it, before repair.
type rawGrade struct {
	Criterion           string
	Mark                model.Mark
	Explanation         string
	Confidence          model.Confidence
	LowConfidenceReason string
	QuestionNumber      int
	CriterionIndex      int
	PointsEarned        float64
	HasPointsEarned     bool
}

// modelResponse is the parsed grading response.
type modelResponse struct {
	Grades []rawGrade
	Notes  []string
}

// parseResponse decodes the model output. Only a response that cannot be
// read as a grades document is an error; missing fields are left for repair.
func parseResponse(text string) (modelResponse, error) {
	body := llm.StripCodeFences(text)
	if body == "" {
		return modelResponse{}, fmt.Errorf("%w: empty response", common.ErrMalformedResponse)
	}
	if !gjson.Valid(body) {
		return modelResponse{}, fmt.Errorf("%w: response is not valid JSON", common.ErrMalformedResponse)
	}

	root := gjson.Parse(body)
	grades := root
	if !root.IsArray() {
		grades = root.Get("grades")
		if !grades.IsArray() {
			return modelResponse{}, fmt.Errorf("%w: response has no grades list", common.ErrMalformedResponse)
		}
	}

	var resp modelResponse
	for _, g := range grades.Array() {
		if !g.IsObject() {
			continue
		}
		resp.Grades = append(resp.Grades, parseGrade(g))
	}

	for _, n := range root.Get("low_confidence_notes").Array() {
		note := n.String()
		if n.IsObject() || n.IsArray() {
			note = n.Raw
		}
		if note = strings.TrimSpace(note); note != "" {
			resp.Notes = append(resp.Notes, note)
		}
	}

	return resp, nil
}

func parseGrade(g gjson.Result) rawGrade {
	raw := rawGrade{
		QuestionNumber:      int(number(g.Get("question_number"))),
		CriterionIndex:      int(number(g.Get("criterion_index"))),
		Criterion:           strings.TrimSpace(g.Get("criterion").String()),
		Mark:                ParseMark(g.Get("mark").String()),
		Explanation:         strings.TrimSpace(g.Get("explanation").String()),
		Confidence:          parseConfidence(g.Get("confidence").String()),
		LowConfidenceReason: strings.TrimSpace(g.Get("low_confidence_reason").String()),
	}
	if earned := g.Get("points_earned"); earned.Exists() && earned.Type != gjson.Null {
		raw.PointsEarned = number(earned)
		raw.HasPointsEarned = true
	}
	return raw
}

// ParseMark reads a mark from its enum name or a display glyph.
// Unknown values return the empty mark so repair can infer one.
func ParseMark(s string) model.Mark {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "full", "correct", "✓", "✔":
		return model.MarkFull
	case "none", "incorrect", "missing", "✗", "✘", "x":
		return model.MarkNone
	case "partial", "~", "◐":
		return model.MarkPartial
	default:
		return ""
	}
}

func parseConfidence(s string) model.Confidence {
	c := model.Confidence(strings.ToLower(strings.TrimSpace(s)))
	if c.IsValid() {
		return c
	}
	return ""
}

func number(v gjson.Result) float64 {
	switch v.Type {
	case gjson.Number:
		return v.Num
	case gjson.String:
		f, err := strconv.ParseFloat(strings.TrimSpace(v.Str), 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}
