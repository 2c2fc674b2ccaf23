package model

import (
	"math"
	"sort"
	"time"
)

// Mark is the three-way verdict for a graded criterion.
type Mark string

// Mark values.
const (
	MarkFull    Mark = "full"
	MarkNone    Mark = "none"
	MarkPartial Mark = "partial"
)

// IsValid reports whether m is one of the known marks.
func (m Mark) IsValid() bool {
	switch m {
	case MarkFull, MarkNone, MarkPartial:
		return true
	default:
		return false
	}
}

// MarkForPoints infers a mark from the earned/possible ratio.
func MarkForPoints(earned, possible float64) Mark {
	switch {
	case possible > 0 && earned >= possible:
		return MarkFull
	case earned <= 0:
		return MarkNone
	default:
		return MarkPartial
	}
}

// Confidence is the grader's self-assessed certainty for a grade.
type Confidence string

// Confidence levels.
const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// IsValid reports whether c is one of the known levels.
func (c Confidence) IsValid() bool {
	switch c {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	default:
		return false
	}
}

// NeedsReview reports whether a grade at this level should be flagged for a human.
func (c Confidence) NeedsReview() bool {
	return c == ConfidenceMedium || c == ConfidenceLow
}

// Grade is the verdict for one criterion of one student test.
// Criterion holds a copy of the description so a stored grade stays readable
// if the rubric changes later.
type Grade struct {
	SubQuestionID       string     `json:"sub_question_id,omitempty"`
	Criterion           string     `json:"criterion"`
	Mark                Mark       `json:"mark"`
	Explanation         string     `json:"explanation"`
	Confidence          Confidence `json:"confidence"`
	LowConfidenceReason string     `json:"low_confidence_reason,omitempty"`
	QuestionNumber      int        `json:"question_number"`
	CriterionIndex      int        `json:"criterion_index"`
	PointsEarned        float64    `json:"points_earned"`
	PointsPossible      float64    `json:"points_possible"`
}

// Key returns the criterion key the grade refers to.
func (g Grade) Key() CriterionKey {
	return CriterionKey{QuestionNumber: g.QuestionNumber, CriterionIndex: g.CriterionIndex}
}

// GradingResult is the outcome of grading one student test against one rubric.
type GradingResult struct {
	GradedAt           time.Time `json:"graded_at"`
	ID                 string    `json:"id"`
	StudentName        string    `json:"student_name"`
	Filename           string    `json:"filename"`
	Error              string    `json:"error,omitempty"`
	Grades             []Grade   `json:"grades"`
	LowConfidenceNotes []string  `json:"low_confidence_notes"`
	TotalScore         float64   `json:"total_score"`
	TotalPossible      float64   `json:"total_possible"`
	Percentage         float64   `json:"percentage"`
}

// Failed reports whether the result is a terminal error result.
func (r GradingResult) Failed() bool {
	return r.Error != ""
}

// Recompute derives the score totals from the grade list.
func (r *GradingResult) Recompute() {
	var score, possible float64
	for _, g := range r.Grades {
		score += g.PointsEarned
		possible += g.PointsPossible
	}
	r.TotalScore = score
	r.TotalPossible = possible
	r.Percentage = 0
	if possible > 0 {
		r.Percentage = math.Round(score/possible*10000) / 100
	}
}

// SortGrades orders grades by question number, then criterion index.
func (r *GradingResult) SortGrades() {
	sort.SliceStable(r.Grades, func(i, j int) bool {
		if r.Grades[i].QuestionNumber != r.Grades[j].QuestionNumber {
			return r.Grades[i].QuestionNumber < r.Grades[j].QuestionNumber
		}
		return r.Grades[i].CriterionIndex < r.Grades[j].CriterionIndex
	})
}

// QuestionGrades is the slice of grades belonging to one question.
type QuestionGrades struct {
	Grades         []Grade
	QuestionNumber int
	Earned         float64
	Possible       float64
}

// Questions groups the (already sorted) grades by question number.
func (r GradingResult) Questions() []QuestionGrades {
	var out []QuestionGrades
	for _, g := range r.Grades {
		if len(out) == 0 || out[len(out)-1].QuestionNumber != g.QuestionNumber {
			out = append(out, QuestionGrades{QuestionNumber: g.QuestionNumber})
		}
		last := &out[len(out)-1]
		last.Grades = append(last.Grades, g)
		last.Earned += g.PointsEarned
		last.Possible += g.PointsPossible
	}
	return out
}

// ToMap converts the result to plain nested maps and slices.
func (r GradingResult) ToMap() map[string]any {
	grades := make([]any, 0, len(r.Grades))
	for _, g := range r.Grades {
		gm := map[string]any{
			"question_number": g.QuestionNumber,
			"criterion_index": g.CriterionIndex,
			"criterion":       g.Criterion,
			"mark":            string(g.Mark),
			"points_earned":   g.PointsEarned,
			"points_possible": g.PointsPossible,
			"explanation":     g.Explanation,
			"confidence":      string(g.Confidence),
		}
		if g.SubQuestionID != "" {
			gm["sub_question_id"] = g.SubQuestionID
		}
		if g.LowConfidenceReason != "" {
			gm["low_confidence_reason"] = g.LowConfidenceReason
		}
		grades = append(grades, gm)
	}

	notes := make([]any, 0, len(r.LowConfidenceNotes))
	for _, n := range r.LowConfidenceNotes {
		notes = append(notes, n)
	}

	m := map[string]any{
		"id":                   r.ID,
		"student_name":         r.StudentName,
		"filename":             r.Filename,
		"grades":               grades,
		"total_score":          r.TotalScore,
		"total_possible":       r.TotalPossible,
		"percentage":           r.Percentage,
		"low_confidence_notes": notes,
		"graded_at":            r.GradedAt.UTC().Format(time.RFC3339),
	}
	if r.Error != "" {
		m["error"] = r.Error
	}
	return m
}
