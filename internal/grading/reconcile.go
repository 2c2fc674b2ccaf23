package grading

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/Veraticus/gradeflow/internal/model"
)

const (
	notEvaluatedExplanation = "not evaluated by the system"
	notEvaluatedReason      = "criterion not evaluated — manual review required"
	partialWithoutPoints    = "partial credit (points not reported)"
	unreportedConfidence    = "confidence not reported"
)

// criterionInfo is what repair needs to know about one rubric criterion.
type criterionInfo struct {
	description   string
	subQuestionID string
	possible      float64
}

// criterionLookup indexes the rubric by criterion key. It is used only to
// repair model output.
type criterionLookup struct {
	entries map[model.CriterionKey]criterionInfo
	keys    []model.CriterionKey
}

func newCriterionLookup(rubric model.NormalizedRubric) criterionLookup {
	lookup := criterionLookup{entries: make(map[model.CriterionKey]criterionInfo)}
	for _, q := range rubric.Questions {
		for _, ref := range q.AllCriteria() {
			key := model.CriterionKey{QuestionNumber: q.QuestionNumber, CriterionIndex: ref.Criterion.Index}
			if _, dup := lookup.entries[key]; dup {
				continue
			}
			lookup.entries[key] = criterionInfo{
				description:   ref.Criterion.Description,
				subQuestionID: ref.SubQuestionID,
				possible:      ref.Criterion.TotalPoints,
			}
			lookup.keys = append(lookup.keys, key)
		}
	}
	return lookup
}

func (l criterionLookup) get(key model.CriterionKey) (criterionInfo, bool) {
	info, ok := l.entries[key]
	return info, ok
}

// reconciler turns a parsed model response into a complete grade set.
type reconciler struct {
	logger  *slog.Logger
	lookup  criterionLookup
	student string
	notes   []string
	repairs int
}

func (r *reconciler) repaired(key model.CriterionKey, field, value string) {
	r.repairs++
	r.logger.Warn("repaired model grade",
		"student", r.student,
		"question_number", key.QuestionNumber,
		"criterion_index", key.CriterionIndex,
		"field", field,
		"value", value)
}

// repair fills the blank fields of one grade. It never fails.
func (r *reconciler) repair(raw rawGrade) model.Grade {
	key := model.CriterionKey{QuestionNumber: raw.QuestionNumber, CriterionIndex: raw.CriterionIndex}
	info, known := r.lookup.get(key)

	g := model.Grade{
		QuestionNumber:      raw.QuestionNumber,
		CriterionIndex:      raw.CriterionIndex,
		SubQuestionID:       info.subQuestionID,
		Criterion:           raw.Criterion,
		Mark:                raw.Mark,
		Explanation:         raw.Explanation,
		Confidence:          raw.Confidence,
		LowConfidenceReason: raw.LowConfidenceReason,
		PointsPossible:      info.possible,
	}

	if g.Criterion == "" {
		if known {
			g.Criterion = info.description
		} else {
			g.Criterion = fmt.Sprintf("Unknown criterion %d of question %d", raw.CriterionIndex, raw.QuestionNumber)
		}
		r.repaired(key, "criterion", g.Criterion)
	}

	switch {
	case raw.HasPointsEarned:
		g.PointsEarned = clamp(raw.PointsEarned, 0, g.PointsPossible)
		if g.PointsEarned != raw.PointsEarned {
			r.repaired(key, "points_earned", formatPoints(g.PointsEarned))
		}
	case raw.Mark == model.MarkFull:
		g.PointsEarned = g.PointsPossible
		r.repaired(key, "points_earned", formatPoints(g.PointsEarned))
	case raw.Mark == model.MarkPartial:
		r.repaired(key, "points_earned", "0 (partial mark without points)")
	default:
		r.repaired(key, "points_earned", "0")
	}

	if g.Explanation == "" {
		if raw.Mark == model.MarkPartial && !raw.HasPointsEarned {
			g.Explanation = partialWithoutPoints
		} else {
			g.Explanation = explainPoints(g.PointsEarned, g.PointsPossible)
		}
		r.repaired(key, "explanation", g.Explanation)
	}

	if g.Mark == "" {
		g.Mark = model.MarkForPoints(g.PointsEarned, g.PointsPossible)
		r.repaired(key, "mark", string(g.Mark))
	}

	if g.Confidence == "" {
		g.Confidence = model.ConfidenceMedium
		if g.LowConfidenceReason == "" {
			g.LowConfidenceReason = unreportedConfidence
		}
		r.repaired(key, "confidence", string(g.Confidence))
	}

	return g
}

// reconcile repairs every grade, drops duplicates and unknown keys, and
// synthesizes grades for criteria the model skipped.
func (r *reconciler) reconcile(raws []rawGrade) []model.Grade {
	graded := make(map[model.CriterionKey]bool, len(raws))
	grades := make([]model.Grade, 0, len(r.lookup.keys))

	for _, raw := range raws {
		g := r.repair(raw)
		key := g.Key()

		if _, known := r.lookup.get(key); !known {
			r.logger.Warn("discarding grade for unknown criterion",
				"student", r.student,
				"question_number", key.QuestionNumber,
				"criterion_index", key.CriterionIndex)
			r.notes = append(r.notes, fmt.Sprintf(
				"Discarded grade for question %d criterion %d, which is not in the rubric (%s)",
				key.QuestionNumber, key.CriterionIndex, g.Criterion))
			continue
		}
		if graded[key] {
			r.logger.Warn("discarding duplicate grade",
				"student", r.student,
				"question_number", key.QuestionNumber,
				"criterion_index", key.CriterionIndex)
			continue
		}

		graded[key] = true
		grades = append(grades, g)
	}

	for _, key := range r.lookup.keys {
		if graded[key] {
			continue
		}
		info, _ := r.lookup.get(key)
		r.logger.Warn("criterion not evaluated by model, synthesizing grade",
			"student", r.student,
			"question_number", key.QuestionNumber,
			"criterion_index", key.CriterionIndex)
		grades = append(grades, model.Grade{
			QuestionNumber:      key.QuestionNumber,
			CriterionIndex:      key.CriterionIndex,
			SubQuestionID:       info.subQuestionID,
			Criterion:           info.description,
			Mark:                model.MarkNone,
			PointsEarned:        0,
			PointsPossible:      info.possible,
			Explanation:         notEvaluatedExplanation,
			Confidence:          model.ConfidenceLow,
			LowConfidenceReason: notEvaluatedReason,
		})
	}

	return grades
}

// explainPoints synthesizes an explanation from the earned/possible ratio.
func explainPoints(earned, possible float64) string {
	switch model.MarkForPoints(earned, possible) {
	case model.MarkFull:
		return "correct"
	case model.MarkNone:
		return "incorrect/missing"
	default:
		return fmt.Sprintf("partial credit (%s/%s)", formatPoints(earned), formatPoints(possible))
	}
}

// gradeNote renders the review note for a medium or low confidence grade.
func gradeNote(g model.Grade) string {
	reason := g.LowConfidenceReason
	if reason == "" {
		reason = g.Explanation
	}
	return fmt.Sprintf("Question %d, criterion %d (%s): %s confidence: %s",
		g.QuestionNumber, g.CriterionIndex, g.Criterion, g.Confidence, reason)
}

// mergeNotes concatenates note lists, keeping the first occurrence of each text.
func mergeNotes(lists ...[]string) []string {
	seen := make(map[string]bool)
	out := []string{}
	for _, list := range lists {
		for _, n := range list {
			if seen[n] {
				continue
			}
			seen[n] = true
			out = append(out, n)
		}
	}
	return out
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(v, hi))
}
