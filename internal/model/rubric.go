// Package model defines the core domain models used throughout the application.
package model

// SourceFormat records which rubric schema a criterion was read from.
type SourceFormat string

// Rubric source formats.
const (
	FormatLegacy   SourceFormat = "legacy"
	FormatEnhanced SourceFormat = "enhanced"
)

// GradingRule is one way to lose some or all of a criterion's points.
type GradingRule struct {
	Description     string  `json:"description"`
	Index           int     `json:"index"`
	DeductionPoints float64 `json:"deduction_points"`
	IsExplicit      bool    `json:"is_explicit"`
}

// GradingCriterion is a single gradable aspect of an answer.
// Index is unique within the owning question, including across its
// sub-questions, so (question number, index) identifies a criterion.
type GradingCriterion struct {
	Description  string        `json:"description"`
	SourceFormat SourceFormat  `json:"source_format"`
	Rules        []GradingRule `json:"rules"`
	Index        int           `json:"index"`
	TotalPoints  float64       `json:"total_points"`
}

// GradingSubQuestion groups criteria under a free-form label such as "א" or "b".
type GradingSubQuestion struct {
	SubQuestionID string             `json:"sub_question_id"`
	Criteria      []GradingCriterion `json:"criteria"`
}

// TotalPoints sums the points of all owned criteria.
func (s GradingSubQuestion) TotalPoints() float64 {
	var total float64
	for _, c := range s.Criteria {
		total += c.TotalPoints
	}
	return total
}

// GradingQuestion holds either direct criteria or sub-questions, never both.
type GradingQuestion struct {
	QuestionText   string               `json:"question_text,omitempty"`
	Criteria       []GradingCriterion   `json:"criteria,omitempty"`
	SubQuestions   []GradingSubQuestion `json:"sub_questions,omitempty"`
	QuestionNumber int                  `json:"question_number"`
}

// HasSubQuestions reports whether the question is sub-question shaped.
func (q GradingQuestion) HasSubQuestions() bool {
	return q.SubQuestions != nil
}

// CriterionRef is a criterion together with the sub-question that owns it.
type CriterionRef struct {
	SubQuestionID string
	Criterion     GradingCriterion
}

// AllCriteria returns every criterion of the question in rubric order.
func (q GradingQuestion) AllCriteria() []CriterionRef {
	if !q.HasSubQuestions() {
		refs := make([]CriterionRef, 0, len(q.Criteria))
		for _, c := range q.Criteria {
			refs = append(refs, CriterionRef{Criterion: c})
		}
		return refs
	}

	var refs []CriterionRef
	for _, sq := range q.SubQuestions {
		for _, c := range sq.Criteria {
			refs = append(refs, CriterionRef{SubQuestionID: sq.SubQuestionID, Criterion: c})
		}
	}
	return refs
}

// TotalPoints sums the points reachable through the question.
func (q GradingQuestion) TotalPoints() float64 {
	var total float64
	for _, ref := range q.AllCriteria() {
		total += ref.Criterion.TotalPoints
	}
	return total
}

// NormalizedRubric is the canonical rubric every component operates on.
// It is built once by the normalizer and treated as read-only afterwards.
type NormalizedRubric struct {
	Name                string            `json:"name,omitempty"`
	Description         string            `json:"description,omitempty"`
	ProgrammingLanguage string            `json:"programming_language,omitempty"`
	Questions           []GradingQuestion `json:"questions"`
}

// TotalCriteria counts criteria across all questions and sub-questions.
func (r NormalizedRubric) TotalCriteria() int {
	var n int
	for _, q := range r.Questions {
		n += len(q.AllCriteria())
	}
	return n
}

// TotalRules counts rules, synthetic ones included.
func (r NormalizedRubric) TotalRules() int {
	var n int
	for _, q := range r.Questions {
		for _, ref := range q.AllCriteria() {
			n += len(ref.Criterion.Rules)
		}
	}
	return n
}

// TotalPoints sums criterion points over the whole rubric.
func (r NormalizedRubric) TotalPoints() float64 {
	var total float64
	for _, q := range r.Questions {
		total += q.TotalPoints()
	}
	return total
}

// CriterionKey identifies a criterion within a rubric.
type CriterionKey struct {
	QuestionNumber int
	CriterionIndex int
}

// CriterionKeys lists every criterion key in rubric order.
func (r NormalizedRubric) CriterionKeys() []CriterionKey {
	keys := make([]CriterionKey, 0, r.TotalCriteria())
	for _, q := range r.Questions {
		for _, ref := range q.AllCriteria() {
			keys = append(keys, CriterionKey{QuestionNumber: q.QuestionNumber, CriterionIndex: ref.Criterion.Index})
		}
	}
	return keys
}

// ToMap converts the rubric to plain nested maps and slices.
func (r NormalizedRubric) ToMap() map[string]any {
	questions := make([]any, 0, len(r.Questions))
	for _, q := range r.Questions {
		qm := map[string]any{
			"question_number": q.QuestionNumber,
			"question_text":   q.QuestionText,
			"total_points":    q.TotalPoints(),
		}
		if q.HasSubQuestions() {
			subs := make([]any, 0, len(q.SubQuestions))
			for _, sq := range q.SubQuestions {
				subs = append(subs, map[string]any{
					"sub_question_id": sq.SubQuestionID,
					"total_points":    sq.TotalPoints(),
					"criteria":        criteriaToList(sq.Criteria),
				})
			}
			qm["sub_questions"] = subs
		} else {
			qm["criteria"] = criteriaToList(q.Criteria)
		}
		questions = append(questions, qm)
	}

	return map[string]any{
		"name":                 r.Name,
		"description":          r.Description,
		"programming_language": r.ProgrammingLanguage,
		"questions":            questions,
		"total_points":         r.TotalPoints(),
		"total_criteria":       r.TotalCriteria(),
		"total_rules":          r.TotalRules(),
	}
}

func criteriaToList(criteria []GradingCriterion) []any {
	out := make([]any, 0, len(criteria))
	for _, c := range criteria {
		rules := make([]any, 0, len(c.Rules))
		for _, rule := range c.Rules {
			rules = append(rules, map[string]any{
				"index":            rule.Index,
				"description":      rule.Description,
				"deduction_points": rule.DeductionPoints,
				"is_explicit":      rule.IsExplicit,
			})
		}
		out = append(out, map[string]any{
			"index":         c.Index,
			"description":   c.Description,
			"total_points":  c.TotalPoints,
			"source_format": string(c.SourceFormat),
			"rules":         rules,
		})
	}
	return out
}
