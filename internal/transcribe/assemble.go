package transcribe

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Veraticus/gradeflow/internal/model"
)

// DegradedMarker is the text recorded for a page that could not be transcribed.
func DegradedMarker(pageNumber int) string {
	return fmt.Sprintf("[transcription unavailable: page %d]", pageNumber)
}

// PageSeparator introduces the text taken from the given page.
func PageSeparator(pageNumber int) string {
	return fmt.Sprintf("\n\n--- page %d ---\n\n", pageNumber)
}

// assemble builds the ordered answer list from per-page outcomes.
// Assignments sharing a (question, sub-question) key are merged.
func assemble(assignments []PageAssignment, byPage map[int]pageOutcome) []model.TranscribedAnswer {
	var keys []answerKey
	pagesByKey := make(map[answerKey][]int)
	for _, a := range assignments {
		k := a.key()
		if _, seen := pagesByKey[k]; !seen {
			keys = append(keys, k)
			pagesByKey[k] = []int{}
		}
		pagesByKey[k] = append(pagesByKey[k], a.Pages...)
	}

	answers := make([]model.TranscribedAnswer, 0, len(keys))
	for _, k := range keys {
		pages := uniqueSorted(pagesByKey[k])

		answer := model.TranscribedAnswer{
			QuestionNumber: k.question,
			SubQuestionID:  k.sub,
			Pages:          pages,
		}

		var sb strings.Builder
		for i, index := range pages {
			outcome, ok := byPage[index]
			text := ""
			if !ok || outcome.degraded {
				answer.DegradedPages = append(answer.DegradedPages, index)
				text = DegradedMarker(index + 1)
			} else {
				text = strings.TrimSpace(outcome.texts[k])
			}

			if len(pages) > 1 {
				if i == 0 {
					fmt.Fprintf(&sb, "--- page %d ---\n\n", index+1)
				} else {
					sb.WriteString(PageSeparator(index + 1))
				}
			}
			sb.WriteString(text)
		}
		answer.AnswerText = sb.String()

		answers = append(answers, answer)
	}

	sort.SliceStable(answers, func(i, j int) bool {
		return answers[i].QuestionNumber < answers[j].QuestionNumber
	})

	return answers
}

func uniqueSorted(pages []int) []int {
	out := make([]int, 0, len(pages))
	seen := make(map[int]bool, len(pages))
	for _, p := range pages {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	sort.Ints(out)
	return out
}
