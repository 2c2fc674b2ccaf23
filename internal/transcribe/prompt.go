package transcribe

import (
	"fmt"
	"strings"
)

const systemPrompt = `You transcribe handwritten or typed exam answers from scanned pages.
Copy the student's answer exactly as written, preserving line breaks and indentation.
Do not correct mistakes, complete unfinished code, or add commentary.
If an answer area is blank, return an empty string for it.
Respond with JSON only, in the form:
{"answers": [{"question_number": 1, "sub_question_id": "", "answer_text": "..."}]}`

func buildPagePrompt(page Page, targets []PageAssignment, language string) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "This is page %d of the submission.\n", page.Number())
	if language != "" {
		fmt.Fprintf(&sb, "Answers are written in %s.\n", language)
	}
	sb.WriteString("Transcribe the answers to the following questions that appear on this page:\n")
	for _, t := range targets {
		if t.SubQuestionID != "" {
			fmt.Fprintf(&sb, "- question %d, sub-question %s\n", t.QuestionNumber, t.SubQuestionID)
		} else {
			fmt.Fprintf(&sb, "- question %d\n", t.QuestionNumber)
		}
	}

	return sb.String()
}
