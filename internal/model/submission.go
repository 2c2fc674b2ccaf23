package model

// TranscribedAnswer is the text a student wrote for one question or sub-question.
// AnswerText is empty, never absent, when nothing could be read.
type TranscribedAnswer struct {
	SubQuestionID  string `json:"sub_question_id,omitempty"`
	AnswerText     string `json:"answer_text"`
	Pages          []int  `json:"pages"`
	DegradedPages  []int  `json:"degraded_pages,omitempty"`
	QuestionNumber int    `json:"question_number"`
}

// Degraded reports whether any page contributing to the answer failed transcription.
func (a TranscribedAnswer) Degraded() bool {
	return len(a.DegradedPages) > 0
}

// StudentTest is one transcribed student submission.
type StudentTest struct {
	StudentName string              `json:"student_name"`
	Filename    string              `json:"filename"`
	Answers     []TranscribedAnswer `json:"answers"`
}

// AnswersFor returns the answers recorded for a question, in order.
func (t StudentTest) AnswersFor(questionNumber int) []TranscribedAnswer {
	var out []TranscribedAnswer
	for _, a := range t.Answers {
		if a.QuestionNumber == questionNumber {
			out = append(out, a)
		}
	}
	return out
}
