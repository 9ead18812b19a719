package exam

import "time"

// Question is one item of the exam definition supplied by the caller.
// Immutable for the lifetime of a grading session.
type Question struct {
	ID      string `json:"id"`
	Subject string `json:"subject"`
	Kind    Kind   `json:"kind"`

	// AnswerKey holds the correct answer(s): one entry for SingleChoice,
	// Numeric, Integer; the full correct set for MultiChoiceCredit; one or
	// more acceptable literals for Text.
	AnswerKey []string `json:"answer_key"`

	// PositiveMarks is a per-question hint; 0 means "use the resolved rule".
	PositiveMarks float64 `json:"positive_marks,omitempty"`
}

// Exam is the descriptor the external collaborator provides alongside the
// question set.
type Exam struct {
	ID         string  `json:"id"`
	StudentID  string  `json:"student_id"`
	Stream     string  `json:"stream,omitempty"`
	Standard   string  `json:"standard,omitempty"`
	TotalMarks float64 `json:"total_marks,omitempty"`
}

// AnswerRecord is the latest submitted value for one question. A nil Value
// means the question was left unattempted. The engine keeps at most one
// record per question; a later write supersedes the earlier one.
type AnswerRecord struct {
	QuestionID  string    `json:"question_id"`
	Value       []string  `json:"value"` // nil = unattempted; 1 entry for scalar kinds
	SubmittedAt time.Time `json:"submitted_at"`
}

// Attempted reports whether the record carries a submitted value.
func (a AnswerRecord) Attempted() bool {
	if len(a.Value) == 0 {
		return false
	}
	for _, v := range a.Value {
		if v != "" {
			return true
		}
	}
	return false
}

// SubmissionMeta travels with the finalize call.
type SubmissionMeta struct {
	TimeTakenSec int       `json:"time_taken_sec"`
	CompletedAt  time.Time `json:"completed_at"`
	VisitedIDs   []string  `json:"visited_question_ids,omitempty"`
	MarkedIDs    []string  `json:"marked_question_ids,omitempty"`
	WarningCount int       `json:"warning_count,omitempty"`
}
