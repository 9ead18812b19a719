package engine

import (
	"strings"

	"github.com/prepgrid/gradecore/internal/exam"
	"github.com/prepgrid/gradecore/internal/grading"
)

// Counts breaks a set of evaluation outcomes down by category.
type Counts struct {
	Correct     int `json:"correct"`
	Incorrect   int `json:"incorrect"`
	Partial     int `json:"partial"`
	Unattempted int `json:"unattempted"`
}

func (c Counts) Attempted() int { return c.Correct + c.Incorrect + c.Partial }

func (c *Counts) add(o grading.Outcome) {
	switch o {
	case grading.OutcomeCorrect:
		c.Correct++
	case grading.OutcomeIncorrect:
		c.Incorrect++
	case grading.OutcomePartial:
		c.Partial++
	default:
		c.Unattempted++
	}
}

// SubjectAggregate is the per-subject slice of the running score.
type SubjectAggregate struct {
	Score    float64 `json:"score"`
	MaxMarks float64 `json:"max_marks"`
	Counts   Counts  `json:"counts"`
}

// Aggregate is the running, recomputable score state. It is always derived
// from the full evaluation-result set, never mutated incrementally, so
// recomputing it from the same answers yields an identical value.
type Aggregate struct {
	TotalScore    float64                     `json:"total_score"`
	TotalMaxMarks float64                     `json:"total_max_marks"`
	Counts        Counts                      `json:"counts"`
	Subjects      map[string]SubjectAggregate `json:"subjects"`
}

// recompute derives the aggregate for a question set. Questions without an
// evaluation result count as unattempted; each question's max marks come
// from its pre-resolved rule via the stored result's MaxMarks, falling back
// to maxByID for never-answered questions.
func recompute(questions []exam.Question, results map[string]grading.EvaluationResult, maxByID map[string]float64) Aggregate {
	agg := Aggregate{Subjects: make(map[string]SubjectAggregate)}
	for _, q := range questions {
		subject := subjectKey(q.Subject)
		sub := agg.Subjects[subject]

		maxMarks := maxByID[q.ID]
		res, ok := results[q.ID]
		if ok {
			maxMarks = res.MaxMarks
			agg.TotalScore += res.Marks
			sub.Score += res.Marks
			agg.Counts.add(res.Outcome)
			sub.Counts.add(res.Outcome)
		} else {
			agg.Counts.add(grading.OutcomeUnattempted)
			sub.Counts.add(grading.OutcomeUnattempted)
		}

		agg.TotalMaxMarks += maxMarks
		sub.MaxMarks += maxMarks
		agg.Subjects[subject] = sub
	}
	return agg
}

func subjectKey(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "general"
	}
	return s
}
