// Package grading evaluates one submitted answer against one question under
// a resolved marking rule. Every strategy is a pure function of
// (answer, question, rule), so results can be recomputed at any time and
// compared bit for bit.
package grading

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/prepgrid/gradecore/internal/exam"
	"github.com/prepgrid/gradecore/internal/rules"
)

type Outcome string

const (
	OutcomeCorrect     Outcome = "correct"
	OutcomeIncorrect   Outcome = "incorrect"
	OutcomePartial     Outcome = "partial"
	OutcomeUnattempted Outcome = "unattempted"
)

// EvaluationResult is the outcome of grading a single question. A new
// answer for the same question fully replaces the previous result.
type EvaluationResult struct {
	QuestionID string    `json:"question_id"`
	Outcome    Outcome   `json:"outcome"`
	Marks      float64   `json:"marks"`
	MaxMarks   float64   `json:"max_marks"`
	Kind       exam.Kind `json:"kind"`
	Detail     string    `json:"detail,omitempty"`
}

// Strategy grades one answer for a single question kind.
type Strategy interface {
	Evaluate(ans exam.AnswerRecord, q exam.Question, rule rules.MarkingRule) EvaluationResult
}

// Evaluator routes by question kind to the matching Strategy.
type Evaluator struct {
	strategies map[exam.Kind]Strategy
}

func NewEvaluator() *Evaluator {
	return &Evaluator{
		strategies: map[exam.Kind]Strategy{
			exam.SingleChoice:      singleChoiceStrategy{},
			exam.MultiChoiceCredit: multiChoiceStrategy{},
			exam.Numeric:           numericStrategy{},
			exam.Integer:           integerStrategy{},
			exam.Text:              textStrategy{},
		},
	}
}

func (e *Evaluator) Evaluate(ans exam.AnswerRecord, q exam.Question, rule rules.MarkingRule) EvaluationResult {
	s, ok := e.strategies[q.Kind]
	if !ok {
		// unknown kinds are rejected at ingestion; this is belt and braces
		return EvaluationResult{
			QuestionID: q.ID, Outcome: OutcomeUnattempted, Kind: q.Kind,
			MaxMarks: rule.MaxAttainable(q.Kind), Detail: "no strategy for kind",
		}
	}
	res := s.Evaluate(ans, q, rule)
	res.QuestionID = q.ID
	res.Kind = q.Kind
	res.MaxMarks = rule.MaxAttainable(q.Kind)
	return res
}

// --- SingleChoice ---

type singleChoiceStrategy struct{}

func (singleChoiceStrategy) Evaluate(ans exam.AnswerRecord, q exam.Question, rule rules.MarkingRule) EvaluationResult {
	if !ans.Attempted() {
		return EvaluationResult{Outcome: OutcomeUnattempted}
	}
	if len(q.AnswerKey) == 0 {
		return EvaluationResult{Outcome: OutcomeUnattempted, Detail: "missing answer key"}
	}
	user := normalizeToken(ans.Value[0])
	correct := normalizeToken(q.AnswerKey[0])
	if user == correct && user != "" {
		return EvaluationResult{Outcome: OutcomeCorrect, Marks: rule.PositiveMarks, Detail: "option match"}
	}
	return EvaluationResult{Outcome: OutcomeIncorrect, Marks: -rule.NegativeMarks, Detail: "option mismatch"}
}

// --- MultiChoiceCredit ---

type multiChoiceStrategy struct{}

func (multiChoiceStrategy) Evaluate(ans exam.AnswerRecord, q exam.Question, rule rules.MarkingRule) EvaluationResult {
	correct := normalizeSet(q.AnswerKey)
	if len(correct) == 0 {
		return EvaluationResult{Outcome: OutcomeUnattempted, Detail: "missing answer key"}
	}
	selected := normalizeSet(ans.Value)

	if len(selected) == 0 {
		marks, _ := rule.PartialMarks(rules.NoneSelected)
		return EvaluationResult{Outcome: OutcomeUnattempted, Marks: marks}
	}

	correctSelected, incorrectSelected := 0, 0
	for s := range selected {
		if _, ok := correct[s]; ok {
			correctSelected++
		} else {
			incorrectSelected++
		}
	}

	// One wrong choice forfeits the positive credit, even when every
	// correct option was also selected.
	if incorrectSelected > 0 {
		marks, ok := rule.PartialMarks(rules.AnyIncorrect)
		if !ok {
			marks = -rule.NegativeMarks
		}
		return EvaluationResult{
			Outcome: OutcomeIncorrect, Marks: marks,
			Detail: fmt.Sprintf("%d incorrect option(s) selected", incorrectSelected),
		}
	}

	if correctSelected == len(correct) {
		marks, ok := rule.PartialMarks(rules.AllCorrect)
		if !ok {
			marks = rule.PositiveMarks
		}
		return EvaluationResult{Outcome: OutcomeCorrect, Marks: marks, Detail: "all correct options selected"}
	}

	// proper subset of the correct set
	detail := fmt.Sprintf("%d of %d correct options selected", correctSelected, len(correct))
	if !rule.PartialMarkingEnabled {
		return EvaluationResult{Outcome: OutcomeIncorrect, Marks: 0, Detail: detail + ", partial marking disabled"}
	}
	marks, ok := rule.PartialMarks(rules.OneOrMoreCorrect)
	if !ok {
		// no flat value configured: proportional credit
		marks = rule.PositiveMarks * float64(correctSelected) / float64(len(correct))
	}
	return EvaluationResult{Outcome: OutcomePartial, Marks: marks, Detail: detail}
}

// --- Numeric ---

type numericStrategy struct{}

func (numericStrategy) Evaluate(ans exam.AnswerRecord, q exam.Question, rule rules.MarkingRule) EvaluationResult {
	if !ans.Attempted() {
		return EvaluationResult{Outcome: OutcomeUnattempted}
	}
	if len(q.AnswerKey) == 0 {
		return EvaluationResult{Outcome: OutcomeUnattempted, Detail: "missing answer key"}
	}
	if CompareNumeric(ans.Value[0], q.AnswerKey[0], rule.Tolerance) {
		return EvaluationResult{
			Outcome: OutcomeCorrect, Marks: rule.PositiveMarks,
			Detail: toleranceDetail(rule.Tolerance),
		}
	}
	return EvaluationResult{Outcome: OutcomeIncorrect, Marks: -rule.NegativeMarks, Detail: "outside tolerance"}
}

func toleranceDetail(tol rules.Tolerance) string {
	if tol.Value == 0 {
		return "exact numeric match"
	}
	if tol.Mode == rules.TolerancePercentage {
		return fmt.Sprintf("within %.4g%% tolerance", tol.Value)
	}
	return fmt.Sprintf("within absolute tolerance %.4g", tol.Value)
}

// --- Integer ---

var integerRe = regexp.MustCompile(`^[-+]?\d+$`)

type integerStrategy struct{}

func (integerStrategy) Evaluate(ans exam.AnswerRecord, q exam.Question, rule rules.MarkingRule) EvaluationResult {
	if !ans.Attempted() {
		return EvaluationResult{Outcome: OutcomeUnattempted}
	}
	if len(q.AnswerKey) == 0 {
		return EvaluationResult{Outcome: OutcomeUnattempted, Detail: "missing answer key"}
	}
	user := strings.TrimSpace(ans.Value[0])
	correct := strings.TrimSpace(q.AnswerKey[0])
	// A malformed submitted value is still a submitted attempt.
	if !integerRe.MatchString(user) {
		return EvaluationResult{Outcome: OutcomeIncorrect, Marks: -rule.NegativeMarks, Detail: "not a valid integer"}
	}
	if !integerRe.MatchString(correct) {
		return EvaluationResult{Outcome: OutcomeIncorrect, Marks: -rule.NegativeMarks, Detail: "malformed answer key"}
	}
	if normalizeInteger(user) == normalizeInteger(correct) {
		return EvaluationResult{Outcome: OutcomeCorrect, Marks: rule.PositiveMarks, Detail: "integer match"}
	}
	return EvaluationResult{Outcome: OutcomeIncorrect, Marks: -rule.NegativeMarks, Detail: "integer mismatch"}
}

// normalizeInteger reduces a regex-validated integer literal to a canonical
// form: no explicit plus, no leading zeros, and -0 folded into 0. String
// comparison then matches values of any width, unlike a 64-bit parse.
func normalizeInteger(s string) string {
	neg := false
	switch s[0] {
	case '+':
		s = s[1:]
	case '-':
		neg = true
		s = s[1:]
	}
	s = strings.TrimLeft(s, "0")
	if s == "" {
		return "0"
	}
	if neg {
		return "-" + s
	}
	return s
}

// --- Text ---

type textStrategy struct{}

func (textStrategy) Evaluate(ans exam.AnswerRecord, q exam.Question, rule rules.MarkingRule) EvaluationResult {
	if !ans.Attempted() {
		return EvaluationResult{Outcome: OutcomeUnattempted}
	}
	if len(q.AnswerKey) == 0 {
		return EvaluationResult{Outcome: OutcomeUnattempted, Detail: "missing answer key"}
	}
	user := strings.TrimSpace(ans.Value[0])
	for i, k := range q.AnswerKey {
		k = strings.TrimSpace(k)
		matched := user == k
		if !rule.TextCaseSensitive {
			matched = strings.EqualFold(user, k)
		}
		if matched {
			return EvaluationResult{
				Outcome: OutcomeCorrect, Marks: rule.PositiveMarks,
				Detail: fmt.Sprintf("matched acceptable literal %d", i+1),
			}
		}
	}
	return EvaluationResult{Outcome: OutcomeIncorrect, Marks: -rule.NegativeMarks, Detail: "no literal match"}
}
