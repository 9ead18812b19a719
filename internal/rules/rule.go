// Package rules resolves the marking rule that applies to a question.
//
// A rule is assembled from up to eight precedence levels (global default up
// to a question-specific override); each level is a sparse RulePatch that
// overrides only the fields it defines. Resolution is a left-fold merge from
// the lowest level to the highest, so later levels win conflicting fields.
package rules

import (
	"log/slog"
	"math"

	"github.com/prepgrid/gradecore/internal/exam"
)

type ToleranceMode string

const (
	ToleranceAbsolute   ToleranceMode = "absolute"
	TolerancePercentage ToleranceMode = "percentage"
)

// Tolerance is the permitted numeric deviation for Numeric questions.
type Tolerance struct {
	Mode  ToleranceMode `json:"mode"`
	Value float64       `json:"value"`
}

// PartialOutcome categorizes a multi-choice selection for partial-credit
// marks lookup.
type PartialOutcome string

const (
	AllCorrect       PartialOutcome = "allCorrect"
	OneOrMoreCorrect PartialOutcome = "oneOrMoreCorrect"
	AnyIncorrect     PartialOutcome = "anyIncorrect"
	NoneSelected     PartialOutcome = "noneSelected"
)

// MarkingRule is the fully resolved rule applied to one question.
type MarkingRule struct {
	PositiveMarks float64 `json:"positive_marks"`
	// NegativeMarks is the penalty magnitude for a wrong answer; it is
	// always stored >= 0 and applied as a subtraction.
	NegativeMarks         float64                    `json:"negative_marks"`
	PartialMarkingEnabled bool                       `json:"partial_marking_enabled"`
	PartialRules          map[PartialOutcome]float64 `json:"partial_rules,omitempty"`
	Tolerance             Tolerance                  `json:"tolerance"`
	TextCaseSensitive     bool                       `json:"text_case_sensitive"`
}

// PartialMarks returns the configured marks for an outcome category and
// whether it was explicitly configured.
func (r MarkingRule) PartialMarks(o PartialOutcome) (float64, bool) {
	v, ok := r.PartialRules[o]
	return v, ok
}

// MaxAttainable returns the highest marks the rule can award for a question
// of the given kind. Partial-credit outcomes may be configured above
// PositiveMarks, and the attainable maximum has to cover them so an awarded
// score never exceeds it.
func (r MarkingRule) MaxAttainable(kind exam.Kind) float64 {
	max := r.PositiveMarks
	if kind == exam.MultiChoiceCredit && r.PartialMarkingEnabled {
		for _, v := range r.PartialRules {
			if v > max {
				max = v
			}
		}
	}
	return max
}

// RulePatch is the sparse form used by a single precedence level. Nil fields
// leave the lower-level value untouched; PartialRules entries merge per key.
type RulePatch struct {
	PositiveMarks         *float64                   `json:"positive_marks,omitempty"`
	NegativeMarks         *float64                   `json:"negative_marks,omitempty"`
	PartialMarkingEnabled *bool                      `json:"partial_marking_enabled,omitempty"`
	PartialRules          map[PartialOutcome]float64 `json:"partial_rules,omitempty"`
	Tolerance             *Tolerance                 `json:"tolerance,omitempty"`
	TextCaseSensitive     *bool                      `json:"text_case_sensitive,omitempty"`
}

// IsZero reports whether the patch defines no fields.
func (p RulePatch) IsZero() bool {
	return p.PositiveMarks == nil && p.NegativeMarks == nil &&
		p.PartialMarkingEnabled == nil && len(p.PartialRules) == 0 &&
		p.Tolerance == nil && p.TextCaseSensitive == nil
}

const (
	DefaultPositiveMarks = 4.0
	DefaultNegativeMarks = 1.0
)

// DefaultRule is precedence level 1: +4 / -1, no partial credit, exact
// numeric match.
func DefaultRule() MarkingRule {
	return MarkingRule{
		PositiveMarks: DefaultPositiveMarks,
		NegativeMarks: DefaultNegativeMarks,
		Tolerance:     Tolerance{Mode: ToleranceAbsolute, Value: 0},
	}
}

func (r *MarkingRule) apply(p RulePatch) {
	if p.PositiveMarks != nil {
		r.PositiveMarks = *p.PositiveMarks
	}
	if p.NegativeMarks != nil {
		r.NegativeMarks = *p.NegativeMarks
	}
	if p.PartialMarkingEnabled != nil {
		r.PartialMarkingEnabled = *p.PartialMarkingEnabled
	}
	if len(p.PartialRules) > 0 {
		if r.PartialRules == nil {
			r.PartialRules = make(map[PartialOutcome]float64, len(p.PartialRules))
		}
		for k, v := range p.PartialRules {
			r.PartialRules[k] = v
		}
	}
	if p.Tolerance != nil {
		r.Tolerance = *p.Tolerance
	}
	if p.TextCaseSensitive != nil {
		r.TextCaseSensitive = *p.TextCaseSensitive
	}
}

// sanitize corrects invalid resolved values to safe defaults. Invalid input
// is a data problem in the rule configuration, not a reason to fail a
// grading session, so it warns and continues.
func (r *MarkingRule) sanitize(log *slog.Logger, questionID string) {
	bad := func(v float64) bool { return v < 0 || math.IsNaN(v) || math.IsInf(v, 0) }
	if bad(r.PositiveMarks) {
		log.Warn("invalid positive marks, using default",
			"question_id", questionID, "value", r.PositiveMarks)
		r.PositiveMarks = DefaultPositiveMarks
	}
	if bad(r.NegativeMarks) {
		log.Warn("invalid negative marks, using default",
			"question_id", questionID, "value", r.NegativeMarks)
		r.NegativeMarks = DefaultNegativeMarks
	}
	if bad(r.Tolerance.Value) {
		log.Warn("invalid tolerance, using exact match",
			"question_id", questionID, "value", r.Tolerance.Value)
		r.Tolerance.Value = 0
	}
	if r.Tolerance.Mode != TolerancePercentage {
		r.Tolerance.Mode = ToleranceAbsolute
	}
}
