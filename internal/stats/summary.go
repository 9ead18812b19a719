// Package stats derives reporting summaries from the engine's aggregate
// state. Everything here is a pure function of its input and may be
// recomputed redundantly.
package stats

import (
	"math"
	"sort"

	"github.com/prepgrid/gradecore/internal/engine"
)

type Label string

const (
	LabelNeedsImprovement Label = "Needs Improvement"
	LabelGood             Label = "Good"
	LabelExcellent        Label = "Excellent"
)

// labelFor maps a score percentage onto the coarse performance bands.
func labelFor(scorePct float64) Label {
	switch {
	case scorePct >= 75:
		return LabelExcellent
	case scorePct >= 40:
		return LabelGood
	default:
		return LabelNeedsImprovement
	}
}

type Summary struct {
	Subject     string  `json:"subject,omitempty"`
	Questions   int     `json:"questions"`
	Attempted   int     `json:"attempted"`
	Correct     int     `json:"correct"`
	Incorrect   int     `json:"incorrect"`
	Partial     int     `json:"partial"`
	Unattempted int     `json:"unattempted"`
	Score       float64 `json:"score"`
	MaxScore    float64 `json:"max_score"`
	AttemptPct  float64 `json:"attempt_pct"`
	AccuracyPct float64 `json:"accuracy_pct"`
	ScorePct    float64 `json:"score_pct"`
	Label       Label   `json:"label"`
}

type Report struct {
	Overall  Summary   `json:"overall"`
	Subjects []Summary `json:"subjects"`
}

// Summarize builds the report for an aggregate. Subjects are emitted in
// sorted order so the report serializes identically across recomputations.
func Summarize(agg engine.Aggregate) Report {
	rep := Report{
		Overall: summary("", agg.Counts, agg.TotalScore, agg.TotalMaxMarks),
	}

	names := make([]string, 0, len(agg.Subjects))
	for name := range agg.Subjects {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		sub := agg.Subjects[name]
		rep.Subjects = append(rep.Subjects, summary(name, sub.Counts, sub.Score, sub.MaxMarks))
	}
	return rep
}

func summary(subject string, c engine.Counts, score, maxScore float64) Summary {
	total := c.Attempted() + c.Unattempted
	s := Summary{
		Subject:     subject,
		Questions:   total,
		Attempted:   c.Attempted(),
		Correct:     c.Correct,
		Incorrect:   c.Incorrect,
		Partial:     c.Partial,
		Unattempted: c.Unattempted,
		Score:       score,
		MaxScore:    maxScore,
	}
	if total > 0 {
		s.AttemptPct = round2(float64(c.Attempted()) / float64(total) * 100)
	}
	if c.Attempted() > 0 {
		s.AccuracyPct = round2(float64(c.Correct) / float64(c.Attempted()) * 100)
	}
	if maxScore > 0 {
		pct := score / maxScore * 100
		if pct < 0 {
			pct = 0
		}
		s.ScorePct = round2(pct)
	}
	s.Label = labelFor(s.ScorePct)
	return s
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
