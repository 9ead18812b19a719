package stats

import (
	"reflect"
	"testing"

	"github.com/prepgrid/gradecore/internal/engine"
)

func sampleAggregate() engine.Aggregate {
	return engine.Aggregate{
		TotalScore:    46,
		TotalMaxMarks: 80,
		Counts:        engine.Counts{Correct: 12, Incorrect: 4, Partial: 1, Unattempted: 3},
		Subjects: map[string]engine.SubjectAggregate{
			"Physics":   {Score: 30, MaxMarks: 40, Counts: engine.Counts{Correct: 8, Incorrect: 1, Unattempted: 1}},
			"Chemistry": {Score: 16, MaxMarks: 40, Counts: engine.Counts{Correct: 4, Incorrect: 3, Partial: 1, Unattempted: 2}},
		},
	}
}

func TestSummarizeOverall(t *testing.T) {
	rep := Summarize(sampleAggregate())
	o := rep.Overall

	if o.Questions != 20 {
		t.Errorf("questions = %d, want 20", o.Questions)
	}
	if o.Attempted != 17 {
		t.Errorf("attempted = %d, want 17", o.Attempted)
	}
	if o.AttemptPct != 85 {
		t.Errorf("attempt pct = %v, want 85", o.AttemptPct)
	}
	if o.AccuracyPct != 70.59 {
		t.Errorf("accuracy pct = %v, want 70.59", o.AccuracyPct)
	}
	if o.ScorePct != 57.5 {
		t.Errorf("score pct = %v, want 57.5", o.ScorePct)
	}
	if o.Label != LabelGood {
		t.Errorf("label = %q, want %q", o.Label, LabelGood)
	}
}

func TestSummarizeSubjectsSortedAndLabelled(t *testing.T) {
	rep := Summarize(sampleAggregate())
	if len(rep.Subjects) != 2 {
		t.Fatalf("expected 2 subject summaries, got %d", len(rep.Subjects))
	}
	if rep.Subjects[0].Subject != "Chemistry" || rep.Subjects[1].Subject != "Physics" {
		t.Fatalf("subjects not sorted: %s, %s", rep.Subjects[0].Subject, rep.Subjects[1].Subject)
	}
	if rep.Subjects[0].Label != LabelGood {
		t.Errorf("chemistry at 40%% should be Good, got %q", rep.Subjects[0].Label)
	}
	if rep.Subjects[1].Label != LabelExcellent {
		t.Errorf("physics at 75%% should be Excellent, got %q", rep.Subjects[1].Label)
	}
}

func TestLabelThresholds(t *testing.T) {
	tests := []struct {
		pct  float64
		want Label
	}{
		{0, LabelNeedsImprovement},
		{39.99, LabelNeedsImprovement},
		{40, LabelGood},
		{74.99, LabelGood},
		{75, LabelExcellent},
		{100, LabelExcellent},
	}
	for _, tc := range tests {
		if got := labelFor(tc.pct); got != tc.want {
			t.Errorf("labelFor(%v) = %q, want %q", tc.pct, got, tc.want)
		}
	}
}

func TestSummarizeNegativeScoreClamped(t *testing.T) {
	agg := engine.Aggregate{
		TotalScore:    -3,
		TotalMaxMarks: 20,
		Counts:        engine.Counts{Incorrect: 3, Unattempted: 2},
	}
	rep := Summarize(agg)
	if rep.Overall.ScorePct != 0 {
		t.Errorf("negative score should clamp to 0%%, got %v", rep.Overall.ScorePct)
	}
	if rep.Overall.Label != LabelNeedsImprovement {
		t.Errorf("label = %q", rep.Overall.Label)
	}
}

func TestSummarizeEmptyAggregate(t *testing.T) {
	rep := Summarize(engine.Aggregate{})
	if rep.Overall.Questions != 0 || rep.Overall.ScorePct != 0 {
		t.Fatalf("empty aggregate should produce zero summary: %+v", rep.Overall)
	}
	if len(rep.Subjects) != 0 {
		t.Fatalf("expected no subjects, got %d", len(rep.Subjects))
	}
}

func TestSummarizeIdempotent(t *testing.T) {
	first := Summarize(sampleAggregate())
	second := Summarize(sampleAggregate())
	if !reflect.DeepEqual(first, second) {
		t.Fatal("summarize is not a pure function of its input")
	}
}
