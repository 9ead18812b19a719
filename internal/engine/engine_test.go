package engine

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"testing"
	"time"

	"github.com/prepgrid/gradecore/internal/exam"
	"github.com/prepgrid/gradecore/internal/fault"
	"github.com/prepgrid/gradecore/internal/grading"
	"github.com/prepgrid/gradecore/internal/rules"
)

type stubHasher struct {
	err   error
	calls int
}

func (s *stubHasher) Hash(res *FinalResult) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	return fmt.Sprintf("digest-%s", res.ExamID), nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	resolver := rules.NewResolver(rules.NewRuleSet(), time.Minute, quietLogger())
	return New(resolver, grading.NewEvaluator(), &stubHasher{}, quietLogger())
}

func fiveSingleChoice() (exam.Exam, []exam.Question) {
	ex := exam.Exam{ID: "exam-1", StudentID: "student-1", Stream: "jee"}
	qs := make([]exam.Question, 0, 5)
	for i := 1; i <= 5; i++ {
		qs = append(qs, exam.Question{
			ID:        fmt.Sprintf("q%d", i),
			Subject:   "Physics",
			Kind:      exam.SingleChoice,
			AnswerKey: []string{"A"},
		})
	}
	return ex, qs
}

func initialized(t *testing.T) *Engine {
	t.Helper()
	e := newTestEngine(t)
	ex, qs := fiveSingleChoice()
	if err := e.Initialize(ex, qs); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return e
}

func checkInvariants(t *testing.T, e *Engine, questionCount int) {
	t.Helper()
	agg, _ := e.Snapshot()
	sum := 0.0
	for _, res := range e.resultList() {
		sum += res.Marks
	}
	if agg.TotalScore != sum {
		t.Fatalf("totalScore %v != sum of marks %v", agg.TotalScore, sum)
	}
	if got := agg.Counts.Attempted() + agg.Counts.Unattempted; got != questionCount {
		t.Fatalf("attempted+unattempted = %d, want %d", got, questionCount)
	}
}

func TestInitializeValidation(t *testing.T) {
	ex, qs := fiveSingleChoice()

	tests := []struct {
		name string
		ex   exam.Exam
		qs   []exam.Question
	}{
		{"empty question set", ex, nil},
		{"missing exam id", exam.Exam{StudentID: "s"}, qs},
		{"missing student id", exam.Exam{ID: "e"}, qs},
		{"duplicate question ids", ex, []exam.Question{qs[0], qs[0]}},
		{"invalid kind", ex, []exam.Question{{ID: "q1", Kind: exam.Kind("riddle")}}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := newTestEngine(t)
			err := e.Initialize(tc.ex, tc.qs)
			if !fault.IsKind(err, fault.Validation) {
				t.Fatalf("expected validation fault, got %v", err)
			}
			// fail-fast: no transition happened
			if e.State() != StateUninitialized {
				t.Fatalf("state moved to %s on invalid input", e.State())
			}
		})
	}
}

func TestInitializeSeedsUnattempted(t *testing.T) {
	e := initialized(t)
	agg, state := e.Snapshot()
	if state != StateReady {
		t.Fatalf("expected ready, got %s", state)
	}
	if agg.Counts.Unattempted != 5 || agg.Counts.Attempted() != 0 {
		t.Fatalf("expected all-unattempted seed, got %+v", agg.Counts)
	}
	if agg.TotalScore != 0 {
		t.Fatalf("expected zero score, got %v", agg.TotalScore)
	}
	if agg.TotalMaxMarks != 20 {
		t.Fatalf("expected max marks 20 (5 x 4), got %v", agg.TotalMaxMarks)
	}
	if e.Initialize(exam.Exam{ID: "x", StudentID: "y"}, nil) == nil {
		t.Fatal("second initialize should fail")
	}
}

func TestUpdateAnswerScenario(t *testing.T) {
	// 3 correct (+4 each), 2 incorrect (-1 each) => 10
	e := initialized(t)
	now := time.Now()

	for _, id := range []string{"q1", "q2", "q3"} {
		if _, err := e.UpdateAnswer(id, []string{"A"}, now); err != nil {
			t.Fatalf("UpdateAnswer(%s): %v", id, err)
		}
		checkInvariants(t, e, 5)
	}
	for _, id := range []string{"q4", "q5"} {
		if _, err := e.UpdateAnswer(id, []string{"B"}, now); err != nil {
			t.Fatalf("UpdateAnswer(%s): %v", id, err)
		}
		checkInvariants(t, e, 5)
	}

	agg, _ := e.Snapshot()
	if agg.TotalScore != 10 {
		t.Fatalf("expected final score 10, got %v", agg.TotalScore)
	}
	if agg.Counts.Correct != 3 || agg.Counts.Incorrect != 2 || agg.Counts.Unattempted != 0 {
		t.Fatalf("unexpected counts: %+v", agg.Counts)
	}
}

func TestUpdateAnswerReplacesNotMerges(t *testing.T) {
	e := initialized(t)
	now := time.Now()

	if _, err := e.UpdateAnswer("q1", []string{"B"}, now); err != nil {
		t.Fatal(err)
	}
	agg, _ := e.Snapshot()
	if agg.TotalScore != -1 {
		t.Fatalf("expected -1 after wrong answer, got %v", agg.TotalScore)
	}

	// latest write supersedes; score must not accumulate
	if _, err := e.UpdateAnswer("q1", []string{"A"}, now.Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	agg, _ = e.Snapshot()
	if agg.TotalScore != 4 {
		t.Fatalf("expected 4 after correction, got %v", agg.TotalScore)
	}
	if agg.Counts.Correct != 1 || agg.Counts.Incorrect != 0 {
		t.Fatalf("stale result left behind: %+v", agg.Counts)
	}
}

func TestUpdateAnswerUnknownQuestion(t *testing.T) {
	e := initialized(t)
	before, _ := e.Snapshot()

	_, err := e.UpdateAnswer("nope", []string{"A"}, time.Now())
	if !fault.IsKind(err, fault.Validation) {
		t.Fatalf("expected validation fault, got %v", err)
	}
	after, state := e.Snapshot()
	if !reflect.DeepEqual(before, after) {
		t.Fatal("failed update mutated state")
	}
	if state != StateReady {
		t.Fatalf("engine should revert to ready, got %s", state)
	}
}

func TestRecomputeIdempotent(t *testing.T) {
	e := initialized(t)
	now := time.Now()
	_, _ = e.UpdateAnswer("q1", []string{"A"}, now)
	_, _ = e.UpdateAnswer("q2", []string{"B"}, now)

	first := recompute(e.questions, e.results, e.maxByID)
	second := recompute(e.questions, e.results, e.maxByID)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("recompute not idempotent:\n%+v\n%+v", first, second)
	}
}

func TestUpdateBatchAtomic(t *testing.T) {
	e := initialized(t)

	// one unknown id poisons the whole batch
	_, err := e.UpdateBatch(map[string][]string{
		"q1":   {"A"},
		"nope": {"A"},
	}, time.Now())
	if !fault.IsKind(err, fault.Validation) {
		t.Fatalf("expected validation fault, got %v", err)
	}
	agg, _ := e.Snapshot()
	if agg.Counts.Attempted() != 0 {
		t.Fatalf("partial batch application: %+v", agg.Counts)
	}

	// clean batch applies as one transition
	agg, err = e.UpdateBatch(map[string][]string{
		"q1": {"A"},
		"q2": {"A"},
		"q3": {"B"},
	}, time.Now())
	if err != nil {
		t.Fatalf("UpdateBatch: %v", err)
	}
	if agg.Counts.Correct != 2 || agg.Counts.Incorrect != 1 {
		t.Fatalf("unexpected counts: %+v", agg.Counts)
	}
	if agg.TotalScore != 7 {
		t.Fatalf("expected 7, got %v", agg.TotalScore)
	}
	checkInvariants(t, e, 5)
}

func TestSubjectBreakdown(t *testing.T) {
	e := newTestEngine(t)
	ex := exam.Exam{ID: "exam-1", StudentID: "student-1"}
	qs := []exam.Question{
		{ID: "p1", Subject: "Physics", Kind: exam.SingleChoice, AnswerKey: []string{"A"}},
		{ID: "p2", Subject: "Physics", Kind: exam.SingleChoice, AnswerKey: []string{"A"}},
		{ID: "c1", Subject: "Chemistry", Kind: exam.SingleChoice, AnswerKey: []string{"A"}},
	}
	if err := e.Initialize(ex, qs); err != nil {
		t.Fatal(err)
	}
	now := time.Now()
	_, _ = e.UpdateAnswer("p1", []string{"A"}, now)
	_, _ = e.UpdateAnswer("c1", []string{"B"}, now)

	agg, _ := e.Snapshot()
	phy := agg.Subjects["Physics"]
	chem := agg.Subjects["Chemistry"]
	if phy.Score != 4 || phy.Counts.Correct != 1 || phy.Counts.Unattempted != 1 {
		t.Fatalf("physics breakdown wrong: %+v", phy)
	}
	if chem.Score != -1 || chem.Counts.Incorrect != 1 {
		t.Fatalf("chemistry breakdown wrong: %+v", chem)
	}
	if agg.TotalScore != phy.Score+chem.Score {
		t.Fatalf("subject scores do not sum to total: %v", agg.TotalScore)
	}
}

func TestFinalizeOnce(t *testing.T) {
	e := initialized(t)
	now := time.Now()
	_, _ = e.UpdateAnswer("q1", []string{"A"}, now)

	res, err := e.Finalize(exam.SubmissionMeta{TimeTakenSec: 1200, CompletedAt: now})
	if err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if res.ID == "" || res.Digest == "" {
		t.Fatalf("final result missing id or digest: %+v", res)
	}
	if len(res.Answers) != 5 {
		t.Fatalf("expected 5 per-question results, got %d", len(res.Answers))
	}
	if e.State() != StateFinalized {
		t.Fatalf("expected finalized, got %s", e.State())
	}

	// second finalize is a state fault and leaves the first result intact
	_, err = e.Finalize(exam.SubmissionMeta{})
	if !fault.IsKind(err, fault.State) {
		t.Fatalf("expected state fault, got %v", err)
	}
	if e.Final() != res {
		t.Fatal("prior final result changed")
	}

	// updates after finalize are rejected
	_, err = e.UpdateAnswer("q2", []string{"A"}, now)
	if !fault.IsKind(err, fault.State) {
		t.Fatalf("expected state fault on update after finalize, got %v", err)
	}
}

func TestFinalizeHashFailureIsTerminal(t *testing.T) {
	resolver := rules.NewResolver(rules.NewRuleSet(), time.Minute, quietLogger())
	h := &stubHasher{err: errors.New("boom")}
	e := New(resolver, grading.NewEvaluator(), h, quietLogger())
	ex, qs := fiveSingleChoice()
	if err := e.Initialize(ex, qs); err != nil {
		t.Fatal(err)
	}

	_, err := e.Finalize(exam.SubmissionMeta{})
	if !fault.IsKind(err, fault.Integrity) {
		t.Fatalf("expected integrity fault, got %v", err)
	}
	if e.State() != StateFailed {
		t.Fatalf("expected failed state, got %s", e.State())
	}
}

func TestFinalizeIncludesUnattempted(t *testing.T) {
	e := initialized(t)
	now := time.Now()
	_, _ = e.UpdateAnswer("q1", []string{"A"}, now)

	res, err := e.Finalize(exam.SubmissionMeta{})
	if err != nil {
		t.Fatal(err)
	}
	unattempted := 0
	for _, r := range res.Answers {
		if r.Outcome == grading.OutcomeUnattempted {
			unattempted++
		}
	}
	if unattempted != 4 {
		t.Fatalf("expected 4 unattempted entries, got %d", unattempted)
	}
}

func TestAggregateMaxCoversConfiguredCredit(t *testing.T) {
	enabled := true
	rs := rules.NewRuleSet()
	rs.Global = rules.RulePatch{
		PartialMarkingEnabled: &enabled,
		PartialRules:          map[rules.PartialOutcome]float64{rules.AllCorrect: 5},
	}
	resolver := rules.NewResolver(rs, time.Minute, quietLogger())
	e := New(resolver, grading.NewEvaluator(), &stubHasher{}, quietLogger())

	ex := exam.Exam{ID: "exam-1", StudentID: "student-1"}
	q := exam.Question{ID: "q1", Subject: "physics", Kind: exam.MultiChoiceCredit, AnswerKey: []string{"A", "C"}}
	if err := e.Initialize(ex, []exam.Question{q}); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	agg, _ := e.Snapshot()
	if agg.TotalMaxMarks != 5 {
		t.Fatalf("seeded total max = %v, want 5 (configured credit above positive marks)", agg.TotalMaxMarks)
	}

	agg, err := e.UpdateAnswer("q1", []string{"A", "C"}, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("UpdateAnswer: %v", err)
	}
	if agg.TotalScore != 5 || agg.TotalMaxMarks != 5 {
		t.Fatalf("aggregate = %v/%v, want 5/5", agg.TotalScore, agg.TotalMaxMarks)
	}
	if agg.TotalScore > agg.TotalMaxMarks {
		t.Fatalf("total score %v exceeds total max %v", agg.TotalScore, agg.TotalMaxMarks)
	}
}
