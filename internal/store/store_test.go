package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/prepgrid/gradecore/internal/db"
	"github.com/prepgrid/gradecore/internal/engine"
	"github.com/prepgrid/gradecore/internal/grading"
	"github.com/prepgrid/gradecore/internal/integrity"
)

func newSQLTestStore(t *testing.T) *SQLStore {
	t.Helper()
	dbh, err := db.Open(context.Background(), db.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { dbh.Close() })
	return NewSQLStore(dbh, "sqlite")
}

func sealedResult(t *testing.T, examID string) *engine.FinalResult {
	t.Helper()
	res := &engine.FinalResult{
		ID:        uuid.NewString(),
		ExamID:    examID,
		StudentID: "student-1",
		Aggregate: engine.Aggregate{
			TotalScore:    10,
			TotalMaxMarks: 20,
			Counts:        engine.Counts{Correct: 3, Incorrect: 2},
		},
		Answers: []grading.EvaluationResult{
			{QuestionID: "q1", Outcome: grading.OutcomeCorrect, Marks: 4, MaxMarks: 4},
		},
		FinalizedAt: time.Unix(1700000000, 0).UTC(),
	}
	digest, err := integrity.NewValidator().Hash(res)
	if err != nil {
		t.Fatalf("sealing result: %v", err)
	}
	res.Digest = digest
	return res
}

func testStoreRoundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()
	res := sealedResult(t, "exam-1")

	sr, err := s.SaveResult(ctx, res)
	if err != nil {
		t.Fatalf("SaveResult: %v", err)
	}
	if sr.RefCode == "" {
		t.Fatal("no reference code assigned")
	}
	if sr.Digest != res.Digest {
		t.Fatalf("stored digest %q differs from result digest %q", sr.Digest, res.Digest)
	}

	got, err := s.GetResult(ctx, res.ID)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if got.Result.ID != res.ID || got.Result.Aggregate.TotalScore != 10 {
		t.Fatalf("loaded result differs: %+v", got.Result)
	}

	// the persisted payload must verify against the stored digest with no
	// recomputation downstream
	if err := integrity.NewValidator().Verify(got.Result, got.Digest); err != nil {
		t.Fatalf("stored result failed verification: %v", err)
	}

	byRef, err := s.GetResultByRef(ctx, sr.RefCode)
	if err != nil {
		t.Fatalf("GetResultByRef: %v", err)
	}
	if byRef.Result.ID != res.ID {
		t.Fatalf("ref lookup returned wrong result: %s", byRef.Result.ID)
	}

	if _, err := s.GetResult(ctx, "missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreRoundTrip(t *testing.T) {
	testStoreRoundTrip(t, NewInMemoryStore())
}

func TestSQLStoreRoundTrip(t *testing.T) {
	testStoreRoundTrip(t, newSQLTestStore(t))
}

func TestSaveRejectsUnsealedResult(t *testing.T) {
	s := NewInMemoryStore()
	res := sealedResult(t, "exam-1")
	res.Digest = ""
	if _, err := s.SaveResult(context.Background(), res); err == nil {
		t.Fatal("unsealed result must not be stored")
	}
}

func TestListResults(t *testing.T) {
	s := newSQLTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.SaveResult(ctx, sealedResult(t, "exam-1")); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := s.SaveResult(ctx, sealedResult(t, "exam-2")); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListResults(ctx, "exam-1")
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 results for exam-1, got %d", len(list))
	}
}

func TestMemoryStoreRejectsDuplicateID(t *testing.T) {
	s := NewInMemoryStore()
	ctx := context.Background()
	res := sealedResult(t, "exam-1")
	if _, err := s.SaveResult(ctx, res); err != nil {
		t.Fatal(err)
	}
	if _, err := s.SaveResult(ctx, res); err == nil {
		t.Fatal("duplicate id should be rejected")
	}
}
