// Package engine orchestrates progressive grading for one exam attempt: it
// resolves rules, evaluates answers as they arrive, keeps the aggregate
// score recomputable at all times, and produces a single immutable final
// result at submission.
package engine

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prepgrid/gradecore/internal/exam"
	"github.com/prepgrid/gradecore/internal/fault"
	"github.com/prepgrid/gradecore/internal/grading"
	"github.com/prepgrid/gradecore/internal/rules"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateUpdating      State = "updating"
	StateFinalizing    State = "finalizing"
	StateFinalized     State = "finalized"
	StateFailed        State = "failed"
)

// FinalResult is the terminal snapshot of a graded attempt. It is created
// exactly once at finalize; any later mutation must break digest
// verification.
type FinalResult struct {
	ID          string                     `json:"id"`
	ExamID      string                     `json:"exam_id"`
	StudentID   string                     `json:"student_id"`
	Stream      string                     `json:"stream,omitempty"`
	Aggregate   Aggregate                  `json:"aggregate"`
	Answers     []grading.EvaluationResult `json:"answers"`
	Meta        exam.SubmissionMeta        `json:"meta"`
	FinalizedAt time.Time                  `json:"finalized_at"`
	Digest      string                     `json:"digest,omitempty"`
}

// Hasher produces the integrity digest over a final result. The engine only
// needs the digest, not the canonicalization details.
type Hasher interface {
	Hash(res *FinalResult) (string, error)
}

// Engine is the per-attempt grading state machine. All mutating operations
// serialize through one mutex: the single-writer guarantee for aggregate
// merges.
type Engine struct {
	mu        sync.Mutex
	state     State
	log       *slog.Logger
	resolver  *rules.Resolver
	evaluator *grading.Evaluator
	hasher    Hasher

	exam      exam.Exam
	ruleCtx   rules.ExamContext
	questions []exam.Question
	byID      map[string]exam.Question
	maxByID   map[string]float64

	answers   map[string]exam.AnswerRecord
	results   map[string]grading.EvaluationResult
	aggregate Aggregate
	final     *FinalResult
}

func New(resolver *rules.Resolver, evaluator *grading.Evaluator, hasher Hasher, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		state:     StateUninitialized,
		log:       log,
		resolver:  resolver,
		evaluator: evaluator,
		hasher:    hasher,
	}
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Initialize validates the attempt, pre-warms the rule cache for every
// question and seeds an all-unattempted aggregate. Validation failures are
// fail-fast: the engine stays Uninitialized.
func (e *Engine) Initialize(ex exam.Exam, questions []exam.Question) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateUninitialized {
		return fault.New(fault.State, "initialize called in state %s", e.state)
	}
	if len(questions) == 0 {
		return fault.New(fault.Validation, "question set is empty")
	}
	if ex.ID == "" || ex.StudentID == "" {
		return fault.New(fault.Validation, "exam id and student id are required")
	}

	byID := make(map[string]exam.Question, len(questions))
	for _, q := range questions {
		if q.ID == "" {
			return fault.New(fault.Validation, "question with empty id")
		}
		if _, dup := byID[q.ID]; dup {
			return fault.New(fault.Validation, "duplicate question id %s", q.ID)
		}
		if !q.Kind.Valid() {
			return fault.New(fault.Validation, "question %s has unknown kind %q", q.ID, q.Kind)
		}
		byID[q.ID] = q
	}

	e.state = StateInitializing
	ctx := rules.ExamContext{Stream: ex.Stream}
	resolved := e.resolver.ResolveAll(questions, ctx)
	maxByID := make(map[string]float64, len(questions))
	for _, q := range questions {
		maxByID[q.ID] = resolved[q.ID].MaxAttainable(q.Kind)
	}

	e.exam = ex
	e.ruleCtx = ctx
	e.questions = questions
	e.byID = byID
	e.maxByID = maxByID
	e.answers = make(map[string]exam.AnswerRecord, len(questions))
	e.results = make(map[string]grading.EvaluationResult, len(questions))
	e.aggregate = recompute(questions, e.results, maxByID)
	e.state = StateReady

	e.log.Info("grading session initialized",
		"exam_id", ex.ID, "student_id", ex.StudentID, "questions", len(questions))
	return nil
}

// UpdateAnswer evaluates one answer event and replaces that question's
// evaluation result. The aggregate is recomputed from the full result set,
// so replaying or re-sending an answer cannot double-apply marks.
func (e *Engine) UpdateAnswer(questionID string, value []string, at time.Time) (Aggregate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.updatable(); err != nil {
		return e.aggregate, err
	}
	q, ok := e.byID[questionID]
	if !ok {
		return e.aggregate, fault.New(fault.Validation, "unknown question id %s", questionID)
	}

	e.state = StateUpdating
	rec := exam.AnswerRecord{QuestionID: questionID, Value: value, SubmittedAt: at}
	// cache hit expected: the rule set was pre-warmed at initialize, and
	// re-resolving picks up any override registered since
	rule := e.resolver.Resolve(q, e.ruleCtx)
	res := e.evaluator.Evaluate(rec, q, rule)

	e.answers[questionID] = rec
	e.results[questionID] = res
	e.maxByID[questionID] = res.MaxMarks
	e.aggregate = recompute(e.questions, e.results, e.maxByID)
	e.state = StateReady
	return e.aggregate, nil
}

// UpdateBatch evaluates every entry independently and merges all of them as
// one atomic transition. If any entry fails validation the whole batch is
// rejected and the failing ids are reported.
func (e *Engine) UpdateBatch(batch map[string][]string, at time.Time) (Aggregate, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.updatable(); err != nil {
		return e.aggregate, err
	}
	if len(batch) == 0 {
		return e.aggregate, fault.New(fault.Validation, "empty batch")
	}

	unknown := make([]string, 0)
	for id := range batch {
		if _, ok := e.byID[id]; !ok {
			unknown = append(unknown, id)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return e.aggregate, fault.New(fault.Validation, "unknown question ids: %v", unknown)
	}

	e.state = StateUpdating

	// Evaluation is pure, so entries fan out across goroutines; only the
	// merge below is serialized.
	type evaluated struct {
		rec exam.AnswerRecord
		res grading.EvaluationResult
	}
	out := make(chan evaluated, len(batch))
	var wg sync.WaitGroup
	for id, value := range batch {
		wg.Add(1)
		go func(id string, value []string) {
			defer wg.Done()
			q := e.byID[id]
			rec := exam.AnswerRecord{QuestionID: id, Value: value, SubmittedAt: at}
			rule := e.resolver.Resolve(q, e.ruleCtx)
			out <- evaluated{rec: rec, res: e.evaluator.Evaluate(rec, q, rule)}
		}(id, value)
	}
	wg.Wait()
	close(out)

	for ev := range out {
		e.answers[ev.rec.QuestionID] = ev.rec
		e.results[ev.res.QuestionID] = ev.res
		e.maxByID[ev.res.QuestionID] = ev.res.MaxMarks
	}
	e.aggregate = recompute(e.questions, e.results, e.maxByID)
	e.state = StateReady
	return e.aggregate, nil
}

func (e *Engine) updatable() error {
	switch e.state {
	case StateReady:
		return nil
	case StateFinalized:
		return fault.New(fault.State, "attempt already finalized")
	default:
		return fault.New(fault.State, "update called in state %s", e.state)
	}
}

// Snapshot returns the current aggregate for live score display.
func (e *Engine) Snapshot() (Aggregate, State) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.aggregate, e.state
}

// resultList returns the per-question evaluation results in question order.
// Questions never answered appear as unattempted entries.
func (e *Engine) resultList() []grading.EvaluationResult {
	out := make([]grading.EvaluationResult, 0, len(e.questions))
	for _, q := range e.questions {
		if res, ok := e.results[q.ID]; ok {
			out = append(out, res)
			continue
		}
		out = append(out, grading.EvaluationResult{
			QuestionID: q.ID,
			Outcome:    grading.OutcomeUnattempted,
			MaxMarks:   e.maxByID[q.ID],
			Kind:       q.Kind,
		})
	}
	return out
}

// Finalize snapshots the attempt into an immutable FinalResult and seals it
// with an integrity digest. It succeeds at most once; a failed hash is
// terminal for the attempt.
func (e *Engine) Finalize(meta exam.SubmissionMeta) (*FinalResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.state {
	case StateReady:
	case StateFinalized:
		return nil, fault.New(fault.State, "attempt already finalized")
	default:
		return nil, fault.New(fault.State, "finalize called in state %s", e.state)
	}

	e.state = StateFinalizing
	res := &FinalResult{
		ID:          uuid.NewString(),
		ExamID:      e.exam.ID,
		StudentID:   e.exam.StudentID,
		Stream:      e.exam.Stream,
		Aggregate:   e.aggregate,
		Answers:     e.resultList(),
		Meta:        meta,
		FinalizedAt: time.Now().UTC(),
	}

	if e.hasher != nil {
		digest, err := e.hasher.Hash(res)
		if err != nil {
			e.state = StateFailed
			e.log.Error("finalize hash failed", "exam_id", e.exam.ID, "error", err)
			return nil, fault.Wrap(fault.Integrity, err, "computing result digest")
		}
		res.Digest = digest
	}

	e.final = res
	e.state = StateFinalized
	e.log.Info("attempt finalized",
		"exam_id", e.exam.ID, "student_id", e.exam.StudentID,
		"result_id", res.ID, "score", res.Aggregate.TotalScore)
	return res, nil
}

// Final returns the finalized result, if any.
func (e *Engine) Final() *FinalResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.final
}
