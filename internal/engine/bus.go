package engine

import (
	"context"
	"time"

	"github.com/nats-io/nuid"
	"github.com/pkg/errors"

	"github.com/prepgrid/gradecore/internal/exam"
)

// The engine is isolated from its caller behind a message boundary: every
// operation is a request with a correlation id answered by exactly one
// matching response. Transport failures (a saturated mailbox) are retried
// with exponential backoff; logical faults in Response.Err are never
// retried.

type Op string

const (
	OpInitialize Op = "initialize"
	OpUpdate     Op = "update"
	OpBatch      Op = "batch"
	OpSnapshot   Op = "snapshot"
	OpFinalize   Op = "finalize"
)

type Request struct {
	ID string `json:"id"` // correlation id; assigned if empty
	Op Op     `json:"op"`

	Exam       exam.Exam           `json:"exam,omitempty"`
	Questions  []exam.Question     `json:"questions,omitempty"`
	QuestionID string              `json:"question_id,omitempty"`
	Value      []string            `json:"value,omitempty"`
	Batch      map[string][]string `json:"batch,omitempty"`
	Meta       exam.SubmissionMeta `json:"meta,omitempty"`
	At         time.Time           `json:"at,omitempty"`
}

type Response struct {
	ID        string       `json:"id"`
	State     State        `json:"state"`
	Aggregate Aggregate    `json:"aggregate"`
	Result    *FinalResult `json:"result,omitempty"`
	Err       error        `json:"-"`
}

var ErrBusClosed = errors.New("engine bus closed")

type envelope struct {
	req   Request
	reply chan Response
}

// Bus runs one engine behind a mailbox goroutine.
type Bus struct {
	engine   *Engine
	requests chan envelope
	done     chan struct{}

	enqueueTimeout time.Duration
	maxRetries     int
	backoffBase    time.Duration
}

func NewBus(e *Engine, mailbox int) *Bus {
	if mailbox <= 0 {
		mailbox = 16
	}
	b := &Bus{
		engine:         e,
		requests:       make(chan envelope, mailbox),
		done:           make(chan struct{}),
		enqueueTimeout: 250 * time.Millisecond,
		maxRetries:     3,
		backoffBase:    50 * time.Millisecond,
	}
	go b.loop()
	return b
}

func (b *Bus) loop() {
	for {
		select {
		case env := <-b.requests:
			// reply channels are buffered, so an abandoned caller
			// cannot block the loop or leak request state
			env.reply <- b.dispatch(env.req)
		case <-b.done:
			return
		}
	}
}

func (b *Bus) dispatch(req Request) Response {
	resp := Response{ID: req.ID}
	switch req.Op {
	case OpInitialize:
		resp.Err = b.engine.Initialize(req.Exam, req.Questions)
		resp.Aggregate, resp.State = b.engine.Snapshot()
	case OpUpdate:
		at := req.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		resp.Aggregate, resp.Err = b.engine.UpdateAnswer(req.QuestionID, req.Value, at)
		resp.State = b.engine.State()
	case OpBatch:
		at := req.At
		if at.IsZero() {
			at = time.Now().UTC()
		}
		resp.Aggregate, resp.Err = b.engine.UpdateBatch(req.Batch, at)
		resp.State = b.engine.State()
	case OpSnapshot:
		resp.Aggregate, resp.State = b.engine.Snapshot()
	case OpFinalize:
		resp.Result, resp.Err = b.engine.Finalize(req.Meta)
		resp.Aggregate, resp.State = b.engine.Snapshot()
	default:
		resp.Err = errors.Errorf("unknown op %q", req.Op)
	}
	return resp
}

// Call sends one request and waits for its matching response. The context
// bounds the whole exchange; abandoning the call simply lets it time out.
func (b *Bus) Call(ctx context.Context, req Request) (Response, error) {
	if req.ID == "" {
		req.ID = nuid.Next()
	}
	env := envelope{req: req, reply: make(chan Response, 1)}

	backoff := b.backoffBase
	for attempt := 0; ; attempt++ {
		select {
		case b.requests <- env:
			select {
			case resp := <-env.reply:
				return resp, nil
			case <-ctx.Done():
				return Response{ID: req.ID}, errors.Wrap(ctx.Err(), "awaiting engine response")
			case <-b.done:
				return Response{ID: req.ID}, ErrBusClosed
			}
		case <-ctx.Done():
			return Response{ID: req.ID}, errors.Wrap(ctx.Err(), "enqueueing engine request")
		case <-b.done:
			return Response{ID: req.ID}, ErrBusClosed
		case <-time.After(b.enqueueTimeout):
			if attempt >= b.maxRetries {
				return Response{ID: req.ID}, errors.Errorf("engine mailbox saturated after %d attempts", attempt+1)
			}
			select {
			case <-time.After(backoff):
				backoff *= 2
			case <-ctx.Done():
				return Response{ID: req.ID}, errors.Wrap(ctx.Err(), "backing off engine request")
			case <-b.done:
				return Response{ID: req.ID}, ErrBusClosed
			}
		}
	}
}

// Close stops the mailbox loop. In-flight callers receive ErrBusClosed.
func (b *Bus) Close() {
	select {
	case <-b.done:
	default:
		close(b.done)
	}
}
