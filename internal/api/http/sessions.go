package http

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/prepgrid/gradecore/internal/engine"
	"github.com/prepgrid/gradecore/internal/exam"
	"github.com/prepgrid/gradecore/internal/fault"
	"github.com/prepgrid/gradecore/internal/grading"
	"github.com/prepgrid/gradecore/internal/rules"
	"github.com/prepgrid/gradecore/internal/stats"
)

type questionInput struct {
	ID            string           `json:"id"`
	Subject       string           `json:"subject"`
	Kind          string           `json:"kind"`
	AnswerKey     []string         `json:"answer_key"`
	PositiveMarks float64          `json:"positive_marks,omitempty"`
	Rule          *rules.RulePatch `json:"rule,omitempty"`
}

type ruleComboInput struct {
	Kind    string          `json:"kind,omitempty"`
	Subject string          `json:"subject,omitempty"`
	Stream  string          `json:"stream,omitempty"`
	Rule    rules.RulePatch `json:"rule"`
}

type ruleConfigInput struct {
	Global   *rules.RulePatch           `json:"global,omitempty"`
	Subjects map[string]rules.RulePatch `json:"subjects,omitempty"`
	Kinds    map[string]rules.RulePatch `json:"kinds,omitempty"`
	Streams  map[string]rules.RulePatch `json:"streams,omitempty"`
	Combos   []ruleComboInput           `json:"combos,omitempty"`
}

type createSessionRequest struct {
	Exam      exam.Exam        `json:"exam"`
	Questions []questionInput  `json:"questions"`
	Rules     *ruleConfigInput `json:"rules,omitempty"`
}

func buildRuleSet(in *ruleConfigInput) (*rules.RuleSet, error) {
	rs := rules.NewRuleSet()
	if in == nil {
		return rs, nil
	}
	if in.Global != nil {
		rs.Global = *in.Global
	}
	for subject, p := range in.Subjects {
		rs.SetSubject(subject, p)
	}
	for raw, p := range in.Kinds {
		kind, err := exam.ParseKind(raw)
		if err != nil {
			return nil, err
		}
		rs.SetKind(kind, p)
	}
	for stream, p := range in.Streams {
		rs.SetStream(stream, p)
	}
	for _, c := range in.Combos {
		var kind exam.Kind
		if c.Kind != "" {
			k, err := exam.ParseKind(c.Kind)
			if err != nil {
				return nil, err
			}
			kind = k
		}
		switch {
		case c.Kind != "" && c.Subject == "" && c.Stream != "":
			rs.SetKindStream(kind, c.Stream, c.Rule)
		case c.Kind == "" && c.Subject != "" && c.Stream != "":
			rs.SetSubjectStream(c.Subject, c.Stream, c.Rule)
		case c.Kind != "" && c.Subject != "" && c.Stream != "":
			rs.SetKindSubjectStream(kind, c.Subject, c.Stream, c.Rule)
		default:
			return nil, fault.New(fault.Validation,
				"rule combo needs a stream plus a kind and/or subject")
		}
	}
	return rs, nil
}

func (s *Service) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, fault.Wrap(fault.Validation, err, "malformed session request"))
		return
	}

	questions := make([]exam.Question, 0, len(req.Questions))
	rs, err := buildRuleSet(req.Rules)
	if err != nil {
		writeError(w, err)
		return
	}
	for _, qi := range req.Questions {
		kind, err := exam.ParseKind(qi.Kind)
		if err != nil {
			writeError(w, err)
			return
		}
		questions = append(questions, exam.Question{
			ID:            qi.ID,
			Subject:       qi.Subject,
			Kind:          kind,
			AnswerKey:     qi.AnswerKey,
			PositiveMarks: qi.PositiveMarks,
		})
		if qi.Rule != nil && !qi.Rule.IsZero() {
			rs.ByQuestion[qi.ID] = *qi.Rule
		}
	}

	resolver := rules.NewResolver(rs, s.cacheTTL, s.log)
	eng := engine.New(resolver, grading.NewEvaluator(), s.validator, s.log)
	bus := engine.NewBus(eng, s.mailboxSize)

	resp, err := bus.Call(r.Context(), engine.Request{
		Op:        engine.OpInitialize,
		Exam:      req.Exam,
		Questions: questions,
	})
	if err != nil {
		bus.Close()
		writeError(w, err)
		return
	}
	if resp.Err != nil {
		bus.Close()
		writeError(w, resp.Err)
		return
	}

	sess := &session{
		id:       newSessionID(),
		examID:   req.Exam.ID,
		bus:      bus,
		resolver: resolver,
		stop:     make(chan struct{}),
	}
	resolver.StartJanitor(time.Minute, sess.stop)
	s.addSession(sess)
	s.log.Info("session created",
		"session_id", sess.id, "exam_id", sess.examID, "questions", len(questions))

	writeJSON(w, http.StatusCreated, map[string]any{
		"session_id": sess.id,
		"state":      resp.State,
		"aggregate":  resp.Aggregate,
	})
}

// answerValue normalizes the submitted value: null or absent means
// unattempted, a scalar becomes a one-entry slice, an array keeps its
// elements in order. Numbers pass through as their literal text.
func answerValue(v gjson.Result) []string {
	switch {
	case !v.Exists() || v.Type == gjson.Null:
		return nil
	case v.IsArray():
		items := v.Array()
		out := make([]string, 0, len(items))
		for _, item := range items {
			out = append(out, item.String())
		}
		return out
	default:
		return []string{v.String()}
	}
}

func (s *Service) handleAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, errSessionNotFound)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, fault.Wrap(fault.Validation, err, "reading answer event"))
		return
	}
	qid := gjson.GetBytes(body, "question_id").String()
	if qid == "" {
		writeError(w, fault.New(fault.Validation, "answer event has no question_id"))
		return
	}
	at, _ := time.Parse(time.RFC3339, gjson.GetBytes(body, "at").String())

	resp, err := sess.bus.Call(r.Context(), engine.Request{
		Op:         engine.OpUpdate,
		QuestionID: qid,
		Value:      answerValue(gjson.GetBytes(body, "value")),
		At:         at,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if resp.Err != nil {
		writeError(w, resp.Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     resp.State,
		"aggregate": resp.Aggregate,
	})
}

func (s *Service) handleBatch(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, errSessionNotFound)
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, fault.Wrap(fault.Validation, err, "reading batch"))
		return
	}
	answers := gjson.GetBytes(body, "answers")
	if !answers.IsObject() {
		writeError(w, fault.New(fault.Validation, "batch body needs an answers object"))
		return
	}
	batch := map[string][]string{}
	answers.ForEach(func(key, value gjson.Result) bool {
		batch[key.String()] = answerValue(value)
		return true
	})
	at, _ := time.Parse(time.RFC3339, gjson.GetBytes(body, "at").String())

	resp, err := sess.bus.Call(r.Context(), engine.Request{
		Op:    engine.OpBatch,
		Batch: batch,
		At:    at,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	if resp.Err != nil {
		writeError(w, resp.Err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     resp.State,
		"aggregate": resp.Aggregate,
	})
}

func (s *Service) handleScore(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, errSessionNotFound)
		return
	}
	resp, err := sess.bus.Call(r.Context(), engine.Request{Op: engine.OpSnapshot})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"state":     resp.State,
		"aggregate": resp.Aggregate,
	})
}

func (s *Service) handleRuleOverride(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, errSessionNotFound)
		return
	}
	qid := chi.URLParam(r, "questionID")
	var patch rules.RulePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, fault.Wrap(fault.Validation, err, "malformed rule override"))
		return
	}
	if patch.IsZero() {
		writeError(w, fault.New(fault.Validation, "rule override defines no fields"))
		return
	}
	sess.resolver.RegisterOverride(qid, patch)
	s.log.Info("rule override registered", "session_id", sess.id, "question_id", qid)
	writeJSON(w, http.StatusOK, map[string]any{"question_id": qid, "applied": true})
}

func (s *Service) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.session(chi.URLParam(r, "sessionID"))
	if !ok {
		writeError(w, errSessionNotFound)
		return
	}
	var meta exam.SubmissionMeta
	if err := json.NewDecoder(r.Body).Decode(&meta); err != nil && err != io.EOF {
		writeError(w, fault.Wrap(fault.Validation, err, "malformed submission meta"))
		return
	}

	resp, err := sess.bus.Call(r.Context(), engine.Request{Op: engine.OpFinalize, Meta: meta})
	if err != nil {
		writeError(w, err)
		return
	}
	if resp.Err != nil {
		writeError(w, resp.Err)
		return
	}

	stored, err := s.store.SaveResult(r.Context(), resp.Result)
	if err != nil {
		s.log.Error("persisting result", "session_id", sess.id, "err", err)
		writeError(w, err)
		return
	}

	// The session is spent once the result is stored: the engine is
	// terminal and the store serves the result from here on. Receipting
	// must not strand the session, so it happens after removal and a
	// failure degrades to a response without a receipt.
	s.removeSession(sess.id)
	sess.shutdown()
	s.log.Info("session finalized",
		"session_id", sess.id, "result_id", resp.Result.ID,
		"ref_code", stored.RefCode, "score", resp.Result.Aggregate.TotalScore)

	body := map[string]any{
		"result":   resp.Result,
		"ref_code": stored.RefCode,
		"digest":   stored.Digest,
		"report":   stats.Summarize(resp.Result.Aggregate),
	}
	if receipt, err := s.issueReceipt(resp.Result, s.receiptSecret); err != nil {
		s.log.Error("issuing receipt", "result_id", resp.Result.ID, "err", err)
	} else {
		body["receipt"] = receipt
	}
	writeJSON(w, http.StatusOK, body)
}

var errSessionNotFound = fault.New(fault.State, "no such session")
