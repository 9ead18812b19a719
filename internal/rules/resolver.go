package rules

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/prepgrid/gradecore/internal/exam"
)

// ExamContext carries the exam-wide attributes that participate in rule
// precedence.
type ExamContext struct {
	Stream string
}

type kindStreamKey struct {
	Kind   exam.Kind
	Stream string
}

type subjectStreamKey struct {
	Subject string
	Stream  string
}

type kindSubjectStreamKey struct {
	Kind    exam.Kind
	Subject string
	Stream  string
}

// RuleSet holds the configured patches for precedence levels 1-8. Maps are
// keyed by normalized (lowercased, trimmed) subject and stream tokens. A nil
// or empty RuleSet resolves everything to DefaultRule.
type RuleSet struct {
	Global              RulePatch
	BySubject           map[string]RulePatch
	ByKind              map[exam.Kind]RulePatch
	ByStream            map[string]RulePatch
	ByKindStream        map[kindStreamKey]RulePatch
	BySubjectStream     map[subjectStreamKey]RulePatch
	ByKindSubjectStream map[kindSubjectStreamKey]RulePatch
	ByQuestion          map[string]RulePatch
}

func NewRuleSet() *RuleSet {
	return &RuleSet{
		BySubject:           map[string]RulePatch{},
		ByKind:              map[exam.Kind]RulePatch{},
		ByStream:            map[string]RulePatch{},
		ByKindStream:        map[kindStreamKey]RulePatch{},
		BySubjectStream:     map[subjectStreamKey]RulePatch{},
		ByKindSubjectStream: map[kindSubjectStreamKey]RulePatch{},
		ByQuestion:          map[string]RulePatch{},
	}
}

func (rs *RuleSet) SetSubject(subject string, p RulePatch) {
	rs.BySubject[Normalize(subject)] = p
}
func (rs *RuleSet) SetKind(kind exam.Kind, p RulePatch) { rs.ByKind[kind] = p }
func (rs *RuleSet) SetStream(stream string, p RulePatch) {
	rs.ByStream[Normalize(stream)] = p
}
func (rs *RuleSet) SetKindStream(kind exam.Kind, stream string, p RulePatch) {
	rs.ByKindStream[kindStreamKey{kind, Normalize(stream)}] = p
}
func (rs *RuleSet) SetSubjectStream(subject, stream string, p RulePatch) {
	rs.BySubjectStream[subjectStreamKey{Normalize(subject), Normalize(stream)}] = p
}
func (rs *RuleSet) SetKindSubjectStream(kind exam.Kind, subject, stream string, p RulePatch) {
	rs.ByKindSubjectStream[kindSubjectStreamKey{kind, Normalize(subject), Normalize(stream)}] = p
}

// Normalize canonicalizes subject/stream tokens for map keys.
func Normalize(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// Resolver resolves one MarkingRule per question through the precedence
// hierarchy, with a TTL cache keyed by (question, stream, subject, kind).
type Resolver struct {
	mu    sync.RWMutex
	rules *RuleSet
	cache *Cache
	log   *slog.Logger
}

func NewResolver(rs *RuleSet, ttl time.Duration, log *slog.Logger) *Resolver {
	if rs == nil {
		rs = NewRuleSet()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Resolver{rules: rs, cache: NewCache(ttl), log: log}
}

func cacheKey(questionID string, ctx ExamContext, subject string, kind exam.Kind) string {
	return questionID + "|" + Normalize(ctx.Stream) + "|" + Normalize(subject) + "|" + string(kind)
}

// Resolve returns the rule for q under ctx. It never fails: missing levels
// simply do not contribute, and invalid resolved values are corrected to
// safe defaults with a warning.
func (r *Resolver) Resolve(q exam.Question, ctx ExamContext) MarkingRule {
	key := cacheKey(q.ID, ctx, q.Subject, q.Kind)
	if rule, ok := r.cache.Get(key); ok {
		return rule
	}
	return r.resolveUncached(q, ctx, key)
}

// ResolveAll pre-warms the cache for a whole question set, so answer events
// hit the cache while streaming in.
func (r *Resolver) ResolveAll(questions []exam.Question, ctx ExamContext) map[string]MarkingRule {
	out := make(map[string]MarkingRule, len(questions))
	for _, q := range questions {
		out[q.ID] = r.Resolve(q, ctx)
	}
	return out
}

// resolveUncached computes the rule and fills the cache while still holding
// the read lock. RegisterOverride deletes cache entries under the write
// lock, so an in-flight fill can never land after the invalidation that
// should have removed it.
func (r *Resolver) resolveUncached(q exam.Question, ctx ExamContext, key string) MarkingRule {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rs := r.rules
	subject := Normalize(q.Subject)
	stream := Normalize(ctx.Stream)

	rule := DefaultRule()
	rule.apply(rs.Global)
	if p, ok := rs.BySubject[subject]; ok {
		rule.apply(p)
	}
	if p, ok := rs.ByKind[q.Kind]; ok {
		rule.apply(p)
	}
	if p, ok := rs.ByStream[stream]; ok {
		rule.apply(p)
	}
	if p, ok := rs.ByKindStream[kindStreamKey{q.Kind, stream}]; ok {
		rule.apply(p)
	}
	if p, ok := rs.BySubjectStream[subjectStreamKey{subject, stream}]; ok {
		rule.apply(p)
	}
	if p, ok := rs.ByKindSubjectStream[kindSubjectStreamKey{q.Kind, subject, stream}]; ok {
		rule.apply(p)
	}
	qp, overridden := rs.ByQuestion[q.ID]
	if overridden {
		rule.apply(qp)
	}

	// Question-level positive-marks hint applies only when no
	// question-specific override exists.
	if q.PositiveMarks > 0 && !overridden {
		rule.PositiveMarks = q.PositiveMarks
	}

	rule.sanitize(r.log, q.ID)
	r.cache.Put(key, rule)
	return rule
}

// RegisterOverride installs (or replaces) the question-specific override and
// invalidates every cached resolution for that question. Both happen under
// the write lock, so once RegisterOverride returns, every subsequent Resolve
// of that question sees the override: a concurrent cache fill either
// finished before the delete or starts after and reads the new rule set.
func (r *Resolver) RegisterOverride(questionID string, p RulePatch) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules.ByQuestion[questionID] = p
	r.cache.DeletePrefix(questionID + "|")
}

// CacheLen is exposed for tests and diagnostics.
func (r *Resolver) CacheLen() int { return r.cache.Len() }

// StartJanitor runs periodic cache sweeps until stop is closed.
func (r *Resolver) StartJanitor(interval time.Duration, stop <-chan struct{}) {
	go r.cache.Janitor(interval, stop)
}
