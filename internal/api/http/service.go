// Package http exposes the grading core over a JSON API. One session maps
// to one engine behind its bus; results outlive sessions in the store.
package http

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/prepgrid/gradecore/internal/engine"
	"github.com/prepgrid/gradecore/internal/integrity"
	"github.com/prepgrid/gradecore/internal/rules"
	"github.com/prepgrid/gradecore/internal/store"
)

type session struct {
	id       string
	examID   string
	bus      *engine.Bus
	resolver *rules.Resolver

	// stop ends the session's rule-cache janitor.
	stop chan struct{}
}

func (s *session) shutdown() {
	close(s.stop)
	s.bus.Close()
}

// Service holds the live sessions and the shared collaborators the handlers
// need. Each session owns its own resolver so rule configuration is scoped
// to one exam.
type Service struct {
	log           *slog.Logger
	store         store.Store
	validator     *integrity.Validator
	receiptSecret []byte
	cacheTTL      time.Duration
	mailboxSize   int

	// issueReceipt is swappable so receipt failures can be exercised.
	issueReceipt func(*engine.FinalResult, []byte) (string, error)

	mu       sync.RWMutex
	sessions map[string]*session
}

func NewService(st store.Store, receiptSecret []byte, cacheTTL time.Duration, mailboxSize int, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		log:           log,
		store:         st,
		validator:     integrity.NewValidator(),
		receiptSecret: receiptSecret,
		cacheTTL:      cacheTTL,
		mailboxSize:   mailboxSize,
		issueReceipt:  integrity.Receipt,
		sessions:      map[string]*session{},
	}
}

func (s *Service) addSession(sess *session) {
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
}

func (s *Service) session(id string) (*session, bool) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	return sess, ok
}

func (s *Service) removeSession(id string) {
	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()
}

func newSessionID() string { return uuid.NewString() }

// Close shuts down every live session bus. Used on server shutdown.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, sess := range s.sessions {
		sess.shutdown()
		delete(s.sessions, id)
	}
}
