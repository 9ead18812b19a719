// Package store persists finalized results verbatim together with their
// integrity digest. Nothing downstream recomputes anything; verification
// re-hashes the stored payload against the stored digest.
package store

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/prepgrid/gradecore/internal/engine"
)

var ErrNotFound = errors.New("result not found")

// StoredResult is a persisted final result plus its storage attributes.
type StoredResult struct {
	Result  *engine.FinalResult `json:"result"`
	RefCode string              `json:"ref_code"`
	Digest  string              `json:"digest"`
}

type Store interface {
	// SaveResult persists a sealed result and assigns it a reference code.
	SaveResult(ctx context.Context, res *engine.FinalResult) (StoredResult, error)
	// GetResult loads a result by id.
	GetResult(ctx context.Context, id string) (StoredResult, error)
	// GetResultByRef loads a result by its short reference code.
	GetResultByRef(ctx context.Context, ref string) (StoredResult, error)
	// ListResults returns the stored results for one exam, newest first.
	ListResults(ctx context.Context, examID string) ([]StoredResult, error)
}

// memoryStore keeps results in process. Useful for tests and offline runs.
type memoryStore struct {
	mu      sync.RWMutex
	results map[string]StoredResult
	byRef   map[string]string
	order   []string
}

func NewInMemoryStore() Store {
	return &memoryStore{
		results: map[string]StoredResult{},
		byRef:   map[string]string{},
	}
}

func (m *memoryStore) SaveResult(_ context.Context, res *engine.FinalResult) (StoredResult, error) {
	if res == nil || res.ID == "" {
		return StoredResult{}, errors.New("result has no id")
	}
	if res.Digest == "" {
		return StoredResult{}, errors.New("result is not sealed")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.results[res.ID]; dup {
		return StoredResult{}, errors.Errorf("result %s already stored", res.ID)
	}
	sr := StoredResult{Result: res, RefCode: newRefCode(), Digest: res.Digest}
	m.results[res.ID] = sr
	m.byRef[sr.RefCode] = res.ID
	m.order = append(m.order, res.ID)
	return sr, nil
}

func (m *memoryStore) GetResult(_ context.Context, id string) (StoredResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sr, ok := m.results[id]
	if !ok {
		return StoredResult{}, ErrNotFound
	}
	return sr, nil
}

func (m *memoryStore) GetResultByRef(_ context.Context, ref string) (StoredResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byRef[ref]
	if !ok {
		return StoredResult{}, ErrNotFound
	}
	return m.results[id], nil
}

func (m *memoryStore) ListResults(_ context.Context, examID string) ([]StoredResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]StoredResult, 0)
	for i := len(m.order) - 1; i >= 0; i-- {
		sr := m.results[m.order[i]]
		if sr.Result.ExamID == examID {
			out = append(out, sr)
		}
	}
	return out, nil
}
