package http

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/prepgrid/gradecore/internal/integrity"
	"github.com/prepgrid/gradecore/internal/stats"
	"github.com/prepgrid/gradecore/internal/store"
)

// loadResult accepts either the result id or its short reference code, so
// links printed on a score card resolve through the same endpoint.
func (s *Service) loadResult(r *http.Request) (store.StoredResult, error) {
	key := chi.URLParam(r, "resultID")
	sr, err := s.store.GetResult(r.Context(), key)
	if errors.Is(err, store.ErrNotFound) {
		return s.store.GetResultByRef(r.Context(), key)
	}
	return sr, err
}

func (s *Service) handleGetResult(w http.ResponseWriter, r *http.Request) {
	sr, err := s.loadResult(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sr)
}

func (s *Service) handleVerifyResult(w http.ResponseWriter, r *http.Request) {
	sr, err := s.loadResult(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.validator.Verify(sr.Result, sr.Digest); err != nil {
		writeError(w, err)
		return
	}
	if token := r.URL.Query().Get("receipt"); token != "" {
		if err := integrity.VerifyReceipt(token, sr.Result, s.receiptSecret); err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result_id": sr.Result.ID,
		"digest":    sr.Digest,
		"valid":     true,
	})
}

func (s *Service) handleResultReport(w http.ResponseWriter, r *http.Request) {
	sr, err := s.loadResult(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"result_id": sr.Result.ID,
		"exam_id":   sr.Result.ExamID,
		"report":    stats.Summarize(sr.Result.Aggregate),
	})
}

func (s *Service) handleListResults(w http.ResponseWriter, r *http.Request) {
	list, err := s.store.ListResults(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": list})
}
