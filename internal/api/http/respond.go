package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/prepgrid/gradecore/internal/fault"
	"github.com/prepgrid/gradecore/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "err", err)
	}
}

// writeError maps internal failure kinds onto HTTP statuses. The body
// always carries the kind so clients can branch without parsing text.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := "internal"
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errSessionNotFound):
		status = http.StatusNotFound
		kind = "not_found"
	case fault.IsKind(err, fault.Validation):
		status = http.StatusBadRequest
		kind = string(fault.Validation)
	case fault.IsKind(err, fault.State):
		status = http.StatusConflict
		kind = string(fault.State)
	case fault.IsKind(err, fault.Integrity):
		status = http.StatusConflict
		kind = string(fault.Integrity)
	case fault.IsKind(err, fault.Resolution):
		status = http.StatusUnprocessableEntity
		kind = string(fault.Resolution)
	case fault.IsKind(err, fault.Evaluation):
		status = http.StatusUnprocessableEntity
		kind = string(fault.Evaluation)
	}
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"kind":   kind,
			"detail": err.Error(),
		},
	})
}
