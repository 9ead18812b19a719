package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes builds the API router. Middleware (logging, CORS, auth) is
// layered on by the server entrypoint.
func (s *Service) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sessionID}", func(r chi.Router) {
			r.Post("/answers", s.handleAnswer)
			r.Put("/answers", s.handleBatch)
			r.Get("/score", s.handleScore)
			r.Post("/rules/{questionID}", s.handleRuleOverride)
			r.Post("/submit", s.handleSubmit)
		})
	})

	r.Route("/results", func(r chi.Router) {
		r.Get("/{resultID}", s.handleGetResult)
		r.Get("/{resultID}/verify", s.handleVerifyResult)
		r.Get("/{resultID}/report", s.handleResultReport)
	})

	r.Get("/exams/{examID}/results", s.handleListResults)

	return r
}
