package api

import (
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// NewRouter registers the protected-document routes. Every route except
// /health sits behind the bearer middleware: losing the capability token
// alone is never sufficient to fetch bytes.
func NewRouter(h *Handler, auth Authenticator, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(recoverMiddleware(logger))

	r.HandleFunc("/health", h.GetHealthHandler).Methods("GET")

	v1 := r.PathPrefix("/api/v1").Subrouter()
	v1.Use(requireAuth(auth, logger))
	v1.HandleFunc("/research/{id}/view-token", h.IssueViewTokenHandler).Methods("POST")
	v1.HandleFunc("/documents/view", h.ViewDocumentHandler).Methods("GET")
	v1.HandleFunc("/documents/violations", h.ReportViolationHandler).Methods("POST")

	return r
}
