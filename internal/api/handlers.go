package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/audit"
	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/guard"
	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/store"
	"github.com/LanceGerbec/ConServe-Repository-sub001/internal/token"
)

// DocumentResolver maps a research record id to its stored file id. The
// record metadata (title, authors, approval state) lives in the surrounding
// system; only this one lookup crosses the boundary.
type DocumentResolver interface {
	FileIDForRecord(ctx context.Context, recordID string) (string, error)
}

// ResolverFunc adapts a function to the DocumentResolver interface.
type ResolverFunc func(ctx context.Context, recordID string) (string, error)

func (f ResolverFunc) FileIDForRecord(ctx context.Context, recordID string) (string, error) {
	return f(ctx, recordID)
}

// Handler serves the protected-document endpoints.
type Handler struct {
	tokens   *token.Service
	files    store.FileStore
	resolver DocumentResolver
	sink     audit.Sink
	logger   *zap.Logger
}

// NewHandler wires the handler's collaborators.
func NewHandler(tokens *token.Service, files store.FileStore, resolver DocumentResolver, sink audit.Sink, logger *zap.Logger) *Handler {
	return &Handler{tokens: tokens, files: files, resolver: resolver, sink: sink, logger: logger}
}

// GetHealthHandler reports liveness.
func (h *Handler) GetHealthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// IssueViewTokenHandler mints a capability token for the authenticated
// principal and the record's stored file, and returns the fetch endpoint
// path alongside it.
func (h *Handler) IssueViewTokenHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		writeDenied(w)
		return
	}
	recordID := mux.Vars(r)["id"]
	if recordID == "" {
		writeError(w, http.StatusBadRequest, "missing record id")
		return
	}
	fileID, err := h.resolver.FileIDForRecord(r.Context(), recordID)
	if err != nil {
		writeError(w, http.StatusNotFound, "record not found")
		return
	}
	tok, err := h.tokens.Issue(fileID, p.ID)
	if err != nil {
		h.logger.Error("issue token", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"token":      tok,
		"fetch_path": "/api/v1/documents/view",
	})
}

// ViewDocumentHandler is the fetch gateway: the only way raw file bytes
// reach a client. Every request, success or failure, leaves one audit event
// attributable to (viewer, file, timestamp, outcome); the success event is
// also the "document was opened" record.
func (h *Handler) ViewDocumentHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		writeDenied(w)
		return
	}
	grant, err := h.tokens.Verify(r.URL.Query().Get("token"))
	if err != nil {
		h.auditDenied(r.Context(), p.ID, grant.FileID, err)
		writeDenied(w)
		return
	}
	// Defense in depth: the token is not transferable, so the bearer's
	// identity must match the viewer it was minted for.
	if grant.ViewerID != p.ID {
		h.auditDenied(r.Context(), p.ID, grant.FileID, errors.New("token viewer mismatch"))
		writeDenied(w)
		return
	}

	rc, info, err := h.files.Open(r.Context(), grant.FileID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			h.auditFetch(r.Context(), grant, audit.OutcomeNotFound, err.Error())
			writeError(w, http.StatusNotFound, "file not found")
			return
		}
		h.auditFetch(r.Context(), grant, audit.OutcomeError, err.Error())
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	defer rc.Close()

	// Exact content type, never cacheable, no static URL ever exposed.
	w.Header().Set("Content-Type", info.ContentType)
	w.Header().Set("Cache-Control", "no-store, no-cache, private")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.Warn("stream document", zap.String("file_id", grant.FileID), zap.Error(err))
	}

	h.auditFetch(r.Context(), grant, audit.OutcomeSuccess, "")
}

type violationReport struct {
	Token         string `json:"token"`
	ViolationType string `json:"violation_type"`
}

// ReportViolationHandler appends one violation to the audit trail. The
// recorded (viewer, file) pair comes from the verified token, never from
// the request body or path, so a viewer cannot report violations against a
// document they were never authorized to open.
func (h *Handler) ReportViolationHandler(w http.ResponseWriter, r *http.Request) {
	p, ok := principalFromContext(r.Context())
	if !ok {
		writeDenied(w)
		return
	}
	var report violationReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	grant, err := h.tokens.Verify(report.Token)
	if err != nil || grant.ViewerID != p.ID {
		writeDenied(w)
		return
	}
	if !guard.Known(guard.ViolationType(report.ViolationType)) {
		writeError(w, http.StatusBadRequest, "unknown violation type")
		return
	}

	ev := audit.NewEvent(audit.KindViolation, grant.ViewerID, grant.FileID, audit.OutcomeRecorded)
	ev.ViolationType = report.ViolationType
	if err := h.sink.Record(r.Context(), ev); err != nil {
		h.logger.Error("record violation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not record violation")
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) auditDenied(ctx context.Context, viewerID, fileID string, cause error) {
	ev := audit.NewEvent(audit.KindFetchDenied, viewerID, fileID, audit.OutcomeDenied)
	ev.Detail = cause.Error()
	if err := h.sink.Record(ctx, ev); err != nil {
		h.logger.Error("record denied fetch", zap.Error(err))
	}
}

func (h *Handler) auditFetch(ctx context.Context, grant token.Grant, outcome, detail string) {
	kind := audit.KindDocumentOpened
	if outcome != audit.OutcomeSuccess {
		kind = audit.KindFetchFailed
	}
	ev := audit.NewEvent(kind, grant.ViewerID, grant.FileID, outcome)
	ev.Detail = detail
	if err := h.sink.Record(ctx, ev); err != nil {
		h.logger.Error("record fetch", zap.Error(err))
	}
}
