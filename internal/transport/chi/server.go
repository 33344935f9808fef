// Package chi exposes the search orchestrator over HTTP.
package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/knowledge-network/knsearch/internal/domain"
	domsearch "github.com/knowledge-network/knsearch/internal/domain/search"
	"github.com/knowledge-network/knsearch/internal/monitor"
	healthuc "github.com/knowledge-network/knsearch/internal/usecase/health"
	searchuc "github.com/knowledge-network/knsearch/internal/usecase/search"
)

// callerHeader carries the authenticated end-user identity, set by the
// platform gateway. Permission filters depend on it.
const callerHeader = "X-Caller-ID"

// Error codes returned to clients.
const (
	codeBadRequest  = "bad_request"
	codeForbidden   = "forbidden"
	codeUnavailable = "service_unavailable"
	codeUpstream    = "engine_unavailable"
	codeNotFound    = "not_found"
)

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error) bool

// Server wires the use case services into chi handlers.
type Server struct {
	search        *searchuc.Service
	health        *healthuc.Service
	mon           *monitor.Monitor
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	search *searchuc.Service,
	health *healthuc.Service,
	mon *monitor.Monitor,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search: search,
		health: health,
		mon:    mon,
		logger: logger,
	}
	s.errorHandlers = []errorHandler{
		circuitOpenHandler,
		sentinelHandler(domain.ErrWorkspaceAccessDenied, http.StatusForbidden, codeForbidden),
		sentinelHandler(domain.ErrInvalidRequest, http.StatusBadRequest, codeBadRequest),
		sentinelHandler(domain.ErrEngineUnavailable, http.StatusBadGateway, codeUpstream),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, codeNotFound),
	}
	return s
}

// Routes mounts all handlers on the router.
func (s *Server) Routes(r chi.Router) {
	r.Post("/workspaces/{workspaceID}/search", s.handleSearch)
	r.Post("/workspaces/{workspaceID}/entities/{entityID}/index", s.handleIndex)
	r.Post("/workspaces/{workspaceID}/index/_bulk", s.handleBulkIndex)
	r.Delete("/workspaces/{workspaceID}/entities/{entityID}", s.handleDelete)
	r.Post("/workspaces/{workspaceID}/reindex", s.handleReindex)
	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)
	r.Handle("/metrics", promhttp.Handler())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req domsearch.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	req.WorkspaceID = chi.URLParam(r, "workspaceID")

	callerID := r.Header.Get(callerHeader)
	if callerID == "" {
		writeError(w, http.StatusBadRequest, codeBadRequest, "missing "+callerHeader+" header")
		return
	}

	resp, err := s.search.Search(r.Context(), &req, callerID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	entityID := chi.URLParam(r, "entityID")

	if err := s.search.Index(r.Context(), workspaceID, entityID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleBulkIndex(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	var req struct {
		EntityIDs []string `json:"entityIds"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.EntityIDs) == 0 {
		writeError(w, http.StatusBadRequest, codeBadRequest, "entityIds is required")
		return
	}

	if err := s.search.BulkIndex(r.Context(), workspaceID, req.EntityIDs); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")
	entityID := chi.URLParam(r, "entityID")

	if err := s.search.Delete(r.Context(), workspaceID, entityID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	workspaceID := chi.URLParam(r, "workspaceID")

	if err := s.search.ReindexWorkspace(r.Context(), workspaceID); err != nil {
		s.handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())
	status := http.StatusOK
	if report.Status != healthuc.Healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.mon.Snapshot())
}

// handleDomainError walks the handler chain; unmatched errors become 500s.
func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	for _, h := range s.errorHandlers {
		if h(w, err) {
			return
		}
	}
	s.logger.Error("unhandled domain error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
}

// circuitOpenHandler maps an open breaker to 503 with a Retry-After hint.
func circuitOpenHandler(w http.ResponseWriter, err error) bool {
	var open *domain.CircuitOpenError
	if !errors.As(err, &open) {
		return false
	}
	w.Header().Set("Retry-After", formatSeconds(open.RetryAfter))
	writeError(w, http.StatusServiceUnavailable, codeUnavailable, "search temporarily degraded, "+open.Error())
	return true
}

func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, err.Error())
		return true
	}
}

func formatSeconds(d time.Duration) string {
	secs := int(d.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}
