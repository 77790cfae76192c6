// Package server exposes the assignment engine over HTTP.
//
// Per-request flow is deliberately thin: decode, delegate to the service,
// encode. Ineligibility is a successful response with a null body, never an
// error status.
package server

import (
	"encoding/json"
	"net/http"

	log "github.com/sirupsen/logrus"

	"github.com/cohortproject/cohort/internal/cohort/domain"
	"github.com/cohortproject/cohort/internal/cohort/service"
	"github.com/cohortproject/cohort/internal/common/cohorterrors"
	"github.com/cohortproject/cohort/internal/common/health"
	"github.com/cohortproject/cohort/internal/common/requestid"
)

type AssignmentServer struct {
	service *service.AssignmentService
}

func NewAssignmentServer(assignmentService *service.AssignmentService) *AssignmentServer {
	return &AssignmentServer{service: assignmentService}
}

// Handler returns the full API surface, including the health endpoint,
// wrapped in request-id middleware.
func (s *AssignmentServer) Handler(checker health.Checker) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /experiments/{id}/assign", s.handleAssign)
	mux.HandleFunc("GET /experiments/{id}/assignment/{userId}", s.handleGetAssignment)
	mux.HandleFunc("POST /experiments/bulk-assign", s.handleBulkAssign)
	mux.HandleFunc("GET /experiments/user/{userId}/active", s.handleUserExperiments)
	health.SetupHttpMux(mux, checker)
	return requestid.Middleware(mux, false)
}

type assignRequest struct {
	UserId  string                 `json:"userId"`
	Context map[string]interface{} `json:"context"`
}

func (s *AssignmentServer) handleAssign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &cohorterrors.ErrInvalidArgument{Name: "body", Message: "malformed request body"})
		return
	}

	assignment, err := s.service.AssignUser(r.Context(), r.PathValue("id"), req.UserId, req.Context)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, assignment)
}

func (s *AssignmentServer) handleGetAssignment(w http.ResponseWriter, r *http.Request) {
	assignment, err := s.service.GetAssignment(r.Context(), r.PathValue("id"), r.PathValue("userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, assignment)
}

type bulkAssignRequest struct {
	UserId        string                 `json:"userId"`
	ExperimentIds []string               `json:"experimentIds"`
	Context       map[string]interface{} `json:"context"`
}

type bulkAssignResponse struct {
	Results map[string]domain.BulkOutcome `json:"results"`
}

func (s *AssignmentServer) handleBulkAssign(w http.ResponseWriter, r *http.Request) {
	var req bulkAssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, &cohorterrors.ErrInvalidArgument{Name: "body", Message: "malformed request body"})
		return
	}
	if req.UserId == "" {
		writeError(w, r, &cohorterrors.ErrInvalidArgument{Name: "userId", Message: "userId must be non-empty"})
		return
	}

	results, err := s.service.BulkAssign(r.Context(), req.UserId, req.ExperimentIds, req.Context)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, bulkAssignResponse{Results: results})
}

type userExperimentsResponse struct {
	Experiments []*domain.Assignment `json:"experiments"`
}

func (s *AssignmentServer) handleUserExperiments(w http.ResponseWriter, r *http.Request) {
	assignments, err := s.service.GetUserExperiments(r.Context(), r.PathValue("userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, userExperimentsResponse{Experiments: assignments})
}

func writeJSON(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		log.Errorf("failed to write response: %v", err)
	}
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := cohorterrors.HTTPStatusFromError(err)
	if status >= http.StatusInternalServerError {
		log.WithField("requestId", requestid.FromContextOrMissing(r.Context())).
			Errorf("request failed: %v", err)
	} else {
		log.WithField("requestId", requestid.FromContextOrMissing(r.Context())).
			Debugf("request rejected: %v", err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: err.Error()}); err != nil {
		log.Errorf("failed to write error response: %v", err)
	}
}
