package server

import (
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/limiquantix/addrpool/internal/services/workload"
)

// WorkloadHandler handles HTTP requests for workloads and their NICs.
type WorkloadHandler struct {
	service *workload.Service
	logger  *zap.Logger
}

// NewWorkloadHandler creates a new workload handler.
func NewWorkloadHandler(service *workload.Service, logger *zap.Logger) *WorkloadHandler {
	return &WorkloadHandler{
		service: service,
		logger:  logger.Named("workload-handler"),
	}
}

// RegisterRoutes registers workload API routes.
func (h *WorkloadHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/workloads", h.handleWorkloads)
	mux.HandleFunc("/api/workloads/", h.handleWorkloadByID)
}

// handleWorkloads handles GET /api/workloads and POST /api/workloads
func (h *WorkloadHandler) handleWorkloads(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.listWorkloads(w, r)
	case http.MethodPost:
		h.createWorkload(w, r)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		methodNotAllowed(w)
	}
}

// handleWorkloadByID handles requests to /api/workloads/{id}
func (h *WorkloadHandler) handleWorkloadByID(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/workloads/"), "/")
	if id == "" {
		writeBadRequest(h.logger, w, "Workload ID required")
		return
	}
	if strings.Contains(id, "/") {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.getWorkload(w, r, id)
	case http.MethodPut:
		h.updateWorkload(w, r, id)
	case http.MethodDelete:
		h.deleteWorkload(w, r, id)
	case http.MethodOptions:
		w.WriteHeader(http.StatusOK)
	default:
		methodNotAllowed(w)
	}
}

// listWorkloads handles GET /api/workloads?search=&profile=
func (h *WorkloadHandler) listWorkloads(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	filter := workload.Filter{
		NameContains: query.Get("search"),
		ProfileLabel: query.Get("profile"),
	}

	workloads, err := h.service.ListWorkloads(r.Context(), filter)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}

	writeJSON(h.logger, w, http.StatusOK, map[string]interface{}{
		"workloads": workloads,
		"total":     len(workloads),
	})
}

// createWorkload handles POST /api/workloads
func (h *WorkloadHandler) createWorkload(w http.ResponseWriter, r *http.Request) {
	var spec workload.Spec
	if err := decodeBody(r, &spec); err != nil {
		writeBadRequest(h.logger, w, "Invalid request body")
		return
	}

	created, err := h.service.CreateWorkload(r.Context(), spec)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusCreated, created)
}

// getWorkload handles GET /api/workloads/{id}
func (h *WorkloadHandler) getWorkload(w http.ResponseWriter, r *http.Request, id string) {
	wl, err := h.service.GetWorkload(r.Context(), id)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, wl)
}

// updateWorkload handles PUT /api/workloads/{id}
func (h *WorkloadHandler) updateWorkload(w http.ResponseWriter, r *http.Request, id string) {
	var spec workload.Spec
	if err := decodeBody(r, &spec); err != nil {
		writeBadRequest(h.logger, w, "Invalid request body")
		return
	}

	updated, err := h.service.UpdateWorkload(r.Context(), id, spec)
	if err != nil {
		writeError(h.logger, w, err)
		return
	}
	writeJSON(h.logger, w, http.StatusOK, updated)
}

// deleteWorkload handles DELETE /api/workloads/{id}
func (h *WorkloadHandler) deleteWorkload(w http.ResponseWriter, r *http.Request, id string) {
	if err := h.service.DeleteWorkload(r.Context(), id); err != nil {
		writeError(h.logger, w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
