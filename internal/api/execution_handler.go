package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
)

// GetExecution возвращает execution по ID.
// GET /api/v1/executions/{id}
func (h *Handler) GetExecution(w http.ResponseWriter, r *http.Request) {
	ex, err := h.executions.GetExecution(r.Context(), r.PathValue("id"))
	if HandleRepoError(w, h.logger, err, "execution not found") {
		return
	}

	Success(w, ExecutionFromDomain(*ex))
}

// ListExecutions возвращает executions одного workflow.
// GET /api/v1/workflows/{id}/executions?limit=N
func (h *Handler) ListExecutions(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	executions, err := h.executions.ListByWorkflow(r.Context(), id, limit)
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]ExecutionResponse, len(executions))
	for i, ex := range executions {
		result[i] = ExecutionFromDomain(ex)
	}

	List(w, result, len(result))
}
