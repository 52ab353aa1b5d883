package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Hookflow/internal/domain"
)

// validateGraph проверяет инварианты графа на записи: непустой граф
// содержит ровно один trigger-узел. Пустая строка — граф валиден.
func validateGraph(g *domain.Graph) string {
	if len(g.Nodes) == 0 {
		return ""
	}

	triggers := 0
	for i := range g.Nodes {
		if g.Nodes[i].Type == domain.NodeTypeTrigger {
			triggers++
		}
	}
	switch {
	case triggers == 0:
		return "graph must contain a trigger node"
	case triggers > 1:
		return "graph must contain exactly one trigger node"
	}
	return ""
}

// ListWorkflows возвращает список всех workflow.
// GET /api/v1/workflows
func (h *Handler) ListWorkflows(w http.ResponseWriter, r *http.Request) {
	workflows, err := h.workflows.List(r.Context())
	if HandleRepoError(w, h.logger, err, "") {
		return
	}

	result := make([]WorkflowResponse, len(workflows))
	for i, wf := range workflows {
		result[i] = WorkflowFromDomain(wf)
	}

	List(w, result, len(result))
}

// CreateWorkflow создаёт новый workflow.
// POST /api/v1/workflows
func (h *Handler) CreateWorkflow(w http.ResponseWriter, r *http.Request) {
	var req CreateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	if req.Name == "" {
		BadRequest(w, "name is required")
		return
	}
	if msg := validateGraph(&req.Graph); msg != "" {
		BadRequest(w, msg)
		return
	}

	now := time.Now()
	wf := &domain.Workflow{
		ID:        uuid.New(),
		Name:      req.Name,
		Graph:     req.Graph,
		IsActive:  req.IsActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.workflows.Create(r.Context(), wf); err != nil {
		HandleRepoError(w, h.logger, err, "")
		return
	}

	Created(w, WorkflowFromDomain(*wf))
}

// GetWorkflow возвращает workflow по ID.
// GET /api/v1/workflows/{id}
func (h *Handler) GetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	Success(w, WorkflowFromDomain(*wf))
}

// UpdateWorkflow обновляет граф или флаг активности workflow.
// PUT /api/v1/workflows/{id}
func (h *Handler) UpdateWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	var req UpdateWorkflowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, "invalid request body")
		return
	}

	wf, err := h.workflows.GetByID(r.Context(), id)
	if HandleRepoError(w, h.logger, err, "workflow not found") {
		return
	}

	if req.Graph != nil {
		if msg := validateGraph(req.Graph); msg != "" {
			BadRequest(w, msg)
			return
		}
		wf.Graph = *req.Graph
	}
	if req.IsActive != nil {
		wf.IsActive = *req.IsActive
	}
	wf.UpdatedAt = time.Now()

	if err := h.workflows.Update(r.Context(), wf); err != nil {
		InternalError(w, h.logger, err)
		return
	}

	Success(w, WorkflowFromDomain(*wf))
}

// DeleteWorkflow удаляет workflow.
// DELETE /api/v1/workflows/{id}
func (h *Handler) DeleteWorkflow(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, "invalid workflow id")
		return
	}

	if err := h.workflows.Delete(r.Context(), id); err != nil {
		HandleRepoError(w, h.logger, err, "workflow not found")
		return
	}

	NoContent(w)
}
