package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/shaiso/Hookflow/internal/domain"
)

// Workflow DTOs

// CreateWorkflowRequest — запрос на создание workflow.
type CreateWorkflowRequest struct {
	Name     string       `json:"name"`
	Graph    domain.Graph `json:"graph"`
	IsActive bool         `json:"is_active"`
}

// UpdateWorkflowRequest — запрос на обновление workflow.
type UpdateWorkflowRequest struct {
	Graph    *domain.Graph `json:"graph,omitempty"`
	IsActive *bool         `json:"is_active,omitempty"`
}

// WorkflowResponse — ответ с workflow.
type WorkflowResponse struct {
	ID        uuid.UUID    `json:"id"`
	Name      string       `json:"name"`
	Graph     domain.Graph `json:"graph"`
	IsActive  bool         `json:"is_active"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// WorkflowFromDomain конвертирует domain.Workflow в WorkflowResponse.
func WorkflowFromDomain(wf domain.Workflow) WorkflowResponse {
	return WorkflowResponse{
		ID:        wf.ID,
		Name:      wf.Name,
		Graph:     wf.Graph,
		IsActive:  wf.IsActive,
		CreatedAt: wf.CreatedAt,
		UpdatedAt: wf.UpdatedAt,
	}
}

// Execution DTOs

// ExecutionResponse — ответ с execution.
type ExecutionResponse struct {
	ID            uuid.UUID              `json:"id"`
	WorkflowID    uuid.UUID              `json:"workflow_id"`
	Status        domain.ExecutionStatus `json:"status"`
	ExecutedNodes []string               `json:"executed_nodes,omitempty"`
	CurrentNodeID string                 `json:"current_node_id,omitempty"`
	ErrorDetails  string                 `json:"error_details,omitempty"`
	ResultData    map[string]any         `json:"result_data,omitempty"`
	StartedAt     time.Time              `json:"started_at"`
	FinishedAt    *time.Time             `json:"finished_at,omitempty"`
}

// ExecutionFromDomain конвертирует domain.Execution в ExecutionResponse.
func ExecutionFromDomain(ex domain.Execution) ExecutionResponse {
	return ExecutionResponse{
		ID:            ex.ID,
		WorkflowID:    ex.WorkflowID,
		Status:        ex.Status,
		ExecutedNodes: ex.ExecutedNodes,
		CurrentNodeID: ex.CurrentNodeID,
		ErrorDetails:  ex.ErrorDetails,
		ResultData:    ex.ResultData,
		StartedAt:     ex.StartedAt,
		FinishedAt:    ex.FinishedAt,
	}
}
