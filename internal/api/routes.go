package api

import (
	"net/http"
)

// RegisterRoutes регистрирует все маршруты API.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Middleware chain
	chain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
	)
	hookChain := Chain(
		Recovery(h.logger),
		Logging(h.logger),
		BodyLimit(maxHookBodyBytes),
	)

	// Webhooks
	mux.Handle("POST /api/v1/hooks/{name}", hookChain(http.HandlerFunc(h.TriggerWebhook)))

	// Workflows
	mux.Handle("GET /api/v1/workflows", chain(http.HandlerFunc(h.ListWorkflows)))
	mux.Handle("POST /api/v1/workflows", chain(http.HandlerFunc(h.CreateWorkflow)))
	mux.Handle("GET /api/v1/workflows/{id}", chain(http.HandlerFunc(h.GetWorkflow)))
	mux.Handle("PUT /api/v1/workflows/{id}", chain(http.HandlerFunc(h.UpdateWorkflow)))
	mux.Handle("DELETE /api/v1/workflows/{id}", chain(http.HandlerFunc(h.DeleteWorkflow)))

	// Executions
	mux.Handle("GET /api/v1/workflows/{id}/executions", chain(http.HandlerFunc(h.ListExecutions)))
	mux.Handle("GET /api/v1/executions/{id}", chain(http.HandlerFunc(h.GetExecution)))
}
