package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/shaiso/Hookflow/internal/domain"
	"github.com/shaiso/Hookflow/internal/telemetry"
)

// TriggerWebhook запускает workflow по имени хука.
// POST /api/v1/hooks/{name}
//
// Вызывающий всегда получает ответ: либо синтезированный
// webhookResponse-узлом (статус, заголовки и тело отдаются дословно),
// либо общий конверт результата выполнения.
func (h *Handler) TriggerWebhook(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	wf, err := h.workflows.GetByName(r.Context(), name)
	if HandleRepoError(w, h.logger, err, "webhook not found") {
		return
	}
	if !wf.IsActive {
		Error(w, http.StatusUnprocessableEntity, ErrCodeInactive, "workflow is not active")
		return
	}

	trigger := buildTriggerPayload(r, name)

	ctx := telemetry.WithLogger(r.Context(), h.logger)
	result, _ := h.engine.Run(ctx, wf, trigger)

	if result.WebhookResponse != nil {
		writeWebhookResponse(w, result.WebhookResponse)
		return
	}

	switch result.Status {
	case domain.ExecutionStatusCompleted, domain.ExecutionStatusPartialSuccess:
		JSON(w, http.StatusOK, map[string]any{
			"message":        result.Message,
			"status":         result.Status,
			"data":           result.Data,
			"executed_nodes": result.ExecutedNodes,
		})
	case domain.ExecutionStatusIncomplete:
		Error(w, http.StatusUnprocessableEntity, ErrCodeIncomplete, result.Details)
	case domain.ExecutionStatusTimeout:
		Error(w, http.StatusGatewayTimeout, ErrCodeTimeout, result.Details)
	default:
		Error(w, http.StatusInternalServerError, ErrCodeInternalError, result.Error)
	}
}

// buildTriggerPayload собирает payload триггера из HTTP-запроса:
// поля JSON-тела поднимаются в корень, тело, query-параметры и
// заголовки доступны под своими ключами, всё вместе — в webhookData.
func buildTriggerPayload(r *http.Request, hookName string) map[string]any {
	payload := make(map[string]any)

	var body map[string]any
	raw, err := io.ReadAll(r.Body)
	if err == nil && len(raw) > 0 {
		if jsonErr := json.Unmarshal(raw, &body); jsonErr != nil {
			// Тело не JSON-объект: сохраняем как есть
			body = map[string]any{"raw": string(raw)}
		}
	}
	if body == nil {
		body = make(map[string]any)
	}

	for k, v := range body {
		payload[k] = v
	}

	query := make(map[string]any)
	for k, vals := range r.URL.Query() {
		if len(vals) == 1 {
			query[k] = vals[0]
		} else {
			query[k] = vals
		}
	}

	headers := make(map[string]any)
	for k := range r.Header {
		headers[k] = r.Header.Get(k)
	}

	payload["body"] = body
	payload["query"] = query
	payload["headers"] = headers
	payload["webhookData"] = map[string]any{
		"hook_name":    hookName,
		"request_body": body,
		"query":        query,
		"headers":      headers,
	}

	return payload
}

// writeWebhookResponse отдаёт ResponseSpec вызывающему дословно.
//
// Тело пересериализуется, чтобы гарантировать валидный JSON: строка,
// не являющаяся JSON, оборачивается в {"result": <строка>}.
func writeWebhookResponse(w http.ResponseWriter, spec *domain.ResponseSpec) {
	for k, v := range spec.Headers {
		w.Header().Set(k, v)
	}
	if w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}

	status := spec.StatusCode
	if status == 0 {
		status = http.StatusOK
	}

	body := spec.Body
	if s, ok := body.(string); ok {
		if json.Valid([]byte(s)) {
			w.WriteHeader(status)
			w.Write([]byte(s))
			return
		}
		body = map[string]any{"result": s}
	}

	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
