package engine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"dario.cat/mergo"
	json "github.com/goccy/go-json"

	"github.com/shaiso/Hookflow/internal/domain"
	"github.com/shaiso/Hookflow/internal/telemetry"
)

// Ключи payload триггера, поднимаемые в результат trigger-узла:
// prompt, image_size, keyword, seo с необязательным числовым суффиксом.
var triggerFieldRe = regexp.MustCompile(`^(prompt|image_size|keyword|seo)\d*$`)

// NodeExecutor выполняет один узел: разрешает плейсхолдеры в его
// конфигурации и диспетчеризует по типу узла. Задачи httpTask/gptTask
// делегируются внешнему диспетчеру; остальные типы выполняются локально
// и не имеют побочных эффектов.
type NodeExecutor struct {
	dispatcher Dispatcher
}

// NewNodeExecutor создаёт исполнитель узлов.
// dispatcher может быть nil, если граф не содержит task-узлов.
func NewNodeExecutor(dispatcher Dispatcher) *NodeExecutor {
	return &NodeExecutor{dispatcher: dispatcher}
}

// ExecuteNode выполняет узел против текущего контекста.
//
// Ошибки задач возвращаются наружу, чтобы TaskRunner мог повторить
// попытку; локальные узлы ошибаются только на невалидной конфигурации.
func (e *NodeExecutor) ExecuteNode(ctx context.Context, node *domain.Node, ec *ExecutionContext) (map[string]any, error) {
	log := telemetry.WithNodeID(telemetry.FromContext(ctx), node.ID)
	log.Debug("executing node", "node_type", string(node.Type))

	switch node.Type {
	case domain.NodeTypeTrigger:
		return e.executeTrigger(ec), nil

	case domain.NodeTypeHTTPTask, domain.NodeTypeGPTTask:
		return e.executeTask(ctx, node, ec)

	case domain.NodeTypeConditional:
		return e.executeConditional(node, ec), nil

	case domain.NodeTypeDataTransform:
		return e.executeDataTransform(node, ec), nil

	case domain.NodeTypeWebhookResponse:
		return e.executeResponse(node, ec)

	case domain.NodeTypeRouter:
		// Чистый passthrough: ветвление по исходящим рёбрам делает движок
		return ResolveConfig(node.Config, ec), nil

	default:
		return nil, NewNodeError(node, fmt.Sprintf("unsupported node type %q", node.Type), ErrUnknownNodeType)
	}
}

// executeTrigger сплющивает payload триггера в результат узла.
//
// Вложенные data и originalTriggerData сливаются в корень результата
// глубоко: общие вложенные объекты объединяются рекурсивно, при
// конфликте скаляров побеждает originalTriggerData. Нумерованные поля
// (prompt1, keyword2, ...) извлекаются из корня контекста и из
// вложенных body / originalRequest / webhookData.request_body.
func (e *NodeExecutor) executeTrigger(ec *ExecutionContext) map[string]any {
	result := make(map[string]any)

	merge := func(v any) {
		if m, ok := v.(map[string]any); ok {
			if err := mergo.Merge(&result, m, mergo.WithOverride); err != nil {
				for k, val := range m {
					result[k] = val
				}
			}
		}
	}
	if v, ok := ec.Get("data"); ok {
		merge(v)
	}
	if v, ok := ec.Get("originalTriggerData"); ok {
		merge(v)
	}

	containers := []any{ec.Values()}
	if v, ok := ec.Get("body"); ok {
		result["body"] = v
		containers = append(containers, v)
	}
	if v, ok := ec.Get("originalRequest"); ok {
		result["originalRequest"] = v
		containers = append(containers, v)
	}
	if wd, ok := ec.Get("webhookData"); ok {
		if wm, ok := wd.(map[string]any); ok {
			if rb, ok := wm["request_body"]; ok {
				containers = append(containers, rb)
			}
		}
	}

	for _, container := range containers {
		m, ok := container.(map[string]any)
		if !ok {
			continue
		}
		for k, v := range m {
			if triggerFieldRe.MatchString(k) {
				result[k] = v
			}
		}
	}

	return result
}

// executeTask делегирует задачу внешнему диспетчеру. Успешный ответ
// оборачивается так, чтобы ссылка "{{HTTP 1.response}}" вела к телу
// результата. Ошибка диспетчера возвращается наружу: политику повторов
// применяет TaskRunner.
func (e *NodeExecutor) executeTask(ctx context.Context, node *domain.Node, ec *ExecutionContext) (map[string]any, error) {
	if e.dispatcher == nil {
		return nil, NewNodeError(node, "no task dispatcher configured", ErrNoDispatcher)
	}

	config := ResolveConfig(node.Config, ec)
	out, err := e.dispatcher.Dispatch(ctx, node.Type, config, ec.Values())
	if err != nil {
		return nil, NewNodeError(node, "task dispatch failed", err)
	}

	result := map[string]any{
		"response": out,
		"success":  true,
	}
	if status, ok := out["status"]; ok {
		result["status"] = status
	}
	return result, nil
}

// executeConditional выбирает одно из двух сконфигурированных значений.
//
// Условие — тривиальный тест членства: строка условия содержит имя
// какого-либо текущего ключа контекста. Языка выражений нет.
func (e *NodeExecutor) executeConditional(node *domain.Node, ec *ExecutionContext) map[string]any {
	config := ResolveConfig(node.Config, ec)

	condition, _ := config["condition"].(string)
	matched := false
	if condition != "" {
		for _, key := range ec.Keys() {
			if strings.Contains(condition, key) {
				matched = true
				break
			}
		}
	}

	var chosen any
	if matched {
		chosen = config["trueValue"]
	} else {
		chosen = config["falseValue"]
	}

	return map[string]any{
		"result":  chosen,
		"matched": matched,
	}
}

// executeDataTransform применяет упорядоченный список операций
// add/remove/modify к поверхностной копии контекста и возвращает её.
// modify не создаёт отсутствующее поле.
func (e *NodeExecutor) executeDataTransform(node *domain.Node, ec *ExecutionContext) map[string]any {
	config := ResolveConfig(node.Config, ec)

	result := make(map[string]any, len(ec.Values()))
	for k, v := range ec.Values() {
		result[k] = v
	}

	operations, _ := config["operations"].([]any)
	for _, raw := range operations {
		op, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		field, _ := op["field"].(string)
		if field == "" {
			continue
		}

		switch op["operation"] {
		case "add":
			result[field] = op["value"]
		case "remove":
			delete(result, field)
		case "modify":
			if _, exists := result[field]; exists {
				result[field] = op["value"]
			}
		}
	}

	return result
}

// executeResponse строит ResponseSpec из конфигурации response-узла.
//
// Тело-строка сначала парсится как JSON и разрешается структурно,
// чтобы плейсхолдеры внутри становились типизированными значениями;
// непарсящаяся строка разрешается как текст.
func (e *NodeExecutor) executeResponse(node *domain.Node, ec *ExecutionContext) (map[string]any, error) {
	spec, err := ParseResponseConfig(node)
	if err != nil {
		return nil, err
	}

	var resolvedBody any
	switch body := spec.Body.(type) {
	case string:
		var parsed any
		if jsonErr := json.Unmarshal([]byte(body), &parsed); jsonErr == nil {
			resolvedBody = ResolveValue(parsed, ec)
		} else {
			resolvedBody = ResolveValue(body, ec)
		}
	default:
		resolvedBody = ResolveValue(body, ec)
	}

	headers := make(map[string]any, len(spec.Headers))
	for k, v := range spec.Headers {
		if s, ok := ResolveValue(v, ec).(string); ok {
			headers[k] = s
		} else {
			headers[k] = v
		}
	}

	return map[string]any{
		"statusCode":   spec.StatusCode,
		"body":         resolvedBody,
		"headers":      headers,
		"responseBody": resolvedBody,
	}, nil
}

// ParseResponseConfig извлекает {statusCode, responseBody, headers}
// из конфигурации response-узла. Конфигурация может лежать в полях
// узла напрямую либо строкой JSON под ключом "config".
//
// Пустое или отсутствующее тело — ошибка конфигурации: она выявляется
// до запуска каких-либо задач.
func ParseResponseConfig(node *domain.Node) (*domain.ResponseSpec, error) {
	raw := node.Config

	if s, ok := raw["config"].(string); ok {
		var parsed map[string]any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return nil, NewNodeError(node, "response config is not valid JSON", err)
		}
		raw = parsed
	}

	body, ok := raw["responseBody"]
	if !ok {
		body = raw["body"]
	}
	if isEmptyBody(body) {
		return nil, NewNodeError(node, "response body is empty", ErrEmptyResponseBody)
	}

	statusCode := 200
	switch sc := raw["statusCode"].(type) {
	case float64:
		statusCode = int(sc)
	case int:
		statusCode = sc
	}

	headers := make(map[string]string)
	if hm, ok := raw["headers"].(map[string]any); ok {
		for k, v := range hm {
			if s, ok := v.(string); ok {
				headers[k] = s
			}
		}
	}

	return &domain.ResponseSpec{
		StatusCode: statusCode,
		Body:       body,
		Headers:    headers,
	}, nil
}

func isEmptyBody(body any) bool {
	switch b := body.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(b) == ""
	case map[string]any:
		return len(b) == 0
	default:
		return false
	}
}
