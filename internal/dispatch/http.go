package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
)

const defaultHTTPTimeout = 30 * time.Second

// HTTPDispatcher выполняет httpTask: исходящий HTTP-вызов к внешнему
// сервису.
//
// Config:
//   - method (string): HTTP-метод (GET, POST, PUT, DELETE). Default: GET
//   - url (string): URL для запроса (обязательно)
//   - headers (map[string]any): HTTP-заголовки
//   - body (any): тело запроса (сериализуется в JSON)
//   - timeout_sec (number): таймаут запроса в секундах. Default: 30
//
// Результат:
//   - status_code (int): HTTP-код ответа
//   - headers (map[string]string): заголовки ответа
//   - body (any): тело ответа (JSON или строка)
//   - error (string): присутствует при статусе >= 400
type HTTPDispatcher struct {
	client *http.Client
}

// NewHTTPDispatcher создаёт HTTP-диспетчер.
// client может быть nil: используется клиент по умолчанию.
func NewHTTPDispatcher(client *http.Client) *HTTPDispatcher {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPDispatcher{client: client}
}

// Dispatch выполняет HTTP-запрос.
//
// Статус >= 400 — логическая ошибка: результат сохраняется,
// в него добавляется поле error, но сам вызов не считается аварией.
func (d *HTTPDispatcher) Dispatch(ctx context.Context, config map[string]any, inputs map[string]any) (map[string]any, error) {
	method := getString(config, "method", http.MethodGet)
	url := getString(config, "url", "")
	if url == "" {
		return nil, fmt.Errorf("%w: url is required", ErrHTTPRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, getTimeout(config, defaultHTTPTimeout))
	defer cancel()

	var bodyReader io.Reader
	if body, ok := config["body"]; ok && body != nil {
		bodyBytes, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal body: %v", ErrHTTPRequest, err)
		}
		bodyReader = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrHTTPRequest, err)
	}

	setHeaders(req, config)
	if bodyReader != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHTTPRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrHTTPRequest, err)
	}

	result := buildHTTPResult(resp, respBody)

	if resp.StatusCode >= 400 {
		result["error"] = fmt.Sprintf("HTTP %d: %s", resp.StatusCode, truncate(string(respBody), 200))
	}

	return result, nil
}

// buildHTTPResult формирует результат задачи из HTTP-ответа.
func buildHTTPResult(resp *http.Response, body []byte) map[string]any {
	headers := make(map[string]string, len(resp.Header))
	for key := range resp.Header {
		headers[key] = resp.Header.Get(key)
	}

	// Пробуем JSON, иначе строка
	var parsedBody any
	if err := json.Unmarshal(body, &parsedBody); err != nil {
		parsedBody = string(body)
	}

	return map[string]any{
		"status_code": resp.StatusCode,
		"headers":     headers,
		"body":        parsedBody,
	}
}
