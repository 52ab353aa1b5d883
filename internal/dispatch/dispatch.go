// Package dispatch реализует порт задач движка: выполнение httpTask
// и gptTask вызовов к внешним сервисам.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shaiso/Hookflow/internal/domain"
)

// Ошибки диспетчеризации задач.
var (
	// ErrUnknownTaskType — для типа задачи нет зарегистрированного диспетчера.
	ErrUnknownTaskType = errors.New("unknown task type")

	// ErrHTTPRequest — ошибка выполнения HTTP-запроса.
	ErrHTTPRequest = errors.New("http request failed")

	// ErrGPTRequest — ошибка запроса к языковой модели.
	ErrGPTRequest = errors.New("gpt request failed")
)

// TaskDispatcher выполняет одну попытку задачи конкретного типа.
//
// config — конфигурация узла с уже разрешёнными плейсхолдерами,
// inputs — снимок контекста выполнения на момент запуска задачи.
type TaskDispatcher interface {
	Dispatch(ctx context.Context, config map[string]any, inputs map[string]any) (map[string]any, error)
}

// Registry — реестр диспетчеров по типу задачи.
// Реализует порт Dispatcher движка.
type Registry struct {
	dispatchers map[domain.NodeType]TaskDispatcher
}

// NewRegistry создаёт реестр с диспетчерами по умолчанию:
// httpTask и gptTask выполняются внутри процесса.
func NewRegistry() *Registry {
	r := &Registry{dispatchers: make(map[domain.NodeType]TaskDispatcher)}
	r.Register(domain.NodeTypeHTTPTask, NewHTTPDispatcher(nil))
	r.Register(domain.NodeTypeGPTTask, NewGPTDispatcherFromEnv())
	return r
}

// Register добавляет диспетчер для типа задачи.
func (r *Registry) Register(taskType domain.NodeType, d TaskDispatcher) {
	r.dispatchers[taskType] = d
}

// Dispatch направляет задачу зарегистрированному диспетчеру.
func (r *Registry) Dispatch(ctx context.Context, taskType domain.NodeType, config map[string]any, inputs map[string]any) (map[string]any, error) {
	d, ok := r.dispatchers[taskType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTaskType, taskType)
	}
	return d.Dispatch(ctx, config, inputs)
}

// getString извлекает строку из map с default значением.
func getString(m map[string]any, key, defaultVal string) string {
	if val, ok := m[key]; ok {
		if s, ok := val.(string); ok {
			return s
		}
	}
	return defaultVal
}

// getTimeout извлекает таймаут в секундах из конфигурации.
func getTimeout(config map[string]any, defaultTimeout time.Duration) time.Duration {
	if val, ok := config["timeout_sec"]; ok {
		switch v := val.(type) {
		case float64:
			if v > 0 {
				return time.Duration(v * float64(time.Second))
			}
		case int:
			if v > 0 {
				return time.Duration(v) * time.Second
			}
		}
	}
	return defaultTimeout
}

// setHeaders устанавливает заголовки запроса из конфигурации.
func setHeaders(req *http.Request, config map[string]any) {
	headers, ok := config["headers"]
	if !ok || headers == nil {
		return
	}

	switch h := headers.(type) {
	case map[string]any:
		for key, val := range h {
			if s, ok := val.(string); ok {
				req.Header.Set(key, s)
			}
		}
	case map[string]string:
		for key, val := range h {
			req.Header.Set(key, val)
		}
	}
}

// truncate обрезает строку до указанной длины.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
