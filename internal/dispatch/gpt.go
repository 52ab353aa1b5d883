package dispatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	json "github.com/goccy/go-json"
)

const (
	defaultGPTTimeout = 120 * time.Second
	defaultGPTBaseURL = "https://api.openai.com/v1"
	defaultGPTModel   = "gpt-4o-mini"
)

// GPTDispatcher выполняет gptTask: запрос к chat-completions API
// языковой модели.
//
// Config:
//   - prompt (string): пользовательский промпт (обязательно)
//   - system (string): системный промпт
//   - model (string): имя модели. Default: из окружения или gpt-4o-mini
//   - timeout_sec (number): таймаут запроса в секундах. Default: 120
//
// Результат:
//   - result (string): текст ответа модели
//   - model (string): фактическая модель
//   - usage (map): статистика токенов, как её вернул API
type GPTDispatcher struct {
	client  *http.Client
	baseURL string
	apiKey  string
	model   string
}

// NewGPTDispatcher создаёт диспетчер с явными параметрами.
func NewGPTDispatcher(client *http.Client, baseURL, apiKey, model string) *GPTDispatcher {
	if client == nil {
		client = &http.Client{}
	}
	if baseURL == "" {
		baseURL = defaultGPTBaseURL
	}
	if model == "" {
		model = defaultGPTModel
	}
	return &GPTDispatcher{client: client, baseURL: baseURL, apiKey: apiKey, model: model}
}

// NewGPTDispatcherFromEnv создаёт диспетчер из переменных окружения
// OPENAI_BASE_URL, OPENAI_API_KEY и OPENAI_MODEL.
func NewGPTDispatcherFromEnv() *GPTDispatcher {
	return NewGPTDispatcher(nil,
		os.Getenv("OPENAI_BASE_URL"),
		os.Getenv("OPENAI_API_KEY"),
		os.Getenv("OPENAI_MODEL"),
	)
}

// chatRequest — тело запроса chat-completions.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse — ответ chat-completions в минимально нужном объёме.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Usage map[string]any `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Dispatch выполняет запрос к модели.
func (d *GPTDispatcher) Dispatch(ctx context.Context, config map[string]any, inputs map[string]any) (map[string]any, error) {
	prompt := getString(config, "prompt", "")
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrGPTRequest)
	}

	model := getString(config, "model", d.model)

	var messages []chatMessage
	if system := getString(config, "system", ""); system != "" {
		messages = append(messages, chatMessage{Role: "system", Content: system})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	payload, err := json.Marshal(chatRequest{Model: model, Messages: messages})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", ErrGPTRequest, err)
	}

	ctx, cancel := context.WithTimeout(ctx, getTimeout(config, defaultGPTTimeout))
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		d.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrGPTRequest, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGPTRequest, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrGPTRequest, err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrGPTRequest, err)
	}

	if parsed.Error != nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrGPTRequest, parsed.Error.Message, parsed.Error.Type)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: HTTP %d: %s", ErrGPTRequest, resp.StatusCode, truncate(string(respBody), 200))
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty choices", ErrGPTRequest)
	}

	return map[string]any{
		"result": parsed.Choices[0].Message.Content,
		"model":  parsed.Model,
		"usage":  parsed.Usage,
	}, nil
}
