package domain

import "time"

// TaskResult — результат выполнения одной httpTask/gptTask задачи
// через Task Runner.
//
// Failed=true означает исчерпание бюджета повторов, а не аварию:
// Task Runner никогда не пропускает ошибку выше себя, агрегацией
// занимается движок.
type TaskResult struct {
	// NodeID — ID узла, породившего задачу.
	NodeID string `json:"node_id"`

	// Node — сам узел (с уже разрешённой конфигурацией).
	Node *Node `json:"-"`

	// Result — результат задачи (shape зависит от диспетчера).
	Result map[string]any `json:"result,omitempty"`

	// Failed — true, если все попытки исчерпаны без успеха.
	Failed bool `json:"failed"`

	// TaskType — тип задачи (httpTask или gptTask).
	TaskType NodeType `json:"task_type"`

	// RetryCount — количество выполненных повторов (0 — успех с первой попытки).
	RetryCount int `json:"retry_count"`

	// ExecutionTime — суммарное время всех попыток.
	ExecutionTime time.Duration `json:"execution_time"`

	// Error — текст последней ошибки при Failed=true.
	Error string `json:"error,omitempty"`
}

// ResponseSpec — HTTP-ответ, синтезированный webhookResponse-узлом.
//
// Жизненный цикл заканчивается на HTTP-границе: фронт-дор обязан отдать
// StatusCode/Headers/Body вызывающему дословно.
type ResponseSpec struct {
	// StatusCode — HTTP-статус ответа.
	StatusCode int `json:"status_code"`

	// Body — тело ответа. Перед отправкой сериализуется заново,
	// чтобы гарантировать валидный JSON.
	Body any `json:"body"`

	// Headers — заголовки ответа.
	Headers map[string]string `json:"headers,omitempty"`
}
