package engine

import (
	"errors"
	"fmt"

	"github.com/shaiso/Hookflow/internal/domain"
)

// Ошибки валидации графа.
var (
	// ErrNoTriggerNode — в графе нет trigger-узла.
	ErrNoTriggerNode = errors.New("workflow has no trigger node")

	// ErrEmptyGraph — граф не содержит узлов.
	ErrEmptyGraph = errors.New("workflow graph has no nodes")

	// ErrUnknownNodeType — неизвестный тип узла.
	ErrUnknownNodeType = errors.New("unknown node type")
)

// Ошибки конфигурации узлов.
var (
	// ErrEmptyResponseBody — webhookResponse-узел без responseBody.
	// Фатальная ошибка конфигурации: прерывает выполнение до диспатча задач.
	ErrEmptyResponseBody = errors.New("webhook response node has empty response body")

	// ErrNoDispatcher — задача требует диспетчер, а он не внедрён.
	ErrNoDispatcher = errors.New("task dispatcher is not configured")
)

// Ошибки выполнения.
var (
	// ErrIncompleteResults — доля успешных GPT-задач ниже порога гейта.
	// Отличается от generic-ошибок: вызывающий может повторить запрос.
	ErrIncompleteResults = errors.New("incomplete GPT results")

	// ErrRunTimeout — параллельная фаза превысила глобальный таймаут.
	ErrRunTimeout = errors.New("workflow execution timed out")
)

// NodeError — ошибка выполнения конкретного узла.
type NodeError struct {
	NodeID   string          // ID упавшего узла
	NodeType domain.NodeType // тип узла
	Message  string          // описание ошибки
	Err      error           // базовая ошибка
}

// Error реализует интерфейс error.
func (e *NodeError) Error() string {
	return fmt.Sprintf("node %s (%s): %s", e.NodeID, e.NodeType, e.Message)
}

// Unwrap возвращает базовую ошибку.
func (e *NodeError) Unwrap() error {
	return e.Err
}

// NewNodeError создаёт новую ошибку узла.
func NewNodeError(node *domain.Node, message string, err error) *NodeError {
	return &NodeError{
		NodeID:   node.ID,
		NodeType: node.Type,
		Message:  message,
		Err:      err,
	}
}
