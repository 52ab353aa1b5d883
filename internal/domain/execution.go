package domain

import (
	"time"

	"github.com/google/uuid"
)

// Execution — запись о выполнении workflow.
//
// Execution создаётся при получении вебхука и обновляется движком по мере
// прохождения графа. Запись носит аудиторный характер: движок пишет её
// best-effort через порт Recorder, и сбои персистентности никогда не
// прерывают само выполнение.
type Execution struct {
	// ID — уникальный идентификатор execution.
	ID uuid.UUID `json:"id"`

	// WorkflowID — ссылка на выполняемый workflow.
	WorkflowID uuid.UUID `json:"workflow_id"`

	// Status — текущий статус выполнения.
	Status ExecutionStatus `json:"status"`

	// TriggerData — payload вебхука, с которым запущено выполнение.
	TriggerData map[string]any `json:"trigger_data,omitempty"`

	// ExecutedNodes — ID узлов в порядке завершения.
	ExecutedNodes []string `json:"executed_nodes,omitempty"`

	// CurrentNodeID — узел, обрабатывавшийся последним.
	CurrentNodeID string `json:"current_node_id,omitempty"`

	// ErrorDetails — текст ошибки для нефинальных успехом статусов.
	ErrorDetails string `json:"error_details,omitempty"`

	// ResultData — финальный контекст выполнения (результаты узлов
	// под всеми алиасами). Чтение-изменение-запись этого поля не защищено
	// от конкурентных обновлений: возможна потеря апдейта.
	ResultData map[string]any `json:"result_data,omitempty"`

	// StartedAt — время начала выполнения.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt — время завершения. Nil, пока выполнение идёт.
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// NewExecution создаёт execution в статусе running.
func NewExecution(workflowID uuid.UUID, trigger map[string]any) *Execution {
	return &Execution{
		ID:          uuid.New(),
		WorkflowID:  workflowID,
		Status:      ExecutionStatusRunning,
		TriggerData: trigger,
		StartedAt:   time.Now(),
	}
}

// Duration возвращает продолжительность выполнения (0, если не завершено).
func (e *Execution) Duration() time.Duration {
	if e.FinishedAt == nil {
		return 0
	}
	return e.FinishedAt.Sub(e.StartedAt)
}

// MarkNode отмечает узел как текущий и добавляет его в executed_nodes.
func (e *Execution) MarkNode(nodeID string) {
	e.CurrentNodeID = nodeID
	e.ExecutedNodes = append(e.ExecutedNodes, nodeID)
}

// Finish переводит execution в финальный статус.
func (e *Execution) Finish(status ExecutionStatus, errDetails string) {
	now := time.Now()
	e.Status = status
	e.ErrorDetails = errDetails
	e.FinishedAt = &now
}
