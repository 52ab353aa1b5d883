package domain

// ExecutionStatus — статус выполнения execution.
//
// Жизненный цикл:
//
//	running → completed
//	        ↘ partial_success (гейт пройден, но часть GPT-результатов отсутствует)
//	        ↘ failed          (ошибка узла в последовательном батче или системная)
//	        ↘ timeout         (превышен глобальный таймаут параллельной фазы)
//	        ↘ incomplete      (доля успешных GPT-задач ниже порога, ответ не отправлен)
type ExecutionStatus string

const (
	// ExecutionStatusRunning — execution в процессе выполнения.
	ExecutionStatusRunning ExecutionStatus = "running"

	// ExecutionStatusCompleted — все узлы выполнены успешно.
	ExecutionStatusCompleted ExecutionStatus = "completed"

	// ExecutionStatusFailed — выполнение прервано ошибкой.
	ExecutionStatusFailed ExecutionStatus = "failed"

	// ExecutionStatusTimeout — параллельная фаза не уложилась в глобальный таймаут.
	ExecutionStatusTimeout ExecutionStatus = "timeout"

	// ExecutionStatusPartialSuccess — ответ отправлен, но часть задач не принесла результат.
	ExecutionStatusPartialSuccess ExecutionStatus = "partial_success"

	// ExecutionStatusIncomplete — результатов GPT-задач недостаточно для ответа.
	ExecutionStatusIncomplete ExecutionStatus = "incomplete"
)

// IsTerminal возвращает true, если статус финальный.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusTimeout,
		ExecutionStatusPartialSuccess, ExecutionStatusIncomplete:
		return true
	default:
		return false
	}
}

// IsSuccess возвращает true, если вызывающему был отдан сконфигурированный ответ.
func (s ExecutionStatus) IsSuccess() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusPartialSuccess
}
