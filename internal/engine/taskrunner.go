package engine

import (
	"context"
	"time"

	"github.com/shaiso/Hookflow/internal/domain"
	"github.com/shaiso/Hookflow/internal/telemetry"
)

// Бюджеты выполнения задач.
const (
	// taskMaxAttempts — общее число попыток на задачу (1 + повторы).
	taskMaxAttempts = 3

	// taskBackoffInitial — пауза перед первым повтором.
	taskBackoffInitial = time.Second

	// taskBackoffMax — потолок экспоненциального backoff.
	taskBackoffMax = 10 * time.Second

	// httpTaskTimeout — таймаут одной попытки httpTask.
	httpTaskTimeout = 30 * time.Second

	// gptTaskTimeout — таймаут одной попытки gptTask: генерация долгая.
	gptTaskTimeout = 120 * time.Second
)

// TaskRunner оборачивает выполнение задачи таймаутом и повторами
// с экспоненциальным backoff.
//
// Ошибки не покидают эту границу: исчерпание повторов даёт
// TaskResult с Failed=true, агрегацию и политику продолжения
// выполняет вызывающий.
type TaskRunner struct {
	executor *NodeExecutor
}

// NewTaskRunner создаёт runner над исполнителем узлов.
func NewTaskRunner(executor *NodeExecutor) *TaskRunner {
	return &TaskRunner{executor: executor}
}

// taskTimeout возвращает таймаут одной попытки для типа задачи.
func taskTimeout(t domain.NodeType) time.Duration {
	if t == domain.NodeTypeGPTTask {
		return gptTaskTimeout
	}
	return httpTaskTimeout
}

// Run выполняет задачу с повторами и возвращает структурированный результат.
func (r *TaskRunner) Run(ctx context.Context, node *domain.Node, ec *ExecutionContext) domain.TaskResult {
	log := telemetry.WithNodeID(telemetry.FromContext(ctx), node.ID)
	started := time.Now()

	var lastErr error
	backoff := taskBackoffInitial

	for attempt := 1; attempt <= taskMaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, taskTimeout(node.Type))
		result, err := r.executor.ExecuteNode(attemptCtx, node, ec)
		cancel()

		if err == nil {
			return domain.TaskResult{
				NodeID:        node.ID,
				Node:          node,
				Result:        result,
				TaskType:      node.Type,
				RetryCount:    attempt - 1,
				ExecutionTime: time.Since(started),
			}
		}

		lastErr = err
		log.Warn("task attempt failed",
			"node_type", string(node.Type),
			"attempt", attempt,
			"error", err,
		)

		if attempt == taskMaxAttempts {
			break
		}
		telemetry.TaskRetriesTotal.WithLabelValues(string(node.Type)).Inc()

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			lastErr = ctx.Err()
		}
		if ctx.Err() != nil {
			break
		}
		backoff *= 2
		if backoff > taskBackoffMax {
			backoff = taskBackoffMax
		}
	}

	log.Error("task failed after retries",
		"node_type", string(node.Type),
		"error", lastErr,
	)

	return domain.TaskResult{
		NodeID: node.ID,
		Node:   node,
		Result: map[string]any{
			"success": false,
			"error":   lastErr.Error(),
		},
		Failed:        true,
		TaskType:      node.Type,
		RetryCount:    taskMaxAttempts - 1,
		ExecutionTime: time.Since(started),
		Error:         lastErr.Error(),
	}
}
