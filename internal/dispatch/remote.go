package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/shaiso/Hookflow/internal/domain"
	"github.com/shaiso/Hookflow/internal/mq"
)

// ErrWorkerFailed — удалённый воркер вернул ошибку выполнения задачи.
var ErrWorkerFailed = errors.New("remote worker failed")

// RemoteDispatcher выполняет задачи через удалённых воркеров по RabbitMQ.
//
// RPC-схема: задача публикуется в tasks.dispatch с уникальным
// correlation id, результат приходит в tasks.results с тем же id.
// Диспетчер держит таблицу ожидающих вызовов и маршрутизирует ответы
// по correlation id; потерянный ответ завершится таймаутом попытки
// на уровне TaskRunner.
type RemoteDispatcher struct {
	publisher *mq.Publisher
	logger    *slog.Logger

	mu      sync.Mutex
	pending map[string]chan mq.TaskResultPayload
}

// NewRemoteDispatcher создаёт удалённый диспетчер.
//
// Вызывающий обязан запустить consumer очереди tasks.results
// с ResultHandler в качестве обработчика.
func NewRemoteDispatcher(publisher *mq.Publisher, logger *slog.Logger) *RemoteDispatcher {
	return &RemoteDispatcher{
		publisher: publisher,
		logger:    logger,
		pending:   make(map[string]chan mq.TaskResultPayload),
	}
}

// Dispatch публикует задачу и ждёт результат с тем же correlation id.
// Реализует порт Dispatcher движка.
func (d *RemoteDispatcher) Dispatch(ctx context.Context, taskType domain.NodeType, config map[string]any, inputs map[string]any) (map[string]any, error) {
	taskID := uuid.New().String()

	resultCh := make(chan mq.TaskResultPayload, 1)
	d.mu.Lock()
	d.pending[taskID] = resultCh
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.pending, taskID)
		d.mu.Unlock()
	}()

	payload := mq.TaskDispatchPayload{
		TaskID:   taskID,
		TaskType: string(taskType),
		Config:   config,
		Inputs:   inputs,
	}
	if err := d.publisher.PublishTaskDispatch(ctx, payload); err != nil {
		return nil, fmt.Errorf("dispatch task: %w", err)
	}

	select {
	case result := <-resultCh:
		if !result.Success {
			return nil, fmt.Errorf("%w: %s", ErrWorkerFailed, result.Error)
		}
		return result.Result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ResultHandler — обработчик сообщений очереди tasks.results.
func (d *RemoteDispatcher) ResultHandler(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskResultPayload](&delivery.Message)
	if err != nil {
		return fmt.Errorf("parse task result: %w", err)
	}

	d.mu.Lock()
	ch, waiting := d.pending[payload.TaskID]
	d.mu.Unlock()

	if !waiting {
		// Вызов уже завершился таймаутом: ответ просто поздний
		d.logger.Debug("dropping late task result", "task_id", payload.TaskID)
		return nil
	}

	select {
	case ch <- payload:
	default:
	}
	return nil
}
