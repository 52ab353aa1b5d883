// Package worker реализует удалённого исполнителя задач.
//
// Worker — stateless компонент системы, который:
//   - Получает задачи httpTask/gptTask из очереди tasks.dispatch
//   - Выполняет их локальными диспетчерами (HTTP, GPT)
//   - Публикует результат в tasks.results с тем же correlation id
//
// Workers масштабируются горизонтально: несколько экземпляров
// могут потреблять из одной очереди.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/shaiso/Hookflow/internal/dispatch"
	"github.com/shaiso/Hookflow/internal/domain"
	"github.com/shaiso/Hookflow/internal/mq"
)

const defaultPrefetch = 5

// Worker выполняет задачи из очереди tasks.dispatch.
type Worker struct {
	publisher *mq.Publisher
	conn      *mq.Connection
	registry  *dispatch.Registry

	consumer *mq.Consumer
	prefetch int

	logger     *slog.Logger
	cancelFunc context.CancelFunc
	wg         sync.WaitGroup
}

// Config — конфигурация Worker.
type Config struct {
	// Publisher — публикация результатов.
	Publisher *mq.Publisher

	// Conn — соединение с RabbitMQ.
	Conn *mq.Connection

	// Registry — диспетчеры задач (nil — реестр по умолчанию).
	Registry *dispatch.Registry

	// Prefetch — количество одновременно обрабатываемых задач.
	Prefetch int

	// Logger — логгер.
	Logger *slog.Logger
}

// New создаёт новый Worker.
func New(cfg Config) *Worker {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = dispatch.NewRegistry()
	}

	prefetch := cfg.Prefetch
	if prefetch <= 0 {
		prefetch = defaultPrefetch
	}

	return &Worker{
		publisher: cfg.Publisher,
		conn:      cfg.Conn,
		registry:  registry,
		prefetch:  prefetch,
		logger:    logger,
	}
}

// Start запускает consumer очереди tasks.dispatch.
func (w *Worker) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	w.cancelFunc = cancel

	w.logger.Info("starting worker", "prefetch", w.prefetch)

	w.consumer = mq.NewConsumer(w.conn, w.logger, mq.ConsumerConfig{
		Queue:    string(mq.QueueTasksDispatch),
		Handler:  w.handleTaskDispatch,
		Prefetch: w.prefetch,
	})

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		if err := w.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			w.logger.Error("task consumer error", "error", err)
		}
	}()

	w.logger.Info("worker started")
	return nil
}

// Stop останавливает Worker.
func (w *Worker) Stop() {
	w.logger.Info("stopping worker...")

	if w.cancelFunc != nil {
		w.cancelFunc()
	}
	if w.consumer != nil {
		w.consumer.Stop()
	}

	w.wg.Wait()

	w.logger.Info("worker stopped")
}

// handleTaskDispatch обрабатывает одну задачу из очереди.
//
// Ошибка выполнения задачи — не ошибка обработки сообщения: результат
// с Success=false публикуется, сообщение подтверждается. Nack получают
// только сбои самой инфраструктуры (непарсящийся payload, публикация).
func (w *Worker) handleTaskDispatch(ctx context.Context, delivery *mq.Delivery) error {
	payload, err := mq.ParsePayload[mq.TaskDispatchPayload](&delivery.Message)
	if err != nil {
		return err
	}

	log := w.logger.With("task_id", payload.TaskID, "task_type", payload.TaskType)
	log.Debug("executing remote task")

	result, execErr := w.registry.Dispatch(ctx, domain.NodeType(payload.TaskType), payload.Config, payload.Inputs)

	out := mq.TaskResultPayload{TaskID: payload.TaskID}
	if execErr != nil {
		log.Warn("remote task failed", "error", execErr)
		out.Error = execErr.Error()
	} else {
		out.Success = true
		out.Result = result
	}

	if err := w.publisher.PublishTaskResult(ctx, out); err != nil {
		return err
	}
	return nil
}
