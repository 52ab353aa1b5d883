package mq

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// MessageType — тип сообщения в очереди.
type MessageType string

// Типы сообщений.
const (
	MessageTypeTaskDispatch MessageType = "task.dispatch"
	MessageTypeTaskResult   MessageType = "task.result"
)

// Message — сообщение для публикации.
type Message struct {
	// ID — уникальный идентификатор сообщения.
	ID string `json:"id"`

	// Type — тип сообщения.
	Type MessageType `json:"type"`

	// CorrelationID — ID задачи для соотнесения запроса и ответа.
	CorrelationID string `json:"correlation_id,omitempty"`

	// Payload — полезная нагрузка.
	Payload any `json:"payload"`

	// Timestamp — время создания.
	Timestamp time.Time `json:"timestamp"`
}

// TaskDispatchPayload — задача, отправленная удалённому воркеру.
type TaskDispatchPayload struct {
	// TaskID — уникальный ID вызова задачи.
	TaskID string `json:"task_id"`

	// TaskType — тип задачи (httpTask или gptTask).
	TaskType string `json:"task_type"`

	// Config — конфигурация узла с разрешёнными плейсхолдерами.
	Config map[string]any `json:"config"`

	// Inputs — снимок контекста выполнения.
	Inputs map[string]any `json:"inputs,omitempty"`
}

// TaskResultPayload — результат задачи от воркера.
type TaskResultPayload struct {
	// TaskID — ID вызова из TaskDispatchPayload.
	TaskID string `json:"task_id"`

	// Success — выполнена ли задача.
	Success bool `json:"success"`

	// Result — результат задачи при Success=true.
	Result map[string]any `json:"result,omitempty"`

	// Error — текст ошибки при Success=false.
	Error string `json:"error,omitempty"`
}

// Publisher публикует сообщения в RabbitMQ.
type Publisher struct {
	conn   *Connection
	logger *slog.Logger
}

// NewPublisher создаёт новый Publisher.
func NewPublisher(conn *Connection, logger *slog.Logger) *Publisher {
	return &Publisher{conn: conn, logger: logger}
}

// Publish публикует сообщение в указанный exchange с routing key.
func (p *Publisher) Publish(ctx context.Context, exchange Exchange, routingKey RoutingKey, msg *Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	return p.conn.WithChannel(ctx, func(ch *amqp.Channel) error {
		err := ch.PublishWithContext(
			ctx,
			string(exchange),   // exchange
			string(routingKey), // routing key
			false,
			false,
			amqp.Publishing{
				ContentType:   "application/json",
				DeliveryMode:  amqp.Persistent, // сообщение переживёт рестарт RabbitMQ
				MessageId:     msg.ID,
				CorrelationId: msg.CorrelationID,
				Timestamp:     msg.Timestamp,
				Body:          body,
			},
		)
		if err != nil {
			return fmt.Errorf("publish to %s/%s: %w", exchange, routingKey, err)
		}

		p.logger.Debug("published message",
			"exchange", exchange,
			"routing_key", routingKey,
			"message_id", msg.ID,
			"type", msg.Type,
		)

		return nil
	})
}

// PublishTaskDispatch публикует задачу для удалённого воркера.
// Потребитель: Worker.
func (p *Publisher) PublishTaskDispatch(ctx context.Context, payload TaskDispatchPayload) error {
	msg := &Message{
		ID:            uuid.New().String(),
		Type:          MessageTypeTaskDispatch,
		CorrelationID: payload.TaskID,
		Payload:       payload,
		Timestamp:     time.Now(),
	}

	return p.Publish(ctx, ExchangeTasks, RoutingKeyDispatch, msg)
}

// PublishTaskResult публикует результат задачи.
// Потребитель: движок (remote dispatcher).
func (p *Publisher) PublishTaskResult(ctx context.Context, payload TaskResultPayload) error {
	msg := &Message{
		ID:            uuid.New().String(),
		Type:          MessageTypeTaskResult,
		CorrelationID: payload.TaskID,
		Payload:       payload,
		Timestamp:     time.Now(),
	}

	return p.Publish(ctx, ExchangeTasks, RoutingKeyResult, msg)
}
