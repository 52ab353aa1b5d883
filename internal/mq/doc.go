// Package mq предоставляет инфраструктуру для работы с RabbitMQ.
//
// Структура:
//   - connection.go — управление соединением (reconnect, graceful shutdown)
//   - topology.go   — объявление exchanges, queues, bindings
//   - publisher.go  — публикация сообщений
//   - consumer.go   — потребление сообщений
//
// Типы сообщений:
//   - task.dispatch — задача workflow отправлена удалённому воркеру
//   - task.result   — воркер вернул результат задачи
//
// Exchanges:
//   - hookflow.tasks — диспетчеризация задач и их результаты
//   - hookflow.dlq   — dead letter queue
//
// Результаты соотносятся с задачами по correlation id: движок кладёт
// ID задачи в CorrelationId сообщения, воркер копирует его в ответ.
package mq
