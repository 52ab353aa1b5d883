// Package api содержит HTTP API сервер.
//
// Структура:
//   - handler.go           — Handler с DI (хранилища, движок, logger)
//   - routes.go            — регистрация маршрутов
//   - middleware.go        — middleware (logging, recovery)
//   - response.go          — унифицированные JSON-ответы и обработка ошибок
//   - dto.go               — Data Transfer Objects (request/response)
//   - webhook_handler.go   — приём вебхуков /hooks/{name}
//   - workflow_handler.go  — обработчики для /workflows
//   - execution_handler.go — обработчики для /executions
//
// Главный маршрут системы — POST /api/v1/hooks/{name}: он запускает
// граф workflow с payload'ом запроса и отдаёт вызывающему либо ответ,
// синтезированный webhookResponse-узлом, либо общий конверт результата.
package api
