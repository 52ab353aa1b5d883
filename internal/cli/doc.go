// Package cli реализует инструмент командной строки Hookflow.
//
// # Обзор
//
// CLI — клиентская утилита для взаимодействия с Hookflow API.
// Работает через HTTP, не импортирует внутренние пакеты системы.
// CLI используется для управления workflow, просмотра executions
// и ручного запуска хуков.
//
// # Ключевые компоненты
//
// ## Client
//
// HTTP-клиент для Hookflow API. Инкапсулирует все HTTP-запросы,
// парсинг ответов (DataResponse, ListResponse, ErrorResponse)
// и обработку ошибок.
//
//	client := cli.NewClient("http://localhost:8080")
//	workflows, err := client.ListWorkflows()
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: hookflow workflow list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - workflow: list, create, show, update, delete
//   - execution: list, show
//   - trigger: запуск хука с payload
//
// Каждая группа создаётся через фабричную функцию (NewWorkflowCmd и т.д.),
// принимающую clientFn и outputFn — замыкания для ленивого создания
// Client и Output после парсинга PersistentFlags.
package cli
