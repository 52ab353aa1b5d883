// Package engine содержит движок выполнения workflow-графов.
//
// Включает:
//   - context.go    — ExecutionContext: накапливающий контекст с алиасами результатов
//   - template.go   — подстановка плейсхолдеров {{expr}} в конфигурацию узлов
//   - graph.go      — анализ графа: достижимость, глубина, параллельные группы
//   - executor.go   — выполнение одного узла по его типу
//   - taskrunner.go — обёртка задач: таймаут, retry с exponential backoff
//   - engine.go     — две стратегии обхода: батчевый walker и early-response walker
//
// Движок function-call-scoped: Run() выполняет граф целиком в рамках
// одного вызова (внутри HTTP-запроса вебхука) и не является standing-процессом.
// Внешние зависимости — порты Dispatcher и Recorder — внедряются через Config.
package engine
