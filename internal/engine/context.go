package engine

import (
	"fmt"

	"github.com/shaiso/Hookflow/internal/domain"
)

// triggerAliasCount — число предзасеянных алиасов "Trigger 1".."Trigger N".
// Разные сохранённые workflow ссылаются на payload под разными номерами,
// поэтому все номера указывают на один и тот же объект.
const triggerAliasCount = 10

// ExecutionContext — накапливающий контекст выполнения.
//
// Единая упорядоченная мапа ключ → значение, в которую результат каждого
// узла попадает сразу под несколькими алиасами: сырой ID узла, метка
// "тип + порядковый номер" ("HTTP 1", "GPT 2"), короткая метка типа для
// первого узла этого типа и человекочитаемый label узла, если задан.
//
// Инвариант: ключи никогда не удаляются, только добавляются или
// перезаписываются; внутри батча побеждает последняя запись.
//
// Контекст не потокобезопасен: конкурентные задачи батча читают Snapshot(),
// а записи выполняются движком в одной горутине после барьера батча.
type ExecutionContext struct {
	values map[string]any
	order  []string // ключи в порядке первой вставки

	// typeOrdinals — счётчик узлов каждого типа для меток "HTTP 1", "GPT 2".
	typeOrdinals map[domain.NodeType]int
}

// NewExecutionContext создаёт пустой контекст.
func NewExecutionContext() *ExecutionContext {
	return &ExecutionContext{
		values:       make(map[string]any),
		typeOrdinals: make(map[domain.NodeType]int),
	}
}

// typeLabels — короткие метки типов для алиасов результатов.
var typeLabels = map[domain.NodeType]string{
	domain.NodeTypeTrigger:         "Trigger",
	domain.NodeTypeHTTPTask:        "HTTP",
	domain.NodeTypeGPTTask:         "GPT",
	domain.NodeTypeConditional:     "Conditional",
	domain.NodeTypeDataTransform:   "Transform",
	domain.NodeTypeWebhookResponse: "Response",
	domain.NodeTypeRouter:          "Router",
}

// AliasKeys возвращает все ключи-алиасы для результата узла.
//
// Чистая функция: генерация алиасов изолирована от цикла движка
// и тестируется независимо. ordinal — порядковый номер узла среди
// узлов его типа, начиная с 1.
func AliasKeys(node *domain.Node, ordinal int) []string {
	keys := []string{node.ID}

	label, ok := typeLabels[node.Type]
	if !ok {
		label = string(node.Type)
	}

	keys = append(keys, fmt.Sprintf("%s %d", label, ordinal))
	if ordinal == 1 {
		keys = append(keys, label)
	}
	if node.Label != "" {
		keys = append(keys, node.Label)
	}

	return keys
}

// Set записывает значение под одним ключом.
func (c *ExecutionContext) Set(key string, value any) {
	if _, exists := c.values[key]; !exists {
		c.order = append(c.order, key)
	}
	c.values[key] = value
}

// Get возвращает значение по точному ключу.
func (c *ExecutionContext) Get(key string) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// Keys возвращает ключи в порядке первой вставки.
func (c *ExecutionContext) Keys() []string {
	keys := make([]string, len(c.order))
	copy(keys, c.order)
	return keys
}

// Values возвращает внутреннюю мапу контекста.
// Вызывающий не должен модифицировать её напрямую.
func (c *ExecutionContext) Values() map[string]any {
	return c.values
}

// Snapshot возвращает поверхностную копию контекста для конкурентного
// чтения задачами батча. Вложенные значения не копируются: задачи
// читают их, но не модифицируют.
func (c *ExecutionContext) Snapshot() *ExecutionContext {
	snap := NewExecutionContext()
	for _, key := range c.order {
		snap.Set(key, c.values[key])
	}
	for t, n := range c.typeOrdinals {
		snap.typeOrdinals[t] = n
	}
	return snap
}

// SeedTrigger засеивает контекст payload'ом вебхука.
//
// Поля payload поднимаются в корень контекста и дублируются под
// алиасами "Trigger 1".."Trigger 10" — сохранённые workflow ссылаются
// на триггер под разными номерами. Сам payload также доступен как
// originalRequest.
func (c *ExecutionContext) SeedTrigger(payload map[string]any) {
	if payload == nil {
		payload = make(map[string]any)
	}

	// Поднимаем поля payload в корень
	for k, v := range payload {
		c.Set(k, v)
	}

	c.Set("originalRequest", payload)

	for i := 1; i <= triggerAliasCount; i++ {
		c.Set(fmt.Sprintf("Trigger %d", i), payload)
	}
}

// AddResult добавляет результат узла под всеми его алиасами.
// Возвращает присвоенный узлу порядковый номер.
func (c *ExecutionContext) AddResult(node *domain.Node, result any) int {
	c.typeOrdinals[node.Type]++
	ordinal := c.typeOrdinals[node.Type]

	for _, key := range AliasKeys(node, ordinal) {
		c.Set(key, result)
	}

	return ordinal
}
