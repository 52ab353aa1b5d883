package domain

import (
	"time"

	"github.com/google/uuid"
)

// NodeType — тип узла в графе workflow.
//
// Набор типов фиксирован и закрыт: новые типы узлов на этом уровне
// не регистрируются.
type NodeType string

const (
	// NodeTypeTrigger — входной узел, получает payload вебхука.
	// В графе должен быть ровно один такой узел.
	NodeTypeTrigger NodeType = "trigger"

	// NodeTypeHTTPTask — исходящий HTTP-вызов к внешнему сервису.
	NodeTypeHTTPTask NodeType = "httpTask"

	// NodeTypeGPTTask — запрос к языковой модели (долгая генерация).
	NodeTypeGPTTask NodeType = "gptTask"

	// NodeTypeConditional — выбор одного из двух значений по условию.
	NodeTypeConditional NodeType = "conditional"

	// NodeTypeDataTransform — набор операций add/remove/modify над контекстом.
	NodeTypeDataTransform NodeType = "dataTransform"

	// NodeTypeWebhookResponse — узел, чей результат становится HTTP-ответом вызывающему.
	NodeTypeWebhookResponse NodeType = "webhookResponse"

	// NodeTypeRouter — узел ветвления; сам по себе passthrough,
	// fan-out по исходящим рёбрам выполняет движок.
	NodeTypeRouter NodeType = "router"
)

// IsTask возвращает true для узлов, выполняемых через внешний диспетчер задач.
func (t NodeType) IsTask() bool {
	return t == NodeTypeHTTPTask || t == NodeTypeGPTTask
}

// Node — узел workflow.
type Node struct {
	// ID — уникальный идентификатор узла в рамках графа.
	ID string `json:"id"`

	// Type — тип узла из фиксированного набора.
	Type NodeType `json:"type"`

	// Config — конфигурация узла. Произвольная вложенная структура,
	// строки могут содержать плейсхолдеры {{expr}}.
	Config map[string]any `json:"config,omitempty"`

	// Label — человекочитаемое имя узла (например, "GPT 3").
	// Используется как один из ключей-алиасов для результата узла.
	Label string `json:"label,omitempty"`

	// NodeNumber — порядковый номер узла, заданный при создании графа.
	// Участвует в определении обязательных GPT-узлов при гейтинге.
	NodeNumber int `json:"node_number,omitempty"`
}

// Edge — направленное ребро графа: source → target.
type Edge struct {
	// Source — ID узла-источника.
	Source string `json:"source"`

	// Target — ID узла-приёмника.
	Target string `json:"target"`
}

// Graph — граф workflow: узлы и рёбра.
//
// Граф неизменяем с момента начала выполнения. Ацикличность —
// предусловие: циклы не детектируются и приведут к зависанию обхода.
type Graph struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// TriggerNode возвращает единственный trigger-узел графа.
// Возвращает nil, если trigger отсутствует.
func (g *Graph) TriggerNode() *Node {
	for i := range g.Nodes {
		if g.Nodes[i].Type == NodeTypeTrigger {
			return &g.Nodes[i]
		}
	}
	return nil
}

// ResponseNode возвращает первый найденный webhookResponse-узел.
// Несколько response-узлов допустимы, но гейтом ответа считается первый.
func (g *Graph) ResponseNode() *Node {
	for i := range g.Nodes {
		if g.Nodes[i].Type == NodeTypeWebhookResponse {
			return &g.Nodes[i]
		}
	}
	return nil
}

// NodeByID возвращает узел по ID или nil.
func (g *Graph) NodeByID(id string) *Node {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i]
		}
	}
	return nil
}

// NodesOfType возвращает все узлы указанного типа в порядке объявления.
func (g *Graph) NodesOfType(t NodeType) []Node {
	var nodes []Node
	for _, n := range g.Nodes {
		if n.Type == t {
			nodes = append(nodes, n)
		}
	}
	return nodes
}

// OutgoingEdges возвращает рёбра, исходящие из узла.
func (g *Graph) OutgoingEdges(nodeID string) []Edge {
	var edges []Edge
	for _, e := range g.Edges {
		if e.Source == nodeID {
			edges = append(edges, e)
		}
	}
	return edges
}

// Workflow — сохранённое определение workflow.
//
// Workflow привязан к имени хука: POST /api/v1/hooks/{hook} запускает
// выполнение его графа с payload запроса в качестве триггера.
type Workflow struct {
	// ID — уникальный идентификатор workflow.
	ID uuid.UUID `json:"id"`

	// Name — уникальное имя workflow, оно же имя хука в URL вебхука.
	Name string `json:"name"`

	// Graph — граф узлов и рёбер.
	Graph Graph `json:"graph"`

	// IsActive — флаг активности. Вебхуки неактивных workflow отклоняются.
	IsActive bool `json:"is_active"`

	// CreatedAt — время создания.
	CreatedAt time.Time `json:"created_at"`

	// UpdatedAt — время последнего изменения графа.
	UpdatedAt time.Time `json:"updated_at"`
}
