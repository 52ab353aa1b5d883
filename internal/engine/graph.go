package engine

import (
	"github.com/shaiso/Hookflow/internal/domain"
)

// HasPath проверяет достижимость целевого узла из стартового
// по направленным рёбрам графа. Узел достижим из самого себя только
// через явное ребро-петлю: пустой путь достижимостью не считается.
func HasPath(g *domain.Graph, fromID, toID string) bool {
	visited := make(map[string]bool, len(g.Nodes))
	stack := []string{fromID}

	for len(stack) > 0 {
		current := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[current] {
			continue
		}
		visited[current] = true

		for _, edge := range g.OutgoingEdges(current) {
			if edge.Target == toID {
				return true
			}
			if !visited[edge.Target] {
				stack = append(stack, edge.Target)
			}
		}
	}

	return false
}

// DepthFromTrigger возвращает длину первого найденного пути от триггера
// до узла в порядке обхода рёбер графа. Триггер имеет глубину 0;
// недостижимый узел — -1.
//
// Намеренно не кратчайший путь: при ромбовидных ветвях глубина зависит
// от порядка рёбер, и группировка по глубине опирается именно на это
// детерминированное поведение.
func DepthFromTrigger(g *domain.Graph, nodeID string) int {
	trigger := g.TriggerNode()
	if trigger == nil {
		return -1
	}
	if trigger.ID == nodeID {
		return 0
	}

	visited := make(map[string]bool, len(g.Nodes))
	var walk func(currentID string, depth int) int
	walk = func(currentID string, depth int) int {
		if currentID == nodeID {
			return depth
		}
		visited[currentID] = true
		for _, edge := range g.OutgoingEdges(currentID) {
			if visited[edge.Target] {
				continue
			}
			if d := walk(edge.Target, depth+1); d >= 0 {
				return d
			}
		}
		return -1
	}

	return walk(trigger.ID, 0)
}

// FindParallelGroups группирует задачи указанного типа, у которых есть
// путь до гейт-узла, для параллельного запуска.
//
// HTTP-задачи объединяются по равной глубине от триггера: каждая
// группа — все подходящие httpTask-узлы одной глубины, группы идут
// по возрастанию глубины. GPT-задачи образуют одну общую группу
// независимо от положения в графе: анализ зависимостей между узлами
// одного типа не выполняется. Узлы внутри группы сохраняют порядок
// создания.
func FindParallelGroups(g *domain.Graph, taskType domain.NodeType, gateID string) [][]*domain.Node {
	var qualifying []*domain.Node
	for i := range g.Nodes {
		node := &g.Nodes[i]
		if node.Type != taskType {
			continue
		}
		if !HasPath(g, node.ID, gateID) {
			continue
		}
		qualifying = append(qualifying, node)
	}
	if len(qualifying) == 0 {
		return nil
	}

	// GPT: одна общая группа
	if taskType == domain.NodeTypeGPTTask {
		return [][]*domain.Node{qualifying}
	}

	// HTTP: по глубинам
	byDepth := make(map[int][]*domain.Node)
	var depths []int
	for _, node := range qualifying {
		depth := DepthFromTrigger(g, node.ID)
		if depth < 0 {
			continue
		}
		if _, seen := byDepth[depth]; !seen {
			depths = append(depths, depth)
		}
		byDepth[depth] = append(byDepth[depth], node)
	}

	for i := 1; i < len(depths); i++ {
		for j := i; j > 0 && depths[j] < depths[j-1]; j-- {
			depths[j], depths[j-1] = depths[j-1], depths[j]
		}
	}

	groups := make([][]*domain.Node, 0, len(depths))
	for _, depth := range depths {
		groups = append(groups, byDepth[depth])
	}
	return groups
}
