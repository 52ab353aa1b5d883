package engine

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shaiso/Hookflow/internal/domain"
	"github.com/shaiso/Hookflow/internal/telemetry"
)

// Параметры выполнения по умолчанию.
const (
	// defaultRunTimeout — глобальный таймаут параллельной фазы
	// оптимизированного обхода.
	defaultRunTimeout = 5 * time.Minute

	// defaultGateThreshold — минимальная доля успешных GPT-задач,
	// при которой response-узел всё же выполняется.
	defaultGateThreshold = 0.8
)

// Dispatcher — порт исходящих задач (httpTask, gptTask).
//
// Диспетчер считается ненадёжным: таймауты и повторы применяет
// TaskRunner, диспетчер лишь выполняет одну попытку.
type Dispatcher interface {
	Dispatch(ctx context.Context, taskType domain.NodeType, config map[string]any, inputs map[string]any) (map[string]any, error)
}

// Recorder — порт персистентности execution-записей.
//
// Все вызовы best-effort: ошибка Recorder логируется и никогда
// не прерывает выполнение workflow.
type Recorder interface {
	CreateExecution(ctx context.Context, ex *domain.Execution) error
	UpdateExecution(ctx context.Context, ex *domain.Execution) error
	GetExecution(ctx context.Context, id string) (*domain.Execution, error)
}

// Config — зависимости и параметры движка.
type Config struct {
	// Dispatcher — порт задач. Обязателен для графов с httpTask/gptTask.
	Dispatcher Dispatcher

	// Recorder — порт персистентности. Nil — записи не ведутся.
	Recorder Recorder

	// RunTimeout — глобальный таймаут параллельной фазы (0 — по умолчанию).
	RunTimeout time.Duration

	// GateThreshold — порог гейта GPT-результатов (0 — по умолчанию).
	GateThreshold float64
}

// Engine выполняет граф workflow. Движок живёт в рамках одного вызова
// Run: состояния между запусками нет, все зависимости внедрены.
type Engine struct {
	executor      *NodeExecutor
	runner        *TaskRunner
	recorder      Recorder
	runTimeout    time.Duration
	gateThreshold float64
}

// New создаёт движок.
func New(cfg Config) *Engine {
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = defaultRunTimeout
	}
	if cfg.GateThreshold <= 0 {
		cfg.GateThreshold = defaultGateThreshold
	}

	executor := NewNodeExecutor(cfg.Dispatcher)
	return &Engine{
		executor:      executor,
		runner:        NewTaskRunner(executor),
		recorder:      cfg.Recorder,
		runTimeout:    cfg.RunTimeout,
		gateThreshold: cfg.GateThreshold,
	}
}

// Result — итог выполнения workflow.
type Result struct {
	// Message — человекочитаемый итог.
	Message string `json:"message"`

	// Data — финальный контекст выполнения.
	Data map[string]any `json:"data,omitempty"`

	// Status — терминальный статус выполнения.
	Status domain.ExecutionStatus `json:"status"`

	// ExecutedNodes — ID узлов в порядке завершения.
	ExecutedNodes []string `json:"executed_nodes,omitempty"`

	// WebhookResponse — ответ, синтезированный response-узлом.
	// Nil, если response-узел не выполнялся.
	WebhookResponse *domain.ResponseSpec `json:"webhook_response,omitempty"`

	// Error — классификация ошибки, если статус не успешный.
	Error string `json:"error,omitempty"`

	// Details — подробности ошибки.
	Details string `json:"details,omitempty"`
}

// Run выполняет граф workflow с payload'ом вебхука.
//
// Вызывающий всегда получает ненулевой Result: все классы ошибок
// сворачиваются в Result.Status/Error. Возвращаемая ошибка дублирует
// фатальную причину для удобства каскадирования.
func (e *Engine) Run(ctx context.Context, wf *domain.Workflow, trigger map[string]any) (*Result, error) {
	log := telemetry.WithWorkflowID(telemetry.FromContext(ctx), wf.ID.String())
	started := time.Now()

	if len(wf.Graph.Nodes) == 0 {
		return e.failEarly(ctx, nil, ErrEmptyGraph), ErrEmptyGraph
	}
	triggerNode := wf.Graph.TriggerNode()
	if triggerNode == nil {
		return e.failEarly(ctx, nil, ErrNoTriggerNode), ErrNoTriggerNode
	}

	// Ошибка конфигурации response-узла фатальна до диспатча любых задач
	responseNode := wf.Graph.ResponseNode()
	if responseNode != nil {
		if _, err := ParseResponseConfig(responseNode); err != nil {
			return e.failEarly(ctx, nil, err), err
		}
	}

	ex := domain.NewExecution(wf.ID, trigger)
	ctx = telemetry.WithLogger(ctx, telemetry.WithExecutionID(log, ex.ID.String()))
	e.record(ctx, ex, true)

	ec := NewExecutionContext()
	ec.SeedTrigger(trigger)

	var result *Result
	if responseNode != nil && e.hasParallelGroups(&wf.Graph, responseNode) {
		result = e.runEarlyResponse(ctx, &wf.Graph, ec, ex, responseNode)
	} else {
		result = e.runBatches(ctx, &wf.Graph, ec, ex)
	}

	result.Data = ec.Values()
	result.ExecutedNodes = ex.ExecutedNodes

	ex.ResultData = ec.Values()
	ex.Finish(result.Status, result.Details)
	e.record(ctx, ex, false)

	telemetry.ExecutionsTotal.WithLabelValues(string(result.Status)).Inc()
	telemetry.ExecutionDuration.Observe(time.Since(started).Seconds())

	telemetry.FromContext(ctx).Info("workflow run finished",
		"status", string(result.Status),
		"executed_nodes", len(result.ExecutedNodes),
		"duration", time.Since(started),
	)

	var runErr error
	if result.Error != "" {
		runErr = errors.New(result.Error)
	}
	return result, runErr
}

// hasParallelGroups сообщает, есть ли task-группы с путём до response-узла.
func (e *Engine) hasParallelGroups(g *domain.Graph, responseNode *domain.Node) bool {
	return len(FindParallelGroups(g, domain.NodeTypeHTTPTask, responseNode.ID)) > 0 ||
		len(FindParallelGroups(g, domain.NodeTypeGPTTask, responseNode.ID)) > 0
}

// failEarly формирует результат для ошибки, случившейся до запуска графа.
func (e *Engine) failEarly(ctx context.Context, ex *domain.Execution, err error) *Result {
	telemetry.FromContext(ctx).Error("workflow run rejected", "error", err)
	if ex != nil {
		ex.Finish(domain.ExecutionStatusFailed, err.Error())
		e.record(ctx, ex, false)
	}
	telemetry.ExecutionsTotal.WithLabelValues(string(domain.ExecutionStatusFailed)).Inc()
	return &Result{
		Message: "workflow failed",
		Status:  domain.ExecutionStatusFailed,
		Error:   err.Error(),
		Details: err.Error(),
	}
}

// record пишет execution через Recorder. Best-effort: сбой логируется.
func (e *Engine) record(ctx context.Context, ex *domain.Execution, create bool) {
	if e.recorder == nil {
		return
	}
	var err error
	if create {
		err = e.recorder.CreateExecution(ctx, ex)
	} else {
		err = e.recorder.UpdateExecution(ctx, ex)
	}
	if err != nil {
		telemetry.FromContext(ctx).Warn("execution record write failed", "error", err)
	}
}

// nodeOutcome — результат одного узла батча.
type nodeOutcome struct {
	node   *domain.Node
	result map[string]any
	err    error
}

// runBatches — общий обход: граф идёт волнами от триггера.
//
// Все узлы батча стартуют одновременно над снапшотом контекста;
// движок ждёт весь батч (строгий барьер) и лишь затем сливает
// результаты и вычисляет следующий батч. Любой сбой узла фатален
// для всего выполнения: строгая конвейерная семантика.
func (e *Engine) runBatches(ctx context.Context, g *domain.Graph, ec *ExecutionContext, ex *domain.Execution) *Result {
	executed := make(map[string]bool, len(g.Nodes))
	batch := []*domain.Node{g.TriggerNode()}

	var webhookResponse *domain.ResponseSpec

	for len(batch) > 0 {
		snapshot := ec.Snapshot()
		outcomes := make([]nodeOutcome, len(batch))

		var wg sync.WaitGroup
		for i, node := range batch {
			wg.Add(1)
			go func(i int, node *domain.Node) {
				defer wg.Done()
				if node.Type.IsTask() {
					tr := e.runner.Run(ctx, node, snapshot)
					if tr.Failed {
						outcomes[i] = nodeOutcome{node: node, err: NewNodeError(node, tr.Error, nil)}
						return
					}
					outcomes[i] = nodeOutcome{node: node, result: tr.Result}
					return
				}
				result, err := e.executor.ExecuteNode(ctx, node, snapshot)
				outcomes[i] = nodeOutcome{node: node, result: result, err: err}
			}(i, node)
		}
		wg.Wait()

		// Слияние строго в порядке батча: алиасы-ординалы детерминированы
		for _, out := range outcomes {
			if out.err != nil {
				return &Result{
					Message: "workflow failed",
					Status:  domain.ExecutionStatusFailed,
					Error:   out.err.Error(),
					Details: fmt.Sprintf("node %s (%s) failed", out.node.ID, out.node.Type),
				}
			}
			ec.AddResult(out.node, out.result)
			ex.MarkNode(out.node.ID)
			executed[out.node.ID] = true
			telemetry.NodeExecutionsTotal.WithLabelValues(string(out.node.Type)).Inc()

			if out.node.Type == domain.NodeTypeWebhookResponse {
				webhookResponse = responseSpecFromResult(out.result)
			}
		}
		e.record(ctx, ex, false)

		// Следующий батч: объединение всех ещё не выполненных целей рёбер.
		// Router в параллельном режиме и обычные узлы с несколькими рёбрами
		// дают одинаковый эффект: все цели попадают в один батч.
		var next []*domain.Node
		seen := make(map[string]bool)
		for _, node := range batch {
			for _, edge := range g.OutgoingEdges(node.ID) {
				if executed[edge.Target] || seen[edge.Target] {
					continue
				}
				target := g.NodeByID(edge.Target)
				if target == nil {
					continue
				}
				seen[edge.Target] = true
				next = append(next, target)
			}
		}
		batch = next
	}

	return &Result{
		Message:         "workflow completed",
		Status:          domain.ExecutionStatusCompleted,
		WebhookResponse: webhookResponse,
	}
}

// runEarlyResponse — оптимизированный обход для графов с response-узлом
// и параллельными task-группами.
//
// Выполняется триггер, затем все HTTP- и GPT-группы стартуют
// одновременно: медленная или упавшая задача одной группы не блокирует
// другую. Индивидуальные сбои терпимы — агрегация продолжается.
// После барьера применяется гейт полноты GPT-результатов, и только
// затем выполняется response-узел.
func (e *Engine) runEarlyResponse(ctx context.Context, g *domain.Graph, ec *ExecutionContext, ex *domain.Execution, responseNode *domain.Node) *Result {
	triggerNode := g.TriggerNode()
	triggerResult, err := e.executor.ExecuteNode(ctx, triggerNode, ec)
	if err != nil {
		return &Result{
			Message: "workflow failed",
			Status:  domain.ExecutionStatusFailed,
			Error:   err.Error(),
			Details: "trigger node failed",
		}
	}
	ec.AddResult(triggerNode, triggerResult)
	ex.MarkNode(triggerNode.ID)
	telemetry.NodeExecutionsTotal.WithLabelValues(string(triggerNode.Type)).Inc()

	httpGroups := FindParallelGroups(g, domain.NodeTypeHTTPTask, responseNode.ID)
	gptGroups := FindParallelGroups(g, domain.NodeTypeGPTTask, responseNode.ID)

	var tasks []*domain.Node
	for _, group := range httpGroups {
		tasks = append(tasks, group...)
	}
	var gptNodes []*domain.Node
	for _, group := range gptGroups {
		tasks = append(tasks, group...)
		gptNodes = append(gptNodes, group...)
	}

	snapshot := ec.Snapshot()
	results := make(map[string]domain.TaskResult, len(tasks))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, node := range tasks {
		wg.Add(1)
		go func(node *domain.Node) {
			defer wg.Done()
			tr := e.runner.Run(ctx, node, snapshot)
			mu.Lock()
			results[node.ID] = tr
			mu.Unlock()
		}(node)
	}

	settled := make(chan struct{})
	go func() {
		wg.Wait()
		close(settled)
	}()

	select {
	case <-settled:
	case <-time.After(e.runTimeout):
		// Уже запущенные внешние вызовы не отменяются принудительно
		return &Result{
			Message: "workflow timed out",
			Status:  domain.ExecutionStatusTimeout,
			Error:   ErrRunTimeout.Error(),
			Details: fmt.Sprintf("parallel phase exceeded %s", e.runTimeout),
		}
	case <-ctx.Done():
		return &Result{
			Message: "workflow timed out",
			Status:  domain.ExecutionStatusTimeout,
			Error:   ErrRunTimeout.Error(),
			Details: ctx.Err().Error(),
		}
	}

	// Слияние в порядке создания узлов графа: порядок завершения задач
	// не влияет на алиасы-ординалы
	mu.Lock()
	for i := range g.Nodes {
		node := &g.Nodes[i]
		tr, ok := results[node.ID]
		if !ok {
			continue
		}
		ec.AddResult(node, tr.Result)
		ex.MarkNode(node.ID)
		telemetry.NodeExecutionsTotal.WithLabelValues(string(node.Type)).Inc()
	}
	mu.Unlock()
	e.record(ctx, ex, false)

	// Гейт полноты: response-узел не должен ссылаться на пустые результаты
	partial := false
	if len(gptNodes) > 0 {
		present := 0
		var missing []string
		for _, node := range gptNodes {
			tr, ok := results[node.ID]
			if ok && !tr.Failed && !isEmptyTaskResult(tr.Result) {
				present++
			} else {
				missing = append(missing, fmt.Sprintf("GPT %d", requiredGPTNumber(g, node)))
			}
		}

		rate := float64(present) / float64(len(gptNodes))
		if rate < e.gateThreshold {
			return &Result{
				Message: "workflow produced incomplete results",
				Status:  domain.ExecutionStatusIncomplete,
				Error:   ErrIncompleteResults.Error(),
				Details: fmt.Sprintf("%d of %d GPT tasks succeeded (%.0f%%), missing: %s",
					present, len(gptNodes), rate*100, strings.Join(missing, ", ")),
			}
		}
		partial = present < len(gptNodes)
	}

	responseResult, err := e.executor.ExecuteNode(ctx, responseNode, ec)
	if err != nil {
		return &Result{
			Message: "workflow failed",
			Status:  domain.ExecutionStatusFailed,
			Error:   err.Error(),
			Details: "response node failed",
		}
	}
	ec.AddResult(responseNode, responseResult)
	ex.MarkNode(responseNode.ID)
	telemetry.NodeExecutionsTotal.WithLabelValues(string(responseNode.Type)).Inc()

	status := domain.ExecutionStatusCompleted
	message := "workflow completed"
	if partial {
		status = domain.ExecutionStatusPartialSuccess
		message = "workflow completed with partial results"
	}

	return &Result{
		Message:         message,
		Status:          status,
		WebhookResponse: responseSpecFromResult(responseResult),
	}
}

// requiredGPTNumber определяет "номер" GPT-узла для гейта: число из
// label, иначе nodeNumber, иначе число из ID, иначе позиция узла
// среди GPT-узлов в порядке создания.
func requiredGPTNumber(g *domain.Graph, node *domain.Node) int {
	if m := numberTokenRe.FindString(node.Label); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n
		}
	}
	if node.NodeNumber > 0 {
		return node.NodeNumber
	}
	if m := numberTokenRe.FindString(node.ID); m != "" {
		if n, err := strconv.Atoi(m); err == nil {
			return n
		}
	}

	ordinal := 0
	for i := range g.Nodes {
		if g.Nodes[i].Type != domain.NodeTypeGPTTask {
			continue
		}
		ordinal++
		if g.Nodes[i].ID == node.ID {
			return ordinal
		}
	}
	return ordinal + 1
}

// isEmptyTaskResult проверяет, что результат задачи пуст или несёт
// только признак ошибки.
func isEmptyTaskResult(result map[string]any) bool {
	if len(result) == 0 {
		return true
	}
	if success, ok := result["success"].(bool); ok && !success {
		return true
	}
	if resp, ok := result["response"]; ok {
		switch r := resp.(type) {
		case nil:
			return true
		case string:
			return strings.TrimSpace(r) == ""
		case map[string]any:
			return len(r) == 0
		}
	}
	return false
}

// responseSpecFromResult собирает ResponseSpec из результата
// response-узла.
func responseSpecFromResult(result map[string]any) *domain.ResponseSpec {
	if result == nil {
		return nil
	}

	spec := &domain.ResponseSpec{StatusCode: 200}
	if sc, ok := result["statusCode"].(int); ok {
		spec.StatusCode = sc
	}
	spec.Body = result["body"]

	if hm, ok := result["headers"].(map[string]any); ok {
		spec.Headers = make(map[string]string, len(hm))
		for k, v := range hm {
			if s, ok := v.(string); ok {
				spec.Headers[k] = s
			}
		}
	}

	return spec
}
