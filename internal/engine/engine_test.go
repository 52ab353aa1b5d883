package engine

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/shaiso/Hookflow/internal/domain"
)

// fakeDispatcher отвечает по config["id"]: заранее заданный результат
// или ошибка. Считает вызовы.
type fakeDispatcher struct {
	mu      sync.Mutex
	results map[string]map[string]any
	errs    map[string]error
	calls   []string
}

func (d *fakeDispatcher) Dispatch(_ context.Context, _ domain.NodeType, config map[string]any, _ map[string]any) (map[string]any, error) {
	id, _ := config["id"].(string)

	d.mu.Lock()
	d.calls = append(d.calls, id)
	d.mu.Unlock()

	if err, ok := d.errs[id]; ok {
		return nil, err
	}
	if out, ok := d.results[id]; ok {
		return out, nil
	}
	return map[string]any{"body": "ok"}, nil
}

func (d *fakeDispatcher) callCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.calls)
}

// fakeRecorder хранит последнюю запись execution в памяти.
type fakeRecorder struct {
	mu      sync.Mutex
	creates int
	updates int
	last    domain.Execution
}

func (r *fakeRecorder) CreateExecution(_ context.Context, ex *domain.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	r.last = *ex
	return nil
}

func (r *fakeRecorder) UpdateExecution(_ context.Context, ex *domain.Execution) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates++
	r.last = *ex
	return nil
}

func (r *fakeRecorder) GetExecution(_ context.Context, _ string) (*domain.Execution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ex := r.last
	return &ex, nil
}

func taskNode(id string, t domain.NodeType) domain.Node {
	return domain.Node{ID: id, Type: t, Config: map[string]any{"id": id}}
}

func responseNode(id, body string) domain.Node {
	return domain.Node{
		ID:     id,
		Type:   domain.NodeTypeWebhookResponse,
		Config: map[string]any{"responseBody": body},
	}
}

func workflowOf(nodes []domain.Node, edges []domain.Edge) *domain.Workflow {
	return &domain.Workflow{
		ID:       uuid.New(),
		Name:     "test",
		Graph:    domain.Graph{Nodes: nodes, Edges: edges},
		IsActive: true,
	}
}

func TestRun_TriggerToResponse(t *testing.T) {
	eng := New(Config{})

	wf := workflowOf(
		[]domain.Node{
			{ID: "t", Type: domain.NodeTypeTrigger},
			responseNode("r", `{"echo": "{{prompt1}}"}`),
		},
		[]domain.Edge{{Source: "t", Target: "r"}},
	)

	result, err := eng.Run(context.Background(), wf, map[string]any{"prompt1": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.ExecutionStatusCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}
	if result.WebhookResponse == nil {
		t.Fatal("expected webhook response")
	}
	if result.WebhookResponse.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", result.WebhookResponse.StatusCode)
	}
	body := result.WebhookResponse.Body.(map[string]any)
	if body["echo"] != "hi" {
		t.Errorf("expected echoed prompt, got %v", body)
	}
}

func TestRun_ParallelHTTPTasks(t *testing.T) {
	d := &fakeDispatcher{
		results: map[string]map[string]any{
			"h1": {"body": "first"},
			"h2": {"body": "second"},
		},
	}
	eng := New(Config{Dispatcher: d})

	wf := workflowOf(
		[]domain.Node{
			{ID: "t", Type: domain.NodeTypeTrigger},
			taskNode("h1", domain.NodeTypeHTTPTask),
			taskNode("h2", domain.NodeTypeHTTPTask),
			responseNode("r", `{"a": "{{HTTP 1.response}}", "b": "{{HTTP 2.response}}"}`),
		},
		[]domain.Edge{
			{Source: "t", Target: "h1"},
			{Source: "t", Target: "h2"},
			{Source: "h1", Target: "r"},
			{Source: "h2", Target: "r"},
		},
	)

	result, err := eng.Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.ExecutionStatusCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}
	if result.WebhookResponse == nil {
		t.Fatal("expected webhook response")
	}

	// Ординалы алиасов детерминированы порядком создания узлов,
	// не порядком завершения задач
	body := result.WebhookResponse.Body.(map[string]any)
	if body["a"] != "first" {
		t.Errorf("HTTP 1 should map to the first created node, got %v", body["a"])
	}
	if body["b"] != "second" {
		t.Errorf("HTTP 2 should map to the second created node, got %v", body["b"])
	}
}

func TestRun_EarlyResponse(t *testing.T) {
	d := &fakeDispatcher{
		results: map[string]map[string]any{
			"g1": {"result": "hello"},
		},
	}
	rec := &fakeRecorder{}
	eng := New(Config{Dispatcher: d, Recorder: rec})

	wf := workflowOf(
		[]domain.Node{
			{ID: "t", Type: domain.NodeTypeTrigger},
			taskNode("g1", domain.NodeTypeGPTTask),
			responseNode("r", `{"echo": "{{prompt1}}", "answer": "{{GPT 1.response}}"}`),
		},
		[]domain.Edge{
			{Source: "t", Target: "g1"},
			{Source: "g1", Target: "r"},
		},
	)

	result, err := eng.Run(context.Background(), wf, map[string]any{"prompt1": "hi"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.ExecutionStatusCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}
	if result.WebhookResponse == nil {
		t.Fatal("expected webhook response")
	}
	if result.WebhookResponse.StatusCode != 200 {
		t.Errorf("expected status 200, got %d", result.WebhookResponse.StatusCode)
	}

	body, ok := result.WebhookResponse.Body.(map[string]any)
	if !ok {
		t.Fatalf("expected body map, got %T", result.WebhookResponse.Body)
	}
	if body["echo"] != "hi" {
		t.Errorf("expected trigger field echoed, got %v", body["echo"])
	}
	if !reflect.DeepEqual(body["answer"], map[string]any{"result": "hello"}) {
		t.Errorf("expected GPT output under answer, got %v", body["answer"])
	}

	// Выполнены все три узла
	if len(result.ExecutedNodes) != 3 {
		t.Errorf("expected 3 executed nodes, got %v", result.ExecutedNodes)
	}

	// Execution записан и закрыт
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.creates != 1 {
		t.Errorf("expected 1 create, got %d", rec.creates)
	}
	if rec.last.Status != domain.ExecutionStatusCompleted {
		t.Errorf("recorded status = %s", rec.last.Status)
	}
	if rec.last.FinishedAt == nil {
		t.Error("recorded execution should be finished")
	}
}

func TestRun_GateAllowsPartialSuccess(t *testing.T) {
	// 4 из 5 GPT-задач с результатом: ровно порог 0.8, ответ отправляется
	d := &fakeDispatcher{
		results: map[string]map[string]any{
			"g5": {}, // пустой результат не считается присутствующим
		},
	}
	eng := New(Config{Dispatcher: d})

	nodes := []domain.Node{{ID: "t", Type: domain.NodeTypeTrigger}}
	edges := []domain.Edge{}
	for _, id := range []string{"g1", "g2", "g3", "g4", "g5"} {
		nodes = append(nodes, taskNode(id, domain.NodeTypeGPTTask))
		edges = append(edges,
			domain.Edge{Source: "t", Target: id},
			domain.Edge{Source: id, Target: "r"},
		)
	}
	nodes = append(nodes, responseNode("r", `{"done": true}`))

	result, err := eng.Run(context.Background(), workflowOf(nodes, edges), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.ExecutionStatusPartialSuccess {
		t.Errorf("expected partial_success, got %s", result.Status)
	}
	if result.WebhookResponse == nil {
		t.Error("response should still be produced at the threshold")
	}
}

func TestRun_GateRejectsIncomplete(t *testing.T) {
	// 3 из 5 — ниже порога: ответ не выполняется
	d := &fakeDispatcher{
		results: map[string]map[string]any{
			"g4": {},
			"g5": {},
		},
	}
	eng := New(Config{Dispatcher: d})

	nodes := []domain.Node{{ID: "t", Type: domain.NodeTypeTrigger}}
	edges := []domain.Edge{}
	for _, id := range []string{"g1", "g2", "g3", "g4", "g5"} {
		nodes = append(nodes, taskNode(id, domain.NodeTypeGPTTask))
		edges = append(edges,
			domain.Edge{Source: "t", Target: id},
			domain.Edge{Source: id, Target: "r"},
		)
	}
	nodes = append(nodes, responseNode("r", `{"done": true}`))

	result, err := eng.Run(context.Background(), workflowOf(nodes, edges), nil)
	if err == nil {
		t.Fatal("expected error for incomplete results")
	}

	if result.Status != domain.ExecutionStatusIncomplete {
		t.Errorf("expected incomplete, got %s", result.Status)
	}
	if result.WebhookResponse != nil {
		t.Error("response node must not run below the gate threshold")
	}
	for _, id := range result.ExecutedNodes {
		if id == "r" {
			t.Error("response node must not be marked executed")
		}
	}
}

func TestRun_EmptyResponseBodyFailsBeforeDispatch(t *testing.T) {
	d := &fakeDispatcher{}
	eng := New(Config{Dispatcher: d})

	wf := workflowOf(
		[]domain.Node{
			{ID: "t", Type: domain.NodeTypeTrigger},
			taskNode("g1", domain.NodeTypeGPTTask),
			{ID: "r", Type: domain.NodeTypeWebhookResponse, Config: map[string]any{"responseBody": ""}},
		},
		[]domain.Edge{
			{Source: "t", Target: "g1"},
			{Source: "g1", Target: "r"},
		},
	)

	result, err := eng.Run(context.Background(), wf, nil)
	if !errors.Is(err, ErrEmptyResponseBody) {
		t.Fatalf("expected ErrEmptyResponseBody, got %v", err)
	}
	if result.Status != domain.ExecutionStatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
	// Ни одна задача не должна быть запущена
	if d.callCount() != 0 {
		t.Errorf("expected no dispatches, got %d", d.callCount())
	}
}

func TestRun_BatchTraversal(t *testing.T) {
	eng := New(Config{})

	wf := workflowOf(
		[]domain.Node{
			{ID: "t", Type: domain.NodeTypeTrigger},
			{ID: "c1", Type: domain.NodeTypeConditional, Config: map[string]any{
				"condition":  "always false",
				"trueValue":  "a",
				"falseValue": "b",
			}},
			responseNode("r", `{"picked": "{{Conditional 1.result}}"}`),
		},
		[]domain.Edge{
			{Source: "t", Target: "c1"},
			{Source: "c1", Target: "r"},
		},
	)

	result, err := eng.Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.ExecutionStatusCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}
	if result.WebhookResponse == nil {
		t.Fatal("expected webhook response from batch traversal")
	}
	body := result.WebhookResponse.Body.(map[string]any)
	if body["picked"] != "b" {
		t.Errorf("expected conditional falseValue, got %v", body["picked"])
	}
	if len(result.ExecutedNodes) != 3 {
		t.Errorf("expected 3 executed nodes, got %v", result.ExecutedNodes)
	}
}

func TestRun_RouterFanOut(t *testing.T) {
	eng := New(Config{})

	transform := func(id string) domain.Node {
		return domain.Node{ID: id, Type: domain.NodeTypeDataTransform, Config: map[string]any{
			"operations": []any{
				map[string]any{"operation": "add", "field": "via_" + id, "value": true},
			},
		}}
	}

	wf := workflowOf(
		[]domain.Node{
			{ID: "t", Type: domain.NodeTypeTrigger},
			{ID: "rt", Type: domain.NodeTypeRouter},
			transform("d1"),
			transform("d2"),
		},
		[]domain.Edge{
			{Source: "t", Target: "rt"},
			{Source: "rt", Target: "d1"},
			{Source: "rt", Target: "d2"},
		},
	)

	result, err := eng.Run(context.Background(), wf, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Status != domain.ExecutionStatusCompleted {
		t.Errorf("expected completed, got %s", result.Status)
	}
	// Обе ветви router выполнены
	if len(result.ExecutedNodes) != 4 {
		t.Errorf("expected 4 executed nodes, got %v", result.ExecutedNodes)
	}
}

func TestRun_BatchFailFast(t *testing.T) {
	d := &fakeDispatcher{errs: map[string]error{"h1": errors.New("boom")}}
	eng := New(Config{Dispatcher: d})

	wf := workflowOf(
		[]domain.Node{
			{ID: "t", Type: domain.NodeTypeTrigger},
			taskNode("h1", domain.NodeTypeHTTPTask),
			transformNode("d1"),
		},
		[]domain.Edge{
			{Source: "t", Target: "h1"},
			{Source: "h1", Target: "d1"},
		},
	)

	result, err := eng.Run(context.Background(), wf, nil)
	if err == nil {
		t.Fatal("expected error from failed batch node")
	}
	if result.Status != domain.ExecutionStatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
	// Узел после упавшего не выполняется
	for _, id := range result.ExecutedNodes {
		if id == "d1" {
			t.Error("nodes after a failed batch must not run")
		}
	}
}

func TestRun_EmptyGraph(t *testing.T) {
	eng := New(Config{})

	result, err := eng.Run(context.Background(), workflowOf(nil, nil), nil)
	if !errors.Is(err, ErrEmptyGraph) {
		t.Fatalf("expected ErrEmptyGraph, got %v", err)
	}
	if result.Status != domain.ExecutionStatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
}

func TestRun_NoTrigger(t *testing.T) {
	eng := New(Config{})

	wf := workflowOf([]domain.Node{transformNode("d1")}, nil)
	result, err := eng.Run(context.Background(), wf, nil)
	if !errors.Is(err, ErrNoTriggerNode) {
		t.Fatalf("expected ErrNoTriggerNode, got %v", err)
	}
	if result.Status != domain.ExecutionStatusFailed {
		t.Errorf("expected failed, got %s", result.Status)
	}
}

func transformNode(id string) domain.Node {
	return domain.Node{ID: id, Type: domain.NodeTypeDataTransform}
}
